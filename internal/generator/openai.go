package generator

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"
)

type openaiClient struct {
	sdk openai.Client
	ok  bool
}

func (c *Client) ensureOpenAISDK() error {
	if c == nil {
		return errors.New("nil client")
	}
	if c.openaiSDK.ok {
		return nil
	}
	apiKey := strings.TrimSpace(c.APIKey)
	if apiKey == "" {
		return errors.New("api key is required")
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
	}
	if base := resolvedOpenAIBaseURL(c.BaseURL); base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	if c.HTTPClient != nil {
		opts = append(opts, openaioption.WithHTTPClient(c.HTTPClient))
	}
	c.openaiSDK = openaiClient{sdk: openai.NewClient(opts...), ok: true}
	return nil
}

// resolvedOpenAIBaseURL normalizes a configured base to the /v1/ form the
// SDK expects, and returns "" when the default endpoint should be used.
func resolvedOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

func (c *Client) generateOpenAI(ctx context.Context, system string, user string) (string, error) {
	if err := c.ensureOpenAISDK(); err != nil {
		return "", err
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	messages := []openai.ChatCompletionMessageParamUnion{}
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))

	resp, err := c.openaiSDK.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(c.Model),
		Messages:  messages,
		MaxTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
