package generator

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com"

type anthropicClient struct {
	sdk anthropic.Client
	ok  bool
}

func (c *Client) ensureAnthropicSDK() error {
	if c == nil {
		return errors.New("nil client")
	}
	if c.anthropicSDK.ok {
		return nil
	}
	apiKey := strings.TrimSpace(c.APIKey)
	if apiKey == "" {
		return errors.New("api key is required")
	}
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithBaseURL(resolvedAnthropicBaseURL(c.BaseURL)),
	}
	if c.HTTPClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(c.HTTPClient))
	}
	c.anthropicSDK = anthropicClient{sdk: anthropic.NewClient(opts...), ok: true}
	return nil
}

func resolvedAnthropicBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/v1")
	base = strings.TrimRight(base, "/")
	return base + "/"
}

func (c *Client) generateAnthropic(ctx context.Context, system string, user string) (string, error) {
	if err := c.ensureAnthropicSDK(); err != nil {
		return "", err
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     anthropic.Model(c.Model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if strings.TrimSpace(system) != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.anthropicSDK.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("empty response")
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			if out.Len() > 0 {
				out.WriteString("\n")
			}
			out.WriteString(text.Text)
		}
	}
	return out.String(), nil
}
