// Package generator turns a publishing context (persona, pillar, template,
// idea) into LinkedIn post copy via an LLM backend. Anthropic and
// OpenAI-compatible APIs are both supported; which one handles a request is
// decided by config or inferred from the model name.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"postpilot/internal/config"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 1024
	defaultTimeout   = 120 * time.Second
)

type ModelType string

const (
	ModelTypeOpenAI     ModelType = "openai"
	ModelTypeAnthropics ModelType = "anthropics"
)

// Context carries everything the prompt builder may use. Only Voice is
// expected to be present; missing pillar/template context degrades quality,
// not correctness.
type Context struct {
	BrandName string
	Voice     string
	Audience  string
	Goals     string

	PillarTitle       string
	PillarDescription string

	TemplateStructure    string
	TemplatePrompt       string
	TemplateCallToAction string

	IdeaHook  string
	IdeaAngle string
}

type Result struct {
	Content string
	Model   string
}

type Client struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Type       ModelType
	HTTPClient *http.Client

	anthropicSDK anthropicClient
	openaiSDK    openaiClient
}

func NewClient(cfg config.LLMConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm.api_key is required (or set ANTHROPIC_API_KEY / OPENAI_API_KEY)")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	mt, err := resolveModelType(cfg.ModelType, model)
	if err != nil {
		return nil, err
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		Model:      model,
		MaxTokens:  maxTokens,
		Type:       mt,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

func resolveModelType(raw string, model string) (ModelType, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case string(ModelTypeOpenAI):
		return ModelTypeOpenAI, nil
	case string(ModelTypeAnthropics), "anthropic":
		return ModelTypeAnthropics, nil
	case "":
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "claude") {
			return ModelTypeAnthropics, nil
		}
		return ModelTypeOpenAI, nil
	default:
		return "", fmt.Errorf("unsupported llm.model_type %q (supported: %q, %q)", raw, ModelTypeOpenAI, ModelTypeAnthropics)
	}
}

// Generate produces post copy for the given context. The returned text is
// trimmed; an empty completion is an error, never silently accepted.
func (c *Client) Generate(ctx context.Context, gen Context) (Result, error) {
	if c == nil {
		return Result{}, errors.New("nil client")
	}
	system, user := BuildPrompt(gen)

	var (
		text string
		err  error
	)
	switch c.Type {
	case ModelTypeAnthropics:
		text, err = c.generateAnthropic(ctx, system, user)
	default:
		text, err = c.generateOpenAI(ctx, system, user)
	}
	if err != nil {
		return Result{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, errors.New("model returned empty content")
	}
	return Result{Content: text, Model: c.Model}, nil
}
