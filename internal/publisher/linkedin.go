// Package publisher submits finished copy to LinkedIn and reports back the
// URN of the created post. Auth failures, throttling and transport errors
// all surface as one "publish failed" error; the caller keeps the detail in
// the post's error text for review.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"postpilot/internal/config"
)

const (
	defaultBaseURL          = "https://api.linkedin.com"
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 64 * 1024
)

type Result struct {
	URN string
}

type Client struct {
	AccessToken string
	AuthorURN   string
	BaseURL     string
	HTTPClient  *http.Client
}

func NewClient(cfg config.LinkedInConfig) (*Client, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("linkedin.access_token is required (or set LINKEDIN_ACCESS_TOKEN)")
	}
	author := strings.TrimSpace(cfg.AuthorURN)
	if author == "" {
		return nil, errors.New("linkedin.author_urn is required (or set LINKEDIN_AUTHOR_URN)")
	}
	timeout := config.ParseDurationOrDefault(cfg.Timeout, defaultTimeout)
	return &Client{
		AccessToken: token,
		AuthorURN:   author,
		BaseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		HTTPClient:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) resolvedBaseURL() string {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(base, "/")
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

type ugcShareCommentary struct {
	Text string `json:"text"`
}

type ugcShareContent struct {
	ShareCommentary    ugcShareCommentary `json:"shareCommentary"`
	ShareMediaCategory string             `json:"shareMediaCategory"`
}

type ugcPostRequest struct {
	Author          string                     `json:"author"`
	LifecycleState  string                     `json:"lifecycleState"`
	SpecificContent map[string]ugcShareContent `json:"specificContent"`
	Visibility      map[string]string          `json:"visibility"`
}

type ugcPostResponse struct {
	ID string `json:"id"`
}

// Publish creates a public UGC post with the given text and returns its URN.
func (c *Client) Publish(ctx context.Context, text string) (Result, error) {
	if c == nil {
		return Result{}, errors.New("nil client")
	}
	body := strings.TrimSpace(text)
	if body == "" {
		return Result{}, errors.New("post content is empty")
	}

	payload := ugcPostRequest{
		Author:         strings.TrimSpace(c.AuthorURN),
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]ugcShareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    ugcShareCommentary{Text: body},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	url := c.resolvedBaseURL() + "/v2/ugcPosts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.AccessToken))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("linkedin request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 2000 {
			snippet = snippet[:2000] + "…"
		}
		return Result{}, fmt.Errorf("linkedin api error: %s: %s", resp.Status, snippet)
	}

	urn := strings.TrimSpace(resp.Header.Get("X-Restli-Id"))
	if urn == "" {
		var out ugcPostResponse
		if err := json.Unmarshal(data, &out); err == nil {
			urn = strings.TrimSpace(out.ID)
		}
	}
	if urn == "" {
		return Result{}, errors.New("linkedin response missing post id")
	}
	return Result{URN: urn}, nil
}
