// Package assistant lets an owner change the business config by chatting
// with a language model that answers with JSON patches.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrNotConfigured = errors.New("assistant api key not configured")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer is what the model must return.
type Answer struct {
	Reply string          `json:"reply"`
	Patch json.RawMessage `json:"patch"`
}

// Completer produces an Answer for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (Answer, error)
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	http  *resty.Client
	model string
	ready bool
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIKey)
	return &Client{http: hc, model: cfg.Model, ready: cfg.APIKey != ""}
}

type completionRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) Complete(ctx context.Context, messages []Message) (Answer, error) {
	if !c.ready {
		return Answer{}, ErrNotConfigured
	}
	var out completionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(completionRequest{
			Model:          c.model,
			Messages:       messages,
			Temperature:    0.2,
			ResponseFormat: map[string]string{"type": "json_object"},
		}).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return Answer{}, fmt.Errorf("chat completion: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return Answer{}, fmt.Errorf("chat completion: %s", msg)
	}
	if len(out.Choices) == 0 {
		return Answer{}, errors.New("chat completion: no choices")
	}
	return ParseAnswer(out.Choices[0].Message.Content)
}

// ParseAnswer reads the model's JSON reply. Models sometimes wrap JSON in a
// markdown fence; that is stripped first.
func ParseAnswer(content string) (Answer, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	var a Answer
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return Answer{}, fmt.Errorf("model answer is not json: %w", err)
	}
	if p := strings.TrimSpace(string(a.Patch)); p == "" || p == "null" {
		a.Patch = json.RawMessage("[]")
	}
	return a, nil
}
