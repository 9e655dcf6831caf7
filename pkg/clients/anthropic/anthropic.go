package anthropic

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/habitbloom/server/internal/domain/apperr"
	"github.com/habitbloom/server/internal/domain/models"
)

const (
	apiURL     = "https://api.anthropic.com/v1/messages"
	apiVersion = "2023-06-01"

	// Model is the generating model recorded on every stored report.
	Model = "claude-3-haiku-20240307"

	maxTokens   = 2048
	temperature = 0.7

	systemPrompt = "당신은 따뜻하고 공감 능력이 뛰어난 습관 코치입니다. " +
		"사용자의 한 달 기록을 바탕으로 비난 없이 격려하는 어조로 분석 리포트를 작성합니다. " +
		"반드시 요청된 JSON 형식으로만 응답하세요."
)

// Client defines the text-generation interface the report service consumes.
type Client interface {
	GenerateReport(ctx context.Context, prompt string) (*models.ReportPayload, error)
	ModelID() string
}

type anthropicClient struct {
	httpClient *resty.Client
	baseURL    string
}

// Option customizes the client.
type Option func(*anthropicClient)

// WithBaseURL overrides the messages endpoint, used to point the client at
// a test server.
func WithBaseURL(url string) Option {
	return func(c *anthropicClient) { c.baseURL = url }
}

// NewClient creates a configured Anthropic client. The timeout bounds the
// whole generation call; a timeout surfaces as apperr.ErrModelUnavailable.
func NewClient(apiKey string, opts ...Option) Client {
	client := resty.New().
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", apiVersion).
		SetHeader("content-type", "application/json").
		SetTimeout(60 * time.Second)

	c := &anthropicClient{httpClient: client, baseURL: apiURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type messageRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// ModelID returns the identifier of the generating model.
func (c *anthropicClient) ModelID() string { return Model }

// GenerateReport sends the prompt and recovers the structured report payload
// from the response text. Transport problems map to ErrModelUnavailable
// (retryable); extraction and validation problems map to
// MalformedOutputError (not retryable without a prompt change).
func (c *anthropicClient) GenerateReport(ctx context.Context, prompt string) (*models.ReportPayload, error) {
	reqBody := messageRequest{
		Model:       Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      systemPrompt,
		Messages:    []message{{Role: "user", Content: prompt}},
	}

	var respBody messageResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(reqBody).
		SetResult(&respBody).
		Post(c.baseURL)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrModelUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d: %s", apperr.ErrModelUnavailable, resp.StatusCode(), resp.String())
	}
	if len(respBody.Content) == 0 {
		return nil, fmt.Errorf("%w: empty response body", apperr.ErrModelUnavailable)
	}

	return ParsePayload(respBody.Content[0].Text)
}
