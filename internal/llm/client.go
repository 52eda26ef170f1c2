// Client for OpenAI-compatible chat-completions endpoints with strict
// JSON-schema response formatting.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/pinaxlabs/organizer/types"
)

// DefaultTemperature is used when the caller passes 0.
const DefaultTemperature float32 = 0.3

// CompletionResult carries the model output plus provider accounting.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
	Model            string
}

// Client wraps a chat-completions API. Safe for concurrent use.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	pricing   Pricing
}

// NewClient builds a client from configuration. BaseURL may point at
// any OpenAI-compatible endpoint; it must include the /v1 suffix when
// the provider expects one.
func NewClient(cfg types.LLMConfig) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:       openai.NewClientWithConfig(apiCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		pricing: Pricing{
			InputPer1M:  cfg.InputPricePer1M,
			OutputPer1M: cfg.OutputPricePer1M,
		},
	}
}

// Complete sends one system+user exchange and demands output conforming
// to schema. maxOutputTokens <= 0 lets the provider pick its default.
func (c *Client) Complete(ctx context.Context, system, user string, schema json.RawMessage, temperature float32, maxOutputTokens int) (*CompletionResult, error) {
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   GroupingSchemaName,
				Schema: schema,
				Strict: true,
			},
		},
	}
	if maxOutputTokens > 0 {
		req.MaxTokens = maxOutputTokens
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response contains no choices", types.ErrBadResponse)
	}

	result := &CompletionResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Cost:             c.pricing.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		Model:            resp.Model,
	}

	slog.Debug("llm completion",
		"model", result.Model,
		"promptTokens", result.PromptTokens,
		"completionTokens", result.CompletionTokens,
		"cost", result.Cost,
		"elapsed", time.Since(start),
	)
	return result, nil
}

// MaxOutputTokens returns the completion allowance left after the
// prompt's share of the context window.
func (c *Client) MaxOutputTokens(budgetPercentage float64) int {
	if c.maxTokens <= 0 {
		return 0
	}
	out := c.maxTokens - int(float64(c.maxTokens)*budgetPercentage)
	if out < 0 {
		return 0
	}
	return out
}

// classifyAPIError maps provider errors onto the transient/permanent
// taxonomy. 429, 503 and all 5xx are retryable; other 4xx are not;
// anything without a status code is treated as a network flake.
func classifyAPIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return fmt.Errorf("%w: %v", types.ErrLLMTransient, err)
	}

	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: status %d: %v", types.ErrLLMTransient, status, err)
	}
	if status >= 400 {
		return fmt.Errorf("%w: status %d: %v", types.ErrLLMPermanent, status, err)
	}
	return fmt.Errorf("%w: %v", types.ErrLLMTransient, err)
}
