package organize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pinaxlabs/organizer/internal/llm"
	"github.com/pinaxlabs/organizer/internal/util"
	"github.com/pinaxlabs/organizer/types"
)

const (
	defaultMaxAttempts = 3
	retryBaseDelay     = 500 * time.Millisecond
	retryMaxDelay      = 30 * time.Second
)

// Completer is the slice of the LLM client the service needs. Tests
// substitute a stub.
type Completer interface {
	Complete(ctx context.Context, system, user string, schema json.RawMessage, temperature float32, maxOutputTokens int) (*llm.CompletionResult, error)
	MaxOutputTokens(budgetPercentage float64) int
}

// Service turns one organize request into a sanitized plan.
type Service struct {
	builder *PromptBuilder
	client  Completer
	cfg     types.LLMConfig
}

// NewService wires the prompt builder and LLM client for one model
// configuration.
func NewService(client Completer, cfg types.LLMConfig) *Service {
	return &Service{
		builder: NewPromptBuilder(cfg),
		client:  client,
		cfg:     cfg,
	}
}

// Organize validates the request, builds budgeted prompts, calls the
// model with retry on transient failures, and reconciles the response
// into a plan. Permanent and malformed-response failures are returned
// as-is for the caller to map.
func (s *Service) Organize(ctx context.Context, req *types.OrganizeRequest) (*types.OrganizePlan, error) {
	if err := types.ValidateOrganizeRequest(req); err != nil {
		return nil, err
	}

	prompts := s.builder.Build(req)

	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var result *llm.CompletionResult
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = s.client.Complete(ctx, prompts.System, prompts.User,
			llm.GroupingResponseSchema, s.cfg.Temperature, s.client.MaxOutputTokens(s.cfg.BudgetPercentage))
		if err == nil {
			break
		}
		if !errors.Is(err, types.ErrLLMTransient) || attempt == maxAttempts {
			return nil, err
		}

		delay := util.Jitter(util.Backoff(retryBaseDelay, attempt, retryMaxDelay))
		slog.Warn("llm call failed, retrying",
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	resp, err := ParseResponse(result.Content)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(req.Files))
	for i, f := range req.Files {
		names[i] = f.Name
	}
	sanitized := Sanitize(resp, names)

	plan := &types.OrganizePlan{
		Groups:      sanitized.Groups,
		Ungrouped:   sanitized.Ungrouped,
		Description: sanitized.Description,
		Truncation:  &prompts.Truncation,
		Warnings:    sanitized.Warnings,
		Tokens: &types.TokenUsage{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			TotalTokens:      result.TotalTokens,
		},
		Cost:  result.Cost,
		Model: result.Model,
	}

	slog.Info("organize plan produced",
		"files", len(req.Files),
		"groups", len(plan.Groups),
		"ungrouped", len(plan.Ungrouped),
		"warnings", len(plan.Warnings),
		"cost", fmt.Sprintf("%.6f", plan.Cost),
	)
	return plan, nil
}
