package organize

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinaxlabs/organizer/internal/llm"
	"github.com/pinaxlabs/organizer/types"
)

type stubCall struct {
	content string
	err     error
}

type stubCompleter struct {
	tb    testing.TB
	calls []stubCall
	n     int
}

func (s *stubCompleter) Complete(_ context.Context, _, _ string, _ json.RawMessage, _ float32, _ int) (*llm.CompletionResult, error) {
	require.Less(s.tb, s.n, len(s.calls), "unexpected extra LLM call")
	call := s.calls[s.n]
	s.n++
	if call.err != nil {
		return nil, call.err
	}
	return &llm.CompletionResult{
		Content:          call.content,
		PromptTokens:     120,
		CompletionTokens: 30,
		TotalTokens:      150,
		Cost:             0.00045,
		Model:            "gpt-4o-mini",
	}, nil
}

func (s *stubCompleter) MaxOutputTokens(float64) int { return 4096 }

func testRequest() *types.OrganizeRequest {
	return &types.OrganizeRequest{
		Files: []types.FileInput{
			{Name: "a.txt", Kind: types.FileKindText, Content: "alpha"},
			{Name: "b.txt", Kind: types.FileKindText, Content: "beta"},
		},
	}
}

func goodContent() string {
	return `{
		"groups": [{"group_name": "Docs", "description": "", "files": ["a.txt"]}],
		"ungrouped_files": ["b.txt"],
		"reorganization_description": "split"
	}`
}

func testCfg() types.LLMConfig {
	return types.LLMConfig{Model: "gpt-4o-mini", MaxTokens: 128000, BudgetPercentage: 0.7, MaxAttempts: 3}
}

func TestOrganize_Success(t *testing.T) {
	stub := &stubCompleter{tb: t, calls: []stubCall{{content: goodContent()}}}
	svc := NewService(stub, testCfg())

	plan, err := svc.Organize(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, plan.Groups, 1)
	assert.Equal(t, "Docs", plan.Groups[0].GroupName)
	assert.Equal(t, []string{"b.txt"}, plan.Ungrouped)
	assert.Equal(t, "split", plan.Description)
	require.NotNil(t, plan.Tokens)
	assert.Equal(t, 150, plan.Tokens.TotalTokens)
	assert.Equal(t, 0.00045, plan.Cost)
	assert.Equal(t, "gpt-4o-mini", plan.Model)
	assert.Equal(t, 1, stub.n)
}

func TestOrganize_RetriesTransientThenSucceeds(t *testing.T) {
	stub := &stubCompleter{tb: t, calls: []stubCall{
		{err: fmt.Errorf("%w: status 429", types.ErrLLMTransient)},
		{content: goodContent()},
	}}
	svc := NewService(stub, testCfg())

	plan, err := svc.Organize(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, stub.n)
	assert.Len(t, plan.Groups, 1)
}

func TestOrganize_PermanentFailureDoesNotRetry(t *testing.T) {
	stub := &stubCompleter{tb: t, calls: []stubCall{
		{err: fmt.Errorf("%w: status 400", types.ErrLLMPermanent)},
	}}
	svc := NewService(stub, testCfg())

	_, err := svc.Organize(context.Background(), testRequest())
	assert.ErrorIs(t, err, types.ErrLLMPermanent)
	assert.Equal(t, 1, stub.n)
}

func TestOrganize_ExhaustsTransientRetries(t *testing.T) {
	transient := fmt.Errorf("%w: connection reset", types.ErrLLMTransient)
	stub := &stubCompleter{tb: t, calls: []stubCall{{err: transient}, {err: transient}}}

	cfg := testCfg()
	cfg.MaxAttempts = 2
	svc := NewService(stub, cfg)

	_, err := svc.Organize(context.Background(), testRequest())
	assert.ErrorIs(t, err, types.ErrLLMTransient)
	assert.Equal(t, 2, stub.n)
}

func TestOrganize_MalformedContentIsBadResponse(t *testing.T) {
	stub := &stubCompleter{tb: t, calls: []stubCall{{content: "I cannot group these files."}}}
	svc := NewService(stub, testCfg())

	_, err := svc.Organize(context.Background(), testRequest())
	assert.ErrorIs(t, err, types.ErrBadResponse)
}

func TestOrganize_ValidationFailureSkipsLLM(t *testing.T) {
	stub := &stubCompleter{tb: t}
	svc := NewService(stub, testCfg())

	_, err := svc.Organize(context.Background(), &types.OrganizeRequest{})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, 0, stub.n)
}

func TestOrganize_ContextCancelledDuringBackoff(t *testing.T) {
	stub := &stubCompleter{tb: t, calls: []stubCall{
		{err: fmt.Errorf("%w: timeout", types.ErrLLMTransient)},
	}}
	svc := NewService(stub, testCfg())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Organize(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
