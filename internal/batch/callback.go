package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pinaxlabs/organizer/types"
)

// newPIConfig is attached to every created group so the orchestrator
// does not feed freshly organized directories straight back into this
// service.
var newPIConfig = types.ProcessingConfig{OCR: false, Reorganize: false, Pinax: true}

// BuildPayload aggregates a finished batch into the single callback
// body. Batch status is success when every item succeeded, error when
// every item failed, partial otherwise.
func BuildPayload(state *types.BatchState) *types.CallbackPayload {
	payload := &types.CallbackPayload{
		BatchID: state.BatchID,
		ChunkID: state.ChunkID,
		Error:   state.GlobalError,
	}

	succeeded, failed := 0, 0
	for _, item := range state.Items {
		result := types.CallbackResult{ID: item.ID}
		if item.Status == types.ItemError {
			failed++
			result.Status = "error"
			result.Error = item.Error
		} else {
			succeeded++
			result.Status = "success"
			result.NewTip = item.NewParentTip
			result.NewVersion = item.NewParentVersion
			result.GroupsCreated = item.GroupsCreated
		}
		payload.Results = append(payload.Results, result)

		for _, group := range item.GroupsCreated {
			payload.NewPIs = append(payload.NewPIs, types.NewPI{
				ID:               group.ID,
				ParentID:         item.ID,
				Children:         []string{},
				ProcessingConfig: newPIConfig,
			})
		}
	}

	switch {
	case failed == 0:
		payload.Status = "success"
	case succeeded == 0:
		payload.Status = "error"
	default:
		payload.Status = "partial"
	}

	elapsed := time.Since(state.StartedAt)
	if state.CompletedAt != nil {
		elapsed = state.CompletedAt.Sub(state.StartedAt)
	}
	payload.Summary = types.CallbackSummary{
		Total:            len(state.Items),
		Succeeded:        succeeded,
		Failed:           failed,
		ProcessingTimeMS: elapsed.Milliseconds(),
	}
	return payload
}

// HTTPCallbackSender posts callback payloads to the orchestrator.
type HTTPCallbackSender struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPCallbackSender builds a sender. timeout <= 0 defaults to 30s.
func NewHTTPCallbackSender(baseURL string, timeout time.Duration) *HTTPCallbackSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCallbackSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send delivers one payload. Any non-2xx response is an error so the
// caller's retry policy applies.
func (s *HTTPCallbackSender) Send(ctx context.Context, payload *types.CallbackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	url := fmt.Sprintf("%s/callback/organizer/%s", s.baseURL, payload.BatchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callback rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
