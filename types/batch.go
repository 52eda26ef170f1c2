package types

import (
	"fmt"
	"time"
)

// Phase is the batch-level lifecycle state. Transitions are driven by
// the alarm loop of the owning processor only.
type Phase string

const (
	PhasePending    Phase = "PENDING"
	PhaseProcessing Phase = "PROCESSING"
	PhasePublishing Phase = "PUBLISHING"
	PhaseCallback   Phase = "CALLBACK"
	PhaseDone       Phase = "DONE"
	PhaseError      Phase = "ERROR"
)

// Terminal reports whether the phase accepts no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError
}

// ItemStatus is the per-item state within a batch.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemFetching   ItemStatus = "fetching"
	ItemProcessing ItemStatus = "processing"
	ItemPublishing ItemStatus = "publishing"
	ItemDone       ItemStatus = "done"
	ItemError      ItemStatus = "error"
)

// CreatedGroup records one child entity created by the publisher.
type CreatedGroup struct {
	GroupName   string   `json:"group_name"`
	ID          string   `json:"id"`
	Files       []string `json:"files"`
	Description string   `json:"description"`
}

// ItemState tracks one directory through fetch, organize and publish.
// Files are dropped after planning to bound persisted state.
type ItemState struct {
	ID               string            `json:"id"`
	Status           ItemStatus        `json:"status"`
	RetryCount       int               `json:"retry_count"`
	Tip              string            `json:"tip,omitempty"`
	DirectoryPath    string            `json:"directory_path,omitempty"`
	Files            []FileInput       `json:"files,omitempty"`
	Components       map[string]string `json:"components,omitempty"`
	Plan             *OrganizePlan     `json:"plan,omitempty"`
	GroupsCreated    []CreatedGroup    `json:"groups_created,omitempty"`
	NewParentTip     string            `json:"new_parent_tip,omitempty"`
	NewParentVersion int               `json:"new_parent_version,omitempty"`
	Ungrouped        []string          `json:"ungrouped,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// BatchState is the persisted state of one (batch_id, chunk_id). It is
// created on submit, mutated only by the owning processor, and deleted
// after a terminal callback.
type BatchState struct {
	BatchID            string      `json:"batch_id"`
	ChunkID            string      `json:"chunk_id"`
	Phase              Phase       `json:"phase"`
	CustomPrompt       string      `json:"custom_prompt,omitempty"`
	StartedAt          time.Time   `json:"started_at"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	CallbackRetryCount int         `json:"callback_retry_count"`
	Items              []ItemState `json:"items"`
	GlobalError        string      `json:"global_error,omitempty"`
}

// CountByStatus tallies items per status for status queries.
func (b *BatchState) CountByStatus() map[ItemStatus]int {
	counts := make(map[ItemStatus]int, 6)
	for _, it := range b.Items {
		counts[it.Status]++
	}
	return counts
}

// ProcessRequest is the body of POST /process.
type ProcessRequest struct {
	BatchID      string   `json:"batch_id" validate:"required"`
	ChunkID      string   `json:"chunk_id" validate:"required"`
	IDs          []string `json:"ids" validate:"required,min=1"`
	CustomPrompt string   `json:"custom_prompt,omitempty"`
}

// ValidateProcessRequest checks tags plus uniqueness of the submitted
// ids.
func ValidateProcessRequest(req *ProcessRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	seen := make(map[string]struct{}, len(req.IDs))
	for _, id := range req.IDs {
		if id == "" {
			return fmt.Errorf("%w: empty id", ErrValidation)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// ProcessResponse is the body returned by POST /process.
type ProcessResponse struct {
	Status  string `json:"status"` // accepted | already_processing
	ChunkID string `json:"chunk_id"`
	Total   int    `json:"total"`
	Phase   Phase  `json:"phase,omitempty"`
}

// StatusProgress breaks down item counts for GET /status.
type StatusProgress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Fetching   int `json:"fetching"`
	Processing int `json:"processing"`
	Publishing int `json:"publishing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

// StatusResponse is the body returned by GET /status/{batch}/{chunk}.
type StatusResponse struct {
	Status    string         `json:"status"`
	Phase     Phase          `json:"phase,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	Progress  StatusProgress `json:"progress"`
}

// ProcessingConfig tells the orchestrator how to treat a new PI entity.
// Reorganize and OCR stay off so freshly created groups are not fed
// straight back into this service.
type ProcessingConfig struct {
	OCR        bool `json:"ocr"`
	Reorganize bool `json:"reorganize"`
	Pinax      bool `json:"pinax"`
}

// NewPI describes a child entity created during publication.
type NewPI struct {
	ID               string           `json:"id"`
	ParentID         string           `json:"parent_id"`
	Children         []string         `json:"children"`
	ProcessingConfig ProcessingConfig `json:"processing_config"`
}

// CallbackResult is the per-item section of the callback payload.
type CallbackResult struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"` // success | error
	NewTip        string         `json:"new_tip,omitempty"`
	NewVersion    int            `json:"new_version,omitempty"`
	Error         string         `json:"error,omitempty"`
	GroupsCreated []CreatedGroup `json:"groups_created,omitempty"`
}

// CallbackSummary aggregates batch-level counters.
type CallbackSummary struct {
	Total            int   `json:"total"`
	Succeeded        int   `json:"succeeded"`
	Failed           int   `json:"failed"`
	ProcessingTimeMS int64 `json:"processing_time_ms"`
}

// CallbackPayload is POSTed once per batch to the orchestrator.
type CallbackPayload struct {
	BatchID string           `json:"batch_id"`
	ChunkID string           `json:"chunk_id"`
	Status  string           `json:"status"` // success | partial | error
	Results []CallbackResult `json:"results"`
	NewPIs  []NewPI          `json:"new_pis,omitempty"`
	Summary CallbackSummary  `json:"summary"`
	Error   string           `json:"error,omitempty"`
}
