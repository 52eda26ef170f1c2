package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FileKind distinguishes textual documents from ref sidecars that
// describe a non-text artifact.
type FileKind string

const (
	FileKindText FileKind = "text"
	FileKindRef  FileKind = "ref"
)

// MaxRequestBytes caps the serialized size of an OrganizeRequest.
const MaxRequestBytes = 10 << 20 // 10 MiB

// FileInput is a single file handed to the organizer. Name is the
// authoritative key within a request; for ref files Content may carry
// extracted OCR text or be empty.
type FileInput struct {
	Name         string   `json:"name" validate:"required"`
	Kind         FileKind `json:"kind" validate:"required,oneof=text ref"`
	Content      string   `json:"content"`
	OriginalName string   `json:"original_name,omitempty"`
	Mime         string   `json:"mime,omitempty"`
	Size         int64    `json:"size,omitempty"`
}

// OrganizeRequest is the input to the single-request organize pipeline.
type OrganizeRequest struct {
	DirectoryPath    string      `json:"directory_path"`
	Files            []FileInput `json:"files" validate:"required,min=1,dive"`
	CustomPrompt     string      `json:"custom_prompt,omitempty"`
	StrategyGuidance string      `json:"strategy_guidance,omitempty"`
}

// Group is a named subset of input files. Overlap across groups is
// permitted and meaningful.
type Group struct {
	GroupName   string   `json:"group_name" validate:"required"`
	Description string   `json:"description"`
	Files       []string `json:"files" validate:"required,min=1"`
}

// TruncationStats records how the token budget was distributed across
// file contents for one request.
type TruncationStats struct {
	Applied             bool `json:"applied"`
	TotalOriginalTokens int  `json:"total_original_tokens"`
	TargetTokens        int  `json:"target_tokens"`
	Deficit             int  `json:"deficit"`
	ProtectionModeUsed  bool `json:"protection_mode_used"`
	ProtectedCount      int  `json:"protected_count"`
	TruncatedCount      int  `json:"truncated_count"`
}

// TokenUsage reports provider-side token accounting for one LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OrganizePlan is the sanitized output of the organize pipeline. After
// sanitization every input name appears in at least one group or in
// Ungrouped, and no name appears that was not in the input.
type OrganizePlan struct {
	Groups      []Group          `json:"groups"`
	Ungrouped   []string         `json:"ungrouped"`
	Description string           `json:"description"`
	Truncation  *TruncationStats `json:"truncation,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
	Tokens      *TokenUsage      `json:"tokens,omitempty"`
	Cost        float64          `json:"cost,omitempty"`
	Model       string           `json:"model,omitempty"`
}

// LLMGroupingResponse mirrors the JSON schema the model is constrained
// to. Structure is trusted (transport-level schema); content is not.
type LLMGroupingResponse struct {
	Groups                    []Group  `json:"groups"`
	UngroupedFiles            []string `json:"ungrouped_files"`
	ReorganizationDescription string   `json:"reorganization_description"`
}

// unsafeGroupNameChars are forbidden in group names so that groups can
// become directory names on any filesystem.
const unsafeGroupNameChars = `/\:*?"<>|`

// IsFilesystemSafe reports whether name is usable as a directory name.
func IsFilesystemSafe(name string) bool {
	return name != "" && !strings.ContainsAny(name, unsafeGroupNameChars)
}

// validate is a single instance; it caches struct info.
var validate = validator.New()

// ValidateOrganizeRequest checks structural tags plus the invariants
// tags cannot express: unique file names and the serialized size cap.
func ValidateOrganizeRequest(req *OrganizeRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	seen := make(map[string]struct{}, len(req.Files))
	for _, f := range req.Files {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: duplicate file name %q", ErrValidation, f.Name)
		}
		seen[f.Name] = struct{}{}
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(raw) > MaxRequestBytes {
		return fmt.Errorf("%w: request is %d bytes, limit is %d", ErrRequestTooLarge, len(raw), MaxRequestBytes)
	}
	return nil
}
