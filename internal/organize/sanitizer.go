package organize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pinaxlabs/organizer/internal/util"
	"github.com/pinaxlabs/organizer/types"
)

// SanitizeResult is a reconciled grouping: every name is an input name,
// every input name appears at least once, group names are safe.
type SanitizeResult struct {
	Groups      []types.Group
	Ungrouped   []string
	Description string
	Warnings    []string
}

// rawGroupingResponse mirrors the response schema with pointer fields
// so a missing key can be told apart from an empty value.
type rawGroupingResponse struct {
	Groups                    *[]rawGroup `json:"groups"`
	UngroupedFiles            *[]string   `json:"ungrouped_files"`
	ReorganizationDescription *string     `json:"reorganization_description"`
}

type rawGroup struct {
	GroupName   *string   `json:"group_name"`
	Description string    `json:"description"`
	Files       *[]string `json:"files"`
}

// ParseResponse parses the model output and enforces the structural
// contract. Structural violations are not recoverable; the caller
// retries or fails the request.
func ParseResponse(content string) (*types.LLMGroupingResponse, error) {
	raw, err := util.ExtractAndParseJSON[rawGroupingResponse](content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadResponse, err)
	}

	if raw.Groups == nil {
		return nil, fmt.Errorf("%w: missing required field %q", types.ErrBadResponse, "groups")
	}
	if raw.UngroupedFiles == nil {
		return nil, fmt.Errorf("%w: missing required field %q", types.ErrBadResponse, "ungrouped_files")
	}
	if raw.ReorganizationDescription == nil {
		return nil, fmt.Errorf("%w: missing required field %q", types.ErrBadResponse, "reorganization_description")
	}

	resp := &types.LLMGroupingResponse{
		UngroupedFiles:            *raw.UngroupedFiles,
		ReorganizationDescription: *raw.ReorganizationDescription,
	}
	for i, g := range *raw.Groups {
		if g.GroupName == nil || g.Files == nil {
			return nil, fmt.Errorf("%w: group %d missing required fields", types.ErrBadResponse, i)
		}
		if !types.IsFilesystemSafe(*g.GroupName) {
			return nil, fmt.Errorf("%w: group name %q is not filesystem-safe", types.ErrBadResponse, *g.GroupName)
		}
		if len(*g.Files) == 0 {
			return nil, fmt.Errorf("%w: group %q has no files", types.ErrBadResponse, *g.GroupName)
		}
		resp.Groups = append(resp.Groups, types.Group{
			GroupName:   *g.GroupName,
			Description: g.Description,
			Files:       *g.Files,
		})
	}
	return resp, nil
}

// Sanitize reconciles a structurally valid response against the
// authoritative input names. Omissions, hallucinated names and
// directory paths are repaired with warnings rather than failures.
func Sanitize(resp *types.LLMGroupingResponse, inputNames []string) *SanitizeResult {
	result := &SanitizeResult{
		Description: resp.ReorganizationDescription,
	}
	matcher := NewMatcher(inputNames)

	accounted := make(map[string]bool, len(inputNames))
	var extras []string

	resolve := func(names []string, where string) []string {
		var out []string
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if strings.HasSuffix(name, "/") {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("dropped directory path %q from %s", name, where))
				continue
			}
			resolved, conf := matcher.Match(name)
			if conf == MatchNone {
				extras = append(extras, name)
				continue
			}
			if conf != MatchExact {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("resolved %q to input file %q (%s match)", name, resolved, conf))
			}
			if seen[resolved] {
				continue
			}
			seen[resolved] = true
			accounted[resolved] = true
			out = append(out, resolved)
		}
		return out
	}

	for _, g := range resp.Groups {
		files := resolve(g.Files, fmt.Sprintf("group %q", g.GroupName))
		if len(files) == 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("dropped group %q: no valid files remained", g.GroupName))
			continue
		}
		result.Groups = append(result.Groups, types.Group{
			GroupName:   g.GroupName,
			Description: g.Description,
			Files:       files,
		})
	}

	result.Ungrouped = resolve(resp.UngroupedFiles, "ungrouped_files")

	if len(extras) > 0 {
		sort.Strings(extras)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("dropped %d name(s) not in the input set: %s", len(extras), strings.Join(extras, ", ")))
	}

	var missing []string
	for _, name := range inputNames {
		if !accounted[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		result.Ungrouped = append(result.Ungrouped, missing...)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("model omitted %d file(s), appended to ungrouped: %s", len(missing), strings.Join(missing, ", ")))
	}

	return result
}
