package organize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinaxlabs/organizer/types"
)

func TestParseResponse_Valid(t *testing.T) {
	content := `{
		"groups": [{"group_name": "Letters", "description": "Correspondence", "files": ["a.txt"]}],
		"ungrouped_files": ["b.txt"],
		"reorganization_description": "Grouped correspondence."
	}`

	resp, err := ParseResponse(content)
	require.NoError(t, err)
	require.Len(t, resp.Groups, 1)
	assert.Equal(t, "Letters", resp.Groups[0].GroupName)
	assert.Equal(t, []string{"b.txt"}, resp.UngroupedFiles)
	assert.Equal(t, "Grouped correspondence.", resp.ReorganizationDescription)
}

func TestParseResponse_StripsMarkdownFences(t *testing.T) {
	content := "```json\n{\"groups\": [], \"ungrouped_files\": [], \"reorganization_description\": \"nothing\"}\n```"

	resp, err := ParseResponse(content)
	require.NoError(t, err)
	assert.Empty(t, resp.Groups)
}

func TestParseResponse_MissingFieldsFatal(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no groups", `{"ungrouped_files": [], "reorganization_description": "x"}`},
		{"no ungrouped", `{"groups": [], "reorganization_description": "x"}`},
		{"no description", `{"groups": [], "ungrouped_files": []}`},
		{"group without files", `{"groups": [{"group_name": "A"}], "ungrouped_files": [], "reorganization_description": "x"}`},
		{"not json", `the model apologizes instead of answering`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseResponse(tc.content)
			assert.True(t, errors.Is(err, types.ErrBadResponse), "got %v", err)
		})
	}
}

func TestParseResponse_UnsafeGroupNameFatal(t *testing.T) {
	content := `{
		"groups": [{"group_name": "a/b", "description": "", "files": ["a.txt"]}],
		"ungrouped_files": [],
		"reorganization_description": "x"
	}`

	_, err := ParseResponse(content)
	assert.ErrorIs(t, err, types.ErrBadResponse)
}

func TestParseResponse_EmptyGroupFatal(t *testing.T) {
	content := `{
		"groups": [{"group_name": "A", "description": "", "files": []}],
		"ungrouped_files": [],
		"reorganization_description": "x"
	}`

	_, err := ParseResponse(content)
	assert.ErrorIs(t, err, types.ErrBadResponse)
}

func TestSanitize_CleanResponsePassesThrough(t *testing.T) {
	inputs := []string{"a.txt", "b.txt", "c.txt"}
	resp := &types.LLMGroupingResponse{
		Groups: []types.Group{
			{GroupName: "Docs", Description: "d", Files: []string{"a.txt", "b.txt"}},
		},
		UngroupedFiles:            []string{"c.txt"},
		ReorganizationDescription: "done",
	}

	res := Sanitize(resp, inputs)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, []string{"a.txt", "b.txt"}, res.Groups[0].Files)
	assert.Equal(t, []string{"c.txt"}, res.Ungrouped)
}

func TestSanitize_RecoversOmissionAndDirectoryPath(t *testing.T) {
	inputs := []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"}
	resp := &types.LLMGroupingResponse{
		Groups: []types.Group{
			{GroupName: "Posts", Files: []string{"a.txt", "posts/", "b.txt"}},
			{GroupName: "Rest", Files: []string{"c.txt", "d.txt"}},
		},
		UngroupedFiles:            []string{},
		ReorganizationDescription: "x",
	}

	res := Sanitize(resp, inputs)

	// posts/ is dropped, e.txt lands in ungrouped, both with warnings.
	require.Len(t, res.Groups, 2)
	assert.Equal(t, []string{"a.txt", "b.txt"}, res.Groups[0].Files)
	assert.Equal(t, []string{"e.txt"}, res.Ungrouped)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "posts/")
	assert.Contains(t, res.Warnings[1], "e.txt")
}

func TestSanitize_FuzzyResolutionWarns(t *testing.T) {
	inputs := []string{"scan 2001.jpg.ref.json", "scan 2002.jpg.ref.json"}
	resp := &types.LLMGroupingResponse{
		Groups: []types.Group{
			{GroupName: "Scans", Files: []string{"scan 2001", "scan 2002"}},
		},
		UngroupedFiles:            []string{},
		ReorganizationDescription: "x",
	}

	res := Sanitize(resp, inputs)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, inputs, res.Groups[0].Files)
	assert.Empty(t, res.Ungrouped)
	// One resolution warning per fuzzy match, none about missing files.
	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.Contains(t, w, "resolved")
	}
}

func TestSanitize_DropsHallucinatedNames(t *testing.T) {
	inputs := []string{"a.txt"}
	resp := &types.LLMGroupingResponse{
		Groups: []types.Group{
			{GroupName: "G", Files: []string{"a.txt", "invented-file.pdf"}},
		},
		UngroupedFiles:            []string{"another-fake.doc"},
		ReorganizationDescription: "x",
	}

	res := Sanitize(resp, inputs)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, []string{"a.txt"}, res.Groups[0].Files)
	assert.Empty(t, res.Ungrouped)

	joined := ""
	for _, w := range res.Warnings {
		joined += w + "\n"
	}
	assert.Contains(t, joined, "invented-file.pdf")
	assert.Contains(t, joined, "another-fake.doc")
}

func TestSanitize_DropsEmptiedGroup(t *testing.T) {
	inputs := []string{"a.txt"}
	resp := &types.LLMGroupingResponse{
		Groups: []types.Group{
			{GroupName: "Ghost", Files: []string{"nothing-real/"}},
			{GroupName: "Real", Files: []string{"a.txt"}},
		},
		UngroupedFiles:            []string{},
		ReorganizationDescription: "x",
	}

	res := Sanitize(resp, inputs)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, "Real", res.Groups[0].GroupName)

	joined := ""
	for _, w := range res.Warnings {
		joined += w + "\n"
	}
	assert.Contains(t, joined, "Ghost")
}

func TestSanitize_DedupesWithinGroup(t *testing.T) {
	inputs := []string{"a.txt"}
	resp := &types.LLMGroupingResponse{
		Groups: []types.Group{
			{GroupName: "G", Files: []string{"a.txt", "a.txt"}},
		},
		UngroupedFiles:            []string{},
		ReorganizationDescription: "x",
	}

	res := Sanitize(resp, inputs)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, []string{"a.txt"}, res.Groups[0].Files)
}
