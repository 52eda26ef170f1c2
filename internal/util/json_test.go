package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func TestExtractAndParseJSON_Plain(t *testing.T) {
	got, err := ExtractAndParseJSON[sample](`{"name": "a", "items": ["x"]}`)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, []string{"x"}, got.Items)
}

func TestExtractAndParseJSON_MarkdownFences(t *testing.T) {
	got, err := ExtractAndParseJSON[sample]("```json\n{\"name\": \"b\", \"items\": []}\n```")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)
}

func TestExtractAndParseJSON_LeadingAndTrailingProse(t *testing.T) {
	got, err := ExtractAndParseJSON[sample](`Here is the result: {"name": "c", "items": []} Hope that helps!`)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Name)
}

func TestExtractAndParseJSON_RepairsTrailingComma(t *testing.T) {
	got, err := ExtractAndParseJSON[sample](`{"name": "d", "items": ["x",],}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Items)
}

func TestExtractAndParseJSON_RepairsControlChars(t *testing.T) {
	got, err := ExtractAndParseJSON[sample]("{\"name\": \"line1\nline2\", \"items\": []}")
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", got.Name)
}

func TestExtractAndParseJSON_NoJSON(t *testing.T) {
	_, err := ExtractAndParseJSON[sample]("no structured data here")
	assert.Error(t, err)
}

func TestExtractAndParseJSON_Hopeless(t *testing.T) {
	_, err := ExtractAndParseJSON[sample](`{"name": [[[`)
	assert.Error(t, err)
}
