package util

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled regexes for JSON repair (compiled once, used many times).
// These handle common LLM output errors; deeply broken structures are
// still rejected by the caller.
var (
	// Missing comma after a string value before a new key: "value" "key": -> "value", "key":
	missingCommaBeforeKeyRegex = regexp.MustCompile(`(")\s*\n\s*("[\w][^"]*"\s*:)`)

	// Missing comma after number/bool/null before a new key.
	missingCommaAfterValueRegex = regexp.MustCompile(`(\d|true|false|null)\s*\n\s*("[\w][^"]*"\s*:)`)

	// Missing comma after a closing brace/bracket before a new key.
	missingCommaAfterBraceRegex = regexp.MustCompile(`([}\]])\s*\n?\s*("[\w])`)

	// Trailing commas before a closing brace/bracket.
	trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)

	// Single-quoted object keys: {'key': -> {"key":
	singleQuoteKeyRegex = regexp.MustCompile(`([{,]\s*)'(\w+)'(\s*:)`)
)

// ExtractAndParseJSON extracts a JSON value from an LLM response and
// unmarshals it. Markdown fences and trailing prose are ignored; common
// LLM syntax errors are repaired before giving up.
func ExtractAndParseJSON[T any](response string) (T, error) {
	var result T

	cleaned := stripMarkdownFences(response)
	idx := strings.IndexAny(cleaned, "{[")
	if idx == -1 {
		return result, fmt.Errorf("no JSON start found in response")
	}

	// Decode a single JSON value and ignore anything after it.
	jsonPart := cleaned[idx:]
	if err := json.NewDecoder(strings.NewReader(jsonPart)).Decode(&result); err != nil {
		repaired := repairJSON(jsonPart)
		if repaired != jsonPart {
			if err2 := json.NewDecoder(strings.NewReader(repaired)).Decode(&result); err2 == nil {
				return result, nil
			}
		}
		return result, fmt.Errorf("parse JSON: %w", err)
	}
	return result, nil
}

func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl != -1 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end != -1 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}

// repairJSON fixes common JSON syntax errors from LLMs: literal control
// characters inside strings, missing commas, trailing commas, and
// single-quoted keys.
func repairJSON(input string) string {
	result := sanitizeControlChars(input)
	result = missingCommaBeforeKeyRegex.ReplaceAllString(result, `$1, $2`)
	result = missingCommaAfterValueRegex.ReplaceAllString(result, `$1, $2`)
	result = missingCommaAfterBraceRegex.ReplaceAllString(result, `$1, $2`)
	result = trailingCommaRegex.ReplaceAllString(result, `$1`)
	result = singleQuoteKeyRegex.ReplaceAllString(result, `$1"$2"$3`)
	return result
}

// sanitizeControlChars escapes literal control characters inside JSON
// strings. LLMs often emit raw tabs and newlines, which are invalid.
func sanitizeControlChars(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	inString := false
	escaped := false
	for i := 0; i < len(input); i++ {
		c := input[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			b.WriteByte(c)
			escaped = true
		case c == '"':
			inString = !inString
			b.WriteByte(c)
		case inString && c == '\n':
			b.WriteString(`\n`)
		case inString && c == '\t':
			b.WriteString(`\t`)
		case inString && c == '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
