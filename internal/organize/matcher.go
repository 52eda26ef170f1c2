package organize

import (
	"regexp"
	"strings"
)

// MatchConfidence describes how a returned name was resolved to an
// input name. Ordered strongest to weakest.
type MatchConfidence string

const (
	MatchExact      MatchConfidence = "exact"
	MatchNormalized MatchConfidence = "normalized"
	MatchPrefix     MatchConfidence = "prefix"
	MatchToken      MatchConfidence = "token"
	MatchNone       MatchConfidence = "none"
)

// jaccardThreshold is the minimum token-set overlap for a token match.
const jaccardThreshold = 0.7

var (
	tokenSplitRegex = regexp.MustCompile(`[ _\-.]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// imageExtensions are stripped during normalization so that a returned
// name like "photo-2001" still resolves to "photo-2001.jpg.ref.json".
var imageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".tiff", ".tif", ".bmp", ".webp",
}

type matchEntry struct {
	original   string
	normalized string
	tokens     map[string]struct{}
}

// Matcher resolves names an LLM returns to the canonical input file
// names. Normalized forms and token sets are precomputed once per
// request. Safe for concurrent use after construction.
type Matcher struct {
	entries []matchEntry
	exact   map[string]struct{}
}

// NewMatcher builds a matcher over the canonical file names. Entry
// order is preserved so ties resolve to the first candidate.
func NewMatcher(names []string) *Matcher {
	m := &Matcher{
		entries: make([]matchEntry, 0, len(names)),
		exact:   make(map[string]struct{}, len(names)),
	}
	for _, name := range names {
		norm := normalizeFilename(name)
		m.entries = append(m.entries, matchEntry{
			original:   name,
			normalized: norm,
			tokens:     tokenSet(norm),
		})
		m.exact[name] = struct{}{}
	}
	return m
}

// Match resolves a returned name against the canonical set. The ladder
// runs strongest to weakest; within a rung the first candidate in input
// order wins.
func (m *Matcher) Match(returned string) (string, MatchConfidence) {
	if _, ok := m.exact[returned]; ok {
		return returned, MatchExact
	}

	norm := normalizeFilename(returned)

	for _, e := range m.entries {
		if e.normalized == norm {
			return e.original, MatchNormalized
		}
	}

	for _, e := range m.entries {
		if prefixMatch(norm, e.normalized) {
			return e.original, MatchPrefix
		}
	}

	rt := tokenSet(norm)
	best := -1
	bestScore := 0.0
	for i, e := range m.entries {
		if score := jaccard(rt, e.tokens); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= jaccardThreshold {
		return m.entries[best].original, MatchToken
	}

	return "", MatchNone
}

// normalizeFilename strips the ".ref.json" descriptor suffix and any
// trailing image extension, lowercases, and collapses whitespace.
func normalizeFilename(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimSuffix(s, ".ref.json")
	for _, ext := range imageExtensions {
		if strings.HasSuffix(s, ext) {
			s = strings.TrimSuffix(s, ext)
			break
		}
	}
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// prefixMatch reports whether one normalized name is a prefix of the
// other and the shorter covers at least 60% of the longer. Very short
// strings are excluded so "a" cannot claim "ab-cd-ef".
func prefixMatch(a, b string) bool {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) < 4 {
		return false
	}
	if float64(len(short)) < 0.6*float64(len(long)) {
		return false
	}
	return strings.HasPrefix(long, short)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenSplitRegex.Split(s, -1) {
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
