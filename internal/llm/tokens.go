// Token estimation utilities for LLM context management.
package llm

// TruncationMarker is appended to content cut down to fit a budget.
// Exactly 16 bytes, so it always costs 4 estimated tokens.
const TruncationMarker = "\n... [truncated]"

// EstimateTokens provides a heuristic-based token count estimate for text.
// Uses the industry standard approximation of ~4 characters per token.
// This is intentionally simple and dependency-free for fast, predictable behavior.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	// Standard heuristic: 1 token ≈ 4 characters
	return (len(text) + 3) / 4 // Round up to be conservative
}

// EstimateBudgetChars converts a token budget to approximate character limit.
// Use this when you want to enforce a character-based limit from a token budget.
func EstimateBudgetChars(tokens int) int {
	return tokens * 4
}

// Truncate cuts text to fit within a token budget, appending
// TruncationMarker when anything was removed. The marker's own cost is
// reserved out of the budget so EstimateTokens(result) <= budget holds
// for every input. Text within budget is returned unchanged.
func Truncate(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(text) <= budget {
		return text
	}

	markerTokens := EstimateTokens(TruncationMarker)
	if budget <= markerTokens {
		// Not enough room for the marker itself; hard cut.
		return text[:EstimateBudgetChars(budget)]
	}

	keep := EstimateBudgetChars(budget - markerTokens)
	return text[:keep] + TruncationMarker
}
