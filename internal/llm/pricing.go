package llm

// Pricing holds per-1M-token USD prices for the configured model.
// Prices come from configuration rather than a baked-in table because
// the endpoint is provider-agnostic.
type Pricing struct {
	InputPer1M  float64 // $ per 1M input tokens
	OutputPer1M float64 // $ per 1M output tokens
}

// Cost calculates cost in USD for token usage. Unknown pricing (zero
// values) yields 0.
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * p.InputPer1M
	outputCost := float64(outputTokens) / 1_000_000 * p.OutputPer1M
	return inputCost + outputCost
}
