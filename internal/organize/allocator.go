// Package organize implements the LLM-backed grouping pipeline: budget
// allocation, prompt construction, response reconciliation and the
// single-request service that ties them together.
package organize

import (
	"log/slog"

	"github.com/pinaxlabs/organizer/types"
)

// BudgetItem is one file's content measured in estimated tokens.
type BudgetItem struct {
	Name   string
	Tokens int
}

// AllocationResult maps item names to their allocated token budgets and
// reports how the deficit was distributed.
type AllocationResult struct {
	Allocations map[string]float64
	Stats       types.TruncationStats
}

// AllocateBudget distributes target tokens across items using a
// progressive tax: when the total exceeds the target, items below the
// average-deficit threshold are protected at full size and the excess
// is taxed from large items proportionally. When protecting the small
// items would alone exceed the target, every item is taxed
// proportionally instead (fallback mode).
//
// Guarantees for any input: allocations sum to target (within float
// rounding) whenever a deficit exists, every allocation stays within
// [0, original], and equal inputs receive equal allocations.
func AllocateBudget(items []BudgetItem, target int) *AllocationResult {
	result := &AllocationResult{
		Allocations: make(map[string]float64, len(items)),
	}

	total := 0
	for _, it := range items {
		total += it.Tokens
	}
	deficit := total - target

	result.Stats = types.TruncationStats{
		TotalOriginalTokens: total,
		TargetTokens:        target,
	}

	if deficit <= 0 || len(items) == 0 {
		for _, it := range items {
			result.Allocations[it.Name] = float64(it.Tokens)
		}
		return result
	}

	result.Stats.Applied = true
	result.Stats.Deficit = deficit

	avg := float64(deficit) / float64(len(items))
	var below, above []BudgetItem
	sumBelow, sumAbove := 0, 0
	for _, it := range items {
		if float64(it.Tokens) < avg {
			below = append(below, it)
			sumBelow += it.Tokens
		} else {
			above = append(above, it)
			sumAbove += it.Tokens
		}
	}

	if sumBelow <= target && len(above) > 0 {
		// Protection mode: small files survive intact; the deficit
		// comes out of large files in proportion to their size.
		for _, it := range below {
			result.Allocations[it.Name] = float64(it.Tokens)
		}
		for _, it := range above {
			tax := float64(it.Tokens) / float64(sumAbove) * float64(deficit)
			result.Allocations[it.Name] = max(0, float64(it.Tokens)-tax)
		}
		result.Stats.ProtectionModeUsed = true
		result.Stats.ProtectedCount = len(below)
	} else {
		// Fallback mode: protection is infeasible, tax everyone.
		for _, it := range items {
			tax := float64(it.Tokens) / float64(total) * float64(deficit)
			result.Allocations[it.Name] = max(0, float64(it.Tokens)-tax)
		}
	}

	for _, it := range items {
		if result.Allocations[it.Name] < float64(it.Tokens) {
			result.Stats.TruncatedCount++
		}
	}

	slog.Debug("budget allocation complete",
		"items", len(items),
		"totalTokens", total,
		"targetTokens", target,
		"deficit", deficit,
		"protectionMode", result.Stats.ProtectionModeUsed,
		"protected", result.Stats.ProtectedCount,
		"truncated", result.Stats.TruncatedCount,
	)

	return result
}
