// Package derive holds the pure, idempotent functions that turn raw event
// streams into session/project rollups, costs, summaries, heatmaps, and
// health scores (spec.md §4.3). Nothing here touches the store or the
// network; callers fetch rows and pass them in.
package derive

import "sort"

// Median is the middle value for odd cardinalities and the arithmetic mean
// of the two middle values otherwise; on empty input it returns 0 (spec.md
// §4.3, verified against the seed cases in §8: median([1,2,3,4,5])==3,
// median([1,2,3,4])==2.5, median([])==0).
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Average returns the arithmetic mean, or 0 on empty input.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Sign returns -1, 0, or 1 matching the sign of diff (spec.md §4.3 health
// trend).
func Sign(diff float64) int {
	switch {
	case diff > 0:
		return 1
	case diff < 0:
		return -1
	default:
		return 0
	}
}
