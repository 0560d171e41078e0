package derive

import (
	"time"

	"github.com/devpulse/server/internal/model"
)

// HeatmapCell is one (day, hour) activity bucket (spec.md §4.3).
type HeatmapCell struct {
	Day   string `json:"day"` // YYYY-MM-DD, local calendar
	Hour  int    `json:"hour"`
	Count int    `json:"count"`
}

// Heatmap is the per-(day,hour) event count grid plus its global max, used
// to normalize client-side color scales (spec.md §4.3, §6 GET
// /api/analytics/heatmap).
type Heatmap struct {
	Cells    []HeatmapCell `json:"cells"`
	MaxCount int           `json:"max_count"`
}

// BuildHeatmap buckets events (already narrowed to the requested project,
// if any) by local day and hour of their timestamp.
func BuildHeatmap(events []model.HookEvent, loc *time.Location) Heatmap {
	type key struct {
		day  string
		hour int
	}
	counts := make(map[key]int)
	var order []key

	for _, e := range events {
		t := time.UnixMilli(e.Timestamp).In(loc)
		k := key{day: t.Format("2006-01-02"), hour: t.Hour()}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}

	h := Heatmap{Cells: make([]HeatmapCell, 0, len(order))}
	for _, k := range order {
		c := counts[k]
		h.Cells = append(h.Cells, HeatmapCell{Day: k.day, Hour: k.hour, Count: c})
		if c > h.MaxCount {
			h.MaxCount = c
		}
	}
	return h
}
