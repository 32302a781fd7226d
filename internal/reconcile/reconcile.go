// Package reconcile merges the live inbound store with separately fetched
// message history into one deduplicated, time-ordered feed.
package reconcile

import (
	"sort"

	"chatlink/internal/models"
)

// Merge returns the sorted, deduplicated union of historical and live
// messages. The live copy wins when both carry the same ID. Messages are
// ordered ascending by timestamp with ID as tie-break; messages whose
// timestamps do not parse sort after all resolvable ones, ordered among
// themselves by ID. The result is a derived view, recomputed per call.
func Merge(historical, live []models.Message) []models.Message {
	byID := make(map[string]models.Message, len(historical)+len(live))
	order := make([]string, 0, len(historical)+len(live))

	for _, m := range historical {
		if _, seen := byID[m.ID]; !seen {
			order = append(order, m.ID)
		}
		byID[m.ID] = m
	}
	for _, m := range live {
		if _, seen := byID[m.ID]; !seen {
			order = append(order, m.ID)
		}
		// Live copy wins on ID conflict
		byID[m.ID] = m
	}

	merged := make([]models.Message, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return less(merged[i], merged[j])
	})

	return merged
}

func less(a, b models.Message) bool {
	ta, okA := a.Time()
	tb, okB := b.Time()

	switch {
	case okA && okB:
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a.ID < b.ID
	case okA:
		// Unparseable timestamps sort last
		return true
	case okB:
		return false
	default:
		return a.ID < b.ID
	}
}
