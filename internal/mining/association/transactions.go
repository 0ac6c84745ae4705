/**
 * CONTEXT:   Sliding-window transaction synthesis for association mining
 * INPUT:     Timestamp-ordered EnrichedEvent slices
 * OUTPUT:    Overlapping TransactionWindow values, each a bag of entity:state items
 * BUSINESS:  The 50% overlap guarantees adjacent events co-occur in at least one window
 * CHANGE:    Initial implementation of spec.md §4.5's transaction-building walk
 * RISK:      Low - a missed overlap only costs recall on borderline patterns
 */

package association

import (
	"math"

	"github.com/ha-autopilot/miner/internal/model"
)

// defaultWindowSeconds is the transaction window width W from spec.md §4.5.
const defaultWindowSeconds = 900.0

// BuildTransactions walks events (already timestamp-sorted) and emits
// overlapping windows of width windowSeconds. A window is kept only if it
// contains at least two events; the walk advances by
// max(1, floor(|events in window| * 0.5)) so every adjacent pair of events
// shares at least one window.
func BuildTransactions(events []model.EnrichedEvent, windowSeconds float64) []model.TransactionWindow {
	if windowSeconds <= 0 {
		windowSeconds = defaultWindowSeconds
	}

	var windows []model.TransactionWindow

	i := 0
	for i < len(events) {
		start := events[i].Timestamp
		end := start + windowSeconds

		j := i
		for j < len(events) && events[j].Timestamp < end {
			j++
		}
		members := events[i:j]

		if len(members) >= 2 {
			windows = append(windows, materialize(members, start, end))
		}

		advance := int(math.Floor(float64(len(members)) * 0.5))
		if advance < 1 {
			advance = 1
		}
		i += advance
	}

	return windows
}

func materialize(members []model.EnrichedEvent, start, end float64) model.TransactionWindow {
	items := make([]string, 0, len(members))
	seen := make(map[string]bool, len(members))
	var qualitySum float64

	for _, e := range members {
		item := e.Item()
		if !seen[item] {
			seen[item] = true
			items = append(items, item)
		}
		qualitySum += e.QualityScore
	}

	first := members[0]
	return model.TransactionWindow{
		Start:        start,
		End:          end,
		Items:        items,
		Members:      members,
		DayType:      first.DayType(),
		TimeBucket:   first.TimeBucket,
		QualityScore: qualitySum / float64(len(members)),
	}
}
