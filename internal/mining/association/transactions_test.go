package association

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha-autopilot/miner/internal/model"
)

func mkEvent(entity, state string, ts float64) model.EnrichedEvent {
	return model.EnrichedEvent{
		StateChange: model.StateChange{EntityID: entity, NewState: state, Timestamp: ts},
		Date:        "2026-01-01",
	}
}

func TestBuildTransactionsRequiresTwoEventsPerWindow(t *testing.T) {
	events := []model.EnrichedEvent{mkEvent("light.a", "on", 0)}
	windows := BuildTransactions(events, 900)
	assert.Empty(t, windows, "a single-event window must not be materialised")
}

func TestBuildTransactionsOverlapGuaranteesAdjacentPair(t *testing.T) {
	events := []model.EnrichedEvent{
		mkEvent("light.a", "on", 0),
		mkEvent("light.b", "on", 100),
		mkEvent("light.c", "on", 200),
		mkEvent("light.d", "on", 300),
	}
	windows := BuildTransactions(events, 900)
	require.NotEmpty(t, windows)

	// Every adjacent pair of events must co-occur in at least one window.
	for i := 0; i < len(events)-1; i++ {
		a, b := events[i].Item(), events[i+1].Item()
		together := false
		for _, w := range windows {
			set := w.ItemSet()
			_, hasA := set[a]
			_, hasB := set[b]
			if hasA && hasB {
				together = true
				break
			}
		}
		assert.True(t, together, "adjacent pair %q/%q never shares a window", a, b)
	}
}

func TestBuildTransactionsDedupesRepeatedItems(t *testing.T) {
	events := []model.EnrichedEvent{
		mkEvent("light.a", "on", 0),
		mkEvent("light.a", "off", 1),
		mkEvent("light.a", "on", 2),
	}
	windows := BuildTransactions(events, 900)
	require.NotEmpty(t, windows)
	seen := map[string]int{}
	for _, item := range windows[0].Items {
		seen[item]++
	}
	for item, count := range seen {
		assert.LessOrEqual(t, count, 1, "item %q appeared more than once in a single window's item set", item)
	}
}
