package association

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/pkg/logger"
)

// TestMineInsufficientTransactions exercises the "< 10 transactions" floor
// (spec.md boundary scenario #2 consequence: a flap burst with no other
// co-occurring activity must not yield an association pattern).
func TestMineInsufficientTransactions(t *testing.T) {
	var events []model.EnrichedEvent
	for i := 0; i < 4; i++ {
		events = append(events, mkEvent("light.x", "on", float64(i)*10))
	}
	m := New(0.10, 0, logger.NewDefaultLogger("test", "error"))
	patterns := m.Mine(events, 0)
	assert.Empty(t, patterns)
}

func TestMineProducesAssociationPatterns(t *testing.T) {
	var events []model.EnrichedEvent
	ts := 0.0
	for i := 0; i < 30; i++ {
		events = append(events, mkEvent("person.alice", "home", ts))
		events = append(events, mkEvent("light.hall", "on", ts+5))
		ts += 1000
	}

	m := New(0.10, 900, logger.NewDefaultLogger("test", "error"))
	patterns := m.Mine(events, 1000)

	for _, p := range patterns {
		assert.Equal(t, model.PatternAssociation, p.Kind)
		assert.GreaterOrEqual(t, p.Metrics.Support, 0.0)
		assert.LessOrEqual(t, p.Metrics.Support, 1.0)
		assert.GreaterOrEqual(t, p.Metrics.Confidence, 0.0)
		assert.LessOrEqual(t, p.Metrics.Confidence, 1.0)

		triggerEntities := p.TriggerEntities()
		for _, e := range p.Action.Entities() {
			_, ok := triggerEntities[e]
			assert.False(t, ok, "action entity %q must not appear among trigger entities", e)
		}
	}
}
