package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/pkg/logger"
)

func solarEvent(entity, state, sun string, ts float64) model.EnrichedEvent {
	s := sun
	return model.EnrichedEvent{
		StateChange: model.StateChange{EntityID: entity, NewState: state, Timestamp: ts},
		SunPosition: &s,
	}
}

// TestSunsetCorrelation is spec.md boundary scenario #3: 20 days of
// light.porch:on, 18 while below_horizon, 2 while above_horizon. A solar
// pattern should emerge with confidence 0.90 and score 0.78.
func TestSunsetCorrelation(t *testing.T) {
	var events []model.EnrichedEvent
	day := 0.0
	for i := 0; i < 18; i++ {
		events = append(events, solarEvent("light.porch", "on", "below_horizon", day))
		day += 86400
	}
	for i := 0; i < 2; i++ {
		events = append(events, solarEvent("light.porch", "on", "above_horizon", day))
		day += 86400
	}

	m := New(logger.NewDefaultLogger("test", "error"))
	patterns := m.Mine(events, 0)

	var solar *model.Pattern
	for i := range patterns {
		if patterns[i].Triggers[0].Context == "solar" {
			solar = &patterns[i]
		}
	}
	require.NotNil(t, solar, "expected a solar pattern among %d patterns", len(patterns))
	assert.InDelta(t, 0.90, solar.Metrics.Confidence, 1e-9)
	assert.InDelta(t, 0.78, solar.Metrics.PatternScore, 1e-6)
	// Recommendation tier is assigned by the Validator, not the miner
	// (spec.md §4.8.6); the raw pattern carries a placeholder tier.
}

// TestDeterministicDailySchedule is spec.md boundary scenario #4: 30 days
// of switch.coffee:on at exactly 07:00:00 -- sigma=0, confidence=1.0,
// score=1.0, tolerance_minutes=0.
func TestDeterministicDailySchedule(t *testing.T) {
	var events []model.EnrichedEvent
	base := time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)
	for day := 0; day < 30; day++ {
		ts := base.AddDate(0, 0, day)
		events = append(events, model.EnrichedEvent{
			StateChange: model.StateChange{EntityID: "switch.coffee", NewState: "on", Timestamp: float64(ts.Unix())},
		})
	}

	m := New(logger.NewDefaultLogger("test", "error"))
	patterns := m.Mine(events, 0)

	var schedule *model.Pattern
	for i := range patterns {
		if patterns[i].Triggers[0].Context == "schedule" {
			schedule = &patterns[i]
		}
	}
	require.NotNil(t, schedule, "expected a schedule pattern among %d patterns", len(patterns))
	assert.InDelta(t, 1.0, schedule.Metrics.Confidence, 1e-9)
	assert.InDelta(t, 1.0, schedule.Metrics.PatternScore, 1e-9)
}
