package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha-autopilot/miner/internal/model"
)

func baseAssociationPattern(confidence float64) model.Pattern {
	p := model.Pattern{
		Kind:     model.PatternAssociation,
		Triggers: []model.Trigger{{EntityID: "person.alice", State: "home"}},
		Action:   model.SingleAction("lock.front_door", "unlocked", "unlock"),
		Metrics: model.Metrics{
			Confidence:   confidence,
			Support:      0.10,
			PatternScore: 0.80,
		},
		Provenance: model.Provenance{OccurrenceCount: 20},
	}
	p.Provenance.PatternHash = p.Hash()
	return p
}

// TestSafetyVeto is spec.md boundary scenario #6: a lock.* action at
// confidence 0.82 is rejected, the same rule at 0.91 is accepted.
func TestSafetyVeto(t *testing.T) {
	v := New(nil, nil, nil)

	rejected := v.Validate([]model.Pattern{baseAssociationPattern(0.82)})
	assert.False(t, rejected[0].Accepted, "lock action at confidence 0.82 should be rejected by the safety check")
	assert.Equal(t, RejectSafety, rejected[0].Reason)

	accepted := v.Validate([]model.Pattern{baseAssociationPattern(0.91)})
	require.True(t, accepted[0].Accepted, "rejected for %q", accepted[0].Reason)
}

func TestAntiPatternCircularAction(t *testing.T) {
	p := model.Pattern{
		Triggers: []model.Trigger{{EntityID: "light.hall", State: "on"}},
		Action:   model.SingleAction("light.hall", "off", "turn_off"),
		Metrics:  model.Metrics{Confidence: 0.95, Support: 0.1, PatternScore: 0.9},
	}
	v := New(nil, nil, nil)
	results := v.Validate([]model.Pattern{p})
	assert.False(t, results[0].Accepted, "action entity appearing among triggers must be rejected")
	assert.Equal(t, RejectAntiPattern, results[0].Reason)
}

func TestBreadthTooBroadAndTooSpecific(t *testing.T) {
	v := New(nil, nil, nil)

	broad := model.Pattern{
		Triggers: []model.Trigger{{EntityID: "person.alice", State: "home"}},
		Action:   model.SingleAction("light.hall", "on", "turn_on"),
		Metrics:  model.Metrics{Confidence: 0.9, Support: 0.5, PatternScore: 0.9},
	}
	res := v.Validate([]model.Pattern{broad})
	assert.False(t, res[0].Accepted, "support > 0.40 must be rejected as too_broad")
	assert.Equal(t, RejectTooBroad, res[0].Reason)

	specific := model.Pattern{
		Triggers:   []model.Trigger{{EntityID: "person.alice", State: "home"}},
		Action:     model.SingleAction("light.hall", "on", "turn_on"),
		Metrics:    model.Metrics{Confidence: 0.9, Support: 0.01, PatternScore: 0.9},
		Provenance: model.Provenance{OccurrenceCount: 1},
	}
	res = v.Validate([]model.Pattern{specific})
	assert.False(t, res[0].Accepted, "support < 0.02 with occurrence_count < 3 must be rejected as too_specific")
	assert.Equal(t, RejectTooSpecific, res[0].Reason)
}

func TestScoreAdjustmentsAndRecommendationTier(t *testing.T) {
	v := New(nil, nil, nil)

	p := model.Pattern{
		Triggers: []model.Trigger{{EntityID: "person.alice", State: "home"}},
		Action:   model.SingleAction("light.hall", "on", "turn_on"),
		Metrics:  model.Metrics{Confidence: 0.9, Support: 0.1, PatternScore: 0.80},
	}
	res := v.Validate([]model.Pattern{p})
	require.True(t, res[0].Accepted, "rejected for %q", res[0].Reason)
	// 0.80 + 0.05 (<=2 triggers) = 0.85 -> auto_suggest tier.
	assert.InDelta(t, 0.85, res[0].Pattern.Metrics.PatternScore, 1e-9)
	assert.Equal(t, model.RecommendAutoSuggest, res[0].Pattern.Provenance.Recommendation)
}

func TestLowScoreRejected(t *testing.T) {
	v := New(nil, nil, nil)
	p := model.Pattern{
		Triggers: []model.Trigger{{EntityID: "a.x", State: "on"}, {EntityID: "b.y", State: "on"}, {EntityID: "c.z", State: "on"}},
		Action:   model.SingleAction("light.hall", "on", "turn_on"),
		Metrics:  model.Metrics{Confidence: 0.9, Support: 0.1, PatternScore: 0.40},
	}
	res := v.Validate([]model.Pattern{p})
	assert.False(t, res[0].Accepted, "score below 0.50 after adjustment must be rejected")
	assert.Equal(t, RejectLowScore, res[0].Reason)
}

func TestConflictWarningIsAdvisoryOnly(t *testing.T) {
	v := New(nil, []string{"legacy_front_door_light_automation"}, nil)
	p := model.Pattern{
		Triggers: []model.Trigger{{EntityID: "person.alice", State: "home"}},
		Action:   model.SingleAction("light.front_door", "on", "turn_on"),
		Metrics:  model.Metrics{Confidence: 0.9, Support: 0.1, PatternScore: 0.80},
	}
	res := v.Validate([]model.Pattern{p})
	require.True(t, res[0].Accepted, "conflict_warning must never reject a pattern, got rejection %q", res[0].Reason)
	assert.True(t, res[0].Pattern.Provenance.ConflictWarning)
}
