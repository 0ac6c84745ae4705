package association

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAssociationRuleRejectedOnLift is spec.md boundary scenario #5: 200
// transactions, 140 contain both items, 160 contain the antecedent alone,
// 150 contain the consequent alone. support=0.70, confidence=0.875,
// lift=1.167 -- rejected because lift < 1.2.
func TestAssociationRuleRejectedOnLift(t *testing.T) {
	itemsets := []Itemset{
		{Items: []string{"person.alice:home"}, Count: 160},
		{Items: []string{"light.hall:on"}, Count: 150},
		{Items: []string{"person.alice:home", "light.hall:on"}, Count: 140},
	}
	freq := ItemsetFrequencyIndex(itemsets)

	rules := GenerateRules(itemsets, freq, 200)
	assert.Empty(t, rules, "expected no rules to survive the lift floor")
}

func TestGenerateRulesAcceptsStrongRule(t *testing.T) {
	// 200 transactions, antecedent in 50, both in 45: support=0.225,
	// confidence=0.9, supportB = 50/200 = 0.25, lift=3.6, conviction high.
	itemsets := []Itemset{
		{Items: []string{"person.alice:home"}, Count: 50},
		{Items: []string{"light.hall:on"}, Count: 50},
		{Items: []string{"person.alice:home", "light.hall:on"}, Count: 45},
	}
	freq := ItemsetFrequencyIndex(itemsets)

	rules := GenerateRules(itemsets, freq, 200)
	require.NotEmpty(t, rules)
	for _, r := range rules {
		assert.GreaterOrEqual(t, r.Confidence, minConfidence)
		assert.GreaterOrEqual(t, r.Lift, minLift)
		assert.GreaterOrEqual(t, r.Conviction, minConviction)
	}
}

func TestCompositeScoreSimplicityPenalty(t *testing.T) {
	simple := Rule{Antecedent: []string{"a"}, Confidence: 0.9, Lift: 2, Conviction: 2, Support: 0.2}
	complex := Rule{Antecedent: []string{"a", "b", "c", "d"}, Confidence: 0.9, Lift: 2, Conviction: 2, Support: 0.2}

	assert.Greater(t, compositeScore(simple), compositeScore(complex),
		"a rule with > 3 antecedents should score lower via the simplicity term")
}

func TestPromoteRuleSuppressesClimateAction(t *testing.T) {
	r := Rule{
		Antecedent: []string{"person.alice:home"},
		Consequent: "climate.thermostat:heat",
		Confidence: 0.95, Lift: 3, Conviction: 3, Support: 0.3,
	}
	_, ok := PromoteRule(r, 0)
	assert.False(t, ok, "climate actions must never be auto-promoted (spec.md §4.5)")
}

func TestPromoteRuleSetsHashAndScore(t *testing.T) {
	r := Rule{
		Antecedent: []string{"person.alice:home"},
		Consequent: "light.hall:on",
		Confidence: 0.9, Lift: 2, Conviction: 2, Support: 0.3,
	}
	p, ok := PromoteRule(r, 100)
	require.True(t, ok)
	assert.NotEmpty(t, p.Provenance.PatternHash)
	assert.Greater(t, p.Metrics.PatternScore, 0.0)
	assert.LessOrEqual(t, p.Metrics.PatternScore, 1.0)
	assert.Equal(t, "light.hall", p.Action.EntityID)
	assert.Equal(t, "on", p.Action.State)
	if math.IsInf(*p.Metrics.Conviction, 0) {
		assert.NotZero(t, p.Metrics.PatternScore, "infinite conviction should not zero out the score")
	}
}
