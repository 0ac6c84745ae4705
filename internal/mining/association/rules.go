/**
 * CONTEXT:   Association rule generation and pattern promotion
 * INPUT:     Frequent itemsets plus their originating transactions
 * OUTPUT:    Patterns of kind "association" with confidence/lift/conviction
 * BUSINESS:  Only rules strong enough to trust automating are promoted
 * CHANGE:    Initial implementation of spec.md §4.5's rule generation and scoring
 * RISK:      Medium - service inference errors would suggest the wrong home-assistant call
 */

package association

import (
	"math"
	"sort"
	"strings"

	"github.com/ha-autopilot/miner/internal/model"
)

const (
	minConfidence = 0.75
	minLift       = 1.2
	minConviction = 1.5
)

// Rule is an antecedent-implies-consequent association with its metrics,
// prior to promotion into a Pattern.
type Rule struct {
	Antecedent []string
	Consequent string
	Support    float64
	Confidence float64
	Lift       float64
	Conviction float64
}

// GenerateRules derives rules from itemsets of size >= 2, for every
// non-empty proper subset A of an itemset S as antecedent and S\A as
// consequent, keeping only single-item consequents (spec.md §4.5's
// suppression of multi-item consequents, per DESIGN NOTES §9 (b)).
func GenerateRules(itemsets []Itemset, itemFreq map[string]int, totalTransactions int) []Rule {
	var rules []Rule
	total := float64(totalTransactions)

	for _, s := range itemsets {
		if len(s.Items) < 2 {
			continue
		}

		for _, consequent := range s.Items {
			antecedent := without(s.Items, consequent)
			if len(antecedent) == 0 {
				continue
			}

			freqA := itemFreq[key(antecedent)]
			if freqA == 0 {
				continue
			}
			freqB := itemFreq[key([]string{consequent})]
			if freqB == 0 {
				continue
			}

			support := float64(s.Count) / total
			confidence := float64(s.Count) / float64(freqA)
			supportB := float64(freqB) / total
			lift := confidence / supportB

			var conviction float64
			if confidence >= 1.0 {
				conviction = math.Inf(1)
			} else {
				conviction = (1 - supportB) / (1 - confidence)
			}

			if confidence < minConfidence || lift < minLift || conviction < minConviction {
				continue
			}

			rules = append(rules, Rule{
				Antecedent: antecedent,
				Consequent: consequent,
				Support:    support,
				Confidence: confidence,
				Lift:       lift,
				Conviction: conviction,
			})
		}
	}

	return rules
}

func without(items []string, target string) []string {
	out := make([]string, 0, len(items)-1)
	for _, it := range items {
		if it != target {
			out = append(out, it)
		}
	}
	return out
}

func key(items []string) string {
	cp := append([]string(nil), items...)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

// ItemsetFrequencyIndex indexes itemsets (including the singletons that
// MineFrequentItemsets returns) by a join of their sorted items, for rule generation's
// freq(A) / freq(B) lookups. Antecedent/consequent subsets that were not
// themselves frequent (support < min_support) are absent and the rule
// involving them is skipped -- this mirrors the standard FP-Growth rule
// derivation, which only considers subsets that survived the support
// floor.
func ItemsetFrequencyIndex(itemsets []Itemset) map[string]int {
	idx := make(map[string]int, len(itemsets))
	for _, s := range itemsets {
		sorted := append([]string(nil), s.Items...)
		idx[key(sorted)] = s.Count
	}
	return idx
}

// PromoteRule converts a Rule into a Pattern, inferring the action
// service and composing the score from spec.md §4.5.
func PromoteRule(r Rule, now float64) (model.Pattern, bool) {
	domain, _ := model.SplitEntityID(consequentEntity(r.Consequent))
	if domain == "climate" {
		return model.Pattern{}, false
	}

	entity, state := splitItem(r.Consequent)
	service := model.ServiceFor(entity, state)

	triggers := make([]model.Trigger, 0, len(r.Antecedent))
	for _, item := range r.Antecedent {
		ea, sa := splitItem(item)
		triggers = append(triggers, model.Trigger{EntityID: ea, State: sa})
	}

	action := model.SingleAction(entity, state, service)

	score := compositeScore(r)

	lift := r.Lift
	conviction := r.Conviction

	p := model.Pattern{
		Kind:     model.PatternAssociation,
		Triggers: triggers,
		Action:   action,
		Metrics: model.Metrics{
			Confidence:   r.Confidence,
			Support:      r.Support,
			Lift:         &lift,
			Conviction:   &conviction,
			PatternScore: score,
		},
		Provenance: model.Provenance{
			FirstSeen:       now,
			LastSeen:        now,
			OccurrenceCount: 1,
			Recommendation:  model.RecommendReview,
		},
	}
	p.Provenance.PatternHash = p.Hash()
	return p, true
}

func consequentEntity(item string) string {
	e, _ := splitItem(item)
	return e
}

func splitItem(item string) (entity, state string) {
	idx := strings.LastIndex(item, ":")
	if idx < 0 {
		return item, ""
	}
	return item[:idx], item[idx+1:]
}

// compositeScore implements spec.md §4.5's scoring formula.
func compositeScore(r Rule) float64 {
	simplicity := 1.0
	if len(r.Antecedent) > 3 {
		simplicity = 0.5
	}

	conv := r.Conviction
	if math.IsInf(conv, 1) {
		conv = 5
	}

	score := 0.30*r.Confidence +
		0.25*math.Min(r.Lift/5, 1) +
		0.20*math.Min(conv/5, 1) +
		0.15*r.Support +
		0.10*simplicity

	return score
}
