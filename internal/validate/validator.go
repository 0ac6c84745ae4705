/**
 * CONTEXT:   Pattern validation, safety gating and score adjustment
 * INPUT:     Raw Patterns from the three miners
 * OUTPUT:    Accepted patterns with adjusted scores and recommendation tiers, plus rejections
 * BUSINESS:  The last line of defense before a pattern reaches an automation suggestion
 * CHANGE:    Initial port of pattern_validator.py's anti-pattern/safety/breadth cascade
 * RISK:      High - a missed safety veto could suggest unlocking a door on weak confidence
 */

package validate

import (
	"strings"

	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/pkg/logger"
)

// RejectionReason identifies which rule rejected a pattern (spec.md §4.8).
type RejectionReason string

const (
	RejectAntiPattern RejectionReason = "anti_pattern"
	RejectSafety      RejectionReason = "safety_check"
	RejectTooBroad    RejectionReason = "too_broad"
	RejectTooSpecific RejectionReason = "too_specific"
	RejectLowScore    RejectionReason = "low_score"
)

var forbiddenSubstrings = []string{"unavailable", "unknown", "automations.", "script."}

const safetyConfidenceFloor = 0.90

// Validator applies spec.md §4.8's cascade to raw miner output.
type Validator struct {
	safetyEntities      map[string]bool
	existingAutomations []string
	log                 *logger.DefaultLogger
}

// New builds a Validator. safetyEntities supplements the built-in
// lock./garage/door predicate; existingAutomations is the set of
// automation names checked for the advisory conflict_warning flag.
func New(safetyEntities, existingAutomations []string, log *logger.DefaultLogger) *Validator {
	set := make(map[string]bool, len(safetyEntities))
	for _, e := range safetyEntities {
		set[e] = true
	}
	return &Validator{safetyEntities: set, existingAutomations: existingAutomations, log: log}
}

// Result pairs a validated pattern with its outcome.
type Result struct {
	Pattern  model.Pattern
	Accepted bool
	Reason   RejectionReason
}

// Validate runs every candidate through the cascade in order, returning
// one Result per input pattern.
func (v *Validator) Validate(patterns []model.Pattern) []Result {
	out := make([]Result, 0, len(patterns))
	accepted, rejected := 0, 0

	for _, p := range patterns {
		res := v.validateOne(p)
		out = append(out, res)
		if res.Accepted {
			accepted++
		} else {
			rejected++
		}
	}

	if v.log != nil {
		v.log.Info("validation complete", "accepted", accepted, "rejected", rejected)
	}

	return out
}

func (v *Validator) validateOne(p model.Pattern) Result {
	if v.isAntiPattern(p) {
		return Result{Pattern: p, Accepted: false, Reason: RejectAntiPattern}
	}

	if v.isUnsafe(p) {
		return Result{Pattern: p, Accepted: false, Reason: RejectSafety}
	}

	if reason, rejected := v.checkBreadth(p); rejected {
		return Result{Pattern: p, Accepted: false, Reason: reason}
	}

	adjusted := v.adjustScore(p)
	if adjusted < 0.50 {
		p.Metrics.PatternScore = adjusted
		return Result{Pattern: p, Accepted: false, Reason: RejectLowScore}
	}
	p.Metrics.PatternScore = adjusted
	p.Provenance.Recommendation = tierFor(adjusted)
	p.Provenance.ConflictWarning = v.hasConflict(p)

	return Result{Pattern: p, Accepted: true}
}

// isAntiPattern implements spec.md §4.8.1.
func (v *Validator) isAntiPattern(p model.Pattern) bool {
	for _, t := range p.Triggers {
		if containsForbidden(t.EntityID) || containsForbidden(t.State) {
			return true
		}
	}
	for _, e := range p.Action.Entities() {
		if containsForbidden(e) {
			return true
		}
	}
	if p.Action.Kind == model.ActionSingle && containsForbidden(p.Action.State) {
		return true
	}
	for _, s := range p.Action.Steps {
		if containsForbidden(s.State) {
			return true
		}
	}

	triggerEntities := p.TriggerEntities()
	for _, e := range p.Action.Entities() {
		if _, ok := triggerEntities[e]; ok {
			return true
		}
	}

	return false
}

func containsForbidden(s string) bool {
	for _, f := range forbiddenSubstrings {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// isUnsafe implements spec.md §4.8.2: physical-security entities require
// confidence >= 0.90.
func (v *Validator) isUnsafe(p model.Pattern) bool {
	for _, e := range p.Action.Entities() {
		if v.isSafetyEntity(e) && p.Metrics.Confidence < safetyConfidenceFloor {
			return true
		}
	}
	return false
}

func (v *Validator) isSafetyEntity(entityID string) bool {
	if v.safetyEntities[entityID] {
		return true
	}
	if strings.HasPrefix(entityID, "lock.") {
		return true
	}
	if strings.Contains(entityID, "garage") || strings.Contains(entityID, "door") {
		return true
	}
	return false
}

// checkBreadth implements spec.md §4.8.3.
func (v *Validator) checkBreadth(p model.Pattern) (RejectionReason, bool) {
	if p.Metrics.Support > 0.40 {
		return RejectTooBroad, true
	}
	if p.Metrics.Support < 0.02 && p.Provenance.OccurrenceCount < 3 {
		return RejectTooSpecific, true
	}
	return "", false
}

// adjustScore implements spec.md §4.8.4.
func (v *Validator) adjustScore(p model.Pattern) float64 {
	score := p.Metrics.PatternScore

	if len(p.Triggers) <= 2 {
		score += 0.05
	}
	if p.Metrics.Conviction != nil && *p.Metrics.Conviction < 1.5 {
		score -= 0.10
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// tierFor implements spec.md §4.8.6.
func tierFor(score float64) model.Recommendation {
	switch {
	case score >= 0.85:
		return model.RecommendAutoSuggest
	case score >= 0.70:
		return model.RecommendSuggest
	default:
		return model.RecommendReview
	}
}

// hasConflict implements spec.md §4.8.7: advisory only, never a gate
// (DESIGN NOTES §9 (c)).
func (v *Validator) hasConflict(p model.Pattern) bool {
	for _, e := range p.Action.Entities() {
		_, local := model.SplitEntityID(e)
		if local == "" {
			continue
		}
		for _, name := range v.existingAutomations {
			if strings.Contains(strings.ToLower(name), strings.ToLower(local)) {
				return true
			}
		}
	}
	return false
}
