/**
 * CONTEXT:   Time-of-day and solar-position clustering
 * INPUT:     Enriched event stream
 * OUTPUT:    Scored "temporal" Patterns (fixed-clock schedules and solar correlations)
 * BUSINESS:  Captures routines neither co-occurrence nor ordering mining can see
 * CHANGE:    Initial port of temporal_analyzer.py's schedule and solar clustering
 * RISK:      Low - worst case is a missed schedule, never a false actuation
 */

package temporal

import (
	"fmt"
	"sort"

	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/internal/stats"
	"github.com/ha-autopilot/miner/pkg/logger"
)

var targetStates = map[string]bool{
	"on": true, "off": true, "open": true, "closed": true,
	"locked": true, "unlocked": true,
}

const (
	minScheduleCount     = 10
	maxCoefficientOfVar  = 0.3
	defaultToleranceSecs = 900.0
	minSolarCount        = 10
	minSolarConfidence   = 0.70
)

// Miner discovers temporal patterns per spec.md §4.7.
type Miner struct {
	log *logger.DefaultLogger
}

// New builds a Miner.
func New(log *logger.DefaultLogger) *Miner {
	return &Miner{log: log}
}

// Mine clusters events by (entity, target_state), looking for a fixed
// daily schedule and a solar-position correlation for each group.
func (m *Miner) Mine(events []model.EnrichedEvent, now float64) []model.Pattern {
	groups := groupByEntityState(events)

	var patterns []model.Pattern
	for key, group := range groups {
		if p, ok := scheduleCluster(key, group, now); ok {
			patterns = append(patterns, p)
		}
		if p, ok := solarCluster(key, group, now); ok {
			patterns = append(patterns, p)
		}
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Metrics.PatternScore > patterns[j].Metrics.PatternScore
	})

	if m.log != nil {
		m.log.Info("temporal mining complete", "groups", len(groups), "patterns", len(patterns))
	}

	return patterns
}

type entityState struct {
	entityID string
	state    string
}

func groupByEntityState(events []model.EnrichedEvent) map[entityState][]model.EnrichedEvent {
	out := make(map[entityState][]model.EnrichedEvent)
	for _, e := range events {
		if !targetStates[e.NewState] {
			continue
		}
		key := entityState{entityID: e.EntityID, state: e.NewState}
		out[key] = append(out[key], e)
	}
	return out
}

// secondsOfDay returns the time-of-day offset in seconds for an event.
func secondsOfDay(e model.EnrichedEvent) float64 {
	t := e.Time()
	return float64(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// scheduleCluster implements spec.md §4.7's schedule clustering.
func scheduleCluster(key entityState, group []model.EnrichedEvent, now float64) (model.Pattern, bool) {
	if len(group) < minScheduleCount {
		return model.Pattern{}, false
	}

	offsets := make([]float64, len(group))
	for i, e := range group {
		offsets[i] = secondsOfDay(e)
	}

	mu := stats.Mean(offsets)
	sigma := stats.StdDev(offsets)

	if mu == 0 {
		return model.Pattern{}, false
	}
	cv := sigma / mu

	if cv >= maxCoefficientOfVar || sigma >= defaultToleranceSecs {
		return model.Pattern{}, false
	}

	confidence := 1 - cv
	if confidence < 0 {
		confidence = 0
	}

	countScore := float64(len(group)) / 30
	if countScore > 1 {
		countScore = 1
	}
	score := 0.60*confidence + 0.40*countScore

	toleranceMinutes := int(sigma / 60)
	typicalTime := fmt.Sprintf("%02d:%02d", int(mu)/3600, (int(mu)%3600)/60)

	action := model.SingleAction(key.entityID, key.state, model.ServiceFor(key.entityID, key.state))

	p := model.Pattern{
		Kind:     model.PatternTemporal,
		Triggers: []model.Trigger{{EntityID: key.entityID, State: key.state, Context: "schedule"}},
		Action:   action,
		Metrics: model.Metrics{
			Confidence:   confidence,
			Support:      countScore,
			PatternScore: score,
		},
		Provenance: model.Provenance{
			FirstSeen:       now,
			LastSeen:        now,
			OccurrenceCount: len(group),
			Recommendation:  model.RecommendReview,
		},
		Description: fmt.Sprintf("%s typically reaches %s at %s (±%d min)", key.entityID, key.state, typicalTime, toleranceMinutes),
	}
	p.Provenance.PatternHash = p.Hash()
	return p, true
}

// solarCluster implements spec.md §4.7's solar clustering: partition by
// (sun_position, new_state), confidence = count(sun,state)/count(state
// across all sun-annotated events).
func solarCluster(key entityState, group []model.EnrichedEvent, now float64) (model.Pattern, bool) {
	bySun := make(map[string]int)
	totalAnnotated := 0

	for _, e := range group {
		if e.SunPosition == nil {
			continue
		}
		bySun[*e.SunPosition]++
		totalAnnotated++
	}

	if totalAnnotated == 0 {
		return model.Pattern{}, false
	}

	var bestSun string
	bestCount := 0
	for sun, count := range bySun {
		if count > bestCount {
			bestSun = sun
			bestCount = count
		}
	}

	if bestCount < minSolarCount {
		return model.Pattern{}, false
	}

	confidence := float64(bestCount) / float64(totalAnnotated)
	if confidence < minSolarConfidence {
		return model.Pattern{}, false
	}

	countScore := float64(bestCount) / 30
	if countScore > 1 {
		countScore = 1
	}
	score := 0.60*confidence + 0.40*countScore

	action := model.SingleAction(key.entityID, key.state, model.ServiceFor(key.entityID, key.state))

	p := model.Pattern{
		Kind:     model.PatternTemporal,
		Triggers: []model.Trigger{{EntityID: "sun.sun", State: bestSun, Context: "solar"}},
		Action:   action,
		Metrics: model.Metrics{
			Confidence:   confidence,
			Support:      countScore,
			PatternScore: score,
		},
		Provenance: model.Provenance{
			FirstSeen:       now,
			LastSeen:        now,
			OccurrenceCount: bestCount,
			Recommendation:  model.RecommendReview,
		},
		Description: fmt.Sprintf("%s reaches %s while sun is %s (%d/%d occurrences)", key.entityID, key.state, bestSun, bestCount, totalAnnotated),
	}
	p.Provenance.PatternHash = p.Hash()
	return p, true
}
