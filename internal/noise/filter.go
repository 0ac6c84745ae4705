/**
 * CONTEXT:   Noise reduction for enriched event streams
 * INPUT:     EnrichedEvent slices, grouped by entity
 * OUTPUT:    A filtered slice plus per-event quality markers
 * BUSINESS:  Flapping or low-activity entities would otherwise dominate mining
 * CHANGE:    Initial port of noise_filter.py's flap detection and quality scoring
 * RISK:      Low - over-filtering only costs recall, never introduces a false pattern
 */

package noise

import (
	"sort"

	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/internal/stats"
	"github.com/ha-autopilot/miner/pkg/logger"
)

const (
	defaultFlapThreshold       = 5
	defaultFlapWindowSeconds   = 60.0
	defaultMinEventsPerEntity  = 5
)

// flapPeriod is a merged [start, end] window during which an entity
// changed state at least flapThreshold times within flapWindow seconds.
type flapPeriod struct {
	start, end float64
}

// Filter applies spec.md §4.4's noise reduction: drops low-activity
// entities and unavailable-state transitions, and marks (without
// dropping) events that occurred during a flap burst.
type Filter struct {
	flapThreshold      int
	flapWindowSeconds  float64
	minEventsPerEntity int
	log                *logger.DefaultLogger
}

// New builds a Filter with the documented defaults.
func New(log *logger.DefaultLogger) *Filter {
	return &Filter{
		flapThreshold:      defaultFlapThreshold,
		flapWindowSeconds:  defaultFlapWindowSeconds,
		minEventsPerEntity: defaultMinEventsPerEntity,
		log:                log,
	}
}

// FilterEvents runs the two-pass filter described in spec.md §4.4: first
// pass computes per-entity flap periods and stats, second pass drops
// low-activity and unavailable-transition events and tags the rest.
func (f *Filter) FilterEvents(events []model.EnrichedEvent) []model.EnrichedEvent {
	byEntity := groupByEntity(events)

	flapPeriods := make(map[string][]flapPeriod, len(byEntity))
	uniqueStates := make(map[string]int, len(byEntity))
	for entityID, entityEvents := range byEntity {
		flapPeriods[entityID] = f.detectFlapping(entityEvents)
		uniqueStates[entityID] = countUniqueStates(entityEvents)
	}

	excluded := map[string]int{}
	out := make([]model.EnrichedEvent, 0, len(events))

	for _, e := range events {
		entityEvents := byEntity[e.EntityID]

		if len(entityEvents) < f.minEventsPerEntity {
			excluded["low_activity"]++
			continue
		}

		if model.UnavailableStates[e.PrevState] || model.UnavailableStates[e.NewState] {
			excluded["unavailable_transition"]++
			continue
		}

		e.DuringFlap = inFlapPeriod(e.Timestamp, flapPeriods[e.EntityID])
		e.QualityScore = f.calculateQuality(e, uniqueStates[e.EntityID])
		out = append(out, e)
	}

	if f.log != nil {
		f.log.Info("noise filter applied", "kept", len(out), "total", len(events))
		for reason, count := range excluded {
			f.log.Info("noise filter excluded", "reason", reason, "count", count)
		}
	}

	return out
}

func groupByEntity(events []model.EnrichedEvent) map[string][]model.EnrichedEvent {
	out := make(map[string][]model.EnrichedEvent)
	for _, e := range events {
		out[e.EntityID] = append(out[e.EntityID], e)
	}
	return out
}

func countUniqueStates(events []model.EnrichedEvent) int {
	seen := make(map[string]bool)
	for _, e := range events {
		seen[e.NewState] = true
	}
	return len(seen)
}

// detectFlapping finds (start, end) windows where flapThreshold or more
// changes occurred within flapWindowSeconds, merging overlapping windows.
// Grounded in noise_filter.py's sliding-window _detect_flapping.
func (f *Filter) detectFlapping(events []model.EnrichedEvent) []flapPeriod {
	if len(events) < f.flapThreshold {
		return nil
	}

	sorted := append([]model.EnrichedEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	var periods []flapPeriod
	windowStart := 0

	for i, e := range sorted {
		ts := e.Timestamp

		for windowStart < i && ts-sorted[windowStart].Timestamp > f.flapWindowSeconds {
			windowStart++
		}

		eventsInWindow := i - windowStart + 1
		if eventsInWindow >= f.flapThreshold {
			periodStart := sorted[windowStart].Timestamp
			periodEnd := ts

			if len(periods) > 0 && periods[len(periods)-1].end >= periodStart-f.flapWindowSeconds {
				periods[len(periods)-1].end = periodEnd
			} else {
				periods = append(periods, flapPeriod{start: periodStart, end: periodEnd})
			}
		}
	}

	return periods
}

func inFlapPeriod(ts float64, periods []flapPeriod) bool {
	for _, p := range periods {
		if ts >= p.start && ts <= p.end {
			return true
		}
	}
	return false
}

// calculateQuality scores an event 0.0-1.0, penalizing flap-period
// membership, low state diversity and very rapid re-triggering.
func (f *Filter) calculateQuality(e model.EnrichedEvent, uniqueStates int) float64 {
	score := 1.0

	if e.DuringFlap {
		score *= 0.3
	}
	if uniqueStates <= 2 {
		score *= 0.9
	}
	if e.SecondsSinceLastChange != nil && *e.SecondsSinceLastChange < 10 {
		score *= 0.7
	}

	return roundTo2(score)
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// EntityQualityReport is a supplemented feature (grounded in
// noise_filter.py's get_entity_report): per-entity flap/quality summary
// for manual tuning of custom include/exclude lists.
type EntityQualityReport struct {
	TotalEvents       int     `json:"total_events"`
	FlapPeriods       int     `json:"flap_periods"`
	EventsDuringFlaps int     `json:"events_during_flaps"`
	FlapPercentage    float64 `json:"flap_percentage"`
	UniqueStates      int     `json:"unique_states"`
	// ReliabilityScore is the Wilson 95% lower bound on the proportion of
	// this entity's events that were NOT during a flap period -- a
	// conservative "how much do we trust this entity's signal" estimate,
	// using the same proportion-confidence approach spec.md's DESIGN
	// NOTES call for elsewhere (see stats.WilsonLowerBound).
	ReliabilityScore float64 `json:"reliability_score"`
	Recommendation   string  `json:"recommendation"`
}

// EntityReport builds one EntityQualityReport per entity present in events.
func (f *Filter) EntityReport(events []model.EnrichedEvent) map[string]EntityQualityReport {
	byEntity := groupByEntity(events)
	report := make(map[string]EntityQualityReport, len(byEntity))

	for entityID, entityEvents := range byEntity {
		periods := f.detectFlapping(entityEvents)

		flapCount := 0
		for _, e := range entityEvents {
			if inFlapPeriod(e.Timestamp, periods) {
				flapCount++
			}
		}

		pct := 0.0
		if len(entityEvents) > 0 {
			pct = roundTo1(100 * float64(flapCount) / float64(len(entityEvents)))
		}

		report[entityID] = EntityQualityReport{
			TotalEvents:       len(entityEvents),
			FlapPeriods:       len(periods),
			EventsDuringFlaps: flapCount,
			FlapPercentage:    pct,
			UniqueStates:      countUniqueStates(entityEvents),
			ReliabilityScore:  stats.WilsonLowerBound(len(entityEvents)-flapCount, len(entityEvents)),
			Recommendation:    f.recommend(entityEvents, flapCount, len(periods)),
		}
	}

	return report
}

func (f *Filter) recommend(events []model.EnrichedEvent, flapCount, periodCount int) string {
	if len(events) < 5 {
		return "exclude_low_activity"
	}
	if float64(flapCount)/float64(len(events)) > 0.5 {
		return "exclude_high_flap"
	}
	if periodCount > 0 {
		return "include_with_caution"
	}
	return "include"
}

func roundTo1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
