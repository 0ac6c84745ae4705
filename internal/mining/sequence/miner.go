/**
 * CONTEXT:   Ordered multi-step routine discovery
 * INPUT:     Enriched event stream, partitioned by calendar day
 * OUTPUT:    Scored "sequence" Patterns with per-step typical delays
 * BUSINESS:  Captures routines association mining cannot (order matters)
 * CHANGE:    Initial port of sequential_analyzer.py's gap-bounded greedy growth
 * RISK:      Medium - wrong gap bounds would merge unrelated routines
 */

package sequence

import (
	"math"
	"sort"
	"strings"

	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/internal/stats"
	"github.com/ha-autopilot/miner/pkg/logger"
)

const (
	minGapSeconds = 10.0
	maxGapSeconds = 1800.0
	maxSeqLength  = 6
)

// occurrence is one instance of a candidate sequence: the gaps between
// its successive steps.
type occurrence struct {
	gaps []float64
}

// Miner discovers sequence patterns per spec.md §4.6.
type Miner struct {
	daysInCorpus int
	log          *logger.DefaultLogger
}

// New builds a Miner. daysInCorpus is the number of distinct calendar
// dates covered by the run, used for the occurrence-count floor.
func New(daysInCorpus int, log *logger.DefaultLogger) *Miner {
	return &Miner{daysInCorpus: daysInCorpus, log: log}
}

// Mine partitions events by date, grows gap-bounded candidate sequences
// within each day, aggregates occurrences of each candidate across days,
// and promotes those meeting the occurrence floor to Patterns.
func (m *Miner) Mine(events []model.EnrichedEvent, now float64) []model.Pattern {
	byDate := partitionByDate(events)

	occurrences := make(map[string][]occurrence)
	itemsOf := make(map[string][]string)

	for _, dayEvents := range byDate {
		sort.Slice(dayEvents, func(i, j int) bool { return dayEvents[i].Timestamp < dayEvents[j].Timestamp })

		for i := range dayEvents {
			grow(dayEvents, i, occurrences, itemsOf)
		}
	}

	floor := occurrenceFloor(m.daysInCorpus)

	var patterns []model.Pattern
	for candidate, occs := range occurrences {
		if len(occs) < floor {
			continue
		}
		items := itemsOf[candidate]
		if p, ok := promote(items, occs, now); ok {
			patterns = append(patterns, p)
		}
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Metrics.PatternScore > patterns[j].Metrics.PatternScore
	})

	if m.log != nil {
		m.log.Info("sequence mining complete", "days", len(byDate), "candidates", len(occurrences), "patterns", len(patterns))
	}

	return patterns
}

func partitionByDate(events []model.EnrichedEvent) map[string][]model.EnrichedEvent {
	out := make(map[string][]model.EnrichedEvent)
	for _, e := range events {
		out[e.Date] = append(out[e.Date], e)
	}
	return out
}

// occurrenceFloor implements spec.md §4.6: occurrences >= max(3, 0.15*days).
func occurrenceFloor(days int) int {
	floor := int(math.Ceil(0.15*float64(days) - 1e-9))
	if floor < 3 {
		return 3
	}
	return floor
}

// grow greedily extends a sequence starting at index i across dayEvents,
// appending subsequent events whose gap from the prior step falls in
// [minGapSeconds, maxGapSeconds]. An event closer than minGapSeconds to the
// prior step is skipped; a gap above maxGapSeconds or reaching length
// maxSeqLength ends the sequence. Every prefix of length >= 2 is recorded as a candidate
// occurrence keyed by its item chain.
func grow(dayEvents []model.EnrichedEvent, i int, occurrences map[string][]occurrence, itemsOf map[string][]string) {
	items := []string{dayEvents[i].Item()}
	var gaps []float64

	last := dayEvents[i].Timestamp

	for j := i + 1; j < len(dayEvents) && len(items) < maxSeqLength; j++ {
		gap := dayEvents[j].Timestamp - last
		if gap < minGapSeconds || gap > maxGapSeconds {
			if gap > maxGapSeconds {
				break
			}
			continue
		}

		items = append(items, dayEvents[j].Item())
		gaps = append(gaps, gap)
		last = dayEvents[j].Timestamp

		if len(items) >= 2 {
			key := strings.Join(items, " -> ")
			itemsOf[key] = append([]string{}, items...)
			occurrences[key] = append(occurrences[key], occurrence{gaps: append([]float64{}, gaps...)})
		}
	}
}

// promote converts a candidate sequence and its occurrences into a
// Pattern, computing per-position typical gaps and variance-based
// confidence per spec.md §4.6.
func promote(items []string, occs []occurrence, now float64) (model.Pattern, bool) {
	steps := len(items) - 1
	if steps < 1 {
		return model.Pattern{}, false
	}

	typicalGaps := make([]float64, steps)
	variances := make([]float64, steps)
	for pos := 0; pos < steps; pos++ {
		var posGaps []float64
		for _, occ := range occs {
			if pos < len(occ.gaps) {
				posGaps = append(posGaps, occ.gaps[pos])
			}
		}
		typicalGaps[pos] = stats.Mean(posGaps)
		variances[pos] = stats.Variance(posGaps)
	}

	avgVariance := stats.Mean(variances)
	confidence := 1 / (1 + avgVariance/100)

	occCountScore := float64(len(occs)) / 30
	if occCountScore > 1 {
		occCountScore = 1
	}
	lengthScore := 0.7
	if len(items) <= 4 {
		lengthScore = 1.0
	}
	firstGapScore := 0.5
	if len(typicalGaps) > 0 && typicalGaps[0] < 300 {
		firstGapScore = 1.0
	}

	score := 0.40*confidence + 0.30*occCountScore + 0.20*lengthScore + 0.10*firstGapScore

	support := float64(len(occs)) / 100

	triggers := make([]model.Trigger, 0, len(items)-1)
	for _, item := range items[:len(items)-1] {
		e, s := splitItem(item)
		triggers = append(triggers, model.Trigger{EntityID: e, State: s})
	}

	stepsOut := make([]model.ActionStep, 0, steps)
	for pos, item := range items[1:] {
		e, s := splitItem(item)
		stepsOut = append(stepsOut, model.ActionStep{
			EntityID:            e,
			State:               s,
			Service:             model.ServiceFor(e, s),
			TypicalDelaySeconds: int(typicalGaps[pos]),
		})
	}

	action := model.StepsAction(stepsOut)

	p := model.Pattern{
		Kind:     model.PatternSequence,
		Triggers: triggers,
		Action:   action,
		Metrics: model.Metrics{
			Confidence:   confidence,
			Support:      support,
			PatternScore: score,
		},
		Provenance: model.Provenance{
			FirstSeen:       now,
			LastSeen:        now,
			OccurrenceCount: len(occs),
			Recommendation:  model.RecommendReview,
		},
	}
	p.Provenance.PatternHash = p.Hash()
	return p, true
}

func splitItem(item string) (entity, state string) {
	idx := strings.LastIndex(item, ":")
	if idx < 0 {
		return item, ""
	}
	return item[:idx], item[idx+1:]
}
