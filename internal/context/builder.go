/**
 * CONTEXT:   Event enrichment for the pattern mining pipeline
 * INPUT:     Raw state changes in timestamp order
 * OUTPUT:    EnrichedEvent values carrying temporal and concurrent-state context
 * BUSINESS:  Every miner operates on enriched events, never raw state changes
 * CHANGE:    Initial port of context_builder.py's buffered enrichment pass
 * RISK:      Medium - concurrent_states snapshot correctness depends on Extractor.StateAt
 */

package context

import (
	"context"
	"strings"
	"sync"

	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/internal/recorder"
)

const (
	defaultBufferSize     = 100
	concurrentWindowSecs  = 60
	sunEntity             = "sun.sun"
)

// Builder enriches a stream of state changes with temporal and
// environmental context (spec.md §4.3). It buffers events so that
// concurrent_changes can be computed by looking both forward and backward
// within the buffer, mirroring context_builder.py's _process_buffer.
type Builder struct {
	extractor        *recorder.Extractor
	contextEntities  []string

	mu          sync.Mutex
	lastChange  map[string]float64
}

// New builds a Builder. contextEntities is the set of entities whose state
// is snapshotted as "concurrent_states" for every event (typically the
// catalog's high/medium signal entities plus sun.sun).
func New(extractor *recorder.Extractor, contextEntities []string) *Builder {
	return &Builder{
		extractor:       extractor,
		contextEntities: contextEntities,
		lastChange:      make(map[string]float64),
	}
}

// BuildAll enriches every change in changes, which must already be in
// non-decreasing timestamp order (the Extractor's contract). Processing
// happens in fixed-size buffers so concurrent-change lookback stays O(buffer)
// rather than O(n^2) over a whole run.
func (b *Builder) BuildAll(ctx context.Context, changes []model.StateChange) ([]model.EnrichedEvent, error) {
	var out []model.EnrichedEvent

	for start := 0; start < len(changes); start += defaultBufferSize {
		end := start + defaultBufferSize
		if end > len(changes) {
			end = len(changes)
		}

		buffered, err := b.enrichTemporal(changes[start:end])
		if err != nil {
			return nil, err
		}

		withContext, err := b.processBuffer(ctx, buffered)
		if err != nil {
			return nil, err
		}

		out = append(out, withContext...)
	}

	return out, nil
}

// enrichTemporal adds hour/minute/weekday/date/seconds_since_last_change,
// tracking per-entity last-change time across buffer boundaries.
func (b *Builder) enrichTemporal(chunk []model.StateChange) ([]model.EnrichedEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.EnrichedEvent, len(chunk))
	for i, sc := range chunk {
		t := sc.Time()
		e := model.EnrichedEvent{
			StateChange: sc,
			Hour:        t.Hour(),
			Minute:      t.Minute(),
			Weekday:     (int(t.Weekday()) + 6) % 7,
			Date:        t.Format("2006-01-02"),
		}
		e.IsWeekend = e.Weekday >= 5
		e.TimeBucket = model.TimeBucketForHour(e.Hour)

		if last, ok := b.lastChange[sc.EntityID]; ok {
			delta := sc.Timestamp - last
			e.SecondsSinceLastChange = &delta
		}
		b.lastChange[sc.EntityID] = sc.Timestamp

		out[i] = e
	}
	return out, nil
}

// processBuffer adds concurrent_states, sun_position and concurrent_changes
// to every event in a buffer (context_builder.py's _process_buffer).
func (b *Builder) processBuffer(ctx context.Context, events []model.EnrichedEvent) ([]model.EnrichedEvent, error) {
	for i := range events {
		ts := events[i].Timestamp

		snapshot, err := b.extractor.StateAt(ctx, b.contextEntities, ts)
		if err != nil {
			return nil, err
		}
		delete(snapshot, events[i].EntityID)

		if sun, ok := snapshot[sunEntity]; ok {
			events[i].SunPosition = &sun
			delete(snapshot, sunEntity)
		}
		events[i].ConcurrentStates = snapshot

		var changes []model.ConcurrentChange
		for j := range events {
			if i == j {
				continue
			}
			other := events[j]
			if other.EntityID == events[i].EntityID {
				continue
			}
			offset := other.Timestamp - ts
			if offset < 0 {
				offset = -offset
			}
			if offset <= concurrentWindowSecs {
				changes = append(changes, model.ConcurrentChange{
					EntityID:      other.EntityID,
					NewState:      other.NewState,
					OffsetSeconds: other.Timestamp - ts,
				})
			}
		}
		events[i].ConcurrentChanges = changes

		AddDerivedFeatures(&events[i])
	}

	return events, nil
}

// AddDerivedFeatures computes people_home/anyone_home from concurrent_states
// (context_builder.py's add_derived_features). TimeBucket and weekday
// derivations already happened in enrichTemporal.
func AddDerivedFeatures(e *model.EnrichedEvent) {
	homeCount := 0
	for k, v := range e.ConcurrentStates {
		if strings.HasPrefix(k, "person.") && v == "home" {
			homeCount++
		}
	}
	e.PeopleHome = homeCount
	e.AnyoneHome = homeCount > 0
}
