/**
 * CONTEXT:   Top-level orchestration of a mining run
 * INPUT:     MinerConfig plus a wall-clock "now"
 * OUTPUT:    RunMetadata describing what the run loaded, mined, validated and stored
 * BUSINESS:  The Engine is the only component that sequences the whole pipeline
 * CHANGE:    Initial port of run_pattern_detection.py's stage sequencing
 * RISK:      High - a partial failure here must never leave the store in a half-written state
 */

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ha-autopilot/miner/internal/catalog"
	"github.com/ha-autopilot/miner/internal/config"
	ctxbuilder "github.com/ha-autopilot/miner/internal/context"
	"github.com/ha-autopilot/miner/internal/errs"
	"github.com/ha-autopilot/miner/internal/mining/association"
	"github.com/ha-autopilot/miner/internal/mining/sequence"
	"github.com/ha-autopilot/miner/internal/mining/temporal"
	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/internal/noise"
	"github.com/ha-autopilot/miner/internal/recorder"
	"github.com/ha-autopilot/miner/internal/store"
	"github.com/ha-autopilot/miner/internal/validate"
	"github.com/ha-autopilot/miner/pkg/logger"
)

// Engine orchestrates one discover_patterns run end to end: load ->
// transactions -> mine (three miners) -> validate -> store (spec.md §2, §4's Engine row).
type Engine struct {
	cfg    *config.MinerConfig
	log    *logger.DefaultLogger
	store  *store.Store
	safety []string
}

// New builds an Engine against an already-opened pattern Store.
func New(cfg *config.MinerConfig, st *store.Store, log *logger.DefaultLogger, safetyEntities []string) *Engine {
	return &Engine{cfg: cfg, log: log, store: st, safety: safetyEntities}
}

// Discover runs discover_patterns(days, incremental) (spec.md §6).
func (e *Engine) Discover(ctx context.Context, days int, incremental bool, now time.Time) (model.RunMetadata, error) {
	runID := uuid.NewString()
	started := now
	nowTS := float64(now.Unix())

	meta := model.RunMetadata{
		RunID:     runID,
		StartedAt: started,
	}

	log := e.log.With("run." + runID[:8])

	conn, err := e.connectWithRetry(log)
	if err != nil {
		meta.Failed = true
		meta.FailureReason = err.Error()
		return meta, err
	}
	defer conn.Close()
	defer conn.Reset()

	extractor := recorder.NewExtractor(conn)
	cat := catalog.New(conn.DB(), log.With("catalog"), e.cfg.Mining.CustomIncludes, e.cfg.Mining.CustomExcludes)

	t1 := nowTS
	t0 := t1 - float64(days)*86400
	if incremental {
		if last, ok, _ := e.lastRunTimestamp(ctx); ok {
			t0 = last
		}
	}

	entities, err := cat.GetFilteredEntities(ctx, model.SignalMedium)
	if err != nil {
		meta.Failed = true
		meta.FailureReason = err.Error()
		return meta, err
	}
	entityIDs := make([]string, len(entities))
	for i, en := range entities {
		entityIDs[i] = en.EntityID
	}

	changes, err := extractor.StateChanges(ctx, entityIDs, t0, t1)
	if errors.Is(err, errs.ErrEmptyInput) {
		meta.DaysAnalyzed = days
		meta.DurationSeconds = time.Since(started).Seconds()
		return meta, nil
	}
	if err != nil {
		meta.Failed = true
		meta.FailureReason = err.Error()
		return meta, err
	}
	meta.EventsLoaded = len(changes)

	contextEntities := append(append([]string{}, entityIDs...), "sun.sun")
	builder := ctxbuilder.New(extractor, contextEntities)
	enriched, err := builder.BuildAll(ctx, changes)
	if err != nil {
		meta.Failed = true
		meta.FailureReason = err.Error()
		return meta, err
	}

	filtered := noise.New(log.With("noise")).FilterEvents(enriched)

	daysInCorpus := countDistinctDates(filtered)

	windows := association.BuildTransactions(filtered, 0)
	meta.TransactionsBuilt = len(windows)
	if err := e.store.SaveTransactions(ctx, windows, nowTS); err != nil {
		log.Warn("failed to save transactions", "error", err)
	}

	var allPatterns []model.Pattern
	allPatterns = append(allPatterns, e.runMinerSafely(log, "association", func() []model.Pattern {
		return association.New(e.cfg.Mining.MinSupport, 0, log.With("association")).Mine(filtered, nowTS)
	})...)
	allPatterns = append(allPatterns, e.runMinerSafely(log, "sequence", func() []model.Pattern {
		return sequence.New(daysInCorpus, log.With("sequence")).Mine(filtered, nowTS)
	})...)
	allPatterns = append(allPatterns, e.runMinerSafely(log, "temporal", func() []model.Pattern {
		return temporal.New(log.With("temporal")).Mine(filtered, nowTS)
	})...)

	meta.PatternsDiscovered = len(allPatterns)

	validator := validate.New(e.safety, nil, log.With("validate"))
	results := validator.Validate(allPatterns)

	var stored int
	for _, r := range results {
		if !r.Accepted {
			continue
		}
		meta.PatternsValidated++

		res, err := e.store.Upsert(ctx, r.Pattern, nowTS)
		if err != nil {
			log.Error("store upsert failed", "hash", r.Pattern.Provenance.PatternHash, "error", err)
			continue
		}
		stored++

		if r.Pattern.Kind == model.PatternSequence && len(r.Pattern.Action.Steps) > 0 {
			if err := e.store.SaveSequenceSteps(ctx, res.PatternID, r.Pattern.Action.Steps); err != nil {
				log.Warn("failed to save sequence steps", "hash", res.PatternHash, "error", err)
			}
		}
	}
	meta.PatternsStored = stored

	if err := e.store.SetMetadata(ctx, "last_run_at", fmt.Sprintf("%f", t1), nowTS); err != nil {
		log.Warn("failed to record last_run_at", "error", err)
	}

	meta.DaysAnalyzed = days
	meta.DurationSeconds = time.Since(started).Seconds()

	log.Info("run complete",
		"events", meta.EventsLoaded,
		"discovered", meta.PatternsDiscovered,
		"validated", meta.PatternsValidated,
		"stored", meta.PatternsStored,
	)

	return meta, nil
}

// connectWithRetry implements spec.md §5/§7: a StorageUnavailable failure
// is retried exactly once before the run aborts.
func (e *Engine) connectWithRetry(log *logger.DefaultLogger) (*recorder.Connector, error) {
	conn, err := recorder.NewConnector(e.cfg.Recorder, log)
	if err == nil {
		return conn, nil
	}
	if !errors.Is(err, errs.ErrStorageUnavailable) {
		return nil, err
	}

	log.Warn("recorder connection failed, retrying once", "error", err)
	return recorder.NewConnector(e.cfg.Recorder, log)
}

// runMinerSafely isolates a single miner's failure per spec.md §7: an
// error is logged and that miner's output is treated as empty, but other
// miners still run.
func (e *Engine) runMinerSafely(log *logger.DefaultLogger, name string, run func() []model.Pattern) (patterns []model.Pattern) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("miner panicked, treating as empty", "miner", name, "panic", r)
			patterns = nil
		}
	}()
	return run()
}

func (e *Engine) lastRunTimestamp(ctx context.Context) (float64, bool, error) {
	value, ok, err := e.store.Metadata(ctx, "last_run_at")
	if err != nil || !ok {
		return 0, false, err
	}
	var ts float64
	if _, err := fmt.Sscanf(value, "%f", &ts); err != nil {
		return 0, false, err
	}
	return ts, true, nil
}

func countDistinctDates(events []model.EnrichedEvent) int {
	seen := make(map[string]bool)
	for _, e := range events {
		seen[e.Date] = true
	}
	if len(seen) == 0 {
		return 1
	}
	return len(seen)
}
