/**
 * CONTEXT:   Durable pattern storage for the mining pipeline
 * INPUT:     Validated Patterns, TransactionWindows, run metadata
 * OUTPUT:    A deduplicated, queryable SQLite catalog of discovered patterns
 * BUSINESS:  The Store is the only component whose state survives across runs
 * CHANGE:    Adapted from the teacher's SQLite connection/schema management for pattern persistence
 * RISK:      Medium - upsert correctness directly drives the idempotence invariant (spec.md §8)
 */

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/pkg/logger"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store owns the miner's own SQLite database: patterns, transactions,
// sequence steps and run metadata (spec.md §4.9). Unlike the Connector,
// this handle is read-write and serialises writes through a mutex, since
// sql.DB's own locking is not enough to keep SQLite's single-writer
// constraint from surfacing as "database is locked" errors under the
// Engine's otherwise-sequential pipeline.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	log  *logger.DefaultLogger
}

// Open creates (if needed) and migrates the pattern database at path.
func Open(path string, log *logger.DefaultLogger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open pattern store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, stmt := range strings.Split(string(schemaSQL), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if s.log != nil {
		s.log.Info("pattern store ready", "path", s.path)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertResult reports what happened to a single pattern during Upsert.
type UpsertResult struct {
	PatternHash string
	PatternID   int64
	Inserted    bool
}

// Upsert stores or merges a validated pattern by its canonical hash
// (spec.md §4.9): on a hit, occurrence_count accumulates, metrics and
// last_seen are overwritten, and first_seen is preserved.
func (s *Store) Upsert(ctx context.Context, p model.Pattern, now float64) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := p.Provenance.PatternHash
	if hash == "" {
		hash = p.Hash()
	}

	triggersJSON, err := json.Marshal(p.Triggers)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("marshal triggers: %w", err)
	}
	actionJSON, err := json.Marshal(p.Action)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("marshal action: %w", err)
	}

	var existingID int64
	var existingOccurrences int
	var existingFirstSeen float64
	row := s.db.QueryRowContext(ctx, `
		SELECT pattern_id, occurrence_count, first_seen
		FROM ha_autopilot_patterns
		WHERE pattern_hash = ?
	`, hash)

	err = row.Scan(&existingID, &existingOccurrences, &existingFirstSeen)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO ha_autopilot_patterns (
				pattern_type, pattern_hash, trigger_conditions, action_target,
				confidence, support, lift, conviction, pattern_score,
				first_seen, last_seen, occurrence_count, description,
				user_feedback, recommendation, conflict_warning, status,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			string(p.Kind), hash, string(triggersJSON), string(actionJSON),
			p.Metrics.Confidence, p.Metrics.Support, nullableFloat(p.Metrics.Lift), nullableFloat(p.Metrics.Conviction), p.Metrics.PatternScore,
			now, now, p.Provenance.OccurrenceCount, p.Description,
			string(p.Provenance.UserFeedback), string(p.Provenance.Recommendation), p.Provenance.ConflictWarning, string(model.StatusActive),
			now, now,
		)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("insert pattern: %w", err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return UpsertResult{}, fmt.Errorf("read new pattern id: %w", err)
		}
		return UpsertResult{PatternHash: hash, PatternID: newID, Inserted: true}, nil

	case err != nil:
		return UpsertResult{}, fmt.Errorf("lookup pattern: %w", err)
	}

	newOccurrences := existingOccurrences + p.Provenance.OccurrenceCount
	_, err = s.db.ExecContext(ctx, `
		UPDATE ha_autopilot_patterns
		SET confidence = ?, support = ?, lift = ?, conviction = ?, pattern_score = ?,
		    last_seen = ?, occurrence_count = ?, description = ?,
		    recommendation = ?, conflict_warning = ?, updated_at = ?
		WHERE pattern_id = ?
	`,
		p.Metrics.Confidence, p.Metrics.Support, nullableFloat(p.Metrics.Lift), nullableFloat(p.Metrics.Conviction), p.Metrics.PatternScore,
		now, newOccurrences, p.Description,
		string(p.Provenance.Recommendation), p.Provenance.ConflictWarning, now,
		existingID,
	)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("update pattern: %w", err)
	}

	return UpsertResult{PatternHash: hash, PatternID: existingID, Inserted: false}, nil
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// Filter composes the dynamic retrieval predicate from spec.md §4.9.
type Filter struct {
	MinScore float64
	Type     model.PatternKind
	Status   model.PatternStatus
	Feedback model.Feedback
	Limit    int
}

// StoredPattern is a pattern as retrieved from the store, including its
// database identity.
type StoredPattern struct {
	model.Pattern
	ID int64
}

// Query retrieves patterns matching f, ordered by score descending.
func (s *Store) Query(ctx context.Context, f Filter) ([]StoredPattern, error) {
	var clauses []string
	var args []interface{}

	if f.MinScore > 0 {
		clauses = append(clauses, "pattern_score >= ?")
		args = append(args, f.MinScore)
	}
	if f.Type != "" {
		clauses = append(clauses, "pattern_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Feedback != "" {
		clauses = append(clauses, "user_feedback = ?")
		args = append(args, string(f.Feedback))
	}

	query := `
		SELECT pattern_id, pattern_type, pattern_hash, trigger_conditions, action_target,
		       confidence, support, lift, conviction, pattern_score,
		       first_seen, last_seen, occurrence_count, description,
		       user_feedback, recommendation, conflict_warning, status
		FROM ha_autopilot_patterns
	`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY pattern_score DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []StoredPattern
	for rows.Next() {
		var sp StoredPattern
		var triggersJSON, actionJSON string
		var lift, conviction sql.NullFloat64
		var feedback, status string

		if err := rows.Scan(
			&sp.ID, &sp.Kind, &sp.Provenance.PatternHash, &triggersJSON, &actionJSON,
			&sp.Metrics.Confidence, &sp.Metrics.Support, &lift, &conviction, &sp.Metrics.PatternScore,
			&sp.Provenance.FirstSeen, &sp.Provenance.LastSeen, &sp.Provenance.OccurrenceCount, &sp.Description,
			&feedback, &sp.Provenance.Recommendation, &sp.Provenance.ConflictWarning, &status,
		); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}

		if err := json.Unmarshal([]byte(triggersJSON), &sp.Triggers); err != nil {
			return nil, fmt.Errorf("unmarshal triggers: %w", err)
		}
		if err := json.Unmarshal([]byte(actionJSON), &sp.Action); err != nil {
			return nil, fmt.Errorf("unmarshal action: %w", err)
		}
		if lift.Valid {
			v := lift.Float64
			sp.Metrics.Lift = &v
		}
		if conviction.Valid {
			v := conviction.Float64
			sp.Metrics.Conviction = &v
		}
		sp.Provenance.UserFeedback = model.Feedback(feedback)
		sp.Provenance.Status = model.PatternStatus(status)

		out = append(out, sp)
	}

	return out, rows.Err()
}

// SaveTransactions persists the windows a run synthesized, for later
// inspection/debugging (spec.md §4.9's transactions table).
func (s *Store) SaveTransactions(ctx context.Context, windows []model.TransactionWindow, now float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ha_autopilot_transactions (window_start, window_end, context_day_type, context_time_bucket, items, quality_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare transaction insert: %w", err)
	}
	defer stmt.Close()

	for _, w := range windows {
		itemsJSON, err := json.Marshal(w.Items)
		if err != nil {
			return fmt.Errorf("marshal items: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, w.Start, w.End, w.DayType, string(w.TimeBucket), string(itemsJSON), w.QualityScore, now); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	return tx.Commit()
}

// SaveSequenceSteps persists the ordered steps of a sequence pattern,
// identified by its stored pattern_id.
func (s *Store) SaveSequenceSteps(ctx context.Context, patternID int64, steps []model.ActionStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sequence save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ha_autopilot_sequences (pattern_id, step_order, entity_id, state, typical_delay_seconds)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare sequence insert: %w", err)
	}
	defer stmt.Close()

	for i, step := range steps {
		if _, err := stmt.ExecContext(ctx, patternID, i, step.EntityID, step.State, step.TypicalDelaySeconds); err != nil {
			return fmt.Errorf("insert sequence step: %w", err)
		}
	}

	return tx.Commit()
}

// SetMetadata records a run-level key/value fact (e.g. last_run_at for
// incremental mining).
func (s *Store) SetMetadata(ctx context.Context, key, value string, now float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ha_autopilot_metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now)
	return err
}

// Metadata reads back a previously stored key, returning ("", false) if absent.
func (s *Store) Metadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ha_autopilot_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// ClearAll wipes sequences, patterns, then transactions, in that order
// (spec.md §4.9), respecting the sequences->patterns foreign relationship.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"ha_autopilot_sequences", "ha_autopilot_patterns", "ha_autopilot_transactions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}

	if s.log != nil {
		s.log.Warn("pattern store cleared", "path", s.path)
	}
	return nil
}
