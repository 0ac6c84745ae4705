/**
 * CONTEXT:   Recorder connection management for the pattern mining pipeline
 * INPUT:     Recorder configuration (SQLite path or MySQL DSN)
 * OUTPUT:    A read-only handle to Home Assistant's states/states_meta/state_attributes tables
 * BUSINESS:  The recorder is an external, read-only relation store (spec.md §1, §6)
 * CHANGE:    Initial connector with SQLite/MySQL auto-detection
 * RISK:      Medium - wrong backend detection would silently query the wrong dialect
 */

package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ha-autopilot/miner/internal/config"
	"github.com/ha-autopilot/miner/internal/errs"
	"github.com/ha-autopilot/miner/pkg/logger"
)

// Backend identifies which SQL dialect the recorder is speaking.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendMySQL  Backend = "mysql"
)

// Connector is a read-only handle onto the recorder database, shared by
// the Catalog and the Extractor. It owns the point-in-time query cache
// described in spec.md §5, discarded via Reset at the end of a run.
type Connector struct {
	db           *sql.DB
	backend      Backend
	queryTimeout time.Duration
	chunkSize    int
	sem          chan struct{}
	log          *logger.DefaultLogger

	cacheMu sync.Mutex
	cache   map[string]string
}

// NewConnector opens the recorder, auto-detecting MySQL-family vs SQLite
// per spec.md §6: a MySQL DSN is tried first and accepted only if the
// `states` table is reachable through it; otherwise the configured
// SQLite path is opened with the query-only pragma set.
func NewConnector(cfg config.RecorderConfig, log *logger.DefaultLogger) (*Connector, error) {
	var db *sql.DB
	backend := BackendSQLite

	if cfg.MySQLDSN != "" {
		if candidate, ok := tryMySQL(cfg.MySQLDSN); ok {
			db = candidate
			backend = BackendMySQL
		}
	}

	if db == nil {
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("%w: no sqlite_path configured and mysql_dsn unreachable", errs.ErrStorageUnavailable)
		}

		dsn := cfg.SQLitePath + "?_query_only=1&mode=ro&_busy_timeout=5000"
		var err error
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: open sqlite recorder: %v", errs.ErrStorageUnavailable, err)
		}
	}

	if !hasTable(db, "states") || !hasTable(db, "states_meta") {
		db.Close()
		return nil, fmt.Errorf("%w: expected recorder tables not found", errs.ErrSchemaMismatch)
	}

	maxConn := cfg.MaxConnections
	if maxConn <= 0 {
		maxConn = 5
	}
	db.SetMaxOpenConns(maxConn)

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 50
	}

	c := &Connector{
		db:           db,
		backend:      backend,
		queryTimeout: cfg.QueryTimeout,
		chunkSize:    chunkSize,
		sem:          make(chan struct{}, maxConn),
		log:          log,
		cache:        make(map[string]string),
	}

	if log != nil {
		log.Info("recorder connected", "backend", string(backend), "chunk_size", chunkSize)
	}

	return c, nil
}

func tryMySQL(dsn string) (*sql.DB, bool) {
	candidate, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := candidate.PingContext(ctx); err != nil {
		candidate.Close()
		return nil, false
	}

	if !hasTable(candidate, "states") {
		candidate.Close()
		return nil, false
	}

	return candidate, true
}

// hasTable probes both SQLite's and MySQL's table catalogs; exactly one
// will ever resolve for a given connection, so this doubles as the
// backend probe spec.md §6 calls for.
func hasTable(db *sql.DB, name string) bool {
	var got string

	row := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", name)
	if err := row.Scan(&got); err == nil {
		return true
	}

	row = db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", name)
	return row.Scan(&got) == nil
}

// Backend reports which dialect this connector detected.
func (c *Connector) Backend() Backend { return c.backend }

// DB exposes the underlying read-only handle for components (the Catalog)
// that need to run their own queries against it.
func (c *Connector) DB() *sql.DB { return c.db }

// Close releases the underlying database handle.
func (c *Connector) Close() error {
	return c.db.Close()
}

// Reset discards the run-local point-in-time query cache (spec.md §5).
// Call once per run, after export, before the connector is reused.
func (c *Connector) Reset() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]string)
}

// queryContext applies the configured per-query timeout (30s when unset);
// classifyQueryErr translates a context deadline exceeded into
// ErrStorageTimeout per spec.md §5/§7.
func (c *Connector) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.queryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func classifyQueryErr(err error) error {
	if err == nil {
		return nil
	}
	if err == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", errs.ErrStorageTimeout, err)
	}
	return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
}
