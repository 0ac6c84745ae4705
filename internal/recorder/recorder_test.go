package recorder

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha-autopilot/miner/internal/config"
)

// newFixtureRecorder builds a throwaway SQLite file shaped like a Home
// Assistant recorder database (states/states_meta), seeded with a few
// state changes for two entities.
func newFixtureRecorder(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recorder.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	schema := `
		CREATE TABLE states_meta (metadata_id INTEGER PRIMARY KEY, entity_id TEXT NOT NULL);
		CREATE TABLE states (
			state_id INTEGER PRIMARY KEY,
			metadata_id INTEGER NOT NULL,
			state TEXT,
			last_updated_ts REAL NOT NULL
		);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO states_meta (metadata_id, entity_id) VALUES (1, 'light.hall'), (2, 'binary_sensor.motion')`)
	require.NoError(t, err)

	rows := []struct {
		metadataID int
		state      string
		ts         float64
	}{
		{1, "off", 0},
		{1, "on", 100},
		{1, "on", 150}, // duplicate state, must be collapsed by the extractor
		{1, "off", 300},
		{2, "on", 90},
		{2, "off", 400},
	}
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO states (metadata_id, state, last_updated_ts) VALUES (?, ?, ?)`, r.metadataID, r.state, r.ts)
		require.NoError(t, err)
	}

	return path
}

func testRecorderConfig(path string) config.RecorderConfig {
	return config.RecorderConfig{
		SQLitePath:     path,
		QueryTimeout:   5 * time.Second,
		ChunkSize:      50,
		MaxConnections: 2,
	}
}

func TestNewConnectorDetectsSQLiteBackend(t *testing.T) {
	path := newFixtureRecorder(t)
	conn, err := NewConnector(testRecorderConfig(path), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, BackendSQLite, conn.Backend())
}

func TestNewConnectorRejectsMissingTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	db.Close()

	_, err = NewConnector(testRecorderConfig(path), nil)
	assert.Error(t, err, "expected an error for a recorder database missing states/states_meta")
}

func TestStateChangesCollapsesDuplicatesAndOrdersByTime(t *testing.T) {
	path := newFixtureRecorder(t)
	conn, err := NewConnector(testRecorderConfig(path), nil)
	require.NoError(t, err)
	defer conn.Close()

	extractor := NewExtractor(conn)
	changes, err := extractor.StateChanges(context.Background(), []string{"light.hall", "binary_sensor.motion"}, 0, 1000)
	require.NoError(t, err)

	// The repeated "on" at ts=150 must not appear as its own change.
	for i := 1; i < len(changes); i++ {
		assert.GreaterOrEqual(t, changes[i].Timestamp, changes[i-1].Timestamp, "non-decreasing timestamp order")
	}
	count := 0
	for _, c := range changes {
		if c.EntityID == "light.hall" && c.NewState == "on" {
			count++
		}
	}
	assert.Equal(t, 1, count, "expected exactly one collapsed light.hall->on change")
}

func TestStateAtResolvesMostRecentStateAtOrBeforeTarget(t *testing.T) {
	path := newFixtureRecorder(t)
	conn, err := NewConnector(testRecorderConfig(path), nil)
	require.NoError(t, err)
	defer conn.Close()

	extractor := NewExtractor(conn)
	states, err := extractor.StateAt(context.Background(), []string{"light.hall"}, 200)
	require.NoError(t, err)
	assert.Equal(t, "on", states["light.hall"], "state at ts=200, set at ts=150")

	states, err = extractor.StateAt(context.Background(), []string{"light.hall"}, 50)
	require.NoError(t, err)
	assert.Equal(t, "off", states["light.hall"], "state at ts=50, set at ts=0")
}

func TestResetClearsRunLocalCache(t *testing.T) {
	path := newFixtureRecorder(t)
	conn, err := NewConnector(testRecorderConfig(path), nil)
	require.NoError(t, err)
	defer conn.Close()

	extractor := NewExtractor(conn)
	_, err = extractor.StateAt(context.Background(), []string{"light.hall"}, 200)
	require.NoError(t, err)
	assert.NotEmpty(t, conn.cache, "expected the point-in-time cache to be populated")

	conn.Reset()
	assert.Empty(t, conn.cache, "expected Reset to empty the cache")
}
