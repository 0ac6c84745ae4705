package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha-autopilot/miner/internal/model"
)

func testPattern() model.Pattern {
	return model.Pattern{
		Kind:     model.PatternAssociation,
		Triggers: []model.Trigger{{EntityID: "person.alice", State: "home"}},
		Action:   model.SingleAction("light.hall", "on", "turn_on"),
		Metrics:  model.Metrics{Confidence: 0.9, Support: 0.3, PatternScore: 0.8},
		Provenance: model.Provenance{
			OccurrenceCount: 5,
			Recommendation:  model.RecommendSuggest,
		},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "patterns.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertInsertsThenMergesOnSecondCall(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := testPattern()

	first, err := s.Upsert(ctx, p, 1000)
	require.NoError(t, err)
	assert.True(t, first.Inserted, "expected first Upsert to insert a new row")

	second, err := s.Upsert(ctx, p, 2000)
	require.NoError(t, err)
	assert.False(t, second.Inserted, "expected second Upsert with the same hash to merge, not insert")
	assert.Equal(t, first.PatternID, second.PatternID)

	rows, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1, "expected exactly one stored pattern after two upserts of the same hash")
	assert.Equal(t, 10, rows[0].Provenance.OccurrenceCount, "5+5 accumulated")
	assert.Equal(t, 1000.0, rows[0].Provenance.FirstSeen, "first_seen preserved")
	assert.Equal(t, 2000.0, rows[0].Provenance.LastSeen, "last_seen overwritten")
}

func TestQueryFiltersByMinScore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	weak := testPattern()
	weak.Metrics.PatternScore = 0.2
	weak.Action = model.SingleAction("light.kitchen", "on", "turn_on")

	strong := testPattern()
	strong.Metrics.PatternScore = 0.9

	_, err := s.Upsert(ctx, weak, 1000)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, strong, 1000)
	require.NoError(t, err)

	rows, err := s.Query(ctx, Filter{MinScore: 0.5})
	require.NoError(t, err)
	require.Len(t, rows, 1, "expected one pattern above the score floor")
	assert.Equal(t, 0.9, rows[0].Metrics.PatternScore)
}

func TestMetadataRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Metadata(ctx, "last_run_at")
	require.NoError(t, err)
	assert.False(t, ok, "expected absent key")

	require.NoError(t, s.SetMetadata(ctx, "last_run_at", "1700000000", 1700000000))
	val, ok, err := s.Metadata(ctx, "last_run_at")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1700000000", val)

	require.NoError(t, s.SetMetadata(ctx, "last_run_at", "1800000000", 1800000000))
	val, _, err = s.Metadata(ctx, "last_run_at")
	require.NoError(t, err)
	assert.Equal(t, "1800000000", val)
}

func TestClearAllRemovesEverything(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, testPattern(), 1000)
	require.NoError(t, err)
	require.NoError(t, s.ClearAll(ctx))

	rows, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows, "expected no patterns after ClearAll")
}
