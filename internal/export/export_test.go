package export

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ha-autopilot/miner/internal/model"
)

func TestExportEventsJSONLRoundTrips(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)

	events := []model.EnrichedEvent{
		{StateChange: model.StateChange{EntityID: "light.hall", NewState: "on", Timestamp: 10}},
		{StateChange: model.StateChange{EntityID: "light.hall", NewState: "off", Timestamp: 20}},
	}
	path, err := e.ExportEventsJSONL(events, "")
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []model.EnrichedEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev model.EnrichedEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		got = append(got, ev)
	}
	require.Len(t, got, len(events))
	for i := range events {
		assert.Equal(t, events[i].EntityID, got[i].EntityID)
		assert.Equal(t, events[i].NewState, got[i].NewState)
	}
}

func TestExportPatternsWritesSingleDocument(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)

	lift := 1.5
	patterns := []model.Pattern{{
		Kind:     model.PatternAssociation,
		Triggers: []model.Trigger{{EntityID: "person.alice", State: "home"}},
		Action:   model.SingleAction("light.hall", "on", "turn_on"),
		Metrics:  model.Metrics{Confidence: 0.9, Support: 0.2, Lift: &lift, PatternScore: 0.8},
		Provenance: model.Provenance{
			PatternHash:     "abc123",
			OccurrenceCount: 12,
			Recommendation:  model.RecommendSuggest,
		},
	}}

	path, err := e.ExportPatterns(patterns, 0.5, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "patterns_for_review.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc PatternDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Patterns, 1)
	assert.Equal(t, 1, doc.PatternCount)
	assert.Equal(t, "abc123", doc.Patterns[0].ID)
}

func TestExportAutomationDraftSkipsPatternsWithoutAction(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)

	patterns := []model.Pattern{
		{
			Kind:     model.PatternAssociation,
			Triggers: []model.Trigger{{EntityID: "person.alice", State: "home"}},
			Action:   model.SingleAction("light.hall", "on", "turn_on"),
			Metrics:  model.Metrics{Confidence: 0.9, Support: 0.2},
		},
		{
			Kind:     model.PatternAssociation,
			Triggers: []model.Trigger{{EntityID: "person.bob", State: "home"}},
			Action:   model.SingleAction("", "", ""),
			Metrics:  model.Metrics{Confidence: 0.9, Support: 0.2},
		},
	}

	path, err := e.ExportAutomationDraft(patterns, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	var drafts []automationDraft
	require.NoError(t, yaml.Unmarshal(data, &drafts))
	require.Len(t, drafts, 1, "the pattern without a service must be skipped")
	assert.Equal(t, "[Autopilot] hall -> on", drafts[0].Alias)
}

func TestGenerateIDFormat(t *testing.T) {
	at := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	id := generateID("association", at, "light.hall", "on")
	const prefix = "autopilot_association_20260315_"
	require.Len(t, id, len(prefix)+8)
	assert.Equal(t, prefix, id[:len(prefix)])

	// Deterministic: same type/date/args always yields the same hex suffix.
	again := generateID("association", at, "light.hall", "on")
	assert.Equal(t, id, again)

	different := generateID("association", at, "light.kitchen", "on")
	assert.NotEqual(t, id, different)
}
