/**
 * CONTEXT:   State-change extraction from the recorder database
 * INPUT:     Entity IDs and a time window
 * OUTPUT:    A timestamp-ordered stream of StateChange values
 * BUSINESS:  The Extractor is the sole source of truth for "what changed, and when"
 * CHANGE:    Initial implementation with chunked, bounded-fan-out queries
 * RISK:      Medium - window function support and chunk merge ordering are load-bearing
 */

package recorder

import (
	"container/heap"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ha-autopilot/miner/internal/errs"
	"github.com/ha-autopilot/miner/internal/model"
)

// Extractor answers spec.md §4.2's two operations against a Connector.
type Extractor struct {
	conn *Connector
}

// NewExtractor builds an Extractor over an already-connected recorder.
func NewExtractor(conn *Connector) *Extractor {
	return &Extractor{conn: conn}
}

// StateChanges returns the state-change stream for entities within
// [startTS, endTS), in non-decreasing timestamp order (spec.md §4.2).
// Entities are processed in chunks of conn.chunkSize, chunks are queried
// concurrently (bounded by the connector's semaphore), and the per-chunk
// results -- each already ordered by the recorder -- are merged into a
// single ordered stream.
func (e *Extractor) StateChanges(ctx context.Context, entityIDs []string, startTS, endTS float64) ([]model.StateChange, error) {
	if len(entityIDs) == 0 {
		return nil, errs.ErrEmptyInput
	}

	chunks := chunkStrings(entityIDs, e.conn.chunkSize)
	results := make([][]model.StateChange, len(chunks))
	errCh := make(chan error, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk []string) {
			defer wg.Done()
			e.conn.sem <- struct{}{}
			defer func() { <-e.conn.sem }()

			rows, err := e.extractChunk(ctx, chunk, startTS, endTS)
			if err != nil {
				errCh <- err
				return
			}
			results[i] = rows
		}(i, chunk)
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}

	merged := mergeSortedChanges(results)
	if len(merged) == 0 {
		return nil, errs.ErrEmptyInput
	}
	return merged, nil
}

func (e *Extractor) extractChunk(ctx context.Context, chunk []string, startTS, endTS float64) ([]model.StateChange, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

	query := fmt.Sprintf(`
		WITH state_sequence AS (
			SELECT
				sm.entity_id AS entity_id,
				s.state AS state,
				s.last_updated_ts AS ts,
				LAG(s.state) OVER (
					PARTITION BY sm.entity_id
					ORDER BY s.last_updated_ts
				) AS prev_state
			FROM states s
			JOIN states_meta sm ON s.metadata_id = sm.metadata_id
			WHERE sm.entity_id IN (%s)
			AND s.last_updated_ts >= ?
			AND s.last_updated_ts < ?
			AND s.state IS NOT NULL
			AND s.state NOT IN ('unavailable', 'unknown')
		)
		SELECT entity_id, COALESCE(prev_state, ''), state, ts
		FROM state_sequence
		WHERE state != prev_state OR prev_state IS NULL
		ORDER BY ts
	`, placeholders)

	args := make([]interface{}, 0, len(chunk)+2)
	for _, id := range chunk {
		args = append(args, id)
	}
	args = append(args, startTS, endTS)

	qctx, cancel := e.conn.queryContext(ctx)
	defer cancel()

	rows, err := e.conn.db.QueryContext(qctx, query, args...)
	if err != nil {
		return nil, classifyQueryErr(err)
	}
	defer rows.Close()

	var out []model.StateChange
	for rows.Next() {
		var sc model.StateChange
		if err := rows.Scan(&sc.EntityID, &sc.PrevState, &sc.NewState, &sc.Timestamp); err != nil {
			return nil, classifyQueryErr(err)
		}
		if sc.PrevState != "" && sc.PrevState == sc.NewState {
			continue
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryErr(err)
	}

	return out, nil
}

// StateAt resolves the most recent state at or before targetTS for each
// requested entity (spec.md §4.2's state_at). Results are memoised in the
// connector's run-local cache keyed to the second, since ContextBuilder
// calls this once per enriched event and nearby events share a target.
func (e *Extractor) StateAt(ctx context.Context, entityIDs []string, targetTS float64) (map[string]string, error) {
	if len(entityIDs) == 0 {
		return map[string]string{}, nil
	}

	out := make(map[string]string, len(entityIDs))
	var uncached []string

	e.conn.cacheMu.Lock()
	for _, id := range entityIDs {
		key := cacheKey(id, targetTS)
		if v, ok := e.conn.cache[key]; ok {
			if v != "" {
				out[id] = v
			}
		} else {
			uncached = append(uncached, id)
		}
	}
	e.conn.cacheMu.Unlock()

	if len(uncached) == 0 {
		return out, nil
	}

	for _, chunk := range chunkStrings(uncached, e.conn.chunkSize) {
		resolved, err := e.stateAtChunk(ctx, chunk, targetTS)
		if err != nil {
			return nil, err
		}

		e.conn.cacheMu.Lock()
		for _, id := range chunk {
			v := resolved[id]
			e.conn.cache[cacheKey(id, targetTS)] = v
			if v != "" {
				out[id] = v
			}
		}
		e.conn.cacheMu.Unlock()
	}

	return out, nil
}

func (e *Extractor) stateAtChunk(ctx context.Context, chunk []string, targetTS float64) (map[string]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

	query := fmt.Sprintf(`
		SELECT sm.entity_id, s.state
		FROM states s
		JOIN states_meta sm ON s.metadata_id = sm.metadata_id
		WHERE sm.entity_id IN (%s)
		AND s.last_updated_ts <= ?
		AND s.last_updated_ts = (
			SELECT MAX(s2.last_updated_ts)
			FROM states s2
			JOIN states_meta sm2 ON s2.metadata_id = sm2.metadata_id
			WHERE sm2.entity_id = sm.entity_id
			AND s2.last_updated_ts <= ?
		)
	`, placeholders)

	args := make([]interface{}, 0, len(chunk)+2)
	for _, id := range chunk {
		args = append(args, id)
	}
	args = append(args, targetTS, targetTS)

	qctx, cancel := e.conn.queryContext(ctx)
	defer cancel()

	rows, err := e.conn.db.QueryContext(qctx, query, args...)
	if err != nil {
		return nil, classifyQueryErr(err)
	}
	defer rows.Close()

	out := make(map[string]string, len(chunk))
	for rows.Next() {
		var id, state string
		if err := rows.Scan(&id, &state); err != nil {
			return nil, classifyQueryErr(err)
		}
		out[id] = state
	}
	return out, rows.Err()
}

func cacheKey(entityID string, ts float64) string {
	return fmt.Sprintf("%s@%.0f", entityID, ts)
}

func chunkStrings(items []string, size int) [][]string {
	if size <= 0 {
		size = 50
	}
	var chunks [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

// mergeHeapItem is one cursor into a per-chunk, already-sorted slice.
type mergeHeapItem struct {
	change   model.StateChange
	srcIdx   int
	elemIdx  int
}

type mergeHeap []mergeHeapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return h[i].change.Timestamp < h[j].change.Timestamp
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(mergeHeapItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeSortedChanges performs a k-way merge of per-chunk sorted slices,
// preserving spec.md §4.2's non-decreasing timestamp order guarantee.
func mergeSortedChanges(chunks [][]model.StateChange) []model.StateChange {
	h := &mergeHeap{}
	total := 0
	for i, c := range chunks {
		total += len(c)
		if len(c) > 0 {
			heap.Push(h, mergeHeapItem{change: c[0], srcIdx: i, elemIdx: 0})
		}
	}

	out := make([]model.StateChange, 0, total)
	for h.Len() > 0 {
		top := heap.Pop(h).(mergeHeapItem)
		out = append(out, top.change)

		next := top.elemIdx + 1
		if next < len(chunks[top.srcIdx]) {
			heap.Push(h, mergeHeapItem{change: chunks[top.srcIdx][next], srcIdx: top.srcIdx, elemIdx: next})
		}
	}
	return out
}
