package model

import "time"

// RunMetadata summarises one engine run end to end (spec.md §3).
type RunMetadata struct {
	RunID              string        `json:"run_id"`
	StartedAt          time.Time     `json:"started_at"`
	EventsLoaded       int           `json:"events_loaded"`
	TransactionsBuilt  int           `json:"transactions_built"`
	PatternsDiscovered int           `json:"patterns_discovered"`
	PatternsValidated  int           `json:"patterns_validated"`
	PatternsStored     int           `json:"patterns_stored"`
	DurationSeconds    float64       `json:"duration_seconds"`
	DaysAnalyzed       int           `json:"days_analyzed"`
	Failed             bool          `json:"failed"`
	FailureReason      string        `json:"failure_reason,omitempty"`
}
