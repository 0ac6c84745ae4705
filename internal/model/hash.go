package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalTrigger mirrors Trigger but with explicit field order, used so
// json.Marshal's output is reproducible regardless of struct field tags.
type canonicalTrigger struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
	Context  string `json:"context"`
}

type canonicalAction struct {
	Kind     ActionKind `json:"kind"`
	EntityID string     `json:"entity_id"`
	State    string      `json:"state"`
	Service  string      `json:"service"`
	Steps    []canonicalStep `json:"steps"`
}

type canonicalStep struct {
	EntityID            string `json:"entity_id"`
	State               string `json:"state"`
	Service             string `json:"service"`
	TypicalDelaySeconds int    `json:"typical_delay_seconds"`
}

// CanonicalHash computes the deterministic pattern_hash described in
// spec.md §4.9 and §9: SHA-256 over (sorted canonical JSON of triggers) |
// (canonical JSON of action), truncated to the first 16 hex characters.
// It depends only on triggers and action, never on metrics or occurrence
// data, so re-mining identical input reproduces the same hash.
func CanonicalHash(triggers []Trigger, action Action) string {
	sorted := make([]canonicalTrigger, len(triggers))
	for i, t := range triggers {
		sorted[i] = canonicalTrigger{EntityID: t.EntityID, State: t.State, Context: t.Context}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].EntityID != sorted[j].EntityID {
			return sorted[i].EntityID < sorted[j].EntityID
		}
		return sorted[i].State < sorted[j].State
	})

	ca := canonicalAction{Kind: action.Kind, EntityID: action.EntityID, State: action.State, Service: action.Service}
	for _, s := range action.Steps {
		ca.Steps = append(ca.Steps, canonicalStep{
			EntityID:            s.EntityID,
			State:                s.State,
			Service:              s.Service,
			TypicalDelaySeconds: s.TypicalDelaySeconds,
		})
	}

	triggersJSON, _ := json.Marshal(sorted)
	actionJSON, _ := json.Marshal(ca)

	payload := append(append([]byte{}, triggersJSON...), '|')
	payload = append(payload, actionJSON...)

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

// Hash recomputes and returns this pattern's canonical hash.
func (p Pattern) Hash() string {
	return CanonicalHash(p.Triggers, p.Action)
}
