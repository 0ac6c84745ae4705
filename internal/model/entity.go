// Package model holds the data types shared across the mining pipeline:
// entities, state changes, enriched events, transactions, patterns, and
// run metadata. Types here are immutable once handed to the next stage
// (see the ownership rules in spec.md §3).
package model

import "strings"

// SignalLevel classifies how useful an entity's state changes are for
// pattern mining.
type SignalLevel string

const (
	SignalHigh    SignalLevel = "high"
	SignalMedium  SignalLevel = "medium"
	SignalLow     SignalLevel = "low"
	SignalExclude SignalLevel = "exclude"
)

// Entity is a Home Assistant entity as classified by the Catalog.
type Entity struct {
	MetadataID  int64       `json:"metadata_id"`
	EntityID    string      `json:"entity_id"`
	Domain      string      `json:"domain"`
	DeviceClass string      `json:"device_class,omitempty"`
	Signal      SignalLevel `json:"signal_level"`
}

// LocalName returns the part of the entity ID after the domain, e.g.
// "front_door" for "lock.front_door".
func (e Entity) LocalName() string {
	_, name, ok := strings.Cut(e.EntityID, ".")
	if !ok {
		return e.EntityID
	}
	return name
}

// SplitEntityID parses "domain.local" into its two parts.
func SplitEntityID(entityID string) (domain, local string) {
	d, l, ok := strings.Cut(entityID, ".")
	if !ok {
		return entityID, ""
	}
	return d, l
}
