/**
 * CONTEXT:   Entity signal classification for the pattern mining pipeline
 * INPUT:     states_meta / state_attributes rows from the recorder
 * OUTPUT:    Entities tagged high/medium/low/exclude signal, filtered lists, reports
 * BUSINESS:  Keeps low-value sensors (raw temperature, uptime counters) out of mining
 * CHANGE:    Initial port of entity_classifier.py's domain/device_class cascade
 * RISK:      Low - a misclassification only costs recall, it cannot corrupt a pattern
 */

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"

	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/pkg/logger"
)

var highSignalDomains = map[string]bool{
	"light": true, "switch": true, "lock": true, "cover": true,
	"media_player": true, "input_boolean": true, "person": true,
	"input_select": true,
}

var mediumSignalDomains = map[string]bool{
	"climate": true, "fan": true, "vacuum": true, "humidifier": true,
	"water_heater": true,
}

var highSignalBinaryClasses = map[string]bool{
	"door": true, "window": true, "motion": true, "occupancy": true,
	"presence": true, "garage_door": true, "lock": true, "opening": true,
	"safety": true,
}

var mediumSignalBinaryClasses = map[string]bool{
	"plug": true, "running": true, "moving": true, "sound": true,
	"vibration": true,
}

var excludeDomains = map[string]bool{
	"weather": true, "sun": true, "automation": true, "script": true,
	"scene": true, "persistent_notification": true, "zone": true,
	"device_tracker": true, "update": true, "button": true,
	"number": true, "select": true, "text": true,
}

// Catalog classifies recorder entities by signal quality (spec.md §4.1)
// and caches both the entity list and per-entity device_class lookups for
// the lifetime of a run.
type Catalog struct {
	db   *sql.DB
	log  *logger.DefaultLogger
	incl map[string]bool
	excl map[string]bool

	mu         sync.Mutex
	entities   []model.Entity
	entitiesOK bool
	deviceCls  map[string]string
}

// New builds a Catalog over a recorder database handle. customIncludes and
// customExcludes take precedence over every other rule, matching
// entity_classifier.py's override behavior.
func New(db *sql.DB, log *logger.DefaultLogger, customIncludes, customExcludes []string) *Catalog {
	c := &Catalog{
		db:        db,
		log:       log,
		incl:      toSet(customIncludes),
		excl:      toSet(customExcludes),
		deviceCls: make(map[string]string),
	}
	return c
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

// AllEntities loads every entity in states_meta, memoised for the run.
func (c *Catalog) AllEntities(ctx context.Context) ([]model.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entitiesOK {
		return c.entities, nil
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT metadata_id, entity_id
		FROM states_meta
		ORDER BY entity_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.MetadataID, &e.EntityID); err != nil {
			return nil, err
		}
		e.Domain, _ = model.SplitEntityID(e.EntityID)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	c.entities = entities
	c.entitiesOK = true
	if c.log != nil {
		c.log.Info("entities loaded", "count", len(entities))
	}
	return entities, nil
}

// DeviceClass looks up the device_class attribute of an entity's most
// recent recorded state, caching the result (including "no class found").
func (c *Catalog) DeviceClass(ctx context.Context, entityID string) (string, error) {
	c.mu.Lock()
	if v, ok := c.deviceCls[entityID]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	row := c.db.QueryRowContext(ctx, `
		SELECT sa.shared_attrs
		FROM states s
		JOIN states_meta sm ON s.metadata_id = sm.metadata_id
		JOIN state_attributes sa ON s.attributes_id = sa.attributes_id
		WHERE sm.entity_id = ?
		AND sa.shared_attrs IS NOT NULL
		ORDER BY s.last_updated_ts DESC
		LIMIT 1
	`, entityID)

	var raw string
	deviceClass := ""
	if err := row.Scan(&raw); err == nil {
		var attrs map[string]interface{}
		if json.Unmarshal([]byte(raw), &attrs) == nil {
			if v, ok := attrs["device_class"].(string); ok {
				deviceClass = v
			}
		}
	}

	c.mu.Lock()
	c.deviceCls[entityID] = deviceClass
	c.mu.Unlock()

	return deviceClass, nil
}

// Classify returns the signal level for a single entity, applying the
// override -> exclude-domain -> high-domain -> medium-domain ->
// binary_sensor device_class -> default-low cascade.
func (c *Catalog) Classify(ctx context.Context, entityID, domain string) model.SignalLevel {
	if c.excl[entityID] {
		return model.SignalExclude
	}
	if c.incl[entityID] {
		return model.SignalHigh
	}

	if excludeDomains[domain] {
		return model.SignalExclude
	}
	if highSignalDomains[domain] {
		return model.SignalHigh
	}
	if mediumSignalDomains[domain] {
		return model.SignalMedium
	}

	if domain == "binary_sensor" {
		deviceClass, _ := c.DeviceClass(ctx, entityID)
		if highSignalBinaryClasses[deviceClass] {
			return model.SignalHigh
		}
		if mediumSignalBinaryClasses[deviceClass] {
			return model.SignalMedium
		}
		return model.SignalLow
	}

	return model.SignalLow
}

// GetFilteredEntities returns entities at or above minSignal, excluding
// anything classified "exclude" or "low" (spec.md §4.1).
func (c *Catalog) GetFilteredEntities(ctx context.Context, minSignal model.SignalLevel) ([]model.Entity, error) {
	all, err := c.AllEntities(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.Entity
	for _, e := range all {
		level := c.Classify(ctx, e.EntityID, e.Domain)
		if level == model.SignalExclude || level == model.SignalLow {
			continue
		}
		if level == model.SignalMedium && minSignal == model.SignalHigh {
			continue
		}
		e.Signal = level
		out = append(out, e)
	}

	if c.log != nil {
		c.log.Info("entities filtered", "kept", len(out), "total", len(all))
	}
	return out, nil
}

// ClassificationReport is a supplemented feature (grounded in
// entity_classifier.py's generate_report): a breakdown of every entity by
// signal level, for tuning custom include/exclude lists.
type ClassificationReport struct {
	Counts   map[model.SignalLevel]int      `json:"counts"`
	Entities map[model.SignalLevel][]string `json:"entities"`
}

// Report classifies every known entity and groups the results by level.
func (c *Catalog) Report(ctx context.Context) (*ClassificationReport, error) {
	all, err := c.AllEntities(ctx)
	if err != nil {
		return nil, err
	}

	rep := &ClassificationReport{
		Counts:   make(map[model.SignalLevel]int),
		Entities: make(map[model.SignalLevel][]string),
	}

	for _, e := range all {
		level := c.Classify(ctx, e.EntityID, e.Domain)
		rep.Counts[level]++
		rep.Entities[level] = append(rep.Entities[level], e.EntityID)
	}

	for level := range rep.Entities {
		sort.Strings(rep.Entities[level])
	}

	return rep, nil
}
