/**
 * CONTEXT:   Run artifact export (events, pattern catalog, automation drafts)
 * INPUT:     EnrichedEvents and validated Patterns from a completed run
 * OUTPUT:    JSONL event dumps, a pattern JSON document, a YAML automation draft
 * BUSINESS:  The YAML draft is the hand-off artifact a human reviews before deploying
 * CHANGE:    Initial port of exporter.py/automation_generator.py's output formats
 * RISK:      Low - export is read-only with respect to the recorder and the store
 */

package export

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ha-autopilot/miner/internal/model"
)

// Exporter writes run artifacts into a configured directory (spec.md §6).
type Exporter struct {
	dir string
}

// New builds an Exporter, creating dir if it does not exist.
func New(dir string) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &Exporter{dir: dir}, nil
}

// ExportEventsJSONL writes one EnrichedEvent per line (spec.md §6).
func (e *Exporter) ExportEventsJSONL(events []model.EnrichedEvent, filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("state_changes_%s.jsonl", timestampTag())
	}
	path := filepath.Join(e.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create events export: %w", err)
	}
	defer f.Close()

	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return "", fmt.Errorf("marshal event: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return "", fmt.Errorf("write event: %w", err)
		}
	}

	return path, nil
}

// PatternSummary is one entry of the pattern export document (spec.md §6).
type PatternSummary struct {
	ID             string                `json:"id"`
	Type           model.PatternKind     `json:"type"`
	Trigger        []model.Trigger       `json:"trigger"`
	Action         model.Action          `json:"action"`
	Confidence     float64               `json:"confidence"`
	Support        float64               `json:"support"`
	Score          float64               `json:"score"`
	Occurrences    int                   `json:"occurrences"`
	Recommendation model.Recommendation  `json:"recommendation"`
}

// PatternDocument is the top-level pattern export shape from spec.md §6.
type PatternDocument struct {
	GeneratedAt  time.Time        `json:"generated_at"`
	PatternCount int              `json:"pattern_count"`
	MinScore     float64          `json:"min_score"`
	Patterns     []PatternSummary `json:"patterns"`
}

// ExportPatterns writes the single-document pattern JSON export.
func (e *Exporter) ExportPatterns(patterns []model.Pattern, minScore float64, generatedAt time.Time) (string, error) {
	doc := PatternDocument{
		GeneratedAt:  generatedAt,
		PatternCount: len(patterns),
		MinScore:     minScore,
	}

	for _, p := range patterns {
		doc.Patterns = append(doc.Patterns, PatternSummary{
			ID:             p.Provenance.PatternHash,
			Type:           p.Kind,
			Trigger:        p.Triggers,
			Action:         p.Action,
			Confidence:     p.Metrics.Confidence,
			Support:        p.Metrics.Support,
			Score:          p.Metrics.PatternScore,
			Occurrences:    p.Provenance.OccurrenceCount,
			Recommendation: p.Provenance.Recommendation,
		})
	}

	path := filepath.Join(e.dir, "patterns_for_review.json")
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal patterns: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write patterns export: %w", err)
	}

	return path, nil
}

// automationDraft's triggers, conditions and actions use
// map[string]interface{} so the YAML shape matches Home Assistant's own schema without a bespoke type
// per trigger/condition/action variant.
type automationDraft struct {
	ID          string                   `yaml:"id"`
	Alias       string                   `yaml:"alias"`
	Description string                   `yaml:"description"`
	Triggers    []map[string]interface{} `yaml:"triggers"`
	Conditions  []map[string]interface{} `yaml:"conditions,omitempty"`
	Actions     []map[string]interface{} `yaml:"actions"`
	Mode        string                   `yaml:"mode"`
}

// ExportAutomationDraft renders validated patterns as a YAML list of
// Home Assistant automation drafts (spec.md §6), for human review before
// deployment -- this module never writes to the host automation platform.
func (e *Exporter) ExportAutomationDraft(patterns []model.Pattern, generatedAt time.Time) (string, error) {
	var drafts []automationDraft
	for _, p := range patterns {
		draft, ok := draftFor(p, generatedAt)
		if ok {
			drafts = append(drafts, draft)
		}
	}

	path := filepath.Join(e.dir, fmt.Sprintf("automations_draft_%s.yaml", timestampTag()))
	data, err := yaml.Marshal(drafts)
	if err != nil {
		return "", fmt.Errorf("marshal automation draft: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write automation draft: %w", err)
	}

	return path, nil
}

func draftFor(p model.Pattern, generatedAt time.Time) (automationDraft, bool) {
	if p.Action.Kind == model.ActionSingle && p.Action.Service == "" {
		return automationDraft{}, false
	}

	triggers := triggersFor(p)
	actions := actionsFor(p)
	if len(actions) == 0 {
		return automationDraft{}, false
	}

	args := idArgs(p)
	id := generateID(string(p.Kind), generatedAt, args...)

	return automationDraft{
		ID:          id,
		Alias:       fmt.Sprintf("[Autopilot] %s", aliasFor(p)),
		Description: descriptionFor(p),
		Triggers:    triggers,
		Actions:     actions,
		Mode:        "single",
	}, true
}

func triggersFor(p model.Pattern) []map[string]interface{} {
	var out []map[string]interface{}
	for _, t := range p.Triggers {
		out = append(out, map[string]interface{}{
			"trigger":   "state",
			"entity_id": t.EntityID,
			"to":        t.State,
		})
	}
	return out
}

func actionsFor(p model.Pattern) []map[string]interface{} {
	if p.Action.Kind == model.ActionSingle {
		if p.Action.Service == "" {
			return nil
		}
		domain, _ := model.SplitEntityID(p.Action.EntityID)
		return []map[string]interface{}{
			{
				"action": fmt.Sprintf("%s.%s", domain, p.Action.Service),
				"target": map[string]interface{}{"entity_id": p.Action.EntityID},
			},
		}
	}

	var out []map[string]interface{}
	for _, step := range p.Action.Steps {
		if step.Service == "" {
			continue
		}
		domain, _ := model.SplitEntityID(step.EntityID)
		action := map[string]interface{}{
			"action": fmt.Sprintf("%s.%s", domain, step.Service),
			"target": map[string]interface{}{"entity_id": step.EntityID},
		}
		if step.TypicalDelaySeconds > 0 {
			action["delay"] = map[string]interface{}{"seconds": step.TypicalDelaySeconds}
		}
		out = append(out, action)
	}
	return out
}

func aliasFor(p model.Pattern) string {
	if p.Action.Kind == model.ActionSingle {
		_, local := model.SplitEntityID(p.Action.EntityID)
		return fmt.Sprintf("%s -> %s", local, p.Action.State)
	}
	return fmt.Sprintf("%s routine", strings.ToLower(string(p.Kind)))
}

func descriptionFor(p model.Pattern) string {
	base := fmt.Sprintf("Auto-generated from pattern detection. %d%% confidence based on %d occurrences.",
		int(p.Metrics.Confidence*100), p.Provenance.OccurrenceCount)
	if p.Description != "" {
		return base + " " + p.Description
	}
	return base
}

func idArgs(p model.Pattern) []string {
	var args []string
	for _, t := range p.Triggers {
		args = append(args, t.EntityID, t.State)
	}
	return args
}

// generateID implements spec.md §6's identifier format:
// autopilot_<type>_<YYYYMMDD>_<8hex> where hex = MD5(type + "_" + joined-args).
func generateID(patternType string, at time.Time, args ...string) string {
	joined := strings.Join(args, "_")
	sum := md5.Sum([]byte(patternType + "_" + joined))
	hexDigest := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("autopilot_%s_%s_%s", patternType, at.Format("20060102"), hexDigest)
}

func timestampTag() string {
	return time.Now().UTC().Format("20060102_150405")
}
