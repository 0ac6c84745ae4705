package model

// PatternKind discriminates the three pattern families discovered by the
// miners (spec.md §3 — "tagged variant" per DESIGN NOTES §9).
type PatternKind string

const (
	PatternAssociation PatternKind = "association"
	PatternSequence    PatternKind = "sequence"
	PatternTemporal    PatternKind = "temporal"
)

// PatternStatus tracks a stored pattern's lifecycle.
type PatternStatus string

const (
	StatusActive      PatternStatus = "active"
	StatusDeprecated  PatternStatus = "deprecated"
	StatusConflicting PatternStatus = "conflicting"
)

// Feedback is the user's verdict on a suggested pattern.
type Feedback string

const (
	FeedbackApproved Feedback = "approved"
	FeedbackRejected Feedback = "rejected"
	FeedbackIgnored  Feedback = "ignored"
)

// Recommendation is the discretised pattern_score tier (spec.md §4.8.6).
type Recommendation string

const (
	RecommendAutoSuggest Recommendation = "auto_suggest"
	RecommendSuggest     Recommendation = "suggest"
	RecommendReview      Recommendation = "review"
)

// Trigger is one antecedent condition of a pattern: an entity reaching a
// state, optionally tagged with the context (e.g. a time bucket) that
// made it significant.
type Trigger struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
	Context  string `json:"context,omitempty"`
}

// ActionKind discriminates Action's two shapes (spec.md §3, DESIGN NOTES §9).
type ActionKind string

const (
	ActionSingle ActionKind = "single"
	ActionSteps  ActionKind = "steps"
)

// ActionStep is one step of a multi-step sequence action.
type ActionStep struct {
	EntityID            string `json:"entity_id"`
	State                string `json:"state"`
	Service              string `json:"service"`
	TypicalDelaySeconds  int    `json:"typical_delay_seconds"`
}

// Action is either a single actuation or an ordered list of steps.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Populated when Kind == ActionSingle.
	EntityID string `json:"entity_id,omitempty"`
	State    string `json:"state,omitempty"`
	Service  string `json:"service,omitempty"`

	// Populated when Kind == ActionSteps.
	Steps []ActionStep `json:"steps,omitempty"`
}

// SingleAction builds a single-target Action.
func SingleAction(entityID, state, service string) Action {
	return Action{Kind: ActionSingle, EntityID: entityID, State: state, Service: service}
}

// StepsAction builds a multi-step Action.
func StepsAction(steps []ActionStep) Action {
	return Action{Kind: ActionSteps, Steps: steps}
}

// Entities returns every entity_id referenced by the action, regardless
// of its shape -- used by the Validator's circularity check.
func (a Action) Entities() []string {
	if a.Kind == ActionSingle {
		if a.EntityID == "" {
			return nil
		}
		return []string{a.EntityID}
	}
	ids := make([]string, 0, len(a.Steps))
	for _, s := range a.Steps {
		ids = append(ids, s.EntityID)
	}
	return ids
}

// Metrics carries the statistical strength of a pattern (spec.md §3).
type Metrics struct {
	Confidence   float64  `json:"confidence"`
	Support      float64  `json:"support"`
	Lift         *float64 `json:"lift,omitempty"`
	Conviction   *float64 `json:"conviction,omitempty"`
	PatternScore float64  `json:"pattern_score"`
}

// Provenance tracks a pattern's storage lifecycle.
type Provenance struct {
	FirstSeen       float64        `json:"first_seen"`
	LastSeen        float64        `json:"last_seen"`
	OccurrenceCount int            `json:"occurrence_count"`
	PatternHash     string         `json:"pattern_hash"`
	Status          PatternStatus  `json:"status"`
	UserFeedback    Feedback       `json:"user_feedback,omitempty"`
	Recommendation  Recommendation `json:"recommendation"`
	ConflictWarning bool           `json:"conflict_warning"`
}

// Pattern is the common envelope shared by association, sequence, and
// temporal discoveries (spec.md §3).
type Pattern struct {
	Kind       PatternKind `json:"kind"`
	Triggers   []Trigger   `json:"triggers"`
	Action     Action      `json:"action"`
	Metrics    Metrics     `json:"metrics"`
	Provenance Provenance  `json:"provenance"`

	// Description is a human-readable summary, populated the way the
	// Python original's temporal analyzer generates one (supplemented
	// feature, see SPEC_FULL.md §11).
	Description string `json:"description,omitempty"`
}

// TriggerEntities returns the set of entity IDs appearing in Triggers.
func (p Pattern) TriggerEntities() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Triggers))
	for _, t := range p.Triggers {
		set[t.EntityID] = struct{}{}
	}
	return set
}
