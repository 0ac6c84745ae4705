package model

import "time"

// UnavailableStates are filtered at source on both sides of a comparison
// (spec.md §4.2).
var UnavailableStates = map[string]bool{
	"unavailable": true,
	"unknown":     true,
}

// StateChange is a single meaningful state transition for one entity.
// PrevState is empty for an entity's first observation in range.
type StateChange struct {
	EntityID  string  `json:"entity_id"`
	PrevState string  `json:"prev_state,omitempty"`
	NewState  string  `json:"new_state"`
	Timestamp float64 `json:"timestamp"` // unix seconds, fractional
}

// HasPrev reports whether this change has a predecessor state.
func (s StateChange) HasPrev() bool { return s.PrevState != "" }

// Time returns the change's timestamp as a time.Time in UTC.
func (s StateChange) Time() time.Time {
	sec := int64(s.Timestamp)
	nsec := int64((s.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// TimeBucket is a coarse time-of-day label used by association and
// temporal mining (spec.md §3).
type TimeBucket string

const (
	BucketEarlyMorning TimeBucket = "early_morning"
	BucketMorning      TimeBucket = "morning"
	BucketMidday       TimeBucket = "midday"
	BucketAfternoon    TimeBucket = "afternoon"
	BucketEvening      TimeBucket = "evening"
	BucketNight        TimeBucket = "night"
	BucketLateNight    TimeBucket = "late_night"
)

// TimeBucketForHour implements the boundaries from spec.md §4.3.
func TimeBucketForHour(hour int) TimeBucket {
	switch {
	case hour >= 5 && hour < 9:
		return BucketEarlyMorning
	case hour >= 9 && hour < 12:
		return BucketMorning
	case hour >= 12 && hour < 14:
		return BucketMidday
	case hour >= 14 && hour < 17:
		return BucketAfternoon
	case hour >= 17 && hour < 20:
		return BucketEvening
	case hour >= 20 && hour < 23:
		return BucketNight
	default:
		return BucketLateNight
	}
}

// ConcurrentChange records another entity's change within the ±60s lookback
// window used to populate EnrichedEvent.ConcurrentChanges.
type ConcurrentChange struct {
	EntityID      string  `json:"entity_id"`
	NewState      string  `json:"new_state"`
	OffsetSeconds float64 `json:"offset_seconds"`
}

// EnrichedEvent extends StateChange with the temporal, contextual and
// quality fields described in spec.md §3.
type EnrichedEvent struct {
	StateChange

	Hour                  int                `json:"hour"`
	Minute                int                `json:"minute"`
	Weekday               int                `json:"weekday"` // 0 = Monday
	IsWeekend             bool               `json:"is_weekend"`
	Date                  string             `json:"date"` // YYYY-MM-DD
	SecondsSinceLastChange *float64          `json:"seconds_since_last_change"`
	TimeBucket            TimeBucket         `json:"time_bucket"`
	SunPosition           *string            `json:"sun_position"`
	ConcurrentStates      map[string]string  `json:"concurrent_states"`
	ConcurrentChanges     []ConcurrentChange `json:"concurrent_changes"`
	PeopleHome            int                `json:"people_home"`
	AnyoneHome            bool               `json:"anyone_home"`
	DuringFlap            bool               `json:"during_flap"`
	QualityScore          float64            `json:"quality_score"`
}

// Item returns the "entity:state" token used by association/sequence mining.
func (e EnrichedEvent) Item() string {
	return e.EntityID + ":" + e.NewState
}

// DayType classifies an event's date as weekday or weekend, used to key
// transaction windows (spec.md §3 TransactionWindow.day_type).
func (e EnrichedEvent) DayType() string {
	if e.IsWeekend {
		return "weekend"
	}
	return "weekday"
}
