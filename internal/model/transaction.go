package model

// TransactionWindow is a half-open interval [Start, End) over enriched
// events, materialised as a bag of "entity:state" items for association
// mining (spec.md §3, §4.5).
type TransactionWindow struct {
	Start        float64         `json:"window_start"`
	End          float64         `json:"window_end"`
	Items        []string        `json:"items"`
	Members      []EnrichedEvent `json:"-"`
	DayType      string          `json:"day_type"`
	TimeBucket   TimeBucket      `json:"time_bucket"`
	QualityScore float64         `json:"quality_score"`
}

// ItemSet returns the window's items as a set for frequency counting.
func (t TransactionWindow) ItemSet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.Items))
	for _, item := range t.Items {
		set[item] = struct{}{}
	}
	return set
}
