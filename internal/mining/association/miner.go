/**
 * CONTEXT:   Association pattern discovery entry point
 * INPUT:     Enriched event stream for a mining run
 * OUTPUT:    Scored association Patterns ready for validation
 * BUSINESS:  The highest-share component of the pipeline (spec.md §2, 16%)
 * CHANGE:    Initial wiring of transaction building, FP-Growth and rule promotion
 * RISK:      Medium - feeds directly into automations if left unvalidated
 */

package association

import (
	"sort"

	"github.com/ha-autopilot/miner/internal/model"
	"github.com/ha-autopilot/miner/pkg/logger"
)

// Miner discovers association patterns per spec.md §4.5.
type Miner struct {
	minSupport float64
	windowSecs float64
	log        *logger.DefaultLogger
}

// New builds a Miner. minSupport is the relative support floor (default
// 0.10); windowSecs is the transaction window width W (default 900).
func New(minSupport, windowSecs float64, log *logger.DefaultLogger) *Miner {
	if minSupport <= 0 {
		minSupport = 0.10
	}
	if windowSecs <= 0 {
		windowSecs = defaultWindowSeconds
	}
	return &Miner{minSupport: minSupport, windowSecs: windowSecs, log: log}
}

// Mine builds transactions from events, runs frequent-itemset mining,
// generates and filters rules, and promotes the survivors to Patterns.
// now is the wall-clock timestamp stamped onto first_seen/last_seen.
func (m *Miner) Mine(events []model.EnrichedEvent, now float64) []model.Pattern {
	windows := BuildTransactions(events, m.windowSecs)
	if len(windows) < 10 {
		if m.log != nil {
			m.log.Info("association: insufficient transactions", "count", len(windows))
		}
		return nil
	}

	transactions := make([][]string, len(windows))
	for i, w := range windows {
		transactions[i] = w.Items
	}

	itemsets := MineFrequentItemsets(transactions, m.minSupport)
	if len(itemsets) == 0 {
		return nil
	}

	itemFreq := ItemsetFrequencyIndex(itemsets)
	rules := GenerateRules(itemsets, itemFreq, len(transactions))

	patterns := make([]model.Pattern, 0, len(rules))
	for _, r := range rules {
		if p, ok := PromoteRule(r, now); ok {
			patterns = append(patterns, p)
		}
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Metrics.PatternScore > patterns[j].Metrics.PatternScore
	})

	if m.log != nil {
		m.log.Info("association mining complete", "transactions", len(transactions), "itemsets", len(itemsets), "patterns", len(patterns))
	}

	return patterns
}
