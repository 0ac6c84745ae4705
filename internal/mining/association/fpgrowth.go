/**
 * CONTEXT:   Frequent itemset mining over synthesized transactions
 * INPUT:     TransactionWindow item sets
 * OUTPUT:    Itemsets at or above the minimum support threshold
 * BUSINESS:  FP-Growth avoids the candidate-generation blowup of naive Apriori
 * CHANGE:    Initial FP-Growth-equivalent implementation (prefix tree, no candidate generation)
 * RISK:      Medium - an incorrect conditional-tree merge would silently under-report itemsets
 */

package association

import (
	"math"
	"sort"
)

// Itemset is a frequent set of items together with its absolute count
// across the transaction corpus.
type Itemset struct {
	Items []string
	Count int
}

// fpNode is one node of the FP-tree.
type fpNode struct {
	item     string
	count    int
	parent   *fpNode
	children map[string]*fpNode
}

func newFPNode(item string, parent *fpNode) *fpNode {
	return &fpNode{item: item, parent: parent, children: make(map[string]*fpNode)}
}

// headerEntry links every node carrying a given item, for prefix-path
// traversal during conditional-tree construction.
type headerEntry struct {
	item  string
	count int
	nodes []*fpNode
}

// MineFrequentItemsets runs an FP-Growth-equivalent algorithm over
// transactions: item frequencies are counted, items below minSupport are
// discarded, a prefix tree is built with items ordered by descending
// frequency, and prefix paths are mined recursively (spec.md §4.5).
// Requires at least 10 transactions to run at all.
func MineFrequentItemsets(transactions [][]string, minSupport float64) []Itemset {
	total := len(transactions)
	if total < 10 {
		return nil
	}

	minCount := int(math.Ceil(minSupport*float64(total) - 1e-9))
	if minCount < 1 {
		minCount = 1
	}

	freq := countItems(transactions)
	frequentItems := make([]string, 0, len(freq))
	for item, count := range freq {
		if count >= minCount {
			frequentItems = append(frequentItems, item)
		}
	}
	sortByFreqDesc(frequentItems, freq)

	rank := make(map[string]int, len(frequentItems))
	for i, item := range frequentItems {
		rank[item] = i
	}

	root := newFPNode("", nil)
	header := make(map[string]*headerEntry, len(frequentItems))
	for _, item := range frequentItems {
		header[item] = &headerEntry{item: item, count: freq[item]}
	}

	for _, tx := range transactions {
		ordered := filterAndOrder(tx, rank)
		insert(root, ordered, header)
	}

	var results []Itemset
	mineTree(header, frequentItems, nil, minCount, &results)
	return results
}

func countItems(transactions [][]string) map[string]int {
	freq := make(map[string]int)
	for _, tx := range transactions {
		for _, item := range uniqueItems(tx) {
			freq[item]++
		}
	}
	return freq
}

func uniqueItems(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}

func sortByFreqDesc(items []string, freq map[string]int) {
	sort.Slice(items, func(i, j int) bool {
		if freq[items[i]] != freq[items[j]] {
			return freq[items[i]] > freq[items[j]]
		}
		return items[i] < items[j]
	})
}

func filterAndOrder(tx []string, rank map[string]int) []string {
	kept := make([]string, 0, len(tx))
	for _, item := range uniqueItems(tx) {
		if _, ok := rank[item]; ok {
			kept = append(kept, item)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return rank[kept[i]] < rank[kept[j]] })
	return kept
}

func insert(root *fpNode, items []string, header map[string]*headerEntry) {
	current := root
	for _, item := range items {
		child, ok := current.children[item]
		if !ok {
			child = newFPNode(item, current)
			current.children[item] = child
			if h, ok := header[item]; ok {
				h.nodes = append(h.nodes, child)
			}
		}
		child.count++
		current = child
	}
}

// mineTree recursively mines conditional pattern bases, following the
// standard FP-Growth recursion: for each item (processed from the least
// frequent upward), collect its prefix paths, build a conditional tree
// from them, and recurse.
func mineTree(header map[string]*headerEntry, order []string, suffix []string, minCount int, results *[]Itemset) {
	for i := len(order) - 1; i >= 0; i-- {
		item := order[i]
		entry := header[item]
		if entry == nil || entry.count < minCount {
			continue
		}

		pattern := append(append([]string{}, suffix...), item)
		*results = append(*results, Itemset{Items: append([]string{}, pattern...), Count: entry.count})

		condBases, condFreq := conditionalPatternBases(entry)
		condItems := make([]string, 0, len(condFreq))
		for it, c := range condFreq {
			if c >= minCount {
				condItems = append(condItems, it)
			}
		}
		if len(condItems) == 0 {
			continue
		}
		sortByFreqDesc(condItems, condFreq)

		condRank := make(map[string]int, len(condItems))
		for idx, it := range condItems {
			condRank[it] = idx
		}

		condRoot := newFPNode("", nil)
		condHeader := make(map[string]*headerEntry, len(condItems))
		for _, it := range condItems {
			condHeader[it] = &headerEntry{item: it, count: condFreq[it]}
		}
		for _, base := range condBases {
			ordered := filterAndOrder(base.path, condRank)
			insertWeighted(condRoot, ordered, condHeader, base.count)
		}

		mineTree(condHeader, condItems, pattern, minCount, results)
	}
}

type conditionalBase struct {
	path  []string
	count int
}

// conditionalPatternBases walks each occurrence of entry's item back to
// the tree root, yielding the prefix path (excluding the item itself) and
// its support count, plus the total frequency of every item seen in any
// base path.
func conditionalPatternBases(entry *headerEntry) ([]conditionalBase, map[string]int) {
	var bases []conditionalBase
	freq := make(map[string]int)

	for _, node := range entry.nodes {
		var path []string
		for p := node.parent; p != nil && p.item != ""; p = p.parent {
			path = append([]string{p.item}, path...)
		}
		if len(path) == 0 {
			continue
		}
		bases = append(bases, conditionalBase{path: path, count: node.count})
		for _, item := range path {
			freq[item] += node.count
		}
	}

	return bases, freq
}

func insertWeighted(root *fpNode, items []string, header map[string]*headerEntry, weight int) {
	current := root
	for _, item := range items {
		child, ok := current.children[item]
		if !ok {
			child = newFPNode(item, current)
			current.children[item] = child
			if h, ok := header[item]; ok {
				h.nodes = append(h.nodes, child)
			}
		}
		child.count += weight
		current = child
	}
}
