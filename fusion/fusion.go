// Package fusion merges ranked lists from multiple expansion methods into
// a single list using Reciprocal Rank Fusion.
package fusion

import (
	"fmt"
	"sort"

	"github.com/candlelight-ai/lyceum/schema"
)

// DefaultK is the standard RRF smoothing constant. Larger values flatten
// the difference between adjacent ranks.
const DefaultK = 60

// Stats reports the list sizes observed during one fusion pass.
type Stats struct {
	BeforeFusion int
	AfterDedup   int
	Final        int
	// ShortCircuit is true when at most one method produced results and
	// scoring was skipped.
	ShortCircuit bool
}

// Fuser combines per-method result lists with RRF. It is stateless after
// construction and safe for concurrent use.
type Fuser struct {
	k     int
	limit int
}

// NewFuser validates k and limit up front so Fuse itself cannot fail.
func NewFuser(k, limit int) (*Fuser, error) {
	if k < 1 {
		return nil, fmt.Errorf("rrf k must be >= 1, got %d", k)
	}
	if limit < 1 {
		return nil, fmt.Errorf("fusion limit must be >= 1, got %d", limit)
	}
	return &Fuser{k: k, limit: limit}, nil
}

// K returns the configured smoothing constant.
func (f *Fuser) K() int { return f.k }

type aggregate struct {
	node     schema.RankedNode
	score    float64
	bestRank int
	seen     int
}

// Fuse merges the per-method lists into one ranked list truncated to
// limit; limit < 1 falls back to the fuser's configured limit. A node
// appearing in several lists accumulates 1/(k+rank) per appearance;
// duplicates within a single list count once, at their best rank, and the
// kept node's attributes come from its best-ranked occurrence. With at
// most one non-empty list the RRF pass is skipped and the list is
// deduplicated and truncated as-is. The inputs are never mutated and the
// result is deterministic for identical input.
func (f *Fuser) Fuse(byMethod map[schema.Method][]schema.RankedNode, limit int) ([]schema.RankedNode, Stats) {
	var stats Stats
	if limit < 1 {
		limit = f.limit
	}

	// Iterate methods in a fixed order so accumulation, and therefore
	// tie-breaking, does not depend on map iteration order.
	methods := make([]schema.Method, 0, len(byMethod))
	nonEmpty := 0
	for m, nodes := range byMethod {
		methods = append(methods, m)
		stats.BeforeFusion += len(nodes)
		if len(nodes) > 0 {
			nonEmpty++
		}
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })

	if stats.BeforeFusion == 0 {
		return []schema.RankedNode{}, stats
	}
	stats.ShortCircuit = nonEmpty <= 1

	aggs := map[string]*aggregate{}
	order := make([]string, 0, stats.BeforeFusion)
	for _, m := range methods {
		// Ranks are method-local: position within this list, 1-based,
		// counting duplicates only once.
		rank := 0
		inList := map[string]bool{}
		for _, node := range byMethod[m] {
			if inList[node.ID] {
				continue
			}
			inList[node.ID] = true
			rank++
			a, ok := aggs[node.ID]
			if !ok {
				a = &aggregate{node: node, bestRank: rank, seen: len(order)}
				aggs[node.ID] = a
				order = append(order, node.ID)
			}
			a.score += 1.0 / float64(f.k+rank)
			if rank < a.bestRank {
				a.bestRank = rank
				a.node = node
			}
		}
	}
	stats.AfterDedup = len(aggs)

	sort.Slice(order, func(i, j int) bool {
		a, b := aggs[order[i]], aggs[order[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.bestRank != b.bestRank {
			return a.bestRank < b.bestRank
		}
		return a.seen < b.seen
	})

	n := len(order)
	if n > limit {
		n = limit
	}
	fused := make([]schema.RankedNode, 0, n)
	for i := 0; i < n; i++ {
		a := aggs[order[i]]
		node := a.node
		if !stats.ShortCircuit {
			node.Score = a.score
		}
		node.Rank = i + 1
		fused = append(fused, node)
	}
	stats.Final = len(fused)
	return fused, stats
}
