package expansion

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/schema"
)

// PRFStrategy implements pseudo-relevance feedback: it mines salient terms
// from the sparse vectors of the top seed-retrieval hits and appends them
// to the query. No LLM call is made.
type PRFStrategy struct {
	topSeeds int
	maxTerms int
	logger   *zap.Logger
}

func (s *PRFStrategy) Method() schema.Method { return schema.MethodPRF }

// Expand synthesizes at most one enriched query. With no seed nodes there
// is nothing to feed back from, so it contributes nothing rather than
// echoing the original into fusion.
func (s *PRFStrategy) Expand(ctx context.Context, query string, ectx *Context) ([]schema.ExpandedQuery, error) {
	if ectx == nil || len(ectx.SeedNodes) == 0 {
		return nil, nil
	}

	seeds := ectx.SeedNodes
	if len(seeds) > s.topSeeds {
		seeds = seeds[:s.topSeeds]
	}

	// Accumulate term weights across seeds; terms already present in the
	// query carry no new signal.
	present := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(query)) {
		present[w] = true
	}
	weights := map[string]float64{}
	for _, node := range seeds {
		for term, w := range node.SparseVector {
			t := strings.ToLower(strings.TrimSpace(term))
			if t == "" || present[t] {
				continue
			}
			weights[t] += w
		}
	}
	if len(weights) == 0 {
		s.logger.Debug("prf found no novel terms in seed nodes")
		return nil, nil
	}

	terms := make([]string, 0, len(weights))
	for t := range weights {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if weights[terms[i]] != weights[terms[j]] {
			return weights[terms[i]] > weights[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > s.maxTerms {
		terms = terms[:s.maxTerms]
	}

	return []schema.ExpandedQuery{{
		Method: schema.MethodPRF,
		Text:   query + " " + strings.Join(terms, " "),
	}}, nil
}
