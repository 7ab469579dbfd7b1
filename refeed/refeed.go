// Package refeed folds descriptive context from a meta collection into a
// query before expansion, so expansion methods see what the target corpus
// is actually about.
package refeed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/config"
	"github.com/candlelight-ai/lyceum/metrics"
	"github.com/candlelight-ai/lyceum/schema"
	"github.com/candlelight-ai/lyceum/vectordb"
)

const tokenEncoding = "cl100k_base"

// Enricher looks up collection descriptions in the meta collection and
// prepends the budgeted excerpt to the query. Every failure mode is a
// passthrough: the caller always gets a usable enriched query.
type Enricher struct {
	store  vectordb.VectorStoreProvider
	cfg    config.RefeedConfig
	logger *zap.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewEnricher(store vectordb.VectorStoreProvider, cfg config.RefeedConfig, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{store: store, cfg: cfg, logger: logger}
}

// Enrich retrieves meta nodes describing collection and returns the query
// with their text folded in. It skips itself when disabled, when the target
// is the meta collection itself, or when no store is wired; on retrieval
// failure it logs and passes the query through unchanged.
func (e *Enricher) Enrich(ctx context.Context, query, collection string, enabled bool) schema.RefeedContext {
	passthrough := schema.RefeedContext{EnrichedQuery: query}
	if !enabled || e.store == nil || collection == "" || collection == e.cfg.MetaCollection {
		return passthrough
	}

	topN := e.cfg.TopN
	if topN <= 0 {
		topN = 3
	}
	start := time.Now()
	nodes, err := e.store.Search(ctx, query, schema.SearchOptions{
		Collection: e.cfg.MetaCollection,
		Filter:     fmt.Sprintf("collection == %q", collection),
		Limit:      topN,
	})
	if err != nil {
		e.logger.Warn("meta refeed retrieval failed, continuing without enrichment",
			zap.String("collection", collection),
			zap.Error(err))
		return passthrough
	}
	metrics.ObserveRetrieval("meta", time.Since(start), len(nodes))
	if len(nodes) == 0 {
		return passthrough
	}

	contextText := e.budgetedText(nodes)
	if contextText == "" {
		return passthrough
	}
	return schema.RefeedContext{
		MetaNodes:     nodes,
		EnrichedQuery: query + "\n\n" + contextText,
	}
}

// budgetedText concatenates meta node texts up to the token budget. Nodes
// are consumed in retrieval order; a node that would overflow the budget
// is dropped along with everything after it.
func (e *Enricher) budgetedText(nodes []schema.RankedNode) string {
	budget := e.cfg.TokenBudget
	if budget <= 0 {
		budget = 512
	}
	var parts []string
	used := 0
	for _, node := range nodes {
		text := strings.TrimSpace(node.Text())
		if text == "" {
			continue
		}
		n := e.countTokens(text)
		if used+n > budget {
			break
		}
		used += n
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

func (e *Enricher) countTokens(text string) int {
	e.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			e.logger.Warn("token encoding unavailable, falling back to word counts",
				zap.Error(err))
			return
		}
		e.enc = enc
	})
	if e.enc == nil {
		return len(strings.Fields(text))
	}
	return len(e.enc.Encode(text, nil, nil))
}
