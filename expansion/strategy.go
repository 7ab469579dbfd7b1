package expansion

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/config"
	"github.com/candlelight-ai/lyceum/llm"
	"github.com/candlelight-ai/lyceum/schema"
)

// Context carries the per-request inputs shared by strategies.
type Context struct {
	// SeedNodes is the prior seed retrieval consumed by PRF; may be empty.
	SeedNodes []schema.RankedNode
	// Persona is forwarded to LLM calls as a system prompt.
	Persona string
}

// Strategy expands one query into zero or more differently-phrased queries.
// Implementations absorb LLM failures into fallback expansions and never
// propagate them.
type Strategy interface {
	Method() schema.Method
	Expand(ctx context.Context, query string, ectx *Context) ([]schema.ExpandedQuery, error)
}

// NewStrategy constructs the strategy for a method. The method set is
// closed: adding one means adding a variant here, not string matching at
// call sites.
func NewStrategy(method schema.Method, provider llm.Provider, cfg config.ExpansionConfig, logger *zap.Logger) (Strategy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch method {
	case schema.MethodHyDE:
		return &HyDEStrategy{provider: provider, logger: logger}, nil
	case schema.MethodRAGFusion:
		maxQueries := cfg.MaxFusionQueries
		if maxQueries <= 0 {
			maxQueries = 6
		}
		return &RAGFusionStrategy{provider: provider, maxQueries: maxQueries, logger: logger}, nil
	case schema.MethodSelfAsk:
		maxSubs := cfg.MaxSubQuestions
		if maxSubs <= 0 {
			maxSubs = 6
		}
		return &SelfAskStrategy{provider: provider, maxSubQuestions: maxSubs, logger: logger}, nil
	case schema.MethodPRF:
		topSeeds := cfg.PRFTopSeeds
		if topSeeds <= 0 {
			topSeeds = 3
		}
		maxTerms := cfg.PRFMaxTerms
		if maxTerms <= 0 {
			maxTerms = 8
		}
		return &PRFStrategy{topSeeds: topSeeds, maxTerms: maxTerms, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown expansion method %q", method)
	}
}

// fallbackQuery is the degraded expansion used when a method's LLM call
// fails: the original query, flagged so fusion metadata can report it.
func fallbackQuery(method schema.Method, query string) schema.ExpandedQuery {
	return schema.ExpandedQuery{
		Method:     method,
		Text:       query,
		IsFallback: true,
		Tag:        "expansion_failed:" + string(method),
	}
}

// cleanLine strips bullets, numbering and quotes an LLM tends to wrap list
// items in.
func cleanLine(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "-*•")
	s = strings.TrimSpace(s)
	// Drop a leading "1." / "2)" style ordinal.
	if idx := strings.IndexAny(s, ".)"); idx > 0 && idx <= 2 {
		if isDigits(s[:idx]) {
			s = strings.TrimSpace(s[idx+1:])
		}
	}
	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
