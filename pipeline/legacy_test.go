package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlelight-ai/lyceum/config"
	"github.com/candlelight-ai/lyceum/fusion"
	"github.com/candlelight-ai/lyceum/llm"
	"github.com/candlelight-ai/lyceum/orchestrator"
	"github.com/candlelight-ai/lyceum/schema"
)

type fakeLLM func(ctx context.Context, prompt string, opts llm.Options) (string, error)

func (f fakeLLM) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	return f(ctx, prompt, opts)
}

type fakeStore func(ctx context.Context, query string, opts schema.SearchOptions) ([]schema.RankedNode, error)

func (f fakeStore) Search(ctx context.Context, query string, opts schema.SearchOptions) ([]schema.RankedNode, error) {
	return f(ctx, query, opts)
}

func newLegacy(t *testing.T, provider llm.Provider, store fakeStore) *LegacyRunner {
	t.Helper()
	cfg := config.Default()
	fuser, err := fusion.NewFuser(cfg.Fusion.RRFK, cfg.Fusion.Limit)
	require.NoError(t, err)
	return NewLegacyRunner(orchestrator.New(provider, store, cfg, nil), fuser, nil)
}

func TestLegacyRunFusesAcrossMethods(t *testing.T) {
	provider := fakeLLM(func(context.Context, string, llm.Options) (string, error) {
		return "a generated expansion", nil
	})
	store := fakeStore(func(_ context.Context, _ string, opts schema.SearchOptions) ([]schema.RankedNode, error) {
		return []schema.RankedNode{
			{ID: "shared", Score: 0.9},
			{ID: "solo", Score: 0.4},
		}, nil
	})
	r := newLegacy(t, provider, store)

	result, err := r.Run(context.Background(), Request{
		Query:      "what is virtue",
		Collection: "aristotle",
		Methods:    []schema.Method{schema.MethodHyDE, schema.MethodRAGFusion},
		Limit:      5,
		RequestID:  "req-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.FinalResults)

	// Both methods returned the same two documents, so fusion keeps two.
	assert.Len(t, result.FinalResults, 2)
	assert.Equal(t, "shared", result.FinalResults[0].ID)

	meta := result.Metadata
	assert.Equal(t, "req-1", meta.RequestID)
	assert.ElementsMatch(t, []schema.Method{schema.MethodHyDE, schema.MethodRAGFusion}, meta.MethodsUsed)
	assert.Equal(t, 4, meta.ResultsBeforeFusion)
	assert.Equal(t, 2, meta.ResultsAfterDedup)
	assert.Equal(t, 2, meta.FinalResultCount)
	assert.Positive(t, meta.TotalExpandedQueries)
	assert.Len(t, meta.MethodTimings, 2)
	assert.False(t, meta.DeadlineExceeded)
	assert.Empty(t, meta.Errors)
}

func TestLegacyRunHyDEFailureDegradesToFallback(t *testing.T) {
	// hyde's generation fails so it retrieves with the original query,
	// which matches nothing. self_ask decomposes into three sub-questions
	// that each retrieve one document. With a single non-empty list fusion
	// short-circuits and the raw similarity scores survive.
	provider := fakeLLM(func(_ context.Context, prompt string, _ llm.Options) (string, error) {
		if strings.Contains(prompt, "Passage:") {
			return "", errors.New("llm unavailable")
		}
		return "Who founded the academy?\nWhere was it located?\nWhen did it close?", nil
	})
	byQuery := map[string][]schema.RankedNode{
		"Who founded the academy?": {{ID: "s1", Score: 0.9}},
		"Where was it located?":    {{ID: "s2", Score: 0.8}},
		"When did it close?":       {{ID: "s3", Score: 0.7}},
	}
	store := fakeStore(func(_ context.Context, query string, _ schema.SearchOptions) ([]schema.RankedNode, error) {
		return byQuery[query], nil
	})

	// The degraded expansion is flagged as a fallback.
	cfg := config.Default()
	out := orchestrator.New(provider, store, cfg, nil).Run(context.Background(), orchestrator.Request{
		Query:   "tell me about the academy",
		Methods: []schema.Method{schema.MethodHyDE},
		Limit:   5,
	})
	require.Len(t, out.MethodResults, 1)
	require.Len(t, out.MethodResults[0].Queries, 1)
	assert.True(t, out.MethodResults[0].Queries[0].IsFallback)

	r := newLegacy(t, provider, store)
	result, err := r.Run(context.Background(), Request{
		Query:   "tell me about the academy",
		Methods: []schema.Method{schema.MethodHyDE, schema.MethodSelfAsk},
		Limit:   5,
	})
	require.NoError(t, err)

	meta := result.Metadata
	// hyde still counts as used: it contributed its fallback query.
	assert.ElementsMatch(t, []schema.Method{schema.MethodHyDE, schema.MethodSelfAsk}, meta.MethodsUsed)
	assert.Empty(t, meta.Errors)

	require.Len(t, result.FinalResults, 3)
	assert.Equal(t, "s1", result.FinalResults[0].ID)
	// Short-circuited fusion keeps the original similarity scores.
	assert.Equal(t, 0.9, result.FinalResults[0].Score)
	assert.Equal(t, 0.8, result.FinalResults[1].Score)
	assert.Equal(t, 0.7, result.FinalResults[2].Score)
}

func TestLegacyRunDisjointMethodResults(t *testing.T) {
	// Three methods retrieve fully disjoint sets of 5, 6, and 4 documents.
	// Nothing collapses in dedup, so both counters read 15 and only the
	// request limit trims the fused output.
	provider := fakeLLM(func(_ context.Context, prompt string, _ llm.Options) (string, error) {
		switch {
		case strings.Contains(prompt, "Passage:"):
			return "a hypothetical answer document", nil
		case strings.Contains(prompt, "alternative phrasings"):
			return "rephrased once", nil
		default:
			return "What is the first part?", nil
		}
	})
	mint := func(prefix string, n int) []schema.RankedNode {
		nodes := make([]schema.RankedNode, n)
		for i := range nodes {
			nodes[i] = schema.RankedNode{ID: fmt.Sprintf("%s-%d", prefix, i), Score: 0.9 - float64(i)*0.05}
		}
		return nodes
	}
	byQuery := map[string][]schema.RankedNode{
		"a hypothetical answer document": mint("h", 5),
		"rephrased once":                 mint("r", 6),
		"What is the first part?":        mint("s", 4),
	}
	store := fakeStore(func(_ context.Context, query string, _ schema.SearchOptions) ([]schema.RankedNode, error) {
		return byQuery[query], nil
	})
	r := newLegacy(t, provider, store)

	result, err := r.Run(context.Background(), Request{
		Query:   "compound question",
		Methods: []schema.Method{schema.MethodHyDE, schema.MethodRAGFusion, schema.MethodSelfAsk},
		Limit:   10,
	})
	require.NoError(t, err)

	meta := result.Metadata
	assert.Equal(t, 15, meta.ResultsBeforeFusion)
	assert.Equal(t, 15, meta.ResultsAfterDedup)
	assert.Equal(t, 10, meta.FinalResultCount)
	assert.Len(t, result.FinalResults, 10)
}

func TestLegacyRunRecordsMethodErrors(t *testing.T) {
	provider := fakeLLM(func(context.Context, string, llm.Options) (string, error) {
		return "expansion", nil
	})
	store := fakeStore(func(context.Context, string, schema.SearchOptions) ([]schema.RankedNode, error) {
		return nil, errors.New("store down")
	})
	r := newLegacy(t, provider, store)

	result, err := r.Run(context.Background(), Request{
		Query:   "q",
		Methods: []schema.Method{schema.MethodHyDE},
		Limit:   5,
	})
	require.NoError(t, err)
	assert.Empty(t, result.FinalResults)
	assert.Contains(t, result.Metadata.Errors, "hyde")
}

func TestLegacyRunUsesEnrichedQuery(t *testing.T) {
	var sawEnriched bool
	provider := fakeLLM(func(_ context.Context, prompt string, _ llm.Options) (string, error) {
		return "expansion", nil
	})
	store := fakeStore(func(_ context.Context, query string, _ schema.SearchOptions) ([]schema.RankedNode, error) {
		if query == "q\n\ncontext about the corpus" {
			sawEnriched = true
		}
		return nil, nil
	})
	r := newLegacy(t, provider, store)

	refeedCtx := schema.RefeedContext{
		MetaNodes:     []schema.RankedNode{{ID: "m1"}},
		EnrichedQuery: "q\n\ncontext about the corpus",
	}
	result, err := r.Run(context.Background(), Request{
		Query:         "q",
		EnrichedQuery: refeedCtx.EnrichedQuery,
		Methods:       []schema.Method{schema.MethodSelfAsk},
		Limit:         5,
		Refeed:        refeedCtx,
	})
	require.NoError(t, err)
	assert.True(t, sawEnriched)
	assert.True(t, result.Metadata.RefeedApplied)
	assert.Equal(t, 1, result.Metadata.RefeedNodes)
}
