package refeed

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlelight-ai/lyceum/config"
	"github.com/candlelight-ai/lyceum/schema"
)

type fakeStore struct {
	calls    atomic.Int64
	lastOpts schema.SearchOptions
	fn       func(ctx context.Context, query string, opts schema.SearchOptions) ([]schema.RankedNode, error)
}

func (s *fakeStore) Search(ctx context.Context, query string, opts schema.SearchOptions) ([]schema.RankedNode, error) {
	s.calls.Add(1)
	s.lastOpts = opts
	return s.fn(ctx, query, opts)
}

func metaNode(id, text string) schema.RankedNode {
	return schema.RankedNode{ID: id, Score: 0.9, Payload: map[string]any{"text": text}}
}

func refeedConfig() config.RefeedConfig {
	return config.RefeedConfig{MetaCollection: "meta", TopN: 3, TokenBudget: 512}
}

func TestEnrichFoldsMetaContext(t *testing.T) {
	store := &fakeStore{fn: func(context.Context, string, schema.SearchOptions) ([]schema.RankedNode, error) {
		return []schema.RankedNode{
			metaNode("m1", "The aristotle collection covers classical philosophy."),
			metaNode("m2", "Sources include the Nicomachean Ethics and Politics."),
		}, nil
	}}
	e := NewEnricher(store, refeedConfig(), nil)

	rctx := e.Enrich(context.Background(), "what is virtue", "aristotle", true)

	assert.Equal(t, int64(1), store.calls.Load())
	assert.Equal(t, "meta", store.lastOpts.Collection)
	assert.Equal(t, `collection == "aristotle"`, store.lastOpts.Filter)
	assert.Equal(t, 3, store.lastOpts.Limit)

	require.Len(t, rctx.MetaNodes, 2)
	assert.True(t, strings.HasPrefix(rctx.EnrichedQuery, "what is virtue\n\n"))
	assert.Contains(t, rctx.EnrichedQuery, "classical philosophy")
	assert.Contains(t, rctx.EnrichedQuery, "Nicomachean Ethics")
}

func TestEnrichDisabledMakesNoCalls(t *testing.T) {
	store := &fakeStore{fn: func(context.Context, string, schema.SearchOptions) ([]schema.RankedNode, error) {
		t.Fatal("store must not be called when refeed is disabled")
		return nil, nil
	}}
	e := NewEnricher(store, refeedConfig(), nil)

	rctx := e.Enrich(context.Background(), "q", "aristotle", false)

	assert.Equal(t, int64(0), store.calls.Load())
	assert.Equal(t, "q", rctx.EnrichedQuery)
	assert.Empty(t, rctx.MetaNodes)
}

func TestEnrichSkipsMetaCollectionItself(t *testing.T) {
	store := &fakeStore{fn: func(context.Context, string, schema.SearchOptions) ([]schema.RankedNode, error) {
		t.Fatal("store must not be called for the meta collection")
		return nil, nil
	}}
	e := NewEnricher(store, refeedConfig(), nil)

	rctx := e.Enrich(context.Background(), "q", "meta", true)

	assert.Equal(t, int64(0), store.calls.Load())
	assert.Equal(t, "q", rctx.EnrichedQuery)
}

func TestEnrichPassesThroughOnRetrievalFailure(t *testing.T) {
	store := &fakeStore{fn: func(context.Context, string, schema.SearchOptions) ([]schema.RankedNode, error) {
		return nil, errors.New("timeout")
	}}
	e := NewEnricher(store, refeedConfig(), nil)

	rctx := e.Enrich(context.Background(), "q", "aristotle", true)

	assert.Equal(t, "q", rctx.EnrichedQuery)
	assert.Empty(t, rctx.MetaNodes)
}

func TestEnrichPassesThroughOnEmptyMeta(t *testing.T) {
	store := &fakeStore{fn: func(context.Context, string, schema.SearchOptions) ([]schema.RankedNode, error) {
		return nil, nil
	}}
	e := NewEnricher(store, refeedConfig(), nil)

	rctx := e.Enrich(context.Background(), "q", "aristotle", true)

	assert.Equal(t, "q", rctx.EnrichedQuery)
}

func TestEnrichRespectsTokenBudget(t *testing.T) {
	long := strings.Repeat("philosophy ", 200) // far beyond the budget
	store := &fakeStore{fn: func(context.Context, string, schema.SearchOptions) ([]schema.RankedNode, error) {
		return []schema.RankedNode{
			metaNode("m1", "short description"),
			metaNode("m2", long),
			metaNode("m3", "never reached"),
		}, nil
	}}
	cfg := refeedConfig()
	cfg.TokenBudget = 10
	e := NewEnricher(store, cfg, nil)

	rctx := e.Enrich(context.Background(), "q", "aristotle", true)

	assert.Contains(t, rctx.EnrichedQuery, "short description")
	assert.NotContains(t, rctx.EnrichedQuery, long)
	assert.NotContains(t, rctx.EnrichedQuery, "never reached")
}

func TestEnrichNilStoreIsPassthrough(t *testing.T) {
	e := NewEnricher(nil, refeedConfig(), nil)

	rctx := e.Enrich(context.Background(), "q", "aristotle", true)
	assert.Equal(t, "q", rctx.EnrichedQuery)
}
