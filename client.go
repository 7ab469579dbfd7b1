// Package lyceum is a query expansion and retrieval fusion engine for RAG
// systems. A single query fans out through multiple expansion methods,
// each expanded query retrieves independently, and the ranked lists merge
// through reciprocal rank fusion into one result list.
package lyceum

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/cache"
	"github.com/candlelight-ai/lyceum/config"
	"github.com/candlelight-ai/lyceum/embedding"
	"github.com/candlelight-ai/lyceum/fusion"
	"github.com/candlelight-ai/lyceum/llm"
	"github.com/candlelight-ai/lyceum/metrics"
	"github.com/candlelight-ai/lyceum/orchestrator"
	"github.com/candlelight-ai/lyceum/pipeline"
	"github.com/candlelight-ai/lyceum/refeed"
	"github.com/candlelight-ai/lyceum/schema"
	"github.com/candlelight-ai/lyceum/vectordb"
)

// Client is the top-level entry point. It is safe for concurrent use.
type Client struct {
	cfg      *config.Config
	logger   *zap.Logger
	llm      llm.Provider
	store    vectordb.VectorStoreProvider
	enricher *refeed.Enricher
	selector *pipeline.Selector
	cache    cache.Cache
	cacheTTL time.Duration
}

// ClientOption overrides a constructed collaborator, mainly for tests and
// embedding into hosts that already hold connections.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger *zap.Logger
	llm    llm.Provider
	store  vectordb.VectorStoreProvider
	engine pipeline.Engine
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

func WithLLMProvider(p llm.Provider) ClientOption {
	return func(o *clientOptions) { o.llm = p }
}

func WithVectorStore(s vectordb.VectorStoreProvider) ClientOption {
	return func(o *clientOptions) { o.store = s }
}

func WithModernEngine(e pipeline.Engine) ClientOption {
	return func(o *clientOptions) { o.engine = e }
}

// New validates cfg and wires the full pipeline. Configuration problems
// are the only errors New returns for its own wiring; collaborator
// construction failures (unreachable vector store, unknown provider) are
// also surfaced here so misconfiguration never hides until first query.
func New(ctx context.Context, cfg *config.Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{cfg: cfg, logger: logger, llm: o.llm, store: o.store}

	if c.llm == nil {
		provider, err := llm.NewProvider(cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
		c.llm = provider
	}
	if c.store == nil {
		var embProvider embedding.Provider = embedding.NewOpenAIEmbedder(cfg.Embedding, logger)
		if cfg.Embedding.CacheEntries > 0 {
			embProvider = embedding.NewCached(embProvider,
				cache.NewLRU(cfg.Embedding.CacheEntries, 0), 0)
		}
		store, err := vectordb.NewProvider(ctx, cfg.VectorDB, embProvider, logger)
		if err != nil {
			return nil, err
		}
		c.store = store
	}

	if cfg.Cache.Enable {
		ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
		switch strings.ToLower(strings.TrimSpace(cfg.Cache.Store)) {
		case "redis":
			rc, err := cache.NewRedis(cfg.Cache.Redis, ttl, logger)
			if err != nil {
				return nil, err
			}
			c.cache = rc
		default:
			c.cache = cache.NewLRU(cfg.Cache.MaxEntries, ttl)
		}
		c.cacheTTL = ttl
	}

	c.enricher = refeed.NewEnricher(c.store, cfg.Refeed, logger)

	fuser, err := fusion.NewFuser(cfg.Fusion.RRFK, cfg.Fusion.Limit)
	if err != nil {
		return nil, err
	}
	orch := orchestrator.New(c.llm, c.store, cfg, logger)
	legacy := pipeline.NewLegacyRunner(orch, fuser, logger)

	var modern pipeline.Runner
	engine := o.engine
	if engine == nil && cfg.Pipeline.ModernEndpoint != "" {
		engine = pipeline.NewHTTPEngine(cfg.Pipeline.ModernEndpoint,
			time.Duration(cfg.Pipeline.ModernTimeoutMs)*time.Millisecond)
	}
	if engine != nil {
		modern = pipeline.NewModernRunner(engine, logger)
	}
	c.selector = pipeline.NewSelector(modern, legacy,
		func() bool { return cfg.Pipeline.UseModern }, logger)

	return c, nil
}

// RequestOption adjusts one ExpandAndRetrieve call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	methods   []schema.Method
	methodErr error
	limit     int
	persona   string
	refeed    *bool
}

// WithMethods restricts the expansion methods for this request. Unknown
// method names make ExpandAndRetrieve return an error before any work
// starts.
func WithMethods(names ...string) RequestOption {
	return func(o *requestOptions) {
		for _, name := range names {
			m, err := schema.ParseMethod(name)
			if err != nil {
				o.methodErr = err
				return
			}
			o.methods = append(o.methods, m)
		}
	}
}

// WithLimit overrides the configured final result count.
func WithLimit(n int) RequestOption {
	return func(o *requestOptions) { o.limit = n }
}

// WithPersona sets the system prompt persona used by LLM-backed methods.
func WithPersona(p string) RequestOption {
	return func(o *requestOptions) { o.persona = p }
}

// WithRefeed overrides the configured meta refeed toggle for this request.
func WithRefeed(enabled bool) RequestOption {
	return func(o *requestOptions) { o.refeed = &enabled }
}

// ExpandAndRetrieve runs the full pipeline for one query. The only errors
// it returns are configuration-class: an unknown method name or an empty
// query. Everything downstream degrades into metadata instead of failing.
func (c *Client) ExpandAndRetrieve(ctx context.Context, query, collection string, opts ...RequestOption) (*schema.ExpansionResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &config.ValidationError{Field: "query", Message: "must not be empty"}
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, &config.ValidationError{Field: "collection", Message: "must not be empty"}
	}

	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.methodErr != nil {
		return nil, o.methodErr
	}
	methods := o.methods
	if len(methods) == 0 {
		// Config methods were validated at construction time.
		for _, name := range c.cfg.Expansion.Methods {
			if m, err := schema.ParseMethod(name); err == nil {
				methods = append(methods, m)
			}
		}
	}
	if len(methods) == 0 {
		methods = schema.DefaultMethods()
	}
	methods = dedupeMethods(methods)
	limit := o.limit
	if limit <= 0 {
		limit = c.cfg.Fusion.Limit
	}
	refeedOn := c.cfg.RefeedEnabled()
	if o.refeed != nil {
		refeedOn = *o.refeed
	}

	requestID := uuid.NewString()
	logger := c.logger.With(zap.String("request_id", requestID))

	key := c.cacheKey(query, collection, methods, limit)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			if cached, ok := v.(*schema.ExpansionResult); ok {
				metrics.IncCache("hit")
				logger.Debug("serving expansion result from cache")
				// Hand the caller its own copy; a shared slice would let
				// one caller's mutation corrupt every later hit.
				result := *cached
				result.FinalResults = cloneNodes(cached.FinalResults)
				result.Metadata.CacheHit = true
				result.Metadata.RequestID = requestID
				return &result, nil
			}
		}
		metrics.IncCache("miss")
	}

	if deadline := c.cfg.Pipeline.RequestTimeoutMs; deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(deadline)*time.Millisecond)
		defer cancel()
	}

	rctx := c.enricher.Enrich(ctx, query, collection, refeedOn)

	result, err := c.selector.Run(ctx, pipeline.Request{
		Query:         query,
		EnrichedQuery: rctx.EnrichedQuery,
		Collection:    collection,
		Methods:       methods,
		Limit:         limit,
		Persona:       o.persona,
		Refeed:        rctx,
		RequestID:     requestID,
	})
	if err != nil {
		// The legacy path reports failures through metadata, so reaching
		// here means both paths are unusable. Degrade to an empty result
		// rather than failing the caller.
		logger.Error("all pipeline paths failed", zap.Error(err))
		return &schema.ExpansionResult{
			FinalResults: []schema.RankedNode{},
			Metadata: schema.ExpansionMetadata{
				RequestID: requestID,
				Errors:    map[string]string{"pipeline": err.Error()},
			},
		}, nil
	}

	if c.cache != nil && !result.Metadata.DeadlineExceeded {
		stored := *result
		stored.FinalResults = cloneNodes(result.FinalResults)
		c.cache.Set(key, &stored, c.cacheTTL)
	}
	return result, nil
}

// Close releases provider connections.
func (c *Client) Close() error {
	if closer, ok := c.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func dedupeMethods(methods []schema.Method) []schema.Method {
	seen := make(map[schema.Method]bool, len(methods))
	out := methods[:0]
	for _, m := range methods {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// cloneNodes deep-copies a result list, including each node's payload
// and sparse vector maps.
func cloneNodes(nodes []schema.RankedNode) []schema.RankedNode {
	if nodes == nil {
		return nil
	}
	out := make([]schema.RankedNode, len(nodes))
	for i, n := range nodes {
		if n.Payload != nil {
			p := make(map[string]any, len(n.Payload))
			for k, v := range n.Payload {
				p[k] = v
			}
			n.Payload = p
		}
		if n.SparseVector != nil {
			sv := make(map[string]float64, len(n.SparseVector))
			for k, v := range n.SparseVector {
				sv[k] = v
			}
			n.SparseVector = sv
		}
		out[i] = n
	}
	return out
}

func (c *Client) cacheKey(query, collection string, methods []schema.Method, limit int) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	sort.Strings(names)
	h := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%s|%d|%d",
		query, collection, strings.Join(names, ","), limit, c.cfg.Fusion.RRFK)))
	return hex.EncodeToString(h[:])
}
