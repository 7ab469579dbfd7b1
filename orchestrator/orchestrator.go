// Package orchestrator fans query expansion and retrieval out across
// methods concurrently, isolating per-method failures from each other.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/candlelight-ai/lyceum/config"
	"github.com/candlelight-ai/lyceum/expansion"
	"github.com/candlelight-ai/lyceum/llm"
	"github.com/candlelight-ai/lyceum/metrics"
	"github.com/candlelight-ai/lyceum/schema"
	"github.com/candlelight-ai/lyceum/vectordb"
)

// Request is one expansion fan-out.
type Request struct {
	Query      string
	Collection string
	Methods    []schema.Method
	Limit      int
	Persona    string
}

// RunOutput carries every method's outcome plus wall-clock accounting.
type RunOutput struct {
	MethodResults []schema.MethodResult
	ParallelTime  time.Duration
	// DeadlineExceeded is set when the context expired before every
	// method finished; MethodResults then contains synthesized failure
	// entries for the unfinished ones.
	DeadlineExceeded bool
}

// Orchestrator runs the configured expansion strategies in parallel and
// retrieves for each expanded query. One method failing, panicking, or
// timing out never disturbs the others.
type Orchestrator struct {
	llm    llm.Provider
	store  vectordb.VectorStoreProvider
	cfg    *config.Config
	sem    *semaphore.Weighted
	logger *zap.Logger
}

// New wires an orchestrator. The semaphore caps in-flight LLM and vector
// store calls across all methods of a single request.
func New(provider llm.Provider, store vectordb.VectorStoreProvider, cfg *config.Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxConc := cfg.Pipeline.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 8
	}
	return &Orchestrator{
		llm:    provider,
		store:  store,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(maxConc)),
		logger: logger,
	}
}

// Run executes every requested method concurrently and blocks until all
// finish or ctx expires, whichever comes first. It never returns an error
// for method-level failures; those are recorded per method in the output.
func (o *Orchestrator) Run(ctx context.Context, req Request) RunOutput {
	start := time.Now()
	methods := req.Methods
	if len(methods) == 0 {
		methods = schema.DefaultMethods()
	}

	// PRF needs a seed retrieval with sparse vectors. Kick it off
	// concurrently so non-PRF methods never wait on it.
	var seedCh chan []schema.RankedNode
	for _, m := range methods {
		if m == schema.MethodPRF {
			seedCh = make(chan []schema.RankedNode, 1)
			go o.seedRetrieve(ctx, req, seedCh)
			break
		}
	}

	resultCh := make(chan schema.MethodResult, len(methods))
	for _, m := range methods {
		go o.runMethod(ctx, m, req, seedCh, resultCh)
	}

	results := make([]schema.MethodResult, 0, len(methods))
	pending := map[schema.Method]bool{}
	for _, m := range methods {
		pending[m] = true
	}
	deadlineExceeded := false

collect:
	for len(results) < len(methods) {
		select {
		case r := <-resultCh:
			delete(pending, r.Method)
			results = append(results, r)
		case <-ctx.Done():
			deadlineExceeded = true
			break collect
		}
	}
	if deadlineExceeded {
		// Drain whatever finished between the deadline firing and now,
		// then synthesize failures for the rest. The channel is buffered
		// to len(methods) so the straggler goroutines cannot leak.
		for {
			select {
			case r := <-resultCh:
				delete(pending, r.Method)
				results = append(results, r)
				continue
			default:
			}
			break
		}
		for m := range pending {
			results = append(results, schema.MethodResult{
				Method: m,
				Err:    "deadline exceeded",
			})
			metrics.IncMethodFailure(string(m))
		}
		o.logger.Warn("expansion fan-out hit request deadline",
			zap.Int("finished", len(methods)-len(pending)),
			zap.Int("unfinished", len(pending)))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Method < results[j].Method })
	return RunOutput{
		MethodResults:    results,
		ParallelTime:     time.Since(start),
		DeadlineExceeded: deadlineExceeded,
	}
}

// seedRetrieve fetches PRF seed nodes with their sparse term weights. A
// failed seed retrieval just means PRF contributes nothing.
func (o *Orchestrator) seedRetrieve(ctx context.Context, req Request, out chan<- []schema.RankedNode) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		out <- nil
		return
	}
	defer o.sem.Release(1)

	seedStart := time.Now()
	limit := o.cfg.Expansion.PRFSeedLimit
	if limit <= 0 {
		limit = 10
	}
	nodes, err := o.store.Search(ctx, req.Query, schema.SearchOptions{
		Collection:  req.Collection,
		WithVectors: true,
		Limit:       limit,
	})
	if err != nil {
		o.logger.Warn("prf seed retrieval failed", zap.Error(err))
		out <- nil
		return
	}
	metrics.ObserveRetrieval("seed", time.Since(seedStart), len(nodes))
	out <- nodes
}

// runMethod expands with one strategy and retrieves for each expanded
// query. All failure modes, including panics, collapse into the Err field
// of the method's result.
func (o *Orchestrator) runMethod(ctx context.Context, method schema.Method, req Request, seedCh <-chan []schema.RankedNode, out chan<- schema.MethodResult) {
	start := time.Now()
	result := schema.MethodResult{Method: method}
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Sprintf("panic: %v", r)
			result.Nodes = nil
			o.logger.Error("expansion method panicked",
				zap.String("method", string(method)),
				zap.Any("panic", r))
			metrics.IncMethodFailure(string(method))
		}
		result.Duration = time.Since(start)
		metrics.ObserveExpansion(string(method), result.Duration, len(result.Queries))
		out <- result
	}()

	strat, err := expansion.NewStrategy(method, o.llm, o.cfg.Expansion, o.logger)
	if err != nil {
		result.Err = err.Error()
		metrics.IncMethodFailure(string(method))
		return
	}

	ectx := &expansion.Context{Persona: req.Persona}
	if method == schema.MethodPRF && seedCh != nil {
		select {
		case ectx.SeedNodes = <-seedCh:
		case <-ctx.Done():
			result.Err = ctx.Err().Error()
			metrics.IncMethodFailure(string(method))
			return
		}
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		result.Err = err.Error()
		metrics.IncMethodFailure(string(method))
		return
	}
	queries, err := strat.Expand(ctx, req.Query, ectx)
	o.sem.Release(1)
	if err != nil {
		result.Err = err.Error()
		metrics.IncMethodFailure(string(method))
		return
	}
	result.Queries = queries
	if len(queries) == 0 {
		return
	}

	// Each expanded query retrieves in its own goroutine, still bounded by
	// the shared semaphore. Results are re-assembled in query order so the
	// merge is deterministic before the score sort.
	retrStart := time.Now()
	type searched struct {
		idx   int
		nodes []schema.RankedNode
		err   error
	}
	searchCh := make(chan searched, len(queries))
	for i, q := range queries {
		go func(idx int, text string) {
			defer func() {
				if r := recover(); r != nil {
					searchCh <- searched{idx: idx, err: fmt.Errorf("panic: %v", r)}
				}
			}()
			if err := o.sem.Acquire(ctx, 1); err != nil {
				searchCh <- searched{idx: idx, err: err}
				return
			}
			defer o.sem.Release(1)
			nodes, err := o.store.Search(ctx, text, schema.SearchOptions{
				Collection: req.Collection,
				Limit:      req.Limit,
			})
			searchCh <- searched{idx: idx, nodes: nodes, err: err}
		}(i, q.Text)
	}

	perQuery := make([][]schema.RankedNode, len(queries))
	var lastErr error
	for range queries {
		s := <-searchCh
		if s.err != nil {
			lastErr = s.err
			o.logger.Warn("retrieval failed for expanded query",
				zap.String("method", string(method)),
				zap.Error(s.err))
			continue
		}
		perQuery[s.idx] = s.nodes
	}

	merged := make([]schema.RankedNode, 0, len(queries)*req.Limit)
	seen := map[string]bool{}
	for _, nodes := range perQuery {
		for _, n := range nodes {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			merged = append(merged, n)
		}
	}
	if len(merged) == 0 && lastErr != nil {
		result.Err = lastErr.Error()
		metrics.IncMethodFailure(string(method))
		return
	}
	metrics.ObserveRetrieval("expanded", time.Since(retrStart), len(merged))

	// The method's list is ordered by similarity score so fusion sees a
	// proper method-local ranking.
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	for i := range merged {
		merged[i].Rank = i + 1
	}
	result.Nodes = merged
}
