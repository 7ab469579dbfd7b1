package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/fusion"
	"github.com/candlelight-ai/lyceum/metrics"
	"github.com/candlelight-ai/lyceum/orchestrator"
	"github.com/candlelight-ai/lyceum/schema"
)

// LegacyRunner is the in-process expansion pipeline: concurrent
// expansion fan-out, per-query retrieval, then reciprocal rank fusion.
type LegacyRunner struct {
	orch   *orchestrator.Orchestrator
	fuser  *fusion.Fuser
	logger *zap.Logger
}

func NewLegacyRunner(orch *orchestrator.Orchestrator, fuser *fusion.Fuser, logger *zap.Logger) *LegacyRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LegacyRunner{orch: orch, fuser: fuser, logger: logger}
}

func (r *LegacyRunner) Name() string { return "legacy" }

// Run executes the full expand-retrieve-fuse pass and assembles the
// execution metadata. Method-level failures surface only in the metadata,
// never as an error.
func (r *LegacyRunner) Run(ctx context.Context, req Request) (*schema.ExpansionResult, error) {
	query := req.EnrichedQuery
	if query == "" {
		query = req.Query
	}
	out := r.orch.Run(ctx, orchestrator.Request{
		Query:      query,
		Collection: req.Collection,
		Methods:    req.Methods,
		Limit:      req.Limit,
		Persona:    req.Persona,
	})

	byMethod := map[schema.Method][]schema.RankedNode{}
	meta := schema.ExpansionMetadata{
		RequestID:        req.RequestID,
		MethodTimings:    map[string]int64{},
		DeadlineExceeded: out.DeadlineExceeded,
		RefeedApplied:    len(req.Refeed.MetaNodes) > 0,
		RefeedNodes:      len(req.Refeed.MetaNodes),
	}
	var sequentialTime time.Duration
	for _, mr := range out.MethodResults {
		byMethod[mr.Method] = mr.Nodes
		meta.MethodTimings[string(mr.Method)] = mr.Duration.Milliseconds()
		sequentialTime += mr.Duration
		if mr.Err != "" {
			if meta.Errors == nil {
				meta.Errors = map[string]string{}
			}
			meta.Errors[string(mr.Method)] = mr.Err
		}
		// A method counts as used once it contributed at least one
		// expanded query; PRF with empty seeds contributes none.
		if len(mr.Queries) > 0 {
			meta.MethodsUsed = append(meta.MethodsUsed, mr.Method)
			meta.TotalExpandedQueries += len(mr.Queries)
		}
	}

	fused, stats := r.fuser.Fuse(byMethod, req.Limit)
	metrics.ObserveFusion(len(byMethod))
	meta.ResultsBeforeFusion = stats.BeforeFusion
	meta.ResultsAfterDedup = stats.AfterDedup
	meta.FinalResultCount = stats.Final
	meta.ParallelExecutionTime = out.ParallelTime
	if out.ParallelTime > 0 {
		meta.ParallelSpeedup = float64(sequentialTime) / float64(out.ParallelTime)
	}

	used := make([]string, len(meta.MethodsUsed))
	for i, m := range meta.MethodsUsed {
		used[i] = string(m)
	}
	r.logger.Info("legacy pipeline completed",
		zap.String("request_id", req.RequestID),
		zap.Strings("methods_used", used),
		zap.Int("results", meta.FinalResultCount),
		zap.Bool("deadline_exceeded", meta.DeadlineExceeded),
		zap.Duration("parallel_time", out.ParallelTime))

	return &schema.ExpansionResult{FinalResults: fused, Metadata: meta}, nil
}
