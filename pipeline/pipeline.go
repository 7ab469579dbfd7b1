// Package pipeline selects between the modern retrieval engine and the
// legacy in-process expansion pipeline, falling back transparently when
// the modern path fails.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/metrics"
	"github.com/candlelight-ai/lyceum/schema"
)

// Request is a pipeline-level retrieval request. RequestID is assigned by
// the caller and threaded through for log correlation.
type Request struct {
	Query         string
	EnrichedQuery string
	Collection    string
	Methods       []schema.Method
	Limit         int
	Persona       string
	Refeed        schema.RefeedContext
	RequestID     string
}

// Runner executes one pipeline path end to end.
type Runner interface {
	Name() string
	Run(ctx context.Context, req Request) (*schema.ExpansionResult, error)
}

// Selector prefers the modern runner when configured and falls back to the
// legacy runner on any modern-path error or panic. Fallback is transparent
// to the caller; only Metadata.Pipeline reveals which path served.
type Selector struct {
	modern    Runner
	legacy    Runner
	useModern func() bool
	logger    *zap.Logger
}

func NewSelector(modern, legacy Runner, useModern func() bool, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if useModern == nil {
		useModern = func() bool { return false }
	}
	return &Selector{modern: modern, legacy: legacy, useModern: useModern, logger: logger}
}

// Run dispatches the request. The legacy path is the backstop: its result
// is returned even when the modern path was attempted first and failed.
func (s *Selector) Run(ctx context.Context, req Request) (*schema.ExpansionResult, error) {
	if s.useModern() && s.modern != nil {
		result, err := s.runSafely(ctx, s.modern, req)
		if err == nil {
			result.Metadata.Pipeline = s.modern.Name()
			metrics.IncPipeline(s.modern.Name())
			return result, nil
		}
		s.logger.Warn("modern pipeline failed, falling back to legacy",
			zap.String("request_id", req.RequestID),
			zap.Error(err))
		metrics.IncPipeline("fallback")
	}

	result, err := s.runSafely(ctx, s.legacy, req)
	if err != nil {
		return nil, err
	}
	result.Metadata.Pipeline = s.legacy.Name()
	metrics.IncPipeline(s.legacy.Name())
	return result, nil
}

// runSafely converts a runner panic into an error so a broken path can be
// fallen back from instead of unwinding through the caller.
func (s *Selector) runSafely(ctx context.Context, r Runner, req Request) (result *schema.ExpansionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("pipeline %s panicked: %v", r.Name(), rec)
		}
	}()
	result, err = r.Run(ctx, req)
	if err == nil && result == nil {
		err = fmt.Errorf("pipeline %s returned no result", r.Name())
	}
	return result, err
}
