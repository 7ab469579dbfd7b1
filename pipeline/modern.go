package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/schema"
)

// Engine is the modern retrieval backend: a managed service that handles
// expansion and fusion internally and returns a ranked list directly.
type Engine interface {
	Retrieve(ctx context.Context, query, collection string, limit int) ([]schema.RankedNode, error)
}

// ModernRunner adapts an Engine to the Runner interface. The engine owns
// expansion, so the metadata carries only what the engine reports.
type ModernRunner struct {
	engine Engine
	logger *zap.Logger
}

func NewModernRunner(engine Engine, logger *zap.Logger) *ModernRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModernRunner{engine: engine, logger: logger}
}

func (r *ModernRunner) Name() string { return "modern" }

func (r *ModernRunner) Run(ctx context.Context, req Request) (*schema.ExpansionResult, error) {
	query := req.EnrichedQuery
	if query == "" {
		query = req.Query
	}
	nodes, err := r.engine.Retrieve(ctx, query, req.Collection, req.Limit)
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		nodes[i].Rank = i + 1
	}
	return &schema.ExpansionResult{
		FinalResults: nodes,
		Metadata: schema.ExpansionMetadata{
			RequestID:        req.RequestID,
			FinalResultCount: len(nodes),
			RefeedApplied:    len(req.Refeed.MetaNodes) > 0,
			RefeedNodes:      len(req.Refeed.MetaNodes),
		},
	}, nil
}

// HTTPEngine calls a remote retrieval service over JSON HTTP.
type HTTPEngine struct {
	endpoint string
	client   *http.Client
}

func NewHTTPEngine(endpoint string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEngine{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type engineRequest struct {
	Query      string `json:"query"`
	Collection string `json:"collection"`
	Limit      int    `json:"limit"`
}

type engineResponse struct {
	Results []engineResult `json:"results"`
}

type engineResult struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (e *HTTPEngine) Retrieve(ctx context.Context, query, collection string, limit int) ([]schema.RankedNode, error) {
	body, err := json.Marshal(engineRequest{Query: query, Collection: collection, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal engine request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build engine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call retrieval engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("retrieval engine returned %d: %s", resp.StatusCode, string(data))
	}
	var parsed engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}

	nodes := make([]schema.RankedNode, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		nodes = append(nodes, schema.RankedNode{
			ID:         r.ID,
			Score:      r.Score,
			Collection: collection,
			Payload:    r.Payload,
		})
	}
	return nodes, nil
}
