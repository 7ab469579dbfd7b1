package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/config"
	"github.com/candlelight-ai/lyceum/embedding"
	"github.com/candlelight-ai/lyceum/schema"
)

// MilvusProvider implements VectorStoreProvider against a Milvus cluster.
// Each collection holds one dense vector field plus a text payload; the
// optional sparse term-weight field is a JSON map requested only when a
// caller asks for raw vector values.
type MilvusProvider struct {
	client  client.Client
	cfg     config.VectorDBConfig
	embed   embedding.Provider
	timeout time.Duration
	logger  *zap.Logger
}

// NewMilvusProvider dials the cluster and returns the provider.
func NewMilvusProvider(ctx context.Context, cfg config.VectorDBConfig, embedder embedding.Provider, logger *zap.Logger) (*MilvusProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := client.NewClient(ctx, client.Config{
		Address:  fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	return &MilvusProvider{
		client:  c,
		cfg:     cfg,
		embed:   embedder,
		timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		logger:  logger,
	}, nil
}

// Search embeds the query text and runs a dense ANN search over the
// requested collection. The call carries its own timeout.
func (p *MilvusProvider) Search(ctx context.Context, query string, opts schema.SearchOptions) ([]schema.RankedNode, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	vec, err := p.embed.Embed(ctx, query)
	if err != nil {
		return nil, &RetrievalError{Op: "embed", Err: err}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	ef := p.cfg.SearchEF
	if ef <= 0 {
		ef = 64
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		return nil, &RetrievalError{Op: "search_params", Err: err}
	}

	outputFields := []string{p.cfg.TextField}
	if opts.WithVectors && p.cfg.SparseWeightsField != "" {
		outputFields = append(outputFields, p.cfg.SparseWeightsField)
	}

	start := time.Now()
	results, err := p.client.Search(
		ctx,
		opts.Collection,
		nil,
		opts.Filter,
		outputFields,
		[]entity.Vector{entity.FloatVector(vec)},
		p.cfg.VectorField,
		entity.MetricType(p.cfg.MetricType),
		limit,
		sp,
	)
	if err != nil {
		p.logger.Warn("milvus search failed",
			zap.String("collection", opts.Collection),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, &RetrievalError{Op: "search", Err: err}
	}

	nodes := make([]schema.RankedNode, 0, limit)
	for _, rs := range results {
		textCol := rs.Fields.GetColumn(p.cfg.TextField)
		weightsCol := rs.Fields.GetColumn(p.cfg.SparseWeightsField)
		for i := 0; i < rs.ResultCount; i++ {
			id, err := rs.IDs.GetAsString(i)
			if err != nil || id == "" {
				continue
			}
			node := schema.RankedNode{
				ID:         id,
				Score:      float64(rs.Scores[i]),
				Rank:       len(nodes) + 1,
				Collection: opts.Collection,
				VectorType: "dense",
			}
			if textCol != nil {
				if text, err := textCol.GetAsString(i); err == nil && text != "" {
					node.Payload = map[string]any{"text": text}
				}
			}
			if opts.WithVectors && weightsCol != nil {
				node.SparseVector = parseTermWeights(weightsCol, i)
			}
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// Close releases the underlying connection.
func (p *MilvusProvider) Close() error {
	return p.client.Close()
}

// parseTermWeights decodes the JSON term->weight map stored alongside each
// passage. Unreadable entries degrade to nil rather than failing the search.
func parseTermWeights(col entity.Column, idx int) map[string]float64 {
	raw, err := col.Get(idx)
	if err != nil || raw == nil {
		return nil
	}
	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}
	weights := map[string]float64{}
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil
	}
	if len(weights) == 0 {
		return nil
	}
	return weights
}
