package vectordb

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/config"
	"github.com/candlelight-ai/lyceum/embedding"
	"github.com/candlelight-ai/lyceum/schema"
)

// RetrievalError wraps any failure of the vector store collaborator,
// including timeouts. Callers absorb it: the failing call contributes an
// empty node list and a metadata note, never an error to the end caller.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s failed: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// VectorStoreProvider is the retrieval collaborator. Returned nodes carry
// 1-based ranks local to the returned list.
type VectorStoreProvider interface {
	Search(ctx context.Context, query string, opts schema.SearchOptions) ([]schema.RankedNode, error)
}

// NewProvider constructs the vector store named by the configuration.
func NewProvider(ctx context.Context, cfg config.VectorDBConfig, embedder embedding.Provider, logger *zap.Logger) (VectorStoreProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "milvus":
		return NewMilvusProvider(ctx, cfg, embedder, logger)
	default:
		return nil, fmt.Errorf("unsupported vectordb provider %q", cfg.Provider)
	}
}
