package schema

import (
	"fmt"
	"strings"
	"time"
)

// Method identifies one query expansion strategy.
type Method string

const (
	MethodHyDE      Method = "hyde"
	MethodRAGFusion Method = "rag_fusion"
	MethodSelfAsk   Method = "self_ask"
	MethodPRF       Method = "prf"
)

// DefaultMethods returns the methods enabled when the caller does not name any.
// PRF is opt-in because it depends on a prior seed retrieval.
func DefaultMethods() []Method {
	return []Method{MethodHyDE, MethodRAGFusion, MethodSelfAsk}
}

// ParseMethod maps a user or config supplied name onto a known Method.
func ParseMethod(name string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(name)))
	switch m {
	case MethodHyDE, MethodRAGFusion, MethodSelfAsk, MethodPRF:
		return m, nil
	}
	return "", fmt.Errorf("unknown expansion method %q", name)
}

// ExpandedQuery is one expansion produced by a strategy. It is never mutated
// after creation.
type ExpandedQuery struct {
	Method     Method `json:"method"`
	Text       string `json:"text"`
	IsFallback bool   `json:"is_fallback,omitempty"`
	Tag        string `json:"tag,omitempty"`
}

// RankedNode is a retrieved passage. Identity is ID: equal IDs from different
// lists refer to the same underlying passage. Rank is 1-based within the list
// the node came from.
type RankedNode struct {
	ID         string         `json:"id"`
	Score      float64        `json:"score"`
	Rank       int            `json:"rank"`
	Collection string         `json:"collection,omitempty"`
	VectorType string         `json:"vector_type,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	// SparseVector carries term weights when retrieval ran with raw vector
	// values attached (seed retrieval for PRF).
	SparseVector map[string]float64 `json:"sparse_vector,omitempty"`
}

// Text returns the textual payload of the node, if any.
func (n RankedNode) Text() string {
	if n.Payload == nil {
		return ""
	}
	for _, key := range []string{"text", "content"} {
		if v, ok := n.Payload[key].(string); ok {
			return v
		}
	}
	return ""
}

// MethodResult is the outcome of one expansion method: its expanded queries
// and the nodes retrieved for them, merged and sorted by score descending.
type MethodResult struct {
	Method   Method          `json:"method"`
	Queries  []ExpandedQuery `json:"queries"`
	Nodes    []RankedNode    `json:"nodes"`
	Duration time.Duration   `json:"duration"`
	Err      string          `json:"error,omitempty"`
}

// ExpansionMetadata describes how an ExpansionResult was produced.
type ExpansionMetadata struct {
	RequestID             string           `json:"request_id"`
	Pipeline              string           `json:"pipeline"`
	MethodsUsed           []Method         `json:"methods_used"`
	TotalExpandedQueries  int              `json:"total_expanded_queries"`
	ResultsBeforeFusion   int              `json:"results_before_fusion"`
	ResultsAfterDedup     int              `json:"results_after_dedup"`
	FinalResultCount      int              `json:"final_results"`
	MethodTimings         map[string]int64 `json:"method_timings_ms,omitempty"`
	ParallelExecutionTime time.Duration    `json:"parallel_execution_time"`
	ParallelSpeedup       float64          `json:"parallel_speedup"`
	Errors                map[string]string `json:"errors,omitempty"`
	DeadlineExceeded      bool             `json:"deadline_exceeded,omitempty"`
	RefeedApplied         bool             `json:"refeed_applied,omitempty"`
	RefeedNodes           int              `json:"refeed_nodes,omitempty"`
	CacheHit              bool             `json:"cache_hit,omitempty"`
}

// ExpansionResult is the fused, deduplicated and truncated outcome of one
// expand-and-retrieve request. FinalResults contains no duplicate IDs.
type ExpansionResult struct {
	FinalResults []RankedNode      `json:"final_results"`
	Metadata     ExpansionMetadata `json:"metadata"`
}

// RefeedContext holds the meta collection nodes folded into a query before
// expansion, and the resulting enriched query string.
type RefeedContext struct {
	MetaNodes     []RankedNode `json:"meta_nodes,omitempty"`
	EnrichedQuery string       `json:"enriched_query"`
}

// SearchOptions parameterizes one vector store retrieval call.
type SearchOptions struct {
	Collection  string   `json:"collection"`
	VectorTypes []string `json:"vector_types,omitempty"`
	Filter      string   `json:"filter,omitempty"`
	WithVectors bool     `json:"with_vectors,omitempty"`
	Limit       int      `json:"limit"`
}
