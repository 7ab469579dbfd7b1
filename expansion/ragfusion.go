package expansion

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/llm"
	"github.com/candlelight-ai/lyceum/schema"
)

const ragFusionPromptTemplate = `Generate %d alternative phrasings of the search query below. Each phrasing should preserve the meaning while varying vocabulary, specificity, or angle of approach. Output one phrasing per line with no numbering and no commentary.

Query: %s`

// RAGFusionStrategy asks the LLM for paraphrases of the query so the
// retrieval fan-out covers vocabulary the original phrasing misses. The
// original query is always the first expansion.
type RAGFusionStrategy struct {
	provider   llm.Provider
	maxQueries int
	logger     *zap.Logger
}

func (s *RAGFusionStrategy) Method() schema.Method { return schema.MethodRAGFusion }

// Expand returns the original query followed by up to maxQueries-1 distinct
// paraphrases. LLM failure degrades to the original alone, flagged as a
// fallback.
func (s *RAGFusionStrategy) Expand(ctx context.Context, query string, ectx *Context) ([]schema.ExpandedQuery, error) {
	opts := llm.Options{Temperature: 0.9}
	if ectx != nil {
		opts.Persona = ectx.Persona
	}
	want := s.maxQueries - 1
	if want < 4 {
		want = 4
	}
	raw, err := s.provider.Generate(ctx, fmt.Sprintf(ragFusionPromptTemplate, want, query), opts)
	if err != nil {
		s.logger.Warn("rag-fusion paraphrase generation failed, falling back to original query",
			zap.Error(err))
		return []schema.ExpandedQuery{fallbackQuery(schema.MethodRAGFusion, query)}, nil
	}

	queries := []schema.ExpandedQuery{{Method: schema.MethodRAGFusion, Text: query}}
	seen := map[string]bool{query: true}
	for _, line := range strings.Split(raw, "\n") {
		if len(queries) >= s.maxQueries {
			break
		}
		text := cleanLine(line)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		queries = append(queries, schema.ExpandedQuery{Method: schema.MethodRAGFusion, Text: text})
	}
	return queries, nil
}
