package expansion

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/llm"
	"github.com/candlelight-ai/lyceum/schema"
)

const hydePromptTemplate = `Write a passage of 120 to 200 words that directly answers the question below, as if it were an excerpt from an authoritative document on the topic. State facts plainly. Do not mention that the passage is hypothetical and do not address the reader.

Question: %s

Passage:`

// HyDEStrategy generates a hypothetical answer document and retrieves with
// its embedding instead of the question's. Questions and answers live in
// different regions of embedding space; the fabricated answer lands nearer
// to real answer passages.
type HyDEStrategy struct {
	provider llm.Provider
	logger   *zap.Logger
}

func (s *HyDEStrategy) Method() schema.Method { return schema.MethodHyDE }

// Expand returns a single expansion holding the hypothetical document. On
// LLM failure it degrades to the original query flagged as a fallback; the
// error is absorbed, never returned.
func (s *HyDEStrategy) Expand(ctx context.Context, query string, ectx *Context) ([]schema.ExpandedQuery, error) {
	opts := llm.Options{Temperature: 0.7}
	if ectx != nil {
		opts.Persona = ectx.Persona
	}
	doc, err := s.provider.Generate(ctx, fmt.Sprintf(hydePromptTemplate, query), opts)
	if err != nil {
		s.logger.Warn("hyde generation failed, falling back to original query",
			zap.Error(err))
		return []schema.ExpandedQuery{fallbackQuery(schema.MethodHyDE, query)}, nil
	}
	doc = strings.TrimSpace(doc)
	if doc == "" {
		s.logger.Warn("hyde generation returned empty document")
		return []schema.ExpandedQuery{fallbackQuery(schema.MethodHyDE, query)}, nil
	}
	return []schema.ExpandedQuery{{
		Method: schema.MethodHyDE,
		Text:   doc,
	}}, nil
}
