package expansion

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/llm"
	"github.com/candlelight-ai/lyceum/schema"
)

const selfAskPromptTemplate = `Decompose the question below into 3 to %d simpler sub-questions that would each need to be answered to fully answer it. Output one sub-question per line, each ending with a question mark, with no numbering and no commentary.

Question: %s`

// SelfAskStrategy decomposes a compound question into sub-questions and
// retrieves for each, so multi-hop questions pick up evidence for every
// hop rather than only the dominant clause.
type SelfAskStrategy struct {
	provider        llm.Provider
	maxSubQuestions int
	logger          *zap.Logger
}

func (s *SelfAskStrategy) Method() schema.Method { return schema.MethodSelfAsk }

// Expand returns the original query plus parsed sub-questions. An LLM
// failure degrades to the original flagged as a fallback; a response that
// parses to zero sub-questions degrades to the original alone, unflagged,
// since generation itself succeeded.
func (s *SelfAskStrategy) Expand(ctx context.Context, query string, ectx *Context) ([]schema.ExpandedQuery, error) {
	opts := llm.Options{Temperature: 0.5}
	if ectx != nil {
		opts.Persona = ectx.Persona
	}
	raw, err := s.provider.Generate(ctx, fmt.Sprintf(selfAskPromptTemplate, s.maxSubQuestions, query), opts)
	if err != nil {
		s.logger.Warn("self-ask decomposition failed, falling back to original query",
			zap.Error(err))
		return []schema.ExpandedQuery{fallbackQuery(schema.MethodSelfAsk, query)}, nil
	}

	queries := []schema.ExpandedQuery{{Method: schema.MethodSelfAsk, Text: query}}
	seen := map[string]bool{query: true}
	for _, line := range strings.Split(raw, "\n") {
		if len(queries) > s.maxSubQuestions {
			break
		}
		text := cleanLine(line)
		if text == "" || !strings.HasSuffix(text, "?") || seen[text] {
			continue
		}
		seen[text] = true
		queries = append(queries, schema.ExpandedQuery{Method: schema.MethodSelfAsk, Text: text})
	}
	if len(queries) == 1 {
		s.logger.Debug("self-ask produced no parseable sub-questions, retrieving with original only")
	}
	return queries, nil
}
