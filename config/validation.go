package config

import (
	"fmt"
	"strings"

	"github.com/candlelight-ai/lyceum/schema"
)

// ValidationError represents a configuration validation error. Validation
// failures are the one class of caller-visible error: they signal
// misconfiguration rather than a runtime condition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Message))
	}
	return b.String()
}

// Validate fails fast on any invalid setting, accumulating all problems.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateLLM()...)
	errs = append(errs, c.validateVectorDB()...)
	errs = append(errs, c.validateExpansion()...)
	errs = append(errs, c.validateFusion()...)
	errs = append(errs, c.validateRefeed()...)
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateCache()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateLLM() ValidationErrors {
	var errs ValidationErrors

	if c.LLM.Provider == "" {
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: "llm provider is required",
		})
	}
	if c.LLM.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "llm.model",
			Message: "llm model is required",
		})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("llm.temperature must be in [0, 2], got %.2f", c.LLM.Temperature),
		})
	}
	if c.LLM.TimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "llm.timeout_ms",
			Message: fmt.Sprintf("llm.timeout_ms must be non-negative, got %d", c.LLM.TimeoutMs),
		})
	}

	return errs
}

func (c *Config) validateVectorDB() ValidationErrors {
	var errs ValidationErrors

	if c.VectorDB.Provider == "" {
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: "vectordb provider is required",
		})
	}
	switch strings.ToLower(c.VectorDB.Provider) {
	case "", "milvus":
		if c.VectorDB.Provider != "" && c.VectorDB.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.host",
				Message: fmt.Sprintf("vectordb host is required for %s provider", c.VectorDB.Provider),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: fmt.Sprintf("unsupported vectordb provider %q", c.VectorDB.Provider),
		})
	}

	return errs
}

func (c *Config) validateExpansion() ValidationErrors {
	var errs ValidationErrors

	for i, name := range c.Expansion.Methods {
		if _, err := schema.ParseMethod(name); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("expansion.methods[%d]", i),
				Message: err.Error(),
			})
		}
	}
	if c.Expansion.MaxFusionQueries < 0 {
		errs = append(errs, ValidationError{
			Field:   "expansion.max_fusion_queries",
			Message: fmt.Sprintf("max_fusion_queries must be non-negative, got %d", c.Expansion.MaxFusionQueries),
		})
	}
	if c.Expansion.MaxSubQuestions < 0 {
		errs = append(errs, ValidationError{
			Field:   "expansion.max_sub_questions",
			Message: fmt.Sprintf("max_sub_questions must be non-negative, got %d", c.Expansion.MaxSubQuestions),
		})
	}

	return errs
}

func (c *Config) validateFusion() ValidationErrors {
	var errs ValidationErrors

	if c.Fusion.RRFK < 1 {
		errs = append(errs, ValidationError{
			Field:   "fusion.rrf_k",
			Message: fmt.Sprintf("fusion.rrf_k must be at least 1, got %d", c.Fusion.RRFK),
		})
	}
	if c.Fusion.Limit < 1 {
		errs = append(errs, ValidationError{
			Field:   "fusion.limit",
			Message: fmt.Sprintf("fusion.limit must be positive, got %d", c.Fusion.Limit),
		})
	}
	if c.Fusion.Limit > 1000 {
		errs = append(errs, ValidationError{
			Field:   "fusion.limit",
			Message: fmt.Sprintf("fusion.limit %d is too large (max 1000)", c.Fusion.Limit),
		})
	}

	return errs
}

func (c *Config) validateRefeed() ValidationErrors {
	var errs ValidationErrors

	if c.RefeedEnabled() && c.Refeed.MetaCollection == "" {
		errs = append(errs, ValidationError{
			Field:   "refeed.meta_collection",
			Message: "refeed.meta_collection is required while refeed is enabled",
		})
	}
	if c.Refeed.TopN < 0 {
		errs = append(errs, ValidationError{
			Field:   "refeed.top_n",
			Message: fmt.Sprintf("refeed.top_n must be non-negative, got %d", c.Refeed.TopN),
		})
	}
	if c.Refeed.TokenBudget < 0 {
		errs = append(errs, ValidationError{
			Field:   "refeed.token_budget",
			Message: fmt.Sprintf("refeed.token_budget must be non-negative, got %d", c.Refeed.TokenBudget),
		})
	}

	return errs
}

func (c *Config) validatePipeline() ValidationErrors {
	var errs ValidationErrors

	if c.Pipeline.MaxConcurrency < 1 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.max_concurrency",
			Message: fmt.Sprintf("pipeline.max_concurrency must be at least 1, got %d", c.Pipeline.MaxConcurrency),
		})
	}
	if c.Pipeline.RequestTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.request_timeout_ms",
			Message: fmt.Sprintf("pipeline.request_timeout_ms must be non-negative, got %d", c.Pipeline.RequestTimeoutMs),
		})
	}
	if c.Pipeline.UseModern && c.Pipeline.ModernEndpoint == "" {
		errs = append(errs, ValidationError{
			Field:   "pipeline.modern_endpoint",
			Message: "pipeline.modern_endpoint is required while use_modern is set",
		})
	}

	return errs
}

func (c *Config) validateCache() ValidationErrors {
	var errs ValidationErrors

	if !c.Cache.Enable {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(c.Cache.Store)) {
	case "", "lru":
	case "redis":
		if len(c.Cache.Redis.Addrs) == 0 {
			errs = append(errs, ValidationError{
				Field:   "cache.redis.addrs",
				Message: "at least one redis address is required for the redis cache store",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "cache.store",
			Message: fmt.Sprintf("unsupported cache store %q", c.Cache.Store),
		})
	}

	return errs
}
