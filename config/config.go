package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the expansion and retrieval engine.
type Config struct {
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	VectorDB  VectorDBConfig  `json:"vectordb" yaml:"vectordb"`
	Expansion ExpansionConfig `json:"expansion" yaml:"expansion"`
	Fusion    FusionConfig    `json:"fusion" yaml:"fusion"`
	Refeed    RefeedConfig    `json:"refeed" yaml:"refeed"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	Cache     CacheConfig     `json:"cache,omitempty" yaml:"cache,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// LLMConfig defines the text-generation collaborator.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // Available options: openai
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TimeoutMs   int     `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// EmbeddingConfig defines the embedding model used by the vector retriever.
type EmbeddingConfig struct {
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model" yaml:"model"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	// CacheEntries > 0 enables the in-process embedding cache.
	CacheEntries int `json:"cache_entries,omitempty" yaml:"cache_entries,omitempty"`
}

// VectorDBConfig defines the vector store collaborator.
type VectorDBConfig struct {
	Provider  string `json:"provider" yaml:"provider"` // Available options: milvus
	Host      string `json:"host,omitempty" yaml:"host,omitempty"`
	Port      int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database  string `json:"database,omitempty" yaml:"database,omitempty"`
	Username  string `json:"username,omitempty" yaml:"username,omitempty"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	// Field names inside the collections.
	VectorField string `json:"vector_field,omitempty" yaml:"vector_field,omitempty"`
	TextField   string `json:"text_field,omitempty" yaml:"text_field,omitempty"`
	// SparseWeightsField holds per-passage term weights, returned only when a
	// search asks for raw vector values (PRF seed retrieval).
	SparseWeightsField string `json:"sparse_weights_field,omitempty" yaml:"sparse_weights_field,omitempty"`
	MetricType         string `json:"metric_type,omitempty" yaml:"metric_type,omitempty"`
	SearchEF           int    `json:"search_ef,omitempty" yaml:"search_ef,omitempty"`
}

// ExpansionConfig tunes the individual expansion methods.
type ExpansionConfig struct {
	// Methods enabled by default when a request does not name any.
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	// MaxFusionQueries caps the RAG-Fusion paraphrase set (original included).
	MaxFusionQueries int `json:"max_fusion_queries,omitempty" yaml:"max_fusion_queries,omitempty"`
	// MaxSubQuestions caps Self-Ask decomposition.
	MaxSubQuestions int `json:"max_sub_questions,omitempty" yaml:"max_sub_questions,omitempty"`
	// PRFSeedLimit is the size of the seed retrieval feeding PRF.
	PRFSeedLimit int `json:"prf_seed_limit,omitempty" yaml:"prf_seed_limit,omitempty"`
	// PRFTopSeeds is how many top seed nodes contribute terms.
	PRFTopSeeds int `json:"prf_top_seeds,omitempty" yaml:"prf_top_seeds,omitempty"`
	// PRFMaxTerms caps the terms appended to the synthesized query.
	PRFMaxTerms int `json:"prf_max_terms,omitempty" yaml:"prf_max_terms,omitempty"`
}

// FusionConfig tunes rank fusion.
type FusionConfig struct {
	// RRFK is the k constant in 1/(k+rank); typical default 60.
	RRFK int `json:"rrf_k,omitempty" yaml:"rrf_k,omitempty"`
	// Limit truncates the fused result list.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// RefeedConfig controls meta collection enrichment before expansion.
type RefeedConfig struct {
	// Enable defaults to true when nil.
	Enable *bool `json:"enable,omitempty" yaml:"enable,omitempty"`
	// MetaCollection is the aggregate collection queried for context.
	MetaCollection string `json:"meta_collection,omitempty" yaml:"meta_collection,omitempty"`
	// TopN meta nodes folded into the query (default 3).
	TopN int `json:"top_n,omitempty" yaml:"top_n,omitempty"`
	// TokenBudget caps the folded context size (default 512 tokens).
	TokenBudget int `json:"token_budget,omitempty" yaml:"token_budget,omitempty"`
}

// PipelineConfig selects the execution path and bounds concurrency.
type PipelineConfig struct {
	// UseModern routes requests through the external engine when available.
	UseModern bool `json:"use_modern,omitempty" yaml:"use_modern,omitempty"`
	// ModernEndpoint is the external declarative retrieval service.
	ModernEndpoint string `json:"modern_endpoint,omitempty" yaml:"modern_endpoint,omitempty"`
	ModernTimeoutMs int   `json:"modern_timeout_ms,omitempty" yaml:"modern_timeout_ms,omitempty"`
	// MaxConcurrency caps simultaneous outbound LLM/vector-store calls.
	MaxConcurrency int `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
	// RequestTimeoutMs is the optional outer deadline; 0 disables it.
	RequestTimeoutMs int `json:"request_timeout_ms,omitempty" yaml:"request_timeout_ms,omitempty"`
}

// CacheConfig controls the optional result cache.
// Store: "lru" (default) or "redis".
type CacheConfig struct {
	Enable     bool        `json:"enable,omitempty" yaml:"enable,omitempty"`
	Store      string      `json:"store,omitempty" yaml:"store,omitempty"`
	MaxEntries int         `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	TTLSeconds int         `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
	Redis      RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RedisConfig holds connection parameters for the Redis result cache.
type RedisConfig struct {
	Addrs    []string `json:"addrs,omitempty" yaml:"addrs,omitempty"`
	Username string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int      `json:"db,omitempty" yaml:"db,omitempty"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// RefeedEnabled resolves the refeed default (true when unset).
func (c *Config) RefeedEnabled() bool {
	if c.Refeed.Enable == nil {
		return true
	}
	return *c.Refeed.Enable
}

// Default returns a configuration with all tunables at their defaults.
// Credentials and endpoints still have to be supplied.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1024,
			TimeoutMs:   15000,
		},
		Embedding: EmbeddingConfig{
			Model:        "text-embedding-3-small",
			Dimensions:   1536,
			CacheEntries: 512,
		},
		VectorDB: VectorDBConfig{
			Provider:           "milvus",
			Host:               "localhost",
			Port:               19530,
			TimeoutMs:          5000,
			VectorField:        "vector",
			TextField:          "text",
			SparseWeightsField: "term_weights",
			MetricType:         "IP",
			SearchEF:           64,
		},
		Expansion: ExpansionConfig{
			Methods:          []string{"hyde", "rag_fusion", "self_ask"},
			MaxFusionQueries: 6,
			MaxSubQuestions:  6,
			PRFSeedLimit:     10,
			PRFTopSeeds:      3,
			PRFMaxTerms:      8,
		},
		Fusion: FusionConfig{
			RRFK:  60,
			Limit: 10,
		},
		Refeed: RefeedConfig{
			MetaCollection: "meta",
			TopN:           3,
			TokenBudget:    512,
		},
		Pipeline: PipelineConfig{
			MaxConcurrency:  8,
			ModernTimeoutMs: 3000,
		},
		Cache: CacheConfig{
			Store:      "lru",
			MaxEntries: 500,
			TTLSeconds: 120,
		},
	}
}

// Load reads a YAML config file on top of the defaults and validates it.
// ${VAR} references in the file are expanded from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
