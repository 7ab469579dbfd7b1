package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Fusion.RRFK = 0
	cfg.Fusion.Limit = 0
	cfg.Expansion.Methods = []string{"hyde", "bm25"}

	err := cfg.Validate()
	require.Error(t, err)

	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, verrs, 3)
	assert.Contains(t, err.Error(), "3 configuration error(s)")
}

func TestValidateFusionBounds(t *testing.T) {
	cfg := Default()
	cfg.Fusion.Limit = 1001
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Fusion.RRFK = 1
	cfg.Fusion.Limit = 1000
	assert.NoError(t, cfg.Validate())
}

func TestValidateRefeedRequiresMetaCollection(t *testing.T) {
	cfg := Default()
	cfg.Refeed.MetaCollection = ""
	assert.Error(t, cfg.Validate())

	// Disabling refeed lifts the requirement.
	off := false
	cfg.Refeed.Enable = &off
	assert.NoError(t, cfg.Validate())
}

func TestValidateModernEndpointRequired(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.UseModern = true
	assert.Error(t, cfg.Validate())

	cfg.Pipeline.ModernEndpoint = "http://engine:8080/v1/retrieve"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRedisCacheNeedsAddrs(t *testing.T) {
	cfg := Default()
	cfg.Cache.Enable = true
	cfg.Cache.Store = "redis"
	assert.Error(t, cfg.Validate())

	cfg.Cache.Redis.Addrs = []string{"localhost:6379"}
	assert.NoError(t, cfg.Validate())
}

func TestValidateUnknownVectorDBProvider(t *testing.T) {
	cfg := Default()
	cfg.VectorDB.Provider = "pinecone"
	assert.Error(t, cfg.Validate())
}

func TestRefeedEnabledDefaultsTrue(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.RefeedEnabled())

	off := false
	cfg.Refeed.Enable = &off
	assert.False(t, cfg.RefeedEnabled())
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fusion:
  rrf_k: 30
  limit: 25
expansion:
  methods: [hyde, prf]
llm:
  api_key: ${LYCEUM_TEST_KEY}
`), 0o600))
	t.Setenv("LYCEUM_TEST_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Fusion.RRFK)
	assert.Equal(t, 25, cfg.Fusion.Limit)
	assert.Equal(t, []string{"hyde", "prf"}, cfg.Expansion.Methods)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	// Untouched sections keep their defaults.
	assert.Equal(t, "meta", cfg.Refeed.MetaCollection)
	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrency)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fusion:\n  rrf_k: -5\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
