package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("QDRANT_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Chunker.MaxSize)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 100, cfg.Ingest.BatchSize)
	assert.Equal(t, uint64(0), cfg.Ingest.DocsOffset)
	assert.Equal(t, uint64(1_000_000), cfg.Ingest.ForumOffset)
	assert.Equal(t, 5, cfg.Answer.TopK)
	assert.Equal(t, 1536, cfg.Embedder.Dimension)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "virtual_ta", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "Cosine", cfg.VectorStore.Qdrant.Distance)
	assert.Equal(t, 60, cfg.Forum.RateLimitDelaySec)
	assert.Equal(t, 0, cfg.Forum.MaxRetries)
}

func TestLoad_FileValuesAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
chunker:
  max_size: 500
  overlap: 50
vector_store:
  type: qdrant
  qdrant:
    url: http://file:6333
    collection: custom
forum:
  max_retries: 3
answer:
  top_k: 8
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("QDRANT_URL", "http://env:6333")
	t.Setenv("QDRANT_API_KEY", "secret")
	t.Setenv("DISCOURSE_COOKIE", "_t=abc")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Chunker.MaxSize)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	assert.Equal(t, "http://env:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "secret", cfg.VectorStore.Qdrant.APIKey)
	assert.Equal(t, "custom", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "_t=abc", cfg.Forum.Cookie)
	assert.Equal(t, 3, cfg.Forum.MaxRetries)
	assert.Equal(t, 8, cfg.Answer.TopK)
}

func TestLoad_RejectsSharedFamilyOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
ingest:
  docs_offset: 1000000
  forum_offset: 1000000
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docs_offset")
	assert.NoError(t, Default().Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_RoundTripKeepsCookieOutOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Forum.Cookie = "do-not-write"
	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "do-not-write")

	t.Setenv("DISCOURSE_COOKIE", "")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Chunker, loaded.Chunker)
	assert.Equal(t, cfg.Ingest, loaded.Ingest)
}
