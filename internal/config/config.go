package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"virtualta/internal/logging"
)

// OpenAIConfig holds connection details for an OpenAI-compatible API.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	OpenAI    OpenAIConfig `yaml:"openai"`
	Dimension int          `yaml:"dimension"`
}

// CompleterConfig configures the completion provider.
type CompleterConfig struct {
	OpenAI      OpenAIConfig `yaml:"openai"`
	VisionModel string       `yaml:"vision_model"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	MaxSize int `yaml:"max_size"`
	Overlap int `yaml:"overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	Distance    string `yaml:"distance"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	DocsDir      string `yaml:"docs_dir"`
	ForumDir     string `yaml:"forum_dir"`
	DocsBaseURL  string `yaml:"docs_base_url"`
	BatchSize    int    `yaml:"batch_size"`
	DocsOffset   uint64 `yaml:"docs_offset"`
	ForumOffset  uint64 `yaml:"forum_offset"`
	RecreateDocs bool   `yaml:"recreate_on_docs"`
}

// ForumConfig configures the Discourse crawl.
type ForumConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Cookie            string  `yaml:"-"`
	SearchFilters     string  `yaml:"search_filters"`
	StartDate         string  `yaml:"start_date"`
	EndDate           string  `yaml:"end_date"`
	RawDir            string  `yaml:"raw_dir"`
	RateLimitDelaySec int     `yaml:"rate_limit_delay_secs"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
}

// DocsConfig configures the documentation-site crawl.
type DocsConfig struct {
	BaseURL           string  `yaml:"base_url"`
	StartPath         string  `yaml:"start_path"`
	RawDir            string  `yaml:"raw_dir"`
	CheckpointLabel   string  `yaml:"checkpoint_label"`
	ContentSelector   string  `yaml:"content_selector"`
	LinkSelector      string  `yaml:"link_selector"`
	RateLimitDelaySec int     `yaml:"rate_limit_delay_secs"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
}

// AnswerConfig configures the retrieval and attribution engine.
type AnswerConfig struct {
	TopK int `yaml:"top_k"`
}

// ServerConfig configures the HTTP query API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Completer   CompleterConfig   `yaml:"completer"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Forum       ForumConfig       `yaml:"forum"`
	Docs        DocsConfig        `yaml:"docs"`
	Answer      AnswerConfig      `yaml:"answer"`
	Server      ServerConfig      `yaml:"server"`
	Log         logging.Config    `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment variables override file values in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate rejects settings that would make families overwrite each
// other's points.
func (c *AppConfig) Validate() error {
	if c.Ingest.DocsOffset == c.Ingest.ForumOffset {
		return fmt.Errorf("ingest.docs_offset and ingest.forum_offset are both %d; family id ranges must differ", c.Ingest.DocsOffset)
	}
	return nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/virtualta/config.yaml.
// If neither exists, it writes defaults to ~/.config/virtualta/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnv(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "virtualta", "config.yaml"), nil
}

// Default returns the built-in configuration without env overrides.
func Default() *AppConfig { return defaultConfig() }

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		VectorStore: VectorStoreConfig{Type: "qdrant"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	openAIDefaults(&cfg.Embedder.OpenAI, "text-embedding-ada-002")
	openAIDefaults(&cfg.Completer.OpenAI, "gpt-4o-mini")
	if cfg.Completer.VisionModel == "" {
		cfg.Completer.VisionModel = cfg.Completer.OpenAI.Model
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 1536
	}
	if cfg.Chunker.MaxSize == 0 {
		cfg.Chunker.MaxSize = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 200
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "qdrant"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "virtual_ta"
		}
		if q.Distance == "" {
			q.Distance = "Cosine"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}

	in := &cfg.Ingest
	if in.DocsDir == "" {
		in.DocsDir = "data/raw/tds"
	}
	if in.ForumDir == "" {
		in.ForumDir = "data/raw/discourse"
	}
	if in.DocsBaseURL == "" {
		in.DocsBaseURL = "https://tds.s-anand.net/#/"
	}
	if in.BatchSize == 0 {
		in.BatchSize = 100
	}
	if in.ForumOffset == 0 {
		in.ForumOffset = 1_000_000
	}

	f := &cfg.Forum
	if f.BaseURL == "" {
		f.BaseURL = "https://discourse.onlinedegree.iitm.ac.in"
	}
	if f.SearchFilters == "" {
		f.SearchFilters = "#courses:tds-kb"
	}
	if f.StartDate == "" {
		f.StartDate = "2025-01-01"
	}
	if f.EndDate == "" {
		f.EndDate = "2025-04-14"
	}
	if f.RawDir == "" {
		f.RawDir = in.ForumDir
	}
	if f.RateLimitDelaySec == 0 {
		f.RateLimitDelaySec = 60
	}
	if f.TimeoutSecs == 0 {
		f.TimeoutSecs = 30
	}

	d := &cfg.Docs
	if d.BaseURL == "" {
		d.BaseURL = "https://tds.s-anand.net"
	}
	if d.StartPath == "" {
		d.StartPath = "#/2025-01/"
	}
	if d.RawDir == "" {
		d.RawDir = in.DocsDir
	}
	if d.CheckpointLabel == "" {
		d.CheckpointLabel = "2025-01"
	}
	if d.ContentSelector == "" {
		d.ContentSelector = "#main"
	}
	if d.LinkSelector == "" {
		d.LinkSelector = ".sidebar-nav"
	}
	if d.RateLimitDelaySec == 0 {
		d.RateLimitDelaySec = 60
	}
	if d.TimeoutSecs == 0 {
		d.TimeoutSecs = 30
	}

	if cfg.Answer.TopK == 0 {
		cfg.Answer.TopK = 5
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func openAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 60
	}
}

// applyEnv lets deployment secrets and endpoints come from the environment
// (usually a .env file loaded by the command).
func applyEnv(cfg *AppConfig) {
	if q := cfg.VectorStore.Qdrant; q != nil {
		if v := os.Getenv("QDRANT_URL"); v != "" {
			q.URL = v
		}
		if v := os.Getenv("QDRANT_API_KEY"); v != "" {
			q.APIKey = v
		}
	}
	if v := os.Getenv("DISCOURSE_URL"); v != "" {
		cfg.Forum.BaseURL = v
	}
	if v := os.Getenv("DISCOURSE_COOKIE"); v != "" {
		cfg.Forum.Cookie = v
	}
}
