package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"virtualta/internal/answer"
	"virtualta/internal/config"
	"virtualta/internal/domain"
	"virtualta/internal/embedding"
	embedopenai "virtualta/internal/embedding/openai"
	llmopenai "virtualta/internal/llm/openai"
	"virtualta/internal/logging"
	"virtualta/internal/metrics"
	"virtualta/internal/vectorstore"
	"virtualta/internal/vectorstore/memory"
	"virtualta/internal/vectorstore/qdrant"
)

// app holds what every command shares.
type app struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func loadConfig() (*config.AppConfig, string, error) {
	if cfgPath == "" {
		return config.LoadDefault()
	}
	cfg, err := config.Load(cfgPath)
	return cfg, cfgPath, err
}

// newApp loads config and builds the logger. quiet drops all logging, for
// commands that own the terminal.
func newApp(quiet bool) (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger := zap.NewNop()
	if !quiet {
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}
	logger.Debug("config loaded", zap.String("path", path))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &app{cfg: cfg, logger: logger, registry: reg, metrics: metrics.New(reg)}, nil
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func (a *app) embedder() (domain.Embedder, error) {
	c := a.cfg.Embedder
	client, err := embedopenai.NewClient(embedopenai.Config{
		BaseURL:   c.OpenAI.BaseURL,
		APIKeyEnv: c.OpenAI.APIKeyEnv,
		Model:     c.OpenAI.Model,
		Timeout:   secs(c.OpenAI.TimeoutSecs),
		Dimension: c.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	return embedding.NewFixed(client, c.Dimension), nil
}

func (a *app) completer() (domain.Completer, error) {
	c := a.cfg.Completer
	comp, err := llmopenai.New(llmopenai.Config{
		BaseURL:     c.OpenAI.BaseURL,
		APIKeyEnv:   c.OpenAI.APIKeyEnv,
		Model:       c.OpenAI.Model,
		VisionModel: c.VisionModel,
		Timeout:     secs(c.OpenAI.TimeoutSecs),
	})
	if err != nil {
		return nil, fmt.Errorf("completer: %w", err)
	}
	return comp, nil
}

func (a *app) store() (vectorstore.Storage, error) {
	switch a.cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant", "":
		q := a.cfg.VectorStore.Qdrant
		if q == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    secs(q.TimeoutSecs),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", a.cfg.VectorStore.Type)
	}
}

// engine builds the answer engine and checks the collection dimension.
func (a *app) engine(ctx context.Context) (*answer.Engine, error) {
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	comp, err := a.completer()
	if err != nil {
		return nil, err
	}
	st, err := a.store()
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx, emb.Dimension()); err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	return answer.NewEngine(emb, st, comp, answer.Options{
		TopK:    a.cfg.Answer.TopK,
		Logger:  a.logger.Named("answer"),
		Metrics: a.metrics,
	}), nil
}
