// Package app assembles the service from configuration. Both binaries share it.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"docrag/internal/chunker"
	"docrag/internal/config"
	"docrag/internal/domain"
	"docrag/internal/embedding/hashing"
	"docrag/internal/embedding/ollama"
	"docrag/internal/embedding/openai"
	"docrag/internal/generate"
	"docrag/internal/index"
	"docrag/internal/service"
	"docrag/internal/summarizer"
)

// Build wires chunker, embedder, index, generation backend and summarizer.
func Build(cfg *config.AppConfig, logger *slog.Logger) (*service.Service, error) {
	emb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	backend, err := NewBackend(cfg.Generation)
	if err != nil {
		return nil, err
	}
	logger.Info("components ready",
		"embedder", emb.Name(),
		"generation", backend.Provider(),
		"chunk_size", cfg.Chunker.Size,
		"chunk_overlap", cfg.Chunker.Overlap)

	return service.New(
		chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap),
		index.New(emb),
		backend,
		summarizer.NewFrequency(cfg.Summarizer.MaxSentences),
		service.Options{
			TopK:              cfg.Retrieval.TopK,
			GenerationTimeout: cfg.Generation.Timeout(),
		},
		logger,
	), nil
}

// NewEmbedder returns the embedder selected by cfg.Type.
func NewEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("app: openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize: cfg.OpenAI.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("app: openai embedder: %w", err)
		}
		return client, nil
	case "ollama":
		if cfg.Ollama == nil {
			return nil, fmt.Errorf("app: ollama embedder config missing")
		}
		return ollama.NewClient(ollama.Config{
			BaseURL:    cfg.Ollama.BaseURL,
			Model:      cfg.Ollama.Model,
			Timeout:    time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Ollama.MaxRetries,
		}), nil
	}
	return nil, fmt.Errorf("app: unknown embedder: %s", cfg.Type)
}

// NewBackend returns the generation backend selected by cfg.Provider.
func NewBackend(cfg config.GenerationConfig) (generate.Backend, error) {
	p, err := generate.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	b, err := generate.New(generate.Config{
		Provider:   p,
		Endpoint:   cfg.Endpoint,
		Model:      cfg.Model,
		APIKeyEnv:  cfg.APIKeyEnv,
		Timeout:    cfg.Timeout(),
		RatePerSec: cfg.RatePerSec,
		Burst:      cfg.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("app: generation backend: %w", err)
	}
	return b, nil
}

// LoadConfig reads path, or the default locations when path is empty.
func LoadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}
