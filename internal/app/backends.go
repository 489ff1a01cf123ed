package app

import (
	"sync"

	"docrag/internal/config"
	"docrag/internal/generate"
)

// Backends builds generation backends on demand, one per provider, so a
// caller can pick the provider for a single query. Built backends are
// reused, which keeps a rate limiter shared across requests.
type Backends struct {
	cfg config.GenerationConfig

	mu    sync.Mutex
	built map[generate.Provider]generate.Backend
}

// NewBackends seeds the registry with the configured default backend.
func NewBackends(cfg config.GenerationConfig, def generate.Backend) *Backends {
	b := &Backends{cfg: cfg, built: make(map[generate.Provider]generate.Backend)}
	if def != nil {
		b.built[def.Provider()] = def
	}
	return b
}

// Get returns the backend for provider, building it on first use. Endpoint
// and model only carry over when provider is the configured one.
func (b *Backends) Get(provider string) (generate.Backend, error) {
	p, err := generate.ParseProvider(provider)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if be, ok := b.built[p]; ok {
		return be, nil
	}
	cfg := b.cfg
	if configured, _ := generate.ParseProvider(cfg.Provider); configured != p {
		cfg.Endpoint = ""
		cfg.Model = ""
	}
	cfg.Provider = string(p)
	be, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	b.built[p] = be
	return be, nil
}
