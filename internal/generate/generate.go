// Package generate turns a question plus retrieved context into an answer,
// either with a language model or with a fixed template.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docrag/internal/domain"
)

// Provider selects the generation backend.
type Provider string

const (
	ProviderNone   Provider = "none"
	ProviderRemote Provider = "remote"
	ProviderLocal  Provider = "local"
)

// ParseProvider maps a config value to a Provider. "openai" and "ollama" are
// accepted as aliases.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "template":
		return ProviderNone, nil
	case "remote", "openai":
		return ProviderRemote, nil
	case "local", "ollama":
		return ProviderLocal, nil
	}
	return "", fmt.Errorf("generate: unknown provider %q", s)
}

// Backend produces a completion for a prompt.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Provider() Provider
}

// Config selects and configures a backend.
type Config struct {
	Provider  Provider
	Endpoint  string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
	// RatePerSec > 0 puts a token bucket limiter in front of the backend.
	RatePerSec float64
	Burst      int
}

// New builds the backend named by cfg.Provider.
func New(cfg Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.Provider {
	case ProviderNone, "":
		return None{}, nil
	case ProviderRemote:
		b, err = NewRemote(RemoteConfig{
			BaseURL:   cfg.Endpoint,
			APIKeyEnv: cfg.APIKeyEnv,
			Model:     cfg.Model,
			Timeout:   cfg.Timeout,
		})
	case ProviderLocal:
		b = NewLocal(LocalConfig{
			BaseURL: cfg.Endpoint,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("generate: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RatePerSec > 0 {
		b = NewLimited(b, cfg.RatePerSec, cfg.Burst)
	}
	return b, nil
}

// None is the template-only backend. It never completes a prompt.
type None struct{}

func (None) Provider() Provider { return ProviderNone }

func (None) Complete(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: no provider configured", domain.ErrGenerationFailed)
}

// Template renders the answer used when no language model is involved.
func Template(question, context string) string {
	return "**Query:** " + question +
		"\n\n**Relevant Information:**\n" + context +
		"\n\n**Note:** Configure an LLM provider (OpenAI or Ollama) for richer answers."
}

// BuildPrompt renders the prompt sent to a language model.
func BuildPrompt(question, context string) string {
	return "Context:\n" + context + "\n\nQuestion: " + question + "\n\nAnswer comprehensively."
}

// FailureText is the answer shown to the user when a backend fails.
func FailureText(p Provider, err error) string {
	name := "LLM"
	switch p {
	case ProviderRemote:
		name = "OpenAI"
	case ProviderLocal:
		name = "Ollama"
	}
	return fmt.Sprintf("Error calling %s: %s", name, cause(err))
}

// cause strips the package prefix and sentinel text from a wrapped error.
func cause(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	if errors.Is(err, domain.ErrGenerationFailed) {
		if i := strings.Index(msg, domain.ErrGenerationFailed.Error()+": "); i >= 0 {
			msg = msg[i+len(domain.ErrGenerationFailed.Error())+2:]
		}
	}
	return msg
}
