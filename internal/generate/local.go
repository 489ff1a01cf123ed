package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docrag/internal/domain"
)

// LocalConfig configures the Ollama backend.
type LocalConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Local answers with a model served by Ollama.
type Local struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewLocal creates an Ollama backend.
func NewLocal(cfg LocalConfig) *Local {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Local{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (l *Local) Provider() Provider { return ProviderLocal }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Complete posts a non-streaming /api/generate request.
func (l *Local) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: l.model, Prompt: prompt})
	if err != nil {
		return "", l.fail(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", l.fail(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", l.fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", l.fail(fmt.Errorf("status %s: %s", resp.Status, bytes.TrimSpace(msg)))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", l.fail(fmt.Errorf("decode: %w", err))
	}
	if out.Error != "" {
		return "", l.fail(fmt.Errorf("%s", out.Error))
	}
	return strings.TrimSpace(out.Response), nil
}

func (l *Local) fail(err error) error {
	return fmt.Errorf("generate: ollama: %w: %w", domain.ErrGenerationFailed, err)
}
