package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docrag/internal/domain"
)

func TestTemplate(t *testing.T) {
	got := Template("what sat?", "From a.txt:\nThe cat sat")
	want := "**Query:** what sat?\n\n**Relevant Information:**\nFrom a.txt:\nThe cat sat\n\n**Note:** Configure an LLM provider (OpenAI or Ollama) for richer answers."
	if got != want {
		t.Fatalf("template mismatch:\n%q\n%q", got, want)
	}
	if Template("q", "c") != Template("q", "c") {
		t.Fatal("template is not deterministic")
	}
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("why?", "ctx")
	if got != "Context:\nctx\n\nQuestion: why?\n\nAnswer comprehensively." {
		t.Fatalf("unexpected prompt %q", got)
	}
}

func TestParseProvider(t *testing.T) {
	cases := map[string]Provider{
		"":       ProviderNone,
		"none":   ProviderNone,
		"openai": ProviderRemote,
		"Remote": ProviderRemote,
		"ollama": ProviderLocal,
		"local":  ProviderLocal,
	}
	for in, want := range cases {
		got, err := ParseProvider(in)
		if err != nil || got != want {
			t.Errorf("ParseProvider(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseProvider("gemini"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFailureText(t *testing.T) {
	err := (&Local{}).fail(errors.New("connection refused"))
	if got := FailureText(ProviderLocal, err); got != "Error calling Ollama: connection refused" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := FailureText(ProviderRemote, errors.New("boom")); got != "Error calling OpenAI: boom" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestNew_None(t *testing.T) {
	b, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if b.Provider() != ProviderNone {
		t.Fatalf("expected none, got %q", b.Provider())
	}
	if _, err := b.Complete(context.Background(), "x"); !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected generation failure, got %v", err)
	}
}

func TestNew_RemoteMissingKey(t *testing.T) {
	t.Setenv("DOCRAG_TEST_EMPTY_KEY", "")
	if _, err := New(Config{Provider: ProviderRemote, APIKeyEnv: "DOCRAG_TEST_EMPTY_KEY"}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestNew_WrapsWithLimiter(t *testing.T) {
	b, err := New(Config{Provider: ProviderLocal, RatePerSec: 2, Burst: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*Limited); !ok {
		t.Fatalf("expected *Limited, got %T", b)
	}
	if b.Provider() != ProviderLocal {
		t.Fatalf("limited backend must report the wrapped provider")
	}
}

func TestRemote_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		var req struct {
			Model       string  `json:"model"`
			MaxTokens   int     `json:"max_tokens"`
			Temperature float32 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != systemPrompt {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		if req.Messages[1].Content != "the prompt" || req.MaxTokens != 1000 || req.Temperature != 0.7 {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  the answer \n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	t.Setenv("DOCRAG_TEST_KEY", "test-key")
	r, err := NewRemote(RemoteConfig{BaseURL: srv.URL + "/v1", APIKeyEnv: "DOCRAG_TEST_KEY"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Complete(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "the answer" {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestRemote_ErrorWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	t.Setenv("DOCRAG_TEST_KEY", "k")
	r, err := NewRemote(RemoteConfig{BaseURL: srv.URL + "/v1", APIKeyEnv: "DOCRAG_TEST_KEY"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Complete(context.Background(), "p")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if !strings.HasPrefix(FailureText(ProviderRemote, err), "Error calling OpenAI: ") {
		t.Fatalf("unexpected failure text %q", FailureText(ProviderRemote, err))
	}
}

func TestLocal_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream || req.Model != "mistral" || req.Prompt != "p" {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "local answer\n"})
	}))
	defer srv.Close()

	l := NewLocal(LocalConfig{BaseURL: srv.URL + "/", Model: "mistral"})
	got, err := l.Complete(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if got != "local answer" {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestLocal_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewLocal(LocalConfig{BaseURL: srv.URL}).Complete(context.Background(), "p")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("error should carry the server message: %v", err)
	}
}

type countingBackend struct{ calls int }

func (c *countingBackend) Provider() Provider { return ProviderLocal }

func (c *countingBackend) Complete(context.Context, string) (string, error) {
	c.calls++
	return "ok", nil
}

func TestLimited_CancelledWait(t *testing.T) {
	inner := &countingBackend{}
	l := NewLimited(inner, 0.001, 1)
	if _, err := l.Complete(context.Background(), "first"); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Complete(ctx, "second")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected generation failure, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("backend called %d times", inner.calls)
	}
}
