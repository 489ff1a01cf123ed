// Package service coordinates ingest and question answering over the
// embedding index.
//
// Ingest chunks a document and appends its fragments to the index. Query
// retrieves the best fragments, assembles a context block, produces an answer
// with the configured generation backend (or a fixed template) and records a
// ConversationEntry. Neither path returns an error to the caller: failures
// are reported inside IngestResult and QueryResult so a presentation layer
// always has something to show.
package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"docrag/internal/chunker"
	"docrag/internal/domain"
	"docrag/internal/generate"
	"docrag/internal/index"
	"docrag/internal/loader"
)

// NoResultAnswer is returned when retrieval finds nothing.
const NoResultAnswer = "No relevant information found."

// DefaultGenerationTimeout bounds a single backend call.
const DefaultGenerationTimeout = 60 * time.Second

// Summarizer condenses a document into a short description.
type Summarizer interface {
	Summarize(text string) string
}

// Options tunes retrieval and generation.
type Options struct {
	TopK              int
	GenerationTimeout time.Duration
	// Now is used for timestamps; defaults to time.Now.
	Now func() time.Time
}

// Service is safe for concurrent use. Index writes are serialized by the
// index; history and the document log share a separate mutex.
type Service struct {
	chunker    *chunker.Chunker
	index      *index.Index
	backend    generate.Backend
	summarizer Summarizer
	opts       Options
	log        *slog.Logger

	mu        sync.RWMutex
	history   []domain.ConversationEntry
	documents []domain.DocumentInfo
}

// New wires a Service. A nil backend means template answers only; a nil
// summarizer skips document summaries; a nil logger uses slog.Default().
func New(ch *chunker.Chunker, idx *index.Index, backend generate.Backend, sum Summarizer, opts Options, log *slog.Logger) *Service {
	if backend == nil {
		backend = generate.None{}
	}
	if opts.TopK <= 0 {
		opts.TopK = index.DefaultTopK
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = DefaultGenerationTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		chunker:    ch,
		index:      idx,
		backend:    backend,
		summarizer: sum,
		opts:       opts,
		log:        log,
	}
}

// Backend returns the default generation backend.
func (s *Service) Backend() generate.Backend { return s.backend }

// AddDocument chunks text under source and appends the fragments to the index.
func (s *Service) AddDocument(ctx context.Context, text, source string) IngestResult {
	res := IngestResult{Source: source}
	if strings.TrimSpace(text) == "" {
		res.Err = domain.ErrEmptyDocument
		s.log.Warn("ingest skipped", "source", source, "reason", res.Reason())
		return res
	}
	fragments := s.chunker.Chunk(text, source)
	if len(fragments) == 0 {
		res.Err = domain.ErrEmptyDocument
		s.log.Warn("ingest skipped", "source", source, "reason", res.Reason())
		return res
	}

	start := time.Now()
	if err := s.index.Ingest(ctx, fragments); err != nil {
		res.Err = err
		s.log.Error("ingest failed", "source", source, "reason", res.Reason(), "err", err)
		return res
	}
	res.Fragments = len(fragments)

	info := domain.DocumentInfo{
		Source:     source,
		Fragments:  len(fragments),
		Characters: utf8.RuneCountInString(text),
		AddedAt:    s.opts.Now(),
	}
	if s.summarizer != nil {
		info.Summary = s.summarizer.Summarize(text)
	}
	s.mu.Lock()
	s.documents = append(s.documents, info)
	s.mu.Unlock()

	s.log.Info("document ingested",
		"source", source,
		"fragments", len(fragments),
		"chars", info.Characters,
		"took", time.Since(start))
	return res
}

// AddFile loads the file at path and ingests it. The source is name when
// non-empty, otherwise the file's base name.
func (s *Service) AddFile(ctx context.Context, path, name string) IngestResult {
	source := name
	if source == "" {
		source = filepath.Base(path)
	}
	text, err := loader.Load(path)
	if err != nil {
		res := IngestResult{Source: source, Err: &LoadError{Path: path, Err: err}}
		s.log.Error("load failed", "path", path, "reason", res.Reason(), "err", err)
		return res
	}
	return s.AddDocument(ctx, text, source)
}

// AddPaths expands each glob pattern and ingests every match. A pattern
// with no matches is tried as a literal path so the failure is reported.
func (s *Service) AddPaths(ctx context.Context, patterns []string) []IngestResult {
	var results []IngestResult
	for _, p := range patterns {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			results = append(results, s.AddFile(ctx, m, ""))
		}
	}
	return results
}

// Stats merges index statistics with the conversation and document counts.
func (s *Service) Stats() domain.Stats {
	st := domain.Stats{IndexStats: s.index.Stats()}
	s.mu.RLock()
	st.ConversationCount = len(s.history)
	st.Documents = len(s.documents)
	s.mu.RUnlock()
	return st
}

// History returns a copy of every conversation entry, newest last.
func (s *Service) History() []domain.ConversationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ConversationEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Recent returns at most n entries, newest first.
func (s *Service) Recent(n int) []domain.ConversationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]domain.ConversationEntry, 0, n)
	for i := len(s.history) - 1; i >= len(s.history)-n; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// Documents returns the ingested documents in ingest order.
func (s *Service) Documents() []domain.DocumentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DocumentInfo, len(s.documents))
	copy(out, s.documents)
	return out
}

func (s *Service) record(question, answer string, fragments []domain.ScoredFragment) {
	sources := make([]string, len(fragments))
	for i, f := range fragments {
		sources[i] = f.Source
	}
	entry := domain.ConversationEntry{
		ID:            uuid.NewString(),
		Timestamp:     s.opts.Now().Format(time.RFC3339),
		Question:      question,
		Answer:        answer,
		Sources:       sources,
		FragmentCount: len(fragments),
	}
	s.mu.Lock()
	s.history = append(s.history, entry)
	s.mu.Unlock()
}

// LoadError wraps a failure to read a document from disk.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return "load " + e.Path + ": " + e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }

// IngestResult reports the outcome of one document ingest.
type IngestResult struct {
	Source    string
	Fragments int
	Err       error
}

// OK reports whether the document was indexed.
func (r IngestResult) OK() bool { return r.Err == nil }

// Reason classifies a failure for display. It is empty on success.
func (r IngestResult) Reason() string {
	var le *LoadError
	switch {
	case r.Err == nil:
		return ""
	case errors.Is(r.Err, domain.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(r.Err, domain.ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(r.Err, domain.ErrEmptyDocument):
		return "empty_document"
	case errors.As(r.Err, &le):
		return "load_failed"
	default:
		return "embedding_failed"
	}
}
