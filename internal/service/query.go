package service

import (
	"context"
	"strings"
	"time"

	"docrag/internal/domain"
	"docrag/internal/generate"
)

// QueryOptions controls a single query.
type QueryOptions struct {
	UseGeneration bool
	// Backend overrides the service's default backend when non-nil.
	Backend generate.Backend
	// TopK overrides the configured number of fragments when positive.
	TopK int
}

// QueryResult is the answer to one question. Sources are deduplicated in
// rank order; the recorded history keeps one source per fragment.
type QueryResult struct {
	Answer        string
	Sources       []string
	Context       string
	Fragments     []domain.ScoredFragment
	GenerationErr error
	RetrievalErr  error
}

// Query answers question from the indexed documents.
func (s *Service) Query(ctx context.Context, question string, opts QueryOptions) QueryResult {
	topK := s.opts.TopK
	if opts.TopK > 0 {
		topK = opts.TopK
	}

	start := time.Now()
	fragments, err := s.index.Search(ctx, question, topK)
	if err != nil {
		s.log.Error("retrieval failed", "err", err)
		return QueryResult{Answer: NoResultAnswer, Sources: []string{}, Fragments: []domain.ScoredFragment{}, RetrievalErr: err}
	}
	if len(fragments) == 0 {
		s.log.Info("no fragments retrieved", "question_len", len(question))
		return QueryResult{Answer: NoResultAnswer, Sources: []string{}, Fragments: []domain.ScoredFragment{}}
	}

	res := QueryResult{
		Sources:   uniqueSources(fragments),
		Context:   buildContext(fragments),
		Fragments: fragments,
	}

	backend := s.backend
	if opts.Backend != nil {
		backend = opts.Backend
	}
	if opts.UseGeneration && backend.Provider() != generate.ProviderNone {
		gctx, cancel := context.WithTimeout(ctx, s.opts.GenerationTimeout)
		answer, err := backend.Complete(gctx, generate.BuildPrompt(question, res.Context))
		cancel()
		if err != nil {
			s.log.Warn("generation failed", "provider", backend.Provider(), "err", err)
			res.GenerationErr = err
			answer = generate.FailureText(backend.Provider(), err)
		}
		res.Answer = answer
	} else {
		res.Answer = generate.Template(question, res.Context)
	}

	s.record(question, res.Answer, fragments)
	s.log.Info("query answered",
		"fragments", len(fragments),
		"sources", len(res.Sources),
		"top_score", fragments[0].Score,
		"took", time.Since(start))
	return res
}

// buildContext joins "From {source}:\n{text}" blocks with blank lines.
func buildContext(fragments []domain.ScoredFragment) string {
	blocks := make([]string, len(fragments))
	for i, f := range fragments {
		blocks[i] = "From " + f.Source + ":\n" + f.Text
	}
	return strings.Join(blocks, "\n\n")
}

func uniqueSources(fragments []domain.ScoredFragment) []string {
	seen := make(map[string]struct{}, len(fragments))
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if _, ok := seen[f.Source]; ok {
			continue
		}
		seen[f.Source] = struct{}{}
		out = append(out, f.Source)
	}
	return out
}
