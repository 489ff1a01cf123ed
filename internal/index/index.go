// Package index holds the in-memory embedding index used for retrieval.
//
// Search is exhaustive: every stored vector is compared with the query. That
// is fine for a personal document collection and is the scaling limit of
// this package; swapping in an approximate method would change recall and
// tie-breaking.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"docrag/internal/domain"
)

const DefaultTopK = 5

// Index owns fragments and their L2-normalized embeddings, aligned by
// position. Ingest is the single writer; Search readers are excluded while a
// batch is appended.
type Index struct {
	embedder domain.Embedder

	mu        sync.RWMutex
	dimension int
	fragments []domain.Fragment
	vectors   [][]float64
}

// New creates an empty index that embeds text with embedder.
func New(embedder domain.Embedder) *Index {
	return &Index{embedder: embedder}
}

// Ingest embeds fragments in one batch and appends them in input order.
// On any failure the index is left exactly as it was.
func (x *Index) Ingest(ctx context.Context, fragments []domain.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}
	rows, err := x.embedder.Encode(ctx, texts)
	if err != nil {
		return fmt.Errorf("index: encode %d fragments: %w", len(fragments), err)
	}
	if len(rows) != len(fragments) {
		return fmt.Errorf("index: embedder returned %d rows for %d fragments", len(rows), len(fragments))
	}

	vectors := make([][]float64, len(rows))
	for i, r := range rows {
		if len(r) == 0 {
			return errors.New("index: embedder returned an empty vector")
		}
		vectors[i] = normalized(r)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	want := x.dimension
	if want == 0 {
		want = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != want {
			return &domain.DimensionError{Want: want, Got: len(v)}
		}
	}
	x.dimension = want
	x.fragments = append(x.fragments, fragments...)
	x.vectors = append(x.vectors, vectors...)
	return nil
}

// Search embeds query and returns the topK most similar fragments, best
// first. An empty index yields an empty result without calling the embedder.
func (x *Index) Search(ctx context.Context, query string, topK int) ([]domain.ScoredFragment, error) {
	if x.Len() == 0 {
		return []domain.ScoredFragment{}, nil
	}
	rows, err := x.embedder.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index: encode query: %w", err)
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("index: embedder returned %d rows for the query", len(rows))
	}
	return x.SearchVector(rows[0], topK)
}

// SearchVector ranks stored fragments against an already computed query
// embedding. Scores are cosine similarities; equal scores keep insertion order.
func (x *Index) SearchVector(vector []float64, topK int) ([]domain.ScoredFragment, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.vectors) == 0 {
		return []domain.ScoredFragment{}, nil
	}
	if len(vector) != x.dimension {
		return nil, &domain.DimensionError{Want: x.dimension, Got: len(vector)}
	}
	q := normalized(vector)

	scores := make([]float64, len(x.vectors))
	for i := range x.vectors {
		scores[i] = dot(x.vectors[i], q)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })

	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.ScoredFragment, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.ScoredFragment{Fragment: x.fragments[j], Score: scores[j]})
	}
	return results, nil
}

// Stats reports fragment count, embedding dimension and distinct sources.
func (x *Index) Stats() domain.IndexStats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	sources := make(map[string]struct{})
	for _, f := range x.fragments {
		sources[f.Source] = struct{}{}
	}
	return domain.IndexStats{
		TotalFragments:     len(x.fragments),
		EmbeddingDimension: x.dimension,
		UniqueSources:      len(sources),
	}
}

// Len returns the number of indexed fragments.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.fragments)
}

// normalized returns a unit-length copy of v. Zero vectors stay zero.
func normalized(v []float64) []float64 {
	out := make([]float64, len(v))
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return out
	}
	inv := 1 / math.Sqrt(norm)
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
