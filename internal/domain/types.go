package domain

import (
	"context"
	"fmt"
	"time"
)

// Fragment is a contiguous slice of a document's text used as the unit of retrieval.
type Fragment struct {
	ID     string `json:"fragment_id"`
	Source string `json:"source"`
	Text   string `json:"text"`
	Index  int    `json:"fragment_index"`
}

// FragmentID builds the per-source identifier of a fragment.
func FragmentID(source string, index int) string {
	return fmt.Sprintf("%s_%d", source, index)
}

// ScoredFragment is a fragment ranked against a query by cosine similarity.
type ScoredFragment struct {
	Fragment
	Score float64 `json:"similarity_score"`
}

// ConversationEntry records one answered question.
type ConversationEntry struct {
	ID            string   `json:"id"`
	Timestamp     string   `json:"timestamp"`
	Question      string   `json:"question"`
	Answer        string   `json:"answer"`
	Sources       []string `json:"sources"`
	FragmentCount int      `json:"fragment_count"`
}

// DocumentInfo describes an ingested document.
type DocumentInfo struct {
	Source     string    `json:"source"`
	Fragments  int       `json:"fragments"`
	Characters int       `json:"characters"`
	Summary    string    `json:"summary,omitempty"`
	AddedAt    time.Time `json:"added_at"`
}

// IndexStats summarizes the contents of an embedding index.
type IndexStats struct {
	TotalFragments     int `json:"total_fragments"`
	EmbeddingDimension int `json:"embedding_dimension"`
	UniqueSources      int `json:"unique_sources"`
}

// Stats is the index summary merged with conversation and document counts.
type Stats struct {
	IndexStats
	ConversationCount int `json:"conversation_count"`
	Documents         int `json:"documents"`
}

// Embedder converts free text into fixed-dimension numeric vectors.
// Encode returns one row per input text, in input order.
type Embedder interface {
	Name() string
	Encode(ctx context.Context, texts []string) ([][]float64, error)
}
