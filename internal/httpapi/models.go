package httpapi

import "docrag/internal/domain"

type addDocumentRequest struct {
	Source string `json:"source" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

type ingestResponse struct {
	Source    string `json:"source"`
	Fragments int    `json:"fragments"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

type queryRequest struct {
	Question      string `json:"question" binding:"required"`
	UseGeneration bool   `json:"use_generation"`
	TopK          int    `json:"top_k,omitempty"`
	// Provider overrides the default backend for this query: none, openai or ollama.
	Provider string `json:"provider,omitempty"`
}

type queryResponse struct {
	Answer          string                  `json:"answer"`
	Sources         []string                `json:"sources"`
	Context         string                  `json:"context"`
	Fragments       []domain.ScoredFragment `json:"fragments"`
	Provider        string                  `json:"provider,omitempty"`
	GenerationError string                  `json:"generation_error,omitempty"`
}
