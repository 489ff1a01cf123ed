// Package httpapi exposes the service over a JSON HTTP API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docrag/internal/domain"
	"docrag/internal/generate"
	"docrag/internal/loader"
	"docrag/internal/service"
)

// MaxUploadBytes caps multipart uploads.
const MaxUploadBytes = 32 << 20

// Service is the subset of the orchestrator the API needs.
type Service interface {
	AddDocument(ctx context.Context, text, source string) service.IngestResult
	AddFile(ctx context.Context, path, name string) service.IngestResult
	Query(ctx context.Context, question string, opts service.QueryOptions) service.QueryResult
	Stats() domain.Stats
	Recent(n int) []domain.ConversationEntry
	History() []domain.ConversationEntry
	Documents() []domain.DocumentInfo
}

// BackendSource resolves a provider name to a generation backend.
type BackendSource interface {
	Get(provider string) (generate.Backend, error)
}

// Server holds the HTTP handlers.
type Server struct {
	svc      Service
	backends BackendSource
	log      *slog.Logger
}

// New creates the API server.
func New(svc Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{svc: svc, log: log}
}

// WithBackends enables the per-query provider field.
func (s *Server) WithBackends(b BackendSource) *Server {
	s.backends = b
	return s
}

// Handler returns the router wrapped with OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Router(), "docrag")
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())
	r.MaxMultipartMemory = MaxUploadBytes

	r.GET("/health", s.health)
	v1 := r.Group("/api/v1")
	{
		v1.GET("/stats", s.stats)
		v1.GET("/history", s.history)
		v1.GET("/documents", s.documents)
		v1.POST("/documents", s.addDocument)
		v1.POST("/documents/upload", s.upload)
		v1.POST("/query", s.query)
	}
	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "docrag"})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Stats())
}

// history returns all entries newest last, or the newest limit entries
// newest first when limit is given.
func (s *Server) history(c *gin.Context) {
	raw := c.Query("limit")
	if raw == "" {
		c.JSON(http.StatusOK, s.svc.History())
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	c.JSON(http.StatusOK, s.svc.Recent(n))
}

func (s *Server) documents(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Documents())
}

func (s *Server) addDocument(c *gin.Context) {
	var req addDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	s.respondIngest(c, s.svc.AddDocument(c.Request.Context(), req.Text, req.Source))
}

func (s *Server) upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if header.Size > MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	name := filepath.Base(header.Filename)
	if !loader.Supported(name) {
		s.respondIngest(c, service.IngestResult{Source: name, Err: domain.ErrUnsupportedFormat})
		return
	}

	dir, err := os.MkdirTemp("", "docrag-upload-*")
	if err != nil {
		s.log.Error("upload temp dir", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(header, path); err != nil {
		s.log.Error("upload save", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	s.respondIngest(c, s.svc.AddFile(c.Request.Context(), path, name))
}

func (s *Server) respondIngest(c *gin.Context, res service.IngestResult) {
	out := ingestResponse{Source: res.Source, Fragments: res.Fragments, OK: res.OK()}
	if !res.OK() {
		out.Reason = res.Reason()
		out.Error = res.Err.Error()
		c.JSON(http.StatusUnprocessableEntity, out)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// query always answers 200; failures are part of the answer.
func (s *Server) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	opts := service.QueryOptions{
		UseGeneration: req.UseGeneration,
		TopK:          req.TopK,
	}
	if req.Provider != "" {
		if s.backends == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provider selection is not enabled"})
			return
		}
		b, err := s.backends.Get(req.Provider)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provider " + req.Provider + ": " + err.Error()})
			return
		}
		opts.Backend = b
	}
	res := s.svc.Query(c.Request.Context(), req.Question, opts)
	out := queryResponse{
		Answer:    res.Answer,
		Sources:   res.Sources,
		Context:   res.Context,
		Fragments: res.Fragments,
	}
	if opts.Backend != nil {
		out.Provider = string(opts.Backend.Provider())
	}
	if res.GenerationErr != nil {
		out.GenerationError = res.GenerationErr.Error()
	}
	c.JSON(http.StatusOK, out)
}
