package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/ingest"
	"legal-rag/internal/models"
)

// Uploader ingests one uploaded file.
type Uploader interface {
	IngestUpload(ctx context.Context, filename string, r io.Reader) (*ingest.Result, error)
}

// Asker answers questions, whole or streamed.
type Asker interface {
	Query(ctx context.Context, query string) (*models.PromptResponse, error)
	Stream(ctx context.Context, query string) (<-chan models.StreamToken, error)
}

// Counter reports how many chunks the knowledge base holds.
type Counter interface {
	Count() int
}

type Server struct {
	router *gin.Engine
	addr   string
}

func New(addr string, uploader Uploader, asker Asker, counter Counter) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), loggingMiddleware, corsMiddleware)

	h := &handler{uploader: uploader, asker: asker, counter: counter}
	for _, prefix := range []string{"/upload", "/upload/"} {
		router.POST(prefix, h.upload)
	}
	for _, prefix := range []string{"/chat", "/chat/"} {
		router.GET(prefix, h.chat)
	}
	for _, prefix := range []string{"/chat_stream", "/chat_stream/"} {
		router.GET(prefix, h.chatStream)
	}
	router.GET("/health", h.health)

	return &Server{router: router, addr: addr}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down server")
		}
	}()

	log.Info().Str("addr", s.addr).Msg("Starting server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func corsMiddleware(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "*")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func loggingMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()
	log.Info().
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).
		Dur("duration", time.Since(start)).
		Msg("request")
}
