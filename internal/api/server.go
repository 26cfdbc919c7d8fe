// Package api serves a read-only view of the validator over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/scrapenet/internal/loop"
	"github.com/ppiankov/scrapenet/internal/model"
)

// StatusSource reports the live loop state
type StatusSource interface {
	Status() loop.Status
}

// Archive serves previously scored rounds
type Archive interface {
	Recent(ctx context.Context, platform model.Platform, limit int) ([]*model.RoundReport, error)
	Get(ctx context.Context, roundID string) (*model.RoundReport, error)
}

// Server exposes health, status, trust and round history
type Server struct {
	status  StatusSource
	archive Archive // Optional
}

// NewServer creates a server. archive may be nil.
func NewServer(status StatusSource, archive Archive) *Server {
	return &Server{status: status, archive: archive}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/api/health", handleHealth)
	r.GET("/api/status", s.handleStatus)
	r.GET("/api/trust", s.handleTrust)
	r.GET("/api/rounds", s.handleRounds)
	r.GET("/api/rounds/:id", s.handleRound)
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("api: request",
			"method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}
