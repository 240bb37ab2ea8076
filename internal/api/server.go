package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/anaeng/aura/internal/api/handlers"
	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/nsi"
	"github.com/anaeng/aura/pkg/store"
)

const shutdownTimeout = 5 * time.Second

// Server is the agent's HTTP server. It is created stopped; Start blocks
// until the context is cancelled, then shuts down gracefully. In-flight
// callbacks are given shutdownTimeout to finish so a provider's confirmation
// is not lost on restart.
type Server struct {
	server       *http.Server
	host         string
	port         int
	shutdownOnce sync.Once
}

// NewServer wires the router and returns a configured but not yet started
// server.
func NewServer(host string, port int, s *store.Store, dispatcher handlers.Dispatcher, requester *nsi.Requester, templates *nsi.Templates, providerID string) *Server {
	router := NewRouter(s, dispatcher, requester, templates, providerID)
	return &Server{
		server: &http.Server{
			Addr:        fmt.Sprintf("%s:%d", host, port),
			Handler:     router,
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
			// No WriteTimeout: the SSE log stream writes for as long as the
			// client listens.
		},
		host: host,
		port: port,
	}
}

// Start serves until the context is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "host", s.host, "port", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// The cancelled ctx would abort the shutdown immediately; use a
		// fresh one with the grace period.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}
