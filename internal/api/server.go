package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ignite/ses-guard/internal/pkg/logger"
)

// shutdownGrace bounds how long in-flight webhooks may finish on shutdown.
const shutdownGrace = 10 * time.Second

// Server serves the router until its context is cancelled.
type Server struct {
	srv *http.Server
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// SNS gives up on an endpoint after 15s.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}}
}

// Run listens until ctx is done, then drains in-flight requests. It returns
// nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("[server] listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
