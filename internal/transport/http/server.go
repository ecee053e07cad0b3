// Package httptransport builds the HTTP server and runs it under a supervisor.
package httptransport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// ShutdownTimeout bounds graceful shutdown once the service is stopped.
	ShutdownTimeout time.Duration
}

// NewServer creates *http.Server with provided handler.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Service runs an *http.Server as a suture.Service.
type Service struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          zerolog.Logger
	listen          func(network, address string) (net.Listener, error)
}

// NewService wraps server. A zero shutdownTimeout defaults to 15s.
func NewService(server *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) *Service {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &Service{server: server, shutdownTimeout: shutdownTimeout, logger: logger, listen: net.Listen}
}

// Serve listens until ctx is cancelled, then shuts the server down gracefully.
func (s *Service) Serve(ctx context.Context) error {
	listener, err := s.listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", listener.Addr().String()).Msg("http server listening")
		errCh <- s.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("graceful shutdown failed")
		return err
	}
	<-errCh
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *Service) String() string { return "http-server@" + s.server.Addr }
