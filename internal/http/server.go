// README: API gateway; owns the HTTP server lifecycle and delegates to module services.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gigmarket/internal/infra"
	"gigmarket/internal/modules/order"
	"gigmarket/internal/modules/ordercache"
	"gigmarket/internal/modules/payment"
)

const shutdownTimeout = 10 * time.Second

type ServerDeps struct {
	Addr           string
	Order          *order.Service
	Reconciler     *payment.Reconciler
	Verifier       infra.TokenVerifier
	Registry       *ordercache.Registry
	StreamFallback time.Duration
	WebhookToken   string
	Logger         *zap.Logger
}

type Server struct {
	http     *http.Server
	registry *ordercache.Registry
	logger   *zap.Logger
}

func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = ordercache.NewRegistry()
	}
	return &Server{
		http: &http.Server{
			Addr:              deps.Addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		registry: deps.Registry,
		logger:   deps.Logger,
	}
}

func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx ends, then drains open streams and shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// streams only end once their listeners are gone
	s.registry.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
