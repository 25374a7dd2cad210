// Package health runs the HTTP sidecar that serves /healthz and /metrics.
// It is a collaborator, not part of the WebTransport protocol surface: a
// probe failing to reach it does not affect in-flight QUIC sessions.
package health

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves /healthz (plain liveness) and /metrics (Prometheus
// exposition format) on its own listener.
type Server struct {
	httpServer *http.Server
}

// New builds a Server that will listen on addr once Run is called.
func New(addr string) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Run serves until ctx is done, then shuts down gracefully. It returns nil
// on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
