// Command webtransport-echo-server runs a WebTransport-over-HTTP/3 echo
// server: every datagram, unidirectional stream and bidirectional stream a
// client sends is echoed back, alongside a small HTTP sidecar for liveness
// and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	webtransport "github.com/teonet-go/webtransport-echo-server"
	"github.com/teonet-go/webtransport-echo-server/echo"
	"github.com/teonet-go/webtransport-echo-server/internal/config"
	"github.com/teonet-go/webtransport-echo-server/internal/health"
	"github.com/teonet-go/webtransport-echo-server/internal/metrics"
)

func main() {
	os.Exit(run())
}

// run wires the server together and blocks until shutdown. Its return value
// is the process exit code: 0 on a graceful shutdown, non-zero when
// configuration, credentials or the QUIC bind fail.
func run() int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return 1
	}

	cert, err := webtransport.LoadCredentials(cfg.KeyPath, cfg.CertPath)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		return 1
	}

	m := metrics.New()

	dispatcher := &webtransport.Dispatcher{
		Logger: logger,
		OnSession: func(ctx context.Context, session *webtransport.Session) {
			done := m.SessionStarted()
			defer done()
			echo.Loop(ctx, session, logger, m)
		},
	}

	endpoint, err := webtransport.NewEndpoint(webtransport.EndpointConfig{
		ListenAddr: cfg.ListenURL,
		Allow0RTT:  true,
	}, cert, dispatcher, logger)
	if err != nil {
		logger.Error("failed to start quic endpoint", "error", err)
		return 1
	}
	logger.Info("quic endpoint listening", "addr", endpoint.Addr())

	healthServer := health.New(cfg.HealthListenURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received")
		cancel()
	}()

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := endpoint.Run(ctx); err != nil {
			errs <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("health sidecar listening", "addr", cfg.HealthListenURL)
		if err := healthServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs <- err
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	<-done

	select {
	case err := <-errs:
		logger.Error("server error", "error", err)
		return 1
	default:
		logger.Info("shutdown complete")
		return 0
	}
}
