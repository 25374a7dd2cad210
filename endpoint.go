// Copyright 2025 Kirill Scherba <kirill@scherba.ru>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Endpoint brings up the TLS 1.3 + QUIC listener: it owns the UDP socket
// and the TLS identity, and hands every accepted QUIC connection off to a
// Dispatcher on its own goroutine.

package webtransport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// EndpointConfig carries the transport parameters for an Endpoint. The
// KeepAlive and IdleTimeout values are normative per the specification:
// keeping KeepAlive below IdleTimeout guarantees an otherwise-silent but
// live client is never dropped by the idle timer.
type EndpointConfig struct {
	// ListenAddr is the UDP address to bind, e.g. "0.0.0.0:4433".
	ListenAddr string
	// KeepAlive is the interval at which PING frames are sent to a
	// connection with no other traffic. Defaults to 2s.
	KeepAlive time.Duration
	// IdleTimeout closes a connection that has been silent for this long.
	// Defaults to 10s.
	IdleTimeout time.Duration
	// Allow0RTT enables 0-RTT acceptance at the TLS layer. The application
	// performs no replay protection of its own; see the open question in
	// DESIGN.md before enabling this in a hostile environment.
	Allow0RTT bool
}

func (c EndpointConfig) withDefaults() EndpointConfig {
	if c.KeepAlive == 0 {
		c.KeepAlive = 2 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 10 * time.Second
	}
	return c
}

// Endpoint owns the UDP socket and TLS identity for the server. It is built
// once and never mutated after Run starts.
type Endpoint struct {
	cfg        EndpointConfig
	listener   *quic.Listener
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewEndpoint binds a UDP socket at cfg.ListenAddr with a TLS 1.3
// configuration built from cert, and returns an Endpoint ready to Run.
// An empty or unresolvable listen address is wrapped as KindConfig; bind
// failures are wrapped as KindBind.
func NewEndpoint(cfg EndpointConfig, cert tls.Certificate, dispatcher *Dispatcher, logger *slog.Logger) (*Endpoint, error) {
	cfg = cfg.withDefaults()
	if cfg.ListenAddr == "" {
		return nil, newError(KindConfig, fmt.Errorf("listen address must not be empty"))
	}
	if _, err := net.ResolveUDPAddr("udp", cfg.ListenAddr); err != nil {
		return nil, newError(KindConfig, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	tlsConfig := buildTLSConfig(cert)
	quicConfig := &quic.Config{
		EnableDatagrams: true,
		KeepAlivePeriod: cfg.KeepAlive,
		MaxIdleTimeout:  cfg.IdleTimeout,
		Allow0RTT:       cfg.Allow0RTT,
	}

	listener, err := quic.ListenAddr(cfg.ListenAddr, tlsConfig, quicConfig)
	if err != nil {
		return nil, newError(KindBind, err)
	}

	return &Endpoint{
		cfg:        cfg,
		listener:   listener,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// Run accepts QUIC connections until ctx is cancelled, handing each one to
// the Endpoint's Dispatcher on its own goroutine. Accept failures are
// logged and do not terminate the endpoint; only ctx cancellation ends the
// loop (Run closes the listener itself once ctx is done). Run blocks until every
// in-flight connection has drained (wait_idle semantics) before returning.
func (e *Endpoint) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = e.listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := e.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			e.logger.Error("quic accept failed", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			e.dispatcher.HandleConnection(ctx, conn)
		}()
	}

	wg.Wait()
	return nil
}

// Addr returns the bound local UDP address.
func (e *Endpoint) Addr() string {
	return e.listener.Addr().String()
}
