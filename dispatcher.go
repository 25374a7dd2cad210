// Copyright 2025 Kirill Scherba <kirill@scherba.ru>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package webtransport provides a WebTransport-over-HTTP/3 server
// implementation in Go.
//
// This package depends on the [quic-go](https://github.com/quic-go/quic-go)
// package. It implements just enough of HTTP/3 to demultiplex a QUIC
// connection into classical requests and WebTransport "extended CONNECT"
// upgrades; the Dispatcher in this file is the demultiplexer, and Session,
// with its stream wrappers and datagram methods (in the sibling files), is
// what a successful upgrade hands to the caller.
package webtransport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/quic-go/qpack"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/quicvarint"
	"github.com/teonet-go/webtransport-echo-server/h3"
)

// webTransportProtocol is the value of the :protocol pseudo-header an
// extended CONNECT request must carry to be recognized as a WebTransport
// upgrade.
const webTransportProtocol = "webtransport"

// connState names the states of the per-connection dispatch state machine:
// Accepting -> UpgradingWebTransport -> InSession -> Closed, with
// Accepting -> Closed on a connection-level error or normal accept
// termination.
type connState int

const (
	stateAccepting connState = iota
	stateUpgradingWebTransport
	stateInSession
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateAccepting:
		return "accepting"
	case stateUpgradingWebTransport:
		return "upgrading_webtransport"
	case stateInSession:
		return "in_session"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionHandler is invoked once per connection, after a WebTransport
// session has been successfully negotiated. It is expected to block for the
// lifetime of the session (see the echo package's Loop).
type SessionHandler func(ctx context.Context, session *Session)

// Dispatcher demultiplexes accepted QUIC connections into HTTP/3 requests,
// upgrading the single qualifying extended-CONNECT request per connection
// into a WebTransport session and handing it to OnSession.
type Dispatcher struct {
	// OnSession is called once a WebTransport session has been
	// established. It must not be nil for the dispatcher to do anything
	// useful; with a nil OnSession the session is accepted and
	// HandleConnection returns at once, without closing the session.
	OnSession SessionHandler
	// Logger receives structured log events; a nil Logger falls back to
	// slog.Default().
	Logger *slog.Logger
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// HandleConnection runs the HTTP/3 control-stream handshake and the request
// accept loop for a single QUIC connection. It returns once the connection
// is done: either because a WebTransport session ran to completion, or
// because of a connection-level error or normal termination of the accept
// loop. Exactly one WebTransport session is permitted per connection.
func (d *Dispatcher) HandleConnection(ctx context.Context, conn quic.Connection) {
	logger := d.logger().With("remote_addr", conn.RemoteAddr().String())
	state := stateAccepting

	serverControlStream, clientControlStream, err := d.exchangeSettings(ctx, conn)
	if err != nil {
		logger.Error("http3 settings exchange failed", "error", err, "state", state.String())
		return
	}

	decoder := qpack.NewDecoder(nil)

	for {
		requestStream, err := conn.AcceptStream(ctx)
		if err != nil {
			// Connection-level: either a fatal error or the connection
			// closing. Either way this connection is done.
			state = stateClosed
			logger.Debug("connection accept loop ended", "error", err, "state", state.String())
			return
		}

		req, protocol, err := d.readRequest(conn, requestStream, decoder)
		if err != nil {
			// Stream-level: log and keep accepting subsequent requests.
			logger.Error("stream error reading request", "error", newError(KindStream, err))
			requestStream.Close()
			continue
		}

		if req.Method != http.MethodConnect || protocol != webTransportProtocol {
			logger.Info("http3 request", "method", req.Method, "path", req.URL.Path)
			requestStream.Close()
			continue
		}

		state = stateUpgradingWebTransport
		session := d.upgrade(requestStream, conn, serverControlStream, clientControlStream)
		state = stateInSession
		session.AcceptSession()
		logger.Info("webtransport session established", "session_id", session.SessionID())

		if d.OnSession != nil {
			d.OnSession(session.Context(), session)
		}

		// Exactly one session per connection: once it completes, the
		// connection is considered done.
		state = stateClosed
		logger.Info("webtransport session completed", "session_id", session.SessionID())
		return
	}
}

// exchangeSettings opens the server's HTTP/3 control stream, advertises the
// datagram and WebTransport extension bits, and accepts+validates the
// client's control stream. Any failure here is connection-level.
func (d *Dispatcher) exchangeSettings(ctx context.Context, conn quic.Connection) (quic.SendStream, quic.ReceiveStream, error) {
	serverControlStream, err := conn.OpenUniStream()
	if err != nil {
		return nil, nil, newError(KindConnection, fmt.Errorf("open server control stream: %w", err))
	}

	streamHeader := h3.StreamHeader{Type: h3.STREAM_CONTROL}
	if _, err := streamHeader.Write(serverControlStream); err != nil {
		return nil, nil, newError(KindConnection, fmt.Errorf("write control stream header: %w", err))
	}

	settingsFrame := (h3.SettingsMap{
		h3.H3_DATAGRAM_05:      1,
		h3.ENABLE_WEBTRANSPORT: 1,
	}).ToFrame()
	if _, err := settingsFrame.Write(serverControlStream); err != nil {
		return nil, nil, newError(KindConnection, fmt.Errorf("write settings frame: %w", err))
	}

	clientControlStream, err := conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, nil, newError(KindConnection, fmt.Errorf("accept client control stream: %w", err))
	}

	clientSettingsReader := quicvarint.NewReader(clientControlStream)
	if _, err := quicvarint.Read(clientSettingsReader); err != nil {
		return nil, nil, newError(KindConnection, fmt.Errorf("read client control stream type: %w", err))
	}

	clientSettingsFrame := h3.Frame{}
	if err := clientSettingsFrame.Read(clientControlStream); err != nil {
		return nil, nil, newError(KindConnection, fmt.Errorf("read client settings frame: %w", err))
	}
	if clientSettingsFrame.Type != h3.FRAME_SETTINGS {
		return nil, nil, newError(KindConnection, fmt.Errorf("expected a SETTINGS frame, got type %#x", clientSettingsFrame.Type))
	}

	return serverControlStream, clientControlStream, nil
}

// readRequest reads one HEADERS frame off requestStream and turns it into
// an *http.Request plus the value of its :protocol pseudo-header. Failures
// here are stream-level: the caller keeps accepting further requests.
func (d *Dispatcher) readRequest(conn quic.Connection, requestStream quic.Stream, decoder *qpack.Decoder) (*http.Request, string, error) {
	headersFrame := h3.Frame{}
	if err := headersFrame.Read(requestStream); err != nil {
		return nil, "", fmt.Errorf("read headers frame: %w", err)
	}
	if headersFrame.Type != h3.FRAME_HEADERS {
		return nil, "", fmt.Errorf("expected a HEADERS frame, got type %#x", headersFrame.Type)
	}

	hfs, err := decoder.DecodeFull(headersFrame.Data)
	if err != nil {
		return nil, "", fmt.Errorf("decode headers: %w", err)
	}

	req, protocol, err := h3.RequestFromHeaders(hfs)
	if err != nil {
		return nil, "", fmt.Errorf("build request from headers: %w", err)
	}
	req.RemoteAddr = conn.RemoteAddr().String()

	return req, protocol, nil
}

// upgrade builds a Session from a qualifying extended-CONNECT request
// stream. It spawns a small watchdog goroutine that tears the session down
// if the request stream is closed or reset by the peer.
func (d *Dispatcher) upgrade(requestStream quic.Stream, conn quic.Connection, serverControlStream quic.SendStream, clientControlStream quic.ReceiveStream) *Session {
	ctx, cancel := context.WithCancel(requestStream.Context())

	rw := h3.NewResponseWriter(requestStream)
	rw.Header().Add("sec-webtransport-http3-draft", "draft02")

	session := &Session{
		Stream:              requestStream,
		Session:             conn,
		ClientControlStream: clientControlStream,
		ServerControlStream: serverControlStream,
		responseWriter:      rw,
		context:             ctx,
		cancel:              cancel,
	}

	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := requestStream.Read(buf); err != nil {
				cancel()
				requestStream.Close()
				return
			}
		}
	}()

	return session
}
