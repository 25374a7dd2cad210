// Copyright 2025 Kirill Scherba <kirill@scherba.ru>. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Session module of webtransport package.

package webtransport

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/quicvarint"
	"github.com/teonet-go/webtransport-echo-server/h3"
)

// Session is a WebTransport session wrapping the request stream (a
// quic.Stream), the two control streams and a quic.Connection.
//
// Its exported accept/open/datagram methods are deliberately shaped to
// satisfy the echo package's Handle interface, the capability set the
// session echo loop needs from a transport backend: SessionID,
// AcceptDatagram, SendDatagram, AcceptUniStream, AcceptBiStream,
// OpenUniStream and OpenBiStream.
type Session struct {
	quic.Stream
	Session             quic.Connection
	ClientControlStream quic.ReceiveStream
	ServerControlStream quic.SendStream
	responseWriter      *h3.ResponseWriter
	context             context.Context
	cancel              context.CancelFunc
}

// Context returns the context for the WebTransport session.
func (s *Session) Context() context.Context {
	return s.context
}

// SessionID returns the opaque identifier for this session: the QUIC
// stream ID of the request stream that negotiated it.
func (s *Session) SessionID() uint64 {
	return uint64(s.StreamID())
}

// AcceptSession accepts an incoming WebTransport session by sending a 200
// response on the request stream. The Dispatcher calls it after the upgrade.
func (s *Session) AcceptSession() {
	r := s.responseWriter
	r.WriteHeader(http.StatusOK)
	r.Flush()
}

// RejectSession rejects an incoming WebTransport session, returning the
// supplied HTTP status code to the client, and then closes the session.
func (s *Session) RejectSession(errorCode int) {
	r := s.responseWriter
	r.WriteHeader(errorCode)
	r.Flush()
	s.CloseSession()
}

// AcceptBiStream accepts an incoming (that is, client-initiated)
// bidirectional stream, blocking until one is available or ctx is done.
func (s *Session) AcceptBiStream(ctx context.Context) (io.ReadWriteCloser, error) {
	stream, err := s.Session.AcceptStream(ctx)
	if err != nil {
		return nil, newError(KindSession, err)
	}

	streamFrame := h3.Frame{}
	if err := streamFrame.Read(stream); err != nil {
		return nil, newError(KindSession, err)
	}

	return stream, nil
}

// AcceptUniStream accepts an incoming (that is, client-initiated)
// unidirectional stream, blocking until one is available or ctx is done.
func (s *Session) AcceptUniStream(ctx context.Context) (io.Reader, error) {
	stream, err := s.Session.AcceptUniStream(ctx)
	if err != nil {
		return nil, newError(KindSession, err)
	}
	return &ReceiveStream{
		ReceiveStream:        stream,
		readHeaderBeforeData: true,
		headerRead:           false,
	}, nil
}

// OpenBiStream creates an outgoing (that is, server-initiated) bidirectional
// stream. It returns immediately.
func (s *Session) OpenBiStream() (io.ReadWriteCloser, error) {
	stream, err := s.openStream(nil, false)
	if err != nil {
		return nil, newError(KindSession, err)
	}
	return stream, nil
}

// OpenBiStreamSync creates an outgoing (that is, server-initiated)
// bidirectional stream. It generally returns immediately, but if the
// session's maximum number of streams has been exceeded, it will block
// until a slot is available or ctx is done.
func (s *Session) OpenBiStreamSync(ctx context.Context) (io.ReadWriteCloser, error) {
	stream, err := s.openStream(&ctx, true)
	if err != nil {
		return nil, newError(KindSession, err)
	}
	return stream, nil
}

// OpenUniStream creates an outgoing (that is, server-initiated)
// unidirectional stream. It returns immediately.
func (s *Session) OpenUniStream() (io.WriteCloser, error) {
	stream, err := s.openUniStream(nil, false)
	if err != nil {
		return nil, newError(KindSession, err)
	}
	return stream, nil
}

// OpenUniStreamSync creates an outgoing (that is, server-initiated)
// unidirectional stream. It generally returns immediately, but if the
// session's maximum number of streams has been exceeded, it will block
// until a slot is available or ctx is done.
func (s *Session) OpenUniStreamSync(ctx context.Context) (io.WriteCloser, error) {
	stream, err := s.openUniStream(&ctx, true)
	if err != nil {
		return nil, newError(KindSession, err)
	}
	return stream, nil
}

// CloseSession cleanly closes a WebTransport session: it cancels the
// session's Context() and closes the request stream. Other streams opened on
// the connection are not closed by it.
func (s *Session) CloseSession() {
	s.cancel()
	s.Close()
}

// CloseWithError closes a WebTransport session with a supplied error code and
// string.
func (s *Session) CloseWithError(code quic.ApplicationErrorCode, str string) {
	s.Session.CloseWithError(code, str)
}

// openStream creates an outgoing (that is, server-initiated) bidirectional
// stream. It returns immediately unless sync is set, in which case it may
// block until a stream slot is available or *ctx is done.
//
// It writes frame header to the stream, which is:
//   - the frame type h3.FRAME_WEBTRANSPORT_STREAM as a varint (two bytes)
//   - requestSessionID, which is the ID of the stream, as it is sent in the
//     WebTransport stream header.
func (s *Session) openStream(ctx *context.Context, sync bool) (quic.Stream, error) {
	var stream quic.Stream
	var err error

	if sync {
		stream, err = s.Session.OpenStreamSync(*ctx)
	} else {
		stream, err = s.Session.OpenStream()
	}

	if err == nil {
		// Write frame header
		buf := &bytes.Buffer{}
		buf.Write(quicvarint.Append(nil, h3.FRAME_WEBTRANSPORT_STREAM))
		buf.Write(quicvarint.Append(nil, uint64(s.StreamID())))
		if _, werr := stream.Write(buf.Bytes()); werr != nil {
			stream.Close()
			return nil, werr
		}
	}

	return stream, err
}

// openUniStream creates an outgoing (that is, server-initiated) unidirectional
// stream. It returns immediately unless sync is set, in which case it may
// block until a stream slot is available or *ctx is done.
func (s *Session) openUniStream(ctx *context.Context, sync bool) (*SendStream, error) {
	var stream quic.SendStream
	var err error

	if sync {
		stream, err = s.Session.OpenUniStreamSync(*ctx)
	} else {
		stream, err = s.Session.OpenUniStream()
	}
	if err != nil {
		return nil, err
	}
	return &SendStream{
		SendStream:            stream,
		writeHeaderBeforeData: true,
		headerWritten:         false,
		requestSessionID:      uint64(s.StreamID()),
	}, nil
}
