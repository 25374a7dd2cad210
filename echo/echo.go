// Package echo implements the session-level echo behavior of the
// WebTransport echo server: once a transport has negotiated a session, Loop
// drives datagrams, unidirectional streams and bidirectional streams back
// to the peer that sent them, until the session ends or is cancelled.
//
// Loop depends only on the Handle interface, not on any concrete transport,
// so it can be exercised with fakes in tests.
package echo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handle is the capability set an echo session needs from its transport: a
// session identifier, unreliable datagrams, and reliable uni/bidirectional
// streams, both peer-initiated (Accept...) and locally-initiated (Open...).
//
// *webtransport.Session satisfies Handle structurally; this package never
// imports the webtransport package.
type Handle interface {
	SessionID() uint64
	AcceptDatagram(ctx context.Context) ([]byte, error)
	SendDatagram(msg []byte) error
	AcceptUniStream(ctx context.Context) (io.Reader, error)
	AcceptBiStream(ctx context.Context) (io.ReadWriteCloser, error)
	OpenUniStream() (io.WriteCloser, error)
	OpenBiStream() (io.ReadWriteCloser, error)
}

// Observer receives counters for echoed traffic. A nil Observer is valid;
// all its methods are no-ops in that case.
type Observer interface {
	DatagramEchoed()
	UniStreamEchoed(bytes int)
	BiStreamEchoed(bytes int)
	StreamError()
}

// maxEchoSize bounds how much of a single unidirectional stream, or a
// single bidirectional stream read, is buffered before being echoed back.
// Datagrams are not subject to it: they are echoed at whatever size the
// transport delivered.
const maxEchoSize = 64 * 1024 * 1024

// Loop accepts datagrams, unidirectional streams and bidirectional streams
// from h for as long as ctx is not done, echoing each one back to the peer.
// Each accepted stream is echoed concurrently by its own goroutine, but a
// datagram is sent back inline in the goroutine that accepted it, before the
// next AcceptDatagram starts: datagram echo order must follow receive order
// (spec §5), so the datagram path stays serialized rather than fanning out
// like the stream paths do. Loop itself blocks until ctx is done, at which
// point it waits for in-flight stream echoes to drain before returning. It
// also returns early, draining the same way, if a datagram echo fails to
// send or if any of the three accept calls returns an error that isn't just
// ctx being done: both are terminal for the session per spec.
//
// An atomic, monotonic cancellation flag guards the three accept
// goroutines: once it flips true it stays true, so an accept goroutine
// started after the stop returns at once without calling Accept*.
func Loop(ctx context.Context, h Handle, logger *slog.Logger, obs Observer) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", h.SessionID())

	var cancelled atomic.Bool
	var wg sync.WaitGroup

	// stopCh is closed exactly once, either by ctx.Done() or by a terminal
	// error on the datagram path or on any accept call (spec §4.4: "the
	// session loop exits when ... any accept returns an error"). cancelled
	// flips true at the same moment so a still-running accept goroutine
	// that wins its race anyway declines to restart.
	stopCh := make(chan struct{})
	var stopOnce sync.Once
	triggerStop := func() {
		stopOnce.Do(func() {
			cancelled.Store(true)
			close(stopCh)
		})
	}

	done := ctx.Done()

	startDatagramAccept := func() <-chan struct{} {
		acceptDone := make(chan struct{})
		go func() {
			defer close(acceptDone)
			if cancelled.Load() {
				return
			}
			msg, err := h.AcceptDatagram(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("failed to accept datagram", "error", err)
					triggerStop()
				}
				return
			}
			// Sent inline, not spawned: the next accept must not start
			// until this echo completes, or two sends could race and
			// reorder (spec §5).
			echoDatagram(h, msg, logger, obs, triggerStop)
		}()
		return acceptDone
	}

	startUniAccept := func() <-chan struct{} {
		acceptDone := make(chan struct{})
		go func() {
			defer close(acceptDone)
			if cancelled.Load() {
				return
			}
			stream, err := h.AcceptUniStream(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("failed to accept unidirectional stream", "error", err)
					triggerStop()
				}
				return
			}
			wg.Add(1)
			go echoUniStream(&wg, h, stream, logger, obs)
		}()
		return acceptDone
	}

	startBiAccept := func() <-chan struct{} {
		acceptDone := make(chan struct{})
		go func() {
			defer close(acceptDone)
			if cancelled.Load() {
				return
			}
			stream, err := h.AcceptBiStream(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("failed to accept bidirectional stream", "error", err)
					triggerStop()
				}
				return
			}
			wg.Add(1)
			go echoBiStream(&wg, h, stream, logger, obs)
		}()
		return acceptDone
	}

	datagramDone := startDatagramAccept()
	uniDone := startUniAccept()
	biDone := startBiAccept()

	for {
		select {
		case <-done:
			triggerStop()
			wg.Wait()
			return
		case <-stopCh:
			wg.Wait()
			return
		case <-datagramDone:
			datagramDone = startDatagramAccept()
		case <-uniDone:
			uniDone = startUniAccept()
		case <-biDone:
			biDone = startBiAccept()
		}
	}
}

// echoDatagram sends msg back on the session's datagram transport. It is
// called inline from the datagram-accept goroutine, not spawned as its own
// task, so that sends stay ordered with the receives that triggered them. A
// send failure is terminal for the whole session loop (spec §4.4: "If send
// fails, the loop terminates"), so it calls stop in addition to reporting
// the error.
func echoDatagram(h Handle, msg []byte, logger *slog.Logger, obs Observer, stop func()) {
	if err := h.SendDatagram(msg); err != nil {
		logger.Warn("failed to echo datagram", "error", err)
		observeStreamError(obs)
		stop()
		return
	}
	observeDatagramEchoed(obs)
}

// echoUniStream reads stream to completion, opens a new outgoing
// unidirectional stream, and writes everything it read to it.
//
// This mirrors the reference server: the reply travels on a freshly opened
// stream rather than back along the (one-directional, so unusable for a
// reply) stream it arrived on.
func echoUniStream(wg *sync.WaitGroup, h Handle, stream io.Reader, logger *slog.Logger, obs Observer) {
	defer wg.Done()

	data, err := io.ReadAll(io.LimitReader(stream, maxEchoSize))
	if err != nil {
		logger.Warn("failed to read unidirectional stream", "error", err)
		observeStreamError(obs)
		return
	}

	out, err := h.OpenUniStream()
	if err != nil {
		logger.Warn("failed to open unidirectional reply stream", "error", err)
		observeStreamError(obs)
		return
	}
	defer out.Close()

	if _, err := out.Write(data); err != nil {
		logger.Warn("failed to echo unidirectional stream", "error", err)
		observeStreamError(obs)
		return
	}
	observeUniStreamEchoed(obs, len(data))
}

// echoBiStream reads a single chunk from stream, opens a new outgoing
// bidirectional stream, and writes that chunk to it.
//
// Only the first chunk read is echoed: a single Read call, not a
// read-to-EOF loop. A peer that keeps the stream open and sends further
// chunks after the first will not have them echoed.
func echoBiStream(wg *sync.WaitGroup, h Handle, stream io.ReadWriteCloser, logger *slog.Logger, obs Observer) {
	defer wg.Done()
	defer stream.Close()

	buf := make([]byte, maxEchoSize)
	n, err := stream.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("failed to read bidirectional stream", "error", err)
		observeStreamError(obs)
		return
	}

	out, err := h.OpenBiStream()
	if err != nil {
		logger.Warn("failed to open bidirectional reply stream", "error", err)
		observeStreamError(obs)
		return
	}
	defer out.Close()

	if _, err := out.Write(buf[:n]); err != nil {
		logger.Warn("failed to echo bidirectional stream", "error", err)
		observeStreamError(obs)
		return
	}
	observeBiStreamEchoed(obs, n)
}

func observeDatagramEchoed(obs Observer) {
	if obs != nil {
		obs.DatagramEchoed()
	}
}

func observeUniStreamEchoed(obs Observer, n int) {
	if obs != nil {
		obs.UniStreamEchoed(n)
	}
}

func observeBiStreamEchoed(obs Observer, n int) {
	if obs != nil {
		obs.BiStreamEchoed(n)
	}
}

func observeStreamError(obs Observer) {
	if obs != nil {
		obs.StreamError()
	}
}
