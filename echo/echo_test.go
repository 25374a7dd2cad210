package echo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// readerOnly hides any extra methods a concrete reader might have, standing
// in for what AcceptUniStream actually promises: just an io.Reader.
type readerOnly struct{ io.Reader }

// fakeBiStream is an io.ReadWriteCloser backed by separate read and write
// buffers, standing in for a real bidirectional QUIC stream in tests.
type fakeBiStream struct {
	r      io.Reader
	w      *bytes.Buffer
	closed bool
	mu     sync.Mutex
}

func (f *fakeBiStream) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *fakeBiStream) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Write(p)
}
func (f *fakeBiStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeHandle is an in-memory Handle used to exercise Loop without a real
// QUIC transport.
type fakeHandle struct {
	mu sync.Mutex

	datagramsIn  [][]byte
	datagramsOut [][]byte

	uniStreamsIn  []io.Reader
	uniStreamsOut []*bytes.Buffer

	biStreamsIn  []*fakeBiStream
	biStreamsOut []*fakeBiStream
}

func (f *fakeHandle) SessionID() uint64 { return 1 }

func (f *fakeHandle) AcceptDatagram(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	if len(f.datagramsIn) > 0 {
		msg := f.datagramsIn[0]
		f.datagramsIn = f.datagramsIn[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeHandle) SendDatagram(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datagramsOut = append(f.datagramsOut, msg)
	return nil
}

func (f *fakeHandle) AcceptUniStream(ctx context.Context) (io.Reader, error) {
	f.mu.Lock()
	if len(f.uniStreamsIn) > 0 {
		s := f.uniStreamsIn[0]
		f.uniStreamsIn = f.uniStreamsIn[1:]
		f.mu.Unlock()
		return s, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeHandle) AcceptBiStream(ctx context.Context) (io.ReadWriteCloser, error) {
	f.mu.Lock()
	if len(f.biStreamsIn) > 0 {
		s := f.biStreamsIn[0]
		f.biStreamsIn = f.biStreamsIn[1:]
		f.mu.Unlock()
		return s, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeHandle) OpenUniStream() (io.WriteCloser, error) {
	buf := &bytes.Buffer{}
	f.mu.Lock()
	f.uniStreamsOut = append(f.uniStreamsOut, buf)
	f.mu.Unlock()
	return nopWriteCloser{buf}, nil
}

func (f *fakeHandle) OpenBiStream() (io.ReadWriteCloser, error) {
	s := &fakeBiStream{r: strings.NewReader(""), w: &bytes.Buffer{}}
	f.mu.Lock()
	f.biStreamsOut = append(f.biStreamsOut, s)
	f.mu.Unlock()
	return s, nil
}

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestLoopEchoesDatagram(t *testing.T) {
	h := &fakeHandle{datagramsIn: [][]byte{[]byte("hello")}}
	ctx, cancel := context.WithCancel(context.Background())

	go Loop(ctx, h, nil, nil)

	waitFor(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.datagramsOut) == 1
	})
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	if string(h.datagramsOut[0]) != "hello" {
		t.Fatalf("echoed datagram = %q, want %q", h.datagramsOut[0], "hello")
	}
}

func TestLoopEchoesUniStreamOnNewStream(t *testing.T) {
	h := &fakeHandle{uniStreamsIn: []io.Reader{readerOnly{strings.NewReader("uni-payload")}}}
	ctx, cancel := context.WithCancel(context.Background())

	go Loop(ctx, h, nil, nil)

	waitFor(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.uniStreamsOut) == 1
	})
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	if got := h.uniStreamsOut[0].String(); got != "uni-payload" {
		t.Fatalf("echoed uni stream = %q, want %q", got, "uni-payload")
	}
}

func TestLoopEchoesOnlyFirstBiStreamChunk(t *testing.T) {
	in := &fakeBiStream{r: io.MultiReader(strings.NewReader("first-chunk"), strings.NewReader("second-chunk")), w: &bytes.Buffer{}}
	h := &fakeHandle{biStreamsIn: []*fakeBiStream{in}}
	ctx, cancel := context.WithCancel(context.Background())

	go Loop(ctx, h, nil, nil)

	waitFor(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.biStreamsOut) == 1
	})
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	if got := h.biStreamsOut[0].w.String(); got != "first-chunk" {
		t.Fatalf("echoed bi stream = %q, want %q", got, "first-chunk")
	}
	if !in.closed {
		t.Fatal("incoming bidirectional stream was not closed")
	}
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	h := &fakeHandle{}
	ctx, cancel := context.WithCancel(context.Background())

	loopDone := make(chan struct{})
	go func() {
		Loop(ctx, h, nil, nil)
		close(loopDone)
	}()

	cancel()

	select {
	case <-loopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not return after context cancellation")
	}
}

type countingObserver struct {
	mu                                       sync.Mutex
	datagrams, uniStreams, biStreams, errors int
}

func (o *countingObserver) DatagramEchoed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.datagrams++
}
func (o *countingObserver) UniStreamEchoed(int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uniStreams++
}
func (o *countingObserver) BiStreamEchoed(int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.biStreams++
}
func (o *countingObserver) StreamError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors++
}

func TestLoopReportsToObserver(t *testing.T) {
	h := &fakeHandle{datagramsIn: [][]byte{[]byte("ping")}}
	obs := &countingObserver{}
	ctx, cancel := context.WithCancel(context.Background())

	go Loop(ctx, h, nil, obs)

	waitFor(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return obs.datagrams == 1
	})
	cancel()
}

func TestLoopTerminatesOnAcceptError(t *testing.T) {
	// A Handle whose AcceptBiStream always errors (for a reason other than
	// ctx being done) is terminal for the whole session per spec §4.4:
	// Loop must return on its own, without waiting for the caller to
	// cancel ctx.
	h := &erroringBiHandle{fakeHandle: fakeHandle{}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		Loop(ctx, h, nil, nil)
		close(loopDone)
	}()

	select {
	case <-loopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not terminate on its own after a persistent accept error")
	}
}

type erroringBiHandle struct {
	fakeHandle
}

func (h *erroringBiHandle) AcceptBiStream(ctx context.Context) (io.ReadWriteCloser, error) {
	return nil, errors.New("accept failed")
}

func TestLoopTerminatesOnDatagramSendError(t *testing.T) {
	// A failed datagram echo is terminal for the whole session per spec
	// §4.4: "If send fails, the loop terminates."
	h := &failingSendHandle{fakeHandle: fakeHandle{datagramsIn: [][]byte{[]byte("hi")}}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := &countingObserver{}
	loopDone := make(chan struct{})
	go func() {
		Loop(ctx, h, nil, obs)
		close(loopDone)
	}()

	select {
	case <-loopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not terminate on its own after a datagram send failure")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.errors != 1 {
		t.Fatalf("observer saw %d stream errors, want 1", obs.errors)
	}
}

type failingSendHandle struct {
	fakeHandle
}

func (h *failingSendHandle) SendDatagram(msg []byte) error {
	return errors.New("send failed")
}
