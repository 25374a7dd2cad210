package h3

import (
	"bytes"
	"testing"
)

func TestStreamHeaderOneByteRoundTrip(t *testing.T) {
	for _, typ := range []uint64{STREAM_CONTROL, STREAM_QPACK_ENCODER, STREAM_QPACK_DECODER} {
		h := StreamHeader{Type: typ}

		var buf bytes.Buffer
		if _, err := h.Write(&buf); err != nil {
			t.Fatalf("Write(%#x): %v", typ, err)
		}

		var got StreamHeader
		if err := got.Read(&buf); err != nil {
			t.Fatalf("Read(%#x): %v", typ, err)
		}
		if got.Type != typ {
			t.Fatalf("Type = %#x, want %#x", got.Type, typ)
		}
	}
}

func TestStreamHeaderWithIDRoundTrip(t *testing.T) {
	h := StreamHeader{Type: STREAM_WEBTRANSPORT_UNI_STREAM, ID: 7}

	var buf bytes.Buffer
	if _, err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got StreamHeader
	if err := got.Read(&buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Type != STREAM_WEBTRANSPORT_UNI_STREAM || got.ID != 7 {
		t.Fatalf("got %+v, want Type=%#x ID=7", got, STREAM_WEBTRANSPORT_UNI_STREAM)
	}
}

func TestStreamHeaderUnknownType(t *testing.T) {
	h := StreamHeader{Type: 0xff}
	var buf bytes.Buffer
	if _, err := h.Write(&buf); err == nil {
		t.Fatal("expected an error writing an unknown stream type")
	}
}
