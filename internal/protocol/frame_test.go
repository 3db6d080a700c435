package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrame_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		count  uint32
		body   []byte
	}{
		{"empty body", 0x2002, 1, nil},
		{"four zeros", 0x3004, 2, []byte{0, 0, 0, 0}},
		{"auth payload", 0x3003, 1, bytes.Repeat([]byte{0xab}, 116)},
		{"odd length", 0x4400, 77, []byte{1, 2, 3, 4, 5}},
		{"large body", 0x2003, 9, bytes.Repeat([]byte{0x5a}, 4096)},
	}

	buf := make([]byte, MaxFrameSize)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wire bytes.Buffer
			f := New(tt.opcode, tt.count, tt.body)
			if err := WriteFrame(&wire, f, buf); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}
			if wire.Len() != FrameOverhead+len(tt.body) {
				t.Fatalf("wire size: got %d, want %d", wire.Len(), FrameOverhead+len(tt.body))
			}

			got, err := ReadFrame(&wire, buf)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if got.Header.Opcode != tt.opcode {
				t.Errorf("opcode: got 0x%04X, want 0x%04X", got.Header.Opcode, tt.opcode)
			}
			if got.Header.Count != tt.count {
				t.Errorf("count: got %d, want %d", got.Header.Count, tt.count)
			}
			if int(got.Header.Length) != len(tt.body) {
				t.Errorf("length: got %d, want %d", got.Header.Length, len(tt.body))
			}
			if !bytes.Equal(got.Body, tt.body) {
				t.Errorf("body: got %x, want %x", got.Body, tt.body)
			}
		})
	}
}

func TestReadFrame_BadDigest(t *testing.T) {
	buf := make([]byte, MaxFrameSize)
	var wire bytes.Buffer
	f := New(0x4310, 3, []byte("ROOM1"))
	if err := WriteFrame(&wire, f, buf); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	raw := wire.Bytes()
	raw[len(raw)-1] ^= 0xff

	_, err := ReadFrame(bytes.NewReader(raw), buf)
	if !errors.Is(err, ErrBadDigest) {
		t.Fatalf("corrupted body: got %v, want ErrBadDigest", err)
	}
}

func TestReadFrame_TruncatedBody(t *testing.T) {
	buf := make([]byte, MaxFrameSize)
	var wire bytes.Buffer
	f := New(0x2008, 1, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err := WriteFrame(&wire, f, buf); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	raw := wire.Bytes()[:wire.Len()-3]

	_, err := ReadFrame(bytes.NewReader(raw), buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("truncated frame: got %v, want ErrUnexpectedEOF", err)
	}
}

func TestReadFrame_EOFBetweenFrames(t *testing.T) {
	buf := make([]byte, MaxFrameSize)
	_, err := ReadFrame(bytes.NewReader(nil), buf)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("empty stream: got %v, want EOF", err)
	}
}

func TestParse_MatchesAppend(t *testing.T) {
	f := New(0x6020, 42, []byte{0xde, 0xad})
	wire := f.Append(nil)

	got, err := Parse(wire)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Header != f.Header {
		t.Errorf("header: got %+v, want %+v", got.Header, f.Header)
	}
	if !bytes.Equal(got.Body, f.Body) {
		t.Errorf("body: got %x, want %x", got.Body, f.Body)
	}
}

func TestParse_TooShort(t *testing.T) {
	if _, err := Parse(make([]byte, FrameOverhead-1)); err == nil {
		t.Fatal("short buffer must not parse")
	}
}

func TestFrame_DigestCoversHeader(t *testing.T) {
	body := []byte{9, 9, 9}
	a := New(0x4310, 1, body)
	b := New(0x4310, 2, body)

	if a.Digest() == b.Digest() {
		t.Fatal("digest must change with the header counter")
	}
}
