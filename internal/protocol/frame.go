package protocol

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the wire size of a frame header.
	HeaderSize = 8
	// DigestSize is the wire size of the MD5 checksum between header and body.
	DigestSize = 16
	// FrameOverhead is the fixed per-frame cost: header plus digest.
	FrameOverhead = HeaderSize + DigestSize
	// MaxBodySize is the largest body a frame can carry (length field is uint16).
	MaxBodySize = 0xffff
	// MaxFrameSize bounds a complete frame on the wire.
	MaxFrameSize = FrameOverhead + MaxBodySize
)

// ErrBadDigest reports a frame whose MD5 checksum does not match its
// header and body. Connections carrying such frames are closed.
var ErrBadDigest = errors.New("frame digest mismatch")

// Header is the 8-byte frame prefix: opcode, body length and the
// per-connection send counter. All fields are network byte order.
type Header struct {
	Opcode uint16
	Length uint16
	Count  uint32
}

// ParseHeader decodes a deobfuscated 8-byte header.
func ParseHeader(b []byte) Header {
	return Header{
		Opcode: binary.BigEndian.Uint16(b[0:2]),
		Length: binary.BigEndian.Uint16(b[2:4]),
		Count:  binary.BigEndian.Uint32(b[4:8]),
	}
}

func (h Header) put(b []byte) {
	binary.BigEndian.PutUint16(b[0:2], h.Opcode)
	binary.BigEndian.PutUint16(b[2:4], h.Length)
	binary.BigEndian.PutUint32(b[4:8], h.Count)
}

// Frame is one protocol unit: header, MD5 digest, body.
type Frame struct {
	Header Header
	Body   []byte
}

// New builds a frame over body. The header length is derived from the body.
func New(opcode uint16, count uint32, body []byte) Frame {
	return Frame{
		Header: Header{Opcode: opcode, Length: uint16(len(body)), Count: count},
		Body:   body,
	}
}

// Digest computes the MD5 checksum over the serialized header and body.
func (f Frame) Digest() [DigestSize]byte {
	var hdr [HeaderSize]byte
	f.Header.put(hdr[:])
	d := md5.New()
	d.Write(hdr[:])
	d.Write(f.Body)
	var sum [DigestSize]byte
	d.Sum(sum[:0])
	return sum
}

// Append serializes the frame without obfuscation: header, digest, body.
func (f Frame) Append(dst []byte) []byte {
	var hdr [HeaderSize]byte
	f.Header.put(hdr[:])
	sum := f.Digest()
	dst = append(dst, hdr[:]...)
	dst = append(dst, sum[:]...)
	dst = append(dst, f.Body...)
	return dst
}

// Parse decodes one deobfuscated frame and verifies its digest.
// The returned body aliases buf.
func Parse(buf []byte) (Frame, error) {
	if len(buf) < FrameOverhead {
		return Frame{}, fmt.Errorf("frame too short: %d bytes", len(buf))
	}
	h := ParseHeader(buf[:HeaderSize])
	total := FrameOverhead + int(h.Length)
	if len(buf) < total {
		return Frame{}, fmt.Errorf("frame truncated: have %d, need %d", len(buf), total)
	}
	f := Frame{Header: h, Body: buf[FrameOverhead:total]}
	sum := f.Digest()
	if !bytes.Equal(sum[:], buf[HeaderSize:FrameOverhead]) {
		return Frame{}, ErrBadDigest
	}
	return f, nil
}

// ReadFrame reads one obfuscated frame from r into buf and decodes it.
// buf must hold at least MaxFrameSize bytes; the returned body aliases it.
func ReadFrame(r io.Reader, buf []byte) (Frame, error) {
	if _, err := io.ReadFull(r, buf[:HeaderSize]); err != nil {
		return Frame{}, fmt.Errorf("reading frame header: %w", err)
	}
	Obfuscate(buf[:HeaderSize], 0)
	h := ParseHeader(buf[:HeaderSize])

	total := FrameOverhead + int(h.Length)
	if total > len(buf) {
		return Frame{}, fmt.Errorf("frame body %d exceeds buffer size %d", h.Length, len(buf)-FrameOverhead)
	}
	if _, err := io.ReadFull(r, buf[HeaderSize:total]); err != nil {
		return Frame{}, fmt.Errorf("reading frame body: %w", err)
	}
	Obfuscate(buf[HeaderSize:total], HeaderSize)

	f := Frame{Header: h, Body: buf[FrameOverhead:total]}
	sum := f.Digest()
	if !bytes.Equal(sum[:], buf[HeaderSize:FrameOverhead]) {
		return Frame{}, ErrBadDigest
	}
	return f, nil
}

// WriteFrame obfuscates the frame into buf and writes it to w.
func WriteFrame(w io.Writer, f Frame, buf []byte) error {
	wire := f.Append(buf[:0])
	Obfuscate(wire, 0)
	if _, err := w.Write(wire); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
