package protocol

import (
	"bytes"
	"encoding/binary"
	"sync"
)

// Writer builds frame bodies. All multi-byte values are network byte
// order; strings are fixed-width, truncated and zero-padded.
type Writer struct {
	buf *bytes.Buffer
}

var writerPool = sync.Pool{
	New: func() any {
		return &Writer{
			buf: bytes.NewBuffer(make([]byte, 0, 512)),
		}
	},
}

// GetWriter returns a Writer from the pool, already reset.
func GetWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// Put returns the Writer to the pool. Do not use it afterwards.
func (w *Writer) Put() {
	writerPool.Put(w)
}

// NewWriter creates an unpooled writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: bytes.NewBuffer(make([]byte, 0, capacity))}
}

func (w *Writer) Reset() {
	w.buf.Reset()
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) error {
	return w.buf.WriteByte(b)
}

// Write appends p verbatim.
func (w *Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// WriteUint16 writes an unsigned 16-bit value.
func (w *Writer) WriteUint16(v uint16) {
	w.buf.WriteByte(byte(v >> 8))
	w.buf.WriteByte(byte(v))
}

// WriteUint32 writes an unsigned 32-bit value.
func (w *Writer) WriteUint32(v uint32) {
	w.buf.WriteByte(byte(v >> 24))
	w.buf.WriteByte(byte(v >> 16))
	w.buf.WriteByte(byte(v >> 8))
	w.buf.WriteByte(byte(v))
}

// WriteInt32 writes a signed 32-bit value.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteString writes s truncated to width bytes and zero-padded to width.
func (w *Writer) WriteString(s string, width int) {
	b := []byte(s)
	if len(b) > width {
		b = b[:width]
	}
	w.buf.Write(b)
	w.WriteZeros(width - len(b))
}

// WriteZeros writes n zero bytes.
func (w *Writer) WriteZeros(n int) {
	for i := 0; i < n; i++ {
		w.buf.WriteByte(0)
	}
}

// Bytes returns the accumulated body. Valid until the next Reset or Put.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len reports the accumulated body size.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// StripZeros decodes a fixed-width zero-padded string field: the bytes up
// to the first NUL.
func StripZeros(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// PutUint16 encodes v into b in network byte order.
func PutUint16(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

// PutUint32 encodes v into b in network byte order.
func PutUint32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

// Uint16 decodes a network-byte-order 16-bit value.
func Uint16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// Uint32 decodes a network-byte-order 32-bit value.
func Uint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// Int32 decodes a network-byte-order signed 32-bit value.
func Int32(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b))
}
