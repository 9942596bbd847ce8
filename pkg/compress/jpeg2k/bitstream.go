package jpeg2k

import (
	"bufio"
	"io"
)

// ByteReader provides big-endian reads over a buffered source and counts
// the bytes it has consumed
type ByteReader struct {
	r   *bufio.Reader
	off int64
}

// NewByteReader creates a new byte reader
func NewByteReader(r io.Reader) *ByteReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &ByteReader{r: br}
}

// Offset is the number of bytes consumed so far
func (b *ByteReader) Offset() int64 { return b.off }

// ReadByte reads a single byte
func (b *ByteReader) ReadByte() (byte, error) {
	c, err := b.r.ReadByte()
	if err == nil {
		b.off++
	}
	return c, err
}

// ReadUint16 reads a big-endian uint16
func (b *ByteReader) ReadUint16() (uint16, error) {
	var buf [2]byte
	if err := b.readFull(buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

// ReadUint32 reads a big-endian uint32
func (b *ByteReader) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := b.readFull(buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

// ReadUint64 reads a big-endian uint64
func (b *ByteReader) ReadUint64() (uint64, error) {
	hi, err := b.ReadUint32()
	if err != nil {
		return 0, err
	}
	lo, err := b.ReadUint32()
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// ReadBytes reads exactly n bytes
func (b *ByteReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, io.ErrUnexpectedEOF
	}
	data := make([]byte, n)
	if err := b.readFull(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Skip discards n bytes
func (b *ByteReader) Skip(n int) error {
	if n < 0 {
		return io.ErrUnexpectedEOF
	}
	d, err := b.r.Discard(n)
	b.off += int64(d)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (b *ByteReader) readFull(p []byte) error {
	n, err := io.ReadFull(b.r, p)
	b.off += int64(n)
	return err
}

// ByteWriter provides big-endian writes over a buffered sink
type ByteWriter struct {
	w *bufio.Writer
}

// NewByteWriter creates a new byte writer
func NewByteWriter(w io.Writer) *ByteWriter {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	return &ByteWriter{w: bw}
}

// WriteByte writes a single byte
func (b *ByteWriter) WriteByte(c byte) error {
	return b.w.WriteByte(c)
}

// WriteUint16 writes a big-endian uint16
func (b *ByteWriter) WriteUint16(v uint16) error {
	_, err := b.w.Write([]byte{byte(v >> 8), byte(v)})
	return err
}

// WriteUint32 writes a big-endian uint32
func (b *ByteWriter) WriteUint32(v uint32) error {
	_, err := b.w.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	return err
}

// WriteBytes writes multiple bytes
func (b *ByteWriter) WriteBytes(data []byte) error {
	_, err := b.w.Write(data)
	return err
}

// Flush flushes the buffer
func (b *ByteWriter) Flush() error {
	return b.w.Flush()
}
