// Package stream adapts an in-memory buffer into the callback driven
// stream primitive an engine.Engine consumes.
package stream

import (
	"github.com/jpfielding/jpeg2000.go/pkg/engine"
)

// Memory is the user data behind an engine stream over a byte buffer.
// An input Memory serves Fill/Skip/SeekTo, an output Memory only Append.
// The names stay clear of io.Reader and friends since the callback
// signatures differ.
// It is not safe for concurrent use.
type Memory struct {
	input       []byte
	output      []byte
	offset      int64
	inputStream bool
}

// NewInput wraps data for reading. data is not copied and must not change
// while the stream is in use.
func NewInput(data []byte) *Memory {
	return &Memory{input: data, inputStream: true}
}

// NewOutput creates a write-only accumulator
func NewOutput() *Memory {
	return &Memory{}
}

// Fill copies up to len(p) bytes from the cursor into p
func (m *Memory) Fill(p []byte) int {
	if !m.inputStream || len(m.input) == 0 || p == nil {
		return 0
	}
	left := int64(len(m.input)) - m.offset
	n := int64(len(p))
	if n > left {
		n = left
	}
	if n <= 0 {
		return 0
	}
	copy(p, m.input[m.offset:m.offset+n])
	m.offset += n
	return int(n)
}

// Skip advances the cursor by n, clamped to the end of input, and returns
// the new absolute offset
func (m *Memory) Skip(n int64) int64 {
	if !m.inputStream {
		return m.offset
	}
	left := int64(len(m.input)) - m.offset
	if n > left {
		n = left
	}
	if n > 0 {
		m.offset += n
	}
	return m.offset
}

// SeekTo moves the cursor to offset if it lies within [0, Len()]
func (m *Memory) SeekTo(offset int64) bool {
	if !m.inputStream || offset < 0 || offset > int64(len(m.input)) {
		return false
	}
	m.offset = offset
	return true
}

// Append adds p to the output accumulator. Input streams refuse writes.
func (m *Memory) Append(p []byte) int {
	if m.inputStream {
		return 0
	}
	m.output = append(m.output, p...)
	return len(p)
}

// Offset is the current cursor position
func (m *Memory) Offset() int64 { return m.offset }

// Len is the declared input length
func (m *Memory) Len() uint64 { return uint64(len(m.input)) }

// Bytes returns what has been written to an output stream
func (m *Memory) Bytes() []byte { return m.output }

// Funcs binds the callbacks for engine.Engine.CreateStream
func (m *Memory) Funcs() engine.StreamFuncs {
	return engine.StreamFuncs{
		Read:  m.Fill,
		Write: m.Append,
		Skip:  m.Skip,
		Seek:  m.SeekTo,
	}
}
