// Package jp2k decodes JPEG 2000 codestreams into RGBA bitmaps through an
// engine.Engine. It adapts the input source into an engine stream, drives the
// decoder lifecycle, resolves the color space and interleaves the decoded
// component planes.
package jp2k

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jpfielding/jpeg2000.go/pkg/engine"
	"github.com/jpfielding/jpeg2000.go/pkg/stream"
)

// Source is where the codestream comes from: MemorySource or FileSource
type Source interface {
	open(eng engine.Engine) (engine.Stream, error)
	String() string
}

type memorySource struct{ data []byte }

// MemorySource decodes from an in-memory buffer. The buffer is not copied.
func MemorySource(data []byte) Source { return memorySource{data: data} }

func (m memorySource) open(eng engine.Engine) (engine.Stream, error) {
	in := stream.NewInput(m.data)
	s, err := eng.CreateStream(in.Funcs(), in.Len())
	if err != nil || s == nil {
		return nil, &EngineError{Op: "create stream", Err: err}
	}
	return s, nil
}

func (m memorySource) String() string { return fmt.Sprintf("memory(%d bytes)", len(m.data)) }

type fileSource struct{ path string }

// FileSource decodes from a file opened by the engine itself
func FileSource(path string) Source { return fileSource{path: path} }

func (f fileSource) open(eng engine.Engine) (engine.Stream, error) {
	if f.path == "" || strings.IndexByte(f.path, 0) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourcePath, f.path)
	}
	s, err := eng.CreateFileStream(f.path)
	if err != nil || s == nil {
		return nil, &EngineError{Op: "create file stream " + f.path, Err: err}
	}
	return s, nil
}

func (f fileSource) String() string { return "file(" + f.path + ")" }

// FromMemory decodes a codestream held in buf
func FromMemory(ctx context.Context, buf []byte, kind engine.CodecKind, cfg DecodeConfig, opts ...Option) (*Bitmap, error) {
	return Decode(ctx, MemorySource(buf), kind, cfg, opts...)
}

// FromFile decodes the codestream stored at path
func FromFile(ctx context.Context, path string, kind engine.CodecKind, cfg DecodeConfig, opts ...Option) (*Bitmap, error) {
	return Decode(ctx, FileSource(path), kind, cfg, opts...)
}

// Decode runs one full decode of src. Every engine handle acquired along the
// way is released before it returns, whether it succeeds or not.
func Decode(ctx context.Context, src Source, kind engine.CodecKind, cfg DecodeConfig, opts ...Option) (*Bitmap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	s, err := openSession(ctx, src, kind, cfg.DiscardLevel, o)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.ReadHeader(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.DecodeImage(); err != nil {
		return nil, err
	}
	img := s.Image()

	raw := ColorSpaceValueFromCode(img.ColorSpace)
	cs, err := ResolveColorSpace(raw, cfg.DefaultColorSpace)
	if err != nil {
		return nil, err
	}
	s.log.Info("decoded image",
		slog.String("color_space", cs.String()),
		slog.String("reported_color_space", raw.String()),
		slog.Int("icc_profile_len", int(img.ICCProfileLen)),
		slog.Int("width", int(img.Width())),
		slog.Int("height", int(img.Height())),
		slog.Int("components", len(img.Comps)))
	if len(img.Comps) > 0 && img.Comps[0].Factor != cfg.DiscardLevel {
		s.log.Warn("engine applied a different discard level",
			slog.Int("requested", int(cfg.DiscardLevel)),
			slog.Int("applied", int(img.Comps[0].Factor)))
	}
	return Assemble(img, cs)
}

// Info is the header-level description of a codestream
type Info struct {
	Width, Height uint32
	OriginX       uint32
	OriginY       uint32
	ColorSpace    ColorSpaceValue
	ICCProfileLen uint32
	Components    []ComponentInfo
	ReducedWidth  uint32 // output width at the configured discard level
	ReducedHeight uint32
	DiscardLevel  uint32
	CodecKind     engine.CodecKind
	Source        string
}

// ComponentInfo describes one component plane
type ComponentInfo struct {
	DX, DY    uint32
	Precision uint32
	Signed    bool
}

// ReadInfo reads only the main header of src
func ReadInfo(ctx context.Context, src Source, kind engine.CodecKind, cfg DecodeConfig, opts ...Option) (*Info, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	s, err := openSession(ctx, src, kind, cfg.DiscardLevel, o)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.ReadHeader(); err != nil {
		return nil, err
	}
	img := s.Image()
	info := &Info{
		Width:         img.Width(),
		Height:        img.Height(),
		OriginX:       img.X0,
		OriginY:       img.Y0,
		ColorSpace:    ColorSpaceValueFromCode(img.ColorSpace),
		ICCProfileLen: img.ICCProfileLen,
		ReducedWidth:  ceilDivPow2(img.Width(), cfg.DiscardLevel),
		ReducedHeight: ceilDivPow2(img.Height(), cfg.DiscardLevel),
		DiscardLevel:  cfg.DiscardLevel,
		CodecKind:     kind,
		Source:        src.String(),
	}
	for _, c := range img.Comps {
		info.Components = append(info.Components, ComponentInfo{
			DX: c.DX, DY: c.DY, Precision: c.Prec, Signed: c.Signed,
		})
	}
	return info, nil
}

// openSession acquires the stream and takes a session through Open and
// Configure. On error nothing is left acquired.
func openSession(ctx context.Context, src Source, kind engine.CodecKind, discard uint32, o *options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	strm, err := src.open(o.engine)
	if err != nil {
		return nil, err
	}
	s := NewSession(o.engine, strm, o.logger.With(slog.String("src", src.String())))
	if err := s.Open(kind); err != nil {
		return nil, err
	}
	if err := s.Configure(discard); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
