// Package native is the pure-Go decoding engine. It drives the
// pkg/compress/jpeg2k codec through the engine.Engine handle protocol, so
// it only reads single-tile reversible streams written by that codec, raw
// or wrapped in a JP2 file.
package native

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jpfielding/jpeg2000.go/pkg/compress/jpeg2k"
	"github.com/jpfielding/jpeg2000.go/pkg/engine"
)

// Errors returned by the engine
var (
	ErrUnsupportedKind = errors.New("codec kind not supported by the native engine")
	ErrBadHandle       = errors.New("handle does not belong to the native engine")
	ErrSequence        = errors.New("engine call out of sequence")
)

// Engine decodes with pkg/compress/jpeg2k. The zero value is ready to use and
// holds no state; every handle carries its own.
type Engine struct{}

// New returns the native engine
func New() *Engine { return &Engine{} }

type codec struct {
	kind     engine.CodecKind
	handlers engine.Handlers
	params   engine.Parameters

	stream *stream
	dec    *jpeg2k.Decoder
	hdr    *jpeg2k.Header
}

func (c *codec) info(format string, args ...any) {
	if c.handlers.Info != nil {
		c.handlers.Info(fmt.Sprintf(format, args...))
	}
}

func (c *codec) warn(format string, args ...any) {
	if c.handlers.Warning != nil {
		c.handlers.Warning(fmt.Sprintf(format, args...))
	}
}

// fail reports err through the error handler and returns it
func (c *codec) fail(err error) error {
	if c.handlers.Error != nil {
		c.handlers.Error(err.Error())
	}
	return err
}

type stream struct {
	funcs  engine.StreamFuncs
	length uint64
	file   *os.File
}

// Read adapts the stream callbacks to io.Reader; a zero count is end of input
func (s *stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := s.funcs.Read(p)
	if n <= 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (e *Engine) CreateDecoder(kind engine.CodecKind) (engine.Codec, error) {
	switch kind {
	case engine.J2K, engine.JP2, engine.JPX:
		return &codec{kind: kind, params: engine.DefaultParameters()}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

func (e *Engine) SetHandlers(c engine.Codec, h engine.Handlers) {
	if cc, ok := c.(*codec); ok {
		cc.handlers = h
	}
}

func (e *Engine) SetupDecoder(c engine.Codec, p *engine.Parameters) error {
	cc, ok := c.(*codec)
	if !ok || p == nil {
		return ErrBadHandle
	}
	if cc.dec != nil {
		return cc.fail(fmt.Errorf("%w: setup after header read", ErrSequence))
	}
	cc.params = *p
	if p.Layer != 0 {
		cc.warn("layer limit %d ignored: streams carry a single quality layer", p.Layer)
	}
	return nil
}

func (e *Engine) ReadHeader(s engine.Stream, c engine.Codec) (*engine.Image, error) {
	cc, ok := c.(*codec)
	st, sok := s.(*stream)
	if !ok || !sok {
		return nil, ErrBadHandle
	}
	if cc.dec != nil {
		return nil, cc.fail(fmt.Errorf("%w: header already read", ErrSequence))
	}
	if st.funcs.Read == nil {
		return nil, cc.fail(fmt.Errorf("%w: stream has no read callback", ErrBadHandle))
	}

	format := jpeg2k.FormatJ2K
	if cc.kind != engine.J2K {
		format = jpeg2k.FormatJP2
	}
	dec := jpeg2k.NewDecoder(st)
	hdr, err := dec.ReadHeader(format)
	if err != nil {
		return nil, cc.fail(fmt.Errorf("reading %s header: %w", cc.kind, err))
	}
	levels := uint32(hdr.COD.DecompLevels)
	if cc.params.Reduce > levels {
		return nil, cc.fail(fmt.Errorf("%w: reduce %d, %d resolution levels", jpeg2k.ErrReduceTooLarge, cc.params.Reduce, levels+1))
	}
	if n := hdr.SIZ.NumTiles(); cc.params.TileIndex >= int32(n) {
		return nil, cc.fail(fmt.Errorf("tile %d of %d requested", cc.params.TileIndex, n))
	}
	cc.stream, cc.dec, cc.hdr = st, dec, hdr
	cc.info("main header read: %dx%d, %d components, %d decomposition levels",
		hdr.SIZ.Width(), hdr.SIZ.Height(), len(hdr.SIZ.Components), levels)
	return imageFromHeader(hdr), nil
}

// imageFromHeader describes the full resolution image; sizes are reduced
// by Decode
func imageFromHeader(h *jpeg2k.Header) *engine.Image {
	siz := &h.SIZ
	img := &engine.Image{
		X0:         siz.XOsiz,
		Y0:         siz.YOsiz,
		X1:         siz.XSiz,
		Y1:         siz.YSiz,
		ColorSpace: colorSpace(h.JP2),
		// the codec reconstructs planes first row first
		BottomUp: false,
	}
	if h.JP2 != nil {
		img.ICCProfileLen = uint32(len(h.JP2.ICCProfile))
	}
	for i, ci := range siz.Components {
		w, hh := siz.ComponentSize(i)
		dx, dy := uint32(ci.XRsiz), uint32(ci.YRsiz)
		img.Comps = append(img.Comps, engine.Component{
			DX:     dx,
			DY:     dy,
			W:      uint32(w),
			H:      uint32(hh),
			X0:     (siz.XOsiz + dx - 1) / dx,
			Y0:     (siz.YOsiz + dy - 1) / dy,
			Prec:   uint32(ci.Precision),
			Signed: ci.Signed,
		})
	}
	return img
}

// colorSpace maps the JP2 colr box to a color space code. Raw codestreams
// say nothing, and ICC profiles or unlisted enumerations are unknown.
func colorSpace(jp2 *jpeg2k.JP2Header) engine.ColorSpaceCode {
	if jp2 == nil {
		return engine.ColorSpaceUnspecified
	}
	if jp2.ColorMethod != jpeg2k.ColorMethodEnumerated {
		return engine.ColorSpaceUnknown
	}
	switch jp2.EnumCS {
	case jpeg2k.EnumCSSRGB:
		return engine.ColorSpaceSRGB
	case jpeg2k.EnumCSGray:
		return engine.ColorSpaceGray
	case jpeg2k.EnumCSSYCC:
		return engine.ColorSpaceSYCC
	case jpeg2k.EnumCSEYCC:
		return engine.ColorSpaceEYCC
	case jpeg2k.EnumCSCMYK:
		return engine.ColorSpaceCMYK
	default:
		return engine.ColorSpaceUnknown
	}
}

func (e *Engine) Decode(c engine.Codec, s engine.Stream, img *engine.Image) error {
	cc, ok := c.(*codec)
	st, sok := s.(*stream)
	if !ok || !sok || img == nil {
		return ErrBadHandle
	}
	if cc.dec == nil || cc.stream != st {
		return cc.fail(fmt.Errorf("%w: decode without a header read on this stream", ErrSequence))
	}
	reduce := cc.params.Reduce
	planes, err := cc.dec.DecodeComponents(int(reduce))
	if err != nil {
		return cc.fail(err)
	}
	if len(planes) != len(img.Comps) {
		return cc.fail(fmt.Errorf("decoded %d components, header declared %d", len(planes), len(img.Comps)))
	}
	for i, p := range planes {
		comp := &img.Comps[i]
		comp.W, comp.H = uint32(p.Width), uint32(p.Height)
		comp.Factor = reduce
		comp.Data = toSamples(p.Data, comp.Prec, comp.Signed)
	}
	cc.info("tile 1/1 decoded at reduce %d: %dx%d", reduce, planes[0].Width, planes[0].Height)
	return nil
}

// toSamples clamps reconstructed values into the component's sample range
func toSamples(data []int, prec uint32, signed bool) []int32 {
	prec = min(max(prec, 1), 31)
	lo, hi := 0, 1<<prec-1
	if signed {
		lo, hi = -(1 << (prec - 1)), 1<<(prec-1)-1
	}
	out := make([]int32, len(data))
	for i, v := range data {
		out[i] = int32(min(max(v, lo), hi))
	}
	return out
}

func (e *Engine) CreateStream(funcs engine.StreamFuncs, length uint64) (engine.Stream, error) {
	if funcs.Read == nil {
		return nil, fmt.Errorf("%w: input stream without read callback", ErrBadHandle)
	}
	return &stream{funcs: funcs, length: length}, nil
}

func (e *Engine) CreateFileStream(path string) (engine.Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &stream{funcs: fileFuncs(f, fi.Size()), length: uint64(fi.Size()), file: f}, nil
}

// fileFuncs gives a file the same callback semantics as a memory stream
func fileFuncs(f *os.File, size int64) engine.StreamFuncs {
	return engine.StreamFuncs{
		Read: func(p []byte) int {
			n, _ := f.Read(p)
			return n
		},
		Skip: func(n int64) int64 {
			cur, err := f.Seek(0, io.SeekCurrent)
			if err != nil {
				return 0
			}
			if n < 0 {
				return cur
			}
			to := min(cur+n, size)
			if _, err := f.Seek(to, io.SeekStart); err != nil {
				return cur
			}
			return to
		},
		Seek: func(off int64) bool {
			if off < 0 || off > size {
				return false
			}
			_, err := f.Seek(off, io.SeekStart)
			return err == nil
		},
	}
}

func (e *Engine) DestroyStream(s engine.Stream) {
	if st, ok := s.(*stream); ok && st.file != nil {
		st.file.Close()
		st.file = nil
	}
}

func (e *Engine) DestroyCodec(c engine.Codec) {
	if cc, ok := c.(*codec); ok {
		cc.dec, cc.hdr, cc.stream = nil, nil, nil
	}
}

func (e *Engine) DestroyImage(img *engine.Image) {
	if img != nil {
		for i := range img.Comps {
			img.Comps[i].Data = nil
		}
	}
}

var _ engine.Engine = (*Engine)(nil)
