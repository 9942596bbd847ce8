// Package standard is the default decoding engine. It drives
// github.com/mrjoshuak/go-jpeg2000, a pure-Go Part-1 decoder, through the
// engine.Engine handle protocol: the stream is buffered when the header is
// read, and Decode splits the library's image back into component planes.
package standard

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/jpfielding/jpeg2000.go/pkg/engine"
	"github.com/mrjoshuak/go-jpeg2000"
)

// Errors returned by the engine
var (
	ErrUnsupportedKind = errors.New("codec kind not supported by the standard engine")
	ErrBadHandle       = errors.New("handle does not belong to the standard engine")
	ErrSequence        = errors.New("engine call out of sequence")
	ErrContainer       = errors.New("container does not match the codec kind")
	ErrReduceTooLarge  = errors.New("reduce exceeds the available resolution levels")
)

// Engine decodes with go-jpeg2000. It holds no state; every handle carries
// its own.
type Engine struct{}

// New returns the standard engine
func New() *Engine { return &Engine{} }

type codec struct {
	kind     engine.CodecKind
	handlers engine.Handlers
	params   engine.Parameters

	stream *stream
	data   []byte
	meta   *jpeg2000.Metadata
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

// Read pulls through the callbacks, or the file for file streams; a zero
// count is end of input
func (s *stream) Read(p []byte) (int, error) {
	if s.file != nil {
		return s.file.Read(p)
	}
	if len(p) == 0 {
		return 0, nil
	}
	n := s.funcs.Read(p)
	if n <= 0 {
		return 0, io.EOF
	}
	return n, nil
}

// readAll buffers the rest of the stream, sized by the declared length
func (s *stream) readAll() ([]byte, error) {
	var b bytes.Buffer
	b.Grow(int(min(s.length, 64<<20)))
	_, err := b.ReadFrom(s)
	return b.Bytes(), err
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
	if cc.meta != nil {
		return cc.fail(fmt.Errorf("%w: setup after header read", ErrSequence))
	}
	cc.params = *p
	return nil
}

func (e *Engine) ReadHeader(s engine.Stream, c engine.Codec) (*engine.Image, error) {
	cc, ok := c.(*codec)
	st, sok := s.(*stream)
	if !ok || !sok {
		return nil, ErrBadHandle
	}
	if cc.meta != nil {
		return nil, cc.fail(fmt.Errorf("%w: header already read", ErrSequence))
	}
	data, err := st.readAll()
	if err != nil {
		return nil, cc.fail(fmt.Errorf("reading %s stream: %w", cc.kind, err))
	}
	meta, err := jpeg2000.DecodeMetadata(bytes.NewReader(data))
	if err != nil {
		return nil, cc.fail(fmt.Errorf("reading %s header: %w", cc.kind, err))
	}
	if raw := meta.Format == jpeg2000.FormatJ2K; raw != (cc.kind == engine.J2K) {
		return nil, cc.fail(fmt.Errorf("%w: %s stream holds a %s file", ErrContainer, cc.kind, meta.Format))
	}
	if levels := meta.NumResolutions - 1; int64(cc.params.Reduce) > int64(levels) {
		return nil, cc.fail(fmt.Errorf("%w: reduce %d, %d resolution levels", ErrReduceTooLarge, cc.params.Reduce, meta.NumResolutions))
	}
	if n := meta.NumTilesX * meta.NumTilesY; int64(cc.params.TileIndex) >= int64(n) {
		return nil, cc.fail(fmt.Errorf("tile %d of %d requested", cc.params.TileIndex, n))
	}
	if cc.params.TileIndex >= 0 {
		cc.warn("tile %d requested, decoding all %d tiles", cc.params.TileIndex, meta.NumTilesX*meta.NumTilesY)
	}
	cc.stream, cc.data, cc.meta = st, data, meta
	cc.info("main header read: %dx%d, %d components, %d resolution levels, %d tiles",
		meta.Width, meta.Height, meta.NumComponents, meta.NumResolutions, meta.NumTilesX*meta.NumTilesY)
	return imageFromMetadata(meta), nil
}

// imageFromMetadata describes the full resolution image. The library
// exposes neither the image origin nor component subsampling, so the
// image sits at the grid origin and every plane covers it.
func imageFromMetadata(m *jpeg2000.Metadata) *engine.Image {
	img := &engine.Image{
		X1:            uint32(m.Width),
		Y1:            uint32(m.Height),
		ColorSpace:    colorSpace(m.ColorSpace),
		ICCProfileLen: uint32(len(m.ICCProfile)),
		// decoded rows always come out first row first
		BottomUp: false,
	}
	for i := 0; i < m.NumComponents; i++ {
		comp := engine.Component{DX: 1, DY: 1, W: uint32(m.Width), H: uint32(m.Height)}
		if i < len(m.BitsPerComponent) {
			comp.Prec = uint32(m.BitsPerComponent[i])
		}
		if i < len(m.Signed) {
			comp.Signed = m.Signed[i]
		}
		img.Comps = append(img.Comps, comp)
	}
	return img
}

// colorSpace maps the library's color space onto the code. The values
// agree from Unknown through CMYK; the Part-1 extensions beyond that have
// no code.
func colorSpace(cs jpeg2000.ColorSpace) engine.ColorSpaceCode {
	if cs < jpeg2000.ColorSpaceUnknown || cs > jpeg2000.ColorSpaceCMYK {
		return engine.ColorSpaceUnknown
	}
	return engine.ColorSpaceCode(cs)
}

// convertsToRGB reports whether the library turns samples in cs into sRGB
// while decoding
func convertsToRGB(cs jpeg2000.ColorSpace) bool {
	switch cs {
	case jpeg2000.ColorSpaceUnknown, jpeg2000.ColorSpaceUnspecified,
		jpeg2000.ColorSpaceSRGB, jpeg2000.ColorSpaceGray, jpeg2000.ColorSpaceBilevel:
		return false
	}
	return true
}

func (e *Engine) Decode(c engine.Codec, s engine.Stream, img *engine.Image) error {
	cc, ok := c.(*codec)
	st, sok := s.(*stream)
	if !ok || !sok || img == nil {
		return ErrBadHandle
	}
	if cc.meta == nil || cc.stream != st {
		return cc.fail(fmt.Errorf("%w: decode without a header read on this stream", ErrSequence))
	}
	reduce := cc.params.Reduce
	cfg := &jpeg2000.Config{ReduceResolution: int(reduce), QualityLayers: int(cc.params.Layer)}
	out, err := jpeg2000.DecodeConfig(bytes.NewReader(cc.data), cfg)
	if err != nil {
		return cc.fail(err)
	}

	n := len(img.Comps)
	if convertsToRGB(cc.meta.ColorSpace) {
		// the library already produced sRGB; a CMYK black plane is spent
		n = min(n, 3)
		img.Comps = img.Comps[:n]
		img.ColorSpace = engine.ColorSpaceSRGB
		cc.info("samples converted from %s color space to sRGB", csName(cc.meta.ColorSpace))
	}
	planes, prec, err := split(out, n)
	if err != nil {
		return cc.fail(err)
	}
	b := out.Bounds()
	for i := range img.Comps {
		comp := &img.Comps[i]
		comp.W, comp.H = uint32(b.Dx()), uint32(b.Dy())
		comp.Factor = reduce
		comp.Prec = prec
		comp.Data = planes[i]
	}
	cc.info("decoded at reduce %d: %dx%d", reduce, b.Dx(), b.Dy())
	return nil
}

func csName(cs jpeg2000.ColorSpace) string {
	switch cs {
	case jpeg2000.ColorSpaceSYCC:
		return "sYCC"
	case jpeg2000.ColorSpaceEYCC:
		return "eYCC"
	case jpeg2000.ColorSpaceCMYK:
		return "CMYK"
	}
	return fmt.Sprintf("enumerated %d", int(cs))
}

// split pulls n row-major planes out of a decoded image. The library
// rescales every sample to 8 or 16 bits, which is returned as the
// precision of the planes.
func split(m image.Image, n int) ([][]int32, uint32, error) {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	planes := make([][]int32, n)
	for i := range planes {
		planes[i] = make([]int32, w*h)
	}
	var (
		prec     uint32
		pix      []byte
		stride   int
		channels int
		bytesPer int
	)
	switch im := m.(type) {
	case *image.Gray:
		prec, pix, stride, channels, bytesPer = 8, im.Pix, im.Stride, 1, 1
	case *image.Gray16:
		prec, pix, stride, channels, bytesPer = 16, im.Pix, im.Stride, 1, 2
	case *image.RGBA:
		prec, pix, stride, channels, bytesPer = 8, im.Pix, im.Stride, 4, 1
	case *image.RGBA64:
		prec, pix, stride, channels, bytesPer = 16, im.Pix, im.Stride, 4, 2
	default:
		return nil, 0, fmt.Errorf("unexpected decoded image type %T", m)
	}
	if n > channels {
		return nil, 0, fmt.Errorf("decoded %d channels, header declared %d components", channels, n)
	}
	for y := 0; y < h; y++ {
		row := pix[y*stride:]
		for x := 0; x < w; x++ {
			px := row[x*channels*bytesPer:]
			for i := 0; i < n; i++ {
				if bytesPer == 1 {
					planes[i][y*w+x] = int32(px[i])
				} else {
					planes[i][y*w+x] = int32(binary.BigEndian.Uint16(px[i*2:]))
				}
			}
		}
	}
	return planes, prec, nil
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
	return &stream{length: uint64(fi.Size()), file: f}, nil
}

func (e *Engine) DestroyStream(s engine.Stream) {
	if st, ok := s.(*stream); ok && st.file != nil {
		st.file.Close()
		st.file = nil
	}
}

func (e *Engine) DestroyCodec(c engine.Codec) {
	if cc, ok := c.(*codec); ok {
		cc.stream, cc.data, cc.meta = nil, nil, nil
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
