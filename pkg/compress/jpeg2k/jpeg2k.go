// Package jpeg2k implements a single-tile JPEG 2000 (Part-1) codec using the
// 5/3 reversible discrete wavelet transform of ITU-T Rec. T.800 |
// ISO/IEC 15444-1. Raw codestreams and JP2 files are both read and written.
//
// Tile bodies carry raw wavelet coefficients rather than EBCOT coded
// code-blocks, so only streams written by this package decode here.
package jpeg2k

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
)

// Common errors
var (
	ErrInvalidFormat    = errors.New("invalid JPEG 2000 format")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrUnsupportedCodec = errors.New("unsupported codec feature")
	ErrDecodeFailed     = errors.New("decode failed")
	ErrReduceTooLarge   = errors.New("reduce exceeds decomposition levels")
)

// Format is the container around the codestream
type Format int

const (
	FormatJ2K Format = iota // raw codestream
	FormatJP2               // JP2 file format
)

// String returns the format name
func (f Format) String() string {
	if f == FormatJP2 {
		return "jp2"
	}
	return "j2k"
}

// Options configures JPEG 2000 encoding
type Options struct {
	DecompLevels int              // Number of DWT decomposition levels (default: 5)
	NumLayers    int              // Number of quality layers (default: 1)
	Progression  ProgressionOrder // Progression order (default: LRCP)
	UseMCT       bool             // Use multi-component transform for RGB
	Origin       image.Point      // Image offset on the reference grid

	// JP2 only: an enumerated colour space (EnumCSNone picks one from the
	// image type) or an ICC profile, which takes precedence
	ColorSpace EnumCS
	ICCProfile []byte
}

// DefaultOptions returns default encoding options
func DefaultOptions() *Options {
	return &Options{
		DecompLevels: 5,
		NumLayers:    1,
		Progression:  ProgressionLRCP,
		UseMCT:       true,
	}
}

// Encode writes img as a raw single-tile codestream
func Encode(w io.Writer, img image.Image, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	components, precision, err := samples(img)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	numComps := len(components)
	useMCT := opts.UseMCT && numComps >= 3
	if useMCT {
		ApplyRCT(components)
	}

	cw := NewCodestreamWriter(w)
	if err := cw.WriteSOC(); err != nil {
		return err
	}

	compInfo := make([]ComponentInfo, numComps)
	for i := range compInfo {
		compInfo[i] = ComponentInfo{Precision: precision, XRsiz: 1, YRsiz: 1}
	}
	ox, oy := max(opts.Origin.X, 0), max(opts.Origin.Y, 0)
	siz := BuildSIZ(ox+width, oy+height, compInfo, 0, 0)
	siz.XOsiz, siz.YOsiz = uint32(ox), uint32(oy)
	if err := cw.WriteSIZ(siz); err != nil {
		return err
	}
	if err := cw.WriteCOD(BuildDefaultCOD(opts.DecompLevels, max(opts.NumLayers, 1), opts.Progression, useMCT)); err != nil {
		return err
	}
	if err := cw.WriteQCD(BuildDefaultQCD(opts.DecompLevels, 2)); err != nil {
		return err
	}

	var body bytes.Buffer
	te := NewTileEncoder(width, height, opts.DecompLevels)
	for _, comp := range components {
		encoded, err := te.EncodeTile(comp)
		if err != nil {
			return err
		}
		body.Write(encoded)
	}

	sot := &SOTMarker{TilePartLen: uint32(12 + 2 + body.Len()), NumTileParts: 1}
	if err := cw.WriteSOT(sot); err != nil {
		return err
	}
	if err := cw.WriteSOD(); err != nil {
		return err
	}
	if err := cw.WriteBytes(body.Bytes()); err != nil {
		return err
	}
	if err := cw.WriteEOC(); err != nil {
		return err
	}
	return cw.Flush()
}

// EncodeJP2 writes img as a JP2 file
func EncodeJP2(w io.Writer, img image.Image, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	var cs bytes.Buffer
	if err := Encode(&cs, img, opts); err != nil {
		return err
	}
	components, precision, _ := samples(img)
	b := img.Bounds()
	hdr := &JP2Header{
		Width:    uint32(b.Dx() + max(opts.Origin.X, 0)),
		Height:   uint32(b.Dy() + max(opts.Origin.Y, 0)),
		NumComps: uint16(len(components)),
		BPC:      uint8(precision - 1),
		EnumCS:   opts.ColorSpace,
	}
	switch {
	case len(opts.ICCProfile) > 0:
		hdr.ColorMethod = ColorMethodICC
		hdr.ICCProfile = opts.ICCProfile
	case hdr.EnumCS == EnumCSNone && len(components) == 1:
		hdr.ColorMethod, hdr.EnumCS = ColorMethodEnumerated, EnumCSGray
	case hdr.EnumCS == EnumCSNone:
		hdr.ColorMethod, hdr.EnumCS = ColorMethodEnumerated, EnumCSSRGB
	default:
		hdr.ColorMethod = ColorMethodEnumerated
	}
	return WriteJP2(w, cs.Bytes(), hdr)
}

// samples splits an image into component planes
func samples(img image.Image) ([][]int, int, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return nil, 0, fmt.Errorf("%w: empty %dx%d image", ErrUnsupportedImage, width, height)
	}
	plane := func() []int { return make([]int, width*height) }

	switch src := img.(type) {
	case *image.Gray:
		g := plane()
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g[y*width+x] = int(src.GrayAt(x+b.Min.X, y+b.Min.Y).Y)
			}
		}
		return [][]int{g}, 8, nil
	case *image.Gray16:
		g := plane()
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g[y*width+x] = int(src.Gray16At(x+b.Min.X, y+b.Min.Y).Y)
			}
		}
		return [][]int{g}, 16, nil
	case *image.RGBA:
		r, g, bl := plane(), plane(), plane()
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := src.RGBAAt(x+b.Min.X, y+b.Min.Y)
				idx := y*width + x
				r[idx], g[idx], bl[idx] = int(c.R), int(c.G), int(c.B)
			}
		}
		return [][]int{r, g, bl}, 8, nil
	case *image.NRGBA:
		r, g, bl, a := plane(), plane(), plane(), plane()
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := src.NRGBAAt(x+b.Min.X, y+b.Min.Y)
				idx := y*width + x
				r[idx], g[idx], bl[idx], a[idx] = int(c.R), int(c.G), int(c.B), int(c.A)
			}
		}
		return [][]int{r, g, bl, a}, 8, nil
	default:
		return nil, 0, fmt.Errorf("%w: %T", ErrUnsupportedImage, img)
	}
}

// Header is everything known about an image before its tile data is read
type Header struct {
	Format Format
	SIZ    SIZMarker
	COD    CODMarker
	QCD    QCDMarker
	JP2    *JP2Header // nil for raw codestreams
}

// Decoder reads one image from a stream: ReadHeader first, then
// DecodeComponents. Bytes are consumed strictly in order.
type Decoder struct {
	br  *ByteReader
	cr  *CodestreamReader
	hdr *Header
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	br := NewByteReader(r)
	return &Decoder{br: br, cr: &CodestreamReader{r: br}}
}

// ReadHeader reads the JP2 boxes (for FormatJP2) and the codestream main
// header
func (d *Decoder) ReadHeader(f Format) (*Header, error) {
	if d.hdr != nil {
		return d.hdr, nil
	}
	h := &Header{Format: f}
	if f == FormatJP2 {
		jp2, err := ReadJP2Header(d.br)
		if err != nil {
			return nil, err
		}
		h.JP2 = jp2
	}
	if err := d.cr.ReadMainHeader(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	h.SIZ, h.COD, h.QCD = d.cr.SIZ, d.cr.COD, d.cr.QCD
	if h.COD.Transform != TransformReversible53 {
		return nil, fmt.Errorf("%w: transform %d", ErrUnsupportedCodec, h.COD.Transform)
	}
	d.hdr = h
	return h, nil
}

// DecodeComponents reads the tile data and reconstructs every component at
// resolution level reduce
func (d *Decoder) DecodeComponents(reduce int) ([]*Plane, error) {
	if d.hdr == nil {
		return nil, fmt.Errorf("%w: header not read", ErrDecodeFailed)
	}
	h := d.hdr
	if reduce < 0 || reduce > int(h.COD.DecompLevels) {
		return nil, fmt.Errorf("%w: %d > %d", ErrReduceTooLarge, reduce, h.COD.DecompLevels)
	}
	if n := h.SIZ.NumTiles(); n != 1 {
		return nil, fmt.Errorf("%w: %d tiles", ErrUnsupportedCodec, n)
	}
	if _, err := d.cr.ReadSOT(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if err := d.cr.ReadTilePartHeader(); err != nil {
		return nil, fmt.Errorf("%w: tile-part header: %w", ErrDecodeFailed, err)
	}
	// tile-part COD may change the decomposition
	levels := int(d.cr.COD.DecompLevels)
	if reduce > levels {
		return nil, fmt.Errorf("%w: %d > %d", ErrReduceTooLarge, reduce, levels)
	}

	td := NewTileDecoder(levels, reduce)
	planes := make([]*Plane, len(h.SIZ.Components))
	for i := range planes {
		p, err := td.DecodeTile(d.br)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		planes[i] = p
	}

	if d.cr.COD.MCT != 0 && len(planes) >= 3 {
		if len(planes[1].Data) != len(planes[0].Data) || len(planes[2].Data) != len(planes[0].Data) {
			return nil, fmt.Errorf("%w: colour transform over unequal planes", ErrDecodeFailed)
		}
		ApplyInverseRCT([][]int{planes[0].Data, planes[1].Data, planes[2].Data})
	}
	return planes, nil
}

// DetectFormat reports the container of a stream from its first 12 bytes
func DetectFormat(head []byte) (Format, bool) {
	if bytes.HasPrefix(head, Signature) {
		return FormatJP2, true
	}
	if len(head) >= 4 && head[0] == 0xFF && head[1] == 0x4F && head[2] == 0xFF && head[3] == 0x51 {
		return FormatJ2K, true
	}
	return FormatJ2K, false
}

func openDecoder(r io.Reader) (*Decoder, *Header, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(Signature))
	f, ok := DetectFormat(head)
	if !ok {
		return nil, nil, ErrInvalidFormat
	}
	d := NewDecoder(br)
	h, err := d.ReadHeader(f)
	if err != nil {
		return nil, nil, err
	}
	return d, h, nil
}

// Decode reads a raw codestream or JP2 file. One component decodes to Gray
// or Gray16, three to RGBA and four to NRGBA.
func Decode(r io.Reader) (image.Image, error) {
	d, h, err := openDecoder(r)
	if err != nil {
		return nil, err
	}
	planes, err := d.DecodeComponents(0)
	if err != nil {
		return nil, err
	}
	width, height := planes[0].Width, planes[0].Height
	rect := image.Rect(0, 0, width, height)
	precision := h.SIZ.Components[0].Precision

	switch {
	case len(planes) == 1 && precision <= 8:
		img := image.NewGray(rect)
		for i, v := range planes[0].Data {
			img.Pix[i] = uint8(clamp(v, 0, 255))
		}
		return img, nil
	case len(planes) == 1:
		img := image.NewGray16(rect)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: uint16(clamp(planes[0].Data[y*width+x], 0, 65535))})
			}
		}
		return img, nil
	case len(planes) == 3:
		img := image.NewRGBA(rect)
		for i := range planes[0].Data {
			img.Pix[4*i] = uint8(clamp(planes[0].Data[i], 0, 255))
			img.Pix[4*i+1] = uint8(clamp(planes[1].Data[i], 0, 255))
			img.Pix[4*i+2] = uint8(clamp(planes[2].Data[i], 0, 255))
			img.Pix[4*i+3] = 255
		}
		return img, nil
	case len(planes) == 4:
		img := image.NewNRGBA(rect)
		for i := range planes[0].Data {
			for c := 0; c < 4; c++ {
				img.Pix[4*i+c] = uint8(clamp(planes[c].Data[i], 0, 255))
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %d components", ErrUnsupportedImage, len(planes))
	}
}

// DecodeConfig returns the image configuration without decoding
func DecodeConfig(r io.Reader) (image.Config, error) {
	_, h, err := openDecoder(r)
	if err != nil {
		return image.Config{}, err
	}
	var model color.Model
	switch n := len(h.SIZ.Components); {
	case n == 1 && h.SIZ.Components[0].Precision <= 8:
		model = color.GrayModel
	case n == 1:
		model = color.Gray16Model
	case n == 4:
		model = color.NRGBAModel
	default:
		model = color.RGBAModel
	}
	return image.Config{
		Width:      h.SIZ.Width(),
		Height:     h.SIZ.Height(),
		ColorModel: model,
	}, nil
}

func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

func init() {
	image.RegisterFormat("j2k", "\xff\x4f\xff\x51", Decode, DecodeConfig)
	image.RegisterFormat("jp2", string(Signature), Decode, DecodeConfig)
}
