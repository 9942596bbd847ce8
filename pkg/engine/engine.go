// Package engine describes the capability boundary between the decode
// orchestration in pkg/jp2k and a JPEG 2000 decoding engine. The shape follows
// the OpenJPEG decompression API: opaque codec and stream handles, callback
// driven streams, a header read that yields an image descriptor, and explicit
// destroy calls for every handle.
package engine

import (
	"fmt"
	"strings"
)

// CodecKind selects which decoder variant the engine instantiates
type CodecKind int

const (
	J2K CodecKind = iota // raw JPEG 2000 codestream
	JP2                  // JP2 file format
	JPP                  // JPP-stream (JPIP)
	JPT                  // JPT-stream (JPIP)
	JPX                  // JPX file format (JPEG 2000 Part-2)
)

// String returns the codec kind name
func (k CodecKind) String() string {
	switch k {
	case J2K:
		return "j2k"
	case JP2:
		return "jp2"
	case JPP:
		return "jpp"
	case JPT:
		return "jpt"
	case JPX:
		return "jpx"
	default:
		return fmt.Sprintf("codec(%d)", int(k))
	}
}

// ParseCodecKind maps a name (j2k, jpc, j2c, jp2, jpp, jpt, jpx) to a CodecKind
func ParseCodecKind(name string) (CodecKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "j2k", "jpc", "j2c":
		return J2K, nil
	case "jp2":
		return JP2, nil
	case "jpp":
		return JPP, nil
	case "jpt":
		return JPT, nil
	case "jpx", "jpf":
		return JPX, nil
	}
	return 0, fmt.Errorf("unknown codec kind %q", name)
}

// jp2Signature is the 12-byte JP2 signature box
var jp2Signature = []byte{0x00, 0x00, 0x00, 0x0C, 0x6A, 0x50, 0x20, 0x20, 0x0D, 0x0A, 0x87, 0x0A}

// DetectCodecKind sniffs the leading bytes of a source. ok is false when
// neither a codestream SOC/SIZ pair nor a JP2 signature box is present.
func DetectCodecKind(head []byte) (kind CodecKind, ok bool) {
	if len(head) >= 4 && head[0] == 0xFF && head[1] == 0x4F && head[2] == 0xFF && head[3] == 0x51 {
		return J2K, true
	}
	if len(head) >= len(jp2Signature) && string(head[:len(jp2Signature)]) == string(jp2Signature) {
		return JP2, true
	}
	return J2K, false
}

// ColorSpaceCode is the raw color space tag reported in an Image.
// Values follow OPJ_COLOR_SPACE.
type ColorSpaceCode int32

const (
	ColorSpaceUnknown     ColorSpaceCode = -1
	ColorSpaceUnspecified ColorSpaceCode = 0
	ColorSpaceSRGB        ColorSpaceCode = 1
	ColorSpaceGray        ColorSpaceCode = 2
	ColorSpaceSYCC        ColorSpaceCode = 3
	ColorSpaceEYCC        ColorSpaceCode = 4
	ColorSpaceCMYK        ColorSpaceCode = 5
)

// Parameters holds decoder setup values. Only Reduce is driven by pkg/jp2k;
// the rest keep their defaults.
type Parameters struct {
	Reduce    uint32 // number of highest resolution levels to discard
	Layer     uint32 // maximum quality layers to decode (0 = all)
	TileIndex int32  // single tile to decode (-1 = all tiles)
	Verbose   bool
}

// DefaultParameters mirrors opj_set_default_decoder_parameters
func DefaultParameters() Parameters {
	return Parameters{TileIndex: -1}
}

// MessageFunc receives one diagnostic message from the engine
type MessageFunc func(msg string)

// Handlers are the diagnostic callbacks registered on a codec
type Handlers struct {
	Info    MessageFunc
	Warning MessageFunc
	Error   MessageFunc
}

// StreamFuncs are the callbacks an engine stream pulls bytes through.
// Read returns the number of bytes copied (0 at end of input), Skip returns
// the resulting absolute offset and Seek reports whether the offset was
// accepted.
type StreamFuncs struct {
	Read  func(p []byte) int
	Write func(p []byte) int
	Skip  func(n int64) int64
	Seek  func(offset int64) bool
}

// Component is one decoded sample plane
type Component struct {
	DX, DY uint32 // subsampling relative to the reference grid
	W, H   uint32 // stored plane size
	X0, Y0 uint32
	Factor uint32 // resolution reduction applied to this plane
	Prec   uint32 // bit depth
	Signed bool
	Data   []int32 // row-major, W*H samples once decoded
}

// Image is the descriptor produced by ReadHeader and filled by Decode
type Image struct {
	X0, Y0        uint32 // image area origin on the reference grid
	X1, Y1        uint32 // image area extent on the reference grid
	ColorSpace    ColorSpaceCode
	ICCProfileLen uint32
	// BottomUp reports that component rows are stored last row first.
	// Every engine sets it explicitly from the layout it produces.
	BottomUp bool
	Comps    []Component
}

// Width is the full resolution image width
func (img *Image) Width() uint32 { return img.X1 - img.X0 }

// Height is the full resolution image height
func (img *Image) Height() uint32 { return img.Y1 - img.Y0 }

// Codec is an opaque decoder handle
type Codec any

// Stream is an opaque stream handle
type Stream any

// Engine is the decoding capability. Every handle it hands out must be
// passed back to the matching Destroy call exactly once.
type Engine interface {
	// CreateDecoder instantiates a decoder; an error means the kind is unsupported
	CreateDecoder(kind CodecKind) (Codec, error)
	// SetHandlers registers diagnostic callbacks on the codec
	SetHandlers(c Codec, h Handlers)
	// SetupDecoder applies decoding parameters
	SetupDecoder(c Codec, p *Parameters) error
	// ReadHeader parses the main header into an image descriptor
	ReadHeader(s Stream, c Codec) (*Image, error)
	// Decode fills the component planes of img
	Decode(c Codec, s Stream, img *Image) error

	// CreateStream builds an input stream driven by funcs over length bytes
	CreateStream(funcs StreamFuncs, length uint64) (Stream, error)
	// CreateFileStream builds an input stream over a file using the engine's own file access
	CreateFileStream(path string) (Stream, error)

	DestroyStream(s Stream)
	DestroyCodec(c Codec)
	DestroyImage(img *Image)
}
