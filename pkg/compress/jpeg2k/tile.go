package jpeg2k

import (
	"encoding/binary"
	"fmt"
)

// Plane is one decoded component, row-major with Width samples per row
type Plane struct {
	Width  int
	Height int
	Data   []int
}

// TileEncoder encodes one component of a single-tile image.
//
// The tile body stores the wavelet coefficients directly: width(2) and
// height(2) followed by one big-endian int32 per coefficient. There is no
// entropy coding, so output is larger than a conforming encoder's but
// round-trips exactly.
type TileEncoder struct {
	width        int
	height       int
	decompLevels int
}

// NewTileEncoder creates a tile encoder
func NewTileEncoder(width, height, decompLevels int) *TileEncoder {
	return &TileEncoder{width: width, height: height, decompLevels: decompLevels}
}

// EncodeTile transforms and serialises one component
func (te *TileEncoder) EncodeTile(data []int) ([]byte, error) {
	if te.width > 0xFFFF || te.height > 0xFFFF {
		return nil, fmt.Errorf("%w: tile %dx%d exceeds 65535", ErrUnsupportedImage, te.width, te.height)
	}
	if len(data) != te.width*te.height {
		return nil, fmt.Errorf("%w: %d samples for %dx%d tile", ErrUnsupportedImage, len(data), te.width, te.height)
	}
	coeffs := make([]int, len(data))
	copy(coeffs, data)
	ForwardMultiLevel(coeffs, te.width, te.height, te.decompLevels)

	out := make([]byte, 4, 4+4*len(coeffs))
	binary.BigEndian.PutUint16(out[0:2], uint16(te.width))
	binary.BigEndian.PutUint16(out[2:4], uint16(te.height))
	for _, c := range coeffs {
		out = binary.BigEndian.AppendUint32(out, uint32(int32(c)))
	}
	return out, nil
}

// TileDecoder decodes components written by TileEncoder
type TileDecoder struct {
	decompLevels int
	reduce       int
}

// NewTileDecoder creates a tile decoder that reconstructs at resolution
// level reduce (0 is full size)
func NewTileDecoder(decompLevels, reduce int) *TileDecoder {
	return &TileDecoder{decompLevels: decompLevels, reduce: reduce}
}

// DecodeTile reads one component from r and inverts the transform
func (td *TileDecoder) DecodeTile(r *ByteReader) (*Plane, error) {
	w, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: tile width: %w", ErrDecodeFailed, err)
	}
	h, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: tile height: %w", ErrDecodeFailed, err)
	}
	width, height := int(w), int(h)
	raw, err := r.ReadBytes(4 * width * height)
	if err != nil {
		return nil, fmt.Errorf("%w: %dx%d tile body: %w", ErrDecodeFailed, width, height, err)
	}
	coeffs := make([]int, width*height)
	for i := range coeffs {
		coeffs[i] = int(int32(binary.BigEndian.Uint32(raw[4*i:])))
	}

	if td.reduce == 0 {
		InverseMultiLevel(coeffs, width, height, td.decompLevels)
		return &Plane{Width: width, Height: height, Data: coeffs}, nil
	}
	data, rw, rh := InverseToLevel(coeffs, width, height, td.decompLevels, td.reduce)
	return &Plane{Width: rw, Height: rh, Data: data}, nil
}
