package jp2k

import (
	"github.com/jpfielding/jpeg2000.go/pkg/engine"
)

// MaxComponents is the largest number of planes combined into one pixel
const MaxComponents = 4

// ceilDivPow2 divides a by 2^b rounding upwards
func ceilDivPow2(a, b uint32) uint32 {
	if b >= 32 {
		if a == 0 {
			return 0
		}
		return 1
	}
	return uint32((uint64(a) + (uint64(1) << b) - 1) >> b)
}

// Assemble interleaves the decoded planes of img into an RGBA bitmap.
// The output size is the image extent reduced by the factor the engine
// reports for the first component. Each plane is sampled through its own
// stored width so subsampled planes line up with the output grid.
func Assemble(img *engine.Image, cs ColorSpace) (*Bitmap, error) {
	comps := img.Comps
	if len(comps) > MaxComponents {
		return nil, &TooManyComponentsError{Count: len(comps)}
	}
	if len(comps) == 0 {
		return nil, ErrNoComponents
	}
	combine, err := combiner(cs)
	if err != nil {
		return nil, err
	}
	for i := range comps {
		if comps[i].Signed {
			return nil, ErrSignedSamples
		}
		// an empty plane has nothing to sample from
		if comps[i].W == 0 || comps[i].H == 0 {
			return nil, ErrDecode
		}
		if uint64(len(comps[i].Data)) < uint64(comps[i].W)*uint64(comps[i].H) {
			return nil, ErrDecode
		}
	}

	factor := comps[0].Factor
	width := int(ceilDivPow2(img.Width(), factor))
	height := int(ceilDivPow2(img.Height(), factor))
	bmp := NewBitmap(width, height)

	for y := 0; y < height; y++ {
		row := y
		if img.BottomUp {
			row = height - 1 - y
		}
		for x := 0; x < width; x++ {
			// alpha defaults to opaque when there is no fourth plane
			values := [4]uint8{0, 0, 0, 255}
			for i := range comps {
				c := &comps[i]
				cx := x * int(c.W) / width
				cy := y * int(c.H) / height
				values[i] = sample8(c.Data[cy*int(c.W)+cx], c.Prec)
			}
			bmp.set(x, row, combine(values))
		}
	}
	return bmp, nil
}

// combiner returns the per-pixel rule for a color space
func combiner(cs ColorSpace) (func([4]uint8) [4]uint8, error) {
	switch cs {
	case SRGB:
		return func(v [4]uint8) [4]uint8 { return v }, nil
	case GRAY:
		return func(v [4]uint8) [4]uint8 { return [4]uint8{v[0], v[0], v[0], 255} }, nil
	default:
		return nil, &UnsupportedColorSpaceError{Space: cs}
	}
}

// sample8 narrows an unsigned sample of the given precision to 8 bits
func sample8(v int32, prec uint32) uint8 {
	if v <= 0 {
		return 0
	}
	switch {
	case prec == 0 || prec == 8:
	case prec > 8:
		v >>= prec - 8
	default:
		v = v * 255 / (int32(1)<<prec - 1)
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
