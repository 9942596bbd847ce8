package jp2k

import (
	"image"
)

// Bitmap is the decoded RGBA8 output. Pix is row-major with row 0 at the top.
type Bitmap struct {
	*image.RGBA
}

// NewBitmap allocates a zeroed bitmap
func NewBitmap(width, height int) *Bitmap {
	return &Bitmap{RGBA: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Width in pixels
func (b *Bitmap) Width() int { return b.Rect.Dx() }

// Height in pixels
func (b *Bitmap) Height() int { return b.Rect.Dy() }

// set writes one pixel without bounds conversion
func (b *Bitmap) set(x, y int, px [4]uint8) {
	i := y*b.Stride + x*4
	copy(b.Pix[i:i+4], px[:])
}
