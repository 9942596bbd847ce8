package jpeg2k

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForward1D_Inverse1D_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		signal []int
	}{
		{
			name:   "simple 4 elements",
			signal: []int{1, 2, 3, 4},
		},
		{
			name:   "simple 8 elements",
			signal: []int{1, 2, 3, 4, 5, 6, 7, 8},
		},
		{
			name:   "odd length",
			signal: []int{1, 2, 3, 4, 5},
		},
		{
			name:   "constant signal",
			signal: []int{100, 100, 100, 100},
		},
		{
			name:   "alternating",
			signal: []int{0, 255, 0, 255, 0, 255, 0, 255},
		},
		{
			name:   "ramp",
			signal: []int{0, 16, 32, 48, 64, 80, 96, 112},
		},
		{
			name:   "two elements",
			signal: []int{100, 200},
		},
		{
			name:   "three elements",
			signal: []int{10, 20, 30},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := make([]int, len(tt.signal))
			copy(original, tt.signal)

			// Forward transform
			Forward1D(tt.signal)

			// Inverse transform
			Inverse1D(tt.signal)

			// Should match original
			assert.Equal(t, original, tt.signal)
		})
	}
}

func TestForward1D_KnownValues(t *testing.T) {
	// Test that constant signal produces zero high-pass coefficients
	signal := []int{100, 100, 100, 100}
	Forward1D(signal)

	// First two are low-pass (should be ~100)
	// Last two are high-pass (should be ~0 for constant)
	assert.Equal(t, 0, signal[2], "high-pass coeff should be 0")
	assert.Equal(t, 0, signal[3], "high-pass coeff should be 0")
}

func TestForward2D_Inverse2D_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{"4x4", 4, 4},
		{"8x8", 8, 8},
		{"4x8", 4, 8},
		{"8x4", 8, 4},
		{"5x5 odd", 5, 5},
		{"7x3 odd", 7, 3},
		{"16x16", 16, 16},
		{"2x2 minimum", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create test image with gradient
			data := make([]int, tt.width*tt.height)
			for y := 0; y < tt.height; y++ {
				for x := 0; x < tt.width; x++ {
					data[y*tt.width+x] = x + y*tt.width
				}
			}

			original := make([]int, len(data))
			copy(original, data)

			Forward2D(data, tt.width, tt.height)
			Inverse2D(data, tt.width, tt.height)

			assert.Equal(t, original, data)
		})
	}
}

func TestForward2D_SubbandStructure(t *testing.T) {
	// 8x8 constant image should have zero in all high-pass subbands
	width, height := 8, 8
	data := make([]int, width*height)
	for i := range data {
		data[i] = 100
	}

	Forward2D(data, width, height)

	// LL is top-left 4x4
	// HL is top-right 4x4
	// LH is bottom-left 4x4
	// HH is bottom-right 4x4

	// HL should be all zeros (high-pass horizontal on constant)
	for y := 0; y < 4; y++ {
		for x := 4; x < 8; x++ {
			assert.Equal(t, 0, data[y*width+x], "HL[%d,%d]", x, y)
		}
	}

	// LH should be all zeros
	for y := 4; y < 8; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, 0, data[y*width+x], "LH[%d,%d]", x, y)
		}
	}

	// HH should be all zeros
	for y := 4; y < 8; y++ {
		for x := 4; x < 8; x++ {
			assert.Equal(t, 0, data[y*width+x], "HH[%d,%d]", x, y)
		}
	}
}

func TestForwardMultiLevel_InverseMultiLevel_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		levels int
	}{
		{"16x16 2 levels", 16, 16, 2},
		{"16x16 3 levels", 16, 16, 3},
		{"32x32 4 levels", 32, 32, 4},
		{"64x64 5 levels", 64, 64, 5},
		{"17x17 odd 3 levels", 17, 17, 3},
		{"20x30 rect 2 levels", 20, 30, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]int, tt.width*tt.height)
			for i := range data {
				data[i] = i % 256
			}

			original := make([]int, len(data))
			copy(original, data)

			ForwardMultiLevel(data, tt.width, tt.height, tt.levels)
			InverseMultiLevel(data, tt.width, tt.height, tt.levels)

			assert.Equal(t, original, data)
		})
	}
}

func TestForwardMultiLevel_LLDimensions(t *testing.T) {
	tests := []struct {
		width, height, levels int
		wantLLW, wantLLH      int
	}{
		{16, 16, 1, 8, 8},
		{16, 16, 2, 4, 4},
		{16, 16, 3, 2, 2},
		{16, 16, 4, 1, 1},
		{17, 17, 1, 9, 9},
		{17, 17, 2, 5, 5},
		{64, 64, 5, 2, 2},
	}

	for _, tt := range tests {
		data := make([]int, tt.width*tt.height)
		llW, llH := ForwardMultiLevel(data, tt.width, tt.height, tt.levels)
		assert.Equal(t, tt.wantLLW, llW, "LL width for %dx%d @ %d levels", tt.width, tt.height, tt.levels)
		assert.Equal(t, tt.wantLLH, llH, "LL height for %dx%d @ %d levels", tt.width, tt.height, tt.levels)
	}
}

func TestInverseToLevel_FullResolution(t *testing.T) {
	width, height, levels := 13, 9, 3
	data := make([]int, width*height)
	for i := range data {
		data[i] = (i * 37) % 255
	}
	original := append([]int(nil), data...)

	ForwardMultiLevel(data, width, height, levels)
	out, w, h := InverseToLevel(data, width, height, levels, 0)
	assert.Equal(t, width, w)
	assert.Equal(t, height, h)
	assert.Equal(t, original, out)
}

func TestInverseToLevel_ReducedSizes(t *testing.T) {
	width, height, levels := 13, 9, 3
	for reduce := 0; reduce <= levels; reduce++ {
		data := make([]int, width*height)
		for i := range data {
			data[i] = 77
		}
		ForwardMultiLevel(data, width, height, levels)
		out, w, h := InverseToLevel(data, width, height, levels, reduce)

		wantW, wantH := ResolutionSize(width, height, reduce)
		assert.Equal(t, wantW, w, "reduce %d", reduce)
		assert.Equal(t, wantH, h, "reduce %d", reduce)
		require.Len(t, out, w*h)
		// a flat image has a flat LL band at every level
		for _, v := range out {
			assert.Equal(t, 77, v, "reduce %d", reduce)
		}
	}
}

func TestInverseToLevel_DegenerateDimension(t *testing.T) {
	// a single column is never transformed, so reduction decimates instead
	width, height, levels := 1, 8, 3
	data := []int{0, 1, 2, 3, 4, 5, 6, 7}
	ForwardMultiLevel(data, width, height, levels)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, data)

	out, w, h := InverseToLevel(data, width, height, levels, 2)
	assert.Equal(t, 1, w)
	assert.Equal(t, 2, h)
	assert.Equal(t, []int{0, 4}, out)
}

func TestResolutionSize(t *testing.T) {
	tests := []struct {
		w, h, reduce int
		wantW, wantH int
	}{
		{100, 50, 0, 100, 50},
		{100, 50, 1, 50, 25},
		{100, 50, 2, 25, 13},
		{100, 50, 3, 13, 7},
		{1, 1, 4, 1, 1},
	}
	for _, tt := range tests {
		w, h := ResolutionSize(tt.w, tt.h, tt.reduce)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}

func TestDWT_LargeImage(t *testing.T) {
	// Test with a realistically sized image
	width, height := 256, 256
	levels := 5

	data := make([]int, width*height)
	for i := range data {
		data[i] = i % 65536
	}

	original := make([]int, len(data))
	copy(original, data)

	ForwardMultiLevel(data, width, height, levels)
	InverseMultiLevel(data, width, height, levels)

	assert.Equal(t, original, data)
}

func BenchmarkForward2D(b *testing.B) {
	width, height := 512, 512
	data := make([]int, width*height)
	for i := range data {
		data[i] = i % 256
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Forward2D(data, width, height)
	}
}

func BenchmarkForwardMultiLevel(b *testing.B) {
	width, height, levels := 512, 512, 5
	data := make([]int, width*height)
	for i := range data {
		data[i] = i % 256
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dataCopy := make([]int, len(data))
		copy(dataCopy, data)
		ForwardMultiLevel(dataCopy, width, height, levels)
	}
}
