package jpeg2k

// DWT implements the 5/3 reversible discrete wavelet transform
// as specified in ITU-T T.800 Annex F.

// Forward1D performs a 1D forward 5/3 wavelet transform in-place.
// Input signal is replaced with low-pass coefficients followed by high-pass coefficients.
func Forward1D(signal []int) {
	n := len(signal)
	if n < 2 {
		return
	}

	// lifting:
	//   predict d[i] = x[2i+1] - floor((x[2i] + x[2i+2]) / 2)
	//   update  s[i] = x[2i] + floor((d[i-1] + d[i] + 2) / 4)
	half := (n + 1) / 2
	low := make([]int, half)
	high := make([]int, n-half)
	for i := range low {
		low[i] = signal[2*i]
	}
	for i := range high {
		high[i] = signal[2*i+1]
	}

	for i := range high {
		high[i] -= (low[i] + lowAt(low, i+1)) / 2
	}
	for i := range low {
		left, right := highNeighbours(high, i)
		low[i] += (left + right + 2) / 4
	}

	copy(signal[:half], low)
	copy(signal[half:], high)
}

// Inverse1D performs a 1D inverse 5/3 wavelet transform in-place.
// Input has low-pass coefficients followed by high-pass coefficients.
func Inverse1D(signal []int) {
	n := len(signal)
	if n < 2 {
		return
	}

	half := (n + 1) / 2
	low := make([]int, half)
	high := make([]int, n-half)
	copy(low, signal[:half])
	copy(high, signal[half:])

	for i := range low {
		left, right := highNeighbours(high, i)
		low[i] -= (left + right + 2) / 4
	}
	for i := range high {
		high[i] += (low[i] + lowAt(low, i+1)) / 2
	}

	for i, v := range low {
		signal[2*i] = v
	}
	for i, v := range high {
		signal[2*i+1] = v
	}
}

// lowAt is low[i] with symmetric extension past the right edge
func lowAt(low []int, i int) int {
	if i < len(low) {
		return low[i]
	}
	return low[len(low)-1]
}

// highNeighbours are the high-pass samples either side of low[i], mirrored
// at both edges
func highNeighbours(high []int, i int) (left, right int) {
	if len(high) == 0 {
		return 0, 0
	}
	if i > 0 {
		left = high[i-1]
	} else {
		left = high[0]
	}
	right = left
	if i < len(high) {
		right = high[i]
	}
	return left, right
}

// Forward2D performs a single level 2D forward transform in place, leaving
// LL top-left, HL top-right, LH bottom-left and HH bottom-right.
func Forward2D(data []int, width, height int) {
	forwardLLRegion(data, width, width, height)
}

// Inverse2D reverses Forward2D
func Inverse2D(data []int, width, height int) {
	inverseLLRegion(data, width, width, height)
}

// ForwardMultiLevel performs multi-level 2D DWT decomposition.
// Each level transforms the LL subband from the previous level.
// Returns dimensions of the final LL subband.
func ForwardMultiLevel(data []int, width, height, levels int) (llWidth, llHeight int) {
	llWidth, llHeight = width, height
	for level := 0; level < levels; level++ {
		if llWidth < 2 || llHeight < 2 {
			break
		}
		forwardLLRegion(data, width, llWidth, llHeight)
		llWidth = (llWidth + 1) / 2
		llHeight = (llHeight + 1) / 2
	}
	return llWidth, llHeight
}

// InverseMultiLevel performs a full multi-level 2D inverse reconstruction
func InverseMultiLevel(data []int, width, height, levels int) {
	dims, applied := levelDims(width, height, levels)
	for level := applied - 1; level >= 0; level-- {
		inverseLLRegion(data, width, dims[level][0], dims[level][1])
	}
}

// InverseToLevel reconstructs the image at resolution level reduce, where 0
// is full size and each level halves both dimensions rounding up. data holds
// a width*height decomposition produced by ForwardMultiLevel with levels;
// only the levels above reduce are inverted. The returned plane is row-major
// with its own width.
func InverseToLevel(data []int, width, height, levels, reduce int) (out []int, w, h int) {
	dims, applied := levelDims(width, height, levels)
	stop := min(reduce, applied)
	for level := applied - 1; level >= stop; level-- {
		inverseLLRegion(data, width, dims[level][0], dims[level][1])
	}

	// LL band of the last inverted level, then decimate whatever the
	// transform could not halve because a dimension was already 1
	w, h = dims[stop][0], dims[stop][1]
	step := 1 << (reduce - stop)
	ow, oh := (w+step-1)/step, (h+step-1)/step
	out = make([]int, ow*oh)
	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			out[y*ow+x] = data[y*step*width+x*step]
		}
	}
	return out, ow, oh
}

// ResolutionSize is the size of the image at resolution level reduce
func ResolutionSize(width, height, reduce int) (int, int) {
	for range reduce {
		width = (width + 1) / 2
		height = (height + 1) / 2
	}
	return width, height
}

// levelDims returns the LL size entering each level and how many levels
// ForwardMultiLevel actually applies before a dimension drops below 2
func levelDims(width, height, levels int) ([][2]int, int) {
	dims := make([][2]int, levels+1)
	dims[0] = [2]int{width, height}
	applied := levels
	for i := 1; i <= levels; i++ {
		dims[i] = [2]int{(dims[i-1][0] + 1) / 2, (dims[i-1][1] + 1) / 2}
	}
	for i := 0; i < levels; i++ {
		if dims[i][0] < 2 || dims[i][1] < 2 {
			applied = i
			break
		}
	}
	// levels past the applied ones leave the LL band unchanged
	for i := applied + 1; i <= levels; i++ {
		dims[i] = dims[applied]
	}
	return dims, applied
}

// forwardLLRegion transforms the top-left width*height region of an image
// whose rows are stride samples apart
func forwardLLRegion(data []int, stride, width, height int) {
	if width < 2 || height < 2 {
		return
	}

	row := make([]int, width)
	for y := 0; y < height; y++ {
		offset := y * stride
		copy(row, data[offset:offset+width])
		Forward1D(row)
		copy(data[offset:offset+width], row)
	}

	col := make([]int, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = data[y*stride+x]
		}
		Forward1D(col)
		for y := 0; y < height; y++ {
			data[y*stride+x] = col[y]
		}
	}
}

// inverseLLRegion reconstructs the top-left region, columns first
func inverseLLRegion(data []int, stride, width, height int) {
	if width < 2 || height < 2 {
		return
	}

	col := make([]int, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = data[y*stride+x]
		}
		Inverse1D(col)
		for y := 0; y < height; y++ {
			data[y*stride+x] = col[y]
		}
	}

	row := make([]int, width)
	for y := 0; y < height; y++ {
		offset := y * stride
		copy(row, data[offset:offset+width])
		Inverse1D(row)
		copy(data[offset:offset+width], row)
	}
}
