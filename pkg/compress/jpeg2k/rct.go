package jpeg2k

// Reversible colour transform, ITU-T T.800 Annex G.2. Both directions work
// in place over the first three component planes:
//
//	Y  = floor((R + 2G + B) / 4)    G = Y - floor((Cb + Cr) / 4)
//	Cb = B - G                      R = Cr + G
//	Cr = R - G                      B = Cb + G

// ForwardRCTInPlace turns r, g, b into Y, Cb, Cr
func ForwardRCTInPlace(r, g, b []int) {
	for i := range r {
		ri, gi, bi := r[i], g[i], b[i]
		r[i] = (ri + 2*gi + bi) >> 2
		g[i] = bi - gi
		b[i] = ri - gi
	}
}

// InverseRCTInPlace turns y, cb, cr back into R, G, B
func InverseRCTInPlace(y, cb, cr []int) {
	for i := range y {
		yi, cbi, cri := y[i], cb[i], cr[i]
		g := yi - ((cbi + cri) >> 2)
		y[i] = cri + g
		cb[i] = g
		cr[i] = cbi + g
	}
}

// ApplyRCT applies the forward transform to the first three planes. Images
// with fewer components are left alone.
func ApplyRCT(data [][]int) {
	if len(data) < 3 {
		return
	}
	ForwardRCTInPlace(data[0], data[1], data[2])
}

// ApplyInverseRCT undoes ApplyRCT
func ApplyInverseRCT(data [][]int) {
	if len(data) < 3 {
		return
	}
	InverseRCTInPlace(data[0], data[1], data[2])
}
