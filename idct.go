package jpegx

// Inverse Discrete Cosine Transform

// Constants for the fast integer IDCT (scaled by 2^11).
const (
	w1 = 2841 // 2048*sqrt(2)*cos(1*pi/16)
	w2 = 2676 // 2048*sqrt(2)*cos(2*pi/16)
	w3 = 2408 // 2048*sqrt(2)*cos(3*pi/16)
	w5 = 1609 // 2048*sqrt(2)*cos(5*pi/16)
	w6 = 1108 // 2048*sqrt(2)*cos(6*pi/16)
	w7 = 565  // 2048*sqrt(2)*cos(7*pi/16)
)

// idctFunc transforms a dequantized block in natural order and writes the
// level-shifted 8x8 samples at out[offset:] with the given row stride.
// The block is used as scratch space.
type idctFunc func(blk *[64]int32, out []uint16, offset, stride, precision int)

// level returns the level shift and the largest sample value for a precision.
func level(precision int) (center, maxv int32) {
	return 1 << (precision - 1), 1<<precision - 1
}

// clampSample clamps x to [0, maxv].
func clampSample(x, maxv int32) uint16 {
	if x < 0 {
		return 0
	}

	if x > maxv {
		return uint16(maxv)
	}

	return uint16(x)
}

// idctScalar performs a full 8x8 2D IDCT, rows first.
func idctScalar(blk *[64]int32, out []uint16, offset, stride, precision int) {
	for i := 0; i < 64; i += 8 {
		rowIdct(blk, i)
	}

	center, maxv := level(precision)
	for i := 0; i < 8; i++ {
		colIdct(blk, i, out, offset+i, stride, 8, center, maxv)
	}
}

// idctPartial transforms a block overhanging the plane edge, writing only the
// top-left w x h samples.
func idctPartial(blk *[64]int32, out []uint16, offset, stride, w, h, precision int) {
	for i := 0; i < 64; i += 8 {
		rowIdct(blk, i)
	}

	center, maxv := level(precision)
	for i := 0; i < w; i++ {
		colIdct(blk, i, out, offset+i, stride, h, center, maxv)
	}
}

// pass holds the fixed-point scaling of one IDCT pass.
type pass struct {
	in    int32 // Fraction bits given to coefficients 0 and 4.
	bias  int32 // Rounding for the final shift, added to coefficient 0.
	round int32 // Rounding for the stage shift.
	shift int32 // Right shift applied after the odd and even part products.
}

var (
	rowPass = pass{in: 11, bias: 128}
	colPass = pass{in: 8, bias: 8192, round: 4, shift: 3}
)

// transform8 is the 8-point butterfly shared by both passes. The outputs keep
// the pass scaling and are shifted down by the caller.
func transform8(v *[8]int32, p pass) {
	x0 := (v[0] << p.in) + p.bias
	x1 := v[4] << p.in
	x2, x3, x4, x5, x6, x7 := v[6], v[2], v[1], v[7], v[5], v[3]

	// Odd part
	x8 := w7*(x4+x5) + p.round
	x4 = (x8 + (w1-w7)*x4) >> p.shift
	x5 = (x8 - (w1+w7)*x5) >> p.shift
	x8 = w3*(x6+x7) + p.round
	x6 = (x8 - (w3-w5)*x6) >> p.shift
	x7 = (x8 - (w3+w5)*x7) >> p.shift

	// Even part
	x8 = x0 + x1
	x0 -= x1
	x1 = w6*(x3+x2) + p.round
	x2 = (x1 - (w2+w6)*x2) >> p.shift
	x3 = (x1 + (w2-w6)*x3) >> p.shift

	x1, x4 = x4+x6, x4-x6
	x6, x5 = x5+x7, x5-x7
	x7, x8 = x8+x3, x8-x3
	x3, x0 = x0+x2, x0-x2

	// 181/256 approximates 1/sqrt(2).
	x2 = (181*(x4+x5) + 128) >> 8
	x4 = (181*(x4-x5) + 128) >> 8

	*v = [8]int32{x7 + x1, x3 + x2, x0 + x4, x8 + x6, x8 - x6, x0 - x4, x3 - x2, x7 - x1}
}

// rowIdct transforms the row starting at blk[offset] in place.
func rowIdct(blk *[64]int32, offset int) {
	b := (*[8]int32)(blk[offset : offset+8])

	if b[1]|b[2]|b[3]|b[4]|b[5]|b[6]|b[7] == 0 {
		dc := b[0] << 3
		*b = [8]int32{dc, dc, dc, dc, dc, dc, dc, dc}

		return
	}

	transform8(b, rowPass)

	for i := range b {
		b[i] >>= 8
	}
}

// colIdct transforms column col and writes its first rows samples.
func colIdct(blk *[64]int32, col int, out []uint16, offset, stride, rows int, center, maxv int32) {
	out = out[offset:]

	var v [8]int32
	for k := range v {
		v[k] = blk[col+8*k]
	}

	if v[1]|v[2]|v[3]|v[4]|v[5]|v[6]|v[7] == 0 {
		s := clampSample(((v[0]+32)>>6)+center, maxv)
		for i := 0; i < rows; i++ {
			out[i*stride] = s
		}

		return
	}

	transform8(&v, colPass)

	for i := 0; i < rows; i++ {
		out[i*stride] = clampSample((v[i]>>14)+center, maxv)
	}
}
