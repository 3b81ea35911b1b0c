package jpegx

import (
	"sync"
	"time"

	"golang.org/x/sys/cpu"
)

// lanes holds one value per row, or per column, of a block.
type lanes [8]int32

// vectorUnits reports whether the CPU has wide integer vector units.
var vectorUnits = cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD

// lanesFaster times both transforms once and reports whether idctLanes won.
// The compiler does not always vectorize the lane loops, in which case the
// scalar transform is quicker.
var lanesFaster = sync.OnceValue(func() bool {
	return timeIDCT(idctLanes) < timeIDCT(idctScalar)
})

// timeIDCT returns the best of three timings of a batch of full transforms.
func timeIDCT(fn idctFunc) time.Duration {
	const rounds, batch = 3, 256

	var out [64]uint16

	best := time.Duration(1<<63 - 1)
	for range rounds {
		start := time.Now()
		for i := range batch {
			var blk [64]int32
			for k := range 10 {
				blk[zz[k]] = int32((i+k)%31 - 15)
			}

			fn(&blk, out[:], 0, 8, 8)
		}

		best = min(best, time.Since(start))
	}

	return best
}

// selectIDCT returns the transform used for full blocks. The lane-parallel
// transform is chosen only on CPUs with vector units where it measured faster.
func selectIDCT(scalar bool) idctFunc {
	if !scalar && vectorUnits && lanesFaster() {
		return idctLanes
	}

	return idctScalar
}

// idctLanes computes the same transform as idctScalar, but each butterfly
// stage runs over eight rows (then eight columns) at once. The DC-only
// shortcuts of the scalar path are exact, so the output is identical.
func idctLanes(blk *[64]int32, out []uint16, offset, stride, precision int) {
	var v, u [8]lanes

	// v[k][r] is coefficient k of row r.
	for r := 0; r < 8; r++ {
		for k := 0; k < 8; k++ {
			v[k][r] = blk[r*8+k]
		}
	}

	rowLanes(&v)

	// u[j][c] is row j of column c.
	for c := 0; c < 8; c++ {
		for j := 0; j < 8; j++ {
			u[j][c] = v[c][j]
		}
	}

	colLanes(&u)

	center, maxv := level(precision)
	out = out[offset:]
	_ = out[7*stride+7]

	for k := 0; k < 8; k++ {
		row := out[k*stride : k*stride+8]
		for c := range row {
			row[c] = clampSample((u[k][c]>>14)+center, maxv)
		}
	}
}

// rowLanes is the row pass of rowIdct over all rows.
func rowLanes(v *[8]lanes) {
	var x0, x1, x2, x3, x4, x5, x6, x7, x8 lanes

	for i := range 8 {
		x0[i] = (v[0][i] << 11) + 128
		x1[i] = v[4][i] << 11
		x2[i] = v[6][i]
		x3[i] = v[2][i]
		x4[i] = v[1][i]
		x5[i] = v[7][i]
		x6[i] = v[5][i]
		x7[i] = v[3][i]
	}

	// Stage 1
	for i := range 8 {
		x8[i] = w7 * (x4[i] + x5[i])
		x4[i] = x8[i] + (w1-w7)*x4[i]
		x5[i] = x8[i] - (w1+w7)*x5[i]
		x8[i] = w3 * (x6[i] + x7[i])
		x6[i] = x8[i] - (w3-w5)*x6[i]
		x7[i] = x8[i] - (w3+w5)*x7[i]
	}

	// Stage 2
	for i := range 8 {
		x8[i] = x0[i] + x1[i]
		x0[i] -= x1[i]
		x1[i] = w6 * (x3[i] + x2[i])
		x2[i] = x1[i] - (w2+w6)*x2[i]
		x3[i] = x1[i] + (w2-w6)*x3[i]
	}

	butterflyTail(&x0, &x1, &x2, &x3, &x4, &x5, &x6, &x7, &x8)

	for i := range 8 {
		v[0][i] = (x7[i] + x1[i]) >> 8
		v[1][i] = (x3[i] + x2[i]) >> 8
		v[2][i] = (x0[i] + x4[i]) >> 8
		v[3][i] = (x8[i] + x6[i]) >> 8
		v[4][i] = (x8[i] - x6[i]) >> 8
		v[5][i] = (x0[i] - x4[i]) >> 8
		v[6][i] = (x3[i] - x2[i]) >> 8
		v[7][i] = (x7[i] - x1[i]) >> 8
	}
}

// colLanes is the column pass of colIdct over all columns. Results are left
// unshifted by the final 14 bits.
func colLanes(u *[8]lanes) {
	var x0, x1, x2, x3, x4, x5, x6, x7, x8 lanes

	for i := range 8 {
		x0[i] = (u[0][i] << 8) + 8192
		x1[i] = u[4][i] << 8
		x2[i] = u[6][i]
		x3[i] = u[2][i]
		x4[i] = u[1][i]
		x5[i] = u[7][i]
		x6[i] = u[5][i]
		x7[i] = u[3][i]
	}

	// Stage 1
	for i := range 8 {
		x8[i] = w7*(x4[i]+x5[i]) + 4
		x4[i] = (x8[i] + (w1-w7)*x4[i]) >> 3
		x5[i] = (x8[i] - (w1+w7)*x5[i]) >> 3
		x8[i] = w3*(x6[i]+x7[i]) + 4
		x6[i] = (x8[i] - (w3-w5)*x6[i]) >> 3
		x7[i] = (x8[i] - (w3+w5)*x7[i]) >> 3
	}

	// Stage 2
	for i := range 8 {
		x8[i] = x0[i] + x1[i]
		x0[i] -= x1[i]
		x1[i] = w6*(x3[i]+x2[i]) + 4
		x2[i] = (x1[i] - (w2+w6)*x2[i]) >> 3
		x3[i] = (x1[i] + (w2-w6)*x3[i]) >> 3
	}

	butterflyTail(&x0, &x1, &x2, &x3, &x4, &x5, &x6, &x7, &x8)

	for i := range 8 {
		u[0][i] = x7[i] + x1[i]
		u[1][i] = x3[i] + x2[i]
		u[2][i] = x0[i] + x4[i]
		u[3][i] = x8[i] + x6[i]
		u[4][i] = x8[i] - x6[i]
		u[5][i] = x0[i] - x4[i]
		u[6][i] = x3[i] - x2[i]
		u[7][i] = x7[i] - x1[i]
	}
}

// butterflyTail runs stages 3 and 4 and the rotation, shared by both passes.
func butterflyTail(x0, x1, x2, x3, x4, x5, x6, x7, x8 *lanes) {
	for i := range 8 {
		// Stage 3
		x1[i] = x4[i] + x6[i]
		x4[i] -= x6[i]
		x6[i] = x5[i] + x7[i]
		x5[i] -= x7[i]

		// Stage 4
		x7[i] = x8[i] + x3[i]
		x8[i] -= x3[i]
		x3[i] = x0[i] + x2[i]
		x0[i] -= x2[i]

		// Rotation stage
		x2[i] = (181*(x4[i]+x5[i]) + 128) >> 8
		x4[i] = (181*(x4[i]-x5[i]) + 128) >> 8
	}
}
