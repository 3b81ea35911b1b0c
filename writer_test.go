package jpegx

import (
	"bytes"
	"math/rand"
)

// A minimal JPEG writer used to build test streams the standard library
// encoder cannot produce: extended and lossless frames, arithmetic coding,
// restart intervals and hand-picked coefficients.

func segment(m byte, payload ...byte) []byte {
	n := len(payload) + 2

	return append([]byte{0xFF, m, byte(n >> 8), byte(n)}, payload...)
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

var (
	soiBytes = []byte{0xFF, markerSOI}
	eoiBytes = []byte{0xFF, markerEOI}
)

// testComponent describes a frame component and its scan table selectors.
type testComponent struct {
	id, h, v, tq int
	td, ta       int
}

func sofSegment(m byte, precision, width, height int, comps ...testComponent) []byte {
	p := []byte{byte(precision), byte(height >> 8), byte(height), byte(width >> 8), byte(width), byte(len(comps))}
	for _, c := range comps {
		p = append(p, byte(c.id), byte(c.h<<4|c.v), byte(c.tq))
	}

	return segment(m, p...)
}

func sosSegment(comps []testComponent, ss, se, ah, al int) []byte {
	p := []byte{byte(len(comps))}
	for _, c := range comps {
		p = append(p, byte(c.id), byte(c.td<<4|c.ta))
	}

	return segment(markerSOS, append(p, byte(ss), byte(se), byte(ah<<4|al))...)
}

// dqtSegment writes table id with values given in zigzag order.
func dqtSegment(id int, q [64]uint16, wide bool) []byte {
	if !wide {
		p := []byte{byte(id)}
		for _, v := range q {
			p = append(p, byte(v))
		}

		return segment(markerDQT, p...)
	}

	p := []byte{byte(1<<4 | id)}
	for _, v := range q {
		p = append(p, byte(v>>8), byte(v))
	}

	return segment(markerDQT, p...)
}

func driSegment(n int) []byte {
	return segment(markerDRI, byte(n>>8), byte(n))
}

// huffSpec is a DHT table body: code counts per length and symbols.
type huffSpec struct {
	counts  [16]uint8
	symbols []uint8
}

func dhtSegment(class, id int, h huffSpec) []byte {
	p := append([]byte{byte(class<<4 | id)}, h.counts[:]...)

	return segment(markerDHT, append(p, h.symbols...)...)
}

// huffCode is a canonical code as written by an encoder.
type huffCode struct {
	code   uint32
	length int
}

// codes assigns canonical codes in the same order as huffmanTable.build.
func (h huffSpec) codes() [256]huffCode {
	var out [256]huffCode

	code, k := uint32(0), 0
	for length := 1; length <= 16; length++ {
		for i := 0; i < int(h.counts[length-1]); i++ {
			out[h.symbols[k]] = huffCode{code: code, length: length}
			code++
			k++
		}

		code <<= 1
	}

	return out
}

// flatSpec assigns 5-bit codes to the categories 0..last.
func flatSpec(last int) huffSpec {
	h := huffSpec{}
	for s := 0; s <= last; s++ {
		h.symbols = append(h.symbols, uint8(s))
	}

	h.counts[4] = uint8(last + 1)

	return h
}

var (
	dcSpec       = flatSpec(15)
	losslessSpec = flatSpec(16)
)

// acSpec covers every run/size symbol. EOB and 0x01 get 2-bit codes, the
// rest 9-bit codes, which exercises the extension tables.
var acSpec = func() huffSpec {
	h := huffSpec{symbols: []uint8{0x00, 0x01, 0xF0}}
	for r := 0; r < 16; r++ {
		for s := 1; s < 16; s++ {
			if rs := uint8(r<<4 | s); rs != 0x01 {
				h.symbols = append(h.symbols, rs)
			}
		}
	}

	h.counts[1] = 2
	h.counts[8] = uint8(len(h.symbols) - 2)

	return h
}()

// stdDCLuminance is the example DC table of ITU-T T.81 Annex K.
var stdDCLuminance = huffSpec{
	counts:  [16]uint8{0, 1, 5, 1, 1, 1, 1, 1, 1},
	symbols: []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
}

// bitWriter packs bits MSB first with 0xFF stuffing.
type bitWriter struct {
	out []byte
	acc uint32
	n   int
}

func (w *bitWriter) write(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.acc = w.acc<<1 | (v>>i)&1
		w.n++

		if w.n == 8 {
			w.out = append(w.out, byte(w.acc))
			if byte(w.acc) == 0xFF {
				w.out = append(w.out, 0x00)
			}

			w.acc, w.n = 0, 0
		}
	}
}

// flush pads the last byte with ones.
func (w *bitWriter) flush() {
	for w.n != 0 {
		w.write(1, 1)
	}
}

// category returns the magnitude category of v and its extra bits.
func category(v int) (int, uint32) {
	a := v
	if a < 0 {
		a = -a
	}

	s := 0
	for a > 0 {
		s++
		a >>= 1
	}

	if v < 0 {
		v += 1<<s - 1
	}

	return s, uint32(v)
}

// entropyCoder writes the data units of one scan.
type entropyCoder interface {
	block(ci int, coef *[64]int32)
	restart(n int)
	bytes() []byte
}

// huffCoder encodes sequential blocks with one DC and one AC table. With
// dcOnly set it writes a progressive DC first scan instead.
type huffCoder struct {
	w      bitWriter
	dc, ac [256]huffCode
	pred   []int32
	dcOnly bool
}

func newHuffCoder(ncomp int) *huffCoder {
	return &huffCoder{dc: dcSpec.codes(), ac: acSpec.codes(), pred: make([]int32, ncomp)}
}

func (e *huffCoder) emit(c huffCode) {
	e.w.write(c.code, c.length)
}

func (e *huffCoder) block(ci int, coef *[64]int32) {
	diff := coef[0] - e.pred[ci]
	e.pred[ci] = coef[0]

	s, bits := category(int(diff))
	e.emit(e.dc[s])
	e.w.write(bits, s)

	if e.dcOnly {
		return
	}

	run := 0
	for k := 1; k < 64; k++ {
		if coef[k] == 0 {
			run++

			continue
		}

		for run > 15 {
			e.emit(e.ac[0xF0])
			run -= 16
		}

		s, bits := category(int(coef[k]))
		e.emit(e.ac[run<<4|s])
		e.w.write(bits, s)
		run = 0
	}

	if run > 0 {
		e.emit(e.ac[0x00])
	}
}

func (e *huffCoder) restart(n int) {
	e.w.flush()
	e.w.out = append(e.w.out, 0xFF, byte(markerRST0+n))

	for i := range e.pred {
		e.pred[i] = 0
	}
}

func (e *huffCoder) bytes() []byte {
	e.w.flush()

	return e.w.out
}

// arithEncoder is a QM encoder (ITU-T T.81 D.1).
type arithEncoder struct {
	c, a uint32
	ct   int
	out  []byte
}

func newArithEncoder() *arithEncoder {
	return &arithEncoder{a: 0x10000, ct: 11}
}

func (e *arithEncoder) encode(b *bin, bit int) {
	q := &qeTable[b.state]
	qe := uint32(q.qe)

	e.a -= qe

	if bit != int(b.mps) {
		if e.a >= qe {
			e.c += e.a
			e.a = qe
		}

		b.lps(q)
	} else {
		if e.a >= 0x8000 {
			return
		}

		if e.a < qe {
			e.c += e.a
			e.a = qe
		}

		b.mpsPath(q)
	}

	for e.a < 0x8000 {
		e.a <<= 1
		e.c <<= 1
		e.ct--

		if e.ct == 0 {
			e.byteOut()
			e.ct = 8
		}
	}
}

// byteOut moves the top byte of c to the output, propagating any carry.
func (e *arithEncoder) byteOut() {
	t := e.c >> 19
	if t > 0xFF {
		for i := len(e.out) - 1; i >= 0; i-- {
			e.out[i]++
			if e.out[i] != 0 {
				break
			}
		}
	}

	e.out = append(e.out, byte(t))
	e.c &= 0x7FFFF
}

// finish flushes the encoder and returns the stuffed segment.
func (e *arithEncoder) finish() []byte {
	if t := (e.a - 1 + e.c) & 0xFFFF0000; t < e.c {
		e.c = t + 0x8000
	} else {
		e.c = t
	}

	e.c <<= e.ct
	e.byteOut()
	e.out = append(e.out, byte(e.c>>11))

	var out []byte
	for _, b := range e.out {
		out = append(out, b)
		if b == 0xFF {
			out = append(out, 0x00)
		}
	}

	return out
}

// arithCoder encodes sequential blocks (after libjpeg's jcarith).
type arithCoder struct {
	e       *arithEncoder
	out     []byte
	dcStats [dcBins]bin
	acStats [acBins]bin
	fixed   bin
	pred    []int32
	ctx     []int
	dc      dcConditioning
	kx      int
}

func newArithCoder(ncomp int) *arithCoder {
	return &arithCoder{
		e:    newArithEncoder(),
		pred: make([]int32, ncomp),
		ctx:  make([]int, ncomp),
		dc:   dcConditioning{lower: defaultDCLower, upper: defaultDCUpper},
		kx:   defaultACKx,
	}
}

func (e *arithCoder) fixedBit(bit int) {
	e.fixed = bin{state: fixedState}
	e.e.encode(&e.fixed, bit)
}

func (e *arithCoder) block(ci int, coef *[64]int32) {
	// DC
	st := e.ctx[ci]
	v := int(coef[0] - e.pred[ci])
	e.pred[ci] = coef[0]

	if v == 0 {
		e.e.encode(&e.dcStats[st], 0)
		e.ctx[ci] = 0
	} else {
		e.e.encode(&e.dcStats[st], 1)

		if v > 0 {
			e.e.encode(&e.dcStats[st+1], 0)
			st += 2
			e.ctx[ci] = 4
		} else {
			v = -v
			e.e.encode(&e.dcStats[st+1], 1)
			st += 3
			e.ctx[ci] = 8
		}

		st, m := e.magnitude(e.dcStats[:], st, 20, v-1)

		if m < (1<<e.dc.lower)>>1 {
			e.ctx[ci] = 0
		} else if m > (1<<e.dc.upper)>>1 {
			e.ctx[ci] += 8
		}

		e.bits(e.dcStats[:], st+14, m, v-1)
	}

	// AC
	ke := 63
	for ke > 0 && coef[ke] == 0 {
		ke--
	}

	k := 1
	for ; k <= ke; k++ {
		st := 3 * (k - 1)
		e.e.encode(&e.acStats[st], 0)

		for coef[k] == 0 {
			e.e.encode(&e.acStats[st+1], 0)
			st += 3
			k++
		}

		e.e.encode(&e.acStats[st+1], 1)

		v := int(coef[k])
		if v > 0 {
			e.fixedBit(0)
		} else {
			v = -v
			e.fixedBit(1)
		}

		st += 2
		x := 217
		if k <= e.kx {
			x = 189
		}

		st, m := e.acMagnitude(st, x, v-1)
		e.bits(e.acStats[:], st+14, m, v-1)
	}

	if k <= 63 {
		e.e.encode(&e.acStats[3*(k-1)], 1)
	}
}

// magnitude encodes the DC magnitude category of v (T.81 F.1.4.3.1.2).
func (e *arithCoder) magnitude(stats []bin, st, x, v int) (int, int) {
	m := 0
	if v != 0 {
		e.e.encode(&stats[st], 1)
		m = 1
		st = x

		for v2 := v >> 1; v2 != 0; v2 >>= 1 {
			e.e.encode(&stats[st], 1)
			m <<= 1
			st++
		}
	}

	e.e.encode(&stats[st], 0)

	return st, m
}

// acMagnitude encodes the AC magnitude category of v.
func (e *arithCoder) acMagnitude(st, x, v int) (int, int) {
	m := 0
	if v != 0 {
		e.e.encode(&e.acStats[st], 1)
		m = 1

		if v2 := v >> 1; v2 != 0 {
			e.e.encode(&e.acStats[st], 1)
			m <<= 1
			st = x

			for v2 >>= 1; v2 != 0; v2 >>= 1 {
				e.e.encode(&e.acStats[st], 1)
				m <<= 1
				st++
			}
		}
	}

	e.e.encode(&e.acStats[st], 0)

	return st, m
}

// bits encodes the bits of v below its leading one.
func (e *arithCoder) bits(stats []bin, st, m, v int) {
	for m >>= 1; m != 0; m >>= 1 {
		bit := 0
		if m&v != 0 {
			bit = 1
		}

		e.e.encode(&stats[st], bit)
	}
}

func (e *arithCoder) restart(n int) {
	e.out = append(e.out, e.e.finish()...)
	e.out = append(e.out, 0xFF, byte(markerRST0+n))

	e.e = newArithEncoder()
	e.dcStats = [dcBins]bin{}
	e.acStats = [acBins]bin{}

	for i := range e.pred {
		e.pred[i] = 0
		e.ctx[i] = 0
	}
}

func (e *arithCoder) bytes() []byte {
	return append(e.out, e.e.finish()...)
}

// testImage is a DCT frame with known quantized coefficients.
type testImage struct {
	width, height int
	precision     int
	comps         []testComponent
	quant         [64]uint16    // Zigzag order, shared by all components.
	blocks        [][][64]int32 // Per component, zigzag-ordered blocks covering whole MCUs.
	bx, by        []int         // Blocks across and down per component.
}

// newTestImage fills every block with random coefficients. DC values lie in
// [-4*span, 4*span]; each AC coefficient is nonzero with probability 1/every
// and lies in [-span, span].
func newTestImage(rng *rand.Rand, width, height, precision int, comps []testComponent, span, every int) *testImage {
	m := &testImage{width: width, height: height, precision: precision, comps: comps}

	for i := range m.quant {
		m.quant[i] = uint16(1 + i%4)
	}

	hmax, vmax := 1, 1
	for _, c := range comps {
		hmax, vmax = max(hmax, c.h), max(vmax, c.v)
	}

	mx, my := ceilDiv(width, 8*hmax), ceilDiv(height, 8*vmax)

	for _, c := range comps {
		bx, by := mx*c.h, my*c.v
		blocks := make([][64]int32, bx*by)

		for i := range blocks {
			blocks[i][0] = int32(rng.Intn(2*span*4+1) - span*4)
			for k := 1; k < 64; k++ {
				if rng.Intn(every) == 0 {
					blocks[i][k] = int32(rng.Intn(2*span+1) - span)
				}
			}
		}

		m.blocks = append(m.blocks, blocks)
		m.bx = append(m.bx, bx)
		m.by = append(m.by, by)
	}

	return m
}

// scan writes the entropy-coded data of one scan over the components listed
// in idx, in the order the decoder expects, with a restart marker every
// restart MCUs.
func (m *testImage) scan(coder entropyCoder, idx []int, restart int) []byte {
	hmax, vmax := 1, 1
	for _, c := range m.comps {
		hmax, vmax = max(hmax, c.h), max(vmax, c.v)
	}

	var mcusX, mcusY int
	if len(idx) == 1 {
		c := m.comps[idx[0]]
		mcusX = ceilDiv(ceilDiv(m.width*c.h, hmax), 8)
		mcusY = ceilDiv(ceilDiv(m.height*c.v, vmax), 8)
	} else {
		mcusX, mcusY = ceilDiv(m.width, 8*hmax), ceilDiv(m.height, 8*vmax)
	}

	total := mcusX * mcusY
	rst := 0

	for mcu := 0; mcu < total; mcu++ {
		mx, my := mcu%mcusX, mcu/mcusX

		for si, ci := range idx {
			c := m.comps[ci]

			if len(idx) == 1 {
				coder.block(si, &m.blocks[ci][my*m.bx[ci]+mx])

				continue
			}

			for y := 0; y < c.v; y++ {
				for x := 0; x < c.h; x++ {
					coder.block(si, &m.blocks[ci][(my*c.v+y)*m.bx[ci]+mx*c.h+x])
				}
			}
		}

		if restart > 0 && (mcu+1)%restart == 0 && mcu+1 < total {
			coder.restart(rst)
			rst = (rst + 1) & 7
		}
	}

	return coder.bytes()
}

// tables returns the DQT and DHT segments for m.
func (m *testImage) tables() []byte {
	return join(
		dqtSegment(0, m.quant, false),
		dhtSegment(0, 0, dcSpec),
		dhtSegment(1, 0, acSpec),
	)
}

// encode writes a complete stream with a single interleaved scan.
func (m *testImage) encode(sof byte, arithmetic bool, restart int) []byte {
	idx := make([]int, len(m.comps))
	for i := range idx {
		idx[i] = i
	}

	var coder entropyCoder = newHuffCoder(len(idx))
	if arithmetic {
		coder = newArithCoder(len(idx))
	}

	parts := [][]byte{soiBytes, m.tables(), sofSegment(sof, m.precision, m.width, m.height, m.comps...)}
	if restart > 0 {
		parts = append(parts, driSegment(restart))
	}

	parts = append(parts, sosSegment(m.comps, 0, 63, 0, 0), m.scan(coder, idx, restart), eoiBytes)

	return join(parts...)
}

// expectedPlane transforms the known blocks of component ci the way the
// decoder does and returns the component samples.
func (m *testImage) expectedPlane(ci int) []uint16 {
	c := m.comps[ci]

	hmax, vmax := 1, 1
	for _, cc := range m.comps {
		hmax, vmax = max(hmax, cc.h), max(vmax, cc.v)
	}

	w, h := ceilDiv(m.width*c.h, hmax), ceilDiv(m.height*c.v, vmax)
	out := make([]uint16, w*h)

	for by := 0; by < ceilDiv(h, 8); by++ {
		for bx := 0; bx < ceilDiv(w, 8); bx++ {
			var blk [64]int32

			src := &m.blocks[ci][by*m.bx[ci]+bx]
			for k := 0; k < 64; k++ {
				blk[zz[k]] = src[k] * int32(m.quant[k])
			}

			bw, bh := min(8, w-bx*8), min(8, h-by*8)
			idctPartial(&blk, out, by*8*w+bx*8, w, bw, bh, m.precision)
		}
	}

	return out
}

// losslessImage is a lossless frame with known samples.
type losslessImage struct {
	width, height int
	precision     int
	pt            int
	predictor     int
	comps         []testComponent // All with 1x1 sampling.
	samples       [][]uint16      // Per component, already shifted left by pt.
}

func newLosslessImage(rng *rand.Rand, width, height, precision, pt, predictor int, comps []testComponent) *losslessImage {
	m := &losslessImage{width: width, height: height, precision: precision, pt: pt, predictor: predictor, comps: comps}

	for range comps {
		s := make([]uint16, width*height)
		base := rng.Intn(1 << precision)

		for i := range s {
			// Smooth gradients with noise keep differences in every category.
			v := (base + i%width*7 + i/width*3 + rng.Intn(64)) % (1 << precision)
			s[i] = uint16(v>>pt) << pt
		}

		m.samples = append(m.samples, s)
	}

	return m
}

// encode writes a complete lossless stream with one interleaved scan.
func (m *losslessImage) encode(restart int) []byte {
	w := &bitWriter{}
	codes := losslessSpec.codes()
	initial := 1 << (m.precision - m.pt - 1)

	total := m.width * m.height
	rst := 0
	firstRow, reset := 0, true

	for i := 0; i < total; i++ {
		x, y := i%m.width, i/m.width

		for ci := range m.comps {
			px := func(x, y int) int { return int(m.samples[ci][y*m.width+x] >> m.pt) }

			var p int
			switch {
			case reset, y == firstRow && x == 0:
				p = initial
			case y == firstRow:
				p = px(x-1, y)
			case x == 0:
				p = px(x, y-1)
			default:
				ra, rb, rc := px(x-1, y), px(x, y-1), px(x-1, y-1)

				switch m.predictor {
				case 0:
					p = initial
				case 1:
					p = ra
				case 2:
					p = rb
				case 3:
					p = rc
				case 4:
					p = ra + rb - rc
				case 5:
					p = ra + (rb-rc)>>1
				case 6:
					p = rb + (ra-rc)>>1
				case 7:
					p = (ra + rb) >> 1
				}
			}

			d := (px(x, y) - p) & 0xFFFF
			if d >= 0x8000 {
				d -= 0x10000
			}

			if d == -0x8000 {
				w.write(codes[16].code, codes[16].length)
			} else {
				s, bits := category(d)
				w.write(codes[s].code, codes[s].length)
				w.write(bits, s)
			}
		}

		reset = false

		if restart > 0 && (i+1)%restart == 0 && i+1 < total {
			w.flush()
			w.out = append(w.out, 0xFF, byte(markerRST0+rst))
			rst = (rst + 1) & 7
			reset = true
			firstRow = (i + 1) / m.width
		}
	}

	w.flush()

	parts := [][]byte{
		soiBytes,
		dhtSegment(0, 0, losslessSpec),
		sofSegment(markerSOF3, m.precision, m.width, m.height, m.comps...),
	}
	if restart > 0 {
		parts = append(parts, driSegment(restart))
	}

	parts = append(parts, sosSegment(m.comps, m.predictor, 0, 0, m.pt), w.out, eoiBytes)

	return join(parts...)
}
