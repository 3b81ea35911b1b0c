package jpegx

// Block decode engine

// selectStrategy picks the scan decoding routine for the frame.
func selectStrategy(f *frame) strategy {
	switch {
	case f.kind == frameProgressive:
		return progressiveSkip
	case f.kind == frameLossless:
		return huffmanLossless
	case f.arithmetic:
		return arithmeticSequential
	}

	return huffmanSequential
}

// blockDecoder entropy-decodes and dequantizes one data unit into sc.block.
type blockDecoder func(sc *scanComponent)

// restartState tracks the restart interval countdown within a scan.
type restartState struct {
	interval int // MCUs between restart markers, zero when disabled.
	left     int // MCUs left in the current interval.
	next     int // Expected restart marker index, 0-7.
}

// decodeSequential walks the MCUs of a sequential DCT scan in raster order,
// decoding and transforming every data unit.
func (d *decoder) decodeSequential(s *scan, decodeBlock blockDecoder) {
	for i := range s.comps {
		s.comps[i].dcPred = 0
	}

	rst := restartState{interval: d.restartInterval, left: d.restartInterval}
	total := s.mcusX * s.mcusY

	for mcu := 0; mcu < total; mcu++ {
		mx, my := mcu%s.mcusX, mcu/s.mcusX

		if !s.interleaved {
			sc := &s.comps[0]
			decodeBlock(sc)
			d.outputBlock(sc, mx, my)
		} else {
			for i := range s.comps {
				sc := &s.comps[i]
				c := sc.comp

				for y := 0; y < c.v; y++ {
					for x := 0; x < c.h; x++ {
						decodeBlock(sc)
						d.outputBlock(sc, mx*c.h+x, my*c.v+y)
					}
				}
			}
		}

		if d.restartDue(&rst, mcu, total) {
			d.restart(s, &rst)
		}
	}
}

// restartDue reports whether a restart marker follows the MCU just decoded.
func (d *decoder) restartDue(rst *restartState, mcu, total int) bool {
	if rst.interval == 0 || mcu+1 == total {
		return false
	}

	rst.left--

	return rst.left == 0
}

// restart locates the next restart marker and resets the entropy decoder
// and prediction state. A marker with an unexpected index is accepted; a
// missing marker leaves the decoder reading zeros until the scan ends.
func (d *decoder) restart(s *scan, rst *restartState) {
	rst.left = rst.interval

	if s.strategy != arithmeticSequential {
		d.settleFill()
	}

	d.bits = bitstream{}

	p := d.r.pos
	data := d.r.data
	for p+1 < len(data) && (data[p] != 0xFF || data[p+1] == 0x00 || data[p+1] == 0xFF) {
		p++
	}

	if p+1 >= len(data) {
		d.panic(ErrUnexpectedEnd)
	}

	if m := data[p+1]; isRST(m) {
		if n := int(m - markerRST0); n != rst.next {
			d.log.Warn("restart marker out of sequence", "expected", rst.next, "found", n)
			rst.next = n
		}

		d.r.seek(p + 2)
	} else {
		d.log.Warn("missing restart marker", "expected", rst.next, "marker", m)
		d.r.seek(p)
	}

	rst.next = (rst.next + 1) & 7

	for i := range s.comps {
		sc := &s.comps[i]
		sc.dcPred = 0
		sc.resetPending = true
	}

	if s.strategy == arithmeticSequential {
		d.resetArithmetic(s)
	}
}

// outputBlock transforms sc.block into the sample plane at block (bx, by).
// Blocks wholly outside the component are dropped; blocks overhanging the
// right or bottom edge are transformed partially.
func (d *decoder) outputBlock(sc *scanComponent, bx, by int) {
	c := sc.comp
	x0, y0 := bx*8, by*8

	if x0 >= c.width || y0 >= c.height {
		return
	}

	offset := y0*c.stride + x0
	w, h := min(8, c.width-x0), min(8, c.height-y0)

	if w == 8 && h == 8 {
		d.idct(&sc.block, c.pix, offset, c.stride, d.frame.precision)
	} else {
		idctPartial(&sc.block, c.pix, offset, c.stride, w, h, d.frame.precision)
	}
}

// decodeHuffmanBlock decodes a Huffman-coded sequential block (T.81 F.2.2).
func (d *decoder) decodeHuffmanBlock(sc *scanComponent) {
	blk := &sc.block
	*blk = [64]int32{}
	q := &sc.quant.values

	sc.dcPred += d.receiveExtend(int(d.decodeHuffman(sc.dc)))
	blk[0] = int32(sc.dcPred) * q[0]

	for k := 1; k < 64; {
		rs := d.decodeHuffman(sc.ac)
		r, s := int(rs>>4), int(rs&15)

		if s == 0 {
			if r != 15 {
				break // End of block.
			}

			k += 16

			continue
		}

		k += r
		if k > 63 {
			d.log.Warn("AC coefficient index overflow", "component", sc.comp.id)

			return
		}

		blk[zz[k]] = int32(d.receiveExtend(s)) * q[zz[k]]
		k++
	}
}

// decodeArithmeticBlock decodes an arithmetic-coded sequential block (T.81 F.2.4).
func (d *decoder) decodeArithmeticBlock(sc *scanComponent) {
	blk := &sc.block
	*blk = [64]int32{}
	q := &sc.quant.values

	// DC difference, context-conditioned on the previous difference.
	stats := &d.dcStats[sc.td]
	st := sc.dcContext

	if d.decodeBin(&stats[st]) == 0 {
		sc.dcContext = 0
	} else {
		sign := d.decodeBin(&stats[st+1])
		st += 2 + sign

		m := d.decodeBin(&stats[st])
		if m != 0 {
			st = 20
			for d.decodeBin(&stats[st]) != 0 {
				m <<= 1
				if m == 0x8000 {
					d.panic(ErrArithmeticOverflow)
				}

				st++
			}
		}

		cond := &d.tables.dcArith[sc.td]
		switch {
		case m < (1<<cond.lower)>>1:
			sc.dcContext = 0
		case m > (1<<cond.upper)>>1:
			sc.dcContext = 12 + sign*4
		default:
			sc.dcContext = 4 + sign*4
		}

		sc.dcPred += d.decodeMagnitude(stats[:], st+14, m, sign)
	}

	blk[0] = int32(sc.dcPred) * q[0]

	// AC coefficients.
	ac := &d.acStats[sc.ta]
	kx := d.tables.acArith[sc.ta].kx

	for k := 1; k <= 63; k++ {
		st := 3 * (k - 1)
		if d.decodeBin(&ac[st]) != 0 {
			break // End of block.
		}

		for d.decodeBin(&ac[st+1]) == 0 {
			st += 3
			k++

			if k > 63 {
				d.log.Warn("AC coefficient index overflow", "component", sc.comp.id)

				return
			}
		}

		sign := d.decodeFixed()
		st += 2

		m := d.decodeBin(&ac[st])
		if m != 0 && d.decodeBin(&ac[st]) != 0 {
			m <<= 1
			st = 217
			if k <= kx {
				st = 189
			}

			for d.decodeBin(&ac[st]) != 0 {
				m <<= 1
				if m == 0x8000 {
					d.panic(ErrArithmeticOverflow)
				}

				st++
			}
		}

		blk[zz[k]] = int32(d.decodeMagnitude(ac[:], st+14, m, sign)) * q[zz[k]]
	}
}

// decodeMagnitude reads the bits below the leading one of magnitude category
// m from bins starting at st and returns the signed value.
func (d *decoder) decodeMagnitude(stats []bin, st, m, sign int) int {
	v := m
	for m >>= 1; m != 0; m >>= 1 {
		if d.decodeBin(&stats[st]) != 0 {
			v |= m
		}
	}

	v++
	if sign != 0 {
		v = -v
	}

	return v
}

// skipProgressive validates nothing further and moves past the entropy-coded
// data of a progressive scan. Coefficients are not decoded.
func (d *decoder) skipProgressive(s *scan) {
	for i := range s.comps {
		c := s.comps[i].comp
		if c.coeffs == nil {
			bx, by := d.frame.mcusX*c.h, d.frame.mcusY*c.v
			c.coeffs = make([]int32, bx*by*64)
		}
	}

	p := d.r.nextMarker(d.r.pos)
	if p < 0 {
		d.panic(ErrUnexpectedEnd)
	}

	d.r.seek(p)
}
