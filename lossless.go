package jpegx

// Lossless predictive decoding, ITU-T T.81 Annex H.

// decodeLossless decodes a Huffman-coded lossless scan sample by sample.
func (d *decoder) decodeLossless(s *scan) {
	f := d.frame
	pt := s.pointTransform()
	initial := 1 << (f.precision - pt - 1)

	for i := range s.comps {
		s.comps[i].firstRow = 0
		s.comps[i].resetPending = true
	}

	rst := restartState{interval: d.restartInterval, left: d.restartInterval}
	total := s.mcusX * s.mcusY

	for mcu := 0; mcu < total; mcu++ {
		mx, my := mcu%s.mcusX, mcu/s.mcusX

		if !s.interleaved {
			d.decodeSample(&s.comps[0], s.predictor(), initial, mx, my)
		} else {
			for i := range s.comps {
				sc := &s.comps[i]
				c := sc.comp

				for y := 0; y < c.v; y++ {
					for x := 0; x < c.h; x++ {
						d.decodeSample(sc, s.predictor(), initial, mx*c.h+x, my*c.v+y)
					}
				}
			}
		}

		if d.restartDue(&rst, mcu, total) {
			d.restart(s, &rst)

			// The samples after a restart are predicted as if they start a new image.
			next := mcu + 1
			for i := range s.comps {
				sc := &s.comps[i]
				if s.interleaved {
					sc.firstRow = (next / s.mcusX) * sc.comp.v
				} else {
					sc.firstRow = next / s.mcusX
				}
			}
		}
	}

	if pt == 0 {
		return
	}

	for i := range s.comps {
		pix := s.comps[i].comp.pix
		for j := range pix {
			pix[j] <<= pt
		}
	}
}

// decodeSample decodes the difference for sample (x, y) and stores the
// reconstructed value.
func (d *decoder) decodeSample(sc *scanComponent, predictor, initial, x, y int) {
	c := sc.comp

	diff := d.receiveExtend(int(d.decodeHuffman(sc.dc)))
	p := sc.predict(x, y, predictor, initial)

	c.pix[y*c.stride+x] = uint16(p + diff)
}

// predict returns the prediction for sample (x, y). The first sample after
// the start of the scan or a restart uses the initial value, the rest of that
// row predicts from the left and the first column predicts from above.
func (sc *scanComponent) predict(x, y, predictor, initial int) int {
	if sc.resetPending {
		sc.resetPending = false

		return initial
	}

	c := sc.comp
	i := y*c.stride + x

	switch {
	case y == sc.firstRow && x == 0:
		return initial
	case y == sc.firstRow:
		return int(c.pix[i-1])
	case x == 0:
		return int(c.pix[i-c.stride])
	}

	ra := int(c.pix[i-1])          // left
	rb := int(c.pix[i-c.stride])   // above
	rc := int(c.pix[i-c.stride-1]) // above-left

	switch predictor {
	case 1:
		return ra
	case 2:
		return rb
	case 3:
		return rc
	case 4:
		return ra + rb - rc
	case 5:
		return ra + (rb-rc)>>1
	case 6:
		return rb + (ra-rc)>>1
	case 7:
		return (ra + rb) >> 1
	}

	return initial
}
