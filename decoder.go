package jpegx

import (
	"fmt"
	"log/slog"
	"runtime"
)

// maxSamples bounds the total number of samples a frame may allocate.
const maxSamples = 1 << 30

// decoder holds the state of the JPEG decoding process.
type decoder struct {
	r      reader     // Cursor over the input buffer.
	bits   bitstream  // Huffman bit buffer.
	arith  arithDecoder
	tables tableStore // Tables installed by DQT, DHT and DAC.

	overrun   int  // Zero bits consumed past the end of the current scan's data.
	truncated bool // Whether a premature end has been logged.

	dcStats [4][dcBins]bin // Arithmetic statistics, one set per conditioning table.
	acStats [4][acBins]bin
	fixed   bin

	frame           *frame
	scans           int // Number of scans decoded so far.
	restartInterval int // Restart interval in MCUs, zero when disabled.

	jfif        jfifInfo
	adobe       adobeInfo
	orientation int // EXIF orientation tag (1-8).

	format     PixelFormat    // Requested output format.
	upsample   UpsampleMethod // The upsampling method to use.
	autoRotate bool           // Whether to auto-rotate based on EXIF orientation.
	log        *slog.Logger
	idct       idctFunc
}

// newDecoder creates a new decoder with the default options.
func newDecoder() *decoder {
	d := new(decoder)
	d.reset()

	return d
}

// reset clears the decoder state for reuse, keeping the allocated table storage.
func (d *decoder) reset() {
	tables := d.tables

	*d = decoder{tables: tables}

	d.tables.reset()
	d.log = discardLogger
	d.idct = selectIDCT(false)
}

// configure applies caller options.
func (d *decoder) configure(o *Options) {
	if o == nil {
		return
	}

	d.format = o.Format
	d.upsample = o.UpsampleMethod
	d.autoRotate = o.AutoRotate
	d.idct = selectIDCT(o.Scalar)

	if o.Logger != nil {
		d.log = o.Logger
	}
}

// panic triggers an internal panic to signal a decoding error in the hot path.
func (d *decoder) panic(err error) {
	panic(errDecode{err})
}

// recoverDecode converts a hot-path panic into an error. Runtime errors are not ours and are re-raised.
func recoverDecode(err *error) {
	r := recover()
	if r == nil {
		return
	}

	if e, ok := r.(errDecode); ok {
		*err = e.error

		return
	}

	if _, ok := r.(runtime.Error); ok {
		panic(r)
	}

	*err = fmt.Errorf("%v: %w", r, ErrInternal)
}

// decode parses the stream from SOI to EOI. With configOnly set it stops after
// the frame header and returns a nil image.
func (d *decoder) decode(data []byte, configOnly bool) (*Image, error) {
	if len(data) < 4 {
		return nil, ErrDataTooSmall
	}

	if data[0] != 0xFF || data[1] != markerSOI || data[2] != 0xFF || data[3] == 0x00 || data[3] == markerSOI {
		return nil, ErrNoSOIMarker
	}

	d.r.init(data)
	_ = d.r.skip(2)

	eoi := false
	for !eoi && d.r.size >= 2 {
		if d.r.u8(0) != 0xFF {
			_ = d.r.skip(1)

			continue
		}

		m := byte(d.r.u8(1))

		var err error
		switch {
		case m == 0xFF || m == 0x00:
			// Fill byte, or stray stuffing left after a scan.
			_ = d.r.skip(1)

			continue
		case m == markerEOI:
			_ = d.r.skip(2)
			eoi = true

			continue
		case isRST(m):
			_ = d.r.skip(2)

			continue
		}

		if err = d.r.skip(2); err != nil {
			return nil, err
		}

		switch {
		case isSOF(m):
			err = d.decodeSOF(m)
			if err == nil && configOnly {
				return nil, nil
			}
		case m == markerDHT:
			err = d.decodeDHT()
		case m == markerDQT:
			err = d.decodeDQT()
		case m == markerDAC:
			err = d.decodeDAC()
		case m == markerDRI:
			err = d.decodeDRI()
		case m == markerSOS:
			err = d.decodeSOS()
		case m == markerDNL:
			err = d.decodeDNL()
		case m == markerAPP0:
			err = d.decodeAPP0()
		case m == markerAPP1:
			err = d.decodeAPP1()
		case m == markerAPP14:
			err = d.decodeAPP14()
		case isAPP(m), m == markerCOM:
			err = d.r.skipSegment()
		case m == markerSOI:
			return nil, syntaxf("unexpected SOI marker")
		default:
			// Unknown marker: resynchronize on the next 0xFF.
			d.log.Warn("skipping unknown marker", "marker", fmt.Sprintf("0x%02X", m))
			d.r.seek(d.r.pos - 1)
		}

		if err != nil {
			return nil, err
		}
	}

	if d.frame == nil {
		return nil, syntaxf("no frame header before end of data")
	}

	if configOnly {
		return nil, nil
	}

	if d.scans == 0 {
		return nil, syntaxf("no scan in frame")
	}

	if !eoi {
		d.log.Warn("missing EOI marker")
	}

	if d.frame.kind == frameProgressive {
		return nil, ErrProgressiveDecode
	}

	return d.output()
}

// decodeDQT installs quantization tables.
func (d *decoder) decodeDQT() error {
	if err := d.r.decodeLength(); err != nil {
		return err
	}

	for d.r.length > 0 {
		pq, tq := d.r.u8(0)>>4, d.r.u8(0)&15
		if pq > 1 || tq > 3 {
			return syntaxf("invalid quantization table precision %d id %d", pq, tq)
		}

		n := 1 + 64*(pq+1)
		if err := d.r.need(n); err != nil {
			return err
		}

		t := &d.tables.quant[tq]
		for k := 0; k < 64; k++ {
			if pq == 0 {
				t.values[zz[k]] = int32(d.r.u8(1 + k))
			} else {
				t.values[zz[k]] = int32(d.r.decode16(1 + 2*k))
			}
		}

		t.precision = pq
		t.present = true

		if err := d.r.skip(n); err != nil {
			return err
		}
	}

	return nil
}

// decodeDHT installs Huffman tables. A table id declared again replaces the old table.
func (d *decoder) decodeDHT() error {
	if err := d.r.decodeLength(); err != nil {
		return err
	}

	for d.r.length > 0 {
		if err := d.r.need(17); err != nil {
			return err
		}

		tc, th := d.r.u8(0)>>4, d.r.u8(0)&15
		if tc > 1 || th > 3 {
			return syntaxf("invalid huffman table class %d id %d", tc, th)
		}

		var counts [16]uint8
		total := 0
		for i := range counts {
			counts[i] = uint8(d.r.u8(1 + i))
			total += int(counts[i])
		}

		if total > 256 {
			return syntaxf("huffman table %d declares %d symbols", th, total)
		}

		if err := d.r.need(17 + total); err != nil {
			return err
		}

		symbols := d.r.data[d.r.pos+17 : d.r.pos+17+total]

		if tc == 0 {
			d.buildDC(&d.tables.dc[th], th, counts, symbols)
		} else {
			d.tables.ac[th].build(counts, symbols, 0xFF)
		}

		if err := d.r.skip(17 + total); err != nil {
			return err
		}
	}

	return nil
}

// buildDC builds a DC table. Categories above 15 (16 in lossless frames) are
// coerced to zero.
func (d *decoder) buildDC(t *huffmanTable, id int, counts [16]uint8, symbols []uint8) {
	limit := uint8(15)
	if d.frame != nil && d.frame.kind == frameLossless {
		limit = 16
	}

	if n := t.build(counts, symbols, limit); n > 0 {
		d.log.Warn("coerced invalid DC huffman symbols", "table", id, "symbols", n)
	}
}

// decodeDAC installs arithmetic conditioning values.
func (d *decoder) decodeDAC() error {
	if err := d.r.decodeLength(); err != nil {
		return err
	}

	for d.r.length > 0 {
		if err := d.r.need(2); err != nil {
			return err
		}

		tc, tb, cs := d.r.u8(0)>>4, d.r.u8(0)&15, d.r.u8(1)
		if tc > 1 || tb > 3 {
			return syntaxf("invalid arithmetic conditioning class %d id %d", tc, tb)
		}

		if tc == 0 {
			lower, upper := cs&15, cs>>4
			if lower > upper {
				return syntaxf("invalid DC conditioning L=%d U=%d", lower, upper)
			}

			d.tables.dcArith[tb] = dcConditioning{lower: lower, upper: upper}
		} else {
			if cs < 1 || cs > 63 {
				return syntaxf("invalid AC conditioning Kx=%d", cs)
			}

			d.tables.acArith[tb] = acConditioning{kx: cs}
		}

		if err := d.r.skip(2); err != nil {
			return err
		}
	}

	return nil
}

// decodeDRI decodes the Define Restart Interval segment.
func (d *decoder) decodeDRI() error {
	if err := d.r.decodeLength(); err != nil {
		return err
	}

	if err := d.r.need(2); err != nil {
		return err
	}

	d.restartInterval = d.r.decode16(0)

	return d.r.skip(d.r.length)
}

// decodeDNL decodes a Define Number of Lines segment found between scans.
func (d *decoder) decodeDNL() error {
	if err := d.r.decodeLength(); err != nil {
		return err
	}

	if err := d.r.need(2); err != nil {
		return err
	}

	lines := d.r.decode16(0)
	if d.frame != nil && d.frame.lines != lines {
		d.log.Warn("DNL disagrees with frame height", "lines", lines, "frame", d.frame.lines)
	}

	return d.r.skip(d.r.length)
}

// frameKindFor maps a SOF marker to its frame kind and entropy coding.
func frameKindFor(m byte) (kind frameKind, arithmetic bool) {
	switch m & 3 {
	case 0:
		kind = frameBaseline
	case 1:
		kind = frameExtended
	case 2:
		kind = frameProgressive
	case 3:
		kind = frameLossless
	}

	return kind, m&8 != 0
}

// decodeSOF decodes the Start of Frame segment. It validates the sample
// precision for the frame kind and the component descriptions.
func (d *decoder) decodeSOF(m byte) error {
	if d.frame != nil {
		return syntaxf("multiple frame headers")
	}

	if err := d.r.decodeLength(); err != nil {
		return err
	}

	if err := d.r.need(6); err != nil {
		return err
	}

	kind, arithmetic := frameKindFor(m)
	f := &frame{
		kind:       kind,
		arithmetic: arithmetic,
		precision:  d.r.u8(0),
		lines:      d.r.decode16(1),
		samples:    d.r.decode16(3),
		unit:       8,
	}

	nf := d.r.u8(5)

	switch p := f.precision; kind {
	case frameBaseline:
		if p != 8 {
			return fmt.Errorf("%d-bit: %w", p, ErrBaselineBitDepth)
		}
	case frameExtended:
		if p != 8 && p != 12 {
			return fmt.Errorf("%d-bit: %w", p, ErrExtendedBitDepth)
		}
	case frameProgressive:
		if p != 8 && p != 12 {
			return fmt.Errorf("%d-bit: %w", p, ErrProgressiveBitDepth)
		}

		if nf > 4 {
			return syntaxf("progressive frame with %d components", nf)
		}
	case frameLossless:
		if p < 2 || p > 16 {
			return fmt.Errorf("%d-bit: %w", p, ErrLosslessBitDepth)
		}

		f.unit = 1
	}

	if f.samples == 0 {
		return syntaxf("frame width is zero")
	}

	if nf == 0 {
		return syntaxf("frame without components")
	}

	if nf > 4 {
		return unsupportedf("%d components", nf)
	}

	if err := d.r.need(6 + 3*nf); err != nil {
		return err
	}

	if err := d.r.skip(6); err != nil {
		return err
	}

	f.comps = make([]frameComponent, nf)
	for i := range f.comps {
		c := &f.comps[i]
		c.id = d.r.u8(0)
		c.h = d.r.u8(1) >> 4
		c.v = d.r.u8(1) & 15
		c.tq = d.r.u8(2)

		if c.h < 1 || c.h > 4 || c.v < 1 || c.v > 4 {
			return syntaxf("component %d sampling factors %dx%d", c.id, c.h, c.v)
		}

		if c.tq > 3 {
			return syntaxf("component %d quantization table %d", c.id, c.tq)
		}

		for j := 0; j < i; j++ {
			if f.comps[j].id == c.id {
				return fmt.Errorf("component %d: %w", c.id, ErrDuplicateComponent)
			}
		}

		if err := d.r.skip(3); err != nil {
			return err
		}
	}

	if err := d.r.skip(d.r.length); err != nil {
		return err
	}

	if m&4 != 0 {
		return ErrHierarchical
	}

	if kind == frameLossless && arithmetic {
		return ErrArithmeticLossless
	}

	if f.samples*max(f.lines, 1)*len(f.comps) > maxSamples {
		return unsupportedf("frame of %dx%d samples", f.samples, f.lines)
	}

	d.frame = f

	if kind == frameLossless {
		// DC tables installed before the frame header were built with the DCT category limit.
		for i := range d.tables.dc {
			if t := &d.tables.dc[i]; t.present {
				d.buildDC(t, i, t.counts, t.symbols)
			}
		}
	}

	if f.lines > 0 {
		f.computeGeometry()
	}

	return nil
}

// findDNL looks ahead for the DNL segment that follows the first scan and
// returns the number of lines it carries.
func (d *decoder) findDNL() (int, error) {
	data := d.r.data

	for i := d.r.pos; i+5 < len(data); i++ {
		if data[i] != 0xFF || data[i+1] != markerDNL {
			continue
		}

		length := int(data[i+2])<<8 | int(data[i+3])
		lines := int(data[i+4])<<8 | int(data[i+5])
		if length != 4 || lines == 0 {
			return 0, ErrBadDNL
		}

		return lines, nil
	}

	return 0, ErrBadDNL
}

// decodeSOS decodes the Start of Scan segment and the entropy-coded data that follows it.
func (d *decoder) decodeSOS() error {
	f := d.frame
	if f == nil {
		return syntaxf("scan before frame header")
	}

	if err := d.r.decodeLength(); err != nil {
		return err
	}

	if err := d.r.need(1); err != nil {
		return err
	}

	ns := d.r.u8(0)
	if ns < 1 || ns > 4 {
		return syntaxf("scan with %d components", ns)
	}

	if err := d.r.need(1 + 2*ns + 3); err != nil {
		return err
	}

	s := &scan{comps: make([]scanComponent, ns)}
	for i := range s.comps {
		sc := &s.comps[i]

		id := d.r.u8(1 + 2*i)
		idx, ok := f.component(id)
		if !ok {
			return syntaxf("scan references unknown component %d", id)
		}

		for j := 0; j < i; j++ {
			if s.comps[j].comp == &f.comps[idx] {
				return fmt.Errorf("scan component %d: %w", id, ErrDuplicateComponent)
			}
		}

		sc.comp = &f.comps[idx]
		sc.td = d.r.u8(2+2*i) >> 4
		sc.ta = d.r.u8(2+2*i) & 15

		if sc.td > 3 || sc.ta > 3 {
			return syntaxf("component %d entropy tables %d/%d", id, sc.td, sc.ta)
		}
	}

	p := 1 + 2*ns
	s.ss, s.se = d.r.u8(p), d.r.u8(p+1)
	s.ah, s.al = d.r.u8(p+2)>>4, d.r.u8(p+2)&15

	if err := d.r.skip(d.r.length); err != nil {
		return err
	}

	if err := d.validateScan(s); err != nil {
		return err
	}

	if f.lines == 0 {
		lines, err := d.findDNL()
		if err != nil {
			return err
		}

		f.lines = lines
		f.computeGeometry()
	}

	if f.samples*f.lines*len(f.comps) > maxSamples {
		return unsupportedf("frame of %dx%d samples", f.samples, f.lines)
	}

	units := s.layout(f)
	if units > 10 {
		return syntaxf("%d data units per MCU", units)
	}

	s.strategy = selectStrategy(f)

	if need := s.minBits(units); need > 8*(d.r.size+3*maxFill) {
		return fmt.Errorf("%d bits of scan data needed, %d bytes left: %w", need, d.r.size, ErrUnexpectedEnd)
	}

	if !f.allocated {
		f.allocate()
	}

	d.scans++

	return d.decodeScan(s)
}

// validateScan checks the scan parameters against the frame kind and binds
// the entropy and quantization tables.
func (d *decoder) validateScan(s *scan) error {
	f := d.frame

	switch f.kind {
	case frameBaseline, frameExtended:
		if s.ss != 0 || s.se != 63 || s.ah != 0 || s.al != 0 {
			return syntaxf("invalid sequential scan parameters Ss=%d Se=%d Ah=%d Al=%d", s.ss, s.se, s.ah, s.al)
		}
	case frameProgressive:
		if s.se > 63 || s.ss > s.se || (s.ss == 0 && s.se != 0) || s.ah > 13 || s.al > 13 {
			return syntaxf("invalid progressive scan parameters Ss=%d Se=%d Ah=%d Al=%d", s.ss, s.se, s.ah, s.al)
		}

		if s.ss > 0 && len(s.comps) != 1 {
			return syntaxf("progressive AC scan with %d components", len(s.comps))
		}
	case frameLossless:
		if s.predictor() > 7 || s.ah != 0 || s.pointTransform() >= f.precision {
			return syntaxf("invalid lossless scan parameters predictor=%d Ah=%d Pt=%d", s.ss, s.ah, s.al)
		}

		if s.se != 0 {
			d.log.Warn("ignoring spectral selection end in lossless scan", "se", s.se)
		}
	}

	// Progressive refinement and DC-only scans do not use every table.
	needDC := f.kind != frameProgressive || (s.ss == 0 && s.ah == 0)
	needAC := f.kind != frameLossless && (f.kind != frameProgressive || s.ss > 0)

	for i := range s.comps {
		sc := &s.comps[i]

		if !f.arithmetic {
			if needDC {
				sc.dc = &d.tables.dc[sc.td]
				if !sc.dc.present {
					return fmt.Errorf("DC table %d: %w", sc.td, ErrHuffmanTableNotInstalled)
				}
			}

			if needAC {
				sc.ac = &d.tables.ac[sc.ta]
				if !sc.ac.present {
					return fmt.Errorf("AC table %d: %w", sc.ta, ErrHuffmanTableNotInstalled)
				}
			}
		}

		if f.kind != frameLossless {
			sc.quant = &d.tables.quant[sc.comp.tq]
			if !sc.quant.present {
				return fmt.Errorf("table %d: %w", sc.comp.tq, ErrQuantizationTableNotInstalled)
			}
		}
	}

	return nil
}

// decodeScan runs the scan strategy, converting hot-path panics into errors.
func (d *decoder) decodeScan(s *scan) (err error) {
	defer recoverDecode(&err)

	d.overrun = 0

	switch s.strategy {
	case huffmanSequential:
		d.bits = bitstream{}
		d.decodeSequential(s, d.decodeHuffmanBlock)
		d.settleFill()
	case arithmeticSequential:
		d.resetArithmetic(s)
		d.decodeSequential(s, d.decodeArithmeticBlock)
	case huffmanLossless:
		d.bits = bitstream{}
		d.decodeLossless(s)
		d.settleFill()
	case progressiveSkip:
		d.skipProgressive(s)
	default:
		return fmt.Errorf("scan strategy %d: %w", s.strategy, ErrInternal)
	}

	return nil
}
