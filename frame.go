package jpegx

// frameKind is the coding process named by the SOF marker.
type frameKind uint8

const (
	frameBaseline frameKind = iota
	frameExtended
	frameProgressive
	frameLossless
)

func (k frameKind) String() string {
	switch k {
	case frameBaseline:
		return "baseline"
	case frameExtended:
		return "extended"
	case frameProgressive:
		return "progressive"
	case frameLossless:
		return "lossless"
	}

	return "unknown"
}

// plane is a row-major sample buffer.
type plane struct {
	pix           []uint16
	width, height int
	stride        int
}

// frameComponent is a component declared by SOF together with its decoded samples.
type frameComponent struct {
	plane

	id     int // Component identifier (e.g., 1 for Y, 2 for Cb, 3 for Cr).
	h, v   int // Sampling factors.
	tq     int // Quantization table selector.
	coeffs []int32
}

// frame describes the image declared by the SOF segment.
type frame struct {
	kind       frameKind
	arithmetic bool
	precision  int
	lines      int // Zero until known when the height is carried by DNL.
	samples    int
	comps      []frameComponent
	hmax, vmax int
	unit       int // Data unit edge: 8 for DCT frames, 1 for lossless.
	mcusX      int
	mcusY      int
	allocated  bool
}

// component returns the frame component with the given id.
func (f *frame) component(id int) (int, bool) {
	for i := range f.comps {
		if f.comps[i].id == id {
			return i, true
		}
	}

	return 0, false
}

// computeGeometry derives the component sizes and the MCU grid.
func (f *frame) computeGeometry() {
	f.hmax, f.vmax = 1, 1
	for _, c := range f.comps {
		f.hmax = max(f.hmax, c.h)
		f.vmax = max(f.vmax, c.v)
	}

	f.mcusX = ceilDiv(f.samples, f.unit*f.hmax)
	f.mcusY = ceilDiv(f.lines, f.unit*f.vmax)

	for i := range f.comps {
		c := &f.comps[i]
		c.width = ceilDiv(f.samples*c.h, f.hmax)
		c.height = ceilDiv(f.lines*c.v, f.vmax)
	}
}

// allocate creates the sample planes. DCT planes hold exactly the component
// samples; lossless planes cover whole MCUs because interleaved scans write
// padding samples that later predictions refer to.
func (f *frame) allocate() {
	for i := range f.comps {
		c := &f.comps[i]

		rows := c.height
		c.stride = c.width
		if f.kind == frameLossless {
			c.stride = f.mcusX * c.h
			rows = f.mcusY * c.v
		}

		c.pix = make([]uint16, c.stride*rows)
	}

	f.allocated = true
}

// blocks returns the number of data units across and down for component c
// in a non-interleaved scan.
func (f *frame) blocks(c *frameComponent) (int, int) {
	return ceilDiv(c.width, f.unit), ceilDiv(c.height, f.unit)
}

// strategy is the scan decoding routine chosen once per scan.
type strategy uint8

const (
	huffmanSequential strategy = iota
	arithmeticSequential
	huffmanLossless
	progressiveSkip
)

// scanComponent is a frame component taking part in a scan along with its
// per-scan decoding state.
type scanComponent struct {
	comp  *frameComponent
	td    int // DC (or lossless) entropy table selector.
	ta    int // AC entropy table selector.
	dc    *huffmanTable
	ac    *huffmanTable
	quant *quantTable
	block [64]int32

	dcPred    int
	dcContext int // Arithmetic DC conditioning context: 0, 4, 8, 12 or 16.

	// Lossless prediction edges.
	firstRow     int
	resetPending bool
}

// scan holds the SOS parameters and the MCU layout of one scan.
type scan struct {
	comps       []scanComponent
	ss, se      int // Spectral selection; ss is the predictor in lossless scans.
	ah, al      int // Successive approximation; al is the point transform in lossless scans.
	interleaved bool
	mcusX       int
	mcusY       int
	strategy    strategy
}

// predictor returns the lossless predictor selector.
func (s *scan) predictor() int {
	return s.ss
}

// pointTransform returns the lossless point transform.
func (s *scan) pointTransform() int {
	return s.al
}

// layout computes the MCU grid of the scan and the number of data units per MCU.
func (s *scan) layout(f *frame) int {
	s.interleaved = len(s.comps) > 1

	if !s.interleaved {
		s.mcusX, s.mcusY = f.blocks(s.comps[0].comp)

		return 1
	}

	s.mcusX, s.mcusY = f.mcusX, f.mcusY

	units := 0
	for _, sc := range s.comps {
		units += sc.comp.h * sc.comp.v
	}

	return units
}

// minBits returns a lower bound on the size of the scan's entropy-coded data.
// Every Huffman code is at least one bit long, so a DCT block takes two (DC
// and EOB) and a lossless sample one. Arithmetic coding has no such bound.
func (s *scan) minBits(units int) int {
	n := s.mcusX * s.mcusY * units

	switch s.strategy {
	case huffmanSequential:
		return 2 * n
	case huffmanLossless:
		return n
	}

	return 0
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
