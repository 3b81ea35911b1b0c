package jpegx

// zz is the zigzag ordering table. It maps the 1D order of coefficients in the
// JPEG stream to their natural (row-major) position in an 8x8 block.
var zz = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10, 17, 24, 32, 25, 18,
	11, 4, 5, 12, 19, 26, 33, 40, 48, 41, 34, 27, 20, 13, 6, 7, 14, 21, 28, 35,
	42, 49, 56, 57, 50, 43, 36, 29, 22, 15, 23, 30, 37, 44, 51, 58, 59, 52, 45,
	38, 31, 39, 46, 53, 60, 61, 54, 47, 55, 62, 63,
}

// quantTable holds dequantization multipliers in natural order.
type quantTable struct {
	values    [64]int32
	precision int // 0 for 8-bit entries, 1 for 16-bit entries
	present   bool
}

// Default arithmetic conditioning, ITU-T T.81 F.1.4.4.
const (
	defaultDCLower = 0
	defaultDCUpper = 1
	defaultACKx    = 5
)

// dcConditioning bounds the DC difference categories used to select context bins.
type dcConditioning struct {
	lower, upper int
}

// acConditioning splits the AC magnitude bins at coefficient index kx.
type acConditioning struct {
	kx int
}

// tableStore owns every table installed by DQT, DHT and DAC segments.
type tableStore struct {
	quant   [4]quantTable
	dc      [4]huffmanTable
	ac      [4]huffmanTable
	dcArith [4]dcConditioning
	acArith [4]acConditioning
}

// reset clears all tables and restores the default arithmetic conditioning.
func (s *tableStore) reset() {
	for i := 0; i < 4; i++ {
		s.quant[i] = quantTable{}
		s.dc[i].reset()
		s.ac[i].reset()
		s.dcArith[i] = dcConditioning{lower: defaultDCLower, upper: defaultDCUpper}
		s.acArith[i] = acConditioning{kx: defaultACKx}
	}
}
