package jpegx

// Marker codes, the byte following 0xFF.
const (
	markerSOF0  = 0xC0 // Baseline DCT
	markerSOF1  = 0xC1 // Extended sequential DCT, Huffman
	markerSOF2  = 0xC2 // Progressive DCT, Huffman
	markerSOF3  = 0xC3 // Lossless, Huffman
	markerDHT   = 0xC4
	markerSOF5  = 0xC5 // Differential sequential, Huffman
	markerSOF6  = 0xC6 // Differential progressive, Huffman
	markerSOF7  = 0xC7 // Differential lossless, Huffman
	markerJPG   = 0xC8
	markerSOF9  = 0xC9 // Extended sequential DCT, arithmetic
	markerSOF10 = 0xCA // Progressive DCT, arithmetic
	markerSOF11 = 0xCB // Lossless, arithmetic
	markerDAC   = 0xCC
	markerSOF13 = 0xCD // Differential sequential, arithmetic
	markerSOF14 = 0xCE // Differential progressive, arithmetic
	markerSOF15 = 0xCF // Differential lossless, arithmetic
	markerRST0  = 0xD0
	markerRST7  = 0xD7
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerDQT   = 0xDB
	markerDNL   = 0xDC
	markerDRI   = 0xDD
	markerAPP0  = 0xE0
	markerAPP1  = 0xE1
	markerAPP14 = 0xEE
	markerAPP15 = 0xEF
	markerCOM   = 0xFE
)

// isSOF reports whether m is one of the thirteen start-of-frame markers.
func isSOF(m byte) bool {
	return m >= markerSOF0 && m <= markerSOF15 && m != markerDHT && m != markerJPG && m != markerDAC
}

// isRST reports whether m is a restart marker.
func isRST(m byte) bool {
	return m >= markerRST0 && m <= markerRST7
}

// isAPP reports whether m is an application segment marker.
func isAPP(m byte) bool {
	return m >= markerAPP0 && m <= markerAPP15
}
