package jpegx

import (
	"bytes"
	"errors"
	"io"
)

// Exif holds the commonly used fields of the EXIF APP1 segment.
type Exif struct {
	Orientation int
	Width       int
	Height      int

	Make      string
	Model     string
	Software  string
	DateTime  string
	Artist    string
	Copyright string

	ExposureTime     float64
	FNumber          float64
	ISOSpeed         int
	DateTimeOriginal string
	Flash            int
	FocalLength      float64

	GPSLatitude  float64
	GPSLongitude float64
	GPSAltitude  float64
}

// ErrNoExif is returned by DecodeExif when the stream has no EXIF segment.
var ErrNoExif = errors.New("no EXIF data")

// EXIF tag constants
const (
	// Main IFD tags
	tagImageWidth     = 0x0100
	tagImageLength    = 0x0101
	tagMake           = 0x010F
	tagModel          = 0x0110
	tagOrientation    = 0x0112
	tagSoftware       = 0x0131
	tagDateTime       = 0x0132
	tagArtist         = 0x013B
	tagCopyright      = 0x8298
	tagExifIFDPointer = 0x8769
	tagGPSIFDPointer  = 0x8825

	// EXIF SubIFD tags
	tagExposureTime     = 0x829A
	tagFNumber          = 0x829D
	tagISOSpeedRatings  = 0x8827
	tagDateTimeOriginal = 0x9003
	tagFlash            = 0x9209
	tagFocalLength      = 0x920A

	// GPS SubIFD tags
	tagGPSLatitudeRef  = 0x0001
	tagGPSLatitude     = 0x0002
	tagGPSLongitudeRef = 0x0003
	tagGPSLongitude    = 0x0004
	tagGPSAltitudeRef  = 0x0005
	tagGPSAltitude     = 0x0006
)

// EXIF data type constants
const (
	typeUnsignedByte     = 1
	typeASCIIString      = 2
	typeUnsignedShort    = 3
	typeUnsignedLong     = 4
	typeUnsignedRational = 5
	typeSignedByte       = 6
	typeUndefined        = 7
	typeSignedShort      = 8
	typeSignedLong       = 9
	typeSignedRational   = 10
	typeSingleFloat      = 11
	typeDoubleFloat      = 12
)

// exifReader wraps the TIFF structure with endian-aware accessors. Reads out
// of range return zero values.
type exifReader struct {
	data         []byte
	littleEndian bool
}

func (r *exifReader) uint16(offset int) uint16 {
	if offset < 0 || offset+1 >= len(r.data) {
		return 0
	}

	if r.littleEndian {
		return uint16(r.data[offset]) | uint16(r.data[offset+1])<<8
	}

	return uint16(r.data[offset])<<8 | uint16(r.data[offset+1])
}

func (r *exifReader) uint32(offset int) uint32 {
	if offset < 0 || offset+3 >= len(r.data) {
		return 0
	}

	if r.littleEndian {
		return uint32(r.data[offset]) | uint32(r.data[offset+1])<<8 |
			uint32(r.data[offset+2])<<16 | uint32(r.data[offset+3])<<24
	}

	return uint32(r.data[offset])<<24 | uint32(r.data[offset+1])<<16 |
		uint32(r.data[offset+2])<<8 | uint32(r.data[offset+3])
}

func (r *exifReader) string(offset, maxLen int) string {
	if offset < 0 || offset >= len(r.data) {
		return ""
	}

	end := offset
	for end < len(r.data) && end < offset+maxLen && r.data[end] != 0 {
		end++
	}

	return string(r.data[offset:end])
}

func (r *exifReader) rational(offset int) float64 {
	den := r.uint32(offset + 4)
	if den == 0 {
		return 0
	}

	return float64(r.uint32(offset)) / float64(den)
}

// integer reads a SHORT or LONG value.
func (r *exifReader) integer(typ uint16, offset int) int {
	switch typ {
	case typeUnsignedShort:
		return int(r.uint16(offset))
	case typeUnsignedLong:
		return int(r.uint32(offset))
	}

	return 0
}

// ifdEntry is one 12-byte directory entry with its value offset resolved.
type ifdEntry struct {
	tag    uint16
	typ    uint16
	count  uint32
	offset int // Offset of the value, inline or pointed to.
}

// walkIFD calls fn for each entry of the directory at offset.
func (r *exifReader) walkIFD(offset int, fn func(e ifdEntry)) {
	if offset < 8 || offset+1 >= len(r.data) {
		return
	}

	n := int(r.uint16(offset))
	offset += 2

	for i := 0; i < n; i++ {
		p := offset + i*12
		if p+11 >= len(r.data) {
			break
		}

		e := ifdEntry{
			tag:    r.uint16(p),
			typ:    r.uint16(p + 2),
			count:  r.uint32(p + 4),
			offset: p + 8,
		}

		if dataSize(e.typ, e.count) > 4 {
			e.offset = int(r.uint32(p + 8))
			if e.offset >= len(r.data) {
				continue
			}
		}

		fn(e)
	}
}

// parseExifData parses the TIFF structure of an EXIF payload into x.
func parseExifData(data []byte, x *Exif) error {
	if len(data) < 8 {
		return syntaxf("EXIF data too short")
	}

	r := &exifReader{data: data}

	switch {
	case data[0] == 'I' && data[1] == 'I':
		r.littleEndian = true
	case data[0] == 'M' && data[1] == 'M':
	default:
		return syntaxf("invalid EXIF byte order marker")
	}

	if r.uint16(2) != 42 {
		return syntaxf("invalid EXIF magic number")
	}

	ifd := int(r.uint32(4))
	if ifd < 8 || ifd >= len(data) {
		return syntaxf("invalid IFD offset")
	}

	var exifIFD, gpsIFD int

	r.walkIFD(ifd, func(e ifdEntry) {
		switch e.tag {
		case tagOrientation:
			if e.typ == typeUnsignedShort {
				x.Orientation = int(r.uint16(e.offset))
			}
		case tagImageWidth:
			x.Width = r.integer(e.typ, e.offset)
		case tagImageLength:
			x.Height = r.integer(e.typ, e.offset)
		case tagMake, tagModel, tagSoftware, tagDateTime, tagArtist, tagCopyright:
			if e.typ != typeASCIIString {
				return
			}

			s := r.string(e.offset, int(e.count))
			switch e.tag {
			case tagMake:
				x.Make = s
			case tagModel:
				x.Model = s
			case tagSoftware:
				x.Software = s
			case tagDateTime:
				x.DateTime = s
			case tagArtist:
				x.Artist = s
			case tagCopyright:
				x.Copyright = s
			}
		case tagExifIFDPointer:
			if e.typ == typeUnsignedLong {
				exifIFD = int(r.uint32(e.offset))
			}
		case tagGPSIFDPointer:
			if e.typ == typeUnsignedLong {
				gpsIFD = int(r.uint32(e.offset))
			}
		}
	})

	r.walkIFD(exifIFD, func(e ifdEntry) {
		switch e.tag {
		case tagExposureTime:
			x.ExposureTime = r.rational(e.offset)
		case tagFNumber:
			x.FNumber = r.rational(e.offset)
		case tagFocalLength:
			x.FocalLength = r.rational(e.offset)
		case tagISOSpeedRatings:
			x.ISOSpeed = r.integer(e.typ, e.offset)
		case tagFlash:
			x.Flash = r.integer(e.typ, e.offset)
		case tagDateTimeOriginal:
			if e.typ == typeASCIIString {
				x.DateTimeOriginal = r.string(e.offset, int(e.count))
			}
		}
	})

	var latRef, lonRef string
	var altRef byte

	r.walkIFD(gpsIFD, func(e ifdEntry) {
		switch e.tag {
		case tagGPSLatitudeRef:
			latRef = r.string(e.offset, 2)
		case tagGPSLongitudeRef:
			lonRef = r.string(e.offset, 2)
		case tagGPSAltitudeRef:
			altRef = r.data[e.offset]
		case tagGPSLatitude:
			if e.typ == typeUnsignedRational && e.count == 3 {
				x.GPSLatitude = r.degrees(e.offset)
			}
		case tagGPSLongitude:
			if e.typ == typeUnsignedRational && e.count == 3 {
				x.GPSLongitude = r.degrees(e.offset)
			}
		case tagGPSAltitude:
			if e.typ == typeUnsignedRational {
				x.GPSAltitude = r.rational(e.offset)
			}
		}
	})

	if latRef == "S" {
		x.GPSLatitude = -x.GPSLatitude
	}

	if lonRef == "W" {
		x.GPSLongitude = -x.GPSLongitude
	}

	if altRef == 1 {
		x.GPSAltitude = -x.GPSAltitude
	}

	return nil
}

// degrees converts a degrees/minutes/seconds rational triple to decimal degrees.
func (r *exifReader) degrees(offset int) float64 {
	return r.rational(offset) + r.rational(offset+8)/60 + r.rational(offset+16)/3600
}

// dataSize returns the size in bytes of count values of an EXIF data type.
func dataSize(typ uint16, count uint32) int {
	size := 1

	switch typ {
	case typeUnsignedShort, typeSignedShort:
		size = 2
	case typeUnsignedLong, typeSignedLong, typeSingleFloat:
		size = 4
	case typeUnsignedRational, typeSignedRational, typeDoubleFloat:
		size = 8
	}

	return size * int(count)
}

// DecodeExif reads the EXIF metadata of a JPEG stream. Only the segments
// before the first scan are examined.
func DecodeExif(r io.Reader) (*Exif, error) {
	data, err := readAllData(r)
	if err != nil {
		return nil, err
	}

	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, ErrNoSOIMarker
	}

	var rd reader
	rd.init(data)
	_ = rd.skip(2)

	for rd.size >= 4 {
		if rd.u8(0) != 0xFF {
			return nil, ErrNoExif
		}

		m := byte(rd.u8(1))
		if m == 0xFF {
			_ = rd.skip(1)

			continue
		}

		if m == markerSOS || m == markerEOI {
			break
		}

		_ = rd.skip(2)
		if err := rd.decodeLength(); err != nil {
			return nil, err
		}

		if p := rd.payload(); m == markerAPP1 && bytes.HasPrefix(p, exifSignature) {
			x := new(Exif)
			if err := parseExifData(p[len(exifSignature):], x); err != nil {
				return nil, err
			}

			return x, nil
		}

		if err := rd.skip(rd.length); err != nil {
			return nil, err
		}
	}

	return nil, ErrNoExif
}
