package jpegx

import "bytes"

// jfifInfo is the content of a JFIF APP0 segment.
type jfifInfo struct {
	present      bool
	major, minor int
	units        int
	xDensity     int
	yDensity     int
}

// adobeInfo is the content of an Adobe APP14 segment.
type adobeInfo struct {
	present   bool
	transform int // 0: RGB or CMYK, 1: YCbCr, 2: YCCK.
}

// JFXX extension codes.
const (
	jfxxJPEG    = 0x10
	jfxxPalette = 0x11
	jfxxRGB     = 0x13
)

var (
	jfifSignature  = []byte("JFIF\x00")
	jfxxSignature  = []byte("JFXX\x00")
	exifSignature  = []byte("Exif\x00\x00")
	adobeSignature = []byte("Adobe")
)

// payload returns the unread bytes of the current segment.
func (r *reader) payload() []byte {
	return r.data[r.pos : r.pos+r.length]
}

// decodeAPP0 decodes the JFIF and JFXX application segments.
func (d *decoder) decodeAPP0() error {
	if err := d.r.decodeLength(); err != nil {
		return err
	}

	p := d.r.payload()

	switch {
	case len(p) >= 14 && bytes.HasPrefix(p, jfifSignature):
		d.jfif = jfifInfo{
			present:  true,
			major:    int(p[5]),
			minor:    int(p[6]),
			units:    int(p[7]),
			xDensity: int(p[8])<<8 | int(p[9]),
			yDensity: int(p[10])<<8 | int(p[11]),
		}

		if p[12] != 0 && p[13] != 0 {
			d.log.Warn("skipping JFIF thumbnail", "width", p[12], "height", p[13])
		}
	case len(p) >= 6 && bytes.HasPrefix(p, jfxxSignature):
		switch p[5] {
		case jfxxJPEG:
			return ErrEmbeddedThumbnail
		case jfxxPalette, jfxxRGB:
			d.log.Warn("skipping JFXX thumbnail", "extension", p[5])
		default:
			d.log.Warn("unknown JFXX extension", "extension", p[5])
		}
	default:
		d.log.Warn("unknown APP0 payload")
	}

	return d.r.skip(d.r.length)
}

// decodeAPP1 decodes the APP1 segment. Only the EXIF orientation is used,
// and only when auto-rotation is enabled.
func (d *decoder) decodeAPP1() error {
	if err := d.r.decodeLength(); err != nil {
		return err
	}

	if p := d.r.payload(); d.autoRotate && bytes.HasPrefix(p, exifSignature) {
		var x Exif
		if err := parseExifData(p[len(exifSignature):], &x); err != nil {
			d.log.Warn("ignoring invalid EXIF data", "error", err)
		} else if x.Orientation >= 1 && x.Orientation <= 8 {
			d.orientation = x.Orientation
		}
	}

	return d.r.skip(d.r.length)
}

// decodeAPP14 decodes the APP14 "Adobe" segment, which specifies the color transform.
func (d *decoder) decodeAPP14() error {
	if err := d.r.decodeLength(); err != nil {
		return err
	}

	if p := d.r.payload(); len(p) >= 12 && bytes.HasPrefix(p, adobeSignature) {
		d.adobe = adobeInfo{present: true, transform: int(p[11])}
	} else {
		d.log.Warn("unknown APP14 payload")
	}

	return d.r.skip(d.r.length)
}
