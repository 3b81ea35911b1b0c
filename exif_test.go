package jpegx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
)

// field is one IFD entry; data holds the value bytes in the stream byte order.
type field struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

func shortField(order binary.ByteOrder, tag, v uint16) field {
	b := make([]byte, 2)
	order.PutUint16(b, v)

	return field{tag: tag, typ: typeUnsignedShort, count: 1, data: b}
}

func longField(order binary.ByteOrder, tag uint16, v uint32) field {
	b := make([]byte, 4)
	order.PutUint32(b, v)

	return field{tag: tag, typ: typeUnsignedLong, count: 1, data: b}
}

func asciiField(tag uint16, s string) field {
	return field{tag: tag, typ: typeASCIIString, count: uint32(len(s) + 1), data: append([]byte(s), 0)}
}

// rationalField holds pairs of numerator and denominator.
func rationalField(order binary.ByteOrder, tag uint16, v ...uint32) field {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		order.PutUint32(b[4*i:], x)
	}

	return field{tag: tag, typ: typeUnsignedRational, count: uint32(len(v) / 2), data: b}
}

// buildTIFF lays out IFD0, the EXIF sub-IFD and the GPS IFD, followed by the
// values that do not fit in an entry.
func buildTIFF(order binary.ByteOrder, ifd0, sub, gps []field) []byte {
	if len(sub) > 0 {
		ifd0 = append(ifd0, field{tag: tagExifIFDPointer, typ: typeUnsignedLong, count: 1})
	}

	if len(gps) > 0 {
		ifd0 = append(ifd0, field{tag: tagGPSIFDPointer, typ: typeUnsignedLong, count: 1})
	}

	size := func(f []field) int {
		if len(f) == 0 {
			return 0
		}

		return 2 + 12*len(f) + 4
	}

	offSub := 8 + size(ifd0)
	offGPS := offSub + size(sub)
	dataOff := offGPS + size(gps)

	for i := range ifd0 {
		switch ifd0[i].tag {
		case tagExifIFDPointer:
			ifd0[i].data = longField(order, 0, uint32(offSub)).data
		case tagGPSIFDPointer:
			ifd0[i].data = longField(order, 0, uint32(offGPS)).data
		}
	}

	buf := make([]byte, dataOff)
	copy(buf, "MM")
	if order == binary.LittleEndian {
		copy(buf, "II")
	}

	order.PutUint16(buf[2:], 42)
	order.PutUint32(buf[4:], 8)

	var extra []byte
	write := func(at int, fields []field) {
		if len(fields) == 0 {
			return
		}

		order.PutUint16(buf[at:], uint16(len(fields)))

		for i, f := range fields {
			p := at + 2 + 12*i
			order.PutUint16(buf[p:], f.tag)
			order.PutUint16(buf[p+2:], f.typ)
			order.PutUint32(buf[p+4:], f.count)

			if len(f.data) <= 4 {
				copy(buf[p+8:], f.data)
			} else {
				order.PutUint32(buf[p+8:], uint32(dataOff+len(extra)))
				extra = append(extra, f.data...)
			}
		}
	}

	write(8, ifd0)
	write(offSub, sub)
	write(offGPS, gps)

	return append(buf, extra...)
}

func exifSegment(tiff []byte) []byte {
	return segment(markerAPP1, append(append([]byte(nil), exifSignature...), tiff...)...)
}

func orientationTIFF(orientation uint16) []byte {
	return buildTIFF(binary.BigEndian, []field{shortField(binary.BigEndian, tagOrientation, orientation)}, nil, nil)
}

// withSegments inserts segments right after the SOI marker of data.
func withSegments(data []byte, segments ...[]byte) []byte {
	return join(append(append([][]byte{data[:2]}, segments...), data[2:])...)
}

func TestDecodeExif(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		t.Run(order.String(), func(t *testing.T) {
			tiff := buildTIFF(order,
				[]field{
					asciiField(tagMake, "Canon"),
					asciiField(tagModel, "Canon EOS 5D"),
					shortField(order, tagOrientation, 6),
					shortField(order, tagImageWidth, 640),
					longField(order, tagImageLength, 480),
					asciiField(tagDateTime, "2024:05:01 10:20:30"),
					asciiField(tagSoftware, "fw"),
				},
				[]field{
					rationalField(order, tagExposureTime, 1, 250),
					rationalField(order, tagFNumber, 28, 10),
					shortField(order, tagISOSpeedRatings, 400),
					shortField(order, tagFlash, 16),
					rationalField(order, tagFocalLength, 50, 1),
					asciiField(tagDateTimeOriginal, "2024:05:01 10:20:29"),
				},
				[]field{
					asciiField(tagGPSLatitudeRef, "S"),
					rationalField(order, tagGPSLatitude, 40, 1, 30, 1, 0, 1),
					asciiField(tagGPSLongitudeRef, "W"),
					rationalField(order, tagGPSLongitude, 73, 1, 0, 1, 36, 1),
					{tag: tagGPSAltitudeRef, typ: typeUnsignedByte, count: 1, data: []byte{1}},
					rationalField(order, tagGPSAltitude, 1005, 10),
				},
			)

			m := newTestImage(rand.New(rand.NewSource(1)), 8, 8, 8, gray1, 10, 3)
			data := withSegments(m.encode(markerSOF0, false, 0), exifSegment(tiff))

			x, err := DecodeExif(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("DecodeExif failed: %v", err)
			}

			if x.Make != "Canon" || x.Model != "Canon EOS 5D" || x.Software != "fw" {
				t.Errorf("camera strings %q %q %q", x.Make, x.Model, x.Software)
			}

			if x.Orientation != 6 || x.Width != 640 || x.Height != 480 {
				t.Errorf("orientation %d size %dx%d", x.Orientation, x.Width, x.Height)
			}

			if x.DateTime != "2024:05:01 10:20:30" || x.DateTimeOriginal != "2024:05:01 10:20:29" {
				t.Errorf("dates %q %q", x.DateTime, x.DateTimeOriginal)
			}

			if x.ExposureTime != 1.0/250 || x.FNumber != 2.8 || x.FocalLength != 50 {
				t.Errorf("exposure %f f/%f focal %f", x.ExposureTime, x.FNumber, x.FocalLength)
			}

			if x.ISOSpeed != 400 || x.Flash != 16 {
				t.Errorf("ISO %d flash %d", x.ISOSpeed, x.Flash)
			}

			if math.Abs(x.GPSLatitude+40.5) > 1e-9 || math.Abs(x.GPSLongitude+73.01) > 1e-9 {
				t.Errorf("position %f, %f", x.GPSLatitude, x.GPSLongitude)
			}

			if x.GPSAltitude != -100.5 {
				t.Errorf("altitude %f", x.GPSAltitude)
			}
		})
	}
}

func TestDecodeExifInvalid(t *testing.T) {
	m := newTestImage(rand.New(rand.NewSource(1)), 8, 8, 8, gray1, 10, 3)
	image := m.encode(markerSOF0, false, 0)

	tests := []struct {
		name string
		tiff []byte
	}{
		{"byte order", []byte("XX\x00\x2a\x00\x00\x00\x08")},
		{"magic", []byte("MM\x00\x2b\x00\x00\x00\x08")},
		{"ifd offset", []byte("MM\x00\x2a\x00\x00\x10\x00")},
		{"short", []byte("MM\x00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeExif(bytes.NewReader(withSegments(image, exifSegment(tt.tiff))))
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("got %v, want ErrSyntax", err)
			}

			// The image itself still decodes; the EXIF block is ignored.
			if _, err := DecodeBytes(withSegments(image, exifSegment(tt.tiff)), &Options{AutoRotate: true}); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
		})
	}
}

// TestDecodeExifTruncatedEntries points values past the end of the data.
func TestDecodeExifTruncatedEntries(t *testing.T) {
	tiff := buildTIFF(binary.BigEndian, []field{asciiField(tagMake, "A long make string")}, nil, nil)
	tiff = tiff[:len(tiff)-8]

	x, err := DecodeExif(bytes.NewReader(withSegments(join(soiBytes, eoiBytes), exifSegment(tiff))))
	if err != nil {
		t.Fatalf("DecodeExif failed: %v", err)
	}

	if x.Make != "A long make" {
		t.Errorf("Make = %q", x.Make)
	}
}

func TestDecodeExifNoExif(t *testing.T) {
	m := newTestImage(rand.New(rand.NewSource(1)), 8, 8, 8, gray1, 10, 3)

	_, err := DecodeExif(bytes.NewReader(m.encode(markerSOF0, false, 0)))
	if !errors.Is(err, ErrNoExif) {
		t.Fatalf("got %v, want ErrNoExif", err)
	}
}

func TestDecodeExifInvalidJPEG(t *testing.T) {
	_, err := DecodeExif(bytes.NewReader([]byte("not a jpeg file")))
	if !errors.Is(err, ErrNoSOIMarker) {
		t.Fatalf("got %v, want ErrNoSOIMarker", err)
	}
}

func TestDecodeAutoRotate(t *testing.T) {
	m := newTestImage(rand.New(rand.NewSource(2)), 24, 16, 8, gray1, 40, 2)
	base := m.encode(markerSOF0, false, 0)

	ref, err := DecodeBytes(base)
	if err != nil {
		t.Fatal(err)
	}

	at := func(img *Image, x, y int) byte { return img.Pix[y*img.Stride+x] }

	for orientation := 1; orientation <= 8; orientation++ {
		data := withSegments(base, exifSegment(orientationTIFF(uint16(orientation))))

		img, err := DecodeBytes(data, &Options{AutoRotate: true})
		if err != nil {
			t.Fatalf("orientation %d: %v", orientation, err)
		}

		w, h := ref.Width, ref.Height
		if orientation >= 5 {
			w, h = h, w
		}

		if img.Width != w || img.Height != h {
			t.Fatalf("orientation %d: size %dx%d, want %dx%d", orientation, img.Width, img.Height, w, h)
		}

		for sy := 0; sy < ref.Height; sy++ {
			for sx := 0; sx < ref.Width; sx++ {
				var dx, dy int

				switch orientation {
				case 1:
					dx, dy = sx, sy
				case 2:
					dx, dy = ref.Width-1-sx, sy
				case 3:
					dx, dy = ref.Width-1-sx, ref.Height-1-sy
				case 4:
					dx, dy = sx, ref.Height-1-sy
				case 5:
					dx, dy = sy, sx
				case 6:
					dx, dy = ref.Height-1-sy, sx
				case 7:
					dx, dy = ref.Height-1-sy, ref.Width-1-sx
				case 8:
					dx, dy = sy, ref.Width-1-sx
				}

				if at(img, dx, dy) != at(ref, sx, sy) {
					t.Fatalf("orientation %d: (%d, %d) not moved to (%d, %d)", orientation, sx, sy, dx, dy)
				}
			}
		}

		// Without AutoRotate the orientation tag is ignored.
		plain, err := DecodeBytes(data)
		if err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(plain.Pix, ref.Pix) {
			t.Fatalf("orientation %d applied without AutoRotate", orientation)
		}
	}
}
