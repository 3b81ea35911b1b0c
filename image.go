package jpegx

import (
	"image"
	"image/color"
)

// PixelFormat describes the sample layout of an Image.
type PixelFormat int

const (
	// FormatAuto selects gray for one component and RGB for three.
	FormatAuto PixelFormat = iota
	// FormatGray is one 8-bit sample per pixel.
	FormatGray
	// FormatRGB is three 8-bit samples per pixel.
	FormatRGB
	// FormatGray16 is one 16-bit big-endian sample per pixel.
	FormatGray16
	// FormatRGB16 is three 16-bit big-endian samples per pixel.
	FormatRGB16
)

func (f PixelFormat) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatGray:
		return "gray"
	case FormatRGB:
		return "rgb"
	case FormatGray16:
		return "gray16"
	case FormatRGB16:
		return "rgb16"
	}

	return "unknown"
}

// channels returns the number of samples per pixel.
func (f PixelFormat) channels() int {
	if f == FormatRGB || f == FormatRGB16 {
		return 3
	}

	return 1
}

// sampleSize returns the number of bytes per sample.
func (f PixelFormat) sampleSize() int {
	if f == FormatGray16 || f == FormatRGB16 {
		return 2
	}

	return 1
}

// Image is a decoded JPEG image. Samples keep the precision they were coded
// with: 8-bit frames use FormatGray or FormatRGB, deeper frames use the
// 16-bit formats with values up to 1<<Precision - 1.
type Image struct {
	Width, Height int
	Format        PixelFormat
	Precision     int
	Stride        int // Bytes between vertically adjacent pixels.
	Pix           []byte
}

func newImage(width, height int, format PixelFormat, precision int) *Image {
	stride := width * format.channels() * format.sampleSize()

	return &Image{
		Width:     width,
		Height:    height,
		Format:    format,
		Precision: precision,
		Stride:    stride,
		Pix:       make([]byte, stride*height),
	}
}

// bytesPerPixel returns the size of one pixel in Pix.
func (m *Image) bytesPerPixel() int {
	return m.Format.channels() * m.Format.sampleSize()
}

// put stores sample v at byte offset off.
func (m *Image) put(off int, v uint16) {
	if m.Format.sampleSize() == 1 {
		m.Pix[off] = byte(v)

		return
	}

	m.Pix[off] = byte(v >> 8)
	m.Pix[off+1] = byte(v)
}

// sample returns the sample at byte offset off.
func (m *Image) sample(off int) uint16 {
	if m.Format.sampleSize() == 1 {
		return uint16(m.Pix[off])
	}

	return uint16(m.Pix[off])<<8 | uint16(m.Pix[off+1])
}

// Image converts m to a standard library image. 8-bit gray shares Pix, the
// other formats are copied; 16-bit samples are scaled to the full 16-bit range.
func (m *Image) Image() image.Image {
	rect := image.Rect(0, 0, m.Width, m.Height)
	bpp := m.bytesPerPixel()

	switch m.Format {
	case FormatGray:
		return &image.Gray{Pix: m.Pix, Stride: m.Stride, Rect: rect}
	case FormatRGB:
		img := image.NewRGBA(rect)
		for y := 0; y < m.Height; y++ {
			src := m.Pix[y*m.Stride:]
			dst := img.Pix[y*img.Stride:]

			for x := 0; x < m.Width; x++ {
				dst[4*x] = src[3*x]
				dst[4*x+1] = src[3*x+1]
				dst[4*x+2] = src[3*x+2]
				dst[4*x+3] = 0xFF
			}
		}

		return img
	case FormatGray16:
		img := image.NewGray16(rect)
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: m.scale16(m.sample(y*m.Stride + x*bpp))})
			}
		}

		return img
	case FormatRGB16:
		img := image.NewRGBA64(rect)
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				off := y*m.Stride + x*bpp
				img.SetRGBA64(x, y, color.RGBA64{
					R: m.scale16(m.sample(off)),
					G: m.scale16(m.sample(off + 2)),
					B: m.scale16(m.sample(off + 4)),
					A: 0xFFFF,
				})
			}
		}

		return img
	}

	return nil
}

// scale16 maps a sample of m's precision onto 0..65535.
func (m *Image) scale16(v uint16) uint16 {
	if m.Precision >= 16 {
		return v
	}

	maxv := uint32(1)<<m.Precision - 1

	return uint16((uint32(v)*0xFFFF + maxv/2) / maxv)
}

// transform returns a copy of m rotated and flipped according to the EXIF orientation tag.
func (m *Image) transform(orientation int) *Image {
	if orientation < 2 || orientation > 8 {
		return m
	}

	srcWidth, srcHeight := m.Width, m.Height
	dstWidth, dstHeight := srcWidth, srcHeight

	// Orientations 5-8 involve 90/270 degree rotations, swapping width and height.
	if orientation >= 5 {
		dstWidth, dstHeight = srcHeight, srcWidth
	}

	dst := newImage(dstWidth, dstHeight, m.Format, m.Precision)
	bpp := m.bytesPerPixel()

	for sy := 0; sy < srcHeight; sy++ {
		for sx := 0; sx < srcWidth; sx++ {
			var dx, dy int

			switch orientation {
			case 2: // Flip horizontal
				dx, dy = srcWidth-1-sx, sy
			case 3: // Rotate 180
				dx, dy = srcWidth-1-sx, srcHeight-1-sy
			case 4: // Flip vertical
				dx, dy = sx, srcHeight-1-sy
			case 5: // Transpose
				dx, dy = sy, sx
			case 6: // Rotate 90 CW
				dx, dy = srcHeight-1-sy, sx
			case 7: // Transverse
				dx, dy = srcHeight-1-sy, srcWidth-1-sx
			case 8: // Rotate 270 CW
				dx, dy = sy, srcWidth-1-sx
			}

			s := sy*m.Stride + sx*bpp
			d := dy*dst.Stride + dx*bpp
			copy(dst.Pix[d:d+bpp], m.Pix[s:s+bpp])
		}
	}

	return dst
}
