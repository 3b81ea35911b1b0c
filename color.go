package jpegx

import "fmt"

// Color conversion

// YCbCr to RGB coefficients (ITU-R BT.601, full range), scaled by 2^16.
const (
	crToR = 91881  // 1.402
	cbToG = 22554  // 0.3441136
	crToG = 46802  // 0.714136
	cbToB = 116130 // 1.772
)

// ycbcrToRGB converts one sample triple. center is the chroma zero point.
func ycbcrToRGB(y, cb, cr, center, maxv int64) (r, g, b uint16) {
	cb -= center
	cr -= center
	yy := y<<16 + 1<<15

	return clamp64((yy+crToR*cr)>>16, maxv),
		clamp64((yy-cbToG*cb-crToG*cr)>>16, maxv),
		clamp64((yy+cbToB*cb)>>16, maxv)
}

func clamp64(x, maxv int64) uint16 {
	if x < 0 {
		return 0
	}

	if x > maxv {
		return uint16(maxv)
	}

	return uint16(x)
}

// isRGB reports whether a three-component frame carries RGB rather than YCbCr.
func (d *decoder) isRGB() bool {
	if d.adobe.present {
		return d.adobe.transform == 0
	}

	c := d.frame.comps
	if c[0].id == 'R' && c[1].id == 'G' && c[2].id == 'B' {
		return true
	}

	return false
}

// fullPlane returns component i upsampled to the frame size.
func (d *decoder) fullPlane(i int) (plane, error) {
	f := d.frame
	c := &f.comps[i]

	if f.hmax%c.h != 0 || f.vmax%c.v != 0 {
		return plane{}, unsupportedf("component %d sampling %dx%d within %dx%d", c.id, c.h, c.v, f.hmax, f.vmax)
	}

	_, maxv := level(f.precision)

	return upsample(c.plane, f.hmax/c.h, f.vmax/c.v, f.samples, f.lines, d.upsample, maxv), nil
}

// outputFormat resolves the format hint for the component count.
func (d *decoder) outputFormat() PixelFormat {
	rgb := len(d.frame.comps) == 3
	switch d.format {
	case FormatGray, FormatGray16:
		rgb = false
	case FormatRGB, FormatRGB16:
		rgb = true
	}

	wide := d.frame.precision > 8
	switch {
	case rgb && wide:
		return FormatRGB16
	case rgb:
		return FormatRGB
	case wide:
		return FormatGray16
	}

	return FormatGray
}

// output runs the color stage on the decoded planes and builds the image.
func (d *decoder) output() (*Image, error) {
	f := d.frame

	n := len(f.comps)
	if n != 1 && n != 3 {
		return nil, fmt.Errorf("%d components: %w", n, ErrColorTransform)
	}

	format := d.outputFormat()
	img := newImage(f.samples, f.lines, format, f.precision)

	var err error
	switch {
	case n == 1:
		var p plane
		if p, err = d.fullPlane(0); err == nil {
			writePlanes(img, p, p, p)
		}
	case format.channels() == 1 && !d.isRGB():
		var p plane
		if p, err = d.fullPlane(0); err == nil {
			writePlanes(img, p, p, p)
		}
	default:
		err = d.writeColor(img)
	}

	if err != nil {
		return nil, err
	}

	if d.autoRotate && d.orientation > 1 {
		img = img.transform(d.orientation)
	}

	return img, nil
}

// writePlanes stores full-size planes into img: the first one for gray
// formats, all three for RGB formats.
func writePlanes(img *Image, a, b, c plane) {
	bpp := img.bytesPerPixel()
	ss := img.Format.sampleSize()
	gray := img.Format.channels() == 1

	for y := 0; y < img.Height; y++ {
		ra := a.pix[y*a.stride:]
		rb := b.pix[y*b.stride:]
		rc := c.pix[y*c.stride:]
		off := y * img.Stride

		for x := 0; x < img.Width; x++ {
			img.put(off, ra[x])
			if !gray {
				img.put(off+ss, rb[x])
				img.put(off+2*ss, rc[x])
			}

			off += bpp
		}
	}
}

// writeColor converts a three-component frame into img.
func (d *decoder) writeColor(img *Image) error {
	var p [3]plane
	for i := range p {
		var err error
		if p[i], err = d.fullPlane(i); err != nil {
			return err
		}
	}

	center, maxv := level(d.frame.precision)
	rgb := d.isRGB()
	gray := img.Format.channels() == 1
	bpp := img.bytesPerPixel()
	ss := img.Format.sampleSize()

	for y := 0; y < img.Height; y++ {
		r0 := p[0].pix[y*p[0].stride:]
		r1 := p[1].pix[y*p[1].stride:]
		r2 := p[2].pix[y*p[2].stride:]
		off := y * img.Stride

		for x := 0; x < img.Width; x++ {
			r, g, b := r0[x], r1[x], r2[x]
			if !rgb {
				r, g, b = ycbcrToRGB(int64(r), int64(g), int64(b), int64(center), int64(maxv))
			}

			if gray {
				// Luma of RGB data.
				l := (19595*int64(r) + 38470*int64(g) + 7471*int64(b) + 1<<15) >> 16
				img.put(off, clamp64(l, int64(maxv)))
			} else {
				img.put(off, r)
				img.put(off+ss, g)
				img.put(off+2*ss, b)
			}

			off += bpp
		}
	}

	return nil
}
