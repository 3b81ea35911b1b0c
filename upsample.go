package jpegx

// Upsampling

// UpsampleMethod defines the algorithm used for chroma upsampling.
type UpsampleMethod int

const (
	// NearestNeighbor replicates samples. It is fast and exact for flat chroma.
	NearestNeighbor UpsampleMethod = iota
	// CatmullRom is a higher-quality bicubic filter, used for 2x ratios.
	// Other ratios fall back to NearestNeighbor.
	CatmullRom
)

// Constants for a 4-tap Catmull-Rom upsampling filter.
const (
	cf4A = -9
	cf4B = 111
	cf4C = 29
	cf4D = -3
	cf3A = 28
	cf3B = 109
	cf3C = -9
	cf3X = 104
	cf3Y = 27
	cf3Z = -3
	cf2A = 139
	cf2B = -11
)

// cf applies the final step of the filter calculation.
func cf(x, maxv int32) uint16 {
	return clampSample((x+64)>>7, maxv)
}

// upsample enlarges p by the integer factors rx and ry so that it covers
// width x height samples. The result may be larger than requested.
func upsample(p plane, rx, ry, width, height int, method UpsampleMethod, maxv int32) plane {
	switch {
	case rx == 1 && ry == 1:
		return p
	case method == CatmullRom && rx <= 2 && ry <= 2 && (rx == 1 || p.width >= 3) && (ry == 1 || p.height >= 3):
		if rx == 2 {
			p = upsampleHCatmullRom(p, maxv)
		}

		if ry == 2 {
			p = upsampleVCatmullRom(p, maxv)
		}

		return p
	case rx == 2 && ry == 1:
		return upsampleH(p, width, height)
	case rx == 1 && ry == 2:
		return upsampleV(p, width, height)
	case rx == 2 && ry == 2:
		return upsample420(p, width, height)
	}

	return upsampleReplicate(p, rx, ry, width, height)
}

// upsampleH doubles p horizontally by replication.
func upsampleH(p plane, width, height int) plane {
	out := plane{pix: make([]uint16, width*height), width: width, height: height, stride: width}

	for y := 0; y < height; y++ {
		src := p.pix[y*p.stride:]
		dst := out.pix[y*width : (y+1)*width]

		for x := range dst {
			dst[x] = src[x>>1]
		}
	}

	return out
}

// upsampleV doubles p vertically by replication.
func upsampleV(p plane, width, height int) plane {
	out := plane{pix: make([]uint16, width*height), width: width, height: height, stride: width}

	for y := 0; y < height; y++ {
		src := p.pix[(y>>1)*p.stride:]
		copy(out.pix[y*width:(y+1)*width], src[:width])
	}

	return out
}

// upsample420 doubles p in both directions, expanding each source row once
// and copying it to the second output row.
func upsample420(p plane, width, height int) plane {
	out := plane{pix: make([]uint16, width*height), width: width, height: height, stride: width}

	for y := 0; y < height; y += 2 {
		src := p.pix[(y>>1)*p.stride:]
		dst := out.pix[y*width : (y+1)*width]

		for x := range dst {
			dst[x] = src[x>>1]
		}

		if y+1 < height {
			copy(out.pix[(y+1)*width:(y+2)*width], dst)
		}
	}

	return out
}

// upsampleReplicate enlarges p by arbitrary integer factors.
func upsampleReplicate(p plane, rx, ry, width, height int) plane {
	out := plane{pix: make([]uint16, width*height), width: width, height: height, stride: width}

	for y := 0; y < height; y++ {
		src := p.pix[(y/ry)*p.stride:]
		dst := out.pix[y*width : (y+1)*width]

		for x := range dst {
			dst[x] = src[x/rx]
		}
	}

	return out
}

// upsampleHCatmullRom performs a 2x horizontal upsampling with the 4-tap
// Catmull-Rom filter and mirrored edges. p must be at least 3 samples wide.
func upsampleHCatmullRom(p plane, maxv int32) plane {
	w := p.width << 1
	out := plane{pix: make([]uint16, w*p.height), width: w, height: p.height, stride: w}

	for y := 0; y < p.height; y++ {
		lin := p.pix[y*p.stride : y*p.stride+p.width]
		lout := out.pix[y*w : (y+1)*w]

		// Left edge.
		p0, p1, p2 := int32(lin[0]), int32(lin[1]), int32(lin[2])
		lout[0] = cf(cf2A*p0+cf2B*p1, maxv)
		lout[1] = cf(cf3X*p0+cf3Y*p1+cf3Z*p2, maxv)
		lout[2] = cf(cf3A*p0+cf3B*p1+cf3C*p2, maxv)

		for x := 0; x < p.width-3; x++ {
			p0, p1, p2, p3 := int32(lin[x]), int32(lin[x+1]), int32(lin[x+2]), int32(lin[x+3])

			lout[(x<<1)+3] = cf(cf4A*p0+cf4B*p1+cf4C*p2+cf4D*p3, maxv)
			lout[(x<<1)+4] = cf(cf4D*p0+cf4C*p1+cf4B*p2+cf4A*p3, maxv)
		}

		// Right edge, mirrored.
		p0, p1, p2 = int32(lin[p.width-1]), int32(lin[p.width-2]), int32(lin[p.width-3])
		lout[w-3] = cf(cf3A*p0+cf3B*p1+cf3C*p2, maxv)
		lout[w-2] = cf(cf3X*p0+cf3Y*p1+cf3Z*p2, maxv)
		lout[w-1] = cf(cf2A*p0+cf2B*p1, maxv)
	}

	return out
}

// upsampleVCatmullRom performs a 2x vertical upsampling with the same filter.
// p must be at least 3 rows high.
func upsampleVCatmullRom(p plane, maxv int32) plane {
	h := p.height << 1
	w := p.width
	out := plane{pix: make([]uint16, w*h), width: w, height: h, stride: w}
	s1 := p.stride

	at := func(x, y int) int32 {
		return int32(p.pix[y*s1+x])
	}

	for x := 0; x < w; x++ {
		// Top edge.
		p0, p1, p2 := at(x, 0), at(x, 1), at(x, 2)
		out.pix[x] = cf(cf2A*p0+cf2B*p1, maxv)
		out.pix[w+x] = cf(cf3X*p0+cf3Y*p1+cf3Z*p2, maxv)
		out.pix[2*w+x] = cf(cf3A*p0+cf3B*p1+cf3C*p2, maxv)

		for y := 0; y < p.height-3; y++ {
			p0, p1, p2, p3 := at(x, y), at(x, y+1), at(x, y+2), at(x, y+3)

			out.pix[((y<<1)+3)*w+x] = cf(cf4A*p0+cf4B*p1+cf4C*p2+cf4D*p3, maxv)
			out.pix[((y<<1)+4)*w+x] = cf(cf4D*p0+cf4C*p1+cf4B*p2+cf4A*p3, maxv)
		}

		// Bottom edge, mirrored.
		p0, p1, p2 = at(x, p.height-1), at(x, p.height-2), at(x, p.height-3)
		out.pix[(h-3)*w+x] = cf(cf3A*p0+cf3B*p1+cf3C*p2, maxv)
		out.pix[(h-2)*w+x] = cf(cf3X*p0+cf3Y*p1+cf3Z*p2, maxv)
		out.pix[(h-1)*w+x] = cf(cf2A*p0+cf2B*p1, maxv)
	}

	return out
}
