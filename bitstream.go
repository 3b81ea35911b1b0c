package jpegx

// Bitstream handling

// maxFill is the number of zero bytes the Huffman bit reader may take past the
// end of a segment. saturate reads up to four of them ahead of use.
const maxFill = 8

// bitstream is the Huffman bit buffer. Valid bits are aligned to the most
// significant end of data; size counts them. Once end is set a marker (or DNL)
// has been reached and the buffer is refilled with zeros, counted by fill.
type bitstream struct {
	data uint32
	size int
	end  bool
	fill int
}

// fetchByte returns the next entropy-coded byte with 0xFF00 stuffing removed.
// At a marker it sets end, leaves the cursor on the marker's 0xFF and returns 0.
// A DNL segment inside the entropy data is consumed here. Running out of input
// before any marker is fatal.
func (d *decoder) fetchByte() byte {
	if d.bits.end {
		d.bits.fill++

		return 0
	}

	if d.r.size <= 0 {
		d.panic(ErrUnexpectedEnd)
	}

	b := d.r.data[d.r.pos]
	if b != 0xFF {
		d.r.pos++
		d.r.size--

		return b
	}

	// Fill bytes collapse into the marker that follows them.
	i := d.r.pos + 1
	for i < len(d.r.data) && d.r.data[i] == 0xFF {
		i++
	}

	if i >= len(d.r.data) {
		d.panic(ErrUnexpectedEnd)
	}

	switch m := d.r.data[i]; m {
	case 0x00:
		d.r.seek(i + 1)

		return 0xFF
	case markerDNL:
		d.r.seek(i + 1)
		if d.r.size >= 2 {
			if err := d.r.skip(d.r.decode16(0)); err != nil {
				d.panic(err)
			}
		}
	default:
		d.r.seek(i - 1)
	}

	d.bits.end = true
	d.bits.fill = 1

	return 0
}

// saturate fills the buffer until more than 24 bits are available.
func (d *decoder) saturate() {
	for d.bits.size <= 24 {
		d.bits.data |= uint32(d.fetchByte()) << (24 - d.bits.size)
		d.bits.size += 8
	}

	if d.bits.fill > maxFill {
		d.panic(ErrUnexpectedEnd)
	}
}

// settleFill accounts for zero bits consumed past the end of the Huffman
// segment just finished. The first shortfall in a decode is logged; a scan
// missing more than maxFill bytes in total fails.
func (d *decoder) settleFill() {
	n := d.bits.fill*8 - d.bits.size
	if n <= 0 {
		return
	}

	d.overrun += n
	if d.overrun > maxFill*8 {
		d.panic(ErrUnexpectedEnd)
	}

	if !d.truncated {
		d.truncated = true
		d.log.Warn("premature end of entropy-coded data", "bits", n)
	}
}

// read returns the next n (0..16) bits without consuming them.
func (d *decoder) read(n int) int {
	if n == 0 {
		return 0
	}

	if d.bits.size < n {
		d.saturate()
	}

	return int(d.bits.data >> (32 - n))
}

// consume drops n bits that were previously returned by read.
func (d *decoder) consume(n int) {
	d.bits.data <<= n
	d.bits.size -= n
}

// getBits reads and consumes n bits.
func (d *decoder) getBits(n int) int {
	v := d.read(n)
	d.consume(n)

	return v
}

// decodeHuffman decodes one symbol with table t.
func (d *decoder) decodeHuffman(t *huffmanTable) uint8 {
	if d.bits.size < 16 {
		d.saturate()
	}

	c := t.fast[d.bits.data>>24]
	if c.length == extensionCode {
		ext := t.ext[c.symbol]
		c = ext[(d.bits.data>>(32-t.maxLength))&uint32(len(ext)-1)]
	}

	if c.length == 0 {
		d.panic(ErrBadHuffmanCode)
	}

	d.consume(int(c.length))

	return c.symbol
}

// receiveExtend reads an s-bit magnitude and sign-extends it (T.81 F.2.2.1).
// Category 16 carries no extra bits and stands for 32768.
func (d *decoder) receiveExtend(s int) int {
	switch s {
	case 0:
		return 0
	case 16:
		return 32768
	}

	v := d.getBits(s)
	if v < 1<<(s-1) {
		v += 1 - 1<<s
	}

	return v
}
