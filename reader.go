package jpegx

// reader is a cursor over the encoded byte stream. Segment handlers read
// relative to pos and are bounded by length, the number of payload bytes left
// in the current marker segment.
type reader struct {
	data   []byte // Input buffer containing the entire JPEG file.
	pos    int    // Current position index in the input buffer.
	size   int    // Remaining bytes to be processed.
	length int    // Remaining payload bytes of the current marker segment.
}

func (r *reader) init(data []byte) {
	r.data = data
	r.pos = 0
	r.size = len(data)
	r.length = 0
}

// seek moves the cursor to an absolute offset.
func (r *reader) seek(pos int) {
	if pos < 0 {
		pos = 0
	}

	if pos > len(r.data) {
		pos = len(r.data)
	}

	r.pos = pos
	r.size = len(r.data) - pos
}

// skip advances the current position by count bytes.
func (r *reader) skip(count int) error {
	r.pos += count
	r.size -= count

	if r.length >= count {
		r.length -= count
	} else {
		r.length = 0
	}

	if r.size < 0 {
		r.pos += r.size
		r.size = 0

		return ErrBadSegmentLength
	}

	return nil
}

// u8 reads the byte at offset from the current position.
func (r *reader) u8(offset int) int {
	return int(r.data[r.pos+offset])
}

// decode16 reads a 16-bit big-endian integer at offset from the current position.
func (r *reader) decode16(offset int) int {
	p := r.pos + offset

	return (int(r.data[p]) << 8) | int(r.data[p+1])
}

// decodeLength reads the 16-bit length field of a marker segment and leaves
// length holding the payload size.
func (r *reader) decodeLength() error {
	if r.size < 2 {
		return ErrBadSegmentLength
	}

	length := r.decode16(0)
	if length < 2 || length > r.size {
		return ErrBadSegmentLength
	}

	r.length = length
	if err := r.skip(2); err != nil {
		return err
	}

	return nil
}

// need checks that the current segment still holds n payload bytes.
func (r *reader) need(n int) error {
	if r.length < n {
		return ErrBadSegmentLength
	}

	return nil
}

// skipSegment reads the length of the current segment and skips its payload.
func (r *reader) skipSegment() error {
	if err := r.decodeLength(); err != nil {
		return err
	}

	return r.skip(r.length)
}

// nextMarker advances to the next marker that is not a stuffed 0xFF00, a fill
// byte or a restart marker and returns its offset, or -1 if the data ends first.
func (r *reader) nextMarker(from int) int {
	for i := from; i+1 < len(r.data); i++ {
		if r.data[i] != 0xFF {
			continue
		}

		m := r.data[i+1]
		if m == 0x00 || m == 0xFF || isRST(m) {
			continue
		}

		return i
	}

	return -1
}
