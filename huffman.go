package jpegx

// extensionCode marks a fast-table slot whose codes are longer than eight bits.
// The slot's symbol then holds the index of its extension table.
const extensionCode = 0xFF

// huffmanCode is a single lookup entry: the decoded symbol and the total code length.
type huffmanCode struct {
	symbol, length uint8
}

// huffmanTable is a two-level decoding table. Codes up to eight bits resolve
// in fast; longer codes resolve in the extension table named by their first
// eight bits, indexed by the following maxLength-8 bits.
type huffmanTable struct {
	fast      [256]huffmanCode
	ext       [][]huffmanCode
	maxLength int
	counts    [16]uint8
	symbols   []uint8 // As declared, before any coercion.
	present   bool
}

// reset clears the table, keeping allocated storage.
func (h *huffmanTable) reset() {
	h.fast = [256]huffmanCode{}
	h.ext = h.ext[:0]
	h.maxLength = 0
	h.counts = [16]uint8{}
	h.symbols = h.symbols[:0]
	h.present = false
}

// build assigns canonical codes (ITU-T T.81 Annex C) and fills the lookup
// tables. Symbols above maxSymbol are replaced with 0; the number of replaced
// symbols is returned. Code sets violating the Kraft inequality build without
// error but the codes that overflow their length are dropped.
func (h *huffmanTable) build(counts [16]uint8, symbols []uint8, maxSymbol uint8) (coerced int) {
	raw := append([]uint8(nil), symbols...)

	h.reset()
	h.counts = counts
	h.symbols = append(h.symbols, raw...)

	for length := 16; length > 0; length-- {
		if counts[length-1] != 0 {
			h.maxLength = length

			break
		}
	}

	code, k := 0, 0
	for length := 1; length <= 16; length++ {
		for i := 0; i < int(counts[length-1]) && k < len(raw); i++ {
			symbol := raw[k]
			k++

			if symbol > maxSymbol {
				symbol = 0
				coerced++
			}

			if code < 1<<length {
				h.insert(code, length, symbol)
			}

			code++
		}

		code <<= 1
	}

	h.present = true

	return coerced
}

// insert places one code into the fast table, or into an extension table for
// codes longer than eight bits.
func (h *huffmanTable) insert(code, length int, symbol uint8) {
	if length <= 8 {
		shift := 8 - length
		base := code << shift

		for j := 0; j < 1<<shift; j++ {
			h.fast[base+j] = huffmanCode{symbol: symbol, length: uint8(length)}
		}

		return
	}

	slot := &h.fast[code>>(length-8)]
	if slot.length != extensionCode {
		if slot.length != 0 {
			// The prefix is already a complete short code.
			return
		}

		slot.length = extensionCode
		slot.symbol = uint8(len(h.ext))
		h.ext = append(h.ext, make([]huffmanCode, 1<<(h.maxLength-8)))
	}

	ext := h.ext[slot.symbol]
	rest := length - 8
	shift := h.maxLength - length
	base := (code & (1<<rest - 1)) << shift

	for j := 0; j < 1<<shift; j++ {
		ext[base+j] = huffmanCode{symbol: symbol, length: uint8(length)}
	}
}
