package negentropy

// Unsigned base-128 variable-length integers, most-significant group first.
// This is the encoding the Negentropy wire format uses for every length,
// count and timestamp delta; it is NOT the little-endian LEB128 varint
// used by protobuf or most other wire protocols, and the two are not
// interchangeable on the wire.

// maxVarintBytes bounds how many continuation bytes decodeVarint will
// consume before giving up: 10 groups of 7 bits (70 bits) cover a full
// uint64 with six bits to spare, matching the encoder's maximum output length.
const maxVarintBytes = 10

// encodeVarint appends the base-128 encoding of v to dst, most-significant
// group first, and returns the extended slice. encodeVarint(0) appends the
// single byte 0x00.
func encodeVarint(dst []byte, v uint64) []byte {
	// Collect 7-bit groups least-significant-first, then emit them in
	// reverse so the wire order is most-significant-group first.
	var groups [maxVarintBytes]byte
	n := 0
	groups[n] = byte(v & 0x7f)
	n++
	v >>= 7
	for v > 0 {
		groups[n] = byte(v & 0x7f)
		n++
		v >>= 7
	}

	for i := n - 1; i >= 0; i-- {
		b := groups[i]
		if i != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}

// decodeVarint reads a base-128 varint from src starting at offset and
// returns the decoded value and the number of bytes consumed. It fails
// with ErrMalformed if the input is exhausted before a terminating byte
// (high bit clear) is found, or if more than maxVarintBytes groups are
// read without terminating.
func decodeVarint(src []byte, offset int) (uint64, int, error) {
	var value uint64
	read := 0
	for {
		if offset+read >= len(src) {
			return 0, 0, wrapMalformed("varint: truncated input")
		}
		if read >= maxVarintBytes {
			return 0, 0, wrapMalformed("varint: too many continuation bytes")
		}
		b := src[offset+read]
		value = (value << 7) | uint64(b&0x7f)
		read++
		if b&0x80 == 0 {
			return value, read, nil
		}
	}
}
