package negentropy

import "crypto/sha256"

// idSize is the fixed width of a record id, in bytes.
const idSize = 32

// fingerprintSize is the width of a fingerprint, in bytes: the leading
// truncation of a SHA-256 digest.
const fingerprintSize = 16

// accumulator is a mutable 256-bit little-endian integer used to sum the
// ids of a range of records. Addition is performed modulo 2^256; the
// commutative, associative structure of modular addition makes the
// resulting fingerprint independent of insertion order, so two ranges
// holding the same multiset of ids always fingerprint equal.
type accumulator struct {
	bytes [idSize]byte
}

// reset zeros the accumulator, returning it to the additive identity.
func (a *accumulator) reset() {
	a.bytes = [idSize]byte{}
}

// add performs byte-wise addition with carry from index 0 (least
// significant) to index 31 (most significant); any carry out of the top
// byte is discarded, implementing addition modulo 2^256.
func (a *accumulator) add(other [idSize]byte) {
	var carry uint16
	for i := 0; i < idSize; i++ {
		sum := uint16(a.bytes[i]) + uint16(other[i]) + carry
		a.bytes[i] = byte(sum)
		carry = sum >> 8
	}
}

// fingerprint returns SHA256(acc_bytes || varint(n))[0:16], the 128-bit tag
// summarizing a range holding n elements whose ids sum to this
// accumulator's state.
func (a *accumulator) fingerprint(n uint64) [fingerprintSize]byte {
	h := sha256.New()
	h.Write(a.bytes[:])
	var buf []byte
	buf = encodeVarint(buf, n)
	h.Write(buf)

	var digest [sha256.Size]byte
	h.Sum(digest[:0])

	var out [fingerprintSize]byte
	copy(out[:], digest[:fingerprintSize])
	return out
}

// fingerprintRecords computes the fingerprint of records[lo:hi] in a single
// pass, without mutating the caller's accumulator state.
func fingerprintRecords(records []Record, lo, hi int) [fingerprintSize]byte {
	var acc accumulator
	for i := lo; i < hi; i++ {
		acc.add(records[i].ID)
	}
	return acc.fingerprint(uint64(hi - lo))
}
