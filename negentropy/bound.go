package negentropy

import "bytes"

// Infinity is the distinguished timestamp that sorts above every record.
// On the wire it is encoded as timestamp delta 0 (§3, §4.3).
const Infinity uint64 = (1 << 63) - 1

// Bound is an exclusive upper frontier in the (timestamp, id) total order:
// a record r is below Bound{Timestamp, IDPrefix} iff r.Timestamp is less,
// or the timestamps are equal and r.ID's matching-length prefix sorts
// before IDPrefix lexicographically.
type Bound struct {
	Timestamp uint64
	IDPrefix  []byte // len in [0, 32]
}

// below reports whether r sorts strictly before b in the total order.
func (r Record) below(b Bound) bool {
	if r.Timestamp != b.Timestamp {
		return r.Timestamp < b.Timestamp
	}
	n := len(b.IDPrefix)
	return bytes.Compare(r.ID[:n], b.IDPrefix) < 0
}

// shortestDistinguishingBound returns the tightest Bound b such that
// lo < b <= hi in the total order, given lo <= hi (§4.4, §9). When the
// timestamps differ, the empty-prefix bound at hi's timestamp already
// separates them. When the timestamps are equal, the bound carries the
// shortest id prefix of hi that still strictly exceeds lo's id -- one byte
// past the first differing position. Duplicate records (equal timestamp
// and id) are valid input (§3): lo and hi then compare equal for all 32
// bytes, and the full id is already the tightest bound.
func shortestDistinguishingBound(lo, hi Record) Bound {
	if lo.Timestamp != hi.Timestamp {
		return Bound{Timestamp: hi.Timestamp}
	}
	k := 0
	for k < idSize && lo.ID[k] == hi.ID[k] {
		k++
	}
	prefixLen := k + 1
	if k == idSize {
		prefixLen = idSize
	}
	prefix := make([]byte, prefixLen)
	copy(prefix, hi.ID[:prefixLen])
	return Bound{Timestamp: hi.Timestamp, IDPrefix: prefix}
}

// tsCursor tracks the running timestamp used for delta-coding a single
// direction (outbound or inbound) of one message. Both directions' cursors
// reset to zero at the start of every message (§3, §9); callers must
// construct a fresh tsCursor per reconcile call rather than reuse one
// across messages.
type tsCursor struct {
	last uint64
}

// encodeTimestamp appends the delta-coded form of ts to dst and advances
// the cursor (§4.3). Infinity is encoded as delta 0 regardless of the
// cursor's current value.
func (c *tsCursor) encodeTimestamp(dst []byte, ts uint64) []byte {
	if ts == Infinity {
		c.last = Infinity
		return encodeVarint(dst, 0)
	}
	delta := ts - c.last + 1
	c.last = ts
	return encodeVarint(dst, delta)
}

// decodeTimestamp reads a delta-coded timestamp from src at offset and
// advances the cursor (§4.3). A zero delta decodes to Infinity.
func (c *tsCursor) decodeTimestamp(src []byte, offset int) (uint64, int, error) {
	delta, n, err := decodeVarint(src, offset)
	if err != nil {
		return 0, 0, err
	}
	if delta == 0 {
		c.last = Infinity
		return Infinity, n, nil
	}
	ts := c.last + delta - 1
	c.last = ts
	return ts, n, nil
}

// encodeBound appends the wire encoding of b to dst: a delta-coded
// timestamp, a varint length prefix, and the id prefix bytes (§4.3).
func encodeBound(dst []byte, cursor *tsCursor, b Bound) []byte {
	dst = cursor.encodeTimestamp(dst, b.Timestamp)
	dst = encodeVarint(dst, uint64(len(b.IDPrefix)))
	dst = append(dst, b.IDPrefix...)
	return dst
}

// decodeBound reads a Bound from src at offset, advancing cursor. It
// returns ErrMalformed if the id-prefix length exceeds 32 or the input is
// truncated.
func decodeBound(src []byte, offset int, cursor *tsCursor) (Bound, int, error) {
	start := offset
	ts, n, err := cursor.decodeTimestamp(src, offset)
	if err != nil {
		return Bound{}, 0, err
	}
	offset += n

	length, n, err := decodeVarint(src, offset)
	if err != nil {
		return Bound{}, 0, err
	}
	offset += n

	if length > idSize {
		return Bound{}, 0, wrapMalformed("bound: id prefix length exceeds 32")
	}
	if offset+int(length) > len(src) {
		return Bound{}, 0, wrapMalformed("bound: truncated id prefix")
	}

	prefix := make([]byte, length)
	copy(prefix, src[offset:offset+int(length)])
	offset += int(length)

	return Bound{Timestamp: ts, IDPrefix: prefix}, offset - start, nil
}
