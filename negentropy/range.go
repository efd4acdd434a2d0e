package negentropy

// Range mode byte-codes (§4.4, §6.1).
const (
	modeSkip        uint64 = 0
	modeFingerprint uint64 = 1
	modeIDList      uint64 = 2
)

// idListThreshold is the smallest sub-range size that is split into 16
// fingerprinted buckets; anything smaller is enumerated as an ID_LIST (§4.4).
const idListThreshold = 32

// numBuckets is the fixed fan-out of a fingerprinted split.
const numBuckets = 16

// produceRanges emits the wire ranges describing records[lo:hi), whose
// upper frontier is upperBound, appending them to dst using cursor for
// delta-timestamp coding. This is used both to build the engine's initial
// message (lo=0, hi=store.Len(), upperBound=Infinity) and, recursively,
// whenever a disagreeing fingerprint range is split (§4.4).
func produceRanges(store *Store, lo, hi int, upperBound Bound, cursor *tsCursor, dst []byte) []byte {
	n := hi - lo
	if n < idListThreshold {
		return writeIDListRange(dst, cursor, upperBound, store.slice(lo, hi))
	}

	base := n / numBuckets
	extra := n % numBuckets

	start := lo
	for i := 0; i < numBuckets; i++ {
		size := base
		if i < extra {
			size++
		}
		end := start + size

		var bound Bound
		if i == numBuckets-1 {
			bound = upperBound
		} else {
			bound = shortestDistinguishingBound(store.At(end-1), store.At(end))
		}

		fp := fingerprintRecords(store.records, start, end)
		dst = writeRangeHeader(dst, cursor, bound, modeFingerprint)
		dst = append(dst, fp[:]...)

		start = end
	}
	return dst
}

// writeIDListRange appends a single ID_LIST range covering records.
func writeIDListRange(dst []byte, cursor *tsCursor, bound Bound, records []Record) []byte {
	dst = writeRangeHeader(dst, cursor, bound, modeIDList)
	dst = encodeVarint(dst, uint64(len(records)))
	for _, r := range records {
		dst = append(dst, r.ID[:]...)
	}
	return dst
}

// writeSkipRange appends a single SKIP range with no payload.
func writeSkipRange(dst []byte, cursor *tsCursor, bound Bound) []byte {
	return writeRangeHeader(dst, cursor, bound, modeSkip)
}

// writeRangeHeader appends bound and mode -- the two fields common to
// every range -- and returns the extended slice. Callers append the
// mode-specific payload (if any) themselves.
func writeRangeHeader(dst []byte, cursor *tsCursor, bound Bound, mode uint64) []byte {
	dst = encodeBound(dst, cursor, bound)
	dst = encodeVarint(dst, mode)
	return dst
}
