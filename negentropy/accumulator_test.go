package negentropy

import (
	"math/rand"
	"testing"
)

func TestAccumulatorCommutative(t *testing.T) {
	ids := [][idSize]byte{
		idFromByte(0x01),
		idFromByte(0x02),
		idFromByte(0xff),
	}

	var forward, backward accumulator
	for _, id := range ids {
		forward.add(id)
	}
	for i := len(ids) - 1; i >= 0; i-- {
		backward.add(ids[i])
	}

	if forward.fingerprint(3) != backward.fingerprint(3) {
		t.Fatal("fingerprint should not depend on addition order")
	}
}

// TestAccumulatorPermutationInvariant checks invariant 1 from spec §8: any
// permutation of the same id multiset fingerprints equal.
func TestAccumulatorPermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ids := make([][idSize]byte, 40)
	for i := range ids {
		var id [idSize]byte
		rng.Read(id[:])
		ids[i] = id
	}

	base := fingerprintOf(ids)

	shuffled := append([][idSize]byte(nil), ids...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if fingerprintOf(shuffled) != base {
		t.Fatal("fingerprint differs after shuffling the same id set")
	}
}

func TestAccumulatorCarryWraps(t *testing.T) {
	var a accumulator
	var max [idSize]byte
	for i := range max {
		max[i] = 0xff
	}
	a.add(max)
	a.add(idFromByte(0x01))
	// 2^256 - 1 + 1 wraps to zero, modulo 2^256.
	var zero accumulator
	if a.fingerprint(1) != zero.fingerprint(1) {
		t.Fatal("carry out of the top byte should be discarded")
	}
}

func TestAccumulatorReset(t *testing.T) {
	var a accumulator
	a.add(idFromByte(0x09))
	a.reset()
	var zero accumulator
	if a.fingerprint(0) != zero.fingerprint(0) {
		t.Fatal("reset should return the accumulator to its zero state")
	}
}

func idFromByte(b byte) [idSize]byte {
	var id [idSize]byte
	id[0] = b
	return id
}

func fingerprintOf(ids [][idSize]byte) [fingerprintSize]byte {
	var acc accumulator
	for _, id := range ids {
		acc.add(id)
	}
	return acc.fingerprint(uint64(len(ids)))
}
