package negentropy

import "testing"

func TestNewRecordRejectsWrongLength(t *testing.T) {
	_, err := NewRecord(1, []byte{0x01, 0x02})
	if err == nil {
		t.Fatal("expected ErrInvalidRecord for short id")
	}
}

func TestNewRecordFromHexRejectsWrongLength(t *testing.T) {
	_, err := NewRecordFromHex(1, "abcd")
	if err == nil {
		t.Fatal("expected ErrInvalidRecord for short hex id")
	}
}

func TestNewRecordFromHexRoundTrip(t *testing.T) {
	idHex := "c69b000000000000000000000000000000000000000000000000000000002d2c"
	r, err := NewRecordFromHex(1762612866, idHex)
	if err != nil {
		t.Fatalf("NewRecordFromHex: %v", err)
	}
	if r.IDHex() != idHex {
		t.Fatalf("IDHex() = %s, want %s", r.IDHex(), idHex)
	}
}

func TestStoreSortsOnConstruction(t *testing.T) {
	r1, _ := NewRecord(20, make([]byte, idSize))
	id2 := make([]byte, idSize)
	id2[0] = 0x01
	r2, _ := NewRecord(10, id2)

	s := NewStore([]Record{r1, r2})
	if s.At(0).Timestamp != 10 || s.At(1).Timestamp != 20 {
		t.Fatalf("store not sorted: %+v, %+v", s.At(0), s.At(1))
	}
}

func TestStoreFindUpperBound(t *testing.T) {
	records := make([]Record, 0, 5)
	for i := uint64(0); i < 5; i++ {
		id := make([]byte, idSize)
		id[0] = byte(i)
		r, _ := NewRecord(100+i*10, id)
		records = append(records, r)
	}
	s := NewStore(records)

	// Bound at timestamp 120 (exclusive) with empty prefix should include
	// records with timestamp < 120, i.e. the first two.
	idx := s.findUpperBound(0, Bound{Timestamp: 120})
	if idx != 2 {
		t.Fatalf("findUpperBound = %d, want 2", idx)
	}

	idx = s.findUpperBound(0, Bound{Timestamp: Infinity})
	if idx != s.Len() {
		t.Fatalf("findUpperBound(Infinity) = %d, want %d", idx, s.Len())
	}

	// Starting the search partway through should not look behind `from`.
	idx = s.findUpperBound(3, Bound{Timestamp: Infinity})
	if idx != s.Len() {
		t.Fatalf("findUpperBound(3, Infinity) = %d, want %d", idx, s.Len())
	}
}

func TestCompareRecordsOrdersByTimestampThenID(t *testing.T) {
	a := Record{Timestamp: 5, ID: idFromByte(0xff)}
	b := Record{Timestamp: 6, ID: idFromByte(0x00)}
	if compareRecords(a, b) >= 0 {
		t.Fatal("a should sort before b: lower timestamp wins regardless of id")
	}

	c := Record{Timestamp: 5, ID: idFromByte(0x01)}
	d := Record{Timestamp: 5, ID: idFromByte(0x02)}
	if compareRecords(c, d) >= 0 {
		t.Fatal("c should sort before d: equal timestamp, lexicographic id")
	}
}
