package session

import "encoding/json"

// Event is the minimal NIP-01 event envelope the session layer moves
// opaquely between the transport and the caller. Field validation and
// signature verification are out of scope here; the reconciliation engine
// only ever sees an event's id and created_at via the caller-supplied
// record store.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Filter is passed through to the relay unexamined: filter matching
// semantics are a relay-side concern, not something this client evaluates.
type Filter json.RawMessage

// MarshalJSON satisfies json.Marshaler so a Filter can be embedded directly
// in an envelope array.
func (f Filter) MarshalJSON() ([]byte, error) {
	if len(f) == 0 {
		return []byte("{}"), nil
	}
	return f, nil
}

// UnmarshalJSON satisfies json.Unmarshaler, storing the raw filter bytes
// without interpreting them.
func (f *Filter) UnmarshalJSON(data []byte) error {
	*f = append((*f)[:0], data...)
	return nil
}
