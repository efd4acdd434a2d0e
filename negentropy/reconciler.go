package negentropy

import "encoding/hex"

// ProtocolVersion is the single-byte value identifying Negentropy protocol
// v1 (§4.5). It is the only version this engine understands; a mismatched
// leading byte on an incoming message raises ErrUnsupportedVersion.
const ProtocolVersion byte = 0x61

// driverState tracks where a Reconciler sits in its New -> Awaiting-reply
// -> Done lifecycle (§4.5).
type driverState int

const (
	stateNew driverState = iota
	stateAwaitingReply
	stateDone
)

// Reconciler drives one client-side reconciliation session against a
// fixed local Store. It is single-threaded and fully synchronous: each
// Reconcile call is a pure transform from (state, incoming bytes) to
// (state', outgoing bytes or nil) with no suspension points (§5).
//
// A Reconciler is not safe for concurrent use; callers needing concurrent
// sessions should construct one Reconciler per session, each over its own
// Store.
type Reconciler struct {
	store *Store
	state driverState

	have map[[idSize]byte]struct{}
	need map[[idSize]byte]struct{}
}

// NewReconciler creates a Reconciler over store. The store is not copied
// again; pass a Store already built with NewStore.
func NewReconciler(store *Store) *Reconciler {
	return &Reconciler{
		store: store,
		have:  make(map[[idSize]byte]struct{}),
		need:  make(map[[idSize]byte]struct{}),
	}
}

// Initiate produces the engine's first outbound message: the protocol
// version byte followed by the ranges describing the whole store, with an
// open-ended (Infinity) upper bound (§4.5). It must be called exactly
// once; a second call returns ErrInvalidState.
func (r *Reconciler) Initiate() ([]byte, error) {
	if r.state != stateNew {
		return nil, ErrInvalidState
	}

	msg := []byte{ProtocolVersion}
	cursor := &tsCursor{}
	msg = produceRanges(r.store, 0, r.store.Len(), Bound{Timestamp: Infinity}, cursor, msg)

	r.state = stateAwaitingReply
	return msg, nil
}

// Reconcile consumes one message from the peer and, per §4.4, produces the
// client's reply. It returns (nil, nil) once the session has converged
// (the reply would contain nothing past the version byte). Reconcile must
// not be called before Initiate; doing so, or calling it after
// convergence, returns ErrInvalidState.
func (r *Reconciler) Reconcile(in []byte) ([]byte, error) {
	if r.state != stateAwaitingReply {
		return nil, ErrInvalidState
	}
	if len(in) < 1 {
		return nil, wrapMalformed("reconcile: empty message")
	}
	if in[0] != ProtocolVersion {
		return nil, ErrUnsupportedVersion
	}

	inCursor := &tsCursor{}
	outCursor := &tsCursor{}
	out := []byte{ProtocolVersion}

	offset := 1
	prev := Bound{Timestamp: 0, IDPrefix: nil}
	prevIndex := 0
	pendingSkip := false

	for offset < len(in) {
		curr, n, err := decodeBound(in, offset, inCursor)
		if err != nil {
			return nil, err
		}
		offset += n

		mode, n, err := decodeVarint(in, offset)
		if err != nil {
			return nil, err
		}
		offset += n

		upperLocal := r.store.findUpperBound(prevIndex, curr)

		switch mode {
		case modeSkip:
			pendingSkip = true

		case modeFingerprint:
			if offset+fingerprintSize > len(in) {
				return nil, wrapMalformed("reconcile: truncated fingerprint")
			}
			var theirFP [fingerprintSize]byte
			copy(theirFP[:], in[offset:offset+fingerprintSize])
			offset += fingerprintSize

			localFP := fingerprintRecords(r.store.records, prevIndex, upperLocal)
			if localFP == theirFP {
				pendingSkip = true
			} else {
				if pendingSkip {
					out = writeSkipRange(out, outCursor, prev)
					pendingSkip = false
				}
				out = produceRanges(r.store, prevIndex, upperLocal, curr, outCursor, out)
			}

		case modeIDList:
			count, n, err := decodeVarint(in, offset)
			if err != nil {
				return nil, err
			}
			offset += n

			peerIDs := make(map[[idSize]byte]struct{}, count)
			for i := uint64(0); i < count; i++ {
				if offset+idSize > len(in) {
					return nil, wrapMalformed("reconcile: truncated id list")
				}
				var id [idSize]byte
				copy(id[:], in[offset:offset+idSize])
				offset += idSize
				peerIDs[id] = struct{}{}
			}

			for i := prevIndex; i < upperLocal; i++ {
				rec := r.store.At(i)
				if _, ok := peerIDs[rec.ID]; ok {
					delete(peerIDs, rec.ID)
				} else {
					r.have[rec.ID] = struct{}{}
				}
			}
			for id := range peerIDs {
				r.need[id] = struct{}{}
			}

			pendingSkip = true

		default:
			return nil, wrapMalformed("reconcile: unknown range mode")
		}

		prev = curr
		prevIndex = upperLocal
	}

	// A trailing pending SKIP is simply dropped; the peer infers it from
	// the absence of further ranges (§4.4).

	if len(out) == 1 {
		r.state = stateDone
		return nil, nil
	}
	return out, nil
}

// Result returns the accumulated have and need sets as lowercase-hex ids.
// have holds ids the client reported present that the peer lacked; need
// holds ids the peer reported present that the client lacked.
func (r *Reconciler) Result() (have []string, need []string) {
	have = make([]string, 0, len(r.have))
	for id := range r.have {
		have = append(have, hex.EncodeToString(id[:]))
	}
	need = make([]string, 0, len(r.need))
	for id := range r.need {
		need = append(need, hex.EncodeToString(id[:]))
	}
	return have, need
}

// Done reports whether the session has converged.
func (r *Reconciler) Done() bool {
	return r.state == stateDone
}
