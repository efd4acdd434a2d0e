package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nogringo/nip77/log"
	"github.com/nogringo/nip77/negentropy"
)

// Result is the outcome of a converged reconciliation session.
type Result struct {
	HaveIDs []string
	NeedIDs []string
}

// frameKind distinguishes the few things that can land in a session's
// inbox. It is internal to the session/manager pair and deliberately
// distinct from the wire-level Kind so a manager-synthesized
// TRANSPORT_DOWN notification can't be confused with a real NEG-ERR frame.
type frameKind int

const (
	frameNegMsg frameKind = iota
	framePeerError
	frameTransportDown
)

type inboundFrame struct {
	kind    frameKind
	msgHex  string
	code    string
	details string
}

// Session drives one negentropy reconciliation over a shared Transport,
// identified by a subscription id unique within its Manager.
type Session struct {
	id         string
	filter     Filter
	idSize     int
	transport  Transport
	reconciler *negentropy.Reconciler
	timeout    time.Duration
	inbox      chan inboundFrame
	log        *log.Logger
}

func newSession(id string, store *negentropy.Store, transport Transport, filter Filter, idSize int, timeout time.Duration, logger *log.Logger) *Session {
	return &Session{
		id:         id,
		filter:     filter,
		idSize:     idSize,
		transport:  transport,
		reconciler: negentropy.NewReconciler(store),
		timeout:    timeout,
		inbox:      make(chan inboundFrame, 64),
		log:        logger.With("sub", id),
	}
}

// deliver feeds a frame routed to this session by its Manager. The inbox
// is dropped into rather than blocked on, matching the drop-if-full
// pattern used for notification fan-out elsewhere in this codebase: a
// slow or stuck session must never stall the shared transport's read loop.
func (s *Session) deliver(f inboundFrame) {
	select {
	case s.inbox <- f:
	default:
		s.log.Warn("dropping frame: inbox full")
	}
}

// ID returns the session's subscription id.
func (s *Session) ID() string { return s.id }

// run opens the session with NEG-OPEN, exchanges NEG-MSG frames until the
// reconciler has nothing further to send (Reconcile returns nil), sends
// NEG-CLOSE, and
// returns the accumulated have/need ids. It returns early, without sending
// NEG-CLOSE, on peer error, transport failure, timeout, or context
// cancellation -- in each of those cases the caller is responsible for the
// session-fatal cleanup described in the error handling design (the
// Manager performs this when driving Open).
func (s *Session) run(ctx context.Context) (Result, error) {
	initMsg, err := s.reconciler.Initiate()
	if err != nil {
		return Result{}, err
	}
	open, err := BuildNegOpen(s.id, s.filter, hex.EncodeToString(initMsg), s.idSize)
	if err != nil {
		return Result{}, err
	}
	if err := s.transport.WriteMessage(open); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTransportDown, err)
	}

	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()

		case <-deadline.C:
			return Result{}, ErrTimeout

		case frame := <-s.inbox:
			switch frame.kind {
			case framePeerError:
				return Result{}, fmt.Errorf("%w: %s: %s", ErrPeerError, frame.code, frame.details)

			case frameTransportDown:
				return Result{}, fmt.Errorf("%w: %s", ErrTransportDown, frame.details)

			case frameNegMsg:
				in, err := hex.DecodeString(frame.msgHex)
				if err != nil {
					return Result{}, fmt.Errorf("session: malformed NEG-MSG hex: %w", err)
				}
				out, err := s.reconciler.Reconcile(in)
				if err != nil {
					return Result{}, err
				}
				if out == nil {
					have, need := s.reconciler.Result()
					if closeMsg, buildErr := BuildNegClose(s.id); buildErr == nil {
						_ = s.transport.WriteMessage(closeMsg)
					}
					return Result{HaveIDs: have, NeedIDs: need}, nil
				}
				reply, err := BuildNegMsg(s.id, hex.EncodeToString(out))
				if err != nil {
					return Result{}, err
				}
				if err := s.transport.WriteMessage(reply); err != nil {
					return Result{}, fmt.Errorf("%w: %v", ErrTransportDown, err)
				}

				// Reconciliation is progressing; push the deadline back out
				// rather than bounding the whole exchange by one window.
				if !deadline.Stop() {
					<-deadline.C
				}
				deadline.Reset(s.timeout)
			}
		}
	}
}
