package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nogringo/nip77/log"
	"github.com/nogringo/nip77/negentropy"
)

// Manager is the routing table for sessions multiplexed over one shared
// Transport, keyed by subscription id. Per the concurrency model, the core
// engine owns no shared state and the session layer owns the routing
// table; Manager is that routing table.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	fetches  map[string]chan Envelope // REQ subscription id -> EVENT/EOSE sink
	acks     map[string]chan Envelope // published event id -> OK sink
	nextSeq  atomic.Uint64
	closed   bool
	log      *log.Logger
}

// NewManager creates an empty Manager. A nil logger falls back to the
// package-level default.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		fetches:  make(map[string]chan Envelope),
		acks:     make(map[string]chan Envelope),
		log:      logger.Module("session"),
	}
}

// generateSubID returns a collision-free subscription id of the form
// recommended by the framing spec: "neg_" plus a monotonic counter.
func (m *Manager) generateSubID() string {
	return fmt.Sprintf("neg_%d", m.nextSeq.Add(1))
}

// GenerateFetchSubID returns a collision-free subscription id for a plain
// REQ (not a negentropy session), used by the client layer's
// sync_and_fetch workflow.
func (m *Manager) GenerateFetchSubID() string {
	return fmt.Sprintf("fetch_%d", m.nextSeq.Add(1))
}

// RegisterFetch opens a routing slot for the EVENT/EOSE replies to a REQ
// subscription. The caller must invoke the returned cancel func once done
// to free the slot and the channel.
func (m *Manager) RegisterFetch(sub string) (ch <-chan Envelope, cancel func()) {
	c := make(chan Envelope, 256)
	m.mu.Lock()
	m.fetches[sub] = c
	m.mu.Unlock()
	return c, func() {
		m.mu.Lock()
		delete(m.fetches, sub)
		m.mu.Unlock()
	}
}

// RegisterAck opens a routing slot for the OK acknowledgement of a
// published event, keyed by the event's id.
func (m *Manager) RegisterAck(eventID string) (ch <-chan Envelope, cancel func()) {
	c := make(chan Envelope, 1)
	m.mu.Lock()
	m.acks[eventID] = c
	m.mu.Unlock()
	return c, func() {
		m.mu.Lock()
		delete(m.acks, eventID)
		m.mu.Unlock()
	}
}

// Open registers a new session against store and drives it to convergence
// (or failure) over transport, blocking until the session ends. The
// session is removed from the routing table before Open returns, whether
// it converged or failed.
func (m *Manager) Open(ctx context.Context, store *negentropy.Store, transport Transport, filter Filter, idSize int, timeout time.Duration) (Result, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Result{}, ErrManagerClosed
	}
	id := m.generateSubID()
	sess := newSession(id, store, transport, filter, idSize, timeout, m.log)
	m.sessions[id] = sess
	m.mu.Unlock()

	result, err := sess.run(ctx)

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("session ended with error", "sub", id, "err", err)
		if closeMsg, buildErr := BuildNegClose(id); buildErr == nil {
			_ = transport.WriteMessage(closeMsg)
		}
	}
	return result, err
}

// Dispatch routes one decoded envelope: NEG-MSG/NEG-ERR to the matching
// negentropy session, a qualifying NOTICE to all of them, EVENT/EOSE to the
// matching registered fetch, and OK to the matching registered publish
// acknowledgement.
func (m *Manager) Dispatch(env Envelope) {
	switch env.Kind {
	case KindNegMsg:
		sub, msgHex, err := ParseNegMsg(env)
		if err != nil {
			m.log.Warn("malformed NEG-MSG", "err", err)
			return
		}
		m.deliverTo(sub, inboundFrame{kind: frameNegMsg, msgHex: msgHex})

	case KindNegErr:
		sub, code, details, err := ParseNegErr(env)
		if err != nil {
			m.log.Warn("malformed NEG-ERR", "err", err)
			return
		}
		m.deliverTo(sub, inboundFrame{kind: framePeerError, code: code, details: details})

	case KindNotice:
		text, err := ParseNotice(env)
		if err != nil || !IsNegentropyNotice(text) {
			return
		}
		m.broadcast(inboundFrame{kind: framePeerError, code: "NOTICE", details: text})

	case KindEvent:
		sub, _, err := ParseEvent(env)
		if err != nil {
			m.log.Warn("malformed EVENT", "err", err)
			return
		}
		m.deliverFetch(sub, env)

	case KindEOSE:
		sub, err := ParseEOSE(env)
		if err != nil {
			m.log.Warn("malformed EOSE", "err", err)
			return
		}
		m.deliverFetch(sub, env)

	case KindOK:
		eventID, _, _, err := ParseOK(env)
		if err != nil {
			m.log.Warn("malformed OK", "err", err)
			return
		}
		m.mu.Lock()
		ch := m.acks[eventID]
		m.mu.Unlock()
		if ch == nil {
			return
		}
		select {
		case ch <- env:
		default:
		}
	}
}

func (m *Manager) deliverFetch(sub string, env Envelope) {
	m.mu.Lock()
	ch := m.fetches[sub]
	m.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- env:
	default:
		m.log.Warn("dropping fetch frame: sink full", "sub", sub)
	}
}

func (m *Manager) deliverTo(sub string, f inboundFrame) {
	m.mu.Lock()
	sess := m.sessions[sub]
	m.mu.Unlock()
	if sess == nil {
		m.log.Warn("frame for unknown session", "sub", sub)
		return
	}
	sess.deliver(f)
}

func (m *Manager) broadcast(f inboundFrame) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.deliver(f)
	}
}

// Pump reads envelopes off transport and routes them until ReadMessage
// fails or ctx is cancelled. It is meant to run for the lifetime of the
// shared transport, typically in its own goroutine.
func (m *Manager) Pump(ctx context.Context, transport Transport) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := transport.ReadMessage()
		if err != nil {
			m.broadcast(inboundFrame{kind: frameTransportDown, details: err.Error()})
			return err
		}
		env, err := ParseEnvelope(data)
		if err != nil {
			m.log.Warn("malformed envelope", "err", err)
			continue
		}
		m.Dispatch(env)
	}
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close marks the manager closed and wakes every pending session with a
// CLOSED peer-error frame, so their Open calls return ErrPeerError; Open
// refuses new sessions afterward with ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.deliver(inboundFrame{kind: framePeerError, code: "CLOSED", details: "manager closed"})
	}
}
