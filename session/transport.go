package session

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a duplex, message-oriented channel carrying JSON array
// envelopes. The session layer multiplexes many sessions over a single
// Transport, keyed by subscription id.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// WSTransport is a Transport backed by a relay WebSocket connection.
type WSTransport struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// DialWS opens a WebSocket connection to a relay URL (ws:// or wss://) and
// wraps it as a Transport.
func DialWS(url string, handshakeTimeout time.Duration) (*WSTransport, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.Dial(url, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportDown, err)
	}
	return &WSTransport{conn: conn}, nil
}

// ReadMessage blocks for the next text frame from the relay.
func (t *WSTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportDown, err)
	}
	return data, nil
}

// WriteMessage sends data as a single text frame. Writes are serialized
// because gorilla/websocket forbids concurrent writers on one connection.
func (t *WSTransport) WriteMessage(data []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportDown, err)
	}
	return nil
}

// Close closes the underlying connection.
func (t *WSTransport) Close() error {
	return t.conn.Close()
}

// Pipe creates a pair of connected in-memory Transports for tests: a
// message written to one end is readable from the other, and vice versa.
// Closing either end shuts down both.
func Pipe() (*PipeEnd, *PipeEnd) {
	ch1 := make(chan []byte, 64)
	ch2 := make(chan []byte, 64)
	done := make(chan struct{})
	once := new(sync.Once)

	a := &PipeEnd{send: ch1, recv: ch2, done: done, closeOnce: once}
	b := &PipeEnd{send: ch2, recv: ch1, done: done, closeOnce: once}
	return a, b
}

// PipeEnd is one side of an in-memory Transport pair.
type PipeEnd struct {
	send      chan []byte
	recv      chan []byte
	done      chan struct{}
	closeOnce *sync.Once
}

func (p *PipeEnd) ReadMessage() ([]byte, error) {
	select {
	case msg, ok := <-p.recv:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-p.done:
		return nil, io.EOF
	}
}

func (p *PipeEnd) WriteMessage(data []byte) error {
	select {
	case p.send <- data:
		return nil
	case <-p.done:
		return errors.New("session: pipe closed")
	}
}

func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}
