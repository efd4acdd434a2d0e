package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nogringo/nip77/negentropy"
)

// fakeRelay plays just enough of the relay side of the framing protocol to
// exercise Session/Manager: it reads one NEG-OPEN and then replies on cue
// with whatever the test script provides.
type fakeRelay struct {
	t     *testing.T
	end   *PipeEnd
	sub   string
	init  string
}

func newFakeRelay(t *testing.T, end *PipeEnd) *fakeRelay {
	return &fakeRelay{t: t, end: end}
}

func (r *fakeRelay) readOpen() {
	r.t.Helper()
	data, err := r.end.ReadMessage()
	if err != nil {
		r.t.Fatalf("reading NEG-OPEN: %v", err)
	}
	env, err := ParseEnvelope(data)
	if err != nil {
		r.t.Fatalf("parsing NEG-OPEN: %v", err)
	}
	if env.Kind != KindNegOpen {
		r.t.Fatalf("Kind = %s, want NEG-OPEN", env.Kind)
	}
	var sub, init string
	if err := json.Unmarshal(env.Rest[0], &sub); err != nil {
		r.t.Fatal(err)
	}
	if err := json.Unmarshal(env.Rest[2], &init); err != nil {
		r.t.Fatal(err)
	}
	r.sub = sub
	r.init = init
}

func (r *fakeRelay) replyDone() {
	r.t.Helper()
	msg, err := BuildNegMsg(r.sub, hex.EncodeToString([]byte{negentropy.ProtocolVersion}))
	if err != nil {
		r.t.Fatal(err)
	}
	if err := r.end.WriteMessage(msg); err != nil {
		r.t.Fatal(err)
	}
}

func (r *fakeRelay) replyErr(code, details string) {
	r.t.Helper()
	text := code
	if details != "" {
		text = fmt.Sprintf("%s: %s", code, details)
	}
	msg, err := json.Marshal([]any{KindNegErr, r.sub, text})
	if err != nil {
		r.t.Fatal(err)
	}
	if err := r.end.WriteMessage(msg); err != nil {
		r.t.Fatal(err)
	}
}

func TestSessionConvergesImmediatelyWithEmptyPeer(t *testing.T) {
	clientEnd, relayEnd := Pipe()
	defer clientEnd.Close()
	defer relayEnd.Close()

	relay := newFakeRelay(t, relayEnd)
	done := make(chan struct{})
	go func() {
		relay.readOpen()
		relay.replyDone()
		close(done)
	}()

	mgr := NewManager(nil)
	go func() {
		_ = mgr.Pump(context.Background(), clientEnd)
	}()

	store := negentropy.NewStore(nil)
	result, err := mgr.Open(context.Background(), store, clientEnd, Filter(`{}`), 0, 2*time.Second)
	<-done
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(result.HaveIDs) != 0 || len(result.NeedIDs) != 0 {
		t.Fatalf("got %+v, want empty result", result)
	}
}

func TestSessionReturnsPeerError(t *testing.T) {
	clientEnd, relayEnd := Pipe()
	defer clientEnd.Close()
	defer relayEnd.Close()

	relay := newFakeRelay(t, relayEnd)
	go func() {
		relay.readOpen()
		relay.replyErr("RATE_LIMITED", "slow down")
	}()

	mgr := NewManager(nil)
	go func() {
		_ = mgr.Pump(context.Background(), clientEnd)
	}()

	store := negentropy.NewStore(nil)
	_, err := mgr.Open(context.Background(), store, clientEnd, Filter(`{}`), 0, 2*time.Second)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestSessionTimesOutWithoutReply(t *testing.T) {
	clientEnd, relayEnd := Pipe()
	defer clientEnd.Close()
	defer relayEnd.Close()

	go func() {
		// Drain the NEG-OPEN so WriteMessage doesn't block, but never reply.
		_, _ = relayEnd.ReadMessage()
	}()

	mgr := NewManager(nil)
	go func() {
		_ = mgr.Pump(context.Background(), clientEnd)
	}()

	store := negentropy.NewStore(nil)
	_, err := mgr.Open(context.Background(), store, clientEnd, Filter(`{}`), 0, 50*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}
