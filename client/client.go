// Package client provides the programmatic surface described in the
// external interfaces section: sync, sync_and_fetch, publish, and close,
// layered over a session.Manager and a single relay Transport.
package client

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nogringo/nip77/log"
	"github.com/nogringo/nip77/negentropy"
	"github.com/nogringo/nip77/session"
)

// SyncResult is the outcome of a completed reconciliation.
type SyncResult struct {
	HaveIDs []string
	NeedIDs []string
}

// PublishResult reports whether a published event was accepted.
type PublishResult struct {
	Accepted bool
	Message  string
}

// Client drives negentropy reconciliation sessions and the companion
// REQ/EVENT/EOSE/CLOSE/OK workflow against a single relay connection.
type Client struct {
	cfg       Config
	transport session.Transport
	manager   *session.Manager
	log       *log.Logger

	cancel context.CancelFunc
	runCtx context.Context
	group  *errgroup.Group

	fetchGroup singleflight.Group

	mu     sync.Mutex
	closed bool
}

// Dial opens a WebSocket connection to cfg.RelayURL and starts the shared
// read pump that routes inbound frames to sessions and fetches.
func Dial(cfg Config) (*Client, error) {
	if cfg.RelayURL == "" {
		return nil, fmt.Errorf("client: RelayURL is required")
	}
	transport, err := session.DialWS(cfg.RelayURL, cfg.HandshakeTimeout)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, transport), nil
}

// newClient wires a Client around an already-connected Transport. It is
// unexported so production callers go through Dial, but tests substitute
// an in-memory Transport directly.
func newClient(cfg Config, transport session.Transport) *Client {
	if cfg.FrameSizeLimit <= 0 {
		cfg.FrameSizeLimit = DefaultFrameSizeLimit
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	c := &Client{
		cfg:       cfg,
		transport: transport,
		manager:   session.NewManager(cfg.logger()),
		log:       cfg.logger().Module("client"),
		cancel:    cancel,
		runCtx:    gctx,
		group:     g,
	}
	g.Go(func() error {
		return c.manager.Pump(gctx, transport)
	})
	return c
}

// Sync opens a session, drives reconciliation to convergence against
// filter, and returns the have/need id sets.
func (c *Client) Sync(myEvents []negentropy.Record, filter session.Filter) (SyncResult, error) {
	if c.isClosed() {
		return SyncResult{}, ErrClosed
	}
	store := negentropy.NewStore(myEvents)
	result, err := c.manager.Open(c.runCtx, store, c.transport, filter, c.cfg.IDSize, c.cfg.SyncTimeout)
	if err != nil {
		return SyncResult{}, err
	}
	return SyncResult{HaveIDs: result.HaveIDs, NeedIDs: result.NeedIDs}, nil
}

// SyncAndFetch syncs, then issues a follow-up REQ for need_ids and
// collects the returned events. Concurrent calls requesting an identical
// set of need_ids share one underlying fetch.
func (c *Client) SyncAndFetch(myEvents []negentropy.Record, filter session.Filter) ([]session.Event, error) {
	result, err := c.Sync(myEvents, filter)
	if err != nil {
		return nil, err
	}
	if len(result.NeedIDs) == 0 {
		return nil, nil
	}

	sortedIDs := append([]string(nil), result.NeedIDs...)
	sort.Strings(sortedIDs)
	key := strings.Join(sortedIDs, ",")
	v, err, _ := c.fetchGroup.Do(key, func() (any, error) {
		return c.fetchByIDs(result.NeedIDs)
	})
	if err != nil {
		return nil, err
	}
	return v.([]session.Event), nil
}

func (c *Client) fetchByIDs(ids []string) ([]session.Event, error) {
	sub := c.manager.GenerateFetchSubID()
	filterJSON := fmt.Sprintf(`{"ids":%s}`, marshalIDList(ids))

	events, cancel := c.manager.RegisterFetch(sub)
	defer cancel()

	req, err := session.BuildReq(sub, session.Filter(filterJSON))
	if err != nil {
		return nil, err
	}
	if err := c.transport.WriteMessage(req); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrTransportDown, err)
	}
	defer func() {
		if closeMsg, err := session.BuildClose(sub); err == nil {
			_ = c.transport.WriteMessage(closeMsg)
		}
	}()

	var out []session.Event
	for {
		select {
		case <-c.runCtx.Done():
			return out, c.runCtx.Err()
		case env := <-events:
			switch env.Kind {
			case session.KindEvent:
				_, ev, err := session.ParseEvent(env)
				if err != nil {
					c.log.Warn("malformed EVENT in fetch", "err", err)
					continue
				}
				out = append(out, ev)
			case session.KindEOSE:
				return out, nil
			}
		}
	}
}

func marshalIDList(ids []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(id)
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return b.String()
}

// Publish sends one event and waits for the relay's OK acknowledgement.
func (c *Client) Publish(ev session.Event) (PublishResult, error) {
	if c.isClosed() {
		return PublishResult{}, ErrClosed
	}

	acks, cancel := c.manager.RegisterAck(ev.ID)
	defer cancel()

	msg, err := session.BuildEvent(ev)
	if err != nil {
		return PublishResult{}, err
	}
	if err := c.transport.WriteMessage(msg); err != nil {
		return PublishResult{}, fmt.Errorf("%w: %v", session.ErrTransportDown, err)
	}

	ctx, cancelTimeout := context.WithTimeout(c.runCtx, c.cfg.PublishTimeout)
	defer cancelTimeout()

	select {
	case <-ctx.Done():
		return PublishResult{}, ErrPublishTimeout
	case env := <-acks:
		_, accepted, message, err := session.ParseOK(env)
		if err != nil {
			return PublishResult{}, err
		}
		return PublishResult{Accepted: accepted, Message: message}, nil
	}
}

// Close tears down all sessions and the transport, waiting for the shared
// read pump to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.manager.Close()
	c.cancel()
	err := c.transport.Close()
	_ = c.group.Wait() // Pump always returns a non-nil error on shutdown; ignore it here.
	return err
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
