package client

import (
	"time"

	"github.com/nogringo/nip77/log"
)

// Default configuration values (spec section 4.6 frame-size hint and
// section 5 concurrency/resource model timeouts).
const (
	DefaultFrameSizeLimit = 60000
	DefaultSyncTimeout    = 30 * time.Second
	DefaultPublishTimeout = 10 * time.Second
	DefaultIDSize         = 32
)

// Config configures a Client.
type Config struct {
	// RelayURL is the WebSocket URL (ws:// or wss://) of the relay to
	// reconcile against.
	RelayURL string

	// FrameSizeLimit is the advisory frame_size_limit hint (section 4.6).
	// The core does not enforce chunking; this is carried for parity with
	// implementations that do.
	FrameSizeLimit int

	// SyncTimeout bounds how long a single reconciliation session may run
	// before it is abandoned with ErrTimeout.
	SyncTimeout time.Duration

	// PublishTimeout bounds how long Publish waits for an OK
	// acknowledgement.
	PublishTimeout time.Duration

	// IDSize is the idSize hint sent with NEG-OPEN. Zero omits the hint.
	IDSize int

	// HandshakeTimeout bounds the WebSocket dial handshake.
	HandshakeTimeout time.Duration

	// Logger receives structured log output. A nil Logger falls back to
	// the package-level default.
	Logger *log.Logger
}

// DefaultConfig returns a Config populated with the package defaults for
// everything but RelayURL, which the caller must still set.
func DefaultConfig() Config {
	return Config{
		FrameSizeLimit:   DefaultFrameSizeLimit,
		SyncTimeout:      DefaultSyncTimeout,
		PublishTimeout:   DefaultPublishTimeout,
		IDSize:           DefaultIDSize,
		HandshakeTimeout: 10 * time.Second,
	}
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}
