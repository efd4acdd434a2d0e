package negentropy

import (
	"errors"
	"fmt"
)

// Sentinel error kinds the engine raises. Callers should compare with
// errors.Is rather than matching error strings.
var (
	// ErrMalformed is returned when wire bytes cannot be parsed: a varint
	// overrun, an id-prefix length over 32, or a truncated bound,
	// fingerprint or id-list.
	ErrMalformed = errors.New("negentropy: malformed message")

	// ErrInvalidState is returned when Reconcile is called before
	// Initiate, or Initiate is called a second time.
	ErrInvalidState = errors.New("negentropy: invalid state")

	// ErrInvalidRecord is returned when a caller-supplied id is not 32
	// bytes, or a hex id is not 64 hex characters.
	ErrInvalidRecord = errors.New("negentropy: invalid record")

	// ErrUnsupportedVersion is returned when the leading protocol version
	// byte does not match what this engine supports.
	ErrUnsupportedVersion = errors.New("negentropy: unsupported protocol version")
)

// wrapMalformed wraps ErrMalformed with additional context, preserving
// errors.Is(err, ErrMalformed).
func wrapMalformed(context string) error {
	return fmt.Errorf("%s: %w", context, ErrMalformed)
}

// wrapInvalidRecord wraps ErrInvalidRecord with additional context.
func wrapInvalidRecord(context string) error {
	return fmt.Errorf("%s: %w", context, ErrInvalidRecord)
}
