package client

import "errors"

var (
	// ErrClosed is returned by Client methods called after Close.
	ErrClosed = errors.New("client: closed")

	// ErrPublishTimeout is returned by Publish when no OK arrives within
	// Config.PublishTimeout.
	ErrPublishTimeout = errors.New("client: publish timed out waiting for OK")
)
