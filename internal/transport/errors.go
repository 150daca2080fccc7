package transport

import (
	"errors"
	"time"
)

// ErrTransport covers handshake failures, routing to an unknown
// destination, and any other condition that means the connection or
// cluster topology is unusable.
var ErrTransport = errors.New("transport: protocol error")

// ErrTimeout is returned by Recv when no matching message arrives
// before the caller's deadline.
var ErrTimeout = errors.New("transport: receive timeout")

// ErrClosed names the closed-transport condition. Neither transport
// returns it: after Close, Send fails with the connection's write error
// and Recv waits until its timeout.
var ErrClosed = errors.New("transport: closed")

const (
	// HelloTag marks the single handshake frame a worker sends on
	// connect. The worker's rank travels in the frame header's src
	// field; the payload is empty.
	HelloTag uint32 = 100
	// CancelTag marks a control frame that sets the receiver's cancel
	// signal; it carries no payload.
	CancelTag uint32 = 200
)

// pollInterval bounds how often Recv rechecks its inbox while waiting
// for a matching message, mirroring the original implementation's
// 100ms poll granularity.
const pollInterval = 100 * time.Millisecond
