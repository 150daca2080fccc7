// Package comm implements the rank-addressed communicator every job
// function runs against: point-to-point send/recv and the collective
// operations built on top of them.
package comm

import (
	"errors"
	"time"
)

// Reserved tags used by the collectives below. User code must avoid
// these values; a collision is undefined behavior, not a checked error.
const (
	TagUser    uint32 = 0
	TagBcast   uint32 = 1
	TagScatter uint32 = 2
	TagGather  uint32 = 3
	TagBarrier uint32 = 4
)

// ErrUnavailable is returned by point-to-point operations on a
// single-process (LocalComm) communicator, which has no peer to talk to.
var ErrUnavailable = errors.New("comm: point-to-point unavailable in single-process mode")

// Transport is the subset of internal/transport's worker/master surface
// a communicator needs: send a value to a rank, receive a value
// matching an optional source and tag.
type Transport interface {
	Send(dest, tag uint32, obj any) error
	Recv(source *uint32, tag *uint32, timeout time.Duration, out any) error
	SendControl(dest, tag uint32) error
}

// Communicator is the interface job functions depend on; Comm is the
// networked implementation, LocalComm the single-process fallback.
type Communicator interface {
	Rank() uint32
	Size() uint32
	Send(obj any, dest uint32, tag uint32) error
	Recv(source *uint32, tag *uint32, timeout time.Duration) (any, error)
	RecvInto(source *uint32, tag *uint32, timeout time.Duration, out any) error
}

// Comm is the networked communicator: a rank, the cluster size, and
// the transport (WorkerTransport or MasterRouter) it sends/receives
// frames through.
type Comm struct {
	rank      uint32
	size      uint32
	transport Transport
}

// New wraps transport as a Comm for the given rank within a cluster of
// size ranks.
func New(rank, size uint32, transport Transport) *Comm {
	return &Comm{rank: rank, size: size, transport: transport}
}

func (c *Comm) Rank() uint32 { return c.rank }
func (c *Comm) Size() uint32 { return c.size }

// Transport exposes the underlying transport for callers (e.g. the job
// lifecycle) that need to send control frames directly.
func (c *Comm) Transport() Transport { return c.transport }

// Send delivers obj to dest tagged tag.
func (c *Comm) Send(obj any, dest uint32, tag uint32) error {
	return c.transport.Send(dest, tag, obj)
}

// Recv waits for the next message matching source (nil = any) and tag
// (nil = any), decoding its payload into a generic value.
func (c *Comm) Recv(source *uint32, tag *uint32, timeout time.Duration) (any, error) {
	var out any
	if err := c.transport.Recv(source, tag, timeout, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecvInto is Recv with a typed destination: the payload decodes
// directly into out (a pointer) via the wire codec's typed unmarshal,
// so callers get concrete types ([][]float64, structs) back instead of
// an `any` that needs a second conversion.
func (c *Comm) RecvInto(source *uint32, tag *uint32, timeout time.Duration, out any) error {
	return c.transport.Recv(source, tag, timeout, out)
}
