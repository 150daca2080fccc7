package comm

import "time"

// LocalComm is the single-process fallback communicator: rank 0 of a
// world of size 1. Point-to-point fails with ErrUnavailable since
// there is no peer; the collectives below are the identities spec.md
// defines for this mode, implemented directly rather than by routing
// through Bcast/Scatter/Gather/Barrier (which, on a one-rank
// communicator with root 0, send and receive nothing and return the
// same values).
type LocalComm struct{}

func (LocalComm) Rank() uint32 { return 0 }
func (LocalComm) Size() uint32 { return 1 }

func (LocalComm) Send(obj any, dest uint32, tag uint32) error {
	return ErrUnavailable
}

func (LocalComm) Recv(source *uint32, tag *uint32, timeout time.Duration) (any, error) {
	return nil, ErrUnavailable
}

func (LocalComm) RecvInto(source *uint32, tag *uint32, timeout time.Duration, out any) error {
	return ErrUnavailable
}

// LocalBcast, LocalScatter, and LocalGather give workloads a
// size-1-aware shortcut without routing through the networked
// collectives at all. Job functions written against size>1 clusters
// check Size()==1 and call these instead, per spec.md's "user
// algorithms must recognize size==1" requirement.

func LocalBcast[T any](value T) T { return value }

func LocalScatter[T any](values []T) T { return values[0] }

func LocalGather[T any](value T) []T { return []T{value} }

func LocalBarrier() error { return nil }
