package comm

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned by collectives whose preconditions the
// caller violated (e.g. a mis-sized Scatter input), analogous to the
// original implementation's ValueError.
var ErrInvalidArgument = errors.New("comm: invalid argument")

// Go forbids generic methods, so the collectives are free functions
// parameterized over the payload type rather than Communicator methods.

// Bcast sends value from root to every other rank and returns it
// unchanged on every rank, including root.
func Bcast[T any](c Communicator, value T, root uint32) (T, error) {
	if c.Rank() == root {
		for r := uint32(0); r < c.Size(); r++ {
			if r == root {
				continue
			}
			if err := c.Send(value, r, TagBcast); err != nil {
				return value, fmt.Errorf("comm: bcast: %w", err)
			}
		}
		return value, nil
	}
	var out T
	if err := c.RecvInto(&root, tagPtr(TagBcast), 0, &out); err != nil {
		return out, fmt.Errorf("comm: bcast: %w", err)
	}
	return out, nil
}

// Scatter splits values (root-only, one element per rank) and returns
// each rank's own piece.
func Scatter[T any](c Communicator, values []T, root uint32) (T, error) {
	var zero T
	if c.Rank() == root {
		if uint32(len(values)) != c.Size() {
			return zero, fmt.Errorf("comm: scatter: len(values)=%d != size=%d: %w", len(values), c.Size(), ErrInvalidArgument)
		}
		for r := uint32(0); r < c.Size(); r++ {
			if r == root {
				continue
			}
			if err := c.Send(values[r], r, TagScatter); err != nil {
				return zero, fmt.Errorf("comm: scatter: %w", err)
			}
		}
		return values[root], nil
	}
	var out T
	if err := c.RecvInto(&root, tagPtr(TagScatter), 0, &out); err != nil {
		return zero, fmt.Errorf("comm: scatter: %w", err)
	}
	return out, nil
}

// Gather collects value from every rank into a slice on root, nil on
// every other rank. Root pre-seeds its own slot, then receives from
// ranks 1..size-1 in fixed rank order — literally, regardless of root —
// matching the original implementation's recv loop exactly rather than
// generalizing it to `source=nil`.
func Gather[T any](c Communicator, value T, root uint32) ([]T, error) {
	if c.Rank() == root {
		result := make([]T, c.Size())
		result[root] = value
		for r := uint32(1); r < c.Size(); r++ {
			var v T
			src := r
			if err := c.RecvInto(&src, tagPtr(TagGather), 0, &v); err != nil {
				return nil, fmt.Errorf("comm: gather: %w", err)
			}
			result[r] = v
		}
		return result, nil
	}
	if err := c.Send(value, root, TagGather); err != nil {
		return nil, fmt.Errorf("comm: gather: %w", err)
	}
	return nil, nil
}

// Barrier blocks every rank until all ranks have called Barrier: a
// gather-then-broadcast exchange of integer 0 sentinels on tag BARRIER.
func Barrier(c Communicator, root uint32) error {
	if c.Rank() == root {
		for r := uint32(0); r < c.Size(); r++ {
			if r == root {
				continue
			}
			var sentinel int
			src := r
			if err := c.RecvInto(&src, tagPtr(TagBarrier), 0, &sentinel); err != nil {
				return fmt.Errorf("comm: barrier: %w", err)
			}
		}
		for r := uint32(0); r < c.Size(); r++ {
			if r == root {
				continue
			}
			if err := c.Send(0, r, TagBarrier); err != nil {
				return fmt.Errorf("comm: barrier: %w", err)
			}
		}
		return nil
	}
	if err := c.Send(0, root, TagBarrier); err != nil {
		return fmt.Errorf("comm: barrier: %w", err)
	}
	var sentinel int
	if err := c.RecvInto(&root, tagPtr(TagBarrier), 0, &sentinel); err != nil {
		return fmt.Errorf("comm: barrier: %w", err)
	}
	return nil
}

func tagPtr(t uint32) *uint32 { return &t }
