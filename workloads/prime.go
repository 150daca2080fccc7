package workloads

import (
	"fmt"
	"math"

	"github.com/thomasedgemon/mpigo/comm"
	"github.com/thomasedgemon/mpigo/registry"
)

// IsPrime tests n for primality by trial division up to sqrt(n), with
// the odd-divisor range split evenly across c's ranks. cancelRequested
// is polled every 1024 candidates and, if it returns true, the caller's
// rank treats n as not (yet) determined prime and exits early.
func IsPrime(c registry.Communicator, n int, cancelRequested func() bool) (bool, error) {
	// These cases are decided purely from n, identical on every rank,
	// so no gather is needed: every rank returns the same verdict.
	if n < 2 {
		return false, nil
	}
	if n%2 == 0 {
		return n == 2, nil
	}

	limit := int(math.Sqrt(float64(n)))
	for limit*limit > n {
		limit--
	}
	for (limit+1)*(limit+1) <= n {
		limit++
	}
	if limit < 2 {
		return true, nil
	}

	size := int(c.Size())
	span := limit - 1
	if span < 0 {
		span = 0
	}
	chunk := (span + size - 1) / size
	rank := int(c.Rank())
	start := 2 + rank*chunk
	end := start + chunk - 1
	if end > limit {
		end = limit
	}

	localComposite := false
	if start <= end {
		if start%2 == 0 {
			start++
		}
		checked := 0
		for i := start; i <= end; i += 2 {
			if checked%1024 == 0 && cancelRequested != nil && cancelRequested() {
				return false, nil
			}
			checked++
			if n%i == 0 {
				localComposite = true
				break
			}
		}
	}

	results, err := comm.Gather[bool](c, localComposite, 0)
	if err != nil {
		return false, fmt.Errorf("workloads: isprime: gather: %w", err)
	}
	if c.Rank() != 0 {
		return false, nil
	}
	for _, composite := range results {
		if composite {
			return false, nil
		}
	}
	return true, nil
}

// PrimeJob is the registered entrypoint for a distributed primality
// test: it reads n from args[0].
func PrimeJob(c registry.Communicator, args []any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("workloads: prime job requires n as args[0]")
	}
	n, ok := args[0].(int)
	if !ok {
		return nil, fmt.Errorf("workloads: prime job: args[0] must be an int")
	}
	return IsPrime(c, n, nil)
}

func init() {
	registry.Register("workloads", "PrimeJob", PrimeJob)
}
