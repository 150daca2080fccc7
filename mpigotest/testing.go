// Package mpigotest provides cluster bring-up helpers for tests that
// need a real master + worker communicator set, without going through
// config.Configure or the SSH launcher.
package mpigotest

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thomasedgemon/mpigo/comm"
	"github.com/thomasedgemon/mpigo/internal/transport"
)

// Cluster is a loopback-TCP communicator set: one master (rank 0) and
// size-1 workers, all dialed against 127.0.0.1.
type Cluster struct {
	T       *testing.T
	Master  *comm.Comm
	Workers []*comm.Comm

	router  *transport.MasterRouter
	workers []*transport.WorkerTransport
}

// NewCluster binds a MasterRouter on an ephemeral port, dials size-1
// WorkerTransport connections against it, and wraps each side in a
// comm.Comm. Fails the test immediately on any dial or accept error.
func NewCluster(t *testing.T, size int) *Cluster {
	t.Helper()
	if size < 1 {
		t.Fatalf("mpigotest: cluster size must be >= 1, got %d", size)
	}

	router, err := transport.NewMasterRouter("127.0.0.1", 0, uint32(size))
	if err != nil {
		t.Fatalf("mpigotest: binding master router: %v", err)
	}

	addr := router.Host() + ":" + itoa(router.Port())

	type dialed struct {
		rank uint32
		wt   *transport.WorkerTransport
		err  error
	}
	results := make(chan dialed, size-1)
	for r := 1; r < size; r++ {
		go func(rank uint32) {
			var cancel atomic.Bool
			wt, err := transport.DialWorker(addr, rank, &cancel)
			results <- dialed{rank: rank, wt: wt, err: err}
		}(uint32(r))
	}

	if err := router.AcceptAll(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("mpigotest: accepting workers: %v", err)
	}

	byRank := make(map[uint32]*transport.WorkerTransport, size-1)
	for i := 0; i < size-1; i++ {
		d := <-results
		if d.err != nil {
			t.Fatalf("mpigotest: dialing worker: %v", d.err)
		}
		byRank[d.rank] = d.wt
	}

	c := &Cluster{
		T:      t,
		Master: comm.New(0, uint32(size), router),
		router: router,
	}
	for r := 1; r < size; r++ {
		wt := byRank[uint32(r)]
		c.workers = append(c.workers, wt)
		c.Workers = append(c.Workers, comm.New(uint32(r), uint32(size), wt))
	}
	return c
}

// Close tears down every worker connection and the master router.
func (c *Cluster) Close() {
	for _, wt := range c.workers {
		wt.Close()
	}
	c.router.Close()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// PrintStackTrace dumps every goroutine's stack as a test failure,
// useful when a cluster test hangs waiting on a frame that never
// arrives.
func PrintStackTrace(t *testing.T) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	t.Errorf("%s", buf)
}

// WaitOrTimeout runs cb in a goroutine and reports whether it
// completed before duration elapsed.
func WaitOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cb()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}
