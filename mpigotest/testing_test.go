package mpigotest

import (
	"testing"
	"time"

	"github.com/thomasedgemon/mpigo/comm"
)

func TestNewClusterConnectsMasterAndWorkers(t *testing.T) {
	c := NewCluster(t, 3)
	defer c.Close()

	if c.Master.Rank() != 0 {
		t.Fatalf("master rank = %d, want 0", c.Master.Rank())
	}
	if len(c.Workers) != 2 {
		t.Fatalf("len(workers) = %d, want 2", len(c.Workers))
	}
	for i, w := range c.Workers {
		if w.Rank() != uint32(i+1) {
			t.Errorf("worker[%d].Rank() = %d, want %d", i, w.Rank(), i+1)
		}
	}
}

func TestNewClusterRoundTripsAMessage(t *testing.T) {
	c := NewCluster(t, 2)
	defer c.Close()

	if err := c.Master.Send("hello", 1, comm.TagUser); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got string
	if err := c.Workers[0].RecvInto(nil, nil, time.Second, &got); err != nil {
		t.Fatalf("RecvInto: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestWaitOrTimeoutReportsCompletion(t *testing.T) {
	if !WaitOrTimeout(func() {}, time.Second) {
		t.Fatal("expected immediate completion to report true")
	}
	if WaitOrTimeout(func() { time.Sleep(100 * time.Millisecond) }, time.Millisecond) {
		t.Fatal("expected slow callback to report false")
	}
}
