package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dialCluster(t *testing.T, worldSize uint32) (*MasterRouter, []*WorkerTransport) {
	t.Helper()
	mr, err := NewMasterRouter("127.0.0.1", 0, worldSize)
	if err != nil {
		t.Fatalf("NewMasterRouter: %v", err)
	}
	addr := mr.Host() + ":" + itoa(mr.Port())

	errCh := make(chan error, 1)
	go func() {
		errCh <- mr.AcceptAll(context.Background(), 5*time.Second)
	}()

	workers := make([]*WorkerTransport, worldSize)
	for r := uint32(1); r < worldSize; r++ {
		var cancel atomic.Bool
		wt, err := DialWorker(addr, r, &cancel)
		if err != nil {
			t.Fatalf("DialWorker(%d): %v", r, err)
		}
		workers[r] = wt
	}
	if err := <-errCh; err != nil {
		t.Fatalf("AcceptAll: %v", err)
	}
	return mr, workers
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
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

func TestWorkerToMasterRoundTrip(t *testing.T) {
	mr, workers := dialCluster(t, 3)
	defer mr.Close()
	defer func() {
		for _, w := range workers {
			if w != nil {
				w.Close()
			}
		}
	}()

	if err := workers[1].Send(0, 7, "ping"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got string
	src := uint32(1)
	tag := uint32(7)
	if err := mr.Recv(&src, &tag, time.Second, &got); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got != "ping" {
		t.Errorf("got %q, want %q", got, "ping")
	}
}

func TestMasterForwardsWorkerToWorker(t *testing.T) {
	mr, workers := dialCluster(t, 3)
	defer mr.Close()
	defer func() {
		for _, w := range workers {
			if w != nil {
				w.Close()
			}
		}
	}()

	if err := workers[1].Send(2, 9, []int{1, 2, 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got []int
	src := uint32(1)
	tag := uint32(9)
	if err := workers[2].Recv(&src, &tag, time.Second, &got); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("got %v, want [1 2 3]", got)
	}
}

func TestRecvTagFilterReenqueuesNonMatching(t *testing.T) {
	mr, workers := dialCluster(t, 2)
	defer mr.Close()
	defer workers[1].Close()

	if err := workers[1].Send(0, 1, "first"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := workers[1].Send(0, 2, "second"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var second string
	tag2 := uint32(2)
	if err := mr.Recv(nil, &tag2, time.Second, &second); err != nil {
		t.Fatalf("Recv tag 2: %v", err)
	}
	if second != "second" {
		t.Errorf("got %q, want %q", second, "second")
	}

	var first string
	tag1 := uint32(1)
	if err := mr.Recv(nil, &tag1, time.Second, &first); err != nil {
		t.Fatalf("Recv tag 1: %v", err)
	}
	if first != "first" {
		t.Errorf("got %q, want %q", first, "first")
	}
}

func TestRecvTimeout(t *testing.T) {
	mr, workers := dialCluster(t, 2)
	defer mr.Close()
	defer workers[1].Close()

	tag := uint32(99)
	var out string
	err := mr.Recv(nil, &tag, 50*time.Millisecond, &out)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestCancelControlFrameSetsSignal(t *testing.T) {
	mr, err := NewMasterRouter("127.0.0.1", 0, 2)
	if err != nil {
		t.Fatalf("NewMasterRouter: %v", err)
	}
	defer mr.Close()
	addr := mr.Host() + ":" + itoa(mr.Port())

	errCh := make(chan error, 1)
	go func() { errCh <- mr.AcceptAll(context.Background(), 5*time.Second) }()

	var cancel atomic.Bool
	wt, err := DialWorker(addr, 1, &cancel)
	if err != nil {
		t.Fatalf("DialWorker: %v", err)
	}
	defer wt.Close()
	if err := <-errCh; err != nil {
		t.Fatalf("AcceptAll: %v", err)
	}

	if err := mr.SendControl(1, CancelTag); err != nil {
		t.Fatalf("SendControl: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !cancel.Load() {
		if time.Now().After(deadline) {
			t.Fatal("cancel signal never set")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEncodeDecodeArgsRoundTrip(t *testing.T) {
	args := []any{1, "two", 3.0}
	s, err := EncodeArgs(args)
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}
	got, err := DecodeArgs(s)
	if err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d args, want 3", len(got))
	}
}

func TestDecodeArgsEmpty(t *testing.T) {
	got, err := DecodeArgs("")
	if err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
