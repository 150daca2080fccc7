package comm

import (
	"sync"
	"testing"
	"time"
)

// memTransport is an in-process Transport backed by per-rank inboxes,
// used to exercise the collectives without a real socket.
type memTransport struct {
	rank  uint32
	inbox map[uint32]chan wireMsg
	mu    *sync.Mutex
}

type wireMsg struct {
	src, tag uint32
	payload  any
}

type memCluster struct {
	mu     sync.Mutex
	inbox  map[uint32]chan wireMsg
	queued map[uint32][]wireMsg
}

func newMemCluster(size uint32) *memCluster {
	mc := &memCluster{inbox: make(map[uint32]chan wireMsg), queued: make(map[uint32][]wireMsg)}
	for r := uint32(0); r < size; r++ {
		mc.inbox[r] = make(chan wireMsg, 64)
	}
	return mc
}

func (mc *memCluster) transportFor(rank uint32) *memTransport {
	return &memTransport{rank: rank, inbox: mc.inbox, mu: &mc.mu}
}

func (t *memTransport) Send(dest, tag uint32, obj any) error {
	t.inbox[dest] <- wireMsg{src: t.rank, tag: tag, payload: obj}
	return nil
}

func (t *memTransport) SendControl(dest, tag uint32) error {
	t.inbox[dest] <- wireMsg{src: t.rank, tag: tag, payload: nil}
	return nil
}

func (t *memTransport) Recv(source *uint32, tag *uint32, timeout time.Duration, out any) error {
	deadline := time.Now().Add(2 * time.Second)
	var pending []wireMsg
	for {
		select {
		case m := <-t.inbox[t.rank]:
			if (source != nil && m.src != *source) || (tag != nil && m.tag != *tag) {
				pending = append(pending, m)
				continue
			}
			for _, p := range pending {
				t.inbox[t.rank] <- p
			}
			writeOut(out, m.payload)
			return nil
		case <-time.After(10 * time.Millisecond):
			if time.Now().After(deadline) {
				for _, p := range pending {
					t.inbox[t.rank] <- p
				}
				return errTimeout{}
			}
		}
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "timeout" }

func writeOut(out any, val any) {
	switch o := out.(type) {
	case *any:
		*o = val
	case *int:
		*o = val.(int)
	case *[]int:
		*o = val.([]int)
	case *[][]int:
		*o = val.([][]int)
	}
}

func newComm(mc *memCluster, rank, size uint32) *Comm {
	return New(rank, size, mc.transportFor(rank))
}

func TestBcastAllRanksReceiveValue(t *testing.T) {
	size := uint32(4)
	mc := newMemCluster(size)
	var wg sync.WaitGroup
	results := make([]int, size)
	for r := uint32(0); r < size; r++ {
		wg.Add(1)
		go func(r uint32) {
			defer wg.Done()
			c := newComm(mc, r, size)
			v, err := Bcast[int](c, 99, 0)
			if err != nil {
				t.Errorf("rank %d: %v", r, err)
				return
			}
			results[r] = v
		}(r)
	}
	wg.Wait()
	for r, v := range results {
		if v != 99 {
			t.Errorf("rank %d got %d, want 99", r, v)
		}
	}
}

func TestScatterDistributesOnePiecePerRank(t *testing.T) {
	size := uint32(3)
	mc := newMemCluster(size)
	var wg sync.WaitGroup
	results := make([]int, size)
	for r := uint32(0); r < size; r++ {
		wg.Add(1)
		go func(r uint32) {
			defer wg.Done()
			c := newComm(mc, r, size)
			var values []int
			if r == 0 {
				values = []int{10, 20, 30}
			}
			v, err := Scatter[int](c, values, 0)
			if err != nil {
				t.Errorf("rank %d: %v", r, err)
				return
			}
			results[r] = v
		}(r)
	}
	wg.Wait()
	want := []int{10, 20, 30}
	for r, v := range results {
		if v != want[r] {
			t.Errorf("rank %d got %d, want %d", r, v, want[r])
		}
	}
}

func TestScatterLengthMismatchFails(t *testing.T) {
	size := uint32(3)
	mc := newMemCluster(size)
	c := newComm(mc, 0, size)
	_, err := Scatter[int](c, []int{1, 2}, 0)
	if err == nil {
		t.Fatal("expected error on mismatched length")
	}
}

func TestGatherCollectsAllValuesInRankOrder(t *testing.T) {
	size := uint32(4)
	mc := newMemCluster(size)
	var wg sync.WaitGroup
	var rootResult []int
	for r := uint32(0); r < size; r++ {
		wg.Add(1)
		go func(r uint32) {
			defer wg.Done()
			c := newComm(mc, r, size)
			res, err := Gather[int](c, int(r)*10, 0)
			if err != nil {
				t.Errorf("rank %d: %v", r, err)
				return
			}
			if r == 0 {
				rootResult = res
			} else if res != nil {
				t.Errorf("rank %d: expected nil result, got %v", r, res)
			}
		}(r)
	}
	wg.Wait()
	want := []int{0, 10, 20, 30}
	if len(rootResult) != len(want) {
		t.Fatalf("got %v, want %v", rootResult, want)
	}
	for i, v := range want {
		if rootResult[i] != v {
			t.Errorf("index %d: got %d, want %d", i, rootResult[i], v)
		}
	}
}

func TestBarrierReturnsOnAllRanks(t *testing.T) {
	size := uint32(3)
	mc := newMemCluster(size)
	var wg sync.WaitGroup
	errs := make([]error, size)
	for r := uint32(0); r < size; r++ {
		wg.Add(1)
		go func(r uint32) {
			defer wg.Done()
			c := newComm(mc, r, size)
			errs[r] = Barrier(c, 0)
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			t.Errorf("rank %d: %v", r, err)
		}
	}
}

func TestLocalCommIdentities(t *testing.T) {
	lc := LocalComm{}
	if lc.Size() != 1 || lc.Rank() != 0 {
		t.Fatalf("LocalComm should be rank 0 of size 1")
	}
	if LocalBcast(5) != 5 {
		t.Errorf("LocalBcast should return its input unchanged")
	}
	if got := LocalGather(5); len(got) != 1 || got[0] != 5 {
		t.Errorf("LocalGather(5) = %v, want [5]", got)
	}
	if LocalScatter([]int{7}) != 7 {
		t.Errorf("LocalScatter([7]) should return 7")
	}
	if err := LocalBarrier(); err != nil {
		t.Errorf("LocalBarrier should be a no-op, got %v", err)
	}
	if _, err := lc.Recv(nil, nil, 0); err != ErrUnavailable {
		t.Errorf("LocalComm.Recv should fail with ErrUnavailable, got %v", err)
	}
}
