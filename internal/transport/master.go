package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/common/log"
	"golang.org/x/sync/errgroup"

	"github.com/thomasedgemon/mpigo/internal/wire"
)

// workerConn is one accepted worker connection: the socket, a reader
// for its route loop, and a write mutex so forwarded frames and direct
// sends never interleave on the wire.
type workerConn struct {
	conn    net.Conn
	r       *bufio.Reader
	writeMu sync.Mutex
}

// MasterRouter is rank 0's view of the cluster: it accepts one
// connection per worker, store-and-forwards frames between them, and
// exposes the same Send/Recv surface a worker transport does for
// rank-0's own traffic.
type MasterRouter struct {
	listener  *net.TCPListener
	worldSize uint32

	mu    sync.RWMutex
	conns map[uint32]*workerConn

	routeWG sync.WaitGroup
	in      *inbox
}

// NewMasterRouter binds a TCP listener on host:port (port 0 picks an
// ephemeral port) for a cluster of worldSize ranks (rank 0 is the
// master itself; AcceptAll waits for the remaining worldSize-1).
func NewMasterRouter(host string, port int, worldSize uint32) (*MasterRouter, error) {
	l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	tl, ok := l.(*net.TCPListener)
	if !ok {
		l.Close()
		return nil, fmt.Errorf("transport: listener is not TCP: %w", ErrTransport)
	}
	return &MasterRouter{
		listener:  tl,
		worldSize: worldSize,
		conns:     make(map[uint32]*workerConn),
		in:        newInbox(),
	}, nil
}

// Port returns the bound (possibly kernel-assigned) TCP port.
func (mr *MasterRouter) Port() int {
	return mr.listener.Addr().(*net.TCPAddr).Port
}

// Host returns the bind address's host component.
func (mr *MasterRouter) Host() string {
	return mr.listener.Addr().(*net.TCPAddr).IP.String()
}

// AcceptAll blocks until every expected worker (world_size - 1) has
// connected and completed its handshake, or deadline elapses. Each
// handshake runs concurrently; the first handshake error cancels the
// remaining accepts and is returned.
func (mr *MasterRouter) AcceptAll(ctx context.Context, deadline time.Duration) error {
	expected := int(mr.worldSize) - 1
	if expected <= 0 {
		return nil
	}
	if deadline > 0 {
		mr.listener.SetDeadline(time.Now().Add(deadline))
		defer mr.listener.SetDeadline(time.Time{})
	}

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < expected; i++ {
		g.Go(func() error {
			conn, err := mr.listener.Accept()
			if err != nil {
				return fmt.Errorf("transport: accept: %w", ErrTransport)
			}
			if err := mr.handshake(conn); err != nil {
				conn.Close()
				// Unblock the accepts still waiting so the error is
				// returned without waiting for the deadline.
				mr.listener.SetDeadline(time.Now())
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (mr *MasterRouter) handshake(conn net.Conn) error {
	r := bufio.NewReader(conn)
	typ, src, _, tag, _, err := wire.ReadFrame(r)
	if err != nil {
		return fmt.Errorf("transport: handshake read: %w", ErrTransport)
	}
	if typ != wire.FrameControl || tag != HelloTag {
		return fmt.Errorf("transport: handshake: expected hello: %w", ErrTransport)
	}

	mr.mu.Lock()
	if _, dup := mr.conns[src]; dup {
		mr.mu.Unlock()
		return fmt.Errorf("transport: duplicate rank %d: %w", src, ErrTransport)
	}
	wc := &workerConn{conn: conn, r: r}
	mr.conns[src] = wc
	mr.mu.Unlock()

	mr.routeWG.Add(1)
	go mr.routeLoop(src, wc)
	return nil
}

func (mr *MasterRouter) routeLoop(rank uint32, wc *workerConn) {
	defer mr.routeWG.Done()
	for {
		typ, src, dest, tag, payload, err := wire.ReadFrame(wc.r)
		if err != nil {
			return
		}
		if typ != wire.FrameData {
			continue
		}
		if dest == 0 {
			mr.in.push(Message{Src: src, Dest: dest, Tag: tag, Payload: payload})
			continue
		}
		if err := mr.forward(dest, wire.Pack(wire.FrameData, src, dest, tag, payload)); err != nil {
			log.Errorf("transport: route rank %d -> %d: %v", rank, dest, err)
		}
	}
}

func (mr *MasterRouter) forward(dest uint32, frame []byte) error {
	mr.mu.RLock()
	wc, ok := mr.conns[dest]
	mr.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: unknown destination rank %d: %w", dest, ErrTransport)
	}
	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	_, err := wc.conn.Write(frame)
	return err
}

// Send serializes obj and routes it to dest as the master's own
// traffic (src=0). Calling Send with dest==0 is a programming error,
// not a user-facing one, and panics.
func (mr *MasterRouter) Send(dest, tag uint32, obj any) error {
	if dest == 0 {
		panic("transport: master cannot send to itself")
	}
	payload, err := wire.Serialize(obj)
	if err != nil {
		return fmt.Errorf("transport: encode: %w: %w", ErrTransport, err)
	}
	return mr.forward(dest, wire.Pack(wire.FrameData, 0, dest, tag, payload))
}

// SendControl sends a control frame (e.g. CANCEL) to dest.
func (mr *MasterRouter) SendControl(dest, tag uint32) error {
	mr.mu.RLock()
	wc, ok := mr.conns[dest]
	mr.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: unknown destination rank %d: %w", dest, ErrTransport)
	}
	frame := wire.Pack(wire.FrameControl, 0, dest, tag, nil)
	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	_, err := wc.conn.Write(frame)
	return err
}

// Recv waits for a message addressed to the master (dest==0) from
// source on tag, decoding into out.
func (mr *MasterRouter) Recv(source *uint32, tag *uint32, timeout time.Duration, out any) error {
	m, ok := mr.in.pop(matchAny(source, tag), timeout)
	if !ok {
		return ErrTimeout
	}
	if out == nil {
		return nil
	}
	if err := wire.Deserialize(m.Payload, out); err != nil {
		return fmt.Errorf("transport: decode: %w: %w", ErrTransport, err)
	}
	return nil
}

// Ranks returns the set of worker ranks currently connected.
func (mr *MasterRouter) Ranks() []uint32 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	ranks := make([]uint32, 0, len(mr.conns))
	for r := range mr.conns {
		ranks = append(ranks, r)
	}
	return ranks
}

// Close closes every accepted connection and the listener, then waits
// for all route loops to exit.
func (mr *MasterRouter) Close() error {
	mr.mu.Lock()
	for _, wc := range mr.conns {
		wc.conn.Close()
	}
	mr.mu.Unlock()
	err := mr.listener.Close()
	mr.routeWG.Wait()
	return err
}
