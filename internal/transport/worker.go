package transport

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/common/log"

	"github.com/thomasedgemon/mpigo/internal/wire"
)

// WorkerTransport is a worker process's single connection to the
// master router. A background goroutine, spawned at construction,
// reads frames off the connection for the lifetime of the transport.
type WorkerTransport struct {
	rank uint32
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex

	in     *inbox
	cancel *atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
}

// DialWorker connects to the master at addr, sends the HELLO handshake
// frame carrying rank, and starts the receive loop. cancelSignal is the
// process-wide flag the receive loop sets when a CANCEL control frame
// arrives; the caller (mpigo.Run) polls it.
func DialWorker(addr string, rank uint32, cancelSignal *atomic.Bool) (*WorkerTransport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial master: %w", err)
	}
	wt := &WorkerTransport{
		rank:   rank,
		conn:   conn,
		r:      bufio.NewReader(conn),
		in:     newInbox(),
		cancel: cancelSignal,
		closed: make(chan struct{}),
	}
	hello := wire.Pack(wire.FrameControl, rank, 0, HelloTag, nil)
	if _, err := conn.Write(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: send hello: %w", err)
	}
	go wt.receiveLoop()
	return wt, nil
}

func (wt *WorkerTransport) receiveLoop() {
	for {
		typ, src, _, tag, payload, err := wire.ReadFrame(wt.r)
		if err != nil {
			return
		}
		switch typ {
		case wire.FrameControl:
			if tag == CancelTag {
				wt.cancel.Store(true)
			}
			// other control tags reserved; ignored.
		case wire.FrameData:
			wt.in.push(Message{Src: src, Dest: wt.rank, Tag: tag, Payload: payload})
		default:
			log.Warnf("transport: worker %d: unknown frame type %d", wt.rank, typ)
		}
	}
}

// Send serializes obj and writes one DATA frame addressed to dest.
func (wt *WorkerTransport) Send(dest, tag uint32, obj any) error {
	payload, err := wire.Serialize(obj)
	if err != nil {
		return fmt.Errorf("transport: encode: %w: %w", ErrTransport, err)
	}
	frame := wire.Pack(wire.FrameData, wt.rank, dest, tag, payload)
	wt.writeMu.Lock()
	defer wt.writeMu.Unlock()
	if _, err := wt.conn.Write(frame); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// SendControl is not supported from a worker: workers never originate
// control frames, only the master does (CANCEL broadcast).
func (wt *WorkerTransport) SendControl(dest, tag uint32) error {
	return fmt.Errorf("transport: worker cannot send control frames: %w", ErrTransport)
}

// Recv waits for a message from source on tag, decoding the payload
// into out. A zero timeout waits indefinitely.
func (wt *WorkerTransport) Recv(source *uint32, tag *uint32, timeout time.Duration, out any) error {
	m, ok := wt.in.pop(matchAny(source, tag), timeout)
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

// Close shuts down the connection and stops the receive loop.
func (wt *WorkerTransport) Close() error {
	var err error
	wt.closeOnce.Do(func() {
		close(wt.closed)
		err = wt.conn.Close()
	})
	return err
}
