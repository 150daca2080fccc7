package transport

import (
	"sync"
	"time"
)

// inbox is a FIFO of undelivered messages supporting filtered pops by
// tag and/or source rank. A pop that finds no match waits for the
// notify channel to fire (a new message arrived) or for its deadline,
// scanning the whole queue again each time rather than literally
// popping and re-enqueueing one element at a time — functionally
// equivalent to the filtering the wire protocol describes, without the
// risk of spinning forever re-enqueueing past a message that will
// never match.
type inbox struct {
	mu     sync.Mutex
	items  []Message
	notify chan struct{}
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (b *inbox) push(m Message) {
	b.mu.Lock()
	b.items = append(b.items, m)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// matchFunc reports whether a queued message satisfies the caller's
// filter.
type matchFunc func(Message) bool

func matchAny(source *uint32, tag *uint32) matchFunc {
	return func(m Message) bool {
		if source != nil && m.Src != *source {
			return false
		}
		if tag != nil && m.Tag != *tag {
			return false
		}
		return true
	}
}

// pop returns the oldest message satisfying match, waiting up to
// timeout (zero means wait forever). Non-matching messages stay in the
// queue in order, available to a later pop with a different filter —
// the re-enqueue semantics the wire protocol specifies.
func (b *inbox) pop(match matchFunc, timeout time.Duration) (Message, bool) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		b.mu.Lock()
		for i, m := range b.items {
			if match(m) {
				b.items = append(b.items[:i], b.items[i+1:]...)
				b.mu.Unlock()
				return m, true
			}
		}
		b.mu.Unlock()

		wait := pollInterval
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return Message{}, false
			}
			if remaining < wait {
				wait = remaining
			}
		}
		select {
		case <-b.notify:
		case <-time.After(wait):
		}
	}
}
