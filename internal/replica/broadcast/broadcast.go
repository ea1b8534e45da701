// Package broadcast provides a fan-out channel: every published value is
// delivered to every current subscriber, each through its own buffered
// channel so one slow reader cannot block another.
package broadcast

import (
	"errors"
	"sync"
)

// ErrSubscriberLagged is returned by Subscription.Recv when the
// subscriber's buffer overflowed and a value was dropped for it. The
// subscriber is not closed: it keeps receiving subsequent values, but the
// caller is responsible for re-synchronizing (in this system, by
// re-requesting a Refresh snapshot).
var ErrSubscriberLagged = errors.New("broadcast: subscriber lagged, values dropped")

// Capacity is the fixed per-subscriber buffer size.
const Capacity = 1 << 16

// Channel is a multi-subscriber fan-out of values of type T.
type Channel[T any] struct {
	mu   sync.Mutex
	subs map[*Subscription[T]]struct{}
}

// New returns an empty fan-out channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscription is one subscriber's view of a Channel. Values published
// before Subscribe was called are never delivered.
type Subscription[T any] struct {
	ch      chan T
	lagged  chan struct{}
	channel *Channel[T]
}

// Subscribe registers a new subscriber starting from "now": it sees only
// values published after this call returns.
func (c *Channel[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		ch:      make(chan T, Capacity),
		lagged:  make(chan struct{}, 1),
		channel: c,
	}
	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()
	return s
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	c := s.channel
	c.mu.Lock()
	delete(c.subs, s)
	c.mu.Unlock()
}

// C returns the channel to receive published values from. A value is
// never sent on this channel after the subscriber has lagged without also
// signalling ErrSubscriberLagged first via TryRecv/Drain.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Lagged reports whether this subscriber has dropped at least one value
// since the last call to Lagged, and clears the flag.
func (s *Subscription[T]) Lagged() bool {
	select {
	case <-s.lagged:
		return true
	default:
		return false
	}
}

// Drain returns every value currently buffered for this subscriber
// without blocking, then reports whether any value was dropped for lag
// since the previous drain.
func (s *Subscription[T]) Drain() ([]T, error) {
	var out []T
	for {
		select {
		case v := <-s.ch:
			out = append(out, v)
		default:
			if s.Lagged() {
				return out, ErrSubscriberLagged
			}
			return out, nil
		}
	}
}

// Publish delivers v to every current subscriber. A subscriber whose
// buffer is full is a ring: the oldest buffered value is evicted to make
// room for v, rather than blocking the publisher or dropping v itself —
// one slow subscriber must never stall the writer guard that calls
// Publish, and must still see the newest state once it catches up.
func (c *Channel[T]) Publish(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for s := range c.subs {
		select {
		case s.ch <- v:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- v:
			default:
			}
			select {
			case s.lagged <- struct{}{}:
			default:
			}
		}
	}
}

// Subscribers returns the current subscriber count, for tests and metrics.
func (c *Channel[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
