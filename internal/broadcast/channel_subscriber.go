package broadcast

import (
	"errors"
	"sync"
)

var (
	ErrSubscriberClosed  = errors.New("subscriber_closed")
	ErrSubscriberLagging = errors.New("subscriber_lagging")
)

// ChannelSubscriber buffers events for a transport loop (SSE or WebSocket)
// that drains Events(). A full buffer closes the subscriber; the client is
// expected to reconnect and reload the game.
type ChannelSubscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func NewChannelSubscriber(buffer int) *ChannelSubscriber {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelSubscriber{ch: make(chan Event, buffer)}
}

func (s *ChannelSubscriber) Deliver(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSubscriberClosed
	}
	select {
	case s.ch <- ev:
		return nil
	default:
		s.closed = true
		close(s.ch)
		return ErrSubscriberLagging
	}
}

func (s *ChannelSubscriber) Events() <-chan Event {
	return s.ch
}

func (s *ChannelSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
