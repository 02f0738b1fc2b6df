package events

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("events: broker closed")

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// stop must only run once s is unreachable from publishers.
func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

// MemoryBroker is an in-process Broker.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

var _ Broker = (*MemoryBroker)(nil)

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[*subscriber]struct{}{}}
}

func (b *MemoryBroker) Publish(ctx context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs[e.QuestionID] {
		select {
		case s.ch <- e:
		default:
			// subscriber is behind; it re-reads state on the next event anyway
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, questionID string) (<-chan Event, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClosed
	}

	s := &subscriber{ch: make(chan Event, subscriberBuffer), done: make(chan struct{})}
	if b.subs[questionID] == nil {
		b.subs[questionID] = map[*subscriber]struct{}{}
	}
	b.subs[questionID][s] = struct{}{}

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[questionID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, questionID)
			}
		}
		b.mu.Unlock()
		s.stop()
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-s.done:
		}
	}()

	return s.ch, cancel, nil
}

// Close drops every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*subscriber
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.subs = map[string]map[*subscriber]struct{}{}
	b.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	return nil
}
