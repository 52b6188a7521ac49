package console

import (
	"errors"
	"sync"
)

var errBroadcasterStopped = errors.New("console: broadcaster is stopped")

// broadcaster fans a notification out to every subscriber without ever
// blocking the publisher: a subscriber that is behind keeps only the latest
// value.
type broadcaster[T any] struct {
	incoming    chan T
	mu          sync.Mutex
	subscribers map[chan T]struct{}
	stopped     bool
}

func runNewBroadcaster[T any]() *broadcaster[T] {
	b := &broadcaster[T]{
		incoming:    make(chan T, 1),
		subscribers: make(map[chan T]struct{}),
	}
	go b.run()
	return b
}

func (b *broadcaster[T]) run() {
	for msg := range b.incoming {
		// Sends never block, so the fan-out runs under the lock; this keeps
		// unsubscribe from closing a channel mid-send.
		b.mu.Lock()
		for s := range b.subscribers {
			replaceLatest(s, msg)
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	for s := range b.subscribers {
		close(s)
	}
	b.subscribers = nil
	b.stopped = true
	b.mu.Unlock()
}

// replaceLatest delivers msg, dropping the oldest pending value if ch is full.
// It assumes a single sender per channel.
func replaceLatest[T any](ch chan T, msg T) {
	select {
	case ch <- msg:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- msg
	}
}

func (b *broadcaster[T]) stop() {
	close(b.incoming)
}

func (b *broadcaster[T]) subscribe() (chan T, error) {
	ch := make(chan T, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, errBroadcasterStopped
	}
	b.subscribers[ch] = struct{}{}
	return ch, nil
}

func (b *broadcaster[T]) unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *broadcaster[T]) publish(msg T) {
	replaceLatest(b.incoming, msg)
}
