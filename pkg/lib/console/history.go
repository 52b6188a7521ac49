// Package console keeps the server console: every line the server printed,
// plus the wrapper's own announcements, in arrival order. Subscribers get the
// full backlog first and then follow new lines live.
package console

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
)

// Stream names the origin of an entry.
type Stream string

const (
	Stdout  Stream = "stdout"
	Stderr  Stream = "stderr"
	Wrapper Stream = "wrapper"
)

// Entry is one console line.
type Entry struct {
	Time   time.Time
	Stream Stream
	Text   string
}

// node is an element of the append-only list. The head is a sentinel.
type node struct {
	entry Entry
	next  atomic.Pointer[node]
}

// History is an append-only console log. Appends are serialized; readers walk
// the list without locks.
type History struct {
	head *node

	mu     sync.Mutex
	tail   *node
	size   int
	closed bool

	notify *broadcaster[struct{}]
	log    *zerolog.Logger
}

// NewHistory creates an empty history with its notifier running.
func NewHistory() *History {
	sentinel := &node{}
	return &History{
		head:   sentinel,
		tail:   sentinel,
		notify: runNewBroadcaster[struct{}](),
		log:    logging.For("console"),
	}
}

// Append adds a line. Appends after Close are dropped.
func (h *History) Append(stream Stream, text string) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	n := &node{entry: Entry{Time: time.Now(), Stream: stream, Text: text}}
	h.tail.next.Store(n)
	h.tail = n
	h.size++
	h.notify.publish(struct{}{})
}

// Close ends every live subscription once its backlog is delivered.
func (h *History) Close() {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.notify.stop()
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Entries returns a snapshot of all entries.
func (h *History) Entries() []Entry {
	var out []Entry
	h.ForEach(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// ForEach walks entries in order until iter returns false.
func (h *History) ForEach(iter func(Entry) bool) {
	if h == nil || iter == nil {
		return
	}
	for cur := h.head.next.Load(); cur != nil; cur = cur.next.Load() {
		if !iter(cur.entry) {
			return
		}
	}
}

// Subscribe streams the backlog and then live entries into a channel of the
// given capacity. The channel is closed after Close (once drained up to the
// last entry) or after cancel is called.
func (h *History) Subscribe(capacity int) (<-chan Entry, func()) {
	ch := make(chan Entry, capacity)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(done) }) }

	notifier, err := h.notify.subscribe()
	if err != nil {
		// Already closed: replay only.
		notifier = nil
	}

	id := lib.NewID()
	h.log.Debug().Str("subscriber", id).Bool("follow", notifier != nil).Msg("console subscriber started")

	go func() {
		defer close(ch)
		if notifier != nil {
			defer h.notify.unsubscribe(notifier)
		}

		prev := h.head
		for {
			cur := prev.next.Load()
			if cur == nil {
				if notifier == nil {
					return
				}
				select {
				case _, ok := <-notifier:
					if !ok {
						// Closed; drain whatever was appended before Close.
						notifier = nil
					}
				case <-done:
					return
				}
				continue
			}

			select {
			case ch <- cur.entry:
				prev = cur
			case <-done:
				return
			}
		}
	}()

	return ch, cancel
}
