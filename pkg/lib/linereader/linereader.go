// Package linereader turns a subprocess output stream into a sequence of text
// lines that is read one line at a time, on demand.
//
// The reader never reads ahead: a caller arms exactly one read, receives one
// Line, and must arm again to get the next. End of stream, and any read error,
// is reported as a Line with EOF set; once seen, every later read repeats it.
package linereader

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrReadInFlight is returned by Arm while a previous read is still pending.
var ErrReadInFlight = errors.New("linereader: read already in flight")

// Line is one decoded line without its terminator, or the end-of-stream marker.
type Line struct {
	Text string
	EOF  bool
}

// EndOfStream is the terminal marker.
var EndOfStream = Line{EOF: true}

// Reader reads lines from one stream.
type Reader struct {
	mu       sync.Mutex
	br       *bufio.Reader
	inFlight atomic.Bool
	eof      bool
	err      error
}

// New wraps r.
func New(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next blocks until the next line or end of stream is available.
func (r *Reader) Next() Line {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.eof {
		return EndOfStream
	}

	text, err := r.br.ReadString('\n')
	if err != nil {
		r.eof = true
		if !errors.Is(err, io.EOF) {
			r.err = err
		}
		// A final line without terminator is still a line; EOF comes on the next read.
		if text == "" {
			return EndOfStream
		}
	}

	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	return Line{Text: text}
}

// Arm starts one asynchronous read. deliver is called from a new goroutine
// with the result; the caller is expected to hand it to its own inbox and call
// Arm again from there.
func (r *Reader) Arm(deliver func(Line)) error {
	if !r.inFlight.CompareAndSwap(false, true) {
		return ErrReadInFlight
	}

	go func() {
		line := r.Next()
		r.inFlight.Store(false)
		deliver(line)
	}()

	return nil
}

// Err returns the read error that ended the stream, if it was not a plain EOF.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
