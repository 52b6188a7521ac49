package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/console"
)

const (
	savedLine = "[12:00:00] [Server thread/INFO]: Saved the game"
	readyLine = `[12:00:00] [Server thread/INFO]: Done (3.141s)! For help, type "help"`
)

type timerCall struct {
	op     string // once, periodic, cancel
	key    string
	delay  time.Duration
	period time.Duration
	to     lib.Mailbox
	msg    any
}

// fakeTimers records every call and fires only when told to.
type fakeTimers struct {
	mu     sync.Mutex
	calls  []timerCall
	active map[string]timerCall
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{active: make(map[string]timerCall)}
}

func (f *fakeTimers) ScheduleOnce(key string, delay time.Duration, to lib.Mailbox, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := timerCall{op: "once", key: key, delay: delay, to: to, msg: msg}
	f.calls = append(f.calls, c)
	f.active[key] = c
}

func (f *fakeTimers) SchedulePeriodic(key string, initialDelay, period time.Duration, to lib.Mailbox, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := timerCall{op: "periodic", key: key, delay: initialDelay, period: period, to: to, msg: msg}
	f.calls = append(f.calls, c)
	f.active[key] = c
}

func (f *fakeTimers) Cancel(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, timerCall{op: "cancel", key: key})
	delete(f.active, key)
}

func (f *fakeTimers) snapshot() []timerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]timerCall(nil), f.calls...)
}

func (f *fakeTimers) scheduled(op, key string) []timerCall {
	var out []timerCall
	for _, c := range f.snapshot() {
		if c.op == op && c.key == key {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTimers) isActive(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.active[key]
	return ok
}

// fire delivers the active timer's message, as the real scheduler would.
func (f *fakeTimers) fire(t *testing.T, key string) {
	t.Helper()
	f.mu.Lock()
	c, ok := f.active[key]
	if ok && c.op == "once" {
		delete(f.active, key)
	}
	f.mu.Unlock()
	require.True(t, ok, "no active timer %q", key)
	require.True(t, c.to.Post(c.msg))
}

// fakeWorker records requests and never answers on its own.
type fakeWorker struct {
	requests chan lib.BackupRequest
}

func (w *fakeWorker) Request(req lib.BackupRequest) bool {
	w.requests <- req
	return true
}

func (w *fakeWorker) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// fakeServer is a shell script that appends every stdin line to a record
// file and prints the remainder of lines starting with "emit " to stdout, or
// of lines starting with "err " to stderr.
type fakeServer struct {
	dir    string
	record string
	spec   lib.ServerStartSpec
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	dir := t.TempDir()
	record := filepath.Join(dir, "stdin.log")
	script := filepath.Join(dir, "server.sh")
	body := fmt.Sprintf(`#!/bin/sh
touch %[1]q
while IFS= read -r line; do
  printf '%%s\n' "$line" >> %[1]q
  case "$line" in
    "emit "*) printf '%%s\n' "${line#emit }" ;;
    "err "*) printf '%%s\n' "${line#err }" >&2 ;;
  esac
done
`, record)
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	return &fakeServer{
		dir:    dir,
		record: record,
		spec:   lib.ServerStartSpec{Executable: script, Dir: dir},
	}
}

// commands returns what the supervisor wrote to the server, without the
// test's own emit/err lines.
func (f *fakeServer) commands() []string {
	data, err := os.ReadFile(f.record)
	if err != nil {
		return nil
	}
	var out []string
	for _, l := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if l == "" || strings.HasPrefix(l, "emit ") || strings.HasPrefix(l, "err ") {
			continue
		}
		out = append(out, l)
	}
	return out
}

type harness struct {
	t       *testing.T
	sup     *Supervisor
	timers  *fakeTimers
	worker  *fakeWorker
	server  *fakeServer
	history *console.History
	served  chan struct{}
	err     error
	cancel  context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		timers:  newFakeTimers(),
		worker:  &fakeWorker{requests: make(chan lib.BackupRequest, 8)},
		server:  newFakeServer(t),
		history: console.NewHistory(),
		served:  make(chan struct{}),
	}

	sup, err := New(h.server.spec, Options{
		Timers:    h.timers,
		NewWorker: func(lib.Mailbox) BackupWorker { return h.worker },
		History:   h.history,
	})
	require.NoError(t, err)
	h.sup = sup

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.err = sup.Serve(ctx)
		close(h.served)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.served:
		case <-time.After(5 * time.Second):
		}
		h.history.Close()
	})

	require.NoError(t, sup.Start())
	h.waitStatus(func(st lib.SupervisorStatus) bool { return st.State == lib.SupervisorStarted })
	return h
}

func (h *harness) status() lib.SupervisorStatus {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := h.sup.Status(ctx)
	require.NoError(h.t, err)
	return st
}

func (h *harness) waitStatus(cond func(lib.SupervisorStatus) bool) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return cond(h.status()) }, 5*time.Second, 10*time.Millisecond)
}

// emit makes the fake server print line on stdout and waits until the
// supervisor has processed it.
func (h *harness) emit(line string) {
	h.t.Helper()
	h.emitOn(console.Stdout, "emit ", line)
}

func (h *harness) emitStderr(line string) {
	h.t.Helper()
	h.emitOn(console.Stderr, "err ", line)
}

func (h *harness) emitOn(stream console.Stream, prefix, line string) {
	h.t.Helper()
	before := h.count(stream, line)
	require.NoError(h.t, h.sup.Command(prefix+line))
	require.Eventually(h.t, func() bool { return h.count(stream, line) > before }, 5*time.Second, 5*time.Millisecond)
	// Status is answered after the line's rules ran; the inbox is FIFO.
	h.status()
}

func (h *harness) count(stream console.Stream, text string) int {
	n := 0
	h.history.ForEach(func(e console.Entry) bool {
		if e.Stream == stream && e.Text == text {
			n++
		}
		return true
	})
	return n
}

// sync sends a marker command and waits until the server recorded it, so
// every earlier command has been written too.
func (h *harness) sync() {
	h.t.Helper()
	marker := "sync " + lib.NewID()
	require.NoError(h.t, h.sup.Command(marker))
	require.Eventually(h.t, func() bool {
		for _, c := range h.server.commands() {
			if c == marker {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
}

// wrapperCommands returns the commands written by the supervisor itself.
func (h *harness) wrapperCommands() []string {
	var out []string
	for _, c := range h.server.commands() {
		if strings.HasPrefix(c, "sync ") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (h *harness) nextRequest() lib.BackupRequest {
	h.t.Helper()
	select {
	case req := <-h.worker.requests:
		return req
	case <-time.After(5 * time.Second):
		h.t.Fatal("no backup request")
		return lib.BackupRequest{}
	}
}

func (h *harness) noRequest() {
	h.t.Helper()
	h.status()
	select {
	case req := <-h.worker.requests:
		h.t.Fatalf("unexpected backup request %+v", req)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) waitServe() error {
	h.t.Helper()
	select {
	case <-h.served:
		return h.err
	case <-time.After(5 * time.Second):
		h.t.Fatal("Serve did not return")
		return nil
	}
}
