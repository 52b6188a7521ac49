package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/config"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/console"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/linereader"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/supervisor"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recorder) add(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.err
}

func (r *recorder) Command(text string) error { return r.add("command " + text) }
func (r *recorder) Stop() error               { return r.add("stop") }
func (r *recorder) Kill() error               { return r.add("kill") }

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestConsoleRelay_ForwardsLinesUntilEOF(t *testing.T) {
	pr, pw := io.Pipe()
	rec := &recorder{}
	relay := newConsoleRelay(linereader.New(pr), rec)

	done := make(chan error, 1)
	go func() { done <- relay.Serve(context.Background()) }()

	_, err := io.WriteString(pw, "list\n\n   \nsay hi\r\n")
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, suture.ErrDoNotRestart)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop on EOF")
	}
	assert.Equal(t, []string{"command list", "command say hi"}, rec.snapshot())
}

func TestConsoleRelay_StopsWhenSupervisorGone(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	rec := &recorder{err: supervisor.ErrStopped}
	relay := newConsoleRelay(linereader.New(pr), rec)

	done := make(chan error, 1)
	go func() { done <- relay.Serve(context.Background()) }()

	_, err := io.WriteString(pw, "list\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, suture.ErrDoNotRestart)
	case <-time.After(5 * time.Second):
		t.Fatal("relay kept running")
	}
}

func TestConsoleRelay_Canceled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	relay := newConsoleRelay(linereader.New(pr), &recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, relay.Serve(ctx), context.Canceled)
}

func TestSignalHandler_StopThenKill(t *testing.T) {
	rec := &recorder{}
	h := newSignalHandler(rec)
	h.notify = func(chan<- os.Signal) {}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()

	h.signals <- syscall.SIGTERM
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"command stop", "stop"}, rec.snapshot())

	h.signals <- os.Interrupt
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "kill", rec.snapshot()[2])

	h.signals <- os.Interrupt
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Len(t, rec.snapshot(), 3)
}

func TestEventHook(t *testing.T) {
	hook := eventHook(logging.For("test"))
	assert.NotPanics(t, func() {
		hook(suture.EventServiceTerminate{
			SupervisorName: "mcwrap",
			ServiceName:    "supervisor",
			Err:            errors.New("boom"),
		})
	})
}

func testConfig(t *testing.T, serverScript string) *config.Config {
	t.Helper()
	root := t.TempDir()
	java := filepath.Join(root, "java")
	require.NoError(t, os.WriteFile(java, []byte(serverScript), 0o755))

	cfg := &config.Config{
		Server: config.ServerConfig{Jar: "server.jar", Dir: root, Java: java, Heap: "1g"},
		Backup: config.BackupConfig{
			Dir:      filepath.Join(root, "backups"),
			NamedDir: filepath.Join(root, "named"),
			Archiver: "tar",
		},
		Schedule: config.ScheduleConfig{BackupDebounce: time.Second, SaveInterval: time.Minute},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestApp_ExitsWithServerExitCode(t *testing.T) {
	cfg := testConfig(t, "#!/bin/sh\necho \"[Server thread/INFO]: Starting minecraft server\"\nexit 3\n")

	a, err := newApp(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code, err := a.run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	var stdout []string
	for _, e := range a.history.Entries() {
		if e.Stream == console.Stdout {
			stdout = append(stdout, e.Text)
		}
	}
	assert.Equal(t, []string{"[Server thread/INFO]: Starting minecraft server"}, stdout)
}

func TestApp_StartFailure(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Server.Java = filepath.Join(t.TempDir(), "missing-java")

	a, err := newApp(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code, err := a.run(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}
