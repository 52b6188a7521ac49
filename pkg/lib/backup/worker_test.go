package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
)

var archiveNameRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}\.tar$`)

type ownerBox struct {
	ch chan any
}

func newOwnerBox() *ownerBox { return &ownerBox{ch: make(chan any, 8)} }

func (o *ownerBox) Post(msg any) bool {
	o.ch <- msg
	return true
}

func (o *ownerBox) next(t *testing.T) any {
	t.Helper()
	select {
	case msg := <-o.ch:
		return msg
	case <-time.After(10 * time.Second):
		t.Fatal("no outcome delivered")
		return nil
	}
}

func (o *ownerBox) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-o.ch:
		t.Fatalf("unexpected outcome %#v", msg)
	case <-time.After(d):
	}
}

type layout struct {
	root, server, backups, named string
}

func newLayout(t *testing.T) layout {
	t.Helper()
	root := t.TempDir()
	l := layout{
		root:    root,
		server:  filepath.Join(root, "srv", "world-server"),
		backups: filepath.Join(root, "backups"),
		named:   filepath.Join(root, "named"),
	}
	for _, d := range []string{filepath.Join(l.server, "world"), l.backups, l.named} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(l.server, "world", "level.dat"), []byte("level"), 0o644))
	return l
}

// writeScript creates an executable shell script standing in for tar.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archiver.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func startWorker(t *testing.T, cfg Config, owner lib.Mailbox) *Worker {
	t.Helper()
	w := New(cfg, owner)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func stateOf(t *testing.T, w *Worker) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := w.State(ctx)
	require.NoError(t, err)
	return st
}

func TestArchiveName(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-01-02T03-04-05.tar", ArchiveName(ts))
	assert.Regexp(t, archiveNameRe, ArchiveName(time.Now()))
}

func TestWorker_RealTarWithAlias(t *testing.T) {
	tarPath, err := exec.LookPath("tar")
	if err != nil {
		t.Skip("tar not available")
	}

	l := newLayout(t)
	owner := newOwnerBox()
	w := startWorker(t, Config{Archiver: tarPath, ServerDir: l.server, BackupDir: l.backups, NamedDir: l.named}, owner)

	require.True(t, w.Request(lib.BackupRequest{Alias: "nightly.tar"}))

	done, ok := owner.next(t).(lib.BackupDone)
	require.True(t, ok, "expected BackupDone")
	assert.Equal(t, l.backups, filepath.Dir(done.Path))
	assert.Regexp(t, archiveNameRe, filepath.Base(done.Path))
	assert.FileExists(t, done.Path)

	// The link is created right after the outcome is posted.
	link := filepath.Join(l.named, "nightly.tar")
	require.Eventually(t, func() bool {
		target, err := os.Readlink(link)
		return err == nil && target == done.Path
	}, 2*time.Second, 10*time.Millisecond)

	out, err := exec.Command(tarPath, "tf", done.Path).Output()
	require.NoError(t, err)
	for _, entry := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		assert.True(t, strings.HasPrefix(entry, "world-server"), "entry %q is not relative", entry)
	}

	assert.Equal(t, Ready, stateOf(t, w))
}

func TestWorker_AnonymousBackupCreatesNoLink(t *testing.T) {
	l := newLayout(t)
	owner := newOwnerBox()
	archiver := writeScript(t, `touch "$2"`)
	w := startWorker(t, Config{Archiver: archiver, ServerDir: l.server, BackupDir: l.backups, NamedDir: l.named}, owner)

	require.True(t, w.Request(lib.BackupRequest{}))

	_, ok := owner.next(t).(lib.BackupDone)
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	entries, err := os.ReadDir(l.named)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWorker_ArchiverRunsFromServerParent(t *testing.T) {
	l := newLayout(t)
	owner := newOwnerBox()
	record := filepath.Join(l.root, "invocation")
	archiver := writeScript(t, fmt.Sprintf(`echo "$(pwd) $1 $3" > %q; touch "$2"`, record))
	w := startWorker(t, Config{Archiver: archiver, ServerDir: l.server, BackupDir: l.backups, NamedDir: l.named}, owner)

	require.True(t, w.Request(lib.BackupRequest{}))
	_, ok := owner.next(t).(lib.BackupDone)
	require.True(t, ok)

	got, err := os.ReadFile(record)
	require.NoError(t, err)
	wantDir, err := filepath.EvalSymlinks(filepath.Dir(l.server))
	require.NoError(t, err)
	fields := strings.Fields(string(got))
	require.Len(t, fields, 3)
	gotDir, err := filepath.EvalSymlinks(fields[0])
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)
	assert.Equal(t, "cvf", fields[1])
	assert.Equal(t, "world-server", fields[2])
}

func TestWorker_FailureCarriesExitCodeAndStderr(t *testing.T) {
	l := newLayout(t)
	owner := newOwnerBox()
	archiver := writeScript(t, "echo progress\necho 'disk full' >&2\nexit 1")
	w := startWorker(t, Config{Archiver: archiver, ServerDir: l.server, BackupDir: l.backups, NamedDir: l.named}, owner)

	require.True(t, w.Request(lib.BackupRequest{Alias: "nightly.tar"}))

	assert.Equal(t, lib.BackupFailed{ExitCode: 1, Error: "disk full"}, owner.next(t))
	assert.Equal(t, Ready, stateOf(t, w))

	_, err := os.Lstat(filepath.Join(l.named, "nightly.tar"))
	assert.True(t, os.IsNotExist(err))
}

func TestWorker_SpawnFailureIsReported(t *testing.T) {
	l := newLayout(t)
	owner := newOwnerBox()
	w := startWorker(t, Config{Archiver: filepath.Join(l.root, "missing-tar"), ServerDir: l.server, BackupDir: l.backups, NamedDir: l.named}, owner)

	require.True(t, w.Request(lib.BackupRequest{}))

	failed, ok := owner.next(t).(lib.BackupFailed)
	require.True(t, ok)
	assert.Equal(t, -1, failed.ExitCode)
	assert.NotEmpty(t, failed.Error)
	assert.Equal(t, Ready, stateOf(t, w))
}

func TestWorker_ReadyWorkingReady(t *testing.T) {
	l := newLayout(t)
	owner := newOwnerBox()
	gate := filepath.Join(l.root, "gate")
	archiver := writeScript(t, fmt.Sprintf(`while [ ! -f %q ]; do sleep 0.01; done; echo line1; echo line2; touch "$2"`, gate))
	w := startWorker(t, Config{Archiver: archiver, ServerDir: l.server, BackupDir: l.backups, NamedDir: l.named}, owner)

	assert.Equal(t, Ready, stateOf(t, w))
	require.True(t, w.Request(lib.BackupRequest{}))
	assert.Equal(t, Working, stateOf(t, w))

	// A second request while Working is dropped.
	require.True(t, w.Request(lib.BackupRequest{Alias: "ignored.tar"}))
	owner.none(t, 100*time.Millisecond)

	require.NoError(t, os.WriteFile(gate, nil, 0o644))

	_, ok := owner.next(t).(lib.BackupDone)
	require.True(t, ok)
	owner.none(t, 100*time.Millisecond)
	assert.Equal(t, Ready, stateOf(t, w))
}

func TestWorker_ReplacesExistingLink(t *testing.T) {
	l := newLayout(t)
	w := New(Config{NamedDir: l.named}, newOwnerBox())

	old := filepath.Join(l.backups, "old.tar")
	fresh := filepath.Join(l.backups, "new.tar")
	require.NoError(t, w.link("nightly.tar", old))
	require.NoError(t, w.link("nightly.tar", fresh))

	target, err := os.Readlink(filepath.Join(l.named, "nightly.tar"))
	require.NoError(t, err)
	assert.Equal(t, fresh, target)
}

func TestWorker_LinkRefusesRegularFile(t *testing.T) {
	l := newLayout(t)
	w := New(Config{NamedDir: l.named}, newOwnerBox())
	require.NoError(t, os.WriteFile(filepath.Join(l.named, "keep.tar"), []byte("x"), 0o644))

	assert.Error(t, w.link("keep.tar", "/elsewhere"))
}

func TestWorker_PostAfterStop(t *testing.T) {
	w := New(Config{}, newOwnerBox())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.Serve(ctx), context.Canceled)

	assert.False(t, w.Request(lib.BackupRequest{}))
	_, err := w.State(context.Background())
	assert.Error(t, err)
}
