// Package backup runs archival subprocesses, one at a time, and reports each
// result to its owner's mailbox.
//
// The worker has two states. Ready accepts a BackupRequest, starts the
// archiver and moves to Working. Working streams the archiver's stdout into
// the log and, once the archiver exits, posts BackupDone or BackupFailed to
// the owner and returns to Ready. Owners must not send a request while a
// previous one is unanswered; such a request is logged and dropped.
package backup

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/linereader"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
)

// TimestampLayout names archives so that they sort chronologically.
const TimestampLayout = "2006-01-02T15-04-05"

// ArchiveExt is appended to every archive name.
const ArchiveExt = ".tar"

// State of a worker.
type State int

const (
	Ready State = iota
	Working
)

func (s State) String() string {
	if s == Working {
		return "working"
	}
	return "ready"
}

// Config locates the directories a worker reads and writes.
type Config struct {
	// Archiver is the tar-compatible executable. Default: tar.
	Archiver string
	// ServerDir is archived by base name from its parent directory.
	ServerDir string
	// BackupDir receives the timestamped archives.
	BackupDir string
	// NamedDir receives alias symlinks.
	NamedDir string
}

// Worker is a single-threaded actor; all state below is owned by Serve.
type Worker struct {
	cfg   Config
	owner lib.Mailbox
	inbox chan any
	done  chan struct{}
	log   *zerolog.Logger
	now   func() time.Time

	state State
	run   *run
}

// run is the in-flight archiver.
type run struct {
	id      string
	alias   string
	path    string
	cmd     *exec.Cmd
	stdout  *linereader.Reader
	stderr  *bytes.Buffer
	started time.Time
}

type archiverLine struct {
	runID string
	line  linereader.Line
}

type archiverExited struct {
	runID string
	err   error
}

type stateQuery struct {
	reply chan State
}

// New creates a Ready worker reporting to owner. It does nothing until Serve.
func New(cfg Config, owner lib.Mailbox) *Worker {
	if cfg.Archiver == "" {
		cfg.Archiver = "tar"
	}
	return &Worker{
		cfg:   cfg,
		owner: owner,
		inbox: make(chan any, 16),
		done:  make(chan struct{}),
		log:   logging.For("backup"),
		now:   time.Now,
	}
}

// Post enqueues a message for the worker. It reports false once Serve returned.
func (w *Worker) Post(msg any) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.inbox <- msg:
		return true
	case <-w.done:
		return false
	}
}

// Request asks for one backup.
func (w *Worker) Request(req lib.BackupRequest) bool {
	return w.Post(req)
}

// State returns the worker's current state as seen by its loop.
func (w *Worker) State(ctx context.Context) (State, error) {
	q := stateQuery{reply: make(chan State, 1)}
	if !w.Post(q) {
		return Ready, errors.New("backup: worker stopped")
	}
	select {
	case st := <-q.reply:
		return st, nil
	case <-ctx.Done():
		return Ready, ctx.Err()
	}
}

// Serve processes messages until ctx is canceled. A running archiver is killed
// on cancellation.
func (w *Worker) Serve(ctx context.Context) error {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			if w.state == Working {
				w.log.Warn().Str("backup_id", w.run.id).Msg("shutting down with archiver running")
			}
			return ctx.Err()
		case msg := <-w.inbox:
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) String() string { return "backup-worker" }

func (w *Worker) handle(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case lib.BackupRequest:
		if w.state == Working {
			w.log.Error().Str("alias", m.Alias).Str("backup_id", w.run.id).
				Msg("backup requested while another is running; request dropped")
			return
		}
		w.start(ctx, m)
	case archiverLine:
		w.onLine(m)
	case archiverExited:
		w.onExit(m)
	case stateQuery:
		m.reply <- w.state
	default:
		w.log.Warn().Type("message", msg).Msg("unexpected message")
	}
}

// ArchiveName returns the archive file name for a backup taken at t.
func ArchiveName(t time.Time) string {
	return t.Format(TimestampLayout) + ArchiveExt
}
