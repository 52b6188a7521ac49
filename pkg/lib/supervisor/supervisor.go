// Package supervisor owns the game server subprocess. It watches the server's
// output for save and readiness markers, schedules save commands and debounced
// backups, owns the backup worker, and relays operator commands to the
// server's stdin.
//
// A Supervisor is a single-threaded actor: every event, including lines read
// from the server and timer deliveries, is a message processed in order by
// Serve. No lock protects its state.
package supervisor

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/backup"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/console"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/linereader"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
)

// Timer keys.
const (
	BackupTimerKey  = "backup"
	SaveAllTimerKey = "save-all"
)

// Defaults for Options.
const (
	DefaultBackupDebounce = 5 * time.Second
	DefaultSaveInterval   = 5 * time.Minute
)

var (
	ErrStopped        = errors.New("supervisor: stopped")
	ErrAlreadyStarted = errors.New("supervisor: already started")
	ErrNotStarted     = errors.New("supervisor: server not started")
)

// Timers is the keyed timer facility the supervisor schedules against.
// Scheduling under a key replaces the previous timer for that key.
type Timers interface {
	ScheduleOnce(key string, delay time.Duration, to lib.Mailbox, msg any)
	SchedulePeriodic(key string, initialDelay, period time.Duration, to lib.Mailbox, msg any)
	Cancel(key string)
}

// BackupWorker is the child that runs archives on request.
type BackupWorker interface {
	Request(req lib.BackupRequest) bool
	Serve(ctx context.Context) error
}

// Options configures a Supervisor.
type Options struct {
	// Timers is required.
	Timers Timers

	// Backup configures the default worker.
	Backup backup.Config

	// NewWorker overrides worker construction.
	NewWorker func(owner lib.Mailbox) BackupWorker

	// History receives every server line and wrapper announcement. Optional.
	History *console.History

	BackupDebounce time.Duration
	SaveInterval   time.Duration
}

// Supervisor drives one server subprocess for its whole lifetime; there is
// no restart.
type Supervisor struct {
	spec      lib.ServerStartSpec
	timers    Timers
	newWorker func(owner lib.Mailbox) BackupWorker
	history   *console.History
	debounce  time.Duration
	interval  time.Duration
	log       *zerolog.Logger

	inbox chan any
	done  chan struct{}

	errMu        sync.Mutex
	err          error
	exitCodeCopy *int

	// Owned by Serve.
	state            lib.SupervisorState
	cmd              *exec.Cmd
	stdin            io.WriteCloser
	stdout           *linereader.Reader
	stderr           *linereader.Reader
	stdoutDone       bool
	stderrDone       bool
	stdinClosed      bool
	startTime        time.Time
	exitCode         *int
	worker           BackupWorker
	stopWorker       context.CancelFunc
	workerDone       chan struct{}
	pendingAlias     string
	hasPendingAlias  bool
	autosaveDisabled bool
	backupPending    bool
	backupGen        uint64
	backupInFlight   bool
	lastBackup       string
	lastBackupTime   *time.Time
	lastError        string
}

// New validates spec and builds a NotStarted supervisor.
func New(spec lib.ServerStartSpec, opts Options) (*Supervisor, error) {
	if spec.Executable == "" {
		return nil, errors.New("supervisor: server executable is required")
	}
	if opts.Timers == nil {
		return nil, errors.New("supervisor: timers are required")
	}

	s := &Supervisor{
		spec:      spec,
		timers:    opts.Timers,
		newWorker: opts.NewWorker,
		history:   opts.History,
		debounce:  opts.BackupDebounce,
		interval:  opts.SaveInterval,
		log:       logging.For("supervisor"),
		inbox:     make(chan any, 256),
		done:      make(chan struct{}),
	}
	if s.debounce <= 0 {
		s.debounce = DefaultBackupDebounce
	}
	if s.interval <= 0 {
		s.interval = DefaultSaveInterval
	}
	if s.newWorker == nil {
		cfg := opts.Backup
		s.newWorker = func(owner lib.Mailbox) BackupWorker { return backup.New(cfg, owner) }
	}
	return s, nil
}

// Post enqueues msg for the supervisor loop. It reports false once Serve returned.
func (s *Supervisor) Post(msg any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- msg:
		return true
	case <-s.done:
		return false
	}
}

// Err returns the error that ended the supervisor, if any.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Supervisor) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Done is closed when Serve returns.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

func (s *Supervisor) String() string { return "supervisor" }
