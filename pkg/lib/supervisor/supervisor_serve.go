package supervisor

import (
	"context"

	"github.com/thejerf/suture/v4"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/linereader"
)

type (
	startMsg   struct{}
	stopMsg    struct{}
	killMsg    struct{}
	commandMsg struct {
		text   string
		origin string
	}
	stdoutLine   struct{ line linereader.Line }
	stderrLine   struct{ line linereader.Line }
	serverExited struct{ err error }
	// doBackup carries the generation of the debounce timer that produced it,
	// so a delivery from a replaced timer is ignored.
	doBackup    struct{ gen uint64 }
	saveAll     struct{}
	statusQuery struct {
		reply chan lib.SupervisorStatus
	}
)

// Serve runs the supervisor loop. It returns suture.ErrTerminateSupervisorTree
// when the server could not be started or has exited and no backup is
// outstanding; Err reports the startup failure in the former case. When ctx
// is canceled first, a still-running server is killed.
func (s *Supervisor) Serve(ctx context.Context) error {
	defer close(s.done)
	defer s.shutdownWorker()

	for {
		select {
		case <-ctx.Done():
			s.abandon()
			return ctx.Err()
		case msg := <-s.inbox:
			if finished := s.handle(ctx, msg); finished {
				return suture.ErrTerminateSupervisorTree
			}
		}
	}
}

// handle dispatches one message and reports whether the loop should end.
func (s *Supervisor) handle(ctx context.Context, msg any) bool {
	switch m := msg.(type) {
	case startMsg:
		return s.onStart(ctx)
	case stopMsg:
		s.onStop()
	case killMsg:
		s.onKill()
	case commandMsg:
		s.onCommand(m)
	case stdoutLine:
		s.onStdout(m.line)
	case stderrLine:
		s.onStderr(m.line)
	case serverExited:
		return s.onServerExited(m.err)
	case doBackup:
		return s.onDoBackup(m)
	case saveAll:
		s.onSaveAll()
	case lib.BackupDone:
		return s.onBackupDone(m)
	case lib.BackupFailed:
		return s.onBackupFailed(m)
	case statusQuery:
		m.reply <- s.status()
	default:
		s.log.Warn().Type("message", msg).Msg("unexpected message")
	}
	return false
}

// finished reports whether an exited server leaves nothing to wait for.
func (s *Supervisor) finished() bool {
	return s.state == lib.SupervisorExited && !s.backupPending && !s.backupInFlight
}

// abandon runs when the loop is canceled from outside.
func (s *Supervisor) abandon() {
	s.timers.Cancel(BackupTimerKey)
	s.timers.Cancel(SaveAllTimerKey)
	if s.state == lib.SupervisorStarted {
		s.log.Warn().Msg("canceled while server is running; killing it")
		s.onKill()
	}
}

func (s *Supervisor) shutdownWorker() {
	if s.stopWorker == nil {
		return
	}
	s.stopWorker()
	<-s.workerDone
}

// Start asks the supervisor to launch the server.
func (s *Supervisor) Start() error {
	if !s.Post(startMsg{}) {
		return ErrStopped
	}
	return nil
}

// Stop closes the server's stdin. It does not terminate the process.
func (s *Supervisor) Stop() error {
	if !s.Post(stopMsg{}) {
		return ErrStopped
	}
	return nil
}

// Kill sends SIGKILL to the server's process group.
func (s *Supervisor) Kill() error {
	if !s.Post(killMsg{}) {
		return ErrStopped
	}
	return nil
}

// Command writes text, newline-terminated, to the server's stdin.
func (s *Supervisor) Command(text string) error {
	if !s.Post(commandMsg{text: text, origin: "operator"}) {
		return ErrStopped
	}
	return nil
}

// Status returns a snapshot of the supervisor state.
func (s *Supervisor) Status(ctx context.Context) (lib.SupervisorStatus, error) {
	q := statusQuery{reply: make(chan lib.SupervisorStatus, 1)}
	if !s.Post(q) {
		return lib.SupervisorStatus{}, ErrStopped
	}
	select {
	case st := <-q.reply:
		return st, nil
	case <-ctx.Done():
		return lib.SupervisorStatus{}, ctx.Err()
	case <-s.done:
		return lib.SupervisorStatus{}, ErrStopped
	}
}
