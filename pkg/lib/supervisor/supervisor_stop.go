package supervisor

import (
	"errors"
	"io"
	"os/exec"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/metrics"
)

func (s *Supervisor) onCommand(m commandMsg) {
	if s.state != lib.SupervisorStarted {
		s.log.Warn().Str("command", m.text).Err(ErrNotStarted).Msg("command dropped")
		return
	}
	s.write(m.text, m.origin)
}

// write sends one newline-terminated command to the server.
func (s *Supervisor) write(text, origin string) {
	if s.stdinClosed {
		s.log.Warn().Str("command", text).Msg("stdin already closed, command dropped")
		return
	}
	if _, err := io.WriteString(s.stdin, text+"\n"); err != nil {
		s.log.Error().Err(err).Str("command", text).Msg("failed to write to server stdin")
		return
	}
	metrics.ServerCommands.WithLabelValues(origin).Inc()
	s.log.Debug().Str("command", text).Str("origin", origin).Msg("command sent")
}

// onStop closes the server's stdin, which a well-behaved server treats as a
// request to shut down.
func (s *Supervisor) onStop() {
	if s.state != lib.SupervisorStarted {
		s.log.Warn().Err(ErrNotStarted).Msg("stop ignored")
		return
	}
	if s.stdinClosed {
		return
	}
	s.stdinClosed = true
	if err := s.stdin.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close server stdin")
	}
	s.log.Info().Msg("server stdin closed")
	s.announce("stdin closed, waiting for the server to exit")
}

func (s *Supervisor) onKill() {
	if s.state != lib.SupervisorStarted {
		s.log.Warn().Err(ErrNotStarted).Msg("kill ignored")
		return
	}
	if err := killProcessGroup(s.cmd.Process.Pid); err != nil {
		s.log.Error().Err(err).Msg("failed to kill server")
		return
	}
	s.log.Warn().Int("pid", s.cmd.Process.Pid).Msg("server killed")
}

// waitIfDrained reaps the server once both of its output streams ended. Wait
// closes the pipes, so it must not run while a read is still pending.
func (s *Supervisor) waitIfDrained() {
	if !s.stdoutDone || !s.stderrDone {
		return
	}
	cmd := s.cmd
	go func() {
		s.Post(serverExited{err: cmd.Wait()})
	}()
}

func (s *Supervisor) onServerExited(err error) bool {
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	s.state = lib.SupervisorExited
	s.exitCode = &code
	s.errMu.Lock()
	s.exitCodeCopy = &code
	s.errMu.Unlock()
	s.stdinClosed = true
	metrics.ServerUp.Set(0)
	s.timers.Cancel(SaveAllTimerKey)

	s.log.Info().Int("exit_code", code).Bool("backup_pending", s.backupPending).
		Bool("backup_in_flight", s.backupInFlight).Msg("server exited")
	s.announce("server exited")

	return s.finished()
}

// ExitCode returns the server's exit code once it has exited.
func (s *Supervisor) ExitCode() (int, bool) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.exitCodeCopy == nil {
		return 0, false
	}
	return *s.exitCodeCopy, true
}
