package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/console"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/linereader"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/metrics"
)

// onStart launches the server with all three standard streams piped, starts
// the backup worker and arms both output readers. A launch failure ends the
// supervisor.
func (s *Supervisor) onStart(ctx context.Context) bool {
	if s.state != lib.SupervisorNotStarted {
		s.log.Warn().Str("state", s.state.String()).Err(ErrAlreadyStarted).Msg("start ignored")
		return false
	}

	cmd := exec.Command(s.spec.Executable, s.spec.Args...)
	cmd.Dir = s.spec.Dir
	cmd.SysProcAttr = newProcessGroupAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return s.startFailed(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.startFailed(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.startFailed(err)
	}

	s.log.Info().Str("executable", s.spec.Executable).Strs("args", s.spec.Args).Str("dir", s.spec.Dir).Msg("starting server")
	if err := cmd.Start(); err != nil {
		return s.startFailed(err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = linereader.New(stdout)
	s.stderr = linereader.New(stderr)
	s.startTime = time.Now()
	s.state = lib.SupervisorStarted
	metrics.ServerUp.Set(1)

	workerCtx, cancel := context.WithCancel(ctx)
	s.worker = s.newWorker(s)
	s.stopWorker = cancel
	s.workerDone = make(chan struct{})
	go func(w BackupWorker, done chan struct{}) {
		defer close(done)
		_ = w.Serve(workerCtx)
	}(s.worker, s.workerDone)

	s.log.Info().Int("pid", cmd.Process.Pid).Msg("server started")
	s.announce(fmt.Sprintf("server started, pid %d", cmd.Process.Pid))

	s.armStdout()
	s.armStderr()
	return false
}

func (s *Supervisor) startFailed(err error) bool {
	err = fmt.Errorf("start server: %w", err)
	s.log.Error().Err(err).Msg("server failed to start")
	s.setErr(err)
	s.lastError = err.Error()
	return true
}

func (s *Supervisor) armStdout() {
	if err := s.stdout.Arm(func(l linereader.Line) { s.Post(stdoutLine{line: l}) }); err != nil {
		s.log.Error().Err(err).Msg("failed to arm stdout")
	}
}

func (s *Supervisor) armStderr() {
	if err := s.stderr.Arm(func(l linereader.Line) { s.Post(stderrLine{line: l}) }); err != nil {
		s.log.Error().Err(err).Msg("failed to arm stderr")
	}
}

// announce records a wrapper action in the console history.
func (s *Supervisor) announce(text string) {
	s.history.Append(console.Wrapper, text)
}
