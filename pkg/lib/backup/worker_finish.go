package backup

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/metrics"
)

func (w *Worker) onLine(m archiverLine) {
	if w.state != Working || w.run.id != m.runID {
		return
	}

	if !m.line.EOF {
		w.log.Debug().Str("backup_id", m.runID).Str("line", m.line.Text).Msg("archiver")
		w.armStdout()
		return
	}

	// Stdout is drained; Wait is safe now and closes the pipes.
	cmd := w.run.cmd
	go func() {
		w.Post(archiverExited{runID: m.runID, err: cmd.Wait()})
	}()
}

func (w *Worker) onExit(m archiverExited) {
	if w.state != Working || w.run.id != m.runID {
		return
	}

	r := w.run
	w.run = nil
	w.state = Ready
	metrics.BackupInFlight.Set(0)
	metrics.BackupDuration.Observe(w.now().Sub(r.started).Seconds())

	code := exitCode(m.err)
	log := w.log.With().Str("backup_id", r.id).Int("exit_code", code).Logger()

	if code != 0 {
		text := strings.TrimSpace(r.stderr.String())
		log.Error().Str("stderr", text).Msg("archiver failed")
		metrics.Backups.WithLabelValues("failed").Inc()
		w.owner.Post(lib.BackupFailed{ExitCode: code, Error: text})
		return
	}

	log.Info().Str("archive", r.path).Msg("backup finished")
	metrics.Backups.WithLabelValues("done").Inc()
	w.owner.Post(lib.BackupDone{Path: r.path})

	if r.alias != "" {
		if err := w.link(r.alias, r.path); err != nil {
			log.Warn().Err(err).Str("alias", r.alias).Msg("failed to link named backup")
		}
	}
}

// link points NamedDir/alias at target, replacing an older link of that name.
func (w *Worker) link(alias, target string) error {
	name := filepath.Join(w.cfg.NamedDir, alias)

	if fi, err := os.Lstat(name); err == nil {
		if fi.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("%s exists and is not a symlink", name)
		}
		if err := os.Remove(name); err != nil {
			return err
		}
	}

	return os.Symlink(target, name)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
