package supervisor

import (
	"fmt"
	"time"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/backup"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/metrics"
)

// onDoBackup is the only place a backup is requested. The pending alias is
// read here, at fire time, so an alias that arrives after the save is still
// honored.
func (s *Supervisor) onDoBackup(m doBackup) bool {
	if m.gen != s.backupGen || !s.backupPending {
		s.log.Debug().Uint64("gen", m.gen).Msg("stale backup timer ignored")
		return false
	}

	if s.backupInFlight {
		// At most one archive at a time: try again after another debounce.
		s.log.Info().Msg("backup still running, postponing the next one")
		s.scheduleBackup()
		return false
	}

	req := lib.BackupRequest{}
	if s.hasPendingAlias {
		req.Alias = s.pendingAlias + backup.ArchiveExt
		s.pendingAlias = ""
		s.hasPendingAlias = false
	}

	kind := "anonymous"
	if req.Alias != "" {
		kind = "named"
	}

	if !s.worker.Request(req) {
		s.log.Error().Str("alias", req.Alias).Msg("backup worker is gone, backup skipped")
		s.backupPending = false
		return s.finished()
	}

	s.backupPending = false
	s.backupInFlight = true
	metrics.BackupRequests.WithLabelValues(kind).Inc()
	s.log.Info().Str("alias", req.Alias).Msg("backup requested")
	s.announce("backup started")
	return false
}

func (s *Supervisor) onBackupDone(m lib.BackupDone) bool {
	s.backupInFlight = false
	now := time.Now()
	s.lastBackup = m.Path
	s.lastBackupTime = &now

	s.log.Info().Str("archive", m.Path).Msg("backup done")
	s.announce("backup done: " + m.Path)
	if s.state == lib.SupervisorStarted {
		s.write(fmt.Sprintf(backupDoneFormat, m.Path), "wrapper")
	}
	return s.finished()
}

// onBackupFailed only logs. Failed backups are not retried.
func (s *Supervisor) onBackupFailed(m lib.BackupFailed) bool {
	s.backupInFlight = false
	s.lastError = fmt.Sprintf("backup failed with exit code %d: %s", m.ExitCode, m.Error)

	s.log.Error().Int("exit_code", m.ExitCode).Str("error", m.Error).Msg("backup failed")
	s.announce(s.lastError)
	return s.finished()
}
