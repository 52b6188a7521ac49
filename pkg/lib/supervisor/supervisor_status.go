package supervisor

import (
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
)

func (s *Supervisor) status() lib.SupervisorStatus {
	st := lib.SupervisorStatus{
		State:          s.state,
		StartTime:      s.startTime,
		PendingAlias:   s.pendingAlias,
		BackupInFlight: s.backupInFlight,
		LastBackup:     s.lastBackup,
		LastError:      s.lastError,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
		st.Alive = s.state == lib.SupervisorStarted && processAlive(st.PID)
	}
	if s.lastBackupTime != nil {
		t := *s.lastBackupTime
		st.LastBackupTime = &t
	}
	if s.exitCode != nil {
		code := *s.exitCode
		st.ExitCode = &code
	}
	return st
}
