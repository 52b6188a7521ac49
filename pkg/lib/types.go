package lib

import "time"

// ServerStartSpec describes how the server subprocess is launched.
// It is fixed at startup and never modified afterwards.
type ServerStartSpec struct {
	Executable string
	Dir        string
	Args       []string
}

// BackupRequest asks a backup worker for one archive.
// An empty Alias means an anonymous backup.
type BackupRequest struct {
	Alias string
}

// BackupOutcome is either BackupDone or BackupFailed.
type BackupOutcome interface {
	backupOutcome()
}

// BackupDone reports an archive that was written successfully.
type BackupDone struct {
	Path string
}

// BackupFailed reports an archiver that exited non-zero or could not be spawned.
// ExitCode is -1 when the archiver never ran.
type BackupFailed struct {
	ExitCode int
	Error    string
}

func (BackupDone) backupOutcome()   {}
func (BackupFailed) backupOutcome() {}

// Mailbox accepts messages for sequential processing by its owner.
// Post reports false when the owner no longer accepts messages.
type Mailbox interface {
	Post(msg any) bool
}

// SupervisorState mirrors the two supervisor states plus the post-exit state.
type SupervisorState int

const (
	SupervisorNotStarted SupervisorState = iota
	SupervisorStarted
	SupervisorExited
)

func (s SupervisorState) String() string {
	switch s {
	case SupervisorNotStarted:
		return "not_started"
	case SupervisorStarted:
		return "started"
	case SupervisorExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ParseSupervisorState is the inverse of SupervisorState.String.
func ParseSupervisorState(s string) (SupervisorState, bool) {
	for _, st := range []SupervisorState{SupervisorNotStarted, SupervisorStarted, SupervisorExited} {
		if st.String() == s {
			return st, true
		}
	}
	return SupervisorNotStarted, false
}

// SupervisorStatus is a point-in-time snapshot of the supervisor.
type SupervisorStatus struct {
	State          SupervisorState
	PID            int
	Alive          bool
	StartTime      time.Time
	PendingAlias   string
	BackupInFlight bool
	LastBackup     string
	LastBackupTime *time.Time
	LastError      string
	ExitCode       *int
}
