package supervisor

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/console"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/linereader"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/metrics"
)

// Stdout markers. Matching is case-sensitive substring matching.
const (
	ServerThreadMarker = "[Server thread/INFO]"
	GameSavedMarker    = "Saved the game"
	ServerReadyMarker  = "Done"
	SaveAliasToken     = "#save"
)

// Commands written to the server.
const (
	AutosaveOffCommand = "save-off"
	SaveAllCommand     = "save-all"
	backupDoneFormat   = "say backup was done %s"
)

func (s *Supervisor) onStderr(l linereader.Line) {
	if l.EOF {
		s.log.Info().Msg("stderr ended, the server probably exited")
		s.stderrDone = true
		s.waitIfDrained()
		return
	}

	metrics.ServerLines.WithLabelValues("stderr").Inc()
	s.history.Append(console.Stderr, l.Text)
	s.log.Warn().Str("stream", "stderr").Msg(l.Text)
	s.armStderr()
}

func (s *Supervisor) onStdout(l linereader.Line) {
	if l.EOF {
		s.log.Info().Msg("stdout ended, the server probably exited")
		s.stdoutDone = true
		s.waitIfDrained()
		return
	}

	metrics.ServerLines.WithLabelValues("stdout").Inc()
	s.history.Append(console.Stdout, l.Text)
	s.log.Info().Str("stream", "stdout").Msg(l.Text)

	s.applyRules(l.Text)
	s.armStdout()
}

// applyRules runs every stdout trigger against line. Rules are independent;
// more than one may fire for the same line.
func (s *Supervisor) applyRules(line string) {
	serverThread := strings.Contains(line, ServerThreadMarker)

	if serverThread && strings.Contains(line, GameSavedMarker) {
		metrics.TriggerMatches.WithLabelValues("game_saved").Inc()
		s.scheduleBackup()
	}

	if serverThread && strings.Contains(line, ServerReadyMarker) {
		metrics.TriggerMatches.WithLabelValues("server_ready").Inc()
		s.onServerReady()
	}

	if alias, ok := extractAlias(line); ok {
		metrics.TriggerMatches.WithLabelValues("save_alias").Inc()
		s.onSaveAlias(alias)
	}
}

// scheduleBackup (re)arms the debounce timer; a burst of saves yields one backup.
func (s *Supervisor) scheduleBackup() {
	s.backupGen++
	s.backupPending = true
	s.timers.ScheduleOnce(BackupTimerKey, s.debounce, s, doBackup{gen: s.backupGen})
	s.log.Debug().Dur("delay", s.debounce).Msg("backup scheduled")
}

// onServerReady hands periodic saving over from the server to the wrapper.
func (s *Supervisor) onServerReady() {
	if s.autosaveDisabled {
		s.log.Debug().Msg("server ready marker seen again; autosave already handed over")
		return
	}
	s.autosaveDisabled = true

	s.log.Info().Dur("interval", s.interval).Msg("server ready, disabling autosave")
	s.write(AutosaveOffCommand, "wrapper")
	s.timers.SchedulePeriodic(SaveAllTimerKey, s.interval, s.interval, s, saveAll{})
}

// onSaveAlias remembers alias for the next backup and forces a save right away.
func (s *Supervisor) onSaveAlias(alias string) {
	if err := validateAlias(alias); err != nil {
		s.log.Warn().Str("alias", alias).Err(err).Msg("save alias rejected")
		return
	}

	if s.hasPendingAlias {
		s.log.Info().Str("previous", s.pendingAlias).Str("alias", alias).Msg("pending alias replaced")
	}
	s.pendingAlias = alias
	s.hasPendingAlias = true
	s.announce("next backup will be named " + alias)

	s.timers.Cancel(SaveAllTimerKey)
	s.timers.SchedulePeriodic(SaveAllTimerKey, 0, s.interval, s, saveAll{})
}

func (s *Supervisor) onSaveAll() {
	// A delivery can still arrive after the server exited.
	if s.state != lib.SupervisorStarted {
		return
	}
	s.write(SaveAllCommand, "timer")
}

// extractAlias returns the text after the first space that follows the alias
// token, up to the end of the line.
func extractAlias(line string) (string, bool) {
	i := strings.Index(line, SaveAliasToken)
	if i < 0 {
		return "", false
	}
	rest := line[i+len(SaveAliasToken):]
	j := strings.IndexByte(rest, ' ')
	if j < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[j+1:]), true
}

var (
	errAliasEmpty     = errors.New("alias is empty")
	errAliasDots      = errors.New("alias is not a file name")
	errAliasSeparator = errors.New("alias contains a path separator")
)

func validateAlias(alias string) error {
	switch {
	case alias == "":
		return errAliasEmpty
	case alias == "." || alias == "..":
		return errAliasDots
	case strings.ContainsRune(alias, filepath.Separator) || strings.ContainsRune(alias, '/'):
		return errAliasSeparator
	}
	return nil
}
