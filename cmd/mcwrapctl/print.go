package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
)

// printStatusTable renders the status as a two-column table.
func printStatusTable(w io.Writer, st lib.SupervisorStatus) {
	rows := [][2]string{
		{"STATE", st.State.String()},
		{"PID", pidText(st)},
		{"STARTED", timeText(st.StartTime)},
		{"EXIT CODE", exitText(st.ExitCode)},
		{"PENDING ALIAS", orDash(st.PendingAlias)},
		{"BACKUP RUNNING", strconv.FormatBool(st.BackupInFlight)},
		{"LAST BACKUP", orDash(st.LastBackup)},
	}
	if st.LastBackupTime != nil {
		rows = append(rows, [2]string{"LAST BACKUP AT", timeText(*st.LastBackupTime)})
	}
	if st.LastError != "" {
		rows = append(rows, [2]string{"LAST ERROR", st.LastError})
	}

	keyW, valW := 0, 0
	for _, r := range rows {
		keyW = maxInt(keyW, len(r[0]))
		valW = maxInt(valW, len(r[1]))
	}

	sep := fmt.Sprintf("+-%s-+-%s-+\n", strings.Repeat("-", keyW), strings.Repeat("-", valW))
	fmt.Fprint(w, sep)
	for _, r := range rows {
		fmt.Fprintf(w, "| %s | %s |\n", pad(r[0], keyW), pad(r[1], valW))
	}
	fmt.Fprint(w, sep)
}

func pidText(st lib.SupervisorStatus) string {
	if st.PID == 0 {
		return "-"
	}
	if st.State == lib.SupervisorStarted && !st.Alive {
		return strconv.Itoa(st.PID) + " (not responding)"
	}
	return strconv.Itoa(st.PID)
}

func timeText(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func exitText(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
