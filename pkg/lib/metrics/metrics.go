// Package metrics defines the wrapper's prometheus collectors and the HTTP
// service that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ServerLines counts server output lines by stream (stdout, stderr).
	ServerLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcwrap_server_lines_total",
			Help: "Lines read from the server output streams",
		},
		[]string{"stream"},
	)

	// TriggerMatches counts stdout trigger rules that fired.
	TriggerMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcwrap_trigger_matches_total",
			Help: "Stdout trigger rules that fired, by rule",
		},
		[]string{"rule"},
	)

	// ServerCommands counts commands written to the server's stdin by origin.
	ServerCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcwrap_server_commands_total",
			Help: "Commands written to the server stdin, by origin",
		},
		[]string{"origin"},
	)

	// BackupRequests counts requests handed to the backup worker.
	BackupRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcwrap_backup_requests_total",
			Help: "Backup requests issued, by kind (named, anonymous)",
		},
		[]string{"kind"},
	)

	// Backups counts finished backups by outcome (done, failed).
	Backups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcwrap_backups_total",
			Help: "Finished backups, by outcome",
		},
		[]string{"outcome"},
	)

	// BackupDuration observes archiver wall time.
	BackupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcwrap_backup_duration_seconds",
			Help:    "Archiver run time",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// BackupInFlight is 1 while the archiver runs.
	BackupInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcwrap_backup_in_flight",
			Help: "1 while an archiver subprocess is running",
		},
	)

	// ServerUp is 1 while the server subprocess runs.
	ServerUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcwrap_server_up",
			Help: "1 while the server subprocess is running",
		},
	)
)
