package backup

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/linereader"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/metrics"
)

// start launches the archiver for req. The archiver runs from the parent of
// the server directory and is given only the directory's base name, so the
// archive stores relative paths.
func (w *Worker) start(ctx context.Context, req lib.BackupRequest) {
	started := w.now()
	path := filepath.Join(w.cfg.BackupDir, ArchiveName(started))
	item := filepath.Base(w.cfg.ServerDir)

	r := &run{
		id:      lib.NewID(),
		alias:   req.Alias,
		path:    path,
		stderr:  &bytes.Buffer{},
		started: started,
	}

	cmd := exec.CommandContext(ctx, w.cfg.Archiver, "cvf", path, item)
	cmd.Dir = filepath.Dir(w.cfg.ServerDir)
	cmd.Stderr = r.stderr
	r.cmd = cmd

	log := w.log.With().Str("backup_id", r.id).Str("archive", path).Str("alias", req.Alias).Logger()

	stdout, err := cmd.StdoutPipe()
	if err == nil {
		log.Info().Str("archiver", w.cfg.Archiver).Strs("args", cmd.Args[1:]).Str("dir", cmd.Dir).Msg("starting archiver")
		err = cmd.Start()
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to start archiver")
		metrics.Backups.WithLabelValues("failed").Inc()
		w.owner.Post(lib.BackupFailed{ExitCode: -1, Error: err.Error()})
		return
	}

	r.stdout = linereader.New(stdout)
	w.run = r
	w.state = Working
	metrics.BackupInFlight.Set(1)

	w.armStdout()
}

func (w *Worker) armStdout() {
	id := w.run.id
	if err := w.run.stdout.Arm(func(l linereader.Line) {
		w.Post(archiverLine{runID: id, line: l})
	}); err != nil {
		w.log.Error().Err(err).Str("backup_id", id).Msg("failed to arm archiver stdout")
	}
}
