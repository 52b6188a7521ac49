package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/config"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/console"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/control"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/linereader"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/metrics"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/scheduler"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/supervisor"
)

// shutdownTimeout bounds how long the tree waits for each service to stop.
const shutdownTimeout = 10 * time.Second

type app struct {
	tree    *suture.Supervisor
	sup     *supervisor.Supervisor
	history *console.History
	log     *zerolog.Logger
}

func newApp(cfg *config.Config) (*app, error) {
	log := logging.For("mcwrap")
	history := console.NewHistory()
	timers := scheduler.New()

	sup, err := supervisor.New(cfg.ServerStartSpec(), supervisor.Options{
		Timers:         timers,
		Backup:         cfg.BackupWorker(),
		History:        history,
		BackupDebounce: cfg.Schedule.BackupDebounce,
		SaveInterval:   cfg.Schedule.SaveInterval,
	})
	if err != nil {
		return nil, err
	}

	tree := suture.New("mcwrap", suture.Spec{
		EventHook: eventHook(log),
		Timeout:   shutdownTimeout,
	})
	tree.Add(timers)
	tree.Add(sup)
	tree.Add(newSignalHandler(sup))
	tree.Add(newConsoleRelay(linereader.New(os.Stdin), sup))

	if cfg.Control.Address != "" {
		ctl, err := control.NewServer(cfg.Control, sup, history)
		if err != nil {
			return nil, fmt.Errorf("control plane: %w", err)
		}
		tree.Add(ctl)
	}
	if cfg.Metrics.Address != "" {
		tree.Add(metrics.NewServer(cfg.Metrics.Address))
	}

	return &app{tree: tree, sup: sup, history: history, log: log}, nil
}

// run serves the tree until the server is gone and returns the code the
// process should exit with.
func (a *app) run(ctx context.Context) (int, error) {
	defer a.history.Close()

	if err := a.sup.Start(); err != nil {
		return 1, err
	}

	err := a.tree.Serve(ctx)
	if err != nil && !errors.Is(err, suture.ErrTerminateSupervisorTree) && !errors.Is(err, context.Canceled) {
		a.log.Error().Err(err).Msg("service tree failed")
	}

	if startErr := a.sup.Err(); startErr != nil {
		return 1, startErr
	}
	code, ok := a.sup.ExitCode()
	if !ok {
		a.log.Warn().Msg("wrapper stopped before the server exited")
		return 1, nil
	}
	if code < 0 {
		// Killed by a signal.
		code = 1
	}
	a.log.Info().Int("exit_code", code).Msg("wrapper exiting")
	return code, nil
}

// eventHook logs suture events through zerolog.
func eventHook(log *zerolog.Logger) suture.EventHook {
	return func(ev suture.Event) {
		var e *zerolog.Event
		switch ev.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeStopTimeout:
			e = log.Error()
		case suture.EventTypeServiceTerminate, suture.EventTypeBackoff:
			e = log.Warn()
		default:
			e = log.Info()
		}
		e.Fields(ev.Map()).Msg(ev.String())
	}
}
