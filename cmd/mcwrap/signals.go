package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/control"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
)

// serverControl is the part of the supervisor the signal handler drives.
type serverControl interface {
	Command(text string) error
	Stop() error
	Kill() error
}

// signalHandler turns the first SIGINT/SIGTERM into a clean server stop and
// the second into a kill.
type signalHandler struct {
	target  serverControl
	signals chan os.Signal
	notify  func(chan<- os.Signal)
	log     *zerolog.Logger
}

func newSignalHandler(target serverControl) *signalHandler {
	return &signalHandler{
		target:  target,
		signals: make(chan os.Signal, 2),
		notify: func(c chan<- os.Signal) {
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		},
		log: logging.For("signals"),
	}
}

func (h *signalHandler) Serve(ctx context.Context) error {
	h.notify(h.signals)
	defer signal.Stop(h.signals)

	received := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-h.signals:
			received++
			h.handle(sig, received)
		}
	}
}

func (h *signalHandler) handle(sig os.Signal, n int) {
	switch n {
	case 1:
		h.log.Info().Str("signal", sig.String()).Msg("stopping server; signal again to kill it")
		if err := h.target.Command(control.StopCommand); err != nil {
			h.log.Warn().Err(err).Msg("failed to send stop command")
		}
		if err := h.target.Stop(); err != nil {
			h.log.Warn().Err(err).Msg("failed to close server stdin")
		}
	case 2:
		h.log.Warn().Str("signal", sig.String()).Msg("killing server")
		if err := h.target.Kill(); err != nil {
			h.log.Error().Err(err).Msg("failed to kill server")
		}
	default:
		h.log.Warn().Str("signal", sig.String()).Msg("already killing the server")
	}
}

func (h *signalHandler) String() string { return "signals" }
