package main

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/linereader"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/logging"
	"github.com/SanjoDeundiak/mc-wrapper/pkg/lib/supervisor"
)

type commandTarget interface {
	Command(text string) error
}

// consoleRelay forwards lines typed on the wrapper's stdin to the server.
type consoleRelay struct {
	in     *linereader.Reader
	target commandTarget
	lines  chan linereader.Line
	log    *zerolog.Logger
}

func newConsoleRelay(in *linereader.Reader, target commandTarget) *consoleRelay {
	return &consoleRelay{
		in:     in,
		target: target,
		lines:  make(chan linereader.Line, 1),
		log:    logging.For("relay"),
	}
}

// Serve relays until stdin ends, which is final: the relay is not restarted.
func (r *consoleRelay) Serve(ctx context.Context) error {
	for {
		// A read left pending by a previous run delivers into r.lines.
		if err := r.in.Arm(r.deliver); err != nil && !errors.Is(err, linereader.ErrReadInFlight) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case l := <-r.lines:
			if l.EOF {
				if err := r.in.Err(); err != nil {
					r.log.Warn().Err(err).Msg("stdin read failed")
				}
				r.log.Info().Msg("stdin closed, console relay stopped")
				return suture.ErrDoNotRestart
			}
			if strings.TrimSpace(l.Text) == "" {
				continue
			}
			if err := r.target.Command(l.Text); err != nil {
				if errors.Is(err, supervisor.ErrStopped) {
					return suture.ErrDoNotRestart
				}
				r.log.Warn().Err(err).Str("command", l.Text).Msg("command not relayed")
			}
		}
	}
}

func (r *consoleRelay) deliver(l linereader.Line) {
	r.lines <- l
}

func (r *consoleRelay) String() string { return "console relay" }
