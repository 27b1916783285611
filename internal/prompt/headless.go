package prompt

import (
	"context"
	"log/slog"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/schedule"
)

// RunHeadless consumes the event stream without a terminal UI, logging each
// transition. It begins immediately (no instructions screen) and returns when
// the stream closes or the context is cancelled. Aborting happens via signal,
// outside this function.
func RunHeadless(ctx context.Context, events <-chan schedule.Event, hooks Hooks) error {
	if hooks.Begin != nil {
		hooks.Begin()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.State == schedule.StateDone {
				slog.Info("schedule finished")
				continue
			}
			slog.Info("trial state",
				"trial", ev.TrialID,
				"gesture", ev.Gesture,
				"state", ev.State.String(),
				"offset", ev.At)
		}
	}
}
