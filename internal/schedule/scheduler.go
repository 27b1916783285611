package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/eventbus"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/timebase"
)

// Scheduler walks a Plan, emitting a stamped Event on every state transition.
//
// Timing uses elapsed-duration timers from state entry, never absolute
// deadlines, so scheduling jitter shifts a single trial by at most the jitter
// itself and never accumulates.
//
// Pause requests (operator's space key) take effect at the next trial
// boundary; paused time stretches the wall span of the Position but never a
// trial's realized hold or rest duration.
type Scheduler struct {
	plan  Plan
	clock *timebase.Authority
	bus   *eventbus.Bus[Event]

	pauseCh chan struct{} // nudges a paused boundary awake, capacity 1

	mu          sync.Mutex
	running     bool
	pauseWanted bool
	trials      []Trial
	state       State
}

// New creates a Scheduler for one Position's plan.
func New(plan Plan, clock *timebase.Authority, bus *eventbus.Bus[Event]) (*Scheduler, error) {
	if len(plan.Trials) == 0 {
		return nil, fmt.Errorf("schedule: plan has no trials")
	}
	if clock == nil || bus == nil {
		return nil, fmt.Errorf("schedule: clock and bus are required")
	}

	trials := make([]Trial, len(plan.Trials))
	copy(trials, plan.Trials)

	return &Scheduler{
		plan:    plan,
		clock:   clock,
		bus:     bus,
		pauseCh: make(chan struct{}, 1),
		trials:  trials,
		state:   StateIdle,
	}, nil
}

// TogglePause flips the desired pause state and returns the new value so the
// caller's UI can mirror it. A pause takes effect at the next trial boundary;
// a pause and resume both issued mid-trial cancel out. Safe to call from any
// goroutine, including the prompt UI's.
func (s *Scheduler) TogglePause() bool {
	s.mu.Lock()
	s.pauseWanted = !s.pauseWanted
	wanted := s.pauseWanted
	s.mu.Unlock()

	select {
	case s.pauseCh <- struct{}{}:
	default:
	}
	return wanted
}

// Paused reports whether a pause is requested or in effect.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseWanted
}

// State returns the current scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Trials returns the realized trial records. Valid after Run returns; trials
// never reached keep zero offsets and Completed=false.
func (s *Scheduler) Trials() []Trial {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Trial, len(s.trials))
	copy(out, s.trials)
	return out
}

// Run drives the plan to completion. It blocks until the final trial's rest
// expires (returns nil) or ctx is cancelled (returns ctx.Err()). On
// cancellation the in-flight trial stays marked incomplete; no terminal Done
// event is emitted.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("schedule: scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	slog.Info("scheduler started",
		"trials", len(s.trials),
		"gesture_duration", s.plan.GestureDuration,
		"rest_duration", s.plan.RestDuration,
	)

	for i := range s.trials {
		// A pause requested at any point holds the schedule at this boundary
		// until the desired state flips back.
		if s.Paused() {
			slog.Info("scheduler paused", "next_trial", s.trials[i].ID)
			for s.Paused() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-s.pauseCh:
				}
			}
			slog.Info("scheduler resumed")
		}

		if err := s.runTrial(ctx, i); err != nil {
			return err
		}
	}

	s.setState(StateDone)
	s.emit(Event{TrialID: -1, State: StateDone})
	slog.Info("scheduler done", "trials_completed", len(s.trials))
	return nil
}

// runTrial executes one prompt/hold/rest cycle.
func (s *Scheduler) runTrial(ctx context.Context, i int) error {
	s.mu.Lock()
	trial := s.trials[i]
	s.mu.Unlock()

	// Prompting: the gesture image goes up and persists through Holding.
	s.setState(StatePrompting)
	s.emit(Event{TrialID: trial.ID, Gesture: trial.Gesture, State: StatePrompting})

	// Holding: exactly GestureDuration from entry.
	s.setState(StateHolding)
	holdStart := s.clock.Now()
	s.emit(Event{TrialID: trial.ID, Gesture: trial.Gesture, State: StateHolding})

	if err := s.wait(ctx, s.plan.GestureDuration); err != nil {
		return err
	}
	holdEnd := s.clock.Now()

	// Resting: exactly RestDuration from entry.
	s.setState(StateResting)
	s.emit(Event{TrialID: trial.ID, Gesture: trial.Gesture, State: StateResting})

	if err := s.wait(ctx, s.plan.RestDuration); err != nil {
		// Hold completed even though rest was cut short; keep its offsets.
		s.mu.Lock()
		s.trials[i].HoldStart = holdStart
		s.trials[i].HoldEnd = holdEnd
		s.mu.Unlock()
		return err
	}
	restEnd := s.clock.Now()

	s.mu.Lock()
	s.trials[i].HoldStart = holdStart
	s.trials[i].HoldEnd = holdEnd
	s.trials[i].RestEnd = restEnd
	s.trials[i].Completed = true
	s.mu.Unlock()

	return nil
}

// wait blocks for d or until cancellation.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Scheduler) emit(ev Event) {
	ev.At = s.clock.Now()
	ev.Wall = s.clock.Wall(ev.At)
	s.bus.Publish(ev)

	slog.Debug("scheduler transition",
		"trial", ev.TrialID,
		"gesture", ev.Gesture,
		"state", ev.State.String(),
		"at", ev.At,
	)
}
