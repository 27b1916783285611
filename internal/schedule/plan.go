// Package schedule drives the gesture presentation state machine.
//
// A Plan is the ordered trial list for one Position; the Scheduler walks it,
// emitting stamped state-transition events that the recorders store as
// alignment markers.
package schedule

import (
	"fmt"
	"math/rand"
	"time"
)

// State is a scheduler state.
type State int

const (
	StateIdle State = iota
	StatePrompting
	StateHolding
	StateResting
	StateDone
)

// String returns the lowercase state name used in logs and stores.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrompting:
		return "prompting"
	case StateHolding:
		return "holding"
	case StateResting:
		return "resting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is one stamped state transition. Recorders append these to their log
// streams; alignment across streams is done by the At offset.
type Event struct {
	TrialID int
	Gesture string
	State   State
	At      time.Duration // timebase offset at transition
	Wall    time.Time     // informational
}

// Trial is one gesture repetition. Offset is the nominal start within the
// plan; the realized offsets are filled in as the trial executes, and a zero
// realized offset means the state was never reached.
type Trial struct {
	ID      int
	Gesture string
	Offset  time.Duration

	HoldStart time.Duration
	HoldEnd   time.Duration
	RestEnd   time.Duration
	Completed bool
}

// Plan is the ordered trial sequence for one Position.
type Plan struct {
	Trials          []Trial
	GestureDuration time.Duration
	RestDuration    time.Duration
}

// Total returns the nominal scheduled span of the plan.
func (p Plan) Total() time.Duration {
	return time.Duration(len(p.Trials)) * (p.GestureDuration + p.RestDuration)
}

// BuildPlan expands the gesture set into numRepetition trials per gesture.
//
// With randomize set, gestures are drawn in random order until each is
// exhausted, the way subjects were prompted historically; the seed makes the
// order reproducible. Without it, repetitions run gesture by gesture in the
// given order.
func BuildPlan(gestures []string, numRepetition int, gestureDuration, restDuration time.Duration, randomize bool, seed int64) (Plan, error) {
	if len(gestures) == 0 {
		return Plan{}, fmt.Errorf("schedule: gesture set is empty")
	}
	if numRepetition <= 0 {
		return Plan{}, fmt.Errorf("schedule: num_repetition must be > 0, got %d", numRepetition)
	}
	if gestureDuration <= 0 || restDuration <= 0 {
		return Plan{}, fmt.Errorf("schedule: gesture and rest durations must be > 0")
	}

	plan := Plan{
		Trials:          make([]Trial, 0, len(gestures)*numRepetition),
		GestureDuration: gestureDuration,
		RestDuration:    restDuration,
	}

	slot := gestureDuration + restDuration

	if !randomize {
		id := 0
		for _, g := range gestures {
			for r := 0; r < numRepetition; r++ {
				plan.Trials = append(plan.Trials, Trial{ID: id, Gesture: g, Offset: time.Duration(id) * slot})
				id++
			}
		}
		return plan, nil
	}

	rng := rand.New(rand.NewSource(seed))
	remaining := make([]string, len(gestures))
	copy(remaining, gestures)
	counts := make(map[string]int, len(gestures))

	id := 0
	for len(remaining) > 0 {
		i := rng.Intn(len(remaining))
		g := remaining[i]
		plan.Trials = append(plan.Trials, Trial{ID: id, Gesture: g, Offset: time.Duration(id) * slot})
		id++

		counts[g]++
		if counts[g] == numRepetition {
			remaining = append(remaining[:i], remaining[i+1:]...)
		}
	}
	return plan, nil
}
