package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/eventbus"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/timebase"
)

// jitter tolerance for timer-driven state durations under CI load.
const tolerance = 150 * time.Millisecond

func collectEvents(bus *eventbus.Bus[Event], buf int) <-chan Event {
	ch := make(chan Event, buf)
	bus.Subscribe("test", ch)
	return ch
}

func TestRunEmitsSchedule(t *testing.T) {
	const (
		reps = 3
		gd   = 200 * time.Millisecond
		rd   = 100 * time.Millisecond
	)

	plan, err := BuildPlan([]string{"fist"}, reps, gd, rd, false, 0)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	clock := timebase.New()
	bus := eventbus.New[Event]()
	defer bus.Close()
	events := collectEvents(bus, 64)

	s, err := New(plan, clock, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)

	// Scenario property: total scheduled span ~ reps * (gd + rd).
	want := time.Duration(reps) * (gd + rd)
	if elapsed < want || elapsed > want+time.Duration(reps)*tolerance {
		t.Errorf("schedule span = %v, want ~%v", elapsed, want)
	}

	var holding, resting, done int
	var prev time.Duration
	for len(events) > 0 {
		ev := <-events
		if ev.At < prev {
			t.Errorf("event offsets decreased: %v after %v", ev.At, prev)
		}
		prev = ev.At
		switch ev.State {
		case StateHolding:
			holding++
		case StateResting:
			resting++
		case StateDone:
			done++
		}
	}
	if holding != reps || resting != reps || done != 1 {
		t.Errorf("got %d holding, %d resting, %d done; want %d/%d/1", holding, resting, done, reps, reps)
	}

	// Realized durations within jitter of the configured ones.
	for _, tr := range s.Trials() {
		if !tr.Completed {
			t.Errorf("trial %d not completed", tr.ID)
			continue
		}
		hold := tr.HoldEnd - tr.HoldStart
		if hold < gd || hold > gd+tolerance {
			t.Errorf("trial %d: hold duration %v, want ~%v", tr.ID, hold, gd)
		}
		rest := tr.RestEnd - tr.HoldEnd
		if rest < rd || rest > rd+tolerance {
			t.Errorf("trial %d: rest duration %v, want ~%v", tr.ID, rest, rd)
		}
	}

	if got := s.State(); got != StateDone {
		t.Errorf("final state = %v, want done", got)
	}
}

func TestAbortMidHolding(t *testing.T) {
	plan, err := BuildPlan([]string{"fist"}, 3, time.Second, time.Second, false, 0)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	clock := timebase.New()
	bus := eventbus.New[Event]()
	defer bus.Close()
	events := collectEvents(bus, 64)

	s, err := New(plan, clock, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Cancel partway through the first hold.
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err = s.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	for _, tr := range s.Trials() {
		if tr.Completed {
			t.Errorf("trial %d marked completed after abort", tr.ID)
		}
	}

	// No terminal Done event on abort.
	for len(events) > 0 {
		if ev := <-events; ev.State == StateDone {
			t.Error("Done event emitted on aborted run")
		}
	}
}

func TestPauseBetweenTrials(t *testing.T) {
	const (
		gd = 100 * time.Millisecond
		rd = 50 * time.Millisecond
	)
	plan, err := BuildPlan([]string{"fist"}, 2, gd, rd, false, 0)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	clock := timebase.New()
	bus := eventbus.New[Event]()
	defer bus.Close()

	s, err := New(plan, clock, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const pauseFor = 300 * time.Millisecond
	go func() {
		// Request pause during the first trial; it lands at the boundary.
		time.Sleep(gd / 2)
		s.TogglePause()
		time.Sleep(pauseFor)
		s.TogglePause()
	}()

	start := time.Now()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)

	// The pause takes effect at the first trial boundary (gd+rd in), so the
	// blocked stretch runs from there until the resume request.
	pausedFor := pauseFor - (gd/2 + rd)
	minSpan := 2*(gd+rd) + pausedFor
	if elapsed < minSpan {
		t.Errorf("span %v shorter than schedule plus pause (%v)", elapsed, minSpan)
	}
	if maxSpan := minSpan + 2*tolerance; elapsed > maxSpan {
		t.Errorf("span %v longer than schedule plus pause (max %v)", elapsed, maxSpan)
	}
	// ...but realized hold durations do not.
	for _, tr := range s.Trials() {
		hold := tr.HoldEnd - tr.HoldStart
		if hold > gd+tolerance {
			t.Errorf("trial %d: hold %v stretched by pause", tr.ID, hold)
		}
	}
}

func TestQuickPauseResumeCancelsOut(t *testing.T) {
	const (
		gd = 100 * time.Millisecond
		rd = 50 * time.Millisecond
	)
	plan, err := BuildPlan([]string{"fist"}, 2, gd, rd, false, 0)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	bus := eventbus.New[Event]()
	defer bus.Close()

	s, err := New(plan, timebase.New(), bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	go func() {
		// Pause then resume inside the first trial; the two requests cancel
		// and the boundary must not block.
		time.Sleep(gd / 2)
		if !s.TogglePause() {
			t.Error("first toggle did not report paused")
		}
		if s.TogglePause() {
			t.Error("second toggle did not report running")
		}
	}()

	start := time.Now()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)

	if maxSpan := 2*(gd+rd) + 2*tolerance; elapsed > maxSpan {
		t.Errorf("span %v, cancelled pause still stalled the schedule (max %v)", elapsed, maxSpan)
	}
	if s.Paused() {
		t.Error("scheduler still reports paused")
	}
}

func TestRunTwiceRejected(t *testing.T) {
	plan, _ := BuildPlan([]string{"fist"}, 1, 10*time.Millisecond, 10*time.Millisecond, false, 0)
	bus := eventbus.New[Event]()
	defer bus.Close()

	s, err := New(plan, timebase.New(), bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("second Run succeeded")
	}
}
