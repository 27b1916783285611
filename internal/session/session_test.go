package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/config"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/schedule"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor/mock"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/store"
)

func testConfig(t *testing.T, gestures []string, reps int, hold, rest time.Duration) *config.Config {
	t.Helper()
	return &config.Config{
		Subject:    config.SubjectConfig{ID: "sub01", Age: 30, Gender: "f"},
		Sitting:    1,
		Position:   1,
		DatasetDir: t.TempDir(),
		Gestures:   gestures,
		Schedule: config.ScheduleConfig{
			NumRepetition:    reps,
			GestureDurationS: hold.Seconds(),
			RestDurationS:    rest.Seconds(),
			Seed:             1,
		},
	}
}

func TestRunPositionCompletes(t *testing.T) {
	cfg := testConfig(t, []string{"fist"}, 3, 150*time.Millisecond, 100*time.Millisecond)

	s, err := New(cfg, mock.EMG(time.Millisecond), mock.Motion(5*time.Millisecond))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	s.Begin()
	res, err := s.RunPosition(context.Background())
	if err != nil {
		t.Fatalf("run position: %v", err)
	}

	if !res.Complete {
		t.Error("result not marked complete")
	}
	if len(res.Trials) != 3 {
		t.Fatalf("got %d trials, want 3", len(res.Trials))
	}
	for _, tr := range res.Trials {
		if !tr.Completed {
			t.Errorf("trial %d not completed", tr.ID)
		}
		if tr.HoldEnd <= tr.HoldStart {
			t.Errorf("trial %d hold window empty: %v..%v", tr.ID, tr.HoldStart, tr.HoldEnd)
		}
	}

	if res.EMG.Written == 0 || res.Pose.Written == 0 {
		t.Errorf("flush wrote emg=%d pose=%d samples", res.EMG.Written, res.Pose.Written)
	}

	// Stored waveform stamps are non-decreasing and match the flush count.
	samples, err := store.ReadWaveform(res.Paths.Waveform)
	if err != nil {
		t.Fatalf("read waveform: %v", err)
	}
	if len(samples) != res.EMG.Written {
		t.Errorf("stored %d waveform samples, flush reported %d", len(samples), res.EMG.Written)
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].At < samples[i-1].At {
			t.Fatalf("waveform stamp regressed at %d: %v < %v", i, samples[i].At, samples[i-1].At)
		}
	}

	frames, err := store.ReadPose(res.Paths.Pose)
	if err != nil {
		t.Fatalf("read pose: %v", err)
	}
	if len(frames) != res.Pose.Written {
		t.Errorf("stored %d pose frames, flush reported %d", len(frames), res.Pose.Written)
	}

	logText, err := os.ReadFile(res.Paths.Log)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(logText), "status: complete") {
		t.Errorf("log not finalized complete:\n%s", logText)
	}
	if !strings.Contains(string(logText), "holding") {
		t.Errorf("log missing schedule markers:\n%s", logText)
	}
}

func TestRunPositionAbortMidHolding(t *testing.T) {
	cfg := testConfig(t, []string{"fist", "point"}, 2, 5*time.Second, 3*time.Second)

	s, err := New(cfg, mock.EMG(time.Millisecond), mock.Motion(5*time.Millisecond))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.RunPosition(context.Background())
		done <- outcome{res, err}
	}()

	s.Begin()

	// Wait for the run's event stream, then for the first Holding state.
	var events <-chan schedule.Event
	deadline := time.After(2 * time.Second)
	for events == nil {
		select {
		case <-deadline:
			t.Fatal("event stream never appeared")
		default:
			events = s.Events()
			if events == nil {
				time.Sleep(time.Millisecond)
			}
		}
	}
	for holding := false; !holding; {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event stream closed before holding")
			}
			if ev.State == schedule.StateHolding {
				holding = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("never reached holding")
		}
	}

	// Make sure capture has actually landed samples before aborting, so the
	// flush below has something to preserve.
	captureDeadline := time.Now().Add(2 * time.Second)
	for s.Health()["emg"].Captured == 0 {
		if time.Now().After(captureDeadline) {
			t.Fatal("no emg samples captured before abort")
		}
		time.Sleep(time.Millisecond)
	}

	s.Abort()

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after abort")
	}

	if !errors.Is(out.err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", out.err)
	}
	if out.res == nil {
		t.Fatal("aborted run returned no result")
	}
	if out.res.Complete {
		t.Error("aborted run marked complete")
	}
	for _, tr := range out.res.Trials {
		if tr.Completed {
			t.Errorf("trial %d marked completed after abort", tr.ID)
		}
	}

	// Abort still flushes everything captured.
	if out.res.EMG.Written == 0 {
		t.Error("abort flushed no emg samples")
	}
	samples, err := store.ReadWaveform(out.res.Paths.Waveform)
	if err != nil {
		t.Fatalf("read waveform: %v", err)
	}
	if len(samples) != out.res.EMG.Written {
		t.Errorf("stored %d samples, flush reported %d", len(samples), out.res.EMG.Written)
	}

	logText, err := os.ReadFile(out.res.Paths.Log)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(logText), "status: incomplete") {
		t.Errorf("aborted log not marked incomplete:\n%s", logText)
	}
	if !strings.Contains(string(logText), "run aborted") {
		t.Errorf("abort marker missing:\n%s", logText)
	}
}

// A signal can land after session setup but before RunPosition installs its
// cancel hook; the run must honor the abort instead of recording anyway.
func TestAbortBeforeRunStarts(t *testing.T) {
	cfg := testConfig(t, []string{"fist", "point"}, 1, 100*time.Millisecond, 50*time.Millisecond)

	emg := mock.EMG(time.Millisecond)
	s, err := New(cfg, emg, mock.Motion(5*time.Millisecond))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	s.Abort()

	res, err := s.RunPosition(context.Background())
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("RunPosition after Abort = %v, want ErrAborted", err)
	}
	if res != nil {
		t.Fatalf("aborted run produced a result: %+v", res)
	}
	if got := emg.Produced(); got != 0 {
		t.Errorf("aborted run streamed %d samples, want 0", got)
	}
	if _, err := os.Stat(store.Layout(cfg.DatasetDir, cfg.Subject.ID, s.Sitting(), cfg.Position).Dir); !os.IsNotExist(err) {
		t.Errorf("aborted run created position directory (stat err = %v)", err)
	}
}

func TestSittingResolvedFromCatalog(t *testing.T) {
	cfg := testConfig(t, []string{"fist"}, 1, 100*time.Millisecond, 100*time.Millisecond)
	cfg.Sitting = 0 // next unused

	s, err := New(cfg, mock.EMG(time.Millisecond), mock.Motion(5*time.Millisecond))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	if s.Sitting() != 1 {
		t.Errorf("first sitting = %d, want 1", s.Sitting())
	}
}
