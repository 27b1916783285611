package store

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/schedule"
)

// PositionLog is the human-readable record of one Position: the session
// header, every scheduler transition, and a final status line. It doubles as
// the event sink for the recorders, so capture-side markers land in the same
// file as the schedule they annotate.
type PositionLog struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer

	finalized bool
}

// LogHeader describes the Position being recorded.
type LogHeader struct {
	SessionID string
	Subject   string
	Sitting   int
	Position  int
	Origin    time.Time

	Gestures      []string
	NumRepetition int
	GestureDur    time.Duration
	RestDur       time.Duration
	Randomized    bool
}

// CreatePositionLog opens the log file and writes the header block.
func CreatePositionLog(path string, h LogHeader) (*PositionLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("store: create position log: %w", err)
	}
	l := &PositionLog{f: f, w: bufio.NewWriter(f)}

	fmt.Fprintf(l.w, "session_id: %s\n", h.SessionID)
	fmt.Fprintf(l.w, "subject: %s\n", h.Subject)
	fmt.Fprintf(l.w, "sitting: %d\n", h.Sitting)
	fmt.Fprintf(l.w, "position: %d\n", h.Position)
	fmt.Fprintf(l.w, "origin: %s\n", h.Origin.Format(time.RFC3339Nano))
	fmt.Fprintf(l.w, "gestures: %v\n", h.Gestures)
	fmt.Fprintf(l.w, "num_repetition: %d\n", h.NumRepetition)
	fmt.Fprintf(l.w, "gesture_duration: %s\n", h.GestureDur)
	fmt.Fprintf(l.w, "rest_duration: %s\n", h.RestDur)
	fmt.Fprintf(l.w, "randomized: %t\n", h.Randomized)
	fmt.Fprintln(l.w, "---")

	if err := l.w.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("store: write log header: %w", err)
	}
	return l, nil
}

// LogEvent records one scheduler transition. Implements the recorder's
// event sink.
func (l *PositionLog) LogEvent(ev schedule.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalized {
		return nil
	}
	if ev.State == schedule.StateDone {
		_, err := fmt.Fprintf(l.w, "%d\tdone\n", ev.At.Nanoseconds())
		return err
	}
	_, err := fmt.Fprintf(l.w, "%d\t%s\ttrial=%d\tgesture=%s\n",
		ev.At.Nanoseconds(), ev.State, ev.TrialID, ev.Gesture)
	return err
}

// LogMarker records a free-form marker line (abort, adapter disconnect).
func (l *PositionLog) LogMarker(at time.Duration, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalized {
		return nil
	}
	_, err := fmt.Fprintf(l.w, "%d\tmarker\t%s\n", at.Nanoseconds(), text)
	return err
}

// LogTrials writes the realized trial table after the run.
func (l *PositionLog) LogTrials(trials []schedule.Trial) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalized {
		return nil
	}
	fmt.Fprintln(l.w, "---")
	for _, t := range trials {
		fmt.Fprintf(l.w, "trial=%d\tgesture=%s\thold=%d..%d\trest_end=%d\tcompleted=%t\n",
			t.ID, t.Gesture,
			t.HoldStart.Nanoseconds(), t.HoldEnd.Nanoseconds(),
			t.RestEnd.Nanoseconds(), t.Completed)
	}
	return nil
}

// Finalize writes the closing status line and closes the file. It is safe to
// call once; later log calls become no-ops.
func (l *PositionLog) Finalize(complete bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalized {
		return nil
	}
	l.finalized = true

	status := "complete"
	if !complete {
		status = "incomplete"
	}
	fmt.Fprintln(l.w, "---")
	fmt.Fprintf(l.w, "status: %s\n", status)

	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return fmt.Errorf("store: flush position log: %w", err)
	}
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("store: close position log: %w", err)
	}
	return nil
}
