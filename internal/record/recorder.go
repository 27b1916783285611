// Package record implements the per-sensor stream recorders.
//
// Each Recorder owns one adapter and one buffer. Its capture loop pulls
// samples, stamps them with the shared time base at the moment of receipt,
// and appends them to a drop-oldest ring. The two recorders of a Position are
// fully isolated: a dead adapter surfaces as status on its own recorder and
// never touches the other stream or the scheduler.
package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/schedule"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/timebase"
)

const (
	defaultBufferCap = 1 << 20
	defaultIdleWait  = 500 * time.Microsecond
)

// Stamped is one sample with its receipt offset on the shared time base.
// Append-only: never mutated after the capture loop stamps it.
type Stamped[T any] struct {
	At    time.Duration
	Value T
}

// FlushResult summarizes what Stop wrote to the Position's store.
type FlushResult struct {
	Written int
	Dropped uint64 // lost to ring overflow during capture
	First   time.Duration
	Last    time.Duration
}

// Stats is a point-in-time view of a recorder.
type Stats struct {
	Captured     uint64
	Dropped      uint64
	Buffered     int
	Disconnected bool
	LastSampleAt time.Duration
}

// SampleSink receives the drained samples at flush time.
type SampleSink[T any] interface {
	WriteSample(Stamped[T]) error
}

// EventSink receives scheduler events as alignment markers, interleaved by
// stamp with the sample stream.
type EventSink interface {
	LogEvent(ev schedule.Event) error
}

// Config parameterizes a Recorder.
type Config struct {
	// Name identifies the stream in logs and status ("emg", "pose").
	Name string
	// BufferCap is the ring capacity. Zero means 1M samples.
	BufferCap int
	// IdleWait is the capture loop's sleep when Poll reports Empty.
	// Zero means 500µs.
	IdleWait time.Duration
	// OnDisconnect, when set, is called once from the capture loop if the
	// adapter is lost mid-capture. The recorder keeps its buffered samples.
	OnDisconnect func(name string, err error)
}

// Recorder captures one sensor stream.
type Recorder[T any] struct {
	cfg   Config
	src   sensor.Source[T]
	clock *timebase.Authority
	sink  SampleSink[T]
	log   EventSink

	mu      sync.Mutex
	ring    *ring[Stamped[T]]
	opened  bool
	started bool
	stopped bool
	result  FlushResult

	cancel context.CancelFunc
	wg     sync.WaitGroup

	captured       uint64
	lastSampleAt   time.Duration
	disconnected   bool
	disconnectOnce sync.Once
}

// New creates a Recorder. The sink receives samples at flush; the event sink
// receives scheduler markers as they arrive.
func New[T any](cfg Config, src sensor.Source[T], clock *timebase.Authority, sink SampleSink[T], log EventSink) (*Recorder[T], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("record: recorder name is required")
	}
	if src == nil || clock == nil || sink == nil {
		return nil, fmt.Errorf("record: source, clock and sink are required")
	}
	if cfg.BufferCap == 0 {
		cfg.BufferCap = defaultBufferCap
	}
	if cfg.IdleWait == 0 {
		cfg.IdleWait = defaultIdleWait
	}
	return &Recorder[T]{
		cfg:   cfg,
		src:   src,
		clock: clock,
		sink:  sink,
		log:   log,
		ring:  newRing[Stamped[T]](cfg.BufferCap),
	}, nil
}

// Open establishes and starts the adapter. A failure here is a
// *sensor.ConnectionError: fatal to this Position attempt.
func (r *Recorder[T]) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.opened {
		return nil
	}
	if err := r.src.Open(ctx); err != nil {
		return fmt.Errorf("record: open %s adapter: %w", r.cfg.Name, err)
	}
	if err := r.src.Start(); err != nil {
		// Symmetric teardown even though Start failed part-way.
		_ = r.src.Close()
		return fmt.Errorf("record: start %s adapter: %w", r.cfg.Name, err)
	}
	r.opened = true
	return nil
}

// StartCapture spawns the capture loop. The loop runs until StopCapture or
// ctx cancellation and never blocks the scheduler or the other recorder.
func (r *Recorder[T]) StartCapture(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.opened {
		return fmt.Errorf("record: %s recorder not opened", r.cfg.Name)
	}
	if r.started {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true

	r.wg.Add(1)
	go r.captureLoop(loopCtx)

	slog.Info("recorder started", "stream", r.cfg.Name, "buffer_cap", r.cfg.BufferCap)
	return nil
}

// captureLoop polls the adapter, stamping and buffering every sample.
func (r *Recorder[T]) captureLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		v, ok, err := r.src.Poll()
		if err != nil {
			if errors.Is(err, sensor.ErrDisconnected) {
				r.reportDisconnect(err)
				return
			}
			// Transient adapter error: log and keep polling.
			slog.Warn("recorder poll error", "stream", r.cfg.Name, "error", err)
			continue
		}
		if !ok {
			time.Sleep(r.cfg.IdleWait)
			continue
		}

		// Stamp at the moment of receipt; device time is never trusted.
		st := Stamped[T]{At: r.clock.Now(), Value: v}

		r.mu.Lock()
		r.ring.push(st)
		r.captured++
		r.lastSampleAt = st.At
		r.mu.Unlock()
	}
}

func (r *Recorder[T]) reportDisconnect(err error) {
	r.mu.Lock()
	r.disconnected = true
	r.mu.Unlock()

	slog.Error("recorder stream lost, buffered data preserved",
		"stream", r.cfg.Name,
		"error", err,
	)
	if r.cfg.OnDisconnect != nil {
		r.disconnectOnce.Do(func() { r.cfg.OnDisconnect(r.cfg.Name, err) })
	}
}

// RecordEvent appends a scheduler event to this recorder's log stream,
// interleaved by stamp with the samples for post-hoc alignment. Markers are
// recorded, not owned; the scheduler remains the owner of trial state.
func (r *Recorder[T]) RecordEvent(ev schedule.Event) {
	if r.log == nil {
		return
	}
	if err := r.log.LogEvent(ev); err != nil {
		slog.Warn("recorder event log write failed",
			"stream", r.cfg.Name,
			"trial", ev.TrialID,
			"error", err,
		)
	}
}

// StopCapture halts the loop, drains the ring to the sink, and returns what
// was flushed. No sample between the last successful Poll and the flush is
// lost. Idempotent: repeat calls return the first result.
func (r *Recorder[T]) StopCapture() (FlushResult, error) {
	r.mu.Lock()
	if r.stopped {
		res := r.result
		r.mu.Unlock()
		return res, nil
	}
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	samples := r.ring.drain()
	res := FlushResult{
		Written: len(samples),
		Dropped: r.ring.dropped,
	}
	if len(samples) > 0 {
		res.First = samples[0].At
		res.Last = samples[len(samples)-1].At
	}

	var flushErr error
	for _, s := range samples {
		if err := r.sink.WriteSample(s); err != nil {
			flushErr = fmt.Errorf("record: flush %s store: %w", r.cfg.Name, err)
			break
		}
	}

	r.stopped = true
	r.started = false
	r.result = res

	if res.Dropped > 0 {
		slog.Warn("recorder dropped samples during capture",
			"stream", r.cfg.Name,
			"dropped", res.Dropped,
		)
	}
	slog.Info("recorder stopped",
		"stream", r.cfg.Name,
		"written", res.Written,
		"dropped", res.Dropped,
		"span", res.Last-res.First,
	)
	return res, flushErr
}

// CloseAdapter tears the adapter down (stop before close). Idempotent via the
// adapter's own guarantees.
func (r *Recorder[T]) CloseAdapter() error {
	if err := r.src.Stop(); err != nil {
		return fmt.Errorf("record: stop %s adapter: %w", r.cfg.Name, err)
	}
	if err := r.src.Close(); err != nil {
		return fmt.Errorf("record: close %s adapter: %w", r.cfg.Name, err)
	}
	return nil
}

// Stats returns a snapshot of capture progress.
func (r *Recorder[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Captured:     r.captured,
		Dropped:      r.ring.dropped,
		Buffered:     r.ring.len(),
		Disconnected: r.disconnected,
		LastSampleAt: r.lastSampleAt,
	}
}
