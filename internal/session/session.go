// Package session composes one Position recording: shared time base, sensor
// recorders, trial scheduler, stores, catalog, and optional telemetry.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/config"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/eventbus"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/record"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/schedule"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/store"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/telemetry"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/timebase"
)

// ErrAborted reports that the operator aborted the Position mid-run. The
// recorders still flushed everything captured up to the abort.
var ErrAborted = errors.New("session: aborted by operator")

// Result summarizes one finished (or aborted) Position.
type Result struct {
	Complete bool
	Trials   []schedule.Trial
	EMG      record.FlushResult
	Pose     record.FlushResult
	Paths    store.PositionPaths
}

// Session is the orchestrator for one subject sitting.
type Session struct {
	cfg     *config.Config
	id      string
	sitting int

	clock   *timebase.Authority
	bus     *eventbus.Bus[schedule.Event]
	catalog *store.Catalog
	emitter *telemetry.Emitter // nil when no broker configured

	emg    sensor.BiosignalSource
	motion sensor.MotionSource

	beginCh   chan struct{}
	beginOnce sync.Once
	aborted   atomic.Bool

	mu        sync.Mutex
	cancelRun context.CancelFunc
	sched     *schedule.Scheduler
	emgRec    *record.Recorder[sensor.EMGSample]
	poseRec   *record.Recorder[sensor.PoseFrame]
	events    chan schedule.Event

	wg sync.WaitGroup
}

// New creates a Session for the configured subject. The sensor adapters are
// injected so hardware-free runs can use mock sources.
func New(cfg *config.Config, emg sensor.BiosignalSource, motion sensor.MotionSource) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session: config is required")
	}
	if emg == nil || motion == nil {
		return nil, fmt.Errorf("session: both sensor adapters are required")
	}

	if err := os.MkdirAll(cfg.DatasetDir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create dataset dir: %w", err)
	}

	catalog, err := store.OpenCatalog(filepath.Join(cfg.DatasetDir, "catalog.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if err := catalog.EnsureSubject(store.CatalogSubject{
		ID:     cfg.Subject.ID,
		Age:    cfg.Subject.Age,
		Gender: cfg.Subject.Gender,
	}); err != nil {
		catalog.Close()
		return nil, fmt.Errorf("session: %w", err)
	}

	sitting := cfg.Sitting
	if sitting == 0 {
		sitting, err = catalog.NextSitting(cfg.Subject.ID)
		if err != nil {
			catalog.Close()
			return nil, fmt.Errorf("session: %w", err)
		}
	}

	s := &Session{
		cfg:     cfg,
		id:      uuid.NewString(),
		sitting: sitting,
		clock:   timebase.New(),
		bus:     eventbus.New[schedule.Event](),
		catalog: catalog,
		emg:     emg,
		motion:  motion,
		beginCh: make(chan struct{}),
	}

	if cfg.MQTT.Broker != "" {
		s.emitter = telemetry.NewEmitter(telemetry.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    "fpecap-" + s.id[:8],
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
	}

	slog.Info("session created",
		"session_id", s.id,
		"subject", cfg.Subject.ID,
		"sitting", sitting,
		"position", cfg.Position,
	)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Sitting returns the resolved sitting number.
func (s *Session) Sitting() int { return s.sitting }

// Begin releases the scheduler; called when the operator confirms the
// subject is ready. Safe to call more than once.
func (s *Session) Begin() {
	s.beginOnce.Do(func() { close(s.beginCh) })
}

// TogglePause requests a pause or resume at the next trial boundary and
// returns the new desired state for the prompt to display.
func (s *Session) TogglePause() bool {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	if sched == nil {
		return false
	}
	return sched.TogglePause()
}

// Abort cancels the run. The in-flight trial stays incomplete; everything
// captured so far is flushed on the way out.
func (s *Session) Abort() {
	s.aborted.Store(true)
	s.Begin() // unblock a run still waiting on the instructions screen
	s.mu.Lock()
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Events returns the prompt's event stream. It closes when the run ends.
func (s *Session) Events() <-chan schedule.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// Health reports per-stream capture statistics for display.
func (s *Session) Health() map[string]record.Stats {
	s.mu.Lock()
	emgRec, poseRec := s.emgRec, s.poseRec
	s.mu.Unlock()

	out := make(map[string]record.Stats, 2)
	if emgRec != nil {
		out["emg"] = emgRec.Stats()
	}
	if poseRec != nil {
		out["pose"] = poseRec.Stats()
	}
	return out
}

// RunPosition records one complete Position: open adapters, start capture,
// wait for Begin, drive the schedule, then flush and finalize in order. On
// abort everything captured is still flushed and the result reports
// Complete=false alongside ErrAborted.
func (s *Session) RunPosition(ctx context.Context) (*Result, error) {
	if s.aborted.Load() {
		return nil, ErrAborted
	}
	cfg := s.cfg

	seed := cfg.Schedule.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	plan, err := schedule.BuildPlan(cfg.Gestures, cfg.Schedule.NumRepetition,
		cfg.GestureDuration(), cfg.RestDuration(), cfg.Schedule.Randomize, seed)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	paths := store.Layout(cfg.DatasetDir, cfg.Subject.ID, s.sitting, cfg.Position)
	if err := paths.MkDirs(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	waveform, err := store.CreateWaveform(paths.Waveform)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	pose, err := store.CreatePose(paths.Pose)
	if err != nil {
		waveform.Close()
		return nil, fmt.Errorf("session: %w", err)
	}
	posLog, err := store.CreatePositionLog(paths.Log, store.LogHeader{
		SessionID:     s.id,
		Subject:       cfg.Subject.ID,
		Sitting:       s.sitting,
		Position:      cfg.Position,
		Origin:        s.clock.Origin(),
		Gestures:      cfg.Gestures,
		NumRepetition: cfg.Schedule.NumRepetition,
		GestureDur:    plan.GestureDuration,
		RestDur:       plan.RestDuration,
		Randomized:    cfg.Schedule.Randomize,
	})
	if err != nil {
		waveform.Close()
		pose.Close()
		return nil, fmt.Errorf("session: %w", err)
	}

	onDisconnect := func(name string, cause error) {
		_ = posLog.LogMarker(s.clock.Now(), fmt.Sprintf("%s stream disconnected: %v", name, cause))
	}

	emgRec, err := record.New(record.Config{Name: "emg", OnDisconnect: onDisconnect},
		s.emg, s.clock, waveform, posLog)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	poseRec, err := record.New[sensor.PoseFrame](record.Config{Name: "pose", OnDisconnect: onDisconnect},
		s.motion, s.clock, pose, nil)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	sched, err := schedule.New(plan, s.clock, s.bus)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan schedule.Event, 64)

	s.mu.Lock()
	s.cancelRun = cancel
	s.sched = sched
	s.emgRec = emgRec
	s.poseRec = poseRec
	s.events = events
	s.mu.Unlock()

	// An abort delivered before cancelRun was installed had no context to
	// cancel; honor it now so the run takes the flush-and-report path.
	if s.aborted.Load() {
		cancel()
	}

	// Adapter open failures are fatal to this Position attempt; nothing has
	// been scheduled yet, so tear down symmetrically and report.
	if err := emgRec.Open(runCtx); err != nil {
		s.discardStores(waveform, pose, posLog)
		return nil, fmt.Errorf("session: %w", err)
	}
	if err := poseRec.Open(runCtx); err != nil {
		_ = emgRec.CloseAdapter()
		s.discardStores(waveform, pose, posLog)
		return nil, fmt.Errorf("session: %w", err)
	}

	catalogID, err := s.catalog.BeginPosition(cfg.Subject.ID, s.sitting, cfg.Position, paths.Dir, time.Now())
	if err != nil {
		slog.Error("catalog begin failed, recording anyway", "error", err)
	}

	if s.emitter != nil {
		if err := s.emitter.Connect(runCtx); err != nil {
			slog.Warn("telemetry unavailable, continuing without it", "error", err)
			s.emitter = nil
		}
	}

	if err := emgRec.StartCapture(runCtx); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if err := poseRec.StartCapture(runCtx); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	markers := s.startForwarders(runCtx, events, emgRec, poseRec)

	// Capture runs while we wait; the pre-trial baseline is part of the
	// record and the schedule offsets mark where trials begin.
	select {
	case <-s.beginCh:
	case <-runCtx.Done():
	}

	var schedErr error
	if runCtx.Err() == nil {
		schedErr = sched.Run(runCtx)
	} else {
		schedErr = runCtx.Err()
	}

	// Teardown order: stop capture (flush to stores), finalize the log,
	// close writers, then the catalog, then adapters.
	emgFlush, emgErr := emgRec.StopCapture()
	poseFlush, poseErr := poseRec.StopCapture()
	if emgErr != nil {
		slog.Error("waveform flush failed", "error", emgErr)
	}
	if poseErr != nil {
		slog.Error("pose flush failed", "error", poseErr)
	}

	s.stopForwarders(events, markers)

	complete := schedErr == nil
	trials := sched.Trials()

	if !complete {
		_ = posLog.LogMarker(s.clock.Now(), "run aborted")
	}
	_ = posLog.LogTrials(trials)
	if err := posLog.Finalize(complete); err != nil {
		slog.Error("position log finalize failed", "error", err)
	}
	if err := waveform.Close(); err != nil {
		slog.Error("waveform close failed", "error", err)
	}
	if err := pose.Close(); err != nil {
		slog.Error("pose close failed", "error", err)
	}

	if catalogID != 0 {
		if err := s.catalog.InsertTrials(catalogID, trials); err != nil {
			slog.Error("catalog trials insert failed", "error", err)
		}
		if err := s.catalog.FinishPosition(catalogID, time.Now(), complete); err != nil {
			slog.Error("catalog finish failed", "error", err)
		}
	}

	if err := emgRec.CloseAdapter(); err != nil {
		slog.Warn("emg adapter close", "error", err)
	}
	if err := poseRec.CloseAdapter(); err != nil {
		slog.Warn("pose adapter close", "error", err)
	}

	res := &Result{
		Complete: complete,
		Trials:   trials,
		EMG:      emgFlush,
		Pose:     poseFlush,
		Paths:    paths,
	}

	slog.Info("position finished",
		"session_id", s.id,
		"complete", complete,
		"emg_written", emgFlush.Written,
		"pose_written", poseFlush.Written,
	)

	if schedErr != nil {
		if s.aborted.Load() || errors.Is(schedErr, context.Canceled) {
			return res, ErrAborted
		}
		return res, schedErr
	}
	return res, nil
}

// startForwarders fans scheduler events out to the recorders' marker logs,
// the prompt channel, and telemetry.
func (s *Session) startForwarders(ctx context.Context,
	events chan schedule.Event,
	emgRec *record.Recorder[sensor.EMGSample],
	poseRec *record.Recorder[sensor.PoseFrame],
) chan schedule.Event {
	markers := make(chan schedule.Event, 256)
	if err := s.bus.Subscribe("markers", markers); err != nil {
		slog.Error("marker subscription failed", "error", err)
	} else {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for ev := range markers {
				emgRec.RecordEvent(ev)
				poseRec.RecordEvent(ev)
				if s.emitter != nil {
					if err := s.emitter.PublishEvent(s.id, ev); err != nil {
						slog.Debug("telemetry event publish failed", "error", err)
					}
				}
			}
		}()
	}

	if err := s.bus.Subscribe("prompt", events); err != nil {
		slog.Error("prompt subscription failed", "error", err)
	}

	if s.emitter != nil {
		// The ticker runs at its own cadence, so a latest-only subscription
		// is enough to keep the retained state topic current.
		state, err := s.bus.SubscribeLatest("state")
		if err != nil {
			slog.Error("state subscription failed", "error", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if state != nil {
						if ev, ok := state.TryReceive(); ok {
							if err := s.emitter.PublishState(s.id, ev); err != nil {
								slog.Debug("telemetry state publish failed", "error", err)
							}
						}
					}
					for name, st := range s.Health() {
						if err := s.emitter.PublishStats(s.id, name, st); err != nil {
							slog.Debug("telemetry stats publish failed", "error", err)
						}
					}
				}
			}
		}()
	}
	return markers
}

// stopForwarders detaches the bus subscribers and waits the forwarders out.
// No publisher can be mid-send once Unsubscribe returns, so closing the
// channels afterwards is safe.
func (s *Session) stopForwarders(events, markers chan schedule.Event) {
	_ = s.bus.Unsubscribe("markers")
	_ = s.bus.Unsubscribe("prompt")
	_ = s.bus.Unsubscribe("state")

	close(markers)
	close(events)
	s.wg.Wait()
}

// discardStores closes store writers for a Position that never started.
func (s *Session) discardStores(waveform *store.WaveformWriter, pose *store.PoseWriter, posLog *store.PositionLog) {
	_ = waveform.Close()
	_ = pose.Close()
	_ = posLog.Finalize(false)
}

// Close releases session-wide resources.
func (s *Session) Close() error {
	s.bus.Close()
	if s.emitter != nil {
		_ = s.emitter.Disconnect()
	}
	if err := s.catalog.Close(); err != nil {
		return fmt.Errorf("session: close catalog: %w", err)
	}
	return nil
}
