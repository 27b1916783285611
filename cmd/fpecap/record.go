package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/config"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/prompt"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/schedule"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor/emgbridge"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor/leaptrack"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor/mock"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/session"
)

var mockSensors bool

type outcome struct {
	res *session.Result
	err error
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one Position: run the trial schedule and store both streams",
	RunE:  runRecord,
}

func init() {
	recordCmd.Flags().BoolVar(&mockSensors, "mock", false, "use synthetic sensors instead of hardware")
}

func buildSources(cfg *config.Config) (sensor.BiosignalSource, sensor.MotionSource, error) {
	if mockSensors {
		slog.Info("using mock sensors")
		return mock.EMG(time.Millisecond), mock.Motion(9 * time.Millisecond), nil
	}

	emg, err := emgbridge.New(emgbridge.Config{
		Addr:        cfg.EMG.Addr,
		DialTimeout: cfg.EMGDialTimeout(),
	})
	if err != nil {
		return nil, nil, err
	}
	motion, err := leaptrack.New(leaptrack.Config{URL: cfg.Tracker.URL})
	if err != nil {
		return nil, nil, err
	}
	return emg, motion, nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	emg, motion, err := buildSources(cfg)
	if err != nil {
		return err
	}

	s, err := session.New(cfg, emg, motion)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		slog.Info("received shutdown signal", "signal", sig)
		s.Abort()
	}()

	done := make(chan outcome, 1)
	go func() {
		res, err := s.RunPosition(ctx)
		done <- outcome{res, err}
	}()

	events, err := waitForEvents(s, done)
	if err != nil {
		return reportOutcome(nil, err)
	}

	hooks := prompt.Hooks{
		Begin: s.Begin,
		Pause: s.TogglePause,
		Abort: s.Abort,
	}

	switch cfg.Prompt.Mode {
	case "headless":
		if err := prompt.RunHeadless(ctx, events, hooks); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("headless prompt exited", "error", err)
		}
	default:
		m := prompt.New(prompt.Info{
			Subject:    cfg.Subject.ID,
			Sitting:    s.Sitting(),
			Position:   cfg.Position,
			TrialTotal: len(cfg.Gestures) * cfg.Schedule.NumRepetition,
			GestureDur: cfg.GestureDuration(),
			RestDur:    cfg.RestDuration(),
		}, events, s.Health, hooks)
		if err := prompt.Run(m); err != nil {
			slog.Warn("prompt exited", "error", err)
			s.Abort()
		}
	}

	out := <-done
	return reportOutcome(out.res, out.err)
}

// waitForEvents blocks until the run publishes its event stream, or fails
// before getting that far.
func waitForEvents(s *session.Session, done <-chan outcome) (<-chan schedule.Event, error) {
	deadline := time.After(30 * time.Second)
	for {
		if ev := s.Events(); ev != nil {
			return ev, nil
		}
		select {
		case out := <-done:
			if out.err != nil {
				return nil, out.err
			}
			return nil, fmt.Errorf("run ended before starting")
		case <-deadline:
			return nil, fmt.Errorf("timed out waiting for the run to start")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func reportOutcome(res *session.Result, err error) error {
	if err != nil && !errors.Is(err, session.ErrAborted) {
		return err
	}
	if res == nil {
		if errors.Is(err, session.ErrAborted) {
			fmt.Println("recording aborted before start")
			return nil
		}
		return err
	}

	status := "complete"
	if !res.Complete {
		status = "aborted"
	}
	fmt.Printf("recording %s\n", status)
	fmt.Printf("  dir:   %s\n", res.Paths.Dir)
	fmt.Printf("  emg:   %d samples (%d dropped)\n", res.EMG.Written, res.EMG.Dropped)
	fmt.Printf("  pose:  %d frames (%d dropped)\n", res.Pose.Written, res.Pose.Dropped)

	completed := 0
	for _, tr := range res.Trials {
		if tr.Completed {
			completed++
		}
	}
	fmt.Printf("  trials: %d/%d completed\n", completed, len(res.Trials))
	return nil
}
