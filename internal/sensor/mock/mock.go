// Package mock provides synthetic sensor adapters for hardware-free tests
// and dry runs.
package mock

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
)

// Source generates synthetic samples at a fixed rate.
//
// Failure injection: set FailAfter to make Poll return ErrDisconnected once
// that many samples have been produced, simulating mid-capture device loss.
type Source[T any] struct {
	rate      time.Duration
	generate  func(seq uint64) T
	failAfter uint64 // 0 = never fail

	mu       sync.Mutex
	opened   bool
	started  bool
	closed   bool
	seq      uint64
	nextDue  time.Time
	stops    int
	closes   int
	polled   uint64
	failFrom *time.Time
}

// New creates a mock source producing one sample per rate interval.
func New[T any](rate time.Duration, generate func(seq uint64) T) *Source[T] {
	return &Source[T]{rate: rate, generate: generate}
}

// SetFailAfter arms disconnect injection after n produced samples.
func (s *Source[T]) SetFailAfter(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
}

// Open marks the device claimed. Never fails.
func (s *Source[T]) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sensor.ErrClosed
	}
	s.opened = true
	return nil
}

// Start begins sample production. Idempotent.
func (s *Source[T]) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sensor.ErrClosed
	}
	if !s.started {
		s.started = true
		s.nextDue = time.Now()
	}
	return nil
}

// Poll produces the next sample when its interval has elapsed.
func (s *Source[T]) Poll() (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.started || s.closed {
		return zero, false, nil
	}
	if s.failAfter > 0 && s.seq >= s.failAfter {
		return zero, false, sensor.ErrDisconnected
	}
	if time.Now().Before(s.nextDue) {
		return zero, false, nil
	}

	v := s.generate(s.seq)
	s.seq++
	s.nextDue = s.nextDue.Add(s.rate)
	// After a stall, realign instead of bursting to catch up.
	if time.Until(s.nextDue) < -s.rate {
		s.nextDue = time.Now().Add(s.rate)
	}
	s.polled++
	return v, true, nil
}

// Stop halts production. Idempotent, safe before Start.
func (s *Source[T]) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.stops++
	return nil
}

// Close releases the device. Idempotent, safe before Open.
func (s *Source[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.started = false
	s.closes++
	return nil
}

// Produced returns how many samples the source has handed out.
func (s *Source[T]) Produced() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polled
}

// StopCalls and CloseCalls expose teardown counts for idempotence tests.
func (s *Source[T]) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *Source[T]) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// EMG returns a BiosignalSource emitting a distinct sine per channel.
func EMG(rate time.Duration) *Source[sensor.EMGSample] {
	return New(rate, func(seq uint64) sensor.EMGSample {
		var s sensor.EMGSample
		s.Seq = seq
		t := float64(seq) / 100.0
		for c := range s.Channels {
			s.Channels[c] = 100 * math.Sin(2*math.Pi*t*float64(c+1))
		}
		return s
	})
}

// Motion returns a MotionSource emitting a single right hand sweeping slowly
// across the tracking volume.
func Motion(rate time.Duration) *Source[sensor.PoseFrame] {
	return New(rate, func(seq uint64) sensor.PoseFrame {
		t := float64(seq) / 60.0
		h := sensor.Hand{
			Type:         "right",
			Confidence:   1.0,
			PalmPosition: sensor.Vec3{X: 50 * math.Sin(t), Y: 180, Z: 20 * math.Cos(t)},
			PalmNormal:   sensor.Vec3{Y: -1},
			Direction:    sensor.Vec3{Z: -1},
		}
		for i := range h.Fingers {
			h.Fingers[i] = sensor.Finger{
				Name:        sensor.FingerName(i),
				TipPosition: sensor.Vec3{X: h.PalmPosition.X + float64(i)*8, Y: 190, Z: -30},
				Direction:   sensor.Vec3{Z: -1},
				Extended:    true,
			}
		}
		return sensor.PoseFrame{FrameID: seq, Hands: []sensor.Hand{h}}
	})
}
