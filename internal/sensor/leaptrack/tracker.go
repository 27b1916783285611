// Package leaptrack implements sensor.MotionSource over the hand-tracking
// camera's vendor service.
//
// The tracking daemon owns the optical hardware and publishes pose frames as
// JSON over a local websocket endpoint (default ws://127.0.0.1:6437/v6.json).
// This adapter is the only place that protocol is spoken.
package leaptrack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
)

const (
	defaultDialTimeout = 10 * time.Second
	frameBuffer        = 16
)

// Config holds tracker connection settings.
type Config struct {
	// URL is the tracking service endpoint, e.g. "ws://127.0.0.1:6437/v6.json".
	URL string
	// DialTimeout bounds Open. Zero means 10s.
	DialTimeout time.Duration
}

// Tracker is the websocket adapter for the tracking camera.
//
// A background read loop drains the socket into a small buffered channel;
// Poll is a non-blocking receive from that channel. If the capture loop falls
// behind, the oldest buffered frames are dropped and counted.
type Tracker struct {
	cfg Config

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closed  bool
	wg      sync.WaitGroup

	frames  chan sensor.PoseFrame
	readErr atomic.Pointer[error] // set once by the read loop on stream loss

	framesRead    uint64 // atomic
	framesDropped uint64 // atomic
	skipped       uint64 // atomic, non-frame service messages
}

// New creates a Tracker with fail-fast validation.
func New(cfg Config) (*Tracker, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("leaptrack: service URL is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &Tracker{
		cfg:    cfg,
		frames: make(chan sensor.PoseFrame, frameBuffer),
	}, nil
}

// Open dials the tracking service. Fails with *sensor.ConnectionError when
// the daemon is not running or the camera is claimed elsewhere.
func (t *Tracker) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return sensor.ErrClosed
	}
	if t.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return &sensor.ConnectionError{Device: "tracker " + t.cfg.URL, Err: err}
	}
	t.conn = conn

	slog.Info("leaptrack: connected", "url", t.cfg.URL)
	return nil
}

// Start requests focus and spawns the read loop. Idempotent.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return sensor.ErrClosed
	}
	if t.conn == nil {
		return &sensor.ConnectionError{Device: "tracker " + t.cfg.URL, Err: errors.New("not open")}
	}
	if t.started {
		return nil
	}

	if err := t.conn.WriteJSON(map[string]any{"focused": true}); err != nil {
		return &sensor.ConnectionError{Device: "tracker " + t.cfg.URL, Err: err}
	}
	t.started = true

	t.wg.Add(1)
	go t.readLoop(t.conn)

	return nil
}

// readLoop drains the socket until the connection fails or is closed.
// Frames are handed over non-blocking; when the buffer is full the oldest
// frame is evicted so Poll always sees the freshest window.
func (t *Tracker) readLoop(conn *websocket.Conn) {
	defer t.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			stopped := !t.started || t.closed
			t.mu.Unlock()
			if !stopped {
				werr := fmt.Errorf("leaptrack: %w: %v", sensor.ErrDisconnected, err)
				t.readErr.CompareAndSwap(nil, &werr)
				slog.Warn("leaptrack: stream lost", "error", err)
			}
			return
		}

		pf, ok, err := parseFrame(data)
		if err != nil {
			slog.Warn("leaptrack: skipping malformed frame", "error", err)
			atomic.AddUint64(&t.skipped, 1)
			continue
		}
		if !ok {
			atomic.AddUint64(&t.skipped, 1)
			continue
		}

		for {
			select {
			case t.frames <- pf:
			default:
				// Buffer full: evict the oldest frame and retry.
				select {
				case <-t.frames:
					atomic.AddUint64(&t.framesDropped, 1)
				default:
				}
				continue
			}
			break
		}
		atomic.AddUint64(&t.framesRead, 1)
	}
}

// Poll returns the next buffered pose frame. ok=false when none is ready.
// After mid-stream loss, buffered frames are drained first, then the wrapped
// sensor.ErrDisconnected is reported.
func (t *Tracker) Poll() (sensor.PoseFrame, bool, error) {
	var zero sensor.PoseFrame

	t.mu.Lock()
	started := t.started && t.conn != nil
	t.mu.Unlock()
	if !started {
		return zero, false, nil
	}

	select {
	case pf := <-t.frames:
		return pf, true, nil
	default:
	}

	if perr := t.readErr.Load(); perr != nil {
		return zero, false, *perr
	}
	return zero, false, nil
}

// Stop releases focus and halts streaming. Idempotent, safe before Start.
// The read loop exits once the socket closes; Close takes care of that.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return nil
	}
	t.started = false

	if t.conn != nil {
		// Best effort; the service drops focus on disconnect anyway.
		_ = t.conn.WriteJSON(map[string]any{"focused": false})
	}

	slog.Info("leaptrack: stopped",
		"frames_read", atomic.LoadUint64(&t.framesRead),
		"frames_dropped", atomic.LoadUint64(&t.framesDropped),
		"service_messages_skipped", atomic.LoadUint64(&t.skipped),
	)
	return nil
}

// Close releases the websocket and waits for the read loop to exit.
// Idempotent, safe before Open.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.started = false
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	var closeErr error
	if conn != nil {
		closeErr = conn.Close()
	}
	t.wg.Wait()

	if closeErr != nil {
		return fmt.Errorf("leaptrack: close: %w", closeErr)
	}
	return nil
}

var _ sensor.MotionSource = (*Tracker)(nil)
