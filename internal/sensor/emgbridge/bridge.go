// Package emgbridge implements sensor.BiosignalSource over the vendor's
// TCP bridge.
//
// The BLE transceiver pairs with the sEMG unit and re-exposes the channel
// stream on a local TCP port (default 127.0.0.1:20001). The bridge owns the
// BLE link; this adapter only speaks the bridge's framed byte stream, so the
// vendor SDK never leaks past this package.
package emgbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultPollWait    = 2 * time.Millisecond
	readChunk          = 4096
)

// Config holds bridge connection settings.
type Config struct {
	// Addr is the bridge's TCP address, e.g. "127.0.0.1:20001".
	Addr string
	// DialTimeout bounds Open. Zero means 10s.
	DialTimeout time.Duration
	// PollWait bounds a single Poll's wait for bytes. Zero means 2ms.
	PollWait time.Duration
}

// Bridge is the TCP adapter for the sEMG unit.
//
// Not safe for concurrent Poll from multiple goroutines; the recorder's
// capture loop is the sole reader. Open/Start/Stop/Close are safe to call
// from the orchestrator goroutine at any time.
type Bridge struct {
	cfg Config

	mu      sync.Mutex
	conn    net.Conn
	started bool
	closed  bool

	pending []byte // unconsumed bytes from the stream
	scratch []byte

	samplesRead uint64
	bytesRead   uint64
}

// New creates a Bridge with fail-fast validation.
func New(cfg Config) (*Bridge, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("emgbridge: bridge address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.PollWait == 0 {
		cfg.PollWait = defaultPollWait
	}
	return &Bridge{
		cfg:     cfg,
		scratch: make([]byte, readChunk),
	}, nil
}

// Open dials the bridge. Fails with *sensor.ConnectionError if the bridge is
// unreachable (not running, or the device is claimed by another client).
func (b *Bridge) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return sensor.ErrClosed
	}
	if b.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: b.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", b.cfg.Addr)
	if err != nil {
		return &sensor.ConnectionError{Device: "emg-bridge " + b.cfg.Addr, Err: err}
	}
	b.conn = conn

	slog.Info("emgbridge: connected",
		"addr", b.cfg.Addr,
		"channels", sensor.NumEMGChannels,
	)
	return nil
}

// Start begins consuming the stream. Idempotent.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return sensor.ErrClosed
	}
	if b.conn == nil {
		return &sensor.ConnectionError{Device: "emg-bridge " + b.cfg.Addr, Err: errors.New("not open")}
	}
	b.started = true
	return nil
}

// Poll reads the next sample. ok=false when no complete frame arrived within
// PollWait. Returns sensor.ErrDisconnected (wrapped) on stream loss.
func (b *Bridge) Poll() (sensor.EMGSample, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero sensor.EMGSample
	if !b.started || b.conn == nil {
		return zero, false, nil
	}

	// A frame may already be buffered from a previous read.
	if s, n, err := decodeFrame(b.pending); err != nil {
		return zero, false, fmt.Errorf("emgbridge: %w: %v", sensor.ErrDisconnected, err)
	} else if n > 0 {
		b.pending = b.pending[n:]
		b.samplesRead++
		return s, true, nil
	}

	if err := b.conn.SetReadDeadline(time.Now().Add(b.cfg.PollWait)); err != nil {
		return zero, false, fmt.Errorf("emgbridge: %w: %v", sensor.ErrDisconnected, err)
	}
	n, err := b.conn.Read(b.scratch)
	if n > 0 {
		b.pending = append(b.pending, b.scratch[:n]...)
		b.bytesRead += uint64(n)
	}
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			// No data ready yet; fall through to frame parse with what we have.
		} else {
			return zero, false, fmt.Errorf("emgbridge: %w: %v", sensor.ErrDisconnected, err)
		}
	}

	s, consumed, err := decodeFrame(b.pending)
	if err != nil {
		return zero, false, fmt.Errorf("emgbridge: %w: %v", sensor.ErrDisconnected, err)
	}
	if consumed == 0 {
		return zero, false, nil
	}
	b.pending = b.pending[consumed:]
	b.samplesRead++
	return s, true, nil
}

// Stop halts streaming. Idempotent, safe before Start.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}
	b.started = false

	slog.Info("emgbridge: stopped",
		"samples_read", b.samplesRead,
		"bytes_read", b.bytesRead,
	)
	return nil
}

// Close releases the TCP connection. Idempotent, safe before Open.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.started = false

	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		if err != nil {
			return fmt.Errorf("emgbridge: close: %w", err)
		}
	}
	return nil
}

var _ sensor.BiosignalSource = (*Bridge)(nil)
