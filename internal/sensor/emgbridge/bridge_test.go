package emgbridge

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/sensor"
)

// fakeBridge serves n synthetic frames to the first client, then keeps the
// connection open (or closes it when closeAfter is set).
func fakeBridge(t *testing.T, n int, closeAfter bool) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		var buf []byte
		for i := 0; i < n; i++ {
			var s sensor.EMGSample
			s.Seq = uint64(i)
			for c := range s.Channels {
				s.Channels[c] = float64(i*100 + c)
			}
			buf = EncodeFrame(buf[:0], s)
			if _, err := conn.Write(buf); err != nil {
				return
			}
		}
		if closeAfter {
			conn.Close()
		} else {
			// Hold the connection open so Poll sees Empty, not EOF.
			time.Sleep(10 * time.Second)
			conn.Close()
		}
	}()

	return ln.Addr().String()
}

func TestPollReadsFrames(t *testing.T) {
	addr := fakeBridge(t, 5, false)

	b, err := New(Config{Addr: addr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if err := b.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var got []sensor.EMGSample
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 5 && time.Now().Before(deadline) {
		s, ok, err := b.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if ok {
			got = append(got, s)
		}
	}

	if len(got) != 5 {
		t.Fatalf("got %d samples, want 5", len(got))
	}
	for i, s := range got {
		if s.Seq != uint64(i) {
			t.Errorf("sample %d: seq = %d, want %d", i, s.Seq, i)
		}
		if s.Channels[3] != float64(i*100+3) {
			t.Errorf("sample %d: channel 3 = %v, want %v", i, s.Channels[3], float64(i*100+3))
		}
	}

	// Stream exhausted but connection alive: Poll reports Empty, not error.
	s, ok, err := b.Poll()
	if err != nil {
		t.Fatalf("Poll after drain: %v", err)
	}
	if ok {
		t.Errorf("Poll after drain returned sample %+v, want Empty", s)
	}
}

func TestPollDetectsDisconnect(t *testing.T) {
	addr := fakeBridge(t, 1, true)

	b, err := New(Config{Addr: addr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if err := b.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, _, err := b.Poll()
		if err != nil {
			if !errors.Is(err, sensor.ErrDisconnected) {
				t.Fatalf("Poll error = %v, want ErrDisconnected", err)
			}
			return
		}
	}
	t.Fatal("Poll never reported disconnect")
}

func TestOpenUnreachable(t *testing.T) {
	b, err := New(Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = b.Open(context.Background())
	if err == nil {
		t.Fatal("Open succeeded against closed port")
	}
	var cerr *sensor.ConnectionError
	if !errors.As(err, &cerr) {
		t.Errorf("Open error = %T, want *sensor.ConnectionError", err)
	}
}

func TestStopCloseIdempotent(t *testing.T) {
	addr := fakeBridge(t, 0, false)

	b, err := New(Config{Addr: addr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Teardown before Open/Start must be a no-op.
	if err := b.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}

	if err := b.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := b.Stop(); err != nil {
			t.Errorf("Stop #%d: %v", i+1, err)
		}
		if err := b.Close(); err != nil {
			t.Errorf("Close #%d: %v", i+1, err)
		}
	}

	// After Close, lifecycle calls report ErrClosed, Poll stays silent.
	if err := b.Start(); !errors.Is(err, sensor.ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
	if _, ok, err := b.Poll(); ok || err != nil {
		t.Errorf("Poll after Close = (%v, %v), want Empty", ok, err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New accepted empty address")
	}
}
