// Package timebase provides the shared monotonic time base for a recording
// session.
//
// Both sensor streams are stamped with offsets from a single Authority at the
// moment a sample is pulled from its adapter. Device-side timestamps are never
// used, so the two independently clocked streams become comparable by offset
// alone.
package timebase

import (
	"sync/atomic"
	"time"
)

// Authority is the process-wide monotonic clock for one session.
//
// Guarantees:
//   - Now() is safe for concurrent use from any goroutine
//   - Offsets returned by Now() never decrease, even across goroutines
//   - The lifecycle spans one session; create a fresh Authority per session
type Authority struct {
	origin time.Time
	last   atomic.Int64 // last offset handed out, nanoseconds
}

// New creates an Authority with its origin set to the current instant.
func New() *Authority {
	return &Authority{origin: time.Now()}
}

// Now returns the elapsed offset since the session origin.
//
// The returned offset is strictly non-decreasing across concurrent calls: if
// the underlying clock reads lower than an offset already handed out (which
// can happen when two goroutines race), the higher previously returned value
// is reused.
func (a *Authority) Now() time.Duration {
	// time.Since uses the runtime monotonic clock, immune to wall adjustments.
	now := int64(time.Since(a.origin))
	for {
		last := a.last.Load()
		if now <= last {
			return time.Duration(last)
		}
		if a.last.CompareAndSwap(last, now) {
			return time.Duration(now)
		}
	}
}

// Origin returns the wall-clock instant corresponding to offset zero.
// Stored once in each Position log so offsets can be mapped back to wall time.
func (a *Authority) Origin() time.Time {
	return a.origin
}

// Wall converts a session offset to wall-clock time. Informational only;
// alignment between streams is always done on offsets.
func (a *Authority) Wall(offset time.Duration) time.Time {
	return a.origin.Add(offset)
}
