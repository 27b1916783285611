package timebase

import (
	"sync"
	"testing"
	"time"
)

// TestNowNonDecreasing verifies offsets never decrease in a single goroutine.
func TestNowNonDecreasing(t *testing.T) {
	a := New()

	prev := a.Now()
	for i := 0; i < 10000; i++ {
		cur := a.Now()
		if cur < prev {
			t.Fatalf("offset decreased: %v after %v", cur, prev)
		}
		prev = cur
	}
}

// TestNowConcurrent verifies offsets never decrease across goroutines.
func TestNowConcurrent(t *testing.T) {
	a := New()

	const goroutines = 8
	const calls = 5000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := a.Now()
			for i := 0; i < calls; i++ {
				cur := a.Now()
				if cur < prev {
					t.Errorf("offset decreased under concurrency: %v after %v", cur, prev)
					return
				}
				prev = cur
			}
		}()
	}
	wg.Wait()
}

// TestWallRoundTrip verifies offset-to-wall conversion uses the origin.
func TestWallRoundTrip(t *testing.T) {
	a := New()

	offset := 1500 * time.Millisecond
	wall := a.Wall(offset)

	if got := wall.Sub(a.Origin()); got != offset {
		t.Errorf("Wall(%v) - Origin() = %v, want %v", offset, got, offset)
	}
}
