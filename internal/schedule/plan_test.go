package schedule

import (
	"testing"
	"time"
)

func TestBuildPlanSequential(t *testing.T) {
	plan, err := BuildPlan([]string{"fist", "spread"}, 3, 2*time.Second, time.Second, false, 0)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	if got := len(plan.Trials); got != 6 {
		t.Fatalf("got %d trials, want 6", got)
	}
	want := []string{"fist", "fist", "fist", "spread", "spread", "spread"}
	for i, tr := range plan.Trials {
		if tr.Gesture != want[i] {
			t.Errorf("trial %d: gesture %q, want %q", i, tr.Gesture, want[i])
		}
		if tr.ID != i {
			t.Errorf("trial %d: id %d", i, tr.ID)
		}
		if want := time.Duration(i) * 3 * time.Second; tr.Offset != want {
			t.Errorf("trial %d: nominal offset %v, want %v", i, tr.Offset, want)
		}
	}
	if got := plan.Total(); got != 18*time.Second {
		t.Errorf("Total = %v, want 18s", got)
	}
}

func TestBuildPlanRandomized(t *testing.T) {
	gestures := []string{"fist", "spread", "pinch", "point"}
	const reps = 5

	plan, err := BuildPlan(gestures, reps, time.Second, time.Second, true, 7)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	if got := len(plan.Trials); got != len(gestures)*reps {
		t.Fatalf("got %d trials, want %d", got, len(gestures)*reps)
	}

	// Permutation property: every gesture exactly reps times.
	counts := make(map[string]int)
	for _, tr := range plan.Trials {
		counts[tr.Gesture]++
	}
	for _, g := range gestures {
		if counts[g] != reps {
			t.Errorf("gesture %q: %d repetitions, want %d", g, counts[g], reps)
		}
	}

	// Same seed reproduces the same order.
	again, err := BuildPlan(gestures, reps, time.Second, time.Second, true, 7)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	for i := range plan.Trials {
		if plan.Trials[i].Gesture != again.Trials[i].Gesture {
			t.Fatalf("seeded plans diverge at trial %d", i)
		}
	}
}

func TestBuildPlanValidation(t *testing.T) {
	tests := []struct {
		name     string
		gestures []string
		reps     int
		gd, rd   time.Duration
	}{
		{"no gestures", nil, 3, time.Second, time.Second},
		{"zero reps", []string{"fist"}, 0, time.Second, time.Second},
		{"zero gesture duration", []string{"fist"}, 3, 0, time.Second},
		{"zero rest duration", []string{"fist"}, 3, time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildPlan(tt.gestures, tt.reps, tt.gd, tt.rd, false, 0); err == nil {
				t.Error("BuildPlan accepted invalid input")
			}
		})
	}
}
