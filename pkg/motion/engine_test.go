package motion

import (
	"sync"
	"testing"
	"time"

	"github.com/botronka/botronka/pkg/bus"
)

// fakeWheels records drive calls.
type fakeWheels struct {
	mu    sync.Mutex
	calls []string
}

func (w *fakeWheels) record(s string) error {
	w.mu.Lock()
	w.calls = append(w.calls, s)
	w.mu.Unlock()
	return nil
}

func (w *fakeWheels) Stop() error      { return w.record("stop") }
func (w *fakeWheels) Forward() error   { return w.record("forward") }
func (w *fakeWheels) Backward() error  { return w.record("backward") }
func (w *fakeWheels) SpinLeft() error  { return w.record("spin_left") }
func (w *fakeWheels) SpinRight() error { return w.record("spin_right") }
func (w *fakeWheels) Close() error     { return w.record("close") }

func (w *fakeWheels) seen() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.calls))
	copy(out, w.calls)
	return out
}

func (w *fakeWheels) last() string {
	calls := w.seen()
	if len(calls) == 0 {
		return ""
	}
	return calls[len(calls)-1]
}

// fakeStepper records signed step batches.
type fakeStepper struct {
	mu    sync.Mutex
	steps []int
}

func (s *fakeStepper) Step(n int, _ time.Duration) error {
	s.mu.Lock()
	s.steps = append(s.steps, n)
	s.mu.Unlock()
	return nil
}

func (s *fakeStepper) Release() error { return nil }
func (s *fakeStepper) Close() error   { return nil }

func (s *fakeStepper) seen() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.steps))
	copy(out, s.steps)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeWheels, *fakeStepper, *bus.Bus) {
	t.Helper()
	b := bus.New()
	wheels := &fakeWheels{}
	stepper := &fakeStepper{}
	en := NewEngine(b, DefaultConfig(), wheels, stepper)
	return en, wheels, stepper, b
}

func TestSteerQuantization(t *testing.T) {
	tests := []struct {
		name      string
		commands  []string
		wantSteps []int
		wantSide  int
	}{
		{"center to right", []string{"steer right"}, []int{50}, 1},
		{"center to left", []string{"steer left"}, []int{-50}, -1},
		{"left to right crosses both sides", []string{"steer left", "steer right"}, []int{-50, 100}, 1},
		{"same side is a no-op", []string{"steer right", "steer right"}, []int{50}, 1},
		{"recenter", []string{"steer right", "steer center"}, []int{50, -50}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			en, _, stepper, _ := newTestEngine(t)
			for _, cmd := range tt.commands {
				en.Execute(cmd)
			}
			got := stepper.seen()
			if len(got) != len(tt.wantSteps) {
				t.Fatalf("steps = %v, want %v", got, tt.wantSteps)
			}
			for i := range got {
				if got[i] != tt.wantSteps[i] {
					t.Fatalf("steps = %v, want %v", got, tt.wantSteps)
				}
			}
			if en.SteerSide() != tt.wantSide {
				t.Errorf("SteerSide() = %d, want %d", en.SteerSide(), tt.wantSide)
			}
		})
	}
}

func TestStraightDriveRecentersFirst(t *testing.T) {
	en, wheels, stepper, _ := newTestEngine(t)

	en.Execute("turn right")
	en.Execute("go straight now")

	// Right turn steers to the extreme, straight drive recenters.
	steps := stepper.seen()
	want := []int{50, -50}
	if len(steps) != 2 || steps[0] != want[0] || steps[1] != want[1] {
		t.Errorf("steps = %v, want %v", steps, want)
	}
	if en.SteerSide() != 0 {
		t.Errorf("SteerSide() = %d after straight drive, want 0", en.SteerSide())
	}
	if wheels.last() != "forward" {
		t.Errorf("last wheels call = %q, want forward", wheels.last())
	}
}

func TestTimedDriveExpires(t *testing.T) {
	en, wheels, _, b := newTestEngine(t)

	now := time.Now()
	en.Execute("move forward 1 second")
	if wheels.last() != "forward" {
		t.Fatalf("last wheels call = %q, want forward", wheels.last())
	}

	// Moving state published on the rising edge.
	e, ok := b.Next(time.Second)
	if !ok || e.Tag != bus.TagMotionState {
		t.Fatalf("expected motion_state event, got %v %v", e.Tag, ok)
	}
	if v, _ := e.Bool("moving"); !v {
		t.Error("motion_state moving = false on drive start")
	}

	en.tick(now.Add(500 * time.Millisecond))
	if wheels.last() == "stop" {
		t.Fatal("drive stopped before its duration elapsed")
	}

	en.tick(now.Add(1100 * time.Millisecond))
	if wheels.last() != "stop" {
		t.Errorf("last wheels call = %q after expiry, want stop", wheels.last())
	}

	e, ok = b.Next(time.Second)
	if !ok || e.Tag != bus.TagMotionState {
		t.Fatalf("expected falling motion_state event")
	}
	if v, _ := e.Bool("moving"); v {
		t.Error("motion_state moving = true on drive stop")
	}
}

func TestFollowController(t *testing.T) {
	tests := []struct {
		name      string
		distance  float64
		wantDrive string // "" for no pulse
	}{
		{"too far pulses forward", 120, "forward"},
		{"inside dead band stays put", 101, ""},
		{"too close pulses backward", 80, "backward"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			en, wheels, _, _ := newTestEngine(t)

			en.Execute("follow at 100cm")
			if !en.followEnabled || !en.hasTarget || en.followTarget != 100 {
				t.Fatalf("follow not armed: enabled=%v target=%v has=%v",
					en.followEnabled, en.followTarget, en.hasTarget)
			}

			en.latestDistanceCM = tt.distance
			en.hasDistance = true
			before := len(wheels.seen())

			en.tick(time.Now())

			if tt.wantDrive == "" {
				if len(wheels.seen()) != before {
					t.Errorf("unexpected drive call %q inside dead band", wheels.last())
				}
				return
			}
			if wheels.last() != tt.wantDrive {
				t.Errorf("last wheels call = %q, want %q", wheels.last(), tt.wantDrive)
			}
		})
	}
}

func TestFollowAdoptsCurrentDistance(t *testing.T) {
	en, _, _, _ := newTestEngine(t)

	en.latestDistanceCM = 73
	en.hasDistance = true
	en.Execute("follow me")

	if !en.hasTarget || en.followTarget != 73 {
		t.Errorf("follow target = %v (has=%v), want current distance 73", en.followTarget, en.hasTarget)
	}
}

func TestFollowReplanInterval(t *testing.T) {
	en, wheels, _, _ := newTestEngine(t)
	en.Execute("follow at 100cm")
	en.latestDistanceCM = 200
	en.hasDistance = true

	now := time.Now()
	en.tickFollow(now)
	first := len(wheels.seen())
	if first == 0 {
		t.Fatal("no pulse on first follow tick")
	}

	// The drive is still active; clear it to isolate the replan gate.
	en.driveDirection = ""
	en.tickFollow(now.Add(100 * time.Millisecond))
	if len(wheels.seen()) != first {
		t.Error("second pulse fired inside the replan interval")
	}

	en.tickFollow(now.Add(400 * time.Millisecond))
	if len(wheels.seen()) == first {
		t.Error("no pulse after the replan interval elapsed")
	}
}

func TestManualCommandExitsFollow(t *testing.T) {
	en, _, _, _ := newTestEngine(t)
	en.Execute("follow at 50cm")
	en.Execute("turn left")

	if en.followEnabled {
		t.Error("follow still enabled after a manual turn")
	}
}

func TestStopCancelsEverything(t *testing.T) {
	en, wheels, _, _ := newTestEngine(t)
	en.Execute("follow at 50cm")
	en.Execute("stop")

	if en.followEnabled || en.hasTarget {
		t.Error("follow survived stop")
	}
	if wheels.last() != "stop" {
		t.Errorf("last wheels call = %q, want stop", wheels.last())
	}
}
