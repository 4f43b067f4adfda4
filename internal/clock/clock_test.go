package clock

import (
	"testing"
	"time"
)

func TestBackoff_ExponentialCappedNoJitter(t *testing.T) {
	cfg := BackoffConfig{
		Initial: 1000 * time.Millisecond,
		Max:     60000 * time.Millisecond,
		Base:    2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{3, 8000 * time.Millisecond},
		{10, 60000 * time.Millisecond}, // capped
	}

	for _, tt := range tests {
		got := Backoff(tt.attempt, cfg)
		if got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	cfg := BackoffConfig{
		Initial: 1000 * time.Millisecond,
		Max:     60000 * time.Millisecond,
		Base:    2.0,
		Jitter:  0.1,
	}

	base := float64(2000 * time.Millisecond)
	for i := 0; i < 100; i++ {
		got := Backoff(1, cfg)
		lo := time.Duration(base * 0.9)
		hi := time.Duration(base * 1.1)
		if got < lo || got > hi {
			t.Fatalf("Backoff with jitter = %v, want within [%v,%v]", got, lo, hi)
		}
	}
}

func TestFakeClock_AdvanceFiresTimer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	timer := f.NewTimer(5 * time.Second)

	select {
	case <-timer.C():
		t.Fatal("timer fired before advance")
	default:
	}

	f.Advance(5 * time.Second)

	select {
	case got := <-timer.C():
		if !got.Equal(start.Add(5 * time.Second)) {
			t.Errorf("fired at %v, want %v", got, start.Add(5*time.Second))
		}
	default:
		t.Fatal("timer did not fire after advance")
	}
}

func TestFakeClock_StopPreventsRefire(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	timer := f.NewTimer(time.Second)
	if !timer.Stop() {
		t.Fatal("Stop() should report the timer was pending")
	}
	f.Advance(time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer should not fire")
	default:
	}
}
