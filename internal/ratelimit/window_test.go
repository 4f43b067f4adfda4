package ratelimit

import (
	"testing"
	"time"
)

func TestAdmit_BasicWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewWindow(start, time.Second, 3)

	var d Decision
	for i := 0; i < 3; i++ {
		w, d = Admit(w, start.Add(time.Duration(i)*100*time.Millisecond))
		if d != Admitted {
			t.Fatalf("admission %d: got %v, want Admitted", i, d)
		}
	}
	if w.Count != 3 {
		t.Fatalf("count = %d, want 3", w.Count)
	}

	w, d = Admit(w, start.Add(500*time.Millisecond))
	if d != Rejected {
		t.Fatalf("4th admission within window: got %v, want Rejected", d)
	}
	if w.Count != 3 {
		t.Fatalf("rejected admission must not change count, got %d", w.Count)
	}
}

func TestAdmit_WindowExpiryOpensNewWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewWindow(start, 1000*time.Millisecond, 3)

	w, _ = Admit(w, start)
	w, _ = Admit(w, start)
	w, _ = Admit(w, start)
	w, d := Admit(w, start.Add(500*time.Millisecond))
	if d != Rejected {
		t.Fatalf("expected reject before expiry, got %v", d)
	}

	w, d = Admit(w, start.Add(1001*time.Millisecond))
	if d != Admitted {
		t.Fatalf("expected admit after window expiry, got %v", d)
	}
	if w.Count != 1 {
		t.Fatalf("new window count = %d, want 1", w.Count)
	}
	if !w.Start.Equal(start.Add(1001 * time.Millisecond)) {
		t.Fatalf("new window did not start at admission time")
	}
}

func TestAdmit_NeverExceedsLimit(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewWindow(start, time.Second, 5)

	admitted := 0
	for i := 0; i < 50; i++ {
		var d Decision
		w, d = Admit(w, start.Add(time.Duration(i)*10*time.Millisecond))
		if d == Admitted {
			admitted++
		}
		if w.Count > w.Limit {
			t.Fatalf("count %d exceeded limit %d", w.Count, w.Limit)
		}
	}
	if admitted != 5 {
		t.Fatalf("admitted %d messages in one window, want 5", admitted)
	}
}

func TestRemaining(t *testing.T) {
	w := Window{Count: 2, Limit: 3}
	if got := Remaining(w); got != 1 {
		t.Errorf("Remaining = %d, want 1", got)
	}
	w.Count = 3
	if got := Remaining(w); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
}
