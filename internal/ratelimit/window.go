// Package ratelimit implements the sliding/tumbling admission window
// described in spec.md §4.2: a single counted window per connection,
// admitting at most Limit messages per Duration.
//
// Adapted from gabrielmiguelok-golivekit's pkg/limits.SlidingWindow
// (per-key window over a timestamp slice) and
// thatcooperguy-nvremote's host-agent/internal/heartbeat.tokenBucket
// (refill-on-elapsed token accounting), narrowed to the single window
// spec.md defines and driven by an injected "now" rather than
// time.Now(), so the owning machine step stays a pure function of
// (state, event, context).
package ratelimit

import "time"

// Decision is the outcome of an admission attempt.
type Decision int

const (
	Admitted Decision = iota
	Rejected
)

// Window is the {start, duration, count, limit} record of spec.md §3.
// It is a plain value embedded in the machine's Context; Admit is the
// stateless operation over it.
type Window struct {
	Start    time.Time
	Duration time.Duration
	Count    int
	Limit    int
}

// NewWindow opens a fresh window at `now` with the given duration and
// limit. Called by the `openRateWindow` action on OPEN (spec.md §4.8).
func NewWindow(now time.Time, duration time.Duration, limit int) Window {
	return Window{Start: now, Duration: duration, Count: 0, Limit: limit}
}

// Admit applies spec.md §4.2's admission rule to w as observed at `now`,
// returning the decision and the Window reflecting that decision. w is
// never mutated in place; the caller (an action) installs the returned
// Window into the new Context.
//
//   - If now is still inside [w.Start, w.Start+w.Duration) and
//     w.Count < w.Limit: admit, Count += 1.
//   - If now is still inside the window but Count == Limit: reject,
//     window unchanged.
//   - If now has passed the window (now >= w.Start+w.Duration): open a
//     new window starting at now with Count = 1 and admit.
func Admit(w Window, now time.Time) (Window, Decision) {
	if now.Before(w.Start) {
		now = w.Start
	}
	expired := !now.Before(w.Start.Add(w.Duration))
	if expired {
		return Window{Start: now, Duration: w.Duration, Count: 1, Limit: w.Limit}, Admitted
	}
	if w.Count >= w.Limit {
		return w, Rejected
	}
	w.Count++
	return w, Admitted
}

// Remaining reports how many further admissions the current window
// allows, for observability snapshots.
func Remaining(w Window) int {
	if w.Limit <= w.Count {
		return 0
	}
	return w.Limit - w.Count
}
