// Package supervisor owns the four timers of spec.md §4.5 (connect,
// disconnect, heartbeat, backoff) and turns their firing into synthetic
// events submitted back to the machine: RETRY/MAX_RETRIES from the
// backoff timer, ERROR from the connect-timeout and ping/pong liveness
// checks, TERMINATE from the disconnect timeout. It implements the
// timer half of machine.Executor; package transport implements the
// other half.
//
// Grounded on thatcooperguy-nvremote's
// host-agent/internal/heartbeat.go (runHeartbeatLoop's
// ticker+ctx.Done() select loop) generalized from a single fixed
// ticker to four independently arm/disarm-able timers, and coordinated
// with golang.org/x/sync/errgroup the way the pack's multi-goroutine
// supervisors bound shutdown instead of leaking per-timer goroutines.
package supervisor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetsignal/wsconn/internal/actions"
	"github.com/fleetsignal/wsconn/internal/clock"
	"github.com/fleetsignal/wsconn/internal/guards"
	"github.com/fleetsignal/wsconn/internal/machine"
	"github.com/fleetsignal/wsconn/internal/model"
)

// Supervisor arms and disarms the machine's timers and submits the
// events they produce. Safe for concurrent use.
type Supervisor struct {
	clk clock.Clock
	m   *machine.Machine
	cfg actions.Config
	lim guards.Limits

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	timers  map[model.TimerKind]clock.Timer
	epoch   map[model.TimerKind]uint64
	stopped bool
}

// New returns a running Supervisor. Call Stop to disarm every timer and
// bound the shutdown of its goroutines (spec.md §5 "TERMINATE ... drains
// the inbox to terminated absorbance within a bounded number of steps").
func New(clk clock.Clock, m *machine.Machine, cfg actions.Config, lim guards.Limits) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	s := &Supervisor{
		clk: clk, m: m, cfg: cfg, lim: lim,
		ctx: gctx, cancel: cancel, group: group,
		timers: make(map[model.TimerKind]clock.Timer),
		epoch:  make(map[model.TimerKind]uint64),
	}
	return s
}

// Stop disarms every timer and waits (bounded by the caller's own
// timeout, if any, via context) for in-flight timer goroutines to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = map[model.TimerKind]clock.Timer{}
	s.mu.Unlock()

	s.cancel()
	_ = s.group.Wait()
}

// ArmTimer implements machine.Executor. Re-arming a timer that is
// already armed replaces it, invalidating the previous one's pending
// fire via the epoch counter so a stale goroutine's wakeup is a no-op.
func (s *Supervisor) ArmTimer(kind model.TimerKind, d time.Duration, attempt int) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if old, ok := s.timers[kind]; ok {
		old.Stop()
	}
	s.epoch[kind]++
	myEpoch := s.epoch[kind]
	timer := s.clk.NewTimer(d)
	s.timers[kind] = timer
	s.mu.Unlock()

	s.group.Go(func() error {
		select {
		case <-timer.C():
			s.onFire(kind, attempt, myEpoch)
		case <-s.ctx.Done():
		}
		return nil
	})
}

// DisarmTimer implements machine.Executor: it stops the timer and bumps
// its epoch so any goroutine already past the select (rare race against
// Stop) still observes a mismatched epoch and does nothing.
func (s *Supervisor) DisarmTimer(kind model.TimerKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[kind]; ok {
		t.Stop()
		delete(s.timers, kind)
	}
	s.epoch[kind]++
}

func (s *Supervisor) onFire(kind model.TimerKind, attempt int, myEpoch uint64) {
	s.mu.Lock()
	current := s.epoch[kind]
	s.mu.Unlock()
	if current != myEpoch {
		return // superseded by a later Arm/DisarmTimer; ignore this fire.
	}

	now := s.clk.Now()
	switch kind {
	case model.TimerConnect:
		s.m.Submit(model.Error(now, "", "connect_timeout"))
	case model.TimerDisconnect:
		s.m.Submit(model.TerminateEvent(now, ""))
	case model.TimerHeartbeat:
		s.fireHeartbeat(now)
	case model.TimerBackoff:
		s.fireBackoff(now)
	}
}

// fireHeartbeat implements spec.md §4.8: on each MAX_PING_INTERVAL tick,
// first check whether the previous PING ever got a PONG within
// MAX_PONG_DELAY; if not, raise an ERROR instead of sending another
// PING (the resulting reconnecting transition disarms this timer via
// cleanupSocket). Otherwise send the next PING.
func (s *Supervisor) fireHeartbeat(now time.Time) {
	snap := s.m.Snapshot()
	if snap.State != model.Connected {
		return
	}
	if !snap.Timing.LastPingTime.IsZero() && snap.Timing.LastPongTime.Before(snap.Timing.LastPingTime) {
		if now.Sub(snap.Timing.LastPingTime) > s.cfg.MaxPongDelay {
			s.m.Submit(model.Error(now, "", "ping_timeout"))
			return
		}
	}
	s.m.Submit(model.Ping(now, ""))
}

// fireBackoff implements spec.md §4.5/§4.6: when the backoff delay
// elapses, submit RETRY if another attempt is within budget, else
// MAX_RETRIES.
func (s *Supervisor) fireBackoff(now time.Time) {
	snap := s.m.Snapshot()
	if guards.CanRetry(snap, s.lim) {
		s.m.Submit(model.Retry(now, "", snap.Metrics.ReconnectAttempts, 0))
		return
	}
	s.m.Submit(model.MaxRetries(now, ""))
}
