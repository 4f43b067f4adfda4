// Package machine is the state machine core of spec.md §4.1: event
// intake, transition dispatch, invariant enforcement, and atomic context
// updates. It consults the transition table of transitions.go, applies
// the pure functions of package actions, and falls back to package
// recovery for undefined transitions and guard failures.
//
// Grounded on 0a3aa7c4_giesekow-go-netdicom__statemachine.go.go's
// association state machine: a map-keyed transition table, struct
// actions applied in a single dispatch step, and a serialized
// (single-threaded) run loop. That example drives its own goroutine
// pulling off channels; here the machine instead exposes a synchronous,
// mutex-serialized Submit, the alternative spec.md §5 explicitly
// sanctions ("implementations that choose multi-threaded dispatch must
// introduce a single mutex around (state, context) and treat actions as
// its critical section") — callers (the supervisor's timer goroutines,
// the transport adapter's read pump, application code) all call Submit
// concurrently and observe a total order consistent with arrival.
package machine

import (
	"reflect"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetsignal/wsconn/internal/actions"
	"github.com/fleetsignal/wsconn/internal/clock"
	"github.com/fleetsignal/wsconn/internal/guards"
	"github.com/fleetsignal/wsconn/internal/model"
	"github.com/fleetsignal/wsconn/internal/recovery"
)

// Executor performs the side effects a step computes: transport
// operations, timer arm/disarm, and observer notification. The machine
// never imports the transport or supervisor packages directly — both
// implement Executor instead — so there is no import cycle between
// orchestration (supervisor/transport) and core (machine).
type Executor interface {
	OpenSocket(url string, protocols []string)
	CloseSocket(code int, reason string)
	SendFrame(id string, data []byte)
	ArmTimer(kind model.TimerKind, d time.Duration, attempt int)
	DisarmTimer(kind model.TimerKind)
	Notify(kind model.ObserverEventKind, detail string)
}

// StepOutcome is the public contract's return value on acceptance
// (spec.md §4.1 "submit(event) -> Result<StepOutcome, Rejected>").
type StepOutcome struct {
	PriorState    model.State
	NewState      model.State
	ActionsApplied []string
	EmittedEvents []model.Event
	Effects       []model.Effect
	Absorbed      bool // true if the machine was already terminated
}

// Machine owns context, queue, and rate window exclusively (spec.md §3
// "Ownership"); callers only ever reach them through Submit and
// Snapshot.
type Machine struct {
	mu  sync.Mutex
	ctx model.Context

	cfg actions.Config
	lim guards.Limits
	clk clock.Clock
	exec Executor

	maxQueueSize  int
	highWaterMark int32
	pendingSends  int32

	absorbedCount uint64
}

// New constructs a Machine in the initial disconnected state with an
// empty, maxQueueSize-bounded queue.
func New(cfg actions.Config, lim guards.Limits, clk clock.Clock, exec Executor, maxQueueSize int, highWaterMark int32) *Machine {
	return &Machine{
		ctx:           model.New(maxQueueSize),
		cfg:           cfg,
		lim:           lim,
		clk:           clk,
		exec:          exec,
		maxQueueSize:  maxQueueSize,
		highWaterMark: highWaterMark,
	}
}

// Snapshot returns a copy of the current context for observers
// (spec.md §5 "Observers receive immutable snapshots (copy-on-emit)").
// Queue is the one field in Context that is a mutable pointer rather
// than a plain value, so it is deep-copied here rather than handed out
// as-is: without that, a holder of a snapshot would share the exact
// queue instance Submit concurrently mutates, with nothing enforcing
// read-only use.
func (m *Machine) Snapshot() model.Context {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx.Queue != nil {
		ctx.Queue = ctx.Queue.Clone()
	}
	return ctx
}

// Submit processes ev against the current state, serialized against
// every other concurrent Submit call by m.mu (spec.md §4.1's algorithm).
func (m *Machine) Submit(ev model.Event) (StepOutcome, *model.Rejected) {
	if ev.Kind == model.EvError && ev.ErrDescription == "" {
		return StepOutcome{}, &model.Rejected{Kind: model.RejectMalformed, Reason: "ERROR event requires a non-empty description"}
	}
	if ev.Kind == model.EvConnect && ev.URL == "" {
		return StepOutcome{}, &model.Rejected{Kind: model.RejectMalformed, Reason: "CONNECT event requires a url"}
	}
	if ev.Kind == model.EvSend && !guards.ValidPayloadSize(ev.Size, m.lim) {
		return StepOutcome{}, &model.Rejected{Kind: model.RejectMalformed, Reason: "SEND payload exceeds max_bytes_per_message"}
	}

	if ev.Kind == model.EvSend {
		n := atomic.AddInt32(&m.pendingSends, 1)
		defer atomic.AddInt32(&m.pendingSends, -1)
		if m.highWaterMark > 0 && n > m.highWaterMark {
			return StepOutcome{}, &model.Rejected{Kind: model.RejectOverloaded, Reason: "inbox high-water mark exceeded"}
		}
	}

	m.mu.Lock()

	prior := m.ctx
	priorState := prior.State

	// Terminated is absorbing: every event is a silent no-op, countered
	// only by absorbedCount (spec.md §8 "terminal absorption").
	if priorState == model.Terminated {
		m.absorbedCount++
		m.mu.Unlock()
		return StepOutcome{PriorState: model.Terminated, NewState: model.Terminated, Absorbed: true}, nil
	}

	// CONNECT is rejected pre-dispatch outside {disconnected,
	// reconnecting}, not recovered as an ERROR (spec.md §4.1 tie-breaks).
	if ev.Kind == model.EvConnect && priorState != model.Disconnected && priorState != model.Reconnecting {
		m.mu.Unlock()
		return StepOutcome{}, &model.Rejected{Kind: model.RejectInvalidInState, Reason: "CONNECT is only valid from disconnected or reconnecting"}
	}

	now := m.clk.Now()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}

	t, defined := table[transitionKey{priorState, ev.Kind}]

	var (
		nextState model.State
		fns       []ActionFunc
		applied   []string
	)

	switch {
	case !defined:
		nextState = recovery.UndefinedTransition(priorState).NextState
		fns = []ActionFunc{recoverInPlace}
	case t.Resolve != nil:
		n, rf, ok := t.Resolve(prior, ev, now, m.cfg, m.lim)
		if !ok {
			nextState = recovery.UndefinedTransition(priorState).NextState
			fns = []ActionFunc{recoverInPlace}
		} else {
			nextState, fns = n, rf
		}
	default:
		nextState, fns = t.Next, t.Actions
	}

	c := prior
	var effects []model.Effect
	for _, fn := range fns {
		var stepEffects []model.Effect
		c, stepEffects = fn(c, ev, now, m.cfg)
		effects = append(effects, stepEffects...)
		applied = append(applied, actionName(fn))
	}
	c.State = nextState

	// A heartbeat-bearing step gives stabilization a natural tick to
	// complete on, without inventing a synthetic event for it (spec.md
	// §4.10 names no event for "stabilization complete").
	if c.State == model.Connected {
		var stabEffects []model.Effect
		c, stabEffects = actions.CheckStabilization(c, now, m.cfg)
		effects = append(effects, stabEffects...)
	}

	if err := checkInvariants(prior, c, m.lim, m.maxQueueSize); err != nil {
		c, _ = actions.ForceTerminate(c, ev, now, m.cfg)
		c.State = model.Terminated
		cause := model.TerminalInvariantViolation
		c.TerminalCause = &model.TerminalCause{Kind: cause}
		applied = append(applied, "forceTerminate(invariant_violation)")
	}

	m.ctx = c
	m.mu.Unlock()

	for _, eff := range effects {
		m.dispatch(eff)
	}

	return StepOutcome{
		PriorState:     priorState,
		NewState:       c.State,
		ActionsApplied: applied,
		Effects:        effects,
	}, nil
}

func (m *Machine) dispatch(eff model.Effect) {
	if m.exec == nil {
		return
	}
	switch eff.Kind {
	case model.EffectOpenSocket:
		m.exec.OpenSocket(eff.URL, eff.Protocols)
	case model.EffectCloseSocket:
		m.exec.CloseSocket(eff.Code, eff.Reason)
	case model.EffectSendFrame:
		m.exec.SendFrame(eff.SendID, eff.Data)
	case model.EffectArmTimer:
		m.exec.ArmTimer(eff.Timer, eff.Delay, eff.Attempt)
	case model.EffectDisarmTimer:
		m.exec.DisarmTimer(eff.Timer)
	case model.EffectNotify:
		m.exec.Notify(eff.Observer, eff.Detail)
	}
}

// recoverInPlace is the recovery action for an undefined transition or a
// failed guard: HandleError's error bookkeeping, with the socket handle
// and readyState kept, since the machine stays in its current state.
func recoverInPlace(c model.Context, ev model.Event, now time.Time, cfg actions.Config) (model.Context, []model.Effect) {
	handleID, readyState := c.Connection.HandleID, c.Connection.ReadyState
	c, effects := actions.HandleError(c, ev, now, cfg)
	c.Connection.HandleID, c.Connection.ReadyState = handleID, readyState
	return c, effects
}

// AbsorbedCount reports how many events have been silently absorbed
// since the machine reached Terminated.
func (m *Machine) AbsorbedCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.absorbedCount
}

// actionName resolves a function value's short name for StepOutcome's
// ActionsApplied observability trail.
func actionName(fn ActionFunc) string {
	full := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	if idx := strings.LastIndex(full, "."); idx >= 0 {
		return full[idx+1:]
	}
	return full
}
