package machine

import (
	"time"

	"github.com/fleetsignal/wsconn/internal/actions"
	"github.com/fleetsignal/wsconn/internal/guards"
	"github.com/fleetsignal/wsconn/internal/model"
	"github.com/fleetsignal/wsconn/internal/recovery"
)

// ActionFunc matches the signature shared by every function in package
// actions: a pure (context, event, now, config) -> (context, effects)
// transformer.
type ActionFunc func(model.Context, model.Event, time.Time, actions.Config) (model.Context, []model.Effect)

// transitionKey is (state, event kind), the domain of δ in spec.md §4.1.
type transitionKey struct {
	State model.State
	Kind  model.EventKind
}

// resolver computes a transition's destination and action list for
// edges whose outcome depends on event or context data rather than
// being statically known from (state, kind) alone: CONNECT (needs a
// URL validity guard) and CLOSE while connected (needs close-code
// classification); the no-op acknowledgements are static entries.
// ok=false means the guard failed and recovery should run instead.
type resolver func(c model.Context, ev model.Event, now time.Time, cfg actions.Config, lim guards.Limits) (next model.State, fns []ActionFunc, ok bool)

// transition is one entry of the transition table: either a static
// (next state, action list), or a resolver for data-dependent edges.
type transition struct {
	Next    model.State
	Actions []ActionFunc
	Resolve resolver
}

func static(next model.State, fns ...ActionFunc) transition {
	return transition{Next: next, Actions: fns}
}

func dynamic(r resolver) transition {
	return transition{Resolve: r}
}

// table is the transition table of spec.md §4.1's state chart. Keys not
// present here are undefined transitions (⊥) and fall to recovery.
var table = map[transitionKey]transition{
	// disconnected
	{model.Disconnected, model.EvConnect}: dynamic(connectResolver(model.Disconnected)),
	{model.Disconnected, model.EvTerminate}: static(model.Terminated, actions.ForceTerminate),
	{model.Disconnected, model.EvDisconnect}: static(model.Disconnected), // no-op ack

	// connecting
	{model.Connecting, model.EvOpen}: static(model.Connected,
		actions.ResetRetries, actions.LogConnection, actions.OpenRateWindow, actions.StartHeartbeat),
	{model.Connecting, model.EvError}: static(model.Reconnecting,
		actions.HandleError, actions.IncrementRetries, actions.ScheduleRetry),
	{model.Connecting, model.EvClose}: static(model.Disconnected,
		actions.LogConnection, actions.Cleanup),
	{model.Connecting, model.EvTerminate}: static(model.Terminated, actions.ForceTerminate),

	// connected
	{model.Connected, model.EvMessage}: static(model.Connected, actions.ProcessMessage),
	{model.Connected, model.EvSend}:    static(model.Connected, actions.EnqueueOrSend),
	{model.Connected, model.EvPing}:    static(model.Connected, actions.RecordPing, actions.SendPing),
	{model.Connected, model.EvPong}:    static(model.Connected, actions.RecordPong, actions.UpdateLatency),
	{model.Connected, model.EvError}: static(model.Reconnecting,
		actions.HandleError, actions.IncrementRetries, actions.ScheduleRetry, actions.CleanupSocket),
	{model.Connected, model.EvDisconnect}: static(model.Disconnecting,
		actions.InitDisconnect, actions.ArmDisconnectTimeout),
	{model.Connected, model.EvTerminate}: static(model.Terminated, actions.ForceTerminate),
	{model.Connected, model.EvClose}:     dynamic(closeWhileConnectedResolver),

	// reconnecting
	{model.Reconnecting, model.EvRetry}:      static(model.Connecting, actions.OpenSocket),
	{model.Reconnecting, model.EvMaxRetries}: static(model.Terminated, actions.ForceTerminate),
	{model.Reconnecting, model.EvTerminate}:  static(model.Terminated, actions.ForceTerminate),
	{model.Reconnecting, model.EvConnect}:    dynamic(connectResolver(model.Reconnecting)),
	{model.Reconnecting, model.EvDisconnect}: static(model.Reconnecting), // no-op ack
	// An ERROR while already reconnecting is recorded but must not reset
	// the in-flight backoff timer (spec.md §4.1 "tie-breaks").
	{model.Reconnecting, model.EvError}: static(model.Reconnecting, actions.HandleError),

	// disconnecting
	{model.Disconnecting, model.EvClose}: static(model.Disconnected,
		actions.CompleteDisconnect, actions.Cleanup),
	{model.Disconnecting, model.EvError}: static(model.Disconnected,
		actions.HandleError, actions.Cleanup),
	{model.Disconnecting, model.EvTerminate}: static(model.Terminated, actions.ForceTerminate),
	{model.Disconnecting, model.EvDisconnect}: static(model.Disconnecting), // no-op ack

	// terminated: every event is absorbed; handled directly by the
	// machine before the table is even consulted (see machine.go), so no
	// entries are needed here.
}

// connectResolver builds the resolver for a CONNECT edge out of from:
// guarded by guards.CanConnect, applying StoreURL on success.
func connectResolver(from model.State) resolver {
	return func(c model.Context, ev model.Event, now time.Time, cfg actions.Config, lim guards.Limits) (model.State, []ActionFunc, bool) {
		if !guards.CanConnect(from, ev.URL) {
			return 0, nil, false
		}
		return model.Connecting, []ActionFunc{actions.StoreURL, actions.LogConnection}, true
	}
}

// closeWhileConnectedResolver implements spec.md §4.9 + scenario 6: a
// CLOSE received while connected classifies the code and routes to
// reconnecting (if recoverable and budget remains) or straight to
// terminated (non-recoverable, or recoverable but exhausted).
func closeWhileConnectedResolver(c model.Context, ev model.Event, now time.Time, cfg actions.Config, lim guards.Limits) (model.State, []ActionFunc, bool) {
	canRetry := guards.CanRetry(c, lim)
	outcome := recovery.CloseOutcome(ev.Code, canRetry)
	switch outcome.NextState {
	case model.Terminated:
		return model.Terminated, []ActionFunc{actions.HandleError, terminateWithCause(outcome.Cause)}, true
	default:
		return model.Reconnecting, []ActionFunc{
			actions.HandleError, actions.IncrementRetries, actions.ScheduleRetry, actions.CleanupSocket,
		}, true
	}
}

// terminateWithCause wraps ForceTerminate so the resulting context
// carries the terminal cause computed by the resolver (close-code
// classification), rather than the generic cause ForceTerminate would
// infer from the event kind alone.
func terminateWithCause(cause *model.TerminalCause) ActionFunc {
	return func(c model.Context, ev model.Event, now time.Time, cfg actions.Config) (model.Context, []model.Effect) {
		c, effects := actions.ForceTerminate(c, ev, now, cfg)
		c.TerminalCause = cause
		return c, effects
	}
}
