// Package actions implements the pure context transformers of spec.md
// §4.7. Every function here has the shape
//
//	func(model.Context, model.Event, time.Time, Config) (model.Context, []model.Effect)
//
// and never performs I/O, reads the wall clock, or consults randomness:
// `now` is threaded in by the caller (the machine step), exactly the
// discipline thatcooperguy-nvremote's host-agent/internal/heartbeat
// code does NOT follow (it calls time.Now() directly), which is why
// this package narrows that pattern down to an injected clock before
// copying its retry/backoff/rate-limit bookkeeping. The returned
// []model.Effect list is the action's only channel to the outside
// world; the machine's dispatch loop executes effects afterward.
package actions

import (
	"time"

	"github.com/fleetsignal/wsconn/internal/clock"
	"github.com/fleetsignal/wsconn/internal/model"
	"github.com/fleetsignal/wsconn/internal/queue"
	"github.com/fleetsignal/wsconn/internal/ratelimit"
	"github.com/fleetsignal/wsconn/internal/recovery"
)

// Config is the subset of spec.md §6 the action set consumes.
type Config struct {
	MaxRetries         int
	InitialRetryDelay  time.Duration
	MaxRetryDelay      time.Duration
	RetryBackoffBase   float64
	// Jitter is a fraction in [0,1]; 0 disables jitter (spec.md §9 open
	// question, resolved off by default in SPEC_FULL.md §11).
	Jitter             float64
	ConnectTimeout     time.Duration
	DisconnectTimeout  time.Duration
	StabilityTimeout   time.Duration
	MaxPingInterval    time.Duration
	MaxPongDelay       time.Duration
	RateLimitWindow    time.Duration
	MaxMessagesPerWindow int
	MaxBytesPerMessage int
	MaxQueueSize       int
}

func (cfg Config) backoffConfig() clock.BackoffConfig {
	return clock.BackoffConfig{
		Initial: cfg.InitialRetryDelay,
		Max:     cfg.MaxRetryDelay,
		Base:    cfg.RetryBackoffBase,
		Jitter:  cfg.Jitter,
	}
}

func notify(kind model.ObserverEventKind, detail string) model.Effect {
	return model.Effect{Kind: model.EffectNotify, Observer: kind, Detail: detail}
}

// StoreURL records the target url/protocols and arms the connect
// timeout (spec.md: disconnected --CONNECT--> connecting
// {storeUrl, logConnection, armConnectTimeout}).
func StoreURL(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Connection.URL = ev.URL
	c.Connection.Protocols = ev.Protocols
	c.Connection.ReadyState = model.ReadyConnecting
	c.Connection.HandleID = ev.CorrelationID
	effects := []model.Effect{
		{Kind: model.EffectOpenSocket, URL: ev.URL, Protocols: ev.Protocols},
		{Kind: model.EffectArmTimer, Timer: model.TimerConnect, Delay: cfg.ConnectTimeout},
		notify(model.ObsTransitioned, "connecting"),
	}
	return c, effects
}

// OpenSocket re-dials after a RETRY event while reconnecting (spec.md:
// reconnecting --RETRY--> connecting {openSocket}).
func OpenSocket(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Connection.ReadyState = model.ReadyConnecting
	c.Connection.HandleID = ev.CorrelationID
	effects := []model.Effect{
		{Kind: model.EffectOpenSocket, URL: c.Connection.URL, Protocols: c.Connection.Protocols},
		{Kind: model.EffectArmTimer, Timer: model.TimerConnect, Delay: cfg.ConnectTimeout},
		notify(model.ObsTransitioned, "connecting"),
	}
	return c, effects
}

// ResetRetries clears the backoff sequence on a successful OPEN, except
// when this OPEN follows a non-zero reconnect attempt: spec.md §4.10
// defers that reset until a full STABILITY_TIMEOUT of uninterrupted
// connected time has elapsed (see CheckStabilization). On the very
// first connect (reconnectAttempts already 0) this is a no-op.
func ResetRetries(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	if c.Metrics.ReconnectAttempts == 0 {
		c.Timing.StabilizingSince = time.Time{}
	}
	return c, nil
}

// OpenRateWindow opens a fresh rate window on entry to connected
// (spec.md connecting --OPEN--> connected {..., openRateWindow, ...}).
func OpenRateWindow(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	w := ratelimit.NewWindow(now, cfg.RateLimitWindow, cfg.MaxMessagesPerWindow)
	c.RateWindow = &w
	return c, nil
}

// StartHeartbeat arms the ping timer and records the entry into
// connected, tracking a stabilization sub-period if this OPEN follows a
// reconnect (spec.md §4.10). Entering connected is also the first
// rate-limit admission point available to a backlog built up while
// disconnected or reconnecting, so it drains whatever is ready
// (spec.md §4.3).
func StartHeartbeat(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Connection.Status = model.StatusConnected
	c.Connection.ReadyState = model.ReadyOpen
	c.Connection.LastDisconnectReason = ""
	c.Timing.ConnectTime = now
	if c.Metrics.ReconnectAttempts > 0 {
		c.Timing.StabilizingSince = now
	} else {
		c.Timing.LastStableConnection = now
	}
	effects := []model.Effect{
		{Kind: model.EffectDisarmTimer, Timer: model.TimerConnect},
		{Kind: model.EffectArmTimer, Timer: model.TimerHeartbeat, Delay: cfg.MaxPingInterval},
		notify(model.ObsTransitioned, "connected"),
	}
	c, drained := drainQueue(c, now, cfg)
	return c, append(effects, drained...)
}

// CheckStabilization implements spec.md §4.10's completion rule: once
// STABILITY_TIMEOUT has elapsed with StabilizingSince still set and the
// machine has stayed connected throughout, reset the retry counters and
// record lastStableConnection. Called by the machine on every step
// while connected (a heartbeat tick is a convenient, already-armed
// trigger) rather than as a transition action itself, since no event in
// the state chart carries "stabilization complete".
func CheckStabilization(c model.Context, now time.Time, cfg Config) (model.Context, []model.Effect) {
	if c.Timing.StabilizingSince.IsZero() {
		return c, nil
	}
	if now.Sub(c.Timing.StabilizingSince) < cfg.StabilityTimeout {
		return c, nil
	}
	c.Metrics.ReconnectAttempts = 0
	c.Timing.StabilizingSince = time.Time{}
	c.Timing.LastStableConnection = now
	return c, []model.Effect{notify(model.ObsStabilized, "")}
}

// IncrementRetries bumps reconnectAttempts and records the retry
// timestamp (spec.md §4.7 incrementRetries).
func IncrementRetries(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Metrics.ReconnectAttempts++
	if !c.Timing.StabilizingSince.IsZero() {
		// An ERROR during stabilization is a regression (spec.md §4.10):
		// stop treating the connection as stabilizing without resetting
		// the backoff sequence that incrementRetries just advanced.
		c.Timing.StabilizingSince = time.Time{}
	}
	return c, nil
}

// ScheduleRetry arms the backoff timer for the next RETRY using
// reconnectAttempts-1 as the 0-indexed backoff exponent: the first retry
// (attempts = 1) waits INITIAL_RETRY_DELAY, and after a stabilization
// regression (attempts 1 -> 2) the next backoff is computed from n = 1,
// not 0 (spec.md §4.5, §4.10).
func ScheduleRetry(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	delay := clock.Backoff(c.Metrics.ReconnectAttempts-1, cfg.backoffConfig())
	effects := []model.Effect{
		{Kind: model.EffectArmTimer, Timer: model.TimerBackoff, Delay: delay, Attempt: c.Metrics.ReconnectAttempts},
		notify(model.ObsTransitioned, "reconnecting"),
	}
	return c, effects
}

// HandleError records a connection-level error into the bounded history
// and marks the connection status as error (spec.md §4.7 handleError).
func HandleError(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Connection.Status = model.StatusError
	c.Connection.HandleID = ""
	c.Connection.ReadyState = model.ReadyClosed
	c.Timing.LastErrorTime = now
	c.Metrics.ErrorCount++
	kind := model.ErrConnectionFailed
	recoverable := true
	if ev.Kind == model.EvClose {
		class := recovery.Classify(ev.Code)
		kind, recoverable = class.Kind, class.Recoverable
	}
	c = c.WithErrorRecord(model.ErrorRecord{
		Time:            now.UnixNano(),
		Kind:            kind,
		Recoverable:     recoverable,
		StabilityImpact: !c.Timing.StabilizingSince.IsZero(),
	})
	return c, []model.Effect{notify(model.ObsErrorRecorded, string(kind))}
}

// CleanupSocket disarms timers and clears the socket handle when an
// ERROR forces a connected session back to reconnecting (spec.md
// connected --ERROR--> reconnecting {..., cleanupSocket}).
func CleanupSocket(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Connection.HandleID = ""
	c.RateWindow = nil
	return c, []model.Effect{
		{Kind: model.EffectDisarmTimer, Timer: model.TimerHeartbeat},
	}
}

// Cleanup disarms any timers owned by the exited state and clears the
// socket handle on a clean CLOSE (spec.md connecting --CLOSE-->
// disconnected {..., cleanup}).
func Cleanup(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Connection.HandleID = ""
	c.Connection.Status = model.StatusDisconnected
	c.Connection.ReadyState = model.ReadyClosed
	c.RateWindow = nil
	return c, []model.Effect{
		{Kind: model.EffectDisarmTimer, Timer: model.TimerConnect},
		{Kind: model.EffectDisarmTimer, Timer: model.TimerHeartbeat},
	}
}

// LogConnection is a no-op: it leaves context unchanged and returns no
// effects. The transition observer events on its edges come from the
// other actions there (StoreURL, StartHeartbeat).
func LogConnection(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	return c, nil
}

// ProcessMessage records an inbound MESSAGE (spec.md §4.7
// processMessage).
func ProcessMessage(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Metrics.MessagesReceived++
	c.Metrics.BytesReceived += uint64(ev.Size)
	return c, nil
}

// EnforceRateLimit advances the rate window for an outbound attempt
// (MESSAGE/SEND path) and reports whether it was admitted (spec.md
// §4.2, §4.7 enforceRateLimit). On reject it does not itself decide the
// message's fate; the caller (EnqueueOrSend) routes it per queue
// policy.
func EnforceRateLimit(c model.Context, now time.Time) (model.Context, ratelimit.Decision) {
	if c.RateWindow == nil {
		return c, ratelimit.Rejected
	}
	w, decision := ratelimit.Admit(*c.RateWindow, now)
	c.RateWindow = &w
	return c, decision
}

// EnqueueOrSend implements the connected --SEND--> connected
// {enforceRateLimit, enqueueOrSend} edge: rate-admitted sends go
// straight to the transport; rejected sends are queued (subject to
// canQueue) or surfaced as rate_limited if the queue has no room.
// Either way, since this step just touched the rate window, it is also
// a natural point to drain any backlog that is now admissible (spec.md
// §4.3 "dequeue only occurs in connected and only after rate-limit
// admission").
func EnqueueOrSend(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c, decision := EnforceRateLimit(c, now)
	if decision == ratelimit.Admitted {
		c.Metrics.MessagesSent++
		c.Metrics.BytesSent += uint64(ev.Size)
		effects := []model.Effect{
			{Kind: model.EffectSendFrame, Data: ev.Data, SendID: ev.SendID},
		}
		c, drained := drainQueue(c, now, cfg)
		return c, append(effects, drained...)
	}

	if c.Queue == nil {
		return c, []model.Effect{notify(model.ObsRateLimited, ev.SendID)}
	}
	msg := queue.NewMessage(ev.SendID, ev.Data, ev.SendPriority, now, nil)
	result := c.Queue.Push(msg)
	if !result.Accepted {
		return c, []model.Effect{notify(model.ObsRateLimited, ev.SendID)}
	}
	effects := []model.Effect{notify(model.ObsMessageEnqueued, msg.ID)}
	if result.Evicted != nil {
		effects = append(effects, notify(model.ObsMessageDropped, result.Evicted.Message.ID))
	}
	return c, effects
}

// drainQueue pops messages ready for delivery (skipping any whose
// timeout already passed) and sends each one admitted by the rate
// window, stopping at the first one the window rejects and requeuing
// it at the head with attempts incremented (spec.md §4.3 "messages
// failing delivery are re-enqueued at head with attempts += 1 up to
// MAX_RETRIES; beyond that they are dropped with exhausted"). Message
// delivery failure has no separate signal inside a pure action — the
// rate window is the only admission gate a step can observe — so
// failing to gain admission is the failure this re-enqueues against.
func drainQueue(c model.Context, now time.Time, cfg Config) (model.Context, []model.Effect) {
	if c.Queue == nil || c.RateWindow == nil {
		return c, nil
	}
	var effects []model.Effect
	for {
		msg, dropped, ok := c.Queue.Pop(now)
		for _, d := range dropped {
			effects = append(effects, notify(model.ObsMessageDropped, d.Message.ID))
		}
		if !ok {
			break
		}
		var decision ratelimit.Decision
		c, decision = EnforceRateLimit(c, now)
		if decision != ratelimit.Admitted {
			if ev := c.Queue.Requeue(msg, cfg.MaxRetries); ev != nil {
				effects = append(effects, notify(model.ObsMessageDropped, ev.Message.ID))
			}
			break
		}
		c.Metrics.MessagesSent++
		c.Metrics.BytesSent += uint64(len(msg.Payload))
		effects = append(effects, model.Effect{Kind: model.EffectSendFrame, Data: msg.Payload, SendID: msg.ID})
	}
	return c, effects
}

// RecordPing marks the outbound ping time (spec.md connected --PING-->
// connected {recordPing, sendPing}).
func RecordPing(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Timing.LastPingTime = now
	return c, nil
}

// SendPing schedules the actual ping frame and re-arms the heartbeat
// timer for the next interval.
func SendPing(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	return c, []model.Effect{
		{Kind: model.EffectSendFrame, SendID: "__ping__"},
		{Kind: model.EffectArmTimer, Timer: model.TimerHeartbeat, Delay: cfg.MaxPingInterval},
	}
}

// RecordPong marks the inbound pong time (spec.md connected --PONG-->
// connected {recordPong, updateLatency}).
func RecordPong(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Timing.LastPongTime = now
	return c, nil
}

// UpdateLatency appends the observed round-trip latency to the bounded
// sample ring.
func UpdateLatency(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c = c.WithLatencySample(ev.Latency)
	return c, nil
}

// InitDisconnect begins a graceful close (spec.md connected
// --DISCONNECT--> disconnecting {initDisconnect, armDisconnectTimeout}).
func InitDisconnect(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Connection.ReadyState = model.ReadyClosing
	c.Connection.LastDisconnectReason = ev.Reason
	code := ev.Code
	if code == 0 {
		code = 1000
	}
	return c, []model.Effect{
		{Kind: model.EffectCloseSocket, Code: code, Reason: ev.Reason},
	}
}

// ArmDisconnectTimeout arms the disconnect timer.
func ArmDisconnectTimeout(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	return c, []model.Effect{
		{Kind: model.EffectArmTimer, Timer: model.TimerDisconnect, Delay: cfg.DisconnectTimeout},
	}
}

// CompleteDisconnect finishes a graceful close, returning to
// disconnected (spec.md disconnecting --CLOSE--> disconnected
// {completeDisconnect, cleanup}).
func CompleteDisconnect(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	c.Timing.DisconnectTime = now
	return c, []model.Effect{
		{Kind: model.EffectDisarmTimer, Timer: model.TimerDisconnect},
		notify(model.ObsTransitioned, "disconnected"),
	}
}

// ForceTerminate implements spec.md §4.7 forceTerminate: closes the
// transport if any, drains the queue with reason terminated, and
// disarms every timer. Used on TERMINATE from any state and on
// MAX_RETRIES from reconnecting.
func ForceTerminate(c model.Context, ev model.Event, now time.Time, cfg Config) (model.Context, []model.Effect) {
	effects := []model.Effect{
		{Kind: model.EffectDisarmTimer, Timer: model.TimerConnect},
		{Kind: model.EffectDisarmTimer, Timer: model.TimerDisconnect},
		{Kind: model.EffectDisarmTimer, Timer: model.TimerHeartbeat},
		{Kind: model.EffectDisarmTimer, Timer: model.TimerBackoff},
	}
	if c.HasSocket() {
		effects = append([]model.Effect{{Kind: model.EffectCloseSocket, Code: 1000, Reason: "terminated"}}, effects...)
		c.Connection.HandleID = ""
	}
	if c.Queue != nil {
		dropped := c.Queue.Drain(queue.DropTerminated)
		for _, d := range dropped {
			effects = append(effects, notify(model.ObsMessageDropped, d.Message.ID))
		}
	}
	c.RateWindow = nil
	c.Connection.Status = model.StatusDisconnected
	c.Connection.ReadyState = model.ReadyClosed
	cause := model.TerminalByUser
	if ev.Kind == model.EvMaxRetries {
		cause = model.TerminalMaxRetries
	}
	c.TerminalCause = &model.TerminalCause{Kind: cause}
	effects = append(effects, notify(model.ObsTerminated, string(terminalKind(ev))))
	return c, effects
}

func terminalKind(ev model.Event) model.ErrorKind {
	if ev.Kind == model.EvMaxRetries {
		return model.ErrMaxRetries
	}
	return model.ErrInternal
}

