package actions

import (
	"testing"
	"time"

	"github.com/fleetsignal/wsconn/internal/model"
	"github.com/fleetsignal/wsconn/internal/queue"
	"github.com/fleetsignal/wsconn/internal/ratelimit"
)

func testConfig() Config {
	return Config{
		MaxRetries:           5,
		InitialRetryDelay:    time.Second,
		MaxRetryDelay:        60 * time.Second,
		RetryBackoffBase:     2.0,
		ConnectTimeout:       30 * time.Second,
		DisconnectTimeout:    3 * time.Second,
		StabilityTimeout:     5 * time.Second,
		MaxPingInterval:      30 * time.Second,
		MaxPongDelay:         5 * time.Second,
		RateLimitWindow:      time.Second,
		MaxMessagesPerWindow: 3,
		MaxBytesPerMessage:   65536,
		MaxQueueSize:         10,
	}
}

func TestStoreURL_SetsConnectionAndArmsTimer(t *testing.T) {
	c := model.New(10)
	now := time.Now()
	ev := model.Connect(now, "", "wss://x/y", nil, nil)
	c, effects := StoreURL(c, ev, now, testConfig())
	if c.Connection.URL != "wss://x/y" {
		t.Fatalf("url = %q", c.Connection.URL)
	}
	foundOpen, foundTimer := false, false
	for _, e := range effects {
		if e.Kind == model.EffectOpenSocket {
			foundOpen = true
		}
		if e.Kind == model.EffectArmTimer && e.Timer == model.TimerConnect {
			foundTimer = true
		}
	}
	if !foundOpen || !foundTimer {
		t.Fatalf("effects = %+v, want open socket + arm connect timer", effects)
	}
}

func TestStartHeartbeat_TracksStabilizationAfterReconnect(t *testing.T) {
	c := model.New(10)
	c.Metrics.ReconnectAttempts = 1
	now := time.Now()
	c, _ = StartHeartbeat(c, model.Open(now, ""), now, testConfig())
	if c.Timing.StabilizingSince.IsZero() {
		t.Fatal("expected StabilizingSince set after reconnect success")
	}
}

func TestStartHeartbeat_NoStabilizationOnFirstConnect(t *testing.T) {
	c := model.New(10)
	now := time.Now()
	c, _ = StartHeartbeat(c, model.Open(now, ""), now, testConfig())
	if !c.Timing.StabilizingSince.IsZero() {
		t.Fatal("expected no stabilization tracking on first connect")
	}
	if c.Timing.LastStableConnection.IsZero() {
		t.Fatal("expected lastStableConnection set on first connect")
	}
}

// Scenario 4 from spec.md §8: a stabilization regression increments
// reconnectAttempts (it is not reset to 0) and clears the stabilization
// flag.
func TestIncrementRetries_RegressionDuringStabilizationClearsFlag(t *testing.T) {
	cfg := testConfig()
	c := model.New(10)
	now := time.Now()
	c.Metrics.ReconnectAttempts = 1
	c.Timing.StabilizingSince = now

	c, _ = IncrementRetries(c, model.Error(now, "", "boom"), now, cfg)
	if c.Metrics.ReconnectAttempts != 2 {
		t.Fatalf("reconnectAttempts = %d, want 2", c.Metrics.ReconnectAttempts)
	}
	if !c.Timing.StabilizingSince.IsZero() {
		t.Fatal("expected stabilization flag cleared on regression")
	}
}

func TestCheckStabilization_CompletesAfterTimeoutAndResets(t *testing.T) {
	cfg := testConfig()
	c := model.New(10)
	start := time.Now()
	c.Metrics.ReconnectAttempts = 2
	c.Timing.StabilizingSince = start

	c, effects := CheckStabilization(c, start.Add(cfg.StabilityTimeout-time.Millisecond), cfg)
	if c.Metrics.ReconnectAttempts != 2 {
		t.Fatal("should not reset before stability timeout elapses")
	}
	if len(effects) != 0 {
		t.Fatalf("expected no effects before stabilization completes, got %+v", effects)
	}

	c, effects = CheckStabilization(c, start.Add(cfg.StabilityTimeout+time.Millisecond), cfg)
	if c.Metrics.ReconnectAttempts != 0 {
		t.Fatalf("reconnectAttempts = %d, want reset to 0", c.Metrics.ReconnectAttempts)
	}
	if !c.Timing.StabilizingSince.IsZero() {
		t.Fatal("expected stabilization flag cleared")
	}
	if len(effects) != 1 || effects[0].Observer != model.ObsStabilized {
		t.Fatalf("expected a stabilized observer effect, got %+v", effects)
	}
}

func TestEnqueueOrSend_AdmitsWithinWindow(t *testing.T) {
	cfg := testConfig()
	c := model.New(10)
	now := time.Now()
	w := ratelimit.NewWindow(now, cfg.RateLimitWindow, cfg.MaxMessagesPerWindow)
	c.RateWindow = &w

	ev := model.Send(now, "", "m1", []byte("hi"), queue.Normal)
	ev.Size = 2
	c, effects := EnqueueOrSend(c, ev, now, cfg)
	if c.Metrics.MessagesSent != 1 || c.Metrics.BytesSent != 2 {
		t.Fatalf("metrics = %+v", c.Metrics)
	}
	if len(effects) != 1 || effects[0].Kind != model.EffectSendFrame {
		t.Fatalf("effects = %+v, want a single send frame", effects)
	}
}

// Scenario 3 from spec.md §8: with MAX_MESSAGES_PER_WINDOW=3, a 4th send
// within the window is rejected and (since nothing routes it to the
// queue here) reported rate_limited.
func TestEnqueueOrSend_RejectsBeyondWindowLimit(t *testing.T) {
	cfg := testConfig()
	c := model.New(10)
	now := time.Now()
	w := ratelimit.NewWindow(now, cfg.RateLimitWindow, cfg.MaxMessagesPerWindow)
	c.RateWindow = &w
	c.Queue = nil

	for i := 0; i < 3; i++ {
		ev := model.Send(now, "", "m", []byte("x"), queue.Normal)
		ev.Size = 1
		c, _ = EnqueueOrSend(c, ev, now, cfg)
	}
	ev := model.Send(now, "", "m4", []byte("x"), queue.Normal)
	ev.Size = 1
	c, effects := EnqueueOrSend(c, ev, now, cfg)
	if c.Metrics.MessagesSent != 3 {
		t.Fatalf("messagesSent = %d, want 3", c.Metrics.MessagesSent)
	}
	if len(effects) != 1 || effects[0].Observer != model.ObsRateLimited {
		t.Fatalf("effects = %+v, want rate_limited", effects)
	}
}

func TestForceTerminate_DrainsQueueAndClosesSocket(t *testing.T) {
	cfg := testConfig()
	c := model.New(10)
	c.Connection.HandleID = "h1"
	c.Queue.Push(queue.NewMessage("m1", nil, queue.Normal, time.Now(), nil))

	c, effects := ForceTerminate(c, model.TerminateEvent(time.Now(), ""), time.Now(), cfg)
	if c.HasSocket() {
		t.Fatal("expected socket cleared")
	}
	if c.Queue.Len() != 0 {
		t.Fatal("expected queue drained")
	}
	foundClose, foundTerminated := false, false
	for _, e := range effects {
		if e.Kind == model.EffectCloseSocket {
			foundClose = true
		}
		if e.Observer == model.ObsTerminated {
			foundTerminated = true
		}
	}
	if !foundClose || !foundTerminated {
		t.Fatalf("effects = %+v", effects)
	}
}
