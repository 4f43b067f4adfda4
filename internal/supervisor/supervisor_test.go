package supervisor

import (
	"testing"
	"time"

	"github.com/fleetsignal/wsconn/internal/actions"
	"github.com/fleetsignal/wsconn/internal/clock"
	"github.com/fleetsignal/wsconn/internal/guards"
	"github.com/fleetsignal/wsconn/internal/machine"
	"github.com/fleetsignal/wsconn/internal/model"
)

type recordingExecutor struct {
	sup *Supervisor
}

func (r *recordingExecutor) OpenSocket(url string, protocols []string) {}
func (r *recordingExecutor) CloseSocket(code int, reason string)       {}
func (r *recordingExecutor) SendFrame(id string, data []byte)          {}
func (r *recordingExecutor) ArmTimer(kind model.TimerKind, d time.Duration, attempt int) {
	r.sup.ArmTimer(kind, d, attempt)
}
func (r *recordingExecutor) DisarmTimer(kind model.TimerKind) { r.sup.DisarmTimer(kind) }
func (r *recordingExecutor) Notify(model.ObserverEventKind, string) {}

func testConfig() actions.Config {
	return actions.Config{
		MaxRetries: 5, InitialRetryDelay: time.Second, MaxRetryDelay: 60 * time.Second,
		RetryBackoffBase: 2.0, ConnectTimeout: 30 * time.Second, DisconnectTimeout: 3 * time.Second,
		StabilityTimeout: 5 * time.Second, MaxPingInterval: 30 * time.Second, MaxPongDelay: 5 * time.Second,
		RateLimitWindow: time.Second, MaxMessagesPerWindow: 3, MaxBytesPerMessage: 65536, MaxQueueSize: 10,
	}
}

func testLimits() guards.Limits { return guards.Limits{MaxRetries: 5, MaxBytesPerMessage: 65536} }

func settle() { time.Sleep(20 * time.Millisecond) }

func TestSupervisor_ConnectTimeoutRaisesError(t *testing.T) {
	clk := clock.NewFake(time.Now())
	var exec *recordingExecutor
	m := machine.New(testConfig(), testLimits(), clk, execRef(&exec), 10, 100)
	sup := New(clk, m, testConfig(), testLimits())
	defer sup.Stop()
	exec = &recordingExecutor{sup: sup}

	m.Submit(model.Connect(clk.Now(), "", "wss://x/y", nil, nil))
	clk.Advance(testConfig().ConnectTimeout + time.Millisecond)
	settle()

	if got := m.Snapshot().State; got != model.Reconnecting {
		t.Fatalf("state = %v, want reconnecting after connect timeout", got)
	}
}

func TestSupervisor_BackoffFiresRetry(t *testing.T) {
	clk := clock.NewFake(time.Now())
	var exec *recordingExecutor
	m := machine.New(testConfig(), testLimits(), clk, execRef(&exec), 10, 100)
	sup := New(clk, m, testConfig(), testLimits())
	defer sup.Stop()
	exec = &recordingExecutor{sup: sup}

	m.Submit(model.Connect(clk.Now(), "", "wss://x/y", nil, nil))
	m.Submit(model.Error(clk.Now(), "", "boom"))
	if got := m.Snapshot().State; got != model.Reconnecting {
		t.Fatalf("state = %v, want reconnecting", got)
	}

	clk.Advance(2 * time.Second) // > initial backoff of 1s
	settle()
	if got := m.Snapshot().State; got != model.Connecting {
		t.Fatalf("state = %v, want connecting after RETRY", got)
	}
}

func execRef(ref **recordingExecutor) machine.Executor { return &lazyExec{ref: ref} }

type lazyExec struct{ ref **recordingExecutor }

func (l *lazyExec) OpenSocket(url string, protocols []string) { (*l.ref).OpenSocket(url, protocols) }
func (l *lazyExec) CloseSocket(code int, reason string)       { (*l.ref).CloseSocket(code, reason) }
func (l *lazyExec) SendFrame(id string, data []byte)          { (*l.ref).SendFrame(id, data) }
func (l *lazyExec) ArmTimer(k model.TimerKind, d time.Duration, a int) { (*l.ref).ArmTimer(k, d, a) }
func (l *lazyExec) DisarmTimer(k model.TimerKind)                      { (*l.ref).DisarmTimer(k) }
func (l *lazyExec) Notify(k model.ObserverEventKind, detail string)    { (*l.ref).Notify(k, detail) }
