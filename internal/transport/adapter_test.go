package transport_test

import (
	"testing"
	"time"

	"github.com/fleetsignal/wsconn/internal/actions"
	"github.com/fleetsignal/wsconn/internal/clock"
	"github.com/fleetsignal/wsconn/internal/guards"
	"github.com/fleetsignal/wsconn/internal/machine"
	"github.com/fleetsignal/wsconn/internal/model"
	"github.com/fleetsignal/wsconn/internal/transport"
	"github.com/fleetsignal/wsconn/internal/transport/transporttest"
)

type noopExecutor struct{ t *transport.Adapter }

func (n *noopExecutor) OpenSocket(url string, protocols []string) { n.t.OpenSocket(url, protocols) }
func (n *noopExecutor) CloseSocket(code int, reason string)       { n.t.CloseSocket(code, reason) }
func (n *noopExecutor) SendFrame(id string, data []byte)          { n.t.SendFrame(id, data) }
func (n *noopExecutor) ArmTimer(model.TimerKind, time.Duration, int) {}
func (n *noopExecutor) DisarmTimer(model.TimerKind)                  {}
func (n *noopExecutor) Notify(model.ObserverEventKind, string)       {}

func testConfig() actions.Config {
	return actions.Config{
		MaxRetries: 5, InitialRetryDelay: time.Second, MaxRetryDelay: 60 * time.Second,
		RetryBackoffBase: 2.0, ConnectTimeout: 30 * time.Second, DisconnectTimeout: 3 * time.Second,
		StabilityTimeout: 5 * time.Second, MaxPingInterval: 30 * time.Second, MaxPongDelay: 5 * time.Second,
		RateLimitWindow: time.Second, MaxMessagesPerWindow: 3, MaxBytesPerMessage: 65536, MaxQueueSize: 10,
	}
}

func waitForState(t *testing.T, m *machine.Machine, want model.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Snapshot().State == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %v, stuck at %v", want, m.Snapshot().State)
}

func TestAdapter_OpenSocketDrivesMachineToConnected(t *testing.T) {
	dialer := &transporttest.FakeDialer{}
	clk := clock.NewFake(time.Now())
	lim := guards.Limits{MaxRetries: 5, MaxBytesPerMessage: 65536}

	var exec *noopExecutor
	m := machine.New(testConfig(), lim, clk, execFunc(&exec), 10, 100)
	adapter := transport.NewAdapter(dialer, m, clk)
	exec = &noopExecutor{t: adapter}

	m.Submit(model.Connect(clk.Now(), "", "wss://example.test/ws", nil, nil))
	waitForState(t, m, model.Connected)
}

func TestAdapter_DialFailureReportsError(t *testing.T) {
	dialer := &transporttest.FakeDialer{FailNext: transporttest.ErrDialFailed}
	clk := clock.NewFake(time.Now())
	lim := guards.Limits{MaxRetries: 5, MaxBytesPerMessage: 65536}

	var exec *noopExecutor
	m := machine.New(testConfig(), lim, clk, execFunc(&exec), 10, 100)
	adapter := transport.NewAdapter(dialer, m, clk)
	exec = &noopExecutor{t: adapter}

	m.Submit(model.Connect(clk.Now(), "", "wss://example.test/ws", nil, nil))
	waitForState(t, m, model.Reconnecting)
}

// execFunc defers building the executor until after the adapter exists,
// since Adapter needs the Machine and the Machine needs an Executor.
// A thin indirection breaks the chicken-and-egg construction order.
func execFunc(ref **noopExecutor) machine.Executor {
	return &lazyExecutor{ref: ref}
}

type lazyExecutor struct{ ref **noopExecutor }

func (l *lazyExecutor) OpenSocket(url string, protocols []string) { (*l.ref).OpenSocket(url, protocols) }
func (l *lazyExecutor) CloseSocket(code int, reason string)       { (*l.ref).CloseSocket(code, reason) }
func (l *lazyExecutor) SendFrame(id string, data []byte)          { (*l.ref).SendFrame(id, data) }
func (l *lazyExecutor) ArmTimer(k model.TimerKind, d time.Duration, a int) { (*l.ref).ArmTimer(k, d, a) }
func (l *lazyExecutor) DisarmTimer(k model.TimerKind)                     { (*l.ref).DisarmTimer(k) }
func (l *lazyExecutor) Notify(k model.ObserverEventKind, detail string)   { (*l.ref).Notify(k, detail) }
