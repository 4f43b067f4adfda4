package transport

import (
	"context"
	"sync"

	"github.com/fleetsignal/wsconn/internal/clock"
	"github.com/fleetsignal/wsconn/internal/machine"
	"github.com/fleetsignal/wsconn/internal/model"
)

// Adapter bridges a Dialer to a machine.Machine, implementing the
// transport third of machine.Executor (OpenSocket/CloseSocket/
// SendFrame). Every dial, send, and close runs on its own goroutine and
// reports its outcome back into the machine as a future event
// (spec.md §5 "Transport I/O issued inside an action is non-blocking
// and fire-and-forget; results come back as future events"); Adapter
// itself never touches machine context.
type Adapter struct {
	dialer Dialer
	m      *machine.Machine
	clk    clock.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	handle Handle
}

// NewAdapter returns an Adapter that dials through d and reports events
// to m, stamping them with clk.Now().
func NewAdapter(d Dialer, m *machine.Machine, clk clock.Clock) *Adapter {
	return &Adapter{dialer: d, m: m, clk: clk}
}

// OpenSocket implements machine.Executor.
func (a *Adapter) OpenSocket(url string, protocols []string) {
	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = cancel
	a.mu.Unlock()

	go func() {
		h, err := a.dialer.Dial(ctx, url, protocols, Callbacks{
			OnMessage: func(data []byte, size int) {
				a.m.Submit(model.Message(a.clk.Now(), "", data, size))
			},
			OnError: func(err error) {
				a.m.Submit(model.Error(a.clk.Now(), "", err.Error()))
			},
			OnClose: func(code int, reason string, wasClean bool) {
				a.m.Submit(model.Close(a.clk.Now(), "", code, reason, wasClean))
			},
		})
		if err != nil {
			a.m.Submit(model.Error(a.clk.Now(), "", err.Error()))
			return
		}
		a.mu.Lock()
		a.handle = h
		a.mu.Unlock()
		a.m.Submit(model.Open(a.clk.Now(), ""))
	}()
}

// CloseSocket implements machine.Executor.
func (a *Adapter) CloseSocket(code int, reason string) {
	a.mu.Lock()
	h := a.handle
	a.handle = nil
	a.mu.Unlock()
	if h == nil {
		return
	}
	go func() { _ = h.Close(code, reason) }()
}

// SendFrame implements machine.Executor.
func (a *Adapter) SendFrame(id string, data []byte) {
	a.mu.Lock()
	h := a.handle
	a.mu.Unlock()
	if h == nil {
		a.m.Submit(model.Error(a.clk.Now(), "", "send attempted with no open socket"))
		return
	}
	go func() {
		if err := h.Send(data); err != nil {
			a.m.Submit(model.Error(a.clk.Now(), "", err.Error()))
		}
	}()
}
