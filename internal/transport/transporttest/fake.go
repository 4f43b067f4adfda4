// Package transporttest provides test doubles for package transport: a
// scriptable FakeDialer for unit tests that must not touch a real
// socket, and an EchoServer backed by gorilla/mux + gorilla/websocket
// for adapter-level integration tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/fleetsignal/wsconn/internal/transport"
)

// FakeHandle is a controllable transport.Handle: Send records every
// frame instead of writing to a socket, and tests can directly invoke
// the callbacks captured at dial time to simulate inbound traffic.
type FakeHandle struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	cb     transport.Callbacks

	// FailSend, when set, is returned by every Send call instead of
	// succeeding — used to exercise the sendMessage-promotes-to-ERROR
	// path (spec.md §4.7).
	FailSend error
}

func (h *FakeHandle) Send(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailSend != nil {
		return h.FailSend
	}
	h.sent = append(h.sent, append([]byte(nil), data...))
	return nil
}

func (h *FakeHandle) Close(code int, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Sent returns every frame handed to Send so far.
func (h *FakeHandle) Sent() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.sent))
	copy(out, h.sent)
	return out
}

// Closed reports whether Close has been called.
func (h *FakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Deliver simulates an inbound data frame.
func (h *FakeHandle) Deliver(data []byte) {
	if h.cb.OnMessage != nil {
		h.cb.OnMessage(data, len(data))
	}
}

// DeliverClose simulates the remote end closing the connection.
func (h *FakeHandle) DeliverClose(code int, reason string, wasClean bool) {
	if h.cb.OnClose != nil {
		h.cb.OnClose(code, reason, wasClean)
	}
}

// DeliverError simulates a transport-level read error.
func (h *FakeHandle) DeliverError(err error) {
	if h.cb.OnError != nil {
		h.cb.OnError(err)
	}
}

// FakeDialer is a scriptable transport.Dialer. By default Dial succeeds
// and returns a fresh FakeHandle; set FailNext to make the next Dial
// call return an error instead (simulating connection_failed).
type FakeDialer struct {
	mu       sync.Mutex
	handles  []*FakeHandle
	FailNext error
}

func (d *FakeDialer) Dial(ctx context.Context, url string, protocols []string, cb transport.Callbacks) (transport.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailNext != nil {
		err := d.FailNext
		d.FailNext = nil
		return nil, err
	}
	h := &FakeHandle{cb: cb}
	d.handles = append(d.handles, h)
	return h, nil
}

// LastHandle returns the most recently dialed handle, or nil.
func (d *FakeDialer) LastHandle() *FakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

// ErrDialFailed is a canned error for FailNext.
var ErrDialFailed = errors.New("transporttest: dial failed")
