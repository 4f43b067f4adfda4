// Package wsconn is the public facade: it wires package machine,
// package supervisor, and package transport together into one
// Executor implementation and exposes the small surface spec.md §6
// calls out — Connect/Disconnect/Send/Terminate plus an observer event
// stream.
//
// Grounded on apps/host-agent/cmd/agent/main.go's runAgent: a
// constructor that wires a handful of long-lived collaborators and
// hands back a single object whose lifecycle the caller drives, logged
// through log/slog the way the teacher's agent does.
package wsconn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsignal/wsconn/internal/actions"
	"github.com/fleetsignal/wsconn/internal/clock"
	"github.com/fleetsignal/wsconn/internal/config"
	"github.com/fleetsignal/wsconn/internal/guards"
	"github.com/fleetsignal/wsconn/internal/machine"
	"github.com/fleetsignal/wsconn/internal/model"
	"github.com/fleetsignal/wsconn/internal/queue"
	"github.com/fleetsignal/wsconn/internal/supervisor"
	"github.com/fleetsignal/wsconn/internal/transport"
)

// Event is what Client.Events delivers: an observer notification
// (spec.md §5 "Observers receive immutable snapshots") paired with the
// context snapshot taken right after it fired.
type Event struct {
	Kind      model.ObserverEventKind
	Detail    string
	Snapshot  model.Context
	Timestamp time.Time
}

// Client is the public reconnecting WebSocket client. The zero value is
// not usable; construct one with New.
type Client struct {
	m   *machine.Machine
	sup *supervisor.Supervisor
	tr  *transport.Adapter
	clk clock.Clock
	log *slog.Logger

	events chan Event
}

// composite implements machine.Executor by delegating transport
// effects to transport.Adapter, timer effects to supervisor.Supervisor,
// and Notify to the Client's event stream plus structured logging.
type composite struct {
	c *Client
}

func (e *composite) OpenSocket(url string, protocols []string)  { e.c.tr.OpenSocket(url, protocols) }
func (e *composite) CloseSocket(code int, reason string)        { e.c.tr.CloseSocket(code, reason) }
func (e *composite) SendFrame(id string, data []byte)           { e.c.tr.SendFrame(id, data) }
func (e *composite) ArmTimer(k model.TimerKind, d time.Duration, attempt int) {
	e.c.sup.ArmTimer(k, d, attempt)
}
func (e *composite) DisarmTimer(k model.TimerKind) { e.c.sup.DisarmTimer(k) }

func (e *composite) Notify(kind model.ObserverEventKind, detail string) {
	e.c.log.Debug("observer event", "kind", string(kind), "detail", detail)
	ev := Event{Kind: kind, Detail: detail, Snapshot: e.c.m.Snapshot(), Timestamp: e.c.clk.Now()}
	select {
	case e.c.events <- ev:
	default:
		e.c.log.Warn("observer event dropped, event channel full", "kind", string(kind))
	}
}

// New constructs a Client from a loaded ClientConfig and starts its
// supervisor and transport adapter. The machine begins Disconnected;
// call Connect to start the lifecycle of spec.md §4.8.
func New(cfg *config.ClientConfig, dialer transport.Dialer) *Client {
	acfg := actions.Config{
		MaxRetries:           cfg.MaxRetries,
		InitialRetryDelay:    cfg.InitialRetryDelay,
		MaxRetryDelay:        cfg.MaxRetryDelay,
		RetryBackoffBase:     cfg.RetryBackoffBase,
		Jitter:               cfg.BackoffJitter,
		ConnectTimeout:       cfg.ConnectTimeout,
		DisconnectTimeout:    cfg.DisconnectTimeout,
		StabilityTimeout:     cfg.StabilityTimeout,
		MaxPingInterval:      cfg.MaxPingInterval,
		MaxPongDelay:         cfg.MaxPongDelay,
		RateLimitWindow:      cfg.RateLimitWindow,
		MaxMessagesPerWindow: cfg.MaxMessagesPerWindow,
		MaxBytesPerMessage:   cfg.MaxBytesPerMessage,
		MaxQueueSize:         cfg.MaxQueueSize,
	}
	lim := guards.Limits{MaxRetries: cfg.MaxRetries, MaxBytesPerMessage: cfg.MaxBytesPerMessage}

	clk := clock.System{}
	if dialer == nil {
		dialer = transport.NewWSDialer()
	}

	cl := &Client{
		clk:    clk,
		log:    slog.Default().With("component", "wsconn"),
		events: make(chan Event, 256),
	}

	exec := &composite{c: cl}
	cl.m = machine.New(acfg, lim, clk, exec, cfg.MaxQueueSize, 1024)
	cl.sup = supervisor.New(clk, cl.m, acfg, lim)
	cl.tr = transport.NewAdapter(dialer, cl.m, clk)

	return cl
}

// Connect submits a CONNECT event, starting the lifecycle of spec.md
// §4.8. protocols and opts may be nil.
func (c *Client) Connect(url string, protocols []string, opts map[string]string) error {
	_, rej := c.m.Submit(model.Connect(c.clk.Now(), uuid.NewString(), url, protocols, opts))
	if rej != nil {
		return fmt.Errorf("connect rejected: %s: %s", rej.Kind, rej.Reason)
	}
	return nil
}

// Disconnect submits a user-initiated DISCONNECT event (spec.md §4.8
// "graceful disconnect").
func (c *Client) Disconnect(code int, reason string) error {
	_, rej := c.m.Submit(model.Disconnect(c.clk.Now(), uuid.NewString(), code, reason))
	if rej != nil {
		return fmt.Errorf("disconnect rejected: %s: %s", rej.Kind, rej.Reason)
	}
	return nil
}

// Send submits an outbound SEND command; id should be a caller-supplied
// idempotency key, or empty to have one generated.
func (c *Client) Send(id string, data []byte, priority queue.Priority) error {
	if id == "" {
		id = uuid.NewString()
	}
	_, rej := c.m.Submit(model.Send(c.clk.Now(), uuid.NewString(), id, data, priority))
	if rej != nil {
		return fmt.Errorf("send rejected: %s: %s", rej.Kind, rej.Reason)
	}
	return nil
}

// Terminate submits TERMINATE, the irreversible shutdown of spec.md
// §4.1, then stops the supervisor's timers.
func (c *Client) Terminate(ctx context.Context) error {
	_, rej := c.m.Submit(model.TerminateEvent(c.clk.Now(), uuid.NewString()))
	if rej != nil {
		return fmt.Errorf("terminate rejected: %s: %s", rej.Kind, rej.Reason)
	}
	done := make(chan struct{})
	go func() {
		c.sup.Stop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current context copy (spec.md §5).
func (c *Client) Snapshot() model.Context { return c.m.Snapshot() }

// Events returns the channel of observer notifications. Callers must
// drain it; a full channel drops new events rather than blocking the
// machine (spec.md §5 "observers must not be able to back-pressure the
// machine").
func (c *Client) Events() <-chan Event { return c.events }
