package model

import (
	"time"

	"github.com/fleetsignal/wsconn/internal/queue"
	"github.com/fleetsignal/wsconn/internal/ratelimit"
)

const (
	// MaxErrorHistory bounds Context.ErrorHistory (spec.md §3: "bounded
	// ring (<= 100 entries)").
	MaxErrorHistory = 100
	// MaxLatencySamples bounds Context.LatencySamples (spec.md §3:
	// "latency samples: bounded ring (<= 50)").
	MaxLatencySamples = 50
)

// Connection is the Context.Connection subrecord of spec.md §3.
type Connection struct {
	URL       string
	Protocols []string
	// HandleID is non-empty iff a transport handle is owned, i.e. iff
	// State is one of {Connecting, Connected, Disconnecting} (spec.md §8
	// "socket uniqueness"). The machine never stores the handle itself
	// in Context — only the machine and supervisor ever touch the
	// transport.Handle value; Context just tracks presence.
	HandleID             string
	Status               ConnectionStatus
	ReadyState           ReadyState
	LastDisconnectReason string
}

// Metrics is the Context.Metrics subrecord: monotone non-decreasing
// counters (spec.md §3, §8).
type Metrics struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	ReconnectAttempts int
	ErrorCount       uint64
}

// Timing is the Context.Timing subrecord. Zero time.Time means "empty"
// per spec.md §3.
type Timing struct {
	ConnectTime         time.Time
	DisconnectTime       time.Time
	LastPingTime        time.Time
	LastPongTime        time.Time
	LastErrorTime       time.Time
	LastStableConnection time.Time
	// StabilizingSince is non-zero while a post-reconnect stabilization
	// sub-period (spec.md §4.10) is in progress: set by the OPEN action
	// following a non-zero reconnect attempt, cleared once
	// STABILITY_TIMEOUT elapses uninterrupted and resetRetries runs.
	StabilizingSince time.Time
}

// Context is the single mutable record the machine advances (spec.md
// §3). It is passed by value between steps; Queue carries a *queue.Queue
// because the queue's own internal bookkeeping is ordinary mutable data,
// not I/O — "pure" in spec.md's sense means no wall-clock reads, no
// randomness, and no blocking I/O inside a step, not that the queue must
// be copied element-by-element on every SEND.
type Context struct {
	State State

	Connection Connection
	Metrics    Metrics
	Timing     Timing

	// RateWindow is present iff State == Connected (spec.md §3).
	RateWindow *ratelimit.Window

	Queue *queue.Queue

	ErrorHistory   []ErrorRecord
	LatencySamples []time.Duration

	TerminalCause *TerminalCause
}

// New constructs the initial Context: state Disconnected, zeroed
// counters, an empty queue bounded at maxQueueSize (spec.md §3
// "Lifecycle summary").
func New(maxQueueSize int) Context {
	return Context{
		State: Disconnected,
		Queue: queue.New(maxQueueSize),
	}
}

// WithErrorRecord returns a copy of c with rec appended to the bounded
// error ring, oldest entries dropped beyond MaxErrorHistory.
func (c Context) WithErrorRecord(rec ErrorRecord) Context {
	c.ErrorHistory = pushRing(c.ErrorHistory, rec, MaxErrorHistory)
	return c
}

// WithLatencySample returns a copy of c with d appended to the bounded
// latency ring, oldest entries dropped beyond MaxLatencySamples.
func (c Context) WithLatencySample(d time.Duration) Context {
	c.LatencySamples = pushRing(c.LatencySamples, d, MaxLatencySamples)
	return c
}

func pushRing[T any](ring []T, item T, max int) []T {
	ring = append(ring, item)
	if len(ring) > max {
		ring = ring[len(ring)-max:]
	}
	return ring
}

// HasSocket reports whether a transport handle is currently owned,
// i.e. whether the socket-uniqueness invariant (spec.md §8) should hold
// for the current state.
func (c Context) HasSocket() bool { return c.Connection.HandleID != "" }
