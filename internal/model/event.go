package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/fleetsignal/wsconn/internal/queue"
)

// EventKind is the tag of the Event union (spec.md §3).
type EventKind int

const (
	EvConnect EventKind = iota
	EvDisconnect
	EvOpen
	EvClose
	EvError
	EvMessage
	EvSend
	EvPing
	EvPong
	EvRetry
	EvMaxRetries
	EvTerminate
)

func (k EventKind) String() string {
	names := [...]string{
		"CONNECT", "DISCONNECT", "OPEN", "CLOSE", "ERROR", "MESSAGE",
		"SEND", "PING", "PONG", "RETRY", "MAX_RETRIES", "TERMINATE",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "UNKNOWN"
	}
	return names[k]
}

// Event is the tagged-union record of spec.md §3. Only the fields
// relevant to Kind are populated; constructors below keep callers from
// having to know which fields apply to which kind. Every event carries
// a monotonically non-decreasing Timestamp and a CorrelationID.
type Event struct {
	Kind          EventKind
	Timestamp     time.Time
	CorrelationID string

	// CONNECT
	URL            string
	Protocols      []string
	ConnectOptions map[string]string

	// DISCONNECT / CLOSE
	Code     int
	Reason   string
	WasClean bool

	// ERROR — non-empty description required; no other variant carries one.
	ErrDescription string

	// MESSAGE
	Data []byte
	Size int

	// SEND
	SendID       string
	SendPriority queue.Priority

	// PONG
	Latency time.Duration

	// RETRY
	Attempt int
	Delay   time.Duration
}

func newEvent(kind EventKind, now time.Time, correlationID string) Event {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Event{Kind: kind, Timestamp: now, CorrelationID: correlationID}
}

// Connect builds a CONNECT event.
func Connect(now time.Time, correlationID, url string, protocols []string, opts map[string]string) Event {
	e := newEvent(EvConnect, now, correlationID)
	e.URL = url
	e.Protocols = protocols
	e.ConnectOptions = opts
	return e
}

// Disconnect builds a DISCONNECT event.
func Disconnect(now time.Time, correlationID string, code int, reason string) Event {
	e := newEvent(EvDisconnect, now, correlationID)
	e.Code = code
	e.Reason = reason
	return e
}

// Open builds an OPEN event.
func Open(now time.Time, correlationID string) Event {
	return newEvent(EvOpen, now, correlationID)
}

// Close builds a CLOSE event reported by the transport.
func Close(now time.Time, correlationID string, code int, reason string, wasClean bool) Event {
	e := newEvent(EvClose, now, correlationID)
	e.Code = code
	e.Reason = reason
	e.WasClean = wasClean
	return e
}

// Error builds an ERROR event. description must be non-empty (spec.md §3).
func Error(now time.Time, correlationID, description string) Event {
	e := newEvent(EvError, now, correlationID)
	e.ErrDescription = description
	return e
}

// Message builds an inbound MESSAGE event.
func Message(now time.Time, correlationID string, data []byte, size int) Event {
	e := newEvent(EvMessage, now, correlationID)
	e.Data = data
	e.Size = size
	return e
}

// Send builds an outbound SEND command; Size defaults to len(data).
func Send(now time.Time, correlationID, id string, data []byte, priority queue.Priority) Event {
	e := newEvent(EvSend, now, correlationID)
	e.SendID = id
	e.Data = data
	e.Size = len(data)
	e.SendPriority = priority
	return e
}

// Ping builds a heartbeat PING event (supervisor-injected).
func Ping(now time.Time, correlationID string) Event {
	return newEvent(EvPing, now, correlationID)
}

// Pong builds a PONG event carrying the observed round-trip latency.
func Pong(now time.Time, correlationID string, latency time.Duration) Event {
	e := newEvent(EvPong, now, correlationID)
	e.Latency = latency
	return e
}

// Retry builds a supervisor-injected RETRY event for the given attempt.
func Retry(now time.Time, correlationID string, attempt int, delay time.Duration) Event {
	e := newEvent(EvRetry, now, correlationID)
	e.Attempt = attempt
	e.Delay = delay
	return e
}

// MaxRetries builds the supervisor-injected MAX_RETRIES event.
func MaxRetries(now time.Time, correlationID string) Event {
	return newEvent(EvMaxRetries, now, correlationID)
}

// TerminateEvent builds the kill event.
func TerminateEvent(now time.Time, correlationID string) Event {
	return newEvent(EvTerminate, now, correlationID)
}
