// Package guards implements the pure predicates of spec.md §4.6: boolean
// functions over (state, event, context) that the transition table
// consults before applying a transition's actions. None of them mutate
// anything or perform I/O; they only read model.Context and the Limits
// a client was configured with.
//
// Grounded on 0a3aa7c4_giesekow-go-netdicom__statemachine.go.go's guard
// closures (getNextEvent / stateAction.Action preconditions checked
// before a transition fires) and thatcooperguy-nvremote's
// host-agent/internal/heartbeat/websocket.go, which checks
// reconnectAttempts against a max before scheduling another dial.
package guards

import (
	"net/url"
	"strings"

	"github.com/fleetsignal/wsconn/internal/model"
	"github.com/fleetsignal/wsconn/internal/queue"
)

// Limits is the subset of §6's configuration a guard needs to decide
// admissibility. Client assembles this once from config.ClientConfig.
type Limits struct {
	MaxRetries         int
	MaxBytesPerMessage int
}

// HasValidURL reports whether raw parses as an absolute ws:// or wss://
// URL (spec.md §4.6 hasValidUrl).
func HasValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "ws" || scheme == "wss"
}

// CanConnect reports whether a CONNECT event is admissible from the
// current state with the given url (spec.md §4.6 canConnect).
func CanConnect(s model.State, rawURL string) bool {
	if s != model.Disconnected && s != model.Reconnecting {
		return false
	}
	return HasValidURL(rawURL)
}

// CanRetry reports whether another reconnect attempt is within budget
// (spec.md §4.6 canRetry, §8 "retry bound").
func CanRetry(c model.Context, lim Limits) bool {
	return c.Metrics.ReconnectAttempts < lim.MaxRetries
}

// CanSend reports whether a SEND can be handed directly to the
// transport right now: connected, not currently rate limited, and
// within the per-message size cap (spec.md §4.6 canSend).
func CanSend(c model.Context, lim Limits, payloadSize int) bool {
	if c.State != model.Connected {
		return false
	}
	if payloadSize > lim.MaxBytesPerMessage {
		return false
	}
	if c.RateWindow != nil && c.RateWindow.Count >= c.RateWindow.Limit {
		return false
	}
	return true
}

// CanQueue reports whether a message can be admitted to the outbound
// queue right now, either because it has spare capacity or because a
// strictly-lower-priority lane head is evictable (spec.md §4.6
// canQueue).
func CanQueue(c model.Context, priority queue.Priority) bool {
	if c.Queue == nil {
		return false
	}
	return c.Queue.CanAdmit(priority)
}

// IsRecoverableClose reports whether code is classified recoverable per
// the close-code table of spec.md §4.9. Delegates to recovery so the
// classification table has a single source of truth; guards only expose
// the boolean a transition needs.
func IsRecoverableClose(recoverable func(code int) bool, code int) bool {
	return recoverable(code)
}

// ValidPayloadSize reports whether size is within the configured
// per-message byte cap, independent of connection state — used by
// Machine.Submit's SEND shape validation (spec.md §4.1 step 1).
func ValidPayloadSize(size int, lim Limits) bool {
	return size >= 0 && size <= lim.MaxBytesPerMessage
}
