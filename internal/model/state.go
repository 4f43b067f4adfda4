// Package model holds the data types shared by every component of the
// state machine core (spec.md §3): the closed State enum, the Event
// tagged union, the mutable Context record, and the error taxonomy.
// Guards, actions, the transition table, and recovery all depend on
// this package rather than on each other or on the machine package
// itself, so none of them import the machine's dispatch loop — only the
// data it operates on.
package model

// State is one of the six machine states of spec.md §3. Exactly one is
// active at any time; Terminated is absorbing.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Disconnecting
	Terminated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Disconnecting:
		return "disconnecting"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ReadyState mirrors the browser WebSocket readyState values referenced
// in spec.md §3, kept here as named constants instead of magic numbers.
type ReadyState int

const (
	ReadyConnecting ReadyState = 0
	ReadyOpen       ReadyState = 1
	ReadyClosing    ReadyState = 2
	ReadyClosed     ReadyState = 3
)

// ConnectionStatus is the Context.Connection.Status field of spec.md §3.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnected
	StatusError
)
