// Package recovery implements spec.md §4.9: the close-code
// classification table and the fallback handling applied when the
// transition table has no entry for (state, event) or a guard fails.
//
// Grounded on thatcooperguy-nvremote's host-agent/internal/heartbeat's
// close-reason handling (a bare switch over gorilla/websocket close
// codes) and 0a3aa7c4_giesekow-go-netdicom__statemachine.go.go's
// handling of an unexpected event in a DICOM association state (log,
// count, stay put unless the protocol says to abort).
package recovery

import "github.com/fleetsignal/wsconn/internal/model"

// Classification is the (kind, recoverable) pair a close code maps to.
type Classification struct {
	Kind        model.ErrorKind
	Recoverable bool
}

// closeCodes is the table of spec.md §4.9. Codes outside the table are
// classified as internal/unrecoverable: an unrecognized close code is
// treated conservatively, the same way an unhandled protocol value
// would be in the teacher's close-reason switch.
var closeCodes = map[int]Classification{
	1000: {model.ErrClosed, false},       // normal
	1001: {model.ErrDisconnect, true},    // going_away
	1002: {model.ErrProtocol, false},     // protocol
	1003: {model.ErrInvalidData, false},  // invalid_data
	1007: {model.ErrInvalidData, false},  // invalid_data
	1006: {model.ErrAbnormal, true},      // abnormal
	1008: {model.ErrPolicy, false},       // policy
	1009: {model.ErrMessageSize, true},   // too_big
	1011: {model.ErrInternal, true},      // internal
	1012: {model.ErrDisconnect, true},    // restart
	1013: {model.ErrDisconnect, true},    // retry
	1015: {model.ErrTLS, false},          // tls
}

// Classify maps a close code to its (kind, recoverable) pair per
// spec.md §4.9. Unknown codes classify as internal, unrecoverable.
func Classify(code int) Classification {
	if c, ok := closeCodes[code]; ok {
		return c
	}
	return Classification{model.ErrInternal, false}
}

// IsRecoverable is the guards.IsRecoverableClose predicate source: true
// iff code classifies as recoverable.
func IsRecoverable(code int) bool {
	return Classify(code).Recoverable
}

// Outcome tells the machine what an undefined transition or guard
// failure should do to (state, context): stay in place recording the
// error, or escalate to terminated.
type Outcome struct {
	NextState model.State
	Cause     *model.TerminalCause
}

// UndefinedTransition implements spec.md §4.1 step 2's fallback R(s, e,
// c): record the error and stay in s. Undefined transitions never
// escalate to terminated by themselves — only an invariant violation
// or a non-recoverable CLOSE does that, and those are handled by the
// machine directly rather than through this path.
func UndefinedTransition(s model.State) Outcome {
	return Outcome{NextState: s}
}

// CloseOutcome decides the next state for a CLOSE event carrying code,
// given whether another retry is within budget. Non-recoverable codes
// always terminate; recoverable codes reconnect if canRetry holds, else
// terminate with max_retries (spec.md §4.9).
func CloseOutcome(code int, canRetry bool) Outcome {
	class := Classify(code)
	if !class.Recoverable {
		c := code
		return Outcome{
			NextState: model.Terminated,
			Cause:     &model.TerminalCause{Kind: model.TerminalNonRecoverableClose, CloseCode: &c},
		}
	}
	if !canRetry {
		return Outcome{
			NextState: model.Terminated,
			Cause:     &model.TerminalCause{Kind: model.TerminalMaxRetries},
		}
	}
	return Outcome{NextState: model.Reconnecting}
}
