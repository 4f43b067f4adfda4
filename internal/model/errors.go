package model

// ErrorKind is the error taxonomy of spec.md §7.
type ErrorKind string

const (
	ErrInvalidURL         ErrorKind = "invalid_url"
	ErrConnectionFailed   ErrorKind = "connection_failed"
	ErrConnectTimeout     ErrorKind = "connect_timeout"
	ErrProtocol           ErrorKind = "protocol"
	ErrInvalidData        ErrorKind = "invalid_data"
	ErrPolicy             ErrorKind = "policy"
	ErrMessageSize        ErrorKind = "message_size"
	ErrRateLimited        ErrorKind = "rate_limited"
	ErrQueueOverflow      ErrorKind = "queue_overflow"
	ErrExhausted          ErrorKind = "exhausted"
	ErrMaxRetries         ErrorKind = "max_retries"
	ErrTLS                ErrorKind = "tls"
	ErrInternal           ErrorKind = "internal"
	ErrInvariantViolation ErrorKind = "invariant_violation"
	ErrOverloaded         ErrorKind = "overloaded"
	ErrDisconnect         ErrorKind = "disconnect"
	ErrAbnormal           ErrorKind = "abnormal"
	ErrClosed             ErrorKind = "closed"
)

// ErrorRecord is one entry in Context's bounded error ring (spec.md §3).
type ErrorRecord struct {
	Time             int64 // unix nanos; kept numeric so ErrorRecord stays a plain comparable value
	Kind             ErrorKind
	Recoverable      bool
	StabilityImpact  bool
	Metadata         map[string]string
}

// TerminalCause records why the machine reached Terminated (spec.md §7).
type TerminalCause struct {
	Kind      string // "normal", "max_retries", "invariant_violation", "terminated_by_user", "non_recoverable_close"
	CloseCode *int
}

const (
	TerminalNormal               = "normal"
	TerminalMaxRetries           = "max_retries"
	TerminalInvariantViolation   = "invariant_violation"
	TerminalByUser               = "terminated_by_user"
	TerminalNonRecoverableClose  = "non_recoverable_close"
)

// RejectKind enumerates the reasons Submit can refuse an event without
// mutating Context (spec.md §4.1 step 1, §7 "every submit returns either
// acceptance ... or a rejection with a kind").
type RejectKind string

const (
	RejectMalformed      RejectKind = "malformed"
	RejectInvalidInState RejectKind = "invalid_in_state"
	RejectOverloaded     RejectKind = "overloaded"
)

// Rejected is returned by Submit when an event is refused pre-dispatch.
type Rejected struct {
	Kind   RejectKind
	Reason string
}

func (r *Rejected) Error() string { return string(r.Kind) + ": " + r.Reason }
