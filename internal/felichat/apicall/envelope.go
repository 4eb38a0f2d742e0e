// Package apicall implements the resilient outbound call layer shared by
// every generative-API client in FeliChat.  A call is issued with a
// per-attempt timeout, a bounded number of attempts, and exponential backoff
// between them; the outcome is always an Envelope so callers branch on a
// status code instead of unwinding through panics or untyped errors.
package apicall

// Status classifies the outcome of a call or of a higher-level operation
// built on calls.  StatusOK is the zero value so an empty Envelope reads as
// success nowhere by accident — constructors always set a message on failure.
type Status int

const (
	// StatusOK means the call succeeded and the payload is usable.
	StatusOK Status = 0

	// StatusTransport means the call failed at the HTTP level: timeout,
	// connection error, or a non-2xx response that persisted through all
	// retry attempts.
	StatusTransport Status = 2

	// StatusMalformed means the HTTP exchange succeeded but the body did not
	// contain the expected structured payload.
	StatusMalformed Status = 3

	// StatusBudget means memory compaction was required but even the
	// smallest reply allowance could not make the conversation fit the
	// model's context window.
	StatusBudget Status = 4
)

// String returns a short human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTransport:
		return "transport_failure"
	case StatusMalformed:
		return "malformed_response"
	case StatusBudget:
		return "budget_infeasible"
	default:
		return "unknown"
	}
}

// Envelope is the uniform result of one outbound API call.  Callers must
// check Status before touching Body.
type Envelope struct {
	// Status is StatusOK on success; any other value is a failure.
	Status Status
	// Message is a diagnostic description of the failure ("success" when
	// Status is StatusOK).  Secrets are redacted before it is populated.
	Message string
	// Body is the raw response body.  Nil unless Status is StatusOK.
	Body []byte
}

// OK reports whether the envelope represents a successful call.
func (e Envelope) OK() bool {
	return e.Status == StatusOK
}
