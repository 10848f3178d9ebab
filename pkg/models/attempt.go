package models

import "time"

// ErrorClass classifies the outcome of a single HTTP attempt. It drives the
// retry decision: 4xx responses and successes are terminal, everything else
// is retried until the attempt budget runs out.
type ErrorClass string

const (
	ErrorClassNone       ErrorClass = "none"
	ErrorClassTimeout    ErrorClass = "timeout"
	ErrorClassDNS        ErrorClass = "dns"
	ErrorClassConnection ErrorClass = "connection"
	ErrorClassSSL        ErrorClass = "ssl"
	ErrorClassHTTP4xx    ErrorClass = "http_4xx"
	ErrorClassHTTP5xx    ErrorClass = "http_5xx"
	ErrorClassUnknown    ErrorClass = "unknown"
)

// Retriable reports whether another attempt may follow this outcome.
func (e ErrorClass) Retriable() bool {
	switch e {
	case ErrorClassNone, ErrorClassHTTP4xx:
		return false
	default:
		return true
	}
}

// Attempt records one HTTP try inside a Run: the exact materialized request,
// the captured response, and the classified outcome. Attempts are
// append-only and never mutated after insertion.
type Attempt struct {
	ID              string            `json:"id"`
	RunID           string            `json:"run_id"         validate:"required"`
	AttemptNumber   int               `json:"attempt_number" validate:"required,min=1"`
	RequestURL      string            `json:"request_url"`
	RequestMethod   string            `json:"request_method"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestBody     string            `json:"request_body,omitempty"`
	ResponseStatus  *int              `json:"response_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	ErrorClass      ErrorClass        `json:"error_class"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	DurationMs      int64             `json:"duration_ms"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
}
