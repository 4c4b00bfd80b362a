package connector

import (
	"fmt"
	"strings"
)

// ConfigErrorKind classifies configuration failures.
type ConfigErrorKind string

const (
	MissingRequiredField ConfigErrorKind = "missing_required_field"
	InvalidFieldFormat   ConfigErrorKind = "invalid_field_format"
	NoValidAuthMode      ConfigErrorKind = "no_valid_auth_mode"
)

// ConfigError is returned by Validate. A connector with a ConfigError cannot
// be activated.
type ConfigError struct {
	Kind   ConfigErrorKind
	Field  string
	Reason string
	// Modes lists the declared auth modes for NoValidAuthMode.
	Modes []string
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case MissingRequiredField:
		return fmt.Sprintf("missing required field %q", e.Field)
	case InvalidFieldFormat:
		return fmt.Sprintf("invalid value for field %q: %s", e.Field, e.Reason)
	case NoValidAuthMode:
		return fmt.Sprintf("no valid auth mode: provide all fields of one of %s", strings.Join(e.Modes, ", "))
	default:
		return "invalid configuration: " + e.Reason
	}
}

// DispatchErrorKind classifies dispatch failures.
type DispatchErrorKind string

const (
	MissingDispatchTarget DispatchErrorKind = "missing_dispatch_target"
	UnsupportedMethod     DispatchErrorKind = "unsupported_method"
	MissingCredential     DispatchErrorKind = "missing_credential"
	TransportFailure      DispatchErrorKind = "transport_failure"
	HTTPStatusFailure     DispatchErrorKind = "http_status_failure"
	Cancelled             DispatchErrorKind = "cancelled"
)

// DispatchError is a typed dispatch failure. It is terminal for the attempt.
type DispatchError struct {
	Kind       DispatchErrorKind
	Method     string
	StatusCode int
	Body       string
	Err        error
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case MissingDispatchTarget:
		if e.Err != nil {
			return "no dispatch target: " + e.Err.Error()
		}
		return "no dispatch target: request names neither a workflow nor a webhook and none is configured"
	case UnsupportedMethod:
		return fmt.Sprintf("unsupported method %q (allowed: GET, POST, PUT, DELETE)", e.Method)
	case MissingCredential:
		return "api dispatch requires a credential: " + e.errText()
	case HTTPStatusFailure:
		if e.Body == "" {
			return fmt.Sprintf("vendor returned status %d", e.StatusCode)
		}
		return fmt.Sprintf("vendor returned status %d: %s", e.StatusCode, e.Body)
	case Cancelled:
		return "dispatch cancelled: " + e.errText()
	default:
		return "transport failure: " + e.errText()
	}
}

func (e *DispatchError) errText() string {
	if e.Err == nil {
		return "unknown"
	}
	return e.Err.Error()
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Temporary reports whether the failure is a vendor-side outage the caller
// may retry. Misconfiguration and caller cancellation are not temporary.
func (e *DispatchError) Temporary() bool {
	switch e.Kind {
	case TransportFailure:
		return true
	case HTTPStatusFailure:
		return e.StatusCode >= 500 || e.StatusCode == 429
	}
	return false
}
