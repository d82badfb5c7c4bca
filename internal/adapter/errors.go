package adapter

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// TimeoutError indicates the upstream did not respond within the
// adapter's adaptive timeout. Retryable.
type TimeoutError struct {
	Source string
	Cause  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout: %v", e.Source, e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// APIError wraps a non-2xx HTTP response. 5xx is retryable; 4xx (other
// than 429, which is RateLimitError) is not.
type APIError struct {
	Source string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api error: status %d", e.Source, e.Status)
}

func (e *APIError) Retryable() bool { return e.Status >= 500 }

// RateLimitError indicates the upstream rejected the request for rate
// reasons. RetryAfter is zero when the upstream did not advertise one.
type RateLimitError struct {
	Source     string
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited (retry_after=%ds)", e.Source, e.RetryAfter)
}

// AuthError indicates an authentication/authorization failure. Never
// retried — the adapter must not retry on AuthError (§4.1).
type AuthError struct {
	Source string
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: auth error: %s", e.Source, e.Detail)
}

// ParseError indicates a raw record could not be normalized. Never
// retried; the record is dropped and the caller is told which field.
type ParseError struct {
	Source string
	Field  string
	Value  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse error: field %q value %q", e.Source, e.Field, e.Value)
}

// IsRetryable reports whether err is one the adapter should retry
// internally with exponential backoff, per the §4.1 taxonomy.
func IsRetryable(err error) bool {
	switch e := err.(type) {
	case *TimeoutError:
		return true
	case *APIError:
		return e.Retryable()
	case *RateLimitError:
		return true
	case *AuthError, *ParseError:
		return false
	default:
		return false
	}
}

var errNotConformant = eris.New("adapter: does not satisfy the required contract")

// ErrNonConformantAdapter wraps errNotConformant with the offending
// adapter's name so the consolidation service's construction-time
// validation failures are actionable (§4.3: "never a runtime surprise").
func ErrNonConformantAdapter(name string) error {
	return eris.Wrapf(errNotConformant, "adapter %q", name)
}
