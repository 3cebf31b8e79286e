package weather

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidTargetDay is returned for a target day that is not MM-DD or
	// YYYY-MM-DD, or names a day that does not exist.
	ErrInvalidTargetDay = eris.New("invalid target day")
	// ErrUnknownCondition is returned for a condition missing from the
	// conditions document.
	ErrUnknownCondition = eris.New("unknown condition")

	// ErrDataUnavailable is the parent of the engine errors that mean no data
	// could be located at all.
	ErrDataUnavailable = eris.New("data unavailable")
	// ErrCredentialsMissing is fatal and never retried.
	ErrCredentialsMissing = fmt.Errorf("%w: credentials missing", ErrDataUnavailable)
	// ErrNoMatchingSource means the catalog returned zero locators.
	ErrNoMatchingSource = fmt.Errorf("%w: no matching source", ErrDataUnavailable)

	ErrFetchExhausted   = eris.New("all fetch variants failed")
	ErrDeadlineExceeded = eris.New("fetch deadline exceeded")

	// ErrAuth is returned when an upstream API rejects the credentials.
	ErrAuth = eris.New("upstream authentication failed")
	// ErrUpstream is returned for any other non-success upstream response.
	ErrUpstream = eris.New("upstream request failed")

	// ErrNoEvaluableData means no record carried a field the condition could
	// be evaluated on.
	ErrNoEvaluableData = eris.New("timeseries does not contain data for the requested condition")
)

// FetchError reports a failed resilient fetch. It unwraps to both its Kind
// (ErrFetchExhausted or ErrDeadlineExceeded) and the last attempt's error.
type FetchError struct {
	Kind     error
	Last     error
	Attempts int
}

func (e *FetchError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%v after %d attempts", e.Kind, e.Attempts)
	}
	return fmt.Sprintf("%v after %d attempts: %v", e.Kind, e.Attempts, e.Last)
}

func (e *FetchError) Unwrap() []error {
	if e.Last == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Last}
}

// maxErrorBody bounds the response body kept on an UpstreamError.
const maxErrorBody = 200

// UpstreamError is a non-success HTTP response from a third-party API.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

// NewUpstreamError truncates body for diagnostics.
func NewUpstreamError(provider string, status int, body []byte) *UpstreamError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &UpstreamError{Provider: provider, StatusCode: status, Body: string(body)}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s request failed (%d): %s", e.Provider, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	if e.StatusCode == 401 {
		return ErrAuth
	}
	return ErrUpstream
}

// IsEngineError reports whether err came from a data engine rather than from
// the caller's input.
func IsEngineError(err error) bool {
	return errors.Is(err, ErrDataUnavailable) ||
		errors.Is(err, ErrFetchExhausted) ||
		errors.Is(err, ErrDeadlineExceeded) ||
		errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrUpstream)
}
