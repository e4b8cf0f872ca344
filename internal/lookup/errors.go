package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/akl7777777/number-intel/internal/model"
	"github.com/akl7777777/number-intel/internal/upstream"
)

// Error is a lookup rejected at one of the gateway's gates.
type Error struct {
	Code           model.ErrorCode
	Message        string
	Status         int // HTTP status to answer with
	UpstreamStatus int
	RetryAfter     time.Duration
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Envelope converts e into a failure response body.
func (e *Error) Envelope() *model.Envelope {
	return model.Failure(e.Code, e.Message, e.UpstreamStatus)
}

func newError(code model.ErrorCode, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

var (
	errMissingKey       = newError(model.CodeMissingKey, http.StatusUnauthorized, "Please provide an API key")
	errInvalidKey       = newError(model.CodeInvalidKey, http.StatusUnauthorized, "Please provide valid API key")
	errMissingParameter = newError(model.CodeMissingParameter, http.StatusBadRequest, "Please provide number parameter")
	errInvalidFormat    = newError(model.CodeInvalidFormat, http.StatusBadRequest, "Number must be 10-15 digits")
)

func rateLimited(retryAfter time.Duration) *Error {
	e := newError(model.CodeRateLimited, http.StatusTooManyRequests, "Too many requests")
	e.RetryAfter = retryAfter
	return e
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	e := newError(model.CodeInternal, http.StatusInternalServerError, "Something went wrong")
	e.Err = err
	return e
}

// fromFetch maps an upstream failure onto the gateway taxonomy.
func fromFetch(err error) *Error {
	var ue *upstream.Error
	if errors.As(err, &ue) {
		var e *Error
		switch ue.Kind {
		case upstream.KindTimeout:
			e = newError(model.CodeUpstreamTimeout, http.StatusGatewayTimeout, "Request timeout")
		case upstream.KindStatus, upstream.KindPayload:
			e = newError(model.CodeUpstreamError, http.StatusBadGateway, "Error from source API")
			e.UpstreamStatus = ue.Status
		default:
			e = newError(model.CodeUpstreamUnreachable, http.StatusBadGateway, "Source API unreachable")
		}
		e.Err = err
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e := newError(model.CodeUpstreamTimeout, http.StatusGatewayTimeout, "Request timeout")
		e.Err = err
		return e
	}
	return Internal(err)
}
