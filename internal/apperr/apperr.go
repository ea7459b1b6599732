package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrInvalidCriterion reports a malformed selection criterion. It is
	// raised at construction time, never at open time.
	ErrInvalidCriterion = errors.New("invalid criterion")

	// ErrSourceUnavailable reports that the event source has shut down.
	ErrSourceUnavailable = errors.New("event source unavailable")

	// ErrInvalidArgument reports a contract violation such as a negative
	// wait timeout or a nil collaborator.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownResource reports an operation on a reference the registry
	// does not know about.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrNoneAvailable reports that no tracked resource became available
	// within the allowed wait.
	ErrNoneAvailable = errors.New("no resource available")
)

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrInvalidCriterion):
		return "invalid_criterion"

	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"

	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"

	case errors.Is(err, ErrUnknownResource):
		return "unknown_resource"

	case errors.Is(err, ErrNoneAvailable):
		return "none_available"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrInvalidCriterion),
		errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest

	case errors.Is(err, ErrUnknownResource):
		return http.StatusNotFound

	case errors.Is(err, ErrSourceUnavailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, ErrNoneAvailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, context.Canceled):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
