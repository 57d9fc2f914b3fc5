package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// GenericErrorMessage is shown when the server did not provide a message.
const GenericErrorMessage = "Something went wrong, please try again"

// ErrStaleResult marks a fetch result discarded because its target no longer
// exists in the current tree.
var ErrStaleResult = errors.New("stale result discarded")

// APIError is returned for any non-2xx Catalog API response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("catalog api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("catalog api error: %d %s", e.Status, e.Message)
}

// TransportError is returned when no response was received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("catalog api transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PreconditionError is returned before any network call when a mutation is
// missing a required id.
type PreconditionError struct {
	Level Level
	Op    Operation
	Field string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s %s: %s is required", e.Op, e.Level, e.Field)
}

func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

func IsPreconditionError(err error) bool {
	var preErr *PreconditionError
	return errors.As(err, &preErr)
}

// UserMessage returns the text for a user-visible failure notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	var preErr *PreconditionError
	if errors.As(err, &preErr) {
		return fmt.Sprintf("Please select a %s", preErr.target())
	}

	return GenericErrorMessage
}

// target names what the user has to pick: the missing parent, or the node
// itself when its own id is missing.
func (e *PreconditionError) target() string {
	switch e.Field {
	case "categoryId":
		return LevelCategory.String()
	case "subcategoryId":
		return LevelSubcategory.String()
	default:
		return e.Level.String()
	}
}
