// ABOUTME: HTTP error taxonomy for the chat API
// ABOUTME: Every failure mode maps to a stable status code and message rendered as {"error": ...}

package api

import "net/http"

// Error is a structured HTTP error with a stable client-facing message.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidJSON   = &Error{Status: http.StatusBadRequest, Message: "Invalid JSON format"}
	ErrMissingData   = &Error{Status: http.StatusBadRequest, Message: "Missing required data"}
	ErrUnauthorized  = &Error{Status: http.StatusUnauthorized, Message: "Unauthorized"}
	ErrUserNotFound  = &Error{Status: http.StatusBadRequest, Message: "User has not been found"}
	ErrInvalidParams = &Error{Status: http.StatusBadRequest, Message: "Invalid parameters"}
	ErrQuotaExceeded = &Error{Status: http.StatusTooManyRequests, Message: "Message limit reached"}
	ErrDatabase      = &Error{Status: http.StatusInternalServerError, Message: "Database error occurred"}
	ErrTimeout       = &Error{Status: http.StatusRequestTimeout, Message: "Request processing timed out"}
	ErrInternal      = &Error{Status: http.StatusInternalServerError, Message: "Internal Server Error"}
	ErrNotFound      = &Error{Status: http.StatusNotFound, Message: "Not Found"}
)
