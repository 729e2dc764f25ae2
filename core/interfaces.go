package core

import "context"

// Notifier is an interface to receive record notifications. The payload is
// the JSON representation of the record after the operation.
type Notifier interface {
	Notify(ctx context.Context, resource string, operation Operation, payload []byte)
}

// Error is a named error with a human readable message. It renders to JSON
// as {"name":..., "message":...} and is passed to clients as is.
type Error struct {
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// NewError returns a named error
func NewError(name, message string) *Error {
	return &Error{Name: name, Message: message}
}
