package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies protocol failures for clients.
type ErrorKind string

const (
	KindMissingCredential ErrorKind = "MissingCredential"
	KindInvalidCredential ErrorKind = "InvalidCredential"
	KindValidation        ErrorKind = "ValidationError"
	KindInvalidMessage    ErrorKind = "InvalidMessage"
	KindNotInRoom         ErrorKind = "NotInRoom"
	KindPersistence       ErrorKind = "PersistenceError"
	KindInternal          ErrorKind = "InternalError"
)

// ChatError is returned by protocol handlers. It is reported to the
// originating session only and never closes the connection.
type ChatError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

func NewValidationError(message string) *ChatError {
	return &ChatError{Kind: KindValidation, Message: message}
}

func NewInvalidMessageError(message string) *ChatError {
	return &ChatError{Kind: KindInvalidMessage, Message: message}
}

func NewNotInRoomError(roomID string) *ChatError {
	return &ChatError{Kind: KindNotInRoom, Message: fmt.Sprintf("not joined to room %q", roomID)}
}

// NewPersistenceError hides err from the client; the message is generic and
// the cause is kept for server-side logging.
func NewPersistenceError(message string, err error) *ChatError {
	return &ChatError{Kind: KindPersistence, Message: message, Err: err}
}

// ToErrorMessage converts any handler error into the outbound error event.
func ToErrorMessage(err error) *ErrorMessage {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return NewErrorMessage(chatErr.Kind, chatErr.Message)
	}
	return NewErrorMessage(KindInternal, "internal server error")
}

// KindOf returns the error kind, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	return KindInternal
}
