package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConversationBusy     = errors.New("a reply is already in progress for this conversation")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrLastConversation     = errors.New("at least one conversation must be kept")
	ErrNotLoggedIn          = errors.New("not logged in")
	ErrInvalidInput         = errors.New("invalid input")
)

// TransportErrorKind classifies transport failures
type TransportErrorKind string

const (
	TransportConnect   TransportErrorKind = "connect"
	TransportStatus    TransportErrorKind = "status"
	TransportRead      TransportErrorKind = "read"
	TransportEmptyBody TransportErrorKind = "empty_body"
	TransportMalformed TransportErrorKind = "malformed"
	TransportTimeout   TransportErrorKind = "timeout"
	TransportDecode    TransportErrorKind = "decode"
)

// TransportError reports a failure to exchange bytes with the backend:
// the connection could not be opened, the status was not a success code,
// the body was empty or unparseable, or a read failed mid-stream.
type TransportError struct {
	Op     string
	Kind   TransportErrorKind
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Kind == TransportStatus:
		return fmt.Sprintf("%s: unexpected HTTP status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BackendError reports a well-formed response that signals a logical failure
type BackendError struct {
	Op      string
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return e.Op + ": request rejected by server"
	}
	return e.Op + ": " + e.Message
}

// DecodeError reports a malformed byte sequence in a streamed body
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed UTF-8 at byte %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is, or wraps, a TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsBackend reports whether err is, or wraps, a BackendError
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// Describe returns the message a user should see for err: the server-supplied
// text for backend failures and the error text otherwise.
func Describe(err error) string {
	var be *BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return err.Error()
}
