package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindConfiguration  ErrorKind = "configuration"
	KindDocumentFormat ErrorKind = "document_format"
	KindRemoteService  ErrorKind = "remote_service"
	KindFilesystem     ErrorKind = "filesystem"
)

// ErrEmptyDocument is wrapped by a DocumentFormatError when a source has no pages.
var ErrEmptyDocument = errors.New("document has no pages")

// Error carries a failure kind along with the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func ConfigurationError(message string, err error) *Error {
	return newError(KindConfiguration, message, err)
}

func DocumentFormatError(message string, err error) *Error {
	return newError(KindDocumentFormat, message, err)
}

func RemoteServiceError(message string, err error) *Error {
	return newError(KindRemoteService, message, err)
}

func FilesystemError(message string, err error) *Error {
	return newError(KindFilesystem, message, err)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
