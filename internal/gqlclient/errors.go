package gqlclient

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed GraphQL operation.
type Kind string

const (
	KindNetwork    Kind = "network"    // unreachable endpoint, DNS failure, timeout
	KindHTTP       Kind = "http"       // non-200 status
	KindDecode     Kind = "decode"     // body is not a JSON object
	KindGraphQL    Kind = "graphql"    // response carried an errors array
	KindValidation Kind = "validation" // caller input rejected before any I/O
	KindDatabase   Kind = "database"   // SQL-level failure of the postgres transport
)

// unknownErrorMessage replaces GraphQL errors that carry no message.
const unknownErrorMessage = "Unknown Error"

// Error is the tagged error returned by every Transport. Use errors.As or
// KindOf to branch on Kind.
type Error struct {
	Kind       Kind
	StatusCode int      // KindHTTP only
	Body       string   // KindHTTP only, raw response body
	Messages   []string // KindGraphQL only, one per reported error
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNetwork:
		return "Network request error: " + e.cause()
	case KindHTTP:
		return fmt.Sprintf("HTTP Error: %d - %s", e.StatusCode, e.Body)
	case KindDecode:
		return "JSON parsing error: " + e.cause()
	case KindGraphQL:
		return "GraphQL Error: " + e.Message()
	case KindDatabase:
		return "Database error: " + e.cause()
	default:
		return e.cause()
	}
}

// Message returns the semicolon-joined GraphQL error messages for KindGraphQL
// and the full error string otherwise.
func (e *Error) Message() string {
	if e.Kind == KindGraphQL {
		return strings.Join(e.Messages, "; ")
	}
	return e.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) cause() string {
	if e.Err == nil {
		return string(e.Kind) + " error"
	}
	return e.Err.Error()
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when err
// is not classified.
func KindOf(err error) Kind {
	var gqlErr *Error
	if errors.As(err, &gqlErr) {
		return gqlErr.Kind
	}
	return ""
}

// Validationf returns a KindValidation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

func decodeError(err error) *Error {
	return &Error{Kind: KindDecode, Err: err}
}

func httpError(status int, body []byte) *Error {
	return &Error{Kind: KindHTTP, StatusCode: status, Body: string(body)}
}

func databaseError(err error) *Error {
	return &Error{Kind: KindDatabase, Err: err}
}

// graphQLError builds a KindGraphQL error from the raw value of an "errors"
// key. Any errors key is a failure, even when it is empty or malformed.
func graphQLError(raw []byte) *Error {
	var items []struct {
		Message *string `json:"message"`
	}
	var messages []string
	if err := unmarshalJSON(raw, &items); err == nil {
		for _, item := range items {
			if item.Message == nil {
				messages = append(messages, unknownErrorMessage)
				continue
			}
			messages = append(messages, *item.Message)
		}
	}
	if len(messages) == 0 {
		messages = []string{unknownErrorMessage}
	}
	return &Error{Kind: KindGraphQL, Messages: messages}
}
