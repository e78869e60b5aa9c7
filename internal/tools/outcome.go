package tools

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies a failed Outcome.
type ErrorKind string

// Failure kinds.
const (
	KindValidation   ErrorKind = "validation"
	KindUnauthorized ErrorKind = "unauthorized"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindUnknownTool  ErrorKind = "unknown_tool"
	KindTimeout      ErrorKind = "timeout"
	KindInternal     ErrorKind = "internal"
)

const malformed = "operation returned no outcome"

// Outcome is the result of one operation invocation. It has exactly two
// shapes, built by Success and Failure. The zero value is a failure.
type Outcome struct {
	ok      bool
	payload any
	message string
	kind    ErrorKind
	err     string
}

// Success builds a successful Outcome carrying payload and a short
// display message.
func Success(payload any, message string) Outcome {
	return Outcome{ok: true, payload: payload, message: message}
}

// Failure builds a failed Outcome. message is the user-facing text; when
// empty the error text is used.
func Failure(kind ErrorKind, err, message string) Outcome {
	if kind == "" {
		kind = KindInternal
	}
	if message == "" {
		message = err
	}
	return Outcome{kind: kind, err: err, message: message}
}

// Failuref builds a failed Outcome whose message and error text match.
func Failuref(kind ErrorKind, format string, args ...any) Outcome {
	msg := fmt.Sprintf(format, args...)
	return Failure(kind, msg, msg)
}

// OK reports whether the operation succeeded.
func (o Outcome) OK() bool { return o.ok }

// Payload returns the success payload, or nil for failures.
func (o Outcome) Payload() any {
	if !o.ok {
		return nil
	}
	return o.payload
}

// Message returns the display message.
func (o Outcome) Message() string {
	if !o.ok && o.kind == "" {
		return malformed
	}
	return o.message
}

// Err returns the error text of a failure, or "" on success.
func (o Outcome) Err() string {
	if o.ok {
		return ""
	}
	if o.kind == "" {
		return malformed
	}
	return o.err
}

// Kind returns the failure kind, or "" on success.
func (o Outcome) Kind() ErrorKind {
	if o.ok {
		return ""
	}
	if o.kind == "" {
		return KindInternal
	}
	return o.kind
}

type outcomeJSON struct {
	Success bool      `json:"success"`
	Payload any       `json:"payload,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
}

// MarshalJSON renders the two wire shapes
// {success:true,payload,message} and {success:false,error,kind,message}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.ok {
		return json.Marshal(outcomeJSON{Success: true, Payload: o.payload, Message: o.message})
	}
	return json.Marshal(outcomeJSON{Error: o.Err(), Kind: o.Kind(), Message: o.Message()})
}
