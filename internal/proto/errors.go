package proto

import (
	"errors"
	"strings"
)

var (
	ErrSyntax       = errors.New("malformed json")
	ErrNotObject    = errors.New("message is not a json object")
	ErrMissingTag   = errors.New("missing message type")
	ErrUnknownTag   = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field value")

	ErrNilMessage       = errors.New("nil message")
	ErrUnknownVariant   = errors.New("unknown message variant")
	ErrUnsupportedValue = errors.New("value cannot be represented")
)

// DecodeError is the only error returned by the Decode functions. Err is one of
// the decode sentinels above; Cause carries the underlying json error when there
// is one.
type DecodeError struct {
	Type   string
	Field  string
	Err    error
	Cause  error
	Detail string
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("decode")
	if e.Type != "" {
		b.WriteString(" ")
		b.WriteString(e.Type)
	}
	if e.Field != "" {
		b.WriteString(" field ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// EncodeError reports a value that has no wire representation.
type EncodeError struct {
	Type  string
	Field string
	Err   error
	Cause error
}

func (e *EncodeError) Error() string {
	var b strings.Builder
	b.WriteString("encode")
	if e.Type != "" {
		b.WriteString(" ")
		b.WriteString(e.Type)
	}
	if e.Field != "" {
		b.WriteString(" field ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *EncodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
