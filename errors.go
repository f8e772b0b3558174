package snd

import (
	"fmt"
	"strings"
)

// Kind categorizes an Error.
type Kind string

const (
	KindConversion       Kind = "conversion"        // command value matches no accepted shape
	KindType             Kind = "type"              // field accessor given the wrong kind of value
	KindNativeAllocation Kind = "native_allocation" // driver refused to create a channel
	KindCallback         Kind = "callback"          // a registered callback failed during dispatch
	KindClosed           Kind = "closed"            // object already torn down
)

// Error is the structured error returned by the binding layer.
type Error struct {
	Value  any
	Cause  error
	Op     string
	Kind   Kind
	Detail string
}

// Sentinels for errors.Is. Matching compares Kind only.
var (
	ErrConversion       = &Error{Kind: KindConversion}
	ErrType             = &Error{Kind: KindType}
	ErrNativeAllocation = &Error{Kind: KindNativeAllocation}
	ErrCallback         = &Error{Kind: KindCallback}
	ErrClosed           = &Error{Kind: KindClosed}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString("snd: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}

	return false
}

func conversionError(v any, format string, args ...any) *Error {
	return &Error{
		Op:     "decode command",
		Kind:   KindConversion,
		Value:  v,
		Detail: fmt.Sprintf(format, args...),
	}
}

func typeError(field string, v any, format string, args ...any) *Error {
	return &Error{
		Op:     "set " + field,
		Kind:   KindType,
		Value:  v,
		Detail: fmt.Sprintf(format, args...),
	}
}

func callbackError(op string, cause error) *Error {
	return &Error{
		Op:    op,
		Kind:  KindCallback,
		Cause: cause,
	}
}

func closedError(op string) *Error {
	return &Error{
		Op:   op,
		Kind: KindClosed,
	}
}
