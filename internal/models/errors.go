package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures surfaced to callers
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindNotFound       ErrorKind = "not_found"
	KindInvalidInput   ErrorKind = "invalid_input"
	KindAnalysis       ErrorKind = "analysis"
	KindMalformedGraph ErrorKind = "malformed_graph"
)

// Error is a classified failure with optional repository and workflow context
type Error struct {
	Kind       ErrorKind
	Message    string
	Repository string
	Workflow   string
	Err        error
}

// Sentinels for errors.Is matching by kind
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
	ErrAnalysis       = &Error{Kind: KindAnalysis}
	ErrMalformedGraph = &Error{Kind: KindMalformedGraph}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Repository != "" {
		fmt.Fprintf(&b, " (repository %s", e.Repository)
		if e.Workflow != "" {
			fmt.Fprintf(&b, ", workflow %s", e.Workflow)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a classified error wrapping err
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind, true
	}
	// provider errors map onto kinds through Is
	for _, sentinel := range []*Error{ErrAuthentication, ErrNotFound, ErrInvalidInput, ErrAnalysis, ErrMalformedGraph} {
		if errors.Is(err, sentinel) {
			return sentinel.Kind, true
		}
	}
	return "", false
}
