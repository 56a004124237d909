// Package kverr holds the error taxonomy shared by every layer of the store.
// Each failure carries exactly one Kind so callers can branch on it without
// string matching.
package kverr

import (
	"errors"
	"fmt"
	"strings"

	"slackdb/pkg/models"
)

type Kind int

const (
	// Config: server or scope not configured.
	Config Kind = iota + 1
	// Schema: key phrase or value text collides with the schema grammar.
	Schema
	// NotFound: no matching key, empty thread, or unknown channel name.
	NotFound
	// Forbidden: modifier policy violation.
	Forbidden
	// Upstream: substrate call failed or paginated badly.
	Upstream
	// PartialFailure: a wipe finished with one or more failed deletes.
	PartialFailure
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config_error"
	case Schema:
		return "schema_error"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Upstream:
		return "upstream_error"
	case PartialFailure:
		return "partial_failure"
	}
	return "unknown_error"
}

// Error is the single error type returned across the public surface.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
	// Results is set for PartialFailure and lists every delete outcome.
	Results []models.DeleteResult
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
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

// Errorf builds an error of the given kind.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. An err that already carries a Kind keeps
// it, so wrapping twice never reclassifies a failure.
func Wrap(kind Kind, op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var ke *Error
	if errors.As(err, &ke) {
		return err
	}
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Partial reports a wipe with failures; failed counts the failing deletes.
func Partial(op string, results []models.DeleteResult) *Error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	return &Error{
		Kind:    PartialFailure,
		Op:      op,
		Msg:     fmt.Sprintf("%d of %d deletes failed", failed, len(results)),
		Results: results,
	}
}

// KindOf returns the kind of err, or 0 when err carries none.
func KindOf(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
