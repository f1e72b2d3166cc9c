// Package uerr defines the error taxonomy shared by every UNS component.
//
// Errors are plain values, never exceptions: callers use uerr.Is with one
// of the Kind constants below, or errors.As against *Error, instead of
// unwinding a stack.
package uerr

import "fmt"

// Kind identifies one of the error categories in spec §7.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindAuth           Kind = "AuthError"
	KindPoolExhausted  Kind = "PoolExhausted"
	KindTransient      Kind = "TransientNetwork"
	KindPermanentPost  Kind = "PermanentPostFailure"
	KindIntegrity      Kind = "IntegrityError"
	KindUnrecoverable  Kind = "UnrecoverableSegmentError"
	KindConflict       Kind = "ConflictError"
	KindStorageFull    Kind = "StorageFull"
	KindCancel         Kind = "CancelError"
)

// Error is the concrete error type carried through every component
// boundary. Detail never contains secrets (passwords, tokens, keys) — see
// Wrap's contract.
type Error struct {
	Kind   Kind
	Op     string // component/operation that raised it, e.g. "store.AddFolder"
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error. detail must never contain a password,
// proof, session token, or key — only non-secret context (paths, ids).
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Wrap attaches a Kind to an underlying error; detail is the non-secret
// summary. Error() includes the underlying error's message as well.
func Wrap(kind Kind, op, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}

// Recoverable reports whether the kind's documented semantics (§7) allow
// the caller to retry the same operation directly (as opposed to needing a
// different input, a different host, or giving up entirely).
func (k Kind) Recoverable() bool {
	switch k {
	case KindPoolExhausted, KindTransient:
		return true
	default:
		return false
	}
}

// Item is one failed unit of work inside a batch Result.
type Item struct {
	Name   string
	Kind   Kind
	Detail string
}

// Result is the structured outcome of a worker-pool operation (§7):
// "the caller receives a structured result { completed, failed: [...] }".
type Result struct {
	Completed int
	Failed    []Item
}

func (r *Result) AddFailure(name string, kind Kind, detail string) {
	r.Failed = append(r.Failed, Item{Name: name, Kind: kind, Detail: detail})
}

func (r *Result) AddSuccess() {
	r.Completed++
}
