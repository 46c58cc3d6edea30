package models

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by ResolveError.Is.
var (
	// ErrNotFound is returned when no record backs the requested identifier.
	ErrNotFound = errors.New("not found")

	// ErrInvalid is returned when a record exists but fails normalization.
	ErrInvalid = errors.New("validation problem")
)

type FailureKind int

const (
	KindNotFound FailureKind = iota + 1
	KindInvalid
)

func (k FailureKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "validation problem"
	default:
		return "unknown"
	}
}

// ResolveError is the tagged failure returned by fetchers and citation
// building. Kind decides how the resolution engine reports it.
type ResolveError struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (e *ResolveError) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	case e.Detail != "":
		return e.Detail
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *ResolveError) Unwrap() error { return e.Err }

func (e *ResolveError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvalid:
		return e.Kind == KindInvalid
	}
	return false
}

// NotFound builds a KindNotFound error with a formatted detail.
func NotFound(format string, args ...any) *ResolveError {
	return &ResolveError{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

// Invalid builds a KindInvalid error wrapping the validation failure.
func Invalid(err error, detail string) *ResolveError {
	return &ResolveError{Kind: KindInvalid, Detail: detail, Err: err}
}

// KindOf classifies err. Untagged errors count as not found so that
// collaborator failures never escape a resolution stage.
func KindOf(err error) FailureKind {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindNotFound
}

// UnknownAliasError is returned when a directory name is neither a
// canonical dataset name nor a registered alias.
type UnknownAliasError struct {
	Name string
}

func (e *UnknownAliasError) Error() string {
	return fmt.Sprintf("unknown dataset or alias %q", e.Name)
}
