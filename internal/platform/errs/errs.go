// Package errs consolidates the analysis pipeline's error taxonomy into a
// single kind enum with a retriable bit, classified centrally by the
// workflow engine rather than by call sites.
package errs

import (
	"errors"
	"strings"
)

// Kind identifies the family an error belongs to.
type Kind string

const (
	// Validation kinds — permanent, never retried.
	KindInvalidURL               Kind = "InvalidURL"
	KindUnsupportedFormat        Kind = "UnsupportedFormat"
	KindOversizedDocument        Kind = "OversizedDocument"
	KindInvalidWorkflowDefinition Kind = "InvalidWorkflowDefinition"
	KindSchemaMismatch           Kind = "SchemaMismatch"

	// Transient kinds — retriable.
	KindFetchTimeout        Kind = "FetchTimeout"
	KindConnectionReset     Kind = "ConnectionReset"
	KindDNSFailure          Kind = "DnsFailure"
	KindRateLimited         Kind = "RateLimited"
	KindUpstreamServerError Kind = "UpstreamServerError"
	KindTimedOut            Kind = "TimedOut"

	// Permanent — never retried.
	KindPermanent Kind = "PermanentError"

	// Workflow-level.
	KindTaskTimedOut    Kind = "TaskTimedOut"
	KindTaskFailed      Kind = "TaskFailed"
	KindWorkflowCanceled Kind = "WorkflowCanceled"
	KindCrashed         Kind = "Crashed"

	KindUnknown Kind = "Unknown"
)

var retriableSubstrings = []string{
	"network",
	"timeout",
	"connection",
	"econnrefused",
	"etimedout",
	"enotfound",
	"socket hang up",
	"server responded with a 5",
	"too many requests",
	"rate limit",
}

// TaggedError carries an explicit kind alongside the wrapped cause, used by
// task handlers that know precisely which validation/permanent/transient
// kind applies (e.g. prepare-document's OversizedDocument).
type TaggedError struct {
	Kind  Kind
	Cause error
}

func (e *TaggedError) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *TaggedError) Unwrap() error { return e.Cause }

// New builds a TaggedError of the given kind wrapping msg.
func New(kind Kind, msg string) error {
	return &TaggedError{Kind: kind, Cause: errors.New(msg)}
}

// Wrap builds a TaggedError of the given kind wrapping err.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &TaggedError{Kind: kind, Cause: err}
}

// Classify determines the kind and retriability of err. The workflow engine
// calls it to decide retries and record a failed task's kind, and the HTTP
// layer calls it to pick a status code; task handlers only tag errors with
// New or Wrap.
func Classify(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	var tagged *TaggedError
	if errors.As(err, &tagged) {
		return tagged.Kind, isRetriableKind(tagged.Kind)
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range retriableSubstrings {
		if strings.Contains(msg, substr) {
			return KindTimedOut, true
		}
	}
	return KindUnknown, false
}

func isRetriableKind(k Kind) bool {
	switch k {
	case KindFetchTimeout, KindConnectionReset, KindDNSFailure, KindRateLimited, KindUpstreamServerError, KindTimedOut:
		return true
	default:
		return false
	}
}

// IsValidation reports whether kind belongs to the permanent validation family.
func IsValidation(k Kind) bool {
	switch k {
	case KindInvalidURL, KindUnsupportedFormat, KindOversizedDocument, KindInvalidWorkflowDefinition, KindSchemaMismatch:
		return true
	default:
		return false
	}
}
