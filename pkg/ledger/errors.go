package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies ledger failures
type Kind uint32

const (
	// KindUnknown is any error that did not come from this package
	KindUnknown Kind = iota
	// KindNotFound means the ledger has no record for the job or address
	KindNotFound
	// KindTransient covers timeouts, rate limits and connection failures
	KindTransient
	// KindMalformed means the ledger answered with a record that fails validation
	KindMalformed
	// KindUnavailable means the job enumeration itself failed
	KindUnavailable
)

var kindNames = []string{"unknown", "not_found", "transient", "malformed", "unavailable"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Operation names used in errors and metrics
const (
	OpListJobs    = "list_jobs"
	OpJobDetail   = "job_detail"
	OpAccountInfo = "account_info"
)

// Error is a classified ledger failure
type Error struct {
	Op   string
	Kind Kind
	Key  string // job ID or address, empty for enumeration
	Err  error
}

func (e *Error) Error() string {
	msg := "ledger " + e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, kind Kind, key string, err error) *Error {
	return &Error{Op: op, Kind: kind, Key: key, Err: err}
}

func errorf(op string, kind Kind, key string, format string, args ...interface{}) *Error {
	return newError(op, kind, key, fmt.Errorf(format, args...))
}

// Unavailable wraps a failed enumeration so callers can report it as a
// batch-level failure
func Unavailable(err error) error {
	return newError(OpListJobs, KindUnavailable, "", err)
}

// KindOf returns the kind of the first ledger Error in err's chain. Bare
// context deadline and cancellation errors count as transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindUnknown
}

// IsKind checks that err carries the given kind
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
