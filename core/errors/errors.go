// Package errors defines the typed error taxonomy from spec.md section 7.
// Every fallible core operation returns one of these kinds wrapped in a
// CoreError, never a bare exception-style panic across a component boundary.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a core error for callers that need to branch on recovery
// strategy (reject-and-surface, retry-with-backoff, fatal-at-startup, ...).
type Kind string

const (
	KindInvalidSignature      Kind = "InvalidSignature"
	KindInvalidNonce          Kind = "InvalidNonce"
	KindStaleTimestamp        Kind = "StaleTimestamp"
	KindInsufficientBalance   Kind = "InsufficientBalance"
	KindDuplicateTx           Kind = "DuplicateTx"
	KindMempoolFull           Kind = "MempoolFull"
	KindBlockValidationFailed Kind = "BlockValidationFailed"
	KindDoubleSign            Kind = "DoubleSign"
	KindByzantineBehavior     Kind = "ByzantineBehavior"
	KindForkDetected          Kind = "ForkDetected"
	KindStoreFailure          Kind = "StoreFailure"
	KindTransportFailure      Kind = "TransportFailure"
	KindConfigError           Kind = "ConfigError"
)

// CoreError is the typed result every fallible core operation returns.
type CoreError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// New constructs a CoreError of the given kind.
func New(kind Kind, op string, err error) *CoreError {
	return &CoreError{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a CoreError of the given kind, walking the
// wrap chain like errors.Is.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
