// Package apperrors implements the abstract error taxonomy every scheduler
// reacts to at its tick boundary: StorageUnavailable, DataInsufficient,
// ConfigInvalid, ExternalDispatchFailed, IntegrityViolation, and Bug.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is one of the six abstract error kinds.
type Kind string

const (
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindDataInsufficient    Kind = "data_insufficient"
	KindConfigInvalid       Kind = "config_invalid"
	KindExternalDispatch    Kind = "external_dispatch_failed"
	KindIntegrityViolation  Kind = "integrity_violation"
	KindBug                 Kind = "bug"
)

// AppError carries a Kind plus the symbol/key context a scheduler needs to
// decide whether to skip, sleep-and-retry, or exit.
type AppError struct {
	Kind   Kind
	Symbol string
	Err    error
}

func (e *AppError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newErr(kind Kind, symbol string, err error) *AppError {
	return &AppError{Kind: kind, Symbol: symbol, Err: err}
}

// StorageUnavailable wraps a transient database failure.
func StorageUnavailable(err error) error { return newErr(KindStorageUnavailable, "", err) }

// DataInsufficient wraps a skip-silently condition for a specific symbol.
func DataInsufficient(symbol string, err error) error {
	return newErr(KindDataInsufficient, symbol, err)
}

// ConfigInvalid wraps a fatal startup configuration problem.
func ConfigInvalid(err error) error { return newErr(KindConfigInvalid, "", err) }

// ExternalDispatchFailed wraps an alert or ticker HTTP failure.
func ExternalDispatchFailed(symbol string, err error) error {
	return newErr(KindExternalDispatch, symbol, err)
}

// IntegrityViolation wraps a uniqueness-conflict insert outcome.
func IntegrityViolation(err error) error { return newErr(KindIntegrityViolation, "", err) }

// Bug wraps an unhandled engine condition; callers log with symbol and stack
// then skip the symbol and continue the tick.
func Bug(symbol string, err error) error { return newErr(KindBug, symbol, err) }

// Is reports whether the first *AppError in err's chain has the given Kind;
// AppErrors wrapped further down the chain are not examined.
func Is(err error, kind Kind) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
