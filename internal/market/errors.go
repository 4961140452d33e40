package market

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed request synchronously: bad tier index,
// non-positive offer, missing record. No state is mutated.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// FundsError reports a failed ledger debit. The triggering operation must be
// fully rolled back before this surfaces.
type FundsError struct {
	OwnerID string
	Amount  float64
	Err     error
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("insufficient funds: owner %s needs %.0f: %v", e.OwnerID, e.Amount, e.Err)
}

func (e *FundsError) Unwrap() error {
	return e.Err
}

// IsFunds reports whether err is a FundsError.
func IsFunds(err error) bool {
	var fe *FundsError
	return errors.As(err, &fe)
}

// RaceError marks a second action against an already-resolved record. Treated
// as a no-op with an "already handled" notification, never a crash.
type RaceError struct {
	Reason string
}

func (e *RaceError) Error() string {
	return "already handled: " + e.Reason
}

// IsRace reports whether err is a RaceError.
func IsRace(err error) bool {
	var re *RaceError
	return errors.As(err, &re)
}

// CorruptRecordError marks a save record that failed to load. The record is
// dropped and logged; the rest of the load continues.
type CorruptRecordError struct {
	Record string
	Err    error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record %s: %v", e.Record, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}
