/*
errors.go - Centralized error types for the reservation engine

PURPOSE:
  All error kinds the engine can return, in one place. Business errors are
  expected outcomes and carry enough context for the caller to retry or
  explain (current balance, slot number, reservation status). Only
  ErrStoreUnavailable is fatal to the in-flight request.

ERROR CATEGORIES:
  1. Lookup errors     - NotFound
  2. Validation errors - InvalidDuration, InvalidAmount, Duplicate
  3. Business errors   - InsufficientFunds, SlotUnavailable, NotActive
  4. Store errors      - StoreUnavailable (caller should retry)

USAGE:
  _, err := svc.Reserve(ctx, req)
  var funds *engine.InsufficientFundsError
  if errors.As(err, &funds) {
      fmt.Printf("balance %s, need %s\n", funds.Balance, funds.Requested)
  }

SEE ALSO:
  - reservation.go: Converts step failures into rollbacks
  - api/handlers.go: Maps errors to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned for an unknown slot, user or reservation.
	ErrNotFound = errors.New("not found")

	// ErrInvalidDuration is returned when the requested duration is not a
	// number of hours in (0, MaxDurationHours].
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidAmount is returned for negative, sub-cent or oversized amounts
	// and non-positive top-ups.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds is returned when a conditional debit finds balance < amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSlotUnavailable is returned when the slot is already occupied.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrNotActive is returned when ending a reservation that is not active.
	ErrNotActive = errors.New("reservation not active")

	// ErrDuplicate is returned when a uniqueness constraint is violated
	// (slot number, username, email).
	ErrDuplicate = errors.New("duplicate")

	// ErrStoreUnavailable is returned when the underlying persistence fails.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names what was missing.
type NotFoundError struct {
	Kind string // "slot", "user", "reservation"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientFundsError provides the balance seen at the moment of the debit.
type InsufficientFundsError struct {
	UserID    UserID
	Balance   Money
	Requested Money
}

func (e *InsufficientFundsError) Shortfall() Money {
	return e.Requested.Sub(e.Balance)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, requested %s, shortfall %s",
		e.Balance, e.Requested, e.Shortfall())
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// SlotUnavailableError identifies the slot that could not be bound.
type SlotUnavailableError struct {
	SlotID SlotID
	Number string
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s (%s) is occupied", e.Number, e.SlotID)
}

func (e *SlotUnavailableError) Unwrap() error { return ErrSlotUnavailable }

// NotActiveError reports the status the reservation was found in.
type NotActiveError struct {
	ReservationID ReservationID
	Status        ReservationStatus
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("reservation %s is %s, not active", e.ReservationID, e.Status)
}

func (e *NotActiveError) Unwrap() error { return ErrNotActive }

// StoreError wraps a persistence failure. It matches ErrStoreUnavailable
// with errors.Is and still exposes the driver error through Unwrap.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsClientError returns true if the error is an expected business outcome.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrDuplicate)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
