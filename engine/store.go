/*
store.go - Persistence interfaces for the reservation engine

PURPOSE:
  Defines the boundary between the engine and the database. Each manager
  depends only on the narrow interface it needs; Store is the union and
  TxStore adds the unit-of-work scope the reservation workflow runs in.

CONDITIONAL UPDATE CONTRACT:
  Slot and wallet rows are the only shared mutable resources. Their write
  methods are single conditional statements, never read-then-write:
  - OccupySlot:    UPDATE ... SET available=0 WHERE id=? AND available=1
  - DebitBalance:  UPDATE ... SET balance=balance-? WHERE id=? AND balance>=?
  - IncrementUtilization: one upsert that adds to the bucket counters
  A "false" result means the condition did not hold (or the row is missing);
  the caller disambiguates with a follow-up read.

UNIT OF WORK:
  TxStore.WithTx runs fn against a transactional view. If fn returns an
  error every mutation made through that view is discarded; if it returns
  nil all of them become visible together.

APPEND-ONLY:
  Payments and wallet entries are never updated or deleted.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - engine/store/memory.go: In-memory for testing

SEE ALSO:
  - reservation.go: The only caller of WithTx for reservations
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// NARROW STORES - One per manager
// =============================================================================

// SlotStore persists slots. Only the Availability Manager flips Available.
type SlotStore interface {
	CreateSlot(ctx context.Context, slot Slot) error
	GetSlot(ctx context.Context, id SlotID) (Slot, error)
	ListSlots(ctx context.Context, filter SlotFilter) ([]Slot, error)

	// OccupySlot marks the slot occupied only if it is currently free.
	// Returns false when the slot is occupied or does not exist.
	OccupySlot(ctx context.Context, id SlotID) (bool, error)

	// ReleaseSlot marks the slot free. Returns false when the slot does not exist.
	ReleaseSlot(ctx context.Context, id SlotID) (bool, error)
}

// WalletStore persists users and their balances.
type WalletStore interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id UserID) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// DebitBalance subtracts amount only if balance >= amount.
	// Returns false when funds are short or the user does not exist.
	DebitBalance(ctx context.Context, id UserID, amount Money) (bool, error)

	// CreditBalance adds amount. Returns false when the user does not exist.
	CreditBalance(ctx context.Context, id UserID, amount Money) (bool, error)

	AppendWalletEntry(ctx context.Context, entry WalletEntry) error
	ListWalletEntries(ctx context.Context, filter WalletEntryFilter) ([]WalletEntry, error)
}

// ReservationStore persists reservations and their payments.
type ReservationStore interface {
	InsertReservation(ctx context.Context, r Reservation) error
	GetReservation(ctx context.Context, id ReservationID) (Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)

	// CompleteReservation moves an active reservation to completed.
	// Returns false when the reservation is missing or not active.
	CompleteReservation(ctx context.Context, id ReservationID, endTime time.Time) (bool, error)

	InsertPayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
}

// StatsStore persists hourly utilization buckets.
type StatsStore interface {
	// IncrementUtilization adds one occupancy and amount to the bucket,
	// creating it when absent. Must be a single atomic statement.
	IncrementUtilization(ctx context.Context, key StatKey, amount Money) error
	ListUtilization(ctx context.Context, rng Range) ([]UtilizationStat, error)
}

// =============================================================================
// STORE - Union of all stores
// =============================================================================

type Store interface {
	SlotStore
	WalletStore
	ReservationStore
	StatsStore
}

// TxStore wraps Store with unit-of-work support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
