/*
Package engine provides the parking reservation transaction engine.

PURPOSE:
  Tracks slot occupancy, charges prepaid wallets for reservations and folds
  every committed reservation into hourly utilization counters. The engine
  owns the correctness-critical part of the system: a reservation either
  debits the wallet, binds the slot, records stats and persists its
  reservation + payment rows, or it does none of those things.

KEY CONCEPTS IN THIS FILE (types.go):
  - Slot: a physical parking space with price, type and occupancy flag
  - User: a driver with a prepaid wallet balance
  - Reservation: a time-bounded claim on one slot by one user
  - Payment: append-only audit record of a reservation charge
  - UtilizationStat: hourly per-slot aggregate of occupancy and revenue
  - WalletEntry: append-only audit record of every wallet mutation

DESIGN PRINCIPLES:
  1. Shared rows (slots, wallets) change only through conditional updates
  2. One unit of work per reservation (see store.go TxStore)
  3. Precision: Money is fixed-point, never float
  4. Components are composed by injection, not by shared internal state

SEE ALSO:
  - store.go: Persistence interfaces and the unit-of-work contract
  - reservation.go: The reservation state machine
  - errors.go: Error taxonomy
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SlotID string
type UserID string
type ReservationID string
type PaymentID string

// =============================================================================
// SLOT
// =============================================================================

type SlotType string

const (
	SlotRegular  SlotType = "regular"
	SlotHandicap SlotType = "handicap"
	SlotVIP      SlotType = "vip"
	SlotElectric SlotType = "electric"
)

// SlotTypes lists every supported slot type.
var SlotTypes = []SlotType{SlotRegular, SlotHandicap, SlotVIP, SlotElectric}

func (t SlotType) Valid() bool {
	for _, st := range SlotTypes {
		if st == t {
			return true
		}
	}
	return false
}

// Slot is a physical parking space.
// Available is the single source of truth for occupancy.
type Slot struct {
	ID           SlotID
	Number       string // human slot number, unique (e.g. "A-101")
	Floor        int
	Zone         string
	Type         SlotType
	PricePerHour Money
	Available    bool
	CreatedAt    time.Time
}

// SlotFilter narrows a slot listing. Nil fields do not filter.
type SlotFilter struct {
	Floor         *int
	Zone          *string
	Type          *SlotType
	MaxPrice      *Money
	OnlyAvailable bool
}

// Matches reports whether the slot passes the filter.
func (f SlotFilter) Matches(s Slot) bool {
	if f.OnlyAvailable && !s.Available {
		return false
	}
	if f.Floor != nil && s.Floor != *f.Floor {
		return false
	}
	if f.Zone != nil && s.Zone != *f.Zone {
		return false
	}
	if f.Type != nil && s.Type != *f.Type {
		return false
	}
	if f.MaxPrice != nil && s.PricePerHour.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}

// =============================================================================
// USER / WALLET
// =============================================================================

// User is a driver with a prepaid wallet. Balance never goes negative.
type User struct {
	ID            UserID
	Username      string
	Email         string
	Phone         string
	VehicleNumber string
	Balance       Money
	CreatedAt     time.Time
}

type WalletEntryKind string

const (
	EntryTopUp        WalletEntryKind = "topup"
	EntryCharge       WalletEntryKind = "charge"
	EntryCompensation WalletEntryKind = "compensation"
)

// WalletEntry is an append-only record of one wallet mutation.
// Amount is signed: charges are negative, top-ups and compensations positive.
type WalletEntry struct {
	ID          string
	UserID      UserID
	Kind        WalletEntryKind
	Amount      Money
	ReferenceID string
	CreatedAt   time.Time
}

type WalletEntryFilter struct {
	UserID *UserID
	Limit  int
}

// =============================================================================
// RESERVATION / PAYMENT
// =============================================================================

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Reservation binds one user to one slot for a number of hours.
// While Status is active the referenced slot must show occupied.
type Reservation struct {
	ID            ReservationID
	UserID        UserID
	SlotID        SlotID
	StartTime     time.Time
	EndTime       *time.Time
	DurationHours decimal.Decimal
	TotalAmount   Money
	PaymentStatus PaymentStatus
	Status        ReservationStatus
	CreatedAt     time.Time
}

// DueAt is when the booked duration runs out.
func (r Reservation) DueAt() time.Time {
	minutes := r.DurationHours.Mul(decimal.NewFromInt(60)).Round(0).IntPart()
	return r.StartTime.Add(time.Duration(minutes) * time.Minute)
}

type ReservationFilter struct {
	UserID *UserID
	SlotID *SlotID
	Status *ReservationStatus
	Limit  int
}

const PaymentMethodWallet = "wallet"

// Payment is the audit record of a reservation charge. Never mutated.
type Payment struct {
	ID             PaymentID
	ReservationID  ReservationID
	UserID         UserID
	Amount         Money
	Method         string
	TransactionRef string
	Status         PaymentStatus
	CreatedAt      time.Time
}

type PaymentFilter struct {
	ReservationID *ReservationID
	UserID        *UserID
}

// =============================================================================
// UTILIZATION
// =============================================================================

// StatKey identifies one utilization bucket. Unique per (slot, date, hour).
type StatKey struct {
	SlotID SlotID
	Date   string // YYYY-MM-DD
	Hour   int    // 0-23
}

// UtilizationStat is the cumulative occupancy and revenue of a bucket.
type UtilizationStat struct {
	StatKey
	OccupancyCount int64
	Revenue        Money
}
