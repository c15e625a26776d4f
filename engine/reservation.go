/*
reservation.go - Reservation workflow (the transaction engine)

PURPOSE:
  Orchestrates one logical transaction spanning the Wallet Manager, the
  Availability Manager and the Stats Aggregator. All steps commit together
  or the whole unit rolls back; no partial state is ever visible.

STATE MACHINE:
  ┌───────────┐   ┌───────────┐   ┌─────────┐   ┌───────────┐   ┌───────────────┐   ┌───────────┐
  │ Requested │──▶│ Validated │──▶│ Charged │──▶│ SlotBound │──▶│ StatsRecorded │──▶│ Committed │
  └───────────┘   └───────────┘   └─────────┘   └───────────┘   └───────────────┘   └───────────┘
        │               │              │              │                 │
        └───────────────┴──────────────┴──────────────┴─────────────────┴──▶ RolledBack

  1. Requested → Validated: slot and user exist, slot looks free (advisory),
     duration > 0, total = duration_hours × price_per_hour.
  2. Validated → Charged: conditional debit. Failure → InsufficientFunds.
  3. Charged → SlotBound: conditional occupy. Failure → compensating credit,
     SlotUnavailable. Charging before binding means a slot is never marked
     occupied without confirmed funds.
  4. SlotBound → StatsRecorded: atomic bucket upsert.
  5. StatsRecorded → Committed: reservation + payment rows persisted.

UNIT OF WORK:
  Steps 1-5 run inside TxStore.WithTx. Compensations registered after each
  mutating step run in reverse order before the error leaves the unit, so
  rollback has completed by the time the caller sees the error.

OBSERVERS:
  Observers are notified after the unit finishes (committed or rolled
  back). They never run inside the transaction.

ENDING:
  EndReservation requires status=active, sets end time and status=completed
  and releases the slot, in one unit. The amount already charged is kept:
  early termination does not refund.

SEE ALSO:
  - availability.go, wallet.go, stats.go: The three managers
  - store.go: WithTx contract
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// WORKFLOW STATES
// =============================================================================

type WorkflowState string

const (
	StateRequested     WorkflowState = "requested"
	StateValidated     WorkflowState = "validated"
	StateCharged       WorkflowState = "charged"
	StateSlotBound     WorkflowState = "slot_bound"
	StateStatsRecorded WorkflowState = "stats_recorded"
	StateCommitted     WorkflowState = "committed"
	StateRolledBack    WorkflowState = "rolled_back"
)

// MaxDurationHours is the longest booking accepted, thirty days.
const MaxDurationHours = 720

var maxDuration = decimal.NewFromInt(MaxDurationHours)

// ReserveRequest asks for a slot for a number of hours.
type ReserveRequest struct {
	UserID        UserID
	SlotID        SlotID
	DurationHours decimal.Decimal
}

// Outcome is the result of a reservation attempt.
type Outcome struct {
	Reservation Reservation
	Payment     Payment
	State       WorkflowState // StateCommitted or StateRolledBack
	FailedAt    WorkflowState // last state reached before rollback
	Compensated bool          // a compensating action ran before rollback
}

// =============================================================================
// OBSERVERS
// =============================================================================

type EventKind string

const (
	EventReserved      EventKind = "reserved"
	EventReserveFailed EventKind = "reserve_failed"
	EventEnded         EventKind = "ended"
	EventEndFailed     EventKind = "end_failed"
)

// Event describes a finished unit of work.
type Event struct {
	Kind        EventKind
	Reservation Reservation
	State       WorkflowState
	FailedAt    WorkflowState
	Compensated bool
	Err         error
	Elapsed     time.Duration
}

// Observer receives events after the unit of work has finished.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// =============================================================================
// RESERVATION WORKFLOW
// =============================================================================

type ReservationWorkflow struct {
	store     TxStore
	now       Clock
	newID     IDGenerator
	observers []Observer
}

type WorkflowOption func(*ReservationWorkflow)

func WithClock(c Clock) WorkflowOption {
	return func(w *ReservationWorkflow) { w.now = c }
}

func WithIDGenerator(g IDGenerator) WorkflowOption {
	return func(w *ReservationWorkflow) { w.newID = g }
}

func WithObserver(o Observer) WorkflowOption {
	return func(w *ReservationWorkflow) { w.observers = append(w.observers, o) }
}

func NewReservationWorkflow(store TxStore, opts ...WorkflowOption) *ReservationWorkflow {
	w := &ReservationWorkflow{store: store, now: SystemClock, newID: NewID}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reserve runs the full reservation state machine in one unit of work.
func (w *ReservationWorkflow) Reserve(ctx context.Context, req ReserveRequest) (Outcome, error) {
	started := time.Now()
	run := &reservationRun{
		req:   req,
		id:    ReservationID(w.newID()),
		state: StateRequested,
	}

	var err error
	switch {
	case !req.DurationHours.IsPositive():
		err = fmt.Errorf("%w: duration must be > 0 hours, got %s", ErrInvalidDuration, req.DurationHours)
	case req.DurationHours.GreaterThan(maxDuration):
		err = fmt.Errorf("%w: duration must be at most %d hours, got %s", ErrInvalidDuration, MaxDurationHours, req.DurationHours)
	default:
		err = w.store.WithTx(ctx, func(tx Store) error {
			return w.execute(ctx, tx, run)
		})
	}

	if err != nil {
		out := Outcome{State: StateRolledBack, FailedAt: run.state, Compensated: run.compensated}
		w.notify(ctx, Event{
			Kind:        EventReserveFailed,
			Reservation: Reservation{ID: run.id, UserID: req.UserID, SlotID: req.SlotID, DurationHours: req.DurationHours},
			State:       StateRolledBack,
			FailedAt:    run.state,
			Compensated: run.compensated,
			Err:         err,
			Elapsed:     time.Since(started),
		})
		return out, err
	}

	out := Outcome{
		Reservation: run.reservation,
		Payment:     run.payment,
		State:       StateCommitted,
	}
	w.notify(ctx, Event{
		Kind:        EventReserved,
		Reservation: run.reservation,
		State:       StateCommitted,
		Elapsed:     time.Since(started),
	})
	return out, nil
}

// reservationRun carries the progress of one Reserve call.
type reservationRun struct {
	req         ReserveRequest
	id          ReservationID
	state       WorkflowState
	undo        compensations
	compensated bool
	reservation Reservation
	payment     Payment
}

func (w *ReservationWorkflow) execute(ctx context.Context, tx Store, run *reservationRun) (err error) {
	slots := NewAvailabilityManager(tx)
	wallets := NewWalletManager(tx, w.now, w.newID)
	stats := NewStatsAggregator(tx)

	defer func() {
		if err == nil || len(run.undo) == 0 {
			return
		}
		if uerr := run.undo.unwind(ctx); uerr != nil {
			err = errors.Join(err, fmt.Errorf("compensation failed: %w", uerr))
			return
		}
		run.compensated = true
	}()

	req := run.req
	ref := string(run.id)

	// Requested → Validated. Advisory only; TryOccupy below is authoritative.
	slot, err := tx.GetSlot(ctx, req.SlotID)
	if err != nil {
		return err
	}
	if _, err := tx.GetUser(ctx, req.UserID); err != nil {
		return err
	}
	if !slot.Available {
		return &SlotUnavailableError{SlotID: slot.ID, Number: slot.Number}
	}
	total := slot.PricePerHour.MulHours(req.DurationHours)
	run.state = StateValidated

	// Validated → Charged
	if err := wallets.TryDebit(ctx, req.UserID, total, ref); err != nil {
		return err
	}
	run.undo.push("credit", func(ctx context.Context) error {
		return wallets.Credit(ctx, req.UserID, total, EntryCompensation, ref)
	})
	run.state = StateCharged

	// Charged → SlotBound
	if err := slots.TryOccupy(ctx, req.SlotID); err != nil {
		return err
	}
	run.undo.push("release", func(ctx context.Context) error {
		return slots.Release(ctx, req.SlotID)
	})
	run.state = StateSlotBound

	// SlotBound → StatsRecorded
	start := w.now()
	if err := stats.Record(ctx, req.SlotID, start, total); err != nil {
		return err
	}
	run.state = StateStatsRecorded

	// StatsRecorded → Committed (visible once the unit commits)
	reservation := Reservation{
		ID:            run.id,
		UserID:        req.UserID,
		SlotID:        req.SlotID,
		StartTime:     start,
		DurationHours: req.DurationHours,
		TotalAmount:   total,
		PaymentStatus: PaymentCompleted,
		Status:        ReservationActive,
		CreatedAt:     start,
	}
	if err := tx.InsertReservation(ctx, reservation); err != nil {
		return err
	}

	payment := Payment{
		ID:             PaymentID(w.newID()),
		ReservationID:  run.id,
		UserID:         req.UserID,
		Amount:         total,
		Method:         PaymentMethodWallet,
		TransactionRef: NewTransactionRef(),
		Status:         PaymentCompleted,
		CreatedAt:      start,
	}
	if err := tx.InsertPayment(ctx, payment); err != nil {
		return err
	}

	run.reservation = reservation
	run.payment = payment
	return nil
}

// EndReservation completes an active reservation and frees its slot.
// No refund is issued for ending early.
func (w *ReservationWorkflow) EndReservation(ctx context.Context, id ReservationID) (Reservation, error) {
	started := time.Now()
	var ended Reservation

	err := w.store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != ReservationActive {
			return &NotActiveError{ReservationID: id, Status: r.Status}
		}

		end := w.now()
		ok, err := tx.CompleteReservation(ctx, id, end)
		if err != nil {
			return err
		}
		if !ok {
			return &NotActiveError{ReservationID: id, Status: ReservationCompleted}
		}
		if err := NewAvailabilityManager(tx).Release(ctx, r.SlotID); err != nil {
			return err
		}

		r.Status = ReservationCompleted
		r.EndTime = &end
		ended = r
		return nil
	})

	if err != nil {
		w.notify(ctx, Event{
			Kind:        EventEndFailed,
			Reservation: Reservation{ID: id},
			State:       StateRolledBack,
			Err:         err,
			Elapsed:     time.Since(started),
		})
		return Reservation{}, err
	}

	w.notify(ctx, Event{Kind: EventEnded, Reservation: ended, State: StateCommitted, Elapsed: time.Since(started)})
	return ended, nil
}

// ExpireOverdue ends every active reservation whose booked duration ran out
// at or before now. Each one ends in its own unit of work. Reservations
// ended concurrently by someone else are skipped.
func (w *ReservationWorkflow) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	active := ReservationActive
	list, err := w.store.ListReservations(ctx, ReservationFilter{Status: &active})
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, r := range list {
		if r.DueAt().After(now) {
			continue
		}
		if _, err := w.EndReservation(ctx, r.ID); err != nil {
			if errors.Is(err, ErrNotActive) || errors.Is(err, ErrNotFound) {
				continue
			}
			return ended, err
		}
		ended++
	}
	return ended, nil
}

func (w *ReservationWorkflow) notify(ctx context.Context, ev Event) {
	for _, o := range w.observers {
		o.Observe(ctx, ev)
	}
}

// NewTransactionRef generates the external payment transaction id.
func NewTransactionRef() string {
	return "TXN-" + uuid.NewString()
}

// =============================================================================
// COMPENSATIONS
// =============================================================================

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

type compensations []compensation

func (c *compensations) push(name string, undo func(ctx context.Context) error) {
	*c = append(*c, compensation{name: name, undo: undo})
}

// unwind runs every compensation in reverse registration order.
func (c compensations) unwind(ctx context.Context) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c[i].name, err))
		}
	}
	return errors.Join(errs...)
}
