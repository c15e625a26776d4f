package engine

import (
	"context"
	"time"
)

// =============================================================================
// SERVICE - Entry point composing the managers over one store
// =============================================================================

// Service is what transports (HTTP, scheduler, scenario loader) talk to.
// Every write goes through a unit of work; reads go straight to the store.
type Service struct {
	store        TxStore
	now          Clock
	newID        IDGenerator
	Slots        *AvailabilityManager
	Wallets      *WalletManager
	Reservations *ReservationWorkflow
	Analytics    *AnalyticsQuery
}

func NewService(store TxStore, opts ...WorkflowOption) *Service {
	workflow := NewReservationWorkflow(store, opts...)
	return &Service{
		store:        store,
		now:          workflow.now,
		newID:        workflow.newID,
		Slots:        NewAvailabilityManager(store),
		Wallets:      NewWalletManager(store, workflow.now, workflow.newID),
		Reservations: workflow,
		Analytics:    NewAnalyticsQuery(store),
	}
}

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Reserve books a slot. See ReservationWorkflow.Reserve.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (Outcome, error) {
	return s.Reservations.Reserve(ctx, req)
}

// EndReservation completes an active reservation and frees its slot.
func (s *Service) EndReservation(ctx context.Context, id ReservationID) (Reservation, error) {
	return s.Reservations.EndReservation(ctx, id)
}

// ExpireOverdue ends reservations whose booked time has run out.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	return s.Reservations.ExpireOverdue(ctx, s.now())
}

// Availability lists slots matching the filter.
func (s *Service) Availability(ctx context.Context, filter SlotFilter) ([]Slot, error) {
	return s.Slots.Search(ctx, filter)
}

// Summary reports current occupancy.
func (s *Service) Summary(ctx context.Context) (AvailabilitySummary, error) {
	return s.Analytics.Summary(ctx)
}

// Report returns the analytics bundle for a date range.
func (s *Service) Report(ctx context.Context, rng Range) (Report, error) {
	return s.Analytics.Report(ctx, rng)
}

// AddSlot provisions a slot, assigning an ID when none is given.
func (s *Service) AddSlot(ctx context.Context, slot Slot) (Slot, error) {
	if slot.ID == "" {
		slot.ID = SlotID(s.newID())
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = s.now()
	}
	var created Slot
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		created, err = NewAvailabilityManager(tx).Provision(ctx, slot)
		return err
	})
	return created, err
}

// AddSlots provisions a batch of slots in one unit. Either all are created
// or none are.
func (s *Service) AddSlots(ctx context.Context, slots []Slot) ([]Slot, error) {
	created := make([]Slot, 0, len(slots))
	err := s.store.WithTx(ctx, func(tx Store) error {
		mgr := NewAvailabilityManager(tx)
		for _, slot := range slots {
			if slot.ID == "" {
				slot.ID = SlotID(s.newID())
			}
			if slot.CreatedAt.IsZero() {
				slot.CreatedAt = s.now()
			}
			c, err := mgr.Provision(ctx, slot)
			if err != nil {
				return err
			}
			created = append(created, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Register creates a user with an opening balance.
func (s *Service) Register(ctx context.Context, user User) (User, error) {
	var created User
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		created, err = NewWalletManager(tx, s.now, s.newID).Register(ctx, user)
		return err
	})
	return created, err
}

// TopUp credits a wallet and records the entry in one unit.
func (s *Service) TopUp(ctx context.Context, id UserID, amount Money) (User, error) {
	var updated User
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		updated, err = NewWalletManager(tx, s.now, s.newID).TopUp(ctx, id, amount)
		return err
	})
	return updated, err
}

// User returns a user by id.
func (s *Service) User(ctx context.Context, id UserID) (User, error) {
	return s.store.GetUser(ctx, id)
}

// Users lists all users.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// ListReservations lists reservations, newest first.
func (s *Service) ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	return s.store.ListReservations(ctx, filter)
}

// Reservation returns one reservation by id.
func (s *Service) Reservation(ctx context.Context, id ReservationID) (Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// WalletHistory lists wallet entries, newest first.
func (s *Service) WalletHistory(ctx context.Context, filter WalletEntryFilter) ([]WalletEntry, error) {
	return s.Wallets.History(ctx, filter)
}

// Payments lists the payment log.
func (s *Service) Payments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	return s.store.ListPayments(ctx, filter)
}
