// Package store provides in-process engine.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/parking-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every table in maps guarded by one RWMutex. Conditional
// updates run under the write lock, which makes them atomic the same way a
// single UPDATE ... WHERE is atomic in SQL.
type Memory struct {
	mu sync.RWMutex
	st *state
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

func (m *Memory) CreateSlot(_ context.Context, slot engine.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createSlot(slot)
}

func (m *Memory) GetSlot(_ context.Context, id engine.SlotID) (engine.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getSlot(id)
}

func (m *Memory) ListSlots(_ context.Context, filter engine.SlotFilter) ([]engine.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listSlots(filter), nil
}

func (m *Memory) OccupySlot(_ context.Context, id engine.SlotID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.occupySlot(id), nil
}

func (m *Memory) ReleaseSlot(_ context.Context, id engine.SlotID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.releaseSlot(id), nil
}

func (m *Memory) CreateUser(_ context.Context, user engine.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createUser(user)
}

func (m *Memory) GetUser(_ context.Context, id engine.UserID) (engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getUser(id)
}

func (m *Memory) ListUsers(_ context.Context) ([]engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listUsers(), nil
}

func (m *Memory) DebitBalance(_ context.Context, id engine.UserID, amount engine.Money) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.debit(id, amount), nil
}

func (m *Memory) CreditBalance(_ context.Context, id engine.UserID, amount engine.Money) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.credit(id, amount), nil
}

func (m *Memory) AppendWalletEntry(_ context.Context, entry engine.WalletEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.entries = append(m.st.entries, entry)
	return nil
}

func (m *Memory) ListWalletEntries(_ context.Context, filter engine.WalletEntryFilter) ([]engine.WalletEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listEntries(filter), nil
}

func (m *Memory) InsertReservation(_ context.Context, r engine.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertReservation(r)
}

func (m *Memory) GetReservation(_ context.Context, id engine.ReservationID) (engine.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getReservation(id)
}

func (m *Memory) ListReservations(_ context.Context, filter engine.ReservationFilter) ([]engine.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listReservations(filter), nil
}

func (m *Memory) CompleteReservation(_ context.Context, id engine.ReservationID, end time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.completeReservation(id, end), nil
}

func (m *Memory) InsertPayment(_ context.Context, p engine.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertPayment(p)
}

func (m *Memory) ListPayments(_ context.Context, filter engine.PaymentFilter) ([]engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listPayments(filter), nil
}

func (m *Memory) IncrementUtilization(_ context.Context, key engine.StatKey, amount engine.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.increment(key, amount)
	return nil
}

func (m *Memory) ListUtilization(_ context.Context, rng engine.Range) ([]engine.UtilizationStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listUtilization(rng), nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole unit, so units are serialized.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()

	if err := fn(&txMemoryView{st: tm.st}); err != nil {
		tm.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

// txMemoryView is the store handed to fn inside WithTx. The caller already
// holds the lock, so the view touches state directly.
type txMemoryView struct {
	st *state
}

func (v *txMemoryView) CreateSlot(_ context.Context, slot engine.Slot) error {
	return v.st.createSlot(slot)
}

func (v *txMemoryView) GetSlot(_ context.Context, id engine.SlotID) (engine.Slot, error) {
	return v.st.getSlot(id)
}

func (v *txMemoryView) ListSlots(_ context.Context, filter engine.SlotFilter) ([]engine.Slot, error) {
	return v.st.listSlots(filter), nil
}

func (v *txMemoryView) OccupySlot(_ context.Context, id engine.SlotID) (bool, error) {
	return v.st.occupySlot(id), nil
}

func (v *txMemoryView) ReleaseSlot(_ context.Context, id engine.SlotID) (bool, error) {
	return v.st.releaseSlot(id), nil
}

func (v *txMemoryView) CreateUser(_ context.Context, user engine.User) error {
	return v.st.createUser(user)
}

func (v *txMemoryView) GetUser(_ context.Context, id engine.UserID) (engine.User, error) {
	return v.st.getUser(id)
}

func (v *txMemoryView) ListUsers(_ context.Context) ([]engine.User, error) {
	return v.st.listUsers(), nil
}

func (v *txMemoryView) DebitBalance(_ context.Context, id engine.UserID, amount engine.Money) (bool, error) {
	return v.st.debit(id, amount), nil
}

func (v *txMemoryView) CreditBalance(_ context.Context, id engine.UserID, amount engine.Money) (bool, error) {
	return v.st.credit(id, amount), nil
}

func (v *txMemoryView) AppendWalletEntry(_ context.Context, entry engine.WalletEntry) error {
	v.st.entries = append(v.st.entries, entry)
	return nil
}

func (v *txMemoryView) ListWalletEntries(_ context.Context, filter engine.WalletEntryFilter) ([]engine.WalletEntry, error) {
	return v.st.listEntries(filter), nil
}

func (v *txMemoryView) InsertReservation(_ context.Context, r engine.Reservation) error {
	return v.st.insertReservation(r)
}

func (v *txMemoryView) GetReservation(_ context.Context, id engine.ReservationID) (engine.Reservation, error) {
	return v.st.getReservation(id)
}

func (v *txMemoryView) ListReservations(_ context.Context, filter engine.ReservationFilter) ([]engine.Reservation, error) {
	return v.st.listReservations(filter), nil
}

func (v *txMemoryView) CompleteReservation(_ context.Context, id engine.ReservationID, end time.Time) (bool, error) {
	return v.st.completeReservation(id, end), nil
}

func (v *txMemoryView) InsertPayment(_ context.Context, p engine.Payment) error {
	return v.st.insertPayment(p)
}

func (v *txMemoryView) ListPayments(_ context.Context, filter engine.PaymentFilter) ([]engine.Payment, error) {
	return v.st.listPayments(filter), nil
}

func (v *txMemoryView) IncrementUtilization(_ context.Context, key engine.StatKey, amount engine.Money) error {
	v.st.increment(key, amount)
	return nil
}

func (v *txMemoryView) ListUtilization(_ context.Context, rng engine.Range) ([]engine.UtilizationStat, error) {
	return v.st.listUtilization(rng), nil
}

// =============================================================================
// STATE - Lock-free tables, callers synchronize
// =============================================================================

type state struct {
	slots        map[engine.SlotID]engine.Slot
	users        map[engine.UserID]engine.User
	reservations map[engine.ReservationID]engine.Reservation
	payments     []engine.Payment
	entries      []engine.WalletEntry
	stats        map[engine.StatKey]engine.UtilizationStat
}

func newState() *state {
	return &state{
		slots:        make(map[engine.SlotID]engine.Slot),
		users:        make(map[engine.UserID]engine.User),
		reservations: make(map[engine.ReservationID]engine.Reservation),
		stats:        make(map[engine.StatKey]engine.UtilizationStat),
	}
}

func (s *state) clone() *state {
	c := &state{
		slots:        make(map[engine.SlotID]engine.Slot, len(s.slots)),
		users:        make(map[engine.UserID]engine.User, len(s.users)),
		reservations: make(map[engine.ReservationID]engine.Reservation, len(s.reservations)),
		payments:     append([]engine.Payment(nil), s.payments...),
		entries:      append([]engine.WalletEntry(nil), s.entries...),
		stats:        make(map[engine.StatKey]engine.UtilizationStat, len(s.stats)),
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.stats {
		c.stats[k] = v
	}
	return c
}

func (s *state) createSlot(slot engine.Slot) error {
	if _, ok := s.slots[slot.ID]; ok {
		return engine.ErrDuplicate
	}
	for _, existing := range s.slots {
		if existing.Number == slot.Number {
			return engine.ErrDuplicate
		}
	}
	s.slots[slot.ID] = slot
	return nil
}

func (s *state) getSlot(id engine.SlotID) (engine.Slot, error) {
	slot, ok := s.slots[id]
	if !ok {
		return engine.Slot{}, &engine.NotFoundError{Kind: "slot", ID: string(id)}
	}
	return slot, nil
}

func (s *state) listSlots(filter engine.SlotFilter) []engine.Slot {
	result := make([]engine.Slot, 0, len(s.slots))
	for _, slot := range s.slots {
		if filter.Matches(slot) {
			result = append(result, slot)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Floor != result[j].Floor {
			return result[i].Floor < result[j].Floor
		}
		return result[i].Number < result[j].Number
	})
	return result
}

func (s *state) occupySlot(id engine.SlotID) bool {
	slot, ok := s.slots[id]
	if !ok || !slot.Available {
		return false
	}
	slot.Available = false
	s.slots[id] = slot
	return true
}

func (s *state) releaseSlot(id engine.SlotID) bool {
	slot, ok := s.slots[id]
	if !ok {
		return false
	}
	slot.Available = true
	s.slots[id] = slot
	return true
}

func (s *state) createUser(user engine.User) error {
	if _, ok := s.users[user.ID]; ok {
		return engine.ErrDuplicate
	}
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return engine.ErrDuplicate
		}
		if user.Email != "" && existing.Email == user.Email {
			return engine.ErrDuplicate
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *state) getUser(id engine.UserID) (engine.User, error) {
	user, ok := s.users[id]
	if !ok {
		return engine.User{}, &engine.NotFoundError{Kind: "user", ID: string(id)}
	}
	return user, nil
}

func (s *state) listUsers() []engine.User {
	result := make([]engine.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

func (s *state) debit(id engine.UserID, amount engine.Money) bool {
	user, ok := s.users[id]
	if !ok || user.Balance.LessThan(amount) {
		return false
	}
	user.Balance = user.Balance.Sub(amount)
	s.users[id] = user
	return true
}

func (s *state) credit(id engine.UserID, amount engine.Money) bool {
	user, ok := s.users[id]
	if !ok {
		return false
	}
	user.Balance = user.Balance.Add(amount)
	s.users[id] = user
	return true
}

func (s *state) listEntries(filter engine.WalletEntryFilter) []engine.WalletEntry {
	var result []engine.WalletEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if filter.UserID != nil && e.UserID != *filter.UserID {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result
}

func (s *state) insertReservation(r engine.Reservation) error {
	if _, ok := s.reservations[r.ID]; ok {
		return engine.ErrDuplicate
	}
	if r.Status == engine.ReservationActive {
		for _, existing := range s.reservations {
			if existing.SlotID == r.SlotID && existing.Status == engine.ReservationActive {
				return engine.ErrDuplicate
			}
		}
	}
	s.reservations[r.ID] = r
	return nil
}

func (s *state) getReservation(id engine.ReservationID) (engine.Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return engine.Reservation{}, &engine.NotFoundError{Kind: "reservation", ID: string(id)}
	}
	return r, nil
}

func (s *state) listReservations(filter engine.ReservationFilter) []engine.Reservation {
	var result []engine.Reservation
	for _, r := range s.reservations {
		if filter.UserID != nil && r.UserID != *filter.UserID {
			continue
		}
		if filter.SlotID != nil && r.SlotID != *filter.SlotID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

func (s *state) completeReservation(id engine.ReservationID, end time.Time) bool {
	r, ok := s.reservations[id]
	if !ok || r.Status != engine.ReservationActive {
		return false
	}
	r.Status = engine.ReservationCompleted
	r.EndTime = &end
	s.reservations[id] = r
	return true
}

func (s *state) insertPayment(p engine.Payment) error {
	for _, existing := range s.payments {
		if existing.ID == p.ID {
			return engine.ErrDuplicate
		}
	}
	s.payments = append(s.payments, p)
	return nil
}

func (s *state) listPayments(filter engine.PaymentFilter) []engine.Payment {
	var result []engine.Payment
	for i := len(s.payments) - 1; i >= 0; i-- {
		p := s.payments[i]
		if filter.ReservationID != nil && p.ReservationID != *filter.ReservationID {
			continue
		}
		if filter.UserID != nil && p.UserID != *filter.UserID {
			continue
		}
		result = append(result, p)
	}
	return result
}

func (s *state) increment(key engine.StatKey, amount engine.Money) {
	stat, ok := s.stats[key]
	if !ok {
		stat = engine.UtilizationStat{StatKey: key}
	}
	stat.OccupancyCount++
	stat.Revenue = stat.Revenue.Add(amount)
	s.stats[key] = stat
}

func (s *state) listUtilization(rng engine.Range) []engine.UtilizationStat {
	var result []engine.UtilizationStat
	for _, stat := range s.stats {
		if rng.Contains(stat.Date) {
			result = append(result, stat)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		return a.SlotID < b.SlotID
	})
	return result
}

// Compile-time interface checks.
var (
	_ engine.TxStore = (*TxMemory)(nil)
	_ engine.Store   = (*txMemoryView)(nil)
)
