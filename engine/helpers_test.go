package engine_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/engine"
	"github.com/warp/parking-engine/engine/store"
	"github.com/warp/parking-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var backends = map[string]func(t *testing.T) engine.TxStore{
	"memory": func(t *testing.T) engine.TxStore {
		return store.NewTxMemory()
	},
	"sqlite": func(t *testing.T) engine.TxStore {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	},
}

// forEachStore runs fn once per store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, st engine.TxStore)) {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		newStore := backends[name]
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

// testClock is a settable clock shared by the service and the test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, time.March, 10, 14, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T, st engine.TxStore, clock *testClock, opts ...engine.WorkflowOption) *engine.Service {
	t.Helper()
	opts = append([]engine.WorkflowOption{engine.WithClock(clock.Now)}, opts...)
	return engine.NewService(st, opts...)
}

func addSlot(t *testing.T, svc *engine.Service, number string, floor int, zone string, typ engine.SlotType, price float64) engine.Slot {
	t.Helper()
	slot, err := svc.AddSlot(context.Background(), engine.Slot{
		Number:       number,
		Floor:        floor,
		Zone:         zone,
		Type:         typ,
		PricePerHour: engine.NewMoney(price),
	})
	require.NoError(t, err)
	return slot
}

func addUser(t *testing.T, svc *engine.Service, username string, balance float64) engine.User {
	t.Helper()
	user, err := svc.Register(context.Background(), engine.User{
		Username: username,
		Email:    username + "@example.com",
		Balance:  engine.NewMoney(balance),
	})
	require.NoError(t, err)
	return user
}

func hours(n float64) decimal.Decimal {
	return decimal.NewFromFloat(n)
}

func balanceOf(t *testing.T, svc *engine.Service, id engine.UserID) string {
	t.Helper()
	u, err := svc.User(context.Background(), id)
	require.NoError(t, err)
	return u.Balance.String()
}

func slotAvailable(t *testing.T, svc *engine.Service, id engine.SlotID) bool {
	t.Helper()
	s, err := svc.Slots.Search(context.Background(), engine.SlotFilter{})
	require.NoError(t, err)
	for _, slot := range s {
		if slot.ID == id {
			return slot.Available
		}
	}
	t.Fatalf("slot %s not found", id)
	return false
}

// =============================================================================
// FAULT INJECTION
// =============================================================================

// faultyStore wraps the transactional view handed to the workflow so tests
// can force failures at a chosen step.
type faultyStore struct {
	engine.TxStore
	wrap func(engine.Store) engine.Store
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	return f.TxStore.WithTx(ctx, func(tx engine.Store) error {
		return fn(f.wrap(tx))
	})
}

// staleSlotView reports every slot as free, the way a read taken just
// before a competing commit would.
type staleSlotView struct {
	engine.Store
}

func (v staleSlotView) GetSlot(ctx context.Context, id engine.SlotID) (engine.Slot, error) {
	s, err := v.Store.GetSlot(ctx, id)
	s.Available = true
	return s, err
}

// brokenStatsView fails the stats upsert.
type brokenStatsView struct {
	engine.Store
}

func (v brokenStatsView) IncrementUtilization(context.Context, engine.StatKey, engine.Money) error {
	return &engine.StoreError{Op: "increment utilization", Err: errors.New("disk I/O error")}
}

// brokenPaymentView fails the last step of the unit.
type brokenPaymentView struct {
	engine.Store
}

func (v brokenPaymentView) InsertPayment(context.Context, engine.Payment) error {
	return &engine.StoreError{Op: "insert payment", Err: errors.New("database is locked")}
}
