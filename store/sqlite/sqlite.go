/*
Package sqlite provides a SQLite-backed implementation of engine.TxStore.

PURPOSE:
  Persists slots, wallets, reservations, payments, wallet entries and hourly
  utilization buckets. Every correctness-critical write is a single
  conditional statement so the database, not the process, decides who wins
  a race.

CONDITIONAL UPDATES:
  OccupySlot:           UPDATE slots SET available = 0
                        WHERE id = ? AND available = 1
  DebitBalance:         UPDATE users SET balance_cents = balance_cents - ?
                        WHERE id = ? AND balance_cents >= ?
  CompleteReservation:  UPDATE reservations SET status = 'completed' ...
                        WHERE id = ? AND status = 'active'
  IncrementUtilization: INSERT ... ON CONFLICT(slot_id, stat_date, stat_hour)
                        DO UPDATE SET occupancy_count = occupancy_count + 1 ...
  RowsAffected() == 1 is the success signal.

KEY TABLES:
  slots:             Catalogue + occupancy flag
  users:             Wallet balance in integer cents, CHECK (>= 0)
  reservations:      One row per booking
  payments:          Append-only charge log
  wallet_entries:    Append-only wallet mutation log
  utilization_stats: (slot, date, hour) buckets

INDEXES:
  - idx_reservations_active_slot: at most one active reservation per slot,
    a backstop behind OccupySlot
  - idx_reservations_status: expiry sweep
  - idx_utilization_date: analytics range scans

MONEY:
  Stored as INTEGER cents so that balance comparisons in WHERE clauses are
  exact. Converted at the boundary with engine.Money.Cents / MoneyFromCents.

TIME:
  Stored as fixed-width UTC text (timeLayout), which sorts lexically.

CONCURRENCY:
  No process-level mutex. Transactions are opened with BEGIN IMMEDIATE
  (_txlock=immediate) so units of work take the write lock up front and
  busy writers wait up to _busy_timeout ms. An in-memory database is pinned
  to one connection, which makes every unit of work strictly serial.

  Inside WithTx only the *sql.Tx is used. Touching s.db there would wait
  for a second connection that may never come.

USAGE:
  store, err := sqlite.New("./data/parking.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := engine.NewService(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/parking-engine/engine"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements engine.TxStore using SQLite.
type Store struct {
	*conn
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{conn: &conn{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &engine.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS slots (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		floor INTEGER NOT NULL,
		zone TEXT NOT NULL,
		slot_type TEXT NOT NULL,
		price_cents INTEGER NOT NULL CHECK (price_cents >= 0),
		available INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_slots_floor_zone
		ON slots(floor, zone);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT UNIQUE,
		phone TEXT,
		vehicle_number TEXT,
		balance_cents INTEGER NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		slot_id TEXT NOT NULL REFERENCES slots(id),
		start_time TEXT NOT NULL,
		end_time TEXT,
		duration_hours TEXT NOT NULL,
		total_cents INTEGER NOT NULL,
		payment_status TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- At most one active reservation per slot
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_slot
		ON reservations(slot_id) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_reservations_user
		ON reservations(user_id);
	CREATE INDEX IF NOT EXISTS idx_reservations_status
		ON reservations(status);

	-- Payments (append-only)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL REFERENCES reservations(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		amount_cents INTEGER NOT NULL,
		method TEXT NOT NULL,
		transaction_ref TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_reservation
		ON payments(reservation_id);

	-- Wallet entries (append-only)
	CREATE TABLE IF NOT EXISTS wallet_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		kind TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		reference_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_entries_user
		ON wallet_entries(user_id);

	CREATE TABLE IF NOT EXISTS utilization_stats (
		slot_id TEXT NOT NULL REFERENCES slots(id),
		stat_date TEXT NOT NULL,
		stat_hour INTEGER NOT NULL CHECK (stat_hour BETWEEN 0 AND 23),
		occupancy_count INTEGER NOT NULL DEFAULT 0,
		revenue_cents INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (slot_id, stat_date, stat_hour)
	);

	CREATE INDEX IF NOT EXISTS idx_utilization_date
		ON utilization_stats(stat_date, stat_hour);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (engine.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &engine.StoreError{Op: "begin", Err: err}
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{conn: &conn{q: sqlTx}, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return &engine.StoreError{Op: "commit", Err: err}
	}
	return nil
}

type txStore struct {
	*conn
	tx *sql.Tx
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"payments", "reservations", "wallet_entries", "utilization_stats", "users", "slots"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return &engine.StoreError{Op: "reset " + table, Err: err}
		}
	}
	return nil
}

// =============================================================================
// CONN - Queries shared by Store and txStore
// =============================================================================

type conn struct {
	q querier
}

// -----------------------------------------------------------------------------
// Slots
// -----------------------------------------------------------------------------

const slotColumns = `id, number, floor, zone, slot_type, price_cents, available, created_at`

func (c *conn) CreateSlot(ctx context.Context, slot engine.Slot) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO slots (`+slotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		slot.ID, slot.Number, slot.Floor, slot.Zone, slot.Type,
		slot.PricePerHour.Cents(), boolInt(slot.Available), formatTime(slot.CreatedAt),
	)
	return wrapErr("create slot", err)
}

func (c *conn) GetSlot(ctx context.Context, id engine.SlotID) (engine.Slot, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id)
	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Slot{}, &engine.NotFoundError{Kind: "slot", ID: string(id)}
	}
	if err != nil {
		return engine.Slot{}, wrapErr("get slot", err)
	}
	return slot, nil
}

func (c *conn) ListSlots(ctx context.Context, filter engine.SlotFilter) ([]engine.Slot, error) {
	var (
		where []string
		args  []any
	)
	if filter.OnlyAvailable {
		where = append(where, "available = 1")
	}
	if filter.Floor != nil {
		where = append(where, "floor = ?")
		args = append(args, *filter.Floor)
	}
	if filter.Zone != nil {
		where = append(where, "zone = ?")
		args = append(args, *filter.Zone)
	}
	if filter.Type != nil {
		where = append(where, "slot_type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.MaxPrice != nil {
		where = append(where, "price_cents <= ?")
		args = append(args, filter.MaxPrice.Cents())
	}

	query := `SELECT ` + slotColumns + ` FROM slots`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY floor, number"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list slots", err)
	}
	defer rows.Close()

	slots := []engine.Slot{}
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, wrapErr("scan slot", err)
		}
		slots = append(slots, slot)
	}
	return slots, wrapErr("list slots", rows.Err())
}

func (c *conn) OccupySlot(ctx context.Context, id engine.SlotID) (bool, error) {
	return c.execAffected(ctx, "occupy slot",
		`UPDATE slots SET available = 0 WHERE id = ? AND available = 1`, id)
}

func (c *conn) ReleaseSlot(ctx context.Context, id engine.SlotID) (bool, error) {
	return c.execAffected(ctx, "release slot",
		`UPDATE slots SET available = 1 WHERE id = ?`, id)
}

// -----------------------------------------------------------------------------
// Users / wallets
// -----------------------------------------------------------------------------

const userColumns = `id, username, email, phone, vehicle_number, balance_cents, created_at`

func (c *conn) CreateUser(ctx context.Context, user engine.User) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		user.ID, user.Username, nullString(user.Email), nullString(user.Phone),
		nullString(user.VehicleNumber), user.Balance.Cents(), formatTime(user.CreatedAt),
	)
	return wrapErr("create user", err)
}

func (c *conn) GetUser(ctx context.Context, id engine.UserID) (engine.User, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.User{}, &engine.NotFoundError{Kind: "user", ID: string(id)}
	}
	if err != nil {
		return engine.User{}, wrapErr("get user", err)
	}
	return user, nil
}

func (c *conn) ListUsers(ctx context.Context) ([]engine.User, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, wrapErr("list users", err)
	}
	defer rows.Close()

	users := []engine.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, wrapErr("scan user", err)
		}
		users = append(users, user)
	}
	return users, wrapErr("list users", rows.Err())
}

func (c *conn) DebitBalance(ctx context.Context, id engine.UserID, amount engine.Money) (bool, error) {
	cents := amount.Cents()
	return c.execAffected(ctx, "debit balance",
		`UPDATE users SET balance_cents = balance_cents - ? WHERE id = ? AND balance_cents >= ?`,
		cents, id, cents)
}

func (c *conn) CreditBalance(ctx context.Context, id engine.UserID, amount engine.Money) (bool, error) {
	return c.execAffected(ctx, "credit balance",
		`UPDATE users SET balance_cents = balance_cents + ? WHERE id = ?`,
		amount.Cents(), id)
}

func (c *conn) AppendWalletEntry(ctx context.Context, entry engine.WalletEntry) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, kind, amount_cents, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.UserID, entry.Kind, entry.Amount.Cents(),
		nullString(entry.ReferenceID), formatTime(entry.CreatedAt),
	)
	return wrapErr("append wallet entry", err)
}

func (c *conn) ListWalletEntries(ctx context.Context, filter engine.WalletEntryFilter) ([]engine.WalletEntry, error) {
	query := `SELECT id, user_id, kind, amount_cents, reference_id, created_at FROM wallet_entries`
	var args []any
	if filter.UserID != nil {
		query += " WHERE user_id = ?"
		args = append(args, *filter.UserID)
	}
	query += " ORDER BY rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list wallet entries", err)
	}
	defer rows.Close()

	entries := []engine.WalletEntry{}
	for rows.Next() {
		var (
			e         engine.WalletEntry
			cents     int64
			ref       sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &cents, &ref, &createdAt); err != nil {
			return nil, wrapErr("scan wallet entry", err)
		}
		e.Amount = engine.MoneyFromCents(cents)
		e.ReferenceID = ref.String
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, wrapErr("list wallet entries", rows.Err())
}

// -----------------------------------------------------------------------------
// Reservations / payments
// -----------------------------------------------------------------------------

const reservationColumns = `id, user_id, slot_id, start_time, end_time, duration_hours,
	total_cents, payment_status, status, created_at`

func (c *conn) InsertReservation(ctx context.Context, r engine.Reservation) error {
	var end sql.NullString
	if r.EndTime != nil {
		end = sql.NullString{String: formatTime(*r.EndTime), Valid: true}
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.UserID, r.SlotID, formatTime(r.StartTime), end, r.DurationHours.String(),
		r.TotalAmount.Cents(), r.PaymentStatus, r.Status, formatTime(r.CreatedAt),
	)
	return wrapErr("insert reservation", err)
}

func (c *conn) GetReservation(ctx context.Context, id engine.ReservationID) (engine.Reservation, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Reservation{}, &engine.NotFoundError{Kind: "reservation", ID: string(id)}
	}
	if err != nil {
		return engine.Reservation{}, wrapErr("get reservation", err)
	}
	return r, nil
}

func (c *conn) ListReservations(ctx context.Context, filter engine.ReservationFilter) ([]engine.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.SlotID != nil {
		where = append(where, "slot_id = ?")
		args = append(args, *filter.SlotID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list reservations", err)
	}
	defer rows.Close()

	list := []engine.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, wrapErr("scan reservation", err)
		}
		list = append(list, r)
	}
	return list, wrapErr("list reservations", rows.Err())
}

func (c *conn) CompleteReservation(ctx context.Context, id engine.ReservationID, endTime time.Time) (bool, error) {
	return c.execAffected(ctx, "complete reservation", `
		UPDATE reservations SET status = ?, end_time = ?
		WHERE id = ? AND status = ?
	`, engine.ReservationCompleted, formatTime(endTime), id, engine.ReservationActive)
}

func (c *conn) InsertPayment(ctx context.Context, p engine.Payment) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO payments (id, reservation_id, user_id, amount_cents, method, transaction_ref, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.ReservationID, p.UserID, p.Amount.Cents(), p.Method,
		p.TransactionRef, p.Status, formatTime(p.CreatedAt),
	)
	return wrapErr("insert payment", err)
}

func (c *conn) ListPayments(ctx context.Context, filter engine.PaymentFilter) ([]engine.Payment, error) {
	var (
		where []string
		args  []any
	)
	if filter.ReservationID != nil {
		where = append(where, "reservation_id = ?")
		args = append(args, *filter.ReservationID)
	}
	if filter.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *filter.UserID)
	}

	query := `SELECT id, reservation_id, user_id, amount_cents, method, transaction_ref, status, created_at FROM payments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid DESC"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list payments", err)
	}
	defer rows.Close()

	payments := []engine.Payment{}
	for rows.Next() {
		var (
			p         engine.Payment
			cents     int64
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.ReservationID, &p.UserID, &cents, &p.Method,
			&p.TransactionRef, &p.Status, &createdAt); err != nil {
			return nil, wrapErr("scan payment", err)
		}
		p.Amount = engine.MoneyFromCents(cents)
		p.CreatedAt = parseTime(createdAt)
		payments = append(payments, p)
	}
	return payments, wrapErr("list payments", rows.Err())
}

// -----------------------------------------------------------------------------
// Utilization stats
// -----------------------------------------------------------------------------

func (c *conn) IncrementUtilization(ctx context.Context, key engine.StatKey, amount engine.Money) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO utilization_stats (slot_id, stat_date, stat_hour, occupancy_count, revenue_cents)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(slot_id, stat_date, stat_hour) DO UPDATE SET
			occupancy_count = occupancy_count + 1,
			revenue_cents = revenue_cents + excluded.revenue_cents
	`, key.SlotID, key.Date, key.Hour, amount.Cents())
	return wrapErr("increment utilization", err)
}

func (c *conn) ListUtilization(ctx context.Context, rng engine.Range) ([]engine.UtilizationStat, error) {
	var (
		where []string
		args  []any
	)
	if from := rng.FromDate(); from != "" {
		where = append(where, "stat_date >= ?")
		args = append(args, from)
	}
	if to := rng.ToDate(); to != "" {
		where = append(where, "stat_date <= ?")
		args = append(args, to)
	}

	query := `SELECT slot_id, stat_date, stat_hour, occupancy_count, revenue_cents FROM utilization_stats`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY stat_date, stat_hour, slot_id"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list utilization", err)
	}
	defer rows.Close()

	stats := []engine.UtilizationStat{}
	for rows.Next() {
		var (
			st    engine.UtilizationStat
			cents int64
		)
		if err := rows.Scan(&st.SlotID, &st.Date, &st.Hour, &st.OccupancyCount, &cents); err != nil {
			return nil, wrapErr("scan utilization", err)
		}
		st.Revenue = engine.MoneyFromCents(cents)
		stats = append(stats, st)
	}
	return stats, wrapErr("list utilization", rows.Err())
}

// =============================================================================
// HELPERS
// =============================================================================

// execAffected runs a conditional statement and reports whether it matched.
func (c *conn) execAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr(op, err)
	}
	return n == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSlot(row scanner) (engine.Slot, error) {
	var (
		s         engine.Slot
		cents     int64
		available int
		createdAt string
	)
	if err := row.Scan(&s.ID, &s.Number, &s.Floor, &s.Zone, &s.Type, &cents, &available, &createdAt); err != nil {
		return engine.Slot{}, err
	}
	s.PricePerHour = engine.MoneyFromCents(cents)
	s.Available = available == 1
	s.CreatedAt = parseTime(createdAt)
	return s, nil
}

func scanUser(row scanner) (engine.User, error) {
	var (
		u                     engine.User
		email, phone, vehicle sql.NullString
		cents                 int64
		createdAt             string
	)
	if err := row.Scan(&u.ID, &u.Username, &email, &phone, &vehicle, &cents, &createdAt); err != nil {
		return engine.User{}, err
	}
	u.Email = email.String
	u.Phone = phone.String
	u.VehicleNumber = vehicle.String
	u.Balance = engine.MoneyFromCents(cents)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

func scanReservation(row scanner) (engine.Reservation, error) {
	var (
		r              engine.Reservation
		start, created string
		end            sql.NullString
		duration       string
		cents          int64
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.SlotID, &start, &end, &duration,
		&cents, &r.PaymentStatus, &r.Status, &created); err != nil {
		return engine.Reservation{}, err
	}
	d, err := decimal.NewFromString(duration)
	if err != nil {
		return engine.Reservation{}, fmt.Errorf("bad duration %q: %w", duration, err)
	}
	r.DurationHours = d
	r.StartTime = parseTime(start)
	if end.Valid {
		t := parseTime(end.String)
		r.EndTime = &t
	}
	r.TotalAmount = engine.MoneyFromCents(cents)
	r.CreatedAt = parseTime(created)
	return r, nil
}

// wrapErr maps driver errors into the engine taxonomy. Unique and primary
// key violations become ErrDuplicate; everything else is a StoreError.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%s: %w", op, engine.ErrDuplicate)
	}
	return &engine.StoreError{Op: op, Err: err}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// Compile-time interface checks.
var (
	_ engine.TxStore = (*Store)(nil)
	_ engine.Store   = (*txStore)(nil)
)
