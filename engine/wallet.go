package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// WALLET MANAGER - Overdraft-proof balance mutation
// =============================================================================

// IDGenerator returns a fresh unique identifier.
type IDGenerator func() string

// NewID is the default IDGenerator.
func NewID() string { return uuid.NewString() }

// WalletManager owns balance mutation. Every debit is conditioned on
// sufficient funds inside the same statement that applies it, so two
// concurrent debits against a balance that covers only one produce exactly
// one success and one InsufficientFunds.
//
// Every successful mutation is followed by an append-only WalletEntry.
type WalletManager struct {
	wallets WalletStore
	now     Clock
	newID   IDGenerator
}

func NewWalletManager(wallets WalletStore, now Clock, newID IDGenerator) *WalletManager {
	if now == nil {
		now = SystemClock
	}
	if newID == nil {
		newID = NewID
	}
	return &WalletManager{wallets: wallets, now: now, newID: newID}
}

// TryDebit decrements the balance only if balance >= amount.
// Returns *InsufficientFundsError (with the observed balance) or *NotFoundError.
func (m *WalletManager) TryDebit(ctx context.Context, id UserID, amount Money, ref string) error {
	if err := amount.CheckAmount("debit"); err != nil {
		return err
	}

	ok, err := m.wallets.DebitBalance(ctx, id, amount)
	if err != nil {
		return err
	}
	if !ok {
		user, err := m.wallets.GetUser(ctx, id)
		if err != nil {
			return err
		}
		return &InsufficientFundsError{UserID: id, Balance: user.Balance, Requested: amount}
	}

	return m.record(ctx, id, EntryCharge, amount.Neg(), ref)
}

// Credit increments the balance unconditionally. Used for compensation and top-ups.
func (m *WalletManager) Credit(ctx context.Context, id UserID, amount Money, kind WalletEntryKind, ref string) error {
	if err := amount.CheckAmount("credit"); err != nil {
		return err
	}

	ok, err := m.wallets.CreditBalance(ctx, id, amount)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Kind: "user", ID: string(id)}
	}

	return m.record(ctx, id, kind, amount, ref)
}

// TopUp adds funds to a wallet and returns the updated user.
func (m *WalletManager) TopUp(ctx context.Context, id UserID, amount Money) (User, error) {
	if !amount.IsPositive() {
		return User{}, fmt.Errorf("%w: top-up must be positive, got %s", ErrInvalidAmount, amount)
	}
	if err := m.Credit(ctx, id, amount, EntryTopUp, ""); err != nil {
		return User{}, err
	}
	return m.wallets.GetUser(ctx, id)
}

// Register creates a user with an opening balance.
func (m *WalletManager) Register(ctx context.Context, user User) (User, error) {
	if err := user.Balance.CheckAmount("opening balance"); err != nil {
		return User{}, err
	}
	if user.ID == "" {
		user.ID = UserID(m.newID())
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now()
	}
	if err := m.wallets.CreateUser(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// History lists wallet entries, newest first.
func (m *WalletManager) History(ctx context.Context, filter WalletEntryFilter) ([]WalletEntry, error) {
	return m.wallets.ListWalletEntries(ctx, filter)
}

func (m *WalletManager) record(ctx context.Context, id UserID, kind WalletEntryKind, amount Money, ref string) error {
	return m.wallets.AppendWalletEntry(ctx, WalletEntry{
		ID:          m.newID(),
		UserID:      id,
		Kind:        kind,
		Amount:      amount,
		ReferenceID: ref,
		CreatedAt:   m.now(),
	})
}
