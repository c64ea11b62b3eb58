// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger implements flash-accounting settlement: all pool operations
// run inside a locked session that records signed per-actor, per-currency
// deltas instead of moving funds, and the session can only close once every
// delta has been paid (settled) or collected (taken). Positive deltas are
// owed to the pool custody, negative deltas to the actor.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/amm/types"
)

var (
	ErrAlreadyLocked      = errors.New("ledger already locked")
	ErrNotLocked          = errors.New("ledger not locked")
	ErrCurrencyNotSettled = errors.New("currency not settled")
	ErrInsufficientCredit = errors.New("insufficient credit balance")
	ErrNegativeAmount     = errors.New("amount cannot be negative")
	ErrNotSynced          = errors.New("currency not synced")
	ErrReservesMismatch   = errors.New("custody reserves do not match ledger")
)

// AssetBackend moves and reads the underlying assets. The ledger only calls
// it for settles, takes and the closing reconciliation.
type AssetBackend interface {
	BalanceOf(currency types.Currency, account common.Address) (*big.Int, error)
	Transfer(currency types.Currency, from, to common.Address, amount *big.Int) error
}

type deltaKey struct {
	actor    common.Address
	currency types.Currency
}

// Ledger is the flash-accounting session ledger plus the persistent credit
// balances that survive sessions.
type Ledger struct {
	mu      sync.Mutex
	backend AssetBackend
	custody common.Address
	log     log.Logger

	locked       bool
	deltas       map[deltaKey]*big.Int
	nonzeroCount int
	// Net custody inflow the session expects per touched currency, checked
	// against the backend at close.
	startReserves map[types.Currency]*big.Int
	expectedNet   map[types.Currency]*big.Int
	// Reserve snapshots taken by Sync, consumed by SettleFor.
	synced map[types.Currency]*big.Int

	// Credit balances: transferable claims on custody assets, minted in
	// place of a take and burned in place of a settle.
	credits map[deltaKey]*big.Int
}

// New creates a ledger over the given backend. custody is the account that
// holds all pool assets.
func New(backend AssetBackend, custody common.Address, logger log.Logger) *Ledger {
	return &Ledger{
		backend: backend,
		custody: custody,
		log:     logger,
		credits: make(map[deltaKey]*big.Int),
	}
}

// Lock opens a settlement session, runs fn inside it and verifies at close
// that every delta is zero and custody reserves moved exactly as recorded.
// Nested locks are rejected.
func (l *Ledger) Lock(ctx context.Context, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.locked {
		l.mu.Unlock()
		return ErrAlreadyLocked
	}
	l.locked = true
	l.deltas = make(map[deltaKey]*big.Int)
	l.nonzeroCount = 0
	l.startReserves = make(map[types.Currency]*big.Int)
	l.expectedNet = make(map[types.Currency]*big.Int)
	l.synced = make(map[types.Currency]*big.Int)
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.locked = false
		l.deltas = nil
		l.startReserves = nil
		l.expectedNet = nil
		l.synced = nil
		l.mu.Unlock()
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.close()
}

func (l *Ledger) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.nonzeroCount != 0 {
		for k, d := range l.deltas {
			if d.Sign() != 0 {
				return fmt.Errorf("%w: actor %s currency %s delta %s",
					ErrCurrencyNotSettled, k.actor.Hex(), k.currency.Address.Hex(), d)
			}
		}
	}

	for currency, net := range l.expectedNet {
		balance, err := l.backend.BalanceOf(currency, l.custody)
		if err != nil {
			return err
		}
		want := new(big.Int).Add(l.startReserves[currency], net)
		if balance.Cmp(want) != 0 {
			return fmt.Errorf("%w: currency %s have %s want %s",
				ErrReservesMismatch, currency.Address.Hex(), balance, want)
		}
	}
	return nil
}

// Counterparty is the capability to record session deltas. Only engines
// registered with the ledger hold one; settles, takes and credit operations
// stay on the ledger itself.
type Counterparty struct {
	l *Ledger
}

// RegisterCounterparty issues a delta-recording capability. The returned
// handle cannot be forged from outside the package.
func (l *Ledger) RegisterCounterparty() *Counterparty {
	return &Counterparty{l: l}
}

// AccountDelta records a signed delta against an actor inside the session.
// Positive means the actor owes the pool.
func (c *Counterparty) AccountDelta(actor common.Address, currency types.Currency, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	l := c.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		return ErrNotLocked
	}
	l.applyDelta(actor, currency, amount)
	return nil
}

// applyDelta mutates a delta and maintains the nonzero count. Caller holds mu.
func (l *Ledger) applyDelta(actor common.Address, currency types.Currency, amount *big.Int) {
	key := deltaKey{actor, currency}
	current, ok := l.deltas[key]
	if !ok {
		current = big.NewInt(0)
	}
	next := new(big.Int).Add(current, amount)

	if current.Sign() == 0 && next.Sign() != 0 {
		l.nonzeroCount++
	} else if current.Sign() != 0 && next.Sign() == 0 {
		l.nonzeroCount--
	}
	l.deltas[key] = next
}

// IsLocked reports whether a settlement session is open.
func (l *Ledger) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// CurrencyDelta returns the actor's current session delta.
func (l *Ledger) CurrencyDelta(actor common.Address, currency types.Currency) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.deltas[deltaKey{actor, currency}]; ok {
		return new(big.Int).Set(d)
	}
	return big.NewInt(0)
}

// NonzeroDeltaCount returns how many (actor, currency) deltas are unsettled.
func (l *Ledger) NonzeroDeltaCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonzeroCount
}

// touchReserves snapshots the custody balance the first time a currency is
// moved in the session. Caller holds mu.
func (l *Ledger) touchReserves(currency types.Currency) error {
	if _, ok := l.startReserves[currency]; ok {
		return nil
	}
	balance, err := l.backend.BalanceOf(currency, l.custody)
	if err != nil {
		return err
	}
	l.startReserves[currency] = balance
	l.expectedNet[currency] = big.NewInt(0)
	return nil
}

// Settle pays amount of currency from the actor to custody, reducing the
// actor's debt.
func (l *Ledger) Settle(actor common.Address, currency types.Currency, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		return ErrNotLocked
	}
	if err := l.touchReserves(currency); err != nil {
		return err
	}
	if err := l.backend.Transfer(currency, actor, l.custody, amount); err != nil {
		return err
	}
	l.expectedNet[currency].Add(l.expectedNet[currency], amount)
	l.applyDelta(actor, currency, new(big.Int).Neg(amount))
	return nil
}

// Sync snapshots the custody reserves of a currency so a payment made
// outside the ledger can be claimed with SettleFor.
func (l *Ledger) Sync(currency types.Currency) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		return ErrNotLocked
	}
	if err := l.touchReserves(currency); err != nil {
		return err
	}
	balance, err := l.backend.BalanceOf(currency, l.custody)
	if err != nil {
		return err
	}
	l.synced[currency] = balance
	return nil
}

// SettleFor credits the actor with whatever arrived at custody since the
// last Sync of the currency, and returns the amount.
func (l *Ledger) SettleFor(actor common.Address, currency types.Currency) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		return nil, ErrNotLocked
	}
	snapshot, ok := l.synced[currency]
	if !ok {
		return nil, ErrNotSynced
	}
	delete(l.synced, currency)

	balance, err := l.backend.BalanceOf(currency, l.custody)
	if err != nil {
		return nil, err
	}
	paid := new(big.Int).Sub(balance, snapshot)
	if paid.Sign() < 0 {
		return nil, fmt.Errorf("%w: reserves decreased since sync", ErrReservesMismatch)
	}
	l.expectedNet[currency].Add(l.expectedNet[currency], paid)
	l.applyDelta(actor, currency, new(big.Int).Neg(paid))
	return paid, nil
}

// Take sends amount of currency from custody to the recipient, increasing
// the actor's debt.
func (l *Ledger) Take(actor common.Address, currency types.Currency, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		return ErrNotLocked
	}
	if err := l.touchReserves(currency); err != nil {
		return err
	}
	if err := l.backend.Transfer(currency, l.custody, to, amount); err != nil {
		return err
	}
	l.expectedNet[currency].Sub(l.expectedNet[currency], amount)
	l.applyDelta(actor, currency, amount)
	return nil
}

// Mint issues credit balance to the recipient instead of moving assets,
// increasing the actor's debt like a take.
func (l *Ledger) Mint(actor common.Address, currency types.Currency, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		return ErrNotLocked
	}
	key := deltaKey{to, currency}
	credit, ok := l.credits[key]
	if !ok {
		credit = big.NewInt(0)
	}
	l.credits[key] = new(big.Int).Add(credit, amount)
	l.applyDelta(actor, currency, amount)
	return nil
}

// Burn destroys credit balance held by from, reducing the actor's debt like
// a settle but without moving assets.
func (l *Ledger) Burn(actor common.Address, currency types.Currency, from common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		return ErrNotLocked
	}
	key := deltaKey{from, currency}
	credit, ok := l.credits[key]
	if !ok || credit.Cmp(amount) < 0 {
		return ErrInsufficientCredit
	}
	l.credits[key] = new(big.Int).Sub(credit, amount)
	l.applyDelta(actor, currency, new(big.Int).Neg(amount))
	return nil
}

// CreditBalance returns the persistent credit balance of an account.
func (l *Ledger) CreditBalance(account common.Address, currency types.Currency) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.credits[deltaKey{account, currency}]; ok {
		return new(big.Int).Set(c)
	}
	return big.NewInt(0)
}
