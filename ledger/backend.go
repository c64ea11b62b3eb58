// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/amm/types"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// MemoryBackend is an in-memory AssetBackend used in tests and standalone
// deployments.
type MemoryBackend struct {
	mu       sync.Mutex
	balances map[deltaKey]*big.Int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{balances: make(map[deltaKey]*big.Int)}
}

// SetBalance funds an account.
func (m *MemoryBackend) SetBalance(currency types.Currency, account common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[deltaKey{account, currency}] = new(big.Int).Set(amount)
}

// BalanceOf returns the balance of an account.
func (m *MemoryBackend) BalanceOf(currency types.Currency, account common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[deltaKey{account, currency}]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

// Transfer moves amount between accounts, failing on insufficient balance.
func (m *MemoryBackend) Transfer(currency types.Currency, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromKey := deltaKey{from, currency}
	fromBal, ok := m.balances[fromKey]
	if !ok || fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	toKey := deltaKey{to, currency}
	toBal, ok := m.balances[toKey]
	if !ok {
		toBal = big.NewInt(0)
	}

	m.balances[fromKey] = new(big.Int).Sub(fromBal, amount)
	m.balances[toKey] = new(big.Int).Add(toBal, amount)
	return nil
}
