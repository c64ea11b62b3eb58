// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package manager ties the core together: a singleton PoolManager owns every
// pool, dispatches extension-module lifecycle calls, accounts all currency
// movement through the flash-accounting ledger and mirrors pool state into
// the word store for external readers.
package manager

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/amm/hooks"
	"github.com/luxfi/amm/ledger"
	"github.com/luxfi/amm/pool"
	"github.com/luxfi/amm/store"
	"github.com/luxfi/amm/types"
)

var (
	ErrPaused               = errors.New("pool manager paused")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotDynamicFee        = errors.New("pool does not use a dynamic fee")
	ErrAmountExceedsAccrued = errors.New("amount exceeds accrued protocol fees")
)

// Config holds the deployment parameters of the manager.
type Config struct {
	// Address is the custody account that holds all pool assets.
	Address common.Address
	// Owner may pause the manager and appoint the protocol fee controller.
	Owner common.Address
}

// PoolManager is the singleton owning all pools.
type PoolManager struct {
	mu  sync.RWMutex
	cfg Config
	log log.Logger

	pools map[types.PoolID]*pool.Pool
	keys  map[types.PoolID]types.PoolKey

	gateway      *hooks.Gateway
	ledger       *ledger.Ledger
	counterparty *ledger.Counterparty
	store        *store.Store
	backend      ledger.AssetBackend

	// Accrued protocol fees per currency, collectible by the controller.
	protocolFees  map[types.Currency]*big.Int
	feeController common.Address
	controller    ProtocolFeeController

	paused bool
}

// New creates a pool manager over the given database and asset backend. The
// manager registers itself as the ledger's settlement counterparty.
func New(cfg Config, db database.Database, backend ledger.AssetBackend, logger log.Logger) *PoolManager {
	l := ledger.New(backend, cfg.Address, logger)
	return &PoolManager{
		cfg:          cfg,
		log:          logger,
		pools:        make(map[types.PoolID]*pool.Pool),
		keys:         make(map[types.PoolID]types.PoolKey),
		gateway:      hooks.NewGateway(logger),
		ledger:       l,
		counterparty: l.RegisterCounterparty(),
		store:        store.New(db, logger),
		backend:      backend,
		protocolFees: make(map[types.Currency]*big.Int),
	}
}

// RegisterHook binds an extension module to an address.
func (pm *PoolManager) RegisterHook(addr common.Address, hook hooks.Hook) error {
	return pm.gateway.Register(addr, hook)
}

// Ledger exposes the settlement ledger for settles, takes and credit ops.
func (pm *PoolManager) Ledger() *ledger.Ledger {
	return pm.ledger
}

// Lock opens a flash-accounting session. All liquidity changes, swaps and
// donations run inside fn, and the session closes only when every delta is
// settled.
func (pm *PoolManager) Lock(ctx context.Context, fn func(ctx context.Context) error) error {
	return pm.ledger.Lock(ctx, fn)
}

// SetPaused toggles the operation pause. Owner only.
func (pm *PoolManager) SetPaused(sender common.Address, paused bool) error {
	if sender != pm.cfg.Owner {
		return ErrUnauthorized
	}
	pm.mu.Lock()
	pm.paused = paused
	pm.mu.Unlock()
	pm.log.Warn("pool manager pause toggled", "paused", paused)
	return nil
}

func (pm *PoolManager) checkPaused() error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.paused {
		return ErrPaused
	}
	return nil
}

// checkSession rejects mutating pool operations outside a settlement session
// before any pool state is touched.
func (pm *PoolManager) checkSession() error {
	if !pm.ledger.IsLocked() {
		return ledger.ErrNotLocked
	}
	return nil
}

// Initialize creates a pool for the key at the given starting price and
// returns the tick it lands on. Runs outside any settlement session since no
// currency moves.
func (pm *PoolManager) Initialize(sender common.Address, key types.PoolKey, sqrtPriceX96 *big.Int, hookData []byte) (int32, error) {
	if err := pm.checkPaused(); err != nil {
		return 0, err
	}
	if err := key.ValidateBase(); err != nil {
		return 0, err
	}
	if err := pm.gateway.ValidateKey(key); err != nil {
		return 0, err
	}

	id := key.ID()
	pm.mu.RLock()
	_, exists := pm.pools[id]
	pm.mu.RUnlock()
	if exists {
		return 0, pool.ErrPoolAlreadyInitialized
	}

	if err := pm.gateway.BeforeInitialize(sender, key, sqrtPriceX96); err != nil {
		return 0, err
	}

	// Dynamic-fee pools start at zero; the module overrides per swap or
	// updates the stored fee.
	lpFee := key.Fee
	if key.IsDynamicFee() {
		lpFee = 0
	}
	protocolFee := pm.protocolFeeFor(key)

	p := pool.NewPool(key.Params.TickSpacing)
	tick, err := p.Initialize(sqrtPriceX96, protocolFee, lpFee)
	if err != nil {
		return 0, err
	}

	// Check-and-insert atomically; a concurrent initialization of the same
	// key may have won the race since the early check.
	pm.mu.Lock()
	if _, ok := pm.pools[id]; ok {
		pm.mu.Unlock()
		return 0, pool.ErrPoolAlreadyInitialized
	}
	pm.pools[id] = p
	pm.keys[id] = key
	pm.mu.Unlock()

	if err := pm.writePoolCore(id, p); err != nil {
		pm.rollbackInitialize(id)
		return 0, err
	}

	if err := pm.gateway.AfterInitialize(sender, key, sqrtPriceX96, tick); err != nil {
		pm.rollbackInitialize(id)
		return 0, err
	}

	pm.log.Info("pool initialized",
		"id", id.Hash().Hex(),
		"currency0", key.Currency0.Address.Hex(),
		"currency1", key.Currency1.Address.Hex(),
		"fee", key.Fee,
		"tickSpacing", key.Params.TickSpacing,
		"tick", tick,
	)
	return tick, nil
}

// rollbackInitialize removes a freshly registered pool after a failed
// initialization so no state survives the error.
func (pm *PoolManager) rollbackInitialize(id types.PoolID) {
	pm.mu.Lock()
	delete(pm.pools, id)
	delete(pm.keys, id)
	pm.mu.Unlock()
	if err := pm.store.ClearPoolCore(id); err != nil {
		pm.log.Error("initialize rollback failed", "id", id.Hash().Hex(), "err", err)
	}
}

// poolFor resolves an initialized pool by key.
func (pm *PoolManager) poolFor(key types.PoolKey) (types.PoolID, *pool.Pool, error) {
	id := key.ID()
	pm.mu.RLock()
	p, ok := pm.pools[id]
	pm.mu.RUnlock()
	if !ok {
		return id, nil, pool.ErrPoolNotInitialized
	}
	return id, p, nil
}

// PoolState returns a read-only snapshot of a pool's slot0 and liquidity.
func (pm *PoolManager) PoolState(key types.PoolKey) (pool.Slot0, *big.Int, error) {
	_, p, err := pm.poolFor(key)
	if err != nil {
		return pool.Slot0{}, nil, err
	}
	return p.Slot0, new(big.Int).Set(p.Liquidity), nil
}

// writePoolCore mirrors slot0, liquidity and the fee accumulators.
func (pm *PoolManager) writePoolCore(id types.PoolID, p *pool.Pool) error {
	if err := pm.store.WriteSlot0(id, p.Slot0.SqrtPriceX96, p.Slot0.Tick, p.Slot0.ProtocolFee, p.Slot0.LPFee); err != nil {
		return err
	}
	if err := pm.store.WriteLiquidity(id, p.Liquidity); err != nil {
		return err
	}
	return pm.store.WriteFeeGrowth(id, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128)
}

// writeTicks mirrors the given ticks, clearing the ones no longer present.
func (pm *PoolManager) writeTicks(id types.PoolID, p *pool.Pool, ticks ...int32) error {
	for _, tick := range ticks {
		info := p.GetTick(tick)
		if info == nil {
			if err := pm.store.ClearTick(id, tick); err != nil {
				return err
			}
			continue
		}
		err := pm.store.WriteTick(id, tick,
			info.LiquidityGross, info.LiquidityNet,
			info.FeeGrowthOutside0X128, info.FeeGrowthOutside1X128)
		if err != nil {
			return err
		}
	}
	return nil
}

// Extsload reads the raw 32-byte word at a storage slot.
func (pm *PoolManager) Extsload(slot common.Hash) ([32]byte, error) {
	return pm.store.ReadWord(slot)
}

// ExtsloadRange reads the raw words at several slots.
func (pm *PoolManager) ExtsloadRange(slots []common.Hash) ([][32]byte, error) {
	words := make([][32]byte, len(slots))
	for i, slot := range slots {
		word, err := pm.store.ReadWord(slot)
		if err != nil {
			return nil, err
		}
		words[i] = word
	}
	return words, nil
}
