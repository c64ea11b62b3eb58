// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/amm/types"
)

// controllerGasLimit bounds the work a fee controller may do per query.
const controllerGasLimit uint64 = 100_000

// ProtocolFeeController decides the protocol fee of new pools. The returned
// bytes are a big-endian packed types.ProtocolFee, at most 32 bytes.
type ProtocolFeeController interface {
	ProtocolFeeForPool(key types.PoolKey, gasLimit uint64) ([]byte, error)
}

// SetProtocolFeeController appoints the controller. Owner only.
func (pm *PoolManager) SetProtocolFeeController(sender, controllerAddr common.Address, controller ProtocolFeeController) error {
	if sender != pm.cfg.Owner {
		return ErrUnauthorized
	}
	pm.mu.Lock()
	pm.feeController = controllerAddr
	pm.controller = controller
	pm.mu.Unlock()
	pm.log.Info("protocol fee controller set", "controller", controllerAddr.Hex())
	return nil
}

// protocolFeeFor queries the controller for a new pool's protocol fee.
// Any controller failure, oversized response or out-of-range value degrades
// to a zero fee so pool creation never depends on the controller behaving.
func (pm *PoolManager) protocolFeeFor(key types.PoolKey) types.ProtocolFee {
	pm.mu.RLock()
	controller := pm.controller
	pm.mu.RUnlock()
	if controller == nil {
		return 0
	}

	raw, err := controller.ProtocolFeeForPool(key, controllerGasLimit)
	if err != nil {
		pm.log.Warn("protocol fee controller failed, using zero fee", "err", err)
		return 0
	}
	if len(raw) > 32 {
		pm.log.Warn("protocol fee controller returned oversized response, using zero fee", "len", len(raw))
		return 0
	}
	v := new(big.Int).SetBytes(raw)
	if !v.IsUint64() || v.Uint64() > uint64(^uint32(0)) {
		pm.log.Warn("protocol fee controller returned out-of-range value, using zero fee")
		return 0
	}
	fee := types.ProtocolFee(v.Uint64())
	if err := fee.Validate(); err != nil {
		pm.log.Warn("protocol fee controller returned invalid fee, using zero fee", "fee", v.Uint64())
		return 0
	}
	return fee
}

// SetProtocolFee updates the protocol fee of an initialized pool.
// Controller only.
func (pm *PoolManager) SetProtocolFee(sender common.Address, key types.PoolKey, fee types.ProtocolFee) error {
	pm.mu.RLock()
	controllerAddr := pm.feeController
	pm.mu.RUnlock()
	if sender != controllerAddr || sender == (common.Address{}) {
		return ErrUnauthorized
	}
	if err := fee.Validate(); err != nil {
		return err
	}

	id, p, err := pm.poolFor(key)
	if err != nil {
		return err
	}
	if err := p.SetProtocolFee(fee); err != nil {
		return err
	}
	if err := pm.store.WriteSlot0(id, p.Slot0.SqrtPriceX96, p.Slot0.Tick, p.Slot0.ProtocolFee, p.Slot0.LPFee); err != nil {
		return err
	}
	pm.log.Info("protocol fee updated", "id", id.Hash().Hex(), "fee", uint32(fee))
	return nil
}

// SetDynamicLPFee updates the stored LP fee of a dynamic-fee pool. Only the
// pool's own extension module may call it.
func (pm *PoolManager) SetDynamicLPFee(sender common.Address, key types.PoolKey, fee uint32) error {
	if !key.IsDynamicFee() {
		return ErrNotDynamicFee
	}
	if sender != key.Hooks {
		return ErrUnauthorized
	}
	if fee > types.FeeMax {
		return types.ErrInvalidFee
	}

	id, p, err := pm.poolFor(key)
	if err != nil {
		return err
	}
	if err := p.SetLPFee(fee); err != nil {
		return err
	}
	return pm.store.WriteSlot0(id, p.Slot0.SqrtPriceX96, p.Slot0.Tick, p.Slot0.ProtocolFee, p.Slot0.LPFee)
}

// accrueProtocolFees adds skimmed fees to the per-currency accrual.
func (pm *PoolManager) accrueProtocolFees(currency types.Currency, amount *big.Int) error {
	pm.mu.Lock()
	accrued, ok := pm.protocolFees[currency]
	if !ok {
		accrued = big.NewInt(0)
	}
	accrued = new(big.Int).Add(accrued, amount)
	pm.protocolFees[currency] = accrued
	pm.mu.Unlock()
	return pm.store.WriteProtocolFees(currency, accrued)
}

// ProtocolFeesAccrued returns the collectible protocol fees in a currency.
func (pm *PoolManager) ProtocolFeesAccrued(currency types.Currency) *big.Int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if accrued, ok := pm.protocolFees[currency]; ok {
		return new(big.Int).Set(accrued)
	}
	return big.NewInt(0)
}

// CollectProtocolFees transfers accrued protocol fees out of custody.
// Controller only; a zero amount collects everything accrued.
func (pm *PoolManager) CollectProtocolFees(sender common.Address, currency types.Currency, recipient common.Address, amount *big.Int) (*big.Int, error) {
	pm.mu.Lock()
	if sender != pm.feeController || sender == (common.Address{}) {
		pm.mu.Unlock()
		return nil, ErrUnauthorized
	}
	accrued, ok := pm.protocolFees[currency]
	if !ok {
		accrued = big.NewInt(0)
	}
	collect := amount
	if collect.Sign() == 0 {
		collect = accrued
	}
	if collect.Cmp(accrued) > 0 {
		pm.mu.Unlock()
		return nil, ErrAmountExceedsAccrued
	}
	remaining := new(big.Int).Sub(accrued, collect)
	pm.protocolFees[currency] = remaining
	pm.mu.Unlock()

	if collect.Sign() > 0 {
		if err := pm.backend.Transfer(currency, pm.cfg.Address, recipient, collect); err != nil {
			return nil, err
		}
	}
	if err := pm.store.WriteProtocolFees(currency, remaining); err != nil {
		return nil, err
	}
	pm.log.Info("protocol fees collected",
		"currency", currency.Address.Hex(),
		"recipient", recipient.Hex(),
		"amount", collect,
	)
	return collect, nil
}
