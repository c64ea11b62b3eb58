// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/amm/hooks"
	"github.com/luxfi/amm/pool"
	"github.com/luxfi/amm/types"
)

// ModifyLiquidity changes the sender's position on a pool inside a
// settlement session. The owner of the touched position is always the
// sender. It returns the sender's total delta (principal plus hook
// adjustment) and the fee credit separately.
func (pm *PoolManager) ModifyLiquidity(sender common.Address, key types.PoolKey, params pool.ModifyLiquidityParams, hookData []byte) (types.BalanceDelta, types.BalanceDelta, error) {
	if err := pm.checkPaused(); err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}
	if err := pm.checkSession(); err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}
	id, p, err := pm.poolFor(key)
	if err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}
	params.Owner = sender

	if err := pm.gateway.BeforeModifyLiquidity(sender, key, params, hookData); err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}

	principal, feeDelta, err := p.ModifyLiquidity(params)
	if err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}
	callerDelta := principal.Add(feeDelta)

	adjustment, err := pm.gateway.AfterModifyLiquidity(sender, key, params, principal, feeDelta, hookData)
	if err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}
	if !adjustment.IsZero() {
		// The module takes over part of the sender's obligation; the pair of
		// entries nets to zero across the session.
		callerDelta = callerDelta.Sub(adjustment)
		if err := pm.accountDelta(key.Hooks, key, adjustment); err != nil {
			return types.BalanceDelta{}, types.BalanceDelta{}, err
		}
	}

	if err := pm.accountDelta(sender, key, callerDelta); err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}

	if err := pm.writePoolCore(id, p); err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}
	if err := pm.writeTicks(id, p, params.TickLower, params.TickUpper); err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}
	if err := pm.writePosition(id, p, params); err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}

	pm.log.Debug("liquidity modified",
		"id", id.Hash().Hex(),
		"owner", sender.Hex(),
		"tickLower", params.TickLower,
		"tickUpper", params.TickUpper,
		"delta", params.LiquidityDelta,
	)
	return callerDelta, feeDelta, nil
}

func (pm *PoolManager) writePosition(id types.PoolID, p *pool.Pool, params pool.ModifyLiquidityParams) error {
	key := pool.PositionKey(params.Owner, params.TickLower, params.TickUpper, params.Salt)
	pos := p.GetPosition(params.Owner, params.TickLower, params.TickUpper, params.Salt)
	if pos.Liquidity.Sign() == 0 {
		return pm.store.ClearPosition(id, key)
	}
	return pm.store.WritePosition(id, key, pos.Liquidity,
		pos.FeeGrowthInside0LastX128, pos.FeeGrowthInside1LastX128)
}

// Swap trades against a pool inside a settlement session. Exact-output
// swaps that exhaust pool liquidity fail; use SwapPartialFill to accept the
// partial result instead.
func (pm *PoolManager) Swap(sender common.Address, key types.PoolKey, params pool.SwapParams, hookData []byte) (types.BalanceDelta, error) {
	return pm.swap(sender, key, params, hookData, false)
}

// SwapPartialFill is Swap with exact-output exhaustion allowed, returning
// whatever output the pool could produce.
func (pm *PoolManager) SwapPartialFill(sender common.Address, key types.PoolKey, params pool.SwapParams, hookData []byte) (types.BalanceDelta, error) {
	return pm.swap(sender, key, params, hookData, true)
}

func (pm *PoolManager) swap(sender common.Address, key types.PoolKey, params pool.SwapParams, hookData []byte, allowPartialFill bool) (types.BalanceDelta, error) {
	if err := pm.checkPaused(); err != nil {
		return types.BalanceDelta{}, err
	}
	if err := pm.checkSession(); err != nil {
		return types.BalanceDelta{}, err
	}
	id, p, err := pm.poolFor(key)
	if err != nil {
		return types.BalanceDelta{}, err
	}
	params.AllowPartialFill = allowPartialFill

	before, err := pm.gateway.BeforeSwap(sender, key, params, hookData)
	if err != nil {
		return types.BalanceDelta{}, err
	}
	if before.LPFeeOverride != nil {
		params.LPFeeOverride = before.LPFeeOverride
	}

	result, err := p.Swap(params)
	if err != nil {
		return types.BalanceDelta{}, err
	}
	delta := result.Delta

	if result.AmountToProtocol.Sign() > 0 {
		input := key.Currency0
		if !params.ZeroForOne {
			input = key.Currency1
		}
		if err := pm.accrueProtocolFees(input, result.AmountToProtocol); err != nil {
			return types.BalanceDelta{}, err
		}
	}

	specifiedIsZero := params.ZeroForOne == (params.AmountSpecified.Sign() > 0)

	if before.DeltaSpecified != nil && before.DeltaSpecified.Sign() != 0 {
		delta, err = pm.foldHookDelta(key, delta, before.DeltaSpecified, specifiedIsZero)
		if err != nil {
			return types.BalanceDelta{}, err
		}
	}

	after, err := pm.gateway.AfterSwap(sender, key, params, delta, hookData)
	if err != nil {
		return types.BalanceDelta{}, err
	}
	if after != nil && after.Sign() != 0 {
		delta, err = pm.foldHookDelta(key, delta, after, !specifiedIsZero)
		if err != nil {
			return types.BalanceDelta{}, err
		}
	}

	if err := pm.accountDelta(sender, key, delta); err != nil {
		return types.BalanceDelta{}, err
	}

	if err := pm.writePoolCore(id, p); err != nil {
		return types.BalanceDelta{}, err
	}
	if err := pm.writeTicks(id, p, result.CrossedTicks...); err != nil {
		return types.BalanceDelta{}, err
	}

	pm.log.Debug("swap executed",
		"id", id.Hash().Hex(),
		"sender", sender.Hex(),
		"zeroForOne", params.ZeroForOne,
		"amountSpecified", params.AmountSpecified,
		"amount0", delta.Amount0,
		"amount1", delta.Amount1,
		"crossed", len(result.CrossedTicks),
	)
	return delta, nil
}

// foldHookDelta moves part of the swapper's obligation in one currency onto
// the module. zeroSide selects which currency of the delta is adjusted.
func (pm *PoolManager) foldHookDelta(key types.PoolKey, delta types.BalanceDelta, hookDelta *big.Int, zeroSide bool) (types.BalanceDelta, error) {
	side := delta.Amount1
	currency := key.Currency1
	if zeroSide {
		side = delta.Amount0
		currency = key.Currency0
	}
	if hookDelta.CmpAbs(side) > 0 {
		return types.BalanceDelta{}, hooks.ErrHookDeltaExceedsSwap
	}

	if err := pm.counterparty.AccountDelta(key.Hooks, currency, hookDelta); err != nil {
		return types.BalanceDelta{}, err
	}
	adjusted := new(big.Int).Sub(side, hookDelta)
	if zeroSide {
		return types.BalanceDelta{Amount0: adjusted, Amount1: delta.Amount1}, nil
	}
	return types.BalanceDelta{Amount0: delta.Amount0, Amount1: adjusted}, nil
}

// Donate gifts currency to the in-range liquidity of a pool inside a
// settlement session.
func (pm *PoolManager) Donate(sender common.Address, key types.PoolKey, amount0, amount1 *big.Int, hookData []byte) (types.BalanceDelta, error) {
	if err := pm.checkPaused(); err != nil {
		return types.BalanceDelta{}, err
	}
	if err := pm.checkSession(); err != nil {
		return types.BalanceDelta{}, err
	}
	id, p, err := pm.poolFor(key)
	if err != nil {
		return types.BalanceDelta{}, err
	}

	if err := pm.gateway.BeforeDonate(sender, key, amount0, amount1, hookData); err != nil {
		return types.BalanceDelta{}, err
	}

	delta, err := p.Donate(amount0, amount1)
	if err != nil {
		return types.BalanceDelta{}, err
	}
	if err := pm.accountDelta(sender, key, delta); err != nil {
		return types.BalanceDelta{}, err
	}
	if err := pm.writePoolCore(id, p); err != nil {
		return types.BalanceDelta{}, err
	}

	if err := pm.gateway.AfterDonate(sender, key, amount0, amount1, hookData); err != nil {
		return types.BalanceDelta{}, err
	}
	return delta, nil
}

// accountDelta records both legs of a balance delta against an actor.
func (pm *PoolManager) accountDelta(actor common.Address, key types.PoolKey, delta types.BalanceDelta) error {
	if err := pm.counterparty.AccountDelta(actor, key.Currency0, delta.Amount0); err != nil {
		return err
	}
	return pm.counterparty.AccountDelta(actor, key.Currency1, delta.Amount1)
}

// Settle pays the sender's debt in a currency from their account.
func (pm *PoolManager) Settle(sender common.Address, currency types.Currency, amount *big.Int) error {
	return pm.ledger.Settle(sender, currency, amount)
}

// Take withdraws owed currency to a recipient.
func (pm *PoolManager) Take(sender common.Address, currency types.Currency, to common.Address, amount *big.Int) error {
	return pm.ledger.Take(sender, currency, to, amount)
}

// Mint issues credit balance instead of withdrawing, and mirrors the new
// balance into storage.
func (pm *PoolManager) Mint(sender common.Address, currency types.Currency, to common.Address, amount *big.Int) error {
	if err := pm.ledger.Mint(sender, currency, to, amount); err != nil {
		return err
	}
	return pm.store.WriteCredit(to, currency, pm.ledger.CreditBalance(to, currency))
}

// Burn redeems credit balance instead of settling, and mirrors the new
// balance into storage.
func (pm *PoolManager) Burn(sender common.Address, currency types.Currency, from common.Address, amount *big.Int) error {
	if err := pm.ledger.Burn(sender, currency, from, amount); err != nil {
		return err
	}
	return pm.store.WriteCredit(from, currency, pm.ledger.CreditBalance(from, currency))
}
