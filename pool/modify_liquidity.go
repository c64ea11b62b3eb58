// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/amm/tickmath"
	"github.com/luxfi/amm/types"
)

// ModifyLiquidityParams describes one position change.
type ModifyLiquidityParams struct {
	Owner     common.Address
	TickLower int32
	TickUpper int32
	// LiquidityDelta is positive to add and negative to remove. Zero pokes
	// the position, settling pending fees without changing liquidity.
	LiquidityDelta *big.Int
	// Salt distinguishes multiple positions of one owner on the same range.
	Salt [32]byte
}

func (p *Pool) checkTicks(tickLower, tickUpper int32) error {
	if tickLower >= tickUpper {
		return ErrTicksMisordered
	}
	if tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return ErrTickOutOfRange
	}
	if tickLower%p.TickSpacing != 0 || tickUpper%p.TickSpacing != 0 {
		return ErrTickMisaligned
	}
	return nil
}

// ModifyLiquidity adds or removes liquidity on a range, or pokes a position
// with a zero delta. It returns the principal delta (what the owner owes or
// is owed for the liquidity change) and the fee credit delta (always owed to
// the owner) separately.
func (p *Pool) ModifyLiquidity(params ModifyLiquidityParams) (types.BalanceDelta, types.BalanceDelta, error) {
	if !p.IsInitialized() {
		return types.BalanceDelta{}, types.BalanceDelta{}, ErrPoolNotInitialized
	}
	if err := p.checkTicks(params.TickLower, params.TickUpper); err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}

	delta := params.LiquidityDelta

	key := PositionKey(params.Owner, params.TickLower, params.TickUpper, params.Salt)
	pos, ok := p.positions[key]
	if !ok {
		pos = newPosition()
	}
	// Reject over-removal before any tick is touched so a failed change
	// leaves the pool untouched.
	if delta.Sign() < 0 && pos.Liquidity.CmpAbs(delta) < 0 {
		return types.BalanceDelta{}, types.BalanceDelta{}, tickmath.ErrLiquidityUnderflow
	}

	var flippedLower, flippedUpper bool

	if delta.Sign() != 0 {
		var err error
		flippedLower, err = p.updateTick(params.TickLower, delta, false)
		if err != nil {
			return types.BalanceDelta{}, types.BalanceDelta{}, err
		}
		flippedUpper, err = p.updateTick(params.TickUpper, delta, true)
		if err != nil {
			return types.BalanceDelta{}, types.BalanceDelta{}, err
		}
		if flippedLower {
			p.bitmap.Flip(params.TickLower, p.TickSpacing)
		}
		if flippedUpper {
			p.bitmap.Flip(params.TickUpper, p.TickSpacing)
		}
	}

	// Snapshot inside growth before any tick is cleared; a cleared tick
	// would read as zero outside growth and corrupt the credit.
	inside0, inside1 := p.feeGrowthInside(params.TickLower, params.TickUpper)

	credit0, credit1, err := pos.update(delta, inside0, inside1)
	if err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}
	if pos.Liquidity.Sign() == 0 {
		delete(p.positions, key)
	} else {
		p.positions[key] = pos
	}

	if delta.Sign() < 0 {
		if flippedLower {
			p.clearTick(params.TickLower)
		}
		if flippedUpper {
			p.clearTick(params.TickUpper)
		}
	}

	principal, err := p.principalDelta(params.TickLower, params.TickUpper, delta)
	if err != nil {
		return types.BalanceDelta{}, types.BalanceDelta{}, err
	}

	// Fee credits are always owed to the owner.
	feeDelta := types.BalanceDelta{
		Amount0: new(big.Int).Neg(credit0),
		Amount1: new(big.Int).Neg(credit1),
	}
	return principal, feeDelta, nil
}

// principalDelta computes the currency amounts backing a liquidity change,
// split by where the range sits relative to the current price. Added amounts
// round up in the pool's favor; removed amounts round down.
func (p *Pool) principalDelta(tickLower, tickUpper int32, liquidityDelta *big.Int) (types.BalanceDelta, error) {
	if liquidityDelta.Sign() == 0 {
		return types.ZeroBalanceDelta(), nil
	}

	sqrtLower, err := tickmath.SqrtPriceAtTick(tickLower)
	if err != nil {
		return types.BalanceDelta{}, err
	}
	sqrtUpper, err := tickmath.SqrtPriceAtTick(tickUpper)
	if err != nil {
		return types.BalanceDelta{}, err
	}

	adding := liquidityDelta.Sign() > 0
	absLiquidity := new(big.Int).Abs(liquidityDelta)

	amount0 := big.NewInt(0)
	amount1 := big.NewInt(0)
	tick := p.Slot0.Tick

	switch {
	case tick < tickLower:
		// Entirely above the price: all currency0.
		amount0, err = tickmath.GetAmount0Delta(sqrtLower, sqrtUpper, absLiquidity, adding)
		if err != nil {
			return types.BalanceDelta{}, err
		}
	case tick < tickUpper:
		amount0, err = tickmath.GetAmount0Delta(p.Slot0.SqrtPriceX96, sqrtUpper, absLiquidity, adding)
		if err != nil {
			return types.BalanceDelta{}, err
		}
		amount1 = tickmath.GetAmount1Delta(sqrtLower, p.Slot0.SqrtPriceX96, absLiquidity, adding)

		// The range straddles the price: in-range liquidity changes.
		p.Liquidity, err = tickmath.AddDelta(p.Liquidity, liquidityDelta)
		if err != nil {
			return types.BalanceDelta{}, err
		}
	default:
		// Entirely below the price: all currency1.
		amount1 = tickmath.GetAmount1Delta(sqrtLower, sqrtUpper, absLiquidity, adding)
	}

	if !adding {
		amount0.Neg(amount0)
		amount1.Neg(amount1)
	}
	return types.BalanceDelta{Amount0: amount0, Amount1: amount1}, nil
}
