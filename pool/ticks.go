// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"math/big"

	"github.com/luxfi/amm/tickmath"
)

// TickInfo is the state tracked per initialized tick boundary.
type TickInfo struct {
	// LiquidityGross counts how many position boundaries reference the
	// tick; the tick is initialized iff it is > 0.
	LiquidityGross *big.Int
	// LiquidityNet is the signed liquidity change applied when the tick is
	// crossed moving upward. The sum over all ticks of a pool is zero.
	LiquidityNet *big.Int
	// Fee growth on the other side of this tick relative to the current
	// price, per unit of liquidity. Only meaningful relative to a snapshot.
	FeeGrowthOutside0X128 *big.Int
	FeeGrowthOutside1X128 *big.Int
}

func newTickInfo() *TickInfo {
	return &TickInfo{
		LiquidityGross:        big.NewInt(0),
		LiquidityNet:          big.NewInt(0),
		FeeGrowthOutside0X128: big.NewInt(0),
		FeeGrowthOutside1X128: big.NewInt(0),
	}
}

// updateTick applies a liquidity delta to one boundary tick and reports
// whether its initialized state flipped.
func (p *Pool) updateTick(tick int32, liquidityDelta *big.Int, upper bool) (bool, error) {
	info, ok := p.ticks[tick]
	if !ok {
		info = newTickInfo()
	}

	grossBefore := info.LiquidityGross
	grossAfter, err := tickmath.AddDelta(grossBefore, liquidityDelta)
	if err != nil {
		return false, err
	}

	flipped := (grossAfter.Sign() == 0) != (grossBefore.Sign() == 0)

	if grossBefore.Sign() == 0 && tick <= p.Slot0.Tick {
		// All growth so far is treated as having happened below the tick.
		info.FeeGrowthOutside0X128 = new(big.Int).Set(p.FeeGrowthGlobal0X128)
		info.FeeGrowthOutside1X128 = new(big.Int).Set(p.FeeGrowthGlobal1X128)
	}

	info.LiquidityGross = grossAfter
	if upper {
		info.LiquidityNet = new(big.Int).Sub(info.LiquidityNet, liquidityDelta)
	} else {
		info.LiquidityNet = new(big.Int).Add(info.LiquidityNet, liquidityDelta)
	}

	p.ticks[tick] = info
	return flipped, nil
}

// clearTick removes a tick whose gross liquidity dropped to zero.
func (p *Pool) clearTick(tick int32) {
	delete(p.ticks, tick)
}

// crossTick transitions a tick from one side of the current price to the
// other: the outside growth becomes global minus itself, and the returned
// net liquidity is applied by the caller (negated for downward crossings).
func (p *Pool) crossTick(tick int32) *big.Int {
	info, ok := p.ticks[tick]
	if !ok {
		return big.NewInt(0)
	}
	info.FeeGrowthOutside0X128 = wrapSub256(p.FeeGrowthGlobal0X128, info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128 = wrapSub256(p.FeeGrowthGlobal1X128, info.FeeGrowthOutside1X128)
	return info.LiquidityNet
}

// feeGrowthInside computes the fee growth per unit of liquidity inside a
// tick range. Defined piecewise for the current price below, inside or
// above the range; the subtraction wraps modulo 2^256 like the accumulators.
func (p *Pool) feeGrowthInside(tickLower, tickUpper int32) (*big.Int, *big.Int) {
	var lower, upper *TickInfo
	if info, ok := p.ticks[tickLower]; ok {
		lower = info
	} else {
		lower = newTickInfo()
	}
	if info, ok := p.ticks[tickUpper]; ok {
		upper = info
	} else {
		upper = newTickInfo()
	}

	current := p.Slot0.Tick

	var below0, below1 *big.Int
	if current >= tickLower {
		below0, below1 = lower.FeeGrowthOutside0X128, lower.FeeGrowthOutside1X128
	} else {
		below0 = wrapSub256(p.FeeGrowthGlobal0X128, lower.FeeGrowthOutside0X128)
		below1 = wrapSub256(p.FeeGrowthGlobal1X128, lower.FeeGrowthOutside1X128)
	}

	var above0, above1 *big.Int
	if current < tickUpper {
		above0, above1 = upper.FeeGrowthOutside0X128, upper.FeeGrowthOutside1X128
	} else {
		above0 = wrapSub256(p.FeeGrowthGlobal0X128, upper.FeeGrowthOutside0X128)
		above1 = wrapSub256(p.FeeGrowthGlobal1X128, upper.FeeGrowthOutside1X128)
	}

	inside0 := wrapSub256(wrapSub256(p.FeeGrowthGlobal0X128, below0), above0)
	inside1 := wrapSub256(wrapSub256(p.FeeGrowthGlobal1X128, below1), above1)
	return inside0, inside1
}

var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// wrapSub256 returns (a - b) mod 2^256. The fee-growth accumulators are
// defined with wrapping arithmetic; only differences between snapshots are
// meaningful.
func wrapSub256(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	d.Mod(d, two256)
	return d
}
