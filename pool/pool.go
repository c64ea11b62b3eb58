// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pool implements the per-pool state machine of the AMM: the tick
// registry and bitmap, the position registry, concentrated-liquidity
// modification and the tick-walking swap stepper. A Pool knows nothing about
// currencies, hooks or settlement; it operates purely on prices, ticks,
// liquidity and fee accumulators.
package pool

import (
	"math/big"

	"github.com/luxfi/amm/tickmath"
	"github.com/luxfi/amm/types"
)

// Slot0 is the frequently-accessed pool state, grouped the way it is stored.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	ProtocolFee  types.ProtocolFee
	LPFee        uint32
}

// Pool is the state machine for one pool.
type Pool struct {
	Slot0 Slot0

	// Liquidity in range at the current price.
	Liquidity *big.Int

	// Cumulative fees per unit of in-range liquidity, Q128, wrapping mod 2^256.
	FeeGrowthGlobal0X128 *big.Int
	FeeGrowthGlobal1X128 *big.Int

	TickSpacing int32

	ticks     map[int32]*TickInfo
	bitmap    TickBitmap
	positions map[[32]byte]*Position
}

// NewPool creates an uninitialized pool with the given tick spacing.
func NewPool(tickSpacing int32) *Pool {
	return &Pool{
		Liquidity:            big.NewInt(0),
		FeeGrowthGlobal0X128: big.NewInt(0),
		FeeGrowthGlobal1X128: big.NewInt(0),
		TickSpacing:          tickSpacing,
		ticks:                make(map[int32]*TickInfo),
		bitmap:               make(TickBitmap),
		positions:            make(map[[32]byte]*Position),
	}
}

// IsInitialized reports whether the pool holds a price.
func (p *Pool) IsInitialized() bool {
	return p.Slot0.SqrtPriceX96 != nil && p.Slot0.SqrtPriceX96.Sign() != 0
}

// Initialize sets the starting price of the pool and returns the tick it
// lands on. A pool can only be initialized once.
func (p *Pool) Initialize(sqrtPriceX96 *big.Int, protocolFee types.ProtocolFee, lpFee uint32) (int32, error) {
	if p.IsInitialized() {
		return 0, ErrPoolAlreadyInitialized
	}
	if sqrtPriceX96.Cmp(tickmath.MinSqrtPrice) < 0 || sqrtPriceX96.Cmp(tickmath.MaxSqrtPrice) >= 0 {
		return 0, ErrInvalidSqrtPrice
	}

	tick, err := tickmath.TickAtSqrtPrice(sqrtPriceX96)
	if err != nil {
		return 0, err
	}

	p.Slot0 = Slot0{
		SqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
		Tick:         tick,
		ProtocolFee:  protocolFee,
		LPFee:        lpFee,
	}
	return tick, nil
}

// SetProtocolFee updates the stored protocol fee.
func (p *Pool) SetProtocolFee(fee types.ProtocolFee) error {
	if !p.IsInitialized() {
		return ErrPoolNotInitialized
	}
	p.Slot0.ProtocolFee = fee
	return nil
}

// SetLPFee updates the stored LP fee. Only meaningful for dynamic-fee pools.
func (p *Pool) SetLPFee(fee uint32) error {
	if !p.IsInitialized() {
		return ErrPoolNotInitialized
	}
	p.Slot0.LPFee = fee
	return nil
}

// Donate credits both fee accumulators directly, gifting the amounts to the
// liquidity in range at the current price. Fails when nobody is in range.
func (p *Pool) Donate(amount0, amount1 *big.Int) (types.BalanceDelta, error) {
	if !p.IsInitialized() {
		return types.BalanceDelta{}, ErrPoolNotInitialized
	}
	if amount0.Sign() < 0 || amount1.Sign() < 0 {
		// A negative amount would come back as a credit to the donor.
		return types.BalanceDelta{}, ErrNegativeDonation
	}
	if p.Liquidity.Sign() == 0 {
		return types.BalanceDelta{}, ErrNoLiquidityToReceiveFees
	}

	if amount0.Sign() > 0 {
		p.FeeGrowthGlobal0X128 = wrapAdd256(p.FeeGrowthGlobal0X128,
			tickmath.MulDiv(amount0, tickmath.Q128, p.Liquidity))
	}
	if amount1.Sign() > 0 {
		p.FeeGrowthGlobal1X128 = wrapAdd256(p.FeeGrowthGlobal1X128,
			tickmath.MulDiv(amount1, tickmath.Q128, p.Liquidity))
	}

	// The donor owes both amounts to the pool.
	return types.NewBalanceDelta(amount0, amount1), nil
}

// GetTick returns the tick info, or nil when the tick is uninitialized.
func (p *Pool) GetTick(tick int32) *TickInfo {
	return p.ticks[tick]
}

func wrapAdd256(a, b *big.Int) *big.Int {
	s := new(big.Int).Add(a, b)
	s.Mod(s, two256)
	return s
}
