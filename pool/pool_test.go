// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/amm/tickmath"
	"github.com/luxfi/amm/types"
)

// newTestPool initializes a pool at a 1:1 price.
func newTestPool(t *testing.T, tickSpacing int32, lpFee uint32) *Pool {
	t.Helper()
	p := NewPool(tickSpacing)
	tick, err := p.Initialize(new(big.Int).Set(tickmath.Q96), 0, lpFee)
	require.NoError(t, err)
	require.Equal(t, int32(0), tick)
	return p
}

// addTestLiquidity opens a position and requires success.
func addTestLiquidity(t *testing.T, p *Pool, owner common.Address, lower, upper int32, liquidity int64) (types.BalanceDelta, types.BalanceDelta) {
	t.Helper()
	principal, fees, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Owner:          owner,
		TickLower:      lower,
		TickUpper:      upper,
		LiquidityDelta: big.NewInt(liquidity),
	})
	require.NoError(t, err)
	return principal, fees
}

func TestPoolInitialize(t *testing.T) {
	p := NewPool(60)
	require.False(t, p.IsInitialized())

	tick, err := p.Initialize(new(big.Int).Set(tickmath.Q96), 0, 3000)
	require.NoError(t, err)
	require.Equal(t, int32(0), tick)
	require.True(t, p.IsInitialized())
	require.Equal(t, uint32(3000), p.Slot0.LPFee)

	_, err = p.Initialize(new(big.Int).Set(tickmath.Q96), 0, 3000)
	require.ErrorIs(t, err, ErrPoolAlreadyInitialized)
}

func TestPoolInitializeRejectsBadPrice(t *testing.T) {
	p := NewPool(60)
	_, err := p.Initialize(big.NewInt(1), 0, 0)
	require.ErrorIs(t, err, ErrInvalidSqrtPrice)

	_, err = p.Initialize(new(big.Int).Set(tickmath.MaxSqrtPrice), 0, 0)
	require.ErrorIs(t, err, ErrInvalidSqrtPrice)
}

func TestPoolOperationsRequireInitialization(t *testing.T) {
	p := NewPool(60)

	_, _, err := p.ModifyLiquidity(ModifyLiquidityParams{
		TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(1),
	})
	require.ErrorIs(t, err, ErrPoolNotInitialized)

	_, err = p.Swap(SwapParams{
		AmountSpecified:   big.NewInt(1),
		SqrtPriceLimitX96: new(big.Int).Set(tickmath.MinSqrtPrice),
		ZeroForOne:        true,
	})
	require.ErrorIs(t, err, ErrPoolNotInitialized)

	_, err = p.Donate(big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, ErrPoolNotInitialized)
}

func TestDonateRequiresLiquidity(t *testing.T) {
	p := newTestPool(t, 60, 0)
	_, err := p.Donate(big.NewInt(100), big.NewInt(100))
	require.ErrorIs(t, err, ErrNoLiquidityToReceiveFees)
}

func TestDonateRejectsNegativeAmounts(t *testing.T) {
	p := newTestPool(t, 60, 0)
	owner := common.HexToAddress("0xa11ce")
	addTestLiquidity(t, p, owner, -60, 60, 1_000_000)

	// A negative donation would credit the donor with pool assets.
	_, err := p.Donate(big.NewInt(-100), big.NewInt(0))
	require.ErrorIs(t, err, ErrNegativeDonation)
	_, err = p.Donate(big.NewInt(0), big.NewInt(-1))
	require.ErrorIs(t, err, ErrNegativeDonation)

	require.Equal(t, 0, p.FeeGrowthGlobal0X128.Sign())
	require.Equal(t, 0, p.FeeGrowthGlobal1X128.Sign())
}

func TestDonateCreditsInRangeLiquidity(t *testing.T) {
	p := newTestPool(t, 60, 0)
	owner := common.HexToAddress("0xa11ce")
	addTestLiquidity(t, p, owner, -600, 600, 1_000_000)

	delta, err := p.Donate(big.NewInt(1000), big.NewInt(2000))
	require.NoError(t, err)
	require.Equal(t, int64(1000), delta.Amount0.Int64())
	require.Equal(t, int64(2000), delta.Amount1.Int64())

	// A poke collects the donation, up to fee-growth truncation.
	_, fees, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Owner: owner, TickLower: -600, TickUpper: 600,
		LiquidityDelta: big.NewInt(0),
	})
	require.NoError(t, err)
	require.True(t, fees.Amount0.Sign() < 0)
	require.True(t, fees.Amount1.Sign() < 0)
	require.True(t, new(big.Int).Neg(fees.Amount0).Int64() >= 999)
	require.True(t, new(big.Int).Neg(fees.Amount1).Int64() >= 1999)
}
