// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tickmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSqrtPriceAtTickBounds(t *testing.T) {
	minPrice, err := SqrtPriceAtTick(MinTick)
	require.NoError(t, err)
	require.Equal(t, 0, minPrice.Cmp(MinSqrtPrice))

	maxPrice, err := SqrtPriceAtTick(MaxTick)
	require.NoError(t, err)
	require.Equal(t, 0, maxPrice.Cmp(MaxSqrtPrice))

	_, err = SqrtPriceAtTick(MinTick - 1)
	require.ErrorIs(t, err, ErrTickOutOfBounds)
	_, err = SqrtPriceAtTick(MaxTick + 1)
	require.ErrorIs(t, err, ErrTickOutOfBounds)
}

func TestSqrtPriceAtTickZero(t *testing.T) {
	price, err := SqrtPriceAtTick(0)
	require.NoError(t, err)
	require.Equal(t, 0, price.Cmp(Q96), "tick 0 is a 1:1 price")
}

func TestSqrtPriceAtTickMonotonic(t *testing.T) {
	ticks := []int32{MinTick, -887220, -500000, -100000, -60, -1, 0, 1, 60, 100000, 500000, MaxTick}
	var prev *big.Int
	for _, tick := range ticks {
		price, err := SqrtPriceAtTick(tick)
		require.NoError(t, err)
		if prev != nil {
			require.Equal(t, 1, price.Cmp(prev), "price must increase with tick %d", tick)
		}
		prev = price
	}
}

func TestSqrtPriceAtTickSymmetry(t *testing.T) {
	// sqrt(1.0001^t) * sqrt(1.0001^-t) should be very close to one.
	for _, tick := range []int32{1, 60, 1000, 50000, 887272} {
		pos, err := SqrtPriceAtTick(tick)
		require.NoError(t, err)
		neg, err := SqrtPriceAtTick(-tick)
		require.NoError(t, err)

		product := new(big.Int).Mul(pos, neg)
		product.Div(product, Q96)
		diff := new(big.Int).Sub(product, Q96)
		diff.Abs(diff)

		// The deep negative ticks round in their last Q96 bit, so allow a
		// relative error of 2^-24.
		bound := new(big.Int).Rsh(Q96, 24)
		require.True(t, diff.Cmp(bound) <= 0, "tick %d off by %s", tick, diff)
	}
}

func TestTickAtSqrtPriceRoundTrip(t *testing.T) {
	ticks := []int32{MinTick, -700001, -60, -2, -1, 0, 1, 2, 60, 12345, 700001, MaxTick - 1}
	for _, tick := range ticks {
		price, err := SqrtPriceAtTick(tick)
		require.NoError(t, err)

		got, err := TickAtSqrtPrice(price)
		require.NoError(t, err)
		require.Equal(t, tick, got)

		// One above the exact price still maps to the same tick.
		got, err = TickAtSqrtPrice(new(big.Int).Add(price, big.NewInt(1)))
		require.NoError(t, err)
		require.Equal(t, tick, got)
	}
}

func TestTickAtSqrtPriceGreatestTick(t *testing.T) {
	// Just below a tick's price maps to the tick below.
	price, err := SqrtPriceAtTick(100)
	require.NoError(t, err)
	tick, err := TickAtSqrtPrice(new(big.Int).Sub(price, big.NewInt(1)))
	require.NoError(t, err)
	require.Equal(t, int32(99), tick)
}

func TestTickAtSqrtPriceBounds(t *testing.T) {
	tick, err := TickAtSqrtPrice(MinSqrtPrice)
	require.NoError(t, err)
	require.Equal(t, MinTick, tick)

	_, err = TickAtSqrtPrice(new(big.Int).Sub(MinSqrtPrice, big.NewInt(1)))
	require.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)

	// The range is half-open at the top.
	_, err = TickAtSqrtPrice(MaxSqrtPrice)
	require.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)

	tick, err = TickAtSqrtPrice(new(big.Int).Sub(MaxSqrtPrice, big.NewInt(1)))
	require.NoError(t, err)
	require.Equal(t, MaxTick-1, tick)
}
