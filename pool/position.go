// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"encoding/binary"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/amm/tickmath"
)

// Position is a liquidity range owned by (owner, tickLower, tickUpper, salt).
type Position struct {
	Liquidity *big.Int
	// Fee growth inside the range as of the last touch; fee credit is the
	// difference to the current inside growth, times liquidity.
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
}

func newPosition() *Position {
	return &Position{
		Liquidity:                big.NewInt(0),
		FeeGrowthInside0LastX128: big.NewInt(0),
		FeeGrowthInside1LastX128: big.NewInt(0),
	}
}

// PositionKey computes the unique position identifier.
func PositionKey(owner common.Address, tickLower, tickUpper int32, salt [32]byte) [32]byte {
	h := blake3.New()
	h.Write(owner.Bytes())

	var ticks [8]byte
	binary.BigEndian.PutUint32(ticks[:4], uint32(tickLower))
	binary.BigEndian.PutUint32(ticks[4:], uint32(tickUpper))
	h.Write(ticks[:])
	h.Write(salt[:])

	var key [32]byte
	h.Digest().Read(key[:])
	return key
}

// update applies a checked liquidity delta and settles the pending fee
// credit against the given inside-growth values, advancing the snapshot.
// Touching an empty position with a zero delta fails.
func (pos *Position) update(liquidityDelta, feeGrowthInside0X128, feeGrowthInside1X128 *big.Int) (*big.Int, *big.Int, error) {
	if liquidityDelta.Sign() == 0 && pos.Liquidity.Sign() == 0 {
		return nil, nil, ErrPositionEmpty
	}

	liquidityNext, err := tickmath.AddDelta(pos.Liquidity, liquidityDelta)
	if err != nil {
		return nil, nil, err
	}

	credit0 := tickmath.MulDiv(wrapSub256(feeGrowthInside0X128, pos.FeeGrowthInside0LastX128), pos.Liquidity, tickmath.Q128)
	credit1 := tickmath.MulDiv(wrapSub256(feeGrowthInside1X128, pos.FeeGrowthInside1LastX128), pos.Liquidity, tickmath.Q128)

	pos.Liquidity = liquidityNext
	pos.FeeGrowthInside0LastX128 = new(big.Int).Set(feeGrowthInside0X128)
	pos.FeeGrowthInside1LastX128 = new(big.Int).Set(feeGrowthInside1X128)

	return credit0, credit1, nil
}

// GetPosition returns the position for the key, or an empty one.
func (p *Pool) GetPosition(owner common.Address, tickLower, tickUpper int32, salt [32]byte) *Position {
	if pos, ok := p.positions[PositionKey(owner, tickLower, tickUpper, salt)]; ok {
		return pos
	}
	return newPosition()
}
