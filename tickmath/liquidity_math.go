// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tickmath

import (
	"errors"
	"math/big"
)

// Arithmetic violations are a failure kind of their own, distinct from
// precondition errors, so callers and tests can tell them apart.
var (
	ErrLiquidityUnderflow = errors.New("liquidity delta underflow")
	ErrLiquidityOverflow  = errors.New("liquidity delta overflow")
)

// AddDelta applies a signed delta to an unsigned liquidity magnitude with
// explicit under/overflow checks. The input is never mutated.
func AddDelta(liquidity, delta *big.Int) (*big.Int, error) {
	result := new(big.Int).Add(liquidity, delta)
	if result.Sign() < 0 {
		return nil, ErrLiquidityUnderflow
	}
	if result.Cmp(MaxUint128) > 0 {
		return nil, ErrLiquidityOverflow
	}
	return result, nil
}
