// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tickmath

import "math/big"

var (
	// Q96 is the UQ64.96 fixed-point representation of 1.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Q128 is the UQ128.128 fixed-point representation of 1, used for the
	// per-unit-liquidity fee-growth accumulators.
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

	// MaxUint128 bounds liquidity magnitudes.
	MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	one = big.NewInt(1)
)

// MulDiv returns floor(a * b / denominator).
func MulDiv(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Div(product, denominator)
}

// MulDivRoundingUp returns ceil(a * b / denominator).
func MulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	quotient, rem := new(big.Int).DivMod(product, denominator, new(big.Int))
	if rem.Sign() > 0 {
		quotient.Add(quotient, one)
	}
	return quotient
}

// DivRoundingUp returns ceil(a / b).
func DivRoundingUp(a, b *big.Int) *big.Int {
	quotient, rem := new(big.Int).DivMod(a, b, new(big.Int))
	if rem.Sign() > 0 {
		quotient.Add(quotient, one)
	}
	return quotient
}
