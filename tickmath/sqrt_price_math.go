// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tickmath

import (
	"errors"
	"math/big"
)

var (
	ErrLiquidityZero    = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero    = errors.New("sqrt price must be greater than zero")
	ErrPriceUnderflow   = errors.New("sqrt price underflow")
	ErrAmountOverflow   = errors.New("amount overflows price computation")
	sqrtPriceResolution = uint(96)
)

// GetNextSqrtPriceFromAmount0RoundingUp computes the next sqrt price after
// adding (add=true) or removing (add=false) a delta of currency0.
// Rounds up so the pool never gives out more than owed.
func GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPX96), nil
	}

	numerator1 := new(big.Int).Lsh(liquidity, sqrtPriceResolution)
	product := new(big.Int).Mul(amount, sqrtPX96)

	if add {
		denominator := new(big.Int).Add(numerator1, product)
		return MulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
	}

	if numerator1.Cmp(product) <= 0 {
		return nil, ErrAmountOverflow
	}
	denominator := new(big.Int).Sub(numerator1, product)
	return MulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
}

// GetNextSqrtPriceFromAmount1RoundingDown computes the next sqrt price after
// adding or removing a delta of currency1. Rounds down for the same reason.
func GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if add {
		quotient := MulDiv(amount, Q96, liquidity)
		return new(big.Int).Add(sqrtPX96, quotient), nil
	}

	quotient := MulDivRoundingUp(amount, Q96, liquidity)
	if sqrtPX96.Cmp(quotient) <= 0 {
		return nil, ErrPriceUnderflow
	}
	return new(big.Int).Sub(sqrtPX96, quotient), nil
}

// GetNextSqrtPriceFromInput returns the price after swapping amountIn of the
// input currency at the given liquidity.
func GetNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput returns the price after paying out amountOut of
// the output currency at the given liquidity.
func GetNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

// GetAmount0Delta returns the currency0 delta between two sqrt prices for a
// liquidity magnitude: liquidity * 2^96 * (sqrtB - sqrtA) / (sqrtB * sqrtA).
func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}

	numerator1 := new(big.Int).Lsh(liquidity, sqrtPriceResolution)
	numerator2 := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		term := MulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96)
		return DivRoundingUp(term, sqrtRatioAX96), nil
	}
	term := MulDiv(numerator1, numerator2, sqrtRatioBX96)
	return term.Div(term, sqrtRatioAX96), nil
}

// GetAmount1Delta returns the currency1 delta between two sqrt prices:
// liquidity * (sqrtB - sqrtA) / 2^96.
func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return MulDivRoundingUp(liquidity, diff, Q96)
	}
	return MulDiv(liquidity, diff, Q96)
}
