// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tickmath

import "math/big"

// feeDenominator is 100% in pips.
var feeDenominator = big.NewInt(1_000_000)

// SwapStep is the result of advancing the price within one tick range.
type SwapStep struct {
	SqrtPriceNextX96 *big.Int
	AmountIn         *big.Int
	AmountOut        *big.Int
	FeeAmount        *big.Int
}

// ComputeSwapStep computes the price after swapping as much as possible of
// amountRemaining between the current and target prices at fixed liquidity,
// plus the input consumed, output produced and fee taken from the input leg.
// Positive amountRemaining selects exact input; negative selects exact
// output. The direction is implied by the relation of current to target.
func ComputeSwapStep(
	sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, amountRemaining *big.Int,
	feePips uint32,
) (SwapStep, error) {
	zeroForOne := sqrtPriceCurrentX96.Cmp(sqrtPriceTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0
	fee := big.NewInt(int64(feePips))

	step := SwapStep{
		AmountIn:  big.NewInt(0),
		AmountOut: big.NewInt(0),
		FeeAmount: big.NewInt(0),
	}
	var err error

	if exactIn {
		feeComplement := new(big.Int).Sub(feeDenominator, fee)
		amountRemainingLessFee := MulDiv(amountRemaining, feeComplement, feeDenominator)

		if zeroForOne {
			step.AmountIn, err = GetAmount0Delta(sqrtPriceTargetX96, sqrtPriceCurrentX96, liquidity, true)
		} else {
			step.AmountIn = GetAmount1Delta(sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, true)
		}
		if err != nil {
			return SwapStep{}, err
		}

		if amountRemainingLessFee.Cmp(step.AmountIn) >= 0 {
			step.SqrtPriceNextX96 = new(big.Int).Set(sqrtPriceTargetX96)
		} else {
			step.SqrtPriceNextX96, err = GetNextSqrtPriceFromInput(sqrtPriceCurrentX96, liquidity, amountRemainingLessFee, zeroForOne)
			if err != nil {
				return SwapStep{}, err
			}
		}
	} else {
		amountRemainingAbs := new(big.Int).Neg(amountRemaining)

		if zeroForOne {
			step.AmountOut = GetAmount1Delta(sqrtPriceTargetX96, sqrtPriceCurrentX96, liquidity, false)
		} else {
			step.AmountOut, err = GetAmount0Delta(sqrtPriceCurrentX96, sqrtPriceTargetX96, liquidity, false)
			if err != nil {
				return SwapStep{}, err
			}
		}

		if amountRemainingAbs.Cmp(step.AmountOut) >= 0 {
			step.SqrtPriceNextX96 = new(big.Int).Set(sqrtPriceTargetX96)
		} else {
			step.SqrtPriceNextX96, err = GetNextSqrtPriceFromOutput(sqrtPriceCurrentX96, liquidity, amountRemainingAbs, zeroForOne)
			if err != nil {
				return SwapStep{}, err
			}
		}
	}

	reachedTarget := sqrtPriceTargetX96.Cmp(step.SqrtPriceNextX96) == 0

	// Recompute amounts from the realized price movement.
	if zeroForOne {
		if !(reachedTarget && exactIn) {
			step.AmountIn, err = GetAmount0Delta(step.SqrtPriceNextX96, sqrtPriceCurrentX96, liquidity, true)
			if err != nil {
				return SwapStep{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			step.AmountOut = GetAmount1Delta(step.SqrtPriceNextX96, sqrtPriceCurrentX96, liquidity, false)
		}
	} else {
		if !(reachedTarget && exactIn) {
			step.AmountIn = GetAmount1Delta(sqrtPriceCurrentX96, step.SqrtPriceNextX96, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			step.AmountOut, err = GetAmount0Delta(sqrtPriceCurrentX96, step.SqrtPriceNextX96, liquidity, false)
			if err != nil {
				return SwapStep{}, err
			}
		}
	}

	if !exactIn {
		amountRemainingAbs := new(big.Int).Neg(amountRemaining)
		if step.AmountOut.Cmp(amountRemainingAbs) > 0 {
			step.AmountOut.Set(amountRemainingAbs)
		}
	}

	if exactIn && !reachedTarget {
		// The whole remainder was consumed; whatever the curve did not
		// absorb is the fee.
		step.FeeAmount = new(big.Int).Sub(amountRemaining, step.AmountIn)
	} else if fee.Cmp(feeDenominator) >= 0 {
		// At a 100% fee the complement formula would divide by zero; the
		// fee is simply the input.
		step.FeeAmount = new(big.Int).Set(step.AmountIn)
	} else {
		feeComplement := new(big.Int).Sub(feeDenominator, fee)
		step.FeeAmount = MulDivRoundingUp(step.AmountIn, fee, feeComplement)
	}

	return step, nil
}
