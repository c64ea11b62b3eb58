// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"math/big"

	"github.com/luxfi/amm/tickmath"
	"github.com/luxfi/amm/types"
)

// SwapParams describes one swap against the pool.
type SwapParams struct {
	ZeroForOne bool
	// AmountSpecified is positive for exact input and negative for exact
	// output, denominated in the specified currency.
	AmountSpecified *big.Int
	// SqrtPriceLimitX96 bounds how far the price may move. The swap stops
	// there with the remainder unconsumed.
	SqrtPriceLimitX96 *big.Int
	// LPFeeOverride replaces the stored LP fee for this swap when non-nil.
	// Dynamic-fee pools take their fee from the extension module this way.
	LPFeeOverride *uint32
	// AllowPartialFill lets an exact-output swap that exhausts pool
	// liquidity return what it got instead of failing.
	AllowPartialFill bool
}

// stepState is the loop-carried state of one swap.
type stepState struct {
	amountRemaining  *big.Int
	amountCalculated *big.Int
	sqrtPriceX96     *big.Int
	tick             int32
	liquidity        *big.Int
	feeGrowthGlobal  *big.Int
	amountToProtocol *big.Int
}

// SwapResult is the outcome of one swap.
type SwapResult struct {
	// Delta is the swapper's balance delta: input positive, output negative.
	Delta types.BalanceDelta
	// AmountToProtocol is the input currency skimmed for the protocol.
	AmountToProtocol *big.Int
	// CrossedTicks lists the initialized ticks crossed, in crossing order.
	CrossedTicks []int32
}

// Swap executes a swap by walking initialized ticks from the current price
// toward the limit, consuming the specified amount step by step.
func (p *Pool) Swap(params SwapParams) (SwapResult, error) {
	if !p.IsInitialized() {
		return SwapResult{}, ErrPoolNotInitialized
	}
	if params.AmountSpecified.Sign() == 0 {
		return SwapResult{}, ErrSwapAmountZero
	}

	limit := params.SqrtPriceLimitX96
	if params.ZeroForOne {
		if limit.Cmp(p.Slot0.SqrtPriceX96) >= 0 || limit.Cmp(tickmath.MinSqrtPrice) < 0 {
			return SwapResult{}, ErrInvalidPriceLimit
		}
	} else {
		if limit.Cmp(p.Slot0.SqrtPriceX96) <= 0 || limit.Cmp(tickmath.MaxSqrtPrice) >= 0 {
			return SwapResult{}, ErrInvalidPriceLimit
		}
	}

	exactInput := params.AmountSpecified.Sign() > 0

	lpFee := p.Slot0.LPFee
	if params.LPFeeOverride != nil {
		lpFee = *params.LPFeeOverride
	}
	// A 100% fee leaves no input for the curve, so a requested output could
	// never be paid for.
	if lpFee >= types.FeeMax && !exactInput {
		return SwapResult{}, ErrInvalidFeeForExactOut
	}

	var protocolFee uint32
	if params.ZeroForOne {
		protocolFee = p.Slot0.ProtocolFee.ZeroForOne()
	} else {
		protocolFee = p.Slot0.ProtocolFee.OneForZero()
	}

	state := stepState{
		amountRemaining:  new(big.Int).Set(params.AmountSpecified),
		amountCalculated: big.NewInt(0),
		sqrtPriceX96:     new(big.Int).Set(p.Slot0.SqrtPriceX96),
		tick:             p.Slot0.Tick,
		liquidity:        new(big.Int).Set(p.Liquidity),
		amountToProtocol: big.NewInt(0),
	}
	if params.ZeroForOne {
		state.feeGrowthGlobal = new(big.Int).Set(p.FeeGrowthGlobal0X128)
	} else {
		state.feeGrowthGlobal = new(big.Int).Set(p.FeeGrowthGlobal1X128)
	}

	var crossed []int32

	for state.amountRemaining.Sign() != 0 && state.sqrtPriceX96.Cmp(limit) != 0 {
		sqrtPriceStart := new(big.Int).Set(state.sqrtPriceX96)

		tickNext, initialized := p.bitmap.NextInitializedTickWithinOneWord(
			state.tick, p.TickSpacing, params.ZeroForOne)
		if tickNext < tickmath.MinTick {
			tickNext = tickmath.MinTick
		}
		if tickNext > tickmath.MaxTick {
			tickNext = tickmath.MaxTick
		}

		sqrtPriceNext, err := tickmath.SqrtPriceAtTick(tickNext)
		if err != nil {
			return SwapResult{}, err
		}

		// The step target is the nearer of the next tick and the limit.
		target := sqrtPriceNext
		if params.ZeroForOne {
			if sqrtPriceNext.Cmp(limit) < 0 {
				target = limit
			}
		} else {
			if sqrtPriceNext.Cmp(limit) > 0 {
				target = limit
			}
		}

		step, err := tickmath.ComputeSwapStep(
			state.sqrtPriceX96, target, state.liquidity, state.amountRemaining, lpFee)
		if err != nil {
			return SwapResult{}, err
		}
		state.sqrtPriceX96 = step.SqrtPriceNextX96

		if exactInput {
			consumed := new(big.Int).Add(step.AmountIn, step.FeeAmount)
			state.amountRemaining.Sub(state.amountRemaining, consumed)
			state.amountCalculated.Sub(state.amountCalculated, step.AmountOut)
		} else {
			state.amountRemaining.Add(state.amountRemaining, step.AmountOut)
			paid := new(big.Int).Add(step.AmountIn, step.FeeAmount)
			state.amountCalculated.Add(state.amountCalculated, paid)
		}

		if protocolFee > 0 {
			// The protocol cut is skimmed from the LP fee of the step.
			cut := new(big.Int).Mul(step.FeeAmount, big.NewInt(int64(protocolFee)))
			cut.Div(cut, big.NewInt(int64(types.ProtocolFeeDenominator)))
			step.FeeAmount.Sub(step.FeeAmount, cut)
			state.amountToProtocol.Add(state.amountToProtocol, cut)
		}

		if state.liquidity.Sign() > 0 && step.FeeAmount.Sign() > 0 {
			state.feeGrowthGlobal = wrapAdd256(state.feeGrowthGlobal,
				tickmath.MulDiv(step.FeeAmount, tickmath.Q128, state.liquidity))
		}

		if state.sqrtPriceX96.Cmp(sqrtPriceNext) == 0 {
			// Reached the next tick boundary.
			if initialized {
				p.commitFeeGrowth(params.ZeroForOne, state.feeGrowthGlobal)
				liquidityNet := p.crossTick(tickNext)
				if params.ZeroForOne {
					liquidityNet = new(big.Int).Neg(liquidityNet)
				}
				state.liquidity, err = tickmath.AddDelta(state.liquidity, liquidityNet)
				if err != nil {
					return SwapResult{}, err
				}
				crossed = append(crossed, tickNext)
			}
			if params.ZeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if state.sqrtPriceX96.Cmp(sqrtPriceStart) != 0 {
			state.tick, err = tickmath.TickAtSqrtPrice(state.sqrtPriceX96)
			if err != nil {
				return SwapResult{}, err
			}
		}
	}

	if !exactInput && state.amountRemaining.Sign() != 0 && !params.AllowPartialFill {
		return SwapResult{}, ErrInsufficientLiquidity
	}

	p.Slot0.SqrtPriceX96 = state.sqrtPriceX96
	p.Slot0.Tick = state.tick
	p.Liquidity = state.liquidity
	p.commitFeeGrowth(params.ZeroForOne, state.feeGrowthGlobal)

	// Signed amount of the specified currency actually moved.
	amountSpecifiedDone := new(big.Int).Sub(params.AmountSpecified, state.amountRemaining)

	var delta types.BalanceDelta
	if params.ZeroForOne == exactInput {
		// Specified side is currency0.
		delta = types.BalanceDelta{Amount0: amountSpecifiedDone, Amount1: state.amountCalculated}
	} else {
		delta = types.BalanceDelta{Amount0: state.amountCalculated, Amount1: amountSpecifiedDone}
	}
	return SwapResult{
		Delta:            delta,
		AmountToProtocol: state.amountToProtocol,
		CrossedTicks:     crossed,
	}, nil
}

func (p *Pool) commitFeeGrowth(zeroForOne bool, feeGrowthGlobal *big.Int) {
	if zeroForOne {
		p.FeeGrowthGlobal0X128 = feeGrowthGlobal
	} else {
		p.FeeGrowthGlobal1X128 = feeGrowthGlobal
	}
}
