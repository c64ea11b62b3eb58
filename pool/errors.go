// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import "errors"

var (
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrPoolNotInitialized     = errors.New("pool not initialized")
	ErrInvalidSqrtPrice       = errors.New("invalid sqrt price")

	ErrTicksMisordered = errors.New("tick lower must be below tick upper")
	ErrTickOutOfRange  = errors.New("tick out of range")
	ErrTickMisaligned  = errors.New("tick not aligned to spacing")

	ErrPositionEmpty = errors.New("cannot touch empty position with zero delta")

	ErrSwapAmountZero        = errors.New("swap amount cannot be zero")
	ErrInvalidPriceLimit     = errors.New("invalid price limit")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for exact output")
	ErrInvalidFeeForExactOut = errors.New("exact output is impossible at a 100% fee")

	ErrNoLiquidityToReceiveFees = errors.New("no liquidity to receive fees")
	ErrNegativeDonation         = errors.New("donation amounts cannot be negative")
)
