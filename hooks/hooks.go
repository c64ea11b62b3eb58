// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hooks is the extension-module gateway: pools may name an extension
// module whose lifecycle methods run before and after initialization,
// liquidity changes, swaps and donations. A pool's params advertise exactly
// which slots its module implements; the gateway dispatches only those and
// verifies each acknowledgement.
package hooks

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/amm/pool"
	"github.com/luxfi/amm/types"
)

// Capability bits carried in PoolParams. The first ten gate lifecycle slots;
// the last four authorize the module to return balance adjustments from the
// corresponding slot.
const (
	HookBeforeInitialize types.HookFlags = 1 << iota
	HookAfterInitialize
	HookBeforeAddLiquidity
	HookAfterAddLiquidity
	HookBeforeRemoveLiquidity
	HookAfterRemoveLiquidity
	HookBeforeSwap
	HookAfterSwap
	HookBeforeDonate
	HookAfterDonate
	HookBeforeSwapReturnsDelta
	HookAfterSwapReturnsDelta
	HookAfterAddLiquidityReturnsDelta
	HookAfterRemoveLiquidityReturnsDelta
)

// Lifecycle method selectors. A module acknowledges a call by echoing the
// selector of the slot that was invoked; anything else aborts the operation.
var (
	SigBeforeInitialize      = [4]byte{0x01, 0x00, 0x00, 0x01}
	SigAfterInitialize       = [4]byte{0x01, 0x00, 0x00, 0x02}
	SigBeforeAddLiquidity    = [4]byte{0x02, 0x00, 0x00, 0x01}
	SigAfterAddLiquidity     = [4]byte{0x02, 0x00, 0x00, 0x02}
	SigBeforeRemoveLiquidity = [4]byte{0x02, 0x00, 0x00, 0x03}
	SigAfterRemoveLiquidity  = [4]byte{0x02, 0x00, 0x00, 0x04}
	SigBeforeSwap            = [4]byte{0x03, 0x00, 0x00, 0x01}
	SigAfterSwap             = [4]byte{0x03, 0x00, 0x00, 0x02}
	SigBeforeDonate          = [4]byte{0x04, 0x00, 0x00, 0x01}
	SigAfterDonate           = [4]byte{0x04, 0x00, 0x00, 0x02}
)

var (
	ErrHookNotRegistered     = errors.New("hook not registered")
	ErrHookFlagsMismatch     = errors.New("advertised hook flags do not match pool params")
	ErrHookFlagsWithoutHook  = errors.New("hook flags set without a hook")
	ErrDynamicFeeWithoutHook = errors.New("dynamic fee requires a hook")
	ErrInvalidHookResponse   = errors.New("invalid hook response")
	ErrHookUnauthorizedDelta = errors.New("hook not authorized to return a delta")
	ErrHookDeltaExceedsSwap  = errors.New("hook delta exceeds swap amount")
)

// BeforeSwapResult carries the optional adjustments a beforeSwap slot may
// return.
type BeforeSwapResult struct {
	// DeltaSpecified is a balance adjustment in the swap's specified
	// currency, folded into the swapper's delta and accounted to the module.
	// Requires HookBeforeSwapReturnsDelta.
	DeltaSpecified *big.Int
	// LPFeeOverride replaces the pool's LP fee for this swap. Only honored
	// on dynamic-fee pools.
	LPFeeOverride *uint32
}

// Hook is the lifecycle surface an extension module implements. Every method
// must echo its slot selector; slots the module does not advertise are never
// called, so embedding BaseHook and overriding the advertised ones suffices.
type Hook interface {
	// Flags advertises the capability bits the module implements. The pool
	// params must encode exactly these.
	Flags() types.HookFlags

	BeforeInitialize(sender common.Address, key types.PoolKey, sqrtPriceX96 *big.Int) ([4]byte, error)
	AfterInitialize(sender common.Address, key types.PoolKey, sqrtPriceX96 *big.Int, tick int32) ([4]byte, error)

	BeforeAddLiquidity(sender common.Address, key types.PoolKey, params pool.ModifyLiquidityParams, hookData []byte) ([4]byte, error)
	AfterAddLiquidity(sender common.Address, key types.PoolKey, params pool.ModifyLiquidityParams, delta, feeDelta types.BalanceDelta, hookData []byte) ([4]byte, types.BalanceDelta, error)
	BeforeRemoveLiquidity(sender common.Address, key types.PoolKey, params pool.ModifyLiquidityParams, hookData []byte) ([4]byte, error)
	AfterRemoveLiquidity(sender common.Address, key types.PoolKey, params pool.ModifyLiquidityParams, delta, feeDelta types.BalanceDelta, hookData []byte) ([4]byte, types.BalanceDelta, error)

	BeforeSwap(sender common.Address, key types.PoolKey, params pool.SwapParams, hookData []byte) ([4]byte, BeforeSwapResult, error)
	// AfterSwap may return an adjustment in the swap's unspecified currency.
	AfterSwap(sender common.Address, key types.PoolKey, params pool.SwapParams, delta types.BalanceDelta, hookData []byte) ([4]byte, *big.Int, error)

	BeforeDonate(sender common.Address, key types.PoolKey, amount0, amount1 *big.Int, hookData []byte) ([4]byte, error)
	AfterDonate(sender common.Address, key types.PoolKey, amount0, amount1 *big.Int, hookData []byte) ([4]byte, error)
}

// ValidateFlags checks the internal consistency of a capability bitmap:
// a returns-delta bit is meaningless without its base slot.
func ValidateFlags(flags types.HookFlags) error {
	deps := []struct {
		delta, base types.HookFlags
	}{
		{HookBeforeSwapReturnsDelta, HookBeforeSwap},
		{HookAfterSwapReturnsDelta, HookAfterSwap},
		{HookAfterAddLiquidityReturnsDelta, HookAfterAddLiquidity},
		{HookAfterRemoveLiquidityReturnsDelta, HookAfterRemoveLiquidity},
	}
	for _, d := range deps {
		if flags&d.delta != 0 && flags&d.base == 0 {
			return fmt.Errorf("%w: returns-delta flag %#x without base slot", ErrHookFlagsMismatch, uint16(d.delta))
		}
	}
	return nil
}

// ValidatePoolKey checks the hook-related key invariants against the module
// registered for the key's hook address (nil when the key names none).
// A hookless pool must advertise no flags and cannot use the dynamic fee;
// a hooked pool must advertise exactly the flags its module implements.
func ValidatePoolKey(key types.PoolKey, hook Hook) error {
	if !key.HasHook() {
		if key.Params.HookFlags != 0 {
			return ErrHookFlagsWithoutHook
		}
		if key.IsDynamicFee() {
			return ErrDynamicFeeWithoutHook
		}
		return nil
	}
	if hook == nil {
		return fmt.Errorf("%w: %s", ErrHookNotRegistered, key.Hooks.Hex())
	}
	if hook.Flags() != key.Params.HookFlags {
		return fmt.Errorf("%w: module %s advertises %#x, params encode %#x",
			ErrHookFlagsMismatch, key.Hooks.Hex(), uint16(hook.Flags()), uint16(key.Params.HookFlags))
	}
	return ValidateFlags(key.Params.HookFlags)
}
