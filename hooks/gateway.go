// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hooks

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/amm/pool"
	"github.com/luxfi/amm/types"
)

// Gateway holds the registered extension modules and dispatches lifecycle
// calls for pools that advertise them. Slots a pool does not advertise are
// skipped without touching the module.
type Gateway struct {
	mu      sync.RWMutex
	modules map[common.Address]Hook
	log     log.Logger
}

// NewGateway creates an empty gateway.
func NewGateway(logger log.Logger) *Gateway {
	return &Gateway{
		modules: make(map[common.Address]Hook),
		log:     logger,
	}
}

// Register binds a module to an address after checking its advertised flags
// are internally consistent.
func (g *Gateway) Register(addr common.Address, hook Hook) error {
	if err := ValidateFlags(hook.Flags()); err != nil {
		return err
	}
	g.mu.Lock()
	g.modules[addr] = hook
	g.mu.Unlock()
	g.log.Debug("registered extension module", "address", addr.Hex(), "flags", fmt.Sprintf("%#x", uint16(hook.Flags())))
	return nil
}

// Lookup returns the module at an address, or nil.
func (g *Gateway) Lookup(addr common.Address) Hook {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.modules[addr]
}

// ValidateKey runs the hook-related pool key checks against the registry.
func (g *Gateway) ValidateKey(key types.PoolKey) error {
	var hook Hook
	if key.HasHook() {
		hook = g.Lookup(key.Hooks)
	}
	return ValidatePoolKey(key, hook)
}

// hookFor resolves the module for a key whose flag is set. The key was
// validated at pool initialization, so a missing module is an internal error.
func (g *Gateway) hookFor(key types.PoolKey, flag types.HookFlags) (Hook, bool, error) {
	if key.Params.HookFlags&flag == 0 {
		return nil, false, nil
	}
	hook := g.Lookup(key.Hooks)
	if hook == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrHookNotRegistered, key.Hooks.Hex())
	}
	return hook, true, nil
}

func hookErr(addr common.Address, slot string, err error) error {
	return fmt.Errorf("hook %s %s: %w", addr.Hex(), slot, err)
}

// BeforeInitialize dispatches the before-initialize slot if advertised.
func (g *Gateway) BeforeInitialize(sender common.Address, key types.PoolKey, sqrtPriceX96 *big.Int) error {
	hook, ok, err := g.hookFor(key, HookBeforeInitialize)
	if err != nil || !ok {
		return err
	}
	sel, err := hook.BeforeInitialize(sender, key, sqrtPriceX96)
	if err != nil {
		return hookErr(key.Hooks, "beforeInitialize", err)
	}
	if sel != SigBeforeInitialize {
		return hookErr(key.Hooks, "beforeInitialize", ErrInvalidHookResponse)
	}
	return nil
}

// AfterInitialize dispatches the after-initialize slot if advertised.
func (g *Gateway) AfterInitialize(sender common.Address, key types.PoolKey, sqrtPriceX96 *big.Int, tick int32) error {
	hook, ok, err := g.hookFor(key, HookAfterInitialize)
	if err != nil || !ok {
		return err
	}
	sel, err := hook.AfterInitialize(sender, key, sqrtPriceX96, tick)
	if err != nil {
		return hookErr(key.Hooks, "afterInitialize", err)
	}
	if sel != SigAfterInitialize {
		return hookErr(key.Hooks, "afterInitialize", ErrInvalidHookResponse)
	}
	return nil
}

// BeforeModifyLiquidity dispatches the before-add or before-remove slot,
// chosen by the sign of the liquidity delta.
func (g *Gateway) BeforeModifyLiquidity(sender common.Address, key types.PoolKey, params pool.ModifyLiquidityParams, hookData []byte) error {
	removing := params.LiquidityDelta.Sign() < 0

	if removing {
		hook, ok, err := g.hookFor(key, HookBeforeRemoveLiquidity)
		if err != nil || !ok {
			return err
		}
		sel, err := hook.BeforeRemoveLiquidity(sender, key, params, hookData)
		if err != nil {
			return hookErr(key.Hooks, "beforeRemoveLiquidity", err)
		}
		if sel != SigBeforeRemoveLiquidity {
			return hookErr(key.Hooks, "beforeRemoveLiquidity", ErrInvalidHookResponse)
		}
		return nil
	}

	hook, ok, err := g.hookFor(key, HookBeforeAddLiquidity)
	if err != nil || !ok {
		return err
	}
	sel, err := hook.BeforeAddLiquidity(sender, key, params, hookData)
	if err != nil {
		return hookErr(key.Hooks, "beforeAddLiquidity", err)
	}
	if sel != SigBeforeAddLiquidity {
		return hookErr(key.Hooks, "beforeAddLiquidity", ErrInvalidHookResponse)
	}
	return nil
}

// AfterModifyLiquidity dispatches the after-add or after-remove slot and
// returns the module's balance adjustment, zero unless the matching
// returns-delta bit authorizes one.
func (g *Gateway) AfterModifyLiquidity(sender common.Address, key types.PoolKey, params pool.ModifyLiquidityParams, delta, feeDelta types.BalanceDelta, hookData []byte) (types.BalanceDelta, error) {
	removing := params.LiquidityDelta.Sign() < 0

	var (
		slot      string
		flag      types.HookFlags
		deltaFlag types.HookFlags
		wantSel   [4]byte
		dispatch  func(Hook) ([4]byte, types.BalanceDelta, error)
		zero      = types.ZeroBalanceDelta()
	)
	if removing {
		slot, flag, deltaFlag, wantSel = "afterRemoveLiquidity", HookAfterRemoveLiquidity, HookAfterRemoveLiquidityReturnsDelta, SigAfterRemoveLiquidity
		dispatch = func(h Hook) ([4]byte, types.BalanceDelta, error) {
			return h.AfterRemoveLiquidity(sender, key, params, delta, feeDelta, hookData)
		}
	} else {
		slot, flag, deltaFlag, wantSel = "afterAddLiquidity", HookAfterAddLiquidity, HookAfterAddLiquidityReturnsDelta, SigAfterAddLiquidity
		dispatch = func(h Hook) ([4]byte, types.BalanceDelta, error) {
			return h.AfterAddLiquidity(sender, key, params, delta, feeDelta, hookData)
		}
	}

	hook, ok, err := g.hookFor(key, flag)
	if err != nil || !ok {
		return zero, err
	}
	sel, adjustment, err := dispatch(hook)
	if err != nil {
		return zero, hookErr(key.Hooks, slot, err)
	}
	if sel != wantSel {
		return zero, hookErr(key.Hooks, slot, ErrInvalidHookResponse)
	}
	if !adjustment.IsZero() && key.Params.HookFlags&deltaFlag == 0 {
		return zero, hookErr(key.Hooks, slot, ErrHookUnauthorizedDelta)
	}
	return adjustment, nil
}

// BeforeSwap dispatches the before-swap slot. The returned adjustment is in
// the specified currency and requires the returns-delta bit; the LP fee
// override is honored only on dynamic-fee pools.
func (g *Gateway) BeforeSwap(sender common.Address, key types.PoolKey, params pool.SwapParams, hookData []byte) (BeforeSwapResult, error) {
	hook, ok, err := g.hookFor(key, HookBeforeSwap)
	if err != nil || !ok {
		return BeforeSwapResult{}, err
	}
	sel, res, err := hook.BeforeSwap(sender, key, params, hookData)
	if err != nil {
		return BeforeSwapResult{}, hookErr(key.Hooks, "beforeSwap", err)
	}
	if sel != SigBeforeSwap {
		return BeforeSwapResult{}, hookErr(key.Hooks, "beforeSwap", ErrInvalidHookResponse)
	}
	if res.DeltaSpecified != nil && res.DeltaSpecified.Sign() != 0 &&
		key.Params.HookFlags&HookBeforeSwapReturnsDelta == 0 {
		return BeforeSwapResult{}, hookErr(key.Hooks, "beforeSwap", ErrHookUnauthorizedDelta)
	}
	if res.LPFeeOverride != nil && !key.IsDynamicFee() {
		res.LPFeeOverride = nil
	}
	return res, nil
}

// AfterSwap dispatches the after-swap slot and returns the module's
// adjustment in the unspecified currency, nil or zero unless authorized.
func (g *Gateway) AfterSwap(sender common.Address, key types.PoolKey, params pool.SwapParams, delta types.BalanceDelta, hookData []byte) (*big.Int, error) {
	hook, ok, err := g.hookFor(key, HookAfterSwap)
	if err != nil || !ok {
		return nil, err
	}
	sel, adjustment, err := hook.AfterSwap(sender, key, params, delta, hookData)
	if err != nil {
		return nil, hookErr(key.Hooks, "afterSwap", err)
	}
	if sel != SigAfterSwap {
		return nil, hookErr(key.Hooks, "afterSwap", ErrInvalidHookResponse)
	}
	if adjustment != nil && adjustment.Sign() != 0 &&
		key.Params.HookFlags&HookAfterSwapReturnsDelta == 0 {
		return nil, hookErr(key.Hooks, "afterSwap", ErrHookUnauthorizedDelta)
	}
	return adjustment, nil
}

// BeforeDonate dispatches the before-donate slot if advertised.
func (g *Gateway) BeforeDonate(sender common.Address, key types.PoolKey, amount0, amount1 *big.Int, hookData []byte) error {
	hook, ok, err := g.hookFor(key, HookBeforeDonate)
	if err != nil || !ok {
		return err
	}
	sel, err := hook.BeforeDonate(sender, key, amount0, amount1, hookData)
	if err != nil {
		return hookErr(key.Hooks, "beforeDonate", err)
	}
	if sel != SigBeforeDonate {
		return hookErr(key.Hooks, "beforeDonate", ErrInvalidHookResponse)
	}
	return nil
}

// AfterDonate dispatches the after-donate slot if advertised.
func (g *Gateway) AfterDonate(sender common.Address, key types.PoolKey, amount0, amount1 *big.Int, hookData []byte) error {
	hook, ok, err := g.hookFor(key, HookAfterDonate)
	if err != nil || !ok {
		return err
	}
	sel, err := hook.AfterDonate(sender, key, amount0, amount1, hookData)
	if err != nil {
		return hookErr(key.Hooks, "afterDonate", err)
	}
	if sel != SigAfterDonate {
		return hookErr(key.Hooks, "afterDonate", ErrInvalidHookResponse)
	}
	return nil
}
