// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hooks

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/amm/pool"
	"github.com/luxfi/amm/types"
)

// BaseHook acknowledges every slot and changes nothing. Modules embed it and
// override the slots they advertise.
type BaseHook struct{}

func (BaseHook) Flags() types.HookFlags { return 0 }

func (BaseHook) BeforeInitialize(common.Address, types.PoolKey, *big.Int) ([4]byte, error) {
	return SigBeforeInitialize, nil
}

func (BaseHook) AfterInitialize(common.Address, types.PoolKey, *big.Int, int32) ([4]byte, error) {
	return SigAfterInitialize, nil
}

func (BaseHook) BeforeAddLiquidity(common.Address, types.PoolKey, pool.ModifyLiquidityParams, []byte) ([4]byte, error) {
	return SigBeforeAddLiquidity, nil
}

func (BaseHook) AfterAddLiquidity(_ common.Address, _ types.PoolKey, _ pool.ModifyLiquidityParams, _, _ types.BalanceDelta, _ []byte) ([4]byte, types.BalanceDelta, error) {
	return SigAfterAddLiquidity, types.ZeroBalanceDelta(), nil
}

func (BaseHook) BeforeRemoveLiquidity(common.Address, types.PoolKey, pool.ModifyLiquidityParams, []byte) ([4]byte, error) {
	return SigBeforeRemoveLiquidity, nil
}

func (BaseHook) AfterRemoveLiquidity(_ common.Address, _ types.PoolKey, _ pool.ModifyLiquidityParams, _, _ types.BalanceDelta, _ []byte) ([4]byte, types.BalanceDelta, error) {
	return SigAfterRemoveLiquidity, types.ZeroBalanceDelta(), nil
}

func (BaseHook) BeforeSwap(common.Address, types.PoolKey, pool.SwapParams, []byte) ([4]byte, BeforeSwapResult, error) {
	return SigBeforeSwap, BeforeSwapResult{}, nil
}

func (BaseHook) AfterSwap(common.Address, types.PoolKey, pool.SwapParams, types.BalanceDelta, []byte) ([4]byte, *big.Int, error) {
	return SigAfterSwap, nil, nil
}

func (BaseHook) BeforeDonate(common.Address, types.PoolKey, *big.Int, *big.Int, []byte) ([4]byte, error) {
	return SigBeforeDonate, nil
}

func (BaseHook) AfterDonate(common.Address, types.PoolKey, *big.Int, *big.Int, []byte) ([4]byte, error) {
	return SigAfterDonate, nil
}
