// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hooks

import (
	"errors"
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/amm/pool"
	"github.com/luxfi/amm/types"
)

var (
	hookAddr = common.HexToAddress("0x4400000000000000000000000000000000000001")
	sender   = common.HexToAddress("0x5e17de5")
)

func testKey(flags types.HookFlags, hook common.Address) types.PoolKey {
	return types.PoolKey{
		Currency0: types.Currency{Address: common.HexToAddress("0x01")},
		Currency1: types.Currency{Address: common.HexToAddress("0x02")},
		Fee:       3000,
		Params:    types.PoolParams{TickSpacing: 60, HookFlags: flags},
		Hooks:     hook,
	}
}

// recordingHook acknowledges every slot and records which ran.
type recordingHook struct {
	BaseHook
	flags  types.HookFlags
	calls  []string
	fail   bool
	badAck bool
}

func (h *recordingHook) Flags() types.HookFlags { return h.flags }

func (h *recordingHook) BeforeSwap(sender common.Address, key types.PoolKey, params pool.SwapParams, hookData []byte) ([4]byte, BeforeSwapResult, error) {
	h.calls = append(h.calls, "beforeSwap")
	if h.fail {
		return SigBeforeSwap, BeforeSwapResult{}, errors.New("refused")
	}
	if h.badAck {
		return [4]byte{0xde, 0xad, 0xbe, 0xef}, BeforeSwapResult{}, nil
	}
	return SigBeforeSwap, BeforeSwapResult{}, nil
}

func (h *recordingHook) AfterSwap(sender common.Address, key types.PoolKey, params pool.SwapParams, delta types.BalanceDelta, hookData []byte) ([4]byte, *big.Int, error) {
	h.calls = append(h.calls, "afterSwap")
	return SigAfterSwap, nil, nil
}

func TestValidateFlagsReturnsDeltaDependencies(t *testing.T) {
	require.NoError(t, ValidateFlags(0))
	require.NoError(t, ValidateFlags(HookBeforeSwap|HookBeforeSwapReturnsDelta))
	require.NoError(t, ValidateFlags(HookAfterSwap|HookAfterSwapReturnsDelta))

	require.ErrorIs(t, ValidateFlags(HookBeforeSwapReturnsDelta), ErrHookFlagsMismatch)
	require.ErrorIs(t, ValidateFlags(HookAfterSwapReturnsDelta), ErrHookFlagsMismatch)
	require.ErrorIs(t, ValidateFlags(HookAfterAddLiquidityReturnsDelta), ErrHookFlagsMismatch)
	require.ErrorIs(t, ValidateFlags(HookAfterRemoveLiquidityReturnsDelta), ErrHookFlagsMismatch)
}

func TestValidatePoolKey(t *testing.T) {
	// Hookless pool: no flags, no dynamic fee.
	require.NoError(t, ValidatePoolKey(testKey(0, common.Address{}), nil))
	require.ErrorIs(t, ValidatePoolKey(testKey(HookBeforeSwap, common.Address{}), nil),
		ErrHookFlagsWithoutHook)

	dynamic := testKey(0, common.Address{})
	dynamic.Fee = types.FeeDynamic
	require.ErrorIs(t, ValidatePoolKey(dynamic, nil), ErrDynamicFeeWithoutHook)

	// Hooked pool: module must exist and advertise exactly the encoded bits.
	require.ErrorIs(t, ValidatePoolKey(testKey(HookBeforeSwap, hookAddr), nil),
		ErrHookNotRegistered)

	hook := &recordingHook{flags: HookBeforeSwap}
	require.NoError(t, ValidatePoolKey(testKey(HookBeforeSwap, hookAddr), hook))
	require.ErrorIs(t, ValidatePoolKey(testKey(HookBeforeSwap|HookAfterSwap, hookAddr), hook),
		ErrHookFlagsMismatch)
	require.ErrorIs(t, ValidatePoolKey(testKey(0, hookAddr), hook),
		ErrHookFlagsMismatch)
}

func TestGatewaySkipsUnadvertisedSlots(t *testing.T) {
	g := NewGateway(log.NewTestLogger(log.InfoLevel))
	hook := &recordingHook{flags: HookAfterSwap}
	require.NoError(t, g.Register(hookAddr, hook))

	key := testKey(HookAfterSwap, hookAddr)
	params := pool.SwapParams{AmountSpecified: big.NewInt(1)}

	// beforeSwap is not advertised: the module is never touched.
	_, err := g.BeforeSwap(sender, key, params, nil)
	require.NoError(t, err)
	require.Empty(t, hook.calls)

	_, err = g.AfterSwap(sender, key, params, types.ZeroBalanceDelta(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"afterSwap"}, hook.calls)
}

func TestGatewayAcknowledgementRequired(t *testing.T) {
	g := NewGateway(log.NewTestLogger(log.InfoLevel))
	hook := &recordingHook{flags: HookBeforeSwap, badAck: true}
	require.NoError(t, g.Register(hookAddr, hook))

	key := testKey(HookBeforeSwap, hookAddr)
	_, err := g.BeforeSwap(sender, key, pool.SwapParams{}, nil)
	require.ErrorIs(t, err, ErrInvalidHookResponse)
}

func TestGatewayPropagatesModuleErrors(t *testing.T) {
	g := NewGateway(log.NewTestLogger(log.InfoLevel))
	hook := &recordingHook{flags: HookBeforeSwap, fail: true}
	require.NoError(t, g.Register(hookAddr, hook))

	key := testKey(HookBeforeSwap, hookAddr)
	_, err := g.BeforeSwap(sender, key, pool.SwapParams{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), hookAddr.Hex())
}

// deltaHook returns a fixed specified-currency adjustment from beforeSwap.
type deltaHook struct {
	BaseHook
	flags types.HookFlags
	delta *big.Int
}

func (h *deltaHook) Flags() types.HookFlags { return h.flags }

func (h *deltaHook) BeforeSwap(common.Address, types.PoolKey, pool.SwapParams, []byte) ([4]byte, BeforeSwapResult, error) {
	return SigBeforeSwap, BeforeSwapResult{DeltaSpecified: h.delta}, nil
}

func TestGatewayUnauthorizedDelta(t *testing.T) {
	g := NewGateway(log.NewTestLogger(log.InfoLevel))
	hook := &deltaHook{flags: HookBeforeSwap, delta: big.NewInt(5)}
	require.NoError(t, g.Register(hookAddr, hook))

	key := testKey(HookBeforeSwap, hookAddr)
	_, err := g.BeforeSwap(sender, key, pool.SwapParams{}, nil)
	require.ErrorIs(t, err, ErrHookUnauthorizedDelta)
}

func TestGatewayAuthorizedDelta(t *testing.T) {
	g := NewGateway(log.NewTestLogger(log.InfoLevel))
	hook := &deltaHook{flags: HookBeforeSwap | HookBeforeSwapReturnsDelta, delta: big.NewInt(5)}
	require.NoError(t, g.Register(hookAddr, hook))

	key := testKey(HookBeforeSwap|HookBeforeSwapReturnsDelta, hookAddr)
	res, err := g.BeforeSwap(sender, key, pool.SwapParams{}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(5), res.DeltaSpecified.Int64())
}

// feeHook overrides the LP fee from beforeSwap.
type feeHook struct {
	BaseHook
	fee uint32
}

func (h *feeHook) Flags() types.HookFlags { return HookBeforeSwap }

func (h *feeHook) BeforeSwap(common.Address, types.PoolKey, pool.SwapParams, []byte) ([4]byte, BeforeSwapResult, error) {
	fee := h.fee
	return SigBeforeSwap, BeforeSwapResult{LPFeeOverride: &fee}, nil
}

func TestGatewayFeeOverrideOnlyOnDynamicPools(t *testing.T) {
	g := NewGateway(log.NewTestLogger(log.InfoLevel))
	require.NoError(t, g.Register(hookAddr, &feeHook{fee: 500}))

	// Static-fee pool: the override is dropped.
	static := testKey(HookBeforeSwap, hookAddr)
	res, err := g.BeforeSwap(sender, static, pool.SwapParams{}, nil)
	require.NoError(t, err)
	require.Nil(t, res.LPFeeOverride)

	dynamic := testKey(HookBeforeSwap, hookAddr)
	dynamic.Fee = types.FeeDynamic
	res, err = g.BeforeSwap(sender, dynamic, pool.SwapParams{}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.LPFeeOverride)
	require.Equal(t, uint32(500), *res.LPFeeOverride)
}

func TestRegisterRejectsInconsistentFlags(t *testing.T) {
	g := NewGateway(log.NewTestLogger(log.InfoLevel))
	err := g.Register(hookAddr, &recordingHook{flags: HookBeforeSwapReturnsDelta})
	require.ErrorIs(t, err, ErrHookFlagsMismatch)
}
