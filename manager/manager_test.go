// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/amm/hooks"
	"github.com/luxfi/amm/ledger"
	"github.com/luxfi/amm/pool"
	"github.com/luxfi/amm/store"
	"github.com/luxfi/amm/tickmath"
	"github.com/luxfi/amm/types"
)

var (
	custody    = common.HexToAddress("0xc0ffee")
	owner      = common.HexToAddress("0x0123")
	trader     = common.HexToAddress("0x7ead")
	controller = common.HexToAddress("0xc711")
	tokenA     = types.Currency{Address: common.HexToAddress("0xaa")}
	tokenB     = types.Currency{Address: common.HexToAddress("0xbb")}
)

func testKey() types.PoolKey {
	return types.PoolKey{
		Currency0: tokenA,
		Currency1: tokenB,
		Fee:       3000,
		Params:    types.PoolParams{TickSpacing: 60},
	}
}

func newTestManager(t *testing.T) (*PoolManager, *ledger.MemoryBackend) {
	t.Helper()
	db := memdb.New()
	t.Cleanup(func() { _ = db.Close() })

	backend := ledger.NewMemoryBackend()
	for _, currency := range []types.Currency{tokenA, tokenB} {
		backend.SetBalance(currency, trader, big.NewInt(1_000_000_000))
		backend.SetBalance(currency, custody, big.NewInt(0))
	}
	pm := New(Config{Address: custody, Owner: owner}, db, backend, log.NewTestLogger(log.InfoLevel))
	return pm, backend
}

func initTestPool(t *testing.T, pm *PoolManager, key types.PoolKey) {
	t.Helper()
	tick, err := pm.Initialize(trader, key, new(big.Int).Set(tickmath.Q96), nil)
	require.NoError(t, err)
	require.Equal(t, int32(0), tick)
}

// settleAll pays off or collects whatever the actor's deltas say.
func settleAll(t *testing.T, pm *PoolManager, actor common.Address, currencies ...types.Currency) {
	t.Helper()
	for _, currency := range currencies {
		delta := pm.Ledger().CurrencyDelta(actor, currency)
		switch {
		case delta.Sign() > 0:
			require.NoError(t, pm.Settle(actor, currency, delta))
		case delta.Sign() < 0:
			require.NoError(t, pm.Take(actor, currency, actor, new(big.Int).Neg(delta)))
		}
	}
}

func TestInitializeValidatesKey(t *testing.T) {
	pm, _ := newTestManager(t)

	unsorted := testKey()
	unsorted.Currency0, unsorted.Currency1 = unsorted.Currency1, unsorted.Currency0
	_, err := pm.Initialize(trader, unsorted, new(big.Int).Set(tickmath.Q96), nil)
	require.ErrorIs(t, err, types.ErrCurrenciesNotSorted)

	key := testKey()
	initTestPool(t, pm, key)
	_, err = pm.Initialize(trader, key, new(big.Int).Set(tickmath.Q96), nil)
	require.ErrorIs(t, err, pool.ErrPoolAlreadyInitialized)
}

func TestInitializeHookFlagsMismatchCreatesNoPool(t *testing.T) {
	pm, _ := newTestManager(t)
	hookAddr := common.HexToAddress("0x4400000000000000000000000000000000000001")

	type mismatchedHook struct{ hooks.BaseHook }
	require.NoError(t, pm.RegisterHook(hookAddr, &mismatchedHook{})) // advertises no flags

	key := testKey()
	key.Hooks = hookAddr
	key.Params.HookFlags = hooks.HookBeforeSwap

	_, err := pm.Initialize(trader, key, new(big.Int).Set(tickmath.Q96), nil)
	require.ErrorIs(t, err, hooks.ErrHookFlagsMismatch)

	// No pool state was created.
	_, _, err = pm.PoolState(key)
	require.ErrorIs(t, err, pool.ErrPoolNotInitialized)

	word, err := pm.Extsload(store.Slot0Slot(key.ID()))
	require.NoError(t, err)
	require.Equal(t, [32]byte{}, word)
}

// failingAfterInitHook advertises the after-initialize slot and fails it.
type failingAfterInitHook struct{ hooks.BaseHook }

func (failingAfterInitHook) Flags() types.HookFlags { return hooks.HookAfterInitialize }

func (failingAfterInitHook) AfterInitialize(common.Address, types.PoolKey, *big.Int, int32) ([4]byte, error) {
	return hooks.SigAfterInitialize, errors.New("module rejected the pool")
}

func TestAfterInitializeFailureLeavesNoPool(t *testing.T) {
	pm, _ := newTestManager(t)
	hookAddr := common.HexToAddress("0x4400000000000000000000000000000000000002")
	require.NoError(t, pm.RegisterHook(hookAddr, failingAfterInitHook{}))

	key := testKey()
	key.Hooks = hookAddr
	key.Params.HookFlags = hooks.HookAfterInitialize

	_, err := pm.Initialize(trader, key, new(big.Int).Set(tickmath.Q96), nil)
	require.Error(t, err)

	// Registration and stored words were rolled back.
	_, _, err = pm.PoolState(key)
	require.ErrorIs(t, err, pool.ErrPoolNotInitialized)

	word, err := pm.Extsload(store.Slot0Slot(key.ID()))
	require.NoError(t, err)
	require.Equal(t, [32]byte{}, word)
}

func TestMutationsOutsideSessionLeavePoolUntouched(t *testing.T) {
	pm, _ := newTestManager(t)
	key := testKey()
	initTestPool(t, pm, key)

	err := pm.Lock(context.Background(), func(ctx context.Context) error {
		_, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -600, TickUpper: 600,
			LiquidityDelta: big.NewInt(10_000_000),
		}, nil)
		require.NoError(t, err)
		settleAll(t, pm, trader, tokenA, tokenB)
		return nil
	})
	require.NoError(t, err)

	before, err := pm.Extsload(store.Slot0Slot(key.ID()))
	require.NoError(t, err)

	// Every mutating operation fails outside a session.
	_, err = pm.Swap(trader, key, pool.SwapParams{
		ZeroForOne:        true,
		AmountSpecified:   big.NewInt(100),
		SqrtPriceLimitX96: new(big.Int).Add(tickmath.MinSqrtPrice, big.NewInt(1)),
	}, nil)
	require.ErrorIs(t, err, ledger.ErrNotLocked)

	_, _, err = pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
		TickLower: -600, TickUpper: 600, LiquidityDelta: big.NewInt(1),
	}, nil)
	require.ErrorIs(t, err, ledger.ErrNotLocked)

	_, err = pm.Donate(trader, key, big.NewInt(1), big.NewInt(0), nil)
	require.ErrorIs(t, err, ledger.ErrNotLocked)

	// The failed calls left no trace, in memory or in storage.
	slot0, liquidity, err := pm.PoolState(key)
	require.NoError(t, err)
	require.Equal(t, 0, slot0.SqrtPriceX96.Cmp(tickmath.Q96))
	require.Equal(t, int64(10_000_000), liquidity.Int64())

	after, err := pm.Extsload(store.Slot0Slot(key.ID()))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestSessionLifecycle(t *testing.T) {
	pm, backend := newTestManager(t)
	key := testKey()
	initTestPool(t, pm, key)

	err := pm.Lock(context.Background(), func(ctx context.Context) error {
		delta, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -600, TickUpper: 600,
			LiquidityDelta: big.NewInt(10_000_000),
		}, nil)
		require.NoError(t, err)
		require.True(t, delta.Amount0.Sign() > 0)
		require.True(t, delta.Amount1.Sign() > 0)

		settleAll(t, pm, trader, tokenA, tokenB)
		return nil
	})
	require.NoError(t, err)

	// Custody now holds the deposit.
	balance, err := backend.BalanceOf(tokenA, custody)
	require.NoError(t, err)
	require.True(t, balance.Sign() > 0)
}

func TestSwapWithFee(t *testing.T) {
	pm, _ := newTestManager(t)
	key := testKey()
	initTestPool(t, pm, key)

	err := pm.Lock(context.Background(), func(ctx context.Context) error {
		_, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -600, TickUpper: 600,
			LiquidityDelta: big.NewInt(10_000_000),
		}, nil)
		require.NoError(t, err)

		delta, err := pm.Swap(trader, key, pool.SwapParams{
			ZeroForOne:        true,
			AmountSpecified:   big.NewInt(100),
			SqrtPriceLimitX96: new(big.Int).Add(tickmath.MinSqrtPrice, big.NewInt(1)),
		}, nil)
		require.NoError(t, err)

		require.Equal(t, int64(100), delta.Amount0.Int64())
		out := new(big.Int).Neg(delta.Amount1)
		require.True(t, out.Int64() > 0 && out.Int64() < 100,
			"output must lose the fee, got %d", out.Int64())

		settleAll(t, pm, trader, tokenA, tokenB)
		return nil
	})
	require.NoError(t, err)
}

func TestUnsettledSessionFails(t *testing.T) {
	pm, _ := newTestManager(t)
	key := testKey()
	initTestPool(t, pm, key)

	err := pm.Lock(context.Background(), func(ctx context.Context) error {
		_, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -600, TickUpper: 600,
			LiquidityDelta: big.NewInt(1_000_000),
		}, nil)
		require.NoError(t, err)
		// Leave everything unsettled.
		return nil
	})
	require.ErrorIs(t, err, ledger.ErrCurrencyNotSettled)
}

func TestNestedSessionFails(t *testing.T) {
	pm, _ := newTestManager(t)
	err := pm.Lock(context.Background(), func(ctx context.Context) error {
		inner := pm.Lock(ctx, func(context.Context) error { return nil })
		require.ErrorIs(t, inner, ledger.ErrAlreadyLocked)
		return nil
	})
	require.NoError(t, err)
}

// fixedFeeController always returns the same packed protocol fee.
type fixedFeeController struct {
	raw []byte
	err error
}

func (c *fixedFeeController) ProtocolFeeForPool(types.PoolKey, uint64) ([]byte, error) {
	return c.raw, c.err
}

func TestProtocolFeeLifecycle(t *testing.T) {
	pm, backend := newTestManager(t)

	// Both sub-fees at maximum.
	fee := types.NewProtocolFee(types.MaxProtocolFee, types.MaxProtocolFee)
	raw := big.NewInt(int64(fee)).Bytes()
	require.NoError(t, pm.SetProtocolFeeController(owner, controller, &fixedFeeController{raw: raw}))

	key := testKey()
	initTestPool(t, pm, key)

	slot0, _, err := pm.PoolState(key)
	require.NoError(t, err)
	require.Equal(t, fee, slot0.ProtocolFee)

	err = pm.Lock(context.Background(), func(ctx context.Context) error {
		_, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -600, TickUpper: 600,
			LiquidityDelta: big.NewInt(10_000_000),
		}, nil)
		require.NoError(t, err)

		_, err = pm.Swap(trader, key, pool.SwapParams{
			ZeroForOne:        true,
			AmountSpecified:   big.NewInt(100_000),
			SqrtPriceLimitX96: new(big.Int).Add(tickmath.MinSqrtPrice, big.NewInt(1)),
		}, nil)
		require.NoError(t, err)

		settleAll(t, pm, trader, tokenA, tokenB)
		return nil
	})
	require.NoError(t, err)

	accrued := pm.ProtocolFeesAccrued(tokenA)
	require.True(t, accrued.Sign() > 0, "max protocol fee must skim something")

	// Only the controller may collect; amount 0 collects everything.
	_, err = pm.CollectProtocolFees(trader, tokenA, trader, big.NewInt(0))
	require.ErrorIs(t, err, ErrUnauthorized)

	collected, err := pm.CollectProtocolFees(controller, tokenA, controller, big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, 0, collected.Cmp(accrued))
	require.Equal(t, 0, pm.ProtocolFeesAccrued(tokenA).Sign())

	balance, err := backend.BalanceOf(tokenA, controller)
	require.NoError(t, err)
	require.Equal(t, 0, balance.Cmp(accrued))

	// Nothing left to over-collect.
	_, err = pm.CollectProtocolFees(controller, tokenA, controller, big.NewInt(1))
	require.ErrorIs(t, err, ErrAmountExceedsAccrued)
}

func TestBrokenFeeControllerDegradesToZero(t *testing.T) {
	pm, _ := newTestManager(t)

	oversized := make([]byte, 33)
	require.NoError(t, pm.SetProtocolFeeController(owner, controller, &fixedFeeController{raw: oversized}))

	key := testKey()
	initTestPool(t, pm, key)

	slot0, _, err := pm.PoolState(key)
	require.NoError(t, err)
	require.Equal(t, types.ProtocolFee(0), slot0.ProtocolFee)
}

func TestSetProtocolFeeAuthorization(t *testing.T) {
	pm, _ := newTestManager(t)
	require.NoError(t, pm.SetProtocolFeeController(owner, controller, &fixedFeeController{}))

	key := testKey()
	initTestPool(t, pm, key)

	fee := types.NewProtocolFee(100, 200)
	require.ErrorIs(t, pm.SetProtocolFee(trader, key, fee), ErrUnauthorized)
	require.NoError(t, pm.SetProtocolFee(controller, key, fee))

	slot0, _, err := pm.PoolState(key)
	require.NoError(t, err)
	require.Equal(t, fee, slot0.ProtocolFee)

	require.ErrorIs(t,
		pm.SetProtocolFee(controller, key, types.ProtocolFee(1<<24)),
		types.ErrInvalidProtocolFee)
}

func TestPause(t *testing.T) {
	pm, _ := newTestManager(t)
	key := testKey()
	initTestPool(t, pm, key)

	require.ErrorIs(t, pm.SetPaused(trader, true), ErrUnauthorized)
	require.NoError(t, pm.SetPaused(owner, true))

	_, err := pm.Initialize(trader, testKey(), new(big.Int).Set(tickmath.Q96), nil)
	require.ErrorIs(t, err, ErrPaused)

	err = pm.Lock(context.Background(), func(ctx context.Context) error {
		_, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(1),
		}, nil)
		require.ErrorIs(t, err, ErrPaused)
		_, err = pm.Swap(trader, key, pool.SwapParams{
			AmountSpecified:   big.NewInt(1),
			SqrtPriceLimitX96: new(big.Int).Add(tickmath.MinSqrtPrice, big.NewInt(1)),
			ZeroForOne:        true,
		}, nil)
		require.ErrorIs(t, err, ErrPaused)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, pm.SetPaused(owner, false))
	err = pm.Lock(context.Background(), func(ctx context.Context) error {
		_, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(100),
		}, nil)
		require.NoError(t, err)
		settleAll(t, pm, trader, tokenA, tokenB)
		return nil
	})
	require.NoError(t, err)
}

func TestExtsloadMirrorsPoolState(t *testing.T) {
	pm, _ := newTestManager(t)
	key := testKey()
	initTestPool(t, pm, key)
	id := key.ID()

	err := pm.Lock(context.Background(), func(ctx context.Context) error {
		_, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -600, TickUpper: 600,
			LiquidityDelta: big.NewInt(42_000_000),
		}, nil)
		require.NoError(t, err)
		settleAll(t, pm, trader, tokenA, tokenB)
		return nil
	})
	require.NoError(t, err)

	word, err := pm.Extsload(store.LiquiditySlot(id))
	require.NoError(t, err)
	require.Equal(t, int64(42_000_000), new(big.Int).SetBytes(word[:]).Int64())

	words, err := pm.ExtsloadRange([]common.Hash{store.Slot0Slot(id), store.LiquiditySlot(id)})
	require.NoError(t, err)
	require.Len(t, words, 2)
	require.NotEqual(t, [32]byte{}, words[0])
}

func TestDonateThroughManager(t *testing.T) {
	pm, _ := newTestManager(t)
	key := testKey()
	initTestPool(t, pm, key)

	err := pm.Lock(context.Background(), func(ctx context.Context) error {
		_, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -600, TickUpper: 600,
			LiquidityDelta: big.NewInt(1_000_000),
		}, nil)
		require.NoError(t, err)

		delta, err := pm.Donate(trader, key, big.NewInt(500), big.NewInt(0), nil)
		require.NoError(t, err)
		require.Equal(t, int64(500), delta.Amount0.Int64())

		settleAll(t, pm, trader, tokenA, tokenB)
		return nil
	})
	require.NoError(t, err)
}

func TestMintCreditInsteadOfTake(t *testing.T) {
	pm, _ := newTestManager(t)
	key := testKey()
	initTestPool(t, pm, key)

	err := pm.Lock(context.Background(), func(ctx context.Context) error {
		_, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -600, TickUpper: 600,
			LiquidityDelta: big.NewInt(10_000_000),
		}, nil)
		require.NoError(t, err)
		settleAll(t, pm, trader, tokenA, tokenB)

		// Remove a little and keep the claim as credit.
		delta, _, err := pm.ModifyLiquidity(trader, key, pool.ModifyLiquidityParams{
			TickLower: -600, TickUpper: 600,
			LiquidityDelta: big.NewInt(-1_000_000),
		}, nil)
		require.NoError(t, err)

		require.NoError(t, pm.Mint(trader, tokenA, trader, new(big.Int).Neg(delta.Amount0)))
		require.NoError(t, pm.Mint(trader, tokenB, trader, new(big.Int).Neg(delta.Amount1)))
		return nil
	})
	require.NoError(t, err)

	require.True(t, pm.Ledger().CreditBalance(trader, tokenA).Sign() > 0)

	// The credit balance is mirrored into storage.
	word, err := pm.Extsload(store.CreditSlot(trader, tokenA))
	require.NoError(t, err)
	require.True(t, new(big.Int).SetBytes(word[:]).Sign() > 0)
}
