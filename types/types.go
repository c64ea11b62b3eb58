// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types holds the identifiers shared by every layer of the AMM:
// currencies, pool keys, packed pool parameters and balance deltas.
package types

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Fee constants. LP fees are expressed in pips (parts per million).
const (
	// FeeMax is the maximum static LP fee: 100%.
	FeeMax uint32 = 1_000_000

	// FeeDynamic is the sentinel marking a dynamic-fee pool. A pool created
	// with this fee takes its per-swap fee from the hook; any stored value
	// is ignored.
	FeeDynamic uint32 = 0x800000
)

// Protocol fee constants. The protocol fee packs two direction-specific
// sub-fees into one uint32: bits 0-11 apply to zeroForOne swaps, bits 12-23
// to oneForZero swaps. Each sub-fee is a fraction of the LP fee collected,
// over ProtocolFeeDenominator.
const (
	MaxProtocolFee         uint32 = 1000
	ProtocolFeeDenominator uint32 = 10_000
)

// Errors shared across the core.
var (
	ErrCurrenciesNotSorted = errors.New("currencies not sorted")
	ErrInvalidFee          = errors.New("invalid lp fee")
	ErrInvalidProtocolFee  = errors.New("invalid protocol fee")
	ErrInvalidTickSpacing  = errors.New("invalid tick spacing")
	ErrReservedBitsSet     = errors.New("reserved parameter bits set")
)

// Currency represents an asset (native or token).
// The zero address represents the environment's native value type.
type Currency struct {
	Address common.Address
}

// NativeCurrency is the reserved id for the native value type.
var NativeCurrency = Currency{Address: common.Address{}}

// IsNative returns true if this currency is the native value type.
func (c Currency) IsNative() bool {
	return c.Address == common.Address{}
}

// ToBytes serializes the currency for hashing and storage.
func (c Currency) ToBytes() []byte {
	return c.Address.Bytes()
}

// Less reports whether c orders before other under the total currency order.
func (c Currency) Less(other Currency) bool {
	return bytesLess(c.Address.Bytes(), other.Address.Bytes())
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// HookFlags is the per-pool capability bitmap over the extension-module
// lifecycle slots. The hooks package defines the individual bits; here it is
// only an opaque 14-bit value carried inside PoolParams.
type HookFlags uint16

// hookFlagsMask covers the 14 defined capability bits. Bits 14 and 15 are
// reserved and must be zero.
const hookFlagsMask HookFlags = 0x3FFF

// PoolParams is the decoded form of a pool key's packed parameters.
type PoolParams struct {
	TickSpacing int32
	HookFlags   HookFlags
}

// MaxTickSpacing bounds the spacing so that every aligned tick stays
// representable in the bitmap word index.
const MaxTickSpacing int32 = 32767

// Encode packs the parameters into a uint64:
// bits 0-13 hook flags, bits 16-39 tick spacing (24-bit two's complement).
// All other bits are reserved and encode as zero.
func (p PoolParams) Encode() uint64 {
	return uint64(p.HookFlags&hookFlagsMask) | (uint64(uint32(p.TickSpacing))&0xFFFFFF)<<16
}

// DecodePoolParams unpacks parameters, rejecting any set reserved bit.
func DecodePoolParams(v uint64) (PoolParams, error) {
	const definedMask = uint64(0x3FFF) | uint64(0xFFFFFF)<<16
	if v&^definedMask != 0 {
		return PoolParams{}, ErrReservedBitsSet
	}
	raw := uint32(v>>16) & 0xFFFFFF
	// Sign-extend the 24-bit tick spacing.
	if raw&0x800000 != 0 {
		raw |= 0xFF000000
	}
	return PoolParams{
		TickSpacing: int32(raw),
		HookFlags:   HookFlags(v) & hookFlagsMask,
	}, nil
}

// Validate checks the tick spacing bounds.
func (p PoolParams) Validate() error {
	if p.TickSpacing <= 0 || p.TickSpacing > MaxTickSpacing {
		return ErrInvalidTickSpacing
	}
	return nil
}

// PoolID uniquely identifies an initialized pool.
type PoolID [32]byte

// Hash returns the id as a common.Hash for raw-storage addressing.
func (id PoolID) Hash() common.Hash {
	return common.Hash(id)
}

// PoolKey uniquely identifies a pool. Currency0 must order before Currency1.
type PoolKey struct {
	Currency0 Currency
	Currency1 Currency
	Fee       uint32 // LP fee in pips, or FeeDynamic
	Params    PoolParams
	Hooks     common.Address // extension module, zero = none
}

// ID computes the deterministic pool identifier.
func (pk PoolKey) ID() PoolID {
	h := blake3.New()
	h.Write(pk.Currency0.ToBytes())
	h.Write(pk.Currency1.ToBytes())

	var fee [4]byte
	binary.BigEndian.PutUint32(fee[:], pk.Fee)
	h.Write(fee[:])

	var params [8]byte
	binary.BigEndian.PutUint64(params[:], pk.Params.Encode())
	h.Write(params[:])

	h.Write(pk.Hooks.Bytes())

	var id PoolID
	h.Digest().Read(id[:])
	return id
}

// HasHook reports whether the key names an extension module.
func (pk PoolKey) HasHook() bool {
	return pk.Hooks != (common.Address{})
}

// IsDynamicFee reports whether the key uses the dynamic-fee sentinel.
func (pk PoolKey) IsDynamicFee() bool {
	return pk.Fee == FeeDynamic
}

// ValidateBase checks the hook-independent key invariants: currency order,
// fee range and tick spacing. Hook flag validation lives in the hooks
// package, which knows the capability bits.
func (pk PoolKey) ValidateBase() error {
	if !pk.Currency0.Less(pk.Currency1) {
		return ErrCurrenciesNotSorted
	}
	if pk.Fee > FeeMax && pk.Fee != FeeDynamic {
		return ErrInvalidFee
	}
	return pk.Params.Validate()
}

// ProtocolFee is the packed pair of direction-specific protocol sub-fees.
type ProtocolFee uint32

// ZeroForOne returns the sub-fee applied to zeroForOne swaps.
func (f ProtocolFee) ZeroForOne() uint32 {
	return uint32(f) & 0xFFF
}

// OneForZero returns the sub-fee applied to oneForZero swaps.
func (f ProtocolFee) OneForZero() uint32 {
	return (uint32(f) >> 12) & 0xFFF
}

// Validate rejects a packed value whose either sub-fee exceeds the bound.
func (f ProtocolFee) Validate() error {
	if uint32(f)>>24 != 0 {
		return ErrInvalidProtocolFee
	}
	if f.ZeroForOne() > MaxProtocolFee || f.OneForZero() > MaxProtocolFee {
		return ErrInvalidProtocolFee
	}
	return nil
}

// NewProtocolFee packs two sub-fees.
func NewProtocolFee(zeroForOne, oneForZero uint32) ProtocolFee {
	return ProtocolFee(zeroForOne&0xFFF | (oneForZero&0xFFF)<<12)
}

// BalanceDelta represents the net currency changes produced by an operation.
// Positive = owed to the pool, negative = owed to the actor.
type BalanceDelta struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// NewBalanceDelta creates a balance delta, copying both amounts.
func NewBalanceDelta(amount0, amount1 *big.Int) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Set(amount0),
		Amount1: new(big.Int).Set(amount1),
	}
}

// ZeroBalanceDelta returns a zero balance delta.
func ZeroBalanceDelta() BalanceDelta {
	return BalanceDelta{
		Amount0: big.NewInt(0),
		Amount1: big.NewInt(0),
	}
}

// Add combines two balance deltas.
func (bd BalanceDelta) Add(other BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Add(bd.Amount0, other.Amount0),
		Amount1: new(big.Int).Add(bd.Amount1, other.Amount1),
	}
}

// Sub subtracts another balance delta.
func (bd BalanceDelta) Sub(other BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Sub(bd.Amount0, other.Amount0),
		Amount1: new(big.Int).Sub(bd.Amount1, other.Amount1),
	}
}

// Negate inverts the balance delta signs.
func (bd BalanceDelta) Negate() BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Neg(bd.Amount0),
		Amount1: new(big.Int).Neg(bd.Amount1),
	}
}

// IsZero returns true if both amounts are zero.
func (bd BalanceDelta) IsZero() bool {
	return bd.Amount0.Sign() == 0 && bd.Amount1.Sign() == 0
}
