// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store persists pool state as 32-byte words in a key-value
// database. Slots are derived by hashing a record prefix with the record's
// identifiers, and the raw word at any slot can be read back directly, which
// is how external readers inspect pool state without a typed API.
package store

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/luxfi/amm/types"
)

// Record prefixes. One prefix per record kind keeps slots collision-free.
const (
	prefixSlot0       = "pool"
	prefixLiquidity   = "pliq"
	prefixFeeGrowth   = "pfee"
	prefixTick        = "tick"
	prefixPosition    = "posn"
	prefixProtocolFee = "prot"
	prefixCredit      = "cred"
)

var ErrWordSize = errors.New("stored word is not 32 bytes")

// Store writes pool state through to a key-value database, one 32-byte word
// per slot.
type Store struct {
	db  database.Database
	log log.Logger
}

// New creates a store over the database.
func New(db database.Database, logger log.Logger) *Store {
	return &Store{db: db, log: logger}
}

// Slot derives the storage slot for a record from its prefix and parts.
func Slot(prefix string, parts ...[]byte) common.Hash {
	h := blake3.New()
	h.Write([]byte(prefix))
	for _, p := range parts {
		h.Write(p)
	}
	var slot common.Hash
	h.Digest().Read(slot[:])
	return slot
}

// WriteWord stores a 32-byte word at a slot.
func (s *Store) WriteWord(slot common.Hash, word [32]byte) error {
	return s.db.Put(slot[:], word[:])
}

// ReadWord reads the word at a slot. Unwritten slots read as zero.
func (s *Store) ReadWord(slot common.Hash) ([32]byte, error) {
	var word [32]byte
	raw, err := s.db.Get(slot[:])
	if errors.Is(err, database.ErrNotFound) {
		return word, nil
	}
	if err != nil {
		return word, err
	}
	if len(raw) != 32 {
		return word, ErrWordSize
	}
	copy(word[:], raw)
	return word, nil
}

// clearWord deletes a slot so it reads as zero again.
func (s *Store) clearWord(slot common.Hash) error {
	err := s.db.Delete(slot[:])
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	return err
}

// Slot0 packing: sqrt price (160 bits) | tick (32) | protocol fee (24) |
// lp fee (24), big-endian, 2 spare bytes.

// Slot0Slot returns the slot of a pool's slot0 word.
func Slot0Slot(id types.PoolID) common.Hash {
	return Slot(prefixSlot0, id[:])
}

// WriteSlot0 persists the frequently-accessed pool state.
func (s *Store) WriteSlot0(id types.PoolID, sqrtPriceX96 *big.Int, tick int32, protocolFee types.ProtocolFee, lpFee uint32) error {
	var word [32]byte
	sqrtPriceX96.FillBytes(word[:20])
	binary.BigEndian.PutUint32(word[20:24], uint32(tick))
	putUint24(word[24:27], uint32(protocolFee))
	putUint24(word[27:30], lpFee)
	return s.WriteWord(Slot0Slot(id), word)
}

// ReadSlot0 reads the pool's slot0. A zero sqrt price means the pool was
// never initialized.
func (s *Store) ReadSlot0(id types.PoolID) (sqrtPriceX96 *big.Int, tick int32, protocolFee types.ProtocolFee, lpFee uint32, err error) {
	word, err := s.ReadWord(Slot0Slot(id))
	if err != nil {
		return nil, 0, 0, 0, err
	}
	sqrtPriceX96 = new(big.Int).SetBytes(word[:20])
	tick = int32(binary.BigEndian.Uint32(word[20:24]))
	protocolFee = types.ProtocolFee(uint24(word[24:27]))
	lpFee = uint24(word[27:30])
	return sqrtPriceX96, tick, protocolFee, lpFee, nil
}

// LiquiditySlot returns the slot of a pool's in-range liquidity.
func LiquiditySlot(id types.PoolID) common.Hash {
	return Slot(prefixLiquidity, id[:])
}

// WriteLiquidity persists the pool's in-range liquidity.
func (s *Store) WriteLiquidity(id types.PoolID, liquidity *big.Int) error {
	return s.WriteWord(LiquiditySlot(id), wordFromBig(liquidity))
}

// ReadLiquidity reads the pool's in-range liquidity.
func (s *Store) ReadLiquidity(id types.PoolID) (*big.Int, error) {
	word, err := s.ReadWord(LiquiditySlot(id))
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(word[:]), nil
}

// ClearPoolCore removes a pool's slot0, liquidity and fee accumulator words,
// undoing a write of a pool that failed to initialize.
func (s *Store) ClearPoolCore(id types.PoolID) error {
	if err := s.clearWord(Slot0Slot(id)); err != nil {
		return err
	}
	if err := s.clearWord(LiquiditySlot(id)); err != nil {
		return err
	}
	if err := s.clearWord(FeeGrowthSlot(id, 0)); err != nil {
		return err
	}
	return s.clearWord(FeeGrowthSlot(id, 1))
}

// FeeGrowthSlot returns the slot of one of the two global fee accumulators.
func FeeGrowthSlot(id types.PoolID, index uint8) common.Hash {
	return Slot(prefixFeeGrowth, id[:], []byte{index})
}

// WriteFeeGrowth persists both global fee accumulators.
func (s *Store) WriteFeeGrowth(id types.PoolID, feeGrowth0X128, feeGrowth1X128 *big.Int) error {
	if err := s.WriteWord(FeeGrowthSlot(id, 0), wordFromBig(feeGrowth0X128)); err != nil {
		return err
	}
	return s.WriteWord(FeeGrowthSlot(id, 1), wordFromBig(feeGrowth1X128))
}

// ReadFeeGrowth reads both global fee accumulators.
func (s *Store) ReadFeeGrowth(id types.PoolID) (*big.Int, *big.Int, error) {
	w0, err := s.ReadWord(FeeGrowthSlot(id, 0))
	if err != nil {
		return nil, nil, err
	}
	w1, err := s.ReadWord(FeeGrowthSlot(id, 1))
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).SetBytes(w0[:]), new(big.Int).SetBytes(w1[:]), nil
}

// Tick records use three words: gross|net packed, then the two outside
// accumulators.

func tickKey(id types.PoolID, tick int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(tick))
	return append(append([]byte{}, id[:]...), b[:]...)
}

// TickSlot returns the slot of one word of a tick record.
func TickSlot(id types.PoolID, tick int32, index uint8) common.Hash {
	return Slot(prefixTick, tickKey(id, tick), []byte{index})
}

// WriteTick persists one tick record.
func (s *Store) WriteTick(id types.PoolID, tick int32, liquidityGross, liquidityNet, feeGrowthOutside0X128, feeGrowthOutside1X128 *big.Int) error {
	var packed [32]byte
	liquidityGross.FillBytes(packed[:16])
	copy(packed[16:], signed128Bytes(liquidityNet))
	if err := s.WriteWord(TickSlot(id, tick, 0), packed); err != nil {
		return err
	}
	if err := s.WriteWord(TickSlot(id, tick, 1), wordFromBig(feeGrowthOutside0X128)); err != nil {
		return err
	}
	return s.WriteWord(TickSlot(id, tick, 2), wordFromBig(feeGrowthOutside1X128))
}

// ReadTick reads one tick record. Unwritten ticks read as all zeros.
func (s *Store) ReadTick(id types.PoolID, tick int32) (liquidityGross, liquidityNet, feeGrowthOutside0X128, feeGrowthOutside1X128 *big.Int, err error) {
	packed, err := s.ReadWord(TickSlot(id, tick, 0))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	w1, err := s.ReadWord(TickSlot(id, tick, 1))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	w2, err := s.ReadWord(TickSlot(id, tick, 2))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return new(big.Int).SetBytes(packed[:16]),
		signed128FromBytes(packed[16:]),
		new(big.Int).SetBytes(w1[:]),
		new(big.Int).SetBytes(w2[:]), nil
}

// ClearTick removes a tick record whose liquidity dropped to zero.
func (s *Store) ClearTick(id types.PoolID, tick int32) error {
	for index := uint8(0); index < 3; index++ {
		if err := s.clearWord(TickSlot(id, tick, index)); err != nil {
			return err
		}
	}
	return nil
}

// Position records use three words: liquidity, then the two inside-growth
// snapshots.

// PositionSlot returns the slot of one word of a position record.
func PositionSlot(id types.PoolID, positionKey [32]byte, index uint8) common.Hash {
	return Slot(prefixPosition, id[:], positionKey[:], []byte{index})
}

// WritePosition persists one position record.
func (s *Store) WritePosition(id types.PoolID, positionKey [32]byte, liquidity, feeGrowthInside0LastX128, feeGrowthInside1LastX128 *big.Int) error {
	if err := s.WriteWord(PositionSlot(id, positionKey, 0), wordFromBig(liquidity)); err != nil {
		return err
	}
	if err := s.WriteWord(PositionSlot(id, positionKey, 1), wordFromBig(feeGrowthInside0LastX128)); err != nil {
		return err
	}
	return s.WriteWord(PositionSlot(id, positionKey, 2), wordFromBig(feeGrowthInside1LastX128))
}

// ReadPosition reads one position record.
func (s *Store) ReadPosition(id types.PoolID, positionKey [32]byte) (liquidity, feeGrowthInside0LastX128, feeGrowthInside1LastX128 *big.Int, err error) {
	w0, err := s.ReadWord(PositionSlot(id, positionKey, 0))
	if err != nil {
		return nil, nil, nil, err
	}
	w1, err := s.ReadWord(PositionSlot(id, positionKey, 1))
	if err != nil {
		return nil, nil, nil, err
	}
	w2, err := s.ReadWord(PositionSlot(id, positionKey, 2))
	if err != nil {
		return nil, nil, nil, err
	}
	return new(big.Int).SetBytes(w0[:]), new(big.Int).SetBytes(w1[:]), new(big.Int).SetBytes(w2[:]), nil
}

// ClearPosition removes a closed position record.
func (s *Store) ClearPosition(id types.PoolID, positionKey [32]byte) error {
	for index := uint8(0); index < 3; index++ {
		if err := s.clearWord(PositionSlot(id, positionKey, index)); err != nil {
			return err
		}
	}
	return nil
}

// ProtocolFeeSlot returns the slot of the accrued protocol fees for a
// currency.
func ProtocolFeeSlot(currency types.Currency) common.Hash {
	return Slot(prefixProtocolFee, currency.ToBytes())
}

// WriteProtocolFees persists the accrued protocol fees for a currency.
func (s *Store) WriteProtocolFees(currency types.Currency, amount *big.Int) error {
	return s.WriteWord(ProtocolFeeSlot(currency), wordFromBig(amount))
}

// ReadProtocolFees reads the accrued protocol fees for a currency.
func (s *Store) ReadProtocolFees(currency types.Currency) (*big.Int, error) {
	word, err := s.ReadWord(ProtocolFeeSlot(currency))
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(word[:]), nil
}

// CreditSlot returns the slot of an account's credit balance in a currency.
func CreditSlot(account common.Address, currency types.Currency) common.Hash {
	return Slot(prefixCredit, account.Bytes(), currency.ToBytes())
}

// WriteCredit persists an account's credit balance.
func (s *Store) WriteCredit(account common.Address, currency types.Currency, amount *big.Int) error {
	return s.WriteWord(CreditSlot(account, currency), wordFromBig(amount))
}

// ReadCredit reads an account's credit balance.
func (s *Store) ReadCredit(account common.Address, currency types.Currency) (*big.Int, error) {
	word, err := s.ReadWord(CreditSlot(account, currency))
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(word[:]), nil
}

func wordFromBig(v *big.Int) [32]byte {
	var word [32]byte
	v.FillBytes(word[:])
	return word
}

// signed128Bytes encodes a signed value as 16-byte two's complement.
func signed128Bytes(v *big.Int) []byte {
	b := make([]byte, 16)
	if v.Sign() >= 0 {
		v.FillBytes(b)
		return b
	}
	two128 := new(big.Int).Lsh(big.NewInt(1), 128)
	new(big.Int).Add(two128, v).FillBytes(b)
	return b
}

func signed128FromBytes(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	if len(b) == 16 && b[0]&0x80 != 0 {
		two128 := new(big.Int).Lsh(big.NewInt(1), 128)
		v.Sub(v, two128)
	}
	return v
}

func putUint24(dst []byte, v uint32) {
	dst[0] = byte(v >> 16)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v)
}

func uint24(src []byte) uint32 {
	return uint32(src[0])<<16 | uint32(src[1])<<8 | uint32(src[2])
}
