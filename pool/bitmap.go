// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// TickBitmap indexes initialized ticks in 256-bit words keyed by word
// position, so the next initialized tick in either direction is found in
// bounded time: at most one word is scanned per call and the caller loops
// word by word.
type TickBitmap map[int16]*uint256.Int

func compressTick(tick, spacing int32) int32 {
	compressed := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		compressed-- // round toward negative infinity
	}
	return compressed
}

func bitmapPosition(compressed int32) (int16, uint8) {
	return int16(compressed >> 8), uint8(compressed & 0xFF)
}

// Flip toggles the initialized state of an aligned tick.
func (b TickBitmap) Flip(tick, spacing int32) {
	if tick%spacing != 0 {
		// Callers align ticks before flipping; a misaligned flip would
		// corrupt the index.
		panic("pool: flip of misaligned tick")
	}
	wordPos, bitPos := bitmapPosition(tick / spacing)
	word, ok := b[wordPos]
	if !ok {
		word = new(uint256.Int)
		b[wordPos] = word
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))
	word.Xor(word, mask)
	if word.IsZero() {
		delete(b, wordPos)
	}
}

// NextInitializedTickWithinOneWord returns the nearest initialized tick in
// the given direction within the same bitmap word, or the word's edge when
// none is initialized there. lte scans toward lower ticks (inclusive of the
// starting tick); otherwise it scans strictly upward.
func (b TickBitmap) NextInitializedTickWithinOneWord(tick, spacing int32, lte bool) (int32, bool) {
	compressed := compressTick(tick, spacing)

	if lte {
		wordPos, bitPos := bitmapPosition(compressed)
		// Bits at or below bitPos.
		mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos)+1)
		mask.SubUint64(mask, 1)
		masked := new(uint256.Int)
		if word, ok := b[wordPos]; ok {
			masked.And(word, mask)
		}

		if !masked.IsZero() {
			msb := uint8(masked.BitLen() - 1)
			return (compressed - int32(bitPos-msb)) * spacing, true
		}
		return (compressed - int32(bitPos)) * spacing, false
	}

	wordPos, bitPos := bitmapPosition(compressed + 1)
	// Bits at or above bitPos.
	low := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))
	low.SubUint64(low, 1)
	mask := new(uint256.Int).Not(low)
	masked := new(uint256.Int)
	if word, ok := b[wordPos]; ok {
		masked.And(word, mask)
	}

	if !masked.IsZero() {
		lsb := leastSignificantBit(masked)
		return (compressed + 1 + int32(lsb-bitPos)) * spacing, true
	}
	return (compressed + 1 + int32(255-bitPos)) * spacing, false
}

func leastSignificantBit(x *uint256.Int) uint8 {
	for i, limb := range x {
		if limb != 0 {
			return uint8(i*64 + bits.TrailingZeros64(limb))
		}
	}
	return 0
}
