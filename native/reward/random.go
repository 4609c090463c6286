package reward

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"boxchain/native/common"
)

// The seed composition and digest slicing below are a frozen wire format:
// replaying a historical open with the same box id, block time, height and
// transaction index must reproduce the same draw forever. Any change bumps
// SeedFormatVersion and applies only from that version onward.
const SeedFormatVersion = 1

const seedAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// drawHexChars is the number of hex characters taken from each end of the
// digest when deriving the draw point.
const drawHexChars = 16

// DrawSeed renders the committed chain data a draw depends on. The leading
// symbol folds the block second into a 62-symbol alphabet; the remaining
// fields are decimal-rendered and delimited so distinct inputs can never
// collide into one seed.
func DrawSeed(boxID uint64, blockTime time.Time, height uint64, txIndex uint32) []byte {
	sec := blockTime.Unix()
	if sec < 0 {
		sec = 0
	}
	seed := make([]byte, 0, 64)
	seed = append(seed, seedAlphabet[uint64(sec)%uint64(len(seedAlphabet))])
	seed = append(seed, '|')
	seed = strconv.AppendUint(seed, boxID, 10)
	seed = append(seed, '|')
	seed = strconv.AppendInt(seed, int64(blockTime.Nanosecond()), 10)
	seed = append(seed, '|')
	seed = strconv.AppendUint(seed, height, 10)
	seed = append(seed, '|')
	seed = strconv.AppendUint(seed, uint64(txIndex), 10)
	return seed
}

// DrawPoint hashes the seed and reduces it into [0, span). The two digest
// slices are summed as arbitrary-precision integers, so the sum cannot wrap
// before the modulo.
func DrawPoint(seed []byte, span uint64) (uint64, error) {
	if span == 0 {
		return 0, ErrPoolExhausted
	}
	digest := sha256.Sum256(seed)
	encoded := hex.EncodeToString(digest[:])
	head, ok := new(big.Int).SetString(encoded[:drawHexChars], 16)
	if !ok {
		return 0, fmt.Errorf("reward: malformed digest head")
	}
	tail, ok := new(big.Int).SetString(encoded[len(encoded)-drawHexChars:], 16)
	if !ok {
		return 0, fmt.Errorf("reward: malformed digest tail")
	}
	sum := new(big.Int).Add(head, tail)
	point := sum.Mod(sum, new(big.Int).SetUint64(span))
	return point.Uint64(), nil
}

// selectBucket maps a draw point onto the bucket whose half-open interval of
// remaining capacity contains it. Buckets with no remaining capacity
// contribute nothing to the span, so the draw can never land on an exhausted
// bucket.
func selectBucket(buckets []Bucket, point uint64) (int, bool) {
	var offset uint64
	for i := range buckets {
		remaining := buckets[i].Remaining()
		if remaining == 0 {
			continue
		}
		if point < offset+remaining {
			return i, true
		}
		offset += remaining
	}
	return 0, false
}

// totalSpan sums the remaining capacity across all buckets.
func totalSpan(buckets []Bucket) (uint64, error) {
	var span uint64
	for i := range buckets {
		next, err := common.AddUint64(span, buckets[i].Remaining())
		if err != nil {
			return 0, fmt.Errorf("reward: span: %w", err)
		}
		span = next
	}
	return span, nil
}
