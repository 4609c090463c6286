package state

import (
	"fmt"
	"math/big"

	"boxchain/native/reward"
)

type storedRewardPool struct {
	Level         uint32
	RewardAmount  *big.Int
	Capacity      uint64
	PaidOutCount  uint64
	PaidOutAmount *big.Int
}

type storedBucket struct {
	Amount       *big.Int
	Capacity     uint64
	PaidOutCount uint64
}

type storedRandomPool struct {
	Level         uint32
	Buckets       []storedBucket
	PaidOutCount  uint64
	PaidOutAmount *big.Int
}

type storedOpenRecord struct {
	BoxID         uint64
	Opener        [20]byte
	Payout        *big.Int
	OpenTime      uint64
	PoolKind      string
	Bucket        uint32
	HasBucket     bool
	ClaimIndex    uint64
	ClaimedAmount *big.Int
}

// RewardPool loads the fixed pool for a level.
func (m *Manager) RewardPool(level uint32) (*reward.Pool, bool, error) {
	var stored storedRewardPool
	ok, err := m.KVGet(rewardPoolKey(level), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	pool := &reward.Pool{
		Level:         stored.Level,
		RewardAmount:  stored.RewardAmount,
		Capacity:      stored.Capacity,
		PaidOutCount:  stored.PaidOutCount,
		PaidOutAmount: stored.PaidOutAmount,
	}
	return pool.Normalize(), true, nil
}

// PutRewardPool persists a fixed pool.
func (m *Manager) PutRewardPool(pool *reward.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil reward pool")
	}
	pool.Normalize()
	stored := storedRewardPool{
		Level:         pool.Level,
		RewardAmount:  pool.RewardAmount,
		Capacity:      pool.Capacity,
		PaidOutCount:  pool.PaidOutCount,
		PaidOutAmount: pool.PaidOutAmount,
	}
	return m.KVPut(rewardPoolKey(pool.Level), stored)
}

// RandomRewardPool loads the weighted pool for a level.
func (m *Manager) RandomRewardPool(level uint32) (*reward.RandomPool, bool, error) {
	var stored storedRandomPool
	ok, err := m.KVGet(rewardRandomPoolKey(level), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	pool := &reward.RandomPool{
		Level:         stored.Level,
		PaidOutCount:  stored.PaidOutCount,
		PaidOutAmount: stored.PaidOutAmount,
		Buckets:       make([]reward.Bucket, len(stored.Buckets)),
	}
	for i, b := range stored.Buckets {
		pool.Buckets[i] = reward.Bucket{
			Amount:       b.Amount,
			Capacity:     b.Capacity,
			PaidOutCount: b.PaidOutCount,
		}
	}
	return pool.Normalize(), true, nil
}

// PutRandomRewardPool persists a weighted pool. Bucket order is preserved
// byte for byte; it is part of the draw layout.
func (m *Manager) PutRandomRewardPool(pool *reward.RandomPool) error {
	if pool == nil {
		return fmt.Errorf("state: nil random pool")
	}
	pool.Normalize()
	stored := storedRandomPool{
		Level:         pool.Level,
		PaidOutCount:  pool.PaidOutCount,
		PaidOutAmount: pool.PaidOutAmount,
		Buckets:       make([]storedBucket, len(pool.Buckets)),
	}
	for i, b := range pool.Buckets {
		stored.Buckets[i] = storedBucket{
			Amount:       b.Amount,
			Capacity:     b.Capacity,
			PaidOutCount: b.PaidOutCount,
		}
	}
	return m.KVPut(rewardRandomPoolKey(pool.Level), stored)
}

// BoxOpenRecord loads a box's settlement record when the box has been opened.
func (m *Manager) BoxOpenRecord(id uint64) (*reward.OpenRecord, bool, error) {
	var stored storedOpenRecord
	ok, err := m.KVGet(boxOpenKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	record := &reward.OpenRecord{
		BoxID:         stored.BoxID,
		Opener:        stored.Opener,
		Payout:        stored.Payout,
		OpenTime:      int64(stored.OpenTime),
		PoolKind:      reward.PoolKind(stored.PoolKind),
		Bucket:        -1,
		ClaimIndex:    stored.ClaimIndex,
		ClaimedAmount: stored.ClaimedAmount,
	}
	if stored.HasBucket {
		record.Bucket = int(stored.Bucket)
	}
	return record, true, nil
}

// PutBoxOpenRecord persists a settlement record. Callers must check for an
// existing record first; the engine treats presence as the opened state.
func (m *Manager) PutBoxOpenRecord(record *reward.OpenRecord) error {
	if record == nil {
		return fmt.Errorf("state: nil open record")
	}
	stored := storedOpenRecord{
		BoxID:         record.BoxID,
		Opener:        record.Opener,
		Payout:        record.Payout,
		OpenTime:      int64ToUint64(record.OpenTime),
		PoolKind:      string(record.PoolKind),
		ClaimIndex:    record.ClaimIndex,
		ClaimedAmount: record.ClaimedAmount,
	}
	if record.Bucket >= 0 {
		stored.Bucket = uint32(record.Bucket)
		stored.HasBucket = true
	}
	return m.KVPut(boxOpenKey(record.BoxID), stored)
}

// RewardOpenCount returns how many boxes have been opened in total.
func (m *Manager) RewardOpenCount() (uint64, error) {
	var count uint64
	ok, err := m.KVGet(rewardOpenCountKey, &count)
	if err != nil || !ok {
		return 0, err
	}
	return count, nil
}

// SetRewardOpenCount advances the global open counter.
func (m *Manager) SetRewardOpenCount(count uint64) error {
	return m.KVPut(rewardOpenCountKey, count)
}
