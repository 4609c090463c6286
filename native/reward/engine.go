package reward

import (
	"fmt"
	"math/big"
	"time"

	"boxchain/core/events"
	"boxchain/native/common"
	"boxchain/native/mint"
)

// State describes the persistence the reward engine needs. Box records are
// read-only here; the engine owns pools and open records.
type State interface {
	BoxRecord(id uint64) (*mint.BoxRecord, bool, error)
	BoxOpenRecord(id uint64) (*OpenRecord, bool, error)
	PutBoxOpenRecord(record *OpenRecord) error
	RewardPool(level uint32) (*Pool, bool, error)
	PutRewardPool(pool *Pool) error
	RandomRewardPool(level uint32) (*RandomPool, bool, error)
	PutRandomRewardPool(pool *RandomPool) error
	RewardOpenCount() (uint64, error)
	SetRewardOpenCount(count uint64) error
}

// Engine settles minted boxes into payouts. Each box id transitions
// Unopened -> Opened exactly once; the written OpenRecord is both the result
// and the guard.
type Engine struct {
	state   State
	emitter events.Emitter
}

// NewEngine constructs a reward engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Open resolves the payout for a box. blockTime, height and txIndex must come
// from the committed block context so a replay of the same open draws the
// same outcome.
func (e *Engine) Open(boxID uint64, opener [20]byte, blockTime time.Time, height uint64, txIndex uint32) (*OpenRecord, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("reward: state not configured")
	}
	if _, exists, err := e.state.BoxOpenRecord(boxID); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: box %d", ErrAlreadyOpened, boxID)
	}
	box, ok, err := e.state.BoxRecord(boxID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: box %d", ErrBoxNotFound, boxID)
	}

	var (
		payout *big.Int
		kind   PoolKind
		bucket = -1
	)
	if box.RandomPool {
		payout, bucket, err = e.settleRandom(box.Level, boxID, blockTime, height, txIndex)
		kind = PoolKindRandom
	} else {
		payout, err = e.settleFixed(box.Level)
		kind = PoolKindFixed
	}
	if err != nil {
		return nil, err
	}

	opened, err := e.state.RewardOpenCount()
	if err != nil {
		return nil, err
	}
	claimIndex, err := common.AddUint64(opened, 1)
	if err != nil {
		return nil, fmt.Errorf("reward: open count: %w", err)
	}
	if err := e.state.SetRewardOpenCount(claimIndex); err != nil {
		return nil, err
	}

	record := &OpenRecord{
		BoxID:         boxID,
		Opener:        opener,
		Payout:        payout,
		OpenTime:      blockTime.Unix(),
		PoolKind:      kind,
		Bucket:        bucket,
		ClaimIndex:    claimIndex,
		ClaimedAmount: new(big.Int).Set(payout),
	}
	if err := e.state.PutBoxOpenRecord(record); err != nil {
		return nil, err
	}
	e.emit(events.BoxOpened{
		BoxID:      boxID,
		Opener:     opener,
		Payout:     new(big.Int).Set(payout),
		PoolKind:   string(kind),
		Bucket:     bucket,
		ClaimIndex: claimIndex,
		OpenTime:   record.OpenTime,
	})
	return record.Clone(), nil
}

func (e *Engine) settleFixed(level uint32) (*big.Int, error) {
	pool, ok, err := e.state.RewardPool(level)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: level %d", ErrPoolNotFound, level)
	}
	pool.Normalize()
	if pool.PaidOutCount >= pool.Capacity {
		return nil, fmt.Errorf("%w: level %d", ErrPoolExhausted, level)
	}
	count, err := common.AddUint64(pool.PaidOutCount, 1)
	if err != nil {
		return nil, fmt.Errorf("reward: paid out count: %w", err)
	}
	pool.PaidOutCount = count
	payout := new(big.Int).Set(pool.RewardAmount)
	pool.PaidOutAmount = new(big.Int).Add(pool.PaidOutAmount, payout)
	if err := e.state.PutRewardPool(pool); err != nil {
		return nil, err
	}
	return payout, nil
}

func (e *Engine) settleRandom(level uint32, boxID uint64, blockTime time.Time, height uint64, txIndex uint32) (*big.Int, int, error) {
	pool, ok, err := e.state.RandomRewardPool(level)
	if err != nil {
		return nil, -1, err
	}
	if !ok {
		return nil, -1, fmt.Errorf("%w: random level %d", ErrPoolNotFound, level)
	}
	pool.Normalize()
	span, err := totalSpan(pool.Buckets)
	if err != nil {
		return nil, -1, err
	}
	if span == 0 {
		return nil, -1, fmt.Errorf("%w: random level %d", ErrPoolExhausted, level)
	}
	point, err := DrawPoint(DrawSeed(boxID, blockTime, height, txIndex), span)
	if err != nil {
		return nil, -1, err
	}
	idx, ok := selectBucket(pool.Buckets, point)
	if !ok {
		// Unreachable for span > 0: the draw point is always below the span.
		return nil, -1, fmt.Errorf("%w: random level %d", ErrPoolExhausted, level)
	}
	bucket := &pool.Buckets[idx]
	count, err := common.AddUint64(bucket.PaidOutCount, 1)
	if err != nil {
		return nil, -1, fmt.Errorf("reward: bucket paid out count: %w", err)
	}
	bucket.PaidOutCount = count
	poolCount, err := common.AddUint64(pool.PaidOutCount, 1)
	if err != nil {
		return nil, -1, fmt.Errorf("reward: pool paid out count: %w", err)
	}
	pool.PaidOutCount = poolCount
	payout := new(big.Int).Set(bucket.Amount)
	pool.PaidOutAmount = new(big.Int).Add(pool.PaidOutAmount, payout)
	if err := e.state.PutRandomRewardPool(pool); err != nil {
		return nil, -1, err
	}
	return payout, idx, nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}
