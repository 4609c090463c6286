package reward

import (
	"errors"
	"math/big"
)

var (
	ErrBoxNotFound   = errors.New("reward: box not found")
	ErrAlreadyOpened = errors.New("reward: box already opened")
	ErrPoolNotFound  = errors.New("reward: pool not found")
	ErrPoolExhausted = errors.New("reward: pool exhausted")
)

// PoolKind distinguishes how a payout was resolved.
type PoolKind string

const (
	PoolKindFixed  PoolKind = "fixed"
	PoolKindRandom PoolKind = "random"
)

// Pool is the fixed-payout pool backing an ordinary level. Every open pays
// RewardAmount until Capacity opens have been settled.
type Pool struct {
	Level         uint32
	RewardAmount  *big.Int
	Capacity      uint64
	PaidOutCount  uint64
	PaidOutAmount *big.Int
}

// Clone returns a deep copy to avoid callers mutating shared pointers.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	out := *p
	out.RewardAmount = cloneOrZero(p.RewardAmount)
	out.PaidOutAmount = cloneOrZero(p.PaidOutAmount)
	return &out
}

// Normalize fills nil amounts with zeros.
func (p *Pool) Normalize() *Pool {
	if p == nil {
		return nil
	}
	if p.RewardAmount == nil {
		p.RewardAmount = big.NewInt(0)
	}
	if p.PaidOutAmount == nil {
		p.PaidOutAmount = big.NewInt(0)
	}
	return p
}

// Bucket is one weighted slot of a random pool. Its remaining capacity is its
// weight in the draw.
type Bucket struct {
	Amount       *big.Int
	Capacity     uint64
	PaidOutCount uint64
}

// Remaining returns the bucket's unconsumed capacity.
func (b *Bucket) Remaining() uint64 {
	if b == nil || b.PaidOutCount >= b.Capacity {
		return 0
	}
	return b.Capacity - b.PaidOutCount
}

// RandomPool backs the designated random level with an ordered bucket list.
// Bucket order is part of the draw layout and must stay stable across
// updates.
type RandomPool struct {
	Level         uint32
	Buckets       []Bucket
	PaidOutCount  uint64
	PaidOutAmount *big.Int
}

// Clone returns a deep copy of the pool.
func (p *RandomPool) Clone() *RandomPool {
	if p == nil {
		return nil
	}
	out := *p
	out.PaidOutAmount = cloneOrZero(p.PaidOutAmount)
	out.Buckets = make([]Bucket, len(p.Buckets))
	for i := range p.Buckets {
		out.Buckets[i] = p.Buckets[i]
		out.Buckets[i].Amount = cloneOrZero(p.Buckets[i].Amount)
	}
	return &out
}

// Normalize fills nil amounts with zeros.
func (p *RandomPool) Normalize() *RandomPool {
	if p == nil {
		return nil
	}
	if p.PaidOutAmount == nil {
		p.PaidOutAmount = big.NewInt(0)
	}
	for i := range p.Buckets {
		if p.Buckets[i].Amount == nil {
			p.Buckets[i].Amount = big.NewInt(0)
		}
	}
	return p
}

// OpenRecord is written exactly once per box id; its existence is the
// idempotency guard against re-opening.
type OpenRecord struct {
	BoxID         uint64
	Opener        [20]byte
	Payout        *big.Int
	OpenTime      int64
	PoolKind      PoolKind
	Bucket        int
	ClaimIndex    uint64
	ClaimedAmount *big.Int
}

// Clone returns a deep copy of the record.
func (r *OpenRecord) Clone() *OpenRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Payout = cloneOrZero(r.Payout)
	out.ClaimedAmount = cloneOrZero(r.ClaimedAmount)
	return &out
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
