package mint

import "math/big"

// LevelConfig is the priced supply band for one box level. MintedCount only
// ever grows and never exceeds TotalCap.
type LevelConfig struct {
	Index          uint32
	Price          *big.Int
	TotalCap       uint64
	MintedCount    uint64
	ReceivedAmount *big.Int
	// RandomPool marks the level whose boxes settle through weighted random
	// selection instead of the fixed payout table.
	RandomPool bool
}

// Clone returns a deep copy to avoid callers mutating shared pointers.
func (c *LevelConfig) Clone() *LevelConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.Price != nil {
		out.Price = new(big.Int).Set(c.Price)
	}
	if c.ReceivedAmount != nil {
		out.ReceivedAmount = new(big.Int).Set(c.ReceivedAmount)
	}
	return &out
}

// Normalize fills nil amounts with zeros.
func (c *LevelConfig) Normalize() *LevelConfig {
	if c == nil {
		return nil
	}
	if c.Price == nil {
		c.Price = big.NewInt(0)
	}
	if c.ReceivedAmount == nil {
		c.ReceivedAmount = big.NewInt(0)
	}
	return c
}

// BoxRecord is written once per allocated box id at mint time. Settlement
// state lives in the reward engine's open record, not here.
type BoxRecord struct {
	ID         uint64
	Level      uint32
	Price      *big.Int
	MintBlock  uint64
	RandomPool bool
	RewardBox  bool
}

// Clone returns a deep copy of the record.
func (r *BoxRecord) Clone() *BoxRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Price != nil {
		out.Price = new(big.Int).Set(r.Price)
	}
	return &out
}
