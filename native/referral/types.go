package referral

import (
	"math/big"
	"sort"
	"strings"
)

// RateBase is the denominator for inviter reward and invitee discount rates.
// A rate of 50000 therefore means 5%.
const RateBase = 1_000_000

// Tier describes one band of the cumulative referred volume axis. The bands
// configured by governance must partition the axis: every volume value falls
// into exactly one tier.
type Tier struct {
	Index               uint32
	MinVolume           *big.Int
	MaxVolume           *big.Int
	InviterRewardRate   uint64
	InviteeDiscountRate uint64
	// RewardBoxTable maps a box level to the number of reward boxes granted
	// per RecommendedQuantity of referred volume.
	RewardBoxTable      map[uint32]uint64
	RecommendedQuantity *big.Int
}

// Clone returns a deep copy to avoid callers mutating shared pointers.
func (t *Tier) Clone() *Tier {
	if t == nil {
		return nil
	}
	out := *t
	if t.MinVolume != nil {
		out.MinVolume = new(big.Int).Set(t.MinVolume)
	}
	if t.MaxVolume != nil {
		out.MaxVolume = new(big.Int).Set(t.MaxVolume)
	}
	if t.RecommendedQuantity != nil {
		out.RecommendedQuantity = new(big.Int).Set(t.RecommendedQuantity)
	}
	if t.RewardBoxTable != nil {
		out.RewardBoxTable = make(map[uint32]uint64, len(t.RewardBoxTable))
		for level, qty := range t.RewardBoxTable {
			out.RewardBoxTable[level] = qty
		}
	}
	return &out
}

// Contains reports whether the cumulative volume falls inside the tier's
// inclusive [MinVolume, MaxVolume] band.
func (t *Tier) Contains(volume *big.Int) bool {
	if t == nil || t.MinVolume == nil || t.MaxVolume == nil || volume == nil {
		return false
	}
	return volume.Cmp(t.MinVolume) >= 0 && volume.Cmp(t.MaxVolume) <= 0
}

// Account aggregates both roles a participant can play: the referrer-side
// counters driven by sales attributed to them, and the invitee-side record of
// how they themselves were referred. Accounts are created lazily and default
// to zero values on first read.
type Account struct {
	Code             string
	InviteeCount     uint64
	CumulativeVolume *big.Int
	BaseReward       *big.Int
	CurrentTier      uint32
	InviteesByTier   map[uint32]uint64
	// Entitlement holds the reward boxes per level the referrer may still
	// mint. It is replaced, never accumulated, when the volume crosses a new
	// multiple of the tier's recommended quantity.
	Entitlement map[uint32]uint64

	// Invitee-side fields, overwritten on every referred purchase.
	Inviter      [20]byte
	HasInviter   bool
	UsedCode     string
	DiscountRate uint64
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.CumulativeVolume = cloneOrZero(a.CumulativeVolume)
	out.BaseReward = cloneOrZero(a.BaseReward)
	if a.InviteesByTier != nil {
		out.InviteesByTier = make(map[uint32]uint64, len(a.InviteesByTier))
		for tier, count := range a.InviteesByTier {
			out.InviteesByTier[tier] = count
		}
	}
	if a.Entitlement != nil {
		out.Entitlement = make(map[uint32]uint64, len(a.Entitlement))
		for level, qty := range a.Entitlement {
			out.Entitlement[level] = qty
		}
	}
	return &out
}

// Normalize fills nil amounts and maps so callers can operate without nil
// checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return nil
	}
	if a.CumulativeVolume == nil {
		a.CumulativeVolume = big.NewInt(0)
	}
	if a.BaseReward == nil {
		a.BaseReward = big.NewInt(0)
	}
	if a.InviteesByTier == nil {
		a.InviteesByTier = make(map[uint32]uint64)
	}
	if a.Entitlement == nil {
		a.Entitlement = make(map[uint32]uint64)
	}
	return a
}

// Record is the append-only history entry written the first time an invitee
// transacts under a referrer.
type Record struct {
	Invitee      [20]byte
	BoxIDs       []uint64
	MintTime     int64
	TierAtMint   uint32
	SequenceNo   uint64
	Price        *big.Int
	PaidAmount   *big.Int
	RewardAmount *big.Int
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.BoxIDs = append([]uint64(nil), r.BoxIDs...)
	out.Price = cloneOrZero(r.Price)
	out.PaidAmount = cloneOrZero(r.PaidAmount)
	out.RewardAmount = cloneOrZero(r.RewardAmount)
	return &out
}

// GlobalTotals mirrors the sum of every referrer's accrued reward and box
// entitlement. It is maintained incrementally alongside each account mutation
// and is never recomputed by scanning accounts.
type GlobalTotals struct {
	TotalBaseReward *big.Int
	RewardBoxTotals map[uint32]uint64
}

// Clone returns a deep copy of the totals.
func (g *GlobalTotals) Clone() *GlobalTotals {
	if g == nil {
		return nil
	}
	out := &GlobalTotals{TotalBaseReward: cloneOrZero(g.TotalBaseReward)}
	if g.RewardBoxTotals != nil {
		out.RewardBoxTotals = make(map[uint32]uint64, len(g.RewardBoxTotals))
		for level, qty := range g.RewardBoxTotals {
			out.RewardBoxTotals[level] = qty
		}
	}
	return out
}

// Normalize fills nil fields with zero values.
func (g *GlobalTotals) Normalize() *GlobalTotals {
	if g == nil {
		return nil
	}
	if g.TotalBaseReward == nil {
		g.TotalBaseReward = big.NewInt(0)
	}
	if g.RewardBoxTotals == nil {
		g.RewardBoxTotals = make(map[uint32]uint64)
	}
	return g
}

// NormalizeCode canonicalises a referral code for lookup and storage.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

// SortTiers orders a tier table by ascending MinVolume without mutating the
// input slice.
func SortTiers(tiers []Tier) []Tier {
	sorted := append([]Tier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].MinVolume, sorted[j].MinVolume
		if a == nil || b == nil {
			return b != nil
		}
		return a.Cmp(b) < 0
	})
	return sorted
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
