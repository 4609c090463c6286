package referral

import (
	"fmt"
	"math/big"
)

// ValidateTierTable checks that a tier table forms a strict partition of the
// volume axis starting at zero: bands sorted by MinVolume must be
// non-overlapping, gap-free and well-formed. Governance rejects updates that
// fail here so tier resolution at mint time can assume exactly one match.
func ValidateTierTable(tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: empty table", ErrInvalidTier)
	}
	sorted := SortTiers(tiers)
	seen := make(map[uint32]struct{}, len(sorted))
	for i := range sorted {
		tier := &sorted[i]
		if _, dup := seen[tier.Index]; dup {
			return fmt.Errorf("%w: duplicate index %d", ErrInvalidTier, tier.Index)
		}
		seen[tier.Index] = struct{}{}
		if tier.MinVolume == nil || tier.MaxVolume == nil {
			return fmt.Errorf("%w: tier %d missing volume bounds", ErrInvalidTier, tier.Index)
		}
		if tier.MinVolume.Sign() < 0 {
			return fmt.Errorf("%w: tier %d negative min volume", ErrInvalidTier, tier.Index)
		}
		if tier.MaxVolume.Cmp(tier.MinVolume) < 0 {
			return fmt.Errorf("%w: tier %d max below min", ErrInvalidTier, tier.Index)
		}
		if tier.InviterRewardRate > RateBase {
			return fmt.Errorf("%w: tier %d inviter reward rate exceeds base", ErrInvalidTier, tier.Index)
		}
		if tier.InviteeDiscountRate > RateBase {
			return fmt.Errorf("%w: tier %d invitee discount rate exceeds base", ErrInvalidTier, tier.Index)
		}
		if tier.RecommendedQuantity == nil || tier.RecommendedQuantity.Sign() <= 0 {
			return fmt.Errorf("%w: tier %d recommended quantity must be positive", ErrInvalidTier, tier.Index)
		}
	}
	if sorted[0].MinVolume.Sign() != 0 {
		return fmt.Errorf("%w: first tier must start at zero", ErrTierGap)
	}
	one := big.NewInt(1)
	for i := 1; i < len(sorted); i++ {
		prev, next := &sorted[i-1], &sorted[i]
		expected := new(big.Int).Add(prev.MaxVolume, one)
		switch expected.Cmp(next.MinVolume) {
		case 1:
			return fmt.Errorf("%w: tiers %d and %d", ErrTierOverlap, prev.Index, next.Index)
		case -1:
			return fmt.Errorf("%w: between tiers %d and %d", ErrTierGap, prev.Index, next.Index)
		}
	}
	return nil
}
