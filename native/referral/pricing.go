package referral

import (
	"fmt"
	"math/big"
)

// Quote is the pricing engine's verdict for a prospective mint. The ledger
// consumes it verbatim; callers must not alter fields between quoting and
// applying.
type Quote struct {
	Level         uint32
	Quantity      uint64
	UnitPrice     *big.Int
	Total         *big.Int
	PaidAmount    *big.Int
	DiscountRate  uint64
	Code          string
	Referrer      [20]byte
	HasReferrer   bool
	TierNow       uint32
	TierProjected uint32
	// Tier is the referral tier resolved for the referrer's current volume,
	// nil when the quote carries no referrer.
	Tier *Tier
}

// Clone returns a deep copy of the quote.
func (q *Quote) Clone() *Quote {
	if q == nil {
		return nil
	}
	out := *q
	out.UnitPrice = cloneOrZero(q.UnitPrice)
	out.Total = cloneOrZero(q.Total)
	out.PaidAmount = cloneOrZero(q.PaidAmount)
	out.Tier = q.Tier.Clone()
	return &out
}

// PricingState is the read-only slice of state the pricing engine consults.
type PricingState interface {
	LevelPrice(level uint32) (*big.Int, bool, error)
	ReferralCodeOwner(code string) ([20]byte, bool, error)
	ReferralAccount(addr [20]byte) (*Account, error)
	ReferralTiers() ([]Tier, error)
}

// Price quotes a mint of quantity boxes at the given level, applying the
// referrer's tier discount when a referral code is supplied. It reads state
// but never writes it, so it doubles as the client-side estimation query.
func Price(st PricingState, level uint32, quantity uint64, code string) (*Quote, error) {
	if st == nil {
		return nil, fmt.Errorf("referral: pricing state not configured")
	}
	if quantity == 0 {
		return nil, ErrQuantityZero
	}
	unitPrice, ok, err := st.LevelPrice(level)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("referral: unknown level %d", level)
	}
	total := new(big.Int).Mul(unitPrice, new(big.Int).SetUint64(quantity))
	quote := &Quote{
		Level:      level,
		Quantity:   quantity,
		UnitPrice:  new(big.Int).Set(unitPrice),
		Total:      total,
		PaidAmount: new(big.Int).Set(total),
	}
	code = NormalizeCode(code)
	if code == "" {
		return quote, nil
	}
	referrer, ok, err := st.ReferralCodeOwner(code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCodeNotFound
	}
	account, err := st.ReferralAccount(referrer)
	if err != nil {
		return nil, err
	}
	account.Normalize()
	tiers, err := st.ReferralTiers()
	if err != nil {
		return nil, err
	}
	tier, err := TierForVolume(tiers, account.CumulativeVolume)
	if err != nil {
		return nil, err
	}
	projectedVolume := new(big.Int).Add(account.CumulativeVolume, total)
	projected := projectTier(tiers, projectedVolume, tier.Index)

	quote.Code = code
	quote.Referrer = referrer
	quote.HasReferrer = true
	quote.Tier = tier.Clone()
	quote.TierNow = tier.Index
	quote.TierProjected = projected
	quote.DiscountRate = tier.InviteeDiscountRate
	quote.PaidAmount = applyDiscount(total, tier.InviteeDiscountRate)
	return quote, nil
}

// TierForVolume returns the single tier containing the volume. Zero or more
// than one matching tier fails with ErrTierMismatch; governance-side table
// validation makes that unreachable for well-formed tables.
func TierForVolume(tiers []Tier, volume *big.Int) (*Tier, error) {
	var match *Tier
	for i := range tiers {
		if tiers[i].Contains(volume) {
			if match != nil {
				return nil, ErrTierMismatch
			}
			match = &tiers[i]
		}
	}
	if match == nil {
		return nil, ErrTierMismatch
	}
	return match, nil
}

// projectTier resolves the tier the referrer would land in after the sale.
// The projection only annotates the quote, so a volume past the top band
// falls back to the highest tier below it rather than failing the mint.
func projectTier(tiers []Tier, volume *big.Int, current uint32) uint32 {
	if tier, err := TierForVolume(tiers, volume); err == nil {
		return tier.Index
	}
	best := current
	var bestMin *big.Int
	for i := range tiers {
		min := tiers[i].MinVolume
		if min == nil || volume == nil || min.Cmp(volume) > 0 {
			continue
		}
		if bestMin == nil || min.Cmp(bestMin) > 0 {
			bestMin = min
			best = tiers[i].Index
		}
	}
	return best
}

// applyDiscount computes total × (RateBase − rate) / RateBase, rounding down.
func applyDiscount(total *big.Int, rate uint64) *big.Int {
	if rate == 0 {
		return new(big.Int).Set(total)
	}
	if rate > RateBase {
		rate = RateBase
	}
	discounted := new(big.Int).Mul(total, new(big.Int).SetUint64(RateBase-rate))
	return discounted.Quo(discounted, big.NewInt(RateBase))
}

// rewardShare computes paid × rate / RateBase, rounding down.
func rewardShare(paid *big.Int, rate uint64) *big.Int {
	share := new(big.Int).Mul(paid, new(big.Int).SetUint64(rate))
	return share.Quo(share, big.NewInt(RateBase))
}
