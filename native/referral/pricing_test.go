package referral

import (
	"errors"
	"math/big"
	"testing"
)

func TestPriceWithoutCode(t *testing.T) {
	st := newMockState(testTiers())
	quote, err := Price(st, 1, 5, "")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if quote.HasReferrer {
		t.Fatalf("quote must not carry a referrer")
	}
	if quote.Total.Cmp(big.NewInt(500)) != 0 || quote.PaidAmount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("total %s paid %s, want both 500", quote.Total, quote.PaidAmount)
	}
}

func TestPriceErrors(t *testing.T) {
	st := newMockState(testTiers())
	if _, err := Price(st, 1, 0, ""); !errors.Is(err, ErrQuantityZero) {
		t.Fatalf("expected ErrQuantityZero, got %v", err)
	}
	if _, err := Price(st, 99, 1, ""); err == nil {
		t.Fatalf("expected unknown level error")
	}
	if _, err := Price(st, 1, 1, "ghost"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestPriceDiscountFloors(t *testing.T) {
	st := newMockState(testTiers())
	st.codes["alice"] = addr(1)
	st.prices[1] = big.NewInt(33)

	// 33 × 3 = 99, discounted by 100000/1000000: 99 × 900000 / 1000000 = 89.1,
	// floored to 89.
	quote, err := Price(st, 1, 3, "alice")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if quote.PaidAmount.Cmp(big.NewInt(89)) != 0 {
		t.Fatalf("paid = %s, want 89", quote.PaidAmount)
	}
}

func TestPriceDiscountMonotonic(t *testing.T) {
	// For a fixed total, a larger discount rate never produces a larger paid
	// amount.
	total := big.NewInt(977)
	prev := new(big.Int).Set(total)
	for rate := uint64(0); rate <= RateBase; rate += 7919 {
		paid := applyDiscount(total, rate)
		if paid.Cmp(prev) > 0 {
			t.Fatalf("rate %d: paid %s exceeds previous %s", rate, paid, prev)
		}
		if paid.Sign() < 0 {
			t.Fatalf("rate %d: paid %s went negative", rate, paid)
		}
		prev = paid
	}
	if got := applyDiscount(total, RateBase); got.Sign() != 0 {
		t.Fatalf("full discount paid %s, want 0", got)
	}
	if got := applyDiscount(total, RateBase+1); got.Sign() != 0 {
		t.Fatalf("over-base rate must clamp to full discount, got %s", got)
	}
}

func TestTierForVolume(t *testing.T) {
	tiers := testTiers()
	for _, tc := range []struct {
		volume int64
		tier   uint32
	}{
		{0, 0},
		{1000, 0},
		{1001, 1},
		{10000, 1},
	} {
		tier, err := TierForVolume(tiers, big.NewInt(tc.volume))
		if err != nil {
			t.Fatalf("volume %d: %v", tc.volume, err)
		}
		if tier.Index != tc.tier {
			t.Fatalf("volume %d: tier %d, want %d", tc.volume, tier.Index, tc.tier)
		}
	}
	if _, err := TierForVolume(tiers, big.NewInt(10001)); !errors.Is(err, ErrTierMismatch) {
		t.Fatalf("expected ErrTierMismatch past the top band, got %v", err)
	}
	overlapping := testTiers()
	overlapping[1].MinVolume = big.NewInt(500)
	if _, err := TierForVolume(overlapping, big.NewInt(700)); !errors.Is(err, ErrTierMismatch) {
		t.Fatalf("expected ErrTierMismatch for overlapping bands, got %v", err)
	}
}

func TestProjectTierFallsBackPastTopBand(t *testing.T) {
	tiers := testTiers()
	if got := projectTier(tiers, big.NewInt(50_000), 0); got != 1 {
		t.Fatalf("projected tier = %d, want highest band 1", got)
	}
	if got := projectTier(tiers, big.NewInt(800), 0); got != 0 {
		t.Fatalf("projected tier = %d, want 0", got)
	}
}
