package state

import (
	"fmt"
	"math/big"

	"boxchain/native/referral"
)

type storedReferralAccount struct {
	Code             string
	InviteeCount     uint64
	CumulativeVolume *big.Int
	BaseReward       *big.Int
	CurrentTier      uint32
	InviteesByTier   []levelPair
	Entitlement      []levelPair
	Inviter          [20]byte
	HasInviter       bool
	UsedCode         string
	DiscountRate     uint64
}

type storedTier struct {
	Index               uint32
	MinVolume           *big.Int
	MaxVolume           *big.Int
	InviterRewardRate   uint64
	InviteeDiscountRate uint64
	RewardBoxTable      []levelPair
	RecommendedQuantity *big.Int
}

type storedReferralRecord struct {
	Invitee      [20]byte
	BoxIDs       []uint64
	MintTime     uint64
	TierAtMint   uint32
	SequenceNo   uint64
	Price        *big.Int
	PaidAmount   *big.Int
	RewardAmount *big.Int
}

type storedGlobalTotals struct {
	TotalBaseReward *big.Int
	RewardBoxTotals []levelPair
}

// ReferralCodeOwner resolves a referral code to its owner.
func (m *Manager) ReferralCodeOwner(code string) ([20]byte, bool, error) {
	var owner [20]byte
	ok, err := m.KVGet(referralCodeKey(code), &owner)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return owner, true, nil
}

// SetReferralCodeOwner binds a code to its owner.
func (m *Manager) SetReferralCodeOwner(code string, owner [20]byte) error {
	return m.KVPut(referralCodeKey(code), owner)
}

// ReferralAccount loads an account, returning a zero-valued account when the
// address has never been written.
func (m *Manager) ReferralAccount(addr [20]byte) (*referral.Account, error) {
	var stored storedReferralAccount
	ok, err := m.KVGet(referralAccountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&referral.Account{}).Normalize(), nil
	}
	account := &referral.Account{
		Code:             stored.Code,
		InviteeCount:     stored.InviteeCount,
		CumulativeVolume: stored.CumulativeVolume,
		BaseReward:       stored.BaseReward,
		CurrentTier:      stored.CurrentTier,
		InviteesByTier:   decodeLevelMap(stored.InviteesByTier),
		Entitlement:      decodeLevelMap(stored.Entitlement),
		Inviter:          stored.Inviter,
		HasInviter:       stored.HasInviter,
		UsedCode:         stored.UsedCode,
		DiscountRate:     stored.DiscountRate,
	}
	return account.Normalize(), nil
}

// PutReferralAccount persists an account.
func (m *Manager) PutReferralAccount(addr [20]byte, account *referral.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil referral account")
	}
	account.Normalize()
	stored := storedReferralAccount{
		Code:             account.Code,
		InviteeCount:     account.InviteeCount,
		CumulativeVolume: account.CumulativeVolume,
		BaseReward:       account.BaseReward,
		CurrentTier:      account.CurrentTier,
		InviteesByTier:   encodeLevelMap(account.InviteesByTier),
		Entitlement:      encodeLevelMap(account.Entitlement),
		Inviter:          account.Inviter,
		HasInviter:       account.HasInviter,
		UsedCode:         account.UsedCode,
		DiscountRate:     account.DiscountRate,
	}
	return m.KVPut(referralAccountKey(addr), stored)
}

// ReferralTiers loads the governance-configured tier table.
func (m *Manager) ReferralTiers() ([]referral.Tier, error) {
	var stored []storedTier
	ok, err := m.KVGet(referralTiersKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	tiers := make([]referral.Tier, len(stored))
	for i, s := range stored {
		tiers[i] = referral.Tier{
			Index:               s.Index,
			MinVolume:           s.MinVolume,
			MaxVolume:           s.MaxVolume,
			InviterRewardRate:   s.InviterRewardRate,
			InviteeDiscountRate: s.InviteeDiscountRate,
			RewardBoxTable:      decodeLevelMap(s.RewardBoxTable),
			RecommendedQuantity: s.RecommendedQuantity,
		}
	}
	return tiers, nil
}

// PutReferralTiers stores the tier table. Validation happens in governance
// before the write reaches here.
func (m *Manager) PutReferralTiers(tiers []referral.Tier) error {
	stored := make([]storedTier, len(tiers))
	for i := range tiers {
		t := tiers[i].Clone()
		stored[i] = storedTier{
			Index:               t.Index,
			MinVolume:           t.MinVolume,
			MaxVolume:           t.MaxVolume,
			InviterRewardRate:   t.InviterRewardRate,
			InviteeDiscountRate: t.InviteeDiscountRate,
			RewardBoxTable:      encodeLevelMap(t.RewardBoxTable),
			RecommendedQuantity: t.RecommendedQuantity,
		}
	}
	return m.KVPut(referralTiersKey, stored)
}

// ReferralGlobalTotals loads the aggregate row, zero-valued when unset.
func (m *Manager) ReferralGlobalTotals() (*referral.GlobalTotals, error) {
	var stored storedGlobalTotals
	ok, err := m.KVGet(referralGlobalKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&referral.GlobalTotals{}).Normalize(), nil
	}
	totals := &referral.GlobalTotals{
		TotalBaseReward: stored.TotalBaseReward,
		RewardBoxTotals: decodeLevelMap(stored.RewardBoxTotals),
	}
	return totals.Normalize(), nil
}

// PutReferralGlobalTotals persists the aggregate row.
func (m *Manager) PutReferralGlobalTotals(totals *referral.GlobalTotals) error {
	if totals == nil {
		return fmt.Errorf("state: nil referral totals")
	}
	totals.Normalize()
	stored := storedGlobalTotals{
		TotalBaseReward: totals.TotalBaseReward,
		RewardBoxTotals: encodeLevelMap(totals.RewardBoxTotals),
	}
	return m.KVPut(referralGlobalKey, stored)
}

// ReferralPairSeen reports whether the invitee has transacted under this
// referrer before.
func (m *Manager) ReferralPairSeen(referrer, invitee [20]byte) (bool, error) {
	return m.KVGet(referralPairKey(referrer, invitee), nil)
}

// MarkReferralPair records the (referrer, invitee) pair in the existence
// index.
func (m *Manager) MarkReferralPair(referrer, invitee [20]byte) error {
	return m.KVPut(referralPairKey(referrer, invitee), uint8(1))
}

// AppendReferralRecord writes an immutable history entry keyed by the
// record's sequence number.
func (m *Manager) AppendReferralRecord(referrer [20]byte, record *referral.Record) error {
	if record == nil {
		return fmt.Errorf("state: nil referral record")
	}
	r := record.Clone()
	stored := storedReferralRecord{
		Invitee:      r.Invitee,
		BoxIDs:       r.BoxIDs,
		MintTime:     int64ToUint64(r.MintTime),
		TierAtMint:   r.TierAtMint,
		SequenceNo:   r.SequenceNo,
		Price:        r.Price,
		PaidAmount:   r.PaidAmount,
		RewardAmount: r.RewardAmount,
	}
	return m.putRaw(referralRecordKey(referrer, r.SequenceNo), stored)
}

// Referral record listing page bounds.
const (
	DefaultRecordPageSize = 10
	MaxRecordPageSize     = 30
)

// ListReferralRecords returns up to limit records after the given sequence
// cursor (0 starts from the beginning) along with the cursor for the next
// page, zero when the listing is exhausted.
func (m *Manager) ListReferralRecords(referrer [20]byte, afterSeq uint64, limit int) ([]*referral.Record, uint64, error) {
	if limit <= 0 {
		limit = DefaultRecordPageSize
	}
	if limit > MaxRecordPageSize {
		limit = MaxRecordPageSize
	}
	var startAfter []byte
	if afterSeq > 0 {
		startAfter = referralRecordKey(referrer, afterSeq)
	}
	records := make([]*referral.Record, 0, limit)
	var decodeErr error
	err := m.kvIterate(referralRecordScanPrefix(referrer), startAfter, func(key, value []byte) bool {
		var stored storedReferralRecord
		if err := decodeValue(value, &stored); err != nil {
			decodeErr = err
			return false
		}
		records = append(records, &referral.Record{
			Invitee:      stored.Invitee,
			BoxIDs:       stored.BoxIDs,
			MintTime:     int64(stored.MintTime),
			TierAtMint:   stored.TierAtMint,
			SequenceNo:   stored.SequenceNo,
			Price:        stored.Price,
			PaidAmount:   stored.PaidAmount,
			RewardAmount: stored.RewardAmount,
		})
		return len(records) < limit
	})
	if err != nil {
		return nil, 0, err
	}
	if decodeErr != nil {
		return nil, 0, decodeErr
	}
	var next uint64
	if len(records) == limit {
		next = records[len(records)-1].SequenceNo
	}
	return records, next, nil
}

// Entitlement implements the claim ledger's read-only boundary: it always
// reflects the latest committed (or overlaid) referral state.
func (m *Manager) Entitlement(addr [20]byte) (map[uint32]uint64, error) {
	account, err := m.ReferralAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.Entitlement, nil
}

// BaseRewardAccrued implements the claim ledger's read-only boundary.
func (m *Manager) BaseRewardAccrued(addr [20]byte) (*big.Int, error) {
	account, err := m.ReferralAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.BaseReward, nil
}
