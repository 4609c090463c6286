package events

import (
	"math/big"
	"strconv"
	"strings"

	"boxchain/core/types"
)

const (
	TypeReferralCodeRegistered = "referral.code_registered"
	TypeReferralApplied        = "referral.applied"
)

// ReferralCodeRegistered is emitted when a referral code is bound to an
// owner.
type ReferralCodeRegistered struct {
	Owner [20]byte
	Code  string
}

func (ReferralCodeRegistered) EventType() string { return TypeReferralCodeRegistered }

func (e ReferralCodeRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralCodeRegistered,
		Attributes: map[string]string{
			"owner": formatAddr(e.Owner),
			"code":  e.Code,
		},
	}
}

// ReferralApplied is emitted after the referral ledger records a referred
// mint.
type ReferralApplied struct {
	Referrer   [20]byte
	Invitee    [20]byte
	Tier       uint32
	Volume     *big.Int
	PaidAmount *big.Int
	Reward     *big.Int
	NewVolume  *big.Int
}

func (ReferralApplied) EventType() string { return TypeReferralApplied }

func (e ReferralApplied) Event() *types.Event {
	return &types.Event{
		Type: TypeReferralApplied,
		Attributes: map[string]string{
			"referrer":   formatAddr(e.Referrer),
			"invitee":    formatAddr(e.Invitee),
			"tier":       strconv.FormatUint(uint64(e.Tier), 10),
			"volume":     formatAmount(e.Volume),
			"paidAmount": formatAmount(e.PaidAmount),
			"reward":     formatAmount(e.Reward),
			"newVolume":  formatAmount(e.NewVolume),
		},
	}
}

// BoxesMinted is emitted once per successful mint with the allocated box ids.
type BoxesMinted struct {
	Recipient [20]byte
	Level     uint32
	BoxIDs    []uint64
	Paid      *big.Int
	RewardBox bool
}

func (BoxesMinted) EventType() string { return TypeBoxesMinted }

const TypeBoxesMinted = "mint.boxes_minted"

func (e BoxesMinted) Event() *types.Event {
	ids := make([]string, len(e.BoxIDs))
	for i, id := range e.BoxIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	attrs := map[string]string{
		"recipient": formatAddr(e.Recipient),
		"level":     strconv.FormatUint(uint64(e.Level), 10),
		"boxIds":    strings.Join(ids, ","),
		"paid":      formatAmount(e.Paid),
	}
	if e.RewardBox {
		attrs["rewardBox"] = "true"
	}
	return &types.Event{Type: TypeBoxesMinted, Attributes: attrs}
}
