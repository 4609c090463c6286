package events

import (
	"math/big"
	"strconv"

	"boxchain/core/types"
)

const (
	TypeBoxOpened         = "reward.box_opened"
	TypeRewardBoxClaimed  = "claim.reward_boxes_minted"
	TypeRewardTokenClaim  = "claim.reward_tokens_claimed"
	TypeAuthorityProposed = "gov.authority_proposed"
	TypeAuthorityRotated  = "gov.authority_rotated"
	TypeParamsUpdated     = "gov.params_updated"
)

// BoxOpened is emitted when a box settles into its payout.
type BoxOpened struct {
	BoxID      uint64
	Opener     [20]byte
	Payout     *big.Int
	PoolKind   string
	Bucket     int
	ClaimIndex uint64
	OpenTime   int64
}

func (BoxOpened) EventType() string { return TypeBoxOpened }

func (e BoxOpened) Event() *types.Event {
	attrs := map[string]string{
		"boxId":      uintToString(e.BoxID),
		"opener":     formatAddr(e.Opener),
		"payout":     formatAmount(e.Payout),
		"poolKind":   e.PoolKind,
		"claimIndex": uintToString(e.ClaimIndex),
		"openTime":   intToString(e.OpenTime),
	}
	if e.Bucket >= 0 {
		attrs["bucket"] = strconv.Itoa(e.Bucket)
	}
	return &types.Event{Type: TypeBoxOpened, Attributes: attrs}
}

// RewardBoxesClaimed is emitted when a referrer mints entitled reward boxes.
type RewardBoxesClaimed struct {
	Referrer [20]byte
	Level    uint32
	Quantity uint64
	BoxIDs   []uint64
}

func (RewardBoxesClaimed) EventType() string { return TypeRewardBoxClaimed }

func (e RewardBoxesClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardBoxClaimed,
		Attributes: map[string]string{
			"referrer": formatAddr(e.Referrer),
			"level":    strconv.FormatUint(uint64(e.Level), 10),
			"quantity": uintToString(e.Quantity),
		},
	}
}

// RewardTokensClaimed is emitted when a referrer redeems accrued base reward.
type RewardTokensClaimed struct {
	Referrer [20]byte
	Amount   *big.Int
}

func (RewardTokensClaimed) EventType() string { return TypeRewardTokenClaim }

func (e RewardTokensClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardTokenClaim,
		Attributes: map[string]string{
			"referrer": formatAddr(e.Referrer),
			"amount":   formatAmount(e.Amount),
		},
	}
}

// AuthorityProposed is emitted when governance proposes a successor identity.
type AuthorityProposed struct {
	Current [20]byte
	Next    [20]byte
}

func (AuthorityProposed) EventType() string { return TypeAuthorityProposed }

func (e AuthorityProposed) Event() *types.Event {
	return &types.Event{
		Type: TypeAuthorityProposed,
		Attributes: map[string]string{
			"current": formatAddr(e.Current),
			"next":    formatAddr(e.Next),
		},
	}
}

// AuthorityRotated is emitted when the proposed identity accepts.
type AuthorityRotated struct {
	Previous [20]byte
	Current  [20]byte
}

func (AuthorityRotated) EventType() string { return TypeAuthorityRotated }

func (e AuthorityRotated) Event() *types.Event {
	return &types.Event{
		Type: TypeAuthorityRotated,
		Attributes: map[string]string{
			"previous": formatAddr(e.Previous),
			"current":  formatAddr(e.Current),
		},
	}
}

// ParamsUpdated is emitted after a governance table update lands.
type ParamsUpdated struct {
	Kind string
}

func (ParamsUpdated) EventType() string { return TypeParamsUpdated }

func (e ParamsUpdated) Event() *types.Event {
	return &types.Event{
		Type:       TypeParamsUpdated,
		Attributes: map[string]string{"kind": e.Kind},
	}
}
