package referral

import (
	"fmt"
	"math/big"
	"time"

	"boxchain/core/events"
	"boxchain/native/common"
)

// State describes the persistence the referral ledger needs from the
// surrounding state implementation.
type State interface {
	PricingState
	SetReferralCodeOwner(code string, owner [20]byte) error
	PutReferralAccount(addr [20]byte, account *Account) error
	ReferralGlobalTotals() (*GlobalTotals, error)
	PutReferralGlobalTotals(totals *GlobalTotals) error
	ReferralPairSeen(referrer, invitee [20]byte) (bool, error)
	MarkReferralPair(referrer, invitee [20]byte) error
	AppendReferralRecord(referrer [20]byte, record *Record) error
}

// Engine applies referral bookkeeping for minted boxes. It owns every write
// to ReferrerAccount, ReferralRecord and GlobalTotals state; the box minting
// ledger and claim ledger only read them.
type Engine struct {
	state   State
	emitter events.Emitter
}

// NewEngine constructs a referral engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// RegisterCode binds a referral code to its owner. Codes are first-writer
// wins: re-registering your own code is a no-op, claiming someone else's
// fails.
func (e *Engine) RegisterCode(owner [20]byte, code string) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("referral: state not configured")
	}
	code = NormalizeCode(code)
	if code == "" {
		return ErrEmptyCode
	}
	existing, ok, err := e.state.ReferralCodeOwner(code)
	if err != nil {
		return err
	}
	if ok {
		if existing == owner {
			return nil
		}
		return ErrCodeTaken
	}
	if err := e.state.SetReferralCodeOwner(code, owner); err != nil {
		return err
	}
	account, err := e.state.ReferralAccount(owner)
	if err != nil {
		return err
	}
	account.Normalize()
	account.Code = code
	if err := e.state.PutReferralAccount(owner, account); err != nil {
		return err
	}
	e.emit(events.ReferralCodeRegistered{Owner: owner, Code: code})
	return nil
}

// Quote prices a prospective mint against current state without writing
// anything. It is the entry point exposed on the query surface.
func (e *Engine) Quote(level uint32, quantity uint64, code string) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("referral: state not configured")
	}
	return Price(e.state, level, quantity, code)
}

// Apply records the referral consequences of a completed mint. The quote must
// be the unmodified output of Quote for the same request; boxIDs are the box
// identifiers the minting ledger allocated. A quote without a referrer is a
// no-op. All writes land in the same overlay as the mint, so they commit or
// roll back together.
func (e *Engine) Apply(q *Quote, invitee [20]byte, boxIDs []uint64, now time.Time) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("referral: state not configured")
	}
	if q == nil {
		return ErrNilQuote
	}
	if !q.HasReferrer {
		return nil
	}
	tier := q.Tier
	if tier == nil {
		return fmt.Errorf("%w: quote missing tier", ErrNilQuote)
	}
	referrer := q.Referrer
	account, err := e.state.ReferralAccount(referrer)
	if err != nil {
		return err
	}
	account.Normalize()
	totals, err := e.state.ReferralGlobalTotals()
	if err != nil {
		return err
	}
	totals.Normalize()

	reward := rewardShare(q.PaidAmount, tier.InviterRewardRate)
	account.BaseReward = new(big.Int).Add(account.BaseReward, reward)
	totals.TotalBaseReward = new(big.Int).Add(totals.TotalBaseReward, reward)

	// Volume is credited undiscounted: the discount is the invitee's, not a
	// haircut on the referrer's attribution.
	account.CumulativeVolume = new(big.Int).Add(account.CumulativeVolume, q.Total)
	account.CurrentTier = q.TierProjected

	if err := e.replaceEntitlement(account, totals, tier); err != nil {
		return err
	}

	seen, err := e.state.ReferralPairSeen(referrer, invitee)
	if err != nil {
		return err
	}
	if !seen {
		if err := e.state.MarkReferralPair(referrer, invitee); err != nil {
			return err
		}
		count, err := common.AddUint64(account.InviteeCount, 1)
		if err != nil {
			return fmt.Errorf("referral: invitee count: %w", err)
		}
		account.InviteeCount = count
		perTier, err := common.AddUint64(account.InviteesByTier[tier.Index], 1)
		if err != nil {
			return fmt.Errorf("referral: per-tier invitee count: %w", err)
		}
		account.InviteesByTier[tier.Index] = perTier
		record := &Record{
			Invitee:      invitee,
			BoxIDs:       append([]uint64(nil), boxIDs...),
			MintTime:     now.Unix(),
			TierAtMint:   tier.Index,
			SequenceNo:   account.InviteeCount,
			Price:        cloneOrZero(q.UnitPrice),
			PaidAmount:   cloneOrZero(q.PaidAmount),
			RewardAmount: new(big.Int).Set(reward),
		}
		if err := e.state.AppendReferralRecord(referrer, record); err != nil {
			return err
		}
	}

	// Self-referral keeps both roles on one account object so neither write
	// clobbers the other.
	if invitee == referrer {
		e.stampInvitee(account, q)
	} else {
		inviteeAccount, err := e.state.ReferralAccount(invitee)
		if err != nil {
			return err
		}
		inviteeAccount.Normalize()
		e.stampInvitee(inviteeAccount, q)
		if err := e.state.PutReferralAccount(invitee, inviteeAccount); err != nil {
			return err
		}
	}

	if err := e.state.PutReferralAccount(referrer, account); err != nil {
		return err
	}
	if err := e.state.PutReferralGlobalTotals(totals); err != nil {
		return err
	}
	e.emit(events.ReferralApplied{
		Referrer:   referrer,
		Invitee:    invitee,
		Tier:       tier.Index,
		Volume:     cloneOrZero(q.Total),
		PaidAmount: cloneOrZero(q.PaidAmount),
		Reward:     reward,
		NewVolume:  new(big.Int).Set(account.CumulativeVolume),
	})
	return nil
}

// replaceEntitlement recomputes the referrer's reward-box entitlement as a
// whole-table replacement. Retracting the previous entitlement from the
// global totals clamps at zero; this is the single sanctioned clamp in the
// ledger (a prior tier-table update can shrink per-tier grants below what was
// already published globally).
func (e *Engine) replaceEntitlement(account *Account, totals *GlobalTotals, tier *Tier) error {
	if tier.RecommendedQuantity == nil || tier.RecommendedQuantity.Sign() <= 0 {
		return fmt.Errorf("%w: recommended quantity must be positive", ErrInvalidTier)
	}
	multiplier := new(big.Int).Quo(account.CumulativeVolume, tier.RecommendedQuantity)
	if multiplier.Sign() <= 0 {
		return nil
	}
	if !multiplier.IsUint64() {
		return fmt.Errorf("referral: entitlement multiplier: %w", ErrAmountOverflow)
	}
	k := multiplier.Uint64()

	for level, qty := range account.Entitlement {
		totals.RewardBoxTotals[level] = common.SubUint64Clamped(totals.RewardBoxTotals[level], qty)
	}
	account.Entitlement = make(map[uint32]uint64, len(tier.RewardBoxTable))
	for level, perMultiple := range tier.RewardBoxTable {
		qty, err := common.MulUint64(perMultiple, k)
		if err != nil {
			return fmt.Errorf("referral: entitlement for level %d: %w", level, err)
		}
		account.Entitlement[level] = qty
		next, err := common.AddUint64(totals.RewardBoxTotals[level], qty)
		if err != nil {
			return fmt.Errorf("referral: global entitlement for level %d: %w", level, err)
		}
		totals.RewardBoxTotals[level] = next
	}
	return nil
}

func (e *Engine) stampInvitee(account *Account, q *Quote) {
	account.Inviter = q.Referrer
	account.HasInviter = true
	account.UsedCode = q.Code
	account.DiscountRate = q.DiscountRate
}
