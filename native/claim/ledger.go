package claim

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"boxchain/core/events"
	"boxchain/native/common"
)

var (
	ErrNotStarted              = errors.New("claim: window not started")
	ErrWindowClosed            = errors.New("claim: window closed")
	ErrInsufficientEntitlement = errors.New("claim: insufficient entitlement")
	ErrInvalidAmount           = errors.New("claim: amount must be positive")
)

// Window bounds when claims are accepted, unix seconds inclusive. Zero is a
// sentinel on either side: a zero start means no lower bound and a zero end
// means no upper bound, so a window opening exactly at the unix epoch cannot
// be expressed (use StartTime 1).
type Window struct {
	StartTime int64
	EndTime   int64
}

// Contains reports whether the instant falls inside the window.
func (w *Window) Contains(now time.Time) error {
	if w == nil {
		return nil
	}
	ts := now.Unix()
	if w.StartTime > 0 && ts < w.StartTime {
		return ErrNotStarted
	}
	if w.EndTime > 0 && ts > w.EndTime {
		return ErrWindowClosed
	}
	return nil
}

// State holds what each referrer has already consumed. Entitlements
// themselves live across the boundary in the referral ledger; this side only
// tracks consumption.
type State struct {
	MintedRewardBoxes map[uint32]uint64
	ClaimedReward     *big.Int
}

// Clone returns a deep copy of the claim state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{ClaimedReward: big.NewInt(0)}
	if s.ClaimedReward != nil {
		out.ClaimedReward = new(big.Int).Set(s.ClaimedReward)
	}
	if s.MintedRewardBoxes != nil {
		out.MintedRewardBoxes = make(map[uint32]uint64, len(s.MintedRewardBoxes))
		for level, qty := range s.MintedRewardBoxes {
			out.MintedRewardBoxes[level] = qty
		}
	}
	return out
}

// Normalize fills nil fields with zero values.
func (s *State) Normalize() *State {
	if s == nil {
		return nil
	}
	if s.ClaimedReward == nil {
		s.ClaimedReward = big.NewInt(0)
	}
	if s.MintedRewardBoxes == nil {
		s.MintedRewardBoxes = make(map[uint32]uint64)
	}
	return s
}

// ReferralView is the read-only boundary into the referral ledger. The
// implementation reads the latest committed state on every call; claims never
// see a stale entitlement.
type ReferralView interface {
	Entitlement(addr [20]byte) (map[uint32]uint64, error)
	BaseRewardAccrued(addr [20]byte) (*big.Int, error)
}

// Store persists the claim-side counters.
type Store interface {
	ClaimWindow() (*Window, error)
	ClaimState(addr [20]byte) (*State, error)
	PutClaimState(addr [20]byte, state *State) error
	GlobalMintedRewardBoxes() (map[uint32]uint64, error)
	PutGlobalMintedRewardBoxes(minted map[uint32]uint64) error
}

// BoxMinter mints the claimed reward boxes; backed by the box minting ledger.
type BoxMinter interface {
	MintRewardBoxes(level uint32, quantity uint64, recipient [20]byte, height uint64) ([]uint64, error)
}

// TokenTransfer is the external fungible-token collaborator used to pay out
// redeemed base reward.
type TokenTransfer interface {
	Transfer(to [20]byte, amount *big.Int) error
}

// Ledger gates entitlement consumption behind the claim window and the
// already-claimed counters.
type Ledger struct {
	store   Store
	view    ReferralView
	minter  BoxMinter
	token   TokenTransfer
	emitter events.Emitter
}

// NewLedger constructs a claim ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetStore configures the claim-side persistence.
func (l *Ledger) SetStore(store Store) { l.store = store }

// SetReferralView wires the read-only boundary into the referral ledger.
func (l *Ledger) SetReferralView(view ReferralView) { l.view = view }

// SetBoxMinter wires the box minting collaborator.
func (l *Ledger) SetBoxMinter(minter BoxMinter) { l.minter = minter }

// SetTokenTransfer wires the fungible-token collaborator.
func (l *Ledger) SetTokenTransfer(token TokenTransfer) { l.token = token }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// ClaimableBoxes returns how many reward boxes the referrer may still mint at
// the given level.
func (l *Ledger) ClaimableBoxes(referrer [20]byte, level uint32) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	entitlement, err := l.view.Entitlement(referrer)
	if err != nil {
		return 0, err
	}
	state, err := l.store.ClaimState(referrer)
	if err != nil {
		return 0, err
	}
	state.Normalize()
	return common.SubUint64Clamped(entitlement[level], state.MintedRewardBoxes[level]), nil
}

// ClaimBoxes mints quantity reward boxes at the given level against the
// referrer's remaining entitlement.
func (l *Ledger) ClaimBoxes(referrer [20]byte, level uint32, quantity uint64, now time.Time, height uint64) ([]uint64, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if l.minter == nil {
		return nil, fmt.Errorf("claim: box minter not configured")
	}
	if quantity == 0 {
		return nil, ErrInvalidAmount
	}
	window, err := l.store.ClaimWindow()
	if err != nil {
		return nil, err
	}
	if err := window.Contains(now); err != nil {
		return nil, err
	}
	entitlement, err := l.view.Entitlement(referrer)
	if err != nil {
		return nil, err
	}
	state, err := l.store.ClaimState(referrer)
	if err != nil {
		return nil, err
	}
	state.Normalize()
	claimable := common.SubUint64Clamped(entitlement[level], state.MintedRewardBoxes[level])
	if quantity > claimable {
		return nil, fmt.Errorf("%w: level %d has %d claimable, requested %d", ErrInsufficientEntitlement, level, claimable, quantity)
	}
	ids, err := l.minter.MintRewardBoxes(level, quantity, referrer, height)
	if err != nil {
		return nil, err
	}
	minted, err := common.AddUint64(state.MintedRewardBoxes[level], quantity)
	if err != nil {
		return nil, fmt.Errorf("claim: minted counter: %w", err)
	}
	state.MintedRewardBoxes[level] = minted
	if err := l.store.PutClaimState(referrer, state); err != nil {
		return nil, err
	}
	global, err := l.store.GlobalMintedRewardBoxes()
	if err != nil {
		return nil, err
	}
	if global == nil {
		global = make(map[uint32]uint64)
	}
	globalMinted, err := common.AddUint64(global[level], quantity)
	if err != nil {
		return nil, fmt.Errorf("claim: global minted counter: %w", err)
	}
	global[level] = globalMinted
	if err := l.store.PutGlobalMintedRewardBoxes(global); err != nil {
		return nil, err
	}
	l.emit(events.RewardBoxesClaimed{Referrer: referrer, Level: level, Quantity: quantity, BoxIDs: ids})
	return ids, nil
}

// ClaimableTokens returns the base reward the referrer has accrued but not
// yet redeemed.
func (l *Ledger) ClaimableTokens(referrer [20]byte) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	accrued, err := l.view.BaseRewardAccrued(referrer)
	if err != nil {
		return nil, err
	}
	state, err := l.store.ClaimState(referrer)
	if err != nil {
		return nil, err
	}
	state.Normalize()
	claimable := new(big.Int).Sub(accrued, state.ClaimedReward)
	if claimable.Sign() < 0 {
		claimable.SetInt64(0)
	}
	return claimable, nil
}

// ClaimTokens redeems amount of the referrer's accrued base reward through
// the token collaborator.
func (l *Ledger) ClaimTokens(referrer [20]byte, amount *big.Int, now time.Time) error {
	if err := l.ready(); err != nil {
		return err
	}
	if l.token == nil {
		return fmt.Errorf("claim: token transfer not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	window, err := l.store.ClaimWindow()
	if err != nil {
		return err
	}
	if err := window.Contains(now); err != nil {
		return err
	}
	claimable, err := l.ClaimableTokens(referrer)
	if err != nil {
		return err
	}
	if amount.Cmp(claimable) > 0 {
		return fmt.Errorf("%w: %s claimable, requested %s", ErrInsufficientEntitlement, claimable, amount)
	}
	state, err := l.store.ClaimState(referrer)
	if err != nil {
		return err
	}
	state.Normalize()
	state.ClaimedReward = new(big.Int).Add(state.ClaimedReward, amount)
	if err := l.store.PutClaimState(referrer, state); err != nil {
		return err
	}
	if err := l.token.Transfer(referrer, amount); err != nil {
		return err
	}
	l.emit(events.RewardTokensClaimed{Referrer: referrer, Amount: new(big.Int).Set(amount)})
	return nil
}

func (l *Ledger) ready() error {
	if l == nil || l.store == nil {
		return fmt.Errorf("claim: store not configured")
	}
	if l.view == nil {
		return fmt.Errorf("claim: referral view not configured")
	}
	return nil
}

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(evt)
}
