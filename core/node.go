package core

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"boxchain/core/events"
	"boxchain/core/state"
	"boxchain/native/claim"
	"boxchain/native/governance"
	"boxchain/native/mint"
	"boxchain/native/referral"
	"boxchain/native/reward"
	"boxchain/observability"
	"boxchain/storage"
)

// TokenService is the external fungible-token collaborator. Transfers carry
// the exact amounts the engines computed and run inside the invocation's
// atomic unit of work.
type TokenService interface {
	Transfer(to [20]byte, amount *big.Int) error
}

// NFTService is the external ownership collaborator notified of allocated box
// identifiers.
type NFTService interface {
	MintBox(to [20]byte, boxID uint64) error
	OwnerOf(boxID uint64) ([20]byte, bool, error)
}

type noopTokenService struct{}

func (noopTokenService) Transfer([20]byte, *big.Int) error { return nil }

type noopNFTService struct{}

func (noopNFTService) MintBox([20]byte, uint64) error         { return nil }
func (noopNFTService) OwnerOf(uint64) ([20]byte, bool, error) { return [20]byte{}, false, nil }

// CallContext carries the committed block data an invocation runs under. The
// host supplies it; engines never read clocks of their own.
type CallContext struct {
	Caller      [20]byte
	BlockTime   time.Time
	BlockHeight uint64
	TxIndex     uint32
}

// Node hosts the minting program's engines over one state root. Invocations
// run one at a time; every mutating call either commits all of its writes or
// none of them.
type Node struct {
	mu sync.Mutex

	state     *state.Manager
	collector *events.Collector

	referrals  *referral.Engine
	minting    *mint.Ledger
	rewards    *reward.Engine
	claims     *claim.Ledger
	governance *governance.Engine

	tokens TokenService
	nfts   NFTService
}

// NewNode wires the engines over the provided database.
func NewNode(db storage.Database) *Node {
	manager := state.NewManager(db)
	collector := &events.Collector{}

	n := &Node{
		state:      manager,
		collector:  collector,
		referrals:  referral.NewEngine(),
		minting:    mint.NewLedger(),
		rewards:    reward.NewEngine(),
		claims:     claim.NewLedger(),
		governance: governance.NewEngine(),
		tokens:     noopTokenService{},
		nfts:       noopNFTService{},
	}
	n.referrals.SetState(manager)
	n.referrals.SetEmitter(collector)
	n.minting.SetState(manager)
	n.minting.SetEmitter(collector)
	n.rewards.SetState(manager)
	n.rewards.SetEmitter(collector)
	n.claims.SetStore(manager)
	n.claims.SetReferralView(manager)
	n.claims.SetBoxMinter(n.minting)
	n.claims.SetTokenTransfer(tokenAdapter{n})
	n.claims.SetEmitter(collector)
	n.governance.SetState(manager)
	n.governance.SetEmitter(collector)
	return n
}

// tokenAdapter defers to whatever token service is wired at call time.
type tokenAdapter struct{ n *Node }

func (a tokenAdapter) Transfer(to [20]byte, amount *big.Int) error {
	return a.n.tokens.Transfer(to, amount)
}

// SetTokenService wires the external token collaborator. Passing nil resets
// it to a no-op.
func (n *Node) SetTokenService(tokens TokenService) {
	if tokens == nil {
		n.tokens = noopTokenService{}
		return
	}
	n.tokens = tokens
}

// SetNFTService wires the external ownership collaborator. Passing nil resets
// it to a no-op.
func (n *Node) SetNFTService(nfts NFTService) {
	if nfts == nil {
		n.nfts = noopNFTService{}
		return
	}
	n.nfts = nfts
}

// invoke runs fn with all-or-nothing semantics: on error every buffered
// write and event is dropped.
func (n *Node) invoke(fn func() error) ([]events.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := fn(); err != nil {
		n.state.Discard()
		n.collector.Drain()
		return nil, err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Discard()
		n.collector.Drain()
		return nil, err
	}
	return n.collector.Drain(), nil
}

// RegisterCode binds a referral code to the caller.
func (n *Node) RegisterCode(ctx CallContext, code string) ([]events.Event, error) {
	return n.invoke(func() error {
		return n.referrals.RegisterCode(ctx.Caller, code)
	})
}

// MintResult reports a completed mint.
type MintResult struct {
	Quote  *referral.Quote
	BoxIDs []uint64
}

// MintBoxes quotes, mints and applies referral bookkeeping as one atomic
// invocation. payment must equal the quoted paid amount exactly.
func (n *Node) MintBoxes(ctx CallContext, level uint32, quantity uint64, code string, payment *big.Int) (result *MintResult, evts []events.Event, err error) {
	defer func() {
		observability.Metrics().Mints.WithLabelValues(observability.Outcome(err)).Inc()
	}()
	evts, err = n.invoke(func() error {
		quote, err := n.referrals.Quote(level, quantity, code)
		if err != nil {
			return err
		}
		ids, err := n.minting.Mint(level, quantity, ctx.Caller, payment, quote.PaidAmount, ctx.BlockHeight)
		if err != nil {
			return err
		}
		if err := n.referrals.Apply(quote, ctx.Caller, ids, ctx.BlockTime); err != nil {
			return err
		}
		for _, id := range ids {
			if err := n.nfts.MintBox(ctx.Caller, id); err != nil {
				return err
			}
		}
		result = &MintResult{Quote: quote, BoxIDs: ids}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, evts, nil
}

// OpenBox settles a box into its payout and instructs the token transfer.
func (n *Node) OpenBox(ctx CallContext, boxID uint64) (record *reward.OpenRecord, evts []events.Event, err error) {
	defer func() {
		observability.Metrics().Opens.WithLabelValues(observability.Outcome(err)).Inc()
	}()
	evts, err = n.invoke(func() error {
		opened, err := n.rewards.Open(boxID, ctx.Caller, ctx.BlockTime, ctx.BlockHeight, ctx.TxIndex)
		if err != nil {
			return err
		}
		if opened.Payout.Sign() > 0 {
			if err := n.tokens.Transfer(ctx.Caller, opened.Payout); err != nil {
				return err
			}
		}
		record = opened
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return record, evts, nil
}

// ClaimRewardBoxes mints entitled reward boxes for the caller.
func (n *Node) ClaimRewardBoxes(ctx CallContext, level uint32, quantity uint64) (ids []uint64, evts []events.Event, err error) {
	defer func() {
		observability.Metrics().Claims.WithLabelValues("boxes", observability.Outcome(err)).Inc()
	}()
	evts, err = n.invoke(func() error {
		claimed, err := n.claims.ClaimBoxes(ctx.Caller, level, quantity, ctx.BlockTime, ctx.BlockHeight)
		if err != nil {
			return err
		}
		for _, id := range claimed {
			if err := n.nfts.MintBox(ctx.Caller, id); err != nil {
				return err
			}
		}
		ids = claimed
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ids, evts, nil
}

// ClaimRewardTokens redeems accrued base reward for the caller.
func (n *Node) ClaimRewardTokens(ctx CallContext, amount *big.Int) (evts []events.Event, err error) {
	defer func() {
		observability.Metrics().Claims.WithLabelValues("tokens", observability.Outcome(err)).Inc()
	}()
	return n.invoke(func() error {
		return n.claims.ClaimTokens(ctx.Caller, amount, ctx.BlockTime)
	})
}

// --- Governance surface ---

// ProposeAuthority nominates the successor governance identity.
func (n *Node) ProposeAuthority(ctx CallContext, next [20]byte) ([]events.Event, error) {
	return n.invoke(func() error {
		return n.governance.ProposeAuthority(ctx.Caller, next)
	})
}

// AcceptAuthority completes a pending rotation.
func (n *Node) AcceptAuthority(ctx CallContext) ([]events.Event, error) {
	return n.invoke(func() error {
		return n.governance.AcceptAuthority(ctx.Caller)
	})
}

// UpdateTiers replaces the referral tier table.
func (n *Node) UpdateTiers(ctx CallContext, tiers []referral.Tier) ([]events.Event, error) {
	return n.invoke(func() error {
		return n.governance.UpdateTiers(ctx.Caller, tiers)
	})
}

// UpdateLevel creates or reconfigures a box level.
func (n *Node) UpdateLevel(ctx CallContext, cfg *mint.LevelConfig) ([]events.Event, error) {
	return n.invoke(func() error {
		return n.governance.UpdateLevel(ctx.Caller, cfg)
	})
}

// UpdateRewardPool reconfigures a fixed pool.
func (n *Node) UpdateRewardPool(ctx CallContext, pool *reward.Pool) ([]events.Event, error) {
	return n.invoke(func() error {
		return n.governance.UpdateRewardPool(ctx.Caller, pool)
	})
}

// UpdateRandomPool reconfigures the weighted pool.
func (n *Node) UpdateRandomPool(ctx CallContext, pool *reward.RandomPool) ([]events.Event, error) {
	return n.invoke(func() error {
		return n.governance.UpdateRandomPool(ctx.Caller, pool)
	})
}

// UpdateClaimWindow replaces the claim ledger's time window.
func (n *Node) UpdateClaimWindow(ctx CallContext, window *claim.Window) ([]events.Event, error) {
	return n.invoke(func() error {
		return n.governance.UpdateClaimWindow(ctx.Caller, window)
	})
}

// SeedAuthority installs the initial governance identity. It refuses to
// overwrite an existing one; rotations afterwards go through propose/accept.
func (n *Node) SeedAuthority(addr [20]byte) error {
	_, err := n.invoke(func() error {
		if _, ok, err := n.state.Authority(); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("core: authority already seeded")
		}
		return n.state.SetAuthority(addr)
	})
	return err
}

// Authority returns the current governance identity, if seeded.
func (n *Node) Authority() ([20]byte, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Authority()
}

// --- Query surface (read-only) ---

// QuoteMint prices a prospective mint without writing state.
func (n *Node) QuoteMint(level uint32, quantity uint64, code string) (*referral.Quote, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.referrals.Quote(level, quantity, code)
}

// CodeExists reports whether a referral code is registered.
func (n *Node) CodeExists(code string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok, err := n.state.ReferralCodeOwner(referral.NormalizeCode(code))
	return ok, err
}

// ReferrerInfo returns a referrer's account counters.
func (n *Node) ReferrerInfo(addr [20]byte) (*referral.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.state.ReferralAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

// BoxInfo returns a box's mint record and, when opened, its settlement.
func (n *Node) BoxInfo(boxID uint64) (*mint.BoxRecord, *reward.OpenRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	box, ok, err := n.state.BoxRecord(boxID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: box %d", reward.ErrBoxNotFound, boxID)
	}
	opened, _, err := n.state.BoxOpenRecord(boxID)
	if err != nil {
		return nil, nil, err
	}
	return box, opened, nil
}

// LevelInfo returns a level's supply band.
func (n *Node) LevelInfo(level uint32) (*mint.LevelConfig, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.LevelConfig(level)
}

// Tiers returns the referral tier table.
func (n *Node) Tiers() ([]referral.Tier, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.ReferralTiers()
}

// GlobalTotals returns the aggregate referral counters.
func (n *Node) GlobalTotals() (*referral.GlobalTotals, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.ReferralGlobalTotals()
}

// ListReferralRecords pages through a referrer's history. afterSeq 0 starts
// from the beginning; limit 0 applies the default page size.
func (n *Node) ListReferralRecords(referrer [20]byte, afterSeq uint64, limit int) ([]*referral.Record, uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.ListReferralRecords(referrer, afterSeq, limit)
}

// ClaimableBoxes returns the remaining reward-box entitlement at a level.
func (n *Node) ClaimableBoxes(referrer [20]byte, level uint32) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.claims.ClaimableBoxes(referrer, level)
}

// ClaimableTokens returns the unredeemed base reward.
func (n *Node) ClaimableTokens(referrer [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.claims.ClaimableTokens(referrer)
}
