package governance

import (
	"errors"
	"fmt"

	"boxchain/core/events"
	"boxchain/native/claim"
	"boxchain/native/mint"
	"boxchain/native/referral"
	"boxchain/native/reward"
)

var (
	ErrUnauthorized    = errors.New("governance: unauthorized")
	ErrNoPending       = errors.New("governance: no pending authority")
	ErrCapBelowMinted  = errors.New("governance: cap below minted count")
	ErrCapBelowPaidOut = errors.New("governance: capacity below paid out count")
)

// State describes the persistence the governance engine needs. Table updates
// go through here so counters survive reconfiguration.
type State interface {
	Authority() ([20]byte, bool, error)
	SetAuthority(addr [20]byte) error
	PendingAuthority() ([20]byte, bool, error)
	SetPendingAuthority(addr [20]byte) error
	ClearPendingAuthority() error
	PutReferralTiers(tiers []referral.Tier) error
	LevelConfig(level uint32) (*mint.LevelConfig, bool, error)
	PutLevelConfig(cfg *mint.LevelConfig) error
	RewardPool(level uint32) (*reward.Pool, bool, error)
	PutRewardPool(pool *reward.Pool) error
	RandomRewardPool(level uint32) (*reward.RandomPool, bool, error)
	PutRandomRewardPool(pool *reward.RandomPool) error
	PutClaimWindow(window *claim.Window) error
}

// Engine gates every administrative mutation behind the single governance
// identity, rotated only through the propose/accept two-step.
type Engine struct {
	state   State
	emitter events.Emitter
}

// NewEngine constructs a governance engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) requireAuthority(caller [20]byte) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("governance: state not configured")
	}
	authority, ok, err := e.state.Authority()
	if err != nil {
		return err
	}
	if !ok || authority != caller {
		return ErrUnauthorized
	}
	return nil
}

// ProposeAuthority nominates the successor identity. The nomination has no
// effect until the successor accepts; re-proposing overwrites a prior
// nomination.
func (e *Engine) ProposeAuthority(caller, next [20]byte) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	if err := e.state.SetPendingAuthority(next); err != nil {
		return err
	}
	e.emit(events.AuthorityProposed{Current: caller, Next: next})
	return nil
}

// AcceptAuthority completes the rotation; only the nominated identity may
// call it.
func (e *Engine) AcceptAuthority(caller [20]byte) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("governance: state not configured")
	}
	pending, ok, err := e.state.PendingAuthority()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPending
	}
	if pending != caller {
		return ErrUnauthorized
	}
	previous, _, err := e.state.Authority()
	if err != nil {
		return err
	}
	if err := e.state.SetAuthority(caller); err != nil {
		return err
	}
	if err := e.state.ClearPendingAuthority(); err != nil {
		return err
	}
	e.emit(events.AuthorityRotated{Previous: previous, Current: caller})
	return nil
}

// UpdateTiers replaces the referral tier table. Overlapping or gapped bands
// are rejected here, at the write boundary, so mint-time tier resolution can
// rely on exactly one match.
func (e *Engine) UpdateTiers(caller [20]byte, tiers []referral.Tier) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	if err := referral.ValidateTierTable(tiers); err != nil {
		return err
	}
	if err := e.state.PutReferralTiers(tiers); err != nil {
		return err
	}
	e.emit(events.ParamsUpdated{Kind: "referral_tiers"})
	return nil
}

// UpdateLevel creates or reconfigures a box level. Mint counters on an
// existing level carry over untouched, and the new cap may not undercut what
// is already minted.
func (e *Engine) UpdateLevel(caller [20]byte, cfg *mint.LevelConfig) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("governance: nil level config")
	}
	next := cfg.Clone().Normalize()
	if next.Price.Sign() < 0 {
		return fmt.Errorf("governance: level %d negative price", next.Index)
	}
	existing, ok, err := e.state.LevelConfig(next.Index)
	if err != nil {
		return err
	}
	if ok {
		next.MintedCount = existing.MintedCount
		next.ReceivedAmount = existing.Normalize().ReceivedAmount
	} else {
		next.MintedCount = 0
	}
	if next.TotalCap < next.MintedCount {
		return fmt.Errorf("%w: level %d cap %d, minted %d", ErrCapBelowMinted, next.Index, next.TotalCap, next.MintedCount)
	}
	if err := e.state.PutLevelConfig(next); err != nil {
		return err
	}
	e.emit(events.ParamsUpdated{Kind: "level_config"})
	return nil
}

// UpdateRewardPool reconfigures a fixed pool, carrying payout counters over.
func (e *Engine) UpdateRewardPool(caller [20]byte, pool *reward.Pool) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("governance: nil reward pool")
	}
	next := pool.Clone().Normalize()
	existing, ok, err := e.state.RewardPool(next.Level)
	if err != nil {
		return err
	}
	if ok {
		next.PaidOutCount = existing.PaidOutCount
		next.PaidOutAmount = existing.Normalize().PaidOutAmount
	} else {
		next.PaidOutCount = 0
	}
	if next.Capacity < next.PaidOutCount {
		return fmt.Errorf("%w: level %d capacity %d, paid out %d", ErrCapBelowPaidOut, next.Level, next.Capacity, next.PaidOutCount)
	}
	if err := e.state.PutRewardPool(next); err != nil {
		return err
	}
	e.emit(events.ParamsUpdated{Kind: "reward_pool"})
	return nil
}

// UpdateRandomPool reconfigures the random pool's bucket table. Buckets are
// matched by position; an update may grow capacities or append buckets but
// never drops paid-out history or undercuts a bucket's consumption.
func (e *Engine) UpdateRandomPool(caller [20]byte, pool *reward.RandomPool) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("governance: nil random pool")
	}
	next := pool.Clone().Normalize()
	existing, ok, err := e.state.RandomRewardPool(next.Level)
	if err != nil {
		return err
	}
	if ok {
		existing.Normalize()
		if len(next.Buckets) < len(existing.Buckets) {
			return fmt.Errorf("governance: random level %d bucket table may not shrink", next.Level)
		}
		next.PaidOutCount = existing.PaidOutCount
		next.PaidOutAmount = existing.PaidOutAmount
		for i := range existing.Buckets {
			next.Buckets[i].PaidOutCount = existing.Buckets[i].PaidOutCount
			if next.Buckets[i].Capacity < next.Buckets[i].PaidOutCount {
				return fmt.Errorf("%w: random level %d bucket %d", ErrCapBelowPaidOut, next.Level, i)
			}
		}
		// Appended buckets have no history to carry.
		for i := len(existing.Buckets); i < len(next.Buckets); i++ {
			next.Buckets[i].PaidOutCount = 0
		}
	} else {
		next.PaidOutCount = 0
		for i := range next.Buckets {
			next.Buckets[i].PaidOutCount = 0
		}
	}
	if err := e.state.PutRandomRewardPool(next); err != nil {
		return err
	}
	e.emit(events.ParamsUpdated{Kind: "random_pool"})
	return nil
}

// UpdateClaimWindow replaces the claim ledger's time window.
func (e *Engine) UpdateClaimWindow(caller [20]byte, window *claim.Window) error {
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	if window == nil {
		return fmt.Errorf("governance: nil claim window")
	}
	if window.EndTime > 0 && window.StartTime > window.EndTime {
		return fmt.Errorf("governance: claim window ends before it starts")
	}
	w := *window
	if err := e.state.PutClaimWindow(&w); err != nil {
		return err
	}
	e.emit(events.ParamsUpdated{Kind: "claim_window"})
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}
