package mint

import (
	"errors"
	"fmt"
	"math/big"

	"boxchain/core/events"
	"boxchain/native/common"
)

var (
	ErrLevelNotFound   = errors.New("mint: level not found")
	ErrLevelSoldOut    = errors.New("mint: level supply exhausted")
	ErrQuantityZero    = errors.New("mint: quantity must be positive")
	ErrPaymentMismatch = errors.New("mint: payment does not match quoted total")
)

// State describes the persistence the minting ledger needs.
type State interface {
	LevelConfig(level uint32) (*LevelConfig, bool, error)
	PutLevelConfig(cfg *LevelConfig) error
	NextBoxID() (uint64, error)
	SetNextBoxID(next uint64) error
	BoxRecord(id uint64) (*BoxRecord, bool, error)
	PutBoxRecord(record *BoxRecord) error
}

// Ledger enforces per-level supply caps and allocates sequential box ids from
// one global counter.
type Ledger struct {
	state   State
	emitter events.Emitter
}

// NewLedger constructs a minting ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state State) { l.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Mint allocates quantity boxes at the given level for recipient. The payment
// must equal the quoted total exactly; the check runs before any allocation
// so a mismatch leaves no trace. Returns the allocated box ids.
func (l *Ledger) Mint(level uint32, quantity uint64, recipient [20]byte, payment, quoted *big.Int, height uint64) ([]uint64, error) {
	if err := l.checkPayment(payment, quoted); err != nil {
		return nil, err
	}
	ids, cfg, err := l.allocate(level, quantity, height, false)
	if err != nil {
		return nil, err
	}
	cfg.ReceivedAmount = new(big.Int).Add(cfg.ReceivedAmount, payment)
	if err := l.state.PutLevelConfig(cfg); err != nil {
		return nil, err
	}
	l.emit(events.BoxesMinted{Recipient: recipient, Level: level, BoxIDs: ids, Paid: new(big.Int).Set(payment)})
	return ids, nil
}

// MintRewardBoxes allocates entitlement boxes for a referrer. They consume
// the level's supply like paid boxes but carry no payment.
func (l *Ledger) MintRewardBoxes(level uint32, quantity uint64, recipient [20]byte, height uint64) ([]uint64, error) {
	ids, cfg, err := l.allocate(level, quantity, height, true)
	if err != nil {
		return nil, err
	}
	if err := l.state.PutLevelConfig(cfg); err != nil {
		return nil, err
	}
	l.emit(events.BoxesMinted{Recipient: recipient, Level: level, BoxIDs: ids, Paid: big.NewInt(0), RewardBox: true})
	return ids, nil
}

func (l *Ledger) allocate(level uint32, quantity uint64, height uint64, rewardBox bool) ([]uint64, *LevelConfig, error) {
	if l == nil || l.state == nil {
		return nil, nil, fmt.Errorf("mint: state not configured")
	}
	if quantity == 0 {
		return nil, nil, ErrQuantityZero
	}
	cfg, ok, err := l.state.LevelConfig(level)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: level %d", ErrLevelNotFound, level)
	}
	cfg.Normalize()
	minted, err := common.AddUint64(cfg.MintedCount, quantity)
	if err != nil {
		return nil, nil, fmt.Errorf("mint: minted count: %w", err)
	}
	if minted > cfg.TotalCap {
		return nil, nil, fmt.Errorf("%w: level %d has %d of %d minted", ErrLevelSoldOut, level, cfg.MintedCount, cfg.TotalCap)
	}
	first, err := l.state.NextBoxID()
	if err != nil {
		return nil, nil, err
	}
	end, err := common.AddUint64(first, quantity)
	if err != nil {
		return nil, nil, fmt.Errorf("mint: box id counter: %w", err)
	}
	ids := make([]uint64, 0, quantity)
	for id := first; id < end; id++ {
		record := &BoxRecord{
			ID:         id,
			Level:      level,
			Price:      new(big.Int).Set(cfg.Price),
			MintBlock:  height,
			RandomPool: cfg.RandomPool,
			RewardBox:  rewardBox,
		}
		if err := l.state.PutBoxRecord(record); err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
	}
	if err := l.state.SetNextBoxID(end); err != nil {
		return nil, nil, err
	}
	cfg.MintedCount = minted
	return ids, cfg, nil
}

func (l *Ledger) checkPayment(payment, quoted *big.Int) error {
	if payment == nil || quoted == nil {
		return fmt.Errorf("%w: missing amount", ErrPaymentMismatch)
	}
	if payment.Cmp(quoted) != 0 {
		return fmt.Errorf("%w: sent %s, quoted %s", ErrPaymentMismatch, payment, quoted)
	}
	return nil
}

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(evt)
}
