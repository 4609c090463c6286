package claim

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

type mockStore struct {
	window *Window
	states map[[20]byte]*State
	global map[uint32]uint64
}

func newMockStore() *mockStore {
	return &mockStore{
		states: make(map[[20]byte]*State),
		global: make(map[uint32]uint64),
	}
}

func (m *mockStore) ClaimWindow() (*Window, error) { return m.window, nil }

func (m *mockStore) ClaimState(addr [20]byte) (*State, error) {
	if state, ok := m.states[addr]; ok {
		return state.Clone(), nil
	}
	return (&State{}).Normalize(), nil
}

func (m *mockStore) PutClaimState(addr [20]byte, state *State) error {
	m.states[addr] = state.Clone()
	return nil
}

func (m *mockStore) GlobalMintedRewardBoxes() (map[uint32]uint64, error) {
	out := make(map[uint32]uint64, len(m.global))
	for level, qty := range m.global {
		out[level] = qty
	}
	return out, nil
}

func (m *mockStore) PutGlobalMintedRewardBoxes(minted map[uint32]uint64) error {
	m.global = minted
	return nil
}

type mockView struct {
	entitlements map[[20]byte]map[uint32]uint64
	rewards      map[[20]byte]*big.Int
}

func (m *mockView) Entitlement(addr [20]byte) (map[uint32]uint64, error) {
	return m.entitlements[addr], nil
}

func (m *mockView) BaseRewardAccrued(addr [20]byte) (*big.Int, error) {
	if reward, ok := m.rewards[addr]; ok {
		return new(big.Int).Set(reward), nil
	}
	return big.NewInt(0), nil
}

type mockMinter struct {
	nextID uint64
	minted map[uint32]uint64
	err    error
}

func (m *mockMinter) MintRewardBoxes(level uint32, quantity uint64, recipient [20]byte, height uint64) ([]uint64, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.minted == nil {
		m.minted = make(map[uint32]uint64)
	}
	ids := make([]uint64, 0, quantity)
	for i := uint64(0); i < quantity; i++ {
		m.nextID++
		ids = append(ids, m.nextID)
	}
	m.minted[level] += quantity
	return ids, nil
}

type mockToken struct {
	transfers map[[20]byte]*big.Int
}

func (m *mockToken) Transfer(to [20]byte, amount *big.Int) error {
	if m.transfers == nil {
		m.transfers = make(map[[20]byte]*big.Int)
	}
	prev := m.transfers[to]
	if prev == nil {
		prev = big.NewInt(0)
	}
	m.transfers[to] = new(big.Int).Add(prev, amount)
	return nil
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newTestLedger(store *mockStore, view *mockView, minter *mockMinter, token *mockToken) *Ledger {
	ledger := NewLedger()
	ledger.SetStore(store)
	ledger.SetReferralView(view)
	ledger.SetBoxMinter(minter)
	ledger.SetTokenTransfer(token)
	return ledger
}

func TestWindowContains(t *testing.T) {
	window := &Window{StartTime: 100, EndTime: 200}
	if err := window.Contains(time.Unix(99, 0)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("before start: %v", err)
	}
	if err := window.Contains(time.Unix(100, 0)); err != nil {
		t.Fatalf("at start: %v", err)
	}
	if err := window.Contains(time.Unix(200, 0)); err != nil {
		t.Fatalf("at end: %v", err)
	}
	if err := window.Contains(time.Unix(201, 0)); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("after end: %v", err)
	}
	openEnded := &Window{StartTime: 100}
	if err := openEnded.Contains(time.Unix(1_000_000, 0)); err != nil {
		t.Fatalf("open-ended window: %v", err)
	}
	// A zero start is the no-lower-bound sentinel, not an epoch start.
	openStart := &Window{EndTime: 200}
	if err := openStart.Contains(time.Unix(-50, 0)); err != nil {
		t.Fatalf("open-start window: %v", err)
	}
	if err := openStart.Contains(time.Unix(201, 0)); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("open-start window after end: %v", err)
	}
	var none *Window
	if err := none.Contains(time.Unix(0, 0)); err != nil {
		t.Fatalf("nil window must allow claims: %v", err)
	}
}

func TestClaimBoxes(t *testing.T) {
	referrer := addr(1)
	store := newMockStore()
	view := &mockView{entitlements: map[[20]byte]map[uint32]uint64{
		referrer: {1: 4, 2: 2},
	}}
	minter := &mockMinter{}
	ledger := newTestLedger(store, view, minter, nil)
	now := time.Unix(150, 0)

	claimable, err := ledger.ClaimableBoxes(referrer, 1)
	if err != nil || claimable != 4 {
		t.Fatalf("claimable = %d err %v, want 4", claimable, err)
	}
	ids, err := ledger.ClaimBoxes(referrer, 1, 3, now, 7)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v, want 3 boxes", ids)
	}
	if minter.minted[1] != 3 {
		t.Fatalf("minter saw %d boxes, want 3", minter.minted[1])
	}
	if store.states[referrer].MintedRewardBoxes[1] != 3 {
		t.Fatalf("claim state not advanced: %+v", store.states[referrer])
	}
	if store.global[1] != 3 {
		t.Fatalf("global minted = %d, want 3", store.global[1])
	}
	claimable, err = ledger.ClaimableBoxes(referrer, 1)
	if err != nil || claimable != 1 {
		t.Fatalf("claimable after = %d err %v, want 1", claimable, err)
	}
	if _, err := ledger.ClaimBoxes(referrer, 1, 2, now, 7); !errors.Is(err, ErrInsufficientEntitlement) {
		t.Fatalf("expected ErrInsufficientEntitlement, got %v", err)
	}
	if _, err := ledger.ClaimBoxes(referrer, 1, 0, now, 7); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestClaimBoxesHonoursWindow(t *testing.T) {
	referrer := addr(1)
	store := newMockStore()
	store.window = &Window{StartTime: 100, EndTime: 200}
	view := &mockView{entitlements: map[[20]byte]map[uint32]uint64{referrer: {1: 1}}}
	ledger := newTestLedger(store, view, &mockMinter{}, nil)

	if _, err := ledger.ClaimBoxes(referrer, 1, 1, time.Unix(50, 0), 1); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if _, err := ledger.ClaimBoxes(referrer, 1, 1, time.Unix(300, 0), 1); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("expected ErrWindowClosed, got %v", err)
	}
	if _, err := ledger.ClaimBoxes(referrer, 1, 1, time.Unix(150, 0), 1); err != nil {
		t.Fatalf("inside window: %v", err)
	}
}

func TestClaimBoxesMinterFailureLeavesCounters(t *testing.T) {
	referrer := addr(1)
	store := newMockStore()
	view := &mockView{entitlements: map[[20]byte]map[uint32]uint64{referrer: {1: 5}}}
	minter := &mockMinter{err: errors.New("sold out")}
	ledger := newTestLedger(store, view, minter, nil)

	if _, err := ledger.ClaimBoxes(referrer, 1, 1, time.Unix(0, 0), 1); err == nil {
		t.Fatalf("expected minter error")
	}
	if len(store.states) != 0 || len(store.global) != 0 {
		t.Fatalf("failed claim must not advance counters")
	}
}

func TestEntitlementShrinkClampsClaimable(t *testing.T) {
	// A tier-table change can shrink the entitlement below what was already
	// minted; the remainder clamps to zero instead of underflowing.
	referrer := addr(1)
	store := newMockStore()
	store.states[referrer] = &State{MintedRewardBoxes: map[uint32]uint64{1: 5}, ClaimedReward: big.NewInt(0)}
	view := &mockView{entitlements: map[[20]byte]map[uint32]uint64{referrer: {1: 3}}}
	ledger := newTestLedger(store, view, &mockMinter{}, nil)

	claimable, err := ledger.ClaimableBoxes(referrer, 1)
	if err != nil || claimable != 0 {
		t.Fatalf("claimable = %d err %v, want 0", claimable, err)
	}
}

func TestClaimTokens(t *testing.T) {
	referrer := addr(1)
	store := newMockStore()
	view := &mockView{rewards: map[[20]byte]*big.Int{referrer: big.NewInt(45)}}
	token := &mockToken{}
	ledger := newTestLedger(store, view, nil, token)
	now := time.Unix(0, 0)

	claimable, err := ledger.ClaimableTokens(referrer)
	if err != nil || claimable.Cmp(big.NewInt(45)) != 0 {
		t.Fatalf("claimable = %s err %v, want 45", claimable, err)
	}
	if err := ledger.ClaimTokens(referrer, big.NewInt(30), now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := token.transfers[referrer]; got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("transferred %s, want 30", got)
	}
	claimable, err = ledger.ClaimableTokens(referrer)
	if err != nil || claimable.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("claimable after = %s err %v, want 15", claimable, err)
	}
	if err := ledger.ClaimTokens(referrer, big.NewInt(16), now); !errors.Is(err, ErrInsufficientEntitlement) {
		t.Fatalf("expected ErrInsufficientEntitlement, got %v", err)
	}
	if err := ledger.ClaimTokens(referrer, big.NewInt(0), now); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.ClaimTokens(referrer, nil, now); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil amount, got %v", err)
	}
}
