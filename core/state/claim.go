package state

import (
	"fmt"
	"math/big"

	"boxchain/native/claim"
)

type storedClaimState struct {
	MintedRewardBoxes []levelPair
	ClaimedReward     *big.Int
}

type storedClaimWindow struct {
	StartTime uint64
	EndTime   uint64
}

// ClaimWindow loads the claim ledger's time window; an unset window accepts
// all claims.
func (m *Manager) ClaimWindow() (*claim.Window, error) {
	var stored storedClaimWindow
	ok, err := m.KVGet(claimWindowKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &claim.Window{}, nil
	}
	return &claim.Window{StartTime: int64(stored.StartTime), EndTime: int64(stored.EndTime)}, nil
}

// PutClaimWindow persists the claim window.
func (m *Manager) PutClaimWindow(window *claim.Window) error {
	if window == nil {
		return fmt.Errorf("state: nil claim window")
	}
	stored := storedClaimWindow{
		StartTime: int64ToUint64(window.StartTime),
		EndTime:   int64ToUint64(window.EndTime),
	}
	return m.KVPut(claimWindowKey, stored)
}

// ClaimState loads a referrer's consumption counters, zero-valued when never
// written.
func (m *Manager) ClaimState(addr [20]byte) (*claim.State, error) {
	var stored storedClaimState
	ok, err := m.KVGet(claimStateKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&claim.State{}).Normalize(), nil
	}
	state := &claim.State{
		MintedRewardBoxes: decodeLevelMap(stored.MintedRewardBoxes),
		ClaimedReward:     stored.ClaimedReward,
	}
	return state.Normalize(), nil
}

// PutClaimState persists a referrer's consumption counters.
func (m *Manager) PutClaimState(addr [20]byte, state *claim.State) error {
	if state == nil {
		return fmt.Errorf("state: nil claim state")
	}
	state.Normalize()
	stored := storedClaimState{
		MintedRewardBoxes: encodeLevelMap(state.MintedRewardBoxes),
		ClaimedReward:     state.ClaimedReward,
	}
	return m.KVPut(claimStateKey(addr), stored)
}

// GlobalMintedRewardBoxes loads the cross-referrer minted counters.
func (m *Manager) GlobalMintedRewardBoxes() (map[uint32]uint64, error) {
	var stored []levelPair
	ok, err := m.KVGet(claimGlobalMintedKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return make(map[uint32]uint64), nil
	}
	return decodeLevelMap(stored), nil
}

// PutGlobalMintedRewardBoxes persists the cross-referrer minted counters.
func (m *Manager) PutGlobalMintedRewardBoxes(minted map[uint32]uint64) error {
	return m.KVPut(claimGlobalMintedKey, encodeLevelMap(minted))
}
