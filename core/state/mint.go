package state

import (
	"fmt"
	"math/big"

	"boxchain/native/mint"
)

type storedLevelConfig struct {
	Index          uint32
	Price          *big.Int
	TotalCap       uint64
	MintedCount    uint64
	ReceivedAmount *big.Int
	RandomPool     bool
}

type storedBoxRecord struct {
	ID         uint64
	Level      uint32
	Price      *big.Int
	MintBlock  uint64
	RandomPool bool
	RewardBox  bool
}

// LevelConfig loads the supply band for a level.
func (m *Manager) LevelConfig(level uint32) (*mint.LevelConfig, bool, error) {
	var stored storedLevelConfig
	ok, err := m.KVGet(mintLevelKey(level), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	cfg := &mint.LevelConfig{
		Index:          stored.Index,
		Price:          stored.Price,
		TotalCap:       stored.TotalCap,
		MintedCount:    stored.MintedCount,
		ReceivedAmount: stored.ReceivedAmount,
		RandomPool:     stored.RandomPool,
	}
	return cfg.Normalize(), true, nil
}

// PutLevelConfig persists a level's supply band.
func (m *Manager) PutLevelConfig(cfg *mint.LevelConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: nil level config")
	}
	cfg.Normalize()
	stored := storedLevelConfig{
		Index:          cfg.Index,
		Price:          cfg.Price,
		TotalCap:       cfg.TotalCap,
		MintedCount:    cfg.MintedCount,
		ReceivedAmount: cfg.ReceivedAmount,
		RandomPool:     cfg.RandomPool,
	}
	return m.KVPut(mintLevelKey(cfg.Index), stored)
}

// NextBoxID returns the next unallocated box identifier, starting at 1.
func (m *Manager) NextBoxID() (uint64, error) {
	var next uint64
	ok, err := m.KVGet(mintNextBoxIDKey, &next)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return next, nil
}

// SetNextBoxID advances the global box id counter.
func (m *Manager) SetNextBoxID(next uint64) error {
	return m.KVPut(mintNextBoxIDKey, next)
}

// BoxRecord loads a box's mint-time record.
func (m *Manager) BoxRecord(id uint64) (*mint.BoxRecord, bool, error) {
	var stored storedBoxRecord
	ok, err := m.KVGet(boxRecordKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	record := &mint.BoxRecord{
		ID:         stored.ID,
		Level:      stored.Level,
		Price:      stored.Price,
		MintBlock:  stored.MintBlock,
		RandomPool: stored.RandomPool,
		RewardBox:  stored.RewardBox,
	}
	return record, true, nil
}

// PutBoxRecord persists a box's mint-time record.
func (m *Manager) PutBoxRecord(record *mint.BoxRecord) error {
	if record == nil {
		return fmt.Errorf("state: nil box record")
	}
	stored := storedBoxRecord{
		ID:         record.ID,
		Level:      record.Level,
		Price:      record.Price,
		MintBlock:  record.MintBlock,
		RandomPool: record.RandomPool,
		RewardBox:  record.RewardBox,
	}
	return m.KVPut(boxRecordKey(record.ID), stored)
}

// LevelPrice exposes a level's unit price to the pricing engine.
func (m *Manager) LevelPrice(level uint32) (*big.Int, bool, error) {
	cfg, ok, err := m.LevelConfig(level)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg.Price, true, nil
}
