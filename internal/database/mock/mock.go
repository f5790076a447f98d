// Package mock provides mock implementations of storage interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// MockLedgerStore is an in-memory implementation of attendance.Store
type MockLedgerStore struct {
	mu    sync.RWMutex
	days  attendance.Days
	saves int

	// Error injection
	LoadError error
	SaveError error
}

// NewMockLedgerStore creates a new mock ledger store
func NewMockLedgerStore() *MockLedgerStore {
	return &MockLedgerStore{
		days: make(attendance.Days),
	}
}

// Seed replaces the stored ledger without counting as a save
func (m *MockLedgerStore) Seed(days attendance.Days) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days = days.Clone()
}

// Load returns a copy of the stored ledger
func (m *MockLedgerStore) Load(ctx context.Context) (attendance.Days, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.days.Clone(), nil
}

// Save stores a copy of the ledger
func (m *MockLedgerStore) Save(ctx context.Context, days attendance.Days) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days = days.Clone()
	m.saves++
	return nil
}

// Stored returns what the last successful save persisted
func (m *MockLedgerStore) Stored() attendance.Days {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.days.Clone()
}

// Saves returns the number of successful saves
func (m *MockLedgerStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
