// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/accrual-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	agreements map[personKey][]generic.Agreement
	accruals   map[personKey]map[rowKey]generic.AccrualRecord
	saves      int
}

type personKey struct {
	TenantID generic.TenantID
	PersonID generic.PersonID
}

type rowKey struct {
	TypeID generic.AccrualTypeID
	Date   generic.Date
}

func NewMemory() *Memory {
	return &Memory{
		agreements: make(map[personKey][]generic.Agreement),
		accruals:   make(map[personKey]map[rowKey]generic.AccrualRecord),
	}
}

var _ generic.Store = (*Memory)(nil)

// AddAgreement stores an agreement, keeping each person's list ordered by start date.
func (m *Memory) AddAgreement(a generic.Agreement) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := personKey{TenantID: a.TenantID, PersonID: a.PersonID}
	list := append(m.agreements[k], a)
	sort.Slice(list, func(i, j int) bool { return list[i].StartDate.Before(list[j].StartDate) })
	m.agreements[k] = list
}

// ApplicableAgreement returns the latest-starting agreement covering the date.
func (m *Memory) ApplicableAgreement(_ context.Context, tenantID generic.TenantID, personID generic.PersonID, on generic.Date) (generic.Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.agreements[personKey{TenantID: tenantID, PersonID: personID}]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Covers(on) {
			return list[i], nil
		}
	}
	return generic.Agreement{}, generic.ErrAgreementNotFound
}

// AccrualWindow returns copies of all rows dated in [from, to], ordered by type then date.
func (m *Memory) AccrualWindow(_ context.Context, tenantID generic.TenantID, personID generic.PersonID, from, to generic.Date) ([]generic.AccrualRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	period := generic.Period{Start: from, End: to}
	var result []generic.AccrualRecord
	for k, r := range m.accruals[personKey{TenantID: tenantID, PersonID: personID}] {
		if period.Contains(k.Date) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TypeID != result[j].TypeID {
			return result[i].TypeID < result[j].TypeID
		}
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// SaveAccruals upserts all rows under one lock, so readers see all or none.
func (m *Memory) SaveAccruals(_ context.Context, records []generic.AccrualRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		k := personKey{TenantID: r.TenantID, PersonID: r.PersonID}
		rows := m.accruals[k]
		if rows == nil {
			rows = make(map[rowKey]generic.AccrualRecord)
			m.accruals[k] = rows
		}
		rows[rowKey{TypeID: r.TypeID, Date: r.Date}] = r.Clone()
	}
	m.saves++
	return nil
}

// Accrual returns a single stored row.
func (m *Memory) Accrual(tenantID generic.TenantID, personID generic.PersonID, typeID generic.AccrualTypeID, d generic.Date) (generic.AccrualRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.accruals[personKey{TenantID: tenantID, PersonID: personID}][rowKey{TypeID: typeID, Date: d}]
	if !ok {
		return generic.AccrualRecord{}, false
	}
	return r.Clone(), true
}

// SaveCount returns how many SaveAccruals batches were applied.
func (m *Memory) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
