// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/cashflow-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

type externalKey struct {
	AccountID  engine.AccountID
	ExternalID string
}

type mappingKey struct {
	OwnerID engine.OwnerID
	Keyword string
}

// state holds the data. Its methods assume the caller holds the lock.
type state struct {
	accounts     map[engine.AccountID]engine.Account
	entries      map[engine.EntryID]engine.Entry
	external     map[externalKey]engine.EntryID
	series       *engine.SeriesIndex
	loans        map[engine.LoanPlanID]engine.LoanPlan
	installments map[engine.LoanPlanID][]engine.LoanInstallment
	mappings     map[mappingKey]engine.KeywordMapping
}

func newState() *state {
	return &state{
		accounts:     make(map[engine.AccountID]engine.Account),
		entries:      make(map[engine.EntryID]engine.Entry),
		external:     make(map[externalKey]engine.EntryID),
		series:       engine.NewSeriesIndex(),
		loans:        make(map[engine.LoanPlanID]engine.LoanPlan),
		installments: make(map[engine.LoanPlanID][]engine.LoanInstallment),
		mappings:     make(map[mappingKey]engine.KeywordMapping),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// AppendEntries adds entries atomically.
func (m *Memory) AppendEntries(_ context.Context, entries []engine.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendEntries(entries)
}

func (m *Memory) Entries(_ context.Context, filter engine.EntryFilter) ([]engine.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.query(filter), nil
}

func (m *Memory) Entry(_ context.Context, id engine.EntryID) (engine.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.entry(id)
}

func (m *Memory) UpdateSettlement(_ context.Context, e engine.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateSettlement(e)
}

func (m *Memory) DeleteSeries(_ context.Context, id engine.SeriesID, from engine.Date) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteSeries(id, from)
}

func (m *Memory) ExternalIDExists(_ context.Context, accountID engine.AccountID, externalID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.st.external[externalKey{AccountID: accountID, ExternalID: externalID}]
	return ok, nil
}

func (m *Memory) SaveAccount(_ context.Context, a engine.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.accounts[a.ID] = a
	return nil
}

func (m *Memory) Account(_ context.Context, id engine.AccountID) (engine.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.account(id)
}

func (m *Memory) Accounts(_ context.Context, owner engine.OwnerID) ([]engine.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listAccounts(owner), nil
}

func (m *Memory) ReplaceLoan(_ context.Context, plan engine.LoanPlan, insts []engine.LoanInstallment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.replaceLoan(plan, insts)
	return nil
}

func (m *Memory) Loan(_ context.Context, id engine.LoanPlanID) (engine.LoanPlan, []engine.LoanInstallment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.loan(id)
}

func (m *Memory) Loans(_ context.Context, owner engine.OwnerID) ([]engine.LoanPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listLoans(owner), nil
}

func (m *Memory) UpdateInstallment(_ context.Context, inst engine.LoanInstallment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateInstallment(inst)
}

func (m *Memory) SaveMappings(_ context.Context, mappings []engine.KeywordMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mp := range mappings {
		m.st.mappings[mappingKey{OwnerID: mp.OwnerID, Keyword: mp.Keyword}] = mp
	}
	return nil
}

func (m *Memory) Mappings(_ context.Context, owner engine.OwnerID, keywords []string) ([]engine.KeywordMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.KeywordMapping
	for _, kw := range keywords {
		if mp, ok := m.st.mappings[mappingKey{OwnerID: owner, Keyword: kw}]; ok {
			out = append(out, mp)
		}
	}
	return out, nil
}

// =============================================================================
// STATE OPERATIONS (lock held by caller)
// =============================================================================

func (s *state) appendEntries(entries []engine.Entry) error {
	// Check everything first so a rejected batch writes nothing.
	seen := make(map[externalKey]bool)
	for _, e := range entries {
		if e.ExternalID == "" {
			continue
		}
		k := externalKey{AccountID: e.AccountID, ExternalID: e.ExternalID}
		if _, ok := s.external[k]; ok || seen[k] {
			return engine.ErrDuplicateExternalID
		}
		seen[k] = true
	}

	for _, e := range entries {
		s.entries[e.ID] = e
		if e.ExternalID != "" {
			s.external[externalKey{AccountID: e.AccountID, ExternalID: e.ExternalID}] = e.ID
		}
	}
	s.series.Add(entries...)
	return nil
}

func (s *state) query(filter engine.EntryFilter) []engine.Entry {
	var out []engine.Entry
	for _, e := range s.entries {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// sortEntries orders by posting date, then series position, then creation.
func sortEntries(entries []engine.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.PostedOn.Equal(b.PostedOn) {
			return a.PostedOn.Before(b.PostedOn)
		}
		if ai, bi := seriesIndex(a), seriesIndex(b); ai != bi {
			return ai < bi
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func seriesIndex(e engine.Entry) int {
	if e.Series == nil {
		return 0
	}
	return e.Series.Index
}

func (s *state) entry(id engine.EntryID) (engine.Entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return engine.Entry{}, engine.ErrEntryNotFound
	}
	return e, nil
}

func (s *state) updateSettlement(e engine.Entry) error {
	cur, ok := s.entries[e.ID]
	if !ok {
		return engine.ErrEntryNotFound
	}
	cur.State = e.State
	cur.SettledOn = e.SettledOn
	cur.SettledAmount = e.SettledAmount
	s.entries[e.ID] = cur
	return nil
}

func (s *state) deleteSeries(id engine.SeriesID, from engine.Date) (int, error) {
	if !s.series.Has(id) {
		return 0, engine.ErrSeriesNotFound
	}
	ids := s.series.From(id, from)
	for _, eid := range ids {
		e := s.entries[eid]
		if e.ExternalID != "" {
			delete(s.external, externalKey{AccountID: e.AccountID, ExternalID: e.ExternalID})
		}
		delete(s.entries, eid)
	}
	s.series.Remove(id, ids)
	return len(ids), nil
}

func (s *state) account(id engine.AccountID) (engine.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return engine.Account{}, engine.ErrAccountNotFound
	}
	return a, nil
}

func (s *state) listAccounts(owner engine.OwnerID) []engine.Account {
	var out []engine.Account
	for _, a := range s.accounts {
		if owner == "" || a.OwnerID == owner {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) replaceLoan(plan engine.LoanPlan, insts []engine.LoanInstallment) {
	s.loans[plan.ID] = plan
	s.installments[plan.ID] = append([]engine.LoanInstallment(nil), insts...)
}

func (s *state) loan(id engine.LoanPlanID) (engine.LoanPlan, []engine.LoanInstallment, error) {
	p, ok := s.loans[id]
	if !ok {
		return engine.LoanPlan{}, nil, engine.ErrLoanNotFound
	}
	return p, append([]engine.LoanInstallment(nil), s.installments[id]...), nil
}

func (s *state) listLoans(owner engine.OwnerID) []engine.LoanPlan {
	var out []engine.LoanPlan
	for _, p := range s.loans {
		if owner == "" || p.OwnerID == owner {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) updateInstallment(inst engine.LoanInstallment) error {
	insts, ok := s.installments[inst.PlanID]
	if !ok {
		return engine.ErrLoanNotFound
	}
	for i := range insts {
		if insts[i].Sequence == inst.Sequence {
			insts[i] = inst
			return nil
		}
	}
	return engine.ErrInstallmentNotFound
}

// clone deep-copies the state for transactional snapshots.
func (s *state) clone() *state {
	out := newState()
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	for k, v := range s.external {
		out.external[k] = v
	}
	out.series = s.series.Clone()
	for k, v := range s.loans {
		out.loans[k] = v
	}
	for k, v := range s.installments {
		out.installments[k] = append([]engine.LoanInstallment(nil), v...)
	}
	for k, v := range s.mappings {
		out.mappings[k] = v
	}
	return out
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()
	if err := fn(&txMemoryView{st: tm.st}); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

// txMemoryView operates on the live state while WithTx holds the lock.
type txMemoryView struct {
	st *state
}

func (tv *txMemoryView) AppendEntries(_ context.Context, entries []engine.Entry) error {
	return tv.st.appendEntries(entries)
}

func (tv *txMemoryView) Entries(_ context.Context, filter engine.EntryFilter) ([]engine.Entry, error) {
	return tv.st.query(filter), nil
}

func (tv *txMemoryView) Entry(_ context.Context, id engine.EntryID) (engine.Entry, error) {
	return tv.st.entry(id)
}

func (tv *txMemoryView) UpdateSettlement(_ context.Context, e engine.Entry) error {
	return tv.st.updateSettlement(e)
}

func (tv *txMemoryView) DeleteSeries(_ context.Context, id engine.SeriesID, from engine.Date) (int, error) {
	return tv.st.deleteSeries(id, from)
}

func (tv *txMemoryView) ExternalIDExists(_ context.Context, accountID engine.AccountID, externalID string) (bool, error) {
	_, ok := tv.st.external[externalKey{AccountID: accountID, ExternalID: externalID}]
	return ok, nil
}

func (tv *txMemoryView) SaveAccount(_ context.Context, a engine.Account) error {
	tv.st.accounts[a.ID] = a
	return nil
}

func (tv *txMemoryView) Account(_ context.Context, id engine.AccountID) (engine.Account, error) {
	return tv.st.account(id)
}

func (tv *txMemoryView) Accounts(_ context.Context, owner engine.OwnerID) ([]engine.Account, error) {
	return tv.st.listAccounts(owner), nil
}

func (tv *txMemoryView) ReplaceLoan(_ context.Context, plan engine.LoanPlan, insts []engine.LoanInstallment) error {
	tv.st.replaceLoan(plan, insts)
	return nil
}

func (tv *txMemoryView) Loan(_ context.Context, id engine.LoanPlanID) (engine.LoanPlan, []engine.LoanInstallment, error) {
	return tv.st.loan(id)
}

func (tv *txMemoryView) Loans(_ context.Context, owner engine.OwnerID) ([]engine.LoanPlan, error) {
	return tv.st.listLoans(owner), nil
}

func (tv *txMemoryView) UpdateInstallment(_ context.Context, inst engine.LoanInstallment) error {
	return tv.st.updateInstallment(inst)
}
