package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

type memState struct {
	contracts    map[domain.ContractID]domain.Contract
	installments map[domain.ContractID][]domain.Installment
	payments     map[domain.SpecialPaymentID]domain.SpecialPayment
	audit        map[domain.ContractID][]domain.AuditEntry
}

func newMemState() *memState {
	return &memState{
		contracts:    make(map[domain.ContractID]domain.Contract),
		installments: make(map[domain.ContractID][]domain.Installment),
		payments:     make(map[domain.SpecialPaymentID]domain.SpecialPayment),
		audit:        make(map[domain.ContractID][]domain.AuditEntry),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.contracts {
		c.contracts[k] = v
	}
	for k, v := range s.installments {
		c.installments[k] = append([]domain.Installment(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.audit {
		c.audit[k] = append([]domain.AuditEntry(nil), v...)
	}
	return c
}

// MemoryStore keeps everything in process. A unit of work runs on a copy of
// the state under the writer lock and replaces the state only on success.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// Within runs fn against a private copy of the state and commits it if fn
// succeeds. Every unit of work copies the state of all tenants and holds the
// single writer lock until it returns, so units of work never overlap here,
// even across contracts; a concurrent billing run gains nothing in memory
// mode. Use the Oracle store where per-contract row locks matter.
func (s *MemoryStore) Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// GetContract returns a contract by id
func (s *MemoryStore) GetContract(_ context.Context, tenantID string, id domain.ContractID) fp.Result[domain.Contract] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := (&memTx{state: s.state}).contract(tenantID, id)
	if err != nil {
		return fp.Failure[domain.Contract](err)
	}
	return fp.Success(c)
}

// ListContracts returns the tenant's contracts in the given states, or all of them
func (s *MemoryStore) ListContracts(_ context.Context, tenantID string, states ...domain.ContractState) fp.Result[[]domain.Contract] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Contract
	for _, c := range s.state.contracts {
		if c.TenantID != tenantID || !stateIn(c.State, states) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ContractNumber < out[b].ContractNumber })
	return fp.Success(out)
}

// ListInstallments returns the schedule of a contract ordered by date
func (s *MemoryStore) ListInstallments(ctx context.Context, tenantID string, contractID domain.ContractID, filter InstallmentFilter) fp.Result[[]domain.Installment] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, err := (&memTx{state: s.state}).ListInstallments(ctx, tenantID, contractID)
	if err != nil {
		return fp.Failure[[]domain.Installment](err)
	}
	out := make([]domain.Installment, 0, len(all))
	for _, inst := range all {
		if filter.Matches(inst) {
			out = append(out, inst)
		}
	}
	return fp.Success(out)
}

// GetSpecialPayment returns a special payment by id
func (s *MemoryStore) GetSpecialPayment(ctx context.Context, tenantID string, id domain.SpecialPaymentID) fp.Result[domain.SpecialPayment] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := (&memTx{state: s.state}).GetSpecialPayment(ctx, tenantID, id)
	if err != nil {
		return fp.Failure[domain.SpecialPayment](err)
	}
	return fp.Success(p)
}

// ListSpecialPayments returns the special payments of a contract ordered by date
func (s *MemoryStore) ListSpecialPayments(ctx context.Context, tenantID string, contractID domain.ContractID) fp.Result[[]domain.SpecialPayment] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, err := (&memTx{state: s.state}).ListSpecialPayments(ctx, tenantID, contractID)
	if err != nil {
		return fp.Failure[[]domain.SpecialPayment](err)
	}
	return fp.Success(out)
}

// ListAudit returns the audit trail of a contract, oldest first
func (s *MemoryStore) ListAudit(_ context.Context, tenantID string, contractID domain.ContractID) fp.Result[[]domain.AuditEntry] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditEntry
	for _, e := range s.state.audit[contractID] {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return fp.Success(out)
}

type memTx struct {
	state *memState
}

func (t *memTx) contract(tenantID string, id domain.ContractID) (domain.Contract, error) {
	c, ok := t.state.contracts[id]
	if !ok || c.TenantID != tenantID {
		return domain.Contract{}, fmt.Errorf("contract %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (t *memTx) LockContract(_ context.Context, tenantID string, id domain.ContractID) (domain.Contract, error) {
	return t.contract(tenantID, id)
}

func (t *memTx) InsertContract(_ context.Context, c domain.Contract) error {
	if _, ok := t.state.contracts[c.ID]; ok {
		return fmt.Errorf("contract %s already exists", c.ID)
	}
	c.Lines = append([]domain.ContractLine(nil), c.Lines...)
	t.state.contracts[c.ID] = c
	return nil
}

func (t *memTx) UpdateContract(_ context.Context, c domain.Contract) error {
	stored, err := t.contract(c.TenantID, c.ID)
	if err != nil {
		return err
	}
	if stored.Version != c.Version-1 {
		return fmt.Errorf("contract %s at version %d, update from %d: %w", c.ID, stored.Version, c.Version-1, ErrVersionConflict)
	}
	c.Lines = append([]domain.ContractLine(nil), c.Lines...)
	t.state.contracts[c.ID] = c
	return nil
}

func (t *memTx) ListInstallments(_ context.Context, tenantID string, contractID domain.ContractID) ([]domain.Installment, error) {
	var out []domain.Installment
	for _, inst := range t.state.installments[contractID] {
		if inst.TenantID == tenantID {
			out = append(out, inst)
		}
	}
	domain.SortInstallments(out)
	return out, nil
}

func (t *memTx) InsertInstallments(_ context.Context, items []domain.Installment) error {
	for _, inst := range items {
		for _, existing := range t.state.installments[inst.ContractID] {
			if existing.Serial == inst.Serial {
				return fmt.Errorf("installment serial %d already used on contract %s", inst.Serial, inst.ContractID)
			}
		}
		t.state.installments[inst.ContractID] = append(t.state.installments[inst.ContractID], inst)
	}
	return nil
}

func (t *memTx) UpdateInstallment(_ context.Context, inst domain.Installment) error {
	items := t.state.installments[inst.ContractID]
	for i, existing := range items {
		if existing.ID == inst.ID && existing.TenantID == inst.TenantID {
			items[i] = inst
			return nil
		}
	}
	return fmt.Errorf("installment %s: %w", inst.ID, ErrNotFound)
}

func (t *memTx) DeleteInstallments(_ context.Context, tenantID string, contractID domain.ContractID, ids []domain.InstallmentID) error {
	drop := make(map[domain.InstallmentID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	items := t.state.installments[contractID]
	kept := make([]domain.Installment, 0, len(items))
	for _, inst := range items {
		if !drop[inst.ID] || inst.TenantID != tenantID {
			kept = append(kept, inst)
			continue
		}
		if inst.IsLocked() {
			return fmt.Errorf("delete installment #%d: %w", inst.Serial, ErrLockedInstallment)
		}
		delete(drop, inst.ID)
	}
	if len(drop) > 0 {
		return fmt.Errorf("delete %d installments: %w", len(drop), ErrNotFound)
	}
	t.state.installments[contractID] = kept
	return nil
}

func (t *memTx) GetSpecialPayment(_ context.Context, tenantID string, id domain.SpecialPaymentID) (domain.SpecialPayment, error) {
	p, ok := t.state.payments[id]
	if !ok || p.TenantID != tenantID {
		return domain.SpecialPayment{}, fmt.Errorf("special payment %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (t *memTx) ListSpecialPayments(_ context.Context, tenantID string, contractID domain.ContractID) ([]domain.SpecialPayment, error) {
	var out []domain.SpecialPayment
	for _, p := range t.state.payments {
		if p.TenantID == tenantID && p.ContractID == contractID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].Date.Equal(out[b].Date) {
			return out[a].Date.Before(out[b].Date)
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

func (t *memTx) InsertSpecialPayment(_ context.Context, p domain.SpecialPayment) error {
	if _, ok := t.state.payments[p.ID]; ok {
		return fmt.Errorf("special payment %s already exists", p.ID)
	}
	t.state.payments[p.ID] = p
	return nil
}

func (t *memTx) UpdateSpecialPayment(ctx context.Context, p domain.SpecialPayment) error {
	if _, err := t.GetSpecialPayment(ctx, p.TenantID, p.ID); err != nil {
		return err
	}
	t.state.payments[p.ID] = p
	return nil
}

func (t *memTx) InsertAudit(_ context.Context, entry domain.AuditEntry) error {
	t.state.audit[entry.ContractID] = append(t.state.audit[entry.ContractID], entry)
	return nil
}

func stateIn(state domain.ContractState, states []domain.ContractState) bool {
	if len(states) == 0 {
		return true
	}
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}
