package memory

import (
	"context"
	"sort"
	"sync"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
)

// MemoryDirectory keeps accounts plus a manager -> team index that is
// updated in the same critical section as the account itself.
type MemoryDirectory struct {
	accounts map[domain.SubjectID]*domain.Account
	teams    map[domain.SubjectID]map[domain.SubjectID]struct{}
	mu       sync.RWMutex
}

func NewMemoryDirectory() ports.Directory {
	return &MemoryDirectory{
		accounts: make(map[domain.SubjectID]*domain.Account),
		teams:    make(map[domain.SubjectID]map[domain.SubjectID]struct{}),
	}
}

func (d *MemoryDirectory) Get(ctx context.Context, id domain.SubjectID) (*domain.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	account, exists := d.accounts[id]
	if !exists {
		return nil, domain.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (d *MemoryDirectory) Put(ctx context.Context, account *domain.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, exists := d.accounts[account.SubjectID]; exists {
		d.unindex(prev)
	}
	copied := *account
	d.accounts[account.SubjectID] = &copied
	d.index(&copied)
	return nil
}

func (d *MemoryDirectory) Delete(ctx context.Context, id domain.SubjectID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	account, exists := d.accounts[id]
	if !exists {
		return domain.ErrAccountNotFound
	}
	d.unindex(account)
	delete(d.accounts, id)
	return nil
}

func (d *MemoryDirectory) TeamOf(ctx context.Context, manager domain.SubjectID) ([]domain.SubjectID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	team := d.teams[manager]
	out := make([]domain.SubjectID, 0, len(team))
	for id := range team {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (d *MemoryDirectory) List(ctx context.Context) ([]*domain.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*domain.Account, 0, len(d.accounts))
	for _, account := range d.accounts {
		copied := *account
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

func (d *MemoryDirectory) index(account *domain.Account) {
	if account.Role != domain.RoleSource || account.Manager == "" {
		return
	}
	team, ok := d.teams[account.Manager]
	if !ok {
		team = make(map[domain.SubjectID]struct{})
		d.teams[account.Manager] = team
	}
	team[account.SubjectID] = struct{}{}
}

func (d *MemoryDirectory) unindex(account *domain.Account) {
	team, ok := d.teams[account.Manager]
	if !ok {
		return
	}
	delete(team, account.SubjectID)
	if len(team) == 0 {
		delete(d.teams, account.Manager)
	}
}
