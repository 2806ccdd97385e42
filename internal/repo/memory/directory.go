package memory

import (
	"context"
	"sync"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/repo"
)

type entityKey struct {
	tenantID string
	id       string
}

// Directory — справочник счетов и получателей в памяти.
type Directory struct {
	mu        sync.RWMutex
	billables map[entityKey]domain.Billable
	subjects  map[entityKey]domain.Subject
}

// NewDirectory создаёт пустой Directory.
func NewDirectory() *Directory {
	return &Directory{
		billables: make(map[entityKey]domain.Billable),
		subjects:  make(map[entityKey]domain.Subject),
	}
}

var _ repo.Directory = (*Directory)(nil)

// SaveBillable создаёт или заменяет счёт.
func (d *Directory) SaveBillable(_ context.Context, b *domain.Billable) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.billables[entityKey{b.TenantID, b.ID}] = *b
	return nil
}

// SaveSubject создаёт или заменяет получателя.
func (d *Directory) SaveSubject(_ context.Context, s *domain.Subject) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subjects[entityKey{s.TenantID, s.ID}] = *s
	return nil
}

// GetBillable возвращает счёт tenant'а.
func (d *Directory) GetBillable(_ context.Context, tenantID, id string) (*domain.Billable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.billables[entityKey{tenantID, id}]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &b, nil
}

// GetSubject возвращает получателя tenant'а.
func (d *Directory) GetSubject(_ context.Context, tenantID, id string) (*domain.Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.subjects[entityKey{tenantID, id}]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &s, nil
}
