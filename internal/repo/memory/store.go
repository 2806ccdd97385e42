// Package memory — in-process реализации хранилищ для тестов и local-режима.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/repo"
)

type billableKey struct {
	tenantID   string
	billableID string
}

// Store — DocumentStore в памяти. Возвращает копии, а не общие указатели.
type Store struct {
	mu         sync.RWMutex
	docs       map[uuid.UUID]*domain.IssuanceRecord
	byBillable map[billableKey]uuid.UUID
}

// NewStore создаёт пустой Store.
func NewStore() *Store {
	return &Store{
		docs:       make(map[uuid.UUID]*domain.IssuanceRecord),
		byBillable: make(map[billableKey]uuid.UUID),
	}
}

var _ repo.DocumentStore = (*Store)(nil)

// Create сохраняет новую запись.
func (s *Store) Create(_ context.Context, doc *domain.IssuanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := billableKey{doc.TenantID, doc.BillableReferenceID}
	if _, ok := s.byBillable[key]; ok {
		return repo.ErrAlreadyExists
	}
	if _, ok := s.docs[doc.ID]; ok {
		return repo.ErrAlreadyExists
	}

	s.docs[doc.ID] = doc.Clone()
	s.byBillable[key] = doc.ID
	return nil
}

// GetByID возвращает копию записи.
func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*domain.IssuanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return doc.Clone(), nil
}

// GetForTenant возвращает копию записи tenant'а.
func (s *Store) GetForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*domain.IssuanceRecord, error) {
	doc, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.TenantID != tenantID {
		return nil, repo.ErrNotFound
	}
	return doc, nil
}

// GetByBillable возвращает копию записи для счёта.
func (s *Store) GetByBillable(_ context.Context, tenantID, billableID string) (*domain.IssuanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byBillable[billableKey{tenantID, billableID}]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return s.docs[id].Clone(), nil
}

// Update перезаписывает изменяемые поля.
func (s *Store) Update(_ context.Context, doc *domain.IssuanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.docs[doc.ID]
	if !ok {
		return repo.ErrNotFound
	}

	next := doc.Clone()
	// неизменяемые поля берутся из хранилища
	next.TenantID = cur.TenantID
	next.BillableReferenceID = cur.BillableReferenceID
	next.SubjectID = cur.SubjectID
	next.CreatedAt = cur.CreatedAt
	s.docs[doc.ID] = next
	return nil
}

// ListByTenant возвращает записи tenant'а, новые первыми.
func (s *Store) ListByTenant(_ context.Context, tenantID string, filter repo.DocumentFilter) ([]domain.IssuanceRecord, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	var docs []domain.IssuanceRecord
	for _, doc := range s.docs {
		if doc.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		docs = append(docs, *doc.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID.String() < docs[j].ID.String()
	})

	return page(docs, filter.Offset, filter.Limit), nil
}

// ListStale возвращает записи PROCESSING, не обновлявшиеся с before.
func (s *Store) ListStale(_ context.Context, before time.Time, limit int) ([]domain.IssuanceRecord, error) {
	s.mu.RLock()
	var docs []domain.IssuanceRecord
	for _, doc := range s.docs {
		if doc.Status == domain.DocumentStatusProcessing && doc.UpdatedAt.Before(before) {
			docs = append(docs, *doc.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.Before(docs[j].UpdatedAt)
	})

	return page(docs, 0, limit), nil
}

func page(docs []domain.IssuanceRecord, offset, limit int) []domain.IssuanceRecord {
	if offset >= len(docs) {
		return []domain.IssuanceRecord{}
	}
	docs = docs[offset:]
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}
