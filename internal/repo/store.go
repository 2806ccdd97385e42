package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/fiscaldoc/internal/domain"
)

// DocumentStore — хранилище записей IssuanceRecord.
// Реализации: DocumentRepo (PostgreSQL) и memory.Store.
type DocumentStore interface {
	// Create сохраняет новую запись.
	// ErrAlreadyExists — для (tenant, billable) запись уже есть.
	Create(ctx context.Context, doc *domain.IssuanceRecord) error

	// GetByID возвращает запись по ID (ErrNotFound, если нет).
	GetByID(ctx context.Context, id uuid.UUID) (*domain.IssuanceRecord, error)

	// GetForTenant возвращает запись, только если она принадлежит tenant.
	GetForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*domain.IssuanceRecord, error)

	// GetByBillable возвращает запись для счёта tenant'а.
	GetByBillable(ctx context.Context, tenantID, billableID string) (*domain.IssuanceRecord, error)

	// Update перезаписывает изменяемые поля записи.
	Update(ctx context.Context, doc *domain.IssuanceRecord) error

	// ListByTenant возвращает записи tenant'а, новые первыми.
	ListByTenant(ctx context.Context, tenantID string, filter DocumentFilter) ([]domain.IssuanceRecord, error)

	// ListStale возвращает записи PROCESSING, не обновлявшиеся с before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.IssuanceRecord, error)
}

// Directory — чтение справочников, которыми владеет CRUD-часть платформы.
type Directory interface {
	GetBillable(ctx context.Context, tenantID, id string) (*domain.Billable, error)
	GetSubject(ctx context.Context, tenantID, id string) (*domain.Subject, error)
}

// DirectoryWriter — запись справочников (local-режим и административный API).
type DirectoryWriter interface {
	SaveBillable(ctx context.Context, b *domain.Billable) error
	SaveSubject(ctx context.Context, s *domain.Subject) error
}

// DocumentFilter — параметры выборки документов.
type DocumentFilter struct {
	Status domain.DocumentStatus
	Limit  int
	Offset int
}

// Normalize подставляет значения по умолчанию.
func (f DocumentFilter) Normalize() DocumentFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = 50
	case f.Limit > 500:
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
