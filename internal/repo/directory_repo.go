package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/fiscaldoc/internal/domain"
)

// DirectoryRepo читает счета и получателей из таблиц CRUD-части.
type DirectoryRepo struct {
	pool *pgxpool.Pool
}

// NewDirectoryRepo создаёт DirectoryRepo.
func NewDirectoryRepo(pool *pgxpool.Pool) *DirectoryRepo {
	return &DirectoryRepo{pool: pool}
}

// GetBillable возвращает счёт tenant'а.
func (r *DirectoryRepo) GetBillable(ctx context.Context, tenantID, id string) (*domain.Billable, error) {
	query := `
		SELECT id, tenant_id, subject_id, description, amount_cents, service_date
		FROM billables
		WHERE tenant_id = $1 AND id = $2
	`
	var b domain.Billable
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&b.ID,
		&b.TenantID,
		&b.SubjectID,
		&b.Description,
		&b.AmountCents,
		&b.ServiceDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get billable: %w", err)
	}
	return &b, nil
}

// GetSubject возвращает получателя tenant'а.
func (r *DirectoryRepo) GetSubject(ctx context.Context, tenantID, id string) (*domain.Subject, error) {
	query := `
		SELECT id, tenant_id, name, tax_id, COALESCE(email, '')
		FROM subjects
		WHERE tenant_id = $1 AND id = $2
	`
	var s domain.Subject
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&s.ID,
		&s.TenantID,
		&s.Name,
		&s.TaxID,
		&s.Email,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return &s, nil
}

// SaveBillable создаёт или обновляет счёт.
func (r *DirectoryRepo) SaveBillable(ctx context.Context, b *domain.Billable) error {
	query := `
		INSERT INTO billables (id, tenant_id, subject_id, description, amount_cents, service_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET subject_id = EXCLUDED.subject_id,
			description = EXCLUDED.description,
			amount_cents = EXCLUDED.amount_cents,
			service_date = EXCLUDED.service_date
	`
	_, err := r.pool.Exec(ctx, query, b.ID, b.TenantID, b.SubjectID, b.Description, b.AmountCents, b.ServiceDate)
	if err != nil {
		return fmt.Errorf("save billable: %w", err)
	}
	return nil
}

// SaveSubject создаёт или обновляет получателя.
func (r *DirectoryRepo) SaveSubject(ctx context.Context, s *domain.Subject) error {
	query := `
		INSERT INTO subjects (id, tenant_id, name, tax_id, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET name = EXCLUDED.name,
			tax_id = EXCLUDED.tax_id,
			email = EXCLUDED.email
	`
	_, err := r.pool.Exec(ctx, query, s.ID, s.TenantID, s.Name, s.TaxID, nullString(s.Email))
	if err != nil {
		return fmt.Errorf("save subject: %w", err)
	}
	return nil
}
