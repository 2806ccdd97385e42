package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/fiscaldoc/internal/domain"
)

// DocumentRepo — репозиторий записей выпуска в PostgreSQL.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

// NewDocumentRepo создаёт DocumentRepo.
func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

const documentColumns = `
	id, tenant_id, billable_reference_id, subject_id,
	document_number, raw_document_body, artifact_url, protocol,
	status, retry_count, last_error, cancel_reason, cancelled_at,
	created_at, updated_at`

// Create создаёт запись.
func (r *DocumentRepo) Create(ctx context.Context, doc *domain.IssuanceRecord) error {
	query := `
		INSERT INTO issuance_records (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.pool.Exec(ctx, query,
		doc.ID,
		doc.TenantID,
		doc.BillableReferenceID,
		doc.SubjectID,
		doc.DocumentNumber,
		doc.RawDocumentBody,
		doc.ArtifactURL,
		doc.Protocol,
		doc.Status,
		doc.RetryCount,
		doc.LastError,
		doc.CancelReason,
		doc.CancelledAt,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert issuance record: %w", err)
	}
	return nil
}

// GetByID возвращает запись по ID.
func (r *DocumentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.IssuanceRecord, error) {
	query := `SELECT ` + documentColumns + ` FROM issuance_records WHERE id = $1`
	return scanDocument(r.pool.QueryRow(ctx, query, id))
}

// GetForTenant возвращает запись tenant'а. Чужая запись — ErrNotFound.
func (r *DocumentRepo) GetForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*domain.IssuanceRecord, error) {
	query := `SELECT ` + documentColumns + ` FROM issuance_records WHERE id = $1 AND tenant_id = $2`
	return scanDocument(r.pool.QueryRow(ctx, query, id, tenantID))
}

// GetByBillable возвращает запись для счёта.
func (r *DocumentRepo) GetByBillable(ctx context.Context, tenantID, billableID string) (*domain.IssuanceRecord, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM issuance_records
		WHERE tenant_id = $1 AND billable_reference_id = $2
	`
	return scanDocument(r.pool.QueryRow(ctx, query, tenantID, billableID))
}

// Update перезаписывает изменяемые поля.
func (r *DocumentRepo) Update(ctx context.Context, doc *domain.IssuanceRecord) error {
	query := `
		UPDATE issuance_records
		SET document_number = $2,
			raw_document_body = $3,
			artifact_url = $4,
			protocol = $5,
			status = $6,
			retry_count = $7,
			last_error = $8,
			cancel_reason = $9,
			cancelled_at = $10,
			updated_at = $11
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		doc.ID,
		doc.DocumentNumber,
		doc.RawDocumentBody,
		doc.ArtifactURL,
		doc.Protocol,
		doc.Status,
		doc.RetryCount,
		doc.LastError,
		doc.CancelReason,
		doc.CancelledAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update issuance record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTenant возвращает записи tenant'а, новые первыми.
func (r *DocumentRepo) ListByTenant(ctx context.Context, tenantID string, filter DocumentFilter) ([]domain.IssuanceRecord, error) {
	filter = filter.Normalize()
	query := `
		SELECT ` + documentColumns + `
		FROM issuance_records
		WHERE tenant_id = $1
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		tenantID,
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list issuance records: %w", err)
	}
	return scanDocuments(rows)
}

// ListStale возвращает зависшие в PROCESSING записи, старые первыми.
func (r *DocumentRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.IssuanceRecord, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM issuance_records
		WHERE status = 'PROCESSING' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale issuance records: %w", err)
	}
	return scanDocuments(rows)
}

// --- Helpers ---

func scanDocument(row pgx.Row) (*domain.IssuanceRecord, error) {
	var doc domain.IssuanceRecord
	err := row.Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.BillableReferenceID,
		&doc.SubjectID,
		&doc.DocumentNumber,
		&doc.RawDocumentBody,
		&doc.ArtifactURL,
		&doc.Protocol,
		&doc.Status,
		&doc.RetryCount,
		&doc.LastError,
		&doc.CancelReason,
		&doc.CancelledAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan issuance record: %w", err)
	}
	return &doc, nil
}

func scanDocuments(rows pgx.Rows) ([]domain.IssuanceRecord, error) {
	defer rows.Close()

	docs := []domain.IssuanceRecord{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// nullString возвращает nil для пустой строки (NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isUniqueViolation — нарушение уникального ограничения (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
