package domain

import (
	"time"

	"github.com/google/uuid"
)

// IssuanceRecord — одна линия выпуска фискального документа
// для конкретного счёта (billable) в рамках tenant.
//
// Запись создаётся Orchestrator'ом сразу в статусе PROCESSING и
// изменяется только Worker'ом (или fallback-путём Orchestrator'а,
// который выполняет тот же обработчик синхронно). Записи не удаляются.
type IssuanceRecord struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// TenantID — клиника-владелец документа.
	TenantID string `json:"tenant_id"`

	// BillableReferenceID — счёт/начисление, которое подтверждает документ.
	BillableReferenceID string `json:"billable_reference_id"`

	// SubjectID — получатель документа (пациент или плательщик).
	SubjectID string `json:"subject_id"`

	// Результат выпуска — nil до ISSUED.
	DocumentNumber  *string `json:"document_number,omitempty"`
	RawDocumentBody *string `json:"raw_document_body,omitempty"`
	ArtifactURL     *string `json:"artifact_url,omitempty"`
	Protocol        *string `json:"protocol,omitempty"`

	// Status — текущий статус.
	Status DocumentStatus `json:"status"`

	// RetryCount — количество неудачных попыток. Только растёт.
	RetryCount int `json:"retry_count"`

	// LastError — сообщение последней ошибки.
	// Очищается только успешной попыткой.
	LastError *string `json:"last_error,omitempty"`

	// CancelReason и CancelledAt заполняются при явной отмене.
	CancelReason *string    `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewIssuanceRecord создаёт запись в статусе PROCESSING.
func NewIssuanceRecord(tenantID, billableReferenceID, subjectID string) *IssuanceRecord {
	now := time.Now().UTC()
	return &IssuanceRecord{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		BillableReferenceID: billableReferenceID,
		SubjectID:           subjectID,
		Status:              DocumentStatusProcessing,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// IssueResult — данные успешного выпуска, которые записываются в документ.
type IssueResult struct {
	DocumentNumber  string
	Protocol        string
	RawDocumentBody string
	ArtifactURL     string
}

// MarkIssued переводит запись в ISSUED.
// Ошибка прошлых попыток очищается.
func (d *IssuanceRecord) MarkIssued(res IssueResult) {
	d.Status = DocumentStatusIssued
	d.DocumentNumber = stringPtr(res.DocumentNumber)
	d.Protocol = stringPtr(res.Protocol)
	d.RawDocumentBody = optionalString(res.RawDocumentBody)
	d.ArtifactURL = optionalString(res.ArtifactURL)
	d.LastError = nil
	d.touch()
}

// MarkFailed переводит запись в FAILED и увеличивает RetryCount на 1.
func (d *IssuanceRecord) MarkFailed(errMsg string) {
	d.Status = DocumentStatusFailed
	d.LastError = stringPtr(errMsg)
	d.RetryCount++
	d.touch()
}

// MarkRetrying возвращает запись в PROCESSING для новой попытки.
// RetryCount и LastError не трогаются: их перезапишет следующая попытка.
func (d *IssuanceRecord) MarkRetrying() {
	d.Status = DocumentStatusProcessing
	d.touch()
}

// MarkCancelled переводит выпущенный документ в CANCELLED.
func (d *IssuanceRecord) MarkCancelled(reason string) {
	now := time.Now().UTC()
	d.Status = DocumentStatusCancelled
	d.CancelReason = stringPtr(reason)
	d.CancelledAt = &now
	d.UpdatedAt = now
}

// IsFinished возвращает true, если документ в терминальном статусе.
func (d *IssuanceRecord) IsFinished() bool {
	return d.Status.IsTerminal()
}

// Clone возвращает глубокую копию записи.
func (d *IssuanceRecord) Clone() *IssuanceRecord {
	c := *d
	c.DocumentNumber = clonePtr(d.DocumentNumber)
	c.RawDocumentBody = clonePtr(d.RawDocumentBody)
	c.ArtifactURL = clonePtr(d.ArtifactURL)
	c.Protocol = clonePtr(d.Protocol)
	c.LastError = clonePtr(d.LastError)
	c.CancelReason = clonePtr(d.CancelReason)
	if d.CancelledAt != nil {
		t := *d.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

func (d *IssuanceRecord) touch() {
	d.UpdatedAt = time.Now().UTC()
}

// Deref возвращает значение указателя или пустую строку.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringPtr(s string) *string {
	return &s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
