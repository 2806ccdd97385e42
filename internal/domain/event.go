package domain

import (
	"time"

	"github.com/google/uuid"
)

// Типы событий жизненного цикла документа.
const (
	EventDocumentIssued    = "document.issued"
	EventDocumentFailed    = "document.failed"
	EventDocumentCancelled = "document.cancelled"
)

// DocumentEvent — событие о смене статуса документа для внешних подписчиков.
type DocumentEvent struct {
	Type           string         `json:"type"`
	DocumentID     uuid.UUID      `json:"document_id"`
	TenantID       string         `json:"tenant_id"`
	Status         DocumentStatus `json:"status"`
	DocumentNumber string         `json:"document_number,omitempty"`
	Error          string         `json:"error,omitempty"`
	RetryCount     int            `json:"retry_count"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// NewDocumentEvent строит событие по текущему состоянию записи.
func NewDocumentEvent(eventType string, d *IssuanceRecord) DocumentEvent {
	return DocumentEvent{
		Type:           eventType,
		DocumentID:     d.ID,
		TenantID:       d.TenantID,
		Status:         d.Status,
		DocumentNumber: Deref(d.DocumentNumber),
		Error:          Deref(d.LastError),
		RetryCount:     d.RetryCount,
		OccurredAt:     time.Now().UTC(),
	}
}
