package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider — внешний выпуск фискальных документов.
type Provider interface {
	// Issue выпускает документ.
	Issue(ctx context.Context, req Request) (*Result, error)

	// Cancel отменяет ранее выпущенный документ.
	Cancel(ctx context.Context, documentNumber, reason string) (*Result, error)

	// Query запрашивает текущее состояние документа у провайдера.
	Query(ctx context.Context, documentNumber string) (*Result, error)
}

// Request — данные для выпуска документа.
type Request struct {
	// TenantID — клиника-эмитент.
	TenantID string `json:"tenant_id"`

	// Reference — внутренний идентификатор документа (для трассировки у провайдера).
	Reference string `json:"reference,omitempty"`

	SubjectName        string    `json:"subject_name"`
	SubjectTaxID       string    `json:"subject_tax_id"`
	ServiceDescription string    `json:"service_description"`
	AmountCents        int64     `json:"amount_cents"`
	IssueDate          time.Time `json:"issue_date"`
}

// Validate проверяет обязательные поля.
func (r Request) Validate() error {
	var missing []string
	if r.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if r.SubjectName == "" {
		missing = append(missing, "subject_name")
	}
	if r.SubjectTaxID == "" {
		missing = append(missing, "subject_tax_id")
	}
	if r.ServiceDescription == "" {
		missing = append(missing, "service_description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if r.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return nil
}

// Result — ответ провайдера.
type Result struct {
	Success         bool   `json:"success"`
	DocumentNumber  string `json:"document_number,omitempty"`
	Protocol        string `json:"protocol,omitempty"`
	RawDocumentBody string `json:"raw_document_body,omitempty"`
	ArtifactURL     string `json:"artifact_url,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Issued сообщает, что выпуск состоялся: успех вместе с номером и протоколом.
func (r *Result) Issued() bool {
	return r != nil && r.Success && r.DocumentNumber != "" && r.Protocol != ""
}

// Failure возвращает сообщение ошибки для неуспешного результата.
func (r *Result) Failure() string {
	if r == nil {
		return "provider returned empty result"
	}
	if r.Success {
		return ""
	}
	if r.ErrorMessage == "" {
		return "provider rejected request"
	}
	return r.ErrorMessage
}
