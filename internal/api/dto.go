package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/provider"
)

// Document DTOs

// IssueDocumentRequest — запрос на выпуск документа.
type IssueDocumentRequest struct {
	BillableReferenceID string `json:"billable_reference_id"`
	SubjectID           string `json:"subject_id"`
}

// CancelDocumentRequest — запрос на отмену документа.
type CancelDocumentRequest struct {
	Reason string `json:"reason"`
}

// DocumentResponse — ответ с документом.
type DocumentResponse struct {
	ID                  uuid.UUID  `json:"id"`
	TenantID            string     `json:"tenant_id"`
	BillableReferenceID string     `json:"billable_reference_id"`
	SubjectID           string     `json:"subject_id"`
	Status              string     `json:"status"`
	DocumentNumber      *string    `json:"document_number"`
	Protocol            *string    `json:"protocol"`
	ArtifactURL         *string    `json:"artifact_url"`
	RawDocumentBody     *string    `json:"raw_document_body,omitempty"`
	RetryCount          int        `json:"retry_count"`
	LastError           *string    `json:"last_error"`
	CancelReason        *string    `json:"cancel_reason,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// DocumentFromDomain конвертирует domain.IssuanceRecord в DocumentResponse.
// Тело документа включается только при withBody.
func DocumentFromDomain(d domain.IssuanceRecord, withBody bool) DocumentResponse {
	resp := DocumentResponse{
		ID:                  d.ID,
		TenantID:            d.TenantID,
		BillableReferenceID: d.BillableReferenceID,
		SubjectID:           d.SubjectID,
		Status:              string(d.Status),
		DocumentNumber:      d.DocumentNumber,
		Protocol:            d.Protocol,
		ArtifactURL:         d.ArtifactURL,
		RetryCount:          d.RetryCount,
		LastError:           d.LastError,
		CancelReason:        d.CancelReason,
		CancelledAt:         d.CancelledAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	if withBody {
		resp.RawDocumentBody = d.RawDocumentBody
	}
	return resp
}

// VerifyResponse — состояние документа у провайдера.
type VerifyResponse struct {
	DocumentNumber string `json:"document_number"`
	Protocol       string `json:"protocol,omitempty"`
	ArtifactURL    string `json:"artifact_url,omitempty"`
	Matches        bool   `json:"matches"`
}

// VerifyFromResult сравнивает ответ провайдера с сохранённой записью.
func VerifyFromResult(d domain.IssuanceRecord, res *provider.Result) VerifyResponse {
	number := res.DocumentNumber
	if number == "" {
		number = domain.Deref(d.DocumentNumber)
	}
	return VerifyResponse{
		DocumentNumber: number,
		Protocol:       res.Protocol,
		ArtifactURL:    res.ArtifactURL,
		Matches:        res.Protocol == "" || res.Protocol == domain.Deref(d.Protocol),
	}
}

// Directory DTOs

// BillableRequest — запрос на сохранение счёта.
type BillableRequest struct {
	SubjectID   string    `json:"subject_id,omitempty"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	ServiceDate time.Time `json:"service_date"`
}

// SubjectRequest — запрос на сохранение получателя.
type SubjectRequest struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
	Email string `json:"email,omitempty"`
}
