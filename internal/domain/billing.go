package domain

import "time"

// Billable — начисление (счёт к оплате), которое подтверждает документ.
// Принадлежит CRUD-части платформы; pipeline только читает его.
type Billable struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	SubjectID   string    `json:"subject_id,omitempty"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	ServiceDate time.Time `json:"service_date"`
}

// Subject — получатель документа.
type Subject struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	TaxID    string `json:"tax_id"`
	Email    string `json:"email,omitempty"`
}
