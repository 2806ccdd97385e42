package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shaiso/fiscaldoc/internal/domain"
)

// PutBillable создаёт или обновляет счёт tenant'а.
// PUT /api/v1/tenants/{tenant}/billables/{id}
func (h *Handler) PutBillable(w http.ResponseWriter, r *http.Request) {
	var req BillableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		BadRequest(w, "description is required")
		return
	}
	if req.AmountCents <= 0 {
		BadRequest(w, "amount_cents must be positive")
		return
	}

	b := &domain.Billable{
		ID:          r.PathValue("id"),
		TenantID:    r.PathValue("tenant"),
		SubjectID:   req.SubjectID,
		Description: req.Description,
		AmountCents: req.AmountCents,
		ServiceDate: req.ServiceDate,
	}
	if err := h.directory.SaveBillable(r.Context(), b); HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, b)
}

// GetBillable возвращает счёт tenant'а.
// GET /api/v1/tenants/{tenant}/billables/{id}
func (h *Handler) GetBillable(w http.ResponseWriter, r *http.Request) {
	b, err := h.directory.GetBillable(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if HandleError(w, h.logger, err, "billable not found") {
		return
	}
	Success(w, b)
}

// PutSubject создаёт или обновляет получателя tenant'а.
// PUT /api/v1/tenants/{tenant}/subjects/{id}
func (h *Handler) PutSubject(w http.ResponseWriter, r *http.Request) {
	var req SubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.TaxID) == "" {
		BadRequest(w, "name and tax_id are required")
		return
	}

	s := &domain.Subject{
		ID:       r.PathValue("id"),
		TenantID: r.PathValue("tenant"),
		Name:     req.Name,
		TaxID:    req.TaxID,
		Email:    req.Email,
	}
	if err := h.directory.SaveSubject(r.Context(), s); HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, s)
}

// GetSubject возвращает получателя tenant'а.
// GET /api/v1/tenants/{tenant}/subjects/{id}
func (h *Handler) GetSubject(w http.ResponseWriter, r *http.Request) {
	s, err := h.directory.GetSubject(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if HandleError(w, h.logger, err, "subject not found") {
		return
	}
	Success(w, s)
}
