package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/render"
	"github.com/shaiso/fiscaldoc/internal/repo"
)

// IssueDocument запрашивает выпуск документа для счёта.
// POST /api/v1/tenants/{tenant}/documents
//
// Возвращает 202 и запись: обычно в PROCESSING, при недоступном брокере
// уже с результатом синхронной попытки.
func (h *Handler) IssueDocument(w http.ResponseWriter, r *http.Request) {
	var req IssueDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	doc, err := h.orch.RequestIssuance(r.Context(), r.PathValue("tenant"), req.BillableReferenceID, req.SubjectID)
	if HandleError(w, h.logger, err, "document not found") {
		return
	}

	Accepted(w, DocumentFromDomain(*doc, false))
}

// ListDocuments возвращает документы tenant'а, новые первыми.
// GET /api/v1/tenants/{tenant}/documents?status=...&limit=...&offset=...
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.DocumentFilter{
		Status: domain.ParseDocumentStatus(q.Get("status")),
		Limit:  parseInt(q.Get("limit"), 50),
		Offset: parseInt(q.Get("offset"), 0),
	}

	docs, err := h.orch.ListDocuments(r.Context(), r.PathValue("tenant"), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]DocumentResponse, len(docs))
	for i, doc := range docs {
		result[i] = DocumentFromDomain(doc, false)
	}

	List(w, result, len(result))
}

// GetDocument возвращает документ.
// GET /api/v1/tenants/{tenant}/documents/{id}
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.orch.GetDocument(r.Context(), r.PathValue("tenant"), id)
	if HandleError(w, h.logger, err, "document not found") {
		return
	}

	Success(w, DocumentFromDomain(*doc, true))
}

// RetryDocument отправляет FAILED документ на новую попытку.
// POST /api/v1/tenants/{tenant}/documents/{id}/retry
func (h *Handler) RetryDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.orch.RetryIssuance(r.Context(), r.PathValue("tenant"), id)
	if HandleError(w, h.logger, err, "document not found") {
		return
	}

	Accepted(w, DocumentFromDomain(*doc, false))
}

// CancelDocument отменяет выпущенный документ.
// POST /api/v1/tenants/{tenant}/documents/{id}/cancel
func (h *Handler) CancelDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	var req CancelDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	doc, err := h.orch.CancelDocument(r.Context(), r.PathValue("tenant"), id, req.Reason)
	if HandleError(w, h.logger, err, "document not found") {
		return
	}

	Success(w, DocumentFromDomain(*doc, false))
}

// VerifyDocument сверяет документ с провайдером.
// GET /api/v1/tenants/{tenant}/documents/{id}/verify
func (h *Handler) VerifyDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	tenant := r.PathValue("tenant")

	res, err := h.orch.VerifyDocument(r.Context(), tenant, id)
	if HandleError(w, h.logger, err, "document not found") {
		return
	}

	doc, err := h.orch.GetDocument(r.Context(), tenant, id)
	if HandleError(w, h.logger, err, "document not found") {
		return
	}

	Success(w, VerifyFromResult(*doc, res))
}

// DocumentPDF отдаёт печатную форму документа.
// GET /api/v1/tenants/{tenant}/documents/{id}/pdf
func (h *Handler) DocumentPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	doc, err := h.orch.GetDocument(ctx, r.PathValue("tenant"), id)
	if HandleError(w, h.logger, err, "document not found") {
		return
	}

	data := render.Document{Record: doc}
	if h.directory != nil {
		// справочник дополняет форму, но не обязателен
		if b, err := h.directory.GetBillable(ctx, doc.TenantID, doc.BillableReferenceID); err == nil {
			data.Billable = b
		}
		if s, err := h.directory.GetSubject(ctx, doc.TenantID, doc.SubjectID); err == nil {
			data.Subject = s
		}
	}

	pdf, err := h.renderer.Render(ctx, data)
	if HandleError(w, h.logger, err, "document not found") {
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+domain.Deref(doc.DocumentNumber)+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// QueueHealth возвращает состояние очереди.
// GET /api/v1/queue/health
//
// 200 со счётчиками или 503 с {"available": false}.
func (h *Handler) QueueHealth(w http.ResponseWriter, r *http.Request) {
	health := h.orch.QueueHealth(r.Context())
	if !health.Available {
		JSON(w, http.StatusServiceUnavailable, DataResponse{Data: health})
		return
	}
	Success(w, health)
}

// documentID парсит {id} из пути; при ошибке отвечает 400.
func documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid document id")
		return uuid.Nil, false
	}
	return id, true
}

// parseInt возвращает defaultVal для пустой или невалидной строки.
func parseInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}
