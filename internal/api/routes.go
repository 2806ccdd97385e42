package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Documents
	mux.Handle("POST /api/v1/tenants/{tenant}/documents", chain(http.HandlerFunc(h.IssueDocument)))
	mux.Handle("GET /api/v1/tenants/{tenant}/documents", chain(http.HandlerFunc(h.ListDocuments)))
	mux.Handle("GET /api/v1/tenants/{tenant}/documents/{id}", chain(http.HandlerFunc(h.GetDocument)))
	mux.Handle("POST /api/v1/tenants/{tenant}/documents/{id}/retry", chain(http.HandlerFunc(h.RetryDocument)))
	mux.Handle("POST /api/v1/tenants/{tenant}/documents/{id}/cancel", chain(http.HandlerFunc(h.CancelDocument)))
	mux.Handle("GET /api/v1/tenants/{tenant}/documents/{id}/verify", chain(http.HandlerFunc(h.VerifyDocument)))
	mux.Handle("GET /api/v1/tenants/{tenant}/documents/{id}/pdf", chain(http.HandlerFunc(h.DocumentPDF)))

	// Directory
	mux.Handle("PUT /api/v1/tenants/{tenant}/billables/{id}", chain(http.HandlerFunc(h.PutBillable)))
	mux.Handle("GET /api/v1/tenants/{tenant}/billables/{id}", chain(http.HandlerFunc(h.GetBillable)))
	mux.Handle("PUT /api/v1/tenants/{tenant}/subjects/{id}", chain(http.HandlerFunc(h.PutSubject)))
	mux.Handle("GET /api/v1/tenants/{tenant}/subjects/{id}", chain(http.HandlerFunc(h.GetSubject)))

	// Queue
	mux.Handle("GET /api/v1/queue/health", chain(http.HandlerFunc(h.QueueHealth)))
}
