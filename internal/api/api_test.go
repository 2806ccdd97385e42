package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/orchestrator"
	"github.com/shaiso/fiscaldoc/internal/provider"
	"github.com/shaiso/fiscaldoc/internal/queue"
	"github.com/shaiso/fiscaldoc/internal/repo/memory"
	"github.com/shaiso/fiscaldoc/internal/worker"
)

type testServer struct {
	mux      *http.ServeMux
	broker   *queue.MemoryBroker
	provider *provider.MockProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.NewStore()
	directory := memory.NewDirectory()
	broker := queue.NewMemoryBroker(logger)
	t.Cleanup(broker.Close)
	p := provider.AlwaysSucceed()

	w := worker.New(worker.Config{
		Store:     store,
		Directory: directory,
		Provider:  p,
		Logger:    logger,
	})
	orch := orchestrator.New(orchestrator.Config{
		Store:    store,
		Broker:   broker,
		Execute:  w.Handle,
		Provider: p,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	NewHandler(Config{Orchestrator: orch, Directory: directory, Logger: logger}).RegisterRoutes(mux)

	return &testServer{mux: mux, broker: broker, provider: p}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

// seedDirectory сохраняет счёт и получателя через API.
func (s *testServer) seedDirectory(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPut, "/api/v1/tenants/t1/subjects/pat-1", SubjectRequest{Name: "Maria Silva", TaxID: "12345678909"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put subject: %d %s", rec.Code, rec.Body)
	}
	rec = s.do(t, http.MethodPut, "/api/v1/tenants/t1/billables/ar-1", BillableRequest{
		SubjectID:   "pat-1",
		Description: "Consulta clínica",
		AmountCents: 25000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put billable: %d %s", rec.Code, rec.Body)
	}
}

// issueInline выпускает документ синхронно (брокер выключен).
func (s *testServer) issueInline(t *testing.T) DocumentResponse {
	t.Helper()
	s.seedDirectory(t)
	s.broker.SetAvailable(false)
	defer s.broker.SetAvailable(true)

	rec := s.do(t, http.MethodPost, "/api/v1/tenants/t1/documents", IssueDocumentRequest{BillableReferenceID: "ar-1", SubjectID: "pat-1"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("issue: %d %s", rec.Code, rec.Body)
	}
	doc := decodeDocument(t, rec)
	if doc.Status != string(domain.DocumentStatusIssued) {
		t.Fatalf("expected ISSUED, got %s", doc.Status)
	}
	return doc
}

func decodeDocument(t *testing.T, rec *httptest.ResponseRecorder) DocumentResponse {
	t.Helper()
	var resp struct {
		Data DocumentResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return resp.Error
}

// --- Documents ---

func TestIssueDocument_Accepted(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/tenants/t1/documents", IssueDocumentRequest{BillableReferenceID: "ar-1", SubjectID: "pat-1"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	doc := decodeDocument(t, rec)
	if doc.Status != "PROCESSING" || doc.TenantID != "t1" || doc.BillableReferenceID != "ar-1" {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestIssueDocument_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/tenants/t1/documents", IssueDocumentRequest{SubjectID: "pat-1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrCodeBadRequest || !strings.Contains(e.Message, "billable_reference_id") {
		t.Errorf("unexpected error %+v", e)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/t1/documents", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestGetDocument(t *testing.T) {
	s := newTestServer(t)
	issued := s.issueInline(t)

	rec := s.do(t, http.MethodGet, "/api/v1/tenants/t1/documents/"+issued.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc := decodeDocument(t, rec)
	if doc.DocumentNumber == nil || doc.RawDocumentBody == nil {
		t.Error("show should include number and body")
	}

	rec = s.do(t, http.MethodGet, "/api/v1/tenants/t2/documents/"+issued.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("other tenant: expected 404, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/tenants/t1/documents/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
}

func TestListDocuments(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/tenants/t1/documents", IssueDocumentRequest{BillableReferenceID: "ar-1", SubjectID: "pat-1"})
	s.do(t, http.MethodPost, "/api/v1/tenants/t1/documents", IssueDocumentRequest{BillableReferenceID: "ar-2", SubjectID: "pat-1"})

	rec := s.do(t, http.MethodGet, "/api/v1/tenants/t1/documents?status=PROCESSING&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data  []DocumentResponse `json:"data"`
		Total int                `json:"total"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Total != 2 || len(resp.Data) != 2 {
		t.Errorf("expected 2 documents, got %d", resp.Total)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/tenants/t1/documents?status=DONE", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status: expected 400, got %d", rec.Code)
	}
}

func TestRetryDocument(t *testing.T) {
	s := newTestServer(t)
	issued := s.issueInline(t)

	rec := s.do(t, http.MethodPost, "/api/v1/tenants/t1/documents/"+issued.ID.String()+"/retry", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("retry of ISSUED: expected 409, got %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrCodeInvalidState {
		t.Errorf("unexpected error code %s", e.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/tenants/t1/documents/"+uuid.NewString()+"/retry", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown document: expected 404, got %d", rec.Code)
	}
}

func TestRetryDocument_Failed(t *testing.T) {
	s := newTestServer(t)
	s.seedDirectory(t)
	s.provider.SetSuccessRate(0)
	s.broker.SetAvailable(false)

	rec := s.do(t, http.MethodPost, "/api/v1/tenants/t1/documents", IssueDocumentRequest{BillableReferenceID: "ar-1", SubjectID: "pat-1"})
	failed := decodeDocument(t, rec)
	if failed.Status != "FAILED" || failed.RetryCount != 1 || failed.LastError == nil {
		t.Fatalf("expected FAILED attempt, got %+v", failed)
	}

	s.broker.SetAvailable(true)
	rec = s.do(t, http.MethodPost, "/api/v1/tenants/t1/documents/"+failed.ID.String()+"/retry", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	doc := decodeDocument(t, rec)
	if doc.Status != "PROCESSING" || doc.RetryCount != 1 {
		t.Errorf("expected PROCESSING with kept retry count, got %s/%d", doc.Status, doc.RetryCount)
	}
}

func TestCancelDocument(t *testing.T) {
	s := newTestServer(t)
	issued := s.issueInline(t)
	path := "/api/v1/tenants/t1/documents/" + issued.ID.String() + "/cancel"

	rec := s.do(t, http.MethodPost, path, CancelDocumentRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty reason: expected 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, path, CancelDocumentRequest{Reason: "duplicate"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if doc := decodeDocument(t, rec); doc.Status != "CANCELLED" || doc.CancelReason == nil {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestVerifyDocument(t *testing.T) {
	s := newTestServer(t)
	issued := s.issueInline(t)

	rec := s.do(t, http.MethodGet, "/api/v1/tenants/t1/documents/"+issued.ID.String()+"/verify", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Data VerifyResponse `json:"data"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Data.Matches || resp.Data.DocumentNumber != domain.Deref(issued.DocumentNumber) {
		t.Errorf("unexpected verify response %+v", resp.Data)
	}
}

func TestDocumentPDF(t *testing.T) {
	s := newTestServer(t)
	issued := s.issueInline(t)

	rec := s.do(t, http.MethodGet, "/api/v1/tenants/t1/documents/"+issued.ID.String()+"/pdf", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func TestDocumentPDF_NotIssued(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/tenants/t1/documents", IssueDocumentRequest{BillableReferenceID: "ar-1", SubjectID: "pat-1"})
	doc := decodeDocument(t, rec)

	rec = s.do(t, http.MethodGet, "/api/v1/tenants/t1/documents/"+doc.ID.String()+"/pdf", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

// --- Queue ---

func TestQueueHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/queue/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data orchestrator.Health `json:"data"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Data.Available {
		t.Error("expected available queue")
	}

	s.broker.SetAvailable(false)
	rec = s.do(t, http.MethodGet, "/api/v1/queue/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"available":false`) {
		t.Errorf("unexpected body %s", rec.Body)
	}
}

// --- Directory ---

func TestDirectory_PutAndGet(t *testing.T) {
	s := newTestServer(t)
	s.seedDirectory(t)

	rec := s.do(t, http.MethodGet, "/api/v1/tenants/t1/billables/ar-1", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Consulta") {
		t.Errorf("get billable: %d %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/tenants/t2/subjects/pat-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("other tenant subject: expected 404, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPut, "/api/v1/tenants/t1/billables/ar-2", BillableRequest{Description: "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero amount: expected 400, got %d", rec.Code)
	}
}

// --- Middleware ---

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
