package provider

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func validRequest() Request {
	return Request{
		TenantID:           "t1",
		Reference:          "doc-1",
		SubjectName:        "Maria Silva",
		SubjectTaxID:       "12345678909",
		ServiceDescription: "Consulta clínica",
		AmountCents:        25000,
		IssueDate:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

// --- Request ---

func TestRequest_Validate(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := validRequest()
	req.SubjectTaxID = ""
	req.SubjectName = ""
	err := req.Validate()
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if !strings.Contains(err.Error(), "subject_name, subject_tax_id") {
		t.Errorf("error should list missing fields, got %q", err)
	}

	req = validRequest()
	req.AmountCents = 0
	if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for zero amount, got %v", err)
	}
}

func TestResult_Failure(t *testing.T) {
	var nilResult *Result
	if nilResult.Failure() == "" {
		t.Error("nil result should have failure message")
	}
	if (&Result{Success: true}).Failure() != "" {
		t.Error("success should have no failure message")
	}
	if (&Result{}).Failure() != "provider rejected request" {
		t.Error("empty failure should get default message")
	}
	if (&Result{ErrorMessage: "bad tax id"}).Failure() != "bad tax id" {
		t.Error("failure should return provider message")
	}
}

func TestResult_Issued(t *testing.T) {
	var nilResult *Result
	tests := []struct {
		name string
		res  *Result
		want bool
	}{
		{"nil", nilResult, false},
		{"rejected", &Result{DocumentNumber: "1", Protocol: "p"}, false},
		{"no number", &Result{Success: true, Protocol: "p"}, false},
		{"no protocol", &Result{Success: true, DocumentNumber: "1"}, false},
		{"complete", &Result{Success: true, DocumentNumber: "1", Protocol: "p"}, true},
	}
	for _, tt := range tests {
		if got := tt.res.Issued(); got != tt.want {
			t.Errorf("%s: Issued() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// --- MockProvider ---

func TestMockProvider_AlwaysSucceed(t *testing.T) {
	p := AlwaysSucceed()

	for i := 0; i < 20; i++ {
		res, err := p.Issue(context.Background(), validRequest())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Success {
			t.Fatalf("expected success, got %q", res.ErrorMessage)
		}
		if !strings.HasPrefix(res.DocumentNumber, "NFS-") {
			t.Errorf("unexpected document number %q", res.DocumentNumber)
		}
		if res.Protocol == "" || res.RawDocumentBody == "" {
			t.Error("protocol and body should be synthesised")
		}
	}
	if p.Calls() != 20 {
		t.Errorf("expected 20 calls, got %d", p.Calls())
	}
}

func TestMockProvider_DocumentBodyIsEscaped(t *testing.T) {
	req := validRequest()
	req.SubjectName = "Silva & Filhos <Ltda>"
	req.ServiceDescription = `Consulta "retorno" </discriminacao>`

	res, err := AlwaysSucceed().Issue(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Number  string `xml:"numero"`
		Name    string `xml:"tomador>nome"`
		Service string `xml:"servico>discriminacao"`
	}
	if err := xml.Unmarshal([]byte(res.RawDocumentBody), &body); err != nil {
		t.Fatalf("document body is not well-formed XML: %v\n%s", err, res.RawDocumentBody)
	}
	if body.Name != req.SubjectName || body.Service != req.ServiceDescription {
		t.Errorf("unexpected parsed body %+v", body)
	}
	if body.Number != res.DocumentNumber {
		t.Errorf("expected number %q, got %q", res.DocumentNumber, body.Number)
	}
}

func TestMockProvider_AlwaysFail(t *testing.T) {
	p := AlwaysFail("invalid tax id")

	res, err := p.Issue(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("business failure should not be an error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorMessage != "invalid tax id" {
		t.Errorf("unexpected message %q", res.ErrorMessage)
	}
}

func TestMockProvider_SetSuccessRate(t *testing.T) {
	p := AlwaysFail("down")

	res, _ := p.Issue(context.Background(), validRequest())
	if res.Success {
		t.Fatal("expected failure before switch")
	}

	p.SetSuccessRate(1)
	res, _ = p.Issue(context.Background(), validRequest())
	if !res.Success {
		t.Fatal("expected success after switch")
	}
}

func TestMockProvider_SuccessRateIsApproximated(t *testing.T) {
	p := NewMock(MockConfig{SuccessRate: 0.5, Seed: 42})

	var ok int
	for i := 0; i < 1000; i++ {
		res, _ := p.Issue(context.Background(), validRequest())
		if res.Success {
			ok++
		}
	}
	if ok < 400 || ok > 600 {
		t.Errorf("expected ~500 successes, got %d", ok)
	}
}

func TestMockProvider_InvalidRequest(t *testing.T) {
	p := AlwaysSucceed()
	req := validRequest()
	req.SubjectTaxID = ""

	res, err := p.Issue(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("invalid request must fail")
	}
	if !strings.Contains(res.ErrorMessage, "subject_tax_id") {
		t.Errorf("unexpected message %q", res.ErrorMessage)
	}
}

func TestMockProvider_CancelAndQuery(t *testing.T) {
	p := AlwaysSucceed()
	ctx := context.Background()

	issued, _ := p.Issue(ctx, validRequest())

	res, err := p.Query(ctx, issued.DocumentNumber)
	if err != nil || !res.Success {
		t.Fatalf("query should find issued document: %v %+v", err, res)
	}
	if res.Protocol != issued.Protocol {
		t.Error("query should return issued protocol")
	}

	res, err = p.Cancel(ctx, issued.DocumentNumber, "duplicate")
	if err != nil || !res.Success {
		t.Fatalf("cancel should succeed: %v %+v", err, res)
	}

	res, _ = p.Query(ctx, issued.DocumentNumber)
	if res.Success {
		t.Error("cancelled document should not be found")
	}

	res, _ = p.Cancel(ctx, "NFS-unknown", "x")
	if res.Success {
		t.Error("cancel of unknown document should fail")
	}
}

func TestMockProvider_LatencyRespectsContext(t *testing.T) {
	p := NewMock(MockConfig{SuccessRate: 1, Latency: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Issue(ctx, validRequest())
	if !errors.Is(err, ErrRequest) {
		t.Fatalf("expected ErrRequest on timeout, got %v", err)
	}
}

// --- HTTPProvider ---

func TestHTTPProvider_Issue_Success(t *testing.T) {
	var received Request
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/documents" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(Result{
			Success:        true,
			DocumentNumber: "2026-000123",
			Protocol:       "PRT-1",
			ArtifactURL:    "https://nfse.example/2026-000123.pdf",
		})
	}))
	defer server.Close()

	p, err := NewHTTP(HTTPConfig{BaseURL: server.URL + "/", Token: "secret"})
	if err != nil {
		t.Fatalf("new http provider: %v", err)
	}

	res, err := p.Issue(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.DocumentNumber != "2026-000123" || res.Protocol != "PRT-1" {
		t.Errorf("unexpected result %+v", res)
	}
	if auth != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", auth)
	}
	if received.SubjectTaxID != "12345678909" || received.AmountCents != 25000 {
		t.Errorf("gateway should receive request, got %+v", received)
	}
}

func TestHTTPProvider_ErrorStatusIsBusinessFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error_message": "CPF do tomador inválido"}`))
	}))
	defer server.Close()

	p, _ := NewHTTP(HTTPConfig{BaseURL: server.URL})

	res, err := p.Issue(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("HTTP errors should not be infrastructure errors: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorMessage != "HTTP 422: CPF do tomador inválido" {
		t.Errorf("unexpected message %q", res.ErrorMessage)
	}
}

func TestHTTPProvider_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, _ := NewHTTP(HTTPConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})

	_, err := p.Issue(context.Background(), validRequest())
	if !errors.Is(err, ErrRequest) {
		t.Fatalf("expected ErrRequest for timeout, got %v", err)
	}
}

func TestHTTPProvider_OversizedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success": true, "document_number": "1", "protocol": "p", "raw_document_body": "`))
		w.Write([]byte(strings.Repeat("x", 2*maxResponseBytes)))
		w.Write([]byte(`"}`))
	}))
	defer server.Close()

	p, _ := NewHTTP(HTTPConfig{BaseURL: server.URL})

	res, err := p.Issue(context.Background(), validRequest())
	if !errors.Is(err, ErrRequest) {
		t.Fatalf("expected ErrRequest for oversized response, got %v (result %v)", err, res != nil)
	}
	if !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestHTTPProvider_CancelAndQueryPaths(t *testing.T) {
	var paths []string
	var reason string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPost {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			reason = body["reason"]
		}
		json.NewEncoder(w).Encode(Result{Success: true, DocumentNumber: "N-1"})
	}))
	defer server.Close()

	p, _ := NewHTTP(HTTPConfig{BaseURL: server.URL})

	if _, err := p.Cancel(context.Background(), "N-1", "typo"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := p.Query(context.Background(), "N-1"); err != nil {
		t.Fatalf("query: %v", err)
	}

	if len(paths) != 2 || paths[0] != "POST /documents/N-1/cancel" || paths[1] != "GET /documents/N-1" {
		t.Errorf("unexpected paths %v", paths)
	}
	if reason != "typo" {
		t.Errorf("expected reason in body, got %q", reason)
	}
}

func TestNewHTTP_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTP(HTTPConfig{}); !errors.Is(err, ErrRequest) {
		t.Errorf("expected ErrRequest, got %v", err)
	}
}

// --- Registry ---

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("b", AlwaysSucceed())
	r.Register("a", AlwaysFail("x"))

	if _, err := r.Get("a"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
	if names := r.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestFromSettings(t *testing.T) {
	p, err := FromSettings(Settings{})
	if err != nil {
		t.Fatalf("default settings: %v", err)
	}
	if _, ok := p.(*MockProvider); !ok {
		t.Errorf("default provider should be mock, got %T", p)
	}

	p, err = FromSettings(Settings{Name: NameHTTP, URL: "http://gateway.local"})
	if err != nil {
		t.Fatalf("http settings: %v", err)
	}
	if _, ok := p.(*HTTPProvider); !ok {
		t.Errorf("expected http provider, got %T", p)
	}

	if _, err := FromSettings(Settings{Name: NameHTTP}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("http without url should be unknown, got %v", err)
	}
}

func TestFromSettings_MockRate(t *testing.T) {
	tests := []struct {
		rate        float64
		wantSuccess bool
	}{
		{0, false},
		{1, true},
	}

	for _, tt := range tests {
		p, err := FromSettings(Settings{MockSuccessRate: tt.rate})
		if err != nil {
			t.Fatalf("rate %v: %v", tt.rate, err)
		}

		for i := range 20 {
			req := validRequest()
			req.Reference = fmt.Sprintf("doc-%d", i)
			res, err := p.Issue(context.Background(), req)
			if err != nil {
				t.Fatalf("rate %v: issue: %v", tt.rate, err)
			}
			if res.Success != tt.wantSuccess {
				t.Fatalf("rate %v: call %d success = %v, want %v", tt.rate, i, res.Success, tt.wantSuccess)
			}
		}
	}
}
