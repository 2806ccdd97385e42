package render

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/fiscaldoc/internal/domain"
)

func issuedRecord() *domain.IssuanceRecord {
	doc := domain.NewIssuanceRecord("t1", "ar-1", "pat-1")
	doc.MarkIssued(domain.IssueResult{
		DocumentNumber: "NFS-20260301-000042",
		Protocol:       "PRT-1",
	})
	return doc
}

func TestPDFRenderer_Issued(t *testing.T) {
	r := NewPDFRenderer()

	out, err := r.Render(context.Background(), Document{
		Record: issuedRecord(),
		Billable: &domain.Billable{
			ID:          "ar-1",
			TenantID:    "t1",
			Description: "Consulta clínica",
			AmountCents: 25000,
			ServiceDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		Subject: &domain.Subject{ID: "pat-1", TenantID: "t1", Name: "Maria Silva", TaxID: "12345678909"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Errorf("output is not a PDF: %q", out[:min(len(out), 8)])
	}
}

func TestPDFRenderer_CancelledWithoutDirectory(t *testing.T) {
	doc := issuedRecord()
	doc.MarkCancelled("duplicate")

	out, err := NewPDFRenderer().Render(context.Background(), Document{Record: doc})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 {
		t.Error("expected non-empty PDF")
	}
}

func TestPDFRenderer_NotIssued(t *testing.T) {
	doc := domain.NewIssuanceRecord("t1", "ar-1", "pat-1")

	_, err := NewPDFRenderer().Render(context.Background(), Document{Record: doc})
	if !errors.Is(err, ErrNotRenderable) {
		t.Errorf("expected ErrNotRenderable, got %v", err)
	}

	if _, err := NewPDFRenderer().Render(context.Background(), Document{}); !errors.Is(err, ErrNotRenderable) {
		t.Errorf("expected ErrNotRenderable for empty document, got %v", err)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "R$ 0,00"},
		{5, "R$ 0,05"},
		{25000, "R$ 250,00"},
		{123456789, "R$ 1.234.567,89"},
		{-1050, "-R$ 10,50"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.cents); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
