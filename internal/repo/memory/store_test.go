package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/fiscaldoc/internal/domain"
	"github.com/shaiso/fiscaldoc/internal/repo"
)

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	doc := domain.NewIssuanceRecord("t1", "bill-1", "subj-1")
	if err := s.Create(ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BillableReferenceID != "bill-1" || got.Status != domain.DocumentStatusProcessing {
		t.Errorf("unexpected record %+v", got)
	}

	// изменения копии не попадают в хранилище
	got.Status = domain.DocumentStatusFailed
	again, _ := s.GetByID(ctx, doc.ID)
	if again.Status != domain.DocumentStatusProcessing {
		t.Error("store must return copies")
	}

	byBillable, err := s.GetByBillable(ctx, "t1", "bill-1")
	if err != nil || byBillable.ID != doc.ID {
		t.Errorf("get by billable: %v %+v", err, byBillable)
	}
}

func TestStore_CreateDuplicateBillable(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	s.Create(ctx, domain.NewIssuanceRecord("t1", "bill-1", "subj-1"))
	err := s.Create(ctx, domain.NewIssuanceRecord("t1", "bill-1", "subj-1"))
	if !errors.Is(err, repo.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	// тот же billable у другого tenant'а — другая запись
	if err := s.Create(ctx, domain.NewIssuanceRecord("t2", "bill-1", "subj-1")); err != nil {
		t.Errorf("other tenant should be allowed: %v", err)
	}
}

func TestStore_GetForTenant(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	doc := domain.NewIssuanceRecord("t1", "bill-1", "subj-1")
	s.Create(ctx, doc)

	if _, err := s.GetForTenant(ctx, "t1", doc.ID); err != nil {
		t.Errorf("owner should see record: %v", err)
	}
	if _, err := s.GetForTenant(ctx, "t2", doc.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("other tenant should get ErrNotFound, got %v", err)
	}
}

func TestStore_Update(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	doc := domain.NewIssuanceRecord("t1", "bill-1", "subj-1")
	s.Create(ctx, doc)

	doc.MarkFailed("timeout")
	doc.TenantID = "hijack"
	if err := s.Update(ctx, doc); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.GetByID(ctx, doc.ID)
	if got.Status != domain.DocumentStatusFailed || got.RetryCount != 1 {
		t.Errorf("unexpected record %+v", got)
	}
	if got.TenantID != "t1" {
		t.Error("tenant must be immutable")
	}

	missing := domain.NewIssuanceRecord("t1", "bill-x", "subj-1")
	if err := s.Update(ctx, missing); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListByTenant(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, billable := range []string{"a", "b", "c"} {
		doc := domain.NewIssuanceRecord("t1", billable, "subj")
		doc.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if billable == "b" {
			doc.MarkFailed("x")
		}
		s.Create(ctx, doc)
	}
	s.Create(ctx, domain.NewIssuanceRecord("t2", "z", "subj"))

	docs, err := s.ListByTenant(ctx, "t1", repo.DocumentFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 docs, got %d", len(docs))
	}
	if docs[0].BillableReferenceID != "c" || docs[2].BillableReferenceID != "a" {
		t.Errorf("expected newest first, got %s..%s", docs[0].BillableReferenceID, docs[2].BillableReferenceID)
	}

	failed, _ := s.ListByTenant(ctx, "t1", repo.DocumentFilter{Status: domain.DocumentStatusFailed})
	if len(failed) != 1 || failed[0].BillableReferenceID != "b" {
		t.Errorf("status filter failed: %+v", failed)
	}

	paged, _ := s.ListByTenant(ctx, "t1", repo.DocumentFilter{Limit: 1, Offset: 1})
	if len(paged) != 1 || paged[0].BillableReferenceID != "b" {
		t.Errorf("paging failed: %+v", paged)
	}

	empty, _ := s.ListByTenant(ctx, "t1", repo.DocumentFilter{Offset: 10})
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestStore_ListStale(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	old := domain.NewIssuanceRecord("t1", "old", "subj")
	old.UpdatedAt = now.Add(-time.Hour)
	s.Create(ctx, old)

	fresh := domain.NewIssuanceRecord("t1", "fresh", "subj")
	s.Create(ctx, fresh)

	failed := domain.NewIssuanceRecord("t1", "failed", "subj")
	failed.MarkFailed("x")
	failed.UpdatedAt = now.Add(-time.Hour)
	s.Create(ctx, failed)

	stale, err := s.ListStale(ctx, now.Add(-15*time.Minute), 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Errorf("expected only old processing record, got %+v", stale)
	}
}

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	ctx := context.Background()

	d.SaveBillable(ctx, &domain.Billable{ID: "b1", TenantID: "t1", AmountCents: 100})
	d.SaveSubject(ctx, &domain.Subject{ID: "s1", TenantID: "t1", Name: "Ana"})

	if b, err := d.GetBillable(ctx, "t1", "b1"); err != nil || b.AmountCents != 100 {
		t.Errorf("get billable: %v %+v", err, b)
	}
	if _, err := d.GetBillable(ctx, "t2", "b1"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound across tenants, got %v", err)
	}
	if s, err := d.GetSubject(ctx, "t1", "s1"); err != nil || s.Name != "Ana" {
		t.Errorf("get subject: %v %+v", err, s)
	}
	if _, err := d.GetSubject(ctx, "t1", "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
