package notify

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

type fakeIDGen struct{}

func (fakeIDGen) NewULID(time.Time) string { return "01TESTULID" }

type memStore struct {
	rows []Notification
}

func (m *memStore) ExistsSince(_ context.Context, adminID int64, typ, refType string, refID int64, since time.Time) (bool, error) {
	for _, n := range m.rows {
		if n.AdminID != adminID || n.Type != typ {
			continue
		}
		if refType == "" {
			if n.ReferenceType.Valid {
				continue
			}
		} else if !n.ReferenceType.Valid || n.ReferenceType.String != refType || n.ReferenceID.Int64 != refID {
			continue
		}
		if !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Insert(_ context.Context, n *Notification) error {
	n.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *n)
	return nil
}

type fakeAdmins struct{ ids []int64 }

func (f fakeAdmins) ActiveAdminIDs(context.Context) ([]int64, error) { return f.ids, nil }

func newTestService(store *memStore, at time.Time) *Service {
	return &Service{
		store:  store,
		admins: fakeAdmins{ids: []int64{1, 2}},
		clock:  fakeClock{t: at},
		id:     fakeIDGen{},
	}
}

func TestNotifyDedupeWithinWindow(t *testing.T) {
	store := &memStore{}
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	svc := newTestService(store, base)
	id, err := svc.Notify(context.Background(), 1, TypeStockLow, "low", "item LAB-0001 low", RefItem, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a new notification id")
	}

	// Same tuple one hour later: deduplicated.
	svc = newTestService(store, base.Add(time.Hour))
	id, err = svc.Notify(context.Background(), 1, TypeStockLow, "low", "item LAB-0001 low", RefItem, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected dedupe, got new id %d", id)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected 1 stored row, got %d", len(store.rows))
	}
}

func TestNotifyAfterWindowExpires(t *testing.T) {
	store := &memStore{}
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	svc := newTestService(store, base)
	if _, err := svc.Notify(context.Background(), 1, TypeStockLow, "low", "m", RefItem, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc = newTestService(store, base.Add(DedupeWindow+time.Minute))
	id, err := svc.Notify(context.Background(), 1, TypeStockLow, "low", "m", RefItem, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected new notification after window expiry")
	}
	if len(store.rows) != 2 {
		t.Fatalf("expected 2 stored rows, got %d", len(store.rows))
	}
}

func TestNotifyDistinctTuplesNotDeduped(t *testing.T) {
	store := &memStore{}
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(store, base)

	pairs := []struct {
		admin int64
		typ   string
		refID int64
	}{
		{1, TypeStockLow, 7},
		{2, TypeStockLow, 7},  // different admin
		{1, TypeOverdue, 7},   // different type
		{1, TypeStockLow, 8},  // different reference
	}
	for _, p := range pairs {
		id, err := svc.Notify(context.Background(), p.admin, p.typ, "t", "m", RefItem, p.refID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id == 0 {
			t.Fatalf("unexpected dedupe for tuple %+v", p)
		}
	}
	if len(store.rows) != len(pairs) {
		t.Fatalf("expected %d rows, got %d", len(pairs), len(store.rows))
	}
}

func TestNotifyActiveAdminsFanOut(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))

	svc.NotifyActiveAdmins(context.Background(), TypeOverdue, "overdue", "m", RefBorrowing, 3)
	if len(store.rows) != 2 {
		t.Fatalf("expected one row per active admin, got %d", len(store.rows))
	}
}
