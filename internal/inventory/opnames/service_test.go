package opnames

import (
	"context"
	"testing"
	"time"

	"simpellab-backend/internal/inventory/items"
	"simpellab-backend/internal/inventory/stock"
	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/db"
	"simpellab-backend/internal/platform/seq"
)

type stubRunner struct{}

func (stubRunner) InTx(ctx context.Context, fn func(context.Context, db.DBTX) error) error {
	return fn(ctx, nil)
}

type memItemStore struct{ items map[int64]*items.Item }

func (m *memItemStore) LockStock(_ context.Context, _ db.DBTX, id int64) (*items.Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("item not found")
	}
	cp := *it
	return &cp, nil
}

func (m *memItemStore) UpdateStock(_ context.Context, _ db.DBTX, id int64, st stock.Stock) error {
	m.items[id].Stock = st
	return nil
}

func (m *memItemStore) IDsNotInLocation(_ context.Context, ids []int64, locationID int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		it, ok := m.items[id]
		if !ok || it.LocationID != locationID || it.DeletedAt.Valid {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

type memOpnameStore struct {
	rows   map[int64]*StockOpname
	nextID int64
}

func newMemOpnameStore() *memOpnameStore { return &memOpnameStore{rows: map[int64]*StockOpname{}} }

func (m *memOpnameStore) InsertLine(_ context.Context, _ db.DBTX, o *StockOpname) error {
	m.nextID++
	o.ID = m.nextID
	cp := *o
	m.rows[o.ID] = &cp
	return nil
}

func (m *memOpnameStore) GetForUpdate(_ context.Context, _ db.DBTX, id int64) (*StockOpname, error) {
	o, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("opname line not found")
	}
	cp := *o
	return &cp, nil
}

func (m *memOpnameStore) Approve(_ context.Context, _ db.DBTX, id, adminID int64, at time.Time) error {
	o, ok := m.rows[id]
	if !ok {
		return apperr.NotFound("opname line not found")
	}
	o.Validation = ValidationApproved
	o.ApprovedBy.Int64, o.ApprovedBy.Valid = adminID, true
	o.ApprovedAt.Time, o.ApprovedAt.Valid = at, true
	return nil
}

func (m *memOpnameStore) GetByID(_ context.Context, id int64) (*StockOpname, error) {
	o, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("opname line not found")
	}
	cp := *o
	return &cp, nil
}

func (m *memOpnameStore) List(_ context.Context, _ Filter) ([]StockOpname, int64, error) {
	var out []StockOpname
	for _, o := range m.rows {
		out = append(out, *o)
	}
	return out, int64(len(out)), nil
}

type stubCodes struct{ seqs map[string]int }

func (s *stubCodes) NextCode(_ context.Context, _ db.DBTX, prefix string) (string, error) {
	if s.seqs == nil {
		s.seqs = map[string]int{}
	}
	s.seqs[prefix]++
	return seq.Format(prefix, s.seqs[prefix]), nil
}

type sentNotification struct {
	typ     string
	refType string
	refID   int64
}

type fakeNotifier struct{ sent []sentNotification }

func (f *fakeNotifier) Notify(_ context.Context, _ int64, typ, _, _, refType string, refID int64) (int64, error) {
	f.sent = append(f.sent, sentNotification{typ: typ, refType: refType, refID: refID})
	return 1, nil
}

func (f *fakeNotifier) NotifyActiveAdmins(_ context.Context, typ, _, _, refType string, refID int64) {
	f.sent = append(f.sent, sentNotification{typ: typ, refType: refType, refID: refID})
}

type fakeAudit struct{ n int }

func (f *fakeAudit) Record(_ context.Context, _ int64, _, _, _ string) { f.n++ }

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type fixture struct {
	svc      *Service
	items    *memItemStore
	store    *memOpnameStore
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		items:    &memItemStore{items: map[int64]*items.Item{}},
		store:    newMemOpnameStore(),
		notifier: &fakeNotifier{},
	}
	f.svc = &Service{
		runner:   stubRunner{},
		store:    f.store,
		items:    f.items,
		codes:    &stubCodes{},
		notifier: f.notifier,
		audit:    &fakeAudit{},
		clock:    &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	return f
}

func (f *fixture) addItem(id, locationID int64, total, borrowed, damaged int) *items.Item {
	it := &items.Item{
		ID:         id,
		LocationID: locationID,
		Status:     items.StatusActive,
		Stock: stock.Stock{
			Total:     total,
			Available: total - borrowed - damaged,
			Borrowed:  borrowed,
			Damaged:   damaged,
		},
	}
	f.items.items[id] = it
	return it
}

func wantReason(t *testing.T, err error, reason string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with reason %s, got nil", reason)
	}
	if got := apperr.ReasonOf(err); got != reason {
		t.Fatalf("reason = %q, want %q (err: %v)", got, reason, err)
	}
}

func TestCreateBatchMatched(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 4, 10, 0, 0)

	lines, err := f.svc.CreateBatch(context.Background(), 99, CreateOpnameRequest{
		LocationID: 4,
		Lines:      []OpnameLineRequest{{ItemID: 1, PhysicalQty: 10}},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	l := lines[0]
	if l.Code != "OPN260302-0001" {
		t.Errorf("code = %q, want OPN260302-0001", l.Code)
	}
	if l.Status != StatusNormal || l.Validation != ValidationMatched || l.Difference != 0 {
		t.Errorf("line = %+v", l)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("matched batch should not notify, got %+v", f.notifier.sent)
	}
}

func TestCreateBatchBackdated(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 4, 10, 0, 0)

	date := "2026-02-14"
	lines, err := f.svc.CreateBatch(context.Background(), 99, CreateOpnameRequest{
		LocationID: 4,
		Lines:      []OpnameLineRequest{{ItemID: 1, PhysicalQty: 10}},
		OpnameDate: &date,
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if lines[0].Code != "OPN260214-0001" {
		t.Errorf("code = %q, want OPN260214-0001", lines[0].Code)
	}
	want := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	if !lines[0].OpnameDate.Equal(want) {
		t.Errorf("opname_date = %v, want %v", lines[0].OpnameDate, want)
	}
}

func TestCreateBatchInvalidDate(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 4, 10, 0, 0)

	date := "14/02/2026"
	_, err := f.svc.CreateBatch(context.Background(), 99, CreateOpnameRequest{
		LocationID: 4,
		Lines:      []OpnameLineRequest{{ItemID: 1, PhysicalQty: 10}},
		OpnameDate: &date,
	})
	if err == nil {
		t.Fatal("expected error for malformed opname_date")
	}
}

func TestCreateBatchDiscrepancy(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 4, 10, 0, 0)
	f.addItem(2, 4, 5, 1, 0)

	lines, err := f.svc.CreateBatch(context.Background(), 99, CreateOpnameRequest{
		LocationID: 4,
		Lines: []OpnameLineRequest{
			{ItemID: 1, PhysicalQty: 10},
			{ItemID: 2, PhysicalQty: 4}, // one unit short
		},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if lines[0].Code != lines[1].Code {
		t.Errorf("batch lines got different codes: %q vs %q", lines[0].Code, lines[1].Code)
	}
	if lines[1].Status != StatusDiscrepancy || lines[1].Validation != ValidationReview || lines[1].Difference != -1 {
		t.Errorf("discrepancy line = %+v", lines[1])
	}
	if lines[1].SystemTotal != 5 || lines[1].SystemBorrowed != 1 {
		t.Errorf("snapshot = %+v", lines[1])
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("notifications = %+v, want exactly one per batch", f.notifier.sent)
	}
	n := f.notifier.sent[0]
	if n.typ != "opname_discrepancy" || n.refType != "stock_opname" || n.refID != lines[0].ID {
		t.Errorf("notification = %+v", n)
	}
}

func TestCreateBatchLocationMismatch(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 4, 10, 0, 0)
	f.addItem(2, 9, 5, 0, 0) // stored elsewhere

	_, err := f.svc.CreateBatch(context.Background(), 99, CreateOpnameRequest{
		LocationID: 4,
		Lines: []OpnameLineRequest{
			{ItemID: 1, PhysicalQty: 10},
			{ItemID: 2, PhysicalQty: 5},
		},
	})
	wantReason(t, err, ReasonLocationMismatch)
	if len(f.store.rows) != 0 {
		t.Errorf("lines written despite rejection: %d", len(f.store.rows))
	}
}

func TestCreateBatchDuplicateItem(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 4, 10, 0, 0)

	_, err := f.svc.CreateBatch(context.Background(), 99, CreateOpnameRequest{
		LocationID: 4,
		Lines: []OpnameLineRequest{
			{ItemID: 1, PhysicalQty: 10},
			{ItemID: 1, PhysicalQty: 9},
		},
	})
	if err == nil {
		t.Fatal("expected error for duplicate item in batch")
	}
}

func countBatch(t *testing.T, f *fixture, itemID int64, physical int) OpnameLineResponse {
	t.Helper()
	lines, err := f.svc.CreateBatch(context.Background(), 99, CreateOpnameRequest{
		LocationID: 4,
		Lines:      []OpnameLineRequest{{ItemID: itemID, PhysicalQty: physical}},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	return lines[0]
}

func TestApproveAppliesCount(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 4, 10, 2, 1) // 7 available
	line := countBatch(t, f, 1, 12)

	res, err := f.svc.Approve(context.Background(), 50, line.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if res.Validation != ValidationApproved {
		t.Errorf("validation = %q, want approved", res.Validation)
	}
	if res.ApprovedBy == nil || *res.ApprovedBy != 50 {
		t.Errorf("approved_by = %v, want 50", res.ApprovedBy)
	}
	st := f.items.items[1].Stock
	if st.Total != 12 || st.Available != 9 || st.Borrowed != 2 || st.Damaged != 1 {
		t.Errorf("stock after approve = %+v", st)
	}
}

func TestApproveBelowFloor(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 4, 10, 2, 1)
	line := countBatch(t, f, 1, 2) // below borrowed+damaged = 3

	_, err := f.svc.Approve(context.Background(), 50, line.ID)
	wantReason(t, err, stock.ReasonBelowMinimumStock)

	st := f.items.items[1].Stock
	if st.Total != 10 || st.Available != 7 {
		t.Errorf("stock changed despite rejection: %+v", st)
	}
	if got := f.store.rows[line.ID].Validation; got != ValidationReview {
		t.Errorf("validation = %q, want review", got)
	}
}

func TestApproveIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 4, 10, 0, 0)
	line := countBatch(t, f, 1, 8)

	if _, err := f.svc.Approve(context.Background(), 50, line.ID); err != nil {
		t.Fatalf("first approve: %v", err)
	}

	// Stock moves between the two approvals; the second must not reapply
	// the stale count.
	f.items.items[1].Stock = stock.Stock{Total: 8, Available: 6, Borrowed: 2}

	res, err := f.svc.Approve(context.Background(), 50, line.ID)
	if err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if res.Validation != ValidationApproved {
		t.Errorf("validation = %q, want approved", res.Validation)
	}
	st := f.items.items[1].Stock
	if st.Total != 8 || st.Available != 6 || st.Borrowed != 2 {
		t.Errorf("second approve touched stock: %+v", st)
	}
}
