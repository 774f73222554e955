package borrowings

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"simpellab-backend/internal/inventory/borrowers"
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

type memBorrowerStore struct{ borrowers map[int64]*borrowers.Borrower }

func (m *memBorrowerStore) GetTx(_ context.Context, _ db.DBTX, id int64) (*borrowers.Borrower, error) {
	b, ok := m.borrowers[id]
	if !ok {
		return nil, apperr.NotFound("borrower not found")
	}
	return b, nil
}

type damageRecord struct {
	code        string
	itemID      int64
	borrowingID int64
	qty         int
}

type memDamageStore struct{ records []damageRecord }

func (m *memDamageStore) ExistsForBorrowing(_ context.Context, _ db.DBTX, borrowingID int64) (bool, error) {
	for _, r := range m.records {
		if r.borrowingID == borrowingID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memDamageStore) InsertFromReturn(_ context.Context, _ db.DBTX, code string, itemID, borrowingID, _ int64, qty int, _ time.Time) (int64, error) {
	m.records = append(m.records, damageRecord{code: code, itemID: itemID, borrowingID: borrowingID, qty: qty})
	return int64(len(m.records)), nil
}

type memLoanStore struct {
	loans  map[int64]*Borrowing
	nextID int64
}

func newMemLoanStore() *memLoanStore { return &memLoanStore{loans: map[int64]*Borrowing{}} }

func (m *memLoanStore) HasActiveLoan(_ context.Context, _ db.DBTX, borrowerID int64) (bool, error) {
	for _, b := range m.loans {
		if b.BorrowerID == borrowerID && b.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLoanStore) Insert(_ context.Context, _ db.DBTX, b *Borrowing) error {
	m.nextID++
	b.ID = m.nextID
	cp := *b
	m.loans[b.ID] = &cp
	return nil
}

func (m *memLoanStore) GetForUpdate(_ context.Context, _ db.DBTX, id int64) (*Borrowing, error) {
	b, ok := m.loans[id]
	if !ok {
		return nil, apperr.NotFound("borrowing not found")
	}
	cp := *b
	return &cp, nil
}

func (m *memLoanStore) Resolve(_ context.Context, _ db.DBTX, id int64, status, condition string, returnedAt time.Time, notes sql.NullString) error {
	b, ok := m.loans[id]
	if !ok {
		return apperr.NotFound("borrowing not found")
	}
	b.Status = status
	b.ReturnCondition = sql.NullString{String: condition, Valid: true}
	b.ReturnDate = sql.NullTime{Time: returnedAt, Valid: true}
	if notes.Valid {
		b.Notes = notes
	}
	return nil
}

func (m *memLoanStore) ListOpenDue(_ context.Context, cutoff time.Time) ([]OpenLoan, error) {
	var out []OpenLoan
	for _, b := range m.loans {
		if b.Active() && b.ReturnDue.Before(cutoff) {
			out = append(out, OpenLoan{ID: b.ID, Code: b.Code, Status: b.Status, ReturnDue: b.ReturnDue})
		}
	}
	return out, nil
}

func (m *memLoanStore) MarkLate(_ context.Context, ids []int64) (int64, error) {
	var n int64
	for _, id := range ids {
		b := m.loans[id]
		if b != nil && b.Status == StatusBorrowed && !b.ReturnDate.Valid {
			b.Status = StatusLate
			n++
		}
	}
	return n, nil
}

func (m *memLoanStore) GetByID(_ context.Context, id int64) (*Borrowing, error) {
	b, ok := m.loans[id]
	if !ok {
		return nil, apperr.NotFound("borrowing not found")
	}
	cp := *b
	return &cp, nil
}

func (m *memLoanStore) List(_ context.Context, _ Filter) ([]Borrowing, int64, error) {
	var out []Borrowing
	for _, b := range m.loans {
		out = append(out, *b)
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

type auditCall struct{ module, action string }

type fakeAudit struct{ calls []auditCall }

func (f *fakeAudit) Record(_ context.Context, _ int64, module, action, _ string) {
	f.calls = append(f.calls, auditCall{module: module, action: action})
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type fixture struct {
	svc       *Service
	items     *memItemStore
	borrowers *memBorrowerStore
	damages   *memDamageStore
	loans     *memLoanStore
	notifier  *fakeNotifier
	audit     *fakeAudit
	clock     *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		items:     &memItemStore{items: map[int64]*items.Item{}},
		borrowers: &memBorrowerStore{borrowers: map[int64]*borrowers.Borrower{}},
		damages:   &memDamageStore{},
		loans:     newMemLoanStore(),
		notifier:  &fakeNotifier{},
		audit:     &fakeAudit{},
		clock:     &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	f.svc = &Service{
		runner:       stubRunner{},
		store:        f.loans,
		items:        f.items,
		borrowers:    f.borrowers,
		damages:      f.damages,
		codes:        &stubCodes{},
		notifier:     f.notifier,
		audit:        f.audit,
		clock:        f.clock,
		lowThreshold: stock.DefaultLowThreshold,
	}
	return f
}

func (f *fixture) addItem(id int64, total, borrowed, damaged int) *items.Item {
	it := &items.Item{
		ID:     id,
		Code:   fmt.Sprintf("ITM-%04d", id),
		Name:   "oscilloscope",
		Status: items.StatusActive,
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

func (f *fixture) addBorrower(id int64, status string) *borrowers.Borrower {
	b := &borrowers.Borrower{ID: id, Name: "Andi", Type: borrowers.TypeStudent, Status: status}
	f.borrowers.borrowers[id] = b
	return b
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

func strPtr(s string) *string { return &s }

func TestCreateBorrowingLesson(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)

	res, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 7, ItemID: 1, Qty: 2, BorrowType: TypeLesson, BorrowDate: "2026-03-02",
	})
	if err != nil {
		t.Fatalf("CreateBorrowing: %v", err)
	}
	if res.Code != "BRW260302-0001" {
		t.Errorf("code = %q, want BRW260302-0001", res.Code)
	}
	wantDue := time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC)
	if !res.ReturnDue.Equal(wantDue) {
		t.Errorf("return due = %v, want %v", res.ReturnDue, wantDue)
	}
	st := f.items.items[1].Stock
	if st.Available != 8 || st.Borrowed != 2 || st.Total != 10 {
		t.Errorf("stock after borrow = %+v", st)
	}
	if len(f.audit.calls) != 1 || f.audit.calls[0].action != "create" {
		t.Errorf("audit calls = %+v", f.audit.calls)
	}
}

func TestCreateBorrowingDailyDueDate(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)

	res, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 7, ItemID: 1, Qty: 1, BorrowType: TypeDaily,
		BorrowDate: "2026-03-02", ReturnDueDate: strPtr("2026-03-05"),
	})
	if err != nil {
		t.Fatalf("CreateBorrowing: %v", err)
	}
	wantDue := time.Date(2026, 3, 5, 23, 59, 59, 0, time.UTC)
	if !res.ReturnDue.Equal(wantDue) {
		t.Errorf("return due = %v, want %v", res.ReturnDue, wantDue)
	}
}

func TestCreateBorrowingDailyRequiresDueDate(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)

	_, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 7, ItemID: 1, Qty: 1, BorrowType: TypeDaily, BorrowDate: "2026-03-02",
	})
	wantReason(t, err, ReasonInvalidDueDate)
}

func TestCreateBorrowingDueBeforeBorrowDate(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)

	_, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 7, ItemID: 1, Qty: 1, BorrowType: TypeDaily,
		BorrowDate: "2026-03-02", ReturnDueDate: strPtr("2026-03-01"),
	})
	wantReason(t, err, ReasonInvalidDueDate)
}

func TestCreateBorrowingBlockedBorrower(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusBlocked)

	_, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 7, ItemID: 1, Qty: 1, BorrowType: TypeLesson,
	})
	wantReason(t, err, ReasonBorrowerBlocked)

	if st := f.items.items[1].Stock; st.Borrowed != 0 {
		t.Errorf("stock moved despite rejection: %+v", st)
	}
}

func TestCreateBorrowingActiveLoanExists(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addItem(2, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)

	if _, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 7, ItemID: 1, Qty: 1, BorrowType: TypeLesson,
	}); err != nil {
		t.Fatalf("first CreateBorrowing: %v", err)
	}

	// One open loan per borrower, even for a different item.
	_, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 7, ItemID: 2, Qty: 1, BorrowType: TypeLesson,
	})
	wantReason(t, err, ReasonActiveLoanExists)

	if st := f.items.items[2].Stock; st.Borrowed != 0 {
		t.Errorf("stock moved despite rejection: %+v", st)
	}
}

func TestCreateBorrowingInsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 3, 2, 0) // 1 available
	f.addBorrower(7, borrowers.StatusActive)

	_, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 7, ItemID: 1, Qty: 2, BorrowType: TypeLesson,
	})
	wantReason(t, err, stock.ReasonInsufficientStock)
}

func TestCreateBorrowingInactiveItem(t *testing.T) {
	f := newFixture(t)
	it := f.addItem(1, 10, 0, 0)
	it.Status = items.StatusService
	f.addBorrower(7, borrowers.StatusActive)

	_, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 7, ItemID: 1, Qty: 1, BorrowType: TypeLesson,
	})
	wantReason(t, err, items.ReasonNotIssuable)
}

func TestCreateBorrowingLowStockNotification(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 6, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)

	if _, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 7, ItemID: 1, Qty: 2, BorrowType: TypeLesson,
	}); err != nil {
		t.Fatalf("CreateBorrowing: %v", err)
	}

	// 4 available < threshold 5
	if len(f.notifier.sent) != 1 {
		t.Fatalf("sent = %+v, want one stock_low", f.notifier.sent)
	}
	if n := f.notifier.sent[0]; n.typ != "stock_low" || n.refType != "item" || n.refID != 1 {
		t.Errorf("notification = %+v", n)
	}
}

func openLoan(t *testing.T, f *fixture, borrowerID, itemID int64, qty int) *BorrowingResponse {
	t.Helper()
	res, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: borrowerID, ItemID: itemID, Qty: qty, BorrowType: TypeLesson,
	})
	if err != nil {
		t.Fatalf("CreateBorrowing: %v", err)
	}
	return res
}

func TestReturnNormal(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)
	loan := openLoan(t, f, 7, 1, 3)

	res, err := f.svc.ReturnBorrowing(context.Background(), 99, ReturnRequest{
		BorrowerID: 7, BorrowingID: loan.ID, Condition: ConditionNormal,
	})
	if err != nil {
		t.Fatalf("ReturnBorrowing: %v", err)
	}
	if res.Status != StatusReturned {
		t.Errorf("status = %q, want returned", res.Status)
	}
	st := f.items.items[1].Stock
	if st.Available != 10 || st.Borrowed != 0 || st.Total != 10 {
		t.Errorf("stock after return = %+v", st)
	}
	if len(f.damages.records) != 0 {
		t.Errorf("damage ticket opened on a normal return: %+v", f.damages.records)
	}
}

func TestReturnDamagedOpensTicket(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)
	loan := openLoan(t, f, 7, 1, 2)

	res, err := f.svc.ReturnBorrowing(context.Background(), 99, ReturnRequest{
		BorrowerID: 7, BorrowingID: loan.ID, Condition: ConditionDamaged, ReturnDate: strPtr("2026-03-02"),
	})
	if err != nil {
		t.Fatalf("ReturnBorrowing: %v", err)
	}
	if res.Status != StatusDamaged {
		t.Errorf("status = %q, want damaged", res.Status)
	}
	st := f.items.items[1].Stock
	if st.Available != 8 || st.Borrowed != 0 || st.Damaged != 2 || st.Total != 10 {
		t.Errorf("stock after damaged return = %+v", st)
	}
	if len(f.damages.records) != 1 {
		t.Fatalf("damage records = %+v, want exactly one", f.damages.records)
	}
	d := f.damages.records[0]
	if d.code != "DMG260302-0001" || d.borrowingID != loan.ID || d.qty != 2 {
		t.Errorf("damage ticket = %+v", d)
	}
}

func TestReturnLostWritesOffStock(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)
	loan := openLoan(t, f, 7, 1, 2)

	res, err := f.svc.ReturnBorrowing(context.Background(), 99, ReturnRequest{
		BorrowerID: 7, BorrowingID: loan.ID, Condition: ConditionLost,
	})
	if err != nil {
		t.Fatalf("ReturnBorrowing: %v", err)
	}
	if res.Status != StatusLost {
		t.Errorf("status = %q, want lost", res.Status)
	}
	st := f.items.items[1].Stock
	if st.Total != 8 || st.Available != 8 || st.Borrowed != 0 {
		t.Errorf("stock after lost return = %+v", st)
	}
}

func TestReturnBorrowerMismatch(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)
	loan := openLoan(t, f, 7, 1, 1)

	_, err := f.svc.ReturnBorrowing(context.Background(), 99, ReturnRequest{
		BorrowerID: 8, BorrowingID: loan.ID, Condition: ConditionNormal,
	})
	wantReason(t, err, ReasonBorrowerMismatch)
}

func TestReturnAlreadyResolved(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)
	loan := openLoan(t, f, 7, 1, 1)

	if _, err := f.svc.ReturnBorrowing(context.Background(), 99, ReturnRequest{
		BorrowerID: 7, BorrowingID: loan.ID, Condition: ConditionNormal,
	}); err != nil {
		t.Fatalf("first return: %v", err)
	}
	_, err := f.svc.ReturnBorrowing(context.Background(), 99, ReturnRequest{
		BorrowerID: 7, BorrowingID: loan.ID, Condition: ConditionNormal,
	})
	wantReason(t, err, ReasonLoanNotActive)

	st := f.items.items[1].Stock
	if st.Available != 10 || st.Total != 10 {
		t.Errorf("double return moved stock: %+v", st)
	}
}

func TestSweepOverdue(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addItem(2, 10, 0, 0)
	f.addItem(3, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)
	f.addBorrower(8, borrowers.StatusActive)
	f.addBorrower(9, borrowers.StatusActive)

	overdue := openLoan(t, f, 7, 1, 1) // due end of 2026-03-02

	// Daily loan due tomorrow: inside the due-soon window, not overdue.
	dueSoon, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 8, ItemID: 2, Qty: 1, BorrowType: TypeDaily, ReturnDueDate: strPtr("2026-03-03"),
	})
	if err != nil {
		t.Fatalf("CreateBorrowing: %v", err)
	}

	// Far-future loan: the sweep must ignore it.
	if _, err := f.svc.CreateBorrowing(context.Background(), 99, CreateBorrowingRequest{
		BorrowerID: 9, ItemID: 3, Qty: 1, BorrowType: TypeDaily, ReturnDueDate: strPtr("2026-04-01"),
	}); err != nil {
		t.Fatalf("CreateBorrowing: %v", err)
	}

	f.notifier.sent = nil
	now := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)

	flipped, err := f.svc.SweepOverdue(context.Background(), now)
	if err != nil {
		t.Fatalf("SweepOverdue: %v", err)
	}
	if flipped != 1 {
		t.Errorf("flipped = %d, want 1", flipped)
	}
	if got := f.loans.loans[overdue.ID].Status; got != StatusLate {
		t.Errorf("overdue loan status = %q, want late", got)
	}
	if got := f.loans.loans[dueSoon.ID].Status; got != StatusBorrowed {
		t.Errorf("due-soon loan status = %q, want borrowed", got)
	}

	byType := map[string][]int64{}
	for _, n := range f.notifier.sent {
		byType[n.typ] = append(byType[n.typ], n.refID)
	}
	if ids := byType["overdue"]; len(ids) != 1 || ids[0] != overdue.ID {
		t.Errorf("overdue notifications = %v", ids)
	}
	if ids := byType["return_due_soon"]; len(ids) != 1 || ids[0] != dueSoon.ID {
		t.Errorf("due-soon notifications = %v", ids)
	}

	// Second run: nothing left to flip, loans stay late.
	flipped, err = f.svc.SweepOverdue(context.Background(), now)
	if err != nil {
		t.Fatalf("second SweepOverdue: %v", err)
	}
	if flipped != 0 {
		t.Errorf("second sweep flipped = %d, want 0", flipped)
	}
}

func TestLateFlagOnResponse(t *testing.T) {
	f := newFixture(t)
	f.addItem(1, 10, 0, 0)
	f.addBorrower(7, borrowers.StatusActive)
	loan := openLoan(t, f, 7, 1, 1) // lesson, due end of 2026-03-02

	f.clock.now = time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	res, err := f.svc.Get(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !res.Late {
		t.Error("open loan past due should report late")
	}
}
