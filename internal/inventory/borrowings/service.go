package borrowings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"simpellab-backend/internal/inventory/borrowers"
	"simpellab-backend/internal/inventory/items"
	"simpellab-backend/internal/inventory/stock"
	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/audit"
	"simpellab-backend/internal/platform/db"
	"simpellab-backend/internal/platform/notify"
	"simpellab-backend/internal/platform/seq"
)

// Code tags for date-scoped sequences, e.g. BRW260901-0001.
const (
	codeTagBorrow = "BRW"
	codeTagDamage = "DMG"
)

// DueSoonWindow is how far ahead of the due time the sweep warns admins.
const DueSoonWindow = 24 * time.Hour

// ItemStore is the slice of the item store the workflows use: every stock
// mutation is LockStock + UpdateStock inside one transaction.
type ItemStore interface {
	LockStock(ctx context.Context, tx db.DBTX, id int64) (*items.Item, error)
	UpdateStock(ctx context.Context, tx db.DBTX, id int64, st stock.Stock) error
}

type BorrowerStore interface {
	GetTx(ctx context.Context, tx db.DBTX, id int64) (*borrowers.Borrower, error)
}

// DamageStore creates the automatic ticket for a damaged return.
type DamageStore interface {
	ExistsForBorrowing(ctx context.Context, tx db.DBTX, borrowingID int64) (bool, error)
	InsertFromReturn(ctx context.Context, tx db.DBTX, code string, itemID, borrowingID, adminID int64, qty int, reportedAt time.Time) (int64, error)
}

type LoanStore interface {
	HasActiveLoan(ctx context.Context, tx db.DBTX, borrowerID int64) (bool, error)
	Insert(ctx context.Context, tx db.DBTX, b *Borrowing) error
	GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*Borrowing, error)
	Resolve(ctx context.Context, tx db.DBTX, id int64, status, condition string, returnedAt time.Time, notes sql.NullString) error
	ListOpenDue(ctx context.Context, cutoff time.Time) ([]OpenLoan, error)
	MarkLate(ctx context.Context, ids []int64) (int64, error)
	GetByID(ctx context.Context, id int64) (*Borrowing, error)
	List(ctx context.Context, f Filter) ([]Borrowing, int64, error)
}

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	runner       db.Runner
	store        LoanStore
	items        ItemStore
	borrowers    BorrowerStore
	damages      DamageStore
	codes        seq.Generator
	notifier     notify.Notifier
	audit        audit.Recorder
	clock        Clock
	lowThreshold int
}

func NewService(conn *sql.DB, itemStore *items.Store, borrowerStore *borrowers.Store, damageStore DamageStore,
	n notify.Notifier, rec audit.Recorder, lowThreshold int) *Service {
	return &Service{
		runner:       db.NewRunner(conn),
		store:        NewStore(conn),
		items:        itemStore,
		borrowers:    borrowerStore,
		damages:      damageStore,
		codes:        seq.New(),
		notifier:     n,
		audit:        rec,
		clock:        realClock{},
		lowThreshold: lowThreshold,
	}
}

// CreateBorrowing opens a loan: borrower must be active, the borrower must
// not already hold the item, and the requested qty must be available. All
// checks and the stock move run under the item's row lock.
func (s *Service) CreateBorrowing(ctx context.Context, adminID int64, req CreateBorrowingRequest) (*BorrowingResponse, error) {
	if req.Qty <= 0 {
		return nil, apperr.Invalid(stock.ReasonInvalidQuantity, "qty must be > 0")
	}
	if req.BorrowType != TypeLesson && req.BorrowType != TypeDaily {
		return nil, apperr.Invalid("", "borrow_type must be lesson or daily")
	}

	now := s.clock.Now()
	borrowDate, err := parseDateOr(req.BorrowDate, now)
	if err != nil {
		return nil, apperr.Invalid("", "borrow_date must be YYYY-MM-DD")
	}

	var due time.Time
	switch req.BorrowType {
	case TypeLesson:
		// Lesson loans are implicitly due at the end of the borrow day.
		due = endOfDay(borrowDate)
	case TypeDaily:
		if req.ReturnDueDate == nil || *req.ReturnDueDate == "" {
			return nil, apperr.Invalid(ReasonInvalidDueDate, "return_due_date is required for daily loans")
		}
		d, err := time.ParseInLocation(DateLayout, *req.ReturnDueDate, time.UTC)
		if err != nil {
			return nil, apperr.Invalid(ReasonInvalidDueDate, "return_due_date must be YYYY-MM-DD")
		}
		if d.Before(borrowDate) {
			return nil, apperr.Invalid(ReasonInvalidDueDate, "return_due_date cannot be before borrow_date")
		}
		due = endOfDay(d)
	}

	b := &Borrowing{
		BorrowerID: req.BorrowerID,
		ItemID:     req.ItemID,
		Qty:        req.Qty,
		BorrowType: req.BorrowType,
		BorrowDate: borrowDate,
		ReturnDue:  due,
		Status:     StatusBorrowed,
		AdminID:    adminID,
	}
	if req.LessonHour != nil {
		b.LessonHour = sql.NullInt64{Int64: *req.LessonHour, Valid: true}
	}
	if req.Subject != nil && *req.Subject != "" {
		b.Subject = sql.NullString{String: *req.Subject, Valid: true}
	}
	if req.Teacher != nil && *req.Teacher != "" {
		b.Teacher = sql.NullString{String: *req.Teacher, Valid: true}
	}
	if req.Notes != nil && *req.Notes != "" {
		b.Notes = sql.NullString{String: *req.Notes, Valid: true}
	}

	var after stock.Stock
	err = s.runner.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.items.LockStock(ctx, tx, req.ItemID)
		if err != nil {
			return err
		}
		if !it.Issuable() {
			return apperr.Unprocessable(items.ReasonNotIssuable, "item is inactive or deleted")
		}

		br, err := s.borrowers.GetTx(ctx, tx, req.BorrowerID)
		if err != nil {
			return err
		}
		if !br.CanBorrow() {
			return apperr.Unprocessable(ReasonBorrowerBlocked, "borrower is blocked or deleted")
		}

		open, err := s.store.HasActiveLoan(ctx, tx, req.BorrowerID)
		if err != nil {
			return err
		}
		if open {
			return apperr.Conflict(ReasonActiveLoanExists, "borrower already holds an active loan")
		}

		st := it.Stock
		if err := st.MoveToBorrowed(req.Qty); err != nil {
			return err
		}
		if err := st.Check(); err != nil {
			return err
		}
		if err := s.items.UpdateStock(ctx, tx, it.ID, st); err != nil {
			return err
		}

		code, err := s.codes.NextCode(ctx, tx, seq.DatePrefix(codeTagBorrow, borrowDate))
		if err != nil {
			return err
		}
		b.Code = code
		after = st
		return s.store.Insert(ctx, tx, b)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, adminID, "borrowings", "create",
		fmt.Sprintf("opened loan %s: item %d x%d for borrower %d", b.Code, b.ItemID, b.Qty, b.BorrowerID))
	if after.Low(s.lowThreshold) {
		s.notifier.NotifyActiveAdmins(ctx, notify.TypeStockLow,
			"Low stock",
			fmt.Sprintf("available stock dropped to %d after loan %s", after.Available, b.Code),
			notify.RefItem, b.ItemID)
	}

	b.CreatedAt = now
	resp := buildResponse(b, now)
	return &resp, nil
}

// ReturnBorrowing closes a loan. The condition picks the stock branch:
// normal puts units back on the shelf, damaged moves them to the damaged
// pool and opens a repair ticket, lost writes them off.
func (s *Service) ReturnBorrowing(ctx context.Context, adminID int64, req ReturnRequest) (*BorrowingResponse, error) {
	switch req.Condition {
	case ConditionNormal, ConditionDamaged, ConditionLost:
	default:
		return nil, apperr.Invalid("", "return_condition must be normal, damaged or lost")
	}

	now := s.clock.Now()
	returnedAt := now
	if req.ReturnDate != nil && *req.ReturnDate != "" {
		d, err := time.ParseInLocation(DateLayout, *req.ReturnDate, time.UTC)
		if err != nil {
			return nil, apperr.Invalid("", "return_date must be YYYY-MM-DD")
		}
		returnedAt = endOfDay(d)
	}

	var notes sql.NullString
	if req.Notes != nil && *req.Notes != "" {
		notes = sql.NullString{String: *req.Notes, Valid: true}
	}

	var (
		b     *Borrowing
		after stock.Stock
	)
	err := s.runner.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		b, err = s.store.GetForUpdate(ctx, tx, req.BorrowingID)
		if err != nil {
			return err
		}
		if b.BorrowerID != req.BorrowerID {
			return apperr.Unprocessable(ReasonBorrowerMismatch, "loan belongs to a different borrower")
		}
		if !b.Active() {
			return apperr.Conflict(ReasonLoanNotActive, "loan is already resolved")
		}

		it, err := s.items.LockStock(ctx, tx, b.ItemID)
		if err != nil {
			return err
		}
		st := it.Stock

		status := StatusReturned
		switch req.Condition {
		case ConditionNormal:
			st.MoveBorrowedToAvailable(b.Qty)
		case ConditionDamaged:
			status = StatusDamaged
			st.MoveBorrowedToDamaged(b.Qty)

			dup, err := s.damages.ExistsForBorrowing(ctx, tx, b.ID)
			if err != nil {
				return err
			}
			if dup {
				return apperr.Conflict(ReasonDuplicateDamage, "a damage report already exists for this loan")
			}
			code, err := s.codes.NextCode(ctx, tx, seq.DatePrefix(codeTagDamage, returnedAt))
			if err != nil {
				return err
			}
			if _, err := s.damages.InsertFromReturn(ctx, tx, code, b.ItemID, b.ID, adminID, b.Qty, returnedAt); err != nil {
				return err
			}
		case ConditionLost:
			status = StatusLost
			st.MoveBorrowedToLost(b.Qty)
		}

		if err := st.Check(); err != nil {
			return err
		}
		if err := s.items.UpdateStock(ctx, tx, it.ID, st); err != nil {
			return err
		}
		if err := s.store.Resolve(ctx, tx, b.ID, status, req.Condition, returnedAt, notes); err != nil {
			return err
		}

		b.Status = status
		b.ReturnCondition = sql.NullString{String: req.Condition, Valid: true}
		b.ReturnDate = sql.NullTime{Time: returnedAt, Valid: true}
		after = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, adminID, "borrowings", "return",
		fmt.Sprintf("closed loan %s as %s", b.Code, req.Condition))
	if req.Condition != ConditionNormal && after.Low(s.lowThreshold) {
		s.notifier.NotifyActiveAdmins(ctx, notify.TypeStockLow,
			"Low stock",
			fmt.Sprintf("available stock is %d after loan %s closed as %s", after.Available, b.Code, req.Condition),
			notify.RefItem, b.ItemID)
	}

	resp := buildResponse(b, now)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*BorrowingResponse, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildResponse(b, s.clock.Now())
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]BorrowingResponse, int64, error) {
	list, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	now := s.clock.Now()
	out := make([]BorrowingResponse, 0, len(list))
	for i := range list {
		out = append(out, buildResponse(&list[i], now))
	}
	return out, total, nil
}

// SweepOverdue flips open loans past due to late and warns admins about
// loans due within the next day. Returns the number of flipped loans.
// Lateness never moves stock; only the return workflow does.
func (s *Service) SweepOverdue(ctx context.Context, now time.Time) (int64, error) {
	loans, err := s.store.ListOpenDue(ctx, now.Add(DueSoonWindow))
	if err != nil {
		return 0, err
	}

	var toFlip []int64
	for _, l := range loans {
		if !l.ReturnDue.Before(now) {
			continue
		}
		if l.Status == StatusBorrowed {
			toFlip = append(toFlip, l.ID)
		}
	}

	flipped, err := s.store.MarkLate(ctx, toFlip)
	if err != nil {
		return 0, err
	}
	// Notifications go out after the flip; the 24h dedupe keeps repeated
	// sweep runs from spamming the same loan.
	for _, l := range loans {
		if l.ReturnDue.Before(now) {
			s.notifier.NotifyActiveAdmins(ctx, notify.TypeOverdue,
				"Loan overdue",
				fmt.Sprintf("loan %s (%s, %s) was due %s", l.Code, l.BorrowerName, l.ItemName, l.ReturnDue.Format(DateLayout)),
				notify.RefBorrowing, l.ID)
		} else {
			s.notifier.NotifyActiveAdmins(ctx, notify.TypeDueSoon,
				"Loan due soon",
				fmt.Sprintf("loan %s (%s, %s) is due %s", l.Code, l.BorrowerName, l.ItemName, l.ReturnDue.Format(DateLayout)),
				notify.RefBorrowing, l.ID)
		}
	}
	return flipped, nil
}

// parseDateOr parses a YYYY-MM-DD date, defaulting to the current day.
func parseDateOr(s string, now time.Time) (time.Time, error) {
	if s == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

func endOfDay(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 23, 59, 59, 0, time.UTC)
}
