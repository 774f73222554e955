package damages

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"simpellab-backend/internal/inventory/borrowings"
	"simpellab-backend/internal/inventory/items"
	"simpellab-backend/internal/inventory/stock"
	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/audit"
	"simpellab-backend/internal/platform/db"
	"simpellab-backend/internal/platform/notify"
	"simpellab-backend/internal/platform/seq"
)

const codeTag = "DMG"

const dateLayout = "2006-01-02"

type ItemStore interface {
	LockStock(ctx context.Context, tx db.DBTX, id int64) (*items.Item, error)
	UpdateStock(ctx context.Context, tx db.DBTX, id int64, st stock.Stock) error
}

// LoanStore resolves a referenced loan under its row lock so the
// loan-must-be-closed check cannot race a concurrent return.
type LoanStore interface {
	GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*borrowings.Borrowing, error)
}

type DamageStore interface {
	Insert(ctx context.Context, tx db.DBTX, d *Damage) error
	ExistsForBorrowing(ctx context.Context, tx db.DBTX, borrowingID int64) (bool, error)
	GetByID(ctx context.Context, id int64) (*Damage, error)
	Update(ctx context.Context, d *Damage) error
	List(ctx context.Context, f Filter) ([]Damage, int64, error)
}

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	runner       db.Runner
	store        DamageStore
	items        ItemStore
	loans        LoanStore
	codes        seq.Generator
	notifier     notify.Notifier
	audit        audit.Recorder
	clock        Clock
	lowThreshold int
}

func NewService(conn *sql.DB, store *Store, itemStore *items.Store, loanStore *borrowings.Store,
	n notify.Notifier, rec audit.Recorder, lowThreshold int) *Service {
	return &Service{
		runner:       db.NewRunner(conn),
		store:        store,
		items:        itemStore,
		loans:        loanStore,
		codes:        seq.New(),
		notifier:     n,
		audit:        rec,
		clock:        realClock{},
		lowThreshold: lowThreshold,
	}
}

type ReportDamageRequest struct {
	ItemID int64 `json:"item_id" binding:"required"`
	// optional closed loan the damage was discovered on; qty then follows the loan
	BorrowingID *int64  `json:"borrowing_id,omitempty"`
	Qty         int     `json:"qty"`
	Level       string  `json:"damage_level" binding:"required"`
	Description *string `json:"description,omitempty"`
	// "2006-01-02"; backdated reports are allowed, defaults to today
	ReportedAt *string `json:"reported_at,omitempty"`
}

type UpdateDamageRequest struct {
	Level       *string `json:"damage_level,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Solution    *string `json:"solution,omitempty"`
	// "2006-01-02"; defaults to today when status moves to completed
	CompletedAt *string `json:"completed_at,omitempty"`
}

type DamageResponse struct {
	ID          int64      `json:"id"`
	Code        string     `json:"code"`
	ItemID      int64      `json:"item_id"`
	BorrowingID *int64     `json:"borrowing_id,omitempty"`
	Qty         int        `json:"qty"`
	Level       string     `json:"damage_level"`
	Description *string    `json:"description,omitempty"`
	Status      string     `json:"status"`
	Solution    *string    `json:"solution,omitempty"`
	ReportedAt  time.Time  `json:"reported_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func buildResponse(d *Damage) DamageResponse {
	resp := DamageResponse{
		ID:         d.ID,
		Code:       d.Code,
		ItemID:     d.ItemID,
		Qty:        d.Qty,
		Level:      d.Level,
		Status:     d.Status,
		ReportedAt: d.ReportedAt,
	}
	if d.BorrowingID.Valid {
		v := d.BorrowingID.Int64
		resp.BorrowingID = &v
	}
	if d.Description.Valid {
		v := d.Description.String
		resp.Description = &v
	}
	if d.Solution.Valid {
		v := d.Solution.String
		resp.Solution = &v
	}
	if d.CompletedAt.Valid {
		v := d.CompletedAt.Time
		resp.CompletedAt = &v
	}
	return resp
}

func validLevel(l string) bool {
	return l == LevelMinor || l == LevelModerate || l == LevelHeavy
}

// Report opens a manual damage ticket and moves the units from the available
// pool to the damaged pool. Damage on an open loan is rejected here; it must
// come in through a damaged return, which settles the loan and the stock in
// one step.
func (s *Service) Report(ctx context.Context, adminID int64, req ReportDamageRequest) (*DamageResponse, error) {
	if !validLevel(req.Level) {
		return nil, apperr.Invalid("", "damage_level must be minor, moderate or heavy")
	}
	qty := req.Qty
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, apperr.Invalid(stock.ReasonInvalidQuantity, "qty must be > 0")
	}

	reportedAt := s.clock.Now()
	if req.ReportedAt != nil && *req.ReportedAt != "" {
		t, err := time.ParseInLocation(dateLayout, *req.ReportedAt, time.UTC)
		if err != nil {
			return nil, apperr.Invalid("", "reported_at must be YYYY-MM-DD")
		}
		reportedAt = t
	}
	d := &Damage{
		ItemID:     req.ItemID,
		Qty:        qty,
		Level:      req.Level,
		Status:     StatusPending,
		AdminID:    adminID,
		ReportedAt: reportedAt,
	}
	if req.Description != nil && *req.Description != "" {
		d.Description = sql.NullString{String: *req.Description, Valid: true}
	}

	var after stock.Stock
	err := s.runner.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.items.LockStock(ctx, tx, req.ItemID)
		if err != nil {
			return err
		}

		if req.BorrowingID != nil {
			loan, err := s.loans.GetForUpdate(ctx, tx, *req.BorrowingID)
			if err != nil {
				return err
			}
			if loan.ItemID != req.ItemID {
				return apperr.Invalid("", "borrowing does not reference this item")
			}
			if loan.Active() {
				return apperr.Unprocessable(ReasonLoanStillActive,
					"loan is still open, report the damage through a damaged return")
			}
			dup, err := s.store.ExistsForBorrowing(ctx, tx, loan.ID)
			if err != nil {
				return err
			}
			if dup {
				return apperr.Conflict(borrowings.ReasonDuplicateDamage, "a damage report already exists for this loan")
			}
			d.BorrowingID = sql.NullInt64{Int64: loan.ID, Valid: true}
			d.Qty = loan.Qty
		}

		st := it.Stock
		if err := st.MoveAvailableToDamaged(d.Qty); err != nil {
			return err
		}
		if err := st.Check(); err != nil {
			return err
		}
		if err := s.items.UpdateStock(ctx, tx, it.ID, st); err != nil {
			return err
		}

		code, err := s.codes.NextCode(ctx, tx, seq.DatePrefix(codeTag, reportedAt))
		if err != nil {
			return err
		}
		d.Code = code
		after = st
		return s.store.Insert(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, adminID, "damages", "create",
		fmt.Sprintf("reported damage %s: item %d x%d (%s)", d.Code, d.ItemID, d.Qty, d.Level))
	if after.Low(s.lowThreshold) {
		s.notifier.NotifyActiveAdmins(ctx, notify.TypeStockLow,
			"Low stock",
			fmt.Sprintf("available stock is %d after damage report %s", after.Available, d.Code),
			notify.RefItem, d.ItemID)
	}

	resp := buildResponse(d)
	return &resp, nil
}

// Update edits ticket metadata and repair progress. No stock moves here:
// the units stay in the damaged pool until an opname recount settles them.
func (s *Service) Update(ctx context.Context, adminID int64, id int64, req UpdateDamageRequest) (*DamageResponse, error) {
	d, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Level != nil {
		if !validLevel(*req.Level) {
			return nil, apperr.Invalid("", "damage_level must be minor, moderate or heavy")
		}
		d.Level = *req.Level
	}
	if req.Description != nil {
		d.Description = sql.NullString{String: *req.Description, Valid: *req.Description != ""}
	}
	if req.Solution != nil {
		d.Solution = sql.NullString{String: *req.Solution, Valid: *req.Solution != ""}
	}
	if req.Status != nil {
		switch *req.Status {
		case StatusPending, StatusInProgress, StatusCompleted:
			d.Status = *req.Status
		default:
			return nil, apperr.Invalid("", "status must be pending, in_progress or completed")
		}
	}

	if d.Status == StatusCompleted {
		if !d.Solution.Valid {
			return nil, apperr.Invalid("", "a completed repair requires a solution")
		}
		if req.CompletedAt != nil && *req.CompletedAt != "" {
			t, err := time.ParseInLocation(dateLayout, *req.CompletedAt, time.UTC)
			if err != nil {
				return nil, apperr.Invalid("", "completed_at must be YYYY-MM-DD")
			}
			d.CompletedAt = sql.NullTime{Time: t, Valid: true}
		} else if !d.CompletedAt.Valid {
			d.CompletedAt = sql.NullTime{Time: s.clock.Now(), Valid: true}
		}
	} else {
		d.CompletedAt = sql.NullTime{}
	}

	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, adminID, "damages", "update",
		fmt.Sprintf("updated damage %s: status %s", d.Code, d.Status))
	resp := buildResponse(d)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*DamageResponse, error) {
	d, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildResponse(d)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]DamageResponse, int64, error) {
	list, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]DamageResponse, 0, len(list))
	for i := range list {
		out = append(out, buildResponse(&list[i]))
	}
	return out, total, nil
}
