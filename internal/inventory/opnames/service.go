package opnames

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"simpellab-backend/internal/inventory/items"
	"simpellab-backend/internal/inventory/stock"
	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/audit"
	"simpellab-backend/internal/platform/db"
	"simpellab-backend/internal/platform/notify"
	"simpellab-backend/internal/platform/seq"
)

const codeTag = "OPN"

const dateLayout = "2006-01-02"

type ItemStore interface {
	LockStock(ctx context.Context, tx db.DBTX, id int64) (*items.Item, error)
	UpdateStock(ctx context.Context, tx db.DBTX, id int64, st stock.Stock) error
	IDsNotInLocation(ctx context.Context, ids []int64, locationID int64) ([]int64, error)
}

type OpnameStore interface {
	InsertLine(ctx context.Context, tx db.DBTX, o *StockOpname) error
	GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*StockOpname, error)
	Approve(ctx context.Context, tx db.DBTX, id, adminID int64, at time.Time) error
	GetByID(ctx context.Context, id int64) (*StockOpname, error)
	List(ctx context.Context, f Filter) ([]StockOpname, int64, error)
}

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	runner   db.Runner
	store    OpnameStore
	items    ItemStore
	codes    seq.Generator
	notifier notify.Notifier
	audit    audit.Recorder
	clock    Clock
}

func NewService(conn *sql.DB, itemStore *items.Store, n notify.Notifier, rec audit.Recorder) *Service {
	return &Service{
		runner:   db.NewRunner(conn),
		store:    NewStore(conn),
		items:    itemStore,
		codes:    seq.New(),
		notifier: n,
		audit:    rec,
		clock:    realClock{},
	}
}

type OpnameLineRequest struct {
	ItemID      int64   `json:"item_id" binding:"required"`
	PhysicalQty int     `json:"physical_qty"`
	Notes       *string `json:"notes,omitempty"`
}

type CreateOpnameRequest struct {
	LocationID int64               `json:"location_id" binding:"required"`
	Lines      []OpnameLineRequest `json:"lines" binding:"required"`
	// "2006-01-02"; the day the count was taken, defaults to today
	OpnameDate *string `json:"opname_date,omitempty"`
}

type OpnameLineResponse struct {
	ID              int64      `json:"id"`
	Code            string     `json:"code"`
	OpnameDate      time.Time  `json:"opname_date"`
	LocationID      int64      `json:"location_id"`
	ItemID          int64      `json:"item_id"`
	SystemTotal     int        `json:"system_total"`
	SystemAvailable int        `json:"system_available"`
	SystemBorrowed  int        `json:"system_borrowed"`
	SystemDamaged   int        `json:"system_damaged"`
	PhysicalQty     int        `json:"physical_qty"`
	Difference      int        `json:"difference"`
	Status          string     `json:"status"`
	Validation      string     `json:"validation"`
	Notes           *string    `json:"notes,omitempty"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func buildResponse(o *StockOpname) OpnameLineResponse {
	resp := OpnameLineResponse{
		ID:              o.ID,
		Code:            o.Code,
		OpnameDate:      o.OpnameDate,
		LocationID:      o.LocationID,
		ItemID:          o.ItemID,
		SystemTotal:     o.SystemTotal,
		SystemAvailable: o.SystemAvailable,
		SystemBorrowed:  o.SystemBorrowed,
		SystemDamaged:   o.SystemDamaged,
		PhysicalQty:     o.PhysicalQty,
		Difference:      o.Difference,
		Status:          o.Status,
		Validation:      o.Validation,
		CreatedAt:       o.CreatedAt,
	}
	if o.Notes.Valid {
		v := o.Notes.String
		resp.Notes = &v
	}
	if o.ApprovedBy.Valid {
		v := o.ApprovedBy.Int64
		resp.ApprovedBy = &v
	}
	if o.ApprovedAt.Valid {
		v := o.ApprovedAt.Time
		resp.ApprovedAt = &v
	}
	return resp
}

// CreateBatch records one physical count per item under a shared batch code.
// Counter snapshots are taken under each item's row lock; nothing is applied
// to the items yet, that happens line by line at approval.
func (s *Service) CreateBatch(ctx context.Context, adminID int64, req CreateOpnameRequest) ([]OpnameLineResponse, error) {
	if len(req.Lines) == 0 {
		return nil, apperr.Invalid("", "at least one line is required")
	}
	seen := make(map[int64]bool, len(req.Lines))
	ids := make([]int64, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.PhysicalQty < 0 {
			return nil, apperr.Invalid(stock.ReasonInvalidQuantity, "physical_qty must be >= 0")
		}
		if seen[l.ItemID] {
			return nil, apperr.Invalid("", fmt.Sprintf("item %d is counted twice", l.ItemID))
		}
		seen[l.ItemID] = true
		ids = append(ids, l.ItemID)
	}

	// Cheap precheck outside the transaction; a wrong location fails the
	// whole batch before any lock is taken.
	misplaced, err := s.items.IDsNotInLocation(ctx, ids, req.LocationID)
	if err != nil {
		return nil, err
	}
	if len(misplaced) > 0 {
		parts := make([]string, len(misplaced))
		for i, id := range misplaced {
			parts[i] = fmt.Sprintf("%d", id)
		}
		return nil, apperr.Unprocessable(ReasonLocationMismatch,
			"items not stored at this location: "+strings.Join(parts, ", "))
	}

	opnameDate := s.clock.Now()
	if req.OpnameDate != nil && *req.OpnameDate != "" {
		d, err := time.ParseInLocation(dateLayout, *req.OpnameDate, time.UTC)
		if err != nil {
			return nil, apperr.Invalid("", "opname_date must be YYYY-MM-DD")
		}
		opnameDate = d
	}
	lines := make([]*StockOpname, 0, len(req.Lines))

	err = s.runner.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		code, err := s.codes.NextCode(ctx, tx, seq.DatePrefix(codeTag, opnameDate))
		if err != nil {
			return err
		}

		for _, l := range req.Lines {
			it, err := s.items.LockStock(ctx, tx, l.ItemID)
			if err != nil {
				return err
			}

			o := &StockOpname{
				Code:            code,
				OpnameDate:      opnameDate,
				LocationID:      req.LocationID,
				ItemID:          it.ID,
				SystemTotal:     it.Stock.Total,
				SystemAvailable: it.Stock.Available,
				SystemBorrowed:  it.Stock.Borrowed,
				SystemDamaged:   it.Stock.Damaged,
				PhysicalQty:     l.PhysicalQty,
				Difference:      l.PhysicalQty - it.Stock.Total,
				AdminID:         adminID,
			}
			if o.Difference == 0 {
				o.Status = StatusNormal
				o.Validation = ValidationMatched
			} else {
				o.Status = StatusDiscrepancy
				o.Validation = ValidationReview
			}
			if l.Notes != nil && *l.Notes != "" {
				o.Notes = sql.NullString{String: *l.Notes, Valid: true}
			}

			if err := s.store.InsertLine(ctx, tx, o); err != nil {
				return err
			}
			lines = append(lines, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var discrepancies int
	for _, o := range lines {
		if o.Status == StatusDiscrepancy {
			discrepancies++
		}
	}
	s.audit.Record(ctx, adminID, "opnames", "create",
		fmt.Sprintf("opname batch %s: %d lines, %d discrepancies", lines[0].Code, len(lines), discrepancies))

	// One notification per batch, keyed on the first line so repeated
	// batches the same day still dedupe per batch, not per item.
	if discrepancies > 0 {
		s.notifier.NotifyActiveAdmins(ctx, notify.TypeOpnameDiscrepancy,
			"Stock opname discrepancy",
			fmt.Sprintf("opname batch %s found %d discrepancies", lines[0].Code, discrepancies),
			notify.RefOpname, lines[0].ID)
	}

	out := make([]OpnameLineResponse, 0, len(lines))
	for _, o := range lines {
		out = append(out, buildResponse(o))
	}
	return out, nil
}

// Approve applies one counted line to the item: Total becomes the physical
// count and Available is recomputed. The count must cover the units known to
// be borrowed or damaged. Approving an approved line is a no-op.
func (s *Service) Approve(ctx context.Context, adminID, id int64) (*OpnameLineResponse, error) {
	var (
		line    *StockOpname
		applied bool
	)
	err := s.runner.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		line, err = s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if line.Validation == ValidationApproved {
			return nil
		}

		it, err := s.items.LockStock(ctx, tx, line.ItemID)
		if err != nil {
			return err
		}
		st := it.Stock
		if err := st.ReconcileTotal(line.PhysicalQty); err != nil {
			return err
		}
		if err := st.Check(); err != nil {
			return err
		}
		if err := s.items.UpdateStock(ctx, tx, it.ID, st); err != nil {
			return err
		}

		now := s.clock.Now()
		if err := s.store.Approve(ctx, tx, line.ID, adminID, now); err != nil {
			return err
		}
		line.Validation = ValidationApproved
		line.ApprovedBy = sql.NullInt64{Int64: adminID, Valid: true}
		line.ApprovedAt = sql.NullTime{Time: now, Valid: true}
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		s.audit.Record(ctx, adminID, "opnames", "approve",
			fmt.Sprintf("approved opname line %d of batch %s: total set to %d", line.ID, line.Code, line.PhysicalQty))
	}
	resp := buildResponse(line)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*OpnameLineResponse, error) {
	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildResponse(o)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]OpnameLineResponse, int64, error) {
	list, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]OpnameLineResponse, 0, len(list))
	for i := range list {
		out = append(out, buildResponse(&list[i]))
	}
	return out, total, nil
}
