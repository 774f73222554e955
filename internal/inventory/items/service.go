package items

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"simpellab-backend/internal/inventory/stock"
	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/audit"
	"simpellab-backend/internal/platform/db"
	"simpellab-backend/internal/platform/seq"
)

// Item codes are not date-scoped; one shared sequence.
const codePrefix = "ITM-"

type Service struct {
	runner db.Runner
	store  *Store
	codes  seq.Generator
	audit  audit.Recorder
}

func NewService(conn *sql.DB, rec audit.Recorder) *Service {
	return &Service{
		runner: db.NewRunner(conn),
		store:  NewStore(conn),
		codes:  seq.New(),
		audit:  rec,
	}
}

func (s *Service) Store() *Store { return s.store }

func (s *Service) Create(ctx context.Context, adminID int64, req CreateItemRequest) (*ItemResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Invalid("", "name is required")
	}
	if req.CategoryID <= 0 || req.BrandID <= 0 || req.LocationID <= 0 {
		return nil, apperr.Invalid("", "category_id, brand_id and location_id are required")
	}

	st, err := stock.NewInitial(req.StockTotal)
	if err != nil {
		return nil, err
	}

	it := &Item{
		Name:       strings.TrimSpace(req.Name),
		CategoryID: req.CategoryID,
		BrandID:    req.BrandID,
		LocationID: req.LocationID,
		Stock:      st,
		Condition:  ConditionGood,
		Status:     StatusActive,
	}
	if req.Specification != nil && *req.Specification != "" {
		it.Specification = sql.NullString{String: *req.Specification, Valid: true}
	}
	if req.PurchaseYear != nil {
		it.PurchaseYear = sql.NullInt64{Int64: *req.PurchaseYear, Valid: true}
	}
	if req.PurchasePrice != nil {
		it.PurchasePrice = sql.NullFloat64{Float64: *req.PurchasePrice, Valid: true}
	}
	if req.Condition != nil && *req.Condition != "" {
		switch *req.Condition {
		case ConditionGood, ConditionMinor, ConditionHeavy:
			it.Condition = *req.Condition
		default:
			return nil, apperr.Invalid("", "condition must be good, minor or heavy")
		}
	}

	err = s.runner.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		code := strings.TrimSpace(req.Code)
		if code == "" {
			var err error
			code, err = s.codes.NextCode(ctx, tx, codePrefix)
			if err != nil {
				return err
			}
		}
		it.Code = code
		if err := s.store.Insert(ctx, tx, it); err != nil {
			if db.IsDuplicate(err) {
				return apperr.Conflict("CODE_TAKEN", "item code already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, adminID, "items", "create",
		fmt.Sprintf("create item %s - %s (ID: %d) | stock_total=%d", it.Code, it.Name, it.ID, it.Stock.Total))

	created, err := s.store.GetByID(ctx, it.ID)
	if err != nil {
		return nil, err
	}
	resp := buildItemResponse(created)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*ItemResponse, error) {
	it, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildItemResponse(it)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]ItemResponse, int64, error) {
	rows, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ItemResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildItemResponse(&rows[i]))
	}
	return out, total, nil
}

func (s *Service) Update(ctx context.Context, adminID, id int64, req UpdateItemRequest) (*ItemResponse, error) {
	it, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.DeletedAt.Valid {
		return nil, apperr.NotFound("item not found")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Invalid("", "name must not be empty")
		}
		it.Name = name
	}
	if req.CategoryID != nil {
		it.CategoryID = *req.CategoryID
	}
	if req.BrandID != nil {
		it.BrandID = *req.BrandID
	}
	if req.LocationID != nil {
		it.LocationID = *req.LocationID
	}
	if req.Specification != nil {
		it.Specification = sql.NullString{String: *req.Specification, Valid: *req.Specification != ""}
	}
	if req.PurchaseYear != nil {
		it.PurchaseYear = sql.NullInt64{Int64: *req.PurchaseYear, Valid: true}
	}
	if req.PurchasePrice != nil {
		it.PurchasePrice = sql.NullFloat64{Float64: *req.PurchasePrice, Valid: true}
	}
	if req.Condition != nil {
		switch *req.Condition {
		case ConditionGood, ConditionMinor, ConditionHeavy:
			it.Condition = *req.Condition
		default:
			return nil, apperr.Invalid("", "condition must be good, minor or heavy")
		}
	}
	if req.Status != nil {
		switch *req.Status {
		case StatusActive, StatusService, StatusInactive:
			it.Status = *req.Status
		default:
			return nil, apperr.Invalid("", "status must be active, service or inactive")
		}
	}

	if err := s.store.Update(ctx, it); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, adminID, "items", "update",
		fmt.Sprintf("update item %s - %s (ID: %d)", it.Code, it.Name, it.ID))

	updated, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildItemResponse(updated)
	return &resp, nil
}

// Delete tombstones the item. History referencing it stays intact; the row
// is never physically removed.
func (s *Service) Delete(ctx context.Context, adminID, id int64) error {
	it, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if it.Stock.Borrowed > 0 {
		return apperr.Conflict("ITEM_ON_LOAN", "item still has borrowed units")
	}
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, adminID, "items", "delete",
		fmt.Sprintf("trash item %s - %s (ID: %d)", it.Code, it.Name, it.ID))
	return nil
}

func (s *Service) Restore(ctx context.Context, adminID, id int64) error {
	if err := s.store.Restore(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, adminID, "items", "restore", fmt.Sprintf("restore item ID: %d", id))
	return nil
}
