package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"simpellab-backend/internal/inventory/items"
	"simpellab-backend/internal/inventory/stock"
	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/audit"
	"simpellab-backend/internal/platform/db"
	"simpellab-backend/internal/platform/notify"
	"simpellab-backend/internal/platform/seq"
)

// Code tags: TRI for stock in, TRO for stock out.
const (
	codeTagIn  = "TRI"
	codeTagOut = "TRO"
)

const dateLayout = "2006-01-02"

type ItemStore interface {
	LockStock(ctx context.Context, tx db.DBTX, id int64) (*items.Item, error)
	UpdateStock(ctx context.Context, tx db.DBTX, id int64, st stock.Stock) error
}

type TransactionStore interface {
	Insert(ctx context.Context, tx db.DBTX, tr *Transaction) error
	GetByID(ctx context.Context, id int64) (*Transaction, error)
	List(ctx context.Context, f Filter) ([]Transaction, int64, error)
}

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	runner       db.Runner
	store        TransactionStore
	items        ItemStore
	codes        seq.Generator
	notifier     notify.Notifier
	audit        audit.Recorder
	clock        Clock
	lowThreshold int
}

func NewService(conn *sql.DB, itemStore *items.Store, n notify.Notifier, rec audit.Recorder, lowThreshold int) *Service {
	return &Service{
		runner:       db.NewRunner(conn),
		store:        NewStore(conn),
		items:        itemStore,
		codes:        seq.New(),
		notifier:     n,
		audit:        rec,
		clock:        realClock{},
		lowThreshold: lowThreshold,
	}
}

type CreateTransactionRequest struct {
	ItemID      int64   `json:"item_id" binding:"required"`
	Qty         int     `json:"qty" binding:"required"`
	Source      *string `json:"source,omitempty"`
	Destination *string `json:"destination,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	// "2006-01-02"; backdated entries are allowed, defaults to today
	Date *string `json:"transaction_date,omitempty"`
}

type TransactionResponse struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	ItemID      int64     `json:"item_id"`
	Type        string    `json:"transaction_type"`
	Qty         int       `json:"qty"`
	Source      *string   `json:"source,omitempty"`
	Destination *string   `json:"destination,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func buildResponse(tr *Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:         tr.ID,
		Code:       tr.Code,
		ItemID:     tr.ItemID,
		Type:       tr.Type,
		Qty:        tr.Qty,
		OccurredAt: tr.OccurredAt,
	}
	if tr.Source.Valid {
		v := tr.Source.String
		resp.Source = &v
	}
	if tr.Destination.Valid {
		v := tr.Destination.String
		resp.Destination = &v
	}
	if tr.Notes.Valid {
		v := tr.Notes.String
		resp.Notes = &v
	}
	return resp
}

// Receive books incoming units: Total and Available both grow. Works on
// any non-deleted item, including ones pulled out of service.
func (s *Service) Receive(ctx context.Context, adminID int64, req CreateTransactionRequest) (*TransactionResponse, error) {
	tr, err := s.record(ctx, adminID, req, TypeIn)
	if err != nil {
		return nil, err
	}
	resp := buildResponse(tr)
	return &resp, nil
}

// Issue books outgoing units against the available pool. Only active items
// may issue stock.
func (s *Service) Issue(ctx context.Context, adminID int64, req CreateTransactionRequest) (*TransactionResponse, error) {
	tr, err := s.record(ctx, adminID, req, TypeOut)
	if err != nil {
		return nil, err
	}
	resp := buildResponse(tr)
	return &resp, nil
}

func (s *Service) record(ctx context.Context, adminID int64, req CreateTransactionRequest, typ string) (*Transaction, error) {
	if req.Qty <= 0 {
		return nil, apperr.Invalid(stock.ReasonInvalidQuantity, "qty must be > 0")
	}

	occurredAt := s.clock.Now()
	if req.Date != nil && *req.Date != "" {
		d, err := time.ParseInLocation(dateLayout, *req.Date, time.UTC)
		if err != nil {
			return nil, apperr.Invalid("", "transaction_date must be YYYY-MM-DD")
		}
		occurredAt = d
	}
	tr := &Transaction{
		ItemID:     req.ItemID,
		Type:       typ,
		Qty:        req.Qty,
		AdminID:    adminID,
		OccurredAt: occurredAt,
	}
	if req.Source != nil && *req.Source != "" {
		tr.Source = sql.NullString{String: *req.Source, Valid: true}
	}
	if req.Destination != nil && *req.Destination != "" {
		tr.Destination = sql.NullString{String: *req.Destination, Valid: true}
	}
	if req.Notes != nil && *req.Notes != "" {
		tr.Notes = sql.NullString{String: *req.Notes, Valid: true}
	}

	tag := codeTagIn
	if typ == TypeOut {
		tag = codeTagOut
	}

	var after stock.Stock
	err := s.runner.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.items.LockStock(ctx, tx, req.ItemID)
		if err != nil {
			return err
		}

		st := it.Stock
		switch typ {
		case TypeIn:
			if it.DeletedAt.Valid {
				return apperr.Unprocessable(ReasonItemDeleted, "item is deleted")
			}
			if err := st.Receive(req.Qty); err != nil {
				return err
			}
		case TypeOut:
			if !it.Issuable() {
				return apperr.Unprocessable(items.ReasonNotIssuable, "item is inactive or deleted")
			}
			if err := st.Issue(req.Qty); err != nil {
				return err
			}
		}
		if err := st.Check(); err != nil {
			return err
		}
		if err := s.items.UpdateStock(ctx, tx, it.ID, st); err != nil {
			return err
		}

		code, err := s.codes.NextCode(ctx, tx, seq.DatePrefix(tag, occurredAt))
		if err != nil {
			return err
		}
		tr.Code = code
		after = st
		return s.store.Insert(ctx, tx, tr)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, adminID, "transactions", typ,
		fmt.Sprintf("booked %s %s: item %d x%d", typ, tr.Code, tr.ItemID, tr.Qty))
	if typ == TypeOut && after.Low(s.lowThreshold) {
		s.notifier.NotifyActiveAdmins(ctx, notify.TypeStockLow,
			"Low stock",
			fmt.Sprintf("available stock dropped to %d after transaction %s", after.Available, tr.Code),
			notify.RefItem, tr.ItemID)
	}
	return tr, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*TransactionResponse, error) {
	tr, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildResponse(tr)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]TransactionResponse, int64, error) {
	list, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]TransactionResponse, 0, len(list))
	for i := range list {
		out = append(out, buildResponse(&list[i]))
	}
	return out, total, nil
}
