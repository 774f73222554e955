package items

import (
	"database/sql"
	"time"

	"simpellab-backend/internal/inventory/stock"
)

const (
	StatusActive   = "active"
	StatusService  = "service"
	StatusInactive = "inactive"
)

const (
	ConditionGood  = "good"
	ConditionMinor = "minor"
	ConditionHeavy = "heavy"
)

// ReasonNotIssuable rejects stock leaving through an inactive or deleted item.
// Shared by the borrowing and out-transaction workflows.
const ReasonNotIssuable = "ITEM_NOT_ISSUABLE"

type Item struct {
	ID            int64
	Code          string
	Name          string
	CategoryID    int64
	BrandID       int64
	LocationID    int64
	Specification sql.NullString
	PurchaseYear  sql.NullInt64
	PurchasePrice sql.NullFloat64
	Stock         stock.Stock
	Condition     string
	Status        string
	DeletedAt     sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Issuable reports whether the item may leave stock through an
// out-transaction: not soft-deleted and status active.
func (i *Item) Issuable() bool {
	return !i.DeletedAt.Valid && i.Status == StatusActive
}

type Filter struct {
	Search     string // matches code or name
	CategoryID int64
	BrandID    int64
	LocationID int64
	Status     string
	Deleted    bool // list the trash instead of live rows
	Limit      int
	Offset     int
}
