package notify

import (
	"database/sql"
	"time"
)

// Notification types produced by the inventory workflows.
const (
	TypeStockLow          = "stock_low"
	TypeDueSoon           = "return_due_soon"
	TypeOverdue           = "overdue"
	TypeOpnameDiscrepancy = "opname_discrepancy"
)

// Reference types for the (admin, type, reference) dedupe tuple.
const (
	RefItem      = "item"
	RefBorrowing = "borrowing"
	RefOpname    = "stock_opname"
)

type Notification struct {
	ID            int64
	ULID          string
	AdminID       int64
	Type          string
	Title         string
	Message       string
	ReferenceType sql.NullString
	ReferenceID   sql.NullInt64
	IsRead        bool
	CreatedAt     time.Time
}
