package transactions

import (
	"database/sql"
	"time"
)

// Transaction directions. Rows are immutable once written; a mistake is
// corrected by a counter-transaction or an opname recount.
const (
	TypeIn  = "in"
	TypeOut = "out"
)

const ReasonItemDeleted = "ITEM_DELETED"

type Transaction struct {
	ID          int64
	Code        string
	ItemID      int64
	Type        string
	Qty         int
	Source      sql.NullString // supplier or origin for in-transactions
	Destination sql.NullString // recipient or destination for out-transactions
	Notes       sql.NullString
	AdminID     int64
	OccurredAt  time.Time
	CreatedAt   time.Time
}

type Filter struct {
	Search string // transaction code
	Type   string
	ItemID int64
	Limit  int
	Offset int
}
