package damages

import (
	"database/sql"
	"time"
)

// Damage severity as judged by the admin.
const (
	LevelMinor    = "minor"
	LevelModerate = "moderate"
	LevelHeavy    = "heavy"
)

// Repair progress. completed requires a solution and a completion date.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// ReasonLoanStillActive rejects a manual report against an open loan;
// the damage belongs in the return workflow, which moves the stock.
const ReasonLoanStillActive = "LOAN_STILL_ACTIVE"

type Damage struct {
	ID          int64
	Code        string
	ItemID      int64
	BorrowingID sql.NullInt64
	Qty         int
	Level       string
	Description sql.NullString
	Status      string
	Solution    sql.NullString
	AdminID     int64
	ReportedAt  time.Time
	CompletedAt sql.NullTime
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Filter struct {
	Search string // damage code
	ItemID int64
	Level  string
	Status string
	Limit  int
	Offset int
}
