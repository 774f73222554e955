package borrowings

import (
	"database/sql"
	"time"
)

// Loan kinds.
const (
	TypeLesson = "lesson" // implicitly due at the end of the borrow day
	TypeDaily  = "daily"  // caller-supplied due date
)

// Loan states. borrowed -> late is timer-driven and not terminal;
// returned/damaged/lost are terminal and set by the return workflow.
const (
	StatusBorrowed = "borrowed"
	StatusLate     = "late"
	StatusReturned = "returned"
	StatusDamaged  = "damaged"
	StatusLost     = "lost"
)

// Return conditions.
const (
	ConditionNormal  = "normal"
	ConditionDamaged = "damaged"
	ConditionLost    = "lost"
)

// Error reasons surfaced by the two workflows.
const (
	ReasonBorrowerBlocked  = "BORROWER_BLOCKED"
	ReasonActiveLoanExists = "ACTIVE_LOAN_EXISTS"
	ReasonInvalidDueDate   = "INVALID_DUE_DATE"
	ReasonLoanNotActive    = "LOAN_NOT_ACTIVE"
	ReasonBorrowerMismatch = "BORROWER_MISMATCH"
	ReasonDuplicateDamage  = "DUPLICATE_DAMAGE_REPORT"
)

type Borrowing struct {
	ID              int64
	Code            string
	BorrowerID      int64
	ItemID          int64
	Qty             int
	BorrowType      string
	LessonHour      sql.NullInt64
	Subject         sql.NullString
	Teacher         sql.NullString
	BorrowDate      time.Time
	ReturnDue       time.Time
	ReturnDate      sql.NullTime
	ReturnCondition sql.NullString
	Status          string
	AdminID         int64
	Notes           sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Active reports whether the loan still holds stock.
func (b *Borrowing) Active() bool {
	return (b.Status == StatusBorrowed || b.Status == StatusLate) && !b.ReturnDate.Valid
}

type Filter struct {
	Search     string // borrowing code
	Status     string
	BorrowType string
	BorrowerID int64
	ItemID     int64
	Limit      int
	Offset     int
}

// OpenLoan is one active loan row as seen by the overdue sweep,
// joined with display fields for the notification text.
type OpenLoan struct {
	ID           int64
	Code         string
	Status       string
	ReturnDue    time.Time
	BorrowerName string
	ItemCode     string
	ItemName     string
}
