package opnames

import (
	"database/sql"
	"time"
)

// Line status: does the physical count match the system total.
const (
	StatusNormal      = "normal"
	StatusDiscrepancy = "discrepancy"
)

// Validation tracks what has been done about a line. matched lines need no
// action; review lines wait for an admin; approved lines have been applied
// to the item's counters.
const (
	ValidationMatched  = "matched"
	ValidationReview   = "review"
	ValidationApproved = "approved"
)

// ReasonLocationMismatch rejects a batch naming items stored elsewhere.
const ReasonLocationMismatch = "LOCATION_MISMATCH"

// StockOpname is one counted line of a reconciliation batch. The system_*
// columns snapshot the counters as they were under the row lock at count
// time; approval reconciles against the live row, not the snapshot.
type StockOpname struct {
	ID              int64
	Code            string    // shared by every line of the batch
	OpnameDate      time.Time // day the physical count was taken
	LocationID      int64
	ItemID          int64
	SystemTotal     int
	SystemAvailable int
	SystemBorrowed  int
	SystemDamaged   int
	PhysicalQty     int
	Difference      int // physical - system total
	Status          string
	Validation      string
	Notes           sql.NullString
	AdminID         int64
	ApprovedBy      sql.NullInt64
	ApprovedAt      sql.NullTime
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Filter struct {
	Search     string // batch code
	LocationID int64
	ItemID     int64
	Status     string
	Validation string
	Limit      int
	Offset     int
}
