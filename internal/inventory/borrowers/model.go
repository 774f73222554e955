package borrowers

import (
	"database/sql"
	"time"
)

const (
	TypeStudent = "student"
	TypeTeacher = "teacher"
)

const (
	StatusActive  = "active"
	StatusBlocked = "blocked"
)

type Borrower struct {
	ID        int64
	Name      string
	IDNumber  string // NIS/NIP
	Type      string
	Class     sql.NullString
	Major     sql.NullString
	Status    string
	DeletedAt sql.NullTime
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanBorrow reports whether a new loan may be opened for this borrower.
func (b *Borrower) CanBorrow() bool {
	return !b.DeletedAt.Valid && b.Status == StatusActive
}

type Filter struct {
	Search  string // name or id number
	Type    string
	Status  string
	Deleted bool
	Limit   int
	Offset  int
}
