// Package audit records human-readable admin activity. The log is advisory:
// a failed write is logged and never fails the calling workflow.
package audit

import (
	"context"
	"crypto/rand"
	"database/sql"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
)

const maxDescriptionLen = 2000

// Recorder is the sink the inventory workflows call.
type Recorder interface {
	Record(ctx context.Context, adminID int64, module, action, description string)
}

type Entry struct {
	ID          int64
	ULID        string
	AdminID     int64
	Module      string // e.g. "items", "borrowings", "opnames"
	Action      string // create|update|delete|restore|return|approve|sweep
	Description sql.NullString
	CreatedAt   time.Time
}

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	store *Store
	clock Clock
}

func NewService(conn *sql.DB) *Service {
	return &Service{store: NewStore(conn), clock: realClock{}}
}

func (s *Service) Record(ctx context.Context, adminID int64, module, action, description string) {
	if adminID <= 0 {
		return
	}
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen] + "..."
	}

	now := s.clock.Now()
	e := &Entry{
		ULID:      newULID(now),
		AdminID:   adminID,
		Module:    module,
		Action:    action,
		CreatedAt: now,
	}
	if description != "" {
		e.Description = sql.NullString{String: description, Valid: true}
	}

	if err := s.store.Insert(ctx, e); err != nil {
		log.Printf("[WARN] audit: failed to record %s/%s for admin %d: %v", module, action, adminID, err)
	}
}

var _ Recorder = (*Service)(nil)

func newULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
