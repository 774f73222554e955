package notify

import (
	"context"
	"crypto/rand"
	"database/sql"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
)

// DedupeWindow bounds the at-most-one rule per (admin, type, reference).
// The existence check is a time-range query, not a strict idempotency key;
// a benign duplicate under heavy concurrency is acceptable.
const DedupeWindow = 24 * time.Hour

// Notifier is what the inventory workflows see. Calls are fire-and-forget:
// a failed notification is logged and never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, adminID int64, typ, title, message, refType string, refID int64) (int64, error)
	NotifyActiveAdmins(ctx context.Context, typ, title, message, refType string, refID int64)
}

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }

type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// AdminDirectory lists the admins notifications fan out to.
type AdminDirectory interface {
	ActiveAdminIDs(ctx context.Context) ([]int64, error)
}

type NotificationStore interface {
	ExistsSince(ctx context.Context, adminID int64, typ, refType string, refID int64, since time.Time) (bool, error)
	Insert(ctx context.Context, n *Notification) error
}

type Service struct {
	store  NotificationStore
	admins AdminDirectory
	clock  Clock
	id     IDGen
}

func NewService(conn *sql.DB, admins AdminDirectory) *Service {
	return &Service{
		store:  NewStore(conn),
		admins: admins,
		clock:  realClock{},
		id:     ulidGen{},
	}
}

// Notify creates one notification unless an equivalent one exists inside the
// dedupe window. Returns the new row id, or 0 when deduplicated.
func (s *Service) Notify(ctx context.Context, adminID int64, typ, title, message, refType string, refID int64) (int64, error) {
	now := s.clock.Now()

	exists, err := s.store.ExistsSince(ctx, adminID, typ, refType, refID, now.Add(-DedupeWindow))
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	n := &Notification{
		ULID:      s.id.NewULID(now),
		AdminID:   adminID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: now,
	}
	if refType != "" {
		n.ReferenceType = sql.NullString{String: refType, Valid: true}
		n.ReferenceID = sql.NullInt64{Int64: refID, Valid: true}
	}
	if err := s.store.Insert(ctx, n); err != nil {
		return 0, err
	}
	return n.ID, nil
}

// NotifyActiveAdmins fans one notification out to every active admin.
// Failures are logged per admin and never propagate.
func (s *Service) NotifyActiveAdmins(ctx context.Context, typ, title, message, refType string, refID int64) {
	ids, err := s.admins.ActiveAdminIDs(ctx)
	if err != nil {
		log.Printf("[WARN] notify: failed to list active admins: %v", err)
		return
	}
	for _, id := range ids {
		if _, err := s.Notify(ctx, id, typ, title, message, refType, refID); err != nil {
			log.Printf("[WARN] notify: failed to notify admin %d: %v", id, err)
		}
	}
}

var _ Notifier = (*Service)(nil)
