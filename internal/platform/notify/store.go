package notify

import (
	"context"
	"database/sql"
	"time"
)

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

// ExistsSince reports whether an equivalent notification was already created
// for the dedupe tuple after the given lower bound.
func (s *Store) ExistsSince(ctx context.Context, adminID int64, typ, refType string, refID int64, since time.Time) (bool, error) {
	const q = `
	SELECT EXISTS(
		SELECT 1 FROM notifications
		WHERE admin_id = ? AND type = ?
		  AND reference_type <=> ? AND reference_id <=> ?
		  AND created_at >= ?
	)`
	var exists bool
	refT, refI := refOrNil(refType, refID)
	if err := s.db.QueryRowContext(ctx, q, adminID, typ, refT, refI, since).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) Insert(ctx context.Context, n *Notification) error {
	const q = `
	INSERT INTO notifications
	(notification_ulid, admin_id, type, title, message, reference_type, reference_id, is_read, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`
	res, err := s.db.ExecContext(ctx, q,
		n.ULID, n.AdminID, n.Type, n.Title, n.Message,
		nullStrOrNil(n.ReferenceType), nullIntOrNil(n.ReferenceID), n.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	n.ID = id
	return nil
}

func (s *Store) ListByAdmin(ctx context.Context, adminID int64, unreadOnly bool, limit, offset int) ([]Notification, error) {
	q := `
	SELECT notification_id, notification_ulid, admin_id, type, title, message,
	       reference_type, reference_id, is_read, created_at
	FROM notifications
	WHERE admin_id = ?`
	args := []any{adminID}
	if unreadOnly {
		q += ` AND is_read = 0`
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.ULID, &n.AdminID, &n.Type, &n.Title, &n.Message,
			&n.ReferenceType, &n.ReferenceID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkRead(ctx context.Context, adminID, id int64) error {
	const q = `UPDATE notifications SET is_read = 1 WHERE notification_id = ? AND admin_id = ?`
	res, err := s.db.ExecContext(ctx, q, id, adminID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func refOrNil(refType string, refID int64) (any, any) {
	if refType == "" {
		return nil, nil
	}
	return refType, refID
}

func nullStrOrNil(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}

func nullIntOrNil(ni sql.NullInt64) any {
	if ni.Valid {
		return ni.Int64
	}
	return nil
}
