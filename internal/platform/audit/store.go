package audit

import (
	"context"
	"database/sql"
	"strings"
)

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func (s *Store) Insert(ctx context.Context, e *Entry) error {
	const q = `
	INSERT INTO activity_logs (log_ulid, admin_id, module, action, description, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		e.ULID, e.AdminID, e.Module, e.Action, nullStrOrNil(e.Description), e.CreatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	e.ID = id
	return nil
}

type Filter struct {
	Module  string
	Action  string
	AdminID int64
	Limit   int
	Offset  int
}

func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	sb := strings.Builder{}
	sb.WriteString(`
	SELECT log_id, log_ulid, admin_id, module, action, description, created_at
	FROM activity_logs
	WHERE 1=1`)

	args := []any{}
	if f.Module != "" {
		sb.WriteString(` AND module = ?`)
		args = append(args, f.Module)
	}
	if f.Action != "" {
		sb.WriteString(` AND action = ?`)
		args = append(args, f.Action)
	}
	if f.AdminID > 0 {
		sb.WriteString(` AND admin_id = ?`)
		args = append(args, f.AdminID)
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	sb.WriteString(` ORDER BY created_at DESC LIMIT ? OFFSET ?`)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ULID, &e.AdminID, &e.Module, &e.Action, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStrOrNil(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}
