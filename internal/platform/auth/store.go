package auth

import (
	"context"
	"database/sql"
)

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func (s *Store) GetByUsername(ctx context.Context, username string) (*Admin, error) {
	const q = `
	SELECT admin_id, username, name, password_hash, status, created_at, updated_at
	FROM admins WHERE username = ?`
	var a Admin
	err := s.db.QueryRowContext(ctx, q, username).Scan(
		&a.ID, &a.Username, &a.Name, &a.PasswordHash, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Admin, error) {
	const q = `
	SELECT admin_id, username, name, password_hash, status, created_at, updated_at
	FROM admins WHERE admin_id = ?`
	var a Admin
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&a.ID, &a.Username, &a.Name, &a.PasswordHash, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ActiveAdminIDs feeds notification fan-out and the overdue sweeper.
func (s *Store) ActiveAdminIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT admin_id FROM admins WHERE status = ?`, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Create(ctx context.Context, a *Admin) error {
	const q = `
	INSERT INTO admins (username, name, password_hash, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())`
	res, err := s.db.ExecContext(ctx, q, a.Username, a.Name, a.PasswordHash, a.Status)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	a.ID = id
	return nil
}
