package borrowers

import (
	"context"
	"database/sql"
	"strings"

	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/db"
)

const borrowerColumns = `
	borrower_id, name, id_number, type, class, major, status, deleted_at, created_at, updated_at`

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func scanBorrower(row interface{ Scan(dest ...any) error }) (*Borrower, error) {
	var b Borrower
	err := row.Scan(&b.ID, &b.Name, &b.IDNumber, &b.Type, &b.Class, &b.Major,
		&b.Status, &b.DeletedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Borrower, error) {
	q := `SELECT ` + borrowerColumns + ` FROM borrowers WHERE borrower_id = ?`
	b, err := scanBorrower(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("borrower not found")
		}
		return nil, err
	}
	return b, nil
}

// GetTx reads the borrower under its row lock inside the caller's
// transaction. Creating a loan locks the borrower as well as the item, so
// two concurrent creates for the same borrower serialize here and the
// one-open-loan check cannot pass twice.
func (s *Store) GetTx(ctx context.Context, tx db.DBTX, id int64) (*Borrower, error) {
	q := `SELECT ` + borrowerColumns + ` FROM borrowers WHERE borrower_id = ? FOR UPDATE`
	b, err := scanBorrower(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("borrower not found")
		}
		return nil, err
	}
	return b, nil
}

func (s *Store) Insert(ctx context.Context, b *Borrower) error {
	const q = `
	INSERT INTO borrowers (name, id_number, type, class, major, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())`
	res, err := s.db.ExecContext(ctx, q,
		b.Name, b.IDNumber, b.Type, nullStrOrNil(b.Class), nullStrOrNil(b.Major), b.Status)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	b.ID = id
	return nil
}

func (s *Store) Update(ctx context.Context, b *Borrower) error {
	const q = `
	UPDATE borrowers SET name = ?, id_number = ?, type = ?, class = ?, major = ?, status = ?,
	    updated_at = UTC_TIMESTAMP()
	WHERE borrower_id = ? AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, q,
		b.Name, b.IDNumber, b.Type, nullStrOrNil(b.Class), nullStrOrNil(b.Major), b.Status, b.ID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apperr.NotFound("borrower not found")
	}
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	const q = `UPDATE borrowers SET deleted_at = UTC_TIMESTAMP(), updated_at = UTC_TIMESTAMP()
	           WHERE borrower_id = ? AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apperr.NotFound("borrower not found")
	}
	return nil
}

func (s *Store) Restore(ctx context.Context, id int64) error {
	const q = `UPDATE borrowers SET deleted_at = NULL, updated_at = UTC_TIMESTAMP()
	           WHERE borrower_id = ? AND deleted_at IS NOT NULL`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apperr.NotFound("borrower not found in trash")
	}
	return nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Borrower, int64, error) {
	where := strings.Builder{}
	args := []any{}

	if f.Deleted {
		where.WriteString(` AND deleted_at IS NOT NULL`)
	} else {
		where.WriteString(` AND deleted_at IS NULL`)
	}
	if f.Search != "" {
		where.WriteString(` AND (name LIKE ? OR id_number LIKE ?)`)
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	if f.Type != "" {
		where.WriteString(` AND type = ?`)
		args = append(args, f.Type)
	}
	if f.Status != "" {
		where.WriteString(` AND status = ?`)
		args = append(args, f.Status)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `SELECT ` + borrowerColumns + ` FROM borrowers WHERE 1=1` + where.String() +
		` ORDER BY name ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Borrower
	for rows.Next() {
		b, err := scanBorrower(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM borrowers WHERE 1=1` + where.String()
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func nullStrOrNil(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}
