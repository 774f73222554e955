package transactions

import (
	"context"
	"database/sql"
	"strings"

	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/db"
)

const transactionColumns = `
	transaction_id, code, item_id, transaction_type, qty,
	source, destination, notes, admin_id, occurred_at, created_at`

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func scanTransaction(row interface{ Scan(dest ...any) error }) (*Transaction, error) {
	var tr Transaction
	err := row.Scan(
		&tr.ID, &tr.Code, &tr.ItemID, &tr.Type, &tr.Qty,
		&tr.Source, &tr.Destination, &tr.Notes, &tr.AdminID, &tr.OccurredAt, &tr.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// Insert is the only write; the table has no update path.
func (s *Store) Insert(ctx context.Context, tx db.DBTX, tr *Transaction) error {
	const q = `
	INSERT INTO transactions
	(code, item_id, transaction_type, qty, source, destination, notes, admin_id, occurred_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP())`
	res, err := tx.ExecContext(ctx, q,
		tr.Code, tr.ItemID, tr.Type, tr.Qty,
		nullStr(tr.Source), nullStr(tr.Destination), nullStr(tr.Notes), tr.AdminID, tr.OccurredAt,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	tr.ID = id
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = ?`
	tr, err := scanTransaction(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("transaction not found")
		}
		return nil, err
	}
	return tr, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Transaction, int64, error) {
	where := strings.Builder{}
	args := []any{}

	if f.Search != "" {
		where.WriteString(` AND code LIKE ?`)
		args = append(args, "%"+f.Search+"%")
	}
	if f.Type != "" {
		where.WriteString(` AND transaction_type = ?`)
		args = append(args, f.Type)
	}
	if f.ItemID > 0 {
		where.WriteString(` AND item_id = ?`)
		args = append(args, f.ItemID)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1` + where.String() +
		` ORDER BY occurred_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *tr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM transactions WHERE 1=1` + where.String()
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func nullStr(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}
