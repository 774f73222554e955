package borrowings

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/db"
)

const borrowingColumns = `
	borrowing_id, code, borrower_id, item_id, qty, borrow_type,
	lesson_hour, subject, teacher,
	borrow_date, return_due, return_date, return_condition,
	status, admin_id, notes, created_at, updated_at`

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func scanBorrowing(row interface{ Scan(dest ...any) error }) (*Borrowing, error) {
	var b Borrowing
	err := row.Scan(
		&b.ID, &b.Code, &b.BorrowerID, &b.ItemID, &b.Qty, &b.BorrowType,
		&b.LessonHour, &b.Subject, &b.Teacher,
		&b.BorrowDate, &b.ReturnDue, &b.ReturnDate, &b.ReturnCondition,
		&b.Status, &b.AdminID, &b.Notes, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// HasActiveLoan reports whether the borrower holds any open loan. One open
// loan per borrower, regardless of item. Runs inside the borrow transaction
// so the check and the insert see the same snapshot.
func (s *Store) HasActiveLoan(ctx context.Context, tx db.DBTX, borrowerID int64) (bool, error) {
	const q = `SELECT COUNT(*) FROM borrowings
	           WHERE borrower_id = ? AND status IN (?, ?) AND return_date IS NULL`
	var n int64
	if err := tx.QueryRowContext(ctx, q, borrowerID, StatusBorrowed, StatusLate).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Insert(ctx context.Context, tx db.DBTX, b *Borrowing) error {
	const q = `
	INSERT INTO borrowings
	(code, borrower_id, item_id, qty, borrow_type, lesson_hour, subject, teacher,
	 borrow_date, return_due, status, admin_id, notes, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())`
	res, err := tx.ExecContext(ctx, q,
		b.Code, b.BorrowerID, b.ItemID, b.Qty, b.BorrowType,
		nullInt(b.LessonHour), nullStr(b.Subject), nullStr(b.Teacher),
		b.BorrowDate, b.ReturnDue, b.Status, b.AdminID, nullStr(b.Notes),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	b.ID = id
	return nil
}

// GetForUpdate locks the loan row for the return workflow.
func (s *Store) GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*Borrowing, error) {
	q := `SELECT ` + borrowingColumns + ` FROM borrowings WHERE borrowing_id = ? FOR UPDATE`
	b, err := scanBorrowing(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("borrowing not found")
		}
		return nil, err
	}
	return b, nil
}

// Resolve closes the loan with its terminal state.
func (s *Store) Resolve(ctx context.Context, tx db.DBTX, id int64, status, condition string, returnedAt time.Time, notes sql.NullString) error {
	const q = `
	UPDATE borrowings
	SET status = ?, return_condition = ?, return_date = ?,
	    notes = COALESCE(?, notes), updated_at = UTC_TIMESTAMP()
	WHERE borrowing_id = ?`
	res, err := tx.ExecContext(ctx, q, status, condition, returnedAt, nullStr(notes), id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apperr.NotFound("borrowing not found")
	}
	return nil
}

// ListOpenDue returns every active loan whose due time falls before the cutoff,
// joined with borrower and item display fields for notification text.
func (s *Store) ListOpenDue(ctx context.Context, cutoff time.Time) ([]OpenLoan, error) {
	const q = `
	SELECT b.borrowing_id, b.code, b.status, b.return_due, br.name, i.code, i.name
	FROM borrowings b
	JOIN borrowers br ON br.borrower_id = b.borrower_id
	JOIN items i ON i.item_id = b.item_id
	WHERE b.status IN (?, ?) AND b.return_date IS NULL AND b.return_due < ?
	ORDER BY b.return_due ASC`
	rows, err := s.db.QueryContext(ctx, q, StatusBorrowed, StatusLate, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OpenLoan
	for rows.Next() {
		var l OpenLoan
		if err := rows.Scan(&l.ID, &l.Code, &l.Status, &l.ReturnDue, &l.BorrowerName, &l.ItemCode, &l.ItemName); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// MarkLate flips still-open overdue loans to late. The status guard keeps the
// sweep idempotent and makes it lose races against a concurrent return.
func (s *Store) MarkLate(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := `UPDATE borrowings SET status = ?, updated_at = UTC_TIMESTAMP()
	      WHERE borrowing_id IN (` + placeholders + `) AND status = ? AND return_date IS NULL`
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusLate)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusBorrowed)

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Borrowing, error) {
	q := `SELECT ` + borrowingColumns + ` FROM borrowings WHERE borrowing_id = ?`
	b, err := scanBorrowing(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("borrowing not found")
		}
		return nil, err
	}
	return b, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Borrowing, int64, error) {
	where := strings.Builder{}
	args := []any{}

	if f.Search != "" {
		where.WriteString(` AND code LIKE ?`)
		args = append(args, "%"+f.Search+"%")
	}
	if f.Status != "" {
		where.WriteString(` AND status = ?`)
		args = append(args, f.Status)
	}
	if f.BorrowType != "" {
		where.WriteString(` AND borrow_type = ?`)
		args = append(args, f.BorrowType)
	}
	if f.BorrowerID > 0 {
		where.WriteString(` AND borrower_id = ?`)
		args = append(args, f.BorrowerID)
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

	q := `SELECT ` + borrowingColumns + ` FROM borrowings WHERE 1=1` + where.String() +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Borrowing
	for rows.Next() {
		b, err := scanBorrowing(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM borrowings WHERE 1=1` + where.String()
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

func nullInt(ni sql.NullInt64) any {
	if ni.Valid {
		return ni.Int64
	}
	return nil
}
