package damages

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/db"
)

const damageColumns = `
	damage_id, code, item_id, borrowing_id, qty, damage_level, description,
	status, solution, admin_id, reported_at, completed_at, created_at, updated_at`

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func scanDamage(row interface{ Scan(dest ...any) error }) (*Damage, error) {
	var d Damage
	err := row.Scan(
		&d.ID, &d.Code, &d.ItemID, &d.BorrowingID, &d.Qty, &d.Level, &d.Description,
		&d.Status, &d.Solution, &d.AdminID, &d.ReportedAt, &d.CompletedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) Insert(ctx context.Context, tx db.DBTX, d *Damage) error {
	const q = `
	INSERT INTO damages
	(code, item_id, borrowing_id, qty, damage_level, description, status, solution,
	 admin_id, reported_at, completed_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())`
	res, err := tx.ExecContext(ctx, q,
		d.Code, d.ItemID, nullInt(d.BorrowingID), d.Qty, d.Level, nullStr(d.Description),
		d.Status, nullStr(d.Solution), d.AdminID, d.ReportedAt, nullTime(d.CompletedAt),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	d.ID = id
	return nil
}

// InsertFromReturn opens the automatic ticket for a damaged return.
// Severity starts at moderate until an admin assesses the unit.
func (s *Store) InsertFromReturn(ctx context.Context, tx db.DBTX, code string, itemID, borrowingID, adminID int64, qty int, reportedAt time.Time) (int64, error) {
	d := &Damage{
		Code:        code,
		ItemID:      itemID,
		BorrowingID: sql.NullInt64{Int64: borrowingID, Valid: true},
		Qty:         qty,
		Level:       LevelModerate,
		Description: sql.NullString{String: "returned in damaged condition", Valid: true},
		Status:      StatusPending,
		AdminID:     adminID,
		ReportedAt:  reportedAt,
	}
	if err := s.Insert(ctx, tx, d); err != nil {
		return 0, err
	}
	return d.ID, nil
}

// ExistsForBorrowing enforces at most one ticket per loan.
func (s *Store) ExistsForBorrowing(ctx context.Context, tx db.DBTX, borrowingID int64) (bool, error) {
	const q = `SELECT COUNT(*) FROM damages WHERE borrowing_id = ?`
	var n int64
	if err := tx.QueryRowContext(ctx, q, borrowingID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Damage, error) {
	q := `SELECT ` + damageColumns + ` FROM damages WHERE damage_id = ?`
	d, err := scanDamage(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("damage report not found")
		}
		return nil, err
	}
	return d, nil
}

func (s *Store) Update(ctx context.Context, d *Damage) error {
	const q = `
	UPDATE damages
	SET damage_level = ?, description = ?, status = ?, solution = ?, completed_at = ?,
	    updated_at = UTC_TIMESTAMP()
	WHERE damage_id = ?`
	res, err := s.db.ExecContext(ctx, q,
		d.Level, nullStr(d.Description), d.Status, nullStr(d.Solution), nullTime(d.CompletedAt), d.ID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apperr.NotFound("damage report not found")
	}
	return nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Damage, int64, error) {
	where := strings.Builder{}
	args := []any{}

	if f.Search != "" {
		where.WriteString(` AND code LIKE ?`)
		args = append(args, "%"+f.Search+"%")
	}
	if f.ItemID > 0 {
		where.WriteString(` AND item_id = ?`)
		args = append(args, f.ItemID)
	}
	if f.Level != "" {
		where.WriteString(` AND damage_level = ?`)
		args = append(args, f.Level)
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

	q := `SELECT ` + damageColumns + ` FROM damages WHERE 1=1` + where.String() +
		` ORDER BY reported_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Damage
	for rows.Next() {
		d, err := scanDamage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM damages WHERE 1=1` + where.String()
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

func nullTime(nt sql.NullTime) any {
	if nt.Valid {
		return nt.Time
	}
	return nil
}
