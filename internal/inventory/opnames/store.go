package opnames

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/db"
)

const opnameColumns = `
	opname_id, code, opname_date, location_id, item_id,
	system_total, system_available, system_borrowed, system_damaged,
	physical_qty, difference, status, validation, notes,
	admin_id, approved_by, approved_at, created_at, updated_at`

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func scanOpname(row interface{ Scan(dest ...any) error }) (*StockOpname, error) {
	var o StockOpname
	err := row.Scan(
		&o.ID, &o.Code, &o.OpnameDate, &o.LocationID, &o.ItemID,
		&o.SystemTotal, &o.SystemAvailable, &o.SystemBorrowed, &o.SystemDamaged,
		&o.PhysicalQty, &o.Difference, &o.Status, &o.Validation, &o.Notes,
		&o.AdminID, &o.ApprovedBy, &o.ApprovedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) InsertLine(ctx context.Context, tx db.DBTX, o *StockOpname) error {
	const q = `
	INSERT INTO stock_opnames
	(code, opname_date, location_id, item_id, system_total, system_available, system_borrowed, system_damaged,
	 physical_qty, difference, status, validation, notes, admin_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())`
	res, err := tx.ExecContext(ctx, q,
		o.Code, o.OpnameDate, o.LocationID, o.ItemID,
		o.SystemTotal, o.SystemAvailable, o.SystemBorrowed, o.SystemDamaged,
		o.PhysicalQty, o.Difference, o.Status, o.Validation, nullStr(o.Notes), o.AdminID,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	o.ID = id
	return nil
}

// GetForUpdate locks the line for approval.
func (s *Store) GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (*StockOpname, error) {
	q := `SELECT ` + opnameColumns + ` FROM stock_opnames WHERE opname_id = ? FOR UPDATE`
	o, err := scanOpname(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("opname line not found")
		}
		return nil, err
	}
	return o, nil
}

func (s *Store) Approve(ctx context.Context, tx db.DBTX, id, adminID int64, at time.Time) error {
	const q = `
	UPDATE stock_opnames
	SET validation = ?, approved_by = ?, approved_at = ?, updated_at = UTC_TIMESTAMP()
	WHERE opname_id = ?`
	res, err := tx.ExecContext(ctx, q, ValidationApproved, adminID, at, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apperr.NotFound("opname line not found")
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*StockOpname, error) {
	q := `SELECT ` + opnameColumns + ` FROM stock_opnames WHERE opname_id = ?`
	o, err := scanOpname(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("opname line not found")
		}
		return nil, err
	}
	return o, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]StockOpname, int64, error) {
	where := strings.Builder{}
	args := []any{}

	if f.Search != "" {
		where.WriteString(` AND code LIKE ?`)
		args = append(args, "%"+f.Search+"%")
	}
	if f.LocationID > 0 {
		where.WriteString(` AND location_id = ?`)
		args = append(args, f.LocationID)
	}
	if f.ItemID > 0 {
		where.WriteString(` AND item_id = ?`)
		args = append(args, f.ItemID)
	}
	if f.Status != "" {
		where.WriteString(` AND status = ?`)
		args = append(args, f.Status)
	}
	if f.Validation != "" {
		where.WriteString(` AND validation = ?`)
		args = append(args, f.Validation)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `SELECT ` + opnameColumns + ` FROM stock_opnames WHERE 1=1` + where.String() +
		` ORDER BY created_at DESC, opname_id ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []StockOpname
	for rows.Next() {
		o, err := scanOpname(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM stock_opnames WHERE 1=1` + where.String()
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
