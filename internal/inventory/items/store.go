package items

import (
	"context"
	"database/sql"
	"strings"

	"simpellab-backend/internal/inventory/stock"
	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/db"
)

const itemColumns = `
	item_id, code, name, category_id, brand_id, location_id,
	specification, purchase_year, purchase_price,
	stock_total, stock_available, stock_borrowed, stock_damaged,
	item_condition, status, deleted_at, created_at, updated_at`

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func scanItem(row interface{ Scan(dest ...any) error }) (*Item, error) {
	var it Item
	err := row.Scan(
		&it.ID, &it.Code, &it.Name, &it.CategoryID, &it.BrandID, &it.LocationID,
		&it.Specification, &it.PurchaseYear, &it.PurchasePrice,
		&it.Stock.Total, &it.Stock.Available, &it.Stock.Borrowed, &it.Stock.Damaged,
		&it.Condition, &it.Status, &it.DeletedAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// LockStock reads the item under an exclusive row lock. Every stock mutation
// goes through LockStock + UpdateStock inside one transaction.
func (s *Store) LockStock(ctx context.Context, tx db.DBTX, id int64) (*Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items WHERE item_id = ? FOR UPDATE`
	it, err := scanItem(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("item not found")
		}
		return nil, err
	}
	return it, nil
}

func (s *Store) UpdateStock(ctx context.Context, tx db.DBTX, id int64, st stock.Stock) error {
	const q = `
	UPDATE items
	SET stock_total = ?, stock_available = ?, stock_borrowed = ?, stock_damaged = ?,
	    updated_at = UTC_TIMESTAMP()
	WHERE item_id = ?`
	res, err := tx.ExecContext(ctx, q, st.Total, st.Available, st.Borrowed, st.Damaged, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff > 1 {
		return apperr.Internal("", "stock update touched more than one row")
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items WHERE item_id = ?`
	it, err := scanItem(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("item not found")
		}
		return nil, err
	}
	return it, nil
}

func (s *Store) GetByCode(ctx context.Context, code string) (*Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items WHERE code = ?`
	it, err := scanItem(s.db.QueryRowContext(ctx, q, code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("item not found")
		}
		return nil, err
	}
	return it, nil
}

func (s *Store) Insert(ctx context.Context, tx db.DBTX, it *Item) error {
	const q = `
	INSERT INTO items
	(code, name, category_id, brand_id, location_id, specification, purchase_year, purchase_price,
	 stock_total, stock_available, stock_borrowed, stock_damaged, item_condition, status,
	 created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())`
	res, err := tx.ExecContext(ctx, q,
		it.Code, it.Name, it.CategoryID, it.BrandID, it.LocationID,
		nullStrOrNil(it.Specification), nullIntOrNil(it.PurchaseYear), nullFloatOrNil(it.PurchasePrice),
		it.Stock.Total, it.Stock.Available, it.Stock.Borrowed, it.Stock.Damaged,
		it.Condition, it.Status,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	it.ID = id
	return nil
}

func (s *Store) Update(ctx context.Context, it *Item) error {
	const q = `
	UPDATE items
	SET name = ?, category_id = ?, brand_id = ?, location_id = ?,
	    specification = ?, purchase_year = ?, purchase_price = ?,
	    item_condition = ?, status = ?, updated_at = UTC_TIMESTAMP()
	WHERE item_id = ? AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, q,
		it.Name, it.CategoryID, it.BrandID, it.LocationID,
		nullStrOrNil(it.Specification), nullIntOrNil(it.PurchaseYear), nullFloatOrNil(it.PurchasePrice),
		it.Condition, it.Status, it.ID,
	)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apperr.NotFound("item not found")
	}
	return nil
}

// SoftDelete tombstones the row. History rows keep pointing at it.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	const q = `UPDATE items SET deleted_at = UTC_TIMESTAMP(), updated_at = UTC_TIMESTAMP()
	           WHERE item_id = ? AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apperr.NotFound("item not found")
	}
	return nil
}

func (s *Store) Restore(ctx context.Context, id int64) error {
	const q = `UPDATE items SET deleted_at = NULL, updated_at = UTC_TIMESTAMP()
	           WHERE item_id = ? AND deleted_at IS NOT NULL`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apperr.NotFound("item not found in trash")
	}
	return nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Item, int64, error) {
	where := strings.Builder{}
	args := []any{}

	if f.Deleted {
		where.WriteString(` AND deleted_at IS NOT NULL`)
	} else {
		where.WriteString(` AND deleted_at IS NULL`)
	}
	if f.Search != "" {
		where.WriteString(` AND (code LIKE ? OR name LIKE ?)`)
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	if f.CategoryID > 0 {
		where.WriteString(` AND category_id = ?`)
		args = append(args, f.CategoryID)
	}
	if f.BrandID > 0 {
		where.WriteString(` AND brand_id = ?`)
		args = append(args, f.BrandID)
	}
	if f.LocationID > 0 {
		where.WriteString(` AND location_id = ?`)
		args = append(args, f.LocationID)
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

	q := `SELECT ` + itemColumns + ` FROM items WHERE 1=1` + where.String() +
		` ORDER BY name ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM items WHERE 1=1` + where.String()
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// IDsNotInLocation returns the subset of ids whose item is missing, deleted,
// or stored at a different location. Used by the opname batch precheck.
func (s *Store) IDsNotInLocation(ctx context.Context, ids []int64, locationID int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := `SELECT item_id FROM items
	      WHERE item_id IN (` + placeholders + `) AND location_id = ? AND deleted_at IS NULL`
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, locationID)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
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

func nullFloatOrNil(nf sql.NullFloat64) any {
	if nf.Valid {
		return nf.Float64
	}
	return nil
}
