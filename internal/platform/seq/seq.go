// Package seq allocates human-readable business codes like BRW260901-0001.
// Sequences live in the code_sequences table, one row per prefix, and are
// allocated inside the caller's transaction so concurrent inserts cannot
// collide.
package seq

import (
	"context"
	"fmt"
	"time"

	"simpellab-backend/internal/platform/db"
)

// Generator allocates the next code for a prefix. The single implementation
// is table-backed; services depend on this interface so tests can stub it.
type Generator interface {
	NextCode(ctx context.Context, tx db.DBTX, prefix string) (string, error)
}

type tableGen struct{}

func New() Generator { return tableGen{} }

func (tableGen) NextCode(ctx context.Context, tx db.DBTX, prefix string) (string, error) {
	// Fresh prefix: RowsAffected = 1 (seq 1).
	// Existing prefix: RowsAffected = 2, allocated value via LAST_INSERT_ID.
	const q = `
	INSERT INTO code_sequences (prefix, next_seq)
	VALUES (?, 1)
	ON DUPLICATE KEY UPDATE next_seq = LAST_INSERT_ID(next_seq + 1)`

	res, err := tx.ExecContext(ctx, q, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to allocate code for prefix %s: %w", prefix, err)
	}
	aff, _ := res.RowsAffected()
	if aff == 1 {
		return Format(prefix, 1), nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read allocated sequence for prefix %s: %w", prefix, err)
	}
	return Format(prefix, int(id)), nil
}

// DatePrefix builds a date-scoped prefix, e.g. DatePrefix("BRW", t) -> "BRW260901-".
func DatePrefix(tag string, t time.Time) string {
	return tag + t.Format("060102") + "-"
}

// Format appends the zero-padded 4-digit suffix.
func Format(prefix string, n int) string {
	return fmt.Sprintf("%s%04d", prefix, n)
}
