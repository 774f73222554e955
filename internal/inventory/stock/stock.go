// Package stock owns the four-counter stock state of an item and the
// adjustment primitives every workflow goes through. Callers must hold the
// item row lock (SELECT ... FOR UPDATE) for the whole adjustment and persist
// the result in the same transaction.
package stock

import (
	"fmt"

	"simpellab-backend/internal/platform/apperr"
)

// DefaultLowThreshold is the available-stock floor that triggers a low-stock
// notification when crossed.
const DefaultLowThreshold = 5

const (
	ReasonInvalidQuantity   = "INVALID_QUANTITY"
	ReasonInsufficientStock = "INSUFFICIENT_STOCK"
	ReasonBelowMinimumStock = "BELOW_MINIMUM_STOCK"
	ReasonStockInconsistent = "STOCK_INCONSISTENT"
)

// Stock is the counter state of one item.
// Invariant: Available + Borrowed + Damaged == Total, all counters >= 0.
type Stock struct {
	Total     int
	Available int
	Borrowed  int
	Damaged   int
}

// NewInitial is the counter state of a freshly registered item.
func NewInitial(total int) (Stock, error) {
	if total < 0 {
		return Stock{}, apperr.Invalid(ReasonInvalidQuantity, "initial stock must be >= 0")
	}
	return Stock{Total: total, Available: total}, nil
}

// Receive adds incoming units (transaction-in).
func (s *Stock) Receive(qty int) error {
	if qty <= 0 {
		return apperr.Invalid(ReasonInvalidQuantity, "qty must be > 0")
	}
	s.Total += qty
	s.Available += qty
	return nil
}

// Issue removes units from the inventory (transaction-out). The units leave
// the lab, so Total drops with Available; otherwise the invariant could never
// hold again after an out-transaction.
func (s *Stock) Issue(qty int) error {
	if qty <= 0 {
		return apperr.Invalid(ReasonInvalidQuantity, "qty must be > 0")
	}
	if s.Available < qty {
		return apperr.Conflict(ReasonInsufficientStock, "available stock is not enough")
	}
	s.Available -= qty
	s.Total -= qty
	return nil
}

// MoveToBorrowed reserves units for a loan.
func (s *Stock) MoveToBorrowed(qty int) error {
	if qty <= 0 {
		return apperr.Invalid(ReasonInvalidQuantity, "qty must be > 0")
	}
	if s.Available < qty {
		return apperr.Conflict(ReasonInsufficientStock, "available stock is not enough")
	}
	s.Available -= qty
	s.Borrowed += qty
	return nil
}

// MoveBorrowedToAvailable puts a returned loan back on the shelf.
func (s *Stock) MoveBorrowedToAvailable(qty int) {
	s.Available += qty
	s.Borrowed = max0(s.Borrowed - qty)
}

// MoveBorrowedToDamaged records a loan returned in damaged condition.
func (s *Stock) MoveBorrowedToDamaged(qty int) {
	s.Damaged += qty
	s.Borrowed = max0(s.Borrowed - qty)
}

// MoveBorrowedToLost writes lost units off. Total drops immediately so the
// invariant stays an equality; there is no separate write-off step.
func (s *Stock) MoveBorrowedToLost(qty int) {
	s.Borrowed = max0(s.Borrowed - qty)
	s.Total = max0(s.Total - qty)
}

// MoveAvailableToDamaged records damage found on shelved units
// (manual damage report, no loan involved in the stock movement).
func (s *Stock) MoveAvailableToDamaged(qty int) error {
	if qty <= 0 {
		return apperr.Invalid(ReasonInvalidQuantity, "qty must be > 0")
	}
	if s.Available < qty {
		return apperr.Conflict(ReasonInsufficientStock, "available stock is not enough")
	}
	s.Available -= qty
	s.Damaged += qty
	return nil
}

// ReconcileTotal overwrites Total from a physical count (opname approval)
// and recomputes Available. The count cannot be lower than the units known
// to be out of the available pool.
func (s *Stock) ReconcileTotal(newTotal int) error {
	if newTotal < s.Borrowed+s.Damaged {
		return apperr.Conflict(ReasonBelowMinimumStock,
			fmt.Sprintf("physical stock (%d) is lower than borrowed+damaged (%d)", newTotal, s.Borrowed+s.Damaged))
	}
	s.Total = newTotal
	s.Available = max0(s.Total - s.Borrowed - s.Damaged)
	return nil
}

// Check asserts the counter invariant. A failure means corrupted state; the
// caller must abort the transaction without attempting repair.
func (s Stock) Check() error {
	if s.Total < 0 || s.Available < 0 || s.Borrowed < 0 || s.Damaged < 0 {
		return apperr.Internal(ReasonStockInconsistent,
			fmt.Sprintf("negative stock counter: total=%d available=%d borrowed=%d damaged=%d",
				s.Total, s.Available, s.Borrowed, s.Damaged))
	}
	if s.Available+s.Borrowed+s.Damaged != s.Total {
		return apperr.Internal(ReasonStockInconsistent,
			fmt.Sprintf("stock counters out of balance: total=%d available=%d borrowed=%d damaged=%d",
				s.Total, s.Available, s.Borrowed, s.Damaged))
	}
	return nil
}

// Low reports whether Available is under the notification threshold.
func (s Stock) Low(threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultLowThreshold
	}
	return s.Available < threshold
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
