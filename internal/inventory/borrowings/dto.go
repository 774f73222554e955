package borrowings

import "time"

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

type CreateBorrowingRequest struct {
	BorrowerID int64  `json:"borrower_id" binding:"required"`
	ItemID     int64  `json:"item_id" binding:"required"`
	Qty        int    `json:"qty" binding:"required"`
	BorrowType string `json:"borrow_type" binding:"required"`
	// "2006-01-02"; defaults to today when empty
	BorrowDate string `json:"borrow_date"`
	// required for daily loans, ignored for lesson loans
	ReturnDueDate *string `json:"return_due_date,omitempty"`
	LessonHour    *int64  `json:"lesson_hour,omitempty"`
	Subject       *string `json:"subject,omitempty"`
	Teacher       *string `json:"teacher,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

type ReturnRequest struct {
	BorrowerID  int64  `json:"borrower_id" binding:"required"`
	BorrowingID int64  `json:"borrowing_id" binding:"required"`
	Condition   string `json:"return_condition" binding:"required"`
	// "2006-01-02"; defaults to now when empty
	ReturnDate *string `json:"return_date,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type BorrowingResponse struct {
	ID              int64      `json:"id"`
	Code            string     `json:"code"`
	BorrowerID      int64      `json:"borrower_id"`
	ItemID          int64      `json:"item_id"`
	Qty             int        `json:"qty"`
	BorrowType      string     `json:"borrow_type"`
	LessonHour      *int64     `json:"lesson_hour,omitempty"`
	Subject         *string    `json:"subject,omitempty"`
	Teacher         *string    `json:"teacher,omitempty"`
	BorrowDate      time.Time  `json:"borrow_date"`
	ReturnDue       time.Time  `json:"return_due"`
	ReturnDate      *time.Time `json:"return_date,omitempty"`
	ReturnCondition *string    `json:"return_condition,omitempty"`
	Status          string     `json:"status"`
	Late            bool       `json:"late"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func buildResponse(b *Borrowing, now time.Time) BorrowingResponse {
	resp := BorrowingResponse{
		ID:         b.ID,
		Code:       b.Code,
		BorrowerID: b.BorrowerID,
		ItemID:     b.ItemID,
		Qty:        b.Qty,
		BorrowType: b.BorrowType,
		BorrowDate: b.BorrowDate,
		ReturnDue:  b.ReturnDue,
		Status:     b.Status,
		CreatedAt:  b.CreatedAt,
	}
	if b.LessonHour.Valid {
		v := b.LessonHour.Int64
		resp.LessonHour = &v
	}
	if b.Subject.Valid {
		v := b.Subject.String
		resp.Subject = &v
	}
	if b.Teacher.Valid {
		v := b.Teacher.String
		resp.Teacher = &v
	}
	if b.ReturnDate.Valid {
		v := b.ReturnDate.Time
		resp.ReturnDate = &v
	}
	if b.ReturnCondition.Valid {
		v := b.ReturnCondition.String
		resp.ReturnCondition = &v
	}
	if b.Notes.Valid {
		v := b.Notes.String
		resp.Notes = &v
	}

	// Lateness is reporting-only and never drives stock movement.
	switch {
	case b.ReturnDate.Valid:
		resp.Late = b.ReturnDate.Time.After(b.ReturnDue)
	case b.Active():
		resp.Late = now.After(b.ReturnDue)
	}
	return resp
}
