package borrowers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/audit"
)

type CreateBorrowerRequest struct {
	Name     string  `json:"name" binding:"required"`
	IDNumber string  `json:"id_number" binding:"required"`
	Type     string  `json:"type" binding:"required"`
	Class    *string `json:"class,omitempty"`
	Major    *string `json:"major,omitempty"`
}

type UpdateBorrowerRequest struct {
	Name     *string `json:"name,omitempty"`
	IDNumber *string `json:"id_number,omitempty"`
	Type     *string `json:"type,omitempty"`
	Class    *string `json:"class,omitempty"`
	Major    *string `json:"major,omitempty"`
	Status   *string `json:"status,omitempty"`
}

type BorrowerResponse struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	IDNumber  string     `json:"id_number"`
	Type      string     `json:"type"`
	Class     *string    `json:"class,omitempty"`
	Major     *string    `json:"major,omitempty"`
	Status    string     `json:"status"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func buildResponse(b *Borrower) BorrowerResponse {
	resp := BorrowerResponse{
		ID: b.ID, Name: b.Name, IDNumber: b.IDNumber, Type: b.Type,
		Status: b.Status, CreatedAt: b.CreatedAt,
	}
	if b.Class.Valid {
		v := b.Class.String
		resp.Class = &v
	}
	if b.Major.Valid {
		v := b.Major.String
		resp.Major = &v
	}
	if b.DeletedAt.Valid {
		v := b.DeletedAt.Time
		resp.DeletedAt = &v
	}
	return resp
}

type Service struct {
	store *Store
	audit audit.Recorder
}

func NewService(conn *sql.DB, rec audit.Recorder) *Service {
	return &Service{store: NewStore(conn), audit: rec}
}

func (s *Service) Store() *Store { return s.store }

func (s *Service) Create(ctx context.Context, adminID int64, req CreateBorrowerRequest) (*BorrowerResponse, error) {
	if req.Type != TypeStudent && req.Type != TypeTeacher {
		return nil, apperr.Invalid("", "type must be student or teacher")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.IDNumber) == "" {
		return nil, apperr.Invalid("", "name and id_number are required")
	}

	b := &Borrower{
		Name:     strings.TrimSpace(req.Name),
		IDNumber: strings.TrimSpace(req.IDNumber),
		Type:     req.Type,
		Status:   StatusActive,
	}
	if req.Class != nil && *req.Class != "" {
		b.Class = sql.NullString{String: *req.Class, Valid: true}
	}
	if req.Major != nil && *req.Major != "" {
		b.Major = sql.NullString{String: *req.Major, Valid: true}
	}

	if err := s.store.Insert(ctx, b); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, adminID, "borrowers", "create",
		fmt.Sprintf("create borrower %s (%s, ID: %d)", b.Name, b.IDNumber, b.ID))

	resp := buildResponse(b)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*BorrowerResponse, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildResponse(b)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]BorrowerResponse, int64, error) {
	rows, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BorrowerResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildResponse(&rows[i]))
	}
	return out, total, nil
}

func (s *Service) Update(ctx context.Context, adminID, id int64, req UpdateBorrowerRequest) (*BorrowerResponse, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.DeletedAt.Valid {
		return nil, apperr.NotFound("borrower not found")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Invalid("", "name must not be empty")
		}
		b.Name = name
	}
	if req.IDNumber != nil && *req.IDNumber != "" {
		b.IDNumber = strings.TrimSpace(*req.IDNumber)
	}
	if req.Type != nil {
		if *req.Type != TypeStudent && *req.Type != TypeTeacher {
			return nil, apperr.Invalid("", "type must be student or teacher")
		}
		b.Type = *req.Type
	}
	if req.Class != nil {
		b.Class = sql.NullString{String: *req.Class, Valid: *req.Class != ""}
	}
	if req.Major != nil {
		b.Major = sql.NullString{String: *req.Major, Valid: *req.Major != ""}
	}
	if req.Status != nil {
		if *req.Status != StatusActive && *req.Status != StatusBlocked {
			return nil, apperr.Invalid("", "status must be active or blocked")
		}
		b.Status = *req.Status
	}

	if err := s.store.Update(ctx, b); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, adminID, "borrowers", "update",
		fmt.Sprintf("update borrower %s (ID: %d) | status=%s", b.Name, b.ID, b.Status))

	resp := buildResponse(b)
	return &resp, nil
}

func (s *Service) Delete(ctx context.Context, adminID, id int64) error {
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, adminID, "borrowers", "delete", fmt.Sprintf("trash borrower ID: %d", id))
	return nil
}

func (s *Service) Restore(ctx context.Context, adminID, id int64) error {
	if err := s.store.Restore(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, adminID, "borrowers", "restore", fmt.Sprintf("restore borrower ID: %d", id))
	return nil
}
