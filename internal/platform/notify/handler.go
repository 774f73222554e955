package notify

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/auth"
)

type Handler struct{ store *Store }

func RegisterRoutes(r gin.IRoutes, store *Store) {
	h := &Handler{store: store}
	r.GET("/notifications", h.List)
	r.PUT("/notifications/:id/read", h.MarkRead)
}

type notificationDTO struct {
	ID            int64      `json:"id"`
	ULID          string     `json:"ulid"`
	Type          string     `json:"type"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	ReferenceType *string    `json:"reference_type,omitempty"`
	ReferenceID   *int64     `json:"reference_id,omitempty"`
	IsRead        bool       `json:"is_read"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (h *Handler) List(c *gin.Context) {
	adminID := auth.AdminID(c)
	unread := c.Query("unread") == "true" || c.Query("unread") == "1"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, err := h.store.ListByAdmin(c.Request.Context(), adminID, unread, limit, offset)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFromErr(err))
		return
	}

	out := make([]notificationDTO, 0, len(rows))
	for _, n := range rows {
		d := notificationDTO{
			ID: n.ID, ULID: n.ULID, Type: n.Type, Title: n.Title,
			Message: n.Message, IsRead: n.IsRead, CreatedAt: n.CreatedAt,
		}
		if n.ReferenceType.Valid {
			v := n.ReferenceType.String
			d.ReferenceType = &v
		}
		if n.ReferenceID.Valid {
			v := n.ReferenceID.Int64
			d.ReferenceID = &v
		}
		out = append(out, d)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) MarkRead(c *gin.Context) {
	adminID := auth.AdminID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid notification id"))
		return
	}
	if err := h.store.MarkRead(c.Request.Context(), adminID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, apperr.Body(apperr.CodeNotFound, "notification not found"))
			return
		}
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}
