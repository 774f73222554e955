package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"simpellab-backend/internal/platform/apperr"
)

type Handler struct{ store *Store }

func RegisterRoutes(r gin.IRoutes, store *Store) {
	h := &Handler{store: store}
	r.GET("/activity-logs", h.List)
}

type entryDTO struct {
	ID          int64     `json:"id"`
	ULID        string    `json:"ulid"`
	AdminID     int64     `json:"admin_id"`
	Module      string    `json:"module"`
	Action      string    `json:"action"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		Module: c.Query("module"),
		Action: c.Query("action"),
	}
	if v := c.Query("admin_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.AdminID = id
		}
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFromErr(err))
		return
	}

	out := make([]entryDTO, 0, len(rows))
	for _, e := range rows {
		d := entryDTO{
			ID: e.ID, ULID: e.ULID, AdminID: e.AdminID,
			Module: e.Module, Action: e.Action, CreatedAt: e.CreatedAt,
		}
		if e.Description.Valid {
			v := e.Description.String
			d.Description = &v
		}
		out = append(out, d)
	}
	c.JSON(http.StatusOK, out)
}
