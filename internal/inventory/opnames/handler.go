package opnames

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"simpellab-backend/internal/platform/apperr"
	"simpellab-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/opnames", h.Create)
	r.GET("/opnames", h.List)
	r.GET("/opnames/:id", h.Get)
	r.POST("/opnames/:id/approve", h.Approve)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateOpnameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.CreateBatch(c.Request.Context(), auth.AdminID(c), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lines": res})
}

func (h *Handler) Approve(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid id"))
		return
	}
	res, err := h.svc.Approve(c.Request.Context(), auth.AdminID(c), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid id"))
		return
	}
	res, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		Search:     c.Query("search"),
		Status:     c.Query("status"),
		Validation: c.Query("validation"),
	}
	if v, err := strconv.ParseInt(c.Query("location_id"), 10, 64); err == nil {
		f.LocationID = v
	}
	if v, err := strconv.ParseInt(c.Query("item_id"), 10, 64); err == nil {
		f.ItemID = v
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"opnames": rows, "total": total})
}
