package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for the audit log. Handlers are thin:
// bind request, call service, render response. No business logic lives here.
type Handler struct {
	service AuditService
}

// NewHandler creates a new audit handler.
func NewHandler(service AuditService) *Handler {
	return &Handler{service: service}
}

// List returns one page of the audit log (GET /admin/audit?page=N).
// Restricted to admins via route middleware.
func (h *Handler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	result, err := h.service.List(c.Request().Context(), page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
