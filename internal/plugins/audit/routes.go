package audit

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the audit log at GET /admin/audit. The caller
// supplies the authentication and admin-role middleware so this package
// stays independent of the auth plugin, which itself writes audit entries.
func RegisterRoutes(e *echo.Echo, h *Handler, guards ...echo.MiddlewareFunc) {
	e.GET("/admin/audit", h.List, guards...)
}
