package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// The API is JSON over GET and POST, authenticated with a bearer token.
// Nothing rides on cookies, so credentials mode is never enabled.
var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	corsHeaders = strings.Join([]string{echo.HeaderContentType, echo.HeaderAuthorization}, ", ")
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists the browser origins that may call the API, e.g.
	// ["https://admin.campus.example", "http://localhost:8081"]. "*" allows
	// any origin.
	AllowedOrigins []string
}

// CORS answers cross-origin requests from the configured origins.
//
// Native mobile clients don't send an Origin header and skip CORS entirely.
// Browser clients such as the admin dashboard or Expo web builds are served
// from another origin and need it.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" || !(allowAll || origins[origin]) {
				// Unlisted origins get no headers; the browser blocks them.
				return next(c)
			}

			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			if c.Request().Method != http.MethodOptions {
				return next(c)
			}

			h.Set(echo.HeaderAccessControlAllowMethods, corsMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
			h.Set(echo.HeaderAccessControlMaxAge, "3600")
			return c.NoContent(http.StatusNoContent)
		}
	}
}
