package auth

import (
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/campus/internal/apperror"
)

// Context keys for storing the authenticated principal in Echo context.
// Other plugins use the exported getters below rather than these keys.
const (
	contextKeyUserID = "auth_user_id"
	contextKeyRole   = "auth_role"
)

// RequireAuth returns middleware that verifies the bearer access token and
// injects the caller's id and role into the request context. There is no
// revocation list: a token stays usable until it expires.
func RequireAuth(tokens *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c)
			if !ok {
				return apperror.NewUnauthenticated("missing or malformed authorization header")
			}

			claims, err := tokens.ParseAccessToken(token)
			if err != nil {
				return err
			}

			c.Set(contextKeyUserID, claims.ID)
			c.Set(contextKeyRole, claims.Role)

			return next(c)
		}
	}
}

// RequireRole returns middleware that only lets callers whose role is in
// roles through. Must run after RequireAuth.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := GetRole(c)
			if role == "" {
				return apperror.NewUnauthenticated("authentication required")
			}
			if !slices.Contains(roles, role) {
				return apperror.NewForbidden("you don't have permission to access this resource")
			}
			return next(c)
		}
	}
}

// IsAdmin allows admins only.
func IsAdmin() echo.MiddlewareFunc { return RequireRole(RoleAdmin) }

// IsTeacher allows teachers only.
func IsTeacher() echo.MiddlewareFunc { return RequireRole(RoleTeacher) }

// IsStudent allows students only.
func IsStudent() echo.MiddlewareFunc { return RequireRole(RoleStudent) }

// IsAdminOrTeacher allows admins and teachers.
func IsAdminOrTeacher() echo.MiddlewareFunc { return RequireRole(RoleAdmin, RoleTeacher) }

// --- Exported getters for other plugins ---

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}

// GetRole retrieves the authenticated user's role from the Echo context.
// Returns empty string if the request is not authenticated.
func GetRole(c echo.Context) Role {
	role, ok := c.Get(contextKeyRole).(Role)
	if !ok {
		return ""
	}
	return role
}

// GetPrincipal returns the caller as asserted by the access token.
func GetPrincipal(c echo.Context) Principal {
	return Principal{ID: GetUserID(c), Role: GetRole(c)}
}

// --- Helpers ---

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
