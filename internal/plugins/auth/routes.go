package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/campus/internal/middleware"
)

// RegisterRoutes sets up all auth-related routes on the given Echo instance.
// The middleware is exported separately for other plugins to use on their
// route groups.
//
// Unauthenticated POST endpoints are rate-limited per IP to slow down code
// guessing, credential stuffing, and mail flooding.
func RegisterRoutes(e *echo.Echo, h *Handler, tokens *TokenIssuer) {
	otpLimit := middleware.RateLimit(5, time.Minute)
	verifyLimit := middleware.RateLimit(10, time.Minute)
	loginLimit := middleware.RateLimit(10, time.Minute)
	registerLimit := middleware.RateLimit(5, time.Minute)

	// Email verification.
	e.POST("/otp/send-email-otp", h.SendOTP, otpLimit)
	e.POST("/otp/verify-email-otp", h.VerifyOTP, verifyLimit)

	// Self-registration requires a verified-email token in the body.
	e.POST("/student/register", h.Register(RoleStudent), registerLimit)
	e.POST("/teacher/register", h.Register(RoleTeacher), registerLimit)

	// Login, one route per role. /auth/login is the teacher login path
	// older mobile clients still call.
	e.POST("/student/login", h.Login(RoleStudent), loginLimit)
	e.POST("/teacher/login", h.Login(RoleTeacher), loginLimit)
	e.POST("/auth/login", h.Login(RoleTeacher), loginLimit)
	e.POST("/admin/login", h.Login(RoleAdmin), loginLimit)

	// Session management.
	e.POST("/auth/refresh", h.Refresh, loginLimit)
	e.POST("/auth/forgot-password", h.ForgotPassword, otpLimit)
	e.POST("/auth/reset-password", h.ResetPassword, registerLimit)

	e.POST("/auth/logout", h.Logout, RequireAuth(tokens))
	e.GET("/auth/me", h.Me, RequireAuth(tokens))

	// Admin provisioning.
	requireAdmin := []echo.MiddlewareFunc{RequireAuth(tokens), IsAdmin()}
	e.POST("/admin/add-student", h.AddUser(RoleStudent), requireAdmin...)
	e.POST("/admin/add-teacher", h.AddUser(RoleTeacher), requireAdmin...)
	e.POST("/admin/add-admin", h.AddUser(RoleAdmin), requireAdmin...)
}
