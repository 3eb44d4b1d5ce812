package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/campus/internal/apperror"
	"github.com/keyxmakerx/campus/internal/plugins/audit"
)

// Handler handles HTTP requests for authentication. Handlers are thin: they
// bind the request, call the service, and write JSON. No business logic
// lives here.
type Handler struct {
	service AuthService
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

// messageResponse is the body of endpoints that only confirm an action.
type messageResponse struct {
	Message string `json:"message"`
}

// --- Email verification ---

// SendOTP mails a verification code (POST /otp/send-email-otp).
func (h *Handler) SendOTP(c echo.Context) error {
	var req SendOTPRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewInvalidInput("invalid request body")
	}

	if err := h.service.SendOTP(requestContext(c), req.Email); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "verification code sent"})
}

// VerifyOTP checks a code and returns a verified-email token
// (POST /otp/verify-email-otp). The otp field may be a string or a number.
func (h *Handler) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewInvalidInput("invalid request body")
	}

	token, err := h.service.VerifyOTP(requestContext(c), req.Email, string(req.OTP))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message":           "email verified",
		"verificationToken": token,
	})
}

// --- Registration ---

// Register returns the self-registration handler for role
// (POST /student/register, POST /teacher/register).
func (h *Handler) Register(role Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ProfileRequest
		if err := c.Bind(&req); err != nil {
			return apperror.NewInvalidInput("invalid request body")
		}

		user, err := h.service.Register(requestContext(c), role, profileInputFromRequest(req), req.VerificationToken)
		if err != nil {
			return err
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"message": "registration successful",
			"user":    user,
		})
	}
}

// AddUser returns the admin provisioning handler for role
// (POST /admin/add-student, /admin/add-teacher, /admin/add-admin).
func (h *Handler) AddUser(role Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req ProfileRequest
		if err := c.Bind(&req); err != nil {
			return apperror.NewInvalidInput("invalid request body")
		}

		user, err := h.service.AddPrivilegedUser(requestContext(c), role, profileInputFromRequest(req), GetPrincipal(c))
		if err != nil {
			return err
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"message": string(role) + " added",
			"user":    user,
		})
	}
}

// --- Sessions ---

// Login returns the login handler for the role a route serves
// (POST /student/login, /teacher/login, /auth/login, /admin/login).
func (h *Handler) Login(role Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req LoginRequest
		if err := c.Bind(&req); err != nil {
			return apperror.NewInvalidInput("invalid request body")
		}

		result, err := h.service.Login(requestContext(c), req.Email, req.Password, role)
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, result)
	}
}

// Refresh exchanges a refresh token for a new pair (POST /auth/refresh).
func (h *Handler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewInvalidInput("invalid request body")
	}

	pair, err := h.service.Refresh(requestContext(c), req.RefreshToken)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, pair)
}

// Logout forgets the caller's refresh token (POST /auth/logout).
func (h *Handler) Logout(c echo.Context) error {
	if err := h.service.Logout(requestContext(c), GetUserID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

// Me returns the caller's profile (GET /auth/me).
func (h *Handler) Me(c echo.Context) error {
	user, err := h.service.Me(requestContext(c), GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"user": user})
}

// --- Password reset ---

// ForgotPassword mails a reset code if the account exists
// (POST /auth/forgot-password). The response never reveals which.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req SendOTPRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewInvalidInput("invalid request body")
	}

	if err := h.service.ForgotPassword(requestContext(c), req.Email); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messageResponse{
		Message: "if an account exists for this email, a reset code has been sent",
	})
}

// ResetPassword sets a new password (POST /auth/reset-password).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewInvalidInput("invalid request body")
	}

	if err := h.service.ResetPassword(requestContext(c), req.VerificationToken, req.NewPassword); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

// requestContext carries the client IP along so audit entries can record it.
func requestContext(c echo.Context) context.Context {
	return audit.WithIP(c.Request().Context(), c.RealIP())
}
