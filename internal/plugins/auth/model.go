// Package auth handles email verification, registration, login, token
// refresh, and role-based authorization for the campus service. Access and
// refresh tokens are HS256 JWTs; one-time email codes live in the OTP cache.
//
// This is a CORE plugin -- every other route group depends on its middleware.
package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies what a principal may do. Exactly one per user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// User is any principal of the platform. All three roles share one record
// shape; role-specific fields are empty for the roles that don't use them.
type User struct {
	ID              string    `json:"id" bson:"_id"`
	Name            string    `json:"name" bson:"name"`
	Email           string    `json:"email" bson:"email"`
	PasswordHash    string    `json:"-" bson:"passwordHash"` // Never expose in JSON responses.
	Role            Role      `json:"role" bson:"role"`
	Phone           string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Department      string    `json:"department,omitempty" bson:"department,omitempty"`
	University      string    `json:"university,omitempty" bson:"university,omitempty"`
	Age             int       `json:"age,omitempty" bson:"age,omitempty"`
	StudentID       string    `json:"studentId,omitempty" bson:"studentId,omitempty"`
	AdmissionYear   int       `json:"admissionYear,omitempty" bson:"admissionYear,omitempty"`
	RefreshToken    string    `json:"-" bson:"refreshToken,omitempty"` // Never expose.
	ProfileImage    string    `json:"profileImage,omitempty" bson:"profileImage,omitempty"`
	IsEmailVerified bool      `json:"isEmailVerified" bson:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt" bson:"updatedAt"`
}

// --- Request DTOs (bound from HTTP requests) ---

// SendOTPRequest is the body of POST /otp/send-email-otp and
// POST /auth/forgot-password.
type SendOTPRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest is the body of POST /otp/verify-email-otp.
type VerifyOTPRequest struct {
	Email string  `json:"email"`
	OTP   otpCode `json:"otp"`
}

// ProfileRequest is the body of the register and admin provisioning routes.
// Which fields are required depends on the role being created.
type ProfileRequest struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	Phone             string `json:"phone"`
	Department        string `json:"department"`
	University        string `json:"university"`
	Age               int    `json:"age"`
	StudentID         string `json:"studentId"`
	AdmissionYear     int    `json:"admissionYear"`
	ProfileImage      string `json:"profileImage"`
	VerificationToken string `json:"verificationToken"`
}

// LoginRequest is the body of every login route.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	VerificationToken string `json:"verificationToken"`
	NewPassword       string `json:"newPassword"`
}

// otpCode accepts the submitted code as either a JSON string or a JSON
// number and keeps it as trimmed text. Mobile clients send both shapes.
type otpCode string

// UnmarshalJSON implements json.Unmarshaler.
func (o *otpCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = otpCode(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("otp must be a string or a number")
	}
	*o = otpCode(n.String())
	return nil
}

// --- Service Input DTOs (passed from handler to service) ---

// ProfileInput is the account data for registration and provisioning.
type ProfileInput struct {
	Name          string
	Email         string
	Password      string
	Phone         string
	Department    string
	University    string
	Age           int
	StudentID     string
	AdmissionYear int
	ProfileImage  string
}

// profileInputFromRequest copies the bound request into a service input.
func profileInputFromRequest(req ProfileRequest) ProfileInput {
	return ProfileInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		Phone:         req.Phone,
		Department:    req.Department,
		University:    req.University,
		Age:           req.Age,
		StudentID:     req.StudentID,
		AdmissionYear: req.AdmissionYear,
		ProfileImage:  req.ProfileImage,
	}
}

// --- Results ---

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is returned by a successful login. User never carries the
// password hash or refresh token because both are excluded from JSON.
type LoginResult struct {
	TokenPair
	User *User `json:"user"`
}
