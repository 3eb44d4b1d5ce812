package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/keyxmakerx/campus/internal/apperror"
	"github.com/keyxmakerx/campus/internal/sanitize"
)

// Password length bounds. bcrypt ignores input past 72 bytes.
const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

// normalizeEmail lowercases and trims an address. Every lookup and write
// goes through it so uniqueness is case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail checks that email (already normalized) is a bare address.
func validateEmail(email string) error {
	if email == "" {
		return apperror.NewInvalidInput("email is required")
	}
	if len(email) > 255 {
		return apperror.NewInvalidInput("email must be at most 255 characters")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return apperror.NewInvalidInput("email address is not valid")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperror.NewInvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return apperror.NewInvalidInput(fmt.Sprintf("password must be at most %d characters", maxPasswordLength))
	}
	return nil
}

// profileField names one field of ProfileInput and how to tell it was set.
type profileField struct {
	name    string
	present func(in *ProfileInput) bool
}

var (
	fieldName          = profileField{"name", func(in *ProfileInput) bool { return in.Name != "" }}
	fieldEmail         = profileField{"email", func(in *ProfileInput) bool { return in.Email != "" }}
	fieldPassword      = profileField{"password", func(in *ProfileInput) bool { return in.Password != "" }}
	fieldPhone         = profileField{"phone", func(in *ProfileInput) bool { return in.Phone != "" }}
	fieldDepartment    = profileField{"department", func(in *ProfileInput) bool { return in.Department != "" }}
	fieldUniversity    = profileField{"university", func(in *ProfileInput) bool { return in.University != "" }}
	fieldAge           = profileField{"age", func(in *ProfileInput) bool { return in.Age > 0 }}
	fieldStudentID     = profileField{"studentId", func(in *ProfileInput) bool { return in.StudentID != "" }}
	fieldAdmissionYear = profileField{"admissionYear", func(in *ProfileInput) bool { return in.AdmissionYear > 0 }}
)

// requiredFields lists, per role, the profile fields that must be present.
// Registration and admin provisioning both validate against this table.
var requiredFields = map[Role][]profileField{
	RoleAdmin:   {fieldName, fieldEmail, fieldPassword},
	RoleTeacher: {fieldName, fieldEmail, fieldPassword, fieldPhone, fieldDepartment, fieldUniversity, fieldAge},
	RoleStudent: {fieldName, fieldEmail, fieldPassword, fieldPhone, fieldDepartment, fieldStudentID, fieldAdmissionYear},
}

// fieldLimits caps the free-text fields at the width of their users column,
// counted in characters as utf8mb4 VARCHAR does.
var fieldLimits = []struct {
	name  string
	max   int
	value func(in *ProfileInput) string
}{
	{"name", 200, func(in *ProfileInput) string { return in.Name }},
	{"phone", 32, func(in *ProfileInput) string { return in.Phone }},
	{"department", 200, func(in *ProfileInput) string { return in.Department }},
	{"university", 200, func(in *ProfileInput) string { return in.University }},
	{"studentId", 64, func(in *ProfileInput) string { return in.StudentID }},
	{"profileImage", 1024, func(in *ProfileInput) string { return in.ProfileImage }},
}

// prepareProfile trims and sanitizes free-text fields, normalizes the email,
// drops fields the role does not use, and then checks the role's required
// fields. The input is modified in place.
func prepareProfile(role Role, in *ProfileInput) error {
	fields, ok := requiredFields[role]
	if !ok {
		return apperror.NewInvalidInput("unknown role")
	}

	in.Name = sanitize.Text(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Department = sanitize.Text(in.Department)
	in.University = sanitize.Text(in.University)
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.ProfileImage = strings.TrimSpace(in.ProfileImage)

	if role != RoleStudent {
		in.StudentID = ""
		in.AdmissionYear = 0
	}
	if role != RoleTeacher {
		in.University = ""
		in.Age = 0
	}
	var missing []string
	for _, f := range fields {
		if !f.present(in) {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperror.NewInvalidInput("missing required fields: " + strings.Join(missing, ", "))
	}

	var tooLong []string
	for _, f := range fieldLimits {
		if utf8.RuneCountInString(f.value(in)) > f.max {
			tooLong = append(tooLong, fmt.Sprintf("%s (max %d)", f.name, f.max))
		}
	}
	if len(tooLong) > 0 {
		return apperror.NewInvalidInput("fields too long: " + strings.Join(tooLong, ", "))
	}

	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return validatePassword(in.Password)
}
