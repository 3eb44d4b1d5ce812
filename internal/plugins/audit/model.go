// Package audit records security-relevant account events: registrations,
// admin provisioning, failed logins, password resets, and the admin
// bootstrap. Admins read the log through GET /admin/audit.
//
// This is an optional plugin -- it only records observations, it never
// changes account data.
package audit

import (
	"context"
	"time"
)

// --- Action Constants ---
// Each action string follows the pattern "resource.verb" for consistent
// filtering.

const (
	// ActionUserRegistered is logged when a student or teacher self-registers.
	ActionUserRegistered = "user.registered"

	// ActionUserProvisioned is logged when an admin creates an account.
	ActionUserProvisioned = "user.provisioned"

	// ActionAdminBootstrapped is logged when the first admin is created at startup.
	ActionAdminBootstrapped = "admin.bootstrapped"

	// ActionLoginFailed is logged for every rejected login, whatever the cause.
	ActionLoginFailed = "login.failed"

	// ActionPasswordReset is logged when a password is changed via reset.
	ActionPasswordReset = "password.reset"

	// ActionRefreshReused is logged when a superseded refresh token is presented.
	ActionRefreshReused = "refresh.reused"
)

// Entry is a single recorded event. ActorID is empty for anonymous actions
// such as self-registration or a failed login.
type Entry struct {
	ID          string         `json:"id" bson:"_id"`
	ActorID     string         `json:"actorId,omitempty" bson:"actorId,omitempty"`
	Action      string         `json:"action" bson:"action"`
	TargetEmail string         `json:"targetEmail,omitempty" bson:"targetEmail,omitempty"`
	Role        string         `json:"role,omitempty" bson:"role,omitempty"`
	IP          string         `json:"ip,omitempty" bson:"ip,omitempty"`
	Details     map[string]any `json:"details,omitempty" bson:"details,omitempty"`
	CreatedAt   time.Time      `json:"createdAt" bson:"createdAt"`
}

// Page is one page of the audit log, newest first.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"perPage"`
}

type ipKey struct{}

// WithIP returns a context carrying the client IP so entries logged further
// down the call chain can record it.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

// IPFromContext returns the IP stored by WithIP, or "".
func IPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}
