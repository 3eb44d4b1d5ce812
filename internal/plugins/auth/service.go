package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyxmakerx/campus/internal/apperror"
	"github.com/keyxmakerx/campus/internal/cache"
	"github.com/keyxmakerx/campus/internal/metrics"
	"github.com/keyxmakerx/campus/internal/plugins/audit"
)

// bcryptCost is the work factor for password hashes.
const bcryptCost = 10

// defaultOTPTTL is how long a verification code stays valid when the
// service config leaves it unset.
const defaultOTPTTL = 10 * time.Minute

// maxOTPAttempts is how many wrong codes one email may submit before its
// code is discarded. The per-IP rate limit doesn't stop guesses spread
// across many addresses.
const maxOTPAttempts = 5

// attemptsKey is the cache key counting wrong codes for email. The colon
// can't occur in a validated address.
func attemptsKey(email string) string { return "attempts:" + email }

// Registration sources, used as a metrics label.
const (
	sourceSelf      = "self"
	sourceAdmin     = "admin"
	sourceBootstrap = "bootstrap"
)

// MailSender is the subset of the SMTP plugin the auth service needs.
// Defined here to avoid importing the smtp package directly.
type MailSender interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
	IsConfigured(ctx context.Context) bool
}

// AuditLogger records account events. Implementations log their own
// failures; the auth service never fails a request because of them.
type AuditLogger interface {
	Log(ctx context.Context, entry *audit.Entry) error
}

// Principal is the authenticated caller, as asserted by an access token.
type Principal struct {
	ID   string
	Role Role
}

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	// SendOTP issues a fresh 6-digit code for email and mails it.
	SendOTP(ctx context.Context, email string) error

	// VerifyOTP consumes a matching code and returns a verified-email token.
	VerifyOTP(ctx context.Context, email, code string) (string, error)

	// Register creates a student or teacher account for a verified email.
	Register(ctx context.Context, role Role, input ProfileInput, verificationToken string) (*User, error)

	// Login authenticates a user against the role of the login route used.
	Login(ctx context.Context, email, password string, expected Role) (*LoginResult, error)

	// Refresh exchanges the current refresh token for a new token pair.
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)

	// Logout forgets the stored refresh token.
	Logout(ctx context.Context, userID string) error

	// AddPrivilegedUser lets an admin create an account of any role
	// without email verification.
	AddPrivilegedUser(ctx context.Context, role Role, input ProfileInput, requester Principal) (*User, error)

	// ForgotPassword mails a reset code if the account exists. The result
	// is the same whether or not it does.
	ForgotPassword(ctx context.Context, email string) error

	// ResetPassword sets a new password for the email a verified-email
	// token vouches for.
	ResetPassword(ctx context.Context, verificationToken, newPassword string) error

	// EnsureAdmin creates the bootstrap admin if no account uses email.
	EnsureAdmin(ctx context.Context, email, password, name string) error

	// Me returns the profile of the given user.
	Me(ctx context.Context, userID string) (*User, error)
}

// ServiceConfig holds tunables for the auth service.
type ServiceConfig struct {
	// OTPTTL is how long a verification code stays valid.
	OTPTTL time.Duration

	// LogCodesWithoutMail logs verification codes instead of failing when
	// no mail server is configured. Development only.
	LogCodesWithoutMail bool
}

// authService implements AuthService.
type authService struct {
	repo    UserRepository
	otps    cache.Cache
	tokens  *TokenIssuer
	mail    MailSender
	audit   AuditLogger
	metrics *metrics.Metrics
	cfg     ServiceConfig
}

// NewAuthService creates a new auth service with the given dependencies.
// auditLog and m may be nil.
func NewAuthService(
	repo UserRepository,
	otps cache.Cache,
	tokens *TokenIssuer,
	mail MailSender,
	auditLog AuditLogger,
	m *metrics.Metrics,
	cfg ServiceConfig,
) AuthService {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = defaultOTPTTL
	}
	return &authService{
		repo:    repo,
		otps:    otps,
		tokens:  tokens,
		mail:    mail,
		audit:   auditLog,
		metrics: m,
		cfg:     cfg,
	}
}

// --- Email verification ---

// SendOTP validates the address before touching the cache, so a malformed
// email never creates an entry. A new code overwrites any previous one.
// If delivery fails the stored code is removed again.
func (s *authService) SendOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	subject := "Your campus verification code"
	body := "Your verification code is %s.\nIt expires in %d minutes. If you did not request it, ignore this email.\n"
	return s.issueCode(ctx, email, subject, body)
}

// VerifyOTP compares code with the stored one in constant time. A mismatch
// keeps the entry so the user can retry, up to maxOTPAttempts; a match
// deletes it.
func (s *authService) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return "", apperror.NewInvalidInput("email and otp are required")
	}
	if err := validateEmail(email); err != nil {
		return "", err
	}

	stored, err := s.otps.Get(ctx, email)
	if errors.Is(err, cache.ErrNotFound) {
		s.metrics.OTPVerified("not_found")
		return "", apperror.NewOTPNotFound()
	}
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("reading otp: %w", err))
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return "", s.otpMismatch(ctx, email)
	}

	if err := s.otps.Delete(ctx, email); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("deleting otp: %w", err))
	}
	s.clearAttempts(ctx, email)

	token, err := s.tokens.IssueVerifiedEmailToken(email)
	if err != nil {
		return "", apperror.NewInternal(err)
	}

	s.metrics.OTPVerified(metrics.ResultSuccess)
	slog.Info("email verified", slog.String("email", email))
	return token, nil
}

// otpMismatch counts a wrong code. The last allowed miss discards the code,
// so further guesses find nothing until a new one is requested.
func (s *authService) otpMismatch(ctx context.Context, email string) error {
	attempts, err := s.otps.Incr(ctx, attemptsKey(email), s.cfg.OTPTTL)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("counting otp attempts: %w", err))
	}
	if attempts < maxOTPAttempts {
		s.metrics.OTPVerified("mismatch")
		return apperror.NewOTPMismatch()
	}

	s.metrics.OTPVerified("locked")
	if err := s.otps.Delete(ctx, email); err != nil {
		return apperror.NewInternal(fmt.Errorf("discarding otp: %w", err))
	}
	s.clearAttempts(ctx, email)
	slog.Warn("verification code discarded after repeated mismatches",
		slog.String("email", email),
		slog.Int64("attempts", attempts),
	)
	return apperror.NewTooManyRequests()
}

func (s *authService) clearAttempts(ctx context.Context, email string) {
	if err := s.otps.Delete(ctx, attemptsKey(email)); err != nil {
		slog.Warn("failed to reset otp attempts",
			slog.String("email", email),
			slog.Any("error", err),
		)
	}
}

// issueCode stores a fresh code for email and mails it. subject and the
// body format (code, minutes) vary between signup and password reset.
func (s *authService) issueCode(ctx context.Context, email, subject, bodyFormat string) error {
	code, err := generateOTP()
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("generating otp: %w", err))
	}

	if err := s.otps.Set(ctx, email, code, s.cfg.OTPTTL); err != nil {
		return apperror.NewInternal(fmt.Errorf("storing otp: %w", err))
	}
	s.clearAttempts(ctx, email)

	if !s.mail.IsConfigured(ctx) && s.cfg.LogCodesWithoutMail {
		slog.Warn("mail not configured, logging verification code",
			slog.String("email", email),
			slog.String("code", code),
		)
		s.metrics.OTPSent(metrics.ResultSuccess)
		return nil
	}

	body := fmt.Sprintf(bodyFormat, code, int(s.cfg.OTPTTL.Minutes()))
	if err := s.mail.SendMail(ctx, []string{email}, subject, body); err != nil {
		s.metrics.OTPSent(metrics.ResultFailure)
		if delErr := s.otps.Delete(ctx, email); delErr != nil {
			slog.Warn("failed to remove undelivered otp",
				slog.String("email", email),
				slog.Any("error", delErr),
			)
		}
		return apperror.NewDeliveryFailed(fmt.Errorf("sending otp to %s: %w", email, err))
	}

	s.metrics.OTPSent(metrics.ResultSuccess)
	slog.Info("verification code sent", slog.String("email", email))
	return nil
}

// --- Registration ---

// Register creates a student or teacher. The verification token must vouch
// for the same normalized email that is being registered.
func (s *authService) Register(ctx context.Context, role Role, input ProfileInput, verificationToken string) (*User, error) {
	if role != RoleStudent && role != RoleTeacher {
		return nil, apperror.NewInvalidInput("only students and teachers can self-register")
	}
	if err := prepareProfile(role, &input); err != nil {
		return nil, err
	}

	if strings.TrimSpace(verificationToken) == "" {
		return nil, apperror.NewUnauthenticated("email verification is required before registering")
	}
	verified, err := s.tokens.ParseVerifiedEmailToken(verificationToken)
	if err != nil {
		return nil, err
	}
	if verified != input.Email {
		return nil, apperror.NewInvalidInput("email does not match the verified address")
	}

	user, err := s.createUser(ctx, role, input)
	if err != nil {
		return nil, err
	}

	s.metrics.Registered(string(role), sourceSelf)
	s.record(ctx, &audit.Entry{
		ActorID:     user.ID,
		Action:      audit.ActionUserRegistered,
		TargetEmail: user.Email,
		Role:        string(role),
	})
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("role", string(role)),
	)

	return user, nil
}

// AddPrivilegedUser creates an account on an admin's behalf. The route is
// already admin-gated; the role is checked again here.
func (s *authService) AddPrivilegedUser(ctx context.Context, role Role, input ProfileInput, requester Principal) (*User, error) {
	if requester.Role != RoleAdmin {
		return nil, apperror.NewForbidden("only admins can add users")
	}
	if !role.Valid() {
		return nil, apperror.NewInvalidInput("unknown role")
	}
	if err := prepareProfile(role, &input); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, role, input)
	if err != nil {
		return nil, err
	}

	s.metrics.Registered(string(role), sourceAdmin)
	s.record(ctx, &audit.Entry{
		ActorID:     requester.ID,
		Action:      audit.ActionUserProvisioned,
		TargetEmail: user.Email,
		Role:        string(role),
	})
	slog.Info("user provisioned",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("role", string(role)),
		slog.String("by", requester.ID),
	)

	return user, nil
}

// EnsureAdmin creates the first admin from configuration. Safe to call on
// every startup: an existing account with the email is left untouched.
func (s *authService) EnsureAdmin(ctx context.Context, email, password, name string) error {
	if strings.TrimSpace(email) == "" {
		return nil
	}

	input := ProfileInput{Name: name, Email: email, Password: password}
	if err := prepareProfile(RoleAdmin, &input); err != nil {
		return err
	}

	exists, err := s.repo.EmailExists(ctx, input.Email)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("checking bootstrap admin: %w", err))
	}
	if exists {
		slog.Debug("bootstrap admin already present", slog.String("email", input.Email))
		return nil
	}

	user, err := s.createUser(ctx, RoleAdmin, input)
	if apperror.Is(err, apperror.TypeConflict) {
		// Another instance created it first.
		return nil
	}
	if err != nil {
		return err
	}

	s.metrics.Registered(string(RoleAdmin), sourceBootstrap)
	s.record(ctx, &audit.Entry{
		ActorID:     user.ID,
		Action:      audit.ActionAdminBootstrapped,
		TargetEmail: user.Email,
		Role:        string(RoleAdmin),
	})
	slog.Info("bootstrap admin created", slog.String("email", user.Email))
	return nil
}

// createUser runs the uniqueness pre-checks, hashes the password, and
// persists the account. The pre-checks only give a clearer message; the
// store's unique indexes are what actually prevent duplicates, so a
// concurrent insert that slips past them still ends as Conflict.
func (s *authService) createUser(ctx context.Context, role Role, input ProfileInput) (*User, error) {
	exists, err := s.repo.EmailExists(ctx, input.Email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	if role == RoleStudent {
		taken, err := s.repo.StudentIDExists(ctx, input.StudentID)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("checking student id: %w", err))
		}
		if taken {
			return nil, apperror.NewConflict("this student ID is already registered")
		}
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	now := time.Now().UTC()
	user := &User{
		ID:              uuid.NewString(),
		Name:            input.Name,
		Email:           input.Email,
		PasswordHash:    hash,
		Role:            role,
		Phone:           input.Phone,
		Department:      input.Department,
		University:      input.University,
		Age:             input.Age,
		StudentID:       input.StudentID,
		AdmissionYear:   input.AdmissionYear,
		ProfileImage:    input.ProfileImage,
		IsEmailVerified: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apperror.NewConflict("an account with this email or student ID already exists")
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	return user, nil
}

// --- Sessions ---

// Login returns the same InvalidCredentials error for an unknown email, a
// role that doesn't match the login route, and a wrong password.
func (s *authService) Login(ctx context.Context, email, password string, expected Role) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.NewInvalidInput("email and password are required")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !apperror.Is(err, apperror.TypeNotFound) {
			return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
		}
		// Spend the same bcrypt time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, s.loginFailed(ctx, email, expected, "unknown_email")
	}

	if user.Role != expected {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, s.loginFailed(ctx, email, expected, "role_mismatch")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, s.loginFailed(ctx, email, expected, "wrong_password")
	}

	pair, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.metrics.Login(string(expected), metrics.ResultSuccess)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return &LoginResult{TokenPair: *pair, User: user}, nil
}

// loginFailed records the real reason server-side and returns the single
// client-facing error.
func (s *authService) loginFailed(ctx context.Context, email string, expected Role, reason string) error {
	s.metrics.Login(string(expected), metrics.ResultFailure)
	s.record(ctx, &audit.Entry{
		Action:      audit.ActionLoginFailed,
		TargetEmail: email,
		Role:        string(expected),
		Details:     map[string]any{"reason": reason},
	})
	slog.Warn("login failed",
		slog.String("email", email),
		slog.String("role", string(expected)),
		slog.String("reason", reason),
	)
	return apperror.NewInvalidCredentials()
}

// issueSession mints an access and refresh token for any role and stores
// the refresh token as the only one accepted for the user.
func (s *authService) issueSession(ctx context.Context, user *User) (*TokenPair, error) {
	pair, err := s.mintPair(user)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("storing refresh token: %w", err))
	}
	user.RefreshToken = pair.RefreshToken
	return pair, nil
}

func (s *authService) mintPair(user *User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	refresh, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh accepts only the most recently issued refresh token. A valid
// but superseded token is rejected and recorded, since it suggests the
// token was copied.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, apperror.NewUnauthenticated("refresh token is required")
	}

	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		s.metrics.Refreshed(metrics.ResultFailure)
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, claims.ID)
	if err != nil {
		s.metrics.Refreshed(metrics.ResultFailure)
		if apperror.Is(err, apperror.TypeNotFound) {
			return nil, apperror.NewTokenInvalid()
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if user.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(refreshToken)) != 1 {
		return nil, s.refreshRejected(ctx, user)
	}

	pair, err := s.mintPair(user)
	if err != nil {
		return nil, err
	}

	rotated, err := s.repo.RotateRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("rotating refresh token: %w", err))
	}
	if !rotated {
		return nil, s.refreshRejected(ctx, user)
	}

	s.metrics.Refreshed(metrics.ResultSuccess)
	return pair, nil
}

func (s *authService) refreshRejected(ctx context.Context, user *User) error {
	s.metrics.Refreshed(metrics.ResultFailure)
	s.record(ctx, &audit.Entry{
		ActorID:     user.ID,
		Action:      audit.ActionRefreshReused,
		TargetEmail: user.Email,
		Role:        string(user.Role),
	})
	slog.Warn("superseded refresh token presented", slog.String("user_id", user.ID))
	return apperror.NewTokenInvalid()
}

// Logout clears the stored refresh token. The access token stays valid
// until it expires.
func (s *authService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.UpdateRefreshToken(ctx, userID, ""); err != nil {
		if apperror.Is(err, apperror.TypeNotFound) {
			return err
		}
		return apperror.NewInternal(fmt.Errorf("clearing refresh token: %w", err))
	}
	slog.Info("user logged out", slog.String("user_id", userID))
	return nil
}

// Me returns the caller's own profile.
func (s *authService) Me(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if apperror.Is(err, apperror.TypeNotFound) {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	return user, nil
}

// --- Password reset ---

// ForgotPassword sends a reset code only for existing accounts, and
// reports success either way so the endpoint cannot be used to discover
// which emails are registered.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if !exists {
		slog.Info("password reset requested for unknown email", slog.String("email", email))
		return nil
	}

	subject := "Reset your campus password"
	body := "Your password reset code is %s.\nIt expires in %d minutes. If you did not request a reset, ignore this email.\n"
	if err := s.issueCode(ctx, email, subject, body); err != nil {
		slog.Error("failed to send password reset code",
			slog.String("email", email),
			slog.Any("error", err),
		)
	}
	return nil
}

// ResetPassword replaces the password hash. Existing refresh tokens are
// invalidated by the repository.
func (s *authService) ResetPassword(ctx context.Context, verificationToken, newPassword string) error {
	if strings.TrimSpace(verificationToken) == "" {
		return apperror.NewUnauthenticated("email verification is required before resetting the password")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	email, err := s.tokens.ParseVerifiedEmailToken(verificationToken)
	if err != nil {
		return err
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if apperror.Is(err, apperror.TypeNotFound) {
			return apperror.NewTokenInvalid()
		}
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	s.record(ctx, &audit.Entry{
		ActorID:     user.ID,
		Action:      audit.ActionPasswordReset,
		TargetEmail: user.Email,
		Role:        string(user.Role),
	})
	slog.Info("password reset", slog.String("user_id", user.ID))
	return nil
}

// --- Helpers ---

// record writes an audit entry if an audit logger is wired. Failures are
// already logged by the audit service and never fail the request.
func (s *authService) record(ctx context.Context, entry *audit.Entry) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Log(ctx, entry)
}

// otpMin and otpSpan define the code range [100000, 999999].
const (
	otpMin  = 100000
	otpSpan = 900000
)

// generateOTP returns a uniformly random 6-digit code from crypto/rand.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+otpMin), nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

var (
	dummy     []byte
	dummyOnce sync.Once
)

// dummyHash is compared against when no real hash applies, so failed
// logins take about as long whatever the cause.
func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("campus-timing-equalizer"), bcryptCost)
	})
	return dummy
}
