package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/keyxmakerx/campus/internal/apperror"
)

// Token kinds, carried in the "typ" claim so one kind can never be
// presented where another is expected.
const (
	tokenTypeAccess        = "access"
	tokenTypeRefresh       = "refresh"
	tokenTypeVerifiedEmail = "email_verified"
)

// Default lifetimes, used when a TokenTTLs field is zero.
const (
	defaultAccessTTL        = 15 * time.Minute
	defaultRefreshTTL       = 7 * 24 * time.Hour
	defaultVerifiedEmailTTL = 15 * time.Minute
)

// TokenTTLs configures how long each token kind stays valid.
type TokenTTLs struct {
	Access        time.Duration
	Refresh       time.Duration
	VerifiedEmail time.Duration
}

// Claims is the payload of every token this package signs. Which fields are
// set depends on Type: access tokens carry ID and Role, refresh tokens carry
// ID and a unique jti, verified-email tokens carry Email.
type Claims struct {
	ID    string `json:"id,omitempty"`
	Role  Role   `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens. Access and verified-email
// tokens use the access secret; refresh tokens use a separate secret.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	ttls          TokenTTLs
	now           func() time.Time
}

// NewTokenIssuer creates an issuer. Both secrets are required and must
// differ so a leaked access secret cannot mint refresh tokens.
func NewTokenIssuer(accessSecret, refreshSecret string, ttls TokenTTLs) (*TokenIssuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token issuer: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("token issuer: access and refresh secrets must differ")
	}
	if ttls.Access <= 0 {
		ttls.Access = defaultAccessTTL
	}
	if ttls.Refresh <= 0 {
		ttls.Refresh = defaultRefreshTTL
	}
	if ttls.VerifiedEmail <= 0 {
		ttls.VerifiedEmail = defaultVerifiedEmailTTL
	}
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		ttls:          ttls,
		now:           time.Now,
	}, nil
}

// IssueAccessToken signs a short-lived token asserting the user's id and role.
func (t *TokenIssuer) IssueAccessToken(user *User) (string, error) {
	return t.sign(t.accessSecret, Claims{
		ID:   user.ID,
		Role: user.Role,
		Type: tokenTypeAccess,
	}, t.ttls.Access, "")
}

// IssueRefreshToken signs a long-lived token carrying only the user's id.
// Each token gets a random jti so two tokens issued in the same second still
// differ, which rotation relies on.
func (t *TokenIssuer) IssueRefreshToken(user *User) (string, error) {
	return t.sign(t.refreshSecret, Claims{
		ID:   user.ID,
		Type: tokenTypeRefresh,
	}, t.ttls.Refresh, uuid.NewString())
}

// IssueVerifiedEmailToken signs an assertion that email completed OTP
// verification. Register and password reset require one.
func (t *TokenIssuer) IssueVerifiedEmailToken(email string) (string, error) {
	return t.sign(t.accessSecret, Claims{
		Email: email,
		Type:  tokenTypeVerifiedEmail,
	}, t.ttls.VerifiedEmail, "")
}

// ParseAccessToken verifies an access token and returns its claims.
func (t *TokenIssuer) ParseAccessToken(token string) (*Claims, error) {
	claims, err := t.parse(token, t.accessSecret, tokenTypeAccess)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" || !claims.Role.Valid() {
		return nil, apperror.NewTokenInvalid()
	}
	return claims, nil
}

// ParseRefreshToken verifies a refresh token and returns its claims.
func (t *TokenIssuer) ParseRefreshToken(token string) (*Claims, error) {
	claims, err := t.parse(token, t.refreshSecret, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, apperror.NewTokenInvalid()
	}
	return claims, nil
}

// ParseVerifiedEmailToken verifies a verified-email token and returns the
// email it vouches for.
func (t *TokenIssuer) ParseVerifiedEmailToken(token string) (string, error) {
	claims, err := t.parse(token, t.accessSecret, tokenTypeVerifiedEmail)
	if err != nil {
		return "", err
	}
	if claims.Email == "" {
		return "", apperror.NewTokenInvalid()
	}
	return claims.Email, nil
}

func (t *TokenIssuer) sign(secret []byte, claims Claims, ttl time.Duration, jti string) (string, error) {
	now := t.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", claims.Type, err)
	}
	return signed, nil
}

// parse verifies signature, algorithm, expiry, and kind. Expired tokens map
// to TokenExpired; every other failure is TokenInvalid.
func (t *TokenIssuer) parse(token string, secret []byte, typ string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.NewTokenExpired()
		}
		return nil, apperror.NewTokenInvalid()
	}
	if claims.Type != typ {
		return nil, apperror.NewTokenInvalid()
	}
	return claims, nil
}
