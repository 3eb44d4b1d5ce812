package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keyxmakerx/campus/internal/apperror"
)

// newTestIssuer returns an issuer whose clock is controlled by the test.
func newTestIssuer(t *testing.T) (*TokenIssuer, *time.Time) {
	t.Helper()
	issuer, err := NewTokenIssuer("access-secret-for-tests", "refresh-secret-for-tests", TokenTTLs{})
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }
	return issuer, &now
}

func TestNewTokenIssuer_Secrets(t *testing.T) {
	if _, err := NewTokenIssuer("", "refresh", TokenTTLs{}); err == nil {
		t.Error("expected error for missing access secret")
	}
	if _, err := NewTokenIssuer("access", "", TokenTTLs{}); err == nil {
		t.Error("expected error for missing refresh secret")
	}
	if _, err := NewTokenIssuer("same", "same", TokenTTLs{}); err == nil {
		t.Error("expected error for identical secrets")
	}
}

func TestNewTokenIssuer_DefaultTTLs(t *testing.T) {
	issuer, err := NewTokenIssuer("a", "b", TokenTTLs{})
	if err != nil {
		t.Fatal(err)
	}
	if issuer.ttls.Access != 15*time.Minute {
		t.Errorf("access ttl = %v", issuer.ttls.Access)
	}
	if issuer.ttls.Refresh != 7*24*time.Hour {
		t.Errorf("refresh ttl = %v", issuer.ttls.Refresh)
	}
	if issuer.ttls.VerifiedEmail != 15*time.Minute {
		t.Errorf("verified-email ttl = %v", issuer.ttls.VerifiedEmail)
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	token, err := issuer.IssueAccessToken(&User{ID: "user-1", Role: RoleStudent})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ID != "user-1" || claims.Role != RoleStudent {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestAccessToken_ExpiresAfterFifteenMinutes(t *testing.T) {
	issuer, now := newTestIssuer(t)
	token, _ := issuer.IssueAccessToken(&User{ID: "user-1", Role: RoleAdmin})

	*now = now.Add(14 * time.Minute)
	if _, err := issuer.ParseAccessToken(token); err != nil {
		t.Fatalf("token should be valid at 14m: %v", err)
	}

	*now = now.Add(time.Minute + time.Second)
	_, err := issuer.ParseAccessToken(token)
	assertErrorType(t, err, apperror.TypeTokenExpired)
	assertAppError(t, err, 401)
}

func TestRefreshToken_RoundTripAndUnique(t *testing.T) {
	issuer, now := newTestIssuer(t)
	user := &User{ID: "user-1", Role: RoleTeacher}

	a, _ := issuer.IssueRefreshToken(user)
	b, _ := issuer.IssueRefreshToken(user)
	if a == b {
		t.Error("refresh tokens issued in the same second must differ")
	}

	claims, err := issuer.ParseRefreshToken(a)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ID != "user-1" {
		t.Errorf("unexpected id %q", claims.ID)
	}

	*now = now.Add(7*24*time.Hour + time.Second)
	_, err = issuer.ParseRefreshToken(a)
	assertErrorType(t, err, apperror.TypeTokenExpired)
}

func TestVerifiedEmailToken(t *testing.T) {
	issuer, now := newTestIssuer(t)

	token, _ := issuer.IssueVerifiedEmailToken("a@b.com")
	email, err := issuer.ParseVerifiedEmailToken(token)
	if err != nil || email != "a@b.com" {
		t.Fatalf("got %q, %v", email, err)
	}

	*now = now.Add(16 * time.Minute)
	_, err = issuer.ParseVerifiedEmailToken(token)
	assertErrorType(t, err, apperror.TypeTokenExpired)
}

func TestTokens_KindsAreNotInterchangeable(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	user := &User{ID: "user-1", Role: RoleAdmin}

	access, _ := issuer.IssueAccessToken(user)
	refresh, _ := issuer.IssueRefreshToken(user)
	verified, _ := issuer.IssueVerifiedEmailToken("a@b.com")

	if _, err := issuer.ParseAccessToken(refresh); !apperror.Is(err, apperror.TypeTokenInvalid) {
		t.Errorf("refresh as access: %v", err)
	}
	if _, err := issuer.ParseAccessToken(verified); !apperror.Is(err, apperror.TypeTokenInvalid) {
		t.Errorf("verified-email as access: %v", err)
	}
	if _, err := issuer.ParseRefreshToken(access); !apperror.Is(err, apperror.TypeTokenInvalid) {
		t.Errorf("access as refresh: %v", err)
	}
	if _, err := issuer.ParseVerifiedEmailToken(access); !apperror.Is(err, apperror.TypeTokenInvalid) {
		t.Errorf("access as verified-email: %v", err)
	}
}

func TestParse_RejectsForgedTokens(t *testing.T) {
	issuer, now := newTestIssuer(t)

	other, _ := NewTokenIssuer("someone-else", "someone-else-refresh", TokenTTLs{})
	other.now = issuer.now
	foreign, _ := other.IssueAccessToken(&User{ID: "user-1", Role: RoleAdmin})

	claims := Claims{
		ID:   "user-1",
		Role: RoleAdmin,
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID: "user-1", Role: RoleAdmin, Type: tokenTypeAccess,
	}).SignedString(issuer.accessSecret)

	valid, _ := issuer.IssueAccessToken(&User{ID: "user-1", Role: RoleAdmin})
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for name, token := range map[string]string{
		"foreign secret": foreign,
		"alg none":       unsigned,
		"no expiry":      noExpiry,
		"tampered":       tampered,
		"garbage":        "not.a.jwt",
		"empty":          "",
	} {
		if _, err := issuer.ParseAccessToken(token); !apperror.Is(err, apperror.TypeTokenInvalid) {
			t.Errorf("%s: expected token_invalid, got %v", name, err)
		}
	}
}

func TestParseAccessToken_RejectsUnknownRole(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	token, _ := issuer.IssueAccessToken(&User{ID: "user-1", Role: Role("dean")})

	_, err := issuer.ParseAccessToken(token)
	assertErrorType(t, err, apperror.TypeTokenInvalid)
}
