package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestInvalidCredentials_IdenticalAcrossCalls(t *testing.T) {
	a, b := NewInvalidCredentials(), NewInvalidCredentials()
	if a.Code != b.Code || a.Type != b.Type || a.Message != b.Message {
		t.Fatalf("expected identical errors, got %+v and %+v", a, b)
	}
	if a.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", a.Code)
	}
}

func TestSafeMessage_HidesInternal(t *testing.T) {
	err := NewDeliveryFailed(errors.New("smtp: 535 bad credentials for user x"))
	if SafeMessage(err) == err.Internal.Error() {
		t.Fatal("internal detail leaked into safe message")
	}
	if SafeCode(err) != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", SafeCode(err))
	}

	plain := errors.New("dial tcp 10.0.0.1:3306: connection refused")
	if SafeMessage(plain) != "an unexpected error occurred" {
		t.Errorf("unexpected message for plain error: %s", SafeMessage(plain))
	}
	if SafeCode(plain) != http.StatusInternalServerError {
		t.Errorf("expected 500 for plain error, got %d", SafeCode(plain))
	}
}

func TestIs_Wrapped(t *testing.T) {
	err := fmt.Errorf("verifying: %w", NewOTPMismatch())
	if !Is(err, TypeOTPMismatch) {
		t.Error("expected wrapped OTP mismatch to match")
	}
	if Is(err, TypeOTPNotFound) {
		t.Error("did not expect OTP not found to match")
	}
	if SafeCode(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", SafeCode(err))
	}
}
