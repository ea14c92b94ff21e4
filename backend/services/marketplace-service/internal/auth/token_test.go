package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Minute)

	token, err := svc.Generate(42, "driver")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("user id = %d, want 42", claims.UserID)
	}
	if claims.Role != "driver" {
		t.Errorf("role = %q, want driver", claims.Role)
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	issued, err := NewTokenService("secret-a", time.Minute).Generate(1, "driver")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewTokenService("secret-b", time.Minute).Validate(issued); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestTokenRequiresUserID(t *testing.T) {
	if _, err := NewTokenService("s", time.Minute).Generate(0, "driver"); err == nil {
		t.Fatal("expected error for zero user id")
	}
}
