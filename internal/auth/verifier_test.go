package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("verifier-test-secret")

func signToken(t *testing.T, secret []byte, username, userID string, expiresAt time.Time) string {
	t.Helper()
	claims := tokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	verifier := NewVerifier(testSecret)
	token := signToken(t, testSecret, "alice", "user-1", time.Now().Add(time.Hour))

	result := verifier.Verify(context.Background(), token)
	if result.State != StateAuthenticated {
		t.Fatalf("expected authenticated, got state %v message %q", result.State, result.Message)
	}
	if result.Identity.UserID != "user-1" || result.Identity.Username != "alice" {
		t.Fatalf("unexpected identity %+v", result.Identity)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	verifier := NewVerifier(testSecret)
	token := signToken(t, testSecret, "alice", "user-1", time.Now().Add(-time.Hour))

	result := verifier.Verify(context.Background(), token)
	if result.State != StateRejected {
		t.Fatal("expected expired token to be rejected")
	}
	if result.Message != msgInvalidToken {
		t.Fatalf("expected message %q, got %q", msgInvalidToken, result.Message)
	}
}

func TestVerifyRejectsGarbledToken(t *testing.T) {
	verifier := NewVerifier(testSecret)
	for _, token := range []string{"", "not-a-token", "a.b.c", "  "} {
		result := verifier.Verify(context.Background(), token)
		if result.State != StateRejected {
			t.Fatalf("expected rejection for token %q", token)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	verifier := NewVerifier(testSecret)
	token := signToken(t, []byte("some-other-secret"), "alice", "user-1", time.Now().Add(time.Hour))

	if result := verifier.Verify(context.Background(), token); result.State != StateRejected {
		t.Fatal("expected token signed with wrong secret to be rejected")
	}
}

func TestVerifyRejectsMissingClaims(t *testing.T) {
	verifier := NewVerifier(testSecret)

	noUsername := signToken(t, testSecret, "", "user-1", time.Now().Add(time.Hour))
	result := verifier.Verify(context.Background(), noUsername)
	if result.State != StateRejected || result.Message != msgMissingClaims {
		t.Fatalf("expected missing-claims rejection, got %+v", result)
	}

	noSubject := signToken(t, testSecret, "alice", "", time.Now().Add(time.Hour))
	result = verifier.Verify(context.Background(), noSubject)
	if result.State != StateRejected || result.Message != msgMissingClaims {
		t.Fatalf("expected missing-claims rejection, got %+v", result)
	}
}

type recordingValidator struct {
	directErr   error
	directValid bool
	userValid   bool
	userCalls   int
	userNames   []string
}

func (v *recordingValidator) ValidateToken(ctx context.Context, token string) (bool, error) {
	return v.directValid, v.directErr
}

func (v *recordingValidator) ValidateTokenForUser(ctx context.Context, token, username string) (bool, error) {
	v.userCalls++
	v.userNames = append(v.userNames, username)
	return v.userValid, nil
}

func TestVerifyFallsBackWhenPrimaryUnavailable(t *testing.T) {
	validator := &recordingValidator{directErr: ErrValidatorUnavailable, userValid: true}
	verifier := NewVerifier(testSecret, WithValidator(validator))
	token := signToken(t, testSecret, "alice", "user-1", time.Now().Add(time.Hour))

	result := verifier.Verify(context.Background(), token)
	if result.State != StateAuthenticated {
		t.Fatalf("expected fallback validation to authenticate, got %+v", result)
	}
	if validator.userCalls != 1 {
		t.Fatalf("expected one fallback call, got %d", validator.userCalls)
	}
	if len(validator.userNames) != 1 || validator.userNames[0] != "alice" {
		t.Fatalf("expected fallback to receive username from claims, got %v", validator.userNames)
	}
}

func TestVerifyRejectsWhenBothStrategiesFail(t *testing.T) {
	validator := &recordingValidator{directErr: ErrValidatorUnavailable, userValid: false}
	verifier := NewVerifier(testSecret, WithValidator(validator))
	token := signToken(t, testSecret, "alice", "user-1", time.Now().Add(time.Hour))

	if result := verifier.Verify(context.Background(), token); result.State != StateRejected {
		t.Fatal("expected rejection when both strategies fail")
	}
}

func TestVerifyDoesNotFallBackOnOtherErrors(t *testing.T) {
	validator := &recordingValidator{directErr: errors.New("backend down")}
	verifier := NewVerifier(testSecret, WithValidator(validator))
	token := signToken(t, testSecret, "alice", "user-1", time.Now().Add(time.Hour))

	if result := verifier.Verify(context.Background(), token); result.State != StateRejected {
		t.Fatal("expected rejection on validator error")
	}
	if validator.userCalls != 0 {
		t.Fatalf("expected no fallback call, got %d", validator.userCalls)
	}
}

type panickingValidator struct{}

func (panickingValidator) ValidateToken(ctx context.Context, token string) (bool, error) {
	panic("validator exploded")
}

func (panickingValidator) ValidateTokenForUser(ctx context.Context, token, username string) (bool, error) {
	return true, nil
}

func TestVerifyRecoversValidatorPanic(t *testing.T) {
	verifier := NewVerifier(testSecret, WithValidator(panickingValidator{}))
	token := signToken(t, testSecret, "alice", "user-1", time.Now().Add(time.Hour))

	result := verifier.Verify(context.Background(), token)
	if result.State != StateRejected {
		t.Fatal("expected panic to collapse into rejection")
	}
}

func TestSecretValidatorUsernameBinding(t *testing.T) {
	validator := NewSecretValidator(testSecret, false)
	token := signToken(t, testSecret, "alice", "user-1", time.Now().Add(time.Hour))

	if _, err := validator.ValidateToken(context.Background(), token); !errors.Is(err, ErrValidatorUnavailable) {
		t.Fatalf("expected ErrValidatorUnavailable, got %v", err)
	}

	valid, err := validator.ValidateTokenForUser(context.Background(), token, "alice")
	if err != nil || !valid {
		t.Fatalf("expected username-bound validation to pass, valid=%v err=%v", valid, err)
	}

	valid, err = validator.ValidateTokenForUser(context.Background(), token, "mallory")
	if err != nil || valid {
		t.Fatalf("expected mismatched username to fail, valid=%v err=%v", valid, err)
	}
}
