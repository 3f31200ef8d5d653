package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"imagehub/internal/models"
)

const (
	msgInvalidToken  = "invalid or expired token"
	msgMissingClaims = "missing or invalid authorization"
)

// ErrValidatorUnavailable signals that a validator does not implement the
// requested check, typically because the signing-key version backing it only
// supports username-bound validation. Verify falls back to the secondary
// strategy when the primary check reports this error.
var ErrValidatorUnavailable = errors.New("token validator unavailable")

// ResultState enumerates the outcomes of verifying a bearer token.
type ResultState int

const (
	StateRejected ResultState = iota
	StateAuthenticated
)

// Result is the outcome of a verification attempt. Identity is populated only
// when State is StateAuthenticated; Message and Status describe the rejection
// otherwise.
type Result struct {
	State    ResultState
	Identity models.Identity
	Message  string
	Status   int
}

func rejected(message string, status int) Result {
	return Result{State: StateRejected, Message: message, Status: status}
}

func authenticated(id models.Identity) Result {
	return Result{State: StateAuthenticated, Identity: id}
}

// Validator exposes the two validation strategies offered by the token trust
// backend. ValidateToken is the primary whole-token check; ValidateTokenForUser
// is the slower path that re-derives validity from the username claim.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (bool, error)
	ValidateTokenForUser(ctx context.Context, token, username string) (bool, error)
}

type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// VerifierOption configures a Verifier instance.
type VerifierOption func(*Verifier)

// WithValidator injects a custom Validator implementation.
func WithValidator(v Validator) VerifierOption {
	return func(verifier *Verifier) {
		if v != nil {
			verifier.validator = v
		}
	}
}

// Verifier parses and validates bearer tokens against process-wide trust
// material. The secret is read-only after construction.
type Verifier struct {
	secret    []byte
	parser    *jwt.Parser
	validator Validator
}

// NewVerifier constructs a Verifier for HMAC-signed tokens using the provided
// secret. Unless overridden, validation runs against the same secret with both
// strategies available.
func NewVerifier(secret []byte, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if v.validator == nil {
		v.validator = NewSecretValidator(secret, true)
	}
	return v
}

// Verify checks the raw credential string (scheme prefix already stripped) and
// returns the authenticated identity or a rejection. It has no side effects
// and never panics: validator failures of any kind collapse into a rejection.
func (v *Verifier) Verify(ctx context.Context, token string) Result {
	token = strings.TrimSpace(token)
	if token == "" {
		return rejected(msgInvalidToken, http.StatusUnauthorized)
	}

	claims := &tokenClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, v.keyFunc)
	if err != nil || !parsed.Valid {
		return rejected(msgInvalidToken, http.StatusUnauthorized)
	}

	username := strings.TrimSpace(claims.Username)
	userID := strings.TrimSpace(claims.Subject)
	if username == "" || userID == "" {
		return rejected(msgMissingClaims, http.StatusUnauthorized)
	}

	valid, err := v.validate(ctx, token, username)
	if err != nil || !valid {
		return rejected(msgInvalidToken, http.StatusUnauthorized)
	}

	return authenticated(models.Identity{UserID: userID, Username: username})
}

// validate runs the primary strategy and falls back to the username-bound
// strategy when the primary is unavailable for the configured key material.
func (v *Verifier) validate(ctx context.Context, token, username string) (valid bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			valid = false
			err = fmt.Errorf("token validation panic: %v", recovered)
		}
	}()

	valid, err = v.validator.ValidateToken(ctx, token)
	if errors.Is(err, ErrValidatorUnavailable) {
		valid, err = v.validator.ValidateTokenForUser(ctx, token, username)
	}
	return valid, err
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return v.secret, nil
}

// SecretValidator validates tokens against a shared HMAC secret. The direct
// capability flag models signing-key versions that only support the
// username-bound check; when false, ValidateToken reports
// ErrValidatorUnavailable and callers must use ValidateTokenForUser.
type SecretValidator struct {
	secret         []byte
	supportsDirect bool
}

// NewSecretValidator constructs a SecretValidator. supportsDirect controls
// whether the primary whole-token check is available.
func NewSecretValidator(secret []byte, supportsDirect bool) *SecretValidator {
	return &SecretValidator{secret: secret, supportsDirect: supportsDirect}
}

// ValidateToken re-parses the token, checking signature and expiry.
func (s *SecretValidator) ValidateToken(ctx context.Context, token string) (bool, error) {
	if !s.supportsDirect {
		return false, ErrValidatorUnavailable
	}
	return s.check(token, "")
}

// ValidateTokenForUser re-derives validity from the username claim: the token
// must parse and its username claim must match the expected username exactly.
func (s *SecretValidator) ValidateTokenForUser(ctx context.Context, token, username string) (bool, error) {
	if strings.TrimSpace(username) == "" {
		return false, nil
	}
	return s.check(token, username)
}

func (s *SecretValidator) check(token, expectUsername string) (bool, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return false, nil
	}
	if expectUsername != "" && claims.Username != expectUsername {
		return false, nil
	}
	return true, nil
}
