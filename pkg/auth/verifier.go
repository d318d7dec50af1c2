// Package auth verifies Supabase-style HS256 bearer tokens and enforces the
// single-admin policy.
package auth

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
)

const (
	// DevSubject is the subject reported for every request in dev mode.
	DevSubject = "dev-user"
	// Audience is the only accepted "aud" claim.
	Audience = "authenticated"
)

// Claims carries the token fields Supabase issues on top of the registered set.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the verified identity behind one request.
type Principal struct {
	Subject string
	DevMode bool
	Claims  *Claims
}

// Options configures a Verifier. An empty Secret enables dev mode.
type Options struct {
	Secret       string
	AdminSubject string
	Issuer       string
	Logger       *slog.Logger
}

// Verifier checks request credentials.
type Verifier struct {
	secret  []byte
	admin   string
	devMode bool
	parser  *jwt.Parser
}

// NewVerifier builds a Verifier. Dev mode is announced at WARN because it
// accepts every request.
func NewVerifier(opts Options) *Verifier {
	v := &Verifier{
		secret:  []byte(opts.Secret),
		admin:   strings.TrimSpace(opts.AdminSubject),
		devMode: strings.TrimSpace(opts.Secret) == "",
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if iss := strings.TrimSpace(opts.Issuer); iss != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(iss))
	}
	v.parser = jwt.NewParser(parserOpts...)

	if v.devMode && opts.Logger != nil {
		opts.Logger.Warn("auth running in dev mode: no signing secret configured, all requests are accepted")
	}
	return v
}

// DevMode reports whether verification is bypassed.
func (v *Verifier) DevMode() bool { return v.devMode }

// Verify authenticates the request headers.
func (v *Verifier) Verify(h http.Header) (*Principal, error) {
	if v.devMode {
		return &Principal{Subject: DevSubject, DevMode: true}, nil
	}

	header := h.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errors.New(errors.ErrCodeUnauthorized, "Missing authorization header")
	}
	raw := strings.TrimSpace(header[len("Bearer "):])
	if raw == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "Missing authorization header")
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "Token expired")
		}
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid token").
			WithUserMessage(fmt.Sprintf("Invalid token: %v", err))
	}
	if !token.Valid {
		return nil, errors.New(errors.ErrCodeUnauthorized, "Invalid token: token is not valid")
	}

	if v.admin != "" && claims.Subject != v.admin {
		return nil, errors.New(errors.ErrCodeForbidden, "Not authorized").
			WithContext("subject", claims.Subject)
	}

	return &Principal{Subject: claims.Subject, Claims: claims}, nil
}

// SignToken mints an HS256 token that Verify accepts for the same secret.
func SignToken(secret, subject string, ttl time.Duration) (string, error) {
	return SignTokenWithIssuer(secret, subject, "", ttl)
}

// SignTokenWithIssuer is SignToken for verifiers that check the issuer.
func SignTokenWithIssuer(secret, subject, issuer string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "signing secret is empty")
	}

	now := time.Now()
	claims := &Claims{
		Role: Audience,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
