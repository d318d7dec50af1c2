package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
)

const (
	testSecret = "super-secret-jwt-token-with-at-least-32-characters"
	adminID    = "6f1c2b9e-admin"
)

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func signClaims(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerify_DevModeAcceptsEverything(t *testing.T) {
	v := NewVerifier(Options{})
	require.True(t, v.DevMode())

	for _, h := range []http.Header{{}, bearer("garbage"), bearer("")} {
		p, err := v.Verify(h)
		require.NoError(t, err)
		assert.Equal(t, DevSubject, p.Subject)
		assert.True(t, p.DevMode)
	}
}

func TestVerify_MissingHeader(t *testing.T) {
	v := NewVerifier(Options{Secret: testSecret})

	for _, h := range []http.Header{{}, {"Authorization": {"Basic abc"}}, bearer("")} {
		_, err := v.Verify(h)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
		appErr, _ := errors.As(err)
		assert.Equal(t, "Missing authorization header", appErr.ClientMessage())
	}
}

func TestVerify_WrongSecretIsUnauthorized(t *testing.T) {
	v := NewVerifier(Options{Secret: testSecret, AdminSubject: adminID})

	token, err := SignToken("a-completely-different-secret", adminID, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(bearer(token))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
	appErr, _ := errors.As(err)
	assert.Contains(t, appErr.ClientMessage(), "Invalid token: ")
}

func TestVerify_WrongSubjectIsForbidden(t *testing.T) {
	v := NewVerifier(Options{Secret: testSecret, AdminSubject: adminID})

	token, err := SignToken(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(bearer(token))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeForbidden))
}

func TestVerify_MatchingSubjectSucceeds(t *testing.T) {
	v := NewVerifier(Options{Secret: testSecret, AdminSubject: adminID})

	token, err := SignToken(testSecret, adminID, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(bearer(token))
	require.NoError(t, err)
	assert.Equal(t, adminID, p.Subject)
	assert.False(t, p.DevMode)
	require.NotNil(t, p.Claims)
	assert.Equal(t, Audience, p.Claims.Role)
}

func TestVerify_NoAdminAcceptsAnySubject(t *testing.T) {
	v := NewVerifier(Options{Secret: testSecret})

	token, err := SignToken(testSecret, "anyone", time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(bearer(token))
	require.NoError(t, err)
	assert.Equal(t, "anyone", p.Subject)
}

func TestVerify_ExpiredToken(t *testing.T) {
	v := NewVerifier(Options{Secret: testSecret})

	token, err := SignToken(testSecret, adminID, -time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(bearer(token))
	require.Error(t, err)
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "Token expired", appErr.ClientMessage())
}

func TestVerify_ClaimRules(t *testing.T) {
	v := NewVerifier(Options{Secret: testSecret, Issuer: "https://abc.supabase.co/auth/v1"})
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		method jwt.SigningMethod
		claims Claims
	}{
		{
			name:   "wrong audience",
			method: jwt.SigningMethodHS256,
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: adminID, Audience: jwt.ClaimStrings{"anon"}, ExpiresAt: future,
				Issuer: "https://abc.supabase.co/auth/v1",
			}},
		},
		{
			name:   "missing exp",
			method: jwt.SigningMethodHS256,
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: adminID, Audience: jwt.ClaimStrings{Audience},
				Issuer: "https://abc.supabase.co/auth/v1",
			}},
		},
		{
			name:   "wrong issuer",
			method: jwt.SigningMethodHS256,
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: adminID, Audience: jwt.ClaimStrings{Audience}, ExpiresAt: future,
				Issuer: "https://evil.example/auth/v1",
			}},
		},
		{
			name:   "HS512 not accepted",
			method: jwt.SigningMethodHS512,
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: adminID, Audience: jwt.ClaimStrings{Audience}, ExpiresAt: future,
				Issuer: "https://abc.supabase.co/auth/v1",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := tt.claims
			token := signClaims(t, testSecret, tt.method, &claims)
			_, err := v.Verify(bearer(token))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
		})
	}
}

func TestSignToken_EmptySecret(t *testing.T) {
	_, err := SignToken("", adminID, time.Hour)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(Options{Secret: testSecret, AdminSubject: adminID})
	var seen *Principal
	h := Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	good, err := SignToken(testSecret, adminID, time.Hour)
	require.NoError(t, err)
	other, err := SignToken(testSecret, "intruder", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, `{"error":"Missing authorization header"}`},
		{"forbidden", "Bearer " + other, http.StatusForbidden, `{"error":"Not authorized"}`},
		{"ok", "Bearer " + good, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, rec.Body.String())
				assert.Nil(t, seen)
			} else {
				require.NotNil(t, seen)
				assert.Equal(t, adminID, seen.Subject)
			}
		})
	}
}

func TestSignTokenWithIssuer(t *testing.T) {
	const iss = "https://abc.supabase.co/auth/v1"
	v := NewVerifier(Options{Secret: testSecret, Issuer: iss})

	tok, err := SignTokenWithIssuer(testSecret, "user-1", iss, time.Minute)
	require.NoError(t, err)
	p, err := v.Verify(bearer(tok))
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.Subject)

	tok, err = SignToken(testSecret, "user-1", time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(bearer(tok))
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
}
