// ABOUTME: Tests for admin JWTs, API key hashing and the admin middleware
// ABOUTME: Exercises accepted and rejected credentials over httptest

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret-key-for-jwt-signing")

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token, err := v.Generate("ops@example.com", time.Hour)
	require.NoError(t, err)

	sub, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", sub)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	otherSecret, _ := NewJWTVerifier([]byte("different-secret")).Generate("x", time.Hour)
	noScope, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": "admin",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "x", "scope": "admin",
	}).SignedString(testSecret)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrInvalidToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"wrong secret", otherSecret, ErrInvalidToken},
		{"wrong algorithm", hs512, ErrInvalidToken},
		{"missing scope", noScope, ErrMissingClaim},
		{"missing sub", noSub, ErrMissingClaim},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJWTVerifier_Expired(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token, err := v.Generate("x", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAPIKeyVerifier(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	v, err := NewAPIKeyVerifier(string(hash))
	require.NoError(t, err)

	assert.NoError(t, v.Verify("s3cret"))
	assert.ErrorIs(t, v.Verify("wrong"), ErrInvalidAPIKey)
	assert.ErrorIs(t, v.Verify(""), ErrInvalidAPIKey)

	_, err = NewAPIKeyVerifier("plaintext")
	assert.Error(t, err)
}

func TestHashAPIKey(t *testing.T) {
	hash, err := HashAPIKey("k")
	require.NoError(t, err)

	v, err := NewAPIKeyVerifier(hash)
	require.NoError(t, err)
	assert.NoError(t, v.Verify("k"))
}

func TestAdminMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	keys, err := NewAPIKeyVerifier(string(hash))
	require.NoError(t, err)
	tokens := NewJWTVerifier(testSecret)
	good, err := tokens.Generate("ops", time.Hour)
	require.NoError(t, err)

	var seen *AuthContext
	handler := AdminMiddleware(keys, tokens, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantMethod Method
	}{
		{"no credentials", nil, http.StatusUnauthorized, ""},
		{"valid api key", map[string]string{"X-API-Key": "s3cret"}, http.StatusNoContent, MethodAPIKey},
		{"wrong api key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized, ""},
		{"valid jwt", map[string]string{"Authorization": "Bearer " + good}, http.StatusNoContent, MethodJWT},
		{"bad jwt", map[string]string{"Authorization": "Bearer abc"}, http.StatusUnauthorized, ""},
		{"basic auth", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantMethod != "" {
				require.NotNil(t, seen)
				assert.Equal(t, tt.wantMethod, seen.Method)
			} else {
				assert.Nil(t, seen)
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestAdminMiddleware_NoVerifiers(t *testing.T) {
	handler := AdminMiddleware(nil, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	req.Header.Set("X-API-Key", "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
