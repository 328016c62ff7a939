package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linklytics/linklytics/internal/apperr"
)

func TestMintAndVerifyToken(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	token, err := tm.Mint("user-123", "user@example.com")
	require.NoError(t, err)

	subject, err := tm.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", subject)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenManager("secret-a", time.Hour).Mint("user-123", "user@example.com")
	require.NoError(t, err)

	_, err = NewTokenManager("secret-b", time.Hour).VerifyToken(token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	token, err := NewTokenManager("test-secret", -time.Minute).Mint("user-123", "user@example.com")
	require.NoError(t, err)

	_, err = NewTokenManager("test-secret", time.Hour).VerifyToken(token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	_, err := NewTokenManager("test-secret", time.Hour).VerifyToken("not.a.token")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func newProtectedApp(tm *TokenManager) *fiber.App {
	app := fiber.New()
	app.Get("/whoami", Middleware(tm), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(UserIDKey).(string))
	})
	return app
}

func TestMiddlewareAttachesSubject(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	app := newProtectedApp(tm)

	token, err := tm.Mint("user-123", "user@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "user-123", string(body))
}

func TestMiddlewareRejectsMissingOrInvalidToken(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	app := newProtectedApp(tm)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"bearer garbage", "Bearer not.a.token"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestTokenInfoVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "assertion-abc", r.URL.Query().Get("id_token"))
		fmt.Fprint(w, `{"sub":"102253486702087162941","email":"user@example.com","name":"Jane Doe","aud":"client-1"}`)
	}))
	defer srv.Close()

	v := NewTokenInfoVerifier(srv.URL, "client-1")
	identity, err := v.Verify(context.Background(), "assertion-abc")
	require.NoError(t, err)
	assert.Equal(t, "102253486702087162941", identity.Subject)
	assert.Equal(t, "user@example.com", identity.Email)
	assert.Equal(t, "Jane Doe", identity.Name)
}

func TestTokenInfoVerifierRejectsAudienceMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sub":"102253486702087162941","aud":"someone-else"}`)
	}))
	defer srv.Close()

	_, err := NewTokenInfoVerifier(srv.URL, "client-1").Verify(context.Background(), "assertion-abc")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestTokenInfoVerifierRejectsBadAssertion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewTokenInfoVerifier(srv.URL, "client-1").Verify(context.Background(), "bad-assertion")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
