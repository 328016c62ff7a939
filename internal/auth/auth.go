// Package auth covers the identity boundary: verifying an external identity
// assertion, minting/validating session JWTs, and the fiber middleware that
// attaches the authenticated user id to the request.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/linklytics/linklytics/internal/apperr"
)

// Identity is what the external identity provider asserts about a user.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// IdentityVerifier validates an opaque assertion token and returns the
// stable identity behind it. The core trusts Subject as the user identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, assertion string) (Identity, error)
}

// TokenInfoVerifier validates Google ID tokens against the tokeninfo
// endpoint and checks the audience claim.
type TokenInfoVerifier struct {
	endpoint string
	clientID string
	client   *http.Client
}

func NewTokenInfoVerifier(endpoint, clientID string) *TokenInfoVerifier {
	if endpoint == "" {
		endpoint = "https://oauth2.googleapis.com/tokeninfo"
	}
	return &TokenInfoVerifier{
		endpoint: endpoint,
		clientID: clientID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *TokenInfoVerifier) Verify(ctx context.Context, assertion string) (Identity, error) {
	u := v.endpoint + "?id_token=" + url.QueryEscape(assertion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: building tokeninfo request: %v", apperr.ErrUnauthorized, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: tokeninfo request failed: %v", apperr.ErrUnauthorized, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: tokeninfo returned %s", apperr.ErrUnauthorized, resp.Status)
	}

	var body struct {
		Sub      string `json:"sub"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		Audience string `json:"aud"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, fmt.Errorf("%w: decoding tokeninfo response: %v", apperr.ErrUnauthorized, err)
	}
	if body.Sub == "" {
		return Identity{}, fmt.Errorf("%w: assertion carries no subject", apperr.ErrUnauthorized)
	}
	if v.clientID != "" && body.Audience != v.clientID {
		return Identity{}, fmt.Errorf("%w: assertion audience mismatch", apperr.ErrUnauthorized)
	}
	return Identity{Subject: body.Sub, Email: body.Email, Name: body.Name}, nil
}

// TokenManager mints and verifies the HS256 session tokens issued after a
// successful identity verification.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

func (m *TokenManager) Mint(subject, email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"email": email,
		"jti":   uuid.NewString(),
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// VerifyToken returns the subject of a valid session token.
func (m *TokenManager) VerifyToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperr.ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", apperr.ErrUnauthorized
	}
	return sub, nil
}

// UserIDKey is the fiber locals key Middleware stores the subject under.
const UserIDKey = "userId"

// Middleware guards identity-scoped routes. On success the authenticated
// subject is available via c.Locals(UserIDKey).
func Middleware(tm *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authorization token missing"})
		}
		subject, err := tm.VerifyToken(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
		}
		c.Locals(UserIDKey, subject)
		return c.Next()
	}
}
