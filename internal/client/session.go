package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrAuth is returned when the destination rejects the credentials or the
// login endpoint cannot be reached.
var ErrAuth = errors.New("client: authentication failed")

// LoginPath is the destination's login endpoint.
const LoginPath = "/auth/login"

// Credentials are the login username and password.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is the bearer token obtained by the single login of a run.
type Session struct {
	Token string
	// ExpiresAt is read from the token's exp claim when it is a JWT; zero
	// otherwise. Sessions are never refreshed.
	ExpiresAt time.Time
}

// Authenticate logs in once and caches the token; later calls return the
// cached session without contacting the destination. tokenPath locates the
// token in the login response (e.g. $.token).
func (c *Client) Authenticate(ctx context.Context, creds Credentials, tokenPath string) (*Session, error) {
	c.mu.RLock()
	cached := c.session
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: missing credentials", ErrAuth)
	}

	resp, err := c.Post(ctx, LoginPath, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: login request: %v", ErrAuth, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: login returned status %d: %s", ErrAuth, resp.StatusCode, truncate(resp.Body))
	}

	if tokenPath == "" {
		tokenPath = "$.token"
	}
	token, err := c.parser.ExtractString(resp.Body, tokenPath)
	if err != nil || token == "" {
		return nil, fmt.Errorf("%w: no token at %s", ErrAuth, tokenPath)
	}

	session := &Session{Token: token, ExpiresAt: tokenExpiry(token)}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	fields := []zap.Field{zap.String("user", creds.Username)}
	if !session.ExpiresAt.IsZero() {
		fields = append(fields, zap.Time("expires_at", session.ExpiresAt))
	}
	c.logger.Info("authenticated", fields...)
	return session, nil
}

// ExpiresWithin reports whether the token lapses before now+d. Tokens
// without a readable exp claim never report expiry.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(now.Add(d))
}

// tokenExpiry reads the exp claim without verifying the signature; the
// seeder only needs it for diagnostics.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
