package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jtarrant/folio/internal/models"
)

// tokenResponse is the auth service's token grant response shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (r *tokenResponse) toSession() *models.Session {
	s := &models.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		UserID:       r.User.ID,
		Email:        r.User.Email,
	}
	if r.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	if s.ExpiresAt.IsZero() || s.UserID == "" {
		fillFromClaims(s)
	}
	return s
}

// fillFromClaims backfills expiry and user id from the access token's claims
// when the grant response omitted them. Claims are read without signature
// verification: the token is the backend's to verify, not ours.
func fillFromClaims(s *models.Session) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(s.AccessToken, claims); err != nil {
		return
	}
	if s.ExpiresAt.IsZero() {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			s.ExpiresAt = exp.Time
		}
	}
	if s.UserID == "" {
		if sub, err := claims.GetSubject(); err == nil {
			s.UserID = sub
		}
	}
}

// SignIn performs a password-grant sign-in. The resulting session is
// installed on the client for subsequent data calls.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	query := url.Values{}
	query.Set("grant_type", "password")

	body := map[string]string{"email": email, "password": password}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", query, body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("sign-in returned no access token")
	}

	session := resp.toSession()
	c.SetSession(session)
	return session, nil
}

// SignUp registers a new user. Depending on backend settings the response may
// already carry a usable session.
func (c *Client) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	body := map[string]string{"email": email, "password": password}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, body, &resp); err != nil {
		return nil, err
	}

	session := resp.toSession()
	if session.AccessToken != "" {
		c.SetSession(session)
	}
	return session, nil
}

// Introspect validates the session against the auth service and returns the
// authenticated user id. A 401 means the token has expired and the user must
// sign in again; this client does not refresh tokens automatically.
func (c *Client) Introspect(ctx context.Context, session *models.Session) (string, error) {
	c.SetSession(session)

	var user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil, &user); err != nil {
		return "", err
	}
	if user.ID == "" {
		return "", fmt.Errorf("token introspection returned no user id")
	}
	return user.ID, nil
}
