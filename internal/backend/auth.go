package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type tokenKey struct{}

// WithToken attaches a bearer token to ctx for authenticated calls.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token carried by ctx, if any.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// ErrMalformedToken is returned when a token payload cannot be decoded.
var ErrMalformedToken = errors.New("backend: malformed token")

// User is a backend account.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// Credentials are the sign-up and sign-in input.
type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// Session is an authenticated user together with its token.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// SignUp creates an account and returns its session.
func (c *Client) SignUp(ctx context.Context, creds Credentials) (Session, error) {
	return c.authenticate(ctx, "sign-up", creds)
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, creds Credentials) (Session, error) {
	return c.authenticate(ctx, "sign-in", creds)
}

func (c *Client) authenticate(ctx context.Context, action string, creds Credentials) (Session, error) {
	if err := check(creds); err != nil {
		return Session{}, err
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: []string{"auth", action}, body: creds}, &body); err != nil {
		return Session{}, err
	}

	user, err := DecodeToken(body.Token)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: body.Token, User: user}, nil
}

// Users lists backend accounts.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, request{method: http.MethodGet, path: []string{"users"}, auth: true}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// DecodeToken reads the user out of a token's payload segment. The signature
// is not verified; the backend does that on every call.
func DecodeToken(token string) (User, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return User{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		if raw, err = base64.StdEncoding.DecodeString(parts[1]); err != nil {
			return User{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}

	var claims struct {
		Payload User `json:"payload"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.Payload.ID == "" && claims.Payload.Username == "" {
		return User{}, fmt.Errorf("%w: empty payload", ErrMalformedToken)
	}
	return claims.Payload, nil
}
