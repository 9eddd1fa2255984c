package supabase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/supabase-community/gotrue-go"
)

// AuthClient resolves Supabase access tokens to user IDs. When the project
// JWT secret is configured the token is verified locally (HS256); otherwise
// it is resolved remotely through the auth backend, the way the admin API
// does it.
type AuthClient struct {
	client    gotrue.Client
	jwtSecret string
}

// extractProjectRef extracts just the project reference ID from a Supabase URL.
// From: akrqbuajqkirdekonpzy.supabase.co
// To: akrqbuajqkirdekonpzy
func extractProjectRef(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")

	parts := strings.Split(url, ".")
	return parts[0]
}

func NewAuthClient(supabaseURL, serviceKey, jwtSecret string) *AuthClient {
	var client gotrue.Client
	if supabaseURL != "" && serviceKey != "" {
		client = gotrue.New(extractProjectRef(supabaseURL), serviceKey)
	}
	return &AuthClient{
		client:    client,
		jwtSecret: jwtSecret,
	}
}

// VerifyToken resolves an access token to the authenticated user's ID.
func (a *AuthClient) VerifyToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}

	if a.jwtSecret != "" {
		return a.verifyLocal(token)
	}

	if a.client == nil {
		return "", errors.New("auth client is not configured")
	}

	res, err := a.client.WithToken(token).GetUser()
	if err != nil {
		return "", fmt.Errorf("failed to resolve token: %w", err)
	}
	return res.ID.String(), nil
}

func (a *AuthClient) verifyLocal(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(a.jwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject claim")
	}
	return sub, nil
}
