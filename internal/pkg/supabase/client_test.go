package supabase

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractProjectRef(t *testing.T) {
	assert.Equal(t, "akrqbuajqkirdekonpzy", extractProjectRef("https://akrqbuajqkirdekonpzy.supabase.co"))
	assert.Equal(t, "myproject", extractProjectRef("myproject.supabase.co"))
}

func signToken(t *testing.T, secret, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyTokenLocal(t *testing.T) {
	client := NewAuthClient("", "", "test-secret")

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, "test-secret", "user-123", time.Now().Add(time.Hour))
		userID, err := client.VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-123", userID)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, "test-secret", "user-123", time.Now().Add(-time.Hour))
		_, err := client.VerifyToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other-secret", "user-123", time.Now().Add(time.Hour))
		_, err := client.VerifyToken(token)
		assert.Error(t, err)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := client.VerifyToken("")
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = client.VerifyToken(signed)
		assert.Error(t, err)
	})
}

func TestVerifyTokenUnconfigured(t *testing.T) {
	client := NewAuthClient("", "", "")
	_, err := client.VerifyToken("some-token")
	assert.Error(t, err)
}
