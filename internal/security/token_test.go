package security_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple/internal/security"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)

	token, err := svc.CreateForUser("user-123")
	require.NoError(t, err)

	sub, err := svc.Subject(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", sub)
}

func TestTokenExpired(t *testing.T) {
	svc := security.NewTokenService("secret", -time.Minute)

	token, err := svc.CreateForUser("user-123")
	require.NoError(t, err)

	_, err = svc.Subject(token)
	assert.Error(t, err)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := security.NewTokenService("secret-a", time.Hour).CreateForUser("user-123")
	require.NoError(t, err)

	_, err = security.NewTokenService("secret-b", time.Hour).Subject(token)
	assert.Error(t, err)
}

func TestRandomCode(t *testing.T) {
	code, err := security.RandomCode(8)
	require.NoError(t, err)
	assert.Len(t, code, 8)

	other, err := security.RandomCode(8)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}
