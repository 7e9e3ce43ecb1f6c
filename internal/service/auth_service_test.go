package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple/internal/domain"
	"ripple/internal/security"
	"ripple/internal/service"
)

func newAuthEnv(t *testing.T) (*testEnv, *service.AuthService) {
	t.Helper()
	env := newTestEnv(t)
	tokens := security.NewTokenService("test-secret", time.Hour)
	hasher := security.NewPasswordHasher(4) // low cost for tests
	return env, service.NewAuthService(env.userRepo, tokens, hasher)
}

func TestRegister(t *testing.T) {
	_, auth := newAuthEnv(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		user, err := auth.Register(ctx, service.RegisterInput{
			Username: "newuser",
			Password: "Password1!",
		})
		require.NoError(t, err)
		assert.Equal(t, "newuser", user.Username)
		assert.Equal(t, "newuser", user.DisplayName)
		assert.True(t, user.IsActive)
		assert.NotEqual(t, "Password1!", user.HashedPassword)
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		_, err := auth.Register(ctx, service.RegisterInput{
			Username: "newuser",
			Password: "Another1!",
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("MissingFields", func(t *testing.T) {
		_, err := auth.Register(ctx, service.RegisterInput{Username: "nopass"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestLogin(t *testing.T) {
	_, auth := newAuthEnv(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, service.RegisterInput{
		Username: "alice",
		Password: "Password1!",
	})
	require.NoError(t, err)

	t.Run("Success", func(t *testing.T) {
		resp, err := auth.Login(ctx, service.LoginInput{Username: "alice", Password: "Password1!"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, "alice", resp.User.Username)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := auth.Login(ctx, service.LoginInput{Username: "alice", Password: "wrong"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := auth.Login(ctx, service.LoginInput{Username: "nobody", Password: "x"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestVerifyToken(t *testing.T) {
	_, auth := newAuthEnv(t)
	ctx := context.Background()

	registered, err := auth.Register(ctx, service.RegisterInput{
		Username: "alice",
		Password: "Password1!",
	})
	require.NoError(t, err)

	resp, err := auth.Login(ctx, service.LoginInput{Username: "alice", Password: "Password1!"})
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		user, err := auth.VerifyToken(ctx, resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := auth.VerifyToken(ctx, "not.a.token")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}
