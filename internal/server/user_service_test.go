package server

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/market-research/internal/config"
	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

func newTestUserService(t *testing.T) (*UserService, *store.Memory) {
	t.Helper()
	passwordConfig, err := config.NewPasswordConfig(10, "")
	require.NoError(t, err)
	mem := store.NewMemory()
	return NewUserService(mem, passwordConfig), mem
}

func TestUserService_Register(t *testing.T) {
	service, mem := newTestUserService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, &types.RegisterRequest{
		Name: " Ada ", Email: "ada@example.com", Password: "password123", Company: "Acme",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "Acme", user.Company)

	stored, err := mem.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "password123", stored.PasswordHash)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := service.Register(ctx, &types.RegisterRequest{Name: "Other", Email: "ADA@example.com", Password: "password123"})
		var emailErr *ErrEmailAlreadyExists
		require.ErrorAs(t, err, &emailErr)
	})
}

func TestUserService_Login(t *testing.T) {
	service, _ := newTestUserService(t)
	ctx := context.Background()

	registered, err := service.Register(ctx, &types.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	user, err := service.Login(ctx, &types.LoginRequest{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	tests := []struct {
		name  string
		email string
		pw    string
	}{
		{name: "wrong password", email: "ada@example.com", pw: "nope"},
		{name: "unknown email", email: "bob@example.com", pw: "password123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Login(ctx, &types.LoginRequest{Email: tt.email, Password: tt.pw})
			var credErr *ErrInvalidCredentials
			assert.ErrorAs(t, err, &credErr)
		})
	}
}

func TestUserService_UpdateProfile(t *testing.T) {
	service, _ := newTestUserService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, &types.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)

	company := "Analytical Engines"
	updated, err := service.UpdateProfile(ctx, user.ID, &types.UpdateProfileRequest{Company: &company})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.Name)
	assert.Equal(t, company, updated.Company)

	blank := "  "
	_, err = service.UpdateProfile(ctx, user.ID, &types.UpdateProfileRequest{Name: &blank})
	var valErr *ErrValidation
	assert.ErrorAs(t, err, &valErr)

	_, err = service.Profile(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
