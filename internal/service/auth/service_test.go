package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/storage/memory"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T) (*Service, *clock) {
	t.Helper()

	c := &clock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := New(memory.NewUserRepository(), Config{
		Secret:     []byte("test-secret"),
		BcryptCost: bcrypt.MinCost,
	}, WithClock(c.Now))
	require.NoError(t, err)
	return svc, c
}

var asha = RegisterInput{
	FirstName: "Asha",
	LastName:  "Rao",
	Email:     " Asha@Example.com ",
	Password:  "secret1",
}

func TestService_RegisterAndLogin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, asha)
	require.NoError(t, err)
	require.Equal(t, "asha@example.com", user.Email)
	require.Equal(t, domain.RoleUser, user.Role)
	require.NotEqual(t, asha.Password, user.PasswordHash)

	principal, err := svc.Verify(token.Value)
	require.NoError(t, err)
	require.Equal(t, user.ID, principal.UserID)
	require.False(t, principal.IsAdmin())

	_, _, err = svc.Login(ctx, "asha@example.com", "wrong", false)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "secret1", false)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, session, err := svc.Login(ctx, "ASHA@example.com", "secret1", false)
	require.NoError(t, err)
	_, remembered, err := svc.Login(ctx, "asha@example.com", "secret1", true)
	require.NoError(t, err)
	require.Equal(t, 2*time.Hour, session.ExpiresAt.Sub(svc.now()))
	require.Equal(t, 30*24*time.Hour, remembered.ExpiresAt.Sub(svc.now()))
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, asha)
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, asha)
	require.ErrorIs(t, err, domain.ErrUserExists)
}

func TestService_RegisterValidation(t *testing.T) {
	svc, _ := newService(t)

	_, _, err := svc.Register(context.Background(), RegisterInput{Email: "x@example.com", Password: "123"})
	require.ErrorIs(t, err, domain.ErrNameRequired)
	require.ErrorIs(t, err, domain.ErrPasswordTooShort)
}

func TestService_VerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	svc, c := newService(t)
	ctx := context.Background()

	_, token, err := svc.Register(ctx, asha)
	require.NoError(t, err)

	c.now = c.now.Add(3 * time.Hour)
	_, err = svc.Verify(token.Value)
	require.ErrorIs(t, err, ErrInvalidToken)

	other, err := New(memory.NewUserRepository(), Config{Secret: []byte("other"), BcryptCost: bcrypt.MinCost}, WithClock(c.Now))
	require.NoError(t, err)
	_, foreign, err := other.Register(ctx, asha)
	require.NoError(t, err)
	_, err = svc.Verify(foreign.Value)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_EnsureAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, RegisterInput{FirstName: "Shop", LastName: "Owner", Email: "admin@vegshop.local", Password: "changeme"})
	require.NoError(t, err)
	require.True(t, admin.IsAdmin())

	again, err := svc.EnsureAdmin(ctx, RegisterInput{Email: "admin@vegshop.local"})
	require.NoError(t, err)
	require.Equal(t, admin.ID, again.ID)

	_, token, err := svc.Login(ctx, "admin@vegshop.local", "changeme", false)
	require.NoError(t, err)
	principal, err := svc.Verify(token.Value)
	require.NoError(t, err)
	require.True(t, principal.IsAdmin())
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(memory.NewUserRepository(), Config{})
	require.Error(t, err)
}
