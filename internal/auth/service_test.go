package auth

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	svc, err := NewService(repo, Config{JWTSecret: "test-secret", TokenTTL: time.Hour}, zerolog.Nop())
	require.NoError(t, err)
	return svc, repo
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService(NewMemoryRepository(), Config{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestSignUp_HashesPasswordAndIssuesSession(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, session, err := svc.SignUp(ctx, "  Cook@Example.com ", "Password@123", "Cook")
	require.NoError(t, err)
	assert.Equal(t, "cook@example.com", user.Email)
	assert.Equal(t, "Cook", user.DisplayName)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, "bearer", session.TokenType)
	assert.Equal(t, int64(3600), session.ExpiresIn)

	stored, err := repo.FindByEmail(ctx, "cook@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "Password@123", stored.PasswordHash)

	claims, err := svc.Verify(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "cook@example.com", claims.Email)
}

func TestSignUp_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"missing email", "", "Password@123", "email"},
		{"malformed email", "not-an-email", "Password@123", "email"},
		{"short password", "a@example.com", "123", "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SignUp(ctx, tt.email, tt.password, "")
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.SignUp(ctx, "a@example.com", "Password@123", "")
	require.NoError(t, err)
	_, _, err = svc.SignUp(ctx, "A@example.com", "Password@456", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignIn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.SignUp(ctx, "a@example.com", "Password@123", "")
	require.NoError(t, err)

	user, session, err := svc.SignIn(ctx, "a@example.com", "Password@123")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", user.Email)
	assert.NotEmpty(t, session.AccessToken)

	_, _, err = svc.SignIn(ctx, "a@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.SignIn(ctx, "nobody@example.com", "Password@123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignOut_RevokesToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, session, err := svc.SignUp(ctx, "a@example.com", "Password@123", "")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, session.AccessToken))

	_, err = svc.Verify(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Rejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrAuthenticationRequired)

	_, err = svc.Verify(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewService(NewMemoryRepository(), Config{JWTSecret: "other-secret"}, zerolog.Nop())
	require.NoError(t, err)
	_, session, err := other.SignUp(ctx, "a@example.com", "Password@123", "")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, session, err := svc.SignUp(ctx, "a@example.com", "Password@123", "")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Verify(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMe(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.SignUp(ctx, "a@example.com", "Password@123", "A")
	require.NoError(t, err)

	got, err := svc.Me(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.DisplayName)

	_, err = svc.Me(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
