package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silly-dl/silly/pkg/database"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewService(NewStore(db), "test-secret")
}

func TestRegisterAdminIsOneShot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	exists, err := svc.AdminExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	admin, err := svc.RegisterAdmin(ctx, "admin", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, admin.Role)
	assert.Equal(t, "admin", admin.Username)

	exists, err = svc.AdminExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = svc.RegisterAdmin(ctx, "admin2", "another password")
	assert.ErrorIs(t, err, ErrAdminExists)
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterAdmin(ctx, "admin", "correct horse battery")
	require.NoError(t, err)

	user, token, err := svc.Login(ctx, "admin", "correct horse battery")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "admin", user.Username)

	_, _, err = svc.Login(ctx, "admin", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown usernames are indistinguishable from bad passwords.
	_, _, err = svc.Login(ctx, "nobody", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	admin, err := svc.RegisterAdmin(ctx, "admin", "correct horse battery")
	require.NoError(t, err)

	token, err := svc.IssueToken(admin)
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, claims.UID)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, string(RoleAdmin), claims.Role)

	_, err = svc.VerifyToken(token + "tampered")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewService(svc.store, "different-secret")
	_, err = other.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCreateUserValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		role     Role
		errMsg   string
	}{
		{"short username", "ab", "long enough pass", RoleUser, "username"},
		{"short password", "alice", "short", RoleUser, "password"},
		{"bad role", "alice", "long enough pass", Role("root"), "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUser(ctx, tt.username, tt.password, tt.role)
			var validErr *ValidationError
			require.ErrorAs(t, err, &validErr)
			assert.Contains(t, validErr.Error(), tt.errMsg)
		})
	}

	user, err := svc.CreateUser(ctx, "alice", "long enough pass", RoleUser)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, user.Role)

	_, err = svc.CreateUser(ctx, "alice", "long enough pass", RoleUser)
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestDeleteUserRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	admin, err := svc.RegisterAdmin(ctx, "admin", "correct horse battery")
	require.NoError(t, err)
	user, err := svc.CreateUser(ctx, "alice", "long enough pass", RoleUser)
	require.NoError(t, err)

	// Self-deletion is refused.
	assert.ErrorIs(t, svc.DeleteUser(ctx, admin.ID, admin.ID), ErrSelfDelete)

	// The last admin cannot be removed by anyone.
	assert.ErrorIs(t, svc.DeleteUser(ctx, user.ID, admin.ID), ErrLastAdmin)

	// A second admin makes the first deletable.
	admin2, err := svc.CreateUser(ctx, "admin2", "long enough pass", RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteUser(ctx, admin2.ID, admin.ID))

	_, err = svc.GetUser(ctx, admin.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Deleting an unknown id reports not found.
	assert.ErrorIs(t, svc.DeleteUser(ctx, admin2.ID, 9999), ErrUserNotFound)
}
