package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpashkov/noteboard/internal/hash"
	"github.com/dpashkov/noteboard/internal/models"
	"github.com/dpashkov/noteboard/internal/tokens"
)

const testPassword = "password123"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(
		initTestDB(t),
		[]byte("test-access-secret"),
		[]byte("test-refresh-secret"),
		15*time.Minute,
		7*24*time.Hour,
	)
}

func createTestUser(t *testing.T, m *Manager, username string) *models.User {
	t.Helper()

	pwHash, err := hash.HashPassword(testPassword)
	require.NoError(t, err)

	user := models.User{
		Username:     username,
		Email:        fmt.Sprintf("%s@example.com", username),
		PasswordHash: pwHash,
		Role:         models.RoleUser,
		Status:       models.StatusActive,
	}
	require.NoError(t, m.DB.Create(&user).Error)
	return &user
}

func refreshRowCount(t *testing.T, m *Manager, userID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, m.DB.Model(&models.RefreshToken{}).
		Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func TestSignIn_MintsPairAndPersistsRow(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	user := createTestUser(t, m, "alice")
	ctx := context.Background()

	pair, err := m.SignIn(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.AccessExpiresAt, time.Second)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), pair.RefreshExpiresAt, time.Second)

	row, err := m.Store.FindByToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, user.ID, row.UserID)
	assert.WithinDuration(t, pair.RefreshExpiresAt, row.ExpiresAt, time.Second)
}

func TestAuthenticate_AccessValid_NoMutation(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	user := createTestUser(t, m, "alice")
	ctx := context.Background()

	pair, err := m.SignIn(ctx, user)
	require.NoError(t, err)

	got, rotated, err := m.Authenticate(ctx, pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)
	assert.Nil(t, rotated, "a valid access token must not trigger rotation")
	assert.EqualValues(t, 1, refreshRowCount(t, m, user.ID))
}

func TestAuthenticate_NoTokens(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	createTestUser(t, m, "alice")

	user, rotated, err := m.Authenticate(context.Background(), "", "")
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Nil(t, user)
	assert.Nil(t, rotated)
}

func TestRefresh_RotationIsSingleUse(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	user := createTestUser(t, m, "alice")
	ctx := context.Background()

	pair, err := m.SignIn(ctx, user)
	require.NoError(t, err)

	got, rotated, err := m.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, rotated)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The old token was consumed; presenting it again must fail.
	_, _, err = m.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthenticated)

	// Exactly one live row: the replacement.
	assert.EqualValues(t, 1, refreshRowCount(t, m, user.ID))
	row, err := m.Store.FindByToken(ctx, rotated.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, row)
}

func TestAuthenticate_VersionMismatchFallsToRefresh(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	user := createTestUser(t, m, "alice")
	ctx := context.Background()

	pair, err := m.SignIn(ctx, user)
	require.NoError(t, err)

	require.NoError(t, m.DB.Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("access_token_version", 1).Error)

	got, rotated, err := m.Authenticate(ctx, pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, rotated, "stale access token must rotate via refresh, never pass as valid")

	claims, err := tokens.AccessClaimsFromToken(rotated.AccessToken, m.AccessSecret)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.Version)
}

func TestRevokeAll(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	user := createTestUser(t, m, "alice")
	ctx := context.Background()

	pair1, err := m.SignIn(ctx, user)
	require.NoError(t, err)
	pair2, err := m.SignIn(ctx, user)
	require.NoError(t, err)
	require.EqualValues(t, 2, refreshRowCount(t, m, user.ID))

	require.NoError(t, m.RevokeAll(ctx, user.ID))

	assert.EqualValues(t, 0, refreshRowCount(t, m, user.ID))

	// Previously issued access tokens die immediately on the version bump,
	// and both refresh paths are gone.
	for _, p := range []*Pair{pair1, pair2} {
		_, _, err := m.Authenticate(ctx, p.AccessToken, p.RefreshToken)
		require.ErrorIs(t, err, ErrUnauthenticated)
	}
}

func TestAuthenticate_DisallowedStatus(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	user := createTestUser(t, m, "alice")
	ctx := context.Background()

	pair, err := m.SignIn(ctx, user)
	require.NoError(t, err)

	for _, status := range []string{models.StatusPending, models.StatusInactive, models.StatusBanned} {
		require.NoError(t, m.DB.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("status", status).Error)

		got, rotated, err := m.Authenticate(ctx, pair.AccessToken, pair.RefreshToken)
		require.ErrorIs(t, err, ErrUnauthenticated, "status %s must not authenticate", status)
		assert.Nil(t, got)
		assert.Nil(t, rotated)
	}
}

func TestRefresh_ExpiredRow(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	user := createTestUser(t, m, "alice")
	ctx := context.Background()

	// Token itself is still verifiable but the row has lapsed; expiry is
	// re-checked at read time.
	token, _, err := tokens.SignRefreshToken(user.ID, m.RefreshSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, m.Store.Create(ctx, token, user.ID, time.Now().Add(-time.Hour)))

	_, _, err = m.Refresh(ctx, token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRefresh_UnknownToken(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	user := createTestUser(t, m, "alice")

	// Correctly signed but never persisted.
	token, _, err := tokens.SignRefreshToken(user.ID, m.RefreshSecret, time.Hour)
	require.NoError(t, err)

	_, _, err = m.Refresh(context.Background(), token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSignOut_Idempotent(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	user := createTestUser(t, m, "alice")
	ctx := context.Background()

	pair, err := m.SignIn(ctx, user)
	require.NoError(t, err)

	require.NoError(t, m.SignOut(ctx, pair.RefreshToken))
	assert.EqualValues(t, 0, refreshRowCount(t, m, user.ID))

	// Already signed out, absent token, empty token: all fine.
	require.NoError(t, m.SignOut(ctx, pair.RefreshToken))
	require.NoError(t, m.SignOut(ctx, ""))
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	user := createTestUser(t, m, "alice")
	ctx := context.Background()

	_, err := m.SignIn(ctx, user)
	require.NoError(t, err)

	err = m.ChangePassword(ctx, user.ID, "wrong-password", "newpassword123")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, m.ChangePassword(ctx, user.ID, testPassword, "newpassword123"))

	var updated models.User
	require.NoError(t, m.DB.Where("id = ?", user.ID).First(&updated).Error)
	assert.True(t, hash.CheckPassword(updated.PasswordHash, "newpassword123"))
	assert.False(t, hash.CheckPassword(updated.PasswordHash, testPassword))

	// Changing the password revokes everything.
	assert.EqualValues(t, 0, refreshRowCount(t, m, user.ID))
	assert.Equal(t, user.AccessTokenVersion+1, updated.AccessTokenVersion)
}
