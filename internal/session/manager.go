package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dpashkov/noteboard/internal/hash"
	"github.com/dpashkov/noteboard/internal/logging"
	"github.com/dpashkov/noteboard/internal/models"
	"github.com/dpashkov/noteboard/internal/tokens"
)

var (
	// ErrUnauthenticated covers every way a request can fail to prove a
	// session: missing, malformed, expired or revoked tokens. The precise
	// reason is logged, never surfaced to the client.
	ErrUnauthenticated = errors.New("unauthenticated")

	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager orchestrates token issuance, per-request validation, rotation and
// revocation. It holds process-wide immutable configuration; all mutable state
// lives in the database.
type Manager struct {
	DB            *gorm.DB
	Store         *Store
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func NewManager(db *gorm.DB, accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		DB:            db,
		Store:         &Store{DB: db},
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	}
}

// SignIn mints a fresh access/refresh pair and persists the refresh row.
// Callers must have rejected disallowed account statuses already.
func (m *Manager) SignIn(ctx context.Context, user *models.User) (*Pair, error) {
	access, accessExp, err := tokens.SignAccessToken(
		user.ID, user.Role, user.Status, user.AccessTokenVersion, m.AccessSecret, m.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, refreshExp, err := tokens.SignRefreshToken(user.ID, m.RefreshSecret, m.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := m.Store.Create(ctx, refresh, user.ID, refreshExp); err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Authenticate resolves the current user for a request. When the access token
// alone proves the session, the returned Pair is nil and nothing is mutated.
// When the access token fails but the refresh token rotates successfully, the
// new Pair must be written back to the client. ErrUnauthenticated means the
// request is anonymous; any other error is a server-side failure.
func (m *Manager) Authenticate(ctx context.Context, accessToken, refreshToken string) (*models.User, *Pair, error) {
	l := logging.FromContext(ctx).With("svc", "session.authenticate")

	if accessToken != "" {
		claims, err := tokens.AccessClaimsFromToken(accessToken, m.AccessSecret)
		if err != nil {
			l.Debug("access token rejected", "error", err)
		} else {
			user, userErr := m.userByID(ctx, claims.UserID)
			if userErr != nil {
				return nil, nil, userErr
			}
			if user != nil &&
				claims.Version == user.AccessTokenVersion &&
				!models.StatusDisallowed(user.Status) {
				return user, nil, nil
			}
			l.Debug("access token stale", "user_id", claims.UserID)
		}
	}

	if refreshToken == "" {
		return nil, nil, ErrUnauthenticated
	}

	return m.Refresh(ctx, refreshToken)
}

// Refresh verifies the presented refresh token and rotates it: the old row
// is consumed and a new pair is minted in a single transaction. A token is
// rotated at most once; concurrent presentations race on the row delete and
// the loser comes back unauthenticated.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*models.User, *Pair, error) {
	l := logging.FromContext(ctx).With("svc", "session.refresh")

	claims, err := tokens.RefreshClaimsFromToken(refreshToken, m.RefreshSecret)
	if err != nil {
		l.Debug("refresh token rejected", "error", err)
		return nil, nil, ErrUnauthenticated
	}

	var (
		user models.User
		pair Pair
	)
	txErr := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := m.Store.WithTx(tx)

		row, err := store.FindByToken(ctx, refreshToken)
		if err != nil {
			return err
		}
		if row == nil || !row.ExpiresAt.After(time.Now()) {
			return ErrUnauthenticated
		}
		if row.UserID != claims.UserID {
			return ErrUnauthenticated
		}

		if err := tx.Where("id = ?", row.UserID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnauthenticated
			}
			return fmt.Errorf("load user for rotation: %w", err)
		}
		if models.StatusDisallowed(user.Status) {
			return ErrUnauthenticated
		}

		deleted, err := store.DeleteByToken(ctx, refreshToken)
		if err != nil {
			return err
		}
		if !deleted {
			// A concurrent rotation already consumed this token.
			return ErrUnauthenticated
		}

		newRefresh, refreshExp, err := tokens.SignRefreshToken(user.ID, m.RefreshSecret, m.RefreshTTL)
		if err != nil {
			return fmt.Errorf("sign refresh token: %w", err)
		}
		if err := store.Create(ctx, newRefresh, user.ID, refreshExp); err != nil {
			return err
		}

		newAccess, accessExp, err := tokens.SignAccessToken(
			user.ID, user.Role, user.Status, user.AccessTokenVersion, m.AccessSecret, m.AccessTTL)
		if err != nil {
			return fmt.Errorf("sign access token: %w", err)
		}

		pair = Pair{
			AccessToken:      newAccess,
			RefreshToken:     newRefresh,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: refreshExp,
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, ErrUnauthenticated) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, txErr
	}

	return &user, &pair, nil
}

// SignOut consumes the presented refresh token. A token that is already gone
// is not an error, the caller is logged out either way.
func (m *Manager) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	_, err := m.Store.DeleteByToken(ctx, refreshToken)
	return err
}

// RevokeAll is "log out everywhere": bumping the access-token version kills
// every outstanding access token immediately, deleting the refresh rows kills
// every refresh path.
func (m *Manager) RevokeAll(ctx context.Context, userID uint) error {
	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("access_token_version", gorm.Expr("access_token_version + 1"))
		if res.Error != nil {
			return fmt.Errorf("bump access token version: %w", res.Error)
		}
		return m.Store.WithTx(tx).DeleteAllForUser(ctx, userID)
	})
}

// ChangePassword re-verifies the current password before accepting a new one,
// then revokes every session for the user. The source system left old
// sessions alive after a password change; closing that is deliberate.
func (m *Manager) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	var user models.User
	if err := m.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("load user: %w", err)
	}

	if !hash.CheckPassword(user.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}

	newHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := m.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_hash", newHash).Error; err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return m.RevokeAll(ctx, userID)
}

func (m *Manager) userByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := m.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}
