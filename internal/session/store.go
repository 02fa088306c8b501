package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dpashkov/noteboard/internal/models"
)

var ErrTokenExists = errors.New("refresh token already exists")

// Store persists refresh-token rows. The signed token string is the lookup
// key; rows are created at sign-in and rotation, deleted at rotation, sign-out
// and mass revocation, never updated in place.
type Store struct {
	DB *gorm.DB
}

// WithTx rebinds the store onto a transaction handle so lookups and deletes
// can share one transaction with the owning user row.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{DB: tx}
}

func (s *Store) Create(ctx context.Context, token string, userID uint, expiresAt time.Time) error {
	row := models.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrTokenExists
		}
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindByToken returns (nil, nil) when no row matches.
func (s *Store) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var row models.RefreshToken
	if err := s.DB.WithContext(ctx).Where("token = ?", token).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &row, nil
}

// DeleteByToken removes the matching row and reports whether one existed.
// Deleting zero rows is not an error.
func (s *Store) DeleteByToken(ctx context.Context, token string) (bool, error) {
	res := s.DB.WithContext(ctx).Where("token = ?", token).Delete(&models.RefreshToken{})
	if res.Error != nil {
		return false, fmt.Errorf("delete refresh token: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) DeleteAllForUser(ctx context.Context, userID uint) error {
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		return fmt.Errorf("delete refresh tokens for user: %w", err)
	}
	return nil
}
