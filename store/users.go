package store

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

// NewUserID derives the stable user_id (spec §3: "stable SHA-256 of
// initial identity material, 64 hex") from a user's freshly-minted public
// key — the only piece of "initial identity material" initialize_user has
// to work with before a display name is even chosen.
func NewUserID(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	return hex.EncodeToString(sum[:])
}

// CreateUser persists a new User row. Called once per user by
// initialize_user; the spec forbids ever regenerating a user_id, so this
// is intentionally insert-only (no upsert).
func (s *Store) CreateUser(ctx context.Context, displayName string, publicKey ed25519.PublicKey) (*User, error) {
	u := &User{
		UserID:      NewUserID(publicKey),
		DisplayName: displayName,
		PublicKey:   publicKey,
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	return u, nil
}

// GetUser fetches a user by id, excluding soft-deleted rows.
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		First(&u).Error
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return &u, nil
}

// SoftDeleteUser marks a user deleted without removing the row (spec §3:
// "soft-deletion only").
func (s *Store) SoftDeleteUser(ctx context.Context, userID string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Update("deleted_at", &now)
	if res.Error != nil {
		return classifyStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return classifyStoreError(gorm.ErrRecordNotFound)
	}
	return nil
}
