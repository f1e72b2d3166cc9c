package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PutLoginChallenge upserts the one outstanding nonce for userID,
// replacing any unconsumed previous challenge (spec-adjacent: only the
// most recent challenge per user is ever valid).
func (s *Store) PutLoginChallenge(ctx context.Context, userID string, nonce []byte, expiresAt time.Time) error {
	c := &LoginChallenge{UserID: userID, Nonce: nonce, ExpiresAt: expiresAt}
	err := s.db.WithContext(ctx).Clauses(onConflictUpdateChallenge()).Create(c).Error
	return classifyStoreError(err)
}

// ConsumeLoginChallenge fetches and deletes userID's outstanding nonce in
// one transaction, so a nonce can never be replayed against two login
// attempts.
func (s *Store) ConsumeLoginChallenge(ctx context.Context, userID string) (*LoginChallenge, error) {
	var c LoginChallenge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).First(&c).Error; err != nil {
			return err
		}
		return tx.Delete(&LoginChallenge{}, "user_id = ?", userID).Error
	})
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return &c, nil
}

// CreateSession persists a freshly issued session+CSRF token pair.
func (s *Store) CreateSession(ctx context.Context, userID, sessionToken, csrfToken string, expiresAt time.Time) (*Session, error) {
	sess := &Session{
		SessionToken: sessionToken,
		CSRFToken:    csrfToken,
		UserID:       userID,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	return sess, nil
}

// GetSession fetches a session by token. Callers are responsible for
// checking ExpiresAt; an expired row is not deleted here so
// SessionCheckHandler can still report "expired" rather than "unknown".
func (s *Store) GetSession(ctx context.Context, sessionToken string) (*Session, error) {
	var sess Session
	if err := s.db.WithContext(ctx).Where("session_token = ?", sessionToken).First(&sess).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	return &sess, nil
}

// DeleteSession removes a session row, used once it has expired or the
// user logs out.
func (s *Store) DeleteSession(ctx context.Context, sessionToken string) error {
	err := s.db.WithContext(ctx).Delete(&Session{}, "session_token = ?", sessionToken).Error
	return classifyStoreError(err)
}

func onConflictUpdateChallenge() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nonce", "expires_at"}),
	}
}
