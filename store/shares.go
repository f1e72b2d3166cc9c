package store

import (
	"context"
	"time"
)

// CreateShare inserts a new, immutable Share row. share_id is
// deterministic per folder and access type, so publishing the same folder
// under the same access type again yields the same share_id rather than a
// new one. A unique-key violation on share_id surfaces as
// ConflictError (spec §8 seed scenario 6: two racing publishers, exactly
// one succeeds).
func (s *Store) CreateShare(ctx context.Context, share *Share) error {
	share.CreatedAt = time.Now()
	err := s.db.WithContext(ctx).Create(share).Error
	return classifyStoreError(err)
}

// GetShare fetches a share by id; the downloader's only entry point.
func (s *Store) GetShare(ctx context.Context, shareID string) (*Share, error) {
	var share Share
	if err := s.db.WithContext(ctx).Where("share_id = ?", shareID).First(&share).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	return &share, nil
}

// CreateAccessGrants bulk-inserts the PRIVATE-share AccessGrant rows,
// each carrying only a blinded commitment (spec §4.9 — "never plaintext
// user IDs").
func (s *Store) CreateAccessGrants(ctx context.Context, grants []AccessGrant) error {
	if len(grants) == 0 {
		return nil
	}
	now := time.Now()
	for i := range grants {
		grants[i].CreatedAt = now
	}
	err := s.db.WithContext(ctx).CreateInBatches(grants, 100).Error
	return classifyStoreError(err)
}

// ListAccessGrantCommitments returns every commitment bound to a share,
// the set a Schnorr membership proof is checked against.
func (s *Store) ListAccessGrantCommitments(ctx context.Context, shareID string) ([][]byte, error) {
	var grants []AccessGrant
	if err := s.db.WithContext(ctx).Where("share_id = ?", shareID).Find(&grants).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	commitments := make([][]byte, len(grants))
	for i, g := range grants {
		commitments[i] = g.Commitment
	}
	return commitments, nil
}

// ShareExists is a cheap existence probe used during publish: since
// share_id is deterministic per folder and access type, it is true
// whenever that folder was already published under that access type.
func (s *Store) ShareExists(ctx context.Context, shareID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Share{}).Where("share_id = ?", shareID).Count(&n).Error
	if err != nil {
		return false, classifyStoreError(err)
	}
	return n > 0, nil
}
