package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// InsertSegments bulk-inserts every segment (including redundancy copies)
// produced for one file by the segmenter (C4). internal_subject is
// computed by the caller and never leaves the store.
func (s *Store) InsertSegments(ctx context.Context, segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}
	now := time.Now()
	for i := range segments {
		segments[i].CreatedAt = now
		segments[i].UpdatedAt = now
	}
	err := s.db.WithContext(ctx).CreateInBatches(segments, 200).Error
	return classifyStoreError(err)
}

// ListSegmentsForFile returns every segment (primary and redundancy) for
// one file, ordered for upload draining (primary copies first, by
// segment_index).
func (s *Store) ListSegmentsForFile(ctx context.Context, fileID uint64) ([]Segment, error) {
	var segs []Segment
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("redundancy_group ASC, segment_index ASC").
		Find(&segs).Error
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return segs, nil
}

// ListPendingSegments returns every segment of a folder not yet assigned
// a message_id, the uploader's (C6) work queue source, FIFO by insertion.
func (s *Store) ListPendingSegments(ctx context.Context, folderUniqueID string) ([]Segment, error) {
	var segs []Segment
	err := s.db.WithContext(ctx).
		Where("folder_unique_id = ? AND (message_id IS NULL OR message_id = '')", folderUniqueID).
		Order("id ASC").
		Find(&segs).Error
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return segs, nil
}

// MarkSegmentUploaded persists (message_id, usenet_subject) after a
// successful POST (spec §4.6 step 4) — the folder's resumable upload
// watermark, in effect, is just "segments with a non-empty message_id".
func (s *Store) MarkSegmentUploaded(ctx context.Context, segmentID uint64, usenetSubject, messageID string) error {
	res := s.db.WithContext(ctx).Model(&Segment{}).
		Where("id = ?", segmentID).
		Updates(map[string]any{
			"usenet_subject": usenetSubject,
			"message_id":     messageID,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return classifyStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return classifyStoreError(gorm.ErrRecordNotFound)
	}
	return nil
}

// IncrementSegmentAttempts bumps the retry counter and reports whether
// the caller has exhausted MAX_ATTEMPTS (spec §4.6 step 5: default 5).
func (s *Store) IncrementSegmentAttempts(ctx context.Context, segmentID uint64, maxAttempts int) (exhausted bool, err error) {
	var seg Segment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", segmentID).First(&seg).Error; err != nil {
			return err
		}
		seg.Attempts++
		exhausted = seg.Attempts >= maxAttempts
		return tx.Model(&seg).Updates(map[string]any{"attempts": seg.Attempts, "updated_at": time.Now()}).Error
	})
	if txErr != nil {
		return false, classifyStoreError(txErr)
	}
	return exhausted, nil
}

// CountUnuploaded reports how many segments of a folder still lack a
// message_id, used to decide whether UPLOADING may transition to
// UPLOADED.
func (s *Store) CountUnuploaded(ctx context.Context, folderUniqueID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Segment{}).
		Where("folder_unique_id = ? AND (message_id IS NULL OR message_id = '')", folderUniqueID).
		Count(&n).Error
	if err != nil {
		return 0, classifyStoreError(err)
	}
	return n, nil
}

// ListSegmentsForFolder returns every segment of a folder, used by C7 to
// materialize the publish-time manifest.
func (s *Store) ListSegmentsForFolder(ctx context.Context, folderUniqueID string) ([]Segment, error) {
	var segs []Segment
	err := s.db.WithContext(ctx).
		Where("folder_unique_id = ?", folderUniqueID).
		Order("file_id ASC, redundancy_group ASC, segment_index ASC").
		Find(&segs).Error
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return segs, nil
}
