package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rorocorp/uns/identity"
)

// UpsertFile implements the scanner's (spec §4.3) compare-to-store step:
// absent → insert as v1; present with a different hash or size → bump
// version; unchanged → no-op. Returns the stored row and whether its
// content actually changed (callers use this to decide whether to
// re-segment).
func (s *Store) UpsertFile(ctx context.Context, folder *Folder, relativePath string, size int64, contentHash string) (file *File, changed bool, err error) {
	txErr := s.withFolderLock(ctx, folder.FolderUniqueID, func(tx *gorm.DB) error {
		var existing File
		lookupErr := tx.Where("folder_db_id = ? AND relative_path = ?", folder.DBID, relativePath).First(&existing).Error
		switch {
		case lookupErr == gorm.ErrRecordNotFound:
			file = &File{
				FolderDBID:     folder.DBID,
				FolderUniqueID: folder.FolderUniqueID,
				RelativePath:   relativePath,
				Size:           size,
				ContentHash:    contentHash,
				Version:        1,
				CreatedAt:      time.Now(),
				UpdatedAt:      time.Now(),
			}
			changed = true
			return tx.Create(file).Error
		case lookupErr != nil:
			return lookupErr
		}

		file = &existing
		if existing.ContentHash == contentHash && existing.Size == size {
			changed = false
			return nil
		}
		changed = true
		return tx.Model(file).Updates(map[string]any{
			"size":         size,
			"content_hash": contentHash,
			"version":      existing.Version + 1,
			"updated_at":   time.Now(),
		}).Error
	})
	if txErr != nil {
		return nil, false, txErr
	}
	return file, changed, nil
}

// ListFiles returns every file belonging to a folder in canonical POSIX
// path order (spec §4.3).
func (s *Store) ListFiles(ctx context.Context, folder *Folder) ([]File, error) {
	var files []File
	err := s.db.WithContext(ctx).
		Where("folder_db_id = ?", folder.DBID).
		Order("relative_path ASC").
		Find(&files).Error
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return files, nil
}

// SetFileSegmentCount records how many segments a file was split into
// (C4's output) in the file row's segment_count column.
func (s *Store) SetFileSegmentCount(ctx context.Context, fileID uint64, count int) error {
	err := s.db.WithContext(ctx).Model(&File{}).
		Where("file_id = ?", fileID).
		Clauses(clause.Returning{}).
		Update("segment_count", count).Error
	return classifyStoreError(err)
}

// folderUniqueIDFor parses a Folder row's folder_unique_id back into an
// identity.FolderID. It is unexported, so only code inside store can use it.
func folderUniqueIDFor(f *Folder) (identity.FolderID, error) {
	return identity.ParseFolderID(f.FolderUniqueID)
}
