package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
)

// FolderState is spec §4.3's state machine. Transitions are strict; any
// operation attempted out of order is refused with ValidationError.
type FolderState string

const (
	StateAdded      FolderState = "ADDED"
	StateIndexing   FolderState = "INDEXING"
	StateIndexed    FolderState = "INDEXED"
	StateSegmenting FolderState = "SEGMENTING"
	StateSegmented  FolderState = "SEGMENTED"
	StateUploading  FolderState = "UPLOADING"
	StateUploaded   FolderState = "UPLOADED"
	StatePublishing FolderState = "PUBLISHING"
	StatePublished  FolderState = "PUBLISHED"
	StateError      FolderState = "ERROR"
)

// validTransitions enumerates every non-error edge in spec §4.3's
// diagram. ERROR is reachable from any state, checked separately in
// TransitionFolder, and PUBLISHED loops back to INDEXING for resync.
var validTransitions = map[FolderState][]FolderState{
	StateAdded:      {StateIndexing},
	StateIndexing:   {StateIndexed},
	StateIndexed:    {StateSegmenting},
	StateSegmenting: {StateSegmented},
	StateSegmented:  {StateUploading},
	StateUploading:  {StateUploaded},
	StateUploaded:   {StatePublishing},
	StatePublishing: {StatePublished},
	StatePublished:  {StateIndexing}, // resync_folder
}

// CreateFolder inserts a new Folder row in ADDED state and returns its
// generated LocalFolderID. folderUniqueID is identity.FolderID's hex
// encoding; ownership of the crypto identifier stays with the caller
// (store never derives it).
func (s *Store) CreateFolder(ctx context.Context, folderUniqueID identity.FolderID, ownerID, rootPath string, packing bool, redundancy int) (*Folder, error) {
	f := &Folder{
		FolderUniqueID: folderUniqueID.String(),
		OwnerID:        ownerID,
		RootPath:       rootPath,
		State:          string(StateAdded),
		Packing:        packing,
		Redundancy:     redundancy,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	return f, nil
}

// GetFolderByUniqueID fetches a Folder by its cryptographic identifier.
func (s *Store) GetFolderByUniqueID(ctx context.Context, folderUniqueID identity.FolderID) (*Folder, error) {
	var f Folder
	err := s.db.WithContext(ctx).
		Where("folder_unique_id = ?", folderUniqueID.String()).
		First(&f).Error
	if err != nil {
		return nil, classifyStoreError(err)
	}
	return &f, nil
}

// ListFolders returns every folder owned by ownerID.
func (s *Store) ListFolders(ctx context.Context, ownerID string) ([]Folder, error) {
	var folders []Folder
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at").Find(&folders).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	return folders, nil
}

// TransitionFolder moves a folder to next, enforcing spec §4.3's state
// machine under the folder's advisory lock, so two callers racing to
// advance the same folder never both succeed (spec §8 "State-machine
// safety").
func (s *Store) TransitionFolder(ctx context.Context, folderUniqueID identity.FolderID, next FolderState) error {
	return s.withFolderLock(ctx, folderUniqueID.String(), func(tx *gorm.DB) error {
		var f Folder
		if err := tx.Where("folder_unique_id = ?", folderUniqueID.String()).First(&f).Error; err != nil {
			return err
		}
		current := FolderState(f.State)
		if next == StateError {
			return tx.Model(&f).Update("state", string(StateError)).Error
		}
		allowed := validTransitions[current]
		ok := false
		for _, a := range allowed {
			if a == next {
				ok = true
				break
			}
		}
		if !ok {
			return uerr.New(uerr.KindValidation, "store.TransitionFolder",
				string(current)+" cannot transition to "+string(next))
		}
		return tx.Model(&f).Updates(map[string]any{"state": string(next), "updated_at": time.Now()}).Error
	})
}

// RequireState returns a ValidationError unless folder is currently in
// want state — used by publish_folder (must be UPLOADED) and
// upload_folder (must be SEGMENTED).
func (s *Store) RequireState(ctx context.Context, folderUniqueID identity.FolderID, want FolderState) (*Folder, error) {
	f, err := s.GetFolderByUniqueID(ctx, folderUniqueID)
	if err != nil {
		return nil, err
	}
	if FolderState(f.State) != want {
		return nil, uerr.New(uerr.KindValidation, "store.RequireState",
			"folder is "+f.State+", required "+string(want))
	}
	return f, nil
}

// DeleteFolder removes a folder and, via ON DELETE CASCADE, its files and
// segments. Shares already published from it are untouched (spec §3:
// "share survives folder mutation").
func (s *Store) DeleteFolder(ctx context.Context, folderUniqueID identity.FolderID) error {
	res := s.db.WithContext(ctx).Where("folder_unique_id = ?", folderUniqueID.String()).Delete(&Folder{})
	if res.Error != nil {
		return classifyStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return classifyStoreError(gorm.ErrRecordNotFound)
	}
	return nil
}
