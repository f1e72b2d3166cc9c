package system

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rorocorp/uns/access"
	"github.com/rorocorp/uns/downloader"
	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
	"github.com/rorocorp/uns/nntppool"
	"github.com/rorocorp/uns/scanner"
	"github.com/rorocorp/uns/segment"
	"github.com/rorocorp/uns/share"
	"github.com/rorocorp/uns/store"
	"github.com/rorocorp/uns/uploader"
)

// Config is the full application configuration (spec §6's enumerated
// recognized options).
type Config struct {
	Store    store.Config
	NNTP     nntppool.Config
	CacheDir string // on-disk ciphertext staging area between C4 and C6

	SegmentSize      int64 // segment_size
	UploadWorkers    int   // upload_workers
	DownloadWorkers  int   // download_workers
	RedundancyCopies int   // redundancy_copies
	UploadBPS        int   // upload_bps
	From             string
	Newsgroups       []string
}

// System wires every component (C1-C9) behind the Local Store API (spec
// §6). It holds the store connection and NNTP pool; every operation is
// a method taking its own context, never reaching for package-level
// state (spec §9).
type System struct {
	cfg   Config
	store *store.Store
	nntp  nntppool.Pool
	cache *ciphertextCache
	log   *zap.Logger
}

// New opens the store, dials the NNTP pool, and returns a ready System.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*System, error) {
	if log == nil {
		log = zap.NewNop()
	}
	st, err := store.Open(cfg.Store, log)
	if err != nil {
		return nil, err
	}
	nntp, err := nntppool.Dial(ctx, cfg.NNTP, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &System{
		cfg:   cfg,
		store: st,
		nntp:  nntp,
		cache: newCiphertextCache(cfg.CacheDir),
		log:   log,
	}, nil
}

// Store exposes the underlying content store for collaborators that
// need it directly — the auth package's session and login-challenge
// tables, which System has no operations of its own for.
func (sys *System) Store() *store.Store {
	return sys.store
}

func (sys *System) Close() error {
	if err := sys.nntp.Close(); err != nil {
		sys.log.Warn("nntp pool close failed", zap.Error(err))
	}
	return sys.store.Close()
}

// InitializeUser creates a new User with a freshly generated Ed25519
// identity (spec §3: "created once ... never regenerated"). The private
// key is returned only here; System never persists it.
func (sys *System) InitializeUser(ctx context.Context, displayName string) (userID string, userSK ed25519.PrivateKey, err error) {
	pk, sk, err := ed25519.GenerateKey(nil)
	if err != nil {
		return "", nil, err
	}
	u, err := sys.store.CreateUser(ctx, displayName, pk)
	if err != nil {
		return "", nil, err
	}
	return u.UserID, sk, nil
}

// AddFolder registers a new folder rooted at path under a freshly
// generated folder_unique_id, state ADDED (spec §6: add_folder).
func (sys *System) AddFolder(ctx context.Context, ownerID, path string, packing bool) (string, error) {
	folder, err := identity.NewFolderID()
	if err != nil {
		return "", err
	}
	f, err := sys.store.CreateFolder(ctx, folder, ownerID, path, packing, sys.cfg.RedundancyCopies)
	if err != nil {
		return "", err
	}
	return f.FolderUniqueID, nil
}

// IndexFolder walks the folder's root_path and upserts every observed
// file (spec §4.3, §6: index_folder). The folder must be ADDED or
// PUBLISHED (resync); any other state is refused.
func (sys *System) IndexFolder(ctx context.Context, folderUniqueID string) (filesIndexed int, totalSize int64, err error) {
	id, err := identity.ParseFolderID(folderUniqueID)
	if err != nil {
		return 0, 0, uerr.Wrap(uerr.KindValidation, "system.IndexFolder", folderUniqueID, err)
	}
	folder, err := sys.store.GetFolderByUniqueID(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	if err := sys.store.TransitionFolder(ctx, id, store.StateIndexing); err != nil {
		return 0, 0, err
	}

	entries, err := scanner.New(sys.log).Walk(ctx, folder.RootPath)
	if err != nil {
		_ = sys.store.TransitionFolder(ctx, id, store.StateError)
		return 0, 0, err
	}

	for _, e := range entries {
		if _, _, err := sys.store.UpsertFile(ctx, folder, e.RelativePath, e.Size, e.ContentHash); err != nil {
			_ = sys.store.TransitionFolder(ctx, id, store.StateError)
			return 0, 0, err
		}
		totalSize += e.Size
	}

	if err := sys.store.TransitionFolder(ctx, id, store.StateIndexed); err != nil {
		return 0, 0, err
	}
	return len(entries), totalSize, nil
}

// SegmentFolder plans and encrypts every indexed file's segments (C4),
// stages ciphertext for the uploader, and records every Segment row
// (spec §6: segment_folder). Requires INDEXED.
func (sys *System) SegmentFolder(ctx context.Context, folderUniqueID string) (segmentsCreated int, err error) {
	id, err := identity.ParseFolderID(folderUniqueID)
	if err != nil {
		return 0, uerr.Wrap(uerr.KindValidation, "system.SegmentFolder", folderUniqueID, err)
	}
	folder, err := sys.store.RequireState(ctx, id, store.StateIndexed)
	if err != nil {
		return 0, err
	}
	if err := sys.store.TransitionFolder(ctx, id, store.StateSegmenting); err != nil {
		return 0, err
	}

	_, folderSK, err := identity.FolderKeysFromID(id)
	if err != nil {
		return 0, err
	}

	files, err := sys.store.ListFiles(ctx, folder)
	if err != nil {
		return 0, err
	}

	policy := segment.DefaultPolicy()
	policy.PackingEnabled = folder.Packing
	policy.Redundancy = folder.Redundancy
	if sys.cfg.SegmentSize > 0 {
		policy.PayloadMax = sys.cfg.SegmentSize
	}

	inputs := make([]segment.FileInput, len(files))
	for i, f := range files {
		inputs[i] = segment.FileInput{FileID: identity.FileID(f.FileID), RelativePath: f.RelativePath, Size: f.Size, ContentHash: f.ContentHash}
	}

	reader := segment.RootReader{Root: folder.RootPath}
	plan := segment.Plan(inputs, policy)
	perFileSegmentCount := make(map[uint64]int)

	for _, ps := range plan {
		built, err := segment.Build(reader, folderSK, id, ps, policy)
		if err != nil {
			_ = sys.store.TransitionFolder(ctx, id, store.StateError)
			return segmentsCreated, err
		}
		rows := make([]store.Segment, 0, len(built))
		for _, b := range built {
			if err := sys.cache.put(folder.FolderUniqueID, b.FileID, b.SegmentIndex, b.RedundancyGroup, b.Ciphertext); err != nil {
				_ = sys.store.TransitionFolder(ctx, id, store.StateError)
				return segmentsCreated, uerr.Wrap(uerr.KindUnrecoverable, "system.SegmentFolder", "ciphertext cache write", err)
			}
			packedWith, _ := marshalFileIDs(b.PackedWith)
			rows = append(rows, store.Segment{
				FileID:          uint64(b.FileID),
				FolderUniqueID:  folder.FolderUniqueID,
				SegmentIndex:    b.SegmentIndex,
				Size:            int64(len(b.Ciphertext)),
				PlaintextHash:   b.PlaintextHash,
				CiphertextHash:  b.CiphertextHash,
				InternalSubject: b.InternalSubject,
				RedundancyGroup: b.RedundancyGroup,
				PackedWith:      packedWith,
			})
		}
		if err := sys.store.InsertSegments(ctx, rows); err != nil {
			_ = sys.store.TransitionFolder(ctx, id, store.StateError)
			return segmentsCreated, err
		}
		segmentsCreated += len(rows)

		for _, c := range ps.Chunks {
			perFileSegmentCount[uint64(c.FileID)]++
		}
	}

	for fileID, count := range perFileSegmentCount {
		if err := sys.store.SetFileSegmentCount(ctx, fileID, count); err != nil {
			return segmentsCreated, err
		}
	}

	if err := sys.store.TransitionFolder(ctx, id, store.StateSegmented); err != nil {
		return segmentsCreated, err
	}
	return segmentsCreated, nil
}

// UploadFolder drains a segmented folder's backlog through C6. Requires
// SEGMENTED (spec §6: upload_folder, §8 "state-machine safety").
func (sys *System) UploadFolder(ctx context.Context, folderUniqueID string) (*uerr.Result, error) {
	id, err := identity.ParseFolderID(folderUniqueID)
	if err != nil {
		return nil, uerr.Wrap(uerr.KindValidation, "system.UploadFolder", folderUniqueID, err)
	}
	if _, err := sys.store.RequireState(ctx, id, store.StateSegmented); err != nil {
		return nil, err
	}
	if err := sys.store.TransitionFolder(ctx, id, store.StateUploading); err != nil {
		return nil, err
	}

	u := uploader.New(sys.store, sys.nntp, uploader.Config{
		Workers:    sys.cfg.UploadWorkers,
		BPS:        sys.cfg.UploadBPS,
		From:       sys.cfg.From,
		Newsgroups: sys.cfg.Newsgroups,
	}, sys.cache.forSegment, sys.log)

	return u.UploadFolder(ctx, id)
}

// PublishFolder builds and encrypts the manifest and persists a new Share
// (spec §6: publish_folder). Requires UPLOADED.
func (sys *System) PublishFolder(ctx context.Context, folderUniqueID string, in share.PublishInput, nowUnix int64) (string, error) {
	id, err := identity.ParseFolderID(folderUniqueID)
	if err != nil {
		return "", uerr.Wrap(uerr.KindValidation, "system.PublishFolder", folderUniqueID, err)
	}
	folder, err := sys.store.RequireState(ctx, id, store.StateUploaded)
	if err != nil {
		return "", err
	}
	if err := sys.store.TransitionFolder(ctx, id, store.StatePublishing); err != nil {
		return "", err
	}

	sh, err := share.Publish(ctx, sys.store, folder, in, nowUnix)
	if err != nil {
		_ = sys.store.TransitionFolder(ctx, id, store.StateError)
		return "", err
	}

	if err := sys.store.TransitionFolder(ctx, id, store.StatePublished); err != nil {
		return "", err
	}
	return sh.ShareID, nil
}

// DownloadCredentials carries whichever secret a share's access type
// needs at consumption time (spec §6: download_share's optional password
// / user_sk fields).
type DownloadCredentials struct {
	Password  string
	UserSK    ed25519.PrivateKey
	HasUserSK bool
}

// DownloadShare fetches a share's index, opens it under the supplied
// credentials, and reassembles every file under destination (spec §6:
// download_share).
func (sys *System) DownloadShare(ctx context.Context, shareID, destination string, creds DownloadCredentials) (*uerr.Result, error) {
	sh, err := sys.store.GetShare(ctx, shareID)
	if err != nil {
		return nil, err
	}
	folder, err := identity.ParseFolderID(sh.FolderUniqueID)
	if err != nil {
		return nil, uerr.Wrap(uerr.KindIntegrity, "system.DownloadShare", shareID, err)
	}
	folderPK, _, err := identity.FolderKeysFromID(folder)
	if err != nil {
		return nil, err
	}
	idx, err := share.UnmarshalEncryptedIndex(sh.EncryptedIndex)
	if err != nil {
		return nil, err
	}

	var manifest *share.Manifest
	switch idx.AccessType {
	case share.AccessPublic:
		manifest, err = share.OpenPublic(folderPK, folder, idx)
	case share.AccessProtected:
		manifest, err = access.OpenProtected(folderPK, shareID, creds.Password, idx)
	case share.AccessPrivate:
		if !creds.HasUserSK {
			return nil, uerr.New(uerr.KindAuth, "system.DownloadShare", "user_sk required for PRIVATE share")
		}
		proof, proofErr := identity.ProveMembership(creds.UserSK, shareID)
		if proofErr != nil {
			return nil, proofErr
		}
		manifest, err = access.OpenPrivate(ctx, sys.store, folderPK, sh, creds.UserSK, proof, idx)
	default:
		return nil, uerr.New(uerr.KindValidation, "system.DownloadShare", "unknown access type")
	}
	if err != nil {
		return nil, err
	}

	d := downloader.New(sys.nntp, downloader.Config{Workers: sys.cfg.DownloadWorkers}, sys.log)
	return d.DownloadShare(ctx, folder, manifest, destination)
}

// ListFolders returns every folder an owner has registered.
func (sys *System) ListFolders(ctx context.Context, ownerID string) ([]store.Folder, error) {
	return sys.store.ListFolders(ctx, ownerID)
}

// GetFolder returns one folder by its crypto identifier.
func (sys *System) GetFolder(ctx context.Context, folderUniqueID string) (*store.Folder, error) {
	id, err := identity.ParseFolderID(folderUniqueID)
	if err != nil {
		return nil, uerr.Wrap(uerr.KindValidation, "system.GetFolder", folderUniqueID, err)
	}
	return sys.store.GetFolderByUniqueID(ctx, id)
}

// ResyncFolder reindexes a PUBLISHED folder in place by running
// IndexFolder again (spec §4.3). It does not record which files changed:
// a later SegmentFolder plans every file of the folder, changed or not.
func (sys *System) ResyncFolder(ctx context.Context, folderUniqueID string) (filesIndexed int, totalSize int64, err error) {
	return sys.IndexFolder(ctx, folderUniqueID)
}

// DeleteFolder removes a folder and its files/segments; shares already
// published from it are left untouched (spec §3). confirm must be true —
// this is a hard delete, not a state transition.
func (sys *System) DeleteFolder(ctx context.Context, folderUniqueID string, confirm bool) error {
	if !confirm {
		return uerr.New(uerr.KindValidation, "system.DeleteFolder", "confirm must be true")
	}
	id, err := identity.ParseFolderID(folderUniqueID)
	if err != nil {
		return uerr.Wrap(uerr.KindValidation, "system.DeleteFolder", folderUniqueID, err)
	}
	if err := sys.cache.removeFolder(folderUniqueID); err != nil {
		sys.log.Warn("ciphertext cache cleanup failed", zap.String("folder_unique_id", folderUniqueID), zap.Error(err))
	}
	return sys.store.DeleteFolder(ctx, id)
}

func marshalFileIDs(ids []identity.FileID) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	plain := make([]uint64, len(ids))
	for i, id := range ids {
		plain[i] = uint64(id)
	}
	b, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("system: marshal packed_with: %w", err)
	}
	return string(b), nil
}
