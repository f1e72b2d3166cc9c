package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
	"github.com/rorocorp/uns/nntppool"
	"github.com/rorocorp/uns/segment"
	"github.com/rorocorp/uns/share"
)

var epoch = time.Unix(0, 0)

// reassembleFile fetches every not-yet-checkpointed segment of one
// manifest file, up to workers fetches in flight at once, then writes
// each segment's bytes to destPath in segment order, checkpoints
// progress, and finally verifies the whole file's content_hash (spec
// §4.8 steps 3-6, §5: "per-file writes are serialized, segment fetches
// within a file may be parallel up to N_DOWNLOAD").
func reassembleFile(ctx context.Context, nntp nntppool.Pool, folder identity.FolderID, mf share.ManifestFile, destPath string, workers, ckptInterval int) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return uerr.Wrap(uerr.KindUnrecoverable, "downloader.reassembleFile", destPath, err)
	}

	ckptPath := checkpointPath(destPath)
	ckpt, err := loadCheckpoint(ckptPath)
	if err != nil {
		return err
	}

	var pending []share.ManifestSegment
	for _, ms := range mf.Segments {
		if _, done := ckpt.done(ms.SegmentIndex); !done {
			pending = append(pending, ms)
		}
	}

	payloads := make(map[uint32][]byte, len(pending))
	var mu sync.Mutex
	fetchPool := pool.New().WithMaxGoroutines(workers).WithErrors().WithContext(ctx).WithCancelOnError()
	for _, ms := range pending {
		ms := ms
		fetchPool.Go(func(ctx context.Context) error {
			payload, err := fetchSegment(ctx, nntp, folder, ms, epoch)
			if err != nil {
				return err
			}
			mu.Lock()
			payloads[ms.SegmentIndex] = payload
			mu.Unlock()
			return nil
		})
	}
	if err := fetchPool.Wait(); err != nil {
		return err
	}

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return uerr.Wrap(uerr.KindUnrecoverable, "downloader.reassembleFile", destPath, err)
	}
	defer f.Close()

	sinceWritten := 0
	for _, ms := range mf.Segments {
		offset := ckpt.offsetBefore(ms.SegmentIndex)
		if _, done := ckpt.done(ms.SegmentIndex); done {
			continue
		}

		part, err := sliceForFile(payloads[ms.SegmentIndex], ms, mf.FileID)
		if err != nil {
			return err
		}

		if _, err := f.WriteAt(part, offset); err != nil {
			return uerr.Wrap(uerr.KindUnrecoverable, "downloader.reassembleFile", destPath, err)
		}

		ckpt.markDone(ms.SegmentIndex, int64(len(part)))
		sinceWritten++
		if ckptInterval > 0 && sinceWritten%ckptInterval == 0 {
			if err := ckpt.save(ckptPath); err != nil {
				return err
			}
		}
	}
	if err := ckpt.save(ckptPath); err != nil {
		return err
	}

	if err := verifyFileHash(destPath, mf.ContentHash); err != nil {
		return err
	}
	_ = os.Remove(ckptPath)
	return nil
}

// sliceForFile extracts the bytes belonging to fileID out of a decrypted
// segment payload. Unpacked segments are the file's bytes verbatim; packed
// segments are prefixed with a PackingHeader naming each constituent
// file's (offset, length) within the remaining payload (spec §4.4 step 2).
func sliceForFile(payload []byte, ms share.ManifestSegment, fileID uint64) ([]byte, error) {
	if !ms.Packed {
		return payload, nil
	}
	header, n, err := segment.UnmarshalPackingHeader(payload)
	if err != nil {
		return nil, uerr.Wrap(uerr.KindIntegrity, "downloader.sliceForFile", ms.UsenetSubject, err)
	}
	body := payload[n:]
	for _, e := range header.Entries {
		if uint64(e.FileID) != fileID {
			continue
		}
		end := e.Offset + e.Length
		if end > uint64(len(body)) {
			return nil, uerr.New(uerr.KindIntegrity, "downloader.sliceForFile", "packing entry out of bounds")
		}
		return body[e.Offset:end], nil
	}
	return nil, uerr.New(uerr.KindIntegrity, "downloader.sliceForFile", fmt.Sprintf("file_id %d not present in packed segment", fileID))
}

func verifyFileHash(path string, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return uerr.Wrap(uerr.KindUnrecoverable, "downloader.verifyFileHash", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return uerr.Wrap(uerr.KindIntegrity, "downloader.verifyFileHash", path, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != want {
		return uerr.New(uerr.KindIntegrity, "downloader.verifyFileHash", fmt.Sprintf("content_hash mismatch for %s", path))
	}
	return nil
}
