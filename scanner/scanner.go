// Package scanner implements the Scanner/Versioner (C3): a tree walk that
// yields canonical (relative_path, size, content_hash) triples. It does
// not touch the Folder state machine; its caller (system.IndexFolder)
// moves the folder through ADDED → INDEXING → INDEXED.
//
// Grounded on the teacher's own upload handling in handlers/handlers.go
// (it streamed an uploaded file through a SHA-256 hasher as it chunked
// it) generalized from "one uploaded file" to "every file under a root
// path, in canonical order". No pack library improves on stdlib
// filepath.WalkDir for a single local-filesystem backend (see
// DESIGN.md's C3 entry) so this package is stdlib-only by design, not by
// omission.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rorocorp/uns/internal/uerr"
)

// hashChunkSize matches spec §4.3: "streamed in 1 MiB reads".
const hashChunkSize = 1 << 20

// Entry is one file observed under a scan root.
type Entry struct {
	RelativePath string // POSIX form, always forward slashes
	Size         int64
	ContentHash  string // hex SHA-256 of the full plaintext
}

// Scanner walks one folder's root_path.
type Scanner struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Scanner {
	return &Scanner{log: log}
}

// Walk returns every regular file under root in canonical byte-wise
// ascending POSIX-path order (spec §4.3). A symlink to a regular file is
// followed only if it resolves inside root; otherwise it is skipped with a
// warning, never an error, so one bad link never aborts an entire scan.
// Symlinks to directories are not descended into.
func (s *Scanner) Walk(ctx context.Context, root string) ([]Entry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, uerr.Wrap(uerr.KindValidation, "scanner.Walk", root, err)
	}

	var entries []Entry
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return uerr.New(uerr.KindCancel, "scanner.Walk", "cancelled")
		}
		if walkErr != nil {
			return walkErr
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				s.log.Warn("unresolvable symlink, skipping", zap.String("path", path), zap.Error(err))
				return nil
			}
			if !isWithin(absRoot, target) {
				s.log.Warn("symlink escapes root, skipping", zap.String("path", path), zap.String("target", target))
				return nil
			}
			info, err = os.Stat(target)
			if err != nil {
				return err
			}
		}

		if d.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		hash, err := hashFile(path)
		if err != nil {
			return uerr.Wrap(uerr.KindValidation, "scanner.Walk", rel, err)
		}

		entries = append(entries, Entry{RelativePath: rel, Size: info.Size(), ContentHash: hash})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelativePath < entries[j].RelativePath })
	return entries, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
