// Package system wires C1-C9 together into the Local Store API of spec
// §6, the single entry point used by the CLI, a desktop shell, or an
// HTTP server (no component in this package ever reaches for another
// package's internals directly — everything flows through System).
//
// Grounded on the teacher's main.go, which constructed every handler's
// dependencies inline at startup with no equivalent assembly point; spec
// §9's "no hidden global state" note calls for exactly one such
// assembly point instead, which is what System is.
package system

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/store"
)

// ciphertextCache stages segment ciphertext on disk between C4
// (segmenter) and C6 (uploader), the gap uploader.CiphertextSource
// exists to fill (spec §9: the uploader never holds a back-reference to
// where C4's output lives). Grounded on the teacher's
// storage/stateless_chunk.go ".part" staging directory, generalized from
// "one file's in-flight chunks" to "one folder's pending segment
// ciphertexts, addressed by (file_id, segment_index, redundancy_group)".
type ciphertextCache struct {
	root string
}

func newCiphertextCache(root string) *ciphertextCache {
	return &ciphertextCache{root: root}
}

func (c *ciphertextCache) path(folderUniqueID string, fileID identity.FileID, segmentIndex uint32, redundancyGroup int) string {
	dir := filepath.Join(c.root, folderUniqueID)
	return filepath.Join(dir, fmt.Sprintf("%d_%d_%d.bin", uint64(fileID), segmentIndex, redundancyGroup))
}

func (c *ciphertextCache) put(folderUniqueID string, fileID identity.FileID, segmentIndex uint32, redundancyGroup int, ciphertext []byte) error {
	p := c.path(folderUniqueID, fileID, segmentIndex, redundancyGroup)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, ciphertext, 0o600)
}

func (c *ciphertextCache) get(folderUniqueID string, fileID identity.FileID, segmentIndex uint32, redundancyGroup int) ([]byte, error) {
	return os.ReadFile(c.path(folderUniqueID, fileID, segmentIndex, redundancyGroup))
}

// forSegment adapts a store.Segment row to the cache key: FileID here is
// always the primary file the segment was encrypted under (store.Segment
// itself carries no other file ids for a packed segment).
func (c *ciphertextCache) forSegment(seg store.Segment) ([]byte, error) {
	return c.get(seg.FolderUniqueID, identity.FileID(seg.FileID), seg.SegmentIndex, seg.RedundancyGroup)
}

func (c *ciphertextCache) removeFolder(folderUniqueID string) error {
	return os.RemoveAll(filepath.Join(c.root, folderUniqueID))
}
