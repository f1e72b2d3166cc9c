// Package segment implements the Segmenter (C4): splitting large files,
// packing small ones, encrypting each segment with C1, and producing the
// redundancy copies the uploader later posts.
//
// Grounded on the teacher's storage/stateless_chunk.go, which already
// split a file into fixed-size chunks, derived a per-chunk AEAD key and
// nonce, and sealed each chunk independently — generalized here from "one
// uploaded file, chunked on the way in" to "one folder's files, planned
// up front from the scanner's inventory, packed or split per policy, and
// sealed with C1's per-segment (not per-file) key derivation".
package segment

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
)

// Built is one encrypted segment ready for the store and the uploader:
// the ciphertext payload to POST and its hashes. Build returns one Built
// per copy (primary plus redundancy); each is recorded as a single
// store.Segment row under FileID, with PackedWith naming any other files
// whose bytes are packed into it.
type Built struct {
	FileID          identity.FileID // primary file for internal_subject; see PackedWith for the other files touched
	SegmentIndex    uint32
	PlaintextHash   string
	CiphertextHash  string
	Ciphertext      []byte
	InternalSubject string
	PackedWith      []identity.FileID // other files sharing this physical segment, empty if none
	RedundancyGroup int
}

// Reader reads a byte range of one file under a folder's root_path. It
// exists so segment.Build doesn't need to know about scanner's or the
// filesystem's layout directly.
type Reader interface {
	ReadRange(relativePath string, offset, length int64) ([]byte, error)
}

// RootReader is the straightforward Reader: relativePath resolved under
// a single root directory on local disk.
type RootReader struct {
	Root string
}

func (r RootReader) ReadRange(relativePath string, offset, length int64) ([]byte, error) {
	f, err := os.Open(filepath.Join(r.Root, filepath.FromSlash(relativePath)))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Build reads, optionally packs, and encrypts one PhysicalSegment,
// producing the primary copy plus policy.Redundancy extra copies (spec
// §4.4 step 4: "each copy gets an independent usenet_subject but shares
// plaintext_hash").
func Build(reader Reader, folderSK ed25519.PrivateKey, folder identity.FolderID, ps PhysicalSegment, policy Policy) ([]Built, error) {
	plaintext, err := assemblePlaintext(reader, ps)
	if err != nil {
		return nil, err
	}

	plaintextSum := sha256.Sum256(plaintext)
	plaintextHash := hex.EncodeToString(plaintextSum[:])

	primary := ps.Chunks[0].FileID
	segmentIndex := ps.Chunks[0].SegmentIndex
	internalSubject := fmt.Sprintf("%s_%d_%d", folder.String(), uint64(primary), segmentIndex)

	var packedWith []identity.FileID
	if ps.Packed {
		for _, c := range ps.Chunks[1:] {
			packedWith = append(packedWith, c.FileID)
		}
	}

	copies := policy.Redundancy + 1
	built := make([]Built, 0, copies)
	for group := 0; group < copies; group++ {
		ciphertext, err := identity.EncryptSegment(folderSK, folder, primary, segmentIndex, plaintext)
		if err != nil {
			return nil, err
		}
		ciphertextSum := sha256.Sum256(ciphertext)
		built = append(built, Built{
			FileID:          primary,
			SegmentIndex:    segmentIndex,
			PlaintextHash:   plaintextHash,
			CiphertextHash:  hex.EncodeToString(ciphertextSum[:]),
			Ciphertext:      ciphertext,
			InternalSubject: internalSubject,
			PackedWith:      packedWith,
			RedundancyGroup: group,
		})
	}
	return built, nil
}

func assemblePlaintext(reader Reader, ps PhysicalSegment) ([]byte, error) {
	if !ps.Packed {
		c := ps.Chunks[0]
		data, err := reader.ReadRange(c.RelativePath, c.Offset, c.Length)
		if err != nil {
			return nil, uerr.Wrap(uerr.KindValidation, "segment.Build", c.RelativePath, err)
		}
		return data, nil
	}

	entries := make([]PackEntry, len(ps.Chunks))
	var total int64
	for i, c := range ps.Chunks {
		entries[i] = PackEntry{FileID: c.FileID, Offset: uint64(total), Length: uint64(c.Length)}
		total += c.Length
	}
	header := PackingHeader{Entries: entries}.Marshal()

	out := make([]byte, 0, int64(len(header))+total)
	out = append(out, header...)
	for _, c := range ps.Chunks {
		data, err := reader.ReadRange(c.RelativePath, c.Offset, c.Length)
		if err != nil {
			return nil, uerr.Wrap(uerr.KindValidation, "segment.Build", c.RelativePath, err)
		}
		out = append(out, data...)
	}
	return out, nil
}
