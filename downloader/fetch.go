package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
	"github.com/rorocorp/uns/nntppool"
	"github.com/rorocorp/uns/share"
)

// fetchSegment retrieves, decrypts and integrity-checks one manifest
// segment, trying message_id, then subject search, then each redundancy
// message_id in order (spec §4.8 step 3-4). It returns the full decrypted
// segment payload (header included, for packed segments); callers slice
// out the bytes belonging to one file.
func fetchSegment(ctx context.Context, pool nntppool.Pool, folder identity.FolderID, ms share.ManifestSegment, publishedSince time.Time) ([]byte, error) {
	_, folderSK, err := identity.FolderKeysFromID(folder)
	if err != nil {
		return nil, err
	}

	candidates := candidateMessageIDs(ms)

	var lastErr error
	for i, messageID := range candidates {
		ciphertext, err := fetchOne(ctx, pool, ms.UsenetSubject, messageID, publishedSince, i == 0)
		if err != nil {
			lastErr = err
			continue
		}
		plaintext, err := identity.DecryptSegment(folderSK, folder, identity.FileID(ms.PrimaryFileID), ms.SegmentIndex, ciphertext)
		if err != nil {
			lastErr = err
			continue
		}
		if !verifyPlaintextHash(plaintext, ms.PlaintextHash) {
			lastErr = uerr.New(uerr.KindIntegrity, "downloader.fetchSegment", "plaintext_hash mismatch")
			continue
		}
		return plaintext, nil
	}
	if lastErr == nil {
		lastErr = uerr.New(uerr.KindUnrecoverable, "downloader.fetchSegment", "no candidates")
	}
	return nil, uerr.Wrap(uerr.KindUnrecoverable, "downloader.fetchSegment", ms.UsenetSubject, lastErr)
}

// candidateMessageIDs orders the retrieval attempts: primary message_id
// first, then every redundancy copy's message_id.
func candidateMessageIDs(ms share.ManifestSegment) []string {
	ids := make([]string, 0, 1+len(ms.RedundancyMessageIDs))
	if ms.MessageID != "" {
		ids = append(ids, ms.MessageID)
	}
	ids = append(ids, ms.RedundancyMessageIDs...)
	return ids
}

// fetchOne fetches by message_id, falling back to a subject search only
// for the first (primary) candidate — redundancy copies are already
// addressed by message_id, so a subject search adds nothing for them.
func fetchOne(ctx context.Context, pool nntppool.Pool, subject, messageID string, since time.Time, trySubjectFallback bool) ([]byte, error) {
	data, err := pool.Fetch(ctx, messageID)
	if err == nil {
		return data, nil
	}
	if !trySubjectFallback {
		return nil, err
	}
	data, _, subjErr := pool.FetchBySubject(ctx, subject, since)
	if subjErr != nil {
		return nil, err
	}
	return data, nil
}

func verifyPlaintextHash(plaintext []byte, want string) bool {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:]) == want
}
