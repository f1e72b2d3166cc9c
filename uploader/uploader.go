// Package uploader implements the Uploader (C6): a worker pool draining a
// per-folder segment queue, rate-limited POSTs through C5, and a
// folder-level cancel token. A failed POST increments the segment's
// attempt counter and is reported in the Result; the segment is not
// requeued within the same run, and once it reaches MAX_ATTEMPTS the
// folder moves to ERROR.
//
// Grounded on marmos91-dittofs's use of sourcegraph/conc for bounded
// worker pools over upload-like work, and on spec §9's explicit call to
// replace "ad-hoc coroutine scheduling" with "an explicit worker-pool
// primitive plus a bounded channel between C4 and C6". Rate limiting is
// golang.org/x/time/rate (same dittofs grounding).
package uploader

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/internal/uerr"
	"github.com/rorocorp/uns/nntppool"
	"github.com/rorocorp/uns/store"
)

// DefaultMaxAttempts is spec §4.6 step 5's default MAX_ATTEMPTS.
const DefaultMaxAttempts = 5

// Config is the uploader's per-run tuning (spec §6: upload_workers,
// upload_bps).
type Config struct {
	Workers     int // N_WORKERS
	BPS         int // UPLOAD_BPS, 0 disables limiting
	MaxAttempts int
	From        string   // NNTP From header
	Newsgroups  []string // configured newsgroup(s)
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Store is the subset of *store.Store the uploader needs — spec §9's
// SegmentSink abstraction, so the uploader never holds a concrete
// store back-reference.
type Store interface {
	ListPendingSegments(ctx context.Context, folderUniqueID string) ([]store.Segment, error)
	MarkSegmentUploaded(ctx context.Context, segmentID uint64, usenetSubject, messageID string) error
	IncrementSegmentAttempts(ctx context.Context, segmentID uint64, maxAttempts int) (bool, error)
	TransitionFolder(ctx context.Context, folderUniqueID identity.FolderID, next store.FolderState) error
}

// CiphertextSource returns the ciphertext bytes segment.Build produced
// for a pending segment row, wherever system.System staged them (disk
// cache, object store). Injected so the uploader never holds a back-
// reference to C4's output location.
type CiphertextSource func(seg store.Segment) ([]byte, error)

// Uploader drains one folder's segment backlog through a bounded worker
// pool. One Uploader is scoped to one UploadFolder call; it holds no state
// between calls.
type Uploader struct {
	store      Store
	nntp       nntppool.Pool
	cfg        Config
	limiter    *rate.Limiter
	log        *zap.Logger
	ciphertext CiphertextSource
}

func New(st Store, nntp nntppool.Pool, cfg Config, ciphertext CiphertextSource, log *zap.Logger) *Uploader {
	cfg = cfg.withDefaults()
	u := &Uploader{store: st, nntp: nntp, cfg: cfg, log: log, ciphertext: ciphertext}
	if cfg.BPS > 0 {
		u.limiter = rate.NewLimiter(rate.Limit(cfg.BPS), cfg.BPS)
	}
	return u
}

// UploadFolder drains folder's pending-segment queue through N_WORKERS
// parallel tasks (spec §4.6). Cancellation finishes each worker's
// in-flight POST before returning, never aborting mid-article.
func (u *Uploader) UploadFolder(ctx context.Context, folder identity.FolderID) (*uerr.Result, error) {
	segs, err := u.store.ListPendingSegments(ctx, folder.String())
	if err != nil {
		return nil, err
	}

	queue := make(chan store.Segment, 4*u.cfg.Workers)
	go func() {
		defer close(queue)
		for _, s := range segs {
			select {
			case queue <- s:
			case <-ctx.Done():
				return
			}
		}
	}()

	result := &uerr.Result{}
	p := pool.New().WithMaxGoroutines(u.cfg.Workers)

	for seg := range queue {
		seg := seg
		p.Go(func() {
			if err := u.uploadOne(ctx, folder, seg); err != nil {
				if uerrVal, ok := err.(*uerr.Error); ok {
					result.AddFailure(seg.InternalSubject, uerrVal.Kind, uerrVal.Detail)
				} else {
					result.AddFailure(seg.InternalSubject, uerr.KindTransient, err.Error())
				}
				return
			}
			result.AddSuccess()
		})
	}
	p.Wait()

	remaining, err := u.store.ListPendingSegments(ctx, folder.String())
	if err != nil {
		return result, err
	}
	if len(remaining) == 0 {
		if err := u.store.TransitionFolder(ctx, folder, store.StateUploaded); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (u *Uploader) uploadOne(ctx context.Context, folder identity.FolderID, seg store.Segment) error {
	if u.limiter != nil {
		if err := u.limiter.WaitN(ctx, int(seg.Size)); err != nil {
			return uerr.Wrap(uerr.KindCancel, "uploader.uploadOne", seg.InternalSubject, err)
		}
	}

	subject, err := identity.ObfuscatedSubject()
	if err != nil {
		return err
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), folder.Short())

	ciphertext, err := u.ciphertext(seg)
	if err != nil {
		return err
	}

	article := nntppool.Article{
		Subject:    subject,
		MessageID:  messageID,
		From:       u.cfg.From,
		Newsgroups: u.cfg.Newsgroups,
		Body:       ciphertext,
	}

	if err := u.nntp.Post(ctx, article); err != nil {
		exhausted, incErr := u.store.IncrementSegmentAttempts(ctx, seg.ID, u.cfg.MaxAttempts)
		if incErr != nil {
			return incErr
		}
		if exhausted {
			_ = u.store.TransitionFolder(ctx, folder, store.StateError)
			return uerr.Wrap(uerr.KindPermanentPost, "uploader.uploadOne", seg.InternalSubject, err)
		}
		return uerr.Wrap(uerr.KindTransient, "uploader.uploadOne", seg.InternalSubject, err)
	}

	return u.store.MarkSegmentUploaded(ctx, seg.ID, subject, messageID)
}
