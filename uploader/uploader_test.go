package uploader

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rorocorp/uns/identity"
	"github.com/rorocorp/uns/nntppool"
	"github.com/rorocorp/uns/store"
)

type fakeStore struct {
	mu        sync.Mutex
	pending   []store.Segment
	uploaded  map[uint64]string
	attempts  map[uint64]int
	state     store.FolderState
	maxTried  int
}

func newFakeStore(segs []store.Segment) *fakeStore {
	return &fakeStore{pending: segs, uploaded: map[uint64]string{}, attempts: map[uint64]int{}, state: store.StateUploading}
}

func (f *fakeStore) ListPendingSegments(ctx context.Context, folderUniqueID string) ([]store.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Segment
	for _, s := range f.pending {
		if _, done := f.uploaded[s.ID]; !done {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkSegmentUploaded(ctx context.Context, segmentID uint64, usenetSubject, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded[segmentID] = messageID
	return nil
}

func (f *fakeStore) IncrementSegmentAttempts(ctx context.Context, segmentID uint64, maxAttempts int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[segmentID]++
	return f.attempts[segmentID] >= maxAttempts, nil
}

func (f *fakeStore) TransitionFolder(ctx context.Context, folderUniqueID identity.FolderID, next store.FolderState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = next
	return nil
}

type fakePool struct {
	mu        sync.Mutex
	posted    []string
	failUntil map[string]int
}

func (p *fakePool) Post(ctx context.Context, article nntppool.Article) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted = append(p.posted, article.MessageID)
	return nil
}
func (p *fakePool) Fetch(ctx context.Context, messageID string) ([]byte, error)    { return nil, nil }
func (p *fakePool) Stat(ctx context.Context, messageID string) (bool, error)       { return true, nil }
func (p *fakePool) Close() error                                                   { return nil }
func (p *fakePool) FetchBySubject(ctx context.Context, subject string, since time.Time) ([]byte, string, error) {
	return nil, "", nil
}

func TestUploadFolderMarksAllSegmentsAndTransitionsFolder(t *testing.T) {
	folder, err := identity.NewFolderID()
	require.NoError(t, err)

	segs := []store.Segment{
		{ID: 1, FolderUniqueID: folder.String(), InternalSubject: "a", Size: 10},
		{ID: 2, FolderUniqueID: folder.String(), InternalSubject: "b", Size: 10},
	}
	st := newFakeStore(segs)
	pool := &fakePool{}

	u := New(st, pool, Config{Workers: 2, From: "uns@example"}, func(seg store.Segment) ([]byte, error) {
		return []byte("ciphertext"), nil
	}, zap.NewNop())

	result, err := u.UploadFolder(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Completed)
	assert.Empty(t, result.Failed)
	assert.Len(t, st.uploaded, 2)
	assert.Equal(t, store.StateUploaded, st.state)
	assert.Len(t, pool.posted, 2)
}
