package journal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "platbook/pkg/domain"
	"platbook/pkg/requestcontext"
)

type recordingStore struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *recordingStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingStore) ListByProperty(context.Context, id.PropertyID) ([]Entry, error) {
	return nil, nil
}

func (s *recordingStore) ListRecent(context.Context, int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...), nil
}

// blockingStore parks the worker inside Append until the gate opens, so
// overflow behavior is observable deterministically.
type blockingStore struct {
	recordingStore
	started chan struct{}
	gate    chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, e Entry) error {
	s.started <- struct{}{}
	<-s.gate
	return s.recordingStore.Append(ctx, e)
}

func TestPublisherSyncMode(t *testing.T) {
	store := &recordingStore{}
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), Entry{
		Kind:    KindListingReceived,
		Subject: "crexi",
	})
	require.NoError(t, err)

	entries, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindListingReceived, entries[0].Kind)
}

func TestPublisherStampsRequestTime(t *testing.T) {
	store := &recordingStore{}
	pub := NewPublisher(store)
	defer pub.Close()

	at := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)
	require.NoError(t, pub.Emit(ctx, Entry{Kind: KindEntityClassified}))

	entries, _ := store.ListRecent(ctx, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, at, entries[0].At)
}

func TestPublisherPreservesExistingTimestamp(t *testing.T) {
	store := &recordingStore{}
	pub := NewPublisher(store)
	defer pub.Close()

	at := time.Date(2026, 4, 2, 16, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), Entry{Kind: KindGroupsMerged, At: at}))

	entries, _ := store.ListRecent(context.Background(), 1)
	require.Len(t, entries, 1)
	assert.Equal(t, at, entries[0].At)
}

func TestPublisherAsyncDrainsOnClose(t *testing.T) {
	store := &recordingStore{}
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), Entry{Kind: KindRefreshRequested}))
	}
	pub.Close()

	entries, err := store.ListRecent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, entries, 10, "all entries should be drained on close")
}

func TestPublisherOverflowDropsOldest(t *testing.T) {
	store := &blockingStore{
		started: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	pub := NewPublisher(store, WithAsyncBuffer(1))

	first := Entry{Kind: KindListingReceived, Detail: "first"}
	require.NoError(t, pub.Emit(context.Background(), first))
	<-store.started // worker is parked inside Append, inbox is empty again

	require.NoError(t, pub.Emit(context.Background(), Entry{Kind: KindListingReceived, Detail: "second"}))
	require.NoError(t, pub.Emit(context.Background(), Entry{Kind: KindListingReceived, Detail: "third"}))
	assert.Equal(t, int64(1), pub.Dropped(), "second entry should be displaced by third")

	close(store.gate)
	go func() {
		for range store.started {
		}
	}()
	pub.Close()
	close(store.started)

	entries, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Detail)
	assert.Equal(t, "third", entries[1].Detail)
}

func TestPublisherClosedRejectsEmit(t *testing.T) {
	pub := NewPublisher(&recordingStore{}, WithAsyncBuffer(4))
	pub.Close()

	err := pub.Emit(context.Background(), Entry{Kind: KindReviewQueued})
	require.Error(t, err)
}
