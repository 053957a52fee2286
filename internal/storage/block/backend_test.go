package block

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
)

func testCollectionDescriptor(name string) *collection.Descriptor {
	return &collection.Descriptor{Name: name, Dimension: 4, ReplicationFactor: 1, ShardCount: 1}
}

func TestBackend_CreateAndLoadCollection(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()
	desc := testCollectionDescriptor("docs")

	require.NoError(t, b.CreateCollection(ctx, desc))

	got, err := b.LoadCollection(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, desc.Name, got.Name)
	assert.Equal(t, desc.Dimension, got.Dimension)
}

func TestBackend_CreateCollectionDuplicateConflicts(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()
	desc := testCollectionDescriptor("docs")

	require.NoError(t, b.CreateCollection(ctx, desc))
	err := b.CreateCollection(ctx, desc)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindConflict))
}

func TestBackend_LoadManifest_InitialEpochOne(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()
	require.NoError(t, b.CreateCollection(ctx, testCollectionDescriptor("docs")))

	m, err := b.LoadManifest(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Epoch, "PersistManifest bumps the freshly-created manifest to epoch 1")
}

func TestBackend_PersistManifest_EpochConflict(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()
	require.NoError(t, b.CreateCollection(ctx, testCollectionDescriptor("docs")))

	m, err := b.LoadManifest(ctx, "docs")
	require.NoError(t, err)

	err = b.PersistManifest(ctx, m, m.Epoch+5)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindConflict))
}

func TestBackend_PersistManifest_CorrectEpochSucceeds(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()
	require.NoError(t, b.CreateCollection(ctx, testCollectionDescriptor("docs")))

	m, err := b.LoadManifest(ctx, "docs")
	require.NoError(t, err)
	oldEpoch := m.Epoch

	require.NoError(t, b.PersistManifest(ctx, m, oldEpoch))

	reloaded, err := b.LoadManifest(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, oldEpoch+1, reloaded.Epoch)
}

func TestBackend_DropCollectionRemovesAllObjects(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()
	require.NoError(t, b.CreateCollection(ctx, testCollectionDescriptor("docs")))

	require.NoError(t, b.DropCollection(ctx, "docs"))

	_, err := b.LoadCollection(ctx, "docs")
	require.Error(t, err)
	assert.True(t, common.Is(err, common.KindNotFound))
}

func TestBackend_WriteReadDeleteSegment(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()
	segID := common.NewID()
	blob := []byte("segment-bytes")

	uri, err := b.WriteSegment(ctx, "docs", segID, blob)
	require.NoError(t, err)

	got, err := b.ReadSegment(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	require.NoError(t, b.DeleteSegment(ctx, uri))
	_, err = b.ReadSegment(ctx, uri)
	require.Error(t, err)
}

func TestBackend_PutObjectAtomicity(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()

	require.NoError(t, b.PutObject(ctx, "foo/bar", []byte("v1")))
	require.NoError(t, b.PutObject(ctx, "foo/bar", []byte("v2")))

	got, err := b.GetObject(ctx, "foo/bar")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	exists, err := b.ObjectExists(ctx, "foo/bar")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBackend_PersistManifest_ConcurrentSameEpochOnlyOneWins(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()
	require.NoError(t, b.CreateCollection(ctx, testCollectionDescriptor("docs")))

	m, err := b.LoadManifest(ctx, "docs")
	require.NoError(t, err)
	startEpoch := m.Epoch

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			copyM := *m
			results[i] = b.PersistManifest(ctx, &copyM, startEpoch)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, common.Is(err, common.KindConflict))
		}
	}
	assert.Equal(t, 1, successes, "only one writer should win a race at the same expected epoch")

	reloaded, err := b.LoadManifest(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, startEpoch+1, reloaded.Epoch)
}

func TestBackend_HealthAndStats(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()

	require.NoError(t, b.Health(ctx))

	require.NoError(t, b.PutObject(ctx, "a", []byte("12345")))
	require.NoError(t, b.PutObject(ctx, "b", []byte("67")))

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalObjects)
	assert.EqualValues(t, 7, stats.TotalSize)
}

func TestBackend_DropCollectionUsesBatchDelete(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()
	require.NoError(t, b.CreateCollection(ctx, testCollectionDescriptor("docs")))

	segID := common.NewID()
	_, err := b.WriteSegment(ctx, "docs", segID, []byte("blob"))
	require.NoError(t, err)

	require.NoError(t, b.DropCollection(ctx, "docs"))

	paths, err := b.ListObjects(ctx, "collections/docs/")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestBackend_DropCollectionEmptyIsNoop(t *testing.T) {
	b := NewBackend(NewMemFS())
	require.NoError(t, b.DropCollection(context.Background(), "never-existed"))
}

func TestBackend_ListObjectsUnderPrefix(t *testing.T) {
	b := NewBackend(NewMemFS())
	ctx := context.Background()
	require.NoError(t, b.PutObject(ctx, "a/1", []byte("x")))
	require.NoError(t, b.PutObject(ctx, "a/2", []byte("y")))
	require.NoError(t, b.PutObject(ctx, "b/1", []byte("z")))

	paths, err := b.ListObjects(ctx, "a/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/1", "a/2"}, paths)
}
