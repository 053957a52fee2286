package block

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"storage-engine/internal/collection"
	"storage-engine/internal/common"
	"storage-engine/internal/manifest"
)

// Backend is the domain-level storage surface the rest of the engine
// depends on: collection lifecycle, segment blobs, and manifest
// persistence, layered on top of a plain Storage object store.
// Any Storage implementation - LocalFS, S3FS,
// or MemFS - can serve as the underlying object layer.
type Backend interface {
	CreateCollection(ctx context.Context, desc *collection.Descriptor) error
	DropCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	LoadCollection(ctx context.Context, name string) (*collection.Descriptor, error)

	WriteSegment(ctx context.Context, collectionName string, segID common.SegmentID, blob []byte) (uri string, err error)
	ReadSegment(ctx context.Context, uri string) ([]byte, error)
	DeleteSegment(ctx context.Context, uri string) error

	LoadManifest(ctx context.Context, collectionName string) (*manifest.Manifest, error)
	PersistManifest(ctx context.Context, m *manifest.Manifest, expectedEpoch uint64) error

	PutObject(ctx context.Context, path string, data []byte) error
	GetObject(ctx context.Context, path string) ([]byte, error)
	DeleteObject(ctx context.Context, path string) error
	DeleteObjects(ctx context.Context, paths []string) error
	ObjectExists(ctx context.Context, path string) (bool, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)

	// Health and Stats pass straight through to the underlying object
	// layer, for the CLI's status command.
	Health(ctx context.Context) error
	Stats(ctx context.Context) (*Stats, error)
}

type storageBackend struct {
	store Storage

	// manifestLocks guards PersistManifest's read-check-write against
	// concurrent callers sharing this Backend instance, so the epoch
	// check and the pointer write it gates happen as one step rather
	// than racing between two load-check-write sequences. It does not make the swap
	// atomic across independent processes or Backend instances talking
	// to the same object store - that needs a provider-level
	// conditional write (e.g. S3 If-Match), which Storage does not
	// expose today.
	manifestLocks sync.Map // collection name -> *sync.Mutex
}

// NewBackend wraps a Storage object layer with the engine's
// collection/segment/manifest domain operations.
func NewBackend(store Storage) Backend {
	return &storageBackend{store: store}
}

func (b *storageBackend) lockFor(collectionName string) *sync.Mutex {
	lock, _ := b.manifestLocks.LoadOrStore(collectionName, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func collectionPrefix(name string) string        { return "collections/" + name + "/" }
func collectionDescriptorPath(name string) string { return collectionPrefix(name) + "descriptor.json" }
func manifestVersionPath(name string, version uint64) string {
	return collectionPrefix(name) + fmt.Sprintf("manifest/%020d.json", version)
}
func manifestPointerPath(name string) string { return collectionPrefix(name) + "manifest/current" }
func segmentPath(name string, id common.SegmentID) string {
	return collectionPrefix(name) + "segments/" + id.String() + ".seg"
}

func (b *storageBackend) CreateCollection(ctx context.Context, desc *collection.Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	exists, err := b.CollectionExists(ctx, desc.Name)
	if err != nil {
		return err
	}
	if exists {
		return common.Conflict("collection %q already exists", desc.Name)
	}

	descBytes, err := json.Marshal(desc)
	if err != nil {
		return common.Serialization("encoding collection descriptor: %v", err)
	}
	if err := b.PutObject(ctx, collectionDescriptorPath(desc.Name), descBytes); err != nil {
		return err
	}

	return b.PersistManifest(ctx, manifest.New(desc), 0)
}

func (b *storageBackend) CollectionExists(ctx context.Context, name string) (bool, error) {
	return b.ObjectExists(ctx, collectionDescriptorPath(name))
}

func (b *storageBackend) LoadCollection(ctx context.Context, name string) (*collection.Descriptor, error) {
	raw, err := b.GetObject(ctx, collectionDescriptorPath(name))
	if err != nil {
		return nil, err
	}
	var desc collection.Descriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, common.Serialization("decoding collection descriptor for %q: %v", name, err)
	}
	return &desc, nil
}

func (b *storageBackend) DropCollection(ctx context.Context, name string) error {
	paths, err := b.ListObjects(ctx, collectionPrefix(name))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}
	return b.DeleteObjects(ctx, paths)
}

func (b *storageBackend) WriteSegment(ctx context.Context, collectionName string, segID common.SegmentID, blob []byte) (string, error) {
	uri := segmentPath(collectionName, segID)
	if err := b.PutObject(ctx, uri, blob); err != nil {
		return "", err
	}
	return uri, nil
}

func (b *storageBackend) ReadSegment(ctx context.Context, uri string) ([]byte, error) {
	return b.GetObject(ctx, uri)
}

func (b *storageBackend) DeleteSegment(ctx context.Context, uri string) error {
	return b.DeleteObject(ctx, uri)
}

// LoadManifest resolves the collection's current pointer file and
// reads the manifest body it names, upgrading a legacy-shaped
// manifest to v1 in memory.
func (b *storageBackend) LoadManifest(ctx context.Context, collectionName string) (*manifest.Manifest, error) {
	pointer, err := b.GetObject(ctx, manifestPointerPath(collectionName))
	if err != nil {
		return nil, err
	}
	version, err := strconv.ParseUint(strings.TrimSpace(string(pointer)), 10, 64)
	if err != nil {
		return nil, common.Serialization("parsing manifest pointer for %q: %v", collectionName, err)
	}

	body, err := b.GetObject(ctx, manifestVersionPath(collectionName, version))
	if err != nil {
		return nil, err
	}

	var m manifest.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, common.Serialization("decoding manifest for %q: %v", collectionName, err)
	}
	m.UpgradeLegacy()
	return &m, nil
}

// PersistManifest enforces optimistic concurrency against the
// currently-persisted epoch, bumps the manifest's revision, and
// writes the new body followed by the pointer update - each write
// going through PutObject's write-temp-then-rename atomicity so a
// reader never observes a partially-written manifest. The epoch
// check and the writes it gates are held
// under a per-collection lock so two concurrent persists against this
// Backend can't both pass CheckEpoch against the same expected epoch
// before either has written.
func (b *storageBackend) PersistManifest(ctx context.Context, m *manifest.Manifest, expectedEpoch uint64) error {
	lock := b.lockFor(m.Collection)
	lock.Lock()
	defer lock.Unlock()

	current, err := b.LoadManifest(ctx, m.Collection)
	if err != nil {
		if !common.Is(err, common.KindNotFound) {
			return err
		}
		if expectedEpoch != 0 {
			return common.Conflict("manifest epoch conflict: collection %q has no manifest yet, expected epoch %d", m.Collection, expectedEpoch)
		}
	} else if err := manifest.CheckEpoch(current, expectedEpoch); err != nil {
		return err
	}

	m.BumpRevision()
	body, err := json.Marshal(m)
	if err != nil {
		return common.Serialization("encoding manifest for %q: %v", m.Collection, err)
	}

	if err := b.PutObject(ctx, manifestVersionPath(m.Collection, m.LatestVersion), body); err != nil {
		return err
	}
	return b.PutObject(ctx, manifestPointerPath(m.Collection), []byte(strconv.FormatUint(m.LatestVersion, 10)))
}

// PutObject writes data to a uniquely-named temporary path and then
// renames it into place, so concurrent readers only ever see a
// complete prior version or the complete new one - never a partial
// write.
func (b *storageBackend) PutObject(ctx context.Context, path string, data []byte) error {
	tempPath := path + ".tmp." + common.NewID().String()
	w, err := b.store.Writer(ctx, tempPath)
	if err != nil {
		return common.Wrap(common.KindStorage, err, "opening temp object %q", tempPath)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return common.Wrap(common.KindStorage, err, "writing temp object %q", tempPath)
	}
	if err := w.Close(); err != nil {
		return common.Wrap(common.KindStorage, err, "closing temp object %q", tempPath)
	}
	if err := b.store.Move(ctx, tempPath, path); err != nil {
		return common.Wrap(common.KindStorage, err, "renaming %q into place", path)
	}
	return nil
}

func (b *storageBackend) GetObject(ctx context.Context, path string) ([]byte, error) {
	r, err := b.store.Reader(ctx, path)
	if err != nil {
		if IsNotFound(err) {
			return nil, common.NotFound("object %q not found", path)
		}
		return nil, common.Wrap(common.KindStorage, err, "opening object %q", path)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, common.Wrap(common.KindStorage, err, "reading object %q", path)
	}
	return data, nil
}

func (b *storageBackend) DeleteObject(ctx context.Context, path string) error {
	if err := b.store.Delete(ctx, path); err != nil {
		if IsNotFound(err) {
			return common.NotFound("object %q not found", path)
		}
		return common.Wrap(common.KindStorage, err, "deleting object %q", path)
	}
	return nil
}

// DeleteObjects removes every path in one batch call, for callers
// like DropCollection that would otherwise issue one DeleteObject per
// object under a collection's prefix.
func (b *storageBackend) DeleteObjects(ctx context.Context, paths []string) error {
	if err := b.store.DeleteBatch(ctx, paths); err != nil {
		if !IsNotFound(err) {
			return common.Wrap(common.KindStorage, err, "batch deleting %d objects", len(paths))
		}
	}
	return nil
}

// Health reports whether the underlying object layer is reachable and
// writable.
func (b *storageBackend) Health(ctx context.Context) error {
	if err := b.store.Health(ctx); err != nil {
		return common.Wrap(common.KindStorage, err, "storage health check")
	}
	return nil
}

// Stats reports the underlying object layer's object count and space
// usage.
func (b *storageBackend) Stats(ctx context.Context) (*Stats, error) {
	stats, err := b.store.Stats(ctx)
	if err != nil {
		return nil, common.Wrap(common.KindStorage, err, "storage stats")
	}
	return stats, nil
}

func (b *storageBackend) ObjectExists(ctx context.Context, path string) (bool, error) {
	_, err := b.store.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, common.Wrap(common.KindStorage, err, "statting object %q", path)
}

func (b *storageBackend) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	entries, err := b.store.List(ctx, prefix)
	if err != nil {
		return nil, common.Wrap(common.KindStorage, err, "listing objects under %q", prefix)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out, nil
}
