package block

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemFS is an in-memory Storage implementation. It backs the
// in-process memory:// storage backend and
// exercises the same write-temp-then-rename contract as LocalFS and
// S3FS without touching a real filesystem, which is what the test
// suite builds collections against.
type MemFS struct {
	mu      sync.RWMutex
	objects map[string][]byte
	modTime map[string]int64
}

// NewMemFS creates an empty in-memory store.
func NewMemFS() *MemFS {
	return &MemFS{objects: make(map[string][]byte), modTime: make(map[string]int64)}
}

func (m *MemFS) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, &StorageError{Op: "open", Path: path, Err: ErrNotFound.Err}
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

type memWriter struct {
	mfs  *MemFS
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.mfs.mu.Lock()
	defer w.mfs.mu.Unlock()
	w.mfs.objects[w.path] = append([]byte(nil), w.buf.Bytes()...)
	w.mfs.modTime[w.path] = time.Now().Unix()
	return nil
}

func (m *MemFS) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	return &memWriter{mfs: m, path: path}, nil
}

func (m *MemFS) Stat(ctx context.Context, path string) (*Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, &StorageError{Op: "stat", Path: path, Err: ErrNotFound.Err}
	}
	return &Metadata{Path: path, Size: int64(len(data)), ModTime: m.modTime[path], CustomMetadata: map[string]string{}}, nil
}

func (m *MemFS) List(ctx context.Context, prefix string) ([]*Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Metadata
	for path, data := range m.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, &Metadata{Path: path, Size: int64(len(data)), ModTime: m.modTime[path], CustomMetadata: map[string]string{}})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *MemFS) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; !ok {
		return &StorageError{Op: "delete", Path: path, Err: ErrNotFound.Err}
	}
	delete(m.objects, path)
	delete(m.modTime, path)
	return nil
}

func (m *MemFS) Move(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[src]
	if !ok {
		return &StorageError{Op: "move", Path: src, Err: ErrNotFound.Err}
	}
	m.objects[dst] = data
	m.modTime[dst] = time.Now().Unix()
	delete(m.objects, src)
	delete(m.modTime, src)
	return nil
}

func (m *MemFS) DeleteBatch(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := m.Delete(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemFS) Health(ctx context.Context) error { return nil }

func (m *MemFS) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, d := range m.objects {
		total += int64(len(d))
	}
	return &Stats{TotalObjects: int64(len(m.objects)), TotalSize: total, UsedSpace: total}, nil
}
