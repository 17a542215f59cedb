// Package testutil provides in-memory and HTTP fakes of the object store for
// tests across packages.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"dggscli/internal/objstore"
)

// MemStore is an objstore.Store backed by a map. Bodies are delivered in
// ChunkSize pieces so callers see a streamed response.
type MemStore struct {
	BucketName string
	Objects    map[string][]byte
	ChunkSize  int

	// HideSize makes GetObject report an unknown length.
	HideSize bool
	// GetErrors fails GetObject for the given keys.
	GetErrors map[string]error
	// BodyErrors fails the body read of the given keys after the first chunk.
	BodyErrors map[string]error
	// ListError fails every ListObjects call.
	ListError error

	mu        sync.Mutex
	getCalls  []string
	listCalls []string
}

var _ objstore.Store = (*MemStore)(nil)

func NewMemStore(bucket string, objects map[string][]byte) *MemStore {
	return &MemStore{BucketName: bucket, Objects: objects, ChunkSize: 4}
}

func (m *MemStore) Bucket() string {
	return m.BucketName
}

func (m *MemStore) GetObject(ctx context.Context, key string) (*objstore.Object, error) {
	m.mu.Lock()
	m.getCalls = append(m.getCalls, key)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &objstore.Error{Op: "get", Bucket: m.BucketName, Key: key, Err: fmt.Errorf("%w: %w", objstore.ErrConnection, err)}
	}
	if err, ok := m.GetErrors[key]; ok {
		return nil, &objstore.Error{Op: "get", Bucket: m.BucketName, Key: key, Err: err}
	}
	data, ok := m.Objects[key]
	if !ok {
		return nil, &objstore.Error{Op: "get", Bucket: m.BucketName, Key: key, Err: fmt.Errorf("%w: NoSuchKey", objstore.ErrNotFound)}
	}

	size := int64(len(data))
	if m.HideSize {
		size = -1
	}

	chunk := m.ChunkSize
	if chunk <= 0 {
		chunk = len(data) + 1
	}

	return &objstore.Object{
		Key:  key,
		Size: size,
		Body: io.NopCloser(&chunkReader{data: data, chunk: chunk, failWith: m.BodyErrors[key]}),
	}, nil
}

func (m *MemStore) ListObjects(ctx context.Context, prefix string) ([]objstore.ObjectInfo, error) {
	m.mu.Lock()
	m.listCalls = append(m.listCalls, prefix)
	m.mu.Unlock()

	if m.ListError != nil {
		return nil, &objstore.Error{Op: "list", Bucket: m.BucketName, Key: prefix, Err: m.ListError}
	}

	var out []objstore.ObjectInfo
	for key, data := range m.Objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, objstore.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemStore) GetCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.getCalls...)
}

func (m *MemStore) ListCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.listCalls...)
}

var ErrBodyInterrupted = errors.New("connection reset by peer")

type chunkReader struct {
	data     []byte
	chunk    int
	off      int
	failWith error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.failWith != nil && r.off > 0 {
		return 0, r.failWith
	}
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := min(r.chunk, len(p), len(r.data)-r.off)
	copy(p, r.data[r.off:r.off+n])
	r.off += n
	return n, nil
}
