package blob

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store entirely in memory. Intended for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data []byte
	info Info
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{blobs: map[string]memoryBlob{}}
}

// Driver reports the backend identifier.
func (s *MemoryStore) Driver() Driver { return DriverMemory }

// Put writes a blob, overwriting any previous content under the key.
func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if _, err := sanitizeKey(key); err != nil {
		return Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Metadata:     opts.Metadata,
		LastModified: time.Now().UTC(),
	}
	s.mu.Lock()
	s.blobs[key] = memoryBlob{data: data, info: info}
	s.mu.Unlock()
	return info, nil
}

// Get opens a blob for reading.
func (s *MemoryStore) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	s.mu.RLock()
	b, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, nil, ErrNotFound
	}
	return b.info, io.NopCloser(bytes.NewReader(b.data)), nil
}

// Head returns blob metadata.
func (s *MemoryStore) Head(_ context.Context, key string) (Info, error) {
	s.mu.RLock()
	b, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, ErrNotFound
	}
	return b.info, nil
}

// Delete removes a blob; the boolean reports whether it existed.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return false, nil
	}
	delete(s.blobs, key)
	return true, nil
}

// List returns blobs whose keys begin with prefix, ordered by key.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []Info
	for key, b := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, b.info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}
