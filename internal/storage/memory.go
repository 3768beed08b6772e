package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"clipvault/internal/types"
)

// MemStore is an in-memory ObjectStore used for local development and tests.
// Presigned URLs are synthetic and carry the key and expiry for assertions.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailPut, when set, makes Put return this error. Tests use it to
	// simulate storage outages.
	FailPut error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

func (s *MemStore) Put(_ context.Context, key string, body []byte, _ string) error {
	if s.FailPut != nil {
		return types.NewAppError(types.ErrCodeStorageWrite,
			fmt.Sprintf("failed to store object %s", key), s.FailPut)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(body))
	copy(buf, body)
	s.objects[key] = buf
	return nil
}

func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.objects[key]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundEvent,
			fmt.Sprintf("object %s does not exist", key), nil)
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func (s *MemStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemStore) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", types.NewAppError(types.ErrCodeStorageRead,
			fmt.Sprintf("cannot presign missing object %s", key), nil)
	}
	return fmt.Sprintf("https://mem.invalid/%s?expires=%d", key, int64(expiry.Seconds())), nil
}

// Len returns the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ types.ObjectStore = (*MemStore)(nil)
