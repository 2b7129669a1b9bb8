package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/certificate-registry/interfaces"
	"go.uber.org/atomic"
)

// MemoryStore keeps documents in memory, keyed by ComputeCID.
// It stands in for remote pinning services in tests and local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	objects     map[string][]byte
	unavailable atomic.Bool
	log         *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *slog.Logger) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		log:     log,
	}
}

// SetAvailable simulates the store going offline or coming back.
func (s *MemoryStore) SetAvailable(available bool) {
	s.unavailable.Store(!available)
}

func (s *MemoryStore) Store(ctx context.Context, data []byte, filename string) (string, error) {
	if s.unavailable.Load() {
		return "", interfaces.ErrBackendUnavailable
	}

	hash, err := ComputeCID(data)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.objects[hash] = append([]byte(nil), data...)
	s.mu.Unlock()

	s.log.Debug("Stored content in memory",
		slog.String("contentHash", hash),
		slog.String("filename", filename),
		slog.Int("size", len(data)))
	return hash, nil
}

func (s *MemoryStore) Fetch(ctx context.Context, contentHash string) ([]byte, error) {
	if s.unavailable.Load() {
		return nil, interfaces.ErrBackendUnavailable
	}

	s.mu.RLock()
	data, ok := s.objects[contentHash]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, contentHash)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Available(ctx context.Context) bool {
	return !s.unavailable.Load()
}

func (s *MemoryStore) Name() string {
	return "memory"
}

func (s *MemoryStore) LocationURI() string {
	return "memory://"
}
