package artifacts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryArtifact struct {
	name      string
	location  string
	kind      string
	content   string
	createdAt time.Time
	updatedAt time.Time
}

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]*memoryArtifact
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]*memoryArtifact)}
}

// Read implements Store.
func (s *MemoryStore) Read(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[id]
	if !ok {
		return "", fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	return a.content, nil
}

// Write implements Store.
func (s *MemoryStore) Write(_ context.Context, name, content, location string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	now := time.Now().UTC()
	s.artifacts[id] = &memoryArtifact{
		name:      name,
		location:  location,
		content:   content,
		createdAt: now,
		updatedAt: now,
	}
	return id, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, id, content, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	a.content = content
	a.kind = kind
	a.updatedAt = time.Now().UTC()
	return nil
}

// Seed inserts an artifact with a fixed id. Test helper.
func (s *MemoryStore) Seed(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.artifacts[id] = &memoryArtifact{name: id, content: content, createdAt: now, updatedAt: now}
}

// Len returns the number of stored artifacts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}
