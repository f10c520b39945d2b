// Package storage persists compiled workflow artifacts keyed by their
// content checksum, so a program can be compiled once and loaded by any
// runner that knows the checksum.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/synergenius-fw/flow-weaver-sub000/pkg/compiler"
	fwerrors "github.com/synergenius-fw/flow-weaver-sub000/pkg/errors"
)

// ArtifactStore stores and retrieves compiled artifacts by checksum.
type ArtifactStore interface {
	// Put persists an artifact. Storing the same checksum twice is a no-op
	// since the content is immutable by construction.
	Put(ctx context.Context, artifact *compiler.Artifact) error

	// Get retrieves an artifact by its hex SHA-256 checksum. A missing
	// checksum is reported with ErrArtifactNotFound in the chain.
	Get(ctx context.Context, checksum string) (*compiler.Artifact, error)

	// Exists reports whether the checksum is stored, without fetching the
	// source.
	Exists(ctx context.Context, checksum string) (bool, error)
}

// MemoryStore is an in-process ArtifactStore for tests and single-node
// deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]compiler.Artifact
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]compiler.Artifact)}
}

// Put implements ArtifactStore.
func (s *MemoryStore) Put(ctx context.Context, artifact *compiler.Artifact) error {
	if artifact == nil {
		return fmt.Errorf("storage: artifact cannot be nil")
	}
	if artifact.Checksum == "" {
		return fmt.Errorf("storage: artifact checksum cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.Checksum] = *artifact
	return nil
}

// Get implements ArtifactStore.
func (s *MemoryStore) Get(ctx context.Context, checksum string) (*compiler.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	art, ok := s.artifacts[checksum]
	if !ok {
		return nil, fmt.Errorf("storage: %w: %s", fwerrors.ErrArtifactNotFound, checksum)
	}
	out := art
	return &out, nil
}

// Exists implements ArtifactStore.
func (s *MemoryStore) Exists(ctx context.Context, checksum string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.artifacts[checksum]
	return ok, nil
}
