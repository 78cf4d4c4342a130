// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps blobs in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	puts   int
	failOn error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Get implements BlobStore.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements BlobStore.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		return s.failOn
	}
	s.blobs[key] = append([]byte(nil), value...)
	s.puts++
	return nil
}

// Close implements BlobStore.
func (s *MemoryStore) Close() error {
	return nil
}

// Puts returns the number of successful writes.
func (s *MemoryStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

// FailWrites makes every later Put return err. A nil err restores writes.
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	s.failOn = err
	s.mu.Unlock()
}
