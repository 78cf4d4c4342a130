// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/metrics"
	"github.com/jeranaias/rigchat/internal/util"
)

// FileStore keeps one JSON file per key inside a directory.
type FileStore struct {
	// BaseDir is the directory holding the blobs.
	// Default: ~/.rigchat/
	BaseDir string
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
// An empty dir selects DefaultDir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &FileStore{BaseDir: dir}, nil
}

// Get implements BlobStore.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	defer metrics.ObserveStorage(BackendFile, "get", time.Now())
	path, err := s.filePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return data, nil
}

// Put implements BlobStore. Writes are atomic.
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	defer metrics.ObserveStorage(BackendFile, "put", time.Now())
	path, err := s.filePath(key)
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, value, 0600)
}

// Close implements BlobStore.
func (s *FileStore) Close() error {
	return nil
}

// filePath returns the file path for a key. Keys may not name other
// directories.
func (s *FileStore) filePath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.BaseDir, key+".json"), nil
}
