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
)

// =============================================================================
// BLOB STORE
// =============================================================================

// BlobStore reads and writes opaque values by key.
type BlobStore interface {
	// Get returns the value for key, or ErrBlobNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the value for key.
	Put(ctx context.Context, key string, value []byte) error

	// Close releases backend resources.
	Close() error
}

// ErrBlobNotFound is returned by Get when a key has never been written.
var ErrBlobNotFound = errors.New("blob not found")

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string // directory for file, database file for sqlite
	URL     string // connection URL for redis and postgres
}

// Open creates the backend named by opts.Backend. An empty backend means file.
func Open(ctx context.Context, opts Options) (BlobStore, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return NewFileStore(opts.Path)
	case BackendSQLite:
		return NewSQLiteStore(ctx, opts.Path)
	case BackendRedis:
		return NewRedisStore(ctx, opts.URL)
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.URL)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// DefaultDir returns ~/.rigchat, the default location for local backends.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".rigchat"), nil
}
