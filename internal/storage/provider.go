// Package storage is the Storage Provider (spec §4.3): a narrow,
// content-addressable interface for persisting generator artifacts and
// combine outputs, with a local-filesystem implementation for
// single-process deployments and an in-memory one for tests.
package storage

import "context"

// Provider is the interface every storage backend implements. Writes are
// content-addressable: the returned version is a hash of the written bytes,
// so two writes of identical content at the same path produce the same
// version without creating a new physical object.
type Provider interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte, message string) (version string, err error)
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
	Hash(ctx context.Context, path string) (string, error)

	// WriteBatch persists every file in one atomic operation where the
	// backend supports it (spec §4.3: "Batched multi-file writes should be
	// one atomic operation when the backend supports it"). version is the
	// hash of the batch's combined manifest.
	WriteBatch(ctx context.Context, files map[string][]byte, message string) (version string, err error)
}

// ErrNotFound is returned by Read/Hash when path does not exist.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "storage: path not found" }
