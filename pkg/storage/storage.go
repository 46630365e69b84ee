// Package storage defines the FileStore interface for reading and writing
// files. It abstracts the underlying storage backend so that callers can
// swap between local disk, cloud object stores, or in-memory implementations
// without changing application code.
//
// The primary use case within melograph is persisting model checkpoints:
// training writes one checkpoint per epoch to a store root, and transcription
// lists the root to find the newest one. Roots may be plain directories or
// s3://bucket/prefix URIs.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// The caller must close the returned ReadCloser when done.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing.
	// If the file already exists it is replaced.
	// Parent directories are created automatically.
	// The caller must close the returned WriteCloser to flush data; the
	// file becomes visible under its final name only after a clean Close.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file.
	// If the file does not exist, Delete returns nil (idempotent).
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Size returns the length of the named file in bytes.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Size(ctx context.Context, path string) (int64, error)

	// List returns the paths of all files whose path starts with prefix,
	// in lexical order. A missing prefix yields an empty slice, not an
	// error. Pass "" to list the whole store.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Open returns a FileStore for the given root.
//
// Roots of the form s3://bucket or s3://bucket/prefix are served by an
// [S3Store] over client, which the caller must configure (credentials,
// region, endpoint). Any other root is treated as a local directory path
// and client may be nil.
func Open(root string, client S3Client) (FileStore, error) {
	bucket, prefix, ok := ParseS3Root(root)
	if !ok {
		return NewLocal(root)
	}
	if client == nil {
		return nil, errors.New("storage: s3 root requires a configured client")
	}
	return NewS3(client, bucket, prefix), nil
}

// ParseS3Root splits an s3://bucket/prefix root into bucket and prefix.
// ok is false when root is not an s3 URI.
func ParseS3Root(root string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(root, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, strings.Trim(prefix, "/"), bucket != ""
}
