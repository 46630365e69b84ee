package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Local implements FileStore on top of the local filesystem.
// All paths are resolved relative to the configured root directory.
//
// Writes go to a temporary sibling file and are renamed into place on
// Close, so readers never observe a half-written checkpoint.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir.
// The directory is created (with parents) if it does not already exist.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// resolve turns a storage path into an absolute filesystem path.
func (l *Local) resolve(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

// Read opens the named file for reading.
func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(l.resolve(path))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Write opens a temporary file next to the named path, creating parent
// directories as needed. Close renames it over the destination, replacing
// any existing file; until then the destination is untouched.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full := l.resolve(path)
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, filepath.Base(full)+".tmp.*")
	if err != nil {
		return nil, err
	}
	return &atomicFile{f: f, target: full}, nil
}

// Delete removes the named file. If the file does not exist, Delete
// returns nil (idempotent).
func (l *Local) Delete(_ context.Context, path string) error {
	err := os.Remove(l.resolve(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether the named file exists.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.resolve(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Size returns the length of the named file in bytes.
func (l *Local) Size(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(l.resolve(path))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// List walks the store and returns the paths of all regular files whose
// storage path starts with prefix, lexically sorted.
func (l *Local) List(_ context.Context, prefix string) ([]string, error) {
	paths := []string{}
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			paths = append(paths, name)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// atomicFile is a WriteCloser that renames its temp file over target on
// Close. A failed Close removes the temp file and leaves target alone.
type atomicFile struct {
	f      *os.File
	target string
	closed bool
}

func (a *atomicFile) Write(p []byte) (int, error) {
	return a.f.Write(p)
}

func (a *atomicFile) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	name := a.f.Name()
	if err := a.f.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, a.target); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
