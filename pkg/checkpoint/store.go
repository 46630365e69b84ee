package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/haivivi/melograph/pkg/storage"
)

// Store reads and writes checkpoints through a storage.FileStore, so a
// checkpoint root can be a local directory or an S3 prefix.
type Store struct {
	fs storage.FileStore
}

// NewStore wraps fs as a checkpoint store.
func NewStore(fs storage.FileStore) *Store {
	return &Store{fs: fs}
}

// Entry describes one checkpoint file in the store.
//
// Epoch is -1 for names without a parseable epoch (the final snapshots).
type Entry struct {
	Name   string
	Epoch  int
	Flavor Flavor
	Size   int64
}

// Save encodes ck and writes it under name. The payload is fully encoded
// in memory first, so a serialization failure never produces a partial
// file in the store.
func (s *Store) Save(ctx context.Context, name string, ck *Checkpoint) error {
	var buf bytes.Buffer
	if err := Write(&buf, ck); err != nil {
		return err
	}
	w, err := s.fs.Write(ctx, name)
	if err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", name, err)
	}
	if _, err := io.Copy(w, &buf); err != nil {
		w.Close()
		return fmt.Errorf("checkpoint: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", name, err)
	}
	return nil
}

// Load reads and decodes the named checkpoint.
//
// The payload flavor must match the file extension, and for epoch-named
// full checkpoints the payload epoch must match the filename, so a
// renamed or mislabeled file cannot resume training at the wrong point.
func (s *Store) Load(ctx context.Context, name string) (*Checkpoint, error) {
	r, err := s.fs.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", name, err)
	}
	defer r.Close()

	ck, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", name, err)
	}

	wantFlavor := FlavorFull
	if path.Ext(name) == ".weights" {
		wantFlavor = FlavorWeights
	}
	if ck.Flavor != wantFlavor {
		return nil, fmt.Errorf("checkpoint: %s holds a %s snapshot, want %s", name, ck.Flavor, wantFlavor)
	}
	if ck.Flavor == FlavorFull {
		if epoch, err := ParseEpoch(name); err == nil && epoch != ck.Epoch {
			return nil, fmt.Errorf("checkpoint: %s names epoch %d but holds epoch %d", name, epoch, ck.Epoch)
		}
	}
	return ck, nil
}

// List returns all checkpoint files in the store, in lexical order. A
// file removed between listing and sizing reports size zero rather than
// failing the whole listing.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	names, err := s.fs.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, name := range names {
		var flavor Flavor
		switch path.Ext(name) {
		case ".ckpt":
			flavor = FlavorFull
		case ".weights":
			flavor = FlavorWeights
		default:
			continue
		}
		epoch, err := ParseEpoch(name)
		if err != nil {
			epoch = -1
		}
		size, err := s.fs.Size(ctx, name)
		if err != nil {
			size = 0
		}
		entries = append(entries, Entry{Name: name, Epoch: epoch, Flavor: flavor, Size: size})
	}
	return entries, nil
}

// Latest returns the name of the epoch checkpoint with the highest epoch
// number. Final snapshots and foreign files are ignored. When the store
// holds no epoch checkpoints, the error wraps os.ErrNotExist.
func (s *Store) Latest(ctx context.Context) (string, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	best := ""
	bestEpoch := -1
	for _, e := range entries {
		if e.Flavor != FlavorFull || e.Epoch < 0 {
			continue
		}
		if e.Epoch > bestEpoch {
			best, bestEpoch = e.Name, e.Epoch
		}
	}
	if best == "" {
		return "", fmt.Errorf("checkpoint: no epoch checkpoints in store: %w", os.ErrNotExist)
	}
	return best, nil
}
