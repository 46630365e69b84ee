package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func putFile(t *testing.T, s FileStore, path, data string) {
	t.Helper()
	ctx := context.Background()
	w, err := s.Write(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteAndRead(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	const data = "checkpoint payload"
	putFile(t, s, "runs/a/model_mel_g3_a70_001.ckpt", data)

	r, err := s.Read(ctx, "runs/a/model_mel_g3_a70_001.ckpt")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != data {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestReadNotExist(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	_, err := s.Read(ctx, "no-such-file")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestExists(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected false for missing file")
	}

	putFile(t, s, "present", "x")

	ok, err = s.Exists(ctx, "present")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected true for existing file")
	}
}

func TestSize(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	putFile(t, s, "blob", "12345")

	n, err := s.Size(ctx, "blob")
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("Size = %d, want 5", n)
	}

	if _, err := s.Size(ctx, "missing"); !os.IsNotExist(err) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	// Delete a file that doesn't exist — should succeed.
	if err := s.Delete(ctx, "ghost"); err != nil {
		t.Fatal(err)
	}

	putFile(t, s, "tmp", "x")

	if err := s.Delete(ctx, "tmp"); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Exists(ctx, "tmp")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("file should be gone after delete")
	}

	// Delete again — idempotent.
	if err := s.Delete(ctx, "tmp"); err != nil {
		t.Fatal(err)
	}
}

func TestWriteReplaces(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	putFile(t, s, "f", "long content here")
	putFile(t, s, "f", "short")

	r, err := s.Read(ctx, "f")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "short" {
		t.Fatalf("got %q, want %q", got, "short")
	}
}

// The destination must keep its old content until the writer closes
// cleanly, and no temp files may survive the write.
func TestWriteIsAtomic(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	putFile(t, s, "model.ckpt", "epoch 1")

	w, err := s.Write(ctx, "model.ckpt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, "epoch 2"); err != nil {
		t.Fatal(err)
	}

	// Not yet closed: old content still visible.
	r, err := s.Read(ctx, "model.ckpt")
	if err != nil {
		t.Fatal(err)
	}
	mid, _ := io.ReadAll(r)
	r.Close()
	if string(mid) != "epoch 1" {
		t.Fatalf("destination changed before Close: %q", mid)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r, err = s.Read(ctx, "model.ckpt")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(r)
	r.Close()
	if string(got) != "epoch 2" {
		t.Fatalf("got %q after Close, want %q", got, "epoch 2")
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Fatalf("temp file %q left behind", e.Name())
		}
	}
}

func TestListSortedWithPrefix(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	putFile(t, s, "model_mel_g3_a70_002.ckpt", "b")
	putFile(t, s, "model_mel_g3_a70_001.ckpt", "a")
	putFile(t, s, "model_mel_g3_a70_010.ckpt", "c")
	putFile(t, s, "notes/readme.txt", "d")

	got, err := s.List(ctx, "model_")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"model_mel_g3_a70_001.ckpt",
		"model_mel_g3_a70_002.ckpt",
		"model_mel_g3_a70_010.ckpt",
	}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("List(\"\") returned %d paths, want 4", len(all))
	}
}

func TestListEmptyStore(t *testing.T) {
	s := newTestLocal(t)
	got, err := s.List(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("List on empty store = %v, want none", got)
	}
}

func TestNewLocalCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	s, err := NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(s.root)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory")
	}
}

// Verify Local satisfies FileStore at compile time.
var _ FileStore = (*Local)(nil)
