package dataset

import (
	"errors"
	"reflect"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(CacheOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheMiss(t *testing.T) {
	c := newTestCache(t)
	if _, err := c.Get("absent"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("err = %v, want ErrCacheMiss", err)
	}
}

func TestCachePutGet(t *testing.T) {
	c := newTestCache(t)
	frames := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	if err := c.Put("k", frames); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, frames) {
		t.Fatalf("frames = %v, want %v", got, frames)
	}
}

func TestCacheOverwrite(t *testing.T) {
	c := newTestCache(t)
	if err := c.Put("k", [][]float64{{1}}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("k", [][]float64{{2}, {3}}); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := [][]float64{{2}, {3}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
}

func TestCacheRejectsRaggedMatrix(t *testing.T) {
	c := newTestCache(t)
	if err := c.Put("k", [][]float64{{1, 2}, {3}}); err == nil {
		t.Fatal("expected error for ragged rows")
	}
}

func TestCacheCorruptEntryIsMiss(t *testing.T) {
	c := newTestCache(t)
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKeyBytes("k"), []byte("not msgpack"))
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("err = %v, want ErrCacheMiss for corrupt entry", err)
	}
}

func TestOpenCacheRequiresDir(t *testing.T) {
	if _, err := OpenCache(CacheOptions{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}

func TestCachePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	frames := [][]float64{{7, 8, 9}}

	c, err := OpenCache(CacheOptions{Dir: dir})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if err := c.Put("k", frames); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c, err = OpenCache(CacheOptions{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	got, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !reflect.DeepEqual(got, frames) {
		t.Fatalf("frames = %v, want %v", got, frames)
	}
}
