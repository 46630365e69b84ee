package dataset

import (
	"errors"
	"fmt"
	"log"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrCacheMiss reports a fingerprint with no usable cached entry.
var ErrCacheMiss = errors.New("dataset: cache miss")

// Cache persists extracted feature matrices between runs.
//
// Key layout:
//
//	feat:{sha256 fingerprint} → msgpack featureRecord
//
// The fingerprint covers the source file's path, size, and modtime plus
// every extraction parameter, so edits to either the audio or the
// configuration never serve stale frames.
type Cache struct {
	db *badger.DB
}

// CacheOptions configures a feature cache.
type CacheOptions struct {
	// Dir is the badger data directory. Required unless InMemory is set.
	Dir string

	// InMemory keeps entries in RAM only. Useful for testing against a
	// real badger engine without disk state.
	InMemory bool
}

// OpenCache opens, creating if needed, a badger-backed cache.
func OpenCache(opts CacheOptions) (*Cache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("dataset: CacheOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(quietLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("dataset: open cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// featureRecord is the stored form of one frame matrix.
type featureRecord struct {
	Width  int       `msgpack:"width"`
	Frames []float64 `msgpack:"frames"` // row-major, len = rows × width
}

// Get returns the cached frame matrix for key, or ErrCacheMiss.
// Entries that fail to decode are treated as misses.
func (c *Cache) Get(key string) ([][]float64, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKeyBytes(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: cache get: %w", err)
	}

	var rec featureRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, ErrCacheMiss
	}
	if rec.Width <= 0 || len(rec.Frames)%rec.Width != 0 {
		return nil, ErrCacheMiss
	}

	frames := make([][]float64, len(rec.Frames)/rec.Width)
	for t := range frames {
		frames[t] = rec.Frames[t*rec.Width : (t+1)*rec.Width]
	}
	return frames, nil
}

// Put stores a frame matrix under key.
func (c *Cache) Put(key string, frames [][]float64) error {
	var rec featureRecord
	if len(frames) > 0 {
		rec.Width = len(frames[0])
		rec.Frames = make([]float64, 0, len(frames)*rec.Width)
		for _, row := range frames {
			if len(row) != rec.Width {
				return fmt.Errorf("dataset: cache put: ragged frame width %d (want %d)", len(row), rec.Width)
			}
			rec.Frames = append(rec.Frames, row...)
		}
	}
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("dataset: cache put: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKeyBytes(key), data)
	})
	if err != nil {
		return fmt.Errorf("dataset: cache put: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKeyBytes(key string) []byte {
	return []byte("feat:" + key)
}

// quietLogger keeps badger's chatty info/debug output out of training logs.
type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...interface{})   { log.Printf("[cache] ERROR: "+f, v...) }
func (quietLogger) Warningf(f string, v ...interface{}) { log.Printf("[cache] WARN: "+f, v...) }
func (quietLogger) Infof(string, ...interface{})        {}
func (quietLogger) Debugf(string, ...interface{})       {}
