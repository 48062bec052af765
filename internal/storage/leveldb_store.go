// Package storage implements core/store.Store backed by goleveldb, the
// same embedded KV engine the teacher opens in chain/node/blockchain.go's
// NewStateDB bootstrap (leveldb.OpenFile with default options).
package storage

import (
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/sa2shinakamo2/bt2c-sub002/core/store"
)

// LevelDBStore adapts a goleveldb database to the core/store.Store
// contract. Keys are namespaced by collection so a single on-disk database
// backs all four named collections.
type LevelDBStore struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a LevelDB database at path.
func Open(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func namespacedKey(collection store.Collection, key string) []byte {
	return []byte(string(collection) + "/" + key)
}

// Get implements core/store.Store.
func (s *LevelDBStore) Get(collection store.Collection, key string) ([]byte, bool, error) {
	v, err := s.db.Get(namespacedKey(collection, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("leveldb get %s/%s: %w", collection, key, err)
	}
	return v, true, nil
}

// RangeByHeight implements core/store.Store by scanning keys whose suffix
// is a fixed-width, zero-padded 16-digit hex height in [from, to].
func (s *LevelDBStore) RangeByHeight(collection store.Collection, from, to uint64) ([][]byte, error) {
	prefix := []byte(string(collection) + "/")
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out [][]byte
	for iter.Next() {
		key := strings.TrimPrefix(string(iter.Key()), string(prefix))
		height, err := parseHeightKey(key)
		if err != nil {
			continue
		}
		if height < from || height > to {
			continue
		}
		val := make([]byte, len(iter.Value()))
		copy(val, iter.Value())
		out = append(out, val)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldb range scan %s: %w", collection, err)
	}
	return out, nil
}

// RangeByTimestamp implements core/store.Store with the same
// prefix-iteration approach as RangeByHeight. Only keys shaped
// "<unix-ts>:<id>" are matched; other keys in the collection (such as
// internal/keydir's "pubkey:<addr>" records) are skipped.
func (s *LevelDBStore) RangeByTimestamp(collection store.Collection, from, to int64) ([][]byte, error) {
	prefix := []byte(string(collection) + "/")
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out [][]byte
	for iter.Next() {
		key := strings.TrimPrefix(string(iter.Key()), string(prefix))
		ts, _, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		var tsVal int64
		if _, err := fmt.Sscanf(ts, "%d", &tsVal); err != nil {
			continue
		}
		if tsVal < from || tsVal > to {
			continue
		}
		val := make([]byte, len(iter.Value()))
		copy(val, iter.Value())
		out = append(out, val)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldb range scan %s: %w", collection, err)
	}
	return out, nil
}

// AtomicPut implements core/store.Store via a single leveldb.Batch.
func (s *LevelDBStore) AtomicPut(puts []store.Put) error {
	batch := new(leveldb.Batch)
	for _, p := range puts {
		batch.Put(namespacedKey(p.Collection, p.Key), p.Value)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb atomic put: %w", err)
	}
	return nil
}

// Close implements core/store.Store.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

// HeightKey formats height as a fixed-width, lexicographically sortable
// hex key suffix.
func HeightKey(height uint64) string {
	return fmt.Sprintf("%016x", height)
}

func parseHeightKey(key string) (uint64, error) {
	var height uint64
	_, err := fmt.Sscanf(key, "%016x", &height)
	return height, err
}

var _ store.Store = (*LevelDBStore)(nil)
