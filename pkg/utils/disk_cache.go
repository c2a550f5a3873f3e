package utils

import (
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DiskCache keeps the last good copy of every fetched asset so the tools keep
// working when the asset host is unreachable.
type DiskCache struct {
	db  *badger.DB
	ttl time.Duration

	// hot copies of recently read entries
	mem sync.Map
}

func OpenDiskCache(path string, ttl time.Duration) (*DiskCache, error) {
	opts := badger.DefaultOptions(path)
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &DiskCache{db: db, ttl: ttl}, nil
}

// OpenMemoryCache returns a cache that lives only as long as the process.
func OpenMemoryCache() (*DiskCache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &DiskCache{db: db}, nil
}

func (c *DiskCache) Close() error {
	return c.db.Close()
}

func (c *DiskCache) Put(key string, value []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
	if err == nil {
		c.mem.Delete(key)
	}
	return err
}

// Get returns nil, nil when the key is missing or expired.
func (c *DiskCache) Get(key string) ([]byte, error) {
	if v, ok := c.mem.Load(key); ok {
		return v.([]byte), nil
	}
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.ttl == 0 {
		c.mem.Store(key, val)
	}
	return val, nil
}

func (c *DiskCache) Delete(key string) error {
	c.mem.Delete(key)
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (c *DiskCache) ForEach(fn func(key string, v []byte) error) error {
	return c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := string(item.KeyCopy(nil))
			err := item.Value(func(v []byte) error {
				return fn(k, v)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
