package literature

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/liliang-cn/paperchat/internal/domain"
)

const cacheKeyPrefix = "literature:"

// Cache memoizes aggregates per normalized query for a fixed TTL
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenCache opens a badger-backed cache in dir
func OpenCache(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open literature cache: %w", err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// OpenMemoryCache opens a cache that lives only in memory
func OpenMemoryCache(ttl time.Duration) (*Cache, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open literature cache: %w", err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached aggregate for query
func (c *Cache) Get(query string) (*domain.Aggregate, bool, error) {
	var agg domain.Aggregate
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(query))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &agg)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &agg, true, nil
}

// Set stores agg for query until the TTL expires
func (c *Cache) Set(query string, agg *domain.Aggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(query), data)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Close closes the underlying store
func (c *Cache) Close() error {
	return c.db.Close()
}

// NormalizeQuery folds case and whitespace so equivalent queries share an entry
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func cacheKey(query string) []byte {
	return []byte(cacheKeyPrefix + NormalizeQuery(query))
}
