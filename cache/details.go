package cache

import (
	"context"
	"strconv"
	"sync"

	"github.com/goliatone/go-listsync/record"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

// DetailsKey addresses one record of one collection. Ids are only unique
// within their collection.
type DetailsKey struct {
	Collection string
	ID         int64
}

// NewDetailsKey builds a normalized DetailsKey.
func NewDetailsKey(collection string, id int64) DetailsKey {
	return DetailsKey{Collection: normalizeName(collection), ID: id}
}

func (k DetailsKey) String() string {
	return k.Collection + KeySeparator + strconv.FormatInt(k.ID, 10)
}

// DetailsFetchFn loads the full payload of a record from the source of truth.
type DetailsFetchFn func(ctx context.Context) (record.Details, error)

// DetailsCache is the secondary cache behind "view details". Entries are
// populated lazily and dropped whenever the record is mutated.
//
// Invalidation bumps a generation per key and per collection. A fetch that
// was running when its key was invalidated still answers its callers but is
// not stored, so a payload read before a mutation never outlives it.
type DetailsCache struct {
	entries *xsync.MapOf[DetailsKey, record.Details]
	group   singleflight.Group

	mu          sync.Mutex
	generations map[DetailsKey]uint64
	collections map[string]uint64
	inflight    map[DetailsKey]int
}

type generation struct {
	key        uint64
	collection uint64
}

// NewDetailsCache creates an empty details cache.
func NewDetailsCache() *DetailsCache {
	return &DetailsCache{
		entries:     xsync.NewMapOf[DetailsKey, record.Details](),
		generations: map[DetailsKey]uint64{},
		collections: map[string]uint64{},
		inflight:    map[DetailsKey]int{},
	}
}

// Get returns the cached details for key.
func (d *DetailsCache) Get(key DetailsKey) (record.Details, bool) {
	return d.entries.Load(key)
}

// Put stores details for key.
func (d *DetailsCache) Put(key DetailsKey, details record.Details) {
	d.entries.Store(key, details)
}

// GetOrFetch serves key from cache, or calls fetchFn once (concurrent callers
// for the same key share the call) and caches a successful result unless key
// was invalidated while the call was running.
func (d *DetailsCache) GetOrFetch(ctx context.Context, key DetailsKey, fetchFn DetailsFetchFn) (record.Details, error) {
	if details, ok := d.entries.Load(key); ok {
		return details, nil
	}

	v, err, _ := d.group.Do(key.String(), func() (any, error) {
		started := d.begin(key)
		defer d.end(key)

		details, err := fetchFn(ctx)
		if err != nil {
			return nil, err
		}

		d.mu.Lock()
		if d.current(key) == started {
			d.entries.Store(key, details)
		}
		d.mu.Unlock()
		return details, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(record.Details), nil
}

// Invalidate drops the cached details for key. A fetch of key already in
// flight will not be stored and later callers start a new one.
func (d *DetailsCache) Invalidate(key DetailsKey) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.generations[key]++
	d.entries.Delete(key)
	d.group.Forget(key.String())
}

// InvalidateCollection drops every cached details payload of collection and
// returns how many were removed.
func (d *DetailsCache) InvalidateCollection(collection string) int {
	name := normalizeName(collection)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.collections[name]++
	for key := range d.inflight {
		if key.Collection == name {
			d.group.Forget(key.String())
		}
	}

	removed := 0
	d.entries.Range(func(key DetailsKey, _ record.Details) bool {
		if key.Collection == name {
			d.entries.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of cached payloads.
func (d *DetailsCache) Len() int {
	return d.entries.Size()
}

func (d *DetailsCache) begin(key DetailsKey) generation {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inflight[key]++
	return d.current(key)
}

func (d *DetailsCache) end(key DetailsKey) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inflight[key]--; d.inflight[key] <= 0 {
		delete(d.inflight, key)
	}
}

// current must be called with d.mu held.
func (d *DetailsCache) current(key DetailsKey) generation {
	return generation{key: d.generations[key], collection: d.collections[key.Collection]}
}
