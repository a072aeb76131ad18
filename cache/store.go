package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-listsync/internal/cacheinfra"
	"github.com/goliatone/go-listsync/record"
	"github.com/goliatone/go-listsync/syncerr"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"
)

// Entry is an immutable snapshot of one bulk fetch. Put and Patch never modify
// an Entry in place; they store a new one, so a reader holding an Entry always
// sees a consistent collection.
type Entry struct {
	Signature  Signature
	Records    []record.Record
	FetchedAt  time.Time
	Pagination record.Pagination

	// Version increases on every write to the signature (fetch or patch).
	Version uint64

	// Fingerprint digests the record contents. Two entries with the same
	// fingerprint hold the same data.
	Fingerprint uint64

	// Speculative is set when the entry carries an optimistic patch the
	// backend has not confirmed yet. A fetch clears it.
	Speculative bool
}

// Len returns the number of records in the snapshot.
func (e *Entry) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Records)
}

// Find returns the record with id.
func (e *Entry) Find(id int64) (record.Record, bool) {
	if e == nil {
		return record.Record{}, false
	}
	if i := record.Index(e.Records, id); i >= 0 {
		return e.Records[i], true
	}
	return record.Record{}, false
}

// Store is the snapshot cache shared by the sync controller (full replace)
// and the mutation coordinator (single record patch). It performs no I/O.
type Store interface {
	Get(sig Signature) (*Entry, bool)
	Put(sig Signature, records []record.Record, pagination record.Pagination) *Entry
	Patch(sig Signature, id int64, patch record.Patch) (*Entry, error)
	Invalidate(sig Signature)
	InvalidateAll() int
	InvalidateCollection(collection string) int
	InvalidateMatching(match func(Signature) bool) int
	Signatures() []Signature
}

// StoreOption configures a MemoryStore.
type StoreOption func(*MemoryStore)

// WithClock overrides the clock used to stamp FetchedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MemoryStore is the process-local Store implementation backed by sturdyc.
type MemoryStore struct {
	mu       sync.Mutex
	kv       *cacheinfra.SturdycStore[*Entry]
	registry *xsync.MapOf[string, Signature]
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewStore constructs the default snapshot store using the provided configuration.
func NewStore(cfg Config, opts ...StoreOption) (*MemoryStore, error) {
	kv, err := cacheinfra.NewSturdycStore[*Entry](cfg.toInternal())
	if err != nil {
		return nil, err
	}

	s := &MemoryStore{
		kv:       kv,
		registry: xsync.NewMapOf[string, Signature](),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the snapshot stored for sig.
func (s *MemoryStore) Get(sig Signature) (*Entry, bool) {
	entry, ok := s.kv.Get(sig.Key())
	if !ok || entry == nil {
		return nil, false
	}
	return entry, true
}

// Put replaces the snapshot for sig. The record slice is copied.
func (s *MemoryStore) Put(sig Signature, records []record.Record, pagination record.Pagination) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := make([]record.Record, len(records))
	copy(owned, records)

	entry := &Entry{
		Signature:   sig,
		Records:     owned,
		FetchedAt:   s.now(),
		Pagination:  pagination,
		Version:     s.nextVersion(sig),
		Fingerprint: Fingerprint(owned),
	}

	key := sig.Key()
	s.kv.Set(key, entry)
	s.registry.Store(key, sig)
	return entry
}

// Patch applies patch to a single record of the snapshot for sig, producing
// a new speculative snapshot. Other records are shared with the previous one.
func (s *MemoryStore) Patch(sig Signature, id int64, patch record.Patch) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.Get(sig)
	if !ok {
		return nil, syncerr.NotFound("no cached snapshot for signature", map[string]any{"signature": sig.Key()})
	}

	idx := record.Index(current.Records, id)
	if idx < 0 {
		return nil, syncerr.NotFound("record not present in cached snapshot", map[string]any{
			"signature": sig.Key(),
			"id":        id,
		})
	}

	records := make([]record.Record, len(current.Records))
	copy(records, current.Records)
	records[idx] = records[idx].With(patch)

	entry := &Entry{
		Signature:   sig,
		Records:     records,
		FetchedAt:   current.FetchedAt,
		Pagination:  current.Pagination,
		Version:     current.Version + 1,
		Fingerprint: Fingerprint(records),
		Speculative: true,
	}

	s.kv.Set(sig.Key(), entry)
	return entry, nil
}

// Invalidate removes the snapshot for sig.
func (s *MemoryStore) Invalidate(sig Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sig.Key()
	s.kv.Delete(key)
	s.registry.Delete(key)
}

// InvalidateAll removes every snapshot and returns how many were removed.
func (s *MemoryStore) InvalidateAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.kv.Len()
	for _, key := range s.kv.Keys() {
		s.kv.Delete(key)
	}
	s.registry.Clear()
	return removed
}

// InvalidateCollection removes every snapshot of collection, whatever its
// action, scope or filters, and returns how many were removed.
func (s *MemoryStore) InvalidateCollection(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := CollectionPrefix(collection)
	removed := s.kv.DeleteByPrefix(prefix)
	s.registry.Range(func(key string, _ Signature) bool {
		if strings.HasPrefix(key, prefix) {
			s.registry.Delete(key)
		}
		return true
	})
	return removed
}

// InvalidateMatching removes every snapshot whose signature satisfies match
// and returns how many were removed.
func (s *MemoryStore) InvalidateMatching(match func(Signature) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	s.registry.Range(func(key string, sig Signature) bool {
		if match(sig) {
			keys = append(keys, key)
		}
		return true
	})

	removed := 0
	for _, key := range keys {
		if _, ok := s.kv.Get(key); ok {
			removed++
		}
		s.kv.Delete(key)
		s.registry.Delete(key)
	}
	return removed
}

// Signatures returns the signatures currently cached, sorted by key.
func (s *MemoryStore) Signatures() []Signature {
	var out []Signature
	s.registry.Range(func(key string, sig Signature) bool {
		if _, ok := s.kv.Get(key); ok {
			out = append(out, sig)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// nextVersion must be called with s.mu held.
func (s *MemoryStore) nextVersion(sig Signature) uint64 {
	if current, ok := s.Get(sig); ok {
		return current.Version + 1
	}
	return 1
}

// Fingerprint digests records with xxhash over a msgpack encoding with sorted
// map keys, so equal contents always yield the same value.
func Fingerprint(records []record.Record) uint64 {
	h := xxhash.New()
	enc := msgpack.NewEncoder(h)
	enc.SetSortMapKeys(true)

	for _, r := range records {
		if err := enc.EncodeInt(r.ID); err != nil {
			return 0
		}
		if err := enc.Encode(r.Fields); err != nil {
			return 0
		}
	}
	return h.Sum64()
}
