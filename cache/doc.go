// Package cache holds the snapshot store behind every front-desk list view.
//
// # Overview
//
// This package exports the pieces the sync controller and the mutation
// coordinator share:
//
//   - Signature: canonical, comparable identity of a bulk fetch
//   - Entry: an immutable snapshot of the records a fetch returned
//   - Store / MemoryStore: signature -> Entry map with replace, patch and invalidation
//   - DetailsCache: lazily populated (collection, id) -> full record payload
//
// The store performs no I/O and owns no timers. Whether a snapshot is good
// enough to serve is decided by the caller (see the syncer package); there is
// no age based expiry.
//
// # Basic Usage
//
//	store, err := cache.NewStore(cache.DefaultConfig())
//	sig := cache.NewSignature("registrations", "fetch", branchID, 1000, nil)
//
//	store.Put(sig, records, pagination)
//	entry, ok := store.Get(sig)
//
// # Signatures
//
// Signatures replace ad hoc key strings. Names are normalized and filters are
// sorted and escaped before they become part of the key, so
//
//	cache.NewSignature("billing", "fetch", "1", 500, map[string]string{"from": a, "to": b})
//	cache.NewSignature("BILLING", "fetch", "1", 500, map[string]string{"to": b, "from": a})
//
// are == and address the same entry.
//
// # Writes
//
// Put replaces a snapshot wholesale and is used after a successful fetch.
// Patch produces a new snapshot with one record changed and marks it
// Speculative until the next Put. Entries already handed out are never
// modified, so readers can keep projecting an old snapshot safely.
package cache
