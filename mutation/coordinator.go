package mutation

import (
	"context"
	"strings"

	"github.com/goliatone/go-listsync/cache"
	"github.com/goliatone/go-listsync/fetcher"
	"github.com/goliatone/go-listsync/internal/logging"
	"github.com/goliatone/go-listsync/internal/metrics"
	"github.com/goliatone/go-listsync/record"
	"github.com/goliatone/go-listsync/syncerr"
	"go.uber.org/zap"
)

// Refresher is the part of the sync controller the coordinator needs: a
// forced reload for rollbacks and publishing of patched snapshots.
type Refresher interface {
	EnsureFresh(ctx context.Context, sig cache.Signature, force bool) (*cache.Entry, error)
	Publish(entry *cache.Entry)
}

// Notice is the user-visible report of a failed mutation.
type Notice struct {
	Collection string
	RecordID   int64
	Action     string
	Message    string
	Err        error

	// RolledBack is true when the authoritative snapshot was reloaded.
	RolledBack bool
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// InvalidationRule names the sibling lists whose membership a committed
// mutation changes. A rule matches when the mutation action is in OnActions
// and the new status is in OnStatuses; an empty list matches anything.
type InvalidationRule struct {
	OnActions  []string
	OnStatuses []string

	// Invalidate holds the fetch actions of the sibling lists (same
	// collection and scope) to drop, e.g. "fetch_cancelled".
	Invalidate []string
}

func (r InvalidationRule) matches(action, status string) bool {
	return matchesAny(r.OnActions, action) && matchesAny(r.OnStatuses, status)
}

func matchesAny(candidates []string, value string) bool {
	if len(candidates) == 0 {
		return true
	}
	for _, c := range candidates {
		if strings.EqualFold(c, value) {
			return true
		}
	}
	return false
}

// Policy is the per collection mutation behaviour.
type Policy struct {
	StatusField string
	Rules       []InvalidationRule
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDetails enables Details and sets the cache it serves from. A nil cache
// gets a fresh one.
func WithDetails(f fetcher.DetailsFetcher, details *cache.DetailsCache) Option {
	return func(c *Coordinator) {
		c.detailsFetcher = f
		if details != nil {
			c.details = details
		}
	}
}

// WithPolicy registers the policy of collection.
func WithPolicy(collection string, p Policy) Option {
	return func(c *Coordinator) {
		c.policies[normalize(collection)] = p
	}
}

// WithNotifier sets where failure notices go.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Coordinator) { c.logger = logging.OrNop(logger) }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(c *Coordinator) { c.metrics = recorder }
}

// Coordinator applies optimistic patches to cached snapshots and reconciles
// them with the backend. It is the only component besides the sync
// controller that writes to the store, and it only ever patches single
// records.
type Coordinator struct {
	store          cache.Store
	refresher      Refresher
	mutator        fetcher.Mutator
	detailsFetcher fetcher.DetailsFetcher
	details        *cache.DetailsCache
	policies       map[string]Policy
	notifier       Notifier
	logger         *zap.SugaredLogger
	metrics        *metrics.Recorder
}

// New creates a Coordinator.
func New(store cache.Store, refresher Refresher, mutator fetcher.Mutator, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		mutator:   mutator,
		details:   cache.NewDetailsCache(),
		policies:  map[string]Policy{},
		notifier:  NotifierFunc(func(Notice) {}),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DetailsCache returns the details cache the coordinator invalidates.
func (c *Coordinator) DetailsCache() *cache.DetailsCache {
	return c.details
}

// ApplyOptimistic writes patch onto record id inside the full snapshot of sig
// and publishes the new snapshot, so every projection of it updates before
// the backend has answered.
func (c *Coordinator) ApplyOptimistic(sig cache.Signature, id int64, patch record.Patch) (*cache.Entry, error) {
	entry, err := c.store.Patch(sig, id, patch)
	if err != nil {
		return nil, err
	}
	c.refresher.Publish(entry)
	return entry, nil
}

// Commit validates req, sends it and reconciles the cache with the outcome.
//
// A request that fails validation is rejected without any network call. On
// a backend failure the snapshot of sig is reloaded to discard optimistic
// patches, a Notice is emitted and the original error is returned. On
// success the record's details and any sibling lists named by the
// collection's invalidation rules are dropped.
func (c *Coordinator) Commit(ctx context.Context, sig cache.Signature, req fetcher.MutationRequest) (fetcher.Ack, error) {
	if err := Validate(req); err != nil {
		c.metrics.Mutation(sig.Collection, "rejected")
		return fetcher.Ack{}, err
	}

	ack, err := c.mutator.Mutate(ctx, sig.Collection, req)
	if err != nil {
		c.metrics.Mutation(sig.Collection, "failed")
		c.rollback(ctx, sig, req, err)
		return fetcher.Ack{}, err
	}

	c.metrics.Mutation(sig.Collection, "success")
	c.invalidate(sig, req)
	return ack, nil
}

// Mutate validates req, applies req.Fields optimistically to the record and
// commits. A record missing from the cached snapshot is not an error; the
// request is still sent.
func (c *Coordinator) Mutate(ctx context.Context, sig cache.Signature, req fetcher.MutationRequest) (fetcher.Ack, error) {
	if err := Validate(req); err != nil {
		c.metrics.Mutation(sig.Collection, "rejected")
		return fetcher.Ack{}, err
	}

	if len(req.Fields) > 0 {
		if _, err := c.ApplyOptimistic(sig, req.ID, record.Patch(req.Fields)); err != nil {
			if !syncerr.IsNotFound(err) {
				return fetcher.Ack{}, err
			}
			c.logger.Debugw("record not cached, skipping optimistic patch",
				"signature", sig.Key(),
				"id", req.ID,
			)
		}
	}

	return c.Commit(ctx, sig, req)
}

// Details returns the full payload of a record, fetching it on first use.
func (c *Coordinator) Details(ctx context.Context, collection string, id int64) (record.Details, error) {
	if c.detailsFetcher == nil {
		return nil, syncerr.Validation("details are not configured", map[string]any{"collection": collection})
	}

	key := cache.NewDetailsKey(collection, id)
	if details, ok := c.details.Get(key); ok {
		c.metrics.DetailsLookup(key.Collection, true)
		return details, nil
	}
	c.metrics.DetailsLookup(key.Collection, false)

	return c.details.GetOrFetch(ctx, key, func(ctx context.Context) (record.Details, error) {
		return c.detailsFetcher.Details(ctx, collection, id)
	})
}

// Reset drops every cached list and details payload of collection, so the
// next render of any of its screens refetches. It returns how many list
// snapshots were removed.
func (c *Coordinator) Reset(collection string) int {
	lists := c.store.InvalidateCollection(collection)
	details := c.details.InvalidateCollection(collection)
	c.logger.Infow("collection cache reset",
		"collection", normalize(collection),
		"lists", lists,
		"details", details,
	)
	return lists
}

func (c *Coordinator) rollback(ctx context.Context, sig cache.Signature, req fetcher.MutationRequest, cause error) {
	// The reload has to happen even if the caller gave up waiting.
	_, err := c.refresher.EnsureFresh(context.WithoutCancel(ctx), sig, true)
	if err != nil {
		c.logger.Errorw("rollback reload failed, cache may still hold the optimistic patch",
			"signature", sig.Key(),
			"id", req.ID,
			"error", err,
		)
	} else {
		c.logger.Warnw("mutation failed, snapshot reloaded",
			"signature", sig.Key(),
			"id", req.ID,
			"action", req.Action,
			"error", cause,
		)
	}

	c.notifier.Notify(Notice{
		Collection: sig.Collection,
		RecordID:   req.ID,
		Action:     req.Action,
		Message:    syncerr.Message(cause),
		Err:        cause,
		RolledBack: err == nil,
	})
}

func (c *Coordinator) invalidate(sig cache.Signature, req fetcher.MutationRequest) {
	c.details.Invalidate(cache.NewDetailsKey(sig.Collection, req.ID))

	policy, ok := c.policies[sig.Collection]
	if !ok {
		return
	}

	var status string
	if policy.StatusField != "" {
		status = record.Record{ID: req.ID, Fields: req.Fields}.Text(policy.StatusField)
	}

	for _, rule := range policy.Rules {
		if !rule.matches(req.Action, status) {
			continue
		}
		for _, action := range rule.Invalidate {
			target := sig.WithAction(action)
			removed := c.store.InvalidateMatching(func(s cache.Signature) bool {
				return s.SameScope(sig) && s.Action == target.Action
			})
			c.logger.Debugw("invalidated dependent lists",
				"signature", sig.Key(),
				"action", target.Action,
				"removed", removed,
			)
		}
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
