package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-listsync/cache"
	"github.com/goliatone/go-listsync/fetcher"
	"github.com/goliatone/go-listsync/internal/logging"
	"github.com/goliatone/go-listsync/internal/metrics"
	"github.com/goliatone/go-listsync/syncerr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultCooldown is the minimum spacing between two manual refreshes of the
// same signature.
const DefaultCooldown = 30 * time.Second

// State is the lifecycle of a signature inside the controller.
type State int

const (
	// StateEmpty means no snapshot is cached and no fetch is running.
	StateEmpty State = iota
	// StateFetching means a fetch for the signature is in flight.
	StateFetching
	// StateReady means a snapshot is cached and nothing is in flight.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

// Subscriber is called with every new snapshot of a signature it subscribed to.
type Subscriber func(entry *cache.Entry)

// RefreshOutcome reports what a manual refresh request did.
type RefreshOutcome struct {
	// Fired is false when the request was swallowed by the cooldown.
	Fired bool

	// RetryIn is the remaining cooldown when Fired is false.
	RetryIn time.Duration

	// Entry is the snapshot after the request: the refreshed one when the
	// refresh fired and succeeded, the current one otherwise.
	Entry *cache.Entry
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Controller) { c.logger = logging.OrNop(logger) }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = recorder }
}

// WithClock overrides the clock used by the manual refresh cooldown.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCooldown overrides DefaultCooldown. Zero disables the cooldown.
func WithCooldown(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.cooldown = d
		}
	}
}

type subscription struct {
	id uint64
	fn Subscriber
}

// Controller decides when a cached snapshot can be served and when the
// backend must be asked again. It is the only writer of whole snapshots.
//
// For one signature at most one ordinary fetch and one forced refresh are in
// flight; concurrent callers attach to the running one. An ordinary caller
// arriving while a forced refresh runs joins the forced refresh. A forced
// refresh never joins an ordinary fetch and always wins over one issued before
// it, whichever completes last.
type Controller struct {
	store    cache.Store
	fetcher  fetcher.Fetcher
	group    singleflight.Group
	logger   *zap.SugaredLogger
	metrics  *metrics.Recorder
	now      func() time.Time
	cooldown time.Duration

	mu           sync.Mutex
	forcedIssued map[cache.Signature]uint64
	forcedLanded map[cache.Signature]uint64
	forcing      map[cache.Signature]int
	inflight     map[cache.Signature]int
	lastManual   map[cache.Signature]time.Time
	subscribers  map[cache.Signature][]subscription
	nextSubID    uint64
}

// New creates a Controller over store and f.
func New(store cache.Store, f fetcher.Fetcher, opts ...Option) *Controller {
	c := &Controller{
		store:        store,
		fetcher:      f,
		logger:       logging.Nop(),
		now:          time.Now,
		cooldown:     DefaultCooldown,
		forcedIssued: map[cache.Signature]uint64{},
		forcedLanded: map[cache.Signature]uint64{},
		forcing:      map[cache.Signature]int{},
		inflight:     map[cache.Signature]int{},
		lastManual:   map[cache.Signature]time.Time{},
		subscribers:  map[cache.Signature][]subscription{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureFresh returns a usable snapshot for sig.
//
// Without force, a cached non-empty snapshot is returned as is, however old.
// Otherwise the backend is queried; on success the snapshot is replaced and
// published, on failure any previous snapshot is left untouched and the error
// is returned.
func (c *Controller) EnsureFresh(ctx context.Context, sig cache.Signature, force bool) (*cache.Entry, error) {
	if !force {
		if entry, ok := c.store.Get(sig); ok && entry.Len() > 0 {
			c.metrics.CacheLookup(sig.Collection, true)
			return entry, nil
		}
		c.metrics.CacheLookup(sig.Collection, false)
	}

	// The shared fetch must not die with whichever caller started it; each
	// caller can still stop waiting through its own ctx.
	detached := context.WithoutCancel(ctx)

	// c.mu is held across DoChan: a running forced refresh cannot leave the
	// group before the join below is registered.
	c.mu.Lock()
	forced := force || c.forcing[sig] > 0
	flightKey := sig.Key()
	if forced {
		flightKey = "force" + cache.KeySeparator + flightKey
	}
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.fetch(detached, sig, forced)
	})
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cache.Entry), nil
	}
}

func (c *Controller) fetch(ctx context.Context, sig cache.Signature, force bool) (*cache.Entry, error) {
	c.mu.Lock()
	if force {
		c.forcedIssued[sig]++
		c.forcing[sig]++
	}
	issued := c.forcedIssued[sig]
	c.inflight[sig]++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.inflight[sig]--; c.inflight[sig] <= 0 {
			delete(c.inflight, sig)
		}
		if force {
			if c.forcing[sig]--; c.forcing[sig] <= 0 {
				delete(c.forcing, sig)
			}
		}
		c.mu.Unlock()
	}()

	start := time.Now()
	result, err := c.fetcher.FetchList(ctx, fetcher.RequestFor(sig))
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.Fetch(sig.Collection, resultLabel(err), elapsed)
		c.logger.Warnw("list fetch failed, keeping previous snapshot",
			"signature", sig.Key(),
			"forced", force,
			"error", err,
		)
		return nil, err
	}

	c.mu.Lock()
	if !force && c.forcedLanded[sig] > issued {
		// A forced refresh issued after this fetch already landed; its
		// result is authoritative.
		current, _ := c.store.Get(sig)
		c.mu.Unlock()
		c.metrics.Fetch(sig.Collection, "superseded", elapsed)
		c.logger.Debugw("discarding fetch superseded by forced refresh", "signature", sig.Key())
		if current == nil {
			return nil, syncerr.NotFound("snapshot evicted while fetching", map[string]any{"signature": sig.Key()})
		}
		return current, nil
	}

	previous, had := c.store.Get(sig)
	entry := c.store.Put(sig, result.Records, result.Pagination)
	if force {
		c.forcedLanded[sig] = issued
	}
	c.mu.Unlock()

	c.metrics.Fetch(sig.Collection, "success", elapsed)
	c.logger.Debugw("list fetched",
		"signature", sig.Key(),
		"forced", force,
		"records", entry.Len(),
		"version", entry.Version,
		"elapsed", elapsed,
	)

	if !had || previous.Fingerprint != entry.Fingerprint {
		c.Publish(entry)
	}
	return entry, nil
}

// ManualRefresh forces a refresh of sig unless one was fired within the
// cooldown window, in which case it does nothing. Firing restarts the window.
func (c *Controller) ManualRefresh(ctx context.Context, sig cache.Signature) (RefreshOutcome, error) {
	c.mu.Lock()
	now := c.now()
	if last, ok := c.lastManual[sig]; ok {
		if remaining := c.cooldown - now.Sub(last); remaining > 0 {
			c.mu.Unlock()
			c.metrics.ManualRefresh(sig.Collection, false)
			current, _ := c.store.Get(sig)
			return RefreshOutcome{RetryIn: remaining, Entry: current}, nil
		}
	}
	c.lastManual[sig] = now
	c.mu.Unlock()

	c.metrics.ManualRefresh(sig.Collection, true)
	entry, err := c.EnsureFresh(ctx, sig, true)
	if err != nil {
		current, _ := c.store.Get(sig)
		return RefreshOutcome{Fired: true, Entry: current}, err
	}
	return RefreshOutcome{Fired: true, Entry: entry}, nil
}

// CooldownRemaining returns how long manual refreshes of sig stay suppressed.
func (c *Controller) CooldownRemaining(sig cache.Signature) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastManual[sig]
	if !ok {
		return 0
	}
	if remaining := c.cooldown - c.now().Sub(last); remaining > 0 {
		return remaining
	}
	return 0
}

// State reports the lifecycle state of sig.
func (c *Controller) State(sig cache.Signature) State {
	c.mu.Lock()
	fetching := c.inflight[sig] > 0
	c.mu.Unlock()

	if fetching {
		return StateFetching
	}
	if _, ok := c.store.Get(sig); ok {
		return StateReady
	}
	return StateEmpty
}

// Snapshot returns the cached snapshot for sig without any network activity.
func (c *Controller) Snapshot(sig cache.Signature) (*cache.Entry, bool) {
	return c.store.Get(sig)
}

// Subscribe registers fn for new snapshots of sig. The returned function
// removes the subscription.
func (c *Controller) Subscribe(sig cache.Signature, fn Subscriber) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subscribers[sig] = append(c.subscribers[sig], subscription{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			subs := c.subscribers[sig]
			for i, s := range subs {
				if s.id == id {
					c.subscribers[sig] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(c.subscribers[sig]) == 0 {
				delete(c.subscribers, sig)
			}
		})
	}
}

// Publish hands entry to every subscriber of its signature, in subscription
// order. Callbacks run on the caller's goroutine.
func (c *Controller) Publish(entry *cache.Entry) {
	if entry == nil {
		return
	}

	c.mu.Lock()
	subs := append([]subscription(nil), c.subscribers[entry.Signature]...)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(entry)
	}
}

func resultLabel(err error) string {
	switch {
	case syncerr.IsNetwork(err):
		return "network_error"
	case syncerr.IsServer(err):
		return "server_error"
	default:
		return "error"
	}
}
