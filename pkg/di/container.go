package di

import (
	"time"

	"github.com/goliatone/go-listsync/cache"
	"github.com/goliatone/go-listsync/collection"
	"github.com/goliatone/go-listsync/config"
	"github.com/goliatone/go-listsync/fetcher"
	"github.com/goliatone/go-listsync/internal/logging"
	"github.com/goliatone/go-listsync/internal/metrics"
	"github.com/goliatone/go-listsync/mutation"
	"github.com/goliatone/go-listsync/screen"
	"github.com/goliatone/go-listsync/syncer"
	"github.com/goliatone/go-listsync/syncerr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option customizes how the container builds its components.
type Option func(*options)

type options struct {
	doer     fetcher.Doer
	notifier mutation.Notifier
	logger   *zap.SugaredLogger
	registry *prometheus.Registry
	now      func() time.Time
}

// WithDoer replaces the HTTP transport of the API client, e.g. with one that
// adds authentication headers.
func WithDoer(doer fetcher.Doer) Option {
	return func(o *options) { o.doer = doer }
}

// WithNotifier sets where mutation failure notices are sent.
func WithNotifier(n mutation.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithLogger uses logger instead of building one from the log section.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry registers the metrics with registry instead of a private one.
// It only has an effect when metrics are enabled.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithClock overrides the clock of the manual refresh cooldown.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Container wires the snapshot store, the API client, the sync controller
// and the mutation coordinator from a single configuration. All components
// are singletons shared by every screen the container hands out, so two
// screens over the same signature share one snapshot.
type Container struct {
	config      config.Config
	logger      *zap.SugaredLogger
	registry    *prometheus.Registry
	metrics     *metrics.Recorder
	store       *cache.MemoryStore
	client      *fetcher.Client
	controller  *syncer.Controller
	coordinator *mutation.Coordinator
}

// NewContainer validates cfg and builds every component.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = logging.New(cfg.Log.Level); err != nil {
			return nil, err
		}
	}

	c := &Container{config: cfg, logger: logger}

	if cfg.Metrics.Enabled {
		c.registry = o.registry
		if c.registry == nil {
			c.registry = prometheus.NewRegistry()
		}
		recorder, err := metrics.New(c.registry)
		if err != nil {
			return nil, err
		}
		c.metrics = recorder
	}

	store, err := cache.NewStore(cfg.CacheConfig())
	if err != nil {
		return nil, err
	}
	c.store = store

	clientOpts := []fetcher.Option{fetcher.WithLogger(logger.Named("fetcher"))}
	if o.doer != nil {
		clientOpts = append(clientOpts, fetcher.WithDoer(o.doer))
	}
	client, err := fetcher.NewClient(cfg.ClientConfig(collection.Endpoints()), clientOpts...)
	if err != nil {
		return nil, err
	}
	c.client = client

	c.controller = syncer.New(store, client,
		syncer.WithLogger(logger.Named("syncer")),
		syncer.WithMetrics(c.metrics),
		syncer.WithCooldown(cfg.Sync.RefreshCooldown),
		syncer.WithClock(o.now),
	)

	coordOpts := append(collection.PolicyOptions(),
		mutation.WithDetails(client, cache.NewDetailsCache()),
		mutation.WithNotifier(o.notifier),
		mutation.WithLogger(logger.Named("mutation")),
		mutation.WithMetrics(c.metrics),
	)
	c.coordinator = mutation.New(store, c.controller, client, coordOpts...)

	return c, nil
}

// Screen returns a new list screen for the named collection. An empty scope
// falls back to the configured default scope.
func (c *Container) Screen(name, scope string, opts ...screen.Option) (*screen.Screen, error) {
	def, ok := collection.Lookup(name)
	if !ok {
		return nil, syncerr.Validation("unknown collection", map[string]any{"collection": name})
	}
	if scope == "" {
		scope = c.config.Sync.Scope
	}

	all := append([]screen.Option{
		screen.WithLimit(c.config.Sync.BulkLimit),
		screen.WithPageSize(c.config.View.PageSize),
	}, opts...)
	return screen.New(def, scope, c.controller, c.coordinator, all...), nil
}

// Reset drops every cached list and details payload of the named collection,
// e.g. after records were imported outside the app. Screens refetch on their
// next Load.
func (c *Container) Reset(name string) (int, error) {
	def, ok := collection.Lookup(name)
	if !ok {
		return 0, syncerr.Validation("unknown collection", map[string]any{"collection": name})
	}
	return c.coordinator.Reset(def.Name), nil
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

// Logger returns the root logger.
func (c *Container) Logger() *zap.SugaredLogger {
	return c.logger
}

// Registry returns the metrics registry, nil when metrics are disabled.
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

// Store returns the shared snapshot store.
func (c *Container) Store() *cache.MemoryStore {
	return c.store
}

// Controller returns the shared sync controller.
func (c *Container) Controller() *syncer.Controller {
	return c.controller
}

// Coordinator returns the shared mutation coordinator.
func (c *Container) Coordinator() *mutation.Coordinator {
	return c.coordinator
}

// Close releases every cached snapshot and flushes the logger.
func (c *Container) Close() error {
	released := c.store.InvalidateAll()
	c.logger.Debugw("container closed", "snapshots", released)
	_ = c.logger.Sync()
	return nil
}
