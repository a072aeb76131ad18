package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "listsync"

// Recorder exposes the counters of the sync layer. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	fetches        *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	mutations      *prometheus.CounterVec
	manualRefresh  *prometheus.CounterVec
	detailsLookups *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Bulk list fetches by collection and result.",
		}, []string{"collection", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of bulk list fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_lookups_total",
			Help:      "Snapshot lookups served from cache (hit) or requiring a fetch (miss).",
		}, []string{"collection", "result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Mutations by collection and outcome.",
		}, []string{"collection", "outcome"}),
		manualRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_refresh_total",
			Help:      "Manual refresh requests, fired or suppressed by the cooldown.",
		}, []string{"collection", "outcome"}),
		detailsLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "details_lookups_total",
			Help:      "Details cache lookups by result.",
		}, []string{"collection", "result"}),
	}

	for _, c := range r.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{r.fetches, r.fetchDuration, r.cacheLookups, r.mutations, r.manualRefresh, r.detailsLookups}
}

// Fetch records a completed bulk fetch.
func (r *Recorder) Fetch(collection, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(collection, result).Inc()
	r.fetchDuration.WithLabelValues(collection).Observe(elapsed.Seconds())
}

// CacheLookup records whether a snapshot was served from cache.
func (r *Recorder) CacheLookup(collection string, hit bool) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(collection, hitLabel(hit)).Inc()
}

// Mutation records the outcome of a mutation commit.
func (r *Recorder) Mutation(collection, outcome string) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(collection, outcome).Inc()
}

// ManualRefresh records a manual refresh request.
func (r *Recorder) ManualRefresh(collection string, fired bool) {
	if r == nil {
		return
	}
	outcome := "cooldown"
	if fired {
		outcome = "fired"
	}
	r.manualRefresh.WithLabelValues(collection, outcome).Inc()
}

// DetailsLookup records a details cache lookup.
func (r *Recorder) DetailsLookup(collection string, hit bool) {
	if r == nil {
		return
	}
	r.detailsLookups.WithLabelValues(collection, hitLabel(hit)).Inc()
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
