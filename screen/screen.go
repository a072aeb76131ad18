// Package screen binds one collection and scope to the sync controller, the
// view projector and the mutation coordinator. It is what a list screen
// talks to.
package screen

import (
	"context"
	"sync"

	"github.com/goliatone/go-listsync/cache"
	"github.com/goliatone/go-listsync/collection"
	"github.com/goliatone/go-listsync/fetcher"
	"github.com/goliatone/go-listsync/record"
	"github.com/goliatone/go-listsync/syncer"
	"github.com/goliatone/go-listsync/view"
)

// Syncer is the subset of *syncer.Controller a screen uses.
type Syncer interface {
	EnsureFresh(ctx context.Context, sig cache.Signature, force bool) (*cache.Entry, error)
	ManualRefresh(ctx context.Context, sig cache.Signature) (syncer.RefreshOutcome, error)
	Snapshot(sig cache.Signature) (*cache.Entry, bool)
	Subscribe(sig cache.Signature, fn syncer.Subscriber) (unsubscribe func())
}

// Mutator is the subset of *mutation.Coordinator a screen uses.
type Mutator interface {
	Mutate(ctx context.Context, sig cache.Signature, req fetcher.MutationRequest) (fetcher.Ack, error)
	Details(ctx context.Context, collection string, id int64) (record.Details, error)
}

// Option configures a Screen.
type Option func(*Screen)

// WithLimit sets the bulk fetch ceiling.
func WithLimit(limit int) Option {
	return func(s *Screen) { s.limit = limit }
}

// WithServerFilters sets filters sent to the backend with the bulk fetch,
// e.g. a date range. They are part of the signature.
func WithServerFilters(filters map[string]string) Option {
	return func(s *Screen) { s.filters = filters }
}

// WithPageSize overrides the page size of the collection schema.
func WithPageSize(size int) Option {
	return func(s *Screen) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// Screen is the list view of one collection for one scope.
type Screen struct {
	def      collection.Definition
	ctrl     Syncer
	mutator  Mutator
	limit    int
	filters  map[string]string
	pageSize int

	sig       cache.Signature
	projector view.Projector

	mu    sync.Mutex
	state view.FilterState
}

// New creates a screen of def scoped to scope.
func New(def collection.Definition, scope string, s Syncer, m Mutator, opts ...Option) *Screen {
	sc := &Screen{
		def:     def,
		ctrl:    s,
		mutator: m,
		limit:   fetcher.DefaultBulkLimit,
		state:   view.NewFilterState(),
	}
	for _, opt := range opts {
		opt(sc)
	}

	schema := def.Schema
	if sc.pageSize > 0 {
		schema.PageSize = sc.pageSize
	}
	sc.projector = view.New(schema)
	sc.sig = def.Signature(scope, sc.limit, sc.filters)
	return sc
}

// Signature returns the signature backing the screen.
func (s *Screen) Signature() cache.Signature {
	return s.sig
}

// Definition returns the collection definition.
func (s *Screen) Definition() collection.Definition {
	return s.def
}

// Load makes sure a snapshot is present and returns the current page. On a
// failed fetch the page is projected from whatever snapshot is still cached,
// next to the error.
func (s *Screen) Load(ctx context.Context) (view.Result, error) {
	entry, err := s.ctrl.EnsureFresh(ctx, s.sig, false)
	if err != nil {
		return s.Page(), err
	}
	return s.project(entry), nil
}

// Reload forces a refresh, ignoring the manual refresh cooldown.
func (s *Screen) Reload(ctx context.Context) (view.Result, error) {
	entry, err := s.ctrl.EnsureFresh(ctx, s.sig, true)
	if err != nil {
		return s.Page(), err
	}
	return s.project(entry), nil
}

// ManualRefresh is the user's refresh button. Inside the cooldown window it
// does nothing and reports the remaining time.
func (s *Screen) ManualRefresh(ctx context.Context) (syncer.RefreshOutcome, view.Result, error) {
	out, err := s.ctrl.ManualRefresh(ctx, s.sig)
	if out.Entry != nil {
		return out, s.project(out.Entry), err
	}
	return out, s.Page(), err
}

// Page projects the cached snapshot with the current filter state. It never
// touches the network.
func (s *Screen) Page() view.Result {
	entry, _ := s.ctrl.Snapshot(s.sig)
	return s.project(entry)
}

// State returns the current filter state.
func (s *Screen) State() view.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update replaces the filter state with fn(state) and returns the new page.
func (s *Screen) Update(fn func(view.FilterState) view.FilterState) view.Result {
	s.mu.Lock()
	s.state = fn(s.state)
	s.mu.Unlock()
	return s.Page()
}

// Subscribe calls fn with the re-projected page every time the snapshot
// changes, including optimistic patches and rollbacks.
func (s *Screen) Subscribe(fn func(view.Result)) (unsubscribe func()) {
	return s.ctrl.Subscribe(s.sig, func(entry *cache.Entry) {
		fn(s.project(entry))
	})
}

// SetStatus changes the status of record id.
func (s *Screen) SetStatus(ctx context.Context, id int64, status string) (fetcher.Ack, error) {
	return s.mutator.Mutate(ctx, s.sig, fetcher.MutationRequest{
		Action: collection.ActionUpdateStatus,
		ID:     id,
		Fields: map[string]any{s.def.StatusField(): status},
	})
}

// UpdateDetails overwrites display fields of record id.
func (s *Screen) UpdateDetails(ctx context.Context, id int64, fields map[string]any) (fetcher.Ack, error) {
	return s.mutator.Mutate(ctx, s.sig, fetcher.MutationRequest{
		Action: collection.ActionUpdateDetails,
		ID:     id,
		Fields: fields,
	})
}

// RecordPayment records a payment of total split across methods. The splits
// must add up to total or nothing is sent.
func (s *Screen) RecordPayment(ctx context.Context, id int64, total float64, splits []fetcher.PaymentSplit, fields map[string]any) (fetcher.Ack, error) {
	return s.mutator.Mutate(ctx, s.sig, fetcher.MutationRequest{
		Action:   collection.ActionRecordPayment,
		ID:       id,
		Fields:   fields,
		Total:    total,
		Payments: splits,
	})
}

// Details returns the full payload of record id.
func (s *Screen) Details(ctx context.Context, id int64) (record.Details, error) {
	return s.mutator.Details(ctx, s.def.Name, id)
}

// Export returns the filtered and sorted view, all pages, as plain rows
// headed by the export field names.
func (s *Screen) Export() [][]string {
	entry, _ := s.ctrl.Snapshot(s.sig)
	var records []record.Record
	if entry != nil {
		records = entry.Records
	}

	filtered := s.projector.Filtered(records, s.State())
	header := append([]string(nil), s.def.ExportFields...)
	return append([][]string{header}, view.Rows(filtered, s.def.ExportFields)...)
}

func (s *Screen) project(entry *cache.Entry) view.Result {
	var records []record.Record
	if entry != nil {
		records = entry.Records
	}
	return s.projector.Project(records, s.State())
}
