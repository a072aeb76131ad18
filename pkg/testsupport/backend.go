package testsupport

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-listsync/fetcher"
	"github.com/goliatone/go-listsync/record"
	"github.com/goliatone/go-listsync/syncerr"
)

// FakeBackend is an in-memory source of truth implementing fetcher.Fetcher,
// fetcher.Mutator and fetcher.DetailsFetcher. Failures can be queued per
// operation and list calls can be held open to exercise concurrent callers.
type FakeBackend struct {
	mu sync.Mutex

	records map[string][]record.Record

	listErrs   []error
	mutateErrs []error
	hold       chan struct{}
	entered    chan struct{}

	listRequests []fetcher.ListRequest
	mutations    []fetcher.MutationRequest
	detailsCalls int
}

var (
	_ fetcher.Fetcher        = (*FakeBackend)(nil)
	_ fetcher.Mutator        = (*FakeBackend)(nil)
	_ fetcher.DetailsFetcher = (*FakeBackend)(nil)
)

// NewFakeBackend returns an empty backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		records: map[string][]record.Record{},
		entered: make(chan struct{}, 64),
	}
}

// Seed replaces the records of collection.
func (b *FakeBackend) Seed(collection string, records ...record.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	owned := make([]record.Record, len(records))
	for i, r := range records {
		owned[i] = r.Clone()
	}
	b.records[normalize(collection)] = owned
}

// Set overwrites fields of a stored record, simulating a change made by
// another client.
func (b *FakeBackend) Set(collection string, id int64, patch record.Patch) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows := b.records[normalize(collection)]
	if i := record.Index(rows, id); i >= 0 {
		rows[i] = rows[i].With(patch)
		return true
	}
	return false
}

// Record returns the authoritative copy of a record.
func (b *FakeBackend) Record(collection string, id int64) (record.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows := b.records[normalize(collection)]
	if i := record.Index(rows, id); i >= 0 {
		return rows[i].Clone(), true
	}
	return record.Record{}, false
}

// FailNextList queues err for the next list call.
func (b *FakeBackend) FailNextList(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErrs = append(b.listErrs, err)
}

// FailNextMutation queues err for the next mutation call.
func (b *FakeBackend) FailNextMutation(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mutateErrs = append(b.mutateErrs, err)
}

// HoldLists makes list calls block until the returned release is called.
func (b *FakeBackend) HoldLists() (release func()) {
	b.mu.Lock()
	hold := make(chan struct{})
	b.hold = hold
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.hold == hold {
				b.hold = nil
			}
			b.mu.Unlock()
			close(hold)
		})
	}
}

// Entered receives one value every time a list call starts.
func (b *FakeBackend) Entered() <-chan struct{} {
	return b.entered
}

// ListCalls returns how many list requests were received.
func (b *FakeBackend) ListCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listRequests)
}

// ListRequests returns a copy of the received list requests.
func (b *FakeBackend) ListRequests() []fetcher.ListRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]fetcher.ListRequest(nil), b.listRequests...)
}

// MutationCalls returns how many mutation requests were received.
func (b *FakeBackend) MutationCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mutations)
}

// Mutations returns a copy of the received mutation requests.
func (b *FakeBackend) Mutations() []fetcher.MutationRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]fetcher.MutationRequest(nil), b.mutations...)
}

// DetailsCalls returns how many details requests were received.
func (b *FakeBackend) DetailsCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.detailsCalls
}

// FetchList implements fetcher.Fetcher. Records carrying a branch_id are
// filtered by the request scope; the result is truncated to the limit.
func (b *FakeBackend) FetchList(ctx context.Context, req fetcher.ListRequest) (fetcher.ListResult, error) {
	b.mu.Lock()
	b.listRequests = append(b.listRequests, req)
	hold := b.hold
	b.mu.Unlock()

	select {
	case b.entered <- struct{}{}:
	default:
	}

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return fetcher.ListResult{}, syncerr.Network(ctx.Err(), "list request cancelled")
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.listErrs) > 0 {
		err := b.listErrs[0]
		b.listErrs = b.listErrs[1:]
		return fetcher.ListResult{}, err
	}

	var out []record.Record
	for _, r := range b.records[normalize(req.Collection)] {
		if branch := r.Text("branch_id"); branch != "" && req.Scope != "" && branch != req.Scope {
			continue
		}
		out = append(out, r.Clone())
	}
	total := len(out)
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	if out == nil {
		out = []record.Record{}
	}

	return fetcher.ListResult{
		Records:    out,
		Pagination: record.Pagination{Total: total, Page: 1, Limit: req.Limit, TotalPages: 1},
	}, nil
}

// Mutate implements fetcher.Mutator by applying req.Fields to the stored record.
func (b *FakeBackend) Mutate(ctx context.Context, collection string, req fetcher.MutationRequest) (fetcher.Ack, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.mutations = append(b.mutations, req)

	if len(b.mutateErrs) > 0 {
		err := b.mutateErrs[0]
		b.mutateErrs = b.mutateErrs[1:]
		return fetcher.Ack{}, err
	}

	rows := b.records[normalize(collection)]
	i := record.Index(rows, req.ID)
	if i < 0 {
		return fetcher.Ack{}, syncerr.Server("error", "record not found")
	}
	rows[i] = rows[i].With(record.Patch(req.Fields))
	return fetcher.Ack{Status: fetcher.StatusSuccess, Message: "updated"}, nil
}

// Details implements fetcher.DetailsFetcher.
func (b *FakeBackend) Details(ctx context.Context, collection string, id int64) (record.Details, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.detailsCalls++
	rows := b.records[normalize(collection)]
	i := record.Index(rows, id)
	if i < 0 {
		return nil, syncerr.Server("error", "record not found")
	}

	details := record.Details{}
	for k, v := range rows[i].Fields {
		details[k] = v
	}
	details["id"] = id
	return details, nil
}

func normalize(collection string) string {
	return strings.ToLower(strings.TrimSpace(collection))
}
