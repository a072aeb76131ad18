package screen

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-listsync/cache"
	"github.com/goliatone/go-listsync/collection"
	"github.com/goliatone/go-listsync/fetcher"
	"github.com/goliatone/go-listsync/mutation"
	"github.com/goliatone/go-listsync/pkg/testsupport"
	"github.com/goliatone/go-listsync/record"
	"github.com/goliatone/go-listsync/syncer"
	"github.com/goliatone/go-listsync/syncerr"
	"github.com/goliatone/go-listsync/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	screen  *Screen
	backend *testsupport.FakeBackend
	store   *cache.MemoryStore
	clock   *clock
}

func newHarness(t *testing.T, name string, opts ...Option) *harness {
	t.Helper()

	store, err := cache.NewStore(cache.DefaultConfig())
	require.NoError(t, err)

	backend := testsupport.NewFakeBackend()
	clk := &clock{now: time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)}
	ctrl := syncer.New(store, backend, syncer.WithClock(clk.Now))

	coordOpts := append([]mutation.Option{mutation.WithDetails(backend, nil)}, collection.PolicyOptions()...)
	coord := mutation.New(store, ctrl, backend, coordOpts...)

	def, ok := collection.Lookup(name)
	require.True(t, ok)

	return &harness{
		screen:  New(def, "1", ctrl, coord, opts...),
		backend: backend,
		store:   store,
		clock:   clk,
	}
}

func seedRegistrations(b *testsupport.FakeBackend, n int) {
	statuses := []string{"pending", "consulted", "closed"}
	records := make([]record.Record, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, record.New(int64(i), map[string]any{
			"patient_name":    "Patient " + string(rune('A'+i-1)),
			"registration_no": i * 10,
			"status":          statuses[(i-1)%len(statuses)],
			"branch_id":       "1",
		}))
	}
	b.Seed(collection.Registrations, records...)
}

func TestLoad_ProjectsFirstPage(t *testing.T) {
	h := newHarness(t, collection.Registrations, WithPageSize(3))
	seedRegistrations(h.backend, 9)

	res, err := h.screen.Load(context.Background())
	require.NoError(t, err)

	// Every third record is closed and hidden by default.
	assert.Equal(t, 6, res.TotalCount)
	assert.Equal(t, 2, res.TotalPages)
	assert.Len(t, res.Items, 3)

	_, err = h.screen.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.backend.ListCalls())
}

func TestUpdate_NeverTouchesNetwork(t *testing.T) {
	h := newHarness(t, collection.Registrations, WithPageSize(3))
	seedRegistrations(h.backend, 9)
	_, err := h.screen.Load(context.Background())
	require.NoError(t, err)

	res := h.screen.Update(func(s view.FilterState) view.FilterState { return s.WithPage(2) })
	assert.Equal(t, 2, res.Page)

	res = h.screen.Update(func(s view.FilterState) view.FilterState { return s.WithStatus("closed") })
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 3, res.TotalCount)

	res = h.screen.Update(func(s view.FilterState) view.FilterState {
		return s.WithStatus("").WithSort("registration_no", view.Descending)
	})
	assert.Equal(t, int64(8), res.Items[0].ID)

	assert.Equal(t, 1, h.backend.ListCalls())
}

func TestLoad_FailureKeepsCachedPage(t *testing.T) {
	h := newHarness(t, collection.Registrations)
	seedRegistrations(h.backend, 4)
	_, err := h.screen.Load(context.Background())
	require.NoError(t, err)

	h.backend.FailNextList(syncerr.Server("error", "down for maintenance"))
	res, err := h.screen.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, res.TotalCount)
}

func TestManualRefresh_RespectsCooldown(t *testing.T) {
	h := newHarness(t, collection.Registrations)
	seedRegistrations(h.backend, 3)

	out, res, err := h.screen.ManualRefresh(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Fired)
	assert.Equal(t, 2, res.TotalCount)

	h.clock.Advance(5 * time.Second)
	out, res, err = h.screen.ManualRefresh(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Fired)
	assert.Equal(t, syncer.DefaultCooldown-5*time.Second, out.RetryIn)
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, 1, h.backend.ListCalls())
}

func TestSetStatus_ClosedRecordDisappearsImmediately(t *testing.T) {
	h := newHarness(t, collection.Registrations)
	seedRegistrations(h.backend, 3)
	_, err := h.screen.Load(context.Background())
	require.NoError(t, err)

	var pages []view.Result
	h.screen.Subscribe(func(r view.Result) { pages = append(pages, r) })

	_, err = h.screen.SetStatus(context.Background(), 1, "closed")
	require.NoError(t, err)

	require.NotEmpty(t, pages)
	assert.Equal(t, 1, pages[0].TotalCount)
	assert.Equal(t, 1, h.screen.Page().TotalCount)

	stored, _ := h.backend.Record(collection.Registrations, 1)
	assert.Equal(t, "closed", stored.Text("status"))
}

func TestSetStatus_UsesApprovalStatusForExpenses(t *testing.T) {
	h := newHarness(t, collection.Expenses)
	h.backend.Seed(collection.Expenses, record.New(7, map[string]any{"approval_status": "pending", "amount": "1200"}))
	_, err := h.screen.Load(context.Background())
	require.NoError(t, err)

	_, err = h.screen.SetStatus(context.Background(), 7, "approved")
	require.NoError(t, err)

	mutations := h.backend.Mutations()
	require.Len(t, mutations, 1)
	assert.Equal(t, "approved", mutations[0].Fields["approval_status"])
	assert.Equal(t, collection.ActionUpdateStatus, mutations[0].Action)
}

func TestRecordPayment_SplitMismatch(t *testing.T) {
	h := newHarness(t, collection.Billing)
	h.backend.Seed(collection.Billing, record.New(3, map[string]any{"status": "unpaid", "total_amount": "500"}))
	_, err := h.screen.Load(context.Background())
	require.NoError(t, err)

	_, err = h.screen.RecordPayment(context.Background(), 3, 500, []fetcher.PaymentSplit{
		{Method: "cash", Amount: 200},
		{Method: "card", Amount: 250},
	}, map[string]any{"status": "paid"})
	require.Error(t, err)
	assert.True(t, syncerr.IsValidation(err))
	assert.Zero(t, h.backend.MutationCalls())

	items := h.screen.Page().Items
	require.Len(t, items, 1)
	assert.Equal(t, "unpaid", items[0].Text("status"))
}

func TestDetails_CachedUntilMutation(t *testing.T) {
	h := newHarness(t, collection.Patients)
	h.backend.Seed(collection.Patients, record.New(11, map[string]any{"first_name": "Ana", "status": "active"}))
	_, err := h.screen.Load(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		d, err := h.screen.Details(context.Background(), 11)
		require.NoError(t, err)
		assert.Equal(t, "Ana", d["first_name"])
	}
	assert.Equal(t, 1, h.backend.DetailsCalls())

	_, err = h.screen.UpdateDetails(context.Background(), 11, map[string]any{"first_name": "Anna"})
	require.NoError(t, err)

	d, err := h.screen.Details(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "Anna", d["first_name"])
	assert.Equal(t, 2, h.backend.DetailsCalls())
}

func TestExport(t *testing.T) {
	h := newHarness(t, collection.Tickets, WithPageSize(1))
	h.backend.Seed(collection.Tickets,
		record.New(1, map[string]any{"ticket_no": "T-2", "subject": "Printer", "priority": "low", "reported_by": "Mae", "status": "open"}),
		record.New(2, map[string]any{"ticket_no": "T-1", "subject": "Network", "priority": "high", "reported_by": "Jun", "status": "open"}),
		record.New(3, map[string]any{"ticket_no": "T-3", "subject": "Old", "priority": "low", "reported_by": "Jun", "status": "closed"}),
	)
	_, err := h.screen.Load(context.Background())
	require.NoError(t, err)

	h.screen.Update(func(s view.FilterState) view.FilterState { return s.WithSort("subject", view.Ascending) })

	rows := h.screen.Export()
	assert.Equal(t, [][]string{
		{"ticket_no", "subject", "priority", "reported_by", "status"},
		{"T-1", "Network", "high", "Jun", "open"},
		{"T-2", "Printer", "low", "Mae", "open"},
	}, rows)
}

func TestSignatureUsesServerFilters(t *testing.T) {
	h := newHarness(t, collection.Billing, WithLimit(500), WithServerFilters(map[string]string{"date_from": "2024-05-01"}))

	sig := h.screen.Signature()
	assert.Equal(t, 500, sig.Limit)
	assert.Equal(t, "fetch_combined_overview", sig.Action)
	assert.Equal(t, map[string]string{"date_from": "2024-05-01"}, sig.Filters())

	_, err := h.screen.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", h.backend.ListRequests()[0].Filters["date_from"])
}
