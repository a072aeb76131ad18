package testsupport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-listsync/fetcher"
	"github.com/goliatone/go-listsync/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeBackend_FetchListScopesAndLimits(t *testing.T) {
	b := NewFakeBackend()
	b.Seed("registrations",
		record.New(1, map[string]any{"branch_id": "1"}),
		record.New(2, map[string]any{"branch_id": "2"}),
		record.New(3, map[string]any{"branch_id": "1"}),
		record.New(4, nil),
	)

	res, err := b.FetchList(context.Background(), fetcher.ListRequest{Collection: "Registrations", Scope: "1", Limit: 2})
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	assert.Equal(t, int64(1), res.Records[0].ID)
	assert.Equal(t, int64(3), res.Records[1].ID)
	assert.Equal(t, 3, res.Pagination.Total)
	assert.Equal(t, 1, b.ListCalls())
}

func TestFakeBackend_QueuedFailures(t *testing.T) {
	b := NewFakeBackend()
	b.Seed("billing", record.New(1, map[string]any{"status": "unpaid"}))

	b.FailNextList(errors.New("down"))
	_, err := b.FetchList(context.Background(), fetcher.ListRequest{Collection: "billing"})
	assert.Error(t, err)
	_, err = b.FetchList(context.Background(), fetcher.ListRequest{Collection: "billing"})
	assert.NoError(t, err)

	b.FailNextMutation(errors.New("rejected"))
	_, err = b.Mutate(context.Background(), "billing", fetcher.MutationRequest{ID: 1, Fields: map[string]any{"status": "paid"}})
	assert.Error(t, err)

	stored, _ := b.Record("billing", 1)
	assert.Equal(t, "unpaid", stored.Text("status"))

	_, err = b.Mutate(context.Background(), "billing", fetcher.MutationRequest{ID: 1, Fields: map[string]any{"status": "paid"}})
	require.NoError(t, err)
	stored, _ = b.Record("billing", 1)
	assert.Equal(t, "paid", stored.Text("status"))
	assert.Equal(t, 2, b.MutationCalls())
}

func TestFakeBackend_HoldLists(t *testing.T) {
	b := NewFakeBackend()
	release := b.HoldLists()

	done := make(chan struct{})
	go func() {
		_, _ = b.FetchList(context.Background(), fetcher.ListRequest{Collection: "tickets"})
		close(done)
	}()

	<-b.Entered()
	select {
	case <-done:
		t.Fatal("list call should be held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	<-done
}

func TestFakeBackend_Details(t *testing.T) {
	b := NewFakeBackend()
	b.Seed("patients", record.New(9, map[string]any{"name": "Dee"}))

	details, err := b.Details(context.Background(), "patients", 9)
	require.NoError(t, err)
	assert.Equal(t, "Dee", details["name"])

	_, err = b.Details(context.Background(), "patients", 10)
	assert.Error(t, err)
	assert.Equal(t, 2, b.DetailsCalls())
}
