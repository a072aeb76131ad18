package fetcher

import (
	"context"

	"github.com/goliatone/go-listsync/cache"
	"github.com/goliatone/go-listsync/record"
)

// DefaultBulkLimit is the page-size ceiling requested by a bulk fetch. Every
// later filter, sort and page is computed locally over this superset, so
// collections larger than the ceiling are truncated by the backend.
const DefaultBulkLimit = 1000

// Fetcher issues bulk list requests.
type Fetcher interface {
	FetchList(ctx context.Context, req ListRequest) (ListResult, error)
}

// Mutator issues record mutations.
type Mutator interface {
	Mutate(ctx context.Context, collection string, req MutationRequest) (Ack, error)
}

// DetailsFetcher loads the full payload of a single record.
type DetailsFetcher interface {
	Details(ctx context.Context, collection string, id int64) (record.Details, error)
}

// ListRequest is a bulk fetch for one collection and scope.
type ListRequest struct {
	Collection string
	Action     string
	Scope      string
	Limit      int
	Page       int
	Filters    map[string]string
}

// RequestFor derives the bulk request described by sig. It always asks for
// the first page at the signature's ceiling.
func RequestFor(sig cache.Signature) ListRequest {
	limit := sig.Limit
	if limit <= 0 {
		limit = DefaultBulkLimit
	}
	return ListRequest{
		Collection: sig.Collection,
		Action:     sig.Action,
		Scope:      sig.Scope,
		Limit:      limit,
		Page:       1,
		Filters:    sig.Filters(),
	}
}

// ListResult is the full record set returned by a bulk fetch.
type ListResult struct {
	Records    []record.Record
	Pagination record.Pagination
}

// PaymentSplit is one part of a payment divided across methods.
type PaymentSplit struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
}

// MutationRequest describes a change to a single record.
type MutationRequest struct {
	Action string
	ID     int64
	Fields map[string]any

	// Total is the declared amount of a split payment. It is only sent when
	// Payments is not empty.
	Total    float64
	Payments []PaymentSplit
}

// Ack is the backend acknowledgement of a mutation.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
