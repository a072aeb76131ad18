// Package collection describes the five front-desk lists: where they are
// fetched from, how they are searched and sorted, and which sibling lists a
// status change makes stale.
package collection

import (
	"sort"
	"strings"

	"github.com/goliatone/go-listsync/cache"
	"github.com/goliatone/go-listsync/fetcher"
	"github.com/goliatone/go-listsync/mutation"
	"github.com/goliatone/go-listsync/view"
)

// Collection names.
const (
	Registrations = "registrations"
	Billing       = "billing"
	Patients      = "patients"
	Expenses      = "expenses"
	Tickets       = "tickets"
)

// Mutation actions understood by the backend.
const (
	ActionUpdateStatus  = "update_status"
	ActionUpdateDetails = "update_details"
	ActionRecordPayment = "record_payment"
)

// Definition is everything the sync layer needs to know about one list.
type Definition struct {
	Name     string
	Endpoint string

	// FetchAction is the list action of the main screen.
	FetchAction string

	Schema view.Schema
	Policy mutation.Policy

	// ExportFields are the columns of the CSV/HTML export, in order.
	ExportFields []string
}

// Signature returns the signature of the main list of d for scope.
func (d Definition) Signature(scope string, limit int, filters map[string]string) cache.Signature {
	if limit <= 0 {
		limit = fetcher.DefaultBulkLimit
	}
	return cache.NewSignature(d.Name, d.FetchAction, scope, limit, filters)
}

// StatusField returns the field holding the mutable state.
func (d Definition) StatusField() string {
	return d.Schema.StatusField
}

var definitions = map[string]Definition{
	Registrations: {
		Name:        Registrations,
		Endpoint:    "registrations.php",
		FetchAction: "fetch",
		Schema: view.Schema{
			SearchFields:    []string{"patient_name", "registration_no", "referred_by", "contact_no"},
			StatusField:     "status",
			ReferrerField:   "referred_by",
			ConditionField:  "condition",
			DefaultExcluded: []string{"closed"},
			NumericSortKeys: []string{"id", "registration_no", "age"},
		},
		Policy: mutation.Policy{
			StatusField: "status",
			Rules: []mutation.InvalidationRule{{
				OnActions:  []string{ActionUpdateStatus},
				OnStatuses: []string{"closed", "cancelled"},
				Invalidate: []string{"fetch_cancelled"},
			}},
		},
		ExportFields: []string{"registration_no", "patient_name", "referred_by", "condition", "status", "created_at"},
	},
	Billing: {
		Name:        Billing,
		Endpoint:    "billing.php",
		FetchAction: "fetch_combined_overview",
		Schema: view.Schema{
			SearchFields:    []string{"patient_name", "invoice_no"},
			StatusField:     "status",
			ReferrerField:   "referred_by",
			DefaultExcluded: []string{"void"},
			NumericSortKeys: []string{"id", "invoice_no", "total_amount", "amount_paid", "balance"},
		},
		Policy: mutation.Policy{
			StatusField: "status",
			Rules: []mutation.InvalidationRule{
				{
					OnActions:  []string{ActionRecordPayment},
					Invalidate: []string{"fetch_payments"},
				},
				{
					OnActions:  []string{ActionUpdateStatus},
					OnStatuses: []string{"void"},
					Invalidate: []string{"fetch_voided"},
				},
			},
		},
		ExportFields: []string{"invoice_no", "patient_name", "total_amount", "amount_paid", "balance", "status"},
	},
	Patients: {
		Name:        Patients,
		Endpoint:    "patients.php",
		FetchAction: "fetch",
		Schema: view.Schema{
			SearchFields:    []string{"first_name", "last_name", "patient_no", "contact_no"},
			StatusField:     "status",
			ConditionField:  "condition",
			DefaultExcluded: []string{"archived"},
			NumericSortKeys: []string{"id", "patient_no", "age"},
		},
		Policy: mutation.Policy{
			StatusField: "status",
			Rules: []mutation.InvalidationRule{{
				OnActions:  []string{ActionUpdateStatus},
				OnStatuses: []string{"archived"},
				Invalidate: []string{"fetch_archived"},
			}},
		},
		ExportFields: []string{"patient_no", "last_name", "first_name", "contact_no", "status"},
	},
	Expenses: {
		Name:        Expenses,
		Endpoint:    "expenses.php",
		FetchAction: "fetch",
		Schema: view.Schema{
			SearchFields:    []string{"description", "category", "requested_by"},
			StatusField:     "approval_status",
			DefaultExcluded: []string{"rejected"},
			NumericSortKeys: []string{"id", "amount"},
		},
		Policy: mutation.Policy{
			StatusField: "approval_status",
			Rules: []mutation.InvalidationRule{{
				OnActions:  []string{ActionUpdateStatus},
				OnStatuses: []string{"approved", "rejected"},
				Invalidate: []string{"fetch_summary"},
			}},
		},
		ExportFields: []string{"expense_date", "category", "description", "amount", "requested_by", "approval_status"},
	},
	Tickets: {
		Name:        Tickets,
		Endpoint:    "tickets.php",
		FetchAction: "fetch",
		Schema: view.Schema{
			SearchFields:    []string{"subject", "ticket_no", "reported_by"},
			StatusField:     "status",
			ConditionField:  "priority",
			DefaultExcluded: []string{"closed"},
			NumericSortKeys: []string{"id", "ticket_no"},
		},
		Policy: mutation.Policy{
			StatusField: "status",
			Rules: []mutation.InvalidationRule{{
				OnActions:  []string{ActionUpdateStatus},
				OnStatuses: []string{"closed", "resolved"},
				Invalidate: []string{"fetch_closed"},
			}},
		},
		ExportFields: []string{"ticket_no", "subject", "priority", "reported_by", "status"},
	},
}

// Lookup returns the definition of name.
func Lookup(name string) (Definition, bool) {
	d, ok := definitions[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// All returns every definition sorted by name.
func All() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Endpoints maps every collection to its endpoint, as expected by
// fetcher.ClientConfig.
func Endpoints() map[string]string {
	out := make(map[string]string, len(definitions))
	for name, d := range definitions {
		out[name] = d.Endpoint
	}
	return out
}

// PolicyOptions returns one mutation.WithPolicy option per collection.
func PolicyOptions() []mutation.Option {
	opts := make([]mutation.Option, 0, len(definitions))
	for _, d := range All() {
		opts = append(opts, mutation.WithPolicy(d.Name, d.Policy))
	}
	return opts
}
