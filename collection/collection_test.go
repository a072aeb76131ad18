package collection

import (
	"testing"

	"github.com/goliatone/go-listsync/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{Registrations, Billing, Patients, Expenses, Tickets} {
		d, ok := Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, name, d.Name)
		assert.NotEmpty(t, d.Endpoint)
		assert.NotEmpty(t, d.FetchAction)
		assert.NotEmpty(t, d.StatusField())
		assert.Equal(t, d.StatusField(), d.Policy.StatusField)
		assert.NotEmpty(t, d.Schema.DefaultExcluded)
	}

	d, ok := Lookup(" Billing ")
	require.True(t, ok)
	assert.Equal(t, "fetch_combined_overview", d.FetchAction)

	_, ok = Lookup("inventory")
	assert.False(t, ok)
}

func TestExpensesUseApprovalStatus(t *testing.T) {
	d, _ := Lookup(Expenses)
	assert.Equal(t, "approval_status", d.StatusField())
}

func TestAllIsSorted(t *testing.T) {
	var names []string
	for _, d := range All() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{Billing, Expenses, Patients, Registrations, Tickets}, names)
}

func TestSignature(t *testing.T) {
	d, _ := Lookup(Registrations)

	sig := d.Signature("3", 0, nil)
	assert.Equal(t, fetcher.DefaultBulkLimit, sig.Limit)
	assert.Equal(t, "fetch", sig.Action)
	assert.Equal(t, "3", sig.Scope)
	assert.Equal(t, d.Signature("3", fetcher.DefaultBulkLimit, map[string]string{}), sig)
}

func TestEndpointsAndPolicies(t *testing.T) {
	endpoints := Endpoints()
	assert.Len(t, endpoints, 5)
	assert.Equal(t, "registrations.php", endpoints[Registrations])
	assert.Len(t, PolicyOptions(), 5)
}

func TestRegistrationCloseInvalidatesCancelledList(t *testing.T) {
	d, _ := Lookup(Registrations)
	require.Len(t, d.Policy.Rules, 1)

	rule := d.Policy.Rules[0]
	assert.Contains(t, rule.OnStatuses, "closed")
	assert.Equal(t, []string{"fetch_cancelled"}, rule.Invalidate)
}
