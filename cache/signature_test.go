package cache

import (
	"strings"
	"testing"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

func TestSignature_Key(t *testing.T) {
	tests := []struct {
		name string
		sig  Signature
		want string
	}{
		{
			name: "no filters",
			sig:  NewSignature("registrations", "fetch", "3", 1000, nil),
			want: joinWithSeparator("registrations", "fetch", "3", "1000"),
		},
		{
			name: "normalized names",
			sig:  NewSignature("  Registrations ", "FETCH", " 3 ", 1000, nil),
			want: joinWithSeparator("registrations", "fetch", "3", "1000"),
		},
		{
			name: "sorted filters",
			sig:  NewSignature("billing", "fetch", "1", 500, map[string]string{"to": "2024-02-01", "From": "2024-01-01"}),
			want: joinWithSeparator("billing", "fetch", "1", "500", "from=2024-01-01&to=2024-02-01"),
		},
		{
			name: "empty filter values dropped",
			sig:  NewSignature("billing", "fetch", "1", 500, map[string]string{"status": "", "": "x"}),
			want: joinWithSeparator("billing", "fetch", "1", "500"),
		},
		{
			name: "separator characters escaped",
			sig:  NewSignature("tickets", "fetch", "1", 10, map[string]string{"q": "a&b=c"}),
			want: joinWithSeparator("tickets", "fetch", "1", "10", "q=a%26b%3Dc"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sig.Key(); got != tt.want {
				t.Errorf("Key() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignature_StructuralEquality(t *testing.T) {
	a := NewSignature("registrations", "fetch", "7", 1000, map[string]string{"from": "2024-01-01", "to": "2024-01-31"})
	b := NewSignature("REGISTRATIONS", "fetch", "7", 1000, map[string]string{"to": "2024-01-31", "from": "2024-01-01"})

	if a != b {
		t.Errorf("signatures built from the same parameters should be equal: %v vs %v", a, b)
	}

	seen := map[Signature]int{a: 1}
	if seen[b] != 1 {
		t.Error("equal signatures should address the same map slot")
	}

	c := NewSignature("registrations", "fetch", "7", 500, nil)
	if a == c {
		t.Error("signatures with different limits must differ")
	}
}

func TestSignature_Filters(t *testing.T) {
	sig := NewSignature("billing", "fetch", "1", 100, map[string]string{"From": " 2024-01-01 ", "to": "2024-02-01"})

	got := sig.Filters()
	if len(got) != 2 || got["from"] != "2024-01-01" || got["to"] != "2024-02-01" {
		t.Errorf("unexpected filters: %v", got)
	}

	got["from"] = "mutated"
	if sig.Filters()["from"] != "2024-01-01" {
		t.Error("Filters() must return a copy")
	}

	if len(NewSignature("billing", "fetch", "1", 100, nil).Filters()) != 0 {
		t.Error("expected no filters")
	}
}

func TestSignature_WithActionAndScope(t *testing.T) {
	sig := NewSignature("registrations", "fetch", "2", 1000, nil)
	cancelled := sig.WithAction("Fetch_Cancelled")

	if cancelled.Action != "fetch_cancelled" {
		t.Errorf("expected normalized action, got %q", cancelled.Action)
	}
	if sig.Action != "fetch" {
		t.Error("WithAction must not modify the receiver")
	}
	if !sig.SameScope(cancelled) {
		t.Error("sibling signature should share scope")
	}
	if sig.SameScope(NewSignature("registrations", "fetch", "3", 1000, nil)) {
		t.Error("different branch should not share scope")
	}
	if !strings.HasPrefix(sig.Key(), CollectionPrefix("Registrations")) {
		t.Errorf("key %q should start with the collection prefix", sig.Key())
	}
}

func TestSignature_IsZero(t *testing.T) {
	var zero Signature
	if !zero.IsZero() {
		t.Error("zero value should report IsZero")
	}
	if NewSignature("x", "fetch", "", 1, nil).IsZero() {
		t.Error("initialized signature should not report IsZero")
	}
}
