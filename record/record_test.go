package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantID  int64
		wantErr bool
	}{
		{name: "numeric id", input: `{"id": 42, "status": "pending"}`, wantID: 42},
		{name: "string id", input: `{"id": " 7 ", "status": "pending"}`, wantID: 7},
		{name: "missing id", input: `{"status": "pending"}`, wantErr: true},
		{name: "fractional id", input: `{"id": 1.5}`, wantErr: true},
		{name: "non numeric id", input: `{"id": "abc"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Record
			err := json.Unmarshal([]byte(tt.input), &r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, r.ID)
		})
	}
}

func TestRecord_TextKeepsNumberFormatting(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"amount":1500.50,"count":3,"paid":true,"note":null}`), &r))

	assert.Equal(t, "1500.50", r.Text("amount"))
	assert.Equal(t, "3", r.Text("count"))
	assert.Equal(t, "true", r.Text("paid"))
	assert.Equal(t, "", r.Text("note"))
	assert.Equal(t, "", r.Text("missing"))
	assert.Equal(t, "1", r.Text(IDField))
}

func TestRecord_WithDoesNotMutateReceiver(t *testing.T) {
	original := New(5, map[string]any{"status": "pending", "name": "Ann"})

	patched := original.With(Patch{"status": "consulted", IDField: int64(99)})

	assert.Equal(t, "pending", original.Text("status"))
	assert.Equal(t, "consulted", patched.Text("status"))
	assert.Equal(t, int64(5), patched.ID, "id must not be patchable")
	assert.Equal(t, "Ann", patched.Text("name"))
}

func TestRecord_MarshalRoundTripKeepsID(t *testing.T) {
	r := New(12, map[string]any{"name": "Ben"})

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(12), decoded.ID)
	assert.Equal(t, "Ben", decoded.Text("name"))
}

func TestIndex(t *testing.T) {
	records := []Record{New(1, nil), New(2, nil), New(3, nil)}

	assert.Equal(t, 1, Index(records, 2))
	assert.Equal(t, -1, Index(records, 9))
	assert.Equal(t, -1, Index(nil, 1))
}
