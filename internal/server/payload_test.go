package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateBatchPayloadAccepts(t *testing.T) {
	payload := json.RawMessage(`{
		"items": [
			{"id": "proj/a", "data": {"title": "A", "status": "pending"}},
			{"id": "proj/b", "dependencies": ["proj/a"], "data": {"reason": "follow-up"}}
		]
	}`)
	require.NoError(t, ValidateBatchPayload(payload))
}

func TestValidateBatchPayloadRejects(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"missing items", `{}`},
		{"item without id", `{"items": [{"data": {"title": "A"}}]}`},
		{"empty id", `{"items": [{"id": ""}]}`},
		{"unknown item field", `{"items": [{"id": "a", "priority": 1}]}`},
		{"unknown data field", `{"items": [{"id": "a", "data": {"owner": "me"}}]}`},
		{"wrong dependency type", `{"items": [{"id": "a", "dependencies": [1]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateBatchPayload(json.RawMessage(tc.payload))
			require.Error(t, err)
			require.Contains(t, err.Error(), "batch payload validation failed")
		})
	}
}
