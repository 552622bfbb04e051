package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		document string
		wantErr  string
	}{
		{
			name:     "minimal valid document",
			document: `{"nodes":[{"id":1,"name":"lookup","request_url":"http://example.test"}]}`,
		},
		{
			name:     "empty nodes array is valid",
			document: `{"nodes":[]}`,
		},
		{
			name: "full node",
			document: `{"nodes":[{
				"id": 1,
				"name": "charge",
				"condition": "amount > 0",
				"idempotency_key": "{{applicationId}}-charge",
				"request_url": "http://example.test/charge",
				"method": "POST",
				"request_body": {"amount": "{{amount}}"},
				"request_headers": {"X-Key": "abc"},
				"query_params": {"dry_run": "false"},
				"retry": 2
			}]}`,
		},
		{
			name:     "missing nodes",
			document: `{}`,
			wantErr:  "nodes",
		},
		{
			name:     "nodes not an array",
			document: `{"nodes":{}}`,
			wantErr:  "nodes",
		},
		{
			name:     "node without name",
			document: `{"nodes":[{"id":1,"request_url":"http://example.test"}]}`,
			wantErr:  "name",
		},
		{
			name:     "node without request_url",
			document: `{"nodes":[{"id":1,"name":"lookup"}]}`,
			wantErr:  "request_url",
		},
		{
			name:     "non-integer id",
			document: `{"nodes":[{"id":"one","name":"lookup","request_url":"http://example.test"}]}`,
			wantErr:  "id",
		},
		{
			name:     "negative retry",
			document: `{"nodes":[{"id":1,"name":"lookup","request_url":"http://example.test","retry":-1}]}`,
			wantErr:  "retry",
		},
		{
			name: "duplicate node ids",
			document: `{"nodes":[
				{"id":1,"name":"a","request_url":"http://x"},
				{"id":1,"name":"b","request_url":"http://y"}
			]}`,
			wantErr: "duplicate node id",
		},
		{
			name:     "blank condition",
			document: `{"nodes":[{"id":1,"name":"lookup","request_url":"http://example.test","condition":"  "}]}`,
			wantErr:  "blank condition",
		},
		{
			name:     "not JSON",
			document: `nodes: []`,
			wantErr:  "invalid workflow document",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateDocument(tt.document)

			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDocumentAppliesDefaults(t *testing.T) {
	t.Parallel()

	document, err := ParseDocument(`{"nodes":[{"id":1,"name":"lookup","request_url":"http://example.test","method":"post"}]}`)
	require.NoError(t, err)
	require.Len(t, document.Nodes, 1)

	node := document.Nodes[0]
	assert.Equal(t, "true", node.Condition)
	assert.Equal(t, "POST", node.Method)
	assert.Equal(t, 0, node.Retry)
	assert.False(t, node.HasIdempotencyKey())
}

func TestParseDocumentDefaultsAbsentMethod(t *testing.T) {
	t.Parallel()

	document, err := ParseDocument(`{"nodes":[{"id":1,"name":"lookup","request_url":"http://example.test"}]}`)
	require.NoError(t, err)
	assert.Equal(t, "GET", document.Nodes[0].Method)
}

func TestParseDocumentKeepsIdempotencyKey(t *testing.T) {
	t.Parallel()

	document, err := ParseDocument(`{"nodes":[{"id":1,"name":"charge","request_url":"http://x","idempotency_key":"k"}]}`)
	require.NoError(t, err)
	require.True(t, document.Nodes[0].HasIdempotencyKey())
	assert.Equal(t, "k", *document.Nodes[0].IdempotencyKey)
}
