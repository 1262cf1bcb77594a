package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/ccrelay/ccproxy/internal/canon"
	"github.com/ccrelay/ccproxy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaudeAdapter_BuildUpstreamRequest(t *testing.T) {
	a := &claudeAdapter{}
	ch := &config.UpstreamChannel{BaseURL: "https://api.anthropic.com"}

	creq := &canon.CanonicalRequest{
		Model:     "claude-3-opus",
		MaxTokens: 1024,
		System:    "be helpful",
		Messages: []canon.CanonicalMessage{
			{Role: canon.RoleUser, Content: []canon.ContentBlock{{Type: canon.BlockText, Text: "hi"}}},
		},
		Tools: []canon.Tool{
			{Name: "lookup", InputSchema: map[string]any{"type": "object", "$schema": "http://json-schema.org/draft-07/schema#"}},
		},
	}

	req, err := a.BuildUpstreamRequest(context.Background(), creq, ch, "sk-test", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://api.anthropic.com/v1/messages", req.URL.String())
	assert.Equal(t, "sk-test", req.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, req.Header.Get("anthropic-version"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)

	var wire claudeWireRequest
	require.NoError(t, json.Unmarshal(body, &wire))
	assert.Equal(t, "claude-3-opus", wire.Model)
	assert.Equal(t, "be helpful", wire.System)
	require.Len(t, wire.Tools, 1)

	schemaMap, ok := wire.Tools[0].InputSchema.(map[string]any)
	require.True(t, ok)
	_, hasSchemaField := schemaMap["$schema"]
	assert.False(t, hasSchemaField)
}

func TestClaudeAdapter_BuildUpstreamRequest_ForwardsClientHeadersExceptCredentials(t *testing.T) {
	a := &claudeAdapter{}
	ch := &config.UpstreamChannel{BaseURL: "https://api.anthropic.com"}
	creq := &canon.CanonicalRequest{Model: "claude-3-opus", MaxTokens: 100}

	clientHeaders := http.Header{}
	clientHeaders.Set("X-Request-Id", "abc-123")
	clientHeaders.Set("X-Api-Key", "client-supplied-key")
	clientHeaders.Set("Authorization", "Bearer client-token")

	req, err := a.BuildUpstreamRequest(context.Background(), creq, ch, "sk-upstream", clientHeaders)
	require.NoError(t, err)

	assert.Equal(t, "abc-123", req.Header.Get("X-Request-Id"))
	assert.Equal(t, "sk-upstream", req.Header.Get("x-api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestClaudeAdapter_TranslateNonStreamingIsIdentity(t *testing.T) {
	a := &claudeAdapter{}
	in := []byte(`{"id":"msg_1","type":"message"}`)

	out, err := a.TranslateNonStreaming(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestClaudeAdapter_StreamsRaw(t *testing.T) {
	a := &claudeAdapter{}
	assert.True(t, a.StreamsRaw())
}
