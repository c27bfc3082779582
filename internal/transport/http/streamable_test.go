package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/transport"
)

func echoHandler(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	return &transport.Message{JSONRPC: "2.0", ID: msg.ID, Result: json.RawMessage(`{"ok":true}`)}, nil
}

func TestStreamableHTTPPlainJSON(t *testing.T) {
	tr := NewStreamableHTTP("127.0.0.1:0", echoHandler, true)
	body, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "ping"})
	req := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	tr.handleMCP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Mcp-Session-Id"))

	var resp transport.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))
}

func TestStreamableHTTPRejectsNonPost(t *testing.T) {
	tr := NewStreamableHTTP("127.0.0.1:0", echoHandler, true)
	req := httptest.NewRequest("GET", "/mcp", nil)
	rec := httptest.NewRecorder()

	tr.handleMCP(rec, req)

	assert.Equal(t, 405, rec.Code)
}

func TestIsLocalhost(t *testing.T) {
	assert.True(t, isLocalhost("127.0.0.1:4321"))
	assert.True(t, isLocalhost("localhost:4321"))
	assert.False(t, isLocalhost("93.184.216.34:443"))
}
