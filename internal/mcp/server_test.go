package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/toolset"
	"github.com/odoo-mcp/bridge/internal/transport"
)

func rawID(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func echoTool() toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_search_read",
		Description: "search and read records",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			if args["fail"] == true {
				return map[string]interface{}{"error": true, "message": "boom"}, true, nil
			}
			return map[string]interface{}{"ok": true}, false, nil
		},
	}
}

func newTestServer() *Server {
	s := NewServer("odoo-mcp-bridge", "1.0.0")
	s.SetTools([]toolset.Tool{echoTool()})
	return s
}

func TestHandleInitialize(t *testing.T) {
	s := newTestServer()
	msg := &transport.Message{JSONRPC: "2.0", ID: rawID(1), Method: "initialize"}
	resp, err := s.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "odoo-mcp-bridge", result["serverInfo"].(map[string]interface{})["name"])
	caps := result["capabilities"].(map[string]interface{})
	assert.Equal(t, false, caps["resources"].(map[string]interface{})["subscribe"])
}

func TestHandleToolsList(t *testing.T) {
	s := newTestServer()
	msg := &transport.Message{JSONRPC: "2.0", ID: rawID(2), Method: "tools/list"}
	resp, err := s.HandleMessage(context.Background(), msg)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	tools := result["tools"].([]interface{})
	require.Len(t, tools, 1)
	assert.Equal(t, "odoo_crud_search_read", tools[0].(map[string]interface{})["name"])
}

func TestHandleToolsCallSuccess(t *testing.T) {
	s := newTestServer()
	params, _ := json.Marshal(map[string]interface{}{"name": "odoo_crud_search_read", "arguments": map[string]interface{}{}})
	msg := &transport.Message{JSONRPC: "2.0", ID: rawID(3), Method: "tools/call", Params: params}
	resp, err := s.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Nil(t, result["isError"])
}

func TestHandleToolsCallToolError(t *testing.T) {
	s := newTestServer()
	params, _ := json.Marshal(map[string]interface{}{"name": "odoo_crud_search_read", "arguments": map[string]interface{}{"fail": true}})
	msg := &transport.Message{JSONRPC: "2.0", ID: rawID(4), Method: "tools/call", Params: params}
	resp, err := s.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Nil(t, resp.Error) // a tool-level failure is NOT a JSON-RPC protocol error

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, true, result["isError"])
}

func TestHandleToolsCallUnknownTool(t *testing.T) {
	s := newTestServer()
	params, _ := json.Marshal(map[string]interface{}{"name": "does_not_exist"})
	msg := &transport.Message{JSONRPC: "2.0", ID: rawID(5), Method: "tools/call", Params: params}
	resp, err := s.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	// A tool withheld from the list (e.g. unlink in readonly mode) called by
	// name anyway is method-not-found, not invalid-params.
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestHandleUnknownMethod(t *testing.T) {
	s := newTestServer()
	msg := &transport.Message{JSONRPC: "2.0", ID: rawID(6), Method: "not/a/method"}
	resp, err := s.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestHandleInitializedNotificationProducesNoResponse(t *testing.T) {
	s := newTestServer()
	msg := &transport.Message{JSONRPC: "2.0", Method: "initialized"}
	resp, err := s.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestHandleResourcesListEmptyWithoutEngine(t *testing.T) {
	s := newTestServer()
	msg := &transport.Message{JSONRPC: "2.0", ID: rawID(7), Method: "resources/list"}
	resp, err := s.HandleMessage(context.Background(), msg)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Empty(t, result["resources"])
}

func TestNullIDNormalizedToZero(t *testing.T) {
	s := newTestServer()
	msg := &transport.Message{JSONRPC: "2.0", ID: json.RawMessage("null"), Method: "ping"}
	resp, err := s.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "0", string(resp.ID))
}

func TestRejectsNonJSONRPC2(t *testing.T) {
	s := newTestServer()
	msg := &transport.Message{JSONRPC: "1.0", ID: rawID(1), Method: "ping"}
	resp, err := s.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}
