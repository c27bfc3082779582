// Package mcp implements the MCP server host (spec §3, §6): JSON-RPC
// method dispatch over whatever transport.Transport is attached, capability
// advertisement, the tools/resources/prompts surface, and the two
// notification types (tools/list_changed, resources/updated).
//
// Grounded on the teacher's internal/mcp/server.go: the same Server shape
// (name/version/protocolVersion, an ordered tool map, createResponse/
// createErrorResponse with their Claude-Desktop null-id-to-zero
// compatibility shim, SendNotification), generalized from the teacher's
// flat tool-only surface to also serve the Resource Engine's odoo://
// resources and subscriptions, and to route tool failures through the
// isError=true envelope (spec §4.4/§7) instead of the teacher's JSON-RPC
// categorizeError mapping.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/resource"
	"github.com/odoo-mcp/bridge/internal/toolset"
	"github.com/odoo-mcp/bridge/internal/tools"
	"github.com/odoo-mcp/bridge/internal/transport"
)

// Request is a decoded JSON-RPC request or notification.
type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      json.RawMessage        `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Server dispatches JSON-RPC methods over an attached transport.Transport,
// serving a fixed tool list (handed to it once, already built and ordered
// by toolset.Framework.BuildAll) and, if present, a Resource Engine.
type Server struct {
	name            string
	version         string
	protocolVersion string

	mu        sync.RWMutex
	tools     map[string]toolset.Tool
	toolOrder []string

	resources *resource.Engine

	transport   transport.Transport
	ctx         context.Context
	cancel      context.CancelFunc
	initialized bool
}

// NewServer builds a Server with no tools or resources registered yet; call
// SetTools and (optionally) SetResources before Run.
func NewServer(name, version string) *Server {
	log.SetOutput(io.Discard) // never contaminate stdio framing with the standard logger

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		name:            name,
		version:         version,
		protocolVersion: constants.MCPProtocolVersion,
		tools:           make(map[string]toolset.Tool),
		toolOrder:       make([]string, 0),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// SetTools replaces the server's tool surface, preserving the order the
// Toolset Framework produced (spec §4.7: tools/list is deterministically
// ordered).
func (s *Server) SetTools(list []toolset.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = make(map[string]toolset.Tool, len(list))
	s.toolOrder = make([]string, 0, len(list))
	for _, t := range list {
		s.tools[t.Name] = t
		s.toolOrder = append(s.toolOrder, t.Name)
	}
}

// SetResources attaches the Resource Engine; nil means the bridge serves no
// resources (resources/list returns an empty array, matching the teacher's
// stub behavior for a backend with nothing to expose).
func (s *Server) SetResources(engine *resource.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = engine
}

// SetTransport attaches the transport the server reads from and writes
// notifications to.
func (s *Server) SetTransport(t transport.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
}

// Run starts the attached transport's read loop, blocking until ctx (passed
// to the transport) is cancelled or the transport itself exits.
func (s *Server) Run() error {
	s.mu.RLock()
	t := s.transport
	s.mu.RUnlock()
	if t == nil {
		return fmt.Errorf("mcp: no transport attached")
	}
	return t.Start(s.ctx)
}

// Stop cancels the server's root context, signalling every transport and
// subscription loop bound to it to exit.
func (s *Server) Stop() { s.cancel() }

// HandleMessage implements transport.Handler: decode one JSON-RPC message,
// dispatch it, and produce its response (nil for a notification).
func (s *Server) HandleMessage(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	if msg.JSONRPC != "2.0" {
		return s.errorResponse(msg.ID, -32600, "Invalid Request", "jsonrpc must be \"2.0\""), nil
	}

	req := &Request{JSONRPC: msg.JSONRPC, ID: msg.ID, Method: msg.Method}
	if len(msg.Params) > 0 {
		var params map[string]interface{}
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.errorResponse(msg.ID, -32700, "Parse error", err.Error()), nil
		}
		req.Params = params
	} else {
		req.Params = map[string]interface{}{}
	}

	if req.Method == "initialized" || req.Method == "notifications/initialized" {
		s.mu.Lock()
		s.initialized = true
		s.mu.Unlock()
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(msg.ID, req)
	case "ping":
		return s.response(msg.ID, map[string]interface{}{})
	case "tools/list":
		return s.handleToolsList(msg.ID)
	case "tools/call":
		return s.handleToolsCall(ctx, msg.ID, req)
	case "resources/list":
		return s.handleResourcesList(msg.ID)
	case "resources/read":
		return s.handleResourcesRead(ctx, msg.ID, req)
	case "resources/subscribe":
		return s.handleResourcesSubscribe(ctx, msg.ID, req)
	case "resources/unsubscribe":
		return s.handleResourcesUnsubscribe(ctx, msg.ID, req)
	case "prompts/list":
		return s.response(msg.ID, map[string]interface{}{"prompts": []interface{}{}})
	case "logging/setLevel":
		// Advertised with the logging capability; the bridge's stderr
		// logging has no per-client level, so the request is acknowledged
		// without effect.
		return s.response(msg.ID, map[string]interface{}{})
	default:
		return s.errorResponse(msg.ID, -32601, "Method not found", req.Method), nil
	}
}

// normalizeID converts a null or absent id to 0, the way the teacher's
// server does for Claude Desktop compatibility (some clients choke on a
// null response id).
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 || string(id) == "null" {
		return json.RawMessage("0")
	}
	return id
}

// response builds a success message.
func (s *Server) response(id json.RawMessage, result interface{}) (*transport.Message, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &transport.Message{JSONRPC: "2.0", ID: normalizeID(id), Result: resultBytes}, nil
}

func (s *Server) errorResponse(id json.RawMessage, code int, message, data string) *transport.Message {
	return &transport.Message{
		JSONRPC: "2.0",
		ID:      normalizeID(id),
		Error:   &transport.Error{Code: code, Message: message, Data: json.RawMessage(fmt.Sprintf("%q", data))},
	}
}

func (s *Server) handleInitialize(id json.RawMessage, req *Request) (*transport.Message, error) {
	s.mu.RLock()
	hasResources := s.resources != nil
	s.mu.RUnlock()

	result := map[string]interface{}{
		"protocolVersion": s.protocolVersion,
		"serverInfo":      map[string]interface{}{"name": s.name, "version": s.version},
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{"listChanged": true},
			"resources": map[string]interface{}{"subscribe": hasResources, "listChanged": hasResources},
			"prompts":   map[string]interface{}{"listChanged": true},
			"logging":   map[string]interface{}{},
		},
	}
	return s.response(id, result)
}

func (s *Server) handleToolsList(id json.RawMessage) (*transport.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]map[string]interface{}, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		t := s.tools[name]
		entry := map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		}
		if len(t.Annotations) > 0 {
			entry["annotations"] = t.Annotations
		}
		list = append(list, entry)
	}
	return s.response(id, map[string]interface{}{"tools": list})
}

func (s *Server) handleToolsCall(ctx context.Context, id json.RawMessage, req *Request) (*transport.Message, error) {
	name, _ := req.Params["name"].(string)
	if name == "" {
		return s.errorResponse(id, -32602, "Invalid params", "missing tool name"), nil
	}
	args, _ := req.Params["arguments"].(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	s.mu.RLock()
	tool, ok := s.tools[name]
	s.mu.RUnlock()
	if !ok {
		// A tool absent from the list (never registered, or withheld for the
		// active safety mode) is method-not-found, matching the behavior of
		// calling an unregistered JSON-RPC method; -32602 is reserved for a
		// known tool invoked with malformed params.
		return s.errorResponse(id, -32601, "Method not found", fmt.Sprintf("unknown tool %q", name)), nil
	}

	result, isError, err := tool.Handler(ctx, args)
	if err != nil {
		// A non-nil err here means the handler itself malfunctioned
		// (bad arguments, programmer error), not that the backend call
		// failed — that case already comes back as isError=true. This one
		// is a genuine JSON-RPC protocol error (spec §7: "tool failures
		// never surface as protocol errors; only malformed requests do").
		return s.errorResponse(id, -32602, "Invalid params", err.Error()), nil
	}

	text, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return s.errorResponse(id, -32603, "Internal error", marshalErr.Error()), nil
	}

	envelope := map[string]interface{}{
		"content": []map[string]interface{}{{"type": "text", "text": string(text)}},
	}
	if isError {
		envelope["isError"] = true
	}
	return s.response(id, envelope)
}

func (s *Server) handleResourcesList(id json.RawMessage) (*transport.Message, error) {
	s.mu.RLock()
	engine := s.resources
	s.mu.RUnlock()
	if engine == nil {
		return s.response(id, map[string]interface{}{"resources": []interface{}{}})
	}

	var resources, templates []resource.Descriptor
	for _, d := range engine.List() {
		if d.URI != "" {
			resources = append(resources, d)
		} else {
			templates = append(templates, d)
		}
	}
	return s.response(id, map[string]interface{}{
		"resources":         resources,
		"resourceTemplates": templates,
	})
}

func (s *Server) handleResourcesRead(ctx context.Context, id json.RawMessage, req *Request) (*transport.Message, error) {
	s.mu.RLock()
	engine := s.resources
	s.mu.RUnlock()
	if engine == nil {
		return s.errorResponse(id, -32601, "Method not found", "this server has no resources"), nil
	}

	uri, _ := req.Params["uri"].(string)
	if uri == "" {
		return s.errorResponse(id, -32602, "Invalid params", "missing uri"), nil
	}

	body, mimeType, err := engine.Read(ctx, uri)
	if err != nil {
		return s.errorResponse(id, -32602, "Invalid params", err.Error()), nil
	}

	return s.response(id, map[string]interface{}{
		"contents": []map[string]interface{}{{"uri": uri, "mimeType": mimeType, "text": body}},
	})
}

func (s *Server) handleResourcesSubscribe(ctx context.Context, id json.RawMessage, req *Request) (*transport.Message, error) {
	s.mu.RLock()
	engine := s.resources
	s.mu.RUnlock()
	if engine == nil {
		return s.errorResponse(id, -32601, "Method not found", "this server has no resources"), nil
	}

	uri, _ := req.Params["uri"].(string)
	if uri == "" {
		return s.errorResponse(id, -32602, "Invalid params", "missing uri"), nil
	}

	clientID := tools.SessionID(ctx)
	if err := engine.Subscribe(ctx, clientID, uri); err != nil {
		return s.errorResponse(id, -32602, "Invalid params", err.Error()), nil
	}
	return s.response(id, map[string]interface{}{})
}

func (s *Server) handleResourcesUnsubscribe(ctx context.Context, id json.RawMessage, req *Request) (*transport.Message, error) {
	s.mu.RLock()
	engine := s.resources
	s.mu.RUnlock()
	if engine == nil {
		return s.response(id, map[string]interface{}{})
	}
	uri, _ := req.Params["uri"].(string)
	engine.Unsubscribe(tools.SessionID(ctx), uri)
	return s.response(id, map[string]interface{}{})
}

// NotifyToolsChanged sends tools/list_changed. Nothing in the bridge calls
// it: toolsets are registered once at startup and never re-registered, so
// the tool list does not change while the server runs.
func (s *Server) NotifyToolsChanged() error {
	return s.notify("notifications/tools/list_changed", map[string]interface{}{})
}

// NotifyResourceUpdated sends resources/updated for uri, the Subscription
// Manager's poll-loop callback (spec §4.11).
func (s *Server) NotifyResourceUpdated(uri string) error {
	return s.notify("notifications/resources/updated", map[string]interface{}{"uri": uri})
}

func (s *Server) notify(method string, params interface{}) error {
	s.mu.RLock()
	t := s.transport
	s.mu.RUnlock()
	if t == nil {
		return fmt.Errorf("mcp: no transport attached")
	}
	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return t.WriteMessage(&transport.Message{JSONRPC: "2.0", Method: method, Params: paramsBytes})
}
