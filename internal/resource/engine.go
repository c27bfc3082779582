package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/odoo-mcp/bridge/internal/config"
	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/registry"
	"github.com/odoo-mcp/bridge/internal/safety"
	"github.com/odoo-mcp/bridge/internal/tools"
	"github.com/odoo-mcp/bridge/internal/wire"
)

const (
	defaultRecordListLimit = 20
	maxRecordListLimit     = 100
)

// Caller is the subset of connection.Manager the resource engine needs.
// Declared locally, mirroring internal/tools and internal/registry, so this
// package does not import internal/connection and create a cycle.
type Caller interface {
	Call(ctx context.Context, call wire.Call) (interface{}, error)
}

// VersionFunc returns the current probed backend version for the
// system/info resource; the Connection Manager supplies this.
type VersionFunc func() models.OdooVersion

// Deps bundles everything the engine needs to serve reads, constructed once
// at startup by the MCP server host.
type Deps struct {
	Conn     Caller
	Registry *registry.Registry
	Gate     *safety.Gate
	Config   *config.Config
	Report   *tools.ToolsetReport
	Version  VersionFunc
}

// Descriptor is one entry of resources/list: either a concrete resource or
// a templated one (model/{name}/fields, record/{name}/{id}), matching the
// MCP resource/resourceTemplate wire shapes.
type Descriptor struct {
	URI         string `json:"uri,omitempty"`
	URITemplate string `json:"uriTemplate,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// Engine serves the odoo:// resource scheme (spec §4.11) and owns the
// subscription table (spec §3's Subscription, at most 50 per client).
type Engine struct {
	deps *Deps
	subs *subscriptionTable
}

// New builds an Engine bound to deps.
func New(deps *Deps) *Engine {
	return &Engine{deps: deps, subs: newSubscriptionTable()}
}

// List returns every static resource and resource template this engine
// serves, for the resources/list response.
func (e *Engine) List() []Descriptor {
	ns := "odoo"
	return []Descriptor{
		{URI: ns + "://system/info", Name: "system-info", Description: "Connection state, probed backend version, registry build summary.", MimeType: "application/json"},
		{URI: ns + "://system/modules", Name: "system-modules", Description: "Installed backend module list.", MimeType: "application/json"},
		{URI: ns + "://system/toolsets", Name: "system-toolsets", Description: "Toolset Framework registration report.", MimeType: "application/json"},
		{URI: ns + "://config/safety", Name: "config-safety", Description: "Active safety policy (mode, blocklists, rate budgets).", MimeType: "application/json"},
		{URITemplate: ns + "://model/{name}/fields", Name: "model-fields", Description: "Field metadata for one model.", MimeType: "application/json"},
		{URITemplate: ns + "://model/{name}/methods", Name: "model-methods", Description: "Method metadata for one model.", MimeType: "application/json"},
		{URITemplate: ns + "://model/{name}/states", Name: "model-states", Description: "State (selection) field values for one model.", MimeType: "application/json"},
		{URITemplate: ns + "://record/{name}/{id}", Name: "record", Description: "A single record by id.", MimeType: "application/json"},
		{URITemplate: ns + "://record/{name}?domain=<json>&limit=<n>", Name: "record-search", Description: "Records matching a domain filter (limit capped at 100, default 20).", MimeType: "application/json"},
	}
}

// Read dispatches a parsed resource URI to its handler and renders the
// result as JSON. Every handler consults the Safety Gate for model/field
// blocklists and access rights before touching the backend (spec §4.11:
// "all resources are read-only; they consult the Safety Gate").
func (e *Engine) Read(ctx context.Context, raw string) (string, string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", "", err
	}

	var payload interface{}
	switch u.Category {
	case CategorySystem:
		payload, err = e.readSystem(ctx, u)
	case CategoryConfig:
		payload, err = e.readConfig(ctx, u)
	case CategoryModel:
		payload, err = e.readModel(ctx, u)
	case CategoryRecord:
		payload, err = e.readRecord(ctx, u)
	default:
		err = fmt.Errorf("resource: unhandled category %q", u.Category)
	}
	if err != nil {
		return "", "", err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("resource: marshal %q: %w", raw, err)
	}
	return string(data), "application/json", nil
}

func (e *Engine) readSystem(ctx context.Context, u URI) (interface{}, error) {
	if len(u.Segments) != 1 {
		return nil, fmt.Errorf("resource: system resource needs exactly one segment, got %q", u.Path())
	}
	switch u.Segments[0] {
	case "info":
		modelCount, fieldCount := e.deps.Registry.Summary()
		version := models.OdooVersion{}
		if e.deps.Version != nil {
			version = e.deps.Version()
		}
		return map[string]interface{}{
			"version":      version,
			"build_mode":   e.deps.Registry.BuildMode(),
			"model_count":  modelCount,
			"field_count":  fieldCount,
			"safety_mode":  e.deps.Config.SafetyMode,
		}, nil
	case "modules":
		if err := e.deps.Gate.Check(ctx, "resource", "ir.module.module", constants.OpSearchRead, nil); err != nil {
			return nil, err
		}
		raw, err := e.deps.Conn.Call(ctx, wire.Call{
			Model:  "ir.module.module",
			Method: "search_read",
			Args:   []interface{}{[]interface{}{[]interface{}{"state", "=", "installed"}}},
			Kwargs: map[string]interface{}{"fields": []interface{}{"name", "shortdesc", "latest_version"}},
		})
		if err != nil {
			return nil, wire.AsFault("ir.module.module", "search_read", err)
		}
		return map[string]interface{}{"modules": raw}, nil
	case "toolsets":
		if e.deps.Report == nil {
			return map[string]interface{}{"toolsets": []models.ToolsetMetadata{}}, nil
		}
		return map[string]interface{}{"toolsets": e.deps.Report.Get()}, nil
	default:
		return nil, fmt.Errorf("resource: unknown system resource %q", u.Segments[0])
	}
}

func (e *Engine) readConfig(ctx context.Context, u URI) (interface{}, error) {
	if len(u.Segments) != 1 || u.Segments[0] != "safety" {
		return nil, fmt.Errorf("resource: unknown config resource %q", u.Path())
	}
	return e.deps.Gate.PolicySummary(), nil
}

func (e *Engine) readModel(ctx context.Context, u URI) (interface{}, error) {
	if len(u.Segments) != 2 {
		return nil, fmt.Errorf("resource: model resource needs {name}/{fields|methods|states}, got %q", u.Path())
	}
	name, aspect := u.Segments[0], u.Segments[1]

	if err := e.deps.Gate.Check(ctx, "resource", name, constants.OpFieldsGet, nil); err != nil {
		return nil, err
	}

	model, ok := e.deps.Registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("resource: model %q is not in the registry", name)
	}

	switch aspect {
	case "fields":
		asAny := make(map[string]interface{}, len(model.Fields))
		for fname, fi := range model.Fields {
			asAny[fname] = fi
		}
		allowed := e.deps.Gate.FilterFields(asAny)
		filtered := make(map[string]models.FieldInfo, len(allowed))
		for fname := range allowed {
			filtered[fname] = model.Fields[fname]
		}
		return map[string]interface{}{"model": name, "fields": filtered}, nil
	case "methods":
		return map[string]interface{}{"model": name, "methods": model.Methods}, nil
	case "states":
		return map[string]interface{}{"model": name, "states": model.States}, nil
	default:
		return nil, fmt.Errorf("resource: unknown model aspect %q", aspect)
	}
}

func (e *Engine) readRecord(ctx context.Context, u URI) (interface{}, error) {
	if len(u.Segments) == 0 {
		return nil, fmt.Errorf("resource: record resource needs a model name")
	}
	name := u.Segments[0]

	if len(u.Segments) == 2 {
		id, err := strconv.Atoi(u.Segments[1])
		if err != nil {
			return nil, fmt.Errorf("resource: record id %q is not numeric", u.Segments[1])
		}
		if err := e.deps.Gate.Check(ctx, "resource", name, constants.OpRead, nil); err != nil {
			return nil, err
		}
		raw, err := e.deps.Conn.Call(ctx, wire.Call{Model: name, Method: "read", Args: []interface{}{[]interface{}{id}}, Kwargs: map[string]interface{}{}})
		if err != nil {
			return nil, wire.AsFault(name, "read", err)
		}
		records, _ := raw.([]interface{})
		if len(records) == 0 {
			return nil, fmt.Errorf("resource: record %s/%d not found", name, id)
		}
		return records[0], nil
	}

	if len(u.Segments) != 1 {
		return nil, fmt.Errorf("resource: malformed record uri %q", u.Path())
	}

	if err := e.deps.Gate.Check(ctx, "resource", name, constants.OpSearchRead, nil); err != nil {
		return nil, err
	}

	domain := []interface{}{}
	if raw := u.Query.Get("domain"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &domain); err != nil {
			return nil, fmt.Errorf("resource: invalid domain query param: %w", err)
		}
	}

	limit := defaultRecordListLimit
	if raw := u.Query.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit <= 0 {
		limit = defaultRecordListLimit
	} else if limit > maxRecordListLimit {
		limit = maxRecordListLimit
	}

	result, err := e.deps.Conn.Call(ctx, wire.Call{
		Model:  name,
		Method: "search_read",
		Args:   []interface{}{domain},
		Kwargs: map[string]interface{}{"limit": limit},
	})
	if err != nil {
		return nil, wire.AsFault(name, "search_read", err)
	}
	return map[string]interface{}{"model": name, "records": result, "limit": limit}, nil
}
