package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odoo-mcp/bridge/internal/classify"
	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/toolset"
	"github.com/odoo-mcp/bridge/internal/wire"
)

const (
	maxReadIDs     = 100
	maxNameGetIDs  = 200
	maxWriteIDs    = 100
	maxUnlinkIDs   = 50
	maxSearchLimit = 500
)

func schemaObject(properties map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// fieldsOf returns the model's known field metadata, or an empty map for a
// model the registry has never seen (execute/create against a model outside
// the static/dynamic catalog still works; it just skips normalization).
func (d *Deps) fieldsOf(model string) map[string]models.FieldInfo {
	if m, ok := d.Registry.Get(model); ok {
		return m.Fields
	}
	return nil
}

func (d *Deps) normalizeOpts() NormalizeOptions {
	return NormalizeOptions{StripHTML: d.Config.StripHTML}
}

// normalizeRecords runs NormalizeRecord over a raw []interface{} of
// record maps as returned by search_read/read.
func (d *Deps) normalizeRecords(model string, raw interface{}) []map[string]interface{} {
	list, _ := raw.([]interface{})
	fields := d.fieldsOf(model)
	opts := d.normalizeOpts()
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		rec, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, NormalizeRecord(rec, fields, opts))
	}
	return out
}

// BuildCRUDToolset registers the closed set of model-generic tools from
// spec §4.8. Grounded on the teacher's bridge.go per-entity CRUD handlers,
// generalized to one handler per operation dispatched against whatever
// model the caller names, since Odoo has no fixed entity-set list the way
// OData does.
func BuildCRUDToolset(deps *Deps) *toolset.Toolset {
	return &toolset.Toolset{
		Name: "crud",
		Metadata: models.ToolsetMetadata{
			Description: "Model-generic read/write/execute tools (spec §4.8).",
			Version:     "1.0.0",
			Tags:        []string{"core", "crud"},
		},
		Build: func(ctx context.Context) ([]toolset.Tool, error) {
			read := []toolset.Tool{
				searchReadTool(deps),
				readTool(deps),
				countTool(deps),
				fieldsGetTool(deps),
				nameGetTool(deps),
				defaultGetTool(deps),
				listModelsTool(deps),
			}

			// Tool visibility is a registration-time concern, not a runtime
			// reject (spec §4.5): a hidden tool is simply never built, so it
			// never reaches tools/list in the first place. readonly mode
			// withholds every write/unlink/execute tool; restricted mode
			// withholds only unlink (spec §4.5: unlink is always rejected in
			// restricted mode regardless of the write allowlist); full mode
			// registers everything, leaving per-model write-allowlist/
			// blocklist enforcement to the Safety Gate at call time.
			switch models.SafetyMode(deps.Config.SafetyMode) {
			case models.ModeReadOnly:
				return read, nil
			case models.ModeRestricted:
				return append(read, createTool(deps), writeTool(deps), executeTool(deps)), nil
			default:
				return append(read, createTool(deps), writeTool(deps), unlinkTool(deps), executeTool(deps)), nil
			}
		},
	}
}

func searchReadTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_search_read",
		Description: "Search a model with a domain filter and read the matching records in one call.",
		Annotations: constants.AnnotationsFor(constants.OpSearchRead),
		InputSchema: schemaObject(map[string]interface{}{
			"model":  map[string]interface{}{"type": "string"},
			"domain": map[string]interface{}{"type": "array", "description": "prefix-notation domain, e.g. [[\"name\",\"ilike\",\"acme\"]]"},
			"fields": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"limit":  map[string]interface{}{"type": "integer", "maximum": maxSearchLimit},
			"offset": map[string]interface{}{"type": "integer"},
			"order":  map[string]interface{}{"type": "string"},
		}, "model"),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			model, err := requireString(args, "model")
			if err != nil {
				return nil, false, err
			}
			domain, err := requireDomain(args, "domain")
			if err != nil {
				return classify.ToErrorResponse(err), true, nil
			}
			fields := optStringSlice(args, "fields")

			if err := d.Gate.Check(ctx, SessionID(ctx), model, constants.OpSearchRead, fields); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}

			limit := optInt(args, "limit", d.Config.DefaultSearchLimit)
			if limit <= 0 || limit > maxSearchLimit {
				limit = d.Config.DefaultSearchLimit
			}
			offset := optInt(args, "offset", 0)

			kwargs := map[string]interface{}{"limit": limit, "offset": offset}
			if len(fields) > 0 {
				kwargs["fields"] = fields
			}
			if order := optString(args, "order", ""); order != "" {
				kwargs["order"] = order
			}

			raw, err := d.Conn.Call(ctx, wire.Call{Model: model, Method: "search_read", Args: []interface{}{domain}, Kwargs: kwargs})
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(model, "search_read", err)), true, nil
			}

			records := d.normalizeRecords(model, raw)
			return map[string]interface{}{
				"records":  records,
				"has_more": len(records) == limit,
			}, false, nil
		},
	}
}

func readTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_read",
		Description: "Read specific records of a model by id.",
		Annotations: constants.AnnotationsFor(constants.OpRead),
		InputSchema: schemaObject(map[string]interface{}{
			"model":  map[string]interface{}{"type": "string"},
			"ids":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
			"fields": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		}, "model", "ids"),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			model, err := requireString(args, "model")
			if err != nil {
				return nil, false, err
			}
			ids, err := requireIDs(args, "ids")
			if err != nil {
				return nil, false, err
			}
			fields := optStringSlice(args, "fields")

			if err := d.Gate.Check(ctx, SessionID(ctx), model, constants.OpRead, fields); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}
			if len(ids) > maxReadIDs {
				return classify.ToErrorResponse(fmt.Errorf("validation: read accepts at most %d ids, got %d", maxReadIDs, len(ids))), true, nil
			}

			kwargs := map[string]interface{}{}
			if len(fields) > 0 {
				kwargs["fields"] = fields
			}
			raw, err := d.Conn.Call(ctx, wire.Call{Model: model, Method: "read", Args: []interface{}{toInterfaceSlice(ids)}, Kwargs: kwargs})
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(model, "read", err)), true, nil
			}

			records := d.normalizeRecords(model, raw)
			found := make(map[int]bool, len(records))
			for _, r := range records {
				if idNum, ok := asInt(r["id"]); ok {
					found[idNum] = true
				}
			}
			var missing []int
			for _, id := range ids {
				if !found[id] {
					missing = append(missing, id)
				}
			}
			return map[string]interface{}{"records": records, "missing_ids": missing}, false, nil
		},
	}
}

func countTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_count",
		Description: "Count records of a model matching a domain filter.",
		Annotations: constants.AnnotationsFor(constants.OpCount),
		InputSchema: schemaObject(map[string]interface{}{
			"model":  map[string]interface{}{"type": "string"},
			"domain": map[string]interface{}{"type": "array"},
		}, "model"),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			model, err := requireString(args, "model")
			if err != nil {
				return nil, false, err
			}
			domain, err := requireDomain(args, "domain")
			if err != nil {
				return classify.ToErrorResponse(err), true, nil
			}
			if err := d.Gate.Check(ctx, SessionID(ctx), model, constants.OpCount, nil); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}
			raw, err := d.Conn.Call(ctx, wire.Call{Model: model, Method: "search_count", Args: []interface{}{domain}})
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(model, "search_count", err)), true, nil
			}
			return map[string]interface{}{"count": raw}, false, nil
		},
	}
}

func fieldsGetTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_fields_get",
		Description: "Return field metadata for a model (type, required, relation, selection values).",
		Annotations: constants.AnnotationsFor(constants.OpFieldsGet),
		InputSchema: schemaObject(map[string]interface{}{
			"model":      map[string]interface{}{"type": "string"},
			"attributes": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		}, "model"),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			model, err := requireString(args, "model")
			if err != nil {
				return nil, false, err
			}
			if err := d.Gate.Check(ctx, SessionID(ctx), model, constants.OpFieldsGet, nil); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}

			kwargs := map[string]interface{}{}
			if attrs := optStringSlice(args, "attributes"); len(attrs) > 0 {
				kwargs["attributes"] = attrs
			}
			raw, err := d.Conn.Call(ctx, wire.Call{Model: model, Method: "fields_get", Args: []interface{}{}, Kwargs: kwargs})
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(model, "fields_get", err)), true, nil
			}
			fields, ok := raw.(map[string]interface{})
			if !ok {
				fields = map[string]interface{}{}
			}
			return map[string]interface{}{"fields": d.Gate.FilterFields(fields)}, false, nil
		},
	}
}

func nameGetTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_name_get",
		Description: "Return the display name for a set of record ids.",
		Annotations: constants.AnnotationsFor(constants.OpNameGet),
		InputSchema: schemaObject(map[string]interface{}{
			"model": map[string]interface{}{"type": "string"},
			"ids":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
		}, "model", "ids"),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			model, err := requireString(args, "model")
			if err != nil {
				return nil, false, err
			}
			ids, err := requireIDs(args, "ids")
			if err != nil {
				return nil, false, err
			}
			if err := d.Gate.Check(ctx, SessionID(ctx), model, constants.OpNameGet, nil); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}
			if len(ids) > maxNameGetIDs {
				return classify.ToErrorResponse(fmt.Errorf("validation: name_get accepts at most %d ids, got %d", maxNameGetIDs, len(ids))), true, nil
			}

			raw, err := d.Conn.Call(ctx, wire.Call{Model: model, Method: "name_get", Args: []interface{}{toInterfaceSlice(ids)}})
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(model, "name_get", err)), true, nil
			}
			tuples, _ := raw.([]interface{})
			out := make([]map[string]interface{}, 0, len(tuples))
			for _, item := range tuples {
				if pair, ok := item.([]interface{}); ok && len(pair) == 2 {
					out = append(out, map[string]interface{}{"id": pair[0], "name": pair[1]})
				}
			}
			return map[string]interface{}{"names": out}, false, nil
		},
	}
}

func defaultGetTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_default_get",
		Description: "Fetch the default values a new record of this model would receive.",
		Annotations: constants.AnnotationsFor(constants.OpDefaultGet),
		InputSchema: schemaObject(map[string]interface{}{
			"model":  map[string]interface{}{"type": "string"},
			"fields": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		}, "model", "fields"),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			model, err := requireString(args, "model")
			if err != nil {
				return nil, false, err
			}
			fields := optStringSlice(args, "fields")
			if len(fields) == 0 {
				return nil, false, fmt.Errorf("fields is required")
			}
			if err := d.Gate.Check(ctx, SessionID(ctx), model, constants.OpDefaultGet, fields); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}

			raw, err := d.Conn.Call(ctx, wire.Call{Model: model, Method: "default_get", Args: []interface{}{fields}})
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(model, "default_get", err)), true, nil
			}
			values, _ := raw.(map[string]interface{})
			return NormalizeRecord(values, d.fieldsOf(model), d.normalizeOpts()), false, nil
		},
	}
}

func listModelsTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_list_models",
		Description: "List known models, optionally filtered by a substring of their technical name.",
		Annotations: constants.AnnotationsFor(constants.OpListModels),
		InputSchema: schemaObject(map[string]interface{}{
			"filter": map[string]interface{}{"type": "string"},
		}),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			if err := d.Gate.Check(ctx, SessionID(ctx), "", constants.OpListModels, nil); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}
			filter := optString(args, "filter", "")
			names := d.Registry.ListModels(filter)
			return map[string]interface{}{"models": d.Gate.FilterModels(names)}, false, nil
		},
	}
}

func createTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_create",
		Description: "Create a new record. Requires restricted mode's write allowlist or full mode.",
		Annotations: constants.AnnotationsFor(constants.OpCreate),
		InputSchema: schemaObject(map[string]interface{}{
			"model":  map[string]interface{}{"type": "string"},
			"values": map[string]interface{}{"type": "object"},
		}, "model", "values"),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			model, err := requireString(args, "model")
			if err != nil {
				return nil, false, err
			}
			values := optMap(args, "values")

			if err := d.Gate.Check(ctx, SessionID(ctx), model, constants.OpCreate, fieldNames(values)); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}

			start := time.Now()
			raw, err := d.Conn.Call(ctx, wire.Call{Model: model, Method: "create", Args: []interface{}{values}})
			d.Gate.RecordCall(SessionID(ctx), "odoo_crud_create", model, constants.OpCreate, values, raw, err == nil, time.Since(start), d.uid())
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(model, "create", err)), true, nil
			}
			return map[string]interface{}{"id": raw}, false, nil
		},
	}
}

func writeTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_write",
		Description: "Update existing records by id.",
		Annotations: constants.AnnotationsFor(constants.OpWrite),
		InputSchema: schemaObject(map[string]interface{}{
			"model":  map[string]interface{}{"type": "string"},
			"ids":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
			"values": map[string]interface{}{"type": "object"},
		}, "model", "ids", "values"),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			model, err := requireString(args, "model")
			if err != nil {
				return nil, false, err
			}
			ids, err := requireIDs(args, "ids")
			if err != nil {
				return nil, false, err
			}
			values := optMap(args, "values")

			if err := d.Gate.Check(ctx, SessionID(ctx), model, constants.OpWrite, fieldNames(values)); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}
			if len(ids) > maxWriteIDs {
				return classify.ToErrorResponse(fmt.Errorf("validation: write accepts at most %d ids, got %d", maxWriteIDs, len(ids))), true, nil
			}
			if fields := d.fieldsOf(model); fields != nil {
				for name := range values {
					if fi, ok := fields[name]; ok && fi.ReadOnly {
						return classify.ToErrorResponse(fmt.Errorf("validation: field %q is readonly on %s", name, model)), true, nil
					}
				}
			}

			start := time.Now()
			raw, err := d.Conn.Call(ctx, wire.Call{Model: model, Method: "write", Args: []interface{}{toInterfaceSlice(ids), values}})
			d.Gate.RecordCall(SessionID(ctx), "odoo_crud_write", model, constants.OpWrite, values, ids, err == nil, time.Since(start), d.uid())
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(model, "write", err)), true, nil
			}
			return map[string]interface{}{"success": raw}, false, nil
		},
	}
}

func unlinkTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_unlink",
		Description: "Delete records by id. Only permitted in full safety mode.",
		Annotations: constants.AnnotationsFor(constants.OpUnlink),
		InputSchema: schemaObject(map[string]interface{}{
			"model": map[string]interface{}{"type": "string"},
			"ids":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
		}, "model", "ids"),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			model, err := requireString(args, "model")
			if err != nil {
				return nil, false, err
			}
			ids, err := requireIDs(args, "ids")
			if err != nil {
				return nil, false, err
			}

			if err := d.Gate.Check(ctx, SessionID(ctx), model, constants.OpUnlink, nil); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}
			if len(ids) > maxUnlinkIDs {
				return classify.ToErrorResponse(fmt.Errorf("validation: unlink accepts at most %d ids, got %d", maxUnlinkIDs, len(ids))), true, nil
			}

			start := time.Now()
			raw, err := d.Conn.Call(ctx, wire.Call{Model: model, Method: "unlink", Args: []interface{}{toInterfaceSlice(ids)}})
			d.Gate.RecordCall(SessionID(ctx), "odoo_crud_unlink", model, constants.OpUnlink, nil, ids, err == nil, time.Since(start), d.uid())
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(model, "unlink", err)), true, nil
			}
			return map[string]interface{}{"success": raw}, false, nil
		},
	}
}

func executeTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_crud_execute",
		Description: "Call an arbitrary public method on a model (model.method(args, kwargs)).",
		Annotations: constants.AnnotationsFor(constants.OpExecute),
		InputSchema: schemaObject(map[string]interface{}{
			"model":  map[string]interface{}{"type": "string"},
			"method": map[string]interface{}{"type": "string"},
			"args":   map[string]interface{}{"type": "array"},
			"kwargs": map[string]interface{}{"type": "object"},
		}, "model", "method"),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			model, err := requireString(args, "model")
			if err != nil {
				return nil, false, err
			}
			method, err := requireString(args, "method")
			if err != nil {
				return nil, false, err
			}
			if strings.HasPrefix(method, "_") {
				return classify.ToErrorResponse(fmt.Errorf("access: method %q is private and cannot be called via execute", method)), true, nil
			}

			if err := d.Gate.Check(ctx, SessionID(ctx), model, constants.OpExecute, []string{method}); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}

			var positional []interface{}
			if raw, ok := args["args"].([]interface{}); ok {
				positional = raw
			}
			kwargs := optMap(args, "kwargs")
			if !d.Registry.MethodAcceptsKwargs(model, method) {
				kwargs = nil
			}

			start := time.Now()
			raw, err := d.Conn.Call(ctx, wire.Call{Model: model, Method: method, Args: positional, Kwargs: kwargs})
			d.Gate.RecordCall(SessionID(ctx), "odoo_crud_execute", model, constants.OpExecute, map[string]interface{}{"method": method}, nil, err == nil, time.Since(start), d.uid())
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(model, method, err)), true, nil
			}
			return map[string]interface{}{"result": raw}, false, nil
		},
	}
}

func fieldNames(values map[string]interface{}) []string {
	out := make([]string, 0, len(values))
	for k := range values {
		out = append(out, k)
	}
	return out
}
