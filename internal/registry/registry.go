// Package registry implements the Model Registry (spec §4.6): the merged
// view of every model the bridge can operate on, built from a static
// catalog and (optionally) live introspection against the backend's
// ir.model/ir.model.fields tables.
//
// Dynamic introspection is bounded by a semaphore (golang.org/x/sync/semaphore,
// the same dependency the giantswarm-muster and jordigilh-kubernaut repos
// pull in for their own worker concurrency caps) and an overall wall-clock
// budget, following the teacher's GetMetadata-with-fallback idiom in
// internal/client/client.go: if introspection cannot complete within budget,
// the registry falls back to whatever it already has (the static catalog),
// rather than blocking startup indefinitely.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/wire"
)

// Caller is the subset of connection.Manager the registry needs: one RPC
// dispatch. Declared locally so this package does not import connection and
// create a cycle; connection.Manager satisfies it as-is.
type Caller interface {
	Call(ctx context.Context, call wire.Call) (interface{}, error)
}

// Registry holds the merged model metadata and an existence cache so
// repeated "does model X exist" checks (e.g. from deep search, spec §4.9)
// don't re-hit the backend. Build provenance (static/dynamic/merged) is
// tracked at the registry level, not per model, matching spec §3's
// Registry{build_mode, build_timestamp} shape.
type Registry struct {
	mu         sync.RWMutex
	models     map[string]*models.ModelInfo
	existCache map[string]bool
	buildMode  models.BuildMode
}

// New builds a Registry seeded with the static catalog; call Refresh to
// merge in dynamic introspection.
func New(staticModels []string) *Registry {
	r := &Registry{
		models:     make(map[string]*models.ModelInfo, len(staticModels)),
		existCache: make(map[string]bool),
		buildMode:  models.BuildStatic,
	}
	for _, name := range staticModels {
		r.models[name] = &models.ModelInfo{Model: name, Fields: map[string]models.FieldInfo{}, Methods: seedMethods(name)}
	}
	return r
}

// seedMethods returns a fresh copy of constants.DefaultMethodCatalog's entry
// for model, or an empty map when the catalog has nothing for it.
func seedMethods(model string) map[string]models.MethodInfo {
	cat, ok := constants.DefaultMethodCatalog[model]
	out := make(map[string]models.MethodInfo, len(cat))
	if !ok {
		return out
	}
	for k, v := range cat {
		out[k] = v
	}
	return out
}

// NewFromCatalog builds a Registry already seeded from a decoded static
// catalog (spec §4.6's "Static: load a previously generated JSON file" build
// path), as produced by LoadStatic. Call Refresh as usual to merge in live
// introspection on top of it.
func NewFromCatalog(catalog map[string]*models.ModelInfo) *Registry {
	r := &Registry{
		models:     make(map[string]*models.ModelInfo, len(catalog)),
		existCache: make(map[string]bool),
		buildMode:  models.BuildStatic,
	}
	for name, m := range catalog {
		r.models[name] = m
	}
	return r
}

// LoadStatic reads a previously generated static model catalog from a JSON
// file: a {"model.technical.name": ModelInfo, ...} object, the same shape
// Registry.Models itself marshals to. This is the build path spec §4.6
// calls "load a previously generated JSON file", for deployments that want
// to ship a richer offline-generated catalog instead of the small built-in
// default list.
func LoadStatic(path string) (map[string]*models.ModelInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read static catalog %s: %w", path, err)
	}
	var catalog map[string]*models.ModelInfo
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("registry: decode static catalog %s: %w", path, err)
	}
	for name, m := range catalog {
		if m.Model == "" {
			m.Model = name
		}
		if m.Fields == nil {
			m.Fields = map[string]models.FieldInfo{}
		}
		if m.Methods == nil {
			m.Methods = map[string]models.MethodInfo{}
		}
	}
	return catalog, nil
}

// BuildMode reports how the registry was last constructed.
func (r *Registry) BuildMode() models.BuildMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buildMode
}

// Summary reports the registry's gross shape for the system/info resource
// (spec §3's Registry{model_count, field_count} fields).
func (r *Registry) Summary() (modelCount, fieldCount int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modelCount = len(r.models)
	for _, m := range r.models {
		fieldCount += len(m.Fields)
	}
	return modelCount, fieldCount
}

// Get returns the merged ModelInfo for name, or false if it is unknown.
func (r *Registry) Get(name string) (*models.ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Exists reports whether name is a known model, independent of whether its
// fields have been introspected yet. It is a pure lookup; the backend
// existence probe for a registry miss (spec §4.6) is ModelExists, which
// takes a live Caller.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[name]
	return ok
}

// List returns every known model name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	return out
}

// ListModels returns every known model name containing substr (case
// sensitive, matching Odoo's own technical names), or every model when
// substr is empty (spec §4.6 query surface).
func (r *Registry) ListModels(substr string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		if substr == "" || strings.Contains(name, substr) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// GetField returns one field's metadata, or false if model or field is
// unknown.
func (r *Registry) GetField(model, field string) (models.FieldInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	if !ok {
		return models.FieldInfo{}, false
	}
	f, ok := m.Fields[field]
	return f, ok
}

// GetMethod returns one method's metadata, or false if model or method is
// unknown.
func (r *Registry) GetMethod(model, method string) (models.MethodInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	if !ok {
		return models.MethodInfo{}, false
	}
	mi, ok := m.Methods[method]
	return mi, ok
}

// RequiredFields returns the names of model's required fields.
func (r *Registry) RequiredFields(model string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	if !ok {
		return nil
	}
	var out []string
	for name, f := range m.Fields {
		if f.Required {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// StateField returns the name of model's state-like field ("state" by
// Odoo convention) if it carries a selection type, and whether one exists.
func (r *Registry) StateField(model string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	if !ok {
		return "", false
	}
	if f, ok := m.Fields["state"]; ok && f.Type == "selection" {
		return "state", true
	}
	return "", false
}

// RelationalFields returns the names of model's many2one/one2many/many2many
// fields.
func (r *Registry) RelationalFields(model string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	if !ok {
		return nil
	}
	var out []string
	for name, f := range m.Fields {
		switch f.Type {
		case "many2one", "one2many", "many2many":
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// MethodAcceptsKwargs reports whether method accepts kwargs, consulting the
// global NO_KWARGS_METHODS set first (spec §4.6/§4.8: these are always
// called positionally regardless of what the registry otherwise knows).
func (r *Registry) MethodAcceptsKwargs(model, method string) bool {
	if models.NoKwargsMethods[method] {
		return false
	}
	mi, ok := r.GetMethod(model, method)
	if !ok {
		return true
	}
	return mi.AcceptsKwargs
}

// ModelExists reports whether model is known, checking the registry and
// existence cache first and falling back to a cheap backend count
// (limit=0) on a cache miss; the outcome (positive or negative) is cached
// for the connection's lifetime (spec §4.6). The registry never
// auto-refreshes from this call.
func (r *Registry) ModelExists(ctx context.Context, caller Caller, model string) bool {
	r.mu.RLock()
	if _, ok := r.models[model]; ok {
		r.mu.RUnlock()
		return true
	}
	if cached, ok := r.existCache[model]; ok {
		r.mu.RUnlock()
		return cached
	}
	r.mu.RUnlock()

	_, err := caller.Call(ctx, wire.Call{
		Model:  model,
		Method: "search_count",
		Args:   []interface{}{[]interface{}{}},
		Kwargs: map[string]interface{}{},
	})
	exists := err == nil

	r.mu.Lock()
	r.existCache[model] = exists
	r.mu.Unlock()
	return exists
}

// mergeFields implements spec §4.6's field merge rule: dynamic field
// metadata overrides static entries field-by-field, but a field present
// only in the static catalog (because dynamic introspection of it failed or
// was skipped) is kept rather than dropped.
func mergeFields(static, dynamic map[string]models.FieldInfo) map[string]models.FieldInfo {
	merged := make(map[string]models.FieldInfo, len(static)+len(dynamic))
	for k, v := range static {
		merged[k] = v
	}
	for k, v := range dynamic {
		merged[k] = v
	}
	return merged
}

// mergeMethods implements spec §4.6's method merge rule: the static catalog
// wins on conflict (it is built by parsing the backend's own source, which
// carries richer signatures/decorators than a live RPC can report), but a
// method discovered only dynamically is still added.
func mergeMethods(static, dynamic map[string]models.MethodInfo) map[string]models.MethodInfo {
	merged := make(map[string]models.MethodInfo, len(static)+len(dynamic))
	for k, v := range dynamic {
		merged[k] = v
	}
	for k, v := range static {
		merged[k] = v
	}
	return merged
}

// mergeStates implements spec §4.6's state merge rule: the dynamic
// selection values win outright, since a state field's allowed values can
// change between backend versions/customizations in ways the static catalog
// cannot track.
func mergeStates(static, dynamic []models.StateValue) []models.StateValue {
	if len(dynamic) > 0 {
		return dynamic
	}
	return static
}

// Refresh runs dynamic introspection (fields_get) for every model already
// known to the registry plus any extraModels, bounded by maxInFlight
// concurrent calls and an overall budget. Models that fail to introspect
// within the budget keep their prior (static-only) entry.
func (r *Registry) Refresh(ctx context.Context, caller Caller, extraModels []string, maxInFlight int64) error {
	if maxInFlight <= 0 {
		maxInFlight = constants.DefaultMaxInFlightIntro
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DefaultIntrospectionBudget)
	defer cancel()

	r.mu.Lock()
	targets := make([]string, 0, len(r.models)+len(extraModels))
	for name := range r.models {
		targets = append(targets, name)
	}
	for _, name := range extraModels {
		if _, ok := r.models[name]; !ok {
			r.models[name] = &models.ModelInfo{Model: name, Fields: map[string]models.FieldInfo{}, Methods: seedMethods(name)}
			targets = append(targets, name)
		}
	}
	r.mu.Unlock()

	sem := semaphore.NewWeighted(maxInFlight)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, name := range targets {
		name := name
		if err := sem.Acquire(ctx, 1); err != nil {
			// Budget exhausted; stop launching new introspection calls but
			// let in-flight ones finish.
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			fields, states, err := fetchFields(ctx, caller, name)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			r.mu.Lock()
			existing := r.models[name]
			r.models[name] = &models.ModelInfo{
				Model:        name,
				Name:         existing.Name,
				Description:  existing.Description,
				Transient:    existing.Transient,
				Fields:       mergeFields(existing.Fields, fields),
				Methods:      mergeMethods(existing.Methods, fetchMethods(ctx, caller, name)),
				States:       mergeStates(existing.States, states),
				ParentModels: existing.ParentModels,
				HasChatter:   existing.HasChatter,
			}
			r.existCache[name] = true
			r.mu.Unlock()
		}()
	}

	wg.Wait()

	r.mu.Lock()
	r.buildMode = models.BuildMerged
	r.mu.Unlock()

	if ctx.Err() != nil {
		// Timed-out/cancelled introspection is not fatal: the registry still
		// has the static catalog for every target. Refresh returns nil here,
		// so the caller has no error to log.
		return nil
	}
	return firstErr
}

// fetchFields runs fields_get against model and returns both the decoded
// field table and, when the model has a "state" selection field, the
// dynamic state values decoded from its selection pairs (spec §4.6: states
// are fetched from fields_get's "selection" attribute on the state field,
// not a separate RPC).
func fetchFields(ctx context.Context, caller Caller, model string) (map[string]models.FieldInfo, []models.StateValue, error) {
	raw, err := caller.Call(ctx, wire.Call{
		Model:  model,
		Method: "fields_get",
		Args:   []interface{}{},
		Kwargs: map[string]interface{}{"attributes": []interface{}{"string", "type", "required", "readonly", "relation", "selection", "help"}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("registry: fields_get %s: %w", model, err)
	}

	rawMap, ok := raw.(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("registry: unexpected fields_get shape for %s", model)
	}

	fields := make(map[string]models.FieldInfo, len(rawMap))
	var states []models.StateValue
	for fname, fdataRaw := range rawMap {
		fdata, ok := fdataRaw.(map[string]interface{})
		if !ok {
			continue
		}
		fi := models.FieldInfo{Name: fname}
		if v, ok := fdata["type"].(string); ok {
			fi.Type = v
		}
		if v, ok := fdata["string"].(string); ok {
			fi.Label = v
		}
		if v, ok := fdata["required"].(bool); ok {
			fi.Required = v
		}
		if v, ok := fdata["readonly"].(bool); ok {
			fi.ReadOnly = v
		}
		if v, ok := fdata["relation"].(string); ok {
			fi.Relation = v
		}
		if v, ok := fdata["help"].(string); ok {
			fi.Help = v
		}
		if sel, ok := decodeSelection(fdata["selection"]); ok {
			fi.Selection = selectionValues(sel)
			if fname == "state" {
				states = sel
			}
		}
		fields[fname] = fi
	}
	return fields, states, nil
}

// decodeSelection decodes fields_get's "selection" attribute, a list of
// [value, label] pairs (XML-RPC/JSON-RPC both wire these as 2-element
// arrays), into StateValue pairs. Returns ok=false when raw is absent or not
// a selection list at all, so a non-selection field or a stub response
// missing the key entirely is left untouched rather than producing an empty
// Selection slice.
func decodeSelection(raw interface{}) ([]models.StateValue, bool) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]models.StateValue, 0, len(list))
	for _, pairRaw := range list {
		pair, ok := pairRaw.([]interface{})
		if !ok || len(pair) < 2 {
			continue
		}
		value := fmt.Sprintf("%v", pair[0])
		label, _ := pair[1].(string)
		out = append(out, models.StateValue{Value: value, Label: label})
	}
	return out, true
}

func selectionValues(sel []models.StateValue) []string {
	out := make([]string, 0, len(sel))
	for _, s := range sel {
		out = append(out, s.Value)
	}
	return out
}

// fetchMethods best-effort introspects a model's surfaced public methods via
// a custom ir.model.methods model (spec §4.6's "e.g. via ir.model.methods"
// option), which most Odoo installs do not expose. Any failure — missing
// model, access error, unexpected shape — is swallowed and treated as "no
// dynamic methods found" rather than failing the whole refresh, leaving the
// source-derived static catalog (constants.DefaultMethodCatalog) as the
// method source for that model.
func fetchMethods(ctx context.Context, caller Caller, model string) map[string]models.MethodInfo {
	raw, err := caller.Call(ctx, wire.Call{
		Model:  "ir.model.methods",
		Method: "search_read",
		Args:   []interface{}{[]interface{}{[]interface{}{"model", "=", model}}},
		Kwargs: map[string]interface{}{"fields": []interface{}{"name", "accepts_kwargs"}},
	})
	if err != nil {
		return nil
	}
	rows, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]models.MethodInfo, len(rows))
	for _, rowRaw := range rows {
		row, ok := rowRaw.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := row["name"].(string)
		if name == "" {
			continue
		}
		mi := models.MethodInfo{Name: name}
		if v, ok := row["accepts_kwargs"].(bool); ok {
			mi.AcceptsKwargs = v
		}
		out[name] = mi
	}
	return out
}
