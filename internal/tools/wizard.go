package tools

import (
	"context"
	"fmt"

	"github.com/odoo-mcp/bridge/internal/classify"
	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/toolset"
	"github.com/odoo-mcp/bridge/internal/wire"
)

// knownWizard is one catalog entry: a transient wizard model the bridge
// knows how to drive end to end without the caller having to discover its
// fields by hand (spec §4.10: "known wizards have catalog entries with
// field schemas, context keys, action method, alternate methods, and
// version bounds").
var knownWizards = map[string]models.KnownWizard{
	"stock.backorder.confirmation": {
		Model:              "stock.backorder.confirmation",
		Description:        "Confirm or cancel the backorder for a partially-delivered stock picking.",
		SourceModel:        "stock.picking",
		ActionMethod:       constants.DefaultBackorderAction,
		ContextKeys:        []string{"active_model", "active_id", "active_ids", "button_validate_picking_ids"},
		AlternativeActions: []string{"process", "process_cancel_backorder"},
	},
	"account.payment.register": {
		Model:        "account.payment.register",
		Description:  "Register a payment against one or more open invoices.",
		SourceModel:  "account.move",
		ActionMethod: "action_create_payments",
		ContextKeys:  []string{"active_model", "active_id", "active_ids"},
	},
	"sale.order.cancel": {
		Model:        "sale.order.cancel",
		Description:  "Cancel a confirmed sale order with an optional reason.",
		SourceModel:  "sale.order",
		ActionMethod: "action_cancel",
		ContextKeys:  []string{"active_model", "active_id", "active_ids"},
	},
}

// BuildWizardToolset registers the wizard executor (spec §4.10), built on
// top of the core CRUD toolset's create/read so it can fetch defaults and
// create the transient record itself.
func BuildWizardToolset(deps *Deps) *toolset.Toolset {
	return &toolset.Toolset{
		Name:          "wizard",
		Prerequisites: []string{"crud"},
		Metadata: models.ToolsetMetadata{
			Description: "Drives ir.actions.act_window(target=new) wizards to completion, with a known-wizard catalog (spec §4.10).",
			Version:     "1.0.0",
			Tags:        []string{"wizard"},
		},
		Build: func(ctx context.Context) ([]toolset.Tool, error) {
			return []toolset.Tool{wizardExecuteTool(deps)}, nil
		},
	}
}

func wizardExecuteTool(d *Deps) toolset.Tool {
	return toolset.Tool{
		Name:        "odoo_wizard_execute",
		Description: "Drive a transient wizard model (type='ir.actions.act_window', target='new') to completion: default_get, overlay caller values, create, invoke its action method, and interpret the resulting action.",
		InputSchema: schemaObject(map[string]interface{}{
			"wizard_model":  map[string]interface{}{"type": "string"},
			"source_model":  map[string]interface{}{"type": "string"},
			"active_id":     map[string]interface{}{"type": "integer"},
			"active_ids":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
			"values":        map[string]interface{}{"type": "object"},
			"action_method":  map[string]interface{}{"type": "string", "description": "overrides the catalog's default action method for this wizard"},
			"create_backorder": map[string]interface{}{"type": "boolean", "description": "stock.backorder.confirmation only: true calls 'process' instead of the safer 'process_cancel_backorder' default"},
		}, "wizard_model", "source_model", "active_id"),
		// Same hint profile as OpExecute: a wizard run creates a transient
		// record and invokes an arbitrary action method, so it's neither
		// read-only nor guaranteed idempotent.
		Annotations: constants.AnnotationsFor(constants.OpExecute),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
			wizardModel, err := requireString(args, "wizard_model")
			if err != nil {
				return nil, false, err
			}
			sourceModel, err := requireString(args, "source_model")
			if err != nil {
				return nil, false, err
			}
			activeID := optInt(args, "active_id", 0)
			if activeID == 0 {
				return nil, false, fmt.Errorf("active_id is required")
			}
			activeIDs := optIntSlice(args, "active_ids")
			if len(activeIDs) == 0 {
				activeIDs = []int{activeID}
			}
			overlay := optMap(args, "values")

			if err := d.Gate.Check(ctx, SessionID(ctx), wizardModel, constants.OpCreate, nil); err != nil {
				return classify.ToErrorResponse(err), true, nil
			}

			known, isKnown := knownWizards[wizardModel]
			actionMethod := optString(args, "action_method", "")
			if actionMethod == "" {
				if isKnown {
					actionMethod = known.ActionMethod
				}
			}
			if wizardModel == "stock.backorder.confirmation" && optString(args, "action_method", "") == "" {
				if optBool(args, "create_backorder", false) {
					actionMethod = "process"
				}
			}
			if actionMethod == "" {
				return describeUnknownWizard(ctx, d, wizardModel, sourceModel, activeID, activeIDs), false, nil
			}

			result, err := d.runWizardChain(ctx, wizardModel, sourceModel, activeID, activeIDs, overlay, actionMethod, 1)
			if err != nil {
				return classify.ToErrorResponse(wire.AsFault(wizardModel, actionMethod, err)), true, nil
			}
			return result, false, nil
		},
	}
}

// runWizardChain executes one wizard step and recurses into a chained
// wizard result, never exceeding constants.MaxWizardChainDepth (spec §4.10:
// "chain depth is capped at 3 to prevent cycles").
func (d *Deps) runWizardChain(ctx context.Context, wizardModel, sourceModel string, activeID int, activeIDs []int, overlay map[string]interface{}, actionMethod string, depth int) (map[string]interface{}, error) {
	if depth > constants.MaxWizardChainDepth {
		return nil, fmt.Errorf("wizard: chain depth exceeded %d at %s, aborting to prevent a cycle", constants.MaxWizardChainDepth, wizardModel)
	}

	wizCtx := map[string]interface{}{
		"active_model": sourceModel,
		"active_id":    activeID,
		"active_ids":   toInterfaceSlice(activeIDs),
	}

	// default_get always runs, even for a wizard the registry has not
	// introspected: an empty field list asks the backend for every default,
	// so un-introspected wizards don't silently lose their initial values.
	fieldNames := []string{}
	if fields := d.fieldsOf(wizardModel); fields != nil {
		for name := range fields {
			fieldNames = append(fieldNames, name)
		}
	}

	defaults := map[string]interface{}{}
	raw, err := d.Conn.Call(ctx, wire.Call{Model: wizardModel, Method: "default_get", Args: []interface{}{fieldNames}, Kwargs: map[string]interface{}{"context": wizCtx}})
	if err != nil {
		return nil, fmt.Errorf("wizard: default_get on %s: %w", wizardModel, err)
	}
	if m, ok := raw.(map[string]interface{}); ok {
		defaults = m
	}
	values := map[string]interface{}{}
	for k, v := range defaults {
		values[k] = v
	}
	for k, v := range overlay {
		values[k] = v
	}

	createRaw, err := d.Conn.Call(ctx, wire.Call{Model: wizardModel, Method: "create", Args: []interface{}{values}, Kwargs: map[string]interface{}{"context": wizCtx}})
	if err != nil {
		return nil, fmt.Errorf("wizard: create %s: %w", wizardModel, err)
	}
	wizardID := toInt(createRaw)

	actionRaw, err := d.Conn.Call(ctx, wire.Call{Model: wizardModel, Method: actionMethod, Args: []interface{}{[]interface{}{wizardID}}, Kwargs: map[string]interface{}{"context": wizCtx}})
	if err != nil {
		return nil, fmt.Errorf("wizard: %s.%s: %w", wizardModel, actionMethod, err)
	}

	return d.interpretWizardResult(ctx, actionRaw, wizardModel, activeID, activeIDs, depth)
}

// interpretWizardResult classifies the raw action_method return value per
// spec §4.10's result table.
func (d *Deps) interpretWizardResult(ctx context.Context, raw interface{}, wizardModel string, activeID int, activeIDs []int, depth int) (map[string]interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]interface{}{"status": "complete"}, nil
	case bool:
		return map[string]interface{}{"status": "complete"}, nil
	case map[string]interface{}:
		actionType, _ := v["type"].(string)
		switch actionType {
		case "ir.actions.act_window_close":
			return map[string]interface{}{"status": "complete"}, nil
		case "ir.actions.report":
			return map[string]interface{}{"status": "report", "report": v}, nil
		case "ir.actions.act_url":
			return map[string]interface{}{"status": "url", "url": v["url"]}, nil
		case "ir.actions.act_window":
			target, _ := v["target"].(string)
			nextModel, _ := v["res_model"].(string)
			if target == "new" && nextModel != "" {
				chained, err := d.runWizardChain(ctx, nextModel, wizardModel, activeID, activeIDs, chainedContextValues(v), defaultMethodFor(nextModel), depth+1)
				if err != nil {
					return nil, err
				}
				chained["chained_from"] = wizardModel
				return chained, nil
			}
			return map[string]interface{}{"status": "complete", "action": v}, nil
		default:
			return map[string]interface{}{"status": "complete", "action": v}, nil
		}
	default:
		return map[string]interface{}{"status": "complete", "result": raw}, nil
	}
}

// chainedContextValues extracts a chained act_window action's context
// overlay, if any, so the next wizard step in the chain starts from the
// values Odoo itself supplied rather than an empty overlay.
func chainedContextValues(action map[string]interface{}) map[string]interface{} {
	if ctx, ok := action["context"].(map[string]interface{}); ok {
		return ctx
	}
	return map[string]interface{}{}
}

// defaultMethodFor looks up the chained wizard's catalog action method,
// falling back to "" which surfaces as an unknown-wizard description one
// level deeper in the chain rather than guessing a method name.
func defaultMethodFor(model string) string {
	if known, ok := knownWizards[model]; ok {
		return known.ActionMethod
	}
	return ""
}

// describeUnknownWizard builds the structured fallback for a wizard model
// absent from the catalog (spec §4.10: "unknown wizards return a
// structured description ... instructions telling the caller how to
// complete the wizard with the generic execute tool — never silently
// discarded").
func describeUnknownWizard(ctx context.Context, d *Deps, wizardModel, sourceModel string, activeID int, activeIDs []int) models.ErrorResponse {
	var fieldNames []string
	if fields := d.fieldsOf(wizardModel); fields != nil {
		for name := range fields {
			fieldNames = append(fieldNames, name)
		}
	}
	return models.ErrorResponse{
		Error:    true,
		Category: classify.CategoryWizard,
		Message:  fmt.Sprintf("%q is not a known wizard; no action_method is registered for it", wizardModel),
		Suggestion: fmt.Sprintf(
			"call odoo_crud_fields_get on %s to inspect its fields, then odoo_crud_create it with context {active_model:%q,active_id:%d,active_ids:[...]} and odoo_crud_execute its action method directly",
			wizardModel, sourceModel, activeID,
		),
		Details: map[string]interface{}{
			"model":      wizardModel,
			"fields":     fieldNames,
			"active_id":  activeID,
			"active_ids": activeIDs,
		},
		Retry: false,
	}
}

func optIntSlice(args map[string]interface{}, key string) []int {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		if n, ok := asInt(item); ok {
			out = append(out, n)
		}
	}
	return out
}

func toInt(v interface{}) int {
	n, _ := asInt(v)
	return n
}
