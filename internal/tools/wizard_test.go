package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/toolset"
	"github.com/odoo-mcp/bridge/internal/wire"
)

// scriptedCaller replays one result per wire.Call.Method call in order,
// recording every call it received for assertions on the sequence.
type scriptedCaller struct {
	byMethod map[string][]interface{}
	calls    []wire.Call
}

func (s *scriptedCaller) Call(ctx context.Context, call wire.Call) (interface{}, error) {
	s.calls = append(s.calls, call)
	queue := s.byMethod[call.Method]
	if len(queue) == 0 {
		return nil, nil
	}
	next := queue[0]
	s.byMethod[call.Method] = queue[1:]
	return next, nil
}

func findWizardTool(t *testing.T, deps *Deps) toolset.Tool {
	t.Helper()
	ts := BuildWizardToolset(deps)
	tools, err := ts.Build(context.Background())
	require.NoError(t, err)
	return tools[0]
}

// TestWizardPaymentScenario mirrors spec §8 end-to-end scenario 4:
// register_payment on invoice id=42 → default_get before create → an
// ir.actions.act_window_close result reports success.
func TestWizardPaymentScenario(t *testing.T) {
	caller := &scriptedCaller{byMethod: map[string][]interface{}{
		"default_get":            {map[string]interface{}{"amount": float64(100)}},
		"create":                 {float64(7)},
		"action_create_payments": {map[string]interface{}{"type": "ir.actions.act_window_close"}},
	}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findWizardTool(t, deps)

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"wizard_model": "account.payment.register",
		"source_model": "account.move",
		"active_id":    float64(42),
	})
	require.NoError(t, err)
	require.False(t, isErr)

	result := out.(map[string]interface{})
	assert.Equal(t, "complete", result["status"])

	require.GreaterOrEqual(t, len(caller.calls), 3)
	assert.Equal(t, "default_get", caller.calls[0].Method)
	assert.Equal(t, "create", caller.calls[1].Method)
	assert.Equal(t, "action_create_payments", caller.calls[2].Method)
	createCtx := caller.calls[1].Kwargs["context"].(map[string]interface{})
	assert.Equal(t, "account.move", createCtx["active_model"])
}

func TestBackorderDefaultIsCancelBackorder(t *testing.T) {
	caller := &scriptedCaller{byMethod: map[string][]interface{}{
		"default_get":               {map[string]interface{}{}},
		"create":                    {float64(1)},
		"process_cancel_backorder": {nil},
	}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findWizardTool(t, deps)

	_, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"wizard_model": "stock.backorder.confirmation",
		"source_model": "stock.picking",
		"active_id":    float64(5),
	})
	require.NoError(t, err)
	require.False(t, isErr)
	assert.Equal(t, "process_cancel_backorder", caller.calls[len(caller.calls)-1].Method)
}

func TestBackorderCreateBackorderFlagOverridesDefault(t *testing.T) {
	caller := &scriptedCaller{byMethod: map[string][]interface{}{
		"default_get": {map[string]interface{}{}},
		"create":      {float64(1)},
		"process":     {nil},
	}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findWizardTool(t, deps)

	_, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"wizard_model":      "stock.backorder.confirmation",
		"source_model":      "stock.picking",
		"active_id":         float64(5),
		"create_backorder": true,
	})
	require.NoError(t, err)
	require.False(t, isErr)
	assert.Equal(t, "process", caller.calls[len(caller.calls)-1].Method)
}

func TestUnknownWizardReturnsStructuredDescription(t *testing.T) {
	caller := &scriptedCaller{byMethod: map[string][]interface{}{}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findWizardTool(t, deps)

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"wizard_model": "some.unknown.wizard",
		"source_model": "res.partner",
		"active_id":    float64(1),
	})
	require.NoError(t, err)
	require.False(t, isErr)
	resp := out.(models.ErrorResponse)
	assert.Equal(t, "some.unknown.wizard", resp.Details.(map[string]interface{})["model"])
	assert.Contains(t, resp.Suggestion, "odoo_crud_execute")
}

func TestWizardChainDepthCapped(t *testing.T) {
	chainAction := map[string]interface{}{
		"type":      "ir.actions.act_window",
		"target":    "new",
		"res_model": "stock.backorder.confirmation",
	}
	caller := &scriptedCaller{byMethod: map[string][]interface{}{
		"default_get":               {map[string]interface{}{}, map[string]interface{}{}, map[string]interface{}{}, map[string]interface{}{}},
		"create":                    {float64(1), float64(2), float64(3), float64(4)},
		"process_cancel_backorder": {chainAction, chainAction, chainAction, chainAction},
	}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findWizardTool(t, deps)

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"wizard_model": "stock.backorder.confirmation",
		"source_model": "stock.picking",
		"active_id":    float64(5),
	})
	require.NoError(t, err)
	require.True(t, isErr)
	resp := out.(models.ErrorResponse)
	assert.True(t, resp.Error)
}
