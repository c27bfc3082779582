package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/config"
	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/registry"
	"github.com/odoo-mcp/bridge/internal/safety"
	"github.com/odoo-mcp/bridge/internal/toolset"
	"github.com/odoo-mcp/bridge/internal/wire"
)

// stubCaller replays a fixed result (or error) for every call and records
// the last Call it received, for assertions on the args the handler built.
type stubCaller struct {
	result interface{}
	err    error
	last   wire.Call
}

func (s *stubCaller) Call(ctx context.Context, call wire.Call) (interface{}, error) {
	s.last = call
	return s.result, s.err
}

func newTestDeps(t *testing.T, caller Caller, mode models.SafetyMode) *Deps {
	t.Helper()
	policy := models.SafetyPolicy{
		Mode:               mode,
		ReadRatePerMinute:  120,
		ReadBurst:          20,
		WriteRatePerMinute: 30,
		WriteBurst:         5,
		FieldBlocklist:     map[string]bool{"password": true},
	}
	gate, err := safety.New(policy, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = gate.Close() })

	reg := registry.New([]string{"res.partner"})
	cfg := config.Default()
	cfg.SafetyMode = string(mode)

	return &Deps{
		Conn:     caller,
		Registry: reg,
		Gate:     gate,
		Config:   cfg,
	}
}

func findTool(tools []toolset.Tool, name string) toolset.Tool {
	for _, tl := range tools {
		if tl.Name == name {
			return tl
		}
	}
	panic(fmt.Sprintf("tool %q not found", name))
}

func buildCRUDTools(t *testing.T, deps *Deps) []toolset.Tool {
	t.Helper()
	ts := BuildCRUDToolset(deps)
	tools, err := ts.Build(context.Background())
	require.NoError(t, err)
	return tools
}

func TestSearchReadReturnsHasMoreWhenAtLimit(t *testing.T) {
	caller := &stubCaller{result: []interface{}{
		map[string]interface{}{"id": float64(1), "name": "Azure Interior"},
	}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findTool(buildCRUDTools(t, deps), "odoo_crud_search_read")

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model": "res.partner",
		"limit": float64(1),
	})
	require.NoError(t, err)
	require.False(t, isErr)

	result := out.(map[string]interface{})
	assert.Equal(t, true, result["has_more"])
	assert.Equal(t, "search_read", caller.last.Method)
}

func TestSearchReadRejectsInvalidDomain(t *testing.T) {
	caller := &stubCaller{}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findTool(buildCRUDTools(t, deps), "odoo_crud_search_read")

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model":  "res.partner",
		"domain": []interface{}{[]interface{}{"name", "~~", "x"}},
	})
	require.NoError(t, err)
	require.True(t, isErr)
	resp := out.(models.ErrorResponse)
	assert.True(t, resp.Error)
}

func TestReadRejectsTooManyIDs(t *testing.T) {
	caller := &stubCaller{}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findTool(buildCRUDTools(t, deps), "odoo_crud_read")

	ids := make([]interface{}, maxReadIDs+1)
	for i := range ids {
		ids[i] = float64(i + 1)
	}
	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model": "res.partner",
		"ids":   ids,
	})
	require.NoError(t, err)
	require.True(t, isErr)
	resp := out.(models.ErrorResponse)
	assert.Equal(t, "validation", resp.Category)
}

func TestReadReportsMissingIDs(t *testing.T) {
	caller := &stubCaller{result: []interface{}{
		map[string]interface{}{"id": float64(1), "name": "Azure Interior"},
	}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findTool(buildCRUDTools(t, deps), "odoo_crud_read")

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model": "res.partner",
		"ids":   []interface{}{float64(1), float64(2)},
	})
	require.NoError(t, err)
	require.False(t, isErr)
	result := out.(map[string]interface{})
	assert.Equal(t, []int{2}, result["missing_ids"])
}

func TestFieldsGetStripsBlocklistedFields(t *testing.T) {
	caller := &stubCaller{result: map[string]interface{}{
		"name":     map[string]interface{}{"type": "char"},
		"password": map[string]interface{}{"type": "char"},
	}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findTool(buildCRUDTools(t, deps), "odoo_crud_fields_get")

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{"model": "res.partner"})
	require.NoError(t, err)
	require.False(t, isErr)

	fields := out.(map[string]interface{})["fields"].(map[string]interface{})
	assert.Contains(t, fields, "name")
	assert.NotContains(t, fields, "password")
}

func TestUnlinkRejectedOutsideFullMode(t *testing.T) {
	caller := &stubCaller{result: true}
	deps := newTestDeps(t, caller, models.ModeRestricted)
	// Restricted mode withholds the unlink tool at registration time.
	for _, tl := range buildCRUDTools(t, deps) {
		assert.NotEqual(t, "odoo_crud_unlink", tl.Name)
	}
	// The Safety Gate still rejects unlink if the handler is reached directly.
	tool := unlinkTool(deps)

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model": "res.partner",
		"ids":   []interface{}{float64(1)},
	})
	require.NoError(t, err)
	require.True(t, isErr)
	resp := out.(models.ErrorResponse)
	assert.True(t, resp.Error)
}

func TestUnlinkRejectsTooManyIDs(t *testing.T) {
	caller := &stubCaller{result: true}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findTool(buildCRUDTools(t, deps), "odoo_crud_unlink")

	ids := make([]interface{}, maxUnlinkIDs+1)
	for i := range ids {
		ids[i] = float64(i + 1)
	}
	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model": "res.partner",
		"ids":   ids,
	})
	require.NoError(t, err)
	require.True(t, isErr)
	resp := out.(models.ErrorResponse)
	assert.Equal(t, "validation", resp.Category)
}

func TestExecuteRejectsPrivateMethod(t *testing.T) {
	caller := &stubCaller{}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findTool(buildCRUDTools(t, deps), "odoo_crud_execute")

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model":  "res.partner",
		"method": "_compute_display_name",
	})
	require.NoError(t, err)
	require.True(t, isErr)
	resp := out.(models.ErrorResponse)
	assert.True(t, resp.Error)
}

func TestExecuteStripsKwargsForNoKwargsMethods(t *testing.T) {
	caller := &stubCaller{result: []interface{}{}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findTool(buildCRUDTools(t, deps), "odoo_crud_execute")

	_, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model":  "res.partner",
		"method": "name_get",
		"kwargs": map[string]interface{}{"context": map[string]interface{}{"lang": "en_US"}},
	})
	require.NoError(t, err)
	require.False(t, isErr)
	assert.Nil(t, caller.last.Kwargs)
}

func TestWriteRejectsReadOnlyField(t *testing.T) {
	caller := &stubCaller{result: true}
	deps := newTestDeps(t, caller, models.ModeFull)
	// seed the registry with a readonly field on res.partner
	m, _ := deps.Registry.Get("res.partner")
	m.Fields["display_name"] = models.FieldInfo{Name: "display_name", Type: "char", ReadOnly: true}

	tool := findTool(buildCRUDTools(t, deps), "odoo_crud_write")
	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model":  "res.partner",
		"ids":    []interface{}{float64(1)},
		"values": map[string]interface{}{"display_name": "x"},
	})
	require.NoError(t, err)
	require.True(t, isErr)
	resp := out.(models.ErrorResponse)
	assert.Equal(t, "validation", resp.Category)
}

func TestCreateMissingModelIsFrameworkError(t *testing.T) {
	caller := &stubCaller{}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findTool(buildCRUDTools(t, deps), "odoo_crud_create")

	_, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"values": map[string]interface{}{"name": "Acme"},
	})
	require.Error(t, err)
	require.False(t, isErr)
}
