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

// deepSearchStubCaller scripts an ordered queue of canned responses per
// (model, method) pair, popping the next entry on each matching call and
// falling back to an empty list once a queue is exhausted. Needed because
// the deep search algorithm calls the same (model, method) pair multiple
// times across levels with different domains, each expecting a different
// canned result.
type deepSearchStubCaller struct {
	responses map[string][]interface{}
	calls     []wire.Call
}

func key(model, method string) string { return model + "." + method }

func (s *deepSearchStubCaller) Call(ctx context.Context, call wire.Call) (interface{}, error) {
	s.calls = append(s.calls, call)
	k := key(call.Model, call.Method)
	queue := s.responses[k]
	if len(queue) == 0 {
		return []interface{}{}, nil
	}
	next := queue[0]
	s.responses[k] = queue[1:]
	return next, nil
}

func findDeepSearchTool(t *testing.T, deps *Deps) toolset.Tool {
	t.Helper()
	ts := BuildDeepSearchToolset(deps)
	tools, err := ts.Build(context.Background())
	require.NoError(t, err)
	return tools[0]
}

func TestDeepSearchExactMatchStopsAtLevelOne(t *testing.T) {
	caller := &deepSearchStubCaller{responses: map[string][]interface{}{
		key("res.partner", "search"): {[]interface{}{float64(1)}},
		key("res.partner", "read"):   {[]interface{}{map[string]interface{}{"id": float64(1), "name": "Azure Interior"}}},
	}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findDeepSearchTool(t, deps)

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model": "res.partner",
		"query": "Azure Interior",
	})
	require.NoError(t, err)
	require.False(t, isErr)
	result := out.(map[string]interface{})
	assert.Equal(t, 1, result["depth_reached"])
	assert.Equal(t, 1, result["total_results"])
}

// TestDeepSearchExpandsToRelatedModel mirrors spec §8 end-to-end scenario 3:
// no exact match on sale.order, an exact match on res.partner id=1 →
// level-4 returns the sales orders for partner 1, depth_reached=4,
// strategies_used includes related_models.
func TestDeepSearchExpandsToRelatedModel(t *testing.T) {
	caller := &deepSearchStubCaller{responses: map[string][]interface{}{
		// level 1 (exact) and level 2 (standard ilike) both miss on
		// sale.order; level 4's related-model-filtered search then hits.
		key("sale.order", "search"): {
			[]interface{}{},
			[]interface{}{},
			[]interface{}{float64(10)},
		},
		key("res.partner", "search"): {[]interface{}{float64(1)}},
		key("res.partner", "read"): {[]interface{}{
			map[string]interface{}{"id": float64(1), "is_company": true, "child_ids": []interface{}{}, "parent_id": false},
		}},
		key("sale.order", "read"): {[]interface{}{
			map[string]interface{}{"id": float64(10), "name": "S00010"},
		}},
	}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findDeepSearchTool(t, deps)

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model": "sale.order",
		"query": "acme",
	})
	require.NoError(t, err)
	require.False(t, isErr)

	result := out.(map[string]interface{})
	assert.Equal(t, 4, result["depth_reached"])
	assert.Contains(t, result["strategies_used"], "related_models")
	assert.Equal(t, 1, result["total_results"])
}

func TestDeepSearchNoMatchReturnsSuggestions(t *testing.T) {
	caller := &deepSearchStubCaller{responses: map[string][]interface{}{}}
	deps := newTestDeps(t, caller, models.ModeFull)
	tool := findDeepSearchTool(t, deps)

	out, isErr, err := tool.Handler(context.Background(), map[string]interface{}{
		"model": "product.product",
		"query": "nonexistent-widget",
	})
	require.NoError(t, err)
	require.False(t, isErr)
	result := out.(map[string]interface{})
	assert.Equal(t, 0, result["total_results"])
	assert.NotEmpty(t, result["suggestions"])
}
