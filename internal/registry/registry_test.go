package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/wire"
)

type stubCaller struct {
	response map[string]interface{}
	err      error
}

func (s stubCaller) Call(ctx context.Context, call wire.Call) (interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func TestNewSeedsStaticModels(t *testing.T) {
	r := New([]string{"res.partner", "sale.order"})
	assert.True(t, r.Exists("res.partner"))
	assert.True(t, r.Exists("sale.order"))
	assert.False(t, r.Exists("nope.model"))
	assert.ElementsMatch(t, []string{"res.partner", "sale.order"}, r.List())
}

func TestRefreshMergesDynamicFields(t *testing.T) {
	r := New([]string{"res.partner"})
	caller := stubCaller{response: map[string]interface{}{
		"name": map[string]interface{}{"type": "char", "string": "Name", "required": true},
	}}

	err := r.Refresh(context.Background(), caller, nil, 2)
	require.NoError(t, err)

	assert.Equal(t, models.BuildMerged, r.BuildMode())
	m, ok := r.Get("res.partner")
	require.True(t, ok)
	field, ok := m.Fields["name"]
	require.True(t, ok)
	assert.Equal(t, "char", field.Type)
	assert.True(t, field.Required)
}

func TestRefreshAddsExtraModels(t *testing.T) {
	r := New(nil)
	caller := stubCaller{response: map[string]interface{}{}}
	err := r.Refresh(context.Background(), caller, []string{"crm.lead"}, 2)
	require.NoError(t, err)
	assert.True(t, r.Exists("crm.lead"))
}

func TestRequiredFieldsAndStateField(t *testing.T) {
	r := New([]string{"sale.order"})
	caller := stubCaller{response: map[string]interface{}{
		"partner_id": map[string]interface{}{"type": "many2one", "string": "Customer", "required": true, "relation": "res.partner"},
		"state":      map[string]interface{}{"type": "selection", "string": "Status"},
		"note":       map[string]interface{}{"type": "text", "string": "Notes"},
	}}
	require.NoError(t, r.Refresh(context.Background(), caller, nil, 2))

	assert.ElementsMatch(t, []string{"partner_id"}, r.RequiredFields("sale.order"))
	state, ok := r.StateField("sale.order")
	assert.True(t, ok)
	assert.Equal(t, "state", state)
	assert.ElementsMatch(t, []string{"partner_id"}, r.RelationalFields("sale.order"))
}

func TestMethodAcceptsKwargsConsultsNoKwargsSet(t *testing.T) {
	r := New([]string{"res.partner"})
	assert.False(t, r.MethodAcceptsKwargs("res.partner", "name_get"))
	assert.True(t, r.MethodAcceptsKwargs("res.partner", "search_read"))
}

func TestModelExistsCachesBackendProbe(t *testing.T) {
	r := New(nil)
	caller := stubCaller{response: map[string]interface{}{}}
	assert.True(t, r.ModelExists(context.Background(), caller, "product.product"))

	failing := stubCaller{err: assertErr("boom")}
	assert.True(t, r.ModelExists(context.Background(), failing, "product.product"), "cached positive result must not re-probe")
	assert.False(t, r.ModelExists(context.Background(), failing, "nope.model"))
}

type assertErrT string

func (e assertErrT) Error() string { return string(e) }
func assertErr(msg string) error   { return assertErrT(msg) }
