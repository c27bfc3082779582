package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/config"
	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/registry"
	"github.com/odoo-mcp/bridge/internal/safety"
	"github.com/odoo-mcp/bridge/internal/wire"
)

type fakeCaller struct {
	response interface{}
	err      error
	calls    []wire.Call
}

func (f *fakeCaller) Call(ctx context.Context, call wire.Call) (interface{}, error) {
	f.calls = append(f.calls, call)
	return f.response, f.err
}

func newTestEngine(t *testing.T, caller *fakeCaller) *Engine {
	t.Helper()
	gate, err := safety.New(models.SafetyPolicy{
		Mode:              models.ModeFull,
		ReadRatePerMinute: 1000,
		ReadBurst:         1000,
		WriteRatePerMinute: 1000,
		WriteBurst:         1000,
	}, "")
	require.NoError(t, err)

	reg := registry.New(nil)

	return New(&Deps{
		Conn:     caller,
		Registry: reg,
		Gate:     gate,
		Config:   &config.Config{SafetyMode: string(models.ModeFull)},
		Version:  func() models.OdooVersion { return models.OdooVersion{Major: 17, FullString: "17.0"} },
	})
}

func TestParseURI(t *testing.T) {
	u, err := Parse("odoo://system/info")
	require.NoError(t, err)
	assert.Equal(t, CategorySystem, u.Category)
	assert.Equal(t, "info", u.Path())

	u, err = Parse("odoo://record/res.partner/42")
	require.NoError(t, err)
	assert.Equal(t, CategoryRecord, u.Category)
	assert.Equal(t, []string{"res.partner", "42"}, u.Segments)

	u, err = Parse("odoo://record/res.partner?domain=%5B%5D&limit=5")
	require.NoError(t, err)
	assert.Equal(t, "5", u.Query.Get("limit"))

	_, err = Parse("not-a-uri-at-all-with-no-scheme")
	assert.Error(t, err)

	_, err = Parse("odoo://bogus/category")
	assert.Error(t, err)
}

func TestEngineReadSystemInfo(t *testing.T) {
	e := newTestEngine(t, &fakeCaller{})
	body, mime, err := e.Read(context.Background(), "odoo://system/info")
	require.NoError(t, err)
	assert.Equal(t, "application/json", mime)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "full", decoded["safety_mode"])
}

func TestEngineReadSystemModules(t *testing.T) {
	caller := &fakeCaller{response: []interface{}{
		map[string]interface{}{"name": "sale", "shortdesc": "Sales"},
	}}
	e := newTestEngine(t, caller)
	body, _, err := e.Read(context.Background(), "odoo://system/modules")
	require.NoError(t, err)
	assert.Contains(t, body, "sale")
	require.Len(t, caller.calls, 1)
	assert.Equal(t, "search_read", caller.calls[0].Method)
}

func TestEngineReadRecordSingle(t *testing.T) {
	caller := &fakeCaller{response: []interface{}{
		map[string]interface{}{"id": float64(7), "name": "Acme"},
	}}
	e := newTestEngine(t, caller)
	body, _, err := e.Read(context.Background(), "odoo://record/res.partner/7")
	require.NoError(t, err)
	assert.Contains(t, body, "Acme")
}

func TestEngineReadRecordSearch(t *testing.T) {
	caller := &fakeCaller{response: []interface{}{}}
	e := newTestEngine(t, caller)
	body, _, err := e.Read(context.Background(), "odoo://record/res.partner?limit=500")
	require.NoError(t, err)
	assert.Contains(t, body, `"limit":100`) // a limit above the cap is clamped to it

	require.Len(t, caller.calls, 1)
	assert.Equal(t, 100, caller.calls[0].Kwargs["limit"])
}

func TestEngineReadModelNotRegistered(t *testing.T) {
	e := newTestEngine(t, &fakeCaller{})
	_, _, err := e.Read(context.Background(), "odoo://model/res.partner/fields")
	assert.Error(t, err)
}

func TestSubscribableRules(t *testing.T) {
	assert.True(t, Subscribable("odoo://system/info"))
	assert.True(t, Subscribable("odoo://record/res.partner/7"))
	assert.False(t, Subscribable("odoo://record/res.partner"))
	assert.False(t, Subscribable("odoo://config/safety"))
}

func TestSubscribeEnforcesPerClientCap(t *testing.T) {
	caller := &fakeCaller{response: []interface{}{
		map[string]interface{}{"id": float64(1), "write_date": "2026-01-01 00:00:00"},
	}}
	e := newTestEngine(t, caller)

	for i := 1; i <= constants.DefaultMaxSubscriptions; i++ {
		require.NoError(t, e.Subscribe(context.Background(), "client-1", fmt.Sprintf("odoo://record/res.partner/%d", i)))
	}
	assert.Equal(t, constants.DefaultMaxSubscriptions, e.subs.countFor("client-1"))
	assert.Error(t, e.Subscribe(context.Background(), "client-1", "odoo://system/info"))

	e.Unsubscribe("client-1", "odoo://record/res.partner/1")
	assert.Equal(t, constants.DefaultMaxSubscriptions-1, e.subs.countFor("client-1"))
}

func TestSubscribeRejectsUnsubscribableURI(t *testing.T) {
	e := newTestEngine(t, &fakeCaller{})
	err := e.Subscribe(context.Background(), "client-1", "odoo://config/safety")
	assert.Error(t, err)
}
