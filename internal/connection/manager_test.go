package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odoo-mcp/bridge/internal/config"
	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/wire"
)

func TestCredentialTieBreakPrefersAPIKey(t *testing.T) {
	cfg := &config.Config{Username: "admin", Password: "pw", APIKey: "key123"}
	assert.True(t, credentialTieBreak(cfg))
}

func TestCredentialTieBreakFallsBackToPassword(t *testing.T) {
	cfg := &config.Config{Username: "admin", Password: "pw"}
	assert.False(t, credentialTieBreak(cfg))
}

func TestIsSessionExpiry(t *testing.T) {
	assert.True(t, isSessionExpiry(assertErr("Session Expired")))
	assert.True(t, isSessionExpiry(assertErr("401 Unauthorized")))
	assert.False(t, isSessionExpiry(assertErr("validation error on field x")))
	assert.False(t, isSessionExpiry(nil))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(s string) error { return simpleErr(s) }

// TestReconnectRetriesFailedCallOnce mirrors spec §8 scenario 6: a call
// failing with a session-expired fault triggers re-authentication and
// exactly one retry of the original call, which succeeds with no error
// surfaced to the caller.
func TestReconnectRetriesFailedCallOnce(t *testing.T) {
	var authCount, callCount int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/web/session/authenticate"):
			atomic.AddInt64(&authCount, 1)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0", "id": 1,
				"result": map[string]interface{}{"uid": 2},
			})
		case strings.Contains(r.URL.Path, "/web/dataset/call_kw/"):
			if atomic.AddInt64(&callCount, 1) == 1 {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"jsonrpc": "2.0", "id": 2,
					"error": map[string]interface{}{"code": 100, "message": "Odoo Session Expired"},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0", "id": 3,
				"result": []interface{}{map[string]interface{}{"id": 1, "name": "Azure Interior"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.URL = srv.URL
	cfg.Database = "db"
	cfg.Username = "admin"
	cfg.Password = "pw"
	cfg.ForceProtocol = constants.ProtocolLegacyJSON
	cfg.RequestTimeout = 2 * time.Second

	m := New(cfg, nil)
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, models.StateReady, m.State())
	assert.Equal(t, 2, m.UID())

	result, err := m.Call(context.Background(), wire.Call{
		Model:  "res.partner",
		Method: "search_read",
		Args:   []interface{}{[]interface{}{}},
	})
	require.NoError(t, err)

	records, ok := result.([]interface{})
	require.True(t, ok)
	assert.Len(t, records, 1)
	assert.GreaterOrEqual(t, atomic.LoadInt64(&authCount), int64(2))
	assert.Equal(t, int64(2), atomic.LoadInt64(&callCount))
}

func TestCallRejectedBeforeConnect(t *testing.T) {
	m := New(config.Default(), nil)
	_, err := m.Call(context.Background(), wire.Call{Model: "res.partner", Method: "read"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}
