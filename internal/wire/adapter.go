// Package wire implements the three Odoo wire adapters (spec §4.1):
// legacy-xml (XML-RPC, versions 14-16), legacy-json (JSON-RPC 2.0 over
// /web/dataset/call_kw, versions 17-18), and modern-rest (bearer-token REST
// API, versions 19+). All three satisfy the same Adapter contract so the
// Connection Manager and Model Registry never need to know which protocol
// is in play.
//
// The request/response shape and the single-call contract are grounded on
// the teacher's internal/client/client.go (one ODataClient exposing
// GetEntitySet/CreateEntity/... over a shared *http.Client with retry); here
// a single Call method replaces that per-operation method set because
// Odoo's RPC surface is an arbitrary (model, method, args) triple rather
// than a fixed REST verb set.
package wire

import (
	"context"
	"errors"

	"github.com/odoo-mcp/bridge/internal/models"
)

// Call is one (model, method, args, kwargs) invocation, the common shape
// every Odoo wire protocol can express regardless of its envelope.
type Call struct {
	Model  string
	Method string
	Args   []interface{}
	Kwargs map[string]interface{}
}

// Adapter is the contract every wire protocol implementation satisfies.
type Adapter interface {
	// Protocol returns the constants.Protocol* identifier for this adapter.
	Protocol() string

	// Authenticate establishes a session/uid (or validates the API key) and
	// returns the resolved uid. It must be safe to call again after a
	// session expiry is detected.
	Authenticate(ctx context.Context, database, username, password, apiKey string) (uid int, err error)

	// Execute performs one RPC call and returns its raw decoded result.
	// Callers normalize the result shape (spec §4.8); adapters only unwrap
	// their own envelope (XML-RPC struct/array, JSON-RPC result field, REST
	// response body) and convert backend faults into a models.RpcFault.
	Execute(ctx context.Context, uid int, password string, call Call) (interface{}, error)

	// VersionInfo returns the backend's self-description (spec §4.1: every
	// adapter also exposes version_info() → info), independent of the
	// Version Prober's own pre-authentication probes in internal/odooversion.
	VersionInfo(ctx context.Context) (map[string]interface{}, error)

	// Close releases any adapter-held resources (idle connections, worker
	// pool). It does not invalidate the backend session.
	Close() error
}

// AsFault converts any error returned by Execute into a models.RpcFault,
// synthesizing one if the adapter returned a plain error instead.
func AsFault(model, method string, err error) models.RpcFault {
	if err == nil {
		return models.RpcFault{}
	}
	var f models.RpcFault
	if errors.As(err, &f) {
		if f.Model == "" {
			f.Model = model
		}
		if f.Method == "" {
			f.Method = method
		}
		return f
	}
	return models.RpcFault{Message: err.Error(), Model: model, Method: method}
}
