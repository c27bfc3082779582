package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync/atomic"
	"time"

	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
)

// LegacyJSONAdapter speaks Odoo's web-client JSON-RPC 2.0 surface (versions
// 17-18, spec §4.1/§6): POST to /web/session/authenticate once to establish
// a session cookie, then POST to /web/dataset/call_kw/{model}/{method} for
// every subsequent call, carrying that cookie via the adapter's own
// cookiejar-backed *http.Client. This mirrors the teacher's
// internal/client/client.go pattern of one shared *http.Client holding
// connection state (here, the session cookie) across every request.
type LegacyJSONAdapter struct {
	baseURL string
	http    *http.Client
	nextID  int64
}

func NewLegacyJSONAdapter(baseURL string, timeout time.Duration) *LegacyJSONAdapter {
	jar, _ := cookiejar.New(nil)
	return &LegacyJSONAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Jar: jar},
	}
}

func (a *LegacyJSONAdapter) Protocol() string { return constants.ProtocolLegacyJSON }

type jsonrpcEnvelope struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonrpcResult struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonrpcFault   `json:"error"`
}

type jsonrpcFault struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// asFault decodes Odoo's JSON-RPC error data envelope ({name, message,
// debug}) into a structured fault: name is the server-side exception class
// and debug the full traceback, which stays out of the message (spec §4.4).
func (f *jsonrpcFault) asFault() models.RpcFault {
	var data struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Debug   string `json:"debug"`
	}
	if len(f.Data) > 0 {
		_ = json.Unmarshal(f.Data, &data)
	}
	message := data.Message
	if message == "" {
		message = f.Message
	}
	return newFault(message, data.Name, data.Debug, "", "")
}

func (a *LegacyJSONAdapter) post(ctx context.Context, path string, params interface{}) (json.RawMessage, error) {
	id := atomic.AddInt64(&a.nextID, 1)
	envelope := jsonrpcEnvelope{JSONRPC: "2.0", Method: "call", ID: id, Params: params}

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("legacy-json: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("legacy-json: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("legacy-json: request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded jsonrpcResult
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("legacy-json: decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error.asFault()
	}
	return decoded.Result, nil
}

// Authenticate posts to /web/session/authenticate. A successful call plants
// a session cookie in the adapter's cookiejar that every subsequent
// call_kw request carries automatically.
func (a *LegacyJSONAdapter) Authenticate(ctx context.Context, database, username, password, apiKey string) (int, error) {
	pass := password
	if apiKey != "" {
		pass = apiKey
	}
	raw, err := a.post(ctx, "/web/session/authenticate", map[string]interface{}{
		"db":       database,
		"login":    username,
		"password": pass,
	})
	if err != nil {
		return 0, fmt.Errorf("legacy-json authenticate: %w", err)
	}

	var decoded struct {
		UID interface{} `json:"uid"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return 0, fmt.Errorf("legacy-json authenticate: decode session info: %w", err)
	}
	uidF, ok := decoded.UID.(float64)
	if !ok || uidF == 0 {
		return 0, fmt.Errorf("legacy-json authenticate: invalid credentials")
	}
	return int(uidF), nil
}

// Execute posts to /web/dataset/call_kw/{model}/{method}. The session
// cookie planted by Authenticate identifies the caller; uid and password
// are accepted for interface symmetry with the other adapters but are not
// placed on the wire — the web-client endpoint authenticates the request
// from the session cookie alone.
func (a *LegacyJSONAdapter) Execute(ctx context.Context, uid int, password string, call Call) (interface{}, error) {
	args := call.Args
	if args == nil {
		args = []interface{}{}
	}
	kwargs := call.Kwargs
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}

	path := fmt.Sprintf("/web/dataset/call_kw/%s/%s", call.Model, call.Method)
	raw, err := a.post(ctx, path, map[string]interface{}{
		"model":  call.Model,
		"method": call.Method,
		"args":   args,
		"kwargs": kwargs,
	})
	if err != nil {
		if f, ok := err.(models.RpcFault); ok {
			f.Model, f.Method = call.Model, call.Method
			return nil, f
		}
		return nil, fmt.Errorf("legacy-json execute %s.%s: %w", call.Model, call.Method, err)
	}

	var result interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("legacy-json: decode result: %w", err)
		}
	}
	return result, nil
}

// VersionInfo posts to /web/webclient/version_info, the same unauthenticated
// endpoint the web client itself uses to display the server version.
func (a *LegacyJSONAdapter) VersionInfo(ctx context.Context) (map[string]interface{}, error) {
	raw, err := a.post(ctx, "/web/webclient/version_info", map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("legacy-json version_info: %w", err)
	}
	var info map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("legacy-json version_info: decode: %w", err)
		}
	}
	return info, nil
}

func (a *LegacyJSONAdapter) Close() error { return nil }
