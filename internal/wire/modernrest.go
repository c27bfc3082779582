package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
)

// ModernRESTAdapter talks to Odoo's modern JSON API (versions 19+, spec
// §4.1/§6): POST JSON to /json/2/{model}/{method} with a body of
// {args: [...], ...kwargs} (kwargs spread at the top level alongside args,
// not nested under a "kwargs" key), carrying the API key as a bearer token
// on every call. The response is {result: ...} on success or {error: ...}
// on failure — there is no separate session-establishment step; the bearer
// token alone identifies the caller, mirroring the teacher's
// internal/client/client.go pattern of attaching one stable credential
// (there, Basic/Bearer auth) to every request via buildRequest.
type ModernRESTAdapter struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewModernRESTAdapter(baseURL string, timeout time.Duration) *ModernRESTAdapter {
	return &ModernRESTAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (a *ModernRESTAdapter) Protocol() string { return constants.ProtocolModernREST }

type restCallResponse struct {
	Result interface{} `json:"result"`
	Error  *restFault  `json:"error"`
}

type restFault struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Name    string `json:"name"`
	Debug   string `json:"debug"`
}

// Authenticate validates the mandatory API key by calling
// res.users.context_get and reading uid from the returned context; a
// missing or zero uid counts as an invalid key. Modern-REST has no password
// fallback: the token is
// mandatory here, per spec §4.3.
func (a *ModernRESTAdapter) Authenticate(ctx context.Context, database, username, password, apiKey string) (int, error) {
	if apiKey == "" {
		return 0, fmt.Errorf("modern-rest: an api key is required")
	}
	a.apiKey = apiKey

	result, err := a.call(ctx, "res.users", "context_get", nil, nil)
	if err != nil {
		return 0, fmt.Errorf("modern-rest authenticate: %w", err)
	}
	ctxMap, ok := result.(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("modern-rest authenticate: unexpected response shape")
	}
	uidF, ok := ctxMap["uid"].(float64)
	if !ok || uidF == 0 {
		return 0, fmt.Errorf("modern-rest authenticate: invalid api key")
	}
	return int(uidF), nil
}

func (a *ModernRESTAdapter) Execute(ctx context.Context, uid int, password string, call Call) (interface{}, error) {
	result, err := a.call(ctx, call.Model, call.Method, call.Args, call.Kwargs)
	if err != nil {
		if f, ok := err.(models.RpcFault); ok {
			f.Model, f.Method = call.Model, call.Method
			return nil, f
		}
		return nil, fmt.Errorf("modern-rest execute %s.%s: %w", call.Model, call.Method, err)
	}
	return result, nil
}

func (a *ModernRESTAdapter) call(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	payload := map[string]interface{}{"args": args}
	for k, v := range kwargs {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("modern-rest: encode request: %w", err)
	}

	path := fmt.Sprintf("/json/2/%s/%s", model, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("modern-rest: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("modern-rest: request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded restCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("modern-rest: decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, newFault(decoded.Error.Message, decoded.Error.Name, decoded.Error.Debug, "", "")
	}
	return decoded.Result, nil
}

// VersionInfo calls the same common.version pseudo-model endpoint the
// legacy-xml adapter uses, over the modern REST call envelope.
func (a *ModernRESTAdapter) VersionInfo(ctx context.Context) (map[string]interface{}, error) {
	result, err := a.call(ctx, "common", "version", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("modern-rest version_info: %w", err)
	}
	info, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("modern-rest version_info: unexpected response shape")
	}
	return info, nil
}

func (a *ModernRESTAdapter) Close() error { return nil }
