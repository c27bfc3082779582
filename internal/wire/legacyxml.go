package wire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
)

// LegacyXMLAdapter talks XML-RPC to /xmlrpc/2/common and /xmlrpc/2/object,
// Odoo's oldest and most universally-supported RPC surface, selected for
// versions 14-16 (spec §4.1). encoding/xml's Marshal/Unmarshal round-trip poorly for the
// XML-RPC value union, so requests/responses are built by hand in
// xmlrpc.go, following the same "parse the wire shape yourself with
// encoding/xml struct tags" idiom the teacher uses for EDMX metadata in
// internal/metadata/parser.go.
//
// XML-RPC is Odoo's one genuinely synchronous, blocking-only protocol: each
// net/http round trip occupies its goroutine until the response header is
// read. Per spec §5's "blocking adapter discipline", every Execute call
// acquires a bounded semaphore before dispatch so a burst of XML-RPC-bound
// tool calls cannot starve the shared scheduler or open unbounded sockets
// against the backend.
type LegacyXMLAdapter struct {
	baseURL  string
	database string
	http     *http.Client
	sem      *semaphore.Weighted
	retry    *RetryConfig
}

// NewLegacyXMLAdapter constructs an adapter bounded to maxInFlight concurrent
// XML-RPC calls.
func NewLegacyXMLAdapter(baseURL string, maxInFlight int64, timeout time.Duration) *LegacyXMLAdapter {
	if maxInFlight <= 0 {
		maxInFlight = constants.DefaultMaxInFlightIntro
	}
	return &LegacyXMLAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		sem:     semaphore.NewWeighted(maxInFlight),
		retry:   DefaultRetryConfig(),
	}
}

func (a *LegacyXMLAdapter) Protocol() string { return constants.ProtocolLegacyXML }

func (a *LegacyXMLAdapter) call(ctx context.Context, endpoint, method string, params ...interface{}) (interface{}, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("legacy-xml: acquire dispatch slot: %w", err)
	}
	defer a.sem.Release(1)

	body, err := encodeXMLRPCCall(method, params...)
	if err != nil {
		return nil, err
	}

	url := a.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("legacy-xml: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("legacy-xml: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("legacy-xml: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("legacy-xml: unexpected status %d", resp.StatusCode)
	}

	return decodeXMLRPCResponse(respBody)
}

// Authenticate calls common.authenticate(db, login, password, {}).
func (a *LegacyXMLAdapter) Authenticate(ctx context.Context, database, username, password, apiKey string) (int, error) {
	pass := password
	if apiKey != "" {
		pass = apiKey
	}
	result, err := a.call(ctx, "/xmlrpc/2/common", "authenticate", database, username, pass, map[string]interface{}{})
	if err != nil {
		return 0, fmt.Errorf("legacy-xml authenticate: %w", err)
	}
	uid, ok := result.(int)
	if !ok || uid == 0 {
		return 0, fmt.Errorf("legacy-xml authenticate: invalid credentials")
	}
	a.database = database
	return uid, nil
}

// Execute calls object.execute_kw(db, uid, password, model, method, args, kwargs).
func (a *LegacyXMLAdapter) Execute(ctx context.Context, uid int, password string, call Call) (interface{}, error) {
	args := call.Args
	if args == nil {
		args = []interface{}{}
	}
	kwargs := call.Kwargs
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	result, err := a.call(ctx, "/xmlrpc/2/object", "execute_kw", a.database, uid, password, call.Model, call.Method, args, kwargs)
	if err != nil {
		if f, ok := err.(models.RpcFault); ok {
			f.Model, f.Method = call.Model, call.Method
			return nil, f
		}
		return nil, fmt.Errorf("legacy-xml execute %s.%s: %w", call.Model, call.Method, err)
	}
	return result, nil
}

// VersionInfo calls common.version(), the same endpoint every XML-RPC Odoo
// client uses to discover the backend before authenticating.
func (a *LegacyXMLAdapter) VersionInfo(ctx context.Context) (map[string]interface{}, error) {
	result, err := a.call(ctx, "/xmlrpc/2/common", "version")
	if err != nil {
		return nil, fmt.Errorf("legacy-xml version_info: %w", err)
	}
	info, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("legacy-xml version_info: unexpected response shape")
	}
	return info, nil
}

func (a *LegacyXMLAdapter) Close() error { return nil }
