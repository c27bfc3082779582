package odooversion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/odoo-mcp/bridge/internal/constants"
)

// httpProbe is the shape shared by all three concrete probes: a plain,
// bodiless GET against the endpoint each protocol exposes for
// unauthenticated version discovery, following the same http.Client-plus-
// http.NewRequestWithContext idiom the teacher's ODataClient uses for
// GetMetadata.
type httpProbe struct {
	protocol string
	path     string
	client   *http.Client
}

func newHTTPProbe(protocol, path string, timeout time.Duration) httpProbe {
	return httpProbe{protocol: protocol, path: path, client: &http.Client{Timeout: timeout}}
}

func (p httpProbe) Protocol() string { return p.protocol }

type versionEnvelope struct {
	Result *struct {
		ServerVersion     string        `json:"server_version"`
		ServerVersionInfo []interface{} `json:"server_version_info"`
	} `json:"result"`
	ServerVersion     string        `json:"server_version"`
	ServerVersionInfo []interface{} `json:"server_version_info"`
}

// ProbeVersion sends a bodiless GET to the endpoint and reads
// server_version out of whichever of the two response shapes the backend
// uses (a top-level field for the modern REST API, nested under "result"
// for the two JSON-RPC-shaped legacy protocols). A response carrying only
// the tuple form (server_version_info) is reformatted to "major.minor"
// before being handed back.
func (p httpProbe) ProbeVersion(ctx context.Context, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+p.path, nil)
	if err != nil {
		return "", fmt.Errorf("odooversion: build probe request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("odooversion: %s probe request: %w", p.protocol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("odooversion: %s probe returned HTTP %d", p.protocol, resp.StatusCode)
	}

	var env versionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("odooversion: decode %s probe response: %w", p.protocol, err)
	}

	switch {
	case env.Result != nil && env.Result.ServerVersion != "":
		return env.Result.ServerVersion, nil
	case env.ServerVersion != "":
		return env.ServerVersion, nil
	case env.Result != nil && len(env.Result.ServerVersionInfo) > 0:
		return versionFromTuple(env.Result.ServerVersionInfo)
	case len(env.ServerVersionInfo) > 0:
		return versionFromTuple(env.ServerVersionInfo)
	default:
		return "", fmt.Errorf("odooversion: %s probe response carried no server_version", p.protocol)
	}
}

func versionFromTuple(tuple []interface{}) (string, error) {
	v, err := ParseVersionTuple(tuple)
	if err != nil {
		return "", err
	}
	return v.FullString, nil
}

// DefaultProbes builds the standard three-probe sequence (spec §4.2),
// ordered newest-protocol-first so a modern backend resolves in one round
// trip: modern REST's /api/version, then legacy JSON-RPC's
// /web/webclient/version_info, then legacy XML-RPC's /xmlrpc/2/common
// (queried here over its JSON mirror endpoint, since the common xmlrpc
// service itself speaks XML-RPC, not JSON).
func DefaultProbes(timeout time.Duration) func(baseURL string) []VersionProbe {
	return func(baseURL string) []VersionProbe {
		return []VersionProbe{
			newHTTPProbe(constants.ProtocolModernREST, "/api/version", timeout),
			newHTTPProbe(constants.ProtocolLegacyJSON, "/web/webclient/version_info", timeout),
			newHTTPProbe(constants.ProtocolLegacyXML, "/xmlrpc/2/common/version", timeout),
		}
	}
}
