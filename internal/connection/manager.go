// Package connection implements the Connection Manager (spec §4.3): the
// single state machine that owns the wire adapter, authenticates against
// it, health-checks it lazily before the first call after an idle window,
// and transparently reconnects on session expiry using the same
// exponential-backoff idiom the teacher applies to OData request retries
// in internal/client/retry.go.
//
// State is guarded by one mutex rather than a dedicated
// goroutine-per-connection scheduler: Connect and every state transition
// hold the lock for their duration. Call holds it only while it reads the
// adapter and credentials and releases it before each backend round trip,
// so several calls can be in flight at once.
package connection

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/odoo-mcp/bridge/internal/config"
	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/odooversion"
	"github.com/odoo-mcp/bridge/internal/wire"
)

// ProbeFactory builds the ordered set of version probes for a backend base
// URL (spec §4.2).
type ProbeFactory func(baseURL string) []odooversion.VersionProbe

// Manager owns one live connection to one Odoo backend.
type Manager struct {
	mu         sync.Mutex
	cfg        *config.Config
	adapter    wire.Adapter
	version    models.OdooVersion
	state      models.ConnectionState
	uid        int
	credential string // whichever of password/api-key Authenticate resolved to use
	usingToken bool
	retry      *wire.RetryConfig
	lastActivity time.Time

	onStateChange func(models.ConnectionState)
	probes        ProbeFactory

	baseContext map[string]interface{}
}

// New builds a disconnected Manager bound to the given probe factory. Call
// Connect before any other method.
func New(cfg *config.Config, probes ProbeFactory) *Manager {
	retry := wire.DefaultRetryConfig()
	if cfg.ReconnectMax > 0 {
		retry.MaxRetries = cfg.ReconnectMax
	}
	return &Manager{
		cfg:    cfg,
		state:  models.StateDisconnected,
		retry:  retry,
		probes: probes,
	}
}

// OnStateChange registers a callback invoked (outside the lock) whenever the
// connection state transitions.
func (m *Manager) OnStateChange(fn func(models.ConnectionState)) {
	m.mu.Lock()
	m.onStateChange = fn
	m.mu.Unlock()
}

func (m *Manager) setState(s models.ConnectionState) {
	m.state = s
	if m.onStateChange != nil {
		cb := m.onStateChange
		go cb(s)
	}
}

// State returns the current connection state.
func (m *Manager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// credentialTieBreak picks the credential Connect should try first: a token
// (API key) wins over a password when both are configured (spec §4.3). The
// caller falls back to password only when the token itself fails on an
// auth-shaped fault, and never for Modern-REST, where the token is
// mandatory.
func credentialTieBreak(cfg *config.Config) (tryToken bool) {
	return cfg.APIKey != ""
}

// Connect probes the backend version, selects the wire adapter, and
// authenticates. It is idempotent: calling it again on an already-ready
// manager re-probes and re-authenticates from scratch.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(ctx context.Context) error {
	m.setState(models.StateConnecting)

	protocol := m.cfg.ForceProtocol
	var version models.OdooVersion
	if protocol == "" {
		var err error
		version, err = odooversion.Probe(ctx, m.cfg.URL, m.probes(m.cfg.URL))
		if err != nil {
			// spec §4.2: if all probes fail, assume version 14 and use
			// Legacy-XML rather than refusing to connect.
			version = odooversion.FallbackVersion()
			fmt.Fprintf(os.Stderr, "[WARN] version probes failed (%v); assuming Odoo %s over %s\n", err, version.FullString, version.Protocol)
		}
		protocol = version.Protocol
	} else {
		version = models.OdooVersion{Protocol: protocol}
	}

	adapter, err := wire.New(protocol, m.cfg.URL, 0, m.cfg.RequestTimeout)
	if err != nil {
		m.setState(models.StateError)
		return fmt.Errorf("connect: build adapter: %w", err)
	}

	uid, credential, usingToken, err := m.authenticate(ctx, adapter, protocol)
	if err != nil {
		m.setState(models.StateError)
		return fmt.Errorf("connect: authenticate: %w", err)
	}

	m.adapter = adapter
	m.version = version
	m.uid = uid
	m.credential = credential
	m.usingToken = usingToken
	m.lastActivity = time.Now()
	m.baseContext = buildBaseContext(m.cfg)
	m.setState(models.StateAuthenticated)
	m.setState(models.StateReady)
	return nil
}

// buildBaseContext assembles the backend context dict every call carries
// (spec §3/§4.1/§4.3: language, timezone, and the active company scope).
// CompanyIDs, when configured, takes precedence over the single CompanyID
// flag since Odoo's allowed_company_ids is itself a list.
func buildBaseContext(cfg *config.Config) map[string]interface{} {
	ctx := map[string]interface{}{}
	if cfg.Lang != "" {
		ctx["lang"] = cfg.Lang
	}
	if cfg.TZ != "" {
		ctx["tz"] = cfg.TZ
	}
	switch {
	case len(cfg.CompanyIDs) > 0:
		ctx["allowed_company_ids"] = append([]int(nil), cfg.CompanyIDs...)
	case cfg.CompanyID != 0:
		ctx["allowed_company_ids"] = []int{cfg.CompanyID}
	}
	return ctx
}

// mergeContext shallow-overlays base under call's own context kwarg, so a
// caller-supplied key always wins on conflict, and returns a call with the
// merged map installed — base and the caller's original Kwargs are never
// mutated.
func mergeContext(base map[string]interface{}, call wire.Call) wire.Call {
	if len(base) == 0 {
		return call
	}
	merged := make(map[string]interface{}, len(base))
	for k, v := range base {
		merged[k] = v
	}
	if existing, ok := call.Kwargs["context"].(map[string]interface{}); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}

	kwargs := make(map[string]interface{}, len(call.Kwargs)+1)
	for k, v := range call.Kwargs {
		kwargs[k] = v
	}
	kwargs["context"] = merged
	call.Kwargs = kwargs
	return call
}

// authenticate implements the credential tie-break: try the token first if
// configured; on an auth-shaped failure of the token (not any arbitrary
// backend error) fall back to the password, except on Modern-REST where the
// token is mandatory and there is no fallback.
func (m *Manager) authenticate(ctx context.Context, adapter wire.Adapter, protocol string) (uid int, credential string, usingToken bool, err error) {
	tryToken := credentialTieBreak(m.cfg)

	if tryToken {
		uid, err = adapter.Authenticate(ctx, m.cfg.Database, m.cfg.Username, "", m.cfg.APIKey)
		if err == nil {
			return uid, m.cfg.APIKey, true, nil
		}
		if protocol == constants.ProtocolModernREST || !isSessionExpiry(err) {
			return 0, "", false, err
		}
		// fall through to password only on an auth-shaped token failure
	}

	if m.cfg.Password == "" {
		return 0, "", false, fmt.Errorf("no usable credential: token failed and no password configured: %w", err)
	}
	uid, pwErr := adapter.Authenticate(ctx, m.cfg.Database, m.cfg.Username, m.cfg.Password, "")
	if pwErr != nil {
		return 0, "", false, pwErr
	}
	return uid, m.cfg.Password, false, nil
}

// isSessionExpiry reports whether a fault from Execute/Authenticate
// indicates the session/credential needs re-establishing rather than
// reflecting a permanent failure of the call itself.
func isSessionExpiry(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"session", "access denied", "invalid credentials", "unauthorized", "401", "403", "100"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// Call dispatches one RPC through the current adapter. Before the first
// call after the configured inactivity window (spec §4.3, default 5
// minutes, see DESIGN.md Open Question 2), it runs a cheap identity check
// first; on any session-expiry-shaped failure (from the identity check or
// from Execute itself) it reconnects with the standard 1s/2s/4s backoff, up
// to cfg.ReconnectMax attempts (default 3), then retries the original call
// exactly once.
func (m *Manager) Call(ctx context.Context, call wire.Call) (interface{}, error) {
	m.mu.Lock()
	if m.state != models.StateReady {
		m.mu.Unlock()
		return nil, fmt.Errorf("call: connection not ready (state=%s)", m.state)
	}

	idle := time.Since(m.lastActivity) > m.cfg.HealthCheckInterval
	adapter, uid, credential, base := m.adapter, m.uid, m.credential, m.baseContext
	m.mu.Unlock()

	call = mergeContext(base, call)

	if idle {
		if _, err := adapter.Execute(ctx, uid, credential, wire.Call{Model: "res.users", Method: "check_access_rights", Args: []interface{}{"read"}, Kwargs: map[string]interface{}{"raise_exception": false}}); err != nil && isSessionExpiry(err) {
			if reErr := m.reconnectWithBackoff(ctx); reErr != nil {
				return nil, fmt.Errorf("call: health check reconnection failed: %w", reErr)
			}
			m.mu.Lock()
			adapter, uid, credential = m.adapter, m.uid, m.credential
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()

	result, err := adapter.Execute(ctx, uid, credential, call)
	if err == nil {
		return result, nil
	}
	if !isSessionExpiry(err) {
		return nil, err
	}

	if reErr := m.reconnectWithBackoff(ctx); reErr != nil {
		return nil, fmt.Errorf("call: exhausted reconnection attempts: %w", reErr)
	}

	m.mu.Lock()
	adapter, uid, credential = m.adapter, m.uid, m.credential
	m.mu.Unlock()

	return adapter.Execute(ctx, uid, credential, call)
}

// reconnectWithBackoff transitions to RECONNECTING and retries Connect up to
// cfg.ReconnectMax times (default 3) with exponential backoff (1s, 2s, 4s,
// then 4s), per spec §4.3.
func (m *Manager) reconnectWithBackoff(ctx context.Context) error {
	m.mu.Lock()
	m.setState(models.StateReconnecting)
	m.mu.Unlock()

	var lastErr error
	for attempt := 0; m.retry.ShouldRetry(attempt); attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retry.CalculateBackoff(attempt)):
		}

		m.mu.Lock()
		err := m.connectLocked(ctx)
		m.mu.Unlock()
		if err == nil {
			return nil
		}
		lastErr = err
	}

	m.mu.Lock()
	m.setState(models.StateError)
	m.mu.Unlock()
	return lastErr
}

// Shutdown releases the adapter. It does not invalidate the backend
// session.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setState(models.StateDisconnected)
	if m.adapter != nil {
		return m.adapter.Close()
	}
	return nil
}

// Version returns the last probed/forced Odoo version.
func (m *Manager) Version() models.OdooVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// UID returns the authenticated backend uid, or 0 before Connect succeeds.
func (m *Manager) UID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uid
}
