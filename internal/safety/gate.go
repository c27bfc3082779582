// Package safety implements the Safety Gate (spec §4.5): a pure function of
// (mode, operation, model, field set, method) layered with model/field/
// method blocklists, a read/write rate limiter, and an append-only audit
// log. Every tool invocation passes through Check before it reaches the
// connection manager; a denial short-circuits the call and is itself an
// audit entry.
package safety

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/odoo-mcp/bridge/internal/models"
)

// Gate enforces one SafetyPolicy against a stream of tool invocations.
type Gate struct {
	policy   models.SafetyPolicy
	limiter  *RateLimiter
	audit    *AuditWriter
	logReads bool
}

// New builds a Gate from the given policy, wiring up a rate limiter sized to
// the policy's budgets and an audit writer at auditPath (empty disables
// persistence but still enforces the policy).
func New(policy models.SafetyPolicy, auditPath string) (*Gate, error) {
	audit, err := NewAuditWriter(auditPath)
	if err != nil {
		return nil, fmt.Errorf("safety: open audit log: %w", err)
	}
	return &Gate{
		policy:  policy,
		limiter: NewRateLimiter(policy.ReadRatePerMinute, policy.ReadBurst, policy.WriteRatePerMinute, policy.WriteBurst, policy.ReadRatePerHour, policy.WriteRatePerHour),
		audit:   audit,
	}, nil
}

// readOps is the operation set permitted in readonly mode (spec §4.5).
var readOps = map[string]bool{
	"search_read":  true,
	"read":         true,
	"count":        true,
	"fields_get":   true,
	"name_get":     true,
	"default_get":  true,
	"list_models":  true,
}

// IsWriteOperation reports whether op mutates backend state, for rate-limit
// bucket selection.
func IsWriteOperation(op string) bool {
	switch op {
	case "create", "write", "unlink", "execute":
		return true
	default:
		return false
	}
}

// modePermits implements the exact per-mode permission matrix from spec
// §4.5, independent of blocklists (those are checked separately so the
// monotonicity property readonly ⊆ restricted ⊆ full holds regardless of
// how the blocklists are configured):
//
//   - readonly: only the read-family operations are permitted.
//   - restricted: read-family operations are always permitted; create,
//     write, and execute are permitted only when model is in the write
//     allowlist; unlink is always rejected.
//   - full: every operation is permitted (blocklists still apply).
func modePermits(mode models.SafetyMode, op, model string, writeAllowlist map[string]bool) bool {
	if readOps[op] {
		return true
	}
	switch mode {
	case models.ModeReadOnly:
		return false
	case models.ModeRestricted:
		if op == "unlink" {
			return false
		}
		return writeAllowlist[model]
	case models.ModeFull:
		return true
	default:
		return false
	}
}

// Check validates one (model, op, fields) invocation against the policy and
// rate limiter, recording the decision in the audit log regardless of
// outcome. A non-nil error means the call must not proceed. The method name
// for an execute op is passed as fields[0] by convention.
func (g *Gate) Check(ctx context.Context, sessionID, model, op string, fields []string) error {
	write := IsWriteOperation(op)

	if g.policy.ModelBlocklist[model] {
		return g.deny(sessionID, model, op, fmt.Errorf("safety: model %q is blocked", model))
	}
	// The built-in defaults are write-blocked only (spec §4.5: "read
	// permitted, write blocked unless explicitly overridden") — denying
	// reads on res.users would break every create_uid/write_uid lookup.
	if write && g.policy.ModelWriteBlocklist[model] {
		return g.deny(sessionID, model, op, fmt.Errorf("safety: model %q is write-blocked; only read operations are permitted on it", model))
	}
	if len(g.policy.ModelAllowlist) > 0 && !g.policy.ModelAllowlist[model] {
		return g.deny(sessionID, model, op, fmt.Errorf("safety: model %q is not in the allowed model list", model))
	}

	for _, f := range fields {
		if g.policy.FieldBlocklist[f] {
			return g.deny(sessionID, model, op, fmt.Errorf("safety: field %q is blocked", f))
		}
	}

	if op == "execute" && len(fields) > 0 && g.policy.MethodBlocklist[fields[0]] {
		return g.deny(sessionID, model, op, fmt.Errorf("safety: method %q is blocked", fields[0]))
	}

	if !modePermits(g.policy.Mode, op, model, g.policy.WriteAllowlist) {
		return g.deny(sessionID, model, op, fmt.Errorf("safety: %s on %q is not permitted in %s mode", op, model, g.policy.Mode))
	}

	if !g.limiter.Allow(ctx, write) {
		return g.deny(sessionID, model, op, fmt.Errorf("safety: rate limit exceeded for %s operations", map[bool]string{true: "write", false: "read"}[write]))
	}

	// Write ops get their full entry (values, result id, duration) from
	// RecordCall once the backend call completes; a permitted read is only
	// recorded when read logging is enabled (spec §4.5).
	if !write && g.logReads {
		g.audit.Record(sessionID, model, op, true, "")
	}
	return nil
}

// SetLogReads controls whether permitted read operations are audited.
// Denials and write operations are always recorded regardless.
func (g *Gate) SetLogReads(enabled bool) { g.logReads = enabled }

// RecordCall appends the full audit entry for a tool invocation that reached
// the backend. Read-family operations respect the read-logging switch; every
// write lands in the log.
func (g *Gate) RecordCall(sessionID, tool, model, op string, values map[string]interface{}, resultID interface{}, success bool, duration time.Duration, uid int) {
	if !IsWriteOperation(op) && !g.logReads {
		return
	}
	g.audit.RecordCall(sessionID, tool, model, op, values, resultID, success, duration, uid)
}

func (g *Gate) deny(sessionID, model, op string, err error) error {
	g.audit.Record(sessionID, model, op, false, err.Error())
	return err
}

// FilterFields strips blocklisted keys out of a fields_get-shaped response
// (spec §4.8 "fields_get: blocklisted fields stripped").
func (g *Gate) FilterFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for name, meta := range fields {
		if g.policy.FieldBlocklist[name] {
			continue
		}
		out[name] = meta
	}
	return out
}

// FilterModels strips blocklisted (and, if an allowlist is set,
// non-allowlisted) model names out of a list_models response (spec §4.8
// "list_models: blocklisted models stripped"). Write-blocked defaults are
// stripped too: they stay readable by name but are not advertised.
func (g *Gate) FilterModels(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if g.policy.ModelBlocklist[name] || g.policy.ModelWriteBlocklist[name] {
			continue
		}
		if len(g.policy.ModelAllowlist) > 0 && !g.policy.ModelAllowlist[name] {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Close flushes and closes the audit log.
func (g *Gate) Close() error { return g.audit.Close() }

// PolicySummary renders the active SafetyPolicy as a plain map for the
// config/safety resource (spec §4.11): mode plus the effective (already
// defaults-unioned) blocklists/allowlists, never the raw audit log.
func (g *Gate) PolicySummary() map[string]interface{} {
	return map[string]interface{}{
		"mode":                  string(g.policy.Mode),
		"model_allowlist":       setKeys(g.policy.ModelAllowlist),
		"model_blocklist":       setKeys(g.policy.ModelBlocklist),
		"model_write_blocklist": setKeys(g.policy.ModelWriteBlocklist),
		"write_allowlist":       setKeys(g.policy.WriteAllowlist),
		"field_blocklist":       setKeys(g.policy.FieldBlocklist),
		"method_blocklist":      setKeys(g.policy.MethodBlocklist),
		"read_rate_per_minute":  g.policy.ReadRatePerMinute,
		"write_rate_per_minute": g.policy.WriteRatePerMinute,
		"read_rate_per_hour":    g.policy.ReadRatePerHour,
		"write_rate_per_hour":   g.policy.WriteRatePerHour,
	}
}

func setKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
