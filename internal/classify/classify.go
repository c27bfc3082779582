// Package classify implements the Error Classifier (spec §4.4): it turns a
// models.RpcFault or a plain Go error from any wire adapter into a
// models.ErrorResponse with a stable category, an optional suggestion, and
// a retryability verdict.
//
// The pattern-substring-to-category table is the same idiom as the
// teacher's mcp/server.go:categorizeError (HTTP-status/string sniffing into
// a fixed set of JSON-RPC codes); here it maps into the bridge's own
// category set instead of JSON-RPC codes, because per spec §4.4/§7 a tool
// failure is reported inside the success envelope (isError=true), not as a
// protocol-level JSON-RPC error.
package classify

import (
	"errors"
	"strings"

	"github.com/odoo-mcp/bridge/internal/models"
)

// Category is one of the fixed failure categories a classified error can
// carry (spec §4.4).
const (
	CategoryValidation    = "validation"
	CategoryAccess        = "access"
	CategoryNotFound      = "not_found"
	CategoryConstraint    = "constraint"
	CategoryState         = "state"
	CategoryWizard        = "wizard"
	CategoryConnection    = "connection"
	CategoryRateLimit     = "rate_limit"
	CategoryConfiguration = "configuration"
	CategoryUnknown       = "unknown"
)

type pattern struct {
	category   string
	retryable  bool
	suggestion string
	needles    []string
}

// patterns is ordered most-specific first; the first match wins. Retry
// verdicts follow spec §4.4 exactly: validation, not_found, constraint,
// state, wizard, connection, and rate_limit are retryable (the caller can
// adjust the payload or wait and try again); access, configuration, and
// unknown are not.
var patterns = []pattern{
	{
		category:   CategoryAccess,
		retryable:  false,
		suggestion: "verify the connected user has access rights to this model/record",
		needles:    []string{"access denied", "access rights", "not allowed", "forbidden", "403", "401"},
	},
	{
		category:   CategoryNotFound,
		retryable:  true,
		suggestion: "confirm the record id and model name are correct",
		needles:    []string{"does not exist", "no record", "not found", "404"},
	},
	{
		category:   CategoryConstraint,
		retryable:  true,
		suggestion: "the backend rejected the values on a model constraint; adjust the payload",
		needles:    []string{"constraint", "integrity", "violates", "duplicate"},
	},
	{
		category:   CategoryState,
		retryable:  true,
		suggestion: "the record is not in a state that permits this operation; check its current state field",
		needles:    []string{"in state", "current state", "invalid state", "cannot be done", "already confirmed", "already cancelled"},
	},
	{
		category:   CategoryValidation,
		retryable:  true,
		suggestion: "check required fields and field types against fields_get output",
		needles:    []string{"invalid field", "validation", "expected singleton", "missing required"},
	},
	{
		category:   CategoryWizard,
		retryable:  true,
		suggestion: "re-run the wizard discovery step; its action method may differ on this install",
		needles:    []string{"wizard", "transient"},
	},
	{
		category:   CategoryConfiguration,
		retryable:  false,
		suggestion: "a required module or setting is missing on the backend; check its configuration",
		needles:    []string{"not configured", "no default", "configuration", "no journal", "no sequence"},
	},
	{
		category:   CategoryRateLimit,
		retryable:  true,
		suggestion: "slow down request frequency; this call was throttled",
		needles:    []string{"rate limit", "too many requests", "429"},
	},
	{
		category:   CategoryConnection,
		retryable:  true,
		suggestion: "the connection will be re-established automatically on the next call",
		needles:    []string{"session", "connection refused", "timeout", "eof", "broken pipe", "unreachable", "502", "503", "504"},
	},
}

// errorClassCategories maps a backend-supplied error_class (spec §4.4 step
// 1: "error_class filter if the fault carries one") directly to a category,
// bypassing the regex table entirely. Odoo's own exception hierarchy names
// these classes; a fault that identifies itself this unambiguously is
// trusted over pattern matching.
var errorClassCategories = map[string]string{
	"odoo.exceptions.accessdenied":    CategoryAccess,
	"odoo.exceptions.accesserror":     CategoryAccess,
	"odoo.exceptions.validationerror": CategoryValidation,
	"odoo.exceptions.usererror":       CategoryValidation,
	"odoo.exceptions.missingerror":    CategoryNotFound,
	// Bare class names, as recovered from the last line of a traceback.
	"accessdenied":    CategoryAccess,
	"accesserror":     CategoryAccess,
	"validationerror": CategoryValidation,
	"usererror":       CategoryValidation,
	"missingerror":    CategoryNotFound,
}

// Classify turns err into a category, retryability verdict, and suggestion.
// A nil error classifies as the empty string with retryable=false. No match
// falls back to CategoryUnknown with retryable=false, per spec §4.4.
func Classify(err error) (category string, retryable bool, suggestion string) {
	if err == nil {
		return "", false, ""
	}
	var fault models.RpcFault
	if errors.As(err, &fault) && fault.ErrorClass != "" {
		if cat, known := errorClassCategories[strings.ToLower(fault.ErrorClass)]; known {
			return cat, retryForCategory(cat), ""
		}
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		for _, needle := range p.needles {
			if strings.Contains(msg, needle) {
				return p.category, p.retryable, p.suggestion
			}
		}
	}
	return CategoryUnknown, false, ""
}

// retryForCategory applies spec §4.4's fixed retry-by-category table for
// the error_class fast path, which does not go through the pattern list.
func retryForCategory(category string) bool {
	switch category {
	case CategoryAccess, CategoryConfiguration, CategoryUnknown:
		return false
	default:
		return true
	}
}
