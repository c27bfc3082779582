// Package constants holds shared defaults, limits, and lookup tables used
// across the bridge: protocol names, tool operation codes, default models,
// and the static blocklists the safety gate starts from.
package constants

import (
	"time"

	"github.com/odoo-mcp/bridge/internal/models"
)

// Wire protocol identifiers (spec §4.1).
const (
	ProtocolLegacyXML   = "legacy-xml"
	ProtocolLegacyJSON  = "legacy-json"
	ProtocolModernREST  = "modern-rest"
)

// Tool operation codes, mirroring the teacher's OpFilter/OpCount/... family
// but over Odoo's CRUD surface.
const (
	OpSearchRead  = "search_read"
	OpRead        = "read"
	OpCount       = "count"
	OpFieldsGet   = "fields_get"
	OpNameGet     = "name_get"
	OpDefaultGet  = "default_get"
	OpCreate      = "create"
	OpWrite       = "write"
	OpUnlink      = "unlink"
	OpExecute     = "execute"
	OpListModels  = "list_models"
)

// ToolOperationNames maps an operation code to its generated tool name suffix.
var ToolOperationNames = map[string]string{
	OpSearchRead: "search_read",
	OpRead:       "read",
	OpCount:      "count",
	OpFieldsGet:  "fields_get",
	OpNameGet:    "name_get",
	OpDefaultGet: "default_get",
	OpCreate:     "create",
	OpWrite:      "write",
	OpUnlink:     "unlink",
	OpExecute:    "execute",
	OpListModels: "list_models",
}

// Default connection/registry tunables.
const (
	DefaultHealthCheckInterval = 5 * time.Minute
	DefaultRequestTimeout      = 30 * time.Second
	DefaultMetadataTimeout     = 60 * time.Second
	DefaultIntrospectionBudget = 60 * time.Second
	DefaultMaxInFlightIntro    = 5
	DefaultSubscriptionPoll    = 60 * time.Second
	DefaultMaxSubscriptions    = 50
	DefaultReconnectAttempts   = 3
	DefaultReconnectBaseDelay  = 1 * time.Second
	MaxWizardChainDepth        = 3
)

// DefaultBackorderAction is the action_method invoked for a
// stock.backorder.confirmation wizard when the caller does not specify
// which of the model's two action methods to take (see DESIGN.md, Open
// Question 3). "process_cancel_backorder" completes the transfer without
// creating a backorder for the remainder, the safer default for an
// automation-driven caller that has not explicitly asked for a backorder.
const DefaultBackorderAction = "process_cancel_backorder"

// DefaultStaticModels is the built-in model list used when the registry has
// no explicit --models override and dynamic introspection is disabled or
// fails (spec §4.6, Open Question 1 — see DESIGN.md). This is the
// "approximately 30 models" default the spec leaves to the implementer,
// exposed via the registry.static-path / registry.introspect-models
// configuration so an operator can override it per deployment.
var DefaultStaticModels = []string{
	"res.partner",
	"res.partner.category",
	"res.users",
	"res.company",
	"product.product",
	"product.template",
	"product.category",
	"product.pricelist",
	"sale.order",
	"sale.order.line",
	"purchase.order",
	"purchase.order.line",
	"account.move",
	"account.move.line",
	"account.payment",
	"account.journal",
	"account.tax",
	"stock.picking",
	"stock.move",
	"stock.move.line",
	"stock.location",
	"stock.quant",
	"crm.lead",
	"crm.stage",
	"project.project",
	"project.task",
	"hr.employee",
	"hr.department",
	"mail.message",
	"helpdesk.ticket",
}

// DefaultMethodCatalog seeds each default model's surfaced public methods
// (spec §4.6: "fetch methods... e.g. via ir.model.methods or a
// source-derived static catalog"). Odoo has no generic RPC that enumerates a
// model's methods the way fields_get enumerates its fields, so this is
// hand-curated from the community addons' own public action_*/button_*
// method names — the same "know the source ahead of time" idiom the static
// model catalog itself follows.
var DefaultMethodCatalog = map[string]map[string]models.MethodInfo{
	"sale.order": {
		"action_confirm": {Name: "action_confirm", Description: "Confirm a draft/sent quotation into a sales order.", AcceptsKwargs: false},
		"action_cancel":  {Name: "action_cancel", Description: "Cancel a sales order.", AcceptsKwargs: false},
	},
	"account.move": {
		"action_post":   {Name: "action_post", Description: "Post a draft journal entry or customer/vendor invoice.", AcceptsKwargs: false},
		"button_cancel": {Name: "button_cancel", Description: "Cancel a posted or draft journal entry.", AcceptsKwargs: false},
	},
	"stock.picking": {
		"button_validate": {Name: "button_validate", Description: "Validate a stock transfer; may return a backorder-confirmation wizard action.", AcceptsKwargs: false},
	},
	"crm.lead": {
		"action_set_won":  {Name: "action_set_won", Description: "Mark an opportunity as won.", AcceptsKwargs: false},
		"action_set_lost": {Name: "action_set_lost", Description: "Mark an opportunity as lost.", AcceptsKwargs: true},
	},
	"purchase.order": {
		"button_confirm": {Name: "button_confirm", Description: "Confirm a request for quotation into a purchase order.", AcceptsKwargs: false},
	},
}

// DefaultBlockedModels are write-blocked out of the box regardless of safety
// mode (spec §4.5): reads are permitted (res.users is the relational target
// of every create_uid/write_uid/assignee many2one) but create/write/unlink/
// execute are denied unless explicitly overridden. Hard all-operation
// blocking is reserved for an operator-configured model blocklist.
var DefaultBlockedModels = []string{
	"res.users",
	"res.groups",
	"ir.rule",
	"ir.model.access",
	"ir.config_parameter",
	"ir.cron",
	"ir.mail_server",
	"payment.provider",
	"payment.acquirer",
	"base.automation",
}

// DefaultBlockedFields are stripped from every read/write regardless of model.
var DefaultBlockedFields = []string{
	"password",
	"password_crypt",
	"signature",
}

// DefaultBlockedMethods may never be invoked through execute/wizard tools.
var DefaultBlockedMethods = []string{
	"unlink",
	"write",
	"execute",
	"execute_kw",
	"sudo",
}

// toolAnnotations is the static per-operation annotation table spec §4.7
// computes tool hints from: readOnlyHint (never mutates), destructiveHint
// (irreversible outside a backup), idempotentHint (repeating the call with
// the same arguments has no further effect), and openWorldHint (touches a
// system outside the bridge's own process, true for every Odoo RPC).
var toolAnnotations = map[string]map[string]interface{}{
	OpSearchRead: {"readOnlyHint": true, "destructiveHint": false, "idempotentHint": true, "openWorldHint": true},
	OpRead:       {"readOnlyHint": true, "destructiveHint": false, "idempotentHint": true, "openWorldHint": true},
	OpCount:      {"readOnlyHint": true, "destructiveHint": false, "idempotentHint": true, "openWorldHint": true},
	OpFieldsGet:  {"readOnlyHint": true, "destructiveHint": false, "idempotentHint": true, "openWorldHint": true},
	OpNameGet:    {"readOnlyHint": true, "destructiveHint": false, "idempotentHint": true, "openWorldHint": true},
	OpDefaultGet: {"readOnlyHint": true, "destructiveHint": false, "idempotentHint": true, "openWorldHint": true},
	OpListModels: {"readOnlyHint": true, "destructiveHint": false, "idempotentHint": true, "openWorldHint": true},
	OpCreate:     {"readOnlyHint": false, "destructiveHint": false, "idempotentHint": false, "openWorldHint": true},
	OpWrite:      {"readOnlyHint": false, "destructiveHint": false, "idempotentHint": true, "openWorldHint": true},
	OpUnlink:     {"readOnlyHint": false, "destructiveHint": true, "idempotentHint": true, "openWorldHint": true},
	OpExecute:    {"readOnlyHint": false, "destructiveHint": true, "idempotentHint": false, "openWorldHint": true},
}

// AnnotationsFor returns a fresh copy of op's static annotation set, or a
// conservative default (mutating, non-idempotent, world-touching) for an
// operation code outside the table above.
func AnnotationsFor(op string) map[string]interface{} {
	src, ok := toolAnnotations[op]
	if !ok {
		src = map[string]interface{}{"readOnlyHint": false, "destructiveHint": false, "idempotentHint": false, "openWorldHint": true}
	}
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// MCPProtocolVersion is the JSON-RPC MCP protocol version advertised at
// initialize.
const MCPProtocolVersion = "2024-11-05"

const (
	MCPServerName    = "odoo-mcp-bridge"
	MCPServerVersion = "1.0.0"
)
