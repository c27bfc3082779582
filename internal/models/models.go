// Package models holds the data model shared across the bridge: the wire
// version descriptor, connection state, RPC fault shape, introspected field/
// method/model metadata, the merged registry, the MCP error envelope, the
// safety policy, toolset bookkeeping, known wizards, and resource
// subscriptions (spec §3).
package models

import "time"

// OdooVersion describes a probed backend (spec §3/§4.2). Immutable for the
// lifetime of a connection.
type OdooVersion struct {
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Micro      int    `json:"micro"`
	Level      string `json:"level,omitempty"` // e.g. "alpha", "final"
	Serial     int    `json:"serial,omitempty"`
	FullString string `json:"full_string"`
	Edition    string `json:"edition"` // "community", "enterprise", or "unknown"
	Protocol   string `json:"protocol"` // constants.ProtocolLegacyXML / LegacyJSON / ModernREST
}

// ConnectionState is the Connection Manager's state machine value (spec
// §3/§4.3).
type ConnectionState string

const (
	StateDisconnected  ConnectionState = "DISCONNECTED"
	StateConnecting    ConnectionState = "CONNECTING"
	StateAuthenticated ConnectionState = "AUTHENTICATED"
	StateReady         ConnectionState = "READY"
	StateError         ConnectionState = "ERROR"
	StateReconnecting  ConnectionState = "RECONNECTING"
)

// RpcFault is the unified backend error every wire adapter produces and the
// Error Classifier consumes (spec §3).
type RpcFault struct {
	Message   string `json:"message"`
	ErrorClass string `json:"error_class,omitempty"`
	Traceback string `json:"traceback,omitempty"`
	Model     string `json:"model,omitempty"`
	Method    string `json:"method,omitempty"`
}

func (f RpcFault) Error() string { return f.Message }

// FieldInfo describes one field of one model (spec §3).
type FieldInfo struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Type     string      `json:"type"` // char,text,html,integer,float,monetary,boolean,date,datetime,binary,selection,many2one,one2many,many2many,reference
	Required bool        `json:"required"`
	ReadOnly bool        `json:"readonly"`
	Store    bool        `json:"store"`
	Help     string      `json:"help,omitempty"`
	Relation string      `json:"relation,omitempty"`
	Selection []string   `json:"selection,omitempty"`
	Default  interface{} `json:"default,omitempty"`
	Groups   []string    `json:"groups,omitempty"`
	Compute  string      `json:"compute,omitempty"`
	Depends  []string    `json:"depends,omitempty"`
}

// MethodInfo describes a model method surfaced through the execute tool.
type MethodInfo struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	AcceptsKwargs bool   `json:"accepts_kwargs"`
	Decorator     string `json:"decorator,omitempty"`
}

// StateValue is one entry of a state-like selection field's ordered value
// list.
type StateValue struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ModelInfo is one entry of the Model Registry (spec §3).
type ModelInfo struct {
	Model        string                `json:"model"`
	Name         string                `json:"name"`
	Description  string                `json:"description,omitempty"`
	Transient    bool                  `json:"transient"`
	Fields       map[string]FieldInfo  `json:"fields"`
	Methods      map[string]MethodInfo `json:"methods"`
	States       []StateValue          `json:"states,omitempty"`
	ParentModels []string              `json:"parent_models,omitempty"`
	HasChatter   bool                  `json:"has_chatter"`
}

// BuildMode is how a Registry was constructed.
type BuildMode string

const (
	BuildStatic  BuildMode = "static"
	BuildDynamic BuildMode = "dynamic"
	BuildMerged  BuildMode = "merged"
)

// Registry is the merged view of every known model (spec §3/§4.6).
type Registry struct {
	Models         map[string]*ModelInfo `json:"models"`
	Version        OdooVersion           `json:"version"`
	BuildMode      BuildMode             `json:"build_mode"`
	BuildTimestamp time.Time             `json:"build_timestamp"`
	ModelCount     int                   `json:"model_count"`
	FieldCount     int                   `json:"field_count"`
}

// NoKwargsMethods is the global, read-only set of methods never called with
// kwargs (spec §3/§4.8 "NO_KWARGS_METHODS strips kwargs").
var NoKwargsMethods = map[string]bool{
	"copy":       true,
	"name_get":   true,
	"name_search": true,
	"exists":     true,
}

// ErrorResponse is the structured payload carried inside a tool call's
// success envelope when isError is true (spec §3/§4.4/§7). Framework-level
// JSON-RPC errors are reserved for unknown-tool, bad-schema, and crash
// cases; everything else surfaces this way.
type ErrorResponse struct {
	Error        bool        `json:"error"`
	Category     string      `json:"category"`
	Code         string      `json:"code,omitempty"`
	Message      string      `json:"message"`
	Suggestion   string      `json:"suggestion,omitempty"`
	Retry        bool        `json:"retry"`
	RetryAfter   int         `json:"retry_after,omitempty"`
	Details      interface{} `json:"details,omitempty"`
	OriginalError string     `json:"original_error,omitempty"`
}

// SafetyMode is the Safety Gate's enforcement mode (spec §3/§4.5).
type SafetyMode string

const (
	ModeReadOnly   SafetyMode = "readonly"
	ModeRestricted SafetyMode = "restricted"
	ModeFull       SafetyMode = "full"
)

// SafetyPolicy controls what the Safety Gate allows (spec §3/§4.5).
// Invariant: ModelAllowlist and ModelBlocklist are not both non-empty;
// WriteAllowlist ⊆ ModelAllowlist when both are set. ModelBlocklist
// (operator-configured) denies every operation on a model;
// ModelWriteBlocklist (seeded with the built-in defaults) denies only
// write-family operations, leaving reads permitted.
type SafetyPolicy struct {
	Mode                SafetyMode
	ModelAllowlist      map[string]bool
	ModelBlocklist      map[string]bool
	ModelWriteBlocklist map[string]bool
	WriteAllowlist      map[string]bool
	FieldBlocklist      map[string]bool
	MethodBlocklist     map[string]bool

	ReadRatePerMinute  int
	WriteRatePerMinute int
	ReadBurst          int
	WriteBurst         int

	ReadRatePerHour  int
	WriteRatePerHour int
}

// ToolsetMetadata describes a registered toolset (spec §3/§4.7).
type ToolsetMetadata struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Version         string   `json:"version"`
	RequiredModules []string `json:"required_modules,omitempty"`
	MinBackendMajor int      `json:"min_backend_major,omitempty"`
	MaxBackendMajor int      `json:"max_backend_major,omitempty"`
	DependsOn       []string `json:"depends_on,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	ToolNames       []string `json:"tool_names"`
	Registered      bool     `json:"registered"`
	SkipReason      string   `json:"skip_reason,omitempty"`
}

// WizardField describes one field a known wizard's form exposes.
type WizardField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// KnownWizard is a catalog entry for one Odoo transient wizard model the
// Wizard Executor knows how to drive (spec §3/§4.10).
type KnownWizard struct {
	Model              string                 `json:"model"`
	Description        string                 `json:"description"`
	SourceModel        string                 `json:"source_model"`
	ActionMethod       string                 `json:"action_method"`
	Fields             map[string]WizardField `json:"fields,omitempty"`
	ContextKeys        []string               `json:"context_keys,omitempty"`
	AlternativeActions []string               `json:"alternative_actions,omitempty"`
	MinBackendMajor    int                    `json:"min_backend_major,omitempty"`
	MaxBackendMajor    int                    `json:"max_backend_major,omitempty"`
}

// Subscription is one client's polling subscription to a resource URI
// (spec §3/§4.11). At most 50 per client.
type Subscription struct {
	ClientID     string    `json:"client_id"`
	URI          string    `json:"uri"`
	LastSignature string   `json:"last_signature,omitempty"`
	PollInterval time.Duration `json:"poll_interval"`
	CreatedAt    time.Time `json:"created_at"`
}
