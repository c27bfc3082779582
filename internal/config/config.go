// Package config defines the bridge's flat configuration surface, populated
// from cobra flags the same way the teacher's internal/config/config.go does
// it: mapstructure tags and accessor methods for derived values. A flag wins
// over its default; only url, database, username, password and api_key fall
// back to ODOO_-prefixed environment variables (read via viper in
// cmd/odoo-mcp) when the flag is empty. No configuration file is read.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
)

// Config is the full configuration surface described in spec §6.
type Config struct {
	// Connection
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	APIKey   string `mapstructure:"api_key"`

	// Protocol selection override; empty means auto-probe (spec §4.2). One
	// of "", "legacy-xml", "legacy-json", "modern-rest".
	ForceProtocol string `mapstructure:"protocol"`
	Timeout       time.Duration `mapstructure:"timeout"`
	VerifySSL     bool          `mapstructure:"verify_ssl"`
	CACert        string        `mapstructure:"ca_cert"`

	// Transport
	TransportKind string `mapstructure:"transport"` // "stdio", "sse", "streamable-http"
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Path          string `mapstructure:"path"` // default "/mcp"; not read by the transports, streamable-http always serves "/mcp"
	IAmSecurityExpert bool `mapstructure:"i_am_security_expert"`

	// Registry
	Models               []string `mapstructure:"models"`
	StaticRegistryPath   string   `mapstructure:"static_registry_path"`
	IntrospectOnStartup  bool     `mapstructure:"introspect_on_startup"`
	IntrospectModels     []string `mapstructure:"introspect_models"`

	// Safety
	SafetyMode      string   `mapstructure:"safety_mode"` // readonly | restricted | full
	ModelAllowlist  []string `mapstructure:"model_allowlist"`
	ModelBlocklist  []string `mapstructure:"model_blocklist"`
	WriteAllowlist  []string `mapstructure:"write_allowlist"`
	FieldBlocklist  []string `mapstructure:"field_blocklist"`
	MethodBlocklist []string `mapstructure:"method_blocklist"`

	// Toolsets
	EnabledToolsets  []string `mapstructure:"enabled_toolsets"`
	DisabledToolsets []string `mapstructure:"disabled_toolsets"`

	// Rate limits
	RateLimitEnabled   bool `mapstructure:"rate_limit_enabled"`
	ReadRatePerMinute  int  `mapstructure:"read_rpm"`
	WriteRatePerMinute int  `mapstructure:"write_rpm"`
	ReadRatePerHour    int  `mapstructure:"read_rph"`
	WriteRatePerHour   int  `mapstructure:"write_rph"`
	ReadBurst          int  `mapstructure:"read_burst"`
	WriteBurst         int  `mapstructure:"write_burst"`

	// Audit
	AuditEnabled   bool   `mapstructure:"audit_enabled"`
	AuditLogPath   string `mapstructure:"audit_log_path"`
	AuditLogReads  bool   `mapstructure:"audit_log_reads"`
	AuditLogWrites bool   `mapstructure:"audit_log_writes"`
	AuditLogDeletes bool  `mapstructure:"audit_log_deletes"`

	// Backend context
	Lang       string `mapstructure:"lang"`
	TZ         string `mapstructure:"tz"`
	CompanyID  int    `mapstructure:"company_id"`
	CompanyIDs []int  `mapstructure:"company_ids"`

	// Search
	DefaultSearchLimit int `mapstructure:"default_search_limit"`
	MaxSearchLimit     int `mapstructure:"max_search_limit"`
	DeepSearchMaxDepth int `mapstructure:"deep_search_max_depth"`

	// Display
	StripHTML          bool `mapstructure:"strip_html"`
	NormalizeRelational bool `mapstructure:"normalize_relational"`

	// Logging
	LogLevel string `mapstructure:"log_level"`

	// Connection manager / health
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	ReconnectMax        int           `mapstructure:"reconnect_max"`
	BackoffBase         time.Duration `mapstructure:"backoff_base"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`

	// Diagnostics
	Verbose  bool `mapstructure:"verbose"`
	Debug    bool `mapstructure:"debug"`
	TraceMCP bool `mapstructure:"trace_mcp"`
}

// Default returns a Config with every field set to its spec-mandated default.
func Default() *Config {
	return &Config{
		ForceProtocol: "",
		Timeout:       constants.DefaultRequestTimeout,
		VerifySSL:     true,

		TransportKind: "stdio",
		Host:          "127.0.0.1",
		Port:          8080,
		Path:          "/mcp",

		Models:              append([]string(nil), constants.DefaultStaticModels...),
		IntrospectOnStartup: true,

		SafetyMode:      string(models.ModeRestricted),
		FieldBlocklist:  append([]string(nil), constants.DefaultBlockedFields...),
		MethodBlocklist: append([]string(nil), constants.DefaultBlockedMethods...),

		RateLimitEnabled:   true,
		ReadRatePerMinute:  120,
		WriteRatePerMinute: 30,
		ReadRatePerHour:    3000,
		WriteRatePerHour:   600,
		ReadBurst:          20,
		WriteBurst:         5,

		AuditEnabled:    true,
		AuditLogWrites:  true,
		AuditLogDeletes: true,

		Lang: "en_US",
		TZ:   "UTC",

		DefaultSearchLimit: 80,
		MaxSearchLimit:     500,
		DeepSearchMaxDepth: 5,

		StripHTML:           true,
		NormalizeRelational: true,

		LogLevel: "info",

		HealthCheckInterval: constants.DefaultHealthCheckInterval,
		ReconnectMax:        constants.DefaultReconnectAttempts,
		BackoffBase:         constants.DefaultReconnectBaseDelay,
		RequestTimeout:      constants.DefaultRequestTimeout,
	}
}

// Validate checks that the minimum required connection fields are present.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("--url (or ODOO_URL) is required")
	}
	if c.Database == "" {
		return fmt.Errorf("--database (or ODOO_DATABASE) is required")
	}
	if c.APIKey == "" && (c.Username == "" || c.Password == "") {
		return fmt.Errorf("either --api-key or both --username and --password are required")
	}
	switch models.SafetyMode(c.SafetyMode) {
	case models.ModeReadOnly, models.ModeRestricted, models.ModeFull:
	default:
		return fmt.Errorf("safety mode must be one of readonly, restricted, full (got %q)", c.SafetyMode)
	}
	if c.ForceProtocol == constants.ProtocolModernREST && c.APIKey == "" {
		return fmt.Errorf("modern-rest requires --api-key; password auth is not supported on this protocol")
	}
	return nil
}

// HasAPIKeyAuth reports whether the bridge should authenticate with a static
// bearer key instead of a login/password pair.
func (c *Config) HasAPIKeyAuth() bool { return c.APIKey != "" }

// IsReadOnly reports whether write/unlink/execute tools should be withheld
// entirely (spec §4.5 — absent, not merely rejecting at call time).
func (c *Config) IsReadOnly() bool { return models.SafetyMode(c.SafetyMode) == models.ModeReadOnly }

// BuildSafetyPolicy builds the models.SafetyPolicy the Safety Gate enforces,
// unioning the configured field/method blocklists with the built-in
// defaults (spec §4.5: "default blocklists always unioned with
// user-provided ones"). The default model set is write-blocked only (spec
// §4.5: "read permitted, write blocked unless explicitly overridden");
// hard all-operation blocking applies to the operator-configured
// --model-blocklist alone. With RateLimitEnabled false every rate is zero,
// which the rate limiter treats as unlimited.
func (c *Config) BuildSafetyPolicy() models.SafetyPolicy {
	p := models.SafetyPolicy{
		Mode:                models.SafetyMode(c.SafetyMode),
		ModelAllowlist:      toSet(c.ModelAllowlist),
		ModelBlocklist:      toSet(c.ModelBlocklist),
		ModelWriteBlocklist: toSet(constants.DefaultBlockedModels),
		WriteAllowlist:      toSet(c.WriteAllowlist),
		FieldBlocklist:      unionSet(constants.DefaultBlockedFields, c.FieldBlocklist),
		MethodBlocklist:     unionSet(constants.DefaultBlockedMethods, c.MethodBlocklist),

		ReadRatePerMinute:  c.ReadRatePerMinute,
		WriteRatePerMinute: c.WriteRatePerMinute,
		ReadBurst:          c.ReadBurst,
		WriteBurst:         c.WriteBurst,
		ReadRatePerHour:    c.ReadRatePerHour,
		WriteRatePerHour:   c.WriteRatePerHour,
	}
	if !c.RateLimitEnabled {
		p.ReadRatePerMinute, p.WriteRatePerMinute = 0, 0
		p.ReadRatePerHour, p.WriteRatePerHour = 0, 0
	}
	return p
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, v := range items {
		set[v] = true
	}
	return set
}

func unionSet(defaults, extra []string) map[string]bool {
	set := make(map[string]bool, len(defaults)+len(extra))
	for _, v := range defaults {
		set[v] = true
	}
	for _, v := range extra {
		set[v] = true
	}
	return set
}

// Addr returns the transport's configured "host:port" for SSE/streamable-HTTP.
func (c *Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// IsLocalhostAddr mirrors the teacher's main.go security check: binding an
// HTTP transport to a non-loopback address requires an explicit
// acknowledgement flag.
func IsLocalhostAddr(addr string) bool {
	host := addr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		host = addr[:idx]
	}
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
