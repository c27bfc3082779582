package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/odoo-mcp/bridge/internal/config"
	"github.com/odoo-mcp/bridge/internal/connection"
	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/debug"
	"github.com/odoo-mcp/bridge/internal/mcp"
	"github.com/odoo-mcp/bridge/internal/odooversion"
	"github.com/odoo-mcp/bridge/internal/registry"
	"github.com/odoo-mcp/bridge/internal/resource"
	"github.com/odoo-mcp/bridge/internal/safety"
	"github.com/odoo-mcp/bridge/internal/tools"
	"github.com/odoo-mcp/bridge/internal/toolset"
	"github.com/odoo-mcp/bridge/internal/transport"
	transporthttp "github.com/odoo-mcp/bridge/internal/transport/http"
	"github.com/odoo-mcp/bridge/internal/transport/stdio"
)

var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:   "odoo-mcp [odoo-url]",
	Short: "Odoo to MCP Bridge - exposes an Odoo backend as Model Context Protocol tools and resources",
	Long: `Odoo to MCP Bridge.

Bridges an Odoo backend (any of the legacy XML-RPC, legacy JSON-RPC, or
modern REST wire protocols, auto-detected) to the Model Context Protocol,
exposing CRUD, deep search, and wizard-execution tools plus odoo:// resources
over stdio, legacy SSE, or streamable HTTP.

Examples:
  odoo-mcp --url https://my-odoo.example.com --database prod --api-key ...
  odoo-mcp --url https://my-odoo.example.com --database prod -u admin -p secret --safety-mode readonly
  odoo-mcp --transport streamable-http --host 127.0.0.1 --port 8765 https://my-odoo.example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBridge,
}

func init() {
	godotenv.Load()

	flags := rootCmd.Flags()

	flags.StringVar(&cfg.URL, "url", "", "Base URL of the Odoo backend (overrides positional argument and ODOO_URL env var)")
	flags.StringVar(&cfg.Database, "database", "", "Odoo database name")
	flags.StringVarP(&cfg.Username, "username", "u", "", "Username for password authentication")
	flags.StringVarP(&cfg.Password, "password", "p", "", "Password for password authentication")
	flags.StringVar(&cfg.APIKey, "api-key", "", "API key (preferred over username/password; mandatory for modern-rest)")
	flags.StringVar(&cfg.ForceProtocol, "protocol", "", "Force a wire protocol instead of auto-probing: legacy-xml, legacy-json, or modern-rest")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout (not read; the per-RPC timeout is --request-timeout)")
	flags.BoolVar(&cfg.VerifySSL, "verify-ssl", cfg.VerifySSL, "Verify TLS certificates (not read; the adapters always use Go's default TLS verification)")
	flags.StringVar(&cfg.CACert, "ca-cert", "", "Path to a CA certificate bundle for TLS verification (not read; the adapters always use Go's default TLS verification)")

	flags.StringVar(&cfg.TransportKind, "transport", cfg.TransportKind, "Transport: stdio, sse, or streamable-http")
	flags.StringVar(&cfg.Host, "host", cfg.Host, "Bind host for sse/streamable-http transports")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "Bind port for sse/streamable-http transports")
	flags.StringVar(&cfg.Path, "path", cfg.Path, "Endpoint path for streamable-http transport (not read; streamable-http always serves /mcp)")
	flags.BoolVar(&cfg.IAmSecurityExpert, "i-am-security-expert-i-know-what-i-am-doing", false, "DANGEROUS: allow non-localhost sse/streamable-http binds. MCP has no authentication!")

	flags.StringSliceVar(&cfg.Models, "models", cfg.Models, "Static model catalog to seed the registry with")
	flags.StringVar(&cfg.StaticRegistryPath, "static-registry-path", "", "Path to a JSON file overriding the built-in static model catalog")
	flags.BoolVar(&cfg.IntrospectOnStartup, "introspect-on-startup", cfg.IntrospectOnStartup, "Run live fields_get introspection against the backend at startup")
	flags.StringSliceVar(&cfg.IntrospectModels, "introspect-models", nil, "Extra models to introspect beyond the static catalog")

	flags.StringVar(&cfg.SafetyMode, "safety-mode", cfg.SafetyMode, "Safety Gate mode: readonly, restricted, or full")
	flags.StringSliceVar(&cfg.ModelAllowlist, "model-allowlist", nil, "If set, only these models are reachable")
	flags.StringSliceVar(&cfg.ModelBlocklist, "model-blocklist", nil, "Models to block entirely (all operations); the built-in defaults stay write-blocked either way")
	flags.StringSliceVar(&cfg.WriteAllowlist, "write-allowlist", nil, "If set, only these models accept create/write/unlink/execute")
	flags.StringSliceVar(&cfg.FieldBlocklist, "field-blocklist", nil, "Additional fields to strip from every response, unioned with the built-in defaults")
	flags.StringSliceVar(&cfg.MethodBlocklist, "method-blocklist", nil, "Additional execute() methods to block, unioned with the built-in defaults")

	flags.StringSliceVar(&cfg.EnabledToolsets, "enabled-toolsets", nil, "If set, only these toolsets are registered")
	flags.StringSliceVar(&cfg.DisabledToolsets, "disabled-toolsets", nil, "Toolsets to skip even if their prerequisites are met")

	flags.BoolVar(&cfg.RateLimitEnabled, "rate-limit-enabled", cfg.RateLimitEnabled, "Enable the Safety Gate's rate limiter")
	flags.IntVar(&cfg.ReadRatePerMinute, "read-rpm", cfg.ReadRatePerMinute, "Sustained read calls per minute")
	flags.IntVar(&cfg.WriteRatePerMinute, "write-rpm", cfg.WriteRatePerMinute, "Sustained write calls per minute")
	flags.IntVar(&cfg.ReadBurst, "read-burst", cfg.ReadBurst, "Read burst allowance")
	flags.IntVar(&cfg.WriteBurst, "write-burst", cfg.WriteBurst, "Write burst allowance")
	flags.IntVar(&cfg.ReadRatePerHour, "read-rph", cfg.ReadRatePerHour, "Sustained read calls per hour")
	flags.IntVar(&cfg.WriteRatePerHour, "write-rph", cfg.WriteRatePerHour, "Sustained write calls per hour")

	flags.BoolVar(&cfg.AuditEnabled, "audit-enabled", cfg.AuditEnabled, "Enable the append-only audit log")
	flags.StringVar(&cfg.AuditLogPath, "audit-log-path", "", "Path to the audit log file (empty disables persistence even if audit-enabled)")
	flags.BoolVar(&cfg.AuditLogReads, "audit-log-reads", cfg.AuditLogReads, "Audit read operations, not only writes/deletes")

	flags.StringVar(&cfg.Lang, "lang", cfg.Lang, "Odoo language context")
	flags.StringVar(&cfg.TZ, "tz", cfg.TZ, "Odoo timezone context")
	flags.IntVar(&cfg.CompanyID, "company-id", 0, "Active company id context")
	flags.IntSliceVar(&cfg.CompanyIDs, "company-ids", nil, "Allowed company ids context (overrides --company-id when set)")

	flags.IntVar(&cfg.DefaultSearchLimit, "default-search-limit", cfg.DefaultSearchLimit, "Default search_read limit when the caller omits one")
	flags.IntVar(&cfg.MaxSearchLimit, "max-search-limit", cfg.MaxSearchLimit, "Hard cap on any search_read limit (not read; search_read uses a fixed cap of 500 and falls back to the default limit above it)")
	flags.IntVar(&cfg.DeepSearchMaxDepth, "deep-search-max-depth", cfg.DeepSearchMaxDepth, "Maximum relation hops the deep search tool will traverse (not read; deep search always runs its five fixed levels)")

	flags.BoolVar(&cfg.StripHTML, "strip-html", cfg.StripHTML, "Strip HTML markup from html-typed fields in tool output")
	flags.BoolVar(&cfg.NormalizeRelational, "normalize-relational", cfg.NormalizeRelational, "Normalize many2one [id, display_name] pairs into structured objects (not read; many2one pairs are always normalized)")

	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error (not read by any component)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose startup logging to stderr")
	flags.BoolVar(&cfg.Debug, "debug", false, "Alias for --verbose")
	flags.BoolVar(&cfg.TraceMCP, "trace-mcp", false, "Trace every JSON-RPC message to a temp file for debugging")

	flags.DurationVar(&cfg.HealthCheckInterval, "health-check-interval", cfg.HealthCheckInterval, "Idle window before a lazy health check precedes the next call")
	flags.IntVar(&cfg.ReconnectMax, "reconnect-max", cfg.ReconnectMax, "Maximum reconnection attempts after a session expiry")
	flags.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Per-RPC timeout enforced by the wire adapter")

	viper.BindPFlag("url", flags.Lookup("url"))
	viper.BindPFlag("database", flags.Lookup("database"))
	viper.BindPFlag("username", flags.Lookup("username"))
	viper.BindPFlag("password", flags.Lookup("password"))
	viper.BindPFlag("api_key", flags.Lookup("api-key"))
	viper.BindPFlag("verbose", flags.Lookup("verbose"))

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetEnvPrefix("ODOO")
}

func runBridge(cmd *cobra.Command, args []string) error {
	if cfg.Debug {
		cfg.Verbose = true
	}

	if cfg.URL == "" && len(args) > 0 {
		cfg.URL = args[0]
	}
	if cfg.URL == "" {
		cfg.URL = viper.GetString("URL")
	}
	if cfg.Database == "" {
		cfg.Database = viper.GetString("DATABASE")
	}
	if cfg.Username == "" {
		cfg.Username = viper.GetString("USERNAME")
	}
	if cfg.Password == "" {
		cfg.Password = viper.GetString("PASSWORD")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = viper.GetString("API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] connecting to %s (database=%s, safety-mode=%s)\n", cfg.URL, cfg.Database, cfg.SafetyMode)
	}

	gate, err := safety.New(cfg.BuildSafetyPolicy(), auditPathFor(cfg))
	if err != nil {
		return fmt.Errorf("failed to build safety gate: %w", err)
	}
	gate.SetLogReads(cfg.AuditLogReads)

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	conn := connection.New(cfg, odooversion.DefaultProbes(cfg.RequestTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout*3)
	connErr := conn.Connect(ctx)
	cancel()
	if connErr != nil {
		return fmt.Errorf("failed to connect to Odoo backend: %w", connErr)
	}

	if cfg.IntrospectOnStartup {
		introCtx, introCancel := context.WithTimeout(context.Background(), constants.DefaultIntrospectionBudget)
		if err := reg.Refresh(introCtx, conn, cfg.IntrospectModels, constants.DefaultMaxInFlightIntro); err != nil && cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] registry introspection incomplete: %v\n", err)
		}
		introCancel()
	}

	report := tools.NewToolsetReport()
	toolDeps := &tools.Deps{Conn: conn, Registry: reg, Gate: gate, Config: cfg, UID: conn.UID}

	framework := toolset.New()
	for _, ts := range []*toolset.Toolset{
		tools.BuildCRUDToolset(toolDeps),
		tools.BuildDeepSearchToolset(toolDeps),
		tools.BuildWizardToolset(toolDeps),
		tools.BuildMetaToolset(toolDeps, report),
	} {
		ts.Gate = toolsetFilterGate(ts.Name, ts.Gate, cfg)
		mustRegister(framework, ts)
	}

	buildCtx := context.Background()
	builtTools, results, err := framework.BuildAll(buildCtx)
	if err != nil {
		return fmt.Errorf("failed to build toolsets: %w", err)
	}
	report.Set(framework.Report(results))
	if cfg.Verbose {
		for _, r := range results {
			switch {
			case r.Err != nil:
				fmt.Fprintf(os.Stderr, "[VERBOSE] toolset %q failed: %v\n", r.Name, r.Err)
			case r.SkipReason != "":
				fmt.Fprintf(os.Stderr, "[VERBOSE] toolset %q skipped: %s\n", r.Name, r.SkipReason)
			default:
				fmt.Fprintf(os.Stderr, "[VERBOSE] toolset %q registered %d tools\n", r.Name, len(r.Tools))
			}
		}
	}

	resEngine := resource.New(&resource.Deps{
		Conn:     conn,
		Registry: reg,
		Gate:     gate,
		Config:   cfg,
		Report:   report,
		Version:  conn.Version,
	})

	server := mcp.NewServer("odoo-mcp-bridge", "1.0.0")
	server.SetTools(builtTools)
	server.SetResources(resEngine)

	var tracer *debug.TraceLogger
	if cfg.TraceMCP {
		tracer, err = debug.NewTraceLogger(true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] failed to create trace logger: %v\n", err)
		} else {
			defer tracer.Close()
			fmt.Fprintf(os.Stderr, "[TRACE] tracing to %s\n", tracer.GetFilename())
		}
	}

	handler := func(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
		return server.HandleMessage(ctx, msg)
	}

	trans, err := buildTransport(cfg, handler, tracer)
	if err != nil {
		return err
	}
	server.SetTransport(trans)

	pollCtx, pollCancel := context.WithCancel(context.Background())
	defer pollCancel()
	go resEngine.RunSubscriptionPoller(pollCtx, func(clientID, uri string) {
		_ = server.NotifyResourceUpdated(uri)
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run()
	}()

	select {
	case sig := <-sigChan:
		fmt.Fprintf(os.Stderr, "\n%s received, shutting down...\n", sig)
		server.Stop()
		pollCancel()
		_ = conn.Shutdown()
		return nil
	case err := <-errChan:
		pollCancel()
		_ = conn.Shutdown()
		return err
	}
}

// buildRegistry seeds the Model Registry either from a previously generated
// static catalog file (--static-registry-path, spec §4.6) or from the
// built-in/--models name list.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.StaticRegistryPath == "" {
		return registry.New(cfg.Models), nil
	}
	catalog, err := registry.LoadStatic(cfg.StaticRegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load static registry catalog: %w", err)
	}
	return registry.NewFromCatalog(catalog), nil
}

// auditPathFor returns the configured audit log path, or "" when auditing is
// disabled outright (NewAuditWriter("") drops every record while still
// letting the Safety Gate enforce the policy).
func auditPathFor(cfg *config.Config) string {
	if !cfg.AuditEnabled {
		return ""
	}
	return cfg.AuditLogPath
}

func mustRegister(f *toolset.Framework, ts *toolset.Toolset) {
	if err := f.Register(ts); err != nil {
		panic(err) // only reachable on a duplicate toolset name, a programming error
	}
}

// toolsetFilterGate wraps a toolset's own Gate (if any) with the
// cfg.EnabledToolsets/DisabledToolsets config filter (spec §4.7 step 3:
// config-driven allow/deny is itself a skip reason, not a failure). The
// config filter is checked first so a disabled toolset never runs its own
// (possibly expensive) prerequisite probe.
func toolsetFilterGate(name string, inner func(ctx context.Context) string, cfg *config.Config) func(ctx context.Context) string {
	enabled := toSet(cfg.EnabledToolsets)
	disabled := toSet(cfg.DisabledToolsets)
	if len(enabled) == 0 && len(disabled) == 0 {
		return inner
	}
	return func(ctx context.Context) string {
		if disabled[name] {
			return "disabled via --disabled-toolsets"
		}
		if len(enabled) > 0 && !enabled[name] {
			return "not in --enabled-toolsets"
		}
		if inner != nil {
			return inner(ctx)
		}
		return ""
	}
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

func buildTransport(cfg *config.Config, handler transport.Handler, tracer *debug.TraceLogger) (transport.Transport, error) {
	switch cfg.TransportKind {
	case "sse", "streamable-http":
		addr := cfg.Addr()
		if !cfg.IAmSecurityExpert && !config.IsLocalhostAddr(addr) {
			fmt.Fprintf(os.Stderr, "\nSECURITY WARNING\n")
			fmt.Fprintf(os.Stderr, "HTTP/SSE transport is UNPROTECTED - no authentication!\n")
			fmt.Fprintf(os.Stderr, "For security, it is restricted to localhost only.\n")
			fmt.Fprintf(os.Stderr, "Current address %q is not localhost.\n\n", addr)
			fmt.Fprintf(os.Stderr, "To bind to localhost, use --host 127.0.0.1\n")
			fmt.Fprintf(os.Stderr, "To expose this service anyway (DANGEROUS), pass --i-am-security-expert-i-know-what-i-am-doing\n\n")
			return nil, fmt.Errorf("refusing to start unprotected %s transport on non-localhost address %q", cfg.TransportKind, addr)
		}
		if cfg.IAmSecurityExpert && !config.IsLocalhostAddr(addr) {
			fmt.Fprintf(os.Stderr, "\nEXTREME SECURITY WARNING\n")
			fmt.Fprintf(os.Stderr, "Exposing an UNPROTECTED MCP service to the network at %s.\n", addr)
			fmt.Fprintf(os.Stderr, "MCP has no authentication mechanism - anyone reaching this address has full access.\n\n")
		}
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] starting %s transport on %s\n", cfg.TransportKind, addr)
		}
		if cfg.TransportKind == "sse" {
			return transporthttp.NewSSE(addr, handler), nil
		}
		return transporthttp.NewStreamableHTTP(addr, handler, cfg.IAmSecurityExpert), nil
	case "stdio":
		fallthrough
	default:
		if cfg.Verbose {
			fmt.Fprintf(os.Stderr, "[VERBOSE] using stdio transport\n")
		}
		t := stdio.New(handler)
		if tracer != nil {
			t.SetTracer(tracer)
		}
		return t, nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\n--- FATAL ERROR ---\n%v\n", err)
		os.Exit(1)
	}
}
