package tools

import (
	"context"
	"sync"

	"github.com/odoo-mcp/bridge/internal/constants"
	"github.com/odoo-mcp/bridge/internal/models"
	"github.com/odoo-mcp/bridge/internal/toolset"
)

// ToolsetReport holds the Toolset Framework's registration report (spec
// §4.7 step 5: "emit a registration report exposed to clients via a
// resource"). The meta-tool and the system/toolsets resource both read it;
// the MCP server host fills it in once, right after toolset.Framework's
// BuildAll returns, since the tool/resource handlers below are registered
// (and may be called) before that result exists.
type ToolsetReport struct {
	mu      sync.RWMutex
	entries []models.ToolsetMetadata
}

// NewToolsetReport returns an empty report; call Set once BuildAll
// completes.
func NewToolsetReport() *ToolsetReport { return &ToolsetReport{} }

// Set replaces the report contents. Safe to call once at startup (and again
// after an explicit toolset refresh, though the bridge never does this
// automatically — spec §4.7 registration is a startup-only pipeline).
func (r *ToolsetReport) Set(entries []models.ToolsetMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
}

// Get returns the current report, or an empty slice before Set has run.
func (r *ToolsetReport) Get() []models.ToolsetMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolsetMetadata, len(r.entries))
	copy(out, r.entries)
	return out
}

// BuildMetaToolset registers the toolset-listing meta-tool (spec §6: "a
// toolset-listing meta-tool"). It depends on nothing so it is always
// available, even in a degraded startup where every domain toolset was
// skipped for missing modules.
func BuildMetaToolset(deps *Deps, report *ToolsetReport) *toolset.Toolset {
	return &toolset.Toolset{
		Name: "meta",
		Metadata: models.ToolsetMetadata{
			Description: "Introspection over the bridge's own registered toolsets.",
			Version:     "1.0.0",
			Tags:        []string{"meta"},
		},
		Build: func(ctx context.Context) ([]toolset.Tool, error) {
			return []toolset.Tool{
				{
					Name:        "odoo_meta_list_toolsets",
					Description: "List every toolset the bridge attempted to register, whether it actually registered, and why not if it didn't.",
					InputSchema: schemaObject(map[string]interface{}{}),
					Annotations: constants.AnnotationsFor(constants.OpListModels),
					Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) {
						return map[string]interface{}{"toolsets": report.Get()}, false, nil
					},
				},
			}, nil
		},
	}
}
