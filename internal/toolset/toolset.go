// Package toolset implements the Toolset Framework (spec §4.7): a
// registration pipeline that topologically orders named groups of tools by
// declared prerequisites, rejects duplicate tool names across the whole
// surface, and hands the MCP server host a flat, deterministically ordered
// tool list to register.
//
// This generalizes the teacher's map-based tool registry
// (internal/mcp/server.go's tools map + toolOrder slice, and
// internal/bridge/bridge.go's generateTools/generateLazyTools) from "one
// flat list built in whatever order the entity sets were walked" to
// "several independently-authored toolsets with real dependencies between
// them" — e.g. the wizard-executor toolset depends on the core CRUD
// toolset already having registered create/write.
package toolset

import (
	"context"
	"fmt"

	"github.com/odoo-mcp/bridge/internal/models"
)

// Tool is one MCP tool definition plus its handler, independent of the MCP
// JSON-RPC wire shape (internal/mcp adapts this into its own Tool type).
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	// Annotations carries the spec §4.7 static tool hints (readOnlyHint,
	// destructiveHint, idempotentHint, openWorldHint), computed per
	// operation by constants.AnnotationsFor. Nil is valid: the MCP server
	// simply omits the annotations object for that tool.
	Annotations map[string]interface{}
	Handler     func(ctx context.Context, args map[string]interface{}) (interface{}, bool, error) // (result, isError, err)
}

// Toolset is a named, self-contained group of tools with optional
// dependencies on other toolsets having already been built.
type Toolset struct {
	Name          string
	Prerequisites []string
	Build         func(ctx context.Context) ([]Tool, error)

	// Metadata carries the spec §4.7 prerequisite-gating facts (required
	// backend modules, version bounds, description/version/tags) a
	// toolset-listing meta-tool and the system/toolsets resource report.
	// Optional: a Toolset with a zero Metadata is still built and
	// registered normally, it just has nothing to report beyond its name.
	Metadata models.ToolsetMetadata

	// Gate is an optional precondition check run before Build: if it
	// returns a non-empty skip reason, the toolset (and anything
	// depending on it) is skipped exactly like a failed Build, but without
	// treating it as an error (spec §4.7: "unmet prerequisite → skipped
	// with a recorded reason, not a failure").
	Gate func(ctx context.Context) (skipReason string)
}

// Framework is the registration pipeline: Register each Toolset, then call
// BuildAll once to get the final, dependency-ordered, duplicate-checked
// tool list.
type Framework struct {
	toolsets map[string]*Toolset
	order    []string
}

// New returns an empty Framework.
func New() *Framework {
	return &Framework{toolsets: make(map[string]*Toolset)}
}

// Register adds a Toolset. Registering two toolsets with the same name is
// an error.
func (f *Framework) Register(ts *Toolset) error {
	if _, exists := f.toolsets[ts.Name]; exists {
		return fmt.Errorf("toolset: %q already registered", ts.Name)
	}
	f.toolsets[ts.Name] = ts
	f.order = append(f.order, ts.Name)
	return nil
}

// resolveOrder topologically sorts registered toolsets by Prerequisites
// using a straightforward depth-first visit; a prerequisite cycle is an
// error rather than a silent partial build.
func (f *Framework) resolveOrder() ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(f.toolsets))
	var sorted []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("toolset: prerequisite cycle detected at %q", name)
		}
		ts, ok := f.toolsets[name]
		if !ok {
			return fmt.Errorf("toolset: unknown prerequisite %q", name)
		}
		state[name] = visiting
		for _, dep := range ts.Prerequisites {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		sorted = append(sorted, name)
		return nil
	}

	for _, name := range f.order {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// BuildResult is the outcome of building one toolset: its tools, or the
// error/skip reason that stopped it (a failed or skipped toolset does not
// block others unless they depend on it).
type BuildResult struct {
	Name       string
	Tools      []Tool
	Err        error
	SkipReason string
}

// BuildAll resolves dependency order and builds every toolset in sequence,
// skipping (and reporting) a toolset whose prerequisite failed to build, or
// whose own Gate precondition reports a skip reason (unmet required
// modules, version bounds, or an allow/deny configuration filter — spec
// §4.7 step 3: "unmet prerequisite → skipped with a recorded reason, not a
// failure"). Returns the flat tool list and per-toolset results. A
// duplicate tool name across toolsets is an error — the Toolset Framework's
// registration pipeline never silently shadows one toolset's tool with
// another's.
func (f *Framework) BuildAll(ctx context.Context) ([]Tool, []BuildResult, error) {
	order, err := f.resolveOrder()
	if err != nil {
		return nil, nil, err
	}

	results := make([]BuildResult, 0, len(order))
	failed := make(map[string]bool)
	seenNames := make(map[string]string)
	var flat []Tool

	for _, name := range order {
		ts := f.toolsets[name]

		blocked := false
		for _, dep := range ts.Prerequisites {
			if failed[dep] {
				blocked = true
				break
			}
		}
		if blocked {
			err := fmt.Errorf("toolset %q skipped: prerequisite failed", name)
			results = append(results, BuildResult{Name: name, Err: err})
			failed[name] = true
			continue
		}

		if ts.Gate != nil {
			if reason := ts.Gate(ctx); reason != "" {
				results = append(results, BuildResult{Name: name, SkipReason: reason})
				failed[name] = true
				continue
			}
		}

		tools, err := ts.Build(ctx)
		if err != nil {
			results = append(results, BuildResult{Name: name, Err: err})
			failed[name] = true
			continue
		}

		for _, t := range tools {
			if owner, dup := seenNames[t.Name]; dup {
				return nil, nil, fmt.Errorf("toolset: tool name %q registered by both %q and %q", t.Name, owner, name)
			}
			seenNames[t.Name] = name
		}

		flat = append(flat, tools...)
		results = append(results, BuildResult{Name: name, Tools: tools})
	}

	return flat, results, nil
}

// Report renders BuildAll's results as the registration report spec §4.7
// step 5 says to expose via a resource: one ToolsetMetadata entry per
// registered toolset, carrying its declared Metadata plus whether it was
// actually registered, its skip/failure reason, and the tool names it
// contributed.
func (f *Framework) Report(results []BuildResult) []models.ToolsetMetadata {
	out := make([]models.ToolsetMetadata, 0, len(results))
	for _, r := range results {
		ts := f.toolsets[r.Name]
		meta := ts.Metadata
		meta.Name = r.Name
		if meta.DependsOn == nil {
			meta.DependsOn = ts.Prerequisites
		}
		meta.Registered = r.Err == nil && r.SkipReason == ""
		switch {
		case r.Err != nil:
			meta.SkipReason = r.Err.Error()
		case r.SkipReason != "":
			meta.SkipReason = r.SkipReason
		}
		names := make([]string, 0, len(r.Tools))
		for _, t := range r.Tools {
			names = append(names, t.Name)
		}
		meta.ToolNames = names
		out = append(out, meta)
	}
	return out
}
