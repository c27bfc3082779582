package toolset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAllOrdersByPrerequisite(t *testing.T) {
	f := New()
	var buildOrder []string

	require.NoError(t, f.Register(&Toolset{
		Name: "wizard", Prerequisites: []string{"core"},
		Build: func(ctx context.Context) ([]Tool, error) {
			buildOrder = append(buildOrder, "wizard")
			return []Tool{{Name: "wizard_run"}}, nil
		},
	}))
	require.NoError(t, f.Register(&Toolset{
		Name: "core",
		Build: func(ctx context.Context) ([]Tool, error) {
			buildOrder = append(buildOrder, "core")
			return []Tool{{Name: "search_read"}}, nil
		},
	}))

	tools, results, err := f.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "wizard"}, buildOrder)
	assert.Len(t, tools, 2)
	assert.Len(t, results, 2)
}

func TestBuildAllRejectsDuplicateToolNames(t *testing.T) {
	f := New()
	require.NoError(t, f.Register(&Toolset{Name: "a", Build: func(ctx context.Context) ([]Tool, error) {
		return []Tool{{Name: "dup"}}, nil
	}}))
	require.NoError(t, f.Register(&Toolset{Name: "b", Build: func(ctx context.Context) ([]Tool, error) {
		return []Tool{{Name: "dup"}}, nil
	}}))

	_, _, err := f.BuildAll(context.Background())
	require.Error(t, err)
}

func TestBuildAllSkipsDependentsOfFailedToolset(t *testing.T) {
	f := New()
	require.NoError(t, f.Register(&Toolset{Name: "base", Build: func(ctx context.Context) ([]Tool, error) {
		return nil, assertErr("boom")
	}}))
	require.NoError(t, f.Register(&Toolset{Name: "dependent", Prerequisites: []string{"base"}, Build: func(ctx context.Context) ([]Tool, error) {
		return []Tool{{Name: "should_not_build"}}, nil
	}}))

	tools, results, err := f.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tools)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.Error(t, results[1].Err)
}

func TestResolveOrderDetectsCycle(t *testing.T) {
	f := New()
	require.NoError(t, f.Register(&Toolset{Name: "a", Prerequisites: []string{"b"}}))
	require.NoError(t, f.Register(&Toolset{Name: "b", Prerequisites: []string{"a"}}))

	_, _, err := f.BuildAll(context.Background())
	require.Error(t, err)
}

func TestBuildAllHonorsGateSkip(t *testing.T) {
	f := New()
	require.NoError(t, f.Register(&Toolset{
		Name: "enterprise-only",
		Gate: func(ctx context.Context) string { return "required module 'helpdesk' not installed" },
		Build: func(ctx context.Context) ([]Tool, error) {
			return []Tool{{Name: "should_not_build"}}, nil
		},
	}))

	tools, results, err := f.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tools)
	require.Len(t, results, 1)
	assert.Equal(t, "required module 'helpdesk' not installed", results[0].SkipReason)

	report := f.Report(results)
	require.Len(t, report, 1)
	assert.False(t, report[0].Registered)
	assert.Equal(t, "required module 'helpdesk' not installed", report[0].SkipReason)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
