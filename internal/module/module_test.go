package module

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/proteoflow/internal/artifact"
	"github.com/kingrea/proteoflow/internal/config"
	"github.com/kingrea/proteoflow/internal/runner/runnertest"
)

type stubModule struct {
	Base
}

func (s *stubModule) IsComplete(ctx *Context) (bool, error) {
	return OutputsReady(ctx, s)
}

func (s *stubModule) Run(*Context) (Result, error) {
	return Result{Status: StatusCompleted}, nil
}

func newStub(info Info, outputs ...artifact.Ref) *stubModule {
	m := &stubModule{Base: NewBase(info)}
	m.SetOutputs(outputs...)
	return m
}

func TestInfoValidate(t *testing.T) {
	assert.Error(t, Info{}.Validate())
	assert.Error(t, Info{ID: "search"}.Validate())
	assert.Error(t, Info{ID: "search", Name: "Search"}.Validate())
	assert.NoError(t, Info{ID: "search", Name: "Search", Version: "1.0.0"}.Validate())
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"search", "consolidate", "reports"} {
		id := id
		reg.MustRegister(id, func(Config) (Module, error) {
			return newStub(Info{ID: id, Name: id, Version: "1.0.0"}), nil
		})
	}
	assert.Equal(t, []string{"search", "consolidate", "reports"}, reg.Order())

	assert.Error(t, reg.Register("search", func(Config) (Module, error) { return nil, nil }))
	assert.Error(t, reg.Register("", func(Config) (Module, error) { return nil, nil }))
	assert.Error(t, reg.Register("extra", nil))

	m, err := reg.Resolve("reports", nil)
	require.NoError(t, err)
	assert.Equal(t, "reports", m.Info().ID)

	_, err = reg.Resolve("quantify", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search, consolidate, reports")
}

func TestResolveRejectsInvalidInfo(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("broken", func(Config) (Module, error) {
		return newStub(Info{ID: "broken"}), nil
	})
	_, err := reg.Resolve("broken", nil)
	assert.Error(t, err)
}

func TestOutputsReady(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.OutDir = filepath.Join(root, "out")
	cfg.TempDir = filepath.Join(root, "tmp")
	cfg.DBCache = filepath.Join(root, "db")
	cfg.Experiment = "exp1"
	ctx := NewContext(context.Background(), cfg, nil, nil)

	none := newStub(Info{ID: "none", Name: "none", Version: "1"})
	ok, err := none.IsComplete(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a stage without outputs is never complete")

	m := newStub(Info{ID: "c", Name: "c", Version: "1"}, artifact.ConsolidatedArchive)
	ok, err = m.IsComplete(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, runnertest.WriteFile(cfg.Layout().ConsolidatedArchive(), runnertest.ZipBytes))
	ok, err = m.IsComplete(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	tagged := ctx.WithStage("c")
	assert.NotSame(t, ctx.Logger, tagged.Logger)
	assert.Same(t, ctx.Artifacts, tagged.Artifacts)
}
