package module

import (
	"context"

	"go.uber.org/zap"

	"github.com/kingrea/proteoflow/internal/artifact"
	"github.com/kingrea/proteoflow/internal/config"
	"github.com/kingrea/proteoflow/internal/logging"
)

// Context carries shared runtime dependencies into every stage.
type Context struct {
	Ctx       context.Context
	Config    config.RunConfig
	Artifacts *artifact.Store
	Recorder  *artifact.Recorder
	Logger    *zap.Logger
}

// NewContext builds a Context with a fresh artifact store for cfg.
func NewContext(ctx context.Context, cfg config.RunConfig, rec *artifact.Recorder, logger *zap.Logger) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		Ctx:       ctx,
		Config:    cfg,
		Artifacts: artifact.NewStore(artifact.Scope{Layout: cfg.Layout(), Fasta: cfg.Fasta}),
		Recorder:  rec,
		Logger:    logging.OrNop(logger),
	}
}

// WithArtifacts allows dependency injection of a pre-built store.
func (ctx *Context) WithArtifacts(store *artifact.Store) *Context {
	clone := *ctx
	clone.Artifacts = store
	return &clone
}

// WithStage returns a copy whose logger is tagged with the stage id.
func (ctx *Context) WithStage(id string) *Context {
	clone := *ctx
	clone.Logger = ctx.Logger.With(zap.String("stage", id))
	return &clone
}
