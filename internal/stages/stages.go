// Package stages adapts the search and shaker packages to the module
// contract and runs them as a resumable pipeline.
package stages

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/proteoflow/internal/artifact"
	"github.com/kingrea/proteoflow/internal/config"
	"github.com/kingrea/proteoflow/internal/failure"
	"github.com/kingrea/proteoflow/internal/logging"
	"github.com/kingrea/proteoflow/internal/module"
	"github.com/kingrea/proteoflow/internal/params"
	"github.com/kingrea/proteoflow/internal/reports"
	"github.com/kingrea/proteoflow/internal/runner"
	"github.com/kingrea/proteoflow/internal/search"
	"github.com/kingrea/proteoflow/internal/shaker"
)

// Stage identifiers in pipeline order.
const (
	SearchID      = "search"
	ConsolidateID = "consolidate"
	ReportsID     = "reports"
)

const stageVersion = "1.0.0"

// Session holds what the stages share across one run. The search
// configurator and the consolidator are built lazily so any stage can run
// on its own against artifacts left by an earlier invocation.
type Session struct {
	Config    config.RunConfig
	Defaults  *params.Defaults
	Catalog   *reports.Catalog
	Selectors []string
	Overrides map[string]any
	Runner    runner.Runner
	Logger    *zap.Logger
	Recorder  *artifact.Recorder

	search *search.Configurator
	shaker *shaker.Consolidator
	last   *shaker.ReportResult
}

// Configurator returns the session's search configurator, creating it on
// first use.
func (s *Session) Configurator(ctx *module.Context) (*search.Configurator, error) {
	if s.search != nil {
		return s.search, nil
	}
	return s.newConfigurator(ctx, s.Config)
}

func (s *Session) newConfigurator(ctx *module.Context, cfg config.RunConfig) (*search.Configurator, error) {
	opts := []search.Option{search.WithLogger(s.logger(ctx)), search.WithManifest(s.Recorder)}
	if s.Runner != nil {
		opts = append(opts, search.WithRunner(s.Runner))
	}
	sc, err := search.New(ctx.Ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	s.search = sc
	return sc, nil
}

// Consolidator returns the session's consolidator, creating it (and
// applying the path settings) on first use.
func (s *Session) Consolidator(ctx *module.Context) (*shaker.Consolidator, error) {
	if s.shaker != nil {
		return s.shaker, nil
	}
	sc := s.search
	if sc == nil {
		// Later stages must reuse the database the search ran against.
		cfg := s.Config.WithOverrides(nil)
		if cfg.Decoy == config.DecoyAlways {
			cfg.Decoy = config.DecoyMissing
		}
		var err error
		if sc, err = s.newConfigurator(ctx, cfg); err != nil {
			return nil, err
		}
	}
	cfg := sc.Config()
	opts := []shaker.Option{shaker.WithLogger(s.logger(ctx)), shaker.WithManifest(s.Recorder)}
	if s.Runner != nil {
		opts = append(opts, shaker.WithRunner(s.Runner))
	}
	c, err := shaker.New(ctx.Ctx, sc, shaker.Options{
		Version:   cfg.PeptideShakerVersion,
		FastaPath: sc.DatabasePath(),
		Sample:    cfg.Sample,
		Replicate: cfg.Replicate,
		Catalog:   s.Catalog,
	}, opts...)
	if err != nil {
		return nil, err
	}
	s.shaker = c
	return c, nil
}

// LastReports returns the result of the most recent report extraction.
func (s *Session) LastReports() *shaker.ReportResult {
	return s.last
}

func (s *Session) logger(ctx *module.Context) *zap.Logger {
	if ctx != nil && ctx.Logger != nil {
		return ctx.Logger
	}
	return logging.OrNop(s.Logger)
}

// Registry returns a registry with the built-in stages bound to s.
func Registry(s *Session) *module.Registry {
	reg := module.NewRegistry()
	reg.MustRegister(SearchID, func(module.Config) (module.Module, error) {
		return newSearchStage(s), nil
	})
	reg.MustRegister(ConsolidateID, func(module.Config) (module.Module, error) {
		return newConsolidateStage(s), nil
	})
	reg.MustRegister(ReportsID, func(cfg module.Config) (module.Module, error) {
		return newReportsStage(s, cfg)
	})
	return reg
}

type searchStage struct {
	module.Base
	session *Session
}

func newSearchStage(s *Session) *searchStage {
	st := &searchStage{
		Base: module.NewBase(module.Info{
			ID:          SearchID,
			Name:        "Database search",
			Description: "Prepares the target/decoy database and identification parameters, then runs SearchCLI.",
			Version:     stageVersion,
		}),
		session: s,
	}
	st.SetOutputs(artifact.DecoyDatabase, artifact.IdentificationParameters, artifact.SearchArchive)
	return st
}

func (st *searchStage) IsComplete(ctx *module.Context) (bool, error) {
	return module.OutputsReady(ctx, st)
}

func (st *searchStage) Run(ctx *module.Context) (module.Result, error) {
	sc, err := st.session.Configurator(ctx)
	if err != nil {
		return failed(err)
	}
	defaults := st.session.Defaults
	if defaults == nil {
		if defaults, err = params.Embedded(); err != nil {
			return failed(failure.Wrap(failure.KindConfig, "stages: search", err))
		}
	}
	if _, err := sc.DeriveParameters(ctx.Ctx, defaults, st.session.Overrides); err != nil {
		return failed(err)
	}
	if err := sc.LaunchSearch(ctx.Ctx); err != nil {
		return failed(err)
	}
	return module.Result{
		Status:  module.StatusCompleted,
		Message: fmt.Sprintf("searched with %s", strings.Join(sc.Engines().Enabled(), ", ")),
	}, nil
}

type consolidateStage struct {
	module.Base
	session *Session
}

func newConsolidateStage(s *Session) *consolidateStage {
	st := &consolidateStage{
		Base: module.NewBase(module.Info{
			ID:          ConsolidateID,
			Name:        "Consolidation",
			Description: "Applies the PeptideShaker path settings and builds the .cpsx project archive.",
			Version:     stageVersion,
		}),
		session: s,
	}
	st.SetInputs(artifact.DecoyDatabase, artifact.SearchArchive)
	st.SetOutputs(artifact.ConsolidatedArchive)
	return st
}

func (st *consolidateStage) IsComplete(ctx *module.Context) (bool, error) {
	return module.OutputsReady(ctx, st)
}

func (st *consolidateStage) Run(ctx *module.Context) (module.Result, error) {
	c, err := st.session.Consolidator(ctx)
	if err != nil {
		return failed(err)
	}
	if err := c.Consolidate(ctx.Ctx); err != nil {
		return failed(err)
	}
	return module.Result{Status: module.StatusCompleted, Message: "wrote " + c.ArchivePath()}, nil
}

type reportsStage struct {
	module.Base
	session   *Session
	selectors []string
}

func newReportsStage(s *Session, cfg module.Config) (*reportsStage, error) {
	st := &reportsStage{
		Base: module.NewBase(module.Info{
			ID:          ReportsID,
			Name:        "Reports",
			Description: "Exports the selected PeptideShaker reports from the project archive.",
			Version:     stageVersion,
		}),
		session:   s,
		selectors: s.Selectors,
	}
	if raw, ok := cfg["selectors"]; ok {
		list, ok := raw.([]string)
		if !ok {
			return nil, fmt.Errorf("stages: reports selectors must be a list of strings, got %T", raw)
		}
		st.selectors = list
	}
	st.SetInputs(artifact.ConsolidatedArchive)
	st.SetOutputs(artifact.Reports)
	return st, nil
}

func (st *reportsStage) IsComplete(ctx *module.Context) (bool, error) {
	return module.OutputsReady(ctx, st)
}

func (st *reportsStage) Run(ctx *module.Context) (module.Result, error) {
	c, err := st.session.Consolidator(ctx)
	if err != nil {
		return failed(err)
	}
	res, err := c.ExtractReports(ctx.Ctx, st.selectors)
	if err != nil {
		return failed(err)
	}
	st.session.last = res
	msg := fmt.Sprintf("exported %d report(s) to %s", len(res.Indices), res.Dir)
	if len(res.Unavailable) > 0 {
		msg += "; unavailable: " + strings.Join(res.Unavailable, ", ")
	}
	return module.Result{Status: module.StatusCompleted, Message: msg}, nil
}

func failed(err error) (module.Result, error) {
	return module.Result{Status: module.StatusFailed, Message: err.Error()}, err
}
