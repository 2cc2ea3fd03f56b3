// Package search owns one SearchGUI identification run: it prepares the
// output tree, resolves the target/decoy database, derives the identification
// parameter file and launches SearchCLI.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kingrea/proteoflow/internal/artifact"
	"github.com/kingrea/proteoflow/internal/config"
	"github.com/kingrea/proteoflow/internal/failure"
	"github.com/kingrea/proteoflow/internal/layout"
	"github.com/kingrea/proteoflow/internal/params"
	"github.com/kingrea/proteoflow/internal/runner"
	"github.com/kingrea/proteoflow/internal/toolchain"
)

// State is the configurator's lifecycle position.
type State int

const (
	Unconfigured State = iota
	Configured
	ParametersReady
	SearchComplete
	SearchFailed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case ParametersReady:
		return "parameters-ready"
	case SearchComplete:
		return "search-complete"
	case SearchFailed:
		return "search-failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Configurator drives SearchGUI for one run configuration.
type Configurator struct {
	cfg      config.RunConfig
	layout   layout.Layout
	tools    toolchain.Tools
	store    *artifact.Store
	launcher *toolchain.Launcher
	logger   *zap.Logger

	state   State
	dbPath  string
	created []string
	params  *params.ParameterSet
	engines params.EngineSelection
}

// Option customizes a Configurator.
type Option func(*Configurator)

// WithRunner replaces the subprocess runner.
func WithRunner(r runner.Runner) Option {
	return func(c *Configurator) {
		c.launcher.Runner = r
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(c *Configurator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithManifest records every tool invocation in rec.
func WithManifest(rec *artifact.Recorder) Option {
	return func(c *Configurator) {
		c.launcher.Recorder = rec
	}
}

// New ensures the output tree exists and resolves the target/decoy database
// according to cfg.Decoy. Database generation, when needed, runs before New
// returns.
func New(ctx context.Context, cfg config.RunConfig, opts ...Option) (*Configurator, error) {
	const op = "search: new"
	c := &Configurator{
		cfg:      cfg.WithOverrides(nil),
		layout:   cfg.Layout(),
		tools:    cfg.Tools(),
		logger:   zap.NewNop(),
		launcher: &toolchain.Launcher{},
	}
	c.store = artifact.NewStore(artifact.Scope{Layout: c.layout, Fasta: cfg.Fasta})
	for _, opt := range opts {
		opt(c)
	}

	heap, err := toolchain.ResolveHeap(cfg.Java.Heap)
	if err != nil {
		return nil, failure.Wrap(failure.KindConfig, op, err)
	}
	c.launcher.Java = toolchain.Java{Binary: cfg.Java.Binary, Heap: heap}
	c.launcher.Layout = c.layout
	c.launcher.Logger = c.logger
	if c.launcher.Runner == nil {
		ex := runner.NewExec(c.logger)
		ex.Timeout = cfg.Timeout
		c.launcher.Runner = ex
	}

	created, err := config.EnsureLayout(c.layout)
	if err != nil {
		return nil, failure.Wrap(failure.KindConfig, op, err)
	}
	c.created = created
	for _, dir := range created {
		c.logger.Debug("created directory", zap.String("path", dir))
	}

	if err := c.resolveDatabase(ctx); err != nil {
		return nil, err
	}
	c.state = Configured
	c.logger.Info("search configured",
		zap.String("experiment", cfg.Experiment),
		zap.String("database", c.dbPath),
		zap.String("sensitivity", cfg.Sensitivity),
	)
	return c, nil
}

func (c *Configurator) resolveDatabase(ctx context.Context) error {
	const op = "search: resolve database"
	res, err := c.store.Check(artifact.DecoyDatabase)
	if res.State == artifact.StateError {
		return failure.Filesystem(op, err)
	}
	switch {
	case c.cfg.Decoy == config.DecoyAlways, c.cfg.Decoy == config.DecoyMissing && !res.Ready():
		_, err := c.GenerateDecoyDatabase(ctx)
		return err
	case !res.Ready():
		return failure.Config(op, "target/decoy database at %s is %s and decoy generation is disabled", res.Path, res.State)
	}
	c.logger.Info("reusing target/decoy database", zap.String("path", res.Path))
	c.dbPath = res.Path
	return nil
}

// GenerateDecoyDatabase runs FastaCLI in decoy mode on the configured FASTA
// and records <db_cache>/<basename>_concatenated_target_decoy.fasta as the
// search database.
func (c *Configurator) GenerateDecoyDatabase(ctx context.Context) (string, error) {
	const op = "search: decoy"
	if !layout.FileExists(c.cfg.Fasta) {
		return "", failure.Config(op, "fasta database %s does not exist", c.cfg.Fasta)
	}
	target := c.layout.DecoyDatabase(c.cfg.Fasta)
	if err := removeStale(target); err != nil {
		return "", failure.Filesystem(op, err)
	}
	args := &toolchain.Args{}
	args.Pair("in", c.cfg.Fasta).Flag("decoy")

	c.logger.Info("generating target/decoy database", zap.String("fasta", c.cfg.Fasta))
	if _, err := c.launcher.Launch(ctx, toolchain.Invocation{
		Step:  toolchain.StepDecoy,
		Jar:   c.tools.SearchGUIJar(),
		Class: toolchain.ClassFasta,
		Args:  args,
	}, failure.KindDecoy); err != nil {
		return "", err
	}

	// FastaCLI writes next to its input; move the result into the cache.
	sibling := filepath.Join(filepath.Dir(c.cfg.Fasta), layout.DecoyName(c.cfg.Fasta))
	if sibling != target && layout.FileExists(sibling) {
		if err := moveFile(sibling, target); err != nil {
			return "", failure.Filesystem(op, err)
		}
	}
	res, _ := c.store.Check(artifact.DecoyDatabase)
	if !res.Ready() {
		return "", failure.Wrap(failure.KindDecoy, op, fmt.Errorf("FastaCLI did not produce %s", target))
	}
	c.dbPath = target
	return target, nil
}

// DeriveParameters merges the defaults, the sensitivity preset and the
// overrides (configured ones first, then the argument) and runs
// IdentificationParametersCLI to write the parameter file. Any parameter file
// left by an earlier derivation is removed first. On failure the configurator
// falls back to Configured with no parameters.
func (c *Configurator) DeriveParameters(ctx context.Context, defaults *params.Defaults, overrides map[string]any) (_ *params.ParameterSet, err error) {
	const op = "search: parameters"
	if c.state != Configured && c.state != ParametersReady {
		return nil, failure.Precondition(op, "cannot derive parameters in state %s", c.state)
	}
	defer func() {
		if err != nil {
			c.state = Configured
			c.params = nil
			c.engines = nil
		}
	}()
	if defaults == nil {
		return nil, failure.Config(op, "default parameter source is required")
	}
	merged := c.cfg.WithOverrides(overrides).Overrides
	set, err := params.Derive(defaults, params.Request{
		Level:     c.cfg.Sensitivity,
		Overrides: merged,
		OutPath:   c.layout.ParametersFile(),
		Database:  c.dbPath,
	})
	if err != nil {
		return nil, err
	}
	engines, err := defaults.EngineSelection()
	if err != nil {
		return nil, failure.Wrap(failure.KindConfig, op, err)
	}
	if len(engines.Enabled()) == 0 {
		return nil, failure.Config(op, "no search engine is enabled in the default parameter source")
	}
	if err := removeStale(set.OutPath()); err != nil {
		return nil, failure.Filesystem(op, err)
	}

	args := set.Args()
	args.Pair("ptm_configuration", c.PTMConfigPath())
	res, err := c.launcher.Launch(ctx, toolchain.Invocation{
		Step:  toolchain.StepParameters,
		Jar:   c.tools.SearchGUIJar(),
		Class: toolchain.ClassIDParameters,
		Args:  args,
	}, failure.KindParameters)
	if err != nil {
		return nil, err
	}
	check, _ := c.store.Check(artifact.IdentificationParameters)
	if !check.Ready() {
		fe := failure.Tool(failure.KindParameters, op, res.ExitCode, res.Stdout, res.Stderr)
		fe.Err = fmt.Errorf("parameter file %s was not written", check.Path)
		return nil, fe
	}

	c.params = set
	c.engines = engines
	c.state = ParametersReady
	c.logger.Info("identification parameters written",
		zap.String("path", set.OutPath()),
		zap.Int("parameters", len(set.Keys())),
		zap.Strings("engines", engines.Enabled()),
	)
	return set, nil
}

// LaunchSearch runs SearchCLI and blocks until it exits. A failed search is
// not retried here; calling LaunchSearch again after SearchFailed reruns it
// with the same parameters.
func (c *Configurator) LaunchSearch(ctx context.Context) error {
	const op = "search: launch"
	if c.state != ParametersReady && c.state != SearchFailed {
		return failure.Precondition(op, "parameters must be derived before the search (state %s)", c.state)
	}
	if !layout.FileExists(c.cfg.Spectra) {
		return failure.Config(op, "spectrum file %s does not exist", c.cfg.Spectra)
	}

	args := &toolchain.Args{}
	args.Pair("spectrum_files", c.cfg.Spectra).
		Pair("output_folder", c.layout.SearchResultsDir()+string(filepath.Separator)).
		Pair("id_params", c.params.OutPath())
	c.engines.AppendTo(args)
	args.Pair("protein_fdr", c.cfg.FormatFDR()).
		Pair("threads", fmt.Sprint(c.cfg.ThreadCount()))

	if _, err := c.launcher.Launch(ctx, toolchain.Invocation{
		Step:  toolchain.StepSearch,
		Jar:   c.tools.SearchGUIJar(),
		Class: toolchain.ClassSearch,
		Args:  args,
		Heavy: true,
	}, failure.KindSearch); err != nil {
		c.state = SearchFailed
		return err
	}
	c.state = SearchComplete
	if res, _ := c.store.Check(artifact.SearchArchive); !res.Ready() {
		c.logger.Warn("SearchCLI exited cleanly but the results archive is not ready",
			zap.String("path", res.Path),
			zap.String("state", string(res.State)),
		)
	}
	return nil
}

// State returns the lifecycle position.
func (c *Configurator) State() State {
	return c.state
}

// DatabasePath returns the resolved target/decoy database.
func (c *Configurator) DatabasePath() string {
	return c.dbPath
}

// ParametersPath returns the parameter file location, or "" before
// DeriveParameters.
func (c *Configurator) ParametersPath() string {
	if c.params == nil {
		return ""
	}
	return c.params.OutPath()
}

// Parameters returns the derived set, or nil before DeriveParameters.
func (c *Configurator) Parameters() *params.ParameterSet {
	return c.params
}

// Engines returns the engine selection passed to SearchCLI.
func (c *Configurator) Engines() params.EngineSelection {
	return c.engines
}

// Layout returns the run's artifact paths.
func (c *Configurator) Layout() layout.Layout {
	return c.layout
}

// TempDir returns the shared temp folder.
func (c *Configurator) TempDir() string {
	return c.layout.TempDir()
}

// PTMConfigPath returns the resolved PTM configuration file.
func (c *Configurator) PTMConfigPath() string {
	return c.tools.PTMConfig(c.cfg.PTMConfig)
}

// SpectraPath returns the input spectrum file.
func (c *Configurator) SpectraPath() string {
	return c.cfg.Spectra
}

// Config returns a copy of the run configuration.
func (c *Configurator) Config() config.RunConfig {
	return c.cfg.WithOverrides(nil)
}

// CreatedDirectories lists the directories New had to create.
func (c *Configurator) CreatedDirectories() []string {
	return append([]string(nil), c.created...)
}

// removeStale deletes an output a tool is about to rewrite so a run that
// writes nothing cannot pass on the previous file.
func removeStale(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// Rename fails across devices; fall back to copy and remove.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
