// Package shaker runs PeptideShaker over a finished SearchGUI run: it sets
// the shared path settings, consolidates the search archive into a .cpsx
// project and exports tabular reports from it.
package shaker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/proteoflow/internal/artifact"
	"github.com/kingrea/proteoflow/internal/failure"
	"github.com/kingrea/proteoflow/internal/layout"
	"github.com/kingrea/proteoflow/internal/reports"
	"github.com/kingrea/proteoflow/internal/runner"
	"github.com/kingrea/proteoflow/internal/search"
	"github.com/kingrea/proteoflow/internal/toolchain"
)

// Options are the explicit inputs of a Consolidator.
type Options struct {
	// Version is the PeptideShaker release directory, e.g. PeptideShaker-1.16.42.
	Version string
	// FastaPath is the database the search ran against.
	FastaPath string
	Sample    string
	Replicate int
	// Catalog maps report selectors to indices. Nil uses reports.Default().
	Catalog *reports.Catalog
}

// Consolidator drives PeptideShaker for one search run.
type Consolidator struct {
	opts       Options
	jar        string
	experiment string
	spectra    string
	tempDir    string
	ptmConfig  string
	layout     layout.Layout
	store      *artifact.Store
	launcher   *toolchain.Launcher
	logger     *zap.Logger
}

// Option customizes a Consolidator.
type Option func(*Consolidator)

// WithRunner replaces the subprocess runner.
func WithRunner(r runner.Runner) Option {
	return func(c *Consolidator) {
		c.launcher.Runner = r
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(c *Consolidator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithManifest records every tool invocation in rec.
func WithManifest(rec *artifact.Recorder) Option {
	return func(c *Consolidator) {
		c.launcher.Recorder = rec
	}
}

// ReportResult describes one ReportCLI call.
type ReportResult struct {
	Indices     []int
	Unavailable []string
	Dir         string
	// Files lists the report directory contents after extraction.
	Files []string
}

// New validates its inputs and applies the PeptideShaker path settings once.
// sc must have its directories and database resolved; its search need not
// have run yet.
func New(ctx context.Context, sc *search.Configurator, opts Options, options ...Option) (*Consolidator, error) {
	const op = "shaker: new"
	if sc == nil {
		return nil, failure.Config(op, "a search configurator is required")
	}
	if sc.State() == search.Unconfigured {
		return nil, failure.Precondition(op, "search configurator is not configured")
	}
	opts.Version = strings.TrimSpace(opts.Version)
	opts.FastaPath = strings.TrimSpace(opts.FastaPath)
	opts.Sample = strings.TrimSpace(opts.Sample)
	switch {
	case opts.Version == "":
		return nil, failure.Config(op, "peptideshaker version is required")
	case opts.FastaPath == "":
		return nil, failure.Config(op, "fasta path is required")
	case opts.Sample == "":
		return nil, failure.Config(op, "sample name is required")
	}
	if opts.Catalog == nil {
		opts.Catalog = reports.Default()
	}

	cfg := sc.Config()
	if sc.TempDir() == "" || sc.PTMConfigPath() == "" {
		return nil, failure.Precondition(op, "search configurator has no temp folder or PTM configuration")
	}
	tools := cfg.Tools()
	tools.PeptideShakerVersion = opts.Version

	heap, err := toolchain.ResolveHeap(cfg.Java.Heap)
	if err != nil {
		return nil, failure.Wrap(failure.KindConfig, op, err)
	}
	c := &Consolidator{
		opts:       opts,
		jar:        tools.PeptideShakerJar(),
		experiment: cfg.Experiment,
		spectra:    sc.SpectraPath(),
		tempDir:    sc.TempDir(),
		ptmConfig:  sc.PTMConfigPath(),
		layout:     sc.Layout(),
		logger:     zap.NewNop(),
		launcher:   &toolchain.Launcher{},
	}
	c.store = artifact.NewStore(artifact.Scope{Layout: c.layout, Fasta: cfg.Fasta})
	for _, opt := range options {
		opt(c)
	}
	c.launcher.Java = toolchain.Java{Binary: cfg.Java.Binary, Heap: heap}
	c.launcher.Layout = c.layout
	c.launcher.Logger = c.logger
	if c.launcher.Runner == nil {
		ex := runner.NewExec(c.logger)
		ex.Timeout = cfg.Timeout
		c.launcher.Runner = ex
	}

	if err := c.applyPathSettings(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Consolidator) applyPathSettings(ctx context.Context) error {
	args := &toolchain.Args{}
	args.Pair("temp_folder", c.tempDir).Pair("ptm_configuration", c.ptmConfig)
	_, err := c.launcher.Launch(ctx, toolchain.Invocation{
		Step:  toolchain.StepPathSettings,
		Jar:   c.jar,
		Class: toolchain.ClassPathSettings,
		Args:  args,
	}, failure.KindConfig)
	return err
}

// Consolidate runs PeptideShakerCLI over the search archive and produces
// <out>/<experiment>.cpsx.zip. The search archive must already exist. A
// project or archive left by an earlier run is removed before the tool starts.
func (c *Consolidator) Consolidate(ctx context.Context) error {
	const op = "shaker: consolidate"
	if err := c.require(op, artifact.SearchArchive); err != nil {
		return err
	}

	args := &toolchain.Args{}
	args.Pair("temp_folder", c.tempDir).
		Pair("experiment", c.experiment).
		Pair("sample", c.opts.Sample).
		Pair("replicate", strconv.Itoa(c.opts.Replicate)).
		Pair("fasta_file", c.opts.FastaPath).
		Pair("identification_files", c.layout.SearchArchive()).
		Pair("spectrum_files", c.spectra).
		Pair("out", c.layout.ProjectFile()).
		Pair("zip", c.layout.ConsolidatedArchive())

	for _, stale := range []string{c.layout.ConsolidatedArchive(), c.layout.ProjectFile()} {
		if err := os.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return failure.Filesystem(op, err)
		}
	}
	res, err := c.launcher.Launch(ctx, toolchain.Invocation{
		Step:  toolchain.StepConsolidation,
		Jar:   c.jar,
		Class: toolchain.ClassPeptideShaker,
		Args:  args,
		Heavy: true,
	}, failure.KindConsolidation)
	if err != nil {
		return err
	}
	check, _ := c.store.Check(artifact.ConsolidatedArchive)
	if !check.Ready() {
		fe := failure.Tool(failure.KindConsolidation, op, res.ExitCode, res.Stdout, res.Stderr)
		fe.Err = fmt.Errorf("consolidated archive %s is %s", check.Path, check.State)
		return fe
	}
	c.logger.Info("consolidation finished", zap.String("archive", check.Path), zap.Int64("bytes", check.Size))
	return nil
}

// ExtractReports resolves selectors against the catalog and exports the
// valid ones in a single ReportCLI call. Unknown selectors are logged and
// skipped; only an empty resolved set is an error. No selectors selects
// the catalog defaults.
func (c *Consolidator) ExtractReports(ctx context.Context, selectors []string) (*ReportResult, error) {
	const op = "shaker: reports"
	if err := c.require(op, artifact.ConsolidatedArchive); err != nil {
		return nil, err
	}
	if len(selectors) == 0 {
		selectors = c.opts.Catalog.DefaultSelectors()
	}
	req := c.opts.Catalog.Resolve(selectors)
	for _, sel := range req.Unavailable {
		c.logger.Warn("report not available", zap.String("selector", sel), zap.String("catalog", c.opts.Catalog.Label()))
	}
	if req.Empty() {
		return nil, failure.Config(op, "none of the requested reports exist in the %s catalog: %s", c.opts.Catalog.Label(), strings.Join(req.Unavailable, ", "))
	}

	dir := c.layout.ShakerReportsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, failure.Filesystem(op, err)
	}
	args := &toolchain.Args{}
	args.Pair("in", c.layout.ConsolidatedArchive()).
		Pair("out_reports", dir).
		Pair("reports", req.Joined())
	if _, err := c.launcher.Launch(ctx, toolchain.Invocation{
		Step:  toolchain.StepReports,
		Jar:   c.jar,
		Class: toolchain.ClassReport,
		Args:  args,
	}, failure.KindReport); err != nil {
		return nil, err
	}

	result := &ReportResult{Indices: req.Indices, Unavailable: req.Unavailable, Dir: dir}
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				result.Files = append(result.Files, e.Name())
			}
		}
		sort.Strings(result.Files)
	}
	c.logger.Info("reports exported", zap.Ints("indices", req.Indices), zap.Int("files", len(result.Files)))
	return result, nil
}

// Catalog returns the report catalog in use.
func (c *Consolidator) Catalog() *reports.Catalog {
	return c.opts.Catalog
}

// ArchivePath returns <out>/<experiment>.cpsx.zip.
func (c *Consolidator) ArchivePath() string {
	return c.layout.ConsolidatedArchive()
}

func (c *Consolidator) require(op string, ref artifact.Ref) error {
	res, err := c.store.Check(ref)
	if res.Ready() {
		return nil
	}
	if err != nil && res.State == artifact.StateError {
		return failure.Filesystem(op, err)
	}
	return failure.Precondition(op, "%s is %s at %s", ref.Name, res.State, res.Path)
}
