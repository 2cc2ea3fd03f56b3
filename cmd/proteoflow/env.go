package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/proteoflow/internal/artifact"
	"github.com/kingrea/proteoflow/internal/config"
	"github.com/kingrea/proteoflow/internal/logging"
	"github.com/kingrea/proteoflow/internal/module"
	"github.com/kingrea/proteoflow/internal/params"
	"github.com/kingrea/proteoflow/internal/reports"
	"github.com/kingrea/proteoflow/internal/runner"
	"github.com/kingrea/proteoflow/internal/stages"
)

// runEnv is everything a pipeline command needs after the config is loaded.
type runEnv struct {
	cfg      config.RunConfig
	log      *logging.Logger
	defaults *params.Defaults
	catalog  *reports.Catalog
	store    *artifact.Store
	recorder *artifact.Recorder
	runner   runner.Runner
}

type envOptions struct {
	// quiet routes console logging away from the terminal and stops
	// subprocess output from being echoed (used by the TUI).
	quiet bool
}

func openEnv(opts envOptions) (*runEnv, error) {
	loaded, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	overrides, err := sets.Values()
	if err != nil {
		return nil, err
	}
	cfg := loaded.WithOverrides(overrides)

	var console io.Writer = os.Stderr
	if opts.quiet {
		console = io.Discard
	}
	log, err := logging.New(logging.Options{LogDir: cfg.Layout().LogsDir(), Verbose: verbose, Console: console})
	if err != nil {
		return nil, err
	}
	env := &runEnv{cfg: cfg, log: log}
	if err := env.loadSources(); err != nil {
		log.Close()
		return nil, err
	}

	ex := runner.NewExec(log.Logger)
	ex.Timeout = cfg.Timeout
	if !opts.quiet {
		ex.Stream = os.Stdout
		outputEchoed = true
	}
	env.runner = ex

	env.store = artifact.NewStore(artifact.Scope{Layout: cfg.Layout(), Fasta: cfg.Fasta})
	env.recorder = artifact.NewRecorder(env.store, env.manifest())
	log.Debug("configuration loaded",
		zap.String("path", cfg.Path),
		zap.String("experiment", cfg.Experiment),
		zap.Strings("overrides", cfg.OverrideKeys()),
	)
	return env, nil
}

func (e *runEnv) loadSources() error {
	var err error
	if path := strings.TrimSpace(e.cfg.DefaultsFile); path != "" {
		e.defaults, err = params.LoadDefaults(path)
	} else {
		e.defaults, err = params.Embedded()
	}
	if err != nil {
		return err
	}
	if path := strings.TrimSpace(e.cfg.ReportCatalog); path != "" {
		e.catalog, err = reports.LoadCatalog(path)
	} else {
		e.catalog = reports.Default()
	}
	return err
}

// manifest continues the manifest of an earlier invocation for the same
// experiment, or starts a new one.
func (e *runEnv) manifest() *artifact.Manifest {
	path := e.store.Path(artifact.RunManifest)
	if prev, err := artifact.LoadManifest(path); err == nil && prev.Experiment == e.cfg.Experiment {
		return prev
	}
	return artifact.NewManifest(artifact.Manifest{
		Experiment:    e.cfg.Experiment,
		Fasta:         e.cfg.Fasta,
		Spectra:       e.cfg.Spectra,
		Sensitivity:   e.cfg.Sensitivity,
		SearchGUI:     e.cfg.SearchGUIVersion,
		PeptideShaker: e.cfg.PeptideShakerVersion,
	}, time.Now())
}

func (e *runEnv) session(selectors []string) *stages.Session {
	if len(selectors) == 0 {
		selectors = e.cfg.Reports
	}
	return &stages.Session{
		Config:    e.cfg,
		Defaults:  e.defaults,
		Catalog:   e.catalog,
		Selectors: selectors,
		Runner:    e.runner,
		Logger:    e.log.Logger,
		Recorder:  e.recorder,
	}
}

func (e *runEnv) pipeline(ctx context.Context, session *stages.Session, ids []string, opts ...stages.PipelineOption) (*stages.Pipeline, error) {
	mctx := module.NewContext(ctx, e.cfg, e.recorder, e.log.Logger).WithArtifacts(e.store)
	return stages.NewPipeline(mctx, stages.Registry(session), ids, opts...)
}

func (e *runEnv) Close() {
	if path := e.log.Path(); path != "" {
		e.log.Debug("log written", zap.String("path", path))
	}
	_ = e.log.Close()
}

// keyValueFlag collects repeatable --set key=value pairs. Values are parsed
// as YAML scalars or flow sequences so `--set missed_cleavages=2` is an int
// and `--set variable_mods=[a, b]` is a list.
type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	var pairs []string
	for key, value := range *kv {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	return strings.Join(pairs, ", ")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return fmt.Errorf("override key is empty in %q", value)
	}
	if *kv == nil {
		*kv = keyValueFlag{}
	}
	(*kv)[key] = parts[1]
	return nil
}

func (kv *keyValueFlag) Type() string {
	return "key=value"
}

// Values decodes every pair into a typed override map.
func (kv keyValueFlag) Values() (map[string]any, error) {
	if len(kv) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(kv))
	for key, raw := range kv {
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("--set %s: %w", key, err)
		}
		if value == nil {
			value = ""
		}
		out[key] = value
	}
	return out, nil
}
