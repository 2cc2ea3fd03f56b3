// internal/config/config.go
//
// This package handles the run configuration file and the output directory
// structure. Every pipeline run is described by one proteoflow.yaml.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/proteoflow/internal/failure"
	"github.com/kingrea/proteoflow/internal/layout"
	"github.com/kingrea/proteoflow/internal/toolchain"
)

const (
	// FileName is the conventional name of the run configuration file.
	FileName = "proteoflow.yaml"

	defaultSensitivity = "high"
	defaultSample      = "test"
	defaultReplicate   = 1
	defaultProteinFDR  = 1.0
	defaultTempDir     = "tmp"
	defaultJavaBinary  = "java"
)

// DecoyPolicy controls when the target/decoy database is generated.
type DecoyPolicy string

const (
	// DecoyMissing generates the database only when the convention path is absent.
	DecoyMissing DecoyPolicy = "missing"
	// DecoyAlways regenerates the database on every construction.
	DecoyAlways DecoyPolicy = "always"
	// DecoyNever requires an existing database.
	DecoyNever DecoyPolicy = "never"
)

const templateYAML = `# proteoflow run configuration
#
# Relative paths are resolved against the directory holding this file.

fasta: db/uniprot_human.fasta
spectra: spectra/sample.mgf
out_dir: out
experiment: experiment
sample: test
replicate: 1

# compomics tools live under <tools_dir>/<version>/<version>.jar
tools_dir: tools/compomics
searchgui_version: SearchGUI-3.3.20
peptideshaker_version: PeptideShaker-1.16.42
# Resolved as <tools_dir>/ptm/<ptm_config>
ptm_config: ptmFactory-4.12.14.json

# 0 uses every logical CPU.
threads: 0
protein_fdr: 1
# Sensitivity preset from the default parameter source (high or low).
sensitivity: high

temp_dir: tmp
# Target/decoy databases are cached here by FASTA basename.
db_cache: db
# missing | always | never
decoy: missing

java:
  binary: java
  # auto sizes the heap from physical memory.
  heap: auto

# Optional replacement for the embedded default parameter source.
# defaults_file: searchgui_default_params.yml
# Optional replacement for the built-in PeptideShaker report catalog.
# report_catalog: reports.yml

# Parameter overrides, applied after the sensitivity preset.
overrides: {}

# Report selectors (index or name). Empty selects reports 0 through 8.
reports: []

# Per-subprocess time limit, e.g. 12h. 0 disables it.
timeout: 0s
`

// JavaConfig selects the JVM used for every tool invocation.
type JavaConfig struct {
	Binary string `yaml:"binary"`
	Heap   string `yaml:"heap"`
}

// RunConfig models proteoflow.yaml. It is not modified after Load.
type RunConfig struct {
	Fasta      string `yaml:"fasta"`
	Spectra    string `yaml:"spectra"`
	OutDir     string `yaml:"out_dir"`
	Experiment string `yaml:"experiment"`
	Sample     string `yaml:"sample"`
	Replicate  int    `yaml:"replicate"`

	ToolsDir             string `yaml:"tools_dir"`
	SearchGUIVersion     string `yaml:"searchgui_version"`
	PeptideShakerVersion string `yaml:"peptideshaker_version"`
	PTMConfig            string `yaml:"ptm_config"`

	Threads     int     `yaml:"threads"`
	ProteinFDR  *float64 `yaml:"protein_fdr"`
	Sensitivity string   `yaml:"sensitivity"`

	TempDir string      `yaml:"temp_dir"`
	DBCache string      `yaml:"db_cache"`
	Decoy   DecoyPolicy `yaml:"decoy"`

	Java JavaConfig `yaml:"java"`

	DefaultsFile  string `yaml:"defaults_file,omitempty"`
	ReportCatalog string `yaml:"report_catalog,omitempty"`

	Overrides map[string]any `yaml:"overrides,omitempty"`
	Reports   []string       `yaml:"reports,omitempty"`

	Timeout time.Duration `yaml:"timeout"`

	// Path is the file the configuration was read from, if any.
	Path string `yaml:"-"`
}

// Default returns a configuration with every optional field populated. The
// required inputs (fasta, spectra, out_dir, experiment, tools and versions)
// are left empty.
func Default() RunConfig {
	var c RunConfig
	c.applyDefaults()
	return c
}

// Load reads, normalizes and validates a run configuration file.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, failure.Config("config: load", "%s does not exist; run `proteoflow init` first", path)
		}
		return nil, failure.Wrap(failure.KindConfig, "config: load", fmt.Errorf("read %s: %w", path, err))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return Parse(data, filepath.Dir(abs), abs)
}

// Parse decodes configuration bytes. Relative paths resolve against base.
func Parse(data []byte, base, source string) (*RunConfig, error) {
	var parsed RunConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, failure.Wrap(failure.KindConfig, "config: parse", fmt.Errorf("%s: %w", source, err))
	}
	parsed.Path = source
	parsed.applyDefaults()
	parsed.normalize(base)
	if err := parsed.validate(); err != nil {
		return nil, failure.Wrap(failure.KindConfig, "config: validate", err)
	}
	return &parsed, nil
}

// WriteTemplate creates an annotated configuration file at path. An existing
// file is left untouched and reported through the created flag.
func WriteTemplate(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, failure.Filesystem("config: template", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, failure.Filesystem("config: template", err)
		}
	}
	if err := os.WriteFile(path, []byte(templateYAML), 0o644); err != nil {
		return false, failure.Filesystem("config: template", err)
	}
	return true, nil
}

// WithOverrides returns a copy whose overrides are extended by extra. Values
// in extra win.
func (c RunConfig) WithOverrides(extra map[string]any) RunConfig {
	merged := make(map[string]any, len(c.Overrides)+len(extra))
	for k, v := range c.Overrides {
		merged[k] = v
	}
	for k, v := range extra {
		merged[strings.TrimSpace(k)] = v
	}
	c.Overrides = merged
	c.Reports = append([]string(nil), c.Reports...)
	return c
}

// OverrideKeys returns the override names, sorted.
func (c RunConfig) OverrideKeys() []string {
	keys := make([]string, 0, len(c.Overrides))
	for k := range c.Overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Layout returns the artifact paths derived from this configuration.
func (c RunConfig) Layout() layout.Layout {
	return layout.New(c.OutDir, c.TempDir, c.DBCache, c.Experiment)
}

// Tools returns the compomics installation described by the configuration.
func (c RunConfig) Tools() toolchain.Tools {
	return toolchain.Tools{
		Dir:                  c.ToolsDir,
		SearchGUIVersion:     c.SearchGUIVersion,
		PeptideShakerVersion: c.PeptideShakerVersion,
	}
}

// ThreadCount returns the configured threads, or the CPU count when unset.
func (c RunConfig) ThreadCount() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return toolchain.DefaultThreads()
}

// FDR returns the protein FDR in percent. An explicit 0 is kept.
func (c RunConfig) FDR() float64 {
	if c.ProteinFDR == nil {
		return defaultProteinFDR
	}
	return *c.ProteinFDR
}

// FormatFDR renders the protein FDR the way SearchCLI expects it.
func (c RunConfig) FormatFDR() string {
	return strconv.FormatFloat(c.FDR(), 'f', -1, 64)
}

// EnsureLayout creates the directories of l that do not exist yet and
// returns the ones it created, in creation order. Calling it again on the
// same layout creates nothing.
func EnsureLayout(l layout.Layout) ([]string, error) {
	var created []string
	for _, dir := range l.Directories() {
		if dir == "" {
			continue
		}
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return created, failure.Filesystem("config: ensure layout", fmt.Errorf("%s exists and is not a directory", dir))
			}
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return created, failure.Filesystem("config: ensure layout", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return created, failure.Filesystem("config: ensure layout", err)
		}
		created = append(created, dir)
	}
	return created, nil
}

func (c *RunConfig) applyDefaults() {
	if c.Sample == "" {
		c.Sample = defaultSample
	}
	if c.Replicate == 0 {
		c.Replicate = defaultReplicate
	}
	if c.ProteinFDR == nil {
		fdr := defaultProteinFDR
		c.ProteinFDR = &fdr
	}
	if c.Sensitivity == "" {
		c.Sensitivity = defaultSensitivity
	}
	if c.TempDir == "" {
		c.TempDir = defaultTempDir
	}
	if c.Decoy == "" {
		c.Decoy = DecoyMissing
	}
	if c.Java.Binary == "" {
		c.Java.Binary = defaultJavaBinary
	}
	if c.Java.Heap == "" {
		c.Java.Heap = toolchain.HeapAuto
	}
	if c.Overrides == nil {
		c.Overrides = map[string]any{}
	}
}

func (c *RunConfig) normalize(base string) {
	c.Fasta = resolvePath(base, c.Fasta)
	c.Spectra = resolvePath(base, c.Spectra)
	c.OutDir = resolvePath(base, c.OutDir)
	c.ToolsDir = resolvePath(base, c.ToolsDir)
	c.TempDir = resolvePath(base, c.TempDir)
	c.DefaultsFile = resolvePath(base, c.DefaultsFile)
	c.ReportCatalog = resolvePath(base, c.ReportCatalog)
	if strings.TrimSpace(c.DBCache) == "" {
		c.DBCache = filepath.Dir(c.Fasta)
	} else {
		c.DBCache = resolvePath(base, c.DBCache)
	}

	c.Experiment = strings.TrimSpace(c.Experiment)
	c.Sample = strings.TrimSpace(c.Sample)
	c.SearchGUIVersion = strings.TrimSpace(c.SearchGUIVersion)
	c.PeptideShakerVersion = strings.TrimSpace(c.PeptideShakerVersion)
	c.PTMConfig = strings.TrimSpace(c.PTMConfig)
	c.Sensitivity = strings.ToLower(strings.TrimSpace(c.Sensitivity))
	c.Decoy = DecoyPolicy(strings.ToLower(strings.TrimSpace(string(c.Decoy))))
	c.Java.Binary = strings.TrimSpace(c.Java.Binary)
	c.Java.Heap = strings.TrimSpace(c.Java.Heap)

	trimmed := c.Reports[:0]
	for _, r := range c.Reports {
		if r = strings.TrimSpace(r); r != "" {
			trimmed = append(trimmed, r)
		}
	}
	c.Reports = trimmed
}

func (c *RunConfig) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"fasta", c.Fasta},
		{"spectra", c.Spectra},
		{"out_dir", c.OutDir},
		{"experiment", c.Experiment},
		{"tools_dir", c.ToolsDir},
		{"searchgui_version", c.SearchGUIVersion},
		{"peptideshaker_version", c.PeptideShakerVersion},
		{"ptm_config", c.PTMConfig},
	}
	for _, field := range required {
		if field.value == "" {
			return fmt.Errorf("%s is required", field.name)
		}
	}
	if strings.ContainsAny(c.Experiment, `/\`) {
		return fmt.Errorf("experiment %q must not contain path separators", c.Experiment)
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must be >= 0")
	}
	if fdr := c.FDR(); fdr < 0 || fdr > 100 {
		return fmt.Errorf("protein_fdr must be between 0 and 100")
	}
	if c.Replicate < 0 {
		return fmt.Errorf("replicate must be >= 0")
	}
	switch c.Decoy {
	case DecoyMissing, DecoyAlways, DecoyNever:
	default:
		return fmt.Errorf("decoy must be 'missing', 'always' or 'never'")
	}
	if _, err := toolchain.ResolveHeap(heapForValidation(c.Java.Heap)); err != nil {
		return fmt.Errorf("java.heap: %w", err)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0")
	}
	return nil
}

// heapForValidation avoids probing system memory while validating.
func heapForValidation(value string) string {
	if strings.EqualFold(value, toolchain.HeapAuto) {
		return ""
	}
	return value
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
