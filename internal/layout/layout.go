// internal/layout/layout.go
//
// Defines the output directory structure and the file naming conventions the
// external tools expect. Every path is derived from the run configuration and
// nothing here touches the filesystem except the Exists helpers.

package layout

import (
	"os"
	"path/filepath"
	"strings"
)

// Directory names within the output directory
const (
	ReportsDir       = "reports"
	LogsDir          = "logs"
	SearchResultsDir = "search_results"
	ShakerReportsDir = "peptideshaker_reports"
)

// File names controlled by SearchGUI and PeptideShaker. These must not change.
const (
	FileParameters    = "id_params.par"
	FileSearchArchive = "searchgui_out.zip"
	DecoySuffix       = "_concatenated_target_decoy.fasta"
	ProjectExt        = ".cpsx"
	ArchiveExt        = ".zip"
)

// Files written by proteoflow itself (in <out>/logs/)
const (
	FileLog      = "proteoflow.log"
	FileManifest = "run.json"
)

// Layout resolves every artifact path for one run.
type Layout struct {
	outDir     string
	tempDir    string
	dbCache    string
	experiment string
}

// New creates a layout rooted at outDir.
func New(outDir, tempDir, dbCache, experiment string) Layout {
	return Layout{
		outDir:     filepath.Clean(outDir),
		tempDir:    filepath.Clean(tempDir),
		dbCache:    filepath.Clean(dbCache),
		experiment: experiment,
	}
}

// OutDir returns the root output directory
func (l Layout) OutDir() string {
	return l.outDir
}

// TempDir returns the shared temp folder handed to both tools
func (l Layout) TempDir() string {
	return l.tempDir
}

// DBCache returns the directory holding concatenated target/decoy databases
func (l Layout) DBCache() string {
	return l.dbCache
}

// Experiment returns the experiment name used for the PeptideShaker project
func (l Layout) Experiment() string {
	return l.experiment
}

// ReportsDir returns <out>/reports
func (l Layout) ReportsDir() string {
	return filepath.Join(l.outDir, ReportsDir)
}

// LogsDir returns <out>/logs
func (l Layout) LogsDir() string {
	return filepath.Join(l.outDir, LogsDir)
}

// SearchResultsDir returns <out>/search_results
func (l Layout) SearchResultsDir() string {
	return filepath.Join(l.outDir, SearchResultsDir)
}

// ShakerReportsDir returns <out>/peptideshaker_reports
func (l Layout) ShakerReportsDir() string {
	return filepath.Join(l.outDir, ShakerReportsDir)
}

// ParametersFile returns <out>/id_params.par
func (l Layout) ParametersFile() string {
	return filepath.Join(l.outDir, FileParameters)
}

// SearchArchive returns <out>/search_results/searchgui_out.zip
func (l Layout) SearchArchive() string {
	return filepath.Join(l.SearchResultsDir(), FileSearchArchive)
}

// ProjectFile returns <out>/<experiment>.cpsx
func (l Layout) ProjectFile() string {
	return filepath.Join(l.outDir, l.experiment+ProjectExt)
}

// ConsolidatedArchive returns <out>/<experiment>.cpsx.zip
func (l Layout) ConsolidatedArchive() string {
	return l.ProjectFile() + ArchiveExt
}

// LogFile returns <out>/logs/proteoflow.log
func (l Layout) LogFile() string {
	return filepath.Join(l.LogsDir(), FileLog)
}

// ManifestPath returns <out>/logs/run.json
func (l Layout) ManifestPath() string {
	return filepath.Join(l.LogsDir(), FileManifest)
}

// TranscriptPath returns <out>/logs/<step>.log
func (l Layout) TranscriptPath(step string) string {
	return filepath.Join(l.LogsDir(), step+".log")
}

// DecoyDatabase returns <db_cache>/<basename>_concatenated_target_decoy.fasta.
func (l Layout) DecoyDatabase(fasta string) string {
	return filepath.Join(l.dbCache, DecoyName(fasta))
}

// DecoyName returns the concatenated target/decoy file name for a FASTA path:
// the base name without its last extension plus DecoySuffix.
func DecoyName(fasta string) string {
	base := filepath.Base(fasta)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + DecoySuffix
}

// Directories returns every directory the search stage needs before launch,
// parents first.
func (l Layout) Directories() []string {
	return []string{
		l.outDir,
		l.tempDir,
		l.dbCache,
		l.ReportsDir(),
		l.LogsDir(),
		l.SearchResultsDir(),
	}
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
