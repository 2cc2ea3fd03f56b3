// Package artifact defines the filesystem-level contracts (inputs/outputs)
// that pipeline stages exchange. Each artifact has a stable identifier, kind,
// and a resolver that maps to the actual path within the run's output tree.

package artifact

import (
	"fmt"
	"path/filepath"

	"github.com/kingrea/proteoflow/internal/layout"
)

// Kind captures the storage shape of an artifact.
type Kind string

const (
	// KindFile is a regular, non-empty file.
	KindFile Kind = "file"
	// KindArchive is a zip archive written by an external tool.
	KindArchive Kind = "archive"
	// KindDirectory is a directory that must hold at least one entry.
	KindDirectory Kind = "directory"
	// KindManifest is the JSON run manifest.
	KindManifest Kind = "manifest"
)

// Scope is what a path resolver needs to locate an artifact.
type Scope struct {
	Layout layout.Layout
	// Fasta is the input database the decoy database is derived from.
	Fasta string
}

// PathResolver returns the fully-qualified path to an artifact for a run.
type PathResolver func(Scope) string

// Ref declares a stable identifier and metadata for an artifact.
type Ref struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	Optional    bool
	path        PathResolver
}

// Path resolves the artifact path for the provided scope.
func (r Ref) Path(s Scope) string {
	if r.path == nil {
		return ""
	}
	p := r.path(s)
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

// Validate ensures the reference is well-formed.
func (r Ref) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("artifact: id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("artifact: kind is required for %s", r.ID)
	}
	if r.path == nil {
		return fmt.Errorf("artifact: path resolver missing for %s", r.ID)
	}
	return nil
}

// State captures the readiness of an artifact on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref   Ref
	Path  string
	State State
	Size  int64
	Err   error
}

// Ready reports whether the artifact can be consumed.
func (c CheckResult) Ready() bool {
	return c.State == StateReady
}

func newRef(id, name, desc string, kind Kind, resolver PathResolver) Ref {
	return Ref{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        kind,
		path:        resolver,
	}
}

// Canonical artifact references for a SearchGUI → PeptideShaker run.
var (
	DecoyDatabase = newRef("decoy-db", "Target/Decoy Database", "concatenated target+decoy FASTA in the database cache", KindFile, func(s Scope) string {
		if s.Fasta == "" {
			return ""
		}
		return s.Layout.DecoyDatabase(s.Fasta)
	})
	IdentificationParameters = newRef("id-params", "Identification Parameters", "id_params.par written by IdentificationParametersCLI", KindFile, func(s Scope) string { return s.Layout.ParametersFile() })
	SearchArchive            = newRef("search-archive", "Search Results Archive", "searchgui_out.zip written by SearchCLI", KindArchive, func(s Scope) string { return s.Layout.SearchArchive() })
	ConsolidatedArchive      = newRef("cpsx-zip", "Consolidated Archive", "<experiment>.cpsx.zip written by PeptideShakerCLI", KindArchive, func(s Scope) string { return s.Layout.ConsolidatedArchive() })
	Reports                  = newRef("reports", "PeptideShaker Reports", "peptideshaker_reports folder filled by ReportCLI", KindDirectory, func(s Scope) string { return s.Layout.ShakerReportsDir() })
	RunManifest              = newRef("run-manifest", "Run Manifest", "logs/run.json recording every stage", KindManifest, func(s Scope) string { return s.Layout.ManifestPath() })
)
