package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Step statuses recorded in the manifest.
const (
	StepRunning  = "running"
	StepComplete = "complete"
	StepFailed   = "failed"
	StepSkipped  = "skipped"
)

// StepRecord describes one external tool invocation or pipeline stage.
type StepRecord struct {
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	Command    []string   `json:"command,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Transcript string     `json:"transcript,omitempty"`
}

// Manifest is the JSON record of a pipeline run.
type Manifest struct {
	RunID         string       `json:"run_id"`
	Experiment    string       `json:"experiment"`
	Fasta         string       `json:"fasta"`
	Spectra       string       `json:"spectra"`
	Sensitivity   string       `json:"sensitivity"`
	SearchGUI     string       `json:"searchgui_version"`
	PeptideShaker string       `json:"peptideshaker_version"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Steps         []StepRecord `json:"steps"`
}

// NewManifest starts a manifest with a fresh run id.
func NewManifest(m Manifest, now time.Time) *Manifest {
	m.RunID = uuid.NewString()
	m.CreatedAt = now.UTC()
	m.UpdatedAt = m.CreatedAt
	m.Steps = nil
	return &m
}

// LoadManifest reads a manifest written by Store.SaveManifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("artifact: parse manifest %s: %w", path, err)
	}
	if _, err := uuid.Parse(m.RunID); err != nil {
		return nil, fmt.Errorf("artifact: manifest %s has invalid run id: %w", path, err)
	}
	return &m, nil
}

// Record inserts rec, replacing an earlier record with the same name.
func (m *Manifest) Record(rec StepRecord) {
	for i := range m.Steps {
		if m.Steps[i].Name == rec.Name {
			m.Steps[i] = rec
			return
		}
	}
	m.Steps = append(m.Steps, rec)
}

// Step returns the record for name.
func (m *Manifest) Step(name string) (StepRecord, bool) {
	for _, rec := range m.Steps {
		if rec.Name == name {
			return rec, true
		}
	}
	return StepRecord{}, false
}

// SaveManifest writes m to the run manifest path, replacing the previous file.
func (s *Store) SaveManifest(m *Manifest) error {
	path := s.Path(RunManifest)
	if path == "" {
		return fmt.Errorf("artifact: manifest path could not be resolved")
	}
	m.UpdatedAt = s.now().UTC()
	encoded, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Recorder appends step records to a manifest and persists it after each
// one. A nil Recorder discards records.
type Recorder struct {
	mu       sync.Mutex
	store    *Store
	manifest *Manifest
}

// NewRecorder binds a manifest to the store that persists it.
func NewRecorder(store *Store, manifest *Manifest) *Recorder {
	return &Recorder{store: store, manifest: manifest}
}

// Record stores rec and rewrites the manifest.
func (r *Recorder) Record(rec StepRecord) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifest.Record(rec)
	return r.store.SaveManifest(r.manifest)
}

// Now returns the recorder's clock reading.
func (r *Recorder) Now() time.Time {
	if r == nil || r.store == nil {
		return time.Now()
	}
	return r.store.now()
}

// Manifest returns a snapshot of the current manifest.
func (r *Recorder) Manifest() Manifest {
	if r == nil {
		return Manifest{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := *r.manifest
	snapshot.Steps = append([]StepRecord(nil), r.manifest.Steps...)
	return snapshot
}
