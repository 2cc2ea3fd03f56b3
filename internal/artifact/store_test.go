package artifact

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/proteoflow/internal/layout"
)

func testScope(t *testing.T) Scope {
	t.Helper()
	root := t.TempDir()
	l := layout.New(filepath.Join(root, "out"), filepath.Join(root, "tmp"), filepath.Join(root, "db"), "exp1")
	for _, dir := range l.Directories() {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return Scope{Layout: l, Fasta: filepath.Join(root, "human.fasta")}
}

func writeZip(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("result.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestCanonicalRefsResolve(t *testing.T) {
	s := testScope(t)
	assert.Equal(t, filepath.Join(s.Layout.DBCache(), "human_concatenated_target_decoy.fasta"), DecoyDatabase.Path(s))
	assert.Equal(t, s.Layout.SearchArchive(), SearchArchive.Path(s))
	assert.Equal(t, s.Layout.ConsolidatedArchive(), ConsolidatedArchive.Path(s))
	assert.Empty(t, DecoyDatabase.Path(Scope{Layout: s.Layout}))

	for _, ref := range []Ref{DecoyDatabase, IdentificationParameters, SearchArchive, ConsolidatedArchive, Reports, RunManifest} {
		require.NoError(t, ref.Validate())
	}
	assert.Error(t, Ref{ID: "x", Kind: KindFile}.Validate())
}

func TestCheckArchiveStates(t *testing.T) {
	s := testScope(t)
	store := NewStore(s)

	res, err := store.Check(SearchArchive)
	require.NoError(t, err)
	assert.Equal(t, StateMissing, res.State)

	path := SearchArchive.Path(s)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	res, err = store.Check(SearchArchive)
	assert.Error(t, err)
	assert.Equal(t, StateInvalid, res.State, "zero-byte archive")

	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	res, _ = store.Check(SearchArchive)
	assert.Equal(t, StateInvalid, res.State)

	writeZip(t, path)
	res, err = store.Check(SearchArchive)
	require.NoError(t, err)
	assert.True(t, res.Ready())
	assert.Positive(t, res.Size)
}

func TestCheckFileAndDirectory(t *testing.T) {
	s := testScope(t)
	store := NewStore(s)

	params := IdentificationParameters.Path(s)
	require.NoError(t, os.MkdirAll(params, 0o755))
	res, _ := store.Check(IdentificationParameters)
	assert.Equal(t, StateInvalid, res.State, "directory where a file is expected")
	require.NoError(t, os.Remove(params))
	require.NoError(t, os.WriteFile(params, []byte("par"), 0o644))
	res, _ = store.Check(IdentificationParameters)
	assert.Equal(t, StateReady, res.State)

	dir := Reports.Path(s)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	res, _ = store.Check(Reports)
	assert.Equal(t, StateMissing, res.State, "empty report folder")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exp1_Default_PSM_Report.txt"), []byte("x"), 0o644))
	res, _ = store.Check(Reports)
	assert.Equal(t, StateReady, res.State)

	results, ready := store.CheckAll([]Ref{IdentificationParameters, Reports, SearchArchive})
	assert.Len(t, results, 3)
	assert.False(t, ready)
}

func TestManifestRecorder(t *testing.T) {
	s := testScope(t)
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(s, WithClock(func() time.Time { return clock }))

	m := NewManifest(Manifest{Experiment: "exp1"}, clock)
	require.NotEmpty(t, m.RunID)
	rec := NewRecorder(store, m)

	code := 0
	require.NoError(t, rec.Record(StepRecord{Name: "search", Status: StepRunning, StartedAt: clock}))
	require.NoError(t, rec.Record(StepRecord{Name: "search", Status: StepComplete, StartedAt: clock, ExitCode: &code}))
	require.NoError(t, rec.Record(StepRecord{Name: "consolidate", Status: StepFailed, StartedAt: clock}))

	loaded, err := LoadManifest(RunManifest.Path(s))
	require.NoError(t, err)
	assert.Equal(t, m.RunID, loaded.RunID)
	require.Len(t, loaded.Steps, 2)
	step, ok := loaded.Step("search")
	require.True(t, ok)
	assert.Equal(t, StepComplete, step.Status)
	require.NotNil(t, step.ExitCode)
	assert.Equal(t, 0, *step.ExitCode)
	assert.True(t, clock.Equal(loaded.UpdatedAt))

	res, err := store.Check(RunManifest)
	require.NoError(t, err)
	assert.True(t, res.Ready())

	var nilRec *Recorder
	assert.NoError(t, nilRec.Record(StepRecord{Name: "x"}))
	assert.Len(t, rec.Manifest().Steps, 2)
}

func TestLoadManifestRejectsBadRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"run_id":"nope","steps":[]}`), 0o644))
	_, err := LoadManifest(path)
	assert.Error(t, err)
}
