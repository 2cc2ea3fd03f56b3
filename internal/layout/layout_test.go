package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecoyDatabaseNaming(t *testing.T) {
	l := New("/runs/out", "/runs/tmp", "/cache/db", "exp1")
	cases := map[string]string{
		"basename.fasta":          "/cache/db/basename_concatenated_target_decoy.fasta",
		"/data/uniprot.fasta":     "/cache/db/uniprot_concatenated_target_decoy.fasta",
		"rel/human.v2.fasta":      "/cache/db/human.v2_concatenated_target_decoy.fasta",
		"/data/no_extension_file": "/cache/db/no_extension_file_concatenated_target_decoy.fasta",
	}
	for in, want := range cases {
		assert.Equal(t, want, l.DecoyDatabase(in), in)
		// deterministic across calls
		assert.Equal(t, l.DecoyDatabase(in), l.DecoyDatabase(in))
	}
}

func TestToolNamingContracts(t *testing.T) {
	l := New("/runs/out", "/runs/tmp", "/cache/db", "exp1")
	assert.Equal(t, "/runs/out/id_params.par", l.ParametersFile())
	assert.Equal(t, "/runs/out/search_results/searchgui_out.zip", l.SearchArchive())
	assert.Equal(t, "/runs/out/exp1.cpsx", l.ProjectFile())
	assert.Equal(t, "/runs/out/exp1.cpsx.zip", l.ConsolidatedArchive())
	assert.Equal(t, "/runs/out/peptideshaker_reports", l.ShakerReportsDir())
	assert.Equal(t, "/runs/out/logs/search.log", l.TranscriptPath("search"))
	assert.Equal(t, "/runs/out/logs/run.json", l.ManifestPath())
}

func TestDirectoriesParentsFirst(t *testing.T) {
	l := New("/runs/out", "/runs/tmp", "/cache/db", "exp1")
	dirs := l.Directories()
	assert.Equal(t, "/runs/out", dirs[0])
	assert.Contains(t, dirs, "/runs/out/search_results")
	assert.Contains(t, dirs, "/runs/out/logs")
	assert.Contains(t, dirs, "/runs/out/reports")
	assert.Contains(t, dirs, "/runs/tmp")
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	assert.False(t, FileExists(path))
	assert.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.True(t, FileExists(path))
	assert.False(t, FileExists(dir))
}
