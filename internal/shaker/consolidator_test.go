package shaker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/proteoflow/internal/config"
	"github.com/kingrea/proteoflow/internal/failure"
	"github.com/kingrea/proteoflow/internal/reports"
	"github.com/kingrea/proteoflow/internal/runner"
	"github.com/kingrea/proteoflow/internal/runner/runnertest"
	"github.com/kingrea/proteoflow/internal/search"
	"github.com/kingrea/proteoflow/internal/toolchain"
)

type fixture struct {
	root string
	fake *runnertest.Fake
	sc   *search.Configurator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, runnertest.WriteFile(filepath.Join(root, "db", "human_concatenated_target_decoy.fasta"), []byte(">t\n>decoy\n")))
	require.NoError(t, runnertest.WriteFile(filepath.Join(root, "db", "human.fasta"), []byte(">t\n")))
	require.NoError(t, runnertest.WriteFile(filepath.Join(root, "run1.mgf"), []byte("BEGIN IONS\n")))
	cfg, err := config.Parse([]byte(`
fasta: db/human.fasta
spectra: run1.mgf
out_dir: out
experiment: exp1
sample: liver
replicate: 2
tools_dir: tools
searchgui_version: SearchGUI-3.3.20
peptideshaker_version: PeptideShaker-1.16.42
ptm_config: ptm.json
java:
  heap: 12G
`), root, "test.yaml")
	require.NoError(t, err)

	fake := runnertest.New()
	fake.On(toolchain.ClassPeptideShaker, runnertest.Writes("-zip", "", runnertest.ZipBytes))
	fake.On(toolchain.ClassReport, func(cmd runner.Command) (*runner.Result, error) {
		dir, _ := runnertest.Value(cmd, "-out_reports")
		list, _ := runnertest.Value(cmd, "-reports")
		for _, idx := range strings.Split(list, ", ") {
			if err := runnertest.WriteFile(filepath.Join(dir, fmt.Sprintf("exp1_report_%s.txt", idx)), []byte("ok")); err != nil {
				return nil, err
			}
		}
		return &runner.Result{ExitCode: 0}, nil
	})
	sc, err := search.New(context.Background(), *cfg, search.WithRunner(fake))
	require.NoError(t, err)
	return &fixture{root: root, fake: fake, sc: sc}
}

func (f *fixture) options() Options {
	cfg := f.sc.Config()
	return Options{Version: cfg.PeptideShakerVersion, FastaPath: f.sc.DatabasePath(), Sample: cfg.Sample, Replicate: cfg.Replicate}
}

func (f *fixture) consolidator(t *testing.T) *Consolidator {
	t.Helper()
	c, err := New(context.Background(), f.sc, f.options(), WithRunner(f.fake))
	require.NoError(t, err)
	return c
}

func (f *fixture) writeSearchArchive(t *testing.T) {
	t.Helper()
	require.NoError(t, runnertest.WriteFile(f.sc.Layout().SearchArchive(), runnertest.ZipBytes))
}

func (f *fixture) jar() string {
	return filepath.Join(f.root, "tools", "PeptideShaker-1.16.42", "PeptideShaker-1.16.42.jar")
}

func TestNewAppliesPathSettingsOnce(t *testing.T) {
	f := newFixture(t)
	f.consolidator(t)
	calls := f.fake.Calls(toolchain.ClassPathSettings)
	require.Len(t, calls, 1)
	want := []string{
		"-cp", f.jar(), toolchain.ClassPathSettings,
		"-temp_folder", filepath.Join(f.root, "tmp"),
		"-ptm_configuration", filepath.Join(f.root, "tools", "ptm", "ptm.json"),
	}
	if diff := cmp.Diff(want, calls[0].Args); diff != "" {
		t.Fatalf("PathSettingsCLI argv mismatch (-want +got):\n%s", diff)
	}
}

func TestNewValidatesInputs(t *testing.T) {
	f := newFixture(t)
	_, err := New(context.Background(), nil, f.options())
	assert.ErrorIs(t, err, failure.ErrConfig)

	opts := f.options()
	opts.FastaPath = ""
	_, err = New(context.Background(), f.sc, opts, WithRunner(f.fake))
	assert.ErrorIs(t, err, failure.ErrConfig)

	opts = f.options()
	opts.Version = " "
	_, err = New(context.Background(), f.sc, opts, WithRunner(f.fake))
	assert.ErrorIs(t, err, failure.ErrConfig)
	assert.Empty(t, f.fake.Calls(toolchain.ClassPathSettings))
}

func TestPathSettingsFailureIsConfigError(t *testing.T) {
	f := newFixture(t)
	f.fake.On(toolchain.ClassPathSettings, runnertest.Fail(1, "", "cannot write settings"))
	_, err := New(context.Background(), f.sc, f.options(), WithRunner(f.fake))
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrConfig)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, "cannot write settings", fe.Stderr)
}

func TestConsolidateRequiresSearchArchive(t *testing.T) {
	f := newFixture(t)
	c := f.consolidator(t)
	err := c.Consolidate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrPrecondition)
	assert.Empty(t, f.fake.Calls(toolchain.ClassPeptideShaker))
	assert.NoFileExists(t, c.ArchivePath())

	require.NoError(t, os.WriteFile(f.sc.Layout().SearchArchive(), nil, 0o644))
	err = c.Consolidate(context.Background())
	assert.ErrorIs(t, err, failure.ErrPrecondition, "zero-byte archive")
}

func TestConsolidateInvocation(t *testing.T) {
	f := newFixture(t)
	f.writeSearchArchive(t)
	c := f.consolidator(t)
	require.NoError(t, c.Consolidate(context.Background()))

	calls := f.fake.Calls(toolchain.ClassPeptideShaker)
	require.Len(t, calls, 1)
	out := filepath.Join(f.root, "out")
	want := []string{
		"-Xmx12G", "-cp", f.jar(), toolchain.ClassPeptideShaker,
		"-temp_folder", filepath.Join(f.root, "tmp"),
		"-experiment", "exp1",
		"-sample", "liver",
		"-replicate", "2",
		"-fasta_file", filepath.Join(f.root, "db", "human_concatenated_target_decoy.fasta"),
		"-identification_files", filepath.Join(out, "search_results", "searchgui_out.zip"),
		"-spectrum_files", filepath.Join(f.root, "run1.mgf"),
		"-out", filepath.Join(out, "exp1.cpsx"),
		"-zip", filepath.Join(out, "exp1.cpsx.zip"),
	}
	if diff := cmp.Diff(want, calls[0].Args); diff != "" {
		t.Fatalf("PeptideShakerCLI argv mismatch (-want +got):\n%s", diff)
	}
	assert.FileExists(t, c.ArchivePath())
}

func TestConsolidateFailures(t *testing.T) {
	f := newFixture(t)
	f.writeSearchArchive(t)
	f.fake.On(toolchain.ClassPeptideShaker, runnertest.Fail(1, "validating", "no PSMs"))
	c := f.consolidator(t)
	err := c.Consolidate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrConsolidation)
	fe, _ := failure.As(err)
	assert.Equal(t, "no PSMs", fe.Stderr)
	assert.Equal(t, "validating", fe.Stdout)

	f.fake.On(toolchain.ClassPeptideShaker, runnertest.Succeed("claimed success"))
	err = c.Consolidate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrConsolidation, "exit 0 without an archive is still a failure")
}

func TestConsolidateIgnoresLeftoverArchive(t *testing.T) {
	f := newFixture(t)
	f.writeSearchArchive(t)
	c := f.consolidator(t)
	require.NoError(t, runnertest.WriteFile(c.ArchivePath(), runnertest.ZipBytes))
	require.NoError(t, runnertest.WriteFile(f.sc.Layout().ProjectFile(), []byte("old project")))
	f.fake.On(toolchain.ClassPeptideShaker, runnertest.Succeed("nothing written"))

	err := c.Consolidate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrConsolidation)
	assert.Contains(t, err.Error(), "missing")
	assert.NoFileExists(t, c.ArchivePath())
	assert.NoFileExists(t, f.sc.Layout().ProjectFile())
}

func TestExtractReportsSoftFailsUnknownSelectors(t *testing.T) {
	f := newFixture(t)
	c := f.consolidator(t)
	require.NoError(t, runnertest.WriteFile(c.ArchivePath(), runnertest.ZipBytes))

	res, err := c.ExtractReports(context.Background(), []string{"0", "Extended PSM Report", "bogus"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 11}, res.Indices)
	assert.Equal(t, []string{"bogus"}, res.Unavailable)
	assert.Equal(t, filepath.Join(f.root, "out", "peptideshaker_reports"), res.Dir)
	assert.Equal(t, []string{"exp1_report_0.txt", "exp1_report_11.txt"}, res.Files)

	calls := f.fake.Calls(toolchain.ClassReport)
	require.Len(t, calls, 1)
	want := []string{
		"-cp", f.jar(), toolchain.ClassReport,
		"-in", c.ArchivePath(),
		"-out_reports", res.Dir,
		"-reports", "0, 11",
	}
	if diff := cmp.Diff(want, calls[0].Args); diff != "" {
		t.Fatalf("ReportCLI argv mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractReportsDefaultsAndErrors(t *testing.T) {
	f := newFixture(t)
	c := f.consolidator(t)

	_, err := c.ExtractReports(context.Background(), nil)
	assert.ErrorIs(t, err, failure.ErrPrecondition, "no consolidated archive yet")

	require.NoError(t, runnertest.WriteFile(c.ArchivePath(), runnertest.ZipBytes))
	res, err := c.ExtractReports(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, res.Indices)

	_, err = c.ExtractReports(context.Background(), []string{"bogus", "99"})
	assert.ErrorIs(t, err, failure.ErrConfig)
	assert.Len(t, f.fake.Calls(toolchain.ClassReport), 1, "an empty request never reaches ReportCLI")

	f.fake.On(toolchain.ClassReport, runnertest.Fail(2, "", "corrupt project"))
	_, err = c.ExtractReports(context.Background(), []string{"9"})
	assert.ErrorIs(t, err, failure.ErrReportExtraction)
}

func TestCustomCatalog(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "catalog.yml")
	require.NoError(t, os.WriteFile(path, []byte("tool: PeptideShaker\nversion: \"2.0\"\nreports:\n  - index: 4\n    name: Only Report\n"), 0o644))
	catalog, err := reports.LoadCatalog(path)
	require.NoError(t, err)

	opts := f.options()
	opts.Catalog = catalog
	c, err := New(context.Background(), f.sc, opts, WithRunner(f.fake))
	require.NoError(t, err)
	require.NoError(t, runnertest.WriteFile(c.ArchivePath(), runnertest.ZipBytes))

	res, err := c.ExtractReports(context.Background(), []string{"only report", "0"})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, res.Indices)
	assert.Equal(t, []string{"0"}, res.Unavailable)
	assert.Equal(t, "PeptideShaker 2.0", c.Catalog().Label())
}
