package toolchain

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolPaths(t *testing.T) {
	tools := Tools{Dir: "/opt/compomics", SearchGUIVersion: "SearchGUI-3.3.20", PeptideShakerVersion: "PeptideShaker-1.16.42"}
	assert.Equal(t, "/opt/compomics/SearchGUI-3.3.20/SearchGUI-3.3.20.jar", tools.SearchGUIJar())
	assert.Equal(t, "/opt/compomics/PeptideShaker-1.16.42/PeptideShaker-1.16.42.jar", tools.PeptideShakerJar())
	assert.Equal(t, "/opt/compomics/ptm/ptm.json", tools.PTMConfig("ptm.json"))
}

func TestJavaCommand(t *testing.T) {
	args := &Args{}
	args.Pair("in", "/data/db.fasta").Flag("decoy")
	cmd := Java{Heap: "27G"}.Command(Invocation{Step: "decoy", Jar: "sg.jar", Class: ClassFasta, Args: args})
	assert.Equal(t, "java", cmd.Binary)
	assert.Equal(t, "decoy", cmd.Name)
	want := []string{"-cp", "sg.jar", ClassFasta, "-in", "/data/db.fasta", "-decoy"}
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}

	heavy := Java{Binary: "/usr/bin/java", Heap: "27G"}.Command(Invocation{Step: "search", Jar: "sg.jar", Class: ClassSearch, Heavy: true})
	assert.Equal(t, "/usr/bin/java", heavy.Binary)
	if diff := cmp.Diff([]string{"-Xmx27G", "-cp", "sg.jar", ClassSearch}, heavy.Args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestArgsKeepValuesWhole(t *testing.T) {
	args := &Args{}
	args.Pair("variable_mods", "Oxidation of M, Acetylation of protein N-term").Pair("--threads", "4")
	assert.Equal(t, []string{"-variable_mods", "Oxidation of M, Acetylation of protein N-term", "-threads", "4"}, args.Strings())
	args.Flag("decoy")
	assert.Equal(t, "-decoy", args.Strings()[4])
}

func TestInvocationValidate(t *testing.T) {
	assert.Error(t, Invocation{Step: "x", Class: ClassSearch}.Validate())
	assert.Error(t, Invocation{Step: "x", Jar: "a.jar"}.Validate())
	assert.NoError(t, Invocation{Step: "x", Jar: "a.jar", Class: ClassSearch}.Validate())
}

func TestResolveHeap(t *testing.T) {
	orig := memTotal
	t.Cleanup(func() { memTotal = orig })
	memTotal = func() (uint64, error) { return 32 << 30, nil }

	heap, err := ResolveHeap("auto")
	require.NoError(t, err)
	assert.Equal(t, "24G", heap)

	memTotal = func() (uint64, error) { return 512 << 20, nil }
	heap, err = ResolveHeap("AUTO")
	require.NoError(t, err)
	assert.Equal(t, "1G", heap)

	memTotal = func() (uint64, error) { return 0, errors.New("no /proc") }
	_, err = ResolveHeap("auto")
	assert.Error(t, err)

	heap, err = ResolveHeap("27g")
	require.NoError(t, err)
	assert.Equal(t, "27G", heap)

	heap, err = ResolveHeap("")
	require.NoError(t, err)
	assert.Empty(t, heap)

	_, err = ResolveHeap("lots")
	assert.Error(t, err)
}

func TestDefaultThreads(t *testing.T) {
	orig := cpuCount
	t.Cleanup(func() { cpuCount = orig })

	cpuCount = func() (int, error) { return 16, nil }
	assert.Equal(t, 16, DefaultThreads())
	cpuCount = func() (int, error) { return 0, errors.New("unavailable") }
	assert.Equal(t, 1, DefaultThreads())
}
