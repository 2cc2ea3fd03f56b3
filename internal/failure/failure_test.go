package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		err   *Error
		match []error
		miss  []error
	}{
		{
			err:   Config("search: new", "unknown level %q", "medium"),
			match: []error{ErrConfig},
			miss:  []error{ErrExternalTool, ErrPrecondition, ErrFilesystem},
		},
		{
			err:   Precondition("shaker: consolidate", "missing archive"),
			match: []error{ErrPrecondition, ErrConfig},
			miss:  []error{ErrExternalTool},
		},
		{
			err:   Filesystem("config: ensure layout", errors.New("permission denied")),
			match: []error{ErrFilesystem},
			miss:  []error{ErrConfig, ErrExternalTool},
		},
		{
			err:   Tool(KindSearch, "search: launch", 2, "out", "err"),
			match: []error{ErrExternalTool, ErrSearchExecution},
			miss:  []error{ErrConsolidation, ErrReportExtraction, ErrConfig},
		},
		{
			err:   Tool(KindConsolidation, "shaker: consolidate", 1, "", ""),
			match: []error{ErrExternalTool, ErrConsolidation},
			miss:  []error{ErrSearchExecution},
		},
		{
			err:   Tool(KindReport, "shaker: reports", 1, "", ""),
			match: []error{ErrExternalTool, ErrReportExtraction},
			miss:  []error{ErrConsolidation},
		},
		{
			err:   Tool(KindDecoy, "search: decoy", 1, "", ""),
			match: []error{ErrExternalTool, ErrDecoyGeneration},
			miss:  []error{ErrConfig, ErrParameterDerivation},
		},
		{
			err:   Tool(KindParameters, "search: parameters", 1, "", ""),
			match: []error{ErrExternalTool, ErrParameterDerivation},
			miss:  []error{ErrSearchExecution},
		},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		for _, target := range tc.match {
			assert.ErrorIs(t, wrapped, target, "%s should match %v", tc.err.Kind, target)
		}
		for _, target := range tc.miss {
			assert.NotErrorIs(t, wrapped, target, "%s should not match %v", tc.err.Kind, target)
		}
	}
}

func TestToolErrorCarriesOutput(t *testing.T) {
	err := Tool(KindSearch, "search: launch", 3, "stdout text", "stderr text")
	wrapped := fmt.Errorf("pipeline: %w", err)

	fe, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, 3, fe.ExitCode)
	assert.Equal(t, "stdout text\nstderr text", fe.Output())
	assert.Contains(t, fe.Error(), "exit code 3")
	assert.Contains(t, fe.Error(), "search: launch")
}

func TestWrappedToolFailureOmitsExitCode(t *testing.T) {
	err := Wrap(KindSearch, "search: launch", errors.New("exec: \"java\": executable file not found in $PATH"))
	assert.NotContains(t, err.Error(), "exit code")
	assert.ErrorIs(t, err, ErrSearchExecution)
}

func TestOutputSkipsEmptyStreams(t *testing.T) {
	assert.Equal(t, "only out", (&Error{Stdout: "only out"}).Output())
	assert.Equal(t, "only err", (&Error{Stderr: "only err"}).Output())
}
