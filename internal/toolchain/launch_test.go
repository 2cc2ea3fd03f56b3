package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/proteoflow/internal/artifact"
	"github.com/kingrea/proteoflow/internal/failure"
	"github.com/kingrea/proteoflow/internal/layout"
	"github.com/kingrea/proteoflow/internal/runner"
)

func newLauncher(t *testing.T, fn runner.Func) (*Launcher, *artifact.Recorder, layout.Layout) {
	t.Helper()
	root := t.TempDir()
	l := layout.New(filepath.Join(root, "out"), filepath.Join(root, "tmp"), root, "exp")
	store := artifact.NewStore(artifact.Scope{Layout: l})
	rec := artifact.NewRecorder(store, artifact.NewManifest(artifact.Manifest{Experiment: "exp"}, time.Now()))
	return &Launcher{Java: Java{Heap: "4G"}, Runner: fn, Layout: l, Recorder: rec}, rec, l
}

func searchInvocation() Invocation {
	args := &Args{}
	args.Pair("threads", "2")
	return Invocation{Step: StepSearch, Jar: "/tools/sg.jar", Class: ClassSearch, Args: args, Heavy: true}
}

func TestLaunchSuccessWritesTranscriptAndRecord(t *testing.T) {
	var seen runner.Command
	launcher, rec, l := newLauncher(t, func(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
		seen = cmd
		return &runner.Result{ExitCode: 0, Stdout: "done"}, nil
	})

	res, err := launcher.Launch(context.Background(), searchInvocation(), failure.KindSearch)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, []string{"-Xmx4G", "-cp", "/tools/sg.jar", ClassSearch, "-threads", "2"}, seen.Args)

	data, err := os.ReadFile(l.TranscriptPath(StepSearch))
	require.NoError(t, err)
	assert.Contains(t, string(data), "done")

	m := rec.Manifest()
	step, ok := m.Step(StepSearch)
	require.True(t, ok)
	assert.Equal(t, artifact.StepComplete, step.Status)
	require.NotNil(t, step.ExitCode)
	assert.Equal(t, 0, *step.ExitCode)
	assert.Equal(t, "java", step.Command[0])
}

func TestLaunchNonZeroExitCarriesOutput(t *testing.T) {
	launcher, rec, _ := newLauncher(t, func(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
		return &runner.Result{ExitCode: 2, Stdout: "partial", Stderr: "OutOfMemoryError"}, nil
	})

	res, err := launcher.Launch(context.Background(), searchInvocation(), failure.KindSearch)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.ErrorIs(t, err, failure.ErrSearchExecution)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, 2, fe.ExitCode)
	assert.Equal(t, "OutOfMemoryError", fe.Stderr)

	m := rec.Manifest()
	step, _ := m.Step(StepSearch)
	assert.Equal(t, artifact.StepFailed, step.Status)
}

func TestLaunchKilledAndUnstartable(t *testing.T) {
	launcher, _, _ := newLauncher(t, func(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
		return &runner.Result{ExitCode: -1, Killed: true}, nil
	})
	_, err := launcher.Launch(context.Background(), searchInvocation(), failure.KindSearch)
	assert.ErrorContains(t, err, "stopped before completion")

	launcher, rec, _ := newLauncher(t, func(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
		return nil, errors.New("exec: \"java\": executable file not found")
	})
	res, err := launcher.Launch(context.Background(), searchInvocation(), failure.KindSearch)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, failure.ErrSearchExecution)
	m := rec.Manifest()
	step, _ := m.Step(StepSearch)
	assert.Equal(t, artifact.StepFailed, step.Status)
	assert.Nil(t, step.ExitCode)
}

func TestLaunchRejectsIncompleteInvocation(t *testing.T) {
	launcher, _, _ := newLauncher(t, func(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
		t.Fatal("runner must not be called")
		return nil, nil
	})
	_, err := launcher.Launch(context.Background(), Invocation{Step: StepSearch}, failure.KindSearch)
	assert.ErrorIs(t, err, failure.ErrConfig)
}
