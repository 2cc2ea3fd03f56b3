package toolchain

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kingrea/proteoflow/internal/artifact"
	"github.com/kingrea/proteoflow/internal/failure"
	"github.com/kingrea/proteoflow/internal/layout"
	"github.com/kingrea/proteoflow/internal/runner"
)

// Step names used for transcripts and manifest records.
const (
	StepDecoy         = "decoy"
	StepParameters    = "parameters"
	StepSearch        = "search"
	StepPathSettings  = "path-settings"
	StepConsolidation = "consolidate"
	StepReports       = "reports"
)

// Launcher runs invocations through a Runner. Every run leaves a transcript
// in the log directory and a record in the manifest.
type Launcher struct {
	Java     Java
	Runner   runner.Runner
	Layout   layout.Layout
	Logger   *zap.Logger
	Recorder *artifact.Recorder
}

// Launch executes inv and turns a failed or killed process into a
// *failure.Error of the given kind. The result is returned whenever the
// process ran, including on failure.
func (l *Launcher) Launch(ctx context.Context, inv Invocation, kind failure.Kind) (*runner.Result, error) {
	op := "toolchain: " + inv.Step
	if err := inv.Validate(); err != nil {
		return nil, failure.Wrap(failure.KindConfig, op, err)
	}
	if l.Runner == nil {
		return nil, failure.Config(op, "no runner configured")
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := l.Java.Command(inv)
	started := l.Recorder.Now()
	rec := artifact.StepRecord{
		Name:      inv.Step,
		Status:    artifact.StepRunning,
		Command:   append([]string{cmd.Binary}, cmd.Args...),
		StartedAt: started,
	}
	l.record(logger, rec)

	res, err := l.Runner.Run(ctx, cmd)
	finished := l.Recorder.Now()
	rec.FinishedAt = &finished
	if err != nil {
		rec.Status = artifact.StepFailed
		rec.Message = err.Error()
		l.record(logger, rec)
		return nil, failure.Wrap(kind, op, err)
	}

	transcript := l.Layout.TranscriptPath(inv.Step)
	if werr := runner.WriteTranscript(transcript, cmd, res); werr != nil {
		logger.Warn("could not write transcript", zap.String("step", inv.Step), zap.Error(werr))
	} else {
		rec.Transcript = transcript
	}
	code := res.ExitCode
	rec.ExitCode = &code

	if !res.Success() {
		rec.Status = artifact.StepFailed
		fe := failure.Tool(kind, op, res.ExitCode, res.Stdout, res.Stderr)
		if res.Killed {
			fe.Err = fmt.Errorf("process stopped before completion (timeout or cancellation)")
		}
		rec.Message = fe.Err.Error()
		l.record(logger, rec)
		logger.Error("external tool failed",
			zap.String("step", inv.Step),
			zap.Int("exit_code", res.ExitCode),
			zap.String("transcript", rec.Transcript),
		)
		return res, fe
	}

	rec.Status = artifact.StepComplete
	l.record(logger, rec)
	return res, nil
}

func (l *Launcher) record(logger *zap.Logger, rec artifact.StepRecord) {
	if err := l.Recorder.Record(rec); err != nil {
		logger.Warn("could not update run manifest", zap.String("step", rec.Name), zap.Error(err))
	}
}
