package stages

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kingrea/proteoflow/internal/artifact"
	"github.com/kingrea/proteoflow/internal/failure"
	"github.com/kingrea/proteoflow/internal/module"
)

// Phase marks where a stage is in its lifecycle.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseSkipped   Phase = "skipped"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Event is emitted to the observer as stages progress.
type Event struct {
	Index  int
	Stage  module.Info
	Phase  Phase
	Result module.Result
	Err    error
}

// Outcome is the final state of one stage.
type Outcome struct {
	Stage  module.Info
	Result module.Result
	Err    error
}

// Pipeline runs stages strictly in order and stops at the first failure.
type Pipeline struct {
	ctx    *module.Context
	stages []module.Module
	resume bool
	notify func(Event)
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithResume skips stages whose outputs are already ready.
func WithResume(resume bool) PipelineOption {
	return func(p *Pipeline) {
		p.resume = resume
	}
}

// WithObserver receives an Event for every phase change.
func WithObserver(fn func(Event)) PipelineOption {
	return func(p *Pipeline) {
		p.notify = fn
	}
}

// NewPipeline resolves ids from reg. An empty ids list runs every registered
// stage in registration order.
func NewPipeline(ctx *module.Context, reg *module.Registry, ids []string, opts ...PipelineOption) (*Pipeline, error) {
	if ctx == nil {
		return nil, fmt.Errorf("stages: module context is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("stages: registry is required")
	}
	if len(ids) == 0 {
		ids = reg.Order()
	}
	p := &Pipeline{ctx: ctx}
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			return nil, failure.Config("stages: pipeline", "stage %s listed twice", id)
		}
		seen[id] = true
		m, err := reg.Resolve(id, nil)
		if err != nil {
			return nil, failure.Wrap(failure.KindConfig, "stages: pipeline", err)
		}
		p.stages = append(p.stages, m)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Stages returns the info block of every stage in run order.
func (p *Pipeline) Stages() []module.Info {
	infos := make([]module.Info, 0, len(p.stages))
	for _, m := range p.stages {
		infos = append(infos, m.Info())
	}
	return infos
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Run executes every stage in order. The returned outcomes cover the stages
// that were attempted; the error is the first stage failure.
func (p *Pipeline) Run() ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(p.stages))
	for i := range p.stages {
		out := p.RunStage(i)
		outcomes = append(outcomes, out)
		if out.Err != nil {
			return outcomes, out.Err
		}
	}
	return outcomes, nil
}

// RunStage executes the stage at index i, recording it in the manifest.
func (p *Pipeline) RunStage(i int) Outcome {
	m := p.stages[i]
	info := m.Info()
	ctx := p.ctx.WithStage(info.ID)
	if err := ctx.Ctx.Err(); err != nil {
		return p.finish(ctx, i, info, module.Result{Status: module.StatusFailed, Message: err.Error()}, err)
	}

	if p.resume {
		done, err := m.IsComplete(ctx)
		if err != nil {
			ctx.Logger.Warn("could not check stage outputs", zap.Error(err))
		}
		if done {
			res := module.Result{Status: module.StatusSkipped, Message: "outputs already present"}
			return p.finish(ctx, i, info, res, nil)
		}
	}

	if checks, ready := ctx.Artifacts.CheckAll(m.Inputs()); !ready {
		for _, check := range checks {
			if check.Ready() || check.Ref.Optional {
				continue
			}
			var ferr *failure.Error
			if check.State == artifact.StateError && check.Err != nil {
				ferr = failure.Filesystem("stages: "+info.ID, check.Err)
			} else {
				ferr = failure.Precondition("stages: "+info.ID, "%s is %s at %s", check.Ref.Name, check.State, check.Path)
			}
			return p.finish(ctx, i, info, module.Result{Status: module.StatusFailed, Message: ferr.Error()}, ferr)
		}
	}

	p.emit(Event{Index: i, Stage: info, Phase: PhaseStarted})
	p.record(ctx, info, artifact.StepRunning, "")
	ctx.Logger.Info("stage started", zap.String("name", info.Name))
	res, err := m.Run(ctx)
	if err != nil && res.Status != module.StatusFailed {
		res = module.Result{Status: module.StatusFailed, Message: err.Error()}
	}
	return p.finish(ctx, i, info, res, err)
}

func (p *Pipeline) finish(ctx *module.Context, i int, info module.Info, res module.Result, err error) Outcome {
	phase := PhaseCompleted
	status := artifact.StepComplete
	switch {
	case err != nil:
		phase, status = PhaseFailed, artifact.StepFailed
		ctx.Logger.Error("stage failed", zap.Error(err))
	case res.Status == module.StatusSkipped:
		phase, status = PhaseSkipped, artifact.StepSkipped
		ctx.Logger.Info("stage skipped", zap.String("reason", res.Message))
	default:
		ctx.Logger.Info("stage completed", zap.String("result", res.Message))
	}
	p.record(ctx, info, status, res.Message)
	p.emit(Event{Index: i, Stage: info, Phase: phase, Result: res, Err: err})
	return Outcome{Stage: info, Result: res, Err: err}
}

func (p *Pipeline) record(ctx *module.Context, info module.Info, status, message string) {
	if ctx.Recorder == nil {
		return
	}
	rec := artifact.StepRecord{
		Name:      StepName(info.ID),
		Status:    status,
		Message:   message,
		StartedAt: ctx.Recorder.Now().UTC(),
	}
	if status != artifact.StepRunning {
		snapshot := ctx.Recorder.Manifest()
		if prev, ok := snapshot.Step(rec.Name); ok && prev.Status == artifact.StepRunning {
			rec.StartedAt = prev.StartedAt
		}
		finished := ctx.Recorder.Now().UTC()
		rec.FinishedAt = &finished
	}
	if err := ctx.Recorder.Record(rec); err != nil {
		ctx.Logger.Warn("could not write run manifest", zap.Error(err))
	}
}

func (p *Pipeline) emit(ev Event) {
	if p.notify != nil {
		p.notify(ev)
	}
}

// StepName is the manifest record name of a stage.
func StepName(id string) string {
	return "stage:" + id
}
