// internal/tui/app.go
//
// Terminal view of a pipeline run. Stages run one at a time: each finished
// stage message schedules the next stage as a new tea.Cmd, so the model is
// only ever mutated inside Update.

package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/proteoflow/internal/module"
	"github.com/kingrea/proteoflow/internal/stages"
)

// Runner is the part of a pipeline the TUI drives.
type Runner interface {
	Stages() []module.Info
	RunStage(i int) stages.Outcome
}

type stageRow struct {
	info     module.Info
	phase    stages.Phase
	message  string
	started  time.Time
	duration time.Duration
}

type stageFinishedMsg struct {
	index   int
	outcome stages.Outcome
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithCancel is invoked when the user aborts the run.
func WithCancel(cancel context.CancelFunc) AppOption {
	return func(a *App) {
		a.cancel = cancel
	}
}

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) AppOption {
	return func(a *App) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// App is the bubbletea model for `proteoflow run --tui`.
type App struct {
	title    string
	pipeline Runner
	rows     []stageRow
	spinner  spinner.Model
	current  int
	outcomes []stages.Outcome
	err      error
	done     bool
	aborted  bool
	width    int
	cancel   context.CancelFunc
	clock    func() time.Time
}

// NewApp prepares a model for the stages of p.
func NewApp(title string, p Runner, opts ...AppOption) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = labelStyleRunning
	app := &App{
		title:    title,
		pipeline: p,
		spinner:  sp,
		clock:    time.Now,
	}
	for _, info := range p.Stages() {
		app.rows = append(app.rows, stageRow{info: info})
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.startStage(0))
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !a.done {
				a.aborted = true
				if a.cancel != nil {
					a.cancel()
				}
			}
			return a, tea.Quit
		}
		return a, nil

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case stageFinishedMsg:
		return a, a.handleStageFinished(msg)
	}
	return a, nil
}

func (a *App) startStage(i int) tea.Cmd {
	if i >= len(a.rows) {
		a.done = true
		return tea.Quit
	}
	a.current = i
	a.rows[i].phase = stages.PhaseStarted
	a.rows[i].started = a.clock()
	return func() tea.Msg {
		return stageFinishedMsg{index: i, outcome: a.pipeline.RunStage(i)}
	}
}

func (a *App) handleStageFinished(msg stageFinishedMsg) tea.Cmd {
	if msg.index < 0 || msg.index >= len(a.rows) {
		return nil
	}
	row := &a.rows[msg.index]
	row.duration = a.clock().Sub(row.started)
	row.message = msg.outcome.Result.Message
	a.outcomes = append(a.outcomes, msg.outcome)
	switch {
	case msg.outcome.Err != nil:
		row.phase = stages.PhaseFailed
		a.err = msg.outcome.Err
		a.done = true
		return tea.Quit
	case msg.outcome.Result.Status == module.StatusSkipped:
		row.phase = stages.PhaseSkipped
	default:
		row.phase = stages.PhaseCompleted
	}
	if a.aborted {
		a.done = true
		return tea.Quit
	}
	return a.startStage(msg.index + 1)
}

// Err returns the first stage failure.
func (a *App) Err() error {
	return a.err
}

// Aborted reports whether the user quit before the pipeline finished.
func (a *App) Aborted() bool {
	return a.aborted
}

// Outcomes returns the outcomes of the stages that ran.
func (a *App) Outcomes() []stages.Outcome {
	return append([]stages.Outcome(nil), a.outcomes...)
}

// View renders the current state to a string.
func (a *App) View() string {
	return a.render()
}
