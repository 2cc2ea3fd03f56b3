// Package runner executes the external tools as blocking subprocesses and
// captures their output verbatim. It never interprets the output: the exit
// code and the captured text are the only signals handed back to callers.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Command is one external tool invocation.
type Command struct {
	// Name identifies the pipeline step (used for logs and transcripts).
	Name string
	// Binary is the executable, e.g. "java".
	Binary string
	// Args are passed to the process as separate argv elements.
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is appended to the inherited environment (KEY=VALUE).
	Env []string
}

// String renders the command line for display. It is not shell-safe.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of a command that actually ran.
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	StartedAt time.Time
	Duration  time.Duration
	// Killed is set when the process was stopped by a timeout or cancellation.
	Killed bool
}

// Success reports a zero exit status.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0 && !r.Killed
}

// Runner launches commands. A non-zero exit is reported through Result, not
// as an error; an error means the process could not be run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, cmd Command) (*Result, error)

// Run implements Runner.
func (f Func) Run(ctx context.Context, cmd Command) (*Result, error) {
	return f(ctx, cmd)
}

// waitDelay bounds how long output copying may outlive a killed process.
const waitDelay = 2 * time.Second

// Exec runs commands on the host with os/exec.
type Exec struct {
	// Timeout bounds each process. Zero means no timeout.
	Timeout time.Duration
	// Stream, when set, receives a copy of stdout and stderr while the
	// process runs.
	Stream *os.File
	Logger *zap.Logger
}

// NewExec returns an Exec runner with no timeout.
func NewExec(logger *zap.Logger) *Exec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exec{Logger: logger}
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, cmd Command) (*Result, error) {
	if strings.TrimSpace(cmd.Binary) == "" {
		return nil, fmt.Errorf("runner: binary is required for %s", cmd.Name)
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	execCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(execCtx, cmd.Binary, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.WaitDelay = waitDelay
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	if e.Stream != nil {
		proc.Stdout = &teeWriter{buf: &stdout, out: e.Stream}
		proc.Stderr = &teeWriter{buf: &stderr, out: e.Stream}
	} else {
		proc.Stdout = &stdout
		proc.Stderr = &stderr
	}

	logger.Info("launching external tool",
		zap.String("step", cmd.Name),
		zap.String("binary", cmd.Binary),
		zap.Strings("args", cmd.Args),
	)
	result := &Result{ExitCode: -1, StartedAt: time.Now()}
	err := proc.Run()
	result.Duration = time.Since(result.StartedAt)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case execCtx.Err() != nil:
			result.Killed = true
			logger.Warn("external tool stopped",
				zap.String("step", cmd.Name),
				zap.Duration("duration", result.Duration),
				zap.Error(execCtx.Err()),
			)
			if errors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitCode()
			}
			return result, nil
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("runner: start %s: %w", cmd.Name, err)
		}
	} else {
		result.ExitCode = 0
	}
	logger.Info("external tool finished",
		zap.String("step", cmd.Name),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

type teeWriter struct {
	buf *bytes.Buffer
	out *os.File
}

func (w *teeWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if err != nil {
		return n, err
	}
	_, _ = w.out.Write(p)
	return n, nil
}

// WriteTranscript stores the command line, exit status and captured output
// of one invocation under path.
func WriteTranscript(path string, cmd Command, res *Result) error {
	if res == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("runner: ensure transcript dir: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "command: %s\n", cmd.String())
	fmt.Fprintf(&b, "started: %s\n", res.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "duration: %s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "exit code: %d\n", res.ExitCode)
	if res.Killed {
		b.WriteString("killed: true\n")
	}
	b.WriteString("\n--- stdout ---\n")
	b.WriteString(res.Stdout)
	b.WriteString("\n--- stderr ---\n")
	b.WriteString(res.Stderr)
	b.WriteString("\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("runner: write transcript %s: %w", path, err)
	}
	return nil
}
