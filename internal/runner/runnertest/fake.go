// Package runnertest provides a scripted runner.Runner for tests. Handlers
// are keyed by a token that must appear in the command's argv (typically the
// java entry-point class) and may simulate the files a tool would write.
package runnertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kingrea/proteoflow/internal/runner"
)

// Handler simulates one external tool.
type Handler func(cmd runner.Command) (*runner.Result, error)

// Fake records every command and dispatches it to the first matching handler.
type Fake struct {
	mu       sync.Mutex
	commands []runner.Command
	routes   []route
}

type route struct {
	token   string
	handler Handler
}

// New returns a Fake with no handlers. Unmatched commands succeed silently.
func New() *Fake {
	return &Fake{}
}

// On registers h for commands containing token. Later registrations for the
// same token replace earlier ones.
func (f *Fake) On(token string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.routes {
		if f.routes[i].token == token {
			f.routes[i].handler = h
			return f
		}
	}
	f.routes = append(f.routes, route{token: token, handler: h})
	return f
}

// Run implements runner.Runner.
func (f *Fake) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	var h Handler
	for _, r := range f.routes {
		if contains(cmd.Args, r.token) {
			h = r.handler
			break
		}
	}
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return &runner.Result{ExitCode: -1, Killed: true}, nil
	}
	if h == nil {
		return &runner.Result{ExitCode: 0}, nil
	}
	return h(cmd)
}

// Commands returns every command run so far.
func (f *Fake) Commands() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.commands...)
}

// Calls returns the commands containing token.
func (f *Fake) Calls(token string) []runner.Command {
	var out []runner.Command
	for _, cmd := range f.Commands() {
		if contains(cmd.Args, token) {
			out = append(out, cmd)
		}
	}
	return out
}

// Steps returns the step names in execution order.
func (f *Fake) Steps() []string {
	var out []string
	for _, cmd := range f.Commands() {
		out = append(out, cmd.Name)
	}
	return out
}

// Succeed returns a handler that exits 0 with stdout.
func Succeed(stdout string) Handler {
	return func(runner.Command) (*runner.Result, error) {
		return &runner.Result{ExitCode: 0, Stdout: stdout}, nil
	}
}

// Fail returns a handler that exits with code and the given output.
func Fail(code int, stdout, stderr string) Handler {
	return func(runner.Command) (*runner.Result, error) {
		return &runner.Result{ExitCode: code, Stdout: stdout, Stderr: stderr}, nil
	}
}

// Writes returns a handler that creates the file named by the value of flag
// (joined with name when name is non-empty) and exits 0.
func Writes(flag, name string, data []byte) Handler {
	return func(cmd runner.Command) (*runner.Result, error) {
		target, ok := Value(cmd, flag)
		if !ok {
			return &runner.Result{ExitCode: 1, Stderr: "missing " + flag}, nil
		}
		if name != "" {
			target = filepath.Join(target, name)
		}
		if err := WriteFile(target, data); err != nil {
			return nil, err
		}
		return &runner.Result{ExitCode: 0, Stdout: "wrote " + target}, nil
	}
}

// WriteFile creates path and its parent directories.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("runnertest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Value returns the argv element following flag.
func Value(cmd runner.Command, flag string) (string, bool) {
	for i := 0; i < len(cmd.Args)-1; i++ {
		if cmd.Args[i] == flag {
			return cmd.Args[i+1], true
		}
	}
	return "", false
}

// ZipBytes is the smallest valid zip archive (an empty central directory).
var ZipBytes = []byte("PK\x05\x06" + string(make([]byte, 18)))

func contains(args []string, token string) bool {
	for _, a := range args {
		if a == token {
			return true
		}
	}
	return false
}
