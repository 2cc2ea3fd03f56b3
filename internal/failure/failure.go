// Package failure defines the error taxonomy shared by every pipeline stage.
// Callers match kinds with errors.Is against the exported sentinels; stage
// failures from external tools also carry the captured process output.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindConfig        Kind = "config"
	KindFilesystem    Kind = "filesystem"
	KindPrecondition  Kind = "precondition"
	KindDecoy         Kind = "decoy"
	KindParameters    Kind = "parameters"
	KindSearch        Kind = "search"
	KindConsolidation Kind = "consolidation"
	KindReport        Kind = "report"
)

// Sentinels for errors.Is. Every external tool kind also matches
// ErrExternalTool, and precondition failures also match ErrConfig.
var (
	ErrConfig              = errors.New("config error")
	ErrFilesystem          = errors.New("filesystem error")
	ErrPrecondition        = errors.New("precondition not met")
	ErrExternalTool        = errors.New("external tool error")
	ErrDecoyGeneration     = errors.New("decoy generation failed")
	ErrParameterDerivation = errors.New("parameter derivation failed")
	ErrSearchExecution     = errors.New("search execution failed")
	ErrConsolidation       = errors.New("consolidation failed")
	ErrReportExtraction    = errors.New("report extraction failed")
)

// Error is the concrete error type returned by the search and shaker packages.
type Error struct {
	Kind Kind
	Op   string
	Err  error

	// Populated for external tool failures.
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.IsExternal() && e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel errors for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig || e.Kind == KindPrecondition
	case ErrFilesystem:
		return e.Kind == KindFilesystem
	case ErrPrecondition:
		return e.Kind == KindPrecondition
	case ErrExternalTool:
		return e.IsExternal()
	case ErrDecoyGeneration:
		return e.Kind == KindDecoy
	case ErrParameterDerivation:
		return e.Kind == KindParameters
	case ErrSearchExecution:
		return e.Kind == KindSearch
	case ErrConsolidation:
		return e.Kind == KindConsolidation
	case ErrReportExtraction:
		return e.Kind == KindReport
	}
	return false
}

// IsExternal reports whether the failure came from an external tool exit.
func (e *Error) IsExternal() bool {
	switch e.Kind {
	case KindDecoy, KindParameters, KindSearch, KindConsolidation, KindReport:
		return true
	}
	return false
}

// Output returns the captured stdout and stderr joined by a newline.
func (e *Error) Output() string {
	switch {
	case e.Stderr == "":
		return e.Stdout
	case e.Stdout == "":
		return e.Stderr
	}
	return e.Stdout + "\n" + e.Stderr
}

// Config builds a configuration error.
func Config(op, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Op: op, Err: fmt.Errorf(format, args...)}
}

// Precondition builds a state or artifact precondition error.
func Precondition(op, format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Op: op, Err: fmt.Errorf(format, args...)}
}

// Filesystem wraps a filesystem failure.
func Filesystem(op string, err error) *Error {
	return &Error{Kind: KindFilesystem, Op: op, Err: err}
}

// Tool builds an external tool failure carrying the captured output.
func Tool(kind Kind, op string, exitCode int, stdout, stderr string) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		Err:      fmt.Errorf("process exited with status %d", exitCode),
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// Wrap attaches a kind to an arbitrary cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// As extracts *Error from err.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
