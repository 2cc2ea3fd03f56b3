package module

import (
	"fmt"

	"github.com/kingrea/proteoflow/internal/artifact"
)

// Info describes a stage's identity and intent.
type Info struct {
	ID          string
	Name        string
	Description string
	Version     string
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("module: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("module: name is required for %s", i.ID)
	}
	if i.Version == "" {
		return fmt.Errorf("module: version is required for %s", i.ID)
	}
	return nil
}

// Result captures the outcome of a stage execution.
type Result struct {
	Status  Status
	Message string
}

// Status enumerates stage run outcomes.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Module is implemented by every pipeline stage.
type Module interface {
	Info() Info
	Inputs() []artifact.Ref
	Outputs() []artifact.Ref
	IsComplete(ctx *Context) (bool, error)
	Run(ctx *Context) (Result, error)
}

// OutputsReady reports whether every non-optional output of m is ready in
// the context's artifact store. Stages without outputs are never complete.
func OutputsReady(ctx *Context, m Module) (bool, error) {
	outputs := m.Outputs()
	if len(outputs) == 0 || ctx == nil || ctx.Artifacts == nil {
		return false, nil
	}
	for _, ref := range outputs {
		res, err := ctx.Artifacts.Check(ref)
		if res.State == artifact.StateError {
			return false, err
		}
		if !res.Ready() && !ref.Optional {
			return false, nil
		}
	}
	return true, nil
}
