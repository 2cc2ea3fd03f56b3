package module

import "github.com/kingrea/proteoflow/internal/artifact"

// Base provides common plumbing for stages (identity + IO contracts).
type Base struct {
	info    Info
	inputs  []artifact.Ref
	outputs []artifact.Ref
}

// NewBase seeds the helper with stage info.
func NewBase(info Info) Base {
	return Base{info: info}
}

// SetInputs declares the required artifacts.
func (b *Base) SetInputs(refs ...artifact.Ref) {
	b.inputs = append([]artifact.Ref{}, refs...)
}

// SetOutputs declares the produced artifacts.
func (b *Base) SetOutputs(refs ...artifact.Ref) {
	b.outputs = append([]artifact.Ref{}, refs...)
}

// Info implements Module.Info.
func (b *Base) Info() Info {
	return b.info
}

// Inputs implements Module.Inputs.
func (b *Base) Inputs() []artifact.Ref {
	return append([]artifact.Ref{}, b.inputs...)
}

// Outputs implements Module.Outputs.
func (b *Base) Outputs() []artifact.Ref {
	return append([]artifact.Ref{}, b.outputs...)
}
