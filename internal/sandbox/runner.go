// Package sandbox provides the code execution collaborator: run a block of
// generated code, return its captured output or a failure description.
// Isolation and resource limits are the runner's own concern; callers treat
// the boundary as opaque.
package sandbox

import "context"

// Runner executes a code string and returns the captured textual output.
// A failed run returns the failure description as the error; any output
// captured before the failure is returned alongside it.
type Runner interface {
	Run(ctx context.Context, code string) (string, error)
}

// MockRunner is a scripted runner for tests.
type MockRunner struct {
	Output string
	Err    error
}

// Run returns the scripted output and error.
func (m *MockRunner) Run(ctx context.Context, code string) (string, error) {
	return m.Output, m.Err
}
