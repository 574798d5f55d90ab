package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// PythonRunner executes code with a local Python interpreter. The code is
// written to a temp file and run as a subprocess with a hard timeout; stdout
// and stderr are captured together.
type PythonRunner struct {
	bin     string
	timeout time.Duration
}

// NewPythonRunner creates a runner using bin (e.g. "python3") with the given
// per-run timeout.
func NewPythonRunner(bin string, timeout time.Duration) *PythonRunner {
	if bin == "" {
		bin = "python3"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PythonRunner{bin: bin, timeout: timeout}
}

// Run executes code and returns the combined output. A non-zero exit or a
// timeout returns the captured output plus an error describing the failure.
func (r *PythonRunner) Run(ctx context.Context, code string) (string, error) {
	dir, err := os.MkdirTemp("", "kotaeru-exec-*")
	if err != nil {
		return "", fmt.Errorf("create exec dir: %w", err)
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "analysis.py")
	if err := os.WriteFile(script, []byte(code), 0600); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.bin, script)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err = cmd.Run()
	output := out.String()
	if runCtx.Err() == context.DeadlineExceeded {
		return output, fmt.Errorf("execution timed out after %s", r.timeout)
	}
	if err != nil {
		return output, fmt.Errorf("execution failed: %w: %s", err, output)
	}
	return output, nil
}
