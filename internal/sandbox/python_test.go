package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requirePython(t *testing.T) string {
	t.Helper()
	bin, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not installed")
	}
	return bin
}

func TestRun(t *testing.T) {
	r := NewPythonRunner(requirePython(t), 10*time.Second)
	out, err := r.Run(context.Background(), "print('hello from analysis')")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "hello from analysis") {
		t.Errorf("output = %q", out)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := NewPythonRunner(requirePython(t), 10*time.Second)
	out, err := r.Run(context.Background(), "raise ValueError('boom')")
	if err == nil {
		t.Fatal("expected error for failing script")
	}
	// The traceback is part of both the returned output and the error text.
	if !strings.Contains(out, "ValueError") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(err.Error(), "execution failed") {
		t.Errorf("err = %v", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := NewPythonRunner(requirePython(t), 500*time.Millisecond)
	_, err := r.Run(context.Background(), "import time\ntime.sleep(10)")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v", err)
	}
}

func TestMockRunner(t *testing.T) {
	r := &MockRunner{Output: "42\n"}
	out, err := r.Run(context.Background(), "print(42)")
	if err != nil {
		t.Fatal(err)
	}
	if out != "42\n" {
		t.Errorf("output = %q", out)
	}
}
