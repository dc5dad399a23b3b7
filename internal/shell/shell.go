// Package shell runs external commands synchronously.
//
// Routing and sysctl side effects are applied through short-lived trusted
// local commands; the caller inspects the exit code and captured output and
// decides whether a failure degrades the feature or aborts the operation.
package shell

import (
	"bytes"
	"os/exec"

	"github.com/vpn-linux/split-tunnel/internal/log"
)

// Result holds the outcome of one command invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs a command line and returns its exit code and captured output.
// It exists as an interface so side-effecting callers can be tested against
// a fake.
type Executor interface {
	Execute(command string) Result
}

// New returns an Executor backed by "sh -c".
func New() Executor {
	return &shExecutor{}
}

type shExecutor struct{}

func (e *shExecutor) Execute(command string) Result {
	log.Debugf("Executing: %s", command)

	cmd := exec.Command("sh", "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			// Command did not start at all (e.g. sh missing).
			log.Warnf("Failed to execute %q: %v", command, err)
			exitCode = -1
		}
	}

	return Result{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
}
