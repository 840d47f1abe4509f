package validator

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"fileops/internal/model"
)

// CommandResult is one external validate-command's outcome.
type CommandResult struct {
	Command    string
	ExitCode   int
	Stdout     string
	Stderr     string
	DurationMs int64
	TimedOut   bool
	Error      *model.Error
}

const defaultCommandTimeout = 30 * time.Second

// runCommand executes command (a whitespace-split binary+args string, the
// same shape spec.md's validateCommands carries) with a bounded timeout,
// grounded on the teacher's internal/tactile/direct.go DirectExecutor:
// exec.CommandContext for timeout enforcement, captured stdout/stderr,
// non-zero exit treated as a normal result rather than a Go error.
func runCommand(ctx context.Context, command string, dir string) CommandResult {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return CommandResult{Command: command, ExitCode: -1, Error: model.NewError(model.KindSchemaInvalid, "empty validate command")}
	}

	execCtx, cancel := context.WithTimeout(ctx, defaultCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, fields[0], fields[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := CommandResult{
		Command:    command,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration.Milliseconds(),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		result.Error = model.NewError(model.KindTimeout, "validate command %q timed out after %s", command, defaultCommandTimeout)
		return result
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result
	}
	if err != nil {
		result.ExitCode = -1
		result.Error = model.WrapError(model.KindExternalCommandFailed, err, "running validate command %q", command)
		return result
	}

	result.ExitCode = 0
	return result
}
