package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"os/exec"
	"strings"
)

const maxLineSize = 1024 * 1024

var errEmptyCommand = errors.New("empty command")

// CommandError reports a program that could not start or exited non-zero.
type CommandError struct {
	Command []string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", strings.Join(e.Command, " "), e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", strings.Join(e.Command, " "), e.Err, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs programs as local subprocesses.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, command []string) ([]byte, error) {
	if len(command) == 0 {
		return nil, errEmptyCommand
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, &CommandError{Command: command, Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return out, nil
}

// Stream yields the combined stdout and stderr of the program line by line
// while it runs. A non-zero exit is yielded as the last element. Stopping the
// iteration early kills the program.
func (ExecRunner) Stream(ctx context.Context, dir string, command []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if len(command) == 0 {
			yield("", errEmptyCommand)
			return
		}

		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Dir = dir

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield("", &CommandError{Command: command, Err: err})
			return
		}
		cmd.Stderr = cmd.Stdout

		if err := cmd.Start(); err != nil {
			yield("", &CommandError{Command: command, Err: err})
			return
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			yield("", fmt.Errorf("failed to read output of %s: %w", command[0], err))
			return
		}

		if err := cmd.Wait(); err != nil {
			yield("", &CommandError{Command: command, Err: err})
		}
	}
}
