package cli

import (
	"errors"
	"fmt"
)

// Exit codes. Verification verdicts and runtime aborts share code 1 so CI
// gates can treat them alike; configuration mistakes are distinguishable.
const (
	ExitOK          = 0
	ExitRunFailure  = 1
	ExitConfigError = 2
)

// exitError carries an exit code through kong back to main.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func (e *exitError) ExitCode() int { return e.code }

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitRunFailure
}

// outputErrorCommon normalizes error emission across commands, respecting
// ndjson vs text formats so agents always get machine-readable failures.
func outputErrorCommon(globals *Globals, code, message string, hint ...string) error {
	if globals != nil && globals.Format == "ndjson" {
		newRenderer(globals).errorEvent(code, message, hint...)
	} else if globals != nil {
		fmt.Fprintf(globals.Stderr, "Error [%s]: %s", code, message)
		if len(hint) > 0 && hint[0] != "" {
			fmt.Fprintf(globals.Stderr, " (hint: %s)", hint[0])
		}
		fmt.Fprintln(globals.Stderr)
	}
	return errors.New(message)
}

// configError emits and returns a configuration mistake (exit code 2).
func configError(globals *Globals, code, message string, hint ...string) error {
	err := outputErrorCommon(globals, code, message, hint...)
	return &exitError{code: ExitConfigError, message: err.Error()}
}

// runError emits and returns a runtime failure (exit code 1).
func runError(globals *Globals, code, message string, hint ...string) error {
	err := outputErrorCommon(globals, code, message, hint...)
	return &exitError{code: ExitRunFailure, message: err.Error()}
}

// verdictError signals a completed run whose verification failed. The
// results were already rendered; nothing further is emitted.
func verdictError() error {
	return &exitError{code: ExitRunFailure, message: "verification failed"}
}
