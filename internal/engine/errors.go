package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrStartup marks a failure to launch an engine process. The engine stays
	// cold until the next call retries the launch.
	ErrStartup = errors.New("engine startup failed")

	// ErrCrashed marks a process that died during a request/response exchange.
	// The next call starts a fresh process.
	ErrCrashed = errors.New("engine crashed")

	ErrClosed = errors.New("engine client closed")
)

// StartupError reports which engine and command line could not be started.
type StartupError struct {
	Engine  string
	Command string
	Err     error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s engine: start %q: %v", e.Engine, e.Command, e.Err)
}

func (e *StartupError) Unwrap() []error {
	return []error{ErrStartup, e.Err}
}
