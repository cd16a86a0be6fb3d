package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is live.
	ErrAlreadyRunning = errors.New("capture session already running")
	// ErrNotRunning is returned by Stop when no session is live.
	ErrNotRunning = errors.New("no capture session running")
	// ErrControllerClosed is returned once the controller loop has exited.
	ErrControllerClosed = errors.New("session controller closed")
)

// Resources named by SetupError.
const (
	ResourceConfig    = "config"
	ResourceDevice    = "device"
	ResourceStream    = "stream"
	ResourceTransport = "transport"
)

// SetupError reports which resource could not be acquired during Start.
type SetupError struct {
	Resource string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("failed to acquire %s: %v", e.Resource, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
