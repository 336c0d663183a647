package feasibility

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed invocation input. No session is opened.
type ValidationError struct {
	Input   string
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required address fields: " + strings.Join(e.Missing, ", ")
}

// ConfigurationError reports absent or invalid settings. No session is opened.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SessionError reports that the browser could not be started.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return "open browser session: " + e.Err.Error()
}

func (e *SessionError) Unwrap() error { return e.Err }

type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// StepError names the step of a StepList that could not be completed.
// Index is zero based.
type StepError struct {
	Index    int
	Label    string
	Selector string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s, %s): %v", e.Index+1, e.Label, e.Selector, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// AuthenticationError means the page stayed on the login surface after the
// credentials were submitted.
type AuthenticationError struct {
	URL string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: still on login page " + e.URL
}

// CaptureError is never fatal; it is logged and dropped.
type CaptureError struct {
	Caption string
	Err     error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %q: %v", e.Caption, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }
