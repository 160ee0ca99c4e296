package discordblue

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	permissionDeniedMessage = "You do not have permission to use this command"
	missingArgumentFormat   = "Missing Required Argument: %s"
	unknownErrorFormat      = "Unknown error: %s"
	modelNotFoundMessage    = "Model not found"
)

var (
	// ErrPermission is returned by command checks which fail
	ErrPermission = errors.New("permission denied")

	ErrUnknownDoodad   = errors.New("unknown doodad")
	ErrDoodadLoaded    = errors.New("doodad already loaded")
	ErrDoodadNotLoaded = errors.New("doodad not loaded")

	ErrUnknownCommand = errors.New("unknown command")
	ErrModelNotFound  = errors.New("model not found")
	ErrNotConfigured  = errors.New("not configured")
)

// MissingArgumentError is returned when a required slash command option
// is absent
type MissingArgumentError struct {
	Name string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf(missingArgumentFormat, e.Name)
}

// CommandError wraps a failure raised while a command ran. Its text is
// shown to the user as-is.
type CommandError struct {
	Err error
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return "command failed"
	}
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// commandFailed wraps err as a CommandError, with an optional message
// prefix
func commandFailed(err error, format string, args ...any) error {
	if format != "" {
		err = fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	}
	return &CommandError{Err: err}
}

// HTTPError is returned by the PrintNode and Shippo clients for non-2xx
// responses
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(
		"%s %s: %d %s: %s",
		e.Method,
		e.URL,
		e.StatusCode,
		http.StatusText(e.StatusCode),
		truncate(e.Body, 200),
	)
}

// commandErrorMessage maps an error returned by a command handler to the
// message shown to the user
func commandErrorMessage(err error) string {
	var missingArg *MissingArgumentError
	var cmdErr *CommandError

	switch {
	case errors.Is(err, ErrPermission):
		return permissionDeniedMessage
	case errors.As(err, &missingArg):
		return missingArg.Error()
	case errors.As(err, &cmdErr):
		return cmdErr.Error()
	default:
		return fmt.Sprintf(unknownErrorFormat, err)
	}
}
